package transport

import (
	"context"
	"crypto/ed25519"
	"fmt"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/appealproxy/pkg/network/protocol"
)

// Conn is a QUIC connection to an authenticated peer.
type Conn struct {
	qConn   quic.Connection
	peerKey ed25519.PublicKey
	ctx     context.Context
	cancel  context.CancelFunc
}

func newConn(parent context.Context, qConn quic.Connection, peerKey ed25519.PublicKey) *Conn {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		select {
		case <-qConn.Context().Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return &Conn{
		qConn:   qConn,
		peerKey: peerKey,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// OpenStream opens a bidirectional stream and announces its kind.
func (c *Conn) OpenStream(ctx context.Context, kind protocol.StreamKind) (quic.Stream, error) {
	stream, err := c.qConn.OpenStreamSync(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to open QUIC stream: %w", err)
	}
	if _, err := stream.Write([]byte{byte(kind)}); err != nil {
		stream.CancelWrite(0)
		return nil, fmt.Errorf("failed to write stream kind: %w", err)
	}
	return stream, nil
}

func (c *Conn) AcceptStream() (quic.Stream, error) {
	stream, err := c.qConn.AcceptStream(c.ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to accept QUIC stream: %w", err)
	}
	return stream, nil
}

func (c *Conn) PeerKey() ed25519.PublicKey {
	return c.peerKey
}

// Context is cancelled when the connection is closed by either side.
func (c *Conn) Context() context.Context {
	return c.ctx
}

func (c *Conn) Close() error {
	return c.close(codeNoError, "")
}

func (c *Conn) close(code quic.ApplicationErrorCode, reason string) error {
	c.cancel()
	return c.qConn.CloseWithError(code, reason)
}
