package transport

import (
	"context"
	"crypto/ed25519"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/quic-go/quic-go"

	"github.com/eigerco/appealproxy/pkg/log"
	"github.com/eigerco/appealproxy/pkg/network/protocol"
)

// MaxIdleTimeout defines the maximum duration a connection can be idle before timing out
const MaxIdleTimeout = 30 * time.Minute

// StreamTimeout bounds reading the kind byte of a new stream.
const StreamTimeout = 5 * time.Second

// Application error codes used when closing connections and streams.
const (
	codeNoError        quic.ApplicationErrorCode = 0
	codeBadCertificate quic.ApplicationErrorCode = 1
	codeShutdown       quic.ApplicationErrorCode = 2
	codeUnknownKind    quic.StreamErrorCode      = 1
)

// StreamRegistry resolves the handler of an incoming stream from its kind byte.
type StreamRegistry interface {
	GetHandler(kindByte byte) (protocol.StreamHandler, error)
}

// CertValidator performs TLS certificate validation and public key extraction
type CertValidator interface {
	ValidateCertificate(cert *x509.Certificate) error
	ExtractPublicKey(cert *x509.Certificate) (ed25519.PublicKey, error)
}

type Config struct {
	TLSCert       *tls.Certificate
	ListenAddr    string
	Network       string
	CertValidator CertValidator
	// Registry is required to serve incoming streams; a dial-only
	// transport leaves it nil.
	Registry StreamRegistry
}

// Transport accepts and dials QUIC connections. Every stream on an
// accepted connection is dispatched to the handler of its kind.
type Transport struct {
	config   Config
	listener *quic.Listener
	mu       sync.RWMutex
	conns    map[string]*Conn
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

func NewTransport(config Config) (*Transport, error) {
	if config.TLSCert == nil {
		return nil, fmt.Errorf("TLS certificate required")
	}
	if config.CertValidator == nil {
		return nil, fmt.Errorf("certificate validator required")
	}
	if config.Network == "" {
		return nil, fmt.Errorf("network name required")
	}
	if err := config.CertValidator.ValidateCertificate(config.TLSCert.Leaf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Transport{
		config: config,
		conns:  make(map[string]*Conn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *Transport) tlsConfig() *tls.Config {
	return &tls.Config{
		Certificates:       []tls.Certificate{*t.config.TLSCert},
		NextProtos:         protocol.AcceptableProtocols(t.config.Network),
		ClientAuth:         tls.RequireAnyClientCert,
		MinVersion:         tls.VersionTLS13,
		InsecureSkipVerify: true,
		VerifyConnection:   t.verifyConnection,
	}
}

func (t *Transport) verifyConnection(cs tls.ConnectionState) error {
	if len(cs.PeerCertificates) == 0 {
		return fmt.Errorf("%w: no peer certificate provided", ErrInvalidCertificate)
	}
	if err := t.config.CertValidator.ValidateCertificate(cs.PeerCertificates[0]); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	if err := protocol.ValidateProtocol(cs.NegotiatedProtocol, t.config.Network); err != nil {
		return fmt.Errorf("connection validation failed: %w", err)
	}
	return nil
}

func quicConfig() *quic.Config {
	return &quic.Config{
		MaxIdleTimeout:  MaxIdleTimeout,
		KeepAlivePeriod: MaxIdleTimeout / 2,
	}
}

// Start listens on the configured address and serves incoming streams.
func (t *Transport) Start() error {
	if t.config.Registry == nil {
		return fmt.Errorf("%w: stream registry required", ErrListenerFailed)
	}
	listener, err := quic.ListenAddr(t.config.ListenAddr, t.tlsConfig(), quicConfig())
	if err != nil {
		return fmt.Errorf("%w: %v", ErrListenerFailed, err)
	}
	t.listener = listener
	log.Network.Info().Stringer("addr", listener.Addr()).Str("network", t.config.Network).Msg("listening")

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.acceptLoop()
	}()
	return nil
}

// Addr is the bound listen address, or nil before Start.
func (t *Transport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

// Stop closes every connection and the listener, then waits for the
// connection goroutines to return.
func (t *Transport) Stop() error {
	t.cancel()

	t.mu.Lock()
	for key, conn := range t.conns {
		if err := conn.close(codeShutdown, "shutting down"); err != nil {
			log.Network.Debug().Err(err).Msg("failed to close connection")
		}
		delete(t.conns, key)
	}
	t.mu.Unlock()

	var err error
	if t.listener != nil {
		if cerr := t.listener.Close(); cerr != nil {
			err = fmt.Errorf("failed to close listener: %w", cerr)
		}
	}
	t.wg.Wait()
	return err
}

// Connect dials addr and returns a connection for opening streams.
func (t *Transport) Connect(ctx context.Context, addr string) (*Conn, error) {
	quicConn, err := quic.DialAddr(ctx, addr, t.tlsConfig(), quicConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDialFailed, err)
	}
	conn, err := t.handleConnection(quicConn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

func (t *Transport) acceptLoop() {
	for {
		qConn, err := t.listener.Accept(t.ctx)
		if err != nil {
			if t.ctx.Err() != nil || errors.Is(err, quic.ErrServerClosed) {
				return
			}
			log.Network.Warn().Err(err).Msg("failed to accept connection")
			continue
		}

		conn, err := t.handleConnection(qConn)
		if err != nil {
			log.Network.Warn().Err(err).Stringer("remote", qConn.RemoteAddr()).Msg("rejected connection")
			continue
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.serve(conn)
		}()
	}
}

func (t *Transport) handleConnection(qConn quic.Connection) (*Conn, error) {
	peerCerts := qConn.ConnectionState().TLS.PeerCertificates
	if len(peerCerts) == 0 {
		_ = qConn.CloseWithError(codeBadCertificate, ErrInvalidCertificate.Error())
		return nil, ErrInvalidCertificate
	}
	peerKey, err := t.config.CertValidator.ExtractPublicKey(peerCerts[0])
	if err != nil {
		_ = qConn.CloseWithError(codeBadCertificate, fmt.Sprintf("%s: %v", ErrInvalidCertificate, err))
		return nil, fmt.Errorf("%w: %v", ErrInvalidCertificate, err)
	}
	return t.manageConnection(peerKey, qConn), nil
}

// manageConnection stores the connection, replacing any previous one from the same peer.
func (t *Transport) manageConnection(peerKey ed25519.PublicKey, qConn quic.Connection) *Conn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, ok := t.conns[string(peerKey)]; ok {
		log.Network.Debug().Msg("replacing existing connection")
		if err := existing.Close(); err != nil {
			log.Network.Debug().Err(err).Msg("failed to close existing connection")
		}
	}
	conn := newConn(t.ctx, qConn, peerKey)
	t.conns[string(peerKey)] = conn
	return conn
}

func (t *Transport) cleanup(conn *Conn) {
	t.mu.Lock()
	if current, ok := t.conns[string(conn.peerKey)]; ok && current == conn {
		delete(t.conns, string(conn.peerKey))
	}
	t.mu.Unlock()
}

// serve accepts streams until the connection goes away.
func (t *Transport) serve(conn *Conn) {
	defer t.cleanup(conn)
	for {
		stream, err := conn.AcceptStream()
		if err != nil {
			log.Network.Debug().Err(err).Msg("connection closed")
			return
		}
		t.wg.Add(1)
		go func() {
			defer t.wg.Done()
			t.handleStream(conn, stream)
		}()
	}
}

func (t *Transport) handleStream(conn *Conn, stream quic.Stream) {
	kind := make([]byte, 1)
	if err := stream.SetReadDeadline(time.Now().Add(StreamTimeout)); err != nil {
		log.Network.Debug().Err(err).Msg("failed to set read deadline")
	}
	if _, err := io.ReadFull(stream, kind); err != nil {
		log.Network.Debug().Err(err).Msg("failed to read stream kind")
		stream.CancelRead(codeUnknownKind)
		stream.CancelWrite(codeUnknownKind)
		return
	}
	_ = stream.SetReadDeadline(time.Time{})

	handler, err := t.config.Registry.GetHandler(kind[0])
	if err != nil {
		log.Network.Debug().Err(err).Uint8("kind", kind[0]).Msg("unknown stream kind")
		stream.CancelRead(codeUnknownKind)
		stream.CancelWrite(codeUnknownKind)
		return
	}
	if err := handler.HandleStream(conn.Context(), stream, conn.PeerKey()); err != nil {
		log.Network.Warn().Err(err).Stringer("kind", protocol.StreamKind(kind[0])).Msg("stream handler failed")
	}
}
