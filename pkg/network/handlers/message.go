package handlers

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// MaxMessageSize bounds a single framed message.
const MaxMessageSize = 1 << 20

var ErrMessageTooLarge = errors.New("message too large")

// Message is a framed payload: a little-endian uint32 size followed by the content.
type Message struct {
	Size    uint32
	Content []byte
}

type readResult struct {
	msg *Message
	err error
}

// WriteMessageWithContext writes content as a framed message. The write is
// abandoned when ctx is done.
func WriteMessageWithContext(ctx context.Context, w io.Writer, content []byte) error {
	if len(content) > MaxMessageSize {
		return fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, len(content))
	}

	done := make(chan error, 1)
	go func() {
		if err := binary.Write(w, binary.LittleEndian, uint32(len(content))); err != nil {
			done <- fmt.Errorf("failed to write message size: %w", err)
			return
		}
		if _, err := w.Write(content); err != nil {
			done <- fmt.Errorf("failed to write message content: %w", err)
			return
		}
		done <- nil
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ReadMessageWithContext reads one framed message. Sizes above
// MaxMessageSize are rejected before any content is read.
func ReadMessageWithContext(ctx context.Context, r io.Reader) (*Message, error) {
	done := make(chan readResult, 1)

	go func() {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read message size: %w", err)}
			return
		}
		if size > MaxMessageSize {
			done <- readResult{err: fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, size)}
			return
		}

		content := make([]byte, size)
		if _, err := io.ReadFull(r, content); err != nil {
			done <- readResult{err: fmt.Errorf("failed to read message content: %w", err)}
			return
		}
		done <- readResult{msg: &Message{Size: size, Content: content}}
	}()

	select {
	case result := <-done:
		return result.msg, result.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// WriteJSON frames the JSON encoding of v.
func WriteJSON(ctx context.Context, w io.Writer, v any) error {
	content, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}
	return WriteMessageWithContext(ctx, w, content)
}

// ReadJSON reads one framed message and decodes it into v.
func ReadJSON(ctx context.Context, r io.Reader, v any) error {
	msg, err := ReadMessageWithContext(ctx, r)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(msg.Content, v); err != nil {
		return fmt.Errorf("failed to decode message: %w", err)
	}
	return nil
}
