package handlers

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) {
	return 0, errors.New("mock size write error")
}

type slowReader struct {
	buffer *bytes.Buffer
	delay  time.Duration
}

func (r *slowReader) Read(p []byte) (int, error) {
	time.Sleep(r.delay)
	return r.buffer.Read(p)
}

func TestWriteMessageWithContext(t *testing.T) {
	t.Run("successful write", func(t *testing.T) {
		content := []byte("test message")
		buffer := &bytes.Buffer{}

		require.NoError(t, WriteMessageWithContext(context.Background(), buffer, content))
		assert.Equal(t, uint32(12), binary.LittleEndian.Uint32(buffer.Bytes()[:4]))
		assert.Equal(t, content, buffer.Bytes()[4:])
	})

	t.Run("write size error", func(t *testing.T) {
		err := WriteMessageWithContext(context.Background(), failingWriter{}, []byte("x"))
		assert.ErrorContains(t, err, "failed to write message size")
	})

	t.Run("too large", func(t *testing.T) {
		err := WriteMessageWithContext(context.Background(), &bytes.Buffer{}, make([]byte, MaxMessageSize+1))
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	})
}

func TestReadMessageWithContext(t *testing.T) {
	t.Run("partial read", func(t *testing.T) {
		buffer := &bytes.Buffer{}
		require.NoError(t, binary.Write(buffer, binary.LittleEndian, uint32(10)))
		buffer.Write([]byte("hello"))

		msg, err := ReadMessageWithContext(context.Background(), buffer)
		assert.Nil(t, msg)
		assert.ErrorContains(t, err, "failed to read message content")
	})

	t.Run("zero size message", func(t *testing.T) {
		buffer := &bytes.Buffer{}
		require.NoError(t, binary.Write(buffer, binary.LittleEndian, uint32(0)))

		msg, err := ReadMessageWithContext(context.Background(), buffer)
		require.NoError(t, err)
		assert.Equal(t, uint32(0), msg.Size)
		assert.Equal(t, []byte{}, msg.Content)
	})

	t.Run("size above limit", func(t *testing.T) {
		buffer := &bytes.Buffer{}
		require.NoError(t, binary.Write(buffer, binary.LittleEndian, uint32(MaxMessageSize+1)))

		_, err := ReadMessageWithContext(context.Background(), buffer)
		assert.ErrorIs(t, err, ErrMessageTooLarge)
	})

	t.Run("timeout context", func(t *testing.T) {
		buffer := &bytes.Buffer{}
		require.NoError(t, binary.Write(buffer, binary.LittleEndian, uint32(4)))
		buffer.Write([]byte("late"))

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		msg, err := ReadMessageWithContext(ctx, &slowReader{buffer: buffer, delay: 100 * time.Millisecond})
		assert.Nil(t, msg)
		assert.Equal(t, context.DeadlineExceeded, err)
	})
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}
	ctx := context.Background()
	buffer := &bytes.Buffer{}

	require.NoError(t, WriteJSON(ctx, buffer, payload{Name: "first", Count: 1}))
	require.NoError(t, WriteJSON(ctx, buffer, payload{Name: "second", Count: 2}))

	var got payload
	require.NoError(t, ReadJSON(ctx, buffer, &got))
	assert.Equal(t, payload{Name: "first", Count: 1}, got)
	require.NoError(t, ReadJSON(ctx, buffer, &got))
	assert.Equal(t, payload{Name: "second", Count: 2}, got)
	assert.Equal(t, 0, buffer.Len())

	require.NoError(t, WriteMessageWithContext(ctx, buffer, []byte("{")))
	assert.ErrorContains(t, ReadJSON(ctx, buffer, &got), "failed to decode message")
}
