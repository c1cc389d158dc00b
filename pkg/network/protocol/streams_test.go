package protocol

import (
	"context"
	"crypto/ed25519"
	"testing"

	"github.com/quic-go/quic-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	registry := NewRegistry()
	assert.Empty(t, registry.handlers)

	called := false
	handler := StreamHandlerFunc(func(context.Context, quic.Stream, ed25519.PublicKey) error {
		called = true
		return nil
	})
	registry.RegisterHandler(StreamKindFundAppeal, handler)

	got, err := registry.GetHandler(byte(StreamKindFundAppeal))
	require.NoError(t, err)
	require.NoError(t, got.HandleStream(context.Background(), nil, nil))
	assert.True(t, called)

	_, err = registry.GetHandler(byte(StreamKindWithdraw))
	assert.ErrorContains(t, err, "no handler for kind withdraw")

	_, err = registry.GetHandler(200)
	assert.ErrorContains(t, err, "invalid stream kind: 200")
}

func TestStreamKind(t *testing.T) {
	tests := []struct {
		kind   StreamKind
		name   string
		devnet bool
	}{
		{StreamKindRequestArbitration, "request_arbitration", false},
		{StreamKindRoundInfo, "round_info", false},
		{StreamKindWithdrawRefund, "withdraw_refund", false},
		{StreamKindPendingRefund, "pending_refund", false},
		{StreamKindExecuteRuling, "execute_ruling", true},
		{StreamKind(99), "kind_99", false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.name, tc.kind.String())
			assert.Equal(t, tc.devnet, tc.kind.IsDevnet())
		})
	}
}
