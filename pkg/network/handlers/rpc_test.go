package handlers

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/proxy"
)

func TestNewRemoteError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		code string
		is   []error
	}{
		{
			name: "specific error keeps its kind",
			err:  fmt.Errorf("fund appeal: %w", appeal.ErrNoActiveDispute),
			code: "no_active_dispute",
			is:   []error{appeal.ErrNoActiveDispute, appeal.ErrInvalidState},
		},
		{
			name: "joined transfer failures",
			err:  errors.Join(fmt.Errorf("round 0: %w", proxy.ErrTransferFailed), errors.New("other")),
			code: "transfer_failed",
			is:   []error{proxy.ErrTransferFailed},
		},
		{
			name: "bare kind",
			err:  appeal.ErrHashMismatch,
			code: "hash_mismatch",
			is:   []error{appeal.ErrHashMismatch},
		},
		{
			name: "unknown error",
			err:  errors.New("disk on fire"),
			code: "internal",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			remote := NewRemoteError(tc.err)
			require.NotNil(t, remote)
			assert.Equal(t, tc.code, remote.Code)
			assert.Equal(t, tc.err.Error(), remote.Error())
			for _, target := range tc.is {
				assert.ErrorIs(t, remote, target)
			}
		})
	}

	assert.Nil(t, NewRemoteError(nil))
	assert.Nil(t, (&RemoteError{Code: "internal"}).Unwrap())
}
