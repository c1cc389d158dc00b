package appeal

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
)

func TestResolveRuling(t *testing.T) {
	t.Run("single funded ruling overrides the arbitrator", func(t *testing.T) {
		r := NewRound()
		contribute(t, r, alice, 50, 8500, 8500)
		assert.Equal(t, int64(50), ResolveRuling(r, n(14)).Int64())
	})

	t.Run("nothing funded keeps the raw ruling", func(t *testing.T) {
		r := NewRound()
		contribute(t, r, alice, 81, 500, 8500)
		assert.Equal(t, int64(23), ResolveRuling(r, n(23)).Int64())
	})

	t.Run("two funded rulings keep the raw ruling", func(t *testing.T) {
		r := NewRound()
		contribute(t, r, alice, 1, 8500, 8500)
		contribute(t, r, bob, 2, 6500, 6500)
		assert.Equal(t, int64(7), ResolveRuling(r, n(7)).Int64())
	})

	t.Run("max ruling is kept", func(t *testing.T) {
		got := ResolveRuling(NewRound(), safemath.MaxUint256)
		assert.Equal(t, 0, got.Cmp(safemath.MaxUint256))
		got.SetInt64(0)
		assert.Equal(t, 256, safemath.MaxUint256.BitLen(), "result must not alias the input")
	})
}

func TestRequest(t *testing.T) {
	q := crypto.Hash{9}
	req := NewRequest(4, q, alice, 2)
	assert.Equal(t, StatusRequested, req.Status)
	assert.Equal(t, uint64(0), req.LastRoundIndex())
	assert.False(t, req.HasRuling())

	c := req.Clone()
	c.Ruling.SetInt64(5)
	assert.Zero(t, req.Ruling.Sign())

	req.Status = StatusReported
	assert.True(t, req.HasRuling())
	assert.Equal(t, "reported", req.Status.String())

	b, err := json.Marshal(req)
	require.NoError(t, err)
	var decoded Request
	require.NoError(t, json.Unmarshal(b, &decoded))
	assert.Equal(t, req.ID, decoded.ID)
	assert.Equal(t, req.QuestionID, decoded.QuestionID)
	assert.Equal(t, req.Requester, decoded.Requester)
	assert.Equal(t, StatusReported, decoded.Status)
	assert.Zero(t, decoded.Ruling.Sign())
}
