package proxy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/safemath"
)

func TestRule(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()

	err := e.proxy.Rule(e.ctx, requester, disputeID, n(15))
	require.ErrorIs(t, err, appeal.ErrUnauthorizedCaller)
	require.ErrorIs(t, err, appeal.ErrUnauthorized)

	require.NoError(t, e.arbitrator.GiveRuling(e.ctx, disputeID, n(15)))
	req := e.state()
	assert.Equal(t, appeal.StatusRuled, req.Status)
	assertBig(t, 15, req.Ruling)
	assertEvent(t, RulingEvent{Arbitrator: arbitratorAddress, DisputeID: disputeID, Ruling: n(15)}, e.lastEvent("Ruling"))

	err = e.proxy.Rule(e.ctx, arbitratorAddress, disputeID, n(3))
	require.ErrorIs(t, err, appeal.ErrAlreadyRuled)

	err = e.proxy.Rule(e.ctx, arbitratorAddress, 99, n(3))
	require.ErrorIs(t, err, appeal.ErrUnknownDispute)
	require.ErrorIs(t, err, appeal.ErrInvalidState)
}

func TestRuleStoresReservedRulings(t *testing.T) {
	t.Run("zero", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		require.NoError(t, e.arbitrator.GiveRuling(e.ctx, disputeID, n(0)))

		req := e.state()
		assert.Equal(t, appeal.StatusRuled, req.Status)
		assertBig(t, 0, req.Ruling)
	})

	t.Run("max", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		require.NoError(t, e.arbitrator.GiveRuling(e.ctx, disputeID, safemath.MaxUint256Copy()))

		req := e.state()
		assert.Equal(t, appeal.StatusRuled, req.Status)
		assert.Equal(t, "115792089237316195423570985008687907853269984665640564039457584007913129639935", req.Ruling.String())
	})
}

func TestRuleOverride(t *testing.T) {
	t.Run("loser paid while winner did not", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		e.appealableRuling(n(14))

		e.fundBig(crowdfunder1, n(50), oneETH)
		e.finalize()

		req := e.state()
		assert.Equal(t, appeal.StatusRuled, req.Status)
		assertBig(t, 50, req.Ruling)
		assertEvent(t, RulingEvent{Arbitrator: arbitratorAddress, DisputeID: disputeID, Ruling: n(50)}, e.lastEvent("Ruling"))
	})

	t.Run("no funded ruling keeps the arbitrator ruling", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		e.appealableRuling(n(14))

		e.fund(crowdfunder1, 50, 8499)
		e.finalize()
		assertBig(t, 14, e.state().Ruling)
	})

	t.Run("only the last round counts", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		e.appealableRuling(n(14))
		e.fund(crowdfunder1, 50, 8500)
		e.fund(crowdfunder2, 14, 6500)

		e.appealableRuling(n(50))
		e.finalize()
		assertBig(t, 50, e.state().Ruling)
	})
}

func TestExecuteRulingBeforePeriodEnds(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(14))

	require.Error(t, e.arbitrator.ExecuteRuling(e.ctx, disputeID))
	assert.Equal(t, appeal.StatusRequested, e.state().Status)
}
