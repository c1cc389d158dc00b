package proxy

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/internal/simulated"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/db/pebble"
)

func TestInitialValues(t *testing.T) {
	e := newEnv(t)

	assert.Equal(t, appeal.Multipliers{Winner: 3000, Loser: 7000, LoserAppealPeriod: 5000, Denominator: 10000}, e.proxy.GetMultipliers())
	assert.Equal(t, 0, e.proxy.NumberOfRulingOptions(0).Cmp(safemath.MaxUint256))
	fee, err := e.proxy.GetDisputeFee(e.ctx, questionID)
	require.NoError(t, err)
	assertBig(t, 1000, fee)
	assert.Equal(t, "ipfs/Y", e.proxy.Metadata())
	assert.Equal(t, "ipfs/X", e.proxy.MetaEvidence())
	assertEvent(t, MetaEvidenceEvent{MetaEvidenceID: 0, URI: "ipfs/X"}, e.lastEvent("MetaEvidence"))

	req := e.state()
	assert.Equal(t, appeal.StatusNone, req.Status)
}

func TestNewRejectsInvalidMultipliers(t *testing.T) {
	_, err := New(Config{Multipliers: appeal.Multipliers{Winner: 1, Loser: 1}}, nil, nil, nil, nil)
	require.ErrorIs(t, err, appeal.ErrInvalidMultipliers)
}

func TestRequestArbitration(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()

	assertEvent(t, DisputeEvent{Arbitrator: arbitratorAddress, DisputeID: 2, MetaEvidenceID: 0, EvidenceGroupID: 0}, e.lastEvent("Dispute"))
	assertEvent(t, DisputeIDToQuestionIDEvent{DisputeID: 2, QuestionID: questionID}, e.lastEvent("DisputeIDToQuestionID"))

	req := e.state()
	assert.Equal(t, appeal.StatusRequested, req.Status)
	assert.Equal(t, requester, req.Requester)
	assert.Equal(t, disputeID, req.DisputeID)
	assertBig(t, 0, req.Ruling)

	dispute, err := e.arbitrator.Dispute(disputeID)
	require.NoError(t, err)
	assert.Equal(t, 0, dispute.Choices.Cmp(safemath.MaxUint256), "incorrect number of choices")
	assertBig(t, 1000, dispute.Fee)

	id, err := e.proxy.RequestIDOfDispute(disputeID)
	require.NoError(t, err)
	assert.Equal(t, requestID, id)
	id, err = e.proxy.RequestIDOf(questionID)
	require.NoError(t, err)
	assert.Equal(t, requestID, id)
	assert.True(t, e.oracle.IsPendingArbitration(questionID))

	_, err = e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1000))
	require.ErrorIs(t, err, appeal.ErrAlreadyRequested)
}

func TestRequestArbitrationPayment(t *testing.T) {
	t.Run("insufficient fee", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(999))
		require.ErrorIs(t, err, appeal.ErrInsufficientFee)
		require.ErrorIs(t, err, appeal.ErrInsufficientPayment)
		assert.False(t, e.oracle.IsPendingArbitration(questionID))
	})

	t.Run("surplus is refunded", func(t *testing.T) {
		e := newEnv(t)
		_, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1500))
		require.NoError(t, err)
		assertBig(t, 500, e.bank.Paid(requester))
		assertBig(t, 3000, e.arbitrator.Received())
	})

	t.Run("failed surplus refund is kept pending", func(t *testing.T) {
		e := newEnv(t)
		e.bank.SetUnreachable(requester, true)

		id, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1500))
		require.ErrorIs(t, err, ErrTransferFailed)
		assert.Equal(t, requestID, id)
		assert.Equal(t, appeal.StatusRequested, e.state().Status)

		pending, err := e.proxy.GetPendingRefund(requester)
		require.NoError(t, err)
		assertBig(t, 500, pending)

		e.bank.SetUnreachable(requester, false)
		amount, err := e.proxy.WithdrawPendingRefund(e.ctx, requester)
		require.NoError(t, err)
		assertBig(t, 500, amount)
		assertBig(t, 500, e.bank.Paid(requester))
	})

	t.Run("stale answer bond", func(t *testing.T) {
		e := newEnv(t)
		e.oracle.AddAnswerToHistory(questionID, crypto.HashFromBig(n(22)), answerer, n(3000), false)
		_, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1000))
		require.ErrorIs(t, err, appeal.ErrStaleAnswerBond)
		assert.Equal(t, appeal.StatusNone, e.state().Status)
	})
}

func TestFundAppeal(t *testing.T) {
	e := newEnv(t)

	_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(75), n(1000))
	require.ErrorIs(t, err, appeal.ErrNoActiveDispute)

	e.requestArbitration()

	// The dispute is not appealable yet.
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(75), n(1000))
	require.ErrorIs(t, err, appeal.ErrLoserPeriodOver)
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(0), n(1000))
	require.ErrorIs(t, err, appeal.ErrAppealPeriodOver)

	e.appealableRuling(n(51231))

	// loser fee = 5000 + 5000 * 7000 / 10000 = 8500
	res := e.fund(crowdfunder1, 533, 5000)
	assertBig(t, 5000, res.Accepted)
	assertBig(t, 0, res.Refunded)
	assert.False(t, res.Funded)
	assertBig(t, 0, e.bank.Paid(crowdfunder1))
	assertEvent(t, ContributionEvent{RequestID: 0, Round: 0, Ruling: n(533), Contributor: crowdfunder1, Amount: n(5000)}, e.lastEvent("Contribution"))

	// Overpay to check it is handled correctly.
	res = e.fundBig(crowdfunder1, n(533), oneETH)
	assertBig(t, 3500, res.Accepted)
	assert.True(t, res.Funded)
	assert.False(t, res.Escalated)
	assert.Equal(t, new(big.Int).Sub(oneETH, n(3500)).String(), e.bank.Paid(crowdfunder1).String())
	assertEvent(t, ContributionEvent{RequestID: 0, Round: 0, Ruling: n(533), Contributor: crowdfunder1, Amount: n(3500)}, e.lastEvent("Contribution"))
	assertEvent(t, RulingFundedEvent{RequestID: 0, Round: 0, Ruling: n(533)}, e.lastEvent("RulingFunded"))

	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(533), n(5000))
	require.ErrorIs(t, err, appeal.ErrRulingAlreadyFunded)
	require.ErrorIs(t, err, appeal.ErrAlreadyFunded)

	contributions, err := e.proxy.GetContributions(requestID, 0, crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 8500, contributions["533"])
}

func TestFundAppealWinnerAlreadyFunded(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(5))

	e.fund(crowdfunder1, 5, 6000)
	res := e.fund(crowdfunder2, 5, 500)
	assert.True(t, res.Funded)

	before := e.bank.Paid(other)
	_, err := e.proxy.FundAppeal(e.ctx, requestID, other, n(5), oneETH)
	require.ErrorIs(t, err, appeal.ErrAlreadyFunded)
	assert.Equal(t, before.String(), e.bank.Paid(other).String(), "a rejected contribution moves no funds")

	info, err := e.proxy.GetRoundInfo(requestID, 0)
	require.NoError(t, err)
	assertBig(t, 6500, info.PaidFees["5"])
}

func TestSubsequentRounds(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(21))

	e.fund(crowdfunder1, 14, 8500)
	res := e.fund(crowdfunder2, 21, 6500)
	assert.True(t, res.Funded)
	assert.True(t, res.Escalated)

	rounds, err := e.proxy.GetNumberOfRounds(requestID)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), rounds)

	info, err := e.proxy.GetRoundInfo(requestID, 0)
	require.NoError(t, err)
	assert.True(t, info.Escalated)
	assert.Len(t, info.FundedRulings, 2)
	assertBig(t, 10000, info.FeeRewards)
	assertBig(t, 5000, info.AppealCost)

	dispute, err := e.arbitrator.Dispute(disputeID)
	require.NoError(t, err)
	assert.Equal(t, simulated.DisputeWaiting, dispute.Status)
	assert.Equal(t, 1, dispute.Appeals)

	// Nothing can be funded until the next appealable ruling.
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(21), n(1))
	require.ErrorIs(t, err, appeal.ErrWindowClosed)

	e.appealableRuling(n(0))
	res = e.fundBig(crowdfunder1, n(0), oneETH)
	assert.Equal(t, uint64(1), res.Round)
	assertEvent(t, ContributionEvent{RequestID: 0, Round: 1, Ruling: n(0), Contributor: crowdfunder1, Amount: n(6500)}, e.lastEvent("Contribution"))

	_, err = e.proxy.GetRoundInfo(requestID, 2)
	require.ErrorIs(t, err, appeal.ErrRoundNotFound)
}

func TestFundAppealAfterTimeout(t *testing.T) {
	t.Run("loser half and winner full period", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		e.appealableRuling(n(21))

		e.clock.Advance(appealTimeout/2 + time.Second)
		_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(533), n(5000))
		require.ErrorIs(t, err, appeal.ErrLoserPeriodOver)

		// The winner can still fund.
		res := e.fund(crowdfunder1, 21, 100)
		assertBig(t, 100, res.Accepted)

		e.clock.Advance(appealTimeout/2 + time.Second)
		_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(21), n(5000))
		require.ErrorIs(t, err, appeal.ErrAppealPeriodOver)
	})

	t.Run("boundaries", func(t *testing.T) {
		e := newEnv(t)
		e.requestArbitration()
		e.appealableRuling(n(21))

		e.clock.Advance(appealTimeout/2 - time.Second)
		e.fund(crowdfunder1, 533, 100)

		e.clock.Advance(time.Second)
		_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(533), n(100))
		require.ErrorIs(t, err, appeal.ErrLoserPeriodOver)

		e.clock.Advance(appealTimeout/2 - time.Second)
		e.fund(crowdfunder1, 21, 100)

		e.clock.Advance(time.Second)
		_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(21), n(100))
		require.ErrorIs(t, err, appeal.ErrAppealPeriodOver)
	})
}

func TestFundAppealRejectsBadInput(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(1))

	_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(-1), n(1))
	require.ErrorIs(t, err, ErrInvalidRuling)
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(1), n(-1))
	require.ErrorIs(t, err, ErrInvalidAmount)
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, new(big.Int).Lsh(n(1), 256), n(1))
	require.ErrorIs(t, err, ErrInvalidRuling)
}

type offlineAppeals struct {
	*simulated.Arbitrator
}

func (offlineAppeals) Appeal(context.Context, uint64, []byte, *big.Int) error {
	return errors.New("arbitrator offline")
}

func TestFundAppealFailedAppealLeavesNoState(t *testing.T) {
	e := newEnvWith(t, func(a *simulated.Arbitrator) Arbitrator { return offlineAppeals{a} })
	e.requestArbitration()
	e.appealableRuling(n(21))

	e.fund(crowdfunder1, 14, 8500)
	_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder2, n(21), n(6500))
	require.Error(t, err)

	rounds, err := e.proxy.GetNumberOfRounds(requestID)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rounds)

	info, err := e.proxy.GetRoundInfo(requestID, 0)
	require.NoError(t, err)
	assert.Len(t, info.FundedRulings, 1)
	assert.Nil(t, info.PaidFees["21"])
	assertBig(t, 0, e.bank.Paid(crowdfunder2))
	assert.Len(t, e.events.Named("Contribution"), 1)
}

func TestFundAppealRefundFailure(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(21))
	e.bank.SetUnreachable(crowdfunder1, true)

	res, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(14), n(9000))
	require.ErrorIs(t, err, ErrTransferFailed)
	assertBig(t, 8500, res.Accepted)
	assertBig(t, 500, res.Refunded)

	// The contribution itself is recorded.
	info, err := e.proxy.GetRoundInfo(requestID, 0)
	require.NoError(t, err)
	assertBig(t, 8500, info.PaidFees["14"])

	// The overpayment is owed until it can be paid.
	pending, err := e.proxy.GetPendingRefund(crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 500, pending)

	_, err = e.proxy.WithdrawPendingRefund(e.ctx, crowdfunder1)
	require.ErrorIs(t, err, ErrTransferFailed)
	pending, err = e.proxy.GetPendingRefund(crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 500, pending, "a failed payout keeps the balance")

	e.bank.SetUnreachable(crowdfunder1, false)
	amount, err := e.proxy.WithdrawPendingRefund(e.ctx, crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 500, amount)
	assertBig(t, 500, e.bank.Paid(crowdfunder1))

	amount, err = e.proxy.WithdrawPendingRefund(e.ctx, crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 0, amount)
	assertBig(t, 500, e.bank.Paid(crowdfunder1))
}

func TestPendingRefundsAccumulate(t *testing.T) {
	e := newEnv(t)
	e.requestArbitration()
	e.appealableRuling(n(21))
	e.bank.SetUnreachable(crowdfunder1, true)

	// Winner fee 6500, loser fee 8500.
	_, err := e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(21), n(7000))
	require.ErrorIs(t, err, ErrTransferFailed)
	_, err = e.proxy.FundAppeal(e.ctx, requestID, crowdfunder1, n(14), n(8800))
	require.ErrorIs(t, err, ErrTransferFailed)

	pending, err := e.proxy.GetPendingRefund(crowdfunder1)
	require.NoError(t, err)
	assertBig(t, 800, pending)
}

// failingDisputes fails CreateDispute while fail is set.
type failingDisputes struct {
	*simulated.Arbitrator
	fail *bool
}

func (a failingDisputes) CreateDispute(ctx context.Context, choices *big.Int, extraData []byte, fee *big.Int) (uint64, error) {
	if *a.fail {
		return 0, errors.New("arbitrator offline")
	}
	return a.Arbitrator.CreateDispute(ctx, choices, extraData, fee)
}

// reusedDisputes always reports the id of the first test dispute.
type reusedDisputes struct {
	*simulated.Arbitrator
}

func (a reusedDisputes) CreateDispute(ctx context.Context, choices *big.Int, extraData []byte, fee *big.Int) (uint64, error) {
	if _, err := a.Arbitrator.CreateDispute(ctx, choices, extraData, fee); err != nil {
		return 0, err
	}
	return disputeID, nil
}

func TestRequestArbitrationDisputeFailureCancelsNotification(t *testing.T) {
	fail := true
	e := newEnvWith(t, func(a *simulated.Arbitrator) Arbitrator { return failingDisputes{a, &fail} })

	_, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1000))
	require.ErrorContains(t, err, "arbitrator offline")
	assert.False(t, e.oracle.IsPendingArbitration(questionID))
	assert.Equal(t, appeal.StatusNone, e.state().Status)
	assert.Empty(t, e.events.Named("Dispute"))

	fail = false
	e.requestArbitration()
	assert.True(t, e.oracle.IsPendingArbitration(questionID))
	assert.Equal(t, appeal.StatusRequested, e.state().Status)
	assert.Equal(t, disputeID, e.state().DisputeID)
}

func TestRequestArbitrationMappedDisputeCancelsNotification(t *testing.T) {
	e := newEnvWith(t, func(a *simulated.Arbitrator) Arbitrator { return reusedDisputes{a} })
	e.requestArbitration()

	second := crypto.Hash{0x02}
	_, err := e.proxy.RequestArbitration(e.ctx, requester, second, n(0), n(1000))
	require.ErrorIs(t, err, appeal.ErrInvalidState)
	assert.False(t, e.oracle.IsPendingArbitration(second))
	assert.True(t, e.oracle.IsPendingArbitration(questionID))

	_, err = e.proxy.RequestIDOf(second)
	require.ErrorIs(t, err, store.ErrRequestNotFound)
}

func TestRequestArbitrationCancelFailure(t *testing.T) {
	ctx := context.Background()
	kvStore, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })
	ledger, err := store.NewLedger(kvStore, 0)
	require.NoError(t, err)

	fail := true
	arb := simulated.NewArbitrator(arbitratorAddress, n(1000), nil)
	orc := new(mockOracle)
	orc.On("Bond", mock.Anything, questionID).Return(new(big.Int), nil)
	orc.On("NotifyOfArbitrationRequest", mock.Anything, questionID, requester, mock.Anything).Return(nil).Once()
	orc.On("CancelArbitration", mock.Anything, questionID).Return(errors.New("oracle unavailable")).Once()

	p, err := New(Config{Multipliers: appeal.DefaultMultipliers()}, ledger, failingDisputes{arb, &fail}, orc, simulated.NewBank(), WithEmitter(NewEventLog()))
	require.NoError(t, err)

	_, err = p.RequestArbitration(ctx, requester, questionID, n(0), n(1000))
	require.ErrorContains(t, err, "arbitrator offline")
	require.ErrorContains(t, err, "oracle unavailable")
	orc.AssertExpectations(t)
}
