package proxy

import (
	"context"
	"encoding/json"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/simulated"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/db/pebble"
)

const (
	appealTimeout = 180 * time.Second
	disputeID     = uint64(2)
	requestID     = uint64(0)
)

var (
	arbitratorAddress = crypto.Address{0xa0}
	requester         = crypto.Address{0x01}
	crowdfunder1      = crypto.Address{0x02}
	crowdfunder2      = crypto.Address{0x03}
	answerer          = crypto.Address{0x04}
	other             = crypto.Address{0x05}
	governor          = crypto.Address{0x06}

	questionID = crypto.Hash{}
	oneETH     = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)
)

func n(v int64) *big.Int { return big.NewInt(v) }

type env struct {
	t          *testing.T
	ctx        context.Context
	proxy      *Proxy
	arbitrator *simulated.Arbitrator
	oracle     *simulated.Oracle
	bank       *simulated.Bank
	clock      *simulated.Clock
	events     *EventLog
}

func newEnv(t *testing.T) *env {
	return newEnvWith(t, nil)
}

// newEnvWith builds a proxy over the simulated collaborators. wrap may
// replace the arbitrator the proxy talks to.
func newEnvWith(t *testing.T, wrap func(*simulated.Arbitrator) Arbitrator) *env {
	t.Helper()
	ctx := context.Background()

	kvStore, err := pebble.NewKVStore()
	require.NoError(t, err)
	t.Cleanup(func() { kvStore.Close() })
	ledger, err := store.NewLedger(kvStore, 0)
	require.NoError(t, err)

	clock := simulated.NewClock(time.Unix(1_700_000_000, 0))
	arb := simulated.NewArbitrator(arbitratorAddress, n(1000), clock.Now)
	var arbitrator Arbitrator = arb
	if wrap != nil {
		arbitrator = wrap(arb)
	}
	orc := simulated.NewOracle()
	bank := simulated.NewBank()
	events := NewEventLog()

	p, err := New(Config{
		ExtraData:    []byte{0x85},
		Metadata:     "ipfs/Y",
		MetaEvidence: "ipfs/X",
		Multipliers:  appeal.DefaultMultipliers(),
	}, ledger, arbitrator, orc, bank, WithClock(clock.Now), WithEmitter(events))
	require.NoError(t, err)
	arb.SetArbitrable(p)

	// Create disputes so the ids used in tests are not default values.
	_, err = arb.CreateDispute(ctx, n(42), nil, n(1000))
	require.NoError(t, err)
	_, err = arb.CreateDispute(ctx, n(4), nil, n(1000))
	require.NoError(t, err)

	return &env{
		t:          t,
		ctx:        ctx,
		proxy:      p,
		arbitrator: arb,
		oracle:     orc,
		bank:       bank,
		clock:      clock,
		events:     events,
	}
}

func (e *env) requestArbitration() {
	e.t.Helper()
	id, err := e.proxy.RequestArbitration(e.ctx, requester, questionID, n(2001), n(1000))
	require.NoError(e.t, err)
	require.Equal(e.t, requestID, id)
}

func (e *env) appealableRuling(ruling *big.Int) {
	e.t.Helper()
	require.NoError(e.t, e.arbitrator.GiveAppealableRuling(disputeID, ruling, n(5000), appealTimeout))
}

func (e *env) fund(who crypto.Address, ruling, value int64) FundingResult {
	e.t.Helper()
	return e.fundBig(who, n(ruling), n(value))
}

func (e *env) fundBig(who crypto.Address, ruling, value *big.Int) FundingResult {
	e.t.Helper()
	res, err := e.proxy.FundAppeal(e.ctx, requestID, who, ruling, value)
	require.NoError(e.t, err)
	return res
}

// finalize lets the appeal period run out and executes the ruling.
func (e *env) finalize() {
	e.t.Helper()
	e.clock.Advance(appealTimeout + time.Second)
	require.NoError(e.t, e.arbitrator.ExecuteRuling(e.ctx, disputeID))
}

func (e *env) withdraw(who crypto.Address, round uint64, ruling int64) int64 {
	e.t.Helper()
	before := e.bank.Paid(who)
	amount, err := e.proxy.WithdrawFeesAndRewards(e.ctx, requestID, who, round, n(ruling))
	require.NoError(e.t, err)
	delta := new(big.Int).Sub(e.bank.Paid(who), before)
	require.Equal(e.t, 0, delta.Cmp(amount), "paid amount must match the bank transfer")
	return amount.Int64()
}

func (e *env) state() appeal.Request {
	e.t.Helper()
	req, err := e.proxy.ArbitrationRequestState(requestID)
	require.NoError(e.t, err)
	return req
}

func (e *env) lastEvent(name string) Event {
	e.t.Helper()
	named := e.events.Named(name)
	require.NotEmpty(e.t, named, "no %s event", name)
	return named[len(named)-1]
}

// assertEvent compares events through their JSON form so big integers are
// compared by value.
func assertEvent(t *testing.T, want, got Event) {
	t.Helper()
	require.Equal(t, want.EventName(), got.EventName())
	wb, err := json.Marshal(want)
	require.NoError(t, err)
	gb, err := json.Marshal(got)
	require.NoError(t, err)
	assert.JSONEq(t, string(wb), string(gb))
}

func assertBig(t *testing.T, want int64, got *big.Int, msgAndArgs ...interface{}) {
	t.Helper()
	require.NotNil(t, got)
	assert.Equal(t, big.NewInt(want).String(), got.String(), msgAndArgs...)
}
