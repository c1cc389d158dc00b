package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/pkg/log"
)

var (
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrNotWaiting      = errors.New("the dispute must not already be appealable or solved")
	ErrNotAppealable   = errors.New("the dispute must be appealable")
	ErrInvalidRuling   = errors.New("invalid ruling")
	ErrFeeTooLow       = errors.New("fee does not cover the cost")
	ErrPeriodNotOver   = errors.New("the appeal period must be over")
)

// NotPayable is the appeal cost reported while a dispute cannot be appealed.
var NotPayable = new(big.Int).Rsh(new(big.Int).Sub(safemath.MaxUint256, big.NewInt(1)), 1)

type DisputeStatus uint8

const (
	DisputeWaiting DisputeStatus = iota
	DisputeAppealable
	DisputeSolved
)

// Arbitrable receives final rulings.
type Arbitrable interface {
	Rule(ctx context.Context, caller crypto.Address, disputeID uint64, ruling *big.Int) error
}

type Dispute struct {
	Arbitrable  Arbitrable
	Choices     *big.Int
	Fee         *big.Int
	Ruling      *big.Int
	Status      DisputeStatus
	AppealCost  *big.Int
	PeriodStart time.Time
	Period      time.Duration
	Appeals     int
}

// Arbitrator is an in-process arbitrator whose rulings are given by hand.
// Appealable rulings become final with ExecuteRuling once their appeal
// period is over; an appeal puts the dispute back to waiting.
type Arbitrator struct {
	mu              sync.Mutex
	address         crypto.Address
	arbitrationCost *big.Int
	arbitrable      Arbitrable
	disputes        []*Dispute
	received        *big.Int
	now             func() time.Time
}

func NewArbitrator(address crypto.Address, arbitrationCost *big.Int, now func() time.Time) *Arbitrator {
	if now == nil {
		now = time.Now
	}
	return &Arbitrator{
		address:         address,
		arbitrationCost: new(big.Int).Set(arbitrationCost),
		received:        new(big.Int),
		now:             now,
	}
}

// SetArbitrable registers the receiver of rulings for disputes created from
// now on.
func (a *Arbitrator) SetArbitrable(arbitrable Arbitrable) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.arbitrable = arbitrable
}

func (a *Arbitrator) Address() crypto.Address {
	return a.address
}

func (a *Arbitrator) ArbitrationCost(_ context.Context, _ []byte) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.arbitrationCost), nil
}

func (a *Arbitrator) CreateDispute(_ context.Context, choices *big.Int, _ []byte, fee *big.Int) (uint64, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if fee.Cmp(a.arbitrationCost) < 0 {
		return 0, fmt.Errorf("%w: %s < %s", ErrFeeTooLow, fee, a.arbitrationCost)
	}
	a.received.Add(a.received, fee)
	a.disputes = append(a.disputes, &Dispute{
		Arbitrable: a.arbitrable,
		Choices:    new(big.Int).Set(choices),
		Fee:        new(big.Int).Set(fee),
		Ruling:     new(big.Int),
		AppealCost: new(big.Int),
	})
	id := uint64(len(a.disputes) - 1)
	log.Root.Debug().Uint64("dispute", id).Msg("simulated dispute created")
	return id, nil
}

func (a *Arbitrator) dispute(id uint64) (*Dispute, error) {
	if id >= uint64(len(a.disputes)) {
		return nil, fmt.Errorf("%w: %d", ErrDisputeNotFound, id)
	}
	return a.disputes[id], nil
}

func (a *Arbitrator) AppealCost(_ context.Context, disputeID uint64, _ []byte) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(disputeID)
	if err != nil {
		return nil, err
	}
	if d.Status != DisputeAppealable {
		return new(big.Int).Set(NotPayable), nil
	}
	return new(big.Int).Set(d.AppealCost), nil
}

func (a *Arbitrator) Appeal(_ context.Context, disputeID uint64, _ []byte, fee *big.Int) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != DisputeAppealable {
		return ErrNotAppealable
	}
	if fee.Cmp(d.AppealCost) < 0 {
		return fmt.Errorf("%w: %s < %s", ErrFeeTooLow, fee, d.AppealCost)
	}
	a.received.Add(a.received, fee)
	d.Status = DisputeWaiting
	d.Appeals++
	return nil
}

func (a *Arbitrator) CurrentRuling(_ context.Context, disputeID uint64) (*big.Int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(disputeID)
	if err != nil {
		return nil, err
	}
	return new(big.Int).Set(d.Ruling), nil
}

func (a *Arbitrator) AppealPeriod(_ context.Context, disputeID uint64) (start, end time.Time, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(disputeID)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if d.Status != DisputeAppealable {
		return time.Time{}, time.Time{}, nil
	}
	return d.PeriodStart, d.PeriodStart.Add(d.Period), nil
}

// Dispute returns a copy of dispute id.
func (a *Arbitrator) Dispute(id uint64) (Dispute, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(id)
	if err != nil {
		return Dispute{}, err
	}
	return *d, nil
}

// Received is the total of fees paid to the arbitrator.
func (a *Arbitrator) Received() *big.Int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return new(big.Int).Set(a.received)
}

// GiveAppealableRuling sets a provisional ruling that can be appealed for
// period at appealCost.
func (a *Arbitrator) GiveAppealableRuling(disputeID uint64, ruling, appealCost *big.Int, period time.Duration) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	d, err := a.dispute(disputeID)
	if err != nil {
		return err
	}
	if d.Status != DisputeWaiting {
		return ErrNotWaiting
	}
	if ruling.Sign() < 0 || ruling.Cmp(d.Choices) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidRuling, ruling)
	}
	d.Ruling = new(big.Int).Set(ruling)
	d.Status = DisputeAppealable
	d.AppealCost = new(big.Int).Set(appealCost)
	d.PeriodStart = a.now()
	d.Period = period
	return nil
}

// GiveRuling rules a waiting dispute without an appeal period.
func (a *Arbitrator) GiveRuling(ctx context.Context, disputeID uint64, ruling *big.Int) error {
	a.mu.Lock()
	d, err := a.dispute(disputeID)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if d.Status != DisputeWaiting {
		a.mu.Unlock()
		return ErrNotWaiting
	}
	if ruling.Sign() < 0 || ruling.Cmp(d.Choices) > 0 {
		a.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrInvalidRuling, ruling)
	}
	d.Ruling = new(big.Int).Set(ruling)
	d.Status = DisputeSolved
	arbitrable := d.Arbitrable
	a.mu.Unlock()

	return a.notify(ctx, arbitrable, disputeID, ruling)
}

// ExecuteRuling makes an appealable ruling final once its period is over.
func (a *Arbitrator) ExecuteRuling(ctx context.Context, disputeID uint64) error {
	a.mu.Lock()
	d, err := a.dispute(disputeID)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	if d.Status != DisputeAppealable {
		a.mu.Unlock()
		return ErrNotAppealable
	}
	if a.now().Before(d.PeriodStart.Add(d.Period)) {
		a.mu.Unlock()
		return ErrPeriodNotOver
	}
	d.Status = DisputeSolved
	ruling := new(big.Int).Set(d.Ruling)
	arbitrable := d.Arbitrable
	a.mu.Unlock()

	return a.notify(ctx, arbitrable, disputeID, ruling)
}

func (a *Arbitrator) notify(ctx context.Context, arbitrable Arbitrable, disputeID uint64, ruling *big.Int) error {
	if arbitrable == nil {
		return nil
	}
	return arbitrable.Rule(ctx, a.address, disputeID, ruling)
}
