package appeal

import (
	"fmt"
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
)

// Round is one funding cycle. Once a later round exists, or the request is
// ruled, its paid fees and contributions are only read for payouts.
type Round struct {
	// PaidFees and the inner maps are keyed by the decimal ruling.
	PaidFees      map[string]*big.Int                    `json:"paid_fees"`
	Contributions map[crypto.Address]map[string]*big.Int `json:"contributions"`
	// FundedRulings holds at most two rulings; the second one escalates.
	FundedRulings []*big.Int `json:"funded_rulings"`
	// FeeRewards is the payout pool: fees of funded rulings minus AppealCost.
	FeeRewards *big.Int `json:"fee_rewards"`
	// AppealCost is what was forwarded to the arbitrator on escalation.
	AppealCost *big.Int                            `json:"appeal_cost"`
	Withdrawn  map[crypto.Address]map[string]bool `json:"withdrawn"`
}

func NewRound() *Round {
	return &Round{
		PaidFees:      make(map[string]*big.Int),
		Contributions: make(map[crypto.Address]map[string]*big.Int),
		FeeRewards:    new(big.Int),
		AppealCost:    new(big.Int),
		Withdrawn:     make(map[crypto.Address]map[string]bool),
	}
}

func rulingKey(ruling *big.Int) string {
	return ruling.String()
}

// Paid returns the amount collected for ruling in this round.
func (r *Round) Paid(ruling *big.Int) *big.Int {
	if v, ok := r.PaidFees[rulingKey(ruling)]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (r *Round) Contribution(contributor crypto.Address, ruling *big.Int) *big.Int {
	if v, ok := r.Contributions[contributor][rulingKey(ruling)]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

// ContributionsOf returns every ruling contributor paid for, keyed by decimal ruling.
func (r *Round) ContributionsOf(contributor crypto.Address) map[string]*big.Int {
	out := make(map[string]*big.Int, len(r.Contributions[contributor]))
	for k, v := range r.Contributions[contributor] {
		out[k] = new(big.Int).Set(v)
	}
	return out
}

func (r *Round) HasPaid(ruling *big.Int) bool {
	for _, f := range r.FundedRulings {
		if f.Cmp(ruling) == 0 {
			return true
		}
	}
	return false
}

// Escalated reports whether the round was closed by an appeal.
func (r *Round) Escalated() bool {
	return len(r.FundedRulings) > 1
}

// Contribute takes up to totalCost - paid from amount for ruling and returns
// the accepted part. funded is true when the ruling reached totalCost.
// The round is left untouched when an error is returned.
func (r *Round) Contribute(contributor crypto.Address, ruling, amount, totalCost *big.Int) (accepted *big.Int, funded bool, err error) {
	if r.HasPaid(ruling) {
		return nil, false, ErrRulingAlreadyFunded
	}
	if r.Escalated() {
		return nil, false, fmt.Errorf("%w: round is closed", ErrInvalidState)
	}

	paid := r.Paid(ruling)
	accepted = safemath.Min(amount, safemath.SubCap(totalCost, paid))

	newPaid, ok := safemath.Add256(paid, accepted)
	if !ok {
		return nil, false, safemath.ErrOverflow
	}
	newContribution, ok := safemath.Add256(r.Contribution(contributor, ruling), accepted)
	if !ok {
		return nil, false, safemath.ErrOverflow
	}
	var newRewards *big.Int
	if newPaid.Cmp(totalCost) >= 0 {
		newRewards, ok = safemath.Add256(r.FeeRewards, newPaid)
		if !ok {
			return nil, false, safemath.ErrOverflow
		}
		funded = true
	}

	key := rulingKey(ruling)
	r.PaidFees[key] = newPaid
	if r.Contributions[contributor] == nil {
		r.Contributions[contributor] = make(map[string]*big.Int)
	}
	r.Contributions[contributor][key] = newContribution
	if funded {
		r.FeeRewards = newRewards
		r.FundedRulings = append(r.FundedRulings, new(big.Int).Set(ruling))
	}
	return accepted, funded, nil
}

// Escalate records the appeal cost paid out of the pool when the round is
// closed by an appeal.
func (r *Round) Escalate(appealCost *big.Int) {
	r.FeeRewards = safemath.SubCap(r.FeeRewards, appealCost)
	r.AppealCost = new(big.Int).Set(appealCost)
}

// TotalFunded sums the fees of the funded rulings.
func (r *Round) TotalFunded() *big.Int {
	total := new(big.Int)
	for _, f := range r.FundedRulings {
		total.Add(total, r.Paid(f))
	}
	return total
}

// Reward is what contributor gets back from this round for ruling once
// finalRuling is known. It ignores the withdrawn flag.
//
//   - ruling not fully funded: the contribution is reimbursed;
//   - ruling funded and final: a share of FeeRewards proportional to the contribution;
//   - ruling funded, final ruling not funded in this round: funded sides share FeeRewards;
//   - otherwise nothing.
func (r *Round) Reward(contributor crypto.Address, ruling, finalRuling *big.Int) (*big.Int, error) {
	contribution := r.Contribution(contributor, ruling)
	if contribution.Sign() == 0 {
		return contribution, nil
	}

	if !r.HasPaid(ruling) {
		return contribution, nil
	}
	if ruling.Cmp(finalRuling) == 0 {
		return safemath.MulDiv(contribution, r.FeeRewards, r.Paid(ruling))
	}
	if !r.HasPaid(finalRuling) {
		return safemath.MulDiv(contribution, r.FeeRewards, r.TotalFunded())
	}
	return new(big.Int), nil
}

func (r *Round) IsWithdrawn(contributor crypto.Address, ruling *big.Int) bool {
	return r.Withdrawn[contributor][rulingKey(ruling)]
}

func (r *Round) SetWithdrawn(contributor crypto.Address, ruling *big.Int, withdrawn bool) {
	key := rulingKey(ruling)
	if !withdrawn {
		delete(r.Withdrawn[contributor], key)
		if len(r.Withdrawn[contributor]) == 0 {
			delete(r.Withdrawn, contributor)
		}
		return
	}
	if r.Withdrawn[contributor] == nil {
		r.Withdrawn[contributor] = make(map[string]bool)
	}
	r.Withdrawn[contributor][key] = true
}
