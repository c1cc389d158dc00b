package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/internal/store"
)

// RoundInfo is a read-only view of a round.
type RoundInfo struct {
	PaidFees      map[string]*big.Int `json:"paid_fees"`
	FundedRulings []*big.Int          `json:"funded_rulings"`
	FeeRewards    *big.Int            `json:"fee_rewards"`
	AppealCost    *big.Int            `json:"appeal_cost"`
	Escalated     bool                `json:"escalated"`
}

// GetDisputeFee is the amount RequestArbitration requires. The question is
// not taken into account.
func (p *Proxy) GetDisputeFee(ctx context.Context, _ crypto.Hash) (*big.Int, error) {
	return p.arbitrator.ArbitrationCost(ctx, p.cfg.ExtraData)
}

func (p *Proxy) GetMultipliers() appeal.Multipliers {
	return p.cfg.Multipliers
}

// NumberOfRulingOptions is unbounded for every question type.
func (p *Proxy) NumberOfRulingOptions(_ uint64) *big.Int {
	return safemath.MaxUint256Copy()
}

func (p *Proxy) Metadata() string {
	return p.cfg.Metadata
}

func (p *Proxy) MetaEvidence() string {
	return p.cfg.MetaEvidence
}

// ArbitrationRequestState returns the request header. Unknown requests are
// reported with StatusNone.
func (p *Proxy) ArbitrationRequestState(requestID uint64) (appeal.Request, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ledger.GetRequest(requestID)
	if errors.Is(err, store.ErrRequestNotFound) {
		return appeal.Request{ID: requestID, Status: appeal.StatusNone, Ruling: new(big.Int)}, nil
	}
	return req, err
}

// RequestIDOf resolves the request opened for questionID.
func (p *Proxy) RequestIDOf(questionID crypto.Hash) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.RequestIDByQuestion(questionID)
}

// RequestIDOfDispute resolves the request an arbitrator dispute belongs to.
func (p *Proxy) RequestIDOfDispute(disputeID uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.RequestIDByDispute(disputeID)
}

func (p *Proxy) GetNumberOfRounds(requestID uint64) (uint64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ledger.GetRequest(requestID)
	if err != nil {
		return 0, err
	}
	return req.RoundCount, nil
}

func (p *Proxy) GetRoundInfo(requestID, round uint64) (RoundInfo, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.loadRound(requestID, round)
	if err != nil {
		return RoundInfo{}, err
	}
	info := RoundInfo{
		PaidFees:      make(map[string]*big.Int, len(r.PaidFees)),
		FeeRewards:    new(big.Int).Set(r.FeeRewards),
		AppealCost:    new(big.Int).Set(r.AppealCost),
		Escalated:     r.Escalated(),
		FundedRulings: make([]*big.Int, 0, len(r.FundedRulings)),
	}
	for k, v := range r.PaidFees {
		info.PaidFees[k] = new(big.Int).Set(v)
	}
	for _, f := range r.FundedRulings {
		info.FundedRulings = append(info.FundedRulings, new(big.Int).Set(f))
	}
	return info, nil
}

// GetContributions returns what contributor paid per ruling in a round,
// keyed by decimal ruling.
func (p *Proxy) GetContributions(requestID, round uint64, contributor crypto.Address) (map[string]*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	r, err := p.loadRound(requestID, round)
	if err != nil {
		return nil, err
	}
	return r.ContributionsOf(contributor), nil
}

// GetTotalWithdrawableAmount sums what WithdrawFeesAndRewardsForAllRounds
// would pay right now. It is zero until the request is ruled.
func (p *Proxy) GetTotalWithdrawableAmount(requestID uint64, contributor crypto.Address, ruling *big.Int) (*big.Int, error) {
	if err := checkRuling(ruling); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ledger.GetRequest(requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return new(big.Int), nil
		}
		return nil, err
	}
	total := new(big.Int)
	if !req.HasRuling() {
		return total, nil
	}

	rounds, err := p.ledger.Rounds(req.ID)
	if err != nil {
		return nil, err
	}
	for i, r := range rounds {
		if r.IsWithdrawn(contributor, ruling) {
			continue
		}
		reward, err := r.Reward(contributor, ruling, req.Ruling)
		if err != nil {
			return nil, fmt.Errorf("reward of round %d: %w", i, err)
		}
		total.Add(total, reward)
	}
	return total, nil
}

func (p *Proxy) loadRound(requestID, round uint64) (*appeal.Round, error) {
	req, err := p.ledger.GetRequest(requestID)
	if err != nil {
		return nil, err
	}
	if round >= req.RoundCount {
		return nil, appeal.ErrRoundNotFound
	}
	return p.ledger.GetRound(req.ID, round)
}
