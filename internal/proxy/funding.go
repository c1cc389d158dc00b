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

// FundingResult describes what a FundAppeal call did.
type FundingResult struct {
	Round     uint64   `json:"round"`
	Accepted  *big.Int `json:"accepted"`
	Refunded  *big.Int `json:"refunded"`
	Funded    bool     `json:"funded"`
	Escalated bool     `json:"escalated"`
}

// fundingTarget checks the funding window for ruling and returns the amount
// it has to collect along with the appeal cost it is derived from.
func (p *Proxy) fundingTarget(ctx context.Context, disputeID uint64, ruling *big.Int) (totalCost, appealCost *big.Int, winner bool, err error) {
	current, err := p.arbitrator.CurrentRuling(ctx, disputeID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("current ruling of dispute %d: %w", disputeID, err)
	}
	start, end, err := p.arbitrator.AppealPeriod(ctx, disputeID)
	if err != nil {
		return nil, nil, false, fmt.Errorf("appeal period of dispute %d: %w", disputeID, err)
	}

	now := p.now()
	winner = current.Cmp(ruling) == 0
	if winner {
		if now.Before(start) || !now.Before(end) {
			return nil, nil, false, appeal.ErrAppealPeriodOver
		}
	} else {
		if now.Before(start) || !now.Before(p.cfg.Multipliers.LoserDeadline(start, end)) {
			return nil, nil, false, appeal.ErrLoserPeriodOver
		}
	}

	appealCost, err = p.arbitrator.AppealCost(ctx, disputeID, p.cfg.ExtraData)
	if err != nil {
		return nil, nil, false, fmt.Errorf("appeal cost of dispute %d: %w", disputeID, err)
	}
	totalCost, err = p.cfg.Multipliers.RequiredFee(appealCost, winner)
	if err != nil {
		return nil, nil, false, err
	}
	return totalCost, appealCost, winner, nil
}

// FundAppeal contributes value from contributor to ruling in the current
// round of request requestID. Only what the ruling still misses is taken;
// the rest is sent back to the contributor once the ledger is updated.
// When a second ruling gets fully funded the dispute is appealed and a new
// round is opened.
func (p *Proxy) FundAppeal(ctx context.Context, requestID uint64, contributor crypto.Address, ruling, value *big.Int) (FundingResult, error) {
	defer p.observe("fund_appeal")()
	if err := checkRuling(ruling); err != nil {
		return FundingResult{}, err
	}
	if err := checkAmount(value); err != nil {
		return FundingResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ledger.GetRequest(requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return FundingResult{}, appeal.ErrNoActiveDispute
		}
		return FundingResult{}, fmt.Errorf("load request %d: %w", requestID, err)
	}
	if req.Status != appeal.StatusRequested {
		return FundingResult{}, appeal.ErrNoActiveDispute
	}

	totalCost, appealCost, winner, err := p.fundingTarget(ctx, req.DisputeID, ruling)
	if err != nil {
		return FundingResult{}, err
	}

	index := req.LastRoundIndex()
	round, err := p.ledger.GetRound(req.ID, index)
	if err != nil {
		return FundingResult{}, fmt.Errorf("load round %d of request %d: %w", index, req.ID, err)
	}

	accepted, funded, err := round.Contribute(contributor, ruling, value, totalCost)
	if err != nil {
		return FundingResult{}, err
	}

	refunded, _ := safemath.Sub256(value, accepted)
	result := FundingResult{
		Round:    index,
		Accepted: accepted,
		Refunded: refunded,
		Funded:   funded,
	}

	touched := map[uint64]*appeal.Round{index: round}
	if round.Escalated() {
		count, ok := safemath.Add64(req.RoundCount, 1)
		if !ok {
			return FundingResult{}, fmt.Errorf("round count of request %d: %w", req.ID, safemath.ErrOverflow)
		}
		if err := p.arbitrator.Appeal(ctx, req.DisputeID, p.cfg.ExtraData, appealCost); err != nil {
			return FundingResult{}, fmt.Errorf("appeal dispute %d: %w", req.DisputeID, err)
		}
		round.Escalate(appealCost)
		req.RoundCount = count
		touched[req.LastRoundIndex()] = appeal.NewRound()
		result.Escalated = true
	}

	if err := p.ledger.Commit(req, touched); err != nil {
		if result.Escalated {
			p.logger.Error().Err(err).Uint64("dispute", req.DisputeID).Msg("appeal paid but ledger commit failed")
		}
		return FundingResult{}, fmt.Errorf("commit request %d: %w", req.ID, err)
	}

	side := "loser"
	if winner {
		side = "winner"
	}
	contributionsAccepted.WithLabelValues(side).Inc()
	p.emitter.Emit(ContributionEvent{
		RequestID:   req.ID,
		Round:       index,
		Ruling:      new(big.Int).Set(ruling),
		Contributor: contributor,
		Amount:      new(big.Int).Set(accepted),
	})
	if funded {
		rulingsFunded.Inc()
		p.emitter.Emit(RulingFundedEvent{RequestID: req.ID, Round: index, Ruling: new(big.Int).Set(ruling)})
	}
	if result.Escalated {
		escalations.Inc()
		p.logger.Debug().
			Uint64("request", req.ID).
			Uint64("dispute", req.DisputeID).
			Uint64("round", req.LastRoundIndex()).
			Str("appeal_cost", appealCost.String()).
			Msg("round escalated")
	}

	if result.Refunded.Sign() > 0 {
		if err := p.refund(ctx, contributor, result.Refunded); err != nil {
			return result, err
		}
	}
	return result, nil
}
