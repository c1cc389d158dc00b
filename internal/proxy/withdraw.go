package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/store"
)

// WithdrawFeesAndRewards pays contributor what they are owed for ruling in
// one round. Anyone may trigger it; funds always go to contributor. A second
// call for the same round and ruling pays nothing.
func (p *Proxy) WithdrawFeesAndRewards(ctx context.Context, requestID uint64, contributor crypto.Address, round uint64, ruling *big.Int) (*big.Int, error) {
	defer p.observe("withdraw")()
	if err := checkRuling(ruling); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ruledRequest(requestID)
	if err != nil {
		return nil, err
	}
	return p.withdraw(ctx, req, contributor, round, ruling)
}

// WithdrawFeesAndRewardsForAllRounds withdraws for every round of the
// request. A failed round does not stop the others; the returned amount is
// what was actually paid and the error joins the per-round failures.
func (p *Proxy) WithdrawFeesAndRewardsForAllRounds(ctx context.Context, requestID uint64, contributor crypto.Address, ruling *big.Int) (*big.Int, error) {
	defer p.observe("withdraw_all")()
	if err := checkRuling(ruling); err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ruledRequest(requestID)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	var errs []error
	for i := uint64(0); i < req.RoundCount; i++ {
		amount, err := p.withdraw(ctx, req, contributor, i, ruling)
		if err != nil {
			errs = append(errs, fmt.Errorf("round %d: %w", i, err))
			continue
		}
		total.Add(total, amount)
	}
	return total, errors.Join(errs...)
}

func (p *Proxy) ruledRequest(requestID uint64) (appeal.Request, error) {
	req, err := p.ledger.GetRequest(requestID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return appeal.Request{}, appeal.ErrNotYetRuled
		}
		return appeal.Request{}, fmt.Errorf("load request %d: %w", requestID, err)
	}
	if !req.HasRuling() {
		return appeal.Request{}, appeal.ErrNotYetRuled
	}
	return req, nil
}

// withdraw marks the tuple withdrawn and commits before paying. When the
// transfer fails only this tuple is reopened.
func (p *Proxy) withdraw(ctx context.Context, req appeal.Request, contributor crypto.Address, index uint64, ruling *big.Int) (*big.Int, error) {
	if index >= req.RoundCount {
		return nil, appeal.ErrRoundNotFound
	}
	round, err := p.ledger.GetRound(req.ID, index)
	if err != nil {
		return nil, fmt.Errorf("load round %d of request %d: %w", index, req.ID, err)
	}
	if round.IsWithdrawn(contributor, ruling) {
		return new(big.Int), nil
	}

	reward, err := round.Reward(contributor, ruling, req.Ruling)
	if err != nil {
		return nil, fmt.Errorf("reward of round %d: %w", index, err)
	}
	if reward.Sign() == 0 {
		return reward, nil
	}

	round.SetWithdrawn(contributor, ruling, true)
	if err := p.ledger.Commit(req, map[uint64]*appeal.Round{index: round}); err != nil {
		return nil, fmt.Errorf("commit request %d: %w", req.ID, err)
	}

	if err := p.bank.Transfer(ctx, contributor, reward); err != nil {
		transferFailures.WithLabelValues("withdrawal").Inc()
		p.logger.Warn().Err(err).
			Uint64("request", req.ID).
			Uint64("round", index).
			Str("contributor", contributor.String()).
			Str("amount", reward.String()).
			Msg("withdrawal transfer failed")

		round.SetWithdrawn(contributor, ruling, false)
		if cerr := p.ledger.Commit(req, map[uint64]*appeal.Round{index: round}); cerr != nil {
			p.logger.Error().Err(cerr).Uint64("request", req.ID).Uint64("round", index).Msg("reopen withdrawal failed")
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, errors.Join(err, cerr))
		}
		return nil, fmt.Errorf("%w: pay %s to %s: %w", ErrTransferFailed, reward, contributor, err)
	}

	withdrawals.Inc()
	p.emitter.Emit(WithdrawalEvent{
		RequestID:   req.ID,
		Round:       index,
		Ruling:      new(big.Int).Set(ruling),
		Contributor: contributor,
		Amount:      new(big.Int).Set(reward),
	})
	return reward, nil
}
