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

// RequestArbitration opens a dispute for questionID on behalf of requester,
// who pays value. The arbitration cost is forwarded to the arbitrator and any
// surplus is sent back to the requester. maxPrevious is the highest oracle
// bond the requester is willing to challenge; zero accepts any bond.
func (p *Proxy) RequestArbitration(ctx context.Context, requester crypto.Address, questionID crypto.Hash, maxPrevious, value *big.Int) (uint64, error) {
	defer p.observe("request_arbitration")()
	if err := checkAmount(value); err != nil {
		return 0, err
	}
	if err := checkAmount(maxPrevious); err != nil {
		return 0, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_, err := p.ledger.RequestIDByQuestion(questionID)
	if err == nil {
		return 0, appeal.ErrAlreadyRequested
	}
	if !errors.Is(err, store.ErrRequestNotFound) {
		return 0, fmt.Errorf("lookup question %s: %w", questionID, err)
	}

	cost, err := p.arbitrator.ArbitrationCost(ctx, p.cfg.ExtraData)
	if err != nil {
		return 0, fmt.Errorf("arbitration cost: %w", err)
	}
	if value.Cmp(cost) < 0 {
		return 0, fmt.Errorf("%w: paid %s, cost %s", appeal.ErrInsufficientFee, value, cost)
	}

	bond, err := p.oracle.Bond(ctx, questionID)
	if err != nil {
		return 0, fmt.Errorf("bond of question %s: %w", questionID, err)
	}
	if maxPrevious.Sign() > 0 && bond.Cmp(maxPrevious) > 0 {
		return 0, fmt.Errorf("%w: bond %s, max previous %s", appeal.ErrStaleAnswerBond, bond, maxPrevious)
	}

	id, err := p.ledger.NextRequestID()
	if err != nil {
		return 0, err
	}

	if err := p.oracle.NotifyOfArbitrationRequest(ctx, questionID, requester, maxPrevious); err != nil {
		return 0, fmt.Errorf("notify oracle: %w", err)
	}
	disputeID, err := p.arbitrator.CreateDispute(ctx, safemath.MaxUint256Copy(), p.cfg.ExtraData, cost)
	if err != nil {
		return 0, p.cancelArbitration(ctx, questionID, fmt.Errorf("create dispute: %w", err))
	}
	if _, err := p.ledger.RequestIDByDispute(disputeID); err == nil {
		p.logger.Error().Uint64("dispute", disputeID).Str("question", questionID.String()).Msg("arbitrator reused a mapped dispute id")
		return 0, p.cancelArbitration(ctx, questionID, fmt.Errorf("%w: dispute %d is already mapped", appeal.ErrInvalidState, disputeID))
	} else if !errors.Is(err, store.ErrDisputeNotFound) {
		return 0, p.cancelArbitration(ctx, questionID, fmt.Errorf("lookup dispute %d: %w", disputeID, err))
	}

	req := appeal.NewRequest(id, questionID, requester, disputeID)
	if err := p.ledger.CreateRequest(req, appeal.NewRound()); err != nil {
		p.logger.Error().Err(err).Uint64("dispute", disputeID).Msg("dispute opened but request not stored")
		return 0, p.cancelArbitration(ctx, questionID, fmt.Errorf("create request: %w", err))
	}

	arbitrationRequests.Inc()
	p.emitter.Emit(DisputeEvent{
		Arbitrator:      p.arbitrator.Address(),
		DisputeID:       disputeID,
		MetaEvidenceID:  MetaEvidenceID,
		EvidenceGroupID: id,
	})
	p.emitter.Emit(DisputeIDToQuestionIDEvent{DisputeID: disputeID, QuestionID: questionID})
	p.logger.Debug().
		Uint64("request", id).
		Uint64("dispute", disputeID).
		Str("question", questionID.String()).
		Msg("arbitration requested")

	surplus, _ := safemath.Sub256(value, cost)
	if surplus.Sign() > 0 {
		if err := p.refund(ctx, requester, surplus); err != nil {
			return id, err
		}
	}
	return id, nil
}

// cancelArbitration takes back the oracle notification of a request that
// could not be opened, so the question can be submitted again.
func (p *Proxy) cancelArbitration(ctx context.Context, questionID crypto.Hash, cause error) error {
	if err := p.oracle.CancelArbitration(ctx, questionID); err != nil {
		p.logger.Error().Err(err).Str("question", questionID.String()).Msg("cancel arbitration failed")
		return errors.Join(cause, fmt.Errorf("cancel arbitration: %w", err))
	}
	return cause
}

// Rule is called by the arbitrator once its ruling on disputeID is final.
// When exactly one ruling was fully funded in the last round, the other side
// did not answer the appeal and that ruling becomes final instead.
func (p *Proxy) Rule(ctx context.Context, caller crypto.Address, disputeID uint64, ruling *big.Int) error {
	defer p.observe("rule")()
	if caller != p.arbitrator.Address() {
		return appeal.ErrUnauthorizedCaller
	}
	if err := checkRuling(ruling); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	id, err := p.ledger.RequestIDByDispute(disputeID)
	if err != nil {
		if errors.Is(err, store.ErrDisputeNotFound) {
			return appeal.ErrUnknownDispute
		}
		return fmt.Errorf("lookup dispute %d: %w", disputeID, err)
	}
	req, err := p.ledger.GetRequest(id)
	if err != nil {
		return fmt.Errorf("load request %d: %w", id, err)
	}
	if req.Status != appeal.StatusRequested {
		return appeal.ErrAlreadyRuled
	}

	last, err := p.ledger.GetRound(req.ID, req.LastRoundIndex())
	if err != nil {
		return fmt.Errorf("load round %d of request %d: %w", req.LastRoundIndex(), req.ID, err)
	}
	final := appeal.ResolveRuling(last, ruling)

	req.Status = appeal.StatusRuled
	req.Ruling = final
	if err := p.ledger.Commit(req, nil); err != nil {
		return fmt.Errorf("commit request %d: %w", req.ID, err)
	}

	resolution := "arbitrator"
	if final.Cmp(ruling) != 0 {
		resolution = "override"
	}
	rulings.WithLabelValues(resolution).Inc()
	p.emitter.Emit(RulingEvent{Arbitrator: caller, DisputeID: disputeID, Ruling: new(big.Int).Set(final)})
	p.logger.Debug().
		Uint64("request", req.ID).
		Uint64("dispute", disputeID).
		Str("raw", ruling.String()).
		Str("final", final.String()).
		Str("resolution", resolution).
		Msg("dispute ruled")
	return nil
}
