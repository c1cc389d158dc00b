package proxy

import (
	"context"
	"errors"
	"fmt"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/oracle"
	"github.com/eigerco/appealproxy/internal/store"
)

// ReportAnswer relays the final ruling of questionID to the oracle. The
// caller supplies the last entry of the oracle's answer history, which must
// chain to the oracle's current head. The last answerer is credited when the
// final answer matches theirs, the requester otherwise.
func (p *Proxy) ReportAnswer(ctx context.Context, questionID, lastHistoryHash, lastAnswer crypto.Hash, lastAnswerer crypto.Address) error {
	defer p.observe("report_answer")()

	p.mu.Lock()
	defer p.mu.Unlock()

	req, err := p.ledger.RequestByQuestion(questionID)
	if err != nil {
		if errors.Is(err, store.ErrRequestNotFound) {
			return appeal.ErrNotRuled
		}
		return fmt.Errorf("load request of question %s: %w", questionID, err)
	}
	switch req.Status {
	case appeal.StatusRuled:
	case appeal.StatusReported:
		return appeal.ErrAlreadyReported
	default:
		return appeal.ErrNotRuled
	}

	head, err := p.oracle.HistoryHash(ctx, questionID)
	if err != nil {
		return fmt.Errorf("history hash of question %s: %w", questionID, err)
	}
	hasHistory := !head.IsZero()
	if hasHistory {
		bond, err := p.oracle.Bond(ctx, questionID)
		if err != nil {
			return fmt.Errorf("bond of question %s: %w", questionID, err)
		}
		if oracle.HistoryHash(lastHistoryHash, lastAnswer, bond, lastAnswerer, false) != head {
			return appeal.ErrHistoryMismatch
		}
	} else if !lastHistoryHash.IsZero() {
		return appeal.ErrHistoryMismatch
	}

	answer, tooSoon := oracle.RulingToAnswer(req.Ruling)
	answerer := req.Requester
	switch {
	case tooSoon:
		answerer = crypto.Address{}
	case hasHistory && answer == lastAnswer:
		answerer = lastAnswerer
	}

	req.Status = appeal.StatusReported
	if err := p.ledger.Commit(req, nil); err != nil {
		return fmt.Errorf("commit request %d: %w", req.ID, err)
	}

	if err := p.oracle.SubmitAnswerByArbitrator(ctx, questionID, answer, answerer); err != nil {
		req.Status = appeal.StatusRuled
		if cerr := p.ledger.Commit(req, nil); cerr != nil {
			p.logger.Error().Err(cerr).Uint64("request", req.ID).Msg("restore ruled status failed")
			return fmt.Errorf("submit answer: %w", errors.Join(err, cerr))
		}
		return fmt.Errorf("submit answer: %w", err)
	}

	p.logger.Debug().
		Uint64("request", req.ID).
		Str("question", questionID.String()).
		Str("answer", answer.String()).
		Str("answerer", answerer.String()).
		Msg("answer reported")
	return nil
}

// SubmitEvidence publishes an evidence document for the evidence group of
// request requestID.
func (p *Proxy) SubmitEvidence(ctx context.Context, requestID uint64, party crypto.Address, evidenceURI string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.emitter.Emit(EvidenceEvent{
		Arbitrator:      p.arbitrator.Address(),
		EvidenceGroupID: requestID,
		Party:           party,
		URI:             evidenceURI,
	})
	return nil
}
