package simulated

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/oracle"
)

var (
	ErrNotArbitrator    = errors.New("caller is not the arbitrator of the question")
	ErrBondTooHigh      = errors.New("bond has changed")
	ErrAlreadyPending   = errors.New("question is already pending arbitration")
	ErrNotPending       = errors.New("question is not pending arbitration")
	ErrQuestionFinished = errors.New("question is finalized")
)

type question struct {
	history   []oracle.HistoryEntry
	head      crypto.Hash
	bond      *big.Int
	answer    crypto.Hash
	pending   bool
	finalized bool
}

// Submission records an answer given by the arbitrator.
type Submission struct {
	QuestionID crypto.Hash
	Answer     crypto.Hash
	Answerer   crypto.Address
}

// Oracle is an in-process question oracle keeping a hash-chained answer
// history per question.
type Oracle struct {
	mu          sync.Mutex
	questions   map[crypto.Hash]*question
	submissions []Submission
}

func NewOracle() *Oracle {
	return &Oracle{questions: make(map[crypto.Hash]*question)}
}

func (o *Oracle) question(id crypto.Hash) *question {
	q, ok := o.questions[id]
	if !ok {
		q = &question{bond: new(big.Int)}
		o.questions[id] = q
	}
	return q
}

// AddAnswerToHistory appends an answer and makes its bond the current one.
func (o *Oracle) AddAnswerToHistory(questionID, answer crypto.Hash, answerer crypto.Address, bond *big.Int, isCommitment bool) crypto.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.question(questionID)
	entry := oracle.HistoryEntry{
		PreviousHash: q.head,
		Answer:       answer,
		Bond:         new(big.Int).Set(bond),
		Answerer:     answerer,
		IsCommitment: isCommitment,
	}
	q.history = append(q.history, entry)
	q.head = entry.Hash()
	q.bond = new(big.Int).Set(bond)
	q.answer = answer
	return q.head
}

func (o *Oracle) NotifyOfArbitrationRequest(_ context.Context, questionID crypto.Hash, _ crypto.Address, maxPrevious *big.Int) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.question(questionID)
	if q.finalized {
		return ErrQuestionFinished
	}
	if q.pending {
		return ErrAlreadyPending
	}
	if maxPrevious.Sign() > 0 && q.bond.Cmp(maxPrevious) > 0 {
		return fmt.Errorf("%w: %s > %s", ErrBondTooHigh, q.bond, maxPrevious)
	}
	q.pending = true
	return nil
}

// CancelArbitration clears the pending flag set by NotifyOfArbitrationRequest
// so the question accepts answers again.
func (o *Oracle) CancelArbitration(_ context.Context, questionID crypto.Hash) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.question(questionID)
	if !q.pending {
		return ErrNotPending
	}
	q.pending = false
	return nil
}

func (o *Oracle) Bond(_ context.Context, questionID crypto.Hash) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return new(big.Int).Set(o.question(questionID).bond), nil
}

func (o *Oracle) HistoryHash(_ context.Context, questionID crypto.Hash) (crypto.Hash, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.question(questionID).head, nil
}

// SubmitAnswerByArbitrator appends the arbitrator's answer with a zero bond
// and finalizes the question.
func (o *Oracle) SubmitAnswerByArbitrator(_ context.Context, questionID, answer crypto.Hash, answerer crypto.Address) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	q := o.question(questionID)
	if !q.pending {
		return ErrNotPending
	}
	entry := oracle.HistoryEntry{
		PreviousHash: q.head,
		Answer:       answer,
		Bond:         new(big.Int),
		Answerer:     answerer,
	}
	q.history = append(q.history, entry)
	q.head = entry.Hash()
	q.answer = answer
	q.pending = false
	q.finalized = true
	o.submissions = append(o.submissions, Submission{QuestionID: questionID, Answer: answer, Answerer: answerer})
	return nil
}

func (o *Oracle) IsPendingArbitration(questionID crypto.Hash) bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.question(questionID).pending
}

func (o *Oracle) Answer(questionID crypto.Hash) crypto.Hash {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.question(questionID).answer
}

func (o *Oracle) Submissions() []Submission {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]Submission, len(o.submissions))
	copy(out, o.submissions)
	return out
}
