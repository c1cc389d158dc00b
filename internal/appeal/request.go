package appeal

import (
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// Status of an arbitration request.
type Status uint8

const (
	StatusNone Status = iota
	StatusRequested
	StatusRuled
	StatusReported
)

func (s Status) String() string {
	switch s {
	case StatusNone:
		return "none"
	case StatusRequested:
		return "requested"
	case StatusRuled:
		return "ruled"
	case StatusReported:
		return "reported"
	default:
		return "unknown"
	}
}

// Request is one attempt to have a question arbitrated. Its rounds are kept
// in their own table, keyed by (ID, index); RoundCount is the table length.
type Request struct {
	ID         uint64         `json:"id"`
	QuestionID crypto.Hash    `json:"question_id"`
	Status     Status         `json:"status"`
	Requester  crypto.Address `json:"requester"`
	DisputeID  uint64         `json:"dispute_id"`
	Ruling     *big.Int       `json:"ruling"`
	RoundCount uint64         `json:"round_count"`
}

func NewRequest(id uint64, questionID crypto.Hash, requester crypto.Address, disputeID uint64) Request {
	return Request{
		ID:         id,
		QuestionID: questionID,
		Status:     StatusRequested,
		Requester:  requester,
		DisputeID:  disputeID,
		Ruling:     new(big.Int),
		RoundCount: 1,
	}
}

func (r Request) LastRoundIndex() uint64 {
	return r.RoundCount - 1
}

// HasRuling reports whether the final ruling is fixed.
func (r Request) HasRuling() bool {
	return r.Status == StatusRuled || r.Status == StatusReported
}

// Clone returns a copy that shares no memory with r.
func (r Request) Clone() Request {
	c := r
	if r.Ruling != nil {
		c.Ruling = new(big.Int).Set(r.Ruling)
	}
	return c
}

// ResolveRuling decides the final ruling once the arbitrator's decision is
// final. When exactly one ruling got fully funded in the last round, the
// losing side failed to answer the appeal and that ruling wins regardless of
// what the arbitrator decided.
func ResolveRuling(last *Round, raw *big.Int) *big.Int {
	if last != nil && len(last.FundedRulings) == 1 {
		return new(big.Int).Set(last.FundedRulings[0])
	}
	return new(big.Int).Set(raw)
}
