package proxy

import (
	"math/big"
	"sync"

	"github.com/rs/zerolog"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// MetaEvidenceID is the only meta-evidence document the proxy publishes.
const MetaEvidenceID = 0

type Event interface {
	EventName() string
}

type MetaEvidenceEvent struct {
	MetaEvidenceID uint64 `json:"meta_evidence_id"`
	URI            string `json:"uri"`
}

type DisputeEvent struct {
	Arbitrator      crypto.Address `json:"arbitrator"`
	DisputeID       uint64         `json:"dispute_id"`
	MetaEvidenceID  uint64         `json:"meta_evidence_id"`
	EvidenceGroupID uint64         `json:"evidence_group_id"`
}

type DisputeIDToQuestionIDEvent struct {
	DisputeID  uint64      `json:"dispute_id"`
	QuestionID crypto.Hash `json:"question_id"`
}

type ContributionEvent struct {
	RequestID   uint64         `json:"request_id"`
	Round       uint64         `json:"round"`
	Ruling      *big.Int       `json:"ruling"`
	Contributor crypto.Address `json:"contributor"`
	Amount      *big.Int       `json:"amount"`
}

type RulingFundedEvent struct {
	RequestID uint64   `json:"request_id"`
	Round     uint64   `json:"round"`
	Ruling    *big.Int `json:"ruling"`
}

type WithdrawalEvent struct {
	RequestID   uint64         `json:"request_id"`
	Round       uint64         `json:"round"`
	Ruling      *big.Int       `json:"ruling"`
	Contributor crypto.Address `json:"contributor"`
	Amount      *big.Int       `json:"amount"`
}

type EvidenceEvent struct {
	Arbitrator      crypto.Address `json:"arbitrator"`
	EvidenceGroupID uint64         `json:"evidence_group_id"`
	Party           crypto.Address `json:"party"`
	URI             string         `json:"uri"`
}

type RulingEvent struct {
	Arbitrator crypto.Address `json:"arbitrator"`
	DisputeID  uint64         `json:"dispute_id"`
	Ruling     *big.Int       `json:"ruling"`
}

func (MetaEvidenceEvent) EventName() string          { return "MetaEvidence" }
func (DisputeEvent) EventName() string               { return "Dispute" }
func (DisputeIDToQuestionIDEvent) EventName() string { return "DisputeIDToQuestionID" }
func (ContributionEvent) EventName() string          { return "Contribution" }
func (RulingFundedEvent) EventName() string          { return "RulingFunded" }
func (WithdrawalEvent) EventName() string            { return "Withdrawal" }
func (EvidenceEvent) EventName() string              { return "Evidence" }
func (RulingEvent) EventName() string                { return "Ruling" }

// EventLog keeps every emitted event in memory.
type EventLog struct {
	mu     sync.Mutex
	events []Event
}

func NewEventLog() *EventLog {
	return &EventLog{}
}

func (l *EventLog) Emit(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

// Events returns a snapshot of the log.
func (l *EventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}

// Named returns the events called name, in emission order.
func (l *EventLog) Named(name string) []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []Event
	for _, e := range l.events {
		if e.EventName() == name {
			out = append(out, e)
		}
	}
	return out
}

// LogEmitter writes events to a zerolog logger.
type LogEmitter struct {
	Logger zerolog.Logger
}

func (e LogEmitter) Emit(ev Event) {
	e.Logger.Info().Str("event", ev.EventName()).Interface("data", ev).Msg("event")
}

// Emitters fans an event out to every emitter in order.
type Emitters []Emitter

func (es Emitters) Emit(ev Event) {
	for _, e := range es {
		e.Emit(ev)
	}
}
