package proxy

import (
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/log"
)

var (
	ErrTransferFailed = errors.New("transfer failed")
	ErrInvalidRuling  = errors.New("ruling out of range")
	ErrInvalidAmount  = errors.New("amount out of range")
)

// Config holds the process-wide settings of a proxy. It is not changed after
// New returns.
type Config struct {
	ExtraData    []byte
	Metadata     string
	MetaEvidence string
	Multipliers  appeal.Multipliers
}

// Proxy escalates oracle questions to an arbitrator and crowdfunds appeals.
//
// Every entry point holds mu for its whole duration, so operations are
// observed one at a time. Collaborators are called while mu is held and must
// not call back into the proxy synchronously.
type Proxy struct {
	mu sync.Mutex

	cfg        Config
	ledger     *store.Ledger
	arbitrator Arbitrator
	oracle     Oracle
	bank       Bank
	emitter    Emitter
	now        func() time.Time
	logger     zerolog.Logger
}

type Option func(*Proxy)

// WithClock sets the time source used for appeal windows.
func WithClock(now func() time.Time) Option {
	return func(p *Proxy) {
		p.now = now
	}
}

func WithEmitter(e Emitter) Option {
	return func(p *Proxy) {
		p.emitter = e
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(p *Proxy) {
		p.logger = l
	}
}

// New creates a proxy and publishes its meta-evidence.
func New(cfg Config, ledger *store.Ledger, arbitrator Arbitrator, oracle Oracle, bank Bank, opts ...Option) (*Proxy, error) {
	if err := cfg.Multipliers.Validate(); err != nil {
		return nil, err
	}
	if ledger == nil || arbitrator == nil || oracle == nil || bank == nil {
		return nil, errors.New("proxy: missing collaborator")
	}

	p := &Proxy{
		cfg:        cfg,
		ledger:     ledger,
		arbitrator: arbitrator,
		oracle:     oracle,
		bank:       bank,
		now:        time.Now,
		logger:     log.Arbitration,
	}
	p.emitter = LogEmitter{Logger: p.logger}
	for _, opt := range opts {
		opt(p)
	}

	p.emitter.Emit(MetaEvidenceEvent{MetaEvidenceID: MetaEvidenceID, URI: cfg.MetaEvidence})
	return p, nil
}

func (p *Proxy) observe(operation string) func() {
	start := time.Now()
	return func() {
		operationDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func checkRuling(ruling *big.Int) error {
	if ruling == nil || !safemath.InRange(ruling) {
		return fmt.Errorf("%w: %v", ErrInvalidRuling, ruling)
	}
	return nil
}

func checkAmount(amount *big.Int) error {
	if amount == nil || !safemath.InRange(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}
