package proxy

import (
	"context"
	"math/big"
	"time"

	"github.com/eigerco/appealproxy/internal/crypto"
)

// Arbitrator is the external dispute resolution service. Calls are requests;
// rulings come back through Proxy.Rule.
type Arbitrator interface {
	Address() crypto.Address
	ArbitrationCost(ctx context.Context, extraData []byte) (*big.Int, error)
	AppealCost(ctx context.Context, disputeID uint64, extraData []byte) (*big.Int, error)
	// CreateDispute opens a dispute with the given number of ruling options,
	// paying fee.
	CreateDispute(ctx context.Context, choices *big.Int, extraData []byte, fee *big.Int) (uint64, error)
	Appeal(ctx context.Context, disputeID uint64, extraData []byte, fee *big.Int) error
	CurrentRuling(ctx context.Context, disputeID uint64) (*big.Int, error)
	// AppealPeriod returns zero times while the dispute is not appealable.
	AppealPeriod(ctx context.Context, disputeID uint64) (start, end time.Time, err error)
}

// Oracle is the question oracle holding the hash-chained answer history.
type Oracle interface {
	NotifyOfArbitrationRequest(ctx context.Context, questionID crypto.Hash, requester crypto.Address, maxPrevious *big.Int) error
	// CancelArbitration withdraws a notification whose dispute could not be
	// opened.
	CancelArbitration(ctx context.Context, questionID crypto.Hash) error
	Bond(ctx context.Context, questionID crypto.Hash) (*big.Int, error)
	HistoryHash(ctx context.Context, questionID crypto.Hash) (crypto.Hash, error)
	SubmitAnswerByArbitrator(ctx context.Context, questionID crypto.Hash, answer crypto.Hash, answerer crypto.Address) error
}

// Bank moves funds held by the proxy to an account.
type Bank interface {
	Transfer(ctx context.Context, to crypto.Address, amount *big.Int) error
}

// Emitter publishes notifications. Emit must not call back into the proxy.
type Emitter interface {
	Emit(Event)
}
