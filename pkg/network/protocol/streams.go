package protocol

import (
	"context"
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/quic-go/quic-go"
)

// Each request opens its own stream. The first byte written on it is the
// StreamKind. Kinds below 64 change state, 64 to 127 are read only and 128
// onwards drive the simulated collaborators of a devnet.
const (
	StreamKindRequestArbitration StreamKind = 0
	StreamKindFundAppeal         StreamKind = 1
	StreamKindWithdraw           StreamKind = 2
	StreamKindWithdrawAllRounds  StreamKind = 3
	StreamKindReportAnswer       StreamKind = 4
	StreamKindSubmitEvidence     StreamKind = 5
	StreamKindWithdrawRefund     StreamKind = 6

	StreamKindRequestState       StreamKind = 64
	StreamKindRoundInfo          StreamKind = 65
	StreamKindMultipliers        StreamKind = 66
	StreamKindDisputeFee         StreamKind = 67
	StreamKindWithdrawableAmount StreamKind = 68
	StreamKindContributions      StreamKind = 69
	StreamKindRequestByQuestion  StreamKind = 70
	StreamKindPendingRefund      StreamKind = 71

	StreamKindGiveAppealableRuling StreamKind = 128
	StreamKindGiveRuling           StreamKind = 129
	StreamKindExecuteRuling        StreamKind = 130
	StreamKindAddAnswer            StreamKind = 131
)

var kindNames = map[StreamKind]string{
	StreamKindRequestArbitration:   "request_arbitration",
	StreamKindFundAppeal:           "fund_appeal",
	StreamKindWithdraw:             "withdraw",
	StreamKindWithdrawAllRounds:    "withdraw_all_rounds",
	StreamKindReportAnswer:         "report_answer",
	StreamKindSubmitEvidence:       "submit_evidence",
	StreamKindWithdrawRefund:       "withdraw_refund",
	StreamKindRequestState:         "request_state",
	StreamKindRoundInfo:            "round_info",
	StreamKindMultipliers:          "multipliers",
	StreamKindDisputeFee:           "dispute_fee",
	StreamKindWithdrawableAmount:   "withdrawable_amount",
	StreamKindContributions:        "contributions",
	StreamKindRequestByQuestion:    "request_by_question",
	StreamKindPendingRefund:        "pending_refund",
	StreamKindGiveAppealableRuling: "give_appealable_ruling",
	StreamKindGiveRuling:           "give_ruling",
	StreamKindExecuteRuling:        "execute_ruling",
	StreamKindAddAnswer:            "add_answer",
}

// StreamHandler processes one stream. peerKey identifies the remote end.
type StreamHandler interface {
	HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error
}

type StreamHandlerFunc func(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error

func (f StreamHandlerFunc) HandleStream(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
	return f(ctx, stream, peerKey)
}

type StreamKind byte

func (k StreamKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind_%d", byte(k))
}

// IsDevnet reports whether k drives a simulated collaborator.
func (k StreamKind) IsDevnet() bool {
	return k >= 128
}

// Registry manages stream handlers by kind.
type Registry struct {
	mu       sync.RWMutex
	handlers map[StreamKind]StreamHandler
}

func NewRegistry() *Registry {
	return &Registry{
		handlers: make(map[StreamKind]StreamHandler),
	}
}

// ValidateKind checks that kindByte is a known stream kind.
func (r *Registry) ValidateKind(kindByte byte) error {
	if _, ok := kindNames[StreamKind(kindByte)]; !ok {
		return fmt.Errorf("invalid stream kind: %d", kindByte)
	}
	return nil
}

func (r *Registry) RegisterHandler(kind StreamKind, handler StreamHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[kind] = handler
}

func (r *Registry) GetHandler(kindByte byte) (StreamHandler, error) {
	if err := r.ValidateKind(kindByte); err != nil {
		return nil, err
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	handler, ok := r.handlers[StreamKind(kindByte)]
	if !ok {
		return nil, fmt.Errorf("no handler for kind %s", StreamKind(kindByte))
	}
	return handler, nil
}
