package handlers

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/pkg/network/protocol"
)

// Requests carry no funds. Value is the amount the caller declares to pay;
// the node settling the payment is outside this protocol.

type RequestArbitrationRequest struct {
	QuestionID  crypto.Hash `json:"question_id"`
	MaxPrevious *big.Int    `json:"max_previous"`
	Value       *big.Int    `json:"value"`
}

type RequestArbitrationResponse struct {
	RequestID uint64 `json:"request_id"`
}

type FundAppealRequest struct {
	RequestID uint64   `json:"request_id"`
	Ruling    *big.Int `json:"ruling"`
	Value     *big.Int `json:"value"`
}

// WithdrawRequest pays contributor, who need not be the caller.
type WithdrawRequest struct {
	RequestID   uint64         `json:"request_id"`
	Contributor crypto.Address `json:"contributor"`
	Round       uint64         `json:"round"`
	Ruling      *big.Int       `json:"ruling"`
}

type WithdrawAllRoundsRequest struct {
	RequestID   uint64         `json:"request_id"`
	Contributor crypto.Address `json:"contributor"`
	Ruling      *big.Int       `json:"ruling"`
}

type AmountResponse struct {
	Amount *big.Int `json:"amount"`
}

type ReportAnswerRequest struct {
	QuestionID      crypto.Hash    `json:"question_id"`
	LastHistoryHash crypto.Hash    `json:"last_history_hash"`
	LastAnswer      crypto.Hash    `json:"last_answer"`
	LastAnswerer    crypto.Address `json:"last_answerer"`
}

type SubmitEvidenceRequest struct {
	RequestID   uint64 `json:"request_id"`
	EvidenceURI string `json:"evidence_uri"`
}

type Empty struct{}

// RefundRequest names the address whose pending refund is paid or read.
type RefundRequest struct {
	Address crypto.Address `json:"address"`
}

type RequestStateRequest struct {
	RequestID uint64 `json:"request_id"`
}

type RequestByQuestionRequest struct {
	QuestionID crypto.Hash `json:"question_id"`
}

type RoundInfoRequest struct {
	RequestID uint64 `json:"request_id"`
	Round     uint64 `json:"round"`
}

type DisputeFeeRequest struct {
	QuestionID crypto.Hash `json:"question_id"`
}

type WithdrawableAmountRequest struct {
	RequestID   uint64         `json:"request_id"`
	Contributor crypto.Address `json:"contributor"`
	Ruling      *big.Int       `json:"ruling"`
}

type ContributionsRequest struct {
	RequestID   uint64         `json:"request_id"`
	Round       uint64         `json:"round"`
	Contributor crypto.Address `json:"contributor"`
}

type ContributionsResponse struct {
	Contributions map[string]*big.Int `json:"contributions"`
}

// RegisterProxyHandlers serves the proxy operations. Callers act as the
// address derived from their certificate key.
func RegisterProxyHandlers(registry *protocol.Registry, p *proxy.Proxy) {
	registry.RegisterHandler(protocol.StreamKindRequestArbitration, jsonHandler(protocol.StreamKindRequestArbitration,
		func(ctx context.Context, caller crypto.Address, req RequestArbitrationRequest) (RequestArbitrationResponse, error) {
			maxPrevious := req.MaxPrevious
			if maxPrevious == nil {
				maxPrevious = new(big.Int)
			}
			id, err := p.RequestArbitration(ctx, caller, req.QuestionID, maxPrevious, req.Value)
			return RequestArbitrationResponse{RequestID: id}, err
		}))

	registry.RegisterHandler(protocol.StreamKindFundAppeal, jsonHandler(protocol.StreamKindFundAppeal,
		func(ctx context.Context, caller crypto.Address, req FundAppealRequest) (proxy.FundingResult, error) {
			return p.FundAppeal(ctx, req.RequestID, caller, req.Ruling, req.Value)
		}))

	registry.RegisterHandler(protocol.StreamKindWithdraw, jsonHandler(protocol.StreamKindWithdraw,
		func(ctx context.Context, _ crypto.Address, req WithdrawRequest) (AmountResponse, error) {
			amount, err := p.WithdrawFeesAndRewards(ctx, req.RequestID, req.Contributor, req.Round, req.Ruling)
			return AmountResponse{Amount: amount}, err
		}))

	registry.RegisterHandler(protocol.StreamKindWithdrawAllRounds, jsonHandler(protocol.StreamKindWithdrawAllRounds,
		func(ctx context.Context, _ crypto.Address, req WithdrawAllRoundsRequest) (AmountResponse, error) {
			amount, err := p.WithdrawFeesAndRewardsForAllRounds(ctx, req.RequestID, req.Contributor, req.Ruling)
			return AmountResponse{Amount: amount}, err
		}))

	registry.RegisterHandler(protocol.StreamKindReportAnswer, jsonHandler(protocol.StreamKindReportAnswer,
		func(ctx context.Context, _ crypto.Address, req ReportAnswerRequest) (Empty, error) {
			return Empty{}, p.ReportAnswer(ctx, req.QuestionID, req.LastHistoryHash, req.LastAnswer, req.LastAnswerer)
		}))

	registry.RegisterHandler(protocol.StreamKindSubmitEvidence, jsonHandler(protocol.StreamKindSubmitEvidence,
		func(ctx context.Context, caller crypto.Address, req SubmitEvidenceRequest) (Empty, error) {
			return Empty{}, p.SubmitEvidence(ctx, req.RequestID, caller, req.EvidenceURI)
		}))

	registry.RegisterHandler(protocol.StreamKindWithdrawRefund, jsonHandler(protocol.StreamKindWithdrawRefund,
		func(ctx context.Context, _ crypto.Address, req RefundRequest) (AmountResponse, error) {
			amount, err := p.WithdrawPendingRefund(ctx, req.Address)
			return AmountResponse{Amount: amount}, err
		}))

	registry.RegisterHandler(protocol.StreamKindPendingRefund, jsonHandler(protocol.StreamKindPendingRefund,
		func(_ context.Context, _ crypto.Address, req RefundRequest) (AmountResponse, error) {
			amount, err := p.GetPendingRefund(req.Address)
			return AmountResponse{Amount: amount}, err
		}))

	registry.RegisterHandler(protocol.StreamKindRequestState, jsonHandler(protocol.StreamKindRequestState,
		func(_ context.Context, _ crypto.Address, req RequestStateRequest) (appeal.Request, error) {
			return p.ArbitrationRequestState(req.RequestID)
		}))

	registry.RegisterHandler(protocol.StreamKindRequestByQuestion, jsonHandler(protocol.StreamKindRequestByQuestion,
		func(_ context.Context, _ crypto.Address, req RequestByQuestionRequest) (appeal.Request, error) {
			id, err := p.RequestIDOf(req.QuestionID)
			if err != nil {
				return appeal.Request{}, err
			}
			return p.ArbitrationRequestState(id)
		}))

	registry.RegisterHandler(protocol.StreamKindRoundInfo, jsonHandler(protocol.StreamKindRoundInfo,
		func(_ context.Context, _ crypto.Address, req RoundInfoRequest) (proxy.RoundInfo, error) {
			return p.GetRoundInfo(req.RequestID, req.Round)
		}))

	registry.RegisterHandler(protocol.StreamKindMultipliers, jsonHandler(protocol.StreamKindMultipliers,
		func(_ context.Context, _ crypto.Address, _ Empty) (appeal.Multipliers, error) {
			return p.GetMultipliers(), nil
		}))

	registry.RegisterHandler(protocol.StreamKindDisputeFee, jsonHandler(protocol.StreamKindDisputeFee,
		func(ctx context.Context, _ crypto.Address, req DisputeFeeRequest) (AmountResponse, error) {
			fee, err := p.GetDisputeFee(ctx, req.QuestionID)
			return AmountResponse{Amount: fee}, err
		}))

	registry.RegisterHandler(protocol.StreamKindWithdrawableAmount, jsonHandler(protocol.StreamKindWithdrawableAmount,
		func(_ context.Context, _ crypto.Address, req WithdrawableAmountRequest) (AmountResponse, error) {
			amount, err := p.GetTotalWithdrawableAmount(req.RequestID, req.Contributor, req.Ruling)
			return AmountResponse{Amount: amount}, err
		}))

	registry.RegisterHandler(protocol.StreamKindContributions, jsonHandler(protocol.StreamKindContributions,
		func(_ context.Context, _ crypto.Address, req ContributionsRequest) (ContributionsResponse, error) {
			contributions, err := p.GetContributions(req.RequestID, req.Round, req.Contributor)
			return ContributionsResponse{Contributions: contributions}, err
		}))
}

// DevnetArbitrator gives rulings by hand.
type DevnetArbitrator interface {
	GiveAppealableRuling(disputeID uint64, ruling, appealCost *big.Int, period time.Duration) error
	GiveRuling(ctx context.Context, disputeID uint64, ruling *big.Int) error
	ExecuteRuling(ctx context.Context, disputeID uint64) error
}

// DevnetOracle accepts answers by hand.
type DevnetOracle interface {
	AddAnswerToHistory(questionID, answer crypto.Hash, answerer crypto.Address, bond *big.Int, isCommitment bool) crypto.Hash
}

type AppealableRulingRequest struct {
	DisputeID  uint64        `json:"dispute_id"`
	Ruling     *big.Int      `json:"ruling"`
	AppealCost *big.Int      `json:"appeal_cost"`
	Period     time.Duration `json:"period"`
}

type RulingRequest struct {
	DisputeID uint64   `json:"dispute_id"`
	Ruling    *big.Int `json:"ruling"`
}

type ExecuteRulingRequest struct {
	DisputeID uint64 `json:"dispute_id"`
}

// AddAnswerRequest records an answer given by the caller.
type AddAnswerRequest struct {
	QuestionID   crypto.Hash `json:"question_id"`
	Answer       crypto.Hash `json:"answer"`
	Bond         *big.Int    `json:"bond"`
	IsCommitment bool        `json:"is_commitment"`
}

type HashResponse struct {
	Hash crypto.Hash `json:"hash"`
}

// RegisterDevnetHandlers serves the simulated collaborators to operators only.
func RegisterDevnetHandlers(registry *protocol.Registry, arbitrator DevnetArbitrator, oracle DevnetOracle, operators crypto.ED25519PublicKeySet) {
	register := func(kind protocol.StreamKind, h protocol.StreamHandler) {
		registry.RegisterHandler(kind, requireOperator(kind, operators, h))
	}

	register(protocol.StreamKindGiveAppealableRuling, jsonHandler(protocol.StreamKindGiveAppealableRuling,
		func(_ context.Context, _ crypto.Address, req AppealableRulingRequest) (Empty, error) {
			if req.Ruling == nil || req.AppealCost == nil {
				return Empty{}, fmt.Errorf("%w: ruling and appeal cost are required", ErrInvalidRequest)
			}
			return Empty{}, arbitrator.GiveAppealableRuling(req.DisputeID, req.Ruling, req.AppealCost, req.Period)
		}))

	register(protocol.StreamKindGiveRuling, jsonHandler(protocol.StreamKindGiveRuling,
		func(ctx context.Context, _ crypto.Address, req RulingRequest) (Empty, error) {
			if req.Ruling == nil {
				return Empty{}, fmt.Errorf("%w: ruling is required", ErrInvalidRequest)
			}
			return Empty{}, arbitrator.GiveRuling(ctx, req.DisputeID, req.Ruling)
		}))

	register(protocol.StreamKindExecuteRuling, jsonHandler(protocol.StreamKindExecuteRuling,
		func(ctx context.Context, _ crypto.Address, req ExecuteRulingRequest) (Empty, error) {
			return Empty{}, arbitrator.ExecuteRuling(ctx, req.DisputeID)
		}))

	register(protocol.StreamKindAddAnswer, jsonHandler(protocol.StreamKindAddAnswer,
		func(_ context.Context, caller crypto.Address, req AddAnswerRequest) (HashResponse, error) {
			bond := req.Bond
			if bond == nil {
				bond = new(big.Int)
			}
			return HashResponse{Hash: oracle.AddAnswerToHistory(req.QuestionID, req.Answer, caller, bond, req.IsCommitment)}, nil
		}))
}
