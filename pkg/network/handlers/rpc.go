package handlers

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/quic-go/quic-go"
	"github.com/rs/zerolog"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/internal/store"
	"github.com/eigerco/appealproxy/pkg/log"
	"github.com/eigerco/appealproxy/pkg/network/protocol"
)

// RequestTimeout bounds the handling of a single stream.
const RequestTimeout = 10 * time.Second

var (
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnauthorizedPeer = errors.New("peer is not an operator")
)

// Response is written back on every stream. Result is present even when
// Error is set if the operation produced a partial outcome.
type Response struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *RemoteError    `json:"error,omitempty"`
}

// RemoteError carries a failure across the wire. Known failures keep their
// identity through Code so callers can match them with errors.Is.
type RemoteError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *RemoteError) Error() string {
	return e.Message
}

func (e *RemoteError) Unwrap() error {
	for _, c := range errorCodes {
		if c.code == e.Code {
			return c.err
		}
	}
	return nil
}

// errorCodes is ordered from the most specific error to the least.
var errorCodes = []struct {
	code string
	err  error
}{
	{"no_active_dispute", appeal.ErrNoActiveDispute},
	{"not_yet_ruled", appeal.ErrNotYetRuled},
	{"not_ruled", appeal.ErrNotRuled},
	{"already_ruled", appeal.ErrAlreadyRuled},
	{"round_not_found", appeal.ErrRoundNotFound},
	{"unknown_dispute", appeal.ErrUnknownDispute},
	{"unauthorized_caller", appeal.ErrUnauthorizedCaller},
	{"appeal_period_over", appeal.ErrAppealPeriodOver},
	{"loser_period_over", appeal.ErrLoserPeriodOver},
	{"ruling_already_funded", appeal.ErrRulingAlreadyFunded},
	{"history_mismatch", appeal.ErrHistoryMismatch},
	{"insufficient_fee", appeal.ErrInsufficientFee},
	{"stale_answer_bond", appeal.ErrStaleAnswerBond},
	{"invalid_multipliers", appeal.ErrInvalidMultipliers},
	{"request_not_found", store.ErrRequestNotFound},
	{"transfer_failed", proxy.ErrTransferFailed},
	{"invalid_ruling", proxy.ErrInvalidRuling},
	{"invalid_amount", proxy.ErrInvalidAmount},
	{"invalid_request", ErrInvalidRequest},
	{"unauthorized_peer", ErrUnauthorizedPeer},
	{"invalid_state", appeal.ErrInvalidState},
	{"unauthorized", appeal.ErrUnauthorized},
	{"window_closed", appeal.ErrWindowClosed},
	{"already_funded", appeal.ErrAlreadyFunded},
	{"already_requested", appeal.ErrAlreadyRequested},
	{"already_reported", appeal.ErrAlreadyReported},
	{"hash_mismatch", appeal.ErrHashMismatch},
	{"insufficient_payment", appeal.ErrInsufficientPayment},
}

// NewRemoteError classifies err. Unknown errors get the "internal" code.
func NewRemoteError(err error) *RemoteError {
	if err == nil {
		return nil
	}
	for _, c := range errorCodes {
		if errors.Is(err, c.err) {
			return &RemoteError{Code: c.code, Message: err.Error()}
		}
	}
	return &RemoteError{Code: "internal", Message: err.Error()}
}

// callFunc serves one request on behalf of the peer at caller.
type callFunc[Req, Resp any] func(ctx context.Context, caller crypto.Address, req Req) (Resp, error)

// jsonHandler reads one Req, calls fn and writes a Response with its outcome.
func jsonHandler[Req, Resp any](kind protocol.StreamKind, fn callFunc[Req, Resp]) protocol.StreamHandler {
	return protocol.StreamHandlerFunc(func(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
		defer stream.Close()
		ctx, cancel := context.WithTimeout(ctx, RequestTimeout)
		defer cancel()

		started := time.Now()
		caller := crypto.AddressFromPublicKey(peerKey)
		logger := log.Network.With().Str("kind", kind.String()).Stringer("caller", caller).Logger()

		var req Req
		if err := ReadJSON(ctx, stream, &req); err != nil {
			err = fmt.Errorf("%w: %v", ErrInvalidRequest, err)
			observeRequest(kind, err, started)
			return writeResponse(ctx, stream, nil, err)
		}

		result, err := fn(ctx, caller, req)
		observeRequest(kind, err, started)
		logRequest(logger, err)

		encoded, encErr := json.Marshal(result)
		if encErr != nil {
			return writeResponse(ctx, stream, nil, fmt.Errorf("failed to encode result: %w", encErr))
		}
		return writeResponse(ctx, stream, encoded, err)
	})
}

func writeResponse(ctx context.Context, stream quic.Stream, result json.RawMessage, err error) error {
	if werr := WriteJSON(ctx, stream, Response{Result: result, Error: NewRemoteError(err)}); werr != nil {
		return fmt.Errorf("failed to write response: %w", werr)
	}
	return nil
}

func logRequest(logger zerolog.Logger, err error) {
	if err == nil {
		logger.Debug().Msg("request served")
		return
	}
	logger.Info().Err(err).Msg("request failed")
}

// requireOperator refuses streams from peers that are not in operators.
func requireOperator(kind protocol.StreamKind, operators crypto.ED25519PublicKeySet, next protocol.StreamHandler) protocol.StreamHandler {
	return protocol.StreamHandlerFunc(func(ctx context.Context, stream quic.Stream, peerKey ed25519.PublicKey) error {
		if operators.Has(peerKey) {
			return next.HandleStream(ctx, stream, peerKey)
		}
		defer stream.Close()
		log.Network.Warn().Str("kind", kind.String()).
			Stringer("caller", crypto.AddressFromPublicKey(peerKey)).
			Msg("devnet request from a peer that is not an operator")
		requestsServed.WithLabelValues(kind.String(), "unauthorized_peer").Inc()
		return writeResponse(ctx, stream, nil, ErrUnauthorizedPeer)
	})
}
