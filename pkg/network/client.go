package network

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/proxy"
	"github.com/eigerco/appealproxy/pkg/network/cert"
	"github.com/eigerco/appealproxy/pkg/network/handlers"
	"github.com/eigerco/appealproxy/pkg/network/protocol"
	"github.com/eigerco/appealproxy/pkg/network/transport"
)

// Client calls a proxy server. The server identifies the client by the
// address of its key.
type Client struct {
	transport *transport.Transport
	conn      *transport.Conn
	address   crypto.Address
}

func Dial(ctx context.Context, addr, network string, key ed25519.PrivateKey) (*Client, error) {
	tlsCert, err := newCertificate(key)
	if err != nil {
		return nil, err
	}
	tr, err := transport.NewTransport(transport.Config{
		TLSCert:       tlsCert,
		Network:       network,
		CertValidator: cert.NewValidator(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}
	conn, err := tr.Connect(ctx, addr)
	if err != nil {
		_ = tr.Stop()
		return nil, err
	}
	return &Client{
		transport: tr,
		conn:      conn,
		address:   crypto.AddressFromPublicKey(key.Public().(ed25519.PublicKey)),
	}, nil
}

// Address is the address the server attributes this client's calls to.
func (c *Client) Address() crypto.Address {
	return c.address
}

func (c *Client) Close() error {
	return c.transport.Stop()
}

// call sends req on a new stream of the given kind and decodes the result
// into result. A result is decoded even when the call failed.
func (c *Client) call(ctx context.Context, kind protocol.StreamKind, req, result any) error {
	stream, err := c.conn.OpenStream(ctx, kind)
	if err != nil {
		return err
	}
	if err := handlers.WriteJSON(ctx, stream, req); err != nil {
		stream.CancelRead(0)
		return fmt.Errorf("%s: %w", kind, err)
	}
	if err := stream.Close(); err != nil {
		return fmt.Errorf("%s: failed to close stream: %w", kind, err)
	}

	var resp handlers.Response
	if err := handlers.ReadJSON(ctx, stream, &resp); err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	if len(resp.Result) > 0 && result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("%s: failed to decode result: %w", kind, err)
		}
	}
	if resp.Error != nil {
		return resp.Error
	}
	return nil
}

func (c *Client) RequestArbitration(ctx context.Context, questionID crypto.Hash, maxPrevious, value *big.Int) (uint64, error) {
	var resp handlers.RequestArbitrationResponse
	err := c.call(ctx, protocol.StreamKindRequestArbitration, handlers.RequestArbitrationRequest{
		QuestionID:  questionID,
		MaxPrevious: maxPrevious,
		Value:       value,
	}, &resp)
	return resp.RequestID, err
}

func (c *Client) FundAppeal(ctx context.Context, requestID uint64, ruling, value *big.Int) (proxy.FundingResult, error) {
	var resp proxy.FundingResult
	err := c.call(ctx, protocol.StreamKindFundAppeal, handlers.FundAppealRequest{
		RequestID: requestID,
		Ruling:    ruling,
		Value:     value,
	}, &resp)
	return resp, err
}

func (c *Client) Withdraw(ctx context.Context, requestID uint64, contributor crypto.Address, round uint64, ruling *big.Int) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindWithdraw, handlers.WithdrawRequest{
		RequestID:   requestID,
		Contributor: contributor,
		Round:       round,
		Ruling:      ruling,
	}, &resp)
	return resp.Amount, err
}

func (c *Client) WithdrawAllRounds(ctx context.Context, requestID uint64, contributor crypto.Address, ruling *big.Int) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindWithdrawAllRounds, handlers.WithdrawAllRoundsRequest{
		RequestID:   requestID,
		Contributor: contributor,
		Ruling:      ruling,
	}, &resp)
	return resp.Amount, err
}

// WithdrawRefund pays addr the refunds that could not be transferred when due.
func (c *Client) WithdrawRefund(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindWithdrawRefund, handlers.RefundRequest{Address: addr}, &resp)
	return resp.Amount, err
}

func (c *Client) PendingRefund(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindPendingRefund, handlers.RefundRequest{Address: addr}, &resp)
	return resp.Amount, err
}

func (c *Client) ReportAnswer(ctx context.Context, questionID, lastHistoryHash, lastAnswer crypto.Hash, lastAnswerer crypto.Address) error {
	return c.call(ctx, protocol.StreamKindReportAnswer, handlers.ReportAnswerRequest{
		QuestionID:      questionID,
		LastHistoryHash: lastHistoryHash,
		LastAnswer:      lastAnswer,
		LastAnswerer:    lastAnswerer,
	}, nil)
}

func (c *Client) SubmitEvidence(ctx context.Context, requestID uint64, evidenceURI string) error {
	return c.call(ctx, protocol.StreamKindSubmitEvidence, handlers.SubmitEvidenceRequest{
		RequestID:   requestID,
		EvidenceURI: evidenceURI,
	}, nil)
}

func (c *Client) RequestState(ctx context.Context, requestID uint64) (appeal.Request, error) {
	var resp appeal.Request
	err := c.call(ctx, protocol.StreamKindRequestState, handlers.RequestStateRequest{RequestID: requestID}, &resp)
	return resp, err
}

func (c *Client) RequestByQuestion(ctx context.Context, questionID crypto.Hash) (appeal.Request, error) {
	var resp appeal.Request
	err := c.call(ctx, protocol.StreamKindRequestByQuestion, handlers.RequestByQuestionRequest{QuestionID: questionID}, &resp)
	return resp, err
}

func (c *Client) RoundInfo(ctx context.Context, requestID, round uint64) (proxy.RoundInfo, error) {
	var resp proxy.RoundInfo
	err := c.call(ctx, protocol.StreamKindRoundInfo, handlers.RoundInfoRequest{RequestID: requestID, Round: round}, &resp)
	return resp, err
}

func (c *Client) Multipliers(ctx context.Context) (appeal.Multipliers, error) {
	var resp appeal.Multipliers
	err := c.call(ctx, protocol.StreamKindMultipliers, handlers.Empty{}, &resp)
	return resp, err
}

func (c *Client) DisputeFee(ctx context.Context, questionID crypto.Hash) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindDisputeFee, handlers.DisputeFeeRequest{QuestionID: questionID}, &resp)
	return resp.Amount, err
}

func (c *Client) WithdrawableAmount(ctx context.Context, requestID uint64, contributor crypto.Address, ruling *big.Int) (*big.Int, error) {
	var resp handlers.AmountResponse
	err := c.call(ctx, protocol.StreamKindWithdrawableAmount, handlers.WithdrawableAmountRequest{
		RequestID:   requestID,
		Contributor: contributor,
		Ruling:      ruling,
	}, &resp)
	return resp.Amount, err
}

func (c *Client) Contributions(ctx context.Context, requestID, round uint64, contributor crypto.Address) (map[string]*big.Int, error) {
	var resp handlers.ContributionsResponse
	err := c.call(ctx, protocol.StreamKindContributions, handlers.ContributionsRequest{
		RequestID:   requestID,
		Round:       round,
		Contributor: contributor,
	}, &resp)
	return resp.Contributions, err
}

func (c *Client) GiveAppealableRuling(ctx context.Context, disputeID uint64, ruling, appealCost *big.Int, period time.Duration) error {
	return c.call(ctx, protocol.StreamKindGiveAppealableRuling, handlers.AppealableRulingRequest{
		DisputeID:  disputeID,
		Ruling:     ruling,
		AppealCost: appealCost,
		Period:     period,
	}, nil)
}

func (c *Client) GiveRuling(ctx context.Context, disputeID uint64, ruling *big.Int) error {
	return c.call(ctx, protocol.StreamKindGiveRuling, handlers.RulingRequest{DisputeID: disputeID, Ruling: ruling}, nil)
}

func (c *Client) ExecuteRuling(ctx context.Context, disputeID uint64) error {
	return c.call(ctx, protocol.StreamKindExecuteRuling, handlers.ExecuteRulingRequest{DisputeID: disputeID}, nil)
}

// AddAnswer answers a question on the simulated oracle as this client and
// returns the new history head.
func (c *Client) AddAnswer(ctx context.Context, questionID, answer crypto.Hash, bond *big.Int, isCommitment bool) (crypto.Hash, error) {
	var resp handlers.HashResponse
	err := c.call(ctx, protocol.StreamKindAddAnswer, handlers.AddAnswerRequest{
		QuestionID:   questionID,
		Answer:       answer,
		Bond:         bond,
		IsCommitment: isCommitment,
	}, &resp)
	return resp.Hash, err
}
