package store

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/eigerco/appealproxy/internal/appeal"
	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
	"github.com/eigerco/appealproxy/pkg/db"
	"github.com/eigerco/appealproxy/pkg/db/pebble"
	"github.com/eigerco/appealproxy/pkg/log"
)

var (
	ErrRequestNotFound = errors.New("arbitration request not found")
	ErrDisputeNotFound = errors.New("dispute not found")
	ErrRoundNotFound   = errors.New("round not found")
	ErrLedgerClosed    = errors.New("ledger is closed")
)

const DefaultRequestCacheSize = 1024

// Ledger persists arbitration requests and their rounds.
//
// Tables:
//
//	counter                      -> next request id
//	request  ‖ id                -> Request
//	round    ‖ id ‖ index        -> Round
//	question ‖ question id       -> request id
//	dispute  ‖ dispute id        -> request id
//	refund   ‖ address           -> amount owed from failed refunds
//
// Request headers are cached; rounds are always read from the store.
type Ledger struct {
	db       db.KVStore
	requests *lru.Cache[uint64, appeal.Request]
	closed   atomic.Bool
}

// NewLedger creates a ledger on top of kv keeping up to cacheSize request
// headers in memory. A non-positive cacheSize selects DefaultRequestCacheSize.
func NewLedger(kv db.KVStore, cacheSize int) (*Ledger, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultRequestCacheSize
	}
	cache, err := lru.New[uint64, appeal.Request](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create request cache: %w", err)
	}
	return &Ledger{db: kv, requests: cache}, nil
}

// NextRequestID returns the id the next created request will get.
func (l *Ledger) NextRequestID() (uint64, error) {
	if l.closed.Load() {
		return 0, ErrLedgerClosed
	}
	b, err := l.db.Get(makeKey(prefixCounter))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, nil
		}
		return 0, fmt.Errorf("get request counter: %w", err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("request counter: unexpected length %d", len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetRequest returns a copy of the request, safe to mutate.
func (l *Ledger) GetRequest(id uint64) (appeal.Request, error) {
	if l.closed.Load() {
		return appeal.Request{}, ErrLedgerClosed
	}
	if req, ok := l.requests.Get(id); ok {
		return req.Clone(), nil
	}

	b, err := l.db.Get(makeKey(prefixRequest, be64(id)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return appeal.Request{}, ErrRequestNotFound
		}
		return appeal.Request{}, fmt.Errorf("get request %d: %w", id, err)
	}
	var req appeal.Request
	if err := json.Unmarshal(b, &req); err != nil {
		return appeal.Request{}, fmt.Errorf("decode request %d: %w", id, err)
	}
	l.requests.Add(id, req)
	return req.Clone(), nil
}

func (l *Ledger) RequestIDByQuestion(questionID crypto.Hash) (uint64, error) {
	return l.lookup(makeKey(prefixQuestion, questionID[:]), ErrRequestNotFound)
}

func (l *Ledger) RequestIDByDispute(disputeID uint64) (uint64, error) {
	return l.lookup(makeKey(prefixDispute, be64(disputeID)), ErrDisputeNotFound)
}

// RequestByQuestion resolves the latest request made for questionID.
func (l *Ledger) RequestByQuestion(questionID crypto.Hash) (appeal.Request, error) {
	id, err := l.RequestIDByQuestion(questionID)
	if err != nil {
		return appeal.Request{}, err
	}
	return l.GetRequest(id)
}

func (l *Ledger) lookup(key []byte, notFound error) (uint64, error) {
	if l.closed.Load() {
		return 0, ErrLedgerClosed
	}
	b, err := l.db.Get(key)
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return 0, notFound
		}
		return 0, fmt.Errorf("lookup %s: %w", PrefixToString(key[0]), err)
	}
	if len(b) != 8 {
		return 0, fmt.Errorf("lookup %s: unexpected length %d", PrefixToString(key[0]), len(b))
	}
	return binary.BigEndian.Uint64(b), nil
}

// GetRound returns the round stored at index for request id.
func (l *Ledger) GetRound(id, index uint64) (*appeal.Round, error) {
	if l.closed.Load() {
		return nil, ErrLedgerClosed
	}
	b, err := l.db.Get(makeKey(prefixRound, be64(id), be64(index)))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, ErrRoundNotFound
		}
		return nil, fmt.Errorf("get round %d/%d: %w", id, index, err)
	}
	round := new(appeal.Round)
	if err := json.Unmarshal(b, round); err != nil {
		return nil, fmt.Errorf("decode round %d/%d: %w", id, index, err)
	}
	return round, nil
}

// Rounds returns every round of request id in index order.
func (l *Ledger) Rounds(id uint64) ([]*appeal.Round, error) {
	if l.closed.Load() {
		return nil, ErrLedgerClosed
	}
	start := makeKey(prefixRound, be64(id))
	end := makeKey(prefixRound, be64(id+1))
	if id == ^uint64(0) {
		end = []byte{prefixRound + 1}
	}

	iter, err := l.db.NewIterator(start, end)
	if err != nil {
		return nil, fmt.Errorf("create iterator: %w", err)
	}
	defer iter.Close()

	var rounds []*appeal.Round
	for iter.Next() {
		value, err := iter.Value()
		if err != nil {
			return nil, fmt.Errorf("read round: %w", err)
		}
		round := new(appeal.Round)
		if err := json.Unmarshal(value, round); err != nil {
			return nil, fmt.Errorf("decode round: %w", err)
		}
		rounds = append(rounds, round)
	}
	return rounds, nil
}

// CreateRequest stores a new request with its first round and indexes it by
// question and dispute. The request counter moves past req.ID.
func (l *Ledger) CreateRequest(req appeal.Request, first *appeal.Round) error {
	if l.closed.Load() {
		return ErrLedgerClosed
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := putRequest(batch, req); err != nil {
		return err
	}
	if err := putRound(batch, req.ID, 0, first); err != nil {
		return err
	}
	if err := batch.Put(makeKey(prefixQuestion, req.QuestionID[:]), be64(req.ID)); err != nil {
		return fmt.Errorf("index question: %w", err)
	}
	if err := batch.Put(makeKey(prefixDispute, be64(req.DisputeID)), be64(req.ID)); err != nil {
		return fmt.Errorf("index dispute: %w", err)
	}
	next, ok := safemath.Add64(req.ID, 1)
	if !ok {
		return fmt.Errorf("request counter: %w", safemath.ErrOverflow)
	}
	if err := batch.Put(makeKey(prefixCounter), be64(next)); err != nil {
		return fmt.Errorf("store request counter: %w", err)
	}

	if err := batch.Commit(); err != nil {
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	l.requests.Add(req.ID, req.Clone())
	return nil
}

// PendingRefund returns what the proxy owes addr from refunds that could not
// be transferred.
func (l *Ledger) PendingRefund(addr crypto.Address) (*big.Int, error) {
	if l.closed.Load() {
		return nil, ErrLedgerClosed
	}
	b, err := l.db.Get(makeKey(prefixRefund, addr[:]))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return new(big.Int), nil
		}
		return nil, fmt.Errorf("get pending refund of %s: %w", addr, err)
	}
	return new(big.Int).SetBytes(b), nil
}

// SetPendingRefund stores the amount owed to addr. Zero clears it.
func (l *Ledger) SetPendingRefund(addr crypto.Address, amount *big.Int) error {
	if l.closed.Load() {
		return ErrLedgerClosed
	}
	if !safemath.InRange(amount) {
		return fmt.Errorf("pending refund of %s: %w", addr, safemath.ErrOverflow)
	}
	key := makeKey(prefixRefund, addr[:])
	if amount.Sign() == 0 {
		if err := l.db.Delete(key); err != nil {
			return fmt.Errorf("clear pending refund of %s: %w", addr, err)
		}
		return nil
	}
	if err := l.db.Put(key, amount.Bytes()); err != nil {
		return fmt.Errorf("store pending refund of %s: %w", addr, err)
	}
	return nil
}

// Commit writes the request header and the given rounds, keyed by index,
// atomically.
func (l *Ledger) Commit(req appeal.Request, rounds map[uint64]*appeal.Round) error {
	if l.closed.Load() {
		return ErrLedgerClosed
	}

	batch := l.db.NewBatch()
	defer batch.Close()

	if err := putRequest(batch, req); err != nil {
		return err
	}
	for index, round := range rounds {
		if index >= req.RoundCount {
			return fmt.Errorf("commit request %d: round %d beyond round count %d", req.ID, index, req.RoundCount)
		}
		if err := putRound(batch, req.ID, index, round); err != nil {
			return err
		}
	}

	if err := batch.Commit(); err != nil {
		l.requests.Remove(req.ID)
		return fmt.Errorf(ErrFailedBatchCommit, err)
	}
	l.requests.Add(req.ID, req.Clone())
	log.Store.Debug().
		Uint64("request", req.ID).
		Str("status", req.Status.String()).
		Int("rounds", len(rounds)).
		Msg("ledger commit")
	return nil
}

// Close marks the ledger closed. The underlying store is owned by the caller.
func (l *Ledger) Close() error {
	l.closed.Store(true)
	l.requests.Purge()
	return nil
}

func putRequest(w db.Writer, req appeal.Request) error {
	b, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("encode request %d: %w", req.ID, err)
	}
	if err := w.Put(makeKey(prefixRequest, be64(req.ID)), b); err != nil {
		return fmt.Errorf("store request %d: %w", req.ID, err)
	}
	return nil
}

func putRound(w db.Writer, id, index uint64, round *appeal.Round) error {
	b, err := json.Marshal(round)
	if err != nil {
		return fmt.Errorf("encode round %d/%d: %w", id, index, err)
	}
	if err := w.Put(makeKey(prefixRound, be64(id), be64(index)), b); err != nil {
		return fmt.Errorf("store round %d/%d: %w", id, index, err)
	}
	return nil
}
