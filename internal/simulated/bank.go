package simulated

import (
	"context"
	"errors"
	"math/big"
	"sync"

	"github.com/eigerco/appealproxy/internal/crypto"
)

var ErrUnreachable = errors.New("recipient unreachable")

// Bank records what the proxy pays out per account.
type Bank struct {
	mu          sync.Mutex
	paid        map[crypto.Address]*big.Int
	total       *big.Int
	unreachable map[crypto.Address]bool
}

func NewBank() *Bank {
	return &Bank{
		paid:        make(map[crypto.Address]*big.Int),
		total:       new(big.Int),
		unreachable: make(map[crypto.Address]bool),
	}
}

func (b *Bank) Transfer(_ context.Context, to crypto.Address, amount *big.Int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.unreachable[to] {
		return ErrUnreachable
	}
	if b.paid[to] == nil {
		b.paid[to] = new(big.Int)
	}
	b.paid[to].Add(b.paid[to], amount)
	b.total.Add(b.total, amount)
	return nil
}

// SetUnreachable makes transfers to addr fail until reset.
func (b *Bank) SetUnreachable(addr crypto.Address, unreachable bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if unreachable {
		b.unreachable[addr] = true
		return
	}
	delete(b.unreachable, addr)
}

// Paid returns everything transferred to addr so far.
func (b *Bank) Paid(addr crypto.Address) *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.paid[addr]; ok {
		return new(big.Int).Set(v)
	}
	return new(big.Int)
}

func (b *Bank) Total() *big.Int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return new(big.Int).Set(b.total)
}
