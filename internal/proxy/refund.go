package proxy

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/eigerco/appealproxy/internal/crypto"
	"github.com/eigerco/appealproxy/internal/safemath"
)

// refund sends amount back to addr. When the transfer fails the amount is
// added to the pending refund of addr, to be claimed with
// WithdrawPendingRefund.
func (p *Proxy) refund(ctx context.Context, addr crypto.Address, amount *big.Int) error {
	err := p.bank.Transfer(ctx, addr, amount)
	if err == nil {
		return nil
	}
	transferFailures.WithLabelValues("refund").Inc()
	p.logger.Warn().Err(err).
		Str("to", addr.String()).
		Str("amount", amount.String()).
		Msg("refund failed, kept as pending")

	pending, perr := p.ledger.PendingRefund(addr)
	if perr == nil {
		var ok bool
		if pending, ok = safemath.Add256(pending, amount); !ok {
			perr = safemath.ErrOverflow
		} else {
			perr = p.ledger.SetPendingRefund(addr, pending)
		}
	}
	if perr != nil {
		p.logger.Error().Err(perr).Str("to", addr.String()).Str("amount", amount.String()).Msg("record pending refund failed")
		return fmt.Errorf("%w: refund %s to %s: %w", ErrTransferFailed, amount, addr, errors.Join(err, perr))
	}
	return fmt.Errorf("%w: refund %s to %s is pending: %w", ErrTransferFailed, amount, addr, err)
}

// GetPendingRefund returns the refunds owed to addr that could not be
// transferred when they were due.
func (p *Proxy) GetPendingRefund(addr crypto.Address) (*big.Int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.ledger.PendingRefund(addr)
}

// WithdrawPendingRefund pays addr its pending refund. The balance is cleared
// before the transfer and restored when it fails.
func (p *Proxy) WithdrawPendingRefund(ctx context.Context, addr crypto.Address) (*big.Int, error) {
	defer p.observe("withdraw_pending_refund")()

	p.mu.Lock()
	defer p.mu.Unlock()

	amount, err := p.ledger.PendingRefund(addr)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}
	if err := p.ledger.SetPendingRefund(addr, new(big.Int)); err != nil {
		return nil, err
	}

	if err := p.bank.Transfer(ctx, addr, amount); err != nil {
		transferFailures.WithLabelValues("pending_refund").Inc()
		if serr := p.ledger.SetPendingRefund(addr, amount); serr != nil {
			p.logger.Error().Err(serr).Str("to", addr.String()).Str("amount", amount.String()).Msg("restore pending refund failed")
			return nil, fmt.Errorf("%w: %w", ErrTransferFailed, errors.Join(err, serr))
		}
		return nil, fmt.Errorf("%w: pay %s to %s: %w", ErrTransferFailed, amount, addr, err)
	}

	withdrawals.Inc()
	p.logger.Debug().Str("to", addr.String()).Str("amount", amount.String()).Msg("pending refund paid")
	return amount, nil
}
