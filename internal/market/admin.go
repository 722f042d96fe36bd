package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/collect9/c9market/internal/domain"
)

// SetMinimumSettlementPrice sets the floor below which purchases are refused
// even when the decayed quote is lower, protecting sellers from oracle
// misquotes. Administrator only.
func (m *Market) SetMinimumSettlementPrice(ctx context.Context, caller common.Address, wei *big.Int) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if wei == nil || wei.Sign() < 0 {
		return fmt.Errorf("market: set minimum price: negative amount")
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	if err := m.state.SetMinimumPrice(ctx, wei); err != nil {
		return fmt.Errorf("market: set minimum price: %w", err)
	}
	m.logger.InfoContext(ctx, "minimum settlement price updated",
		slog.String("wei", wei.String()),
	)
	return nil
}

// SetOracleSource repoints the rate oracle at a different upstream feed.
// Administrator only.
func (m *Market) SetOracleSource(ctx context.Context, caller common.Address, addr common.Address) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	if err := m.oracle.SetSource(addr); err != nil {
		return fmt.Errorf("market: set oracle source %s: %w", addr.Hex(), err)
	}
	m.logger.InfoContext(ctx, "oracle source updated",
		slog.String("feed", addr.Hex()),
	)
	return nil
}

// WithdrawBalance pays accrued settlement funds out to the caller, who must
// be the administrator. A zero amount withdraws the entire balance. A
// non-zero amount must be strictly less than the balance; an amount equal to
// the balance is rejected (use zero to drain).
func (m *Market) WithdrawBalance(ctx context.Context, caller common.Address, wei *big.Int) error {
	if err := m.authorize(caller); err != nil {
		return err
	}
	if m.bank == nil {
		return fmt.Errorf("market: withdraw: no fund bank configured")
	}
	if wei != nil && wei.Sign() < 0 {
		return fmt.Errorf("market: withdraw: negative amount")
	}
	if err := m.guard.enter(); err != nil {
		return err
	}
	defer m.guard.exit()

	balance, err := m.state.Balance(ctx)
	if err != nil {
		return fmt.Errorf("market: withdraw: balance: %w", err)
	}

	amount := wei
	if amount == nil || amount.Sign() == 0 {
		amount = balance
	} else if amount.Cmp(balance) >= 0 {
		return fmt.Errorf("market: withdraw %s wei of %s: %w",
			amount, balance, domain.ErrInsufficientBalance)
	}
	if amount.Sign() == 0 {
		return nil
	}

	// Debit first, pay second, credit back on a failed payout.
	if err := m.state.AddBalance(ctx, new(big.Int).Neg(amount)); err != nil {
		return fmt.Errorf("market: withdraw: debit: %w", err)
	}
	if err := m.bank.Pay(ctx, caller, amount); err != nil {
		if creditErr := m.state.AddBalance(ctx, amount); creditErr != nil {
			m.logger.ErrorContext(ctx, "balance credit-back failed",
				slog.String("wei", amount.String()),
				slog.String("error", creditErr.Error()),
			)
		}
		return fmt.Errorf("market: withdraw: payout: %w", errors.Join(domain.ErrTransferFailed, err))
	}

	m.logger.InfoContext(ctx, "balance withdrawn",
		slog.String("to", caller.Hex()),
		slog.String("wei", amount.String()),
	)
	return nil
}

// AccruedBalance reports the current withdrawable balance. Read-only.
func (m *Market) AccruedBalance(ctx context.Context) (*big.Int, error) {
	balance, err := m.state.Balance(ctx)
	if err != nil {
		return nil, fmt.Errorf("market: balance: %w", err)
	}
	return balance, nil
}
