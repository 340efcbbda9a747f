// Package token implements the fungible settlement currency consumed by the
// letter of credit engine: balances, allowances and delegated transfers.
package token

import (
	"context"
	"fmt"
	"lc_escrow/internal/domain"
	"lc_escrow/pkg/validator"
	"log/slog"
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

type Ledger struct {
	mu         sync.RWMutex
	symbol     string
	minter     string
	balances   map[string]decimal.Decimal
	allowances map[string]map[string]decimal.Decimal
	supply     decimal.Decimal
	logger     *slog.Logger
}

// NewLedger creates an empty ledger. Only minter may create new supply.
func NewLedger(symbol, minter string, logger *slog.Logger) *Ledger {
	if logger == nil {
		logger = slog.Default()
	}
	return &Ledger{
		symbol:     symbol,
		minter:     key(minter),
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
		logger:     logger,
	}
}

func (l *Ledger) Symbol() string {
	return l.symbol
}

func (l *Ledger) TotalSupply(ctx context.Context) decimal.Decimal {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.supply
}

func (l *Ledger) BalanceOf(ctx context.Context, account string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[key(account)], nil
}

func (l *Ledger) Allowance(ctx context.Context, owner, spender string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[key(owner)][key(spender)], nil
}

// Approve sets, not increments, the amount spender may pull from owner.
func (l *Ledger) Approve(ctx context.Context, owner, spender string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: allowance must not be negative", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(spender) == "" {
		return fmt.Errorf("%w: spender is required", domain.ErrInvalidInput)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o := key(owner)
	if l.allowances[o] == nil {
		l.allowances[o] = make(map[string]decimal.Decimal)
	}
	l.allowances[o][key(spender)] = amount

	l.logger.InfoContext(ctx, "Allowance approved",
		slog.String("owner", owner),
		slog.String("spender", spender),
		slog.String("amount", amount.String()))
	return nil
}

func (l *Ledger) Transfer(ctx context.Context, from, to string, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := validRecipient(to); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f := key(from)
	if l.balances[f].LessThan(amount) {
		return fmt.Errorf("%w: balance %s, need %s", domain.ErrInsufficientFunds, l.balances[f], amount)
	}
	l.move(f, key(to), amount)
	return nil
}

// TransferFrom moves amount from owner to to on behalf of spender, consuming
// allowance. Nothing changes unless both allowance and balance suffice.
func (l *Ledger) TransferFrom(ctx context.Context, spender, owner, to string, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	o, s := key(owner), key(spender)
	allowed := l.allowances[o][s]
	if allowed.LessThan(amount) {
		return fmt.Errorf("%w: allowance %s, need %s", domain.ErrInsufficientAllowance, allowed, amount)
	}
	if l.balances[o].LessThan(amount) {
		return fmt.Errorf("%w: balance %s, need %s", domain.ErrInsufficientFunds, l.balances[o], amount)
	}

	l.allowances[o][s] = allowed.Sub(amount)
	l.move(o, key(to), amount)

	l.logger.InfoContext(ctx, "Delegated transfer completed",
		slog.String("spender", spender),
		slog.String("from", owner),
		slog.String("to", to),
		slog.String("amount", amount.String()))
	return nil
}

func (l *Ledger) Mint(ctx context.Context, caller, to string, amount decimal.Decimal) error {
	if err := validAmount(amount); err != nil {
		return err
	}
	if err := validRecipient(to); err != nil {
		return err
	}
	if key(caller) != l.minter {
		return fmt.Errorf("%w: only the minter may mint %s", domain.ErrUnauthorized, l.symbol)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	t := key(to)
	l.balances[t] = l.balances[t].Add(amount)
	l.supply = l.supply.Add(amount)

	l.logger.InfoContext(ctx, "Tokens minted",
		slog.String("to", to),
		slog.String("amount", amount.String()),
		slog.String("symbol", l.symbol))
	return nil
}

func (l *Ledger) move(from, to string, amount decimal.Decimal) {
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
}

func validAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput)
	}
	return nil
}

func validRecipient(to string) error {
	if err := validator.ValidateAccount(to); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return nil
}

func key(account string) string {
	return strings.ToLower(strings.TrimSpace(account))
}
