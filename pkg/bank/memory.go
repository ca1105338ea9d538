package bank

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryLedger is an in-process token ledger with per-account balances and
// per-account transfer allowances toward the escrow account. It mirrors the
// approve/transferFrom shape of the external token the registry escrows
// against, and is used in tests and in local single-process deployments.
type MemoryLedger struct {
	mu            sync.Mutex
	escrowAccount string
	balances      map[string]decimal.Decimal
	allowances    map[string]decimal.Decimal
}

// NewMemoryLedger creates an empty ledger. escrowAccount names the account
// that TransferIn credits and TransferOut debits.
func NewMemoryLedger(escrowAccount string) *MemoryLedger {
	return &MemoryLedger{
		escrowAccount: escrowAccount,
		balances:      make(map[string]decimal.Decimal),
		allowances:    make(map[string]decimal.Decimal),
	}
}

// Mint credits amount to an account. Test and bootstrap helper.
func (l *MemoryLedger) Mint(who string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[who] = l.balances[who].Add(amount)
}

// Approve sets the amount the escrow account may pull from who. It replaces
// any previous allowance.
func (l *MemoryLedger) Approve(who string, amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.allowances[who] = amount
}

// TransferIn pulls amount from the account into escrow. Requires both
// sufficient balance and sufficient allowance; fails atomically otherwise.
func (l *MemoryLedger) TransferIn(_ context.Context, from string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrTransferFailed, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.allowances[from].LessThan(amount) {
		return fmt.Errorf("%w: allowance of %s is %s, need %s",
			ErrTransferFailed, from, l.allowances[from], amount)
	}
	if l.balances[from].LessThan(amount) {
		return fmt.Errorf("%w: balance of %s is %s, need %s",
			ErrTransferFailed, from, l.balances[from], amount)
	}

	l.allowances[from] = l.allowances[from].Sub(amount)
	l.balances[from] = l.balances[from].Sub(amount)
	l.balances[l.escrowAccount] = l.balances[l.escrowAccount].Add(amount)
	return nil
}

// TransferOut releases amount from escrow to the account.
func (l *MemoryLedger) TransferOut(_ context.Context, to string, amount decimal.Decimal) error {
	if amount.IsNegative() {
		return fmt.Errorf("%w: negative amount %s", ErrTransferFailed, amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balances[l.escrowAccount].LessThan(amount) {
		return fmt.Errorf("%w: escrow balance is %s, need %s",
			ErrTransferFailed, l.balances[l.escrowAccount], amount)
	}

	l.balances[l.escrowAccount] = l.balances[l.escrowAccount].Sub(amount)
	l.balances[to] = l.balances[to].Add(amount)
	return nil
}

// BalanceOf returns the current balance of an account.
func (l *MemoryLedger) BalanceOf(_ context.Context, who string) (decimal.Decimal, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[who], nil
}
