// Package bank defines the stake ledger boundary the registry escrows
// deposits through. The registry only ever moves tokens in and out of its
// own escrow account; balance bookkeeping belongs to the backing token
// ledger.
package bank

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrTransferFailed is returned when a transfer cannot be executed in full,
// for example due to insufficient balance or allowance. A failed transfer
// never moves funds partially.
var ErrTransferFailed = errors.New("token transfer failed")

// Ledger is the minimal token ledger surface the registry consumes.
type Ledger interface {
	// TransferIn escrows amount from the given account into the registry's
	// escrow account.
	TransferIn(ctx context.Context, from string, amount decimal.Decimal) error

	// TransferOut releases amount from the registry's escrow account to the
	// given account.
	TransferOut(ctx context.Context, to string, amount decimal.Decimal) error

	// BalanceOf returns the spendable balance of an account. Unknown
	// accounts have a zero balance.
	BalanceOf(ctx context.Context, who string) (decimal.Decimal, error)
}
