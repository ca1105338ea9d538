// Package params exposes the governance parameters the registry reads at
// each operation: minimum deposit, stage lengths and the voter dispensation
// percentage. Parameters are looked up by name so any backing store
// (config, database, governance process) is substitutable.
package params

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// Well-known parameter names.
const (
	MinDeposit        = "minDeposit"
	ApplicationPeriod = "applicationPeriod"
	CommitStageLength = "commitStageLength"
	RevealStageLength = "revealStageLength"
	DispensationPct   = "dispensationPct"
)

// ErrUnknownParam is returned for a parameter name the store has no value for.
var ErrUnknownParam = errors.New("unknown parameter")

// Store provides read access to registry parameters.
type Store interface {
	// Get returns the numeric value of a parameter. Durations are stored as
	// whole seconds.
	Get(ctx context.Context, name string) (decimal.Decimal, error)
}

// Duration reads a parameter and interprets it as a number of seconds.
func Duration(ctx context.Context, store Store, name string) (time.Duration, error) {
	v, err := store.Get(ctx, name)
	if err != nil {
		return 0, err
	}
	return time.Duration(v.IntPart()) * time.Second, nil
}
