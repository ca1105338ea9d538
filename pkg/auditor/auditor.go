// Package auditor verifies escrow conservation: the ledger's escrow balance
// must always cover every obligation the registry has recorded.
package auditor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/internal/metrics"
	"github.com/curatelabs/tcr-middleware/pkg/bank"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store"
)

// Report is the outcome of one conservation audit.
type Report struct {
	EscrowBalance decimal.Decimal
	// Obligations is what the registry believes it holds: listing deposits,
	// open challenge pools and unclaimed voter pools.
	Obligations decimal.Decimal
	// Imbalance is EscrowBalance minus Obligations. Zero when the books
	// balance; negative means escrow cannot cover recorded claims.
	Imbalance decimal.Decimal
}

// Balanced reports whether escrow exactly covers the recorded obligations.
func (r *Report) Balanced() bool {
	return r.Imbalance.IsZero()
}

// Auditor periodically reconciles the escrow account against registry state.
type Auditor struct {
	store         store.Store
	ledger        bank.Ledger
	escrowAccount string
	logger        *zap.Logger

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// New creates an Auditor.
func New(st store.Store, ledger bank.Ledger, escrowAccount string, logger *zap.Logger) *Auditor {
	return &Auditor{
		store:         st,
		ledger:        ledger,
		escrowAccount: escrowAccount,
		logger:        logger,
		stopCh:        make(chan struct{}),
	}
}

// Audit computes the escrow obligations from stored state and compares them
// against the ledger's escrow balance.
func (a *Auditor) Audit(ctx context.Context) (*Report, error) {
	balance, err := a.ledger.BalanceOf(ctx, a.escrowAccount)
	if err != nil {
		return nil, fmt.Errorf("failed to read escrow balance: %w", err)
	}

	obligations := decimal.Zero

	listings, err := a.store.ListListings(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	for _, l := range listings {
		obligations = obligations.Add(l.Deposit)
	}

	// An open challenge holds the challenger's stake on top of the listing
	// deposit counted above; a resolved one may still owe its voters.
	challenges, err := a.store.ListUnsettledChallenges(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled challenges: %w", err)
	}
	for _, c := range challenges {
		if c.Open() {
			obligations = obligations.Add(c.Stake)
		} else {
			obligations = obligations.Add(c.VoterPoolRemaining)
		}
	}

	report := &Report{
		EscrowBalance: balance,
		Obligations:   obligations,
		Imbalance:     balance.Sub(obligations),
	}

	imbalanceF, _ := report.Imbalance.Float64()
	metrics.EscrowImbalance.Set(imbalanceF)

	if report.Balanced() {
		a.logger.Debug("Escrow audit balanced",
			zap.String("escrow_balance", balance.String()))
	} else {
		a.logger.Error("Escrow audit found imbalance",
			zap.String("escrow_balance", balance.String()),
			zap.String("obligations", obligations.String()),
			zap.String("imbalance", report.Imbalance.String()))
	}

	return report, nil
}

// StartPeriodicAudit starts a background goroutine that audits on an interval.
func (a *Auditor) StartPeriodicAudit(interval time.Duration) {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		a.logger.Info("Started periodic escrow audit", zap.Duration("interval", interval))

		for {
			select {
			case <-ticker.C:
				ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
				if _, err := a.Audit(ctx); err != nil {
					a.logger.Error("Periodic escrow audit failed", zap.Error(err))
				}
				cancel()
			case <-a.stopCh:
				a.logger.Info("Stopping periodic escrow audit")
				return
			}
		}
	}()
}

// Stop stops the periodic audit.
func (a *Auditor) Stop() {
	close(a.stopCh)
	a.wg.Wait()
}
