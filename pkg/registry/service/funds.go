package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/internal/metrics"
	apperrors "github.com/curatelabs/tcr-middleware/pkg/app/errors"
	"github.com/curatelabs/tcr-middleware/pkg/bank"
	"github.com/curatelabs/tcr-middleware/pkg/params"
	"github.com/curatelabs/tcr-middleware/pkg/registry"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store"
)

// lockedListing loads a listing, verifies ownership and rejects the
// operation while a challenge is open. Caller holds the service mutex.
func (s *registryService) lockedListing(ctx context.Context, listingID, owner string) (*registry.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return nil, apperrors.ResourceNotFoundError(ErrNoSuchListing, "listing has never been applied for")
		}
		return nil, apperrors.GeneralError(err)
	}
	if listing.Owner != owner {
		return nil, apperrors.ForbiddenError(ErrNotOwner, "caller does not own the listing")
	}
	if listing.ChallengeID != "" {
		ch, err := s.store.GetChallenge(ctx, listing.ChallengeID)
		if err != nil {
			return nil, apperrors.GeneralError(err)
		}
		if ch.Open() {
			return nil, apperrors.ConflictError(ErrChallengeInProgress, "listing is under challenge")
		}
	}
	return listing, nil
}

func (s *registryService) Deposit(ctx context.Context, listingID, owner string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.BadRequestError(nil, "deposit amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.lockedListing(ctx, listingID, owner)
	if err != nil {
		return err
	}

	if err := s.ledger.TransferIn(ctx, owner, amount); err != nil {
		if errors.Is(err, bank.ErrTransferFailed) {
			return apperrors.PaymentRequiredError(err, "could not escrow additional deposit")
		}
		return apperrors.GeneralError(err)
	}

	listing.Deposit = listing.Deposit.Add(amount)
	if err := s.store.PutListing(ctx, listing); err != nil {
		s.refund(ctx, owner, amount, "deposit store failed")
		return apperrors.GeneralError(err)
	}

	s.logger.Info("Listing deposit increased",
		zap.String("listing_id", listingID),
		zap.String("amount", amount.String()),
		zap.String("deposit", listing.Deposit.String()))
	return nil
}

func (s *registryService) Withdraw(ctx context.Context, listingID, owner string, amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperrors.BadRequestError(nil, "withdrawal amount must be positive")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.lockedListing(ctx, listingID, owner)
	if err != nil {
		return err
	}

	minDeposit, err := s.params.Get(ctx, params.MinDeposit)
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("read minDeposit: %w", err))
	}

	remaining := listing.Deposit.Sub(amount)
	if remaining.LessThan(minDeposit) {
		return apperrors.BadRequestError(ErrInsufficientStake,
			fmt.Sprintf("withdrawal would leave deposit %s below the required minimum %s", remaining, minDeposit))
	}

	if err := s.ledger.TransferOut(ctx, owner, amount); err != nil {
		return apperrors.GeneralError(err)
	}

	listing.Deposit = remaining
	if err := s.store.PutListing(ctx, listing); err != nil {
		return apperrors.GeneralError(err)
	}

	s.logger.Info("Listing deposit withdrawn",
		zap.String("listing_id", listingID),
		zap.String("amount", amount.String()),
		zap.String("deposit", listing.Deposit.String()))
	return nil
}

func (s *registryService) Exit(ctx context.Context, listingID, owner string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.lockedListing(ctx, listingID, owner)
	if err != nil {
		return err
	}
	if !listing.Whitelisted {
		return apperrors.ConflictError(ErrNotWhitelisted, "only whitelisted listings can exit")
	}

	deposit := listing.Deposit
	if deposit.IsPositive() {
		if err := s.ledger.TransferOut(ctx, owner, deposit); err != nil {
			return apperrors.GeneralError(err)
		}
	}

	listing.Whitelisted = false
	listing.Deposit = decimal.Zero
	if err := s.store.PutListing(ctx, listing); err != nil {
		return apperrors.GeneralError(err)
	}

	metrics.WhitelistedListings.Dec()
	s.logger.Info("Listing exited the registry",
		zap.String("listing_id", listingID),
		zap.String("returned_deposit", deposit.String()))
	return nil
}
