// Package service implements the listing lifecycle of the token-curated
// registry: apply, challenge, resolution and reward settlement.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/curatelabs/tcr-middleware/internal/metrics"
	apperrors "github.com/curatelabs/tcr-middleware/pkg/app/errors"
	"github.com/curatelabs/tcr-middleware/pkg/bank"
	"github.com/curatelabs/tcr-middleware/pkg/clock"
	"github.com/curatelabs/tcr-middleware/pkg/params"
	"github.com/curatelabs/tcr-middleware/pkg/registry"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store"
	"github.com/curatelabs/tcr-middleware/pkg/voting"
)

var (
	ErrNoSuchListing        = errors.New("listing has never been applied for")
	ErrAlreadyExists        = errors.New("listing already exists")
	ErrInsufficientStake    = errors.New("deposit below required minimum")
	ErrChallengeInProgress  = errors.New("challenge already in progress")
	ErrNoSuchChallenge      = errors.New("no such challenge")
	ErrNotOwner             = errors.New("caller does not own the listing")
	ErrNotWhitelisted       = errors.New("listing is not whitelisted")
	ErrChallengeNotResolved = errors.New("challenge is not resolved yet")
	ErrNoVoterReward        = errors.New("voter has no reward for this challenge")
	ErrRewardAlreadyClaimed = errors.New("voter reward already claimed")
)

// Registry defines the curated-registry business logic.
type Registry interface {
	// Apply stakes a deposit on a new listing and opens its challenge
	// window.
	Apply(ctx context.Context, name string, deposit decimal.Decimal, applicant string) (*registry.Listing, error)

	// Challenge stakes against a listing and opens a commit-reveal poll.
	// Returns the new challenge ID.
	Challenge(ctx context.Context, listingID, challenger string) (string, error)

	// UpdateStatus advances a listing past any elapsed timing gate:
	// whitelists an unchallenged listing whose application window passed,
	// or resolves an open challenge whose reveal stage ended. Safe to call
	// any number of times; each challenge resolves at most once.
	UpdateStatus(ctx context.Context, listingID string) error

	// IsWhitelisted reports whether the listing is currently in the
	// registry. Unknown listings are simply not whitelisted.
	IsWhitelisted(ctx context.Context, listingID string) (bool, error)

	// DetermineReward returns the winner's share of a challenge's reward
	// pool. Read-only: before resolution it is a dry run against the
	// revealed tally so far.
	DetermineReward(ctx context.Context, challengeID string) (decimal.Decimal, error)

	// ClaimVoterReward pays a winning-side voter their pro-rata share of a
	// resolved challenge's voter pool, once.
	ClaimVoterReward(ctx context.Context, challengeID, voter string) (decimal.Decimal, error)

	// Deposit tops up the stake backing a listing.
	Deposit(ctx context.Context, listingID, owner string, amount decimal.Decimal) error

	// Withdraw releases surplus stake above the required minimum.
	Withdraw(ctx context.Context, listingID, owner string, amount decimal.Decimal) error

	// Exit removes a whitelisted, unchallenged listing from the registry
	// and returns its full deposit.
	Exit(ctx context.Context, listingID, owner string) error

	// GetListing returns a listing by ID.
	GetListing(ctx context.Context, listingID string) (*registry.Listing, error)
}

type registryService struct {
	store  store.Store
	ledger bank.Ledger
	polls  voting.Poller
	params params.Store
	clock  clock.Clock
	logger *zap.Logger

	// mu serializes all state transitions. Escrow movement and the matching
	// store mutation must be observed as one unit by every caller.
	mu sync.Mutex
}

// New creates the registry service.
func New(
	st store.Store,
	ledger bank.Ledger,
	polls voting.Poller,
	paramStore params.Store,
	clk clock.Clock,
	logger *zap.Logger,
) Registry {
	return &registryService{
		store:  st,
		ledger: ledger,
		polls:  polls,
		params: paramStore,
		clock:  clk,
		logger: logger,
	}
}

func (s *registryService) Apply(ctx context.Context, name string, deposit decimal.Decimal, applicant string) (*registry.Listing, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	minDeposit, err := s.params.Get(ctx, params.MinDeposit)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("read minDeposit: %w", err))
	}
	if deposit.LessThan(minDeposit) {
		return nil, apperrors.BadRequestError(ErrInsufficientStake,
			fmt.Sprintf("deposit %s is below the required minimum %s", deposit, minDeposit))
	}

	applicationPeriod, err := params.Duration(ctx, s.params, params.ApplicationPeriod)
	if err != nil {
		return nil, apperrors.GeneralError(fmt.Errorf("read applicationPeriod: %w", err))
	}

	id := registry.ListingID(name)
	now := s.clock.Now()

	existing, err := s.store.GetListing(ctx, id)
	if err != nil && !errors.Is(err, store.ErrListingNotFound) {
		return nil, apperrors.GeneralError(err)
	}
	if existing != nil {
		if blocked, reason := s.applicationBlocked(ctx, existing); blocked {
			return nil, apperrors.ConflictError(ErrAlreadyExists, reason)
		}
		// A dead listing may still hold an expired, unclaimed deposit.
		// Return it to the previous owner before the slot is reused. The
		// record must show zero before the refund leaves escrow, or a later
		// application over the same slot would replay the refund.
		if existing.Deposit.IsPositive() {
			stale := existing.Deposit
			existing.Deposit = decimal.Zero
			if err := s.store.PutListing(ctx, existing); err != nil {
				return nil, apperrors.GeneralError(err)
			}
			if err := s.ledger.TransferOut(ctx, existing.Owner, stale); err != nil {
				existing.Deposit = stale
				if restoreErr := s.store.PutListing(ctx, existing); restoreErr != nil {
					s.logger.Error("Failed to restore stale deposit after refund error",
						zap.String("listing_id", id),
						zap.String("owner", existing.Owner),
						zap.Error(restoreErr))
				}
				return nil, apperrors.GeneralError(fmt.Errorf("refund stale deposit: %w", err))
			}
		}
	}

	if err := s.ledger.TransferIn(ctx, applicant, deposit); err != nil {
		if errors.Is(err, bank.ErrTransferFailed) {
			return nil, apperrors.PaymentRequiredError(err, "could not escrow application deposit")
		}
		return nil, apperrors.GeneralError(err)
	}

	listing := &registry.Listing{
		ID:                id,
		Name:              name,
		Owner:             applicant,
		Deposit:           deposit,
		ApplicationExpiry: now.Add(applicationPeriod),
		Whitelisted:       false,
	}
	if err := s.store.PutListing(ctx, listing); err != nil {
		// Undo the escrow so a failed apply leaves state untouched.
		if refundErr := s.ledger.TransferOut(ctx, applicant, deposit); refundErr != nil {
			s.logger.Error("Failed to refund deposit after store error",
				zap.String("listing_id", id),
				zap.String("applicant", applicant),
				zap.Error(refundErr))
		}
		return nil, apperrors.GeneralError(err)
	}

	metrics.ApplicationsTotal.Inc()
	s.logger.Info("Listing application accepted",
		zap.String("listing_id", id),
		zap.String("name", name),
		zap.String("applicant", applicant),
		zap.String("deposit", deposit.String()),
		zap.Time("application_expiry", listing.ApplicationExpiry))

	return listing, nil
}

// applicationBlocked reports whether an existing listing record still
// occupies its slot: whitelisted, inside the application window, or under an
// open challenge.
func (s *registryService) applicationBlocked(ctx context.Context, listing *registry.Listing) (bool, string) {
	if listing.Whitelisted {
		return true, "listing is already whitelisted"
	}
	if s.clock.Now().Before(listing.ApplicationExpiry) {
		return true, "listing has a pending application"
	}
	if listing.ChallengeID != "" {
		ch, err := s.store.GetChallenge(ctx, listing.ChallengeID)
		if err == nil && ch.Open() {
			return true, "listing is under challenge"
		}
	}
	return false, ""
}

func (s *registryService) Challenge(ctx context.Context, listingID, challenger string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return "", apperrors.ResourceNotFoundError(ErrNoSuchListing, "listing has never been applied for")
		}
		return "", apperrors.GeneralError(err)
	}

	if listing.ChallengeID != "" {
		prev, err := s.store.GetChallenge(ctx, listing.ChallengeID)
		if err != nil {
			return "", apperrors.GeneralError(err)
		}
		if prev.Open() {
			return "", apperrors.ConflictError(ErrChallengeInProgress, "listing is already under challenge")
		}
	}

	commitLen, err := params.Duration(ctx, s.params, params.CommitStageLength)
	if err != nil {
		return "", apperrors.GeneralError(fmt.Errorf("read commitStageLength: %w", err))
	}
	revealLen, err := params.Duration(ctx, s.params, params.RevealStageLength)
	if err != nil {
		return "", apperrors.GeneralError(fmt.Errorf("read revealStageLength: %w", err))
	}

	stake := listing.Deposit
	if err := s.ledger.TransferIn(ctx, challenger, stake); err != nil {
		if errors.Is(err, bank.ErrTransferFailed) {
			return "", apperrors.PaymentRequiredError(err, "could not escrow challenge stake")
		}
		return "", apperrors.GeneralError(err)
	}

	pollID, err := s.polls.StartPoll(ctx, commitLen, revealLen)
	if err != nil {
		s.refund(ctx, challenger, stake, "poll start failed")
		return "", &apperrors.ServiceError{
			Category: apperrors.CategoryDependencyFailure,
			Message:  "could not start challenge poll",
			Err:      err,
		}
	}

	challenge := &registry.Challenge{
		ID:         uuid.NewString(),
		ListingID:  listing.ID,
		Challenger: challenger,
		Stake:      stake,
		RewardPool: stake.Add(listing.Deposit),
		PollID:     pollID,
	}
	if err := s.store.PutChallenge(ctx, challenge); err != nil {
		s.refund(ctx, challenger, stake, "challenge store failed")
		return "", apperrors.GeneralError(err)
	}

	listing.ChallengeID = challenge.ID
	if err := s.store.PutListing(ctx, listing); err != nil {
		// Tombstone the challenge record so it cannot be resolved, then undo
		// the escrow.
		challenge.Resolved = true
		_ = s.store.PutChallenge(ctx, challenge)
		s.refund(ctx, challenger, stake, "listing store failed")
		return "", apperrors.GeneralError(err)
	}

	metrics.ChallengesTotal.Inc()
	metrics.OpenChallenges.Inc()
	s.logger.Info("Challenge opened",
		zap.String("listing_id", listing.ID),
		zap.String("challenge_id", challenge.ID),
		zap.String("challenger", challenger),
		zap.String("stake", stake.String()),
		zap.String("poll_id", pollID))

	return challenge.ID, nil
}

func (s *registryService) UpdateStatus(ctx context.Context, listingID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return apperrors.ResourceNotFoundError(ErrNoSuchListing, "listing has never been applied for")
		}
		return apperrors.GeneralError(err)
	}

	now := s.clock.Now()

	if listing.ChallengeID != "" {
		challenge, err := s.store.GetChallenge(ctx, listing.ChallengeID)
		if err != nil {
			return apperrors.GeneralError(err)
		}
		if challenge.Open() {
			revealEnd, err := s.polls.RevealEndTime(ctx, challenge.PollID)
			if err != nil {
				return apperrors.GeneralError(err)
			}
			if now.Before(revealEnd) {
				// Timing gate not elapsed: silent no-op, never an error.
				return nil
			}
			if err := s.resolveChallenge(ctx, listing, challenge); err != nil {
				return err
			}
			return nil
		}
		if challenge.WinnerIsChallenger {
			// A defeated listing stays delisted until a fresh application.
			return nil
		}
	}

	if !listing.Whitelisted && !now.Before(listing.ApplicationExpiry) {
		listing.Whitelisted = true
		if err := s.store.PutListing(ctx, listing); err != nil {
			return apperrors.GeneralError(err)
		}
		metrics.WhitelistedListings.Inc()
		s.logger.Info("Listing whitelisted after unchallenged application",
			zap.String("listing_id", listing.ID))
	}

	return nil
}

// resolveChallenge settles an open challenge whose reveal stage has ended.
// Caller holds the service mutex and has verified the timing gate; the
// Resolved flag on the stored challenge guarantees at most one payout.
func (s *registryService) resolveChallenge(ctx context.Context, listing *registry.Listing, challenge *registry.Challenge) error {
	passed, err := s.polls.IsPassed(ctx, challenge.PollID)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	winningTokens, err := s.polls.WinningTokens(ctx, challenge.PollID)
	if err != nil {
		return apperrors.GeneralError(err)
	}
	dispensationPct, err := s.params.Get(ctx, params.DispensationPct)
	if err != nil {
		return apperrors.GeneralError(fmt.Errorf("read dispensationPct: %w", err))
	}

	// With no revealed votes there is no quorum requirement: the challenger
	// wins outright and no voter dispensation is reserved.
	listingSurvives := passed && winningTokens.IsPositive()

	voterPool := decimal.Zero
	if winningTokens.IsPositive() {
		voterPool = challenge.RewardPool.Mul(dispensationPct).Div(decimal.NewFromInt(100))
	}
	winnerShare := challenge.RewardPool.Sub(voterPool)

	wasWhitelisted := listing.Whitelisted
	prevListing := *listing
	prevChallenge := *challenge

	payee := challenge.Challenger
	payout := winnerShare
	if listingSurvives {
		// The listing's deposit stays escrowed backing the listing; only the
		// surplus of the winner's share is paid out to the owner.
		payee = listing.Owner
		payout = winnerShare.Sub(listing.Deposit)
		listing.Whitelisted = true
		challenge.WinnerIsChallenger = false
	} else {
		listing.Whitelisted = false
		listing.Deposit = decimal.Zero
		challenge.WinnerIsChallenger = true
	}

	challenge.Resolved = true
	challenge.VoterPool = voterPool
	challenge.VoterPoolRemaining = voterPool
	challenge.TotalWinningTokens = winningTokens

	// The resolved flag must be durable before the payout leaves escrow:
	// paying first and then failing to persist would resolve the same
	// challenge again on the next pass, with a second payout.
	if err := s.store.PutChallenge(ctx, challenge); err != nil {
		return apperrors.GeneralError(err)
	}
	if err := s.store.PutListing(ctx, listing); err != nil {
		s.revertResolution(ctx, &prevListing, &prevChallenge)
		return apperrors.GeneralError(err)
	}
	if payout.IsPositive() {
		if err := s.ledger.TransferOut(ctx, payee, payout); err != nil {
			// Reopen the challenge so a later pass retries the payout.
			s.revertResolution(ctx, &prevListing, &prevChallenge)
			return apperrors.GeneralError(fmt.Errorf("pay challenge winner: %w", err))
		}
	}

	winner := "challenger"
	if listingSurvives {
		winner = "listing"
	}
	metrics.OpenChallenges.Dec()
	metrics.ResolutionsTotal.WithLabelValues(winner).Inc()
	amountF, _ := winnerShare.Float64()
	metrics.RewardAmount.WithLabelValues(winner).Observe(amountF)
	if listingSurvives && !wasWhitelisted {
		metrics.WhitelistedListings.Inc()
	}
	if !listingSurvives && wasWhitelisted {
		metrics.WhitelistedListings.Dec()
	}

	s.logger.Info("Challenge resolved",
		zap.String("listing_id", listing.ID),
		zap.String("challenge_id", challenge.ID),
		zap.String("winner", winner),
		zap.String("winner_share", winnerShare.String()),
		zap.String("voter_pool", voterPool.String()),
		zap.String("winning_tokens", winningTokens.String()))

	return nil
}

func (s *registryService) IsWhitelisted(ctx context.Context, listingID string) (bool, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return false, nil
		}
		return false, apperrors.GeneralError(err)
	}
	return listing.Whitelisted, nil
}

func (s *registryService) DetermineReward(ctx context.Context, challengeID string) (decimal.Decimal, error) {
	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrChallengeNotFound) {
			return decimal.Zero, apperrors.ResourceNotFoundError(ErrNoSuchChallenge, "no such challenge")
		}
		return decimal.Zero, apperrors.GeneralError(err)
	}

	if challenge.Resolved {
		return challenge.RewardPool.Sub(challenge.VoterPool), nil
	}

	// Dry run against the tally revealed so far.
	winningTokens, err := s.polls.WinningTokens(ctx, challenge.PollID)
	if err != nil {
		return decimal.Zero, apperrors.GeneralError(err)
	}
	if winningTokens.IsZero() {
		return challenge.RewardPool, nil
	}
	dispensationPct, err := s.params.Get(ctx, params.DispensationPct)
	if err != nil {
		return decimal.Zero, apperrors.GeneralError(err)
	}
	voterPool := challenge.RewardPool.Mul(dispensationPct).Div(decimal.NewFromInt(100))
	return challenge.RewardPool.Sub(voterPool), nil
}

func (s *registryService) GetListing(ctx context.Context, listingID string) (*registry.Listing, error) {
	listing, err := s.store.GetListing(ctx, listingID)
	if err != nil {
		if errors.Is(err, store.ErrListingNotFound) {
			return nil, apperrors.ResourceNotFoundError(ErrNoSuchListing, "listing has never been applied for")
		}
		return nil, apperrors.GeneralError(err)
	}
	return listing, nil
}

// refund returns an escrowed stake after a failed multi-step operation.
// A refund failure means escrow and bookkeeping have diverged, which the
// auditor will flag; it is logged but cannot be handled here.
// revertResolution restores the pre-resolution listing and challenge records
// after a partial resolveChallenge failure. No funds have moved at the points
// it is called from; failing to restore leaves the winner's share stuck in
// escrow, which the auditor surfaces.
func (s *registryService) revertResolution(ctx context.Context, listing *registry.Listing, challenge *registry.Challenge) {
	if err := s.store.PutChallenge(ctx, challenge); err != nil {
		s.logger.Error("Failed to reopen challenge after resolution error",
			zap.String("challenge_id", challenge.ID),
			zap.Error(err))
	}
	if err := s.store.PutListing(ctx, listing); err != nil {
		s.logger.Error("Failed to restore listing after resolution error",
			zap.String("listing_id", listing.ID),
			zap.Error(err))
	}
}

func (s *registryService) refund(ctx context.Context, to string, amount decimal.Decimal, reason string) {
	if err := s.ledger.TransferOut(ctx, to, amount); err != nil {
		s.logger.Error("Failed to refund escrowed stake",
			zap.String("account", to),
			zap.String("amount", amount.String()),
			zap.String("reason", reason),
			zap.Error(err))
	}
}
