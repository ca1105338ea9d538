package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	apperrors "github.com/curatelabs/tcr-middleware/pkg/app/errors"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store"
)

func (s *registryService) ClaimVoterReward(ctx context.Context, challengeID, voter string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	challenge, err := s.store.GetChallenge(ctx, challengeID)
	if err != nil {
		if errors.Is(err, store.ErrChallengeNotFound) {
			return decimal.Zero, apperrors.ResourceNotFoundError(ErrNoSuchChallenge, "no such challenge")
		}
		return decimal.Zero, apperrors.GeneralError(err)
	}
	if !challenge.Resolved {
		return decimal.Zero, apperrors.LockedError(ErrChallengeNotResolved, "challenge is not resolved yet")
	}

	voterTokens, err := s.polls.WinningTokensFor(ctx, challenge.PollID, voter)
	if err != nil {
		return decimal.Zero, apperrors.GeneralError(err)
	}
	if !voterTokens.IsPositive() || !challenge.TotalWinningTokens.IsPositive() {
		return decimal.Zero, apperrors.ResourceNotFoundError(ErrNoVoterReward, "voter has no reward for this challenge")
	}

	amount := challenge.VoterPool.Mul(voterTokens).Div(challenge.TotalWinningTokens)
	// Division dust must never overdraw the reserved pool.
	if amount.GreaterThan(challenge.VoterPoolRemaining) {
		amount = challenge.VoterPoolRemaining
	}

	if err := s.store.MarkRewardClaimed(ctx, challengeID, voter); err != nil {
		if errors.Is(err, store.ErrAlreadyClaimed) {
			return decimal.Zero, apperrors.ConflictError(ErrRewardAlreadyClaimed, "voter reward already claimed")
		}
		return decimal.Zero, apperrors.GeneralError(err)
	}

	// The ledger moves last. Both store writes are compensated on failure so
	// the voter can retry the claim instead of losing it to a dead mark.
	prevRemaining := challenge.VoterPoolRemaining
	challenge.VoterPoolRemaining = challenge.VoterPoolRemaining.Sub(amount)
	if err := s.store.PutChallenge(ctx, challenge); err != nil {
		s.clearClaim(ctx, challengeID, voter)
		return decimal.Zero, apperrors.GeneralError(err)
	}

	if err := s.ledger.TransferOut(ctx, voter, amount); err != nil {
		challenge.VoterPoolRemaining = prevRemaining
		if putErr := s.store.PutChallenge(ctx, challenge); putErr != nil {
			s.logger.Error("Failed to restore voter pool after payout error",
				zap.String("challenge_id", challengeID),
				zap.Error(putErr))
		}
		s.clearClaim(ctx, challengeID, voter)
		return decimal.Zero, apperrors.GeneralError(fmt.Errorf("pay voter reward: %w", err))
	}

	s.logger.Info("Voter reward claimed",
		zap.String("challenge_id", challengeID),
		zap.String("voter", voter),
		zap.String("amount", amount.String()))

	return amount, nil
}

func (s *registryService) clearClaim(ctx context.Context, challengeID, voter string) {
	if err := s.store.ClearRewardClaim(ctx, challengeID, voter); err != nil {
		s.logger.Error("Failed to clear reward claim after claim error",
			zap.String("challenge_id", challengeID),
			zap.String("voter", voter),
			zap.Error(err))
	}
}
