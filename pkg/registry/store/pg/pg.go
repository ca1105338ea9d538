// Package pg implements the registry store on PostgreSQL via bun.
package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/curatelabs/tcr-middleware/pkg/registry"
	"github.com/curatelabs/tcr-middleware/pkg/registry/store"
)

type pgStore struct {
	db *bun.DB
}

// NewStore creates a new postgres implementation of the registry store
func NewStore(db *bun.DB) *pgStore {
	return &pgStore{db: db}
}

func (s *pgStore) GetListing(ctx context.Context, id string) (*registry.Listing, error) {
	dao := new(ListingDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrListingNotFound
		}
		return nil, fmt.Errorf("failed to get listing: %w", err)
	}
	return toListing(dao)
}

func (s *pgStore) PutListing(ctx context.Context, listing *registry.Listing) error {
	dao := toListingDao(listing)

	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("owner = EXCLUDED.owner").
		Set("deposit = EXCLUDED.deposit").
		Set("application_expiry = EXCLUDED.application_expiry").
		Set("whitelisted = EXCLUDED.whitelisted").
		Set("challenge_id = EXCLUDED.challenge_id").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put listing: %w", err)
	}
	return nil
}

func (s *pgStore) ListListings(ctx context.Context) ([]*registry.Listing, error) {
	var daos []ListingDao
	err := s.db.NewSelect().Model(&daos).Order("created_at ASC").Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list listings: %w", err)
	}
	listings := make([]*registry.Listing, len(daos))
	for i := range daos {
		if listings[i], err = toListing(&daos[i]); err != nil {
			return nil, fmt.Errorf("failed to decode listing %s: %w", daos[i].ID, err)
		}
	}
	return listings, nil
}

func (s *pgStore) GetChallenge(ctx context.Context, id string) (*registry.Challenge, error) {
	dao := new(ChallengeDao)
	err := s.db.NewSelect().
		Model(dao).
		Where("id = ?", id).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrChallengeNotFound
		}
		return nil, fmt.Errorf("failed to get challenge: %w", err)
	}
	return toChallenge(dao)
}

func (s *pgStore) PutChallenge(ctx context.Context, challenge *registry.Challenge) error {
	dao := toChallengeDao(challenge)

	_, err := s.db.NewInsert().
		Model(dao).
		On("CONFLICT (id) DO UPDATE").
		Set("resolved = EXCLUDED.resolved").
		Set("winner_is_challenger = EXCLUDED.winner_is_challenger").
		Set("voter_pool = EXCLUDED.voter_pool").
		Set("voter_pool_remaining = EXCLUDED.voter_pool_remaining").
		Set("total_winning_tokens = EXCLUDED.total_winning_tokens").
		Set("updated_at = NOW()").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to put challenge: %w", err)
	}
	return nil
}

func (s *pgStore) ListOpenChallenges(ctx context.Context) ([]*registry.Challenge, error) {
	var daos []ChallengeDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("resolved = FALSE").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list open challenges: %w", err)
	}
	challenges := make([]*registry.Challenge, len(daos))
	for i := range daos {
		if challenges[i], err = toChallenge(&daos[i]); err != nil {
			return nil, fmt.Errorf("failed to decode challenge %s: %w", daos[i].ID, err)
		}
	}
	return challenges, nil
}

func (s *pgStore) ListUnsettledChallenges(ctx context.Context) ([]*registry.Challenge, error) {
	var daos []ChallengeDao
	err := s.db.NewSelect().
		Model(&daos).
		Where("resolved = FALSE OR voter_pool_remaining > 0").
		Order("created_at ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list unsettled challenges: %w", err)
	}
	challenges := make([]*registry.Challenge, len(daos))
	for i := range daos {
		if challenges[i], err = toChallenge(&daos[i]); err != nil {
			return nil, fmt.Errorf("failed to decode challenge %s: %w", daos[i].ID, err)
		}
	}
	return challenges, nil
}

func (s *pgStore) MarkRewardClaimed(ctx context.Context, challengeID, voter string) error {
	res, err := s.db.NewInsert().
		Model(&RewardClaimDao{ChallengeID: challengeID, Voter: voter}).
		On("CONFLICT (challenge_id, voter) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to mark reward claimed: %w", err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read rows affected: %w", err)
	}
	if rows == 0 {
		return store.ErrAlreadyClaimed
	}
	return nil
}

func (s *pgStore) ClearRewardClaim(ctx context.Context, challengeID, voter string) error {
	_, err := s.db.NewDelete().
		Model((*RewardClaimDao)(nil)).
		Where("challenge_id = ?", challengeID).
		Where("voter = ?", voter).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to clear reward claim: %w", err)
	}
	return nil
}
