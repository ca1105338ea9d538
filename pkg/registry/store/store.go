// Package store defines persistence for listings, challenges and voter
// reward claims.
package store

import (
	"context"
	"errors"

	"github.com/curatelabs/tcr-middleware/pkg/registry"
)

var (
	// ErrListingNotFound is returned when no listing exists for an ID.
	ErrListingNotFound = errors.New("listing not found")
	// ErrChallengeNotFound is returned when no challenge exists for an ID.
	ErrChallengeNotFound = errors.New("challenge not found")
	// ErrAlreadyClaimed is returned when a voter claims a reward twice.
	ErrAlreadyClaimed = errors.New("reward already claimed")
)

// Store is the persistence interface for registry state. PutListing and
// PutChallenge upsert by ID.
type Store interface {
	GetListing(ctx context.Context, id string) (*registry.Listing, error)
	PutListing(ctx context.Context, listing *registry.Listing) error
	ListListings(ctx context.Context) ([]*registry.Listing, error)

	GetChallenge(ctx context.Context, id string) (*registry.Challenge, error)
	PutChallenge(ctx context.Context, challenge *registry.Challenge) error
	ListOpenChallenges(ctx context.Context) ([]*registry.Challenge, error)

	// ListUnsettledChallenges returns challenges that still hold escrowed
	// funds: open ones, and resolved ones with an unclaimed voter pool.
	ListUnsettledChallenges(ctx context.Context) ([]*registry.Challenge, error)

	// MarkRewardClaimed records that voter claimed their share of a resolved
	// challenge's voter pool. Returns ErrAlreadyClaimed on a repeat claim.
	MarkRewardClaimed(ctx context.Context, challengeID, voter string) error

	// ClearRewardClaim removes a claim record so a payout that could not be
	// completed can be retried. Clearing an absent claim is a no-op.
	ClearRewardClaim(ctx context.Context, challengeID, voter string) error
}
