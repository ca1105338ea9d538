package store

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/curatelabs/tcr-middleware/pkg/registry"
)

func TestMemoryStoreListingCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	l := &registry.Listing{
		ID:      registry.ListingID("example.com"),
		Name:    "example.com",
		Owner:   "alice",
		Deposit: decimal.NewFromInt(50),
	}
	if err := s.PutListing(ctx, l); err != nil {
		t.Fatalf("PutListing() failed: %v", err)
	}

	got, err := s.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetListing() failed: %v", err)
	}

	// Mutating the returned struct must not leak into the store.
	got.Whitelisted = true
	again, err := s.GetListing(ctx, l.ID)
	if err != nil {
		t.Fatalf("GetListing() failed: %v", err)
	}
	if again.Whitelisted {
		t.Fatal("store state mutated through a returned listing")
	}
}

func TestMemoryStoreListingNotFound(t *testing.T) {
	s := NewMemoryStore()
	_, err := s.GetListing(context.Background(), "0xdeadbeef")
	if !errors.Is(err, ErrListingNotFound) {
		t.Fatalf("expected ErrListingNotFound, got %v", err)
	}
}

func TestMemoryStoreOpenChallenges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	open := &registry.Challenge{ID: "c1", ListingID: "l1", Stake: decimal.NewFromInt(10)}
	resolved := &registry.Challenge{ID: "c2", ListingID: "l2", Stake: decimal.NewFromInt(10), Resolved: true}
	if err := s.PutChallenge(ctx, open); err != nil {
		t.Fatalf("PutChallenge() failed: %v", err)
	}
	if err := s.PutChallenge(ctx, resolved); err != nil {
		t.Fatalf("PutChallenge() failed: %v", err)
	}

	got, err := s.ListOpenChallenges(ctx)
	if err != nil {
		t.Fatalf("ListOpenChallenges() failed: %v", err)
	}
	if len(got) != 1 || got[0].ID != "c1" {
		t.Fatalf("expected only the open challenge, got %d entries", len(got))
	}

	if _, err := s.GetChallenge(ctx, "missing"); !errors.Is(err, ErrChallengeNotFound) {
		t.Fatalf("expected ErrChallengeNotFound, got %v", err)
	}
}

func TestMemoryStoreUnsettledChallenges(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	open := &registry.Challenge{ID: "c1", Stake: decimal.NewFromInt(10)}
	owing := &registry.Challenge{ID: "c2", Resolved: true, VoterPoolRemaining: decimal.NewFromInt(5)}
	settled := &registry.Challenge{ID: "c3", Resolved: true, VoterPoolRemaining: decimal.Zero}
	for _, c := range []*registry.Challenge{open, owing, settled} {
		if err := s.PutChallenge(ctx, c); err != nil {
			t.Fatalf("PutChallenge() failed: %v", err)
		}
	}

	got, err := s.ListUnsettledChallenges(ctx)
	if err != nil {
		t.Fatalf("ListUnsettledChallenges() failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 unsettled challenges, got %d", len(got))
	}
	for _, c := range got {
		if c.ID == "c3" {
			t.Fatal("settled challenge must not be listed")
		}
	}
}

func TestMemoryStoreMarkRewardClaimed(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.MarkRewardClaimed(ctx, "c1", "dave"); err != nil {
		t.Fatalf("MarkRewardClaimed() failed: %v", err)
	}
	if err := s.MarkRewardClaimed(ctx, "c1", "dave"); !errors.Is(err, ErrAlreadyClaimed) {
		t.Fatalf("expected ErrAlreadyClaimed, got %v", err)
	}
	if err := s.MarkRewardClaimed(ctx, "c1", "erin"); err != nil {
		t.Fatalf("MarkRewardClaimed() for other voter failed: %v", err)
	}
	if err := s.MarkRewardClaimed(ctx, "c2", "dave"); err != nil {
		t.Fatalf("MarkRewardClaimed() for other challenge failed: %v", err)
	}
}

func TestMemoryStoreClearRewardClaim(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	if err := s.MarkRewardClaimed(ctx, "c1", "dave"); err != nil {
		t.Fatalf("MarkRewardClaimed() failed: %v", err)
	}
	if err := s.ClearRewardClaim(ctx, "c1", "dave"); err != nil {
		t.Fatalf("ClearRewardClaim() failed: %v", err)
	}
	// Cleared claims can be marked again.
	if err := s.MarkRewardClaimed(ctx, "c1", "dave"); err != nil {
		t.Fatalf("MarkRewardClaimed() after clear failed: %v", err)
	}
	// Clearing an absent claim is a no-op.
	if err := s.ClearRewardClaim(ctx, "c2", "dave"); err != nil {
		t.Fatalf("ClearRewardClaim() for absent claim failed: %v", err)
	}
}
