package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/curatelabs/tcr-middleware/pkg/registry"
)

// MemoryStore is a map-backed Store for tests and single-process
// deployments. All accessors copy, so callers never share structs with the
// store.
type MemoryStore struct {
	mu         sync.RWMutex
	listings   map[string]registry.Listing
	challenges map[string]registry.Challenge
	claims     map[string]map[string]bool // challengeID -> voter -> claimed
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		listings:   make(map[string]registry.Listing),
		challenges: make(map[string]registry.Challenge),
		claims:     make(map[string]map[string]bool),
	}
}

func (s *MemoryStore) GetListing(_ context.Context, id string) (*registry.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.listings[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrListingNotFound, id)
	}
	return &l, nil
}

func (s *MemoryStore) PutListing(_ context.Context, listing *registry.Listing) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listings[listing.ID] = *listing
	return nil
}

func (s *MemoryStore) ListListings(_ context.Context) ([]*registry.Listing, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registry.Listing, 0, len(s.listings))
	for _, l := range s.listings {
		l := l
		out = append(out, &l)
	}
	return out, nil
}

func (s *MemoryStore) GetChallenge(_ context.Context, id string) (*registry.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.challenges[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrChallengeNotFound, id)
	}
	return &c, nil
}

func (s *MemoryStore) PutChallenge(_ context.Context, challenge *registry.Challenge) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.challenges[challenge.ID] = *challenge
	return nil
}

func (s *MemoryStore) ListOpenChallenges(_ context.Context) ([]*registry.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registry.Challenge, 0)
	for _, c := range s.challenges {
		if !c.Resolved {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) ListUnsettledChallenges(_ context.Context) ([]*registry.Challenge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*registry.Challenge, 0)
	for _, c := range s.challenges {
		if !c.Resolved || c.VoterPoolRemaining.IsPositive() {
			c := c
			out = append(out, &c)
		}
	}
	return out, nil
}

func (s *MemoryStore) MarkRewardClaimed(_ context.Context, challengeID, voter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims[challengeID] == nil {
		s.claims[challengeID] = make(map[string]bool)
	}
	if s.claims[challengeID][voter] {
		return fmt.Errorf("%w: challenge %s voter %s", ErrAlreadyClaimed, challengeID, voter)
	}
	s.claims[challengeID][voter] = true
	return nil
}

func (s *MemoryStore) ClearRewardClaim(_ context.Context, challengeID, voter string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.claims[challengeID] != nil {
		delete(s.claims[challengeID], voter)
	}
	return nil
}
