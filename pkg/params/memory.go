package params

import (
	"context"
	"fmt"
	"sync"

	"github.com/shopspring/decimal"
)

// MemoryStore is a map-backed parameter store. Values are fixed at
// construction except through Set, which exists for tests and for operator
// tooling.
type MemoryStore struct {
	mu     sync.RWMutex
	values map[string]decimal.Decimal
}

// NewMemoryStore creates a store seeded with the given values.
func NewMemoryStore(values map[string]decimal.Decimal) *MemoryStore {
	m := make(map[string]decimal.Decimal, len(values))
	for k, v := range values {
		m[k] = v
	}
	return &MemoryStore{values: m}
}

// Get returns the value for name.
func (s *MemoryStore) Get(_ context.Context, name string) (decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.values[name]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrUnknownParam, name)
	}
	return v, nil
}

// Set stores a value for name, replacing any previous value.
func (s *MemoryStore) Set(name string, value decimal.Decimal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[name] = value
}
