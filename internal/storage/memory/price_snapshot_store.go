package memory

import (
	"context"
	"sort"
	"sync"

	"megabridge/internal/domain"
	"megabridge/internal/storage"
)

type snapshotKey struct {
	symbol      domain.Symbol
	fetchedAtMs int64
}

// PriceSnapshotStore is an in-memory implementation of storage.PriceSnapshotStore.
type PriceSnapshotStore struct {
	mu   sync.RWMutex
	data map[snapshotKey]*domain.PriceSnapshot
}

// NewPriceSnapshotStore creates a new in-memory snapshot store.
func NewPriceSnapshotStore() *PriceSnapshotStore {
	return &PriceSnapshotStore{
		data: make(map[snapshotKey]*domain.PriceSnapshot),
	}
}

// InsertBulk adds multiple snapshots atomically. Fails entire batch on any duplicate.
func (s *PriceSnapshotStore) InsertBulk(_ context.Context, snapshots []*domain.PriceSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check all keys first (atomic batch)
	batch := make(map[snapshotKey]struct{}, len(snapshots))
	for _, p := range snapshots {
		if p == nil || p.Symbol == "" {
			return storage.ErrInvalidInput
		}
		k := snapshotKey{p.Symbol, p.FetchedAtMs}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, dup := batch[k]; dup {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, p := range snapshots {
		c := *p
		s.data[snapshotKey{p.Symbol, p.FetchedAtMs}] = &c
	}
	return nil
}

// GetBySymbol retrieves snapshots for a symbol within [start, end] (inclusive).
func (s *PriceSnapshotStore) GetBySymbol(_ context.Context, symbol domain.Symbol, start, end int64) ([]*domain.PriceSnapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := []*domain.PriceSnapshot{}
	for k, p := range s.data {
		if k.symbol == symbol && k.fetchedAtMs >= start && k.fetchedAtMs <= end {
			c := *p
			result = append(result, &c)
		}
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].FetchedAtMs < result[j].FetchedAtMs
	})

	return result, nil
}

// Verify interface compliance at compile time.
var _ storage.PriceSnapshotStore = (*PriceSnapshotStore)(nil)
