package memory

import (
	"context"
	"sort"
	"sync"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// ActivityStore is an in-memory implementation of storage.ActivityStore.
type ActivityStore struct {
	mu     sync.RWMutex
	events []*domain.LedgerEvent
	ids    map[string]struct{}
}

// NewActivityStore creates a new in-memory activity store.
func NewActivityStore() *ActivityStore {
	return &ActivityStore{
		ids: make(map[string]struct{}),
	}
}

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
func (s *ActivityStore) InsertBulk(_ context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Track ids in this batch to detect intra-batch duplicates
	batch := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Kind.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := s.ids[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		batch[e.EventID] = struct{}{}
	}

	for _, e := range events {
		eventCopy := *e
		s.events = append(s.events, &eventCopy)
		s.ids[e.EventID] = struct{}{}
	}
	return nil
}

// GetByMarket retrieves all events for a market, ordered by timestamp ASC.
func (s *ActivityStore) GetByMarket(_ context.Context, market domain.Pubkey) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool { return e.Market == market }), nil
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *ActivityStore) GetByTimeRange(_ context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	return s.filter(func(e *domain.LedgerEvent) bool {
		return e.Timestamp >= start && e.Timestamp <= end
	}), nil
}

func (s *ActivityStore) filter(keep func(*domain.LedgerEvent) bool) []*domain.LedgerEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.LedgerEvent
	for _, e := range s.events {
		if keep(e) {
			eventCopy := *e
			result = append(result, &eventCopy)
		}
	}

	// Stable keeps insertion order within a second
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].Timestamp < result[j].Timestamp
	})
	return result
}

// Verify interface compliance at compile time.
var _ storage.ActivityStore = (*ActivityStore)(nil)
