package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// MarketStore is an in-memory implementation of storage.MarketStore.
type MarketStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey]*domain.Market // keyed by address
}

// NewMarketStore creates a new in-memory market store.
func NewMarketStore() *MarketStore {
	return &MarketStore{
		data: make(map[domain.Pubkey]*domain.Market),
	}
}

// Insert adds a new market. Returns ErrDuplicateKey if the address exists.
func (s *MarketStore) Insert(_ context.Context, m *domain.Market) error {
	if err := validateMarket(m); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[m.Address]; exists {
		return storage.ErrDuplicateKey
	}

	// Store a copy to prevent external mutation
	marketCopy := *m
	s.data[m.Address] = &marketCopy
	return nil
}

// Update overwrites the mutable fields of an existing market.
func (s *MarketStore) Update(_ context.Context, m *domain.Market) error {
	if m == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[m.Address]
	if !exists {
		return storage.ErrNotFound
	}

	updated := *existing
	applyMarketUpdate(&updated, m)
	s.data[m.Address] = &updated
	return nil
}

// GetByAddress retrieves a market by its address. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.Market, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	// Return a copy
	marketCopy := *m
	return &marketCopy, nil
}

// GetByCreator retrieves all markets created by creator.
func (s *MarketStore) GetByCreator(_ context.Context, creator domain.Pubkey) ([]*domain.Market, error) {
	return s.filter(func(m *domain.Market) bool { return m.Creator == creator }), nil
}

// GetAll retrieves all markets.
func (s *MarketStore) GetAll(_ context.Context) ([]*domain.Market, error) {
	return s.filter(func(*domain.Market) bool { return true }), nil
}

func (s *MarketStore) filter(keep func(*domain.Market) bool) []*domain.Market {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Market
	for _, m := range s.data {
		if keep(m) {
			marketCopy := *m
			result = append(result, &marketCopy)
		}
	}

	sortMarkets(result)
	return result
}

func validateMarket(m *domain.Market) error {
	if m == nil || m.Name == "" || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	return nil
}

// applyMarketUpdate copies the fields that may change after creation.
func applyMarketUpdate(dst, src *domain.Market) {
	dst.YesAmount = src.YesAmount
	dst.NoAmount = src.NoAmount
	dst.Settled = src.Settled
	dst.Outcome = src.Outcome
}

// sortMarkets orders by created_at ASC, name ASC.
func sortMarkets(markets []*domain.Market) {
	sort.Slice(markets, func(i, j int) bool {
		if markets[i].CreatedAt != markets[j].CreatedAt {
			return markets[i].CreatedAt < markets[j].CreatedAt
		}
		return markets[i].Name < markets[j].Name
	})
}

// sortBets orders by placed_at ASC, address ASC.
func sortBets(bets []*domain.Bet) {
	sort.Slice(bets, func(i, j int) bool {
		if bets[i].PlacedAt != bets[j].PlacedAt {
			return bets[i].PlacedAt < bets[j].PlacedAt
		}
		return bytes.Compare(bets[i].Address[:], bets[j].Address[:]) < 0
	})
}

// Verify interface compliance at compile time.
var _ storage.MarketStore = (*MarketStore)(nil)
