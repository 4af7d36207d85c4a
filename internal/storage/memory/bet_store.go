package memory

import (
	"context"
	"sync"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// BetStore is an in-memory implementation of storage.BetStore.
type BetStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey]*domain.Bet // keyed by address
}

// NewBetStore creates a new in-memory bet store.
func NewBetStore() *BetStore {
	return &BetStore{
		data: make(map[domain.Pubkey]*domain.Bet),
	}
}

// Insert adds a new bet. Returns ErrDuplicateKey if the address exists.
func (s *BetStore) Insert(_ context.Context, b *domain.Bet) error {
	if err := validateBet(b); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[b.Address]; exists {
		return storage.ErrDuplicateKey
	}

	betCopy := *b
	s.data[b.Address] = &betCopy
	return nil
}

// Update overwrites the claim fields of an existing bet.
func (s *BetStore) Update(_ context.Context, b *domain.Bet) error {
	if b == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[b.Address]
	if !exists {
		return storage.ErrNotFound
	}

	updated := *existing
	applyBetUpdate(&updated, b)
	s.data[b.Address] = &updated
	return nil
}

// GetByAddress retrieves a bet by its address. Returns ErrNotFound if not exists.
func (s *BetStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.Bet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}

	betCopy := *b
	return &betCopy, nil
}

// GetByMarket retrieves all bets of a market.
func (s *BetStore) GetByMarket(_ context.Context, market domain.Pubkey) ([]*domain.Bet, error) {
	return s.filter(func(b *domain.Bet) bool { return b.Market == market }), nil
}

// GetByUser retrieves all bets placed by user.
func (s *BetStore) GetByUser(_ context.Context, user domain.Pubkey) ([]*domain.Bet, error) {
	return s.filter(func(b *domain.Bet) bool { return b.User == user }), nil
}

func (s *BetStore) filter(keep func(*domain.Bet) bool) []*domain.Bet {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*domain.Bet
	for _, b := range s.data {
		if keep(b) {
			betCopy := *b
			result = append(result, &betCopy)
		}
	}

	sortBets(result)
	return result
}

func validateBet(b *domain.Bet) error {
	if b == nil || b.Address.IsZero() || b.Market.IsZero() || b.User.IsZero() {
		return storage.ErrInvalidInput
	}
	return nil
}

// applyBetUpdate copies the fields that may change after placement.
func applyBetUpdate(dst, src *domain.Bet) {
	dst.Claimed = src.Claimed
	dst.ClaimedAt = src.ClaimedAt
}

// Verify interface compliance at compile time.
var _ storage.BetStore = (*BetStore)(nil)
