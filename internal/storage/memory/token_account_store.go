package memory

import (
	"bytes"
	"context"
	"sort"
	"sync"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// TokenAccountStore is an in-memory implementation of storage.TokenAccountStore.
type TokenAccountStore struct {
	mu   sync.RWMutex
	data map[domain.Pubkey]*domain.TokenAccount // keyed by address
}

// NewTokenAccountStore creates a new in-memory token account store.
func NewTokenAccountStore() *TokenAccountStore {
	return &TokenAccountStore{
		data: make(map[domain.Pubkey]*domain.TokenAccount),
	}
}

// Insert opens an account. Returns ErrDuplicateKey if the address exists.
func (s *TokenAccountStore) Insert(_ context.Context, a *domain.TokenAccount) error {
	if err := validateTokenAccount(a); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[a.Address]; exists {
		return storage.ErrDuplicateKey
	}

	accountCopy := *a
	s.data[a.Address] = &accountCopy
	return nil
}

// Update overwrites the amount of an existing account.
func (s *TokenAccountStore) Update(_ context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, exists := s.data[a.Address]
	if !exists {
		return storage.ErrNotFound
	}

	updated := *existing
	updated.Amount = a.Amount
	s.data[a.Address] = &updated
	return nil
}

// GetByAddress retrieves an account. Returns ErrNotFound if not exists.
func (s *TokenAccountStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, exists := s.data[address]
	if !exists {
		return nil, storage.ErrNotFound
	}
	accountCopy := *a
	return &accountCopy, nil
}

// GetAll retrieves all accounts.
func (s *TokenAccountStore) GetAll(_ context.Context) ([]*domain.TokenAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.TokenAccount, 0, len(s.data))
	for _, a := range s.data {
		accountCopy := *a
		result = append(result, &accountCopy)
	}
	sortTokenAccounts(result)
	return result, nil
}

func validateTokenAccount(a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || !a.Kind.IsValid() {
		return storage.ErrInvalidInput
	}
	return nil
}

// sortTokenAccounts orders by address ASC.
func sortTokenAccounts(accounts []*domain.TokenAccount) {
	sort.Slice(accounts, func(i, j int) bool {
		return bytes.Compare(accounts[i].Address[:], accounts[j].Address[:]) < 0
	})
}

// Verify interface compliance at compile time.
var _ storage.TokenAccountStore = (*TokenAccountStore)(nil)
