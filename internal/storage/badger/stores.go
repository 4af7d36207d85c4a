package badger

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	badgerdb "github.com/dgraph-io/badger/v4"

	"memecoin-prediction-market/internal/account"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

// MarketStore implements storage.MarketStore on Badger.
type MarketStore struct {
	kv
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

// Insert adds a new market. Returns ErrDuplicateKey if the address exists.
func (s *MarketStore) Insert(ctx context.Context, m *domain.Market) error {
	if m == nil || m.Name == "" || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}
	data, err := account.EncodeMarket(m)
	if err != nil {
		return fmt.Errorf("insert market: %w", err)
	}

	key := recordKey(marketPrefix, m.Address)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		found, err := exists(txn, key)
		if err != nil {
			return fmt.Errorf("insert market: %w", err)
		}
		if found {
			return storage.ErrDuplicateKey
		}
		return txn.Set(key, data)
	})
}

// Update overwrites the mutable fields of an existing market.
func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	if m == nil {
		return storage.ErrInvalidInput
	}

	key := recordKey(marketPrefix, m.Address)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		current, err := loadMarket(txn, m.Address)
		if err != nil {
			return err
		}
		current.YesAmount = m.YesAmount
		current.NoAmount = m.NoAmount
		current.Settled = m.Settled
		current.Outcome = m.Outcome

		data, err := account.EncodeMarket(current)
		if err != nil {
			return fmt.Errorf("update market: %w", err)
		}
		return txn.Set(key, data)
	})
}

// GetByAddress retrieves a market by address. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.Market, error) {
	var m *domain.Market
	err := s.view(func(txn *badgerdb.Txn) error {
		var err error
		m, err = loadMarket(txn, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}

// GetByCreator retrieves all markets created by creator.
func (s *MarketStore) GetByCreator(_ context.Context, creator domain.Pubkey) ([]*domain.Market, error) {
	return s.list(func(m *domain.Market) bool { return m.Creator == creator })
}

// GetAll retrieves all markets.
func (s *MarketStore) GetAll(_ context.Context) ([]*domain.Market, error) {
	return s.list(func(*domain.Market) bool { return true })
}

func (s *MarketStore) list(keep func(*domain.Market) bool) ([]*domain.Market, error) {
	var result []*domain.Market
	err := s.view(func(txn *badgerdb.Txn) error {
		return scan(txn, marketPrefix, func(key, value []byte) error {
			m, err := decodeMarket(key, value)
			if err != nil {
				return err
			}
			if keep(m) {
				result = append(result, m)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list markets: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].CreatedAt != result[j].CreatedAt {
			return result[i].CreatedAt < result[j].CreatedAt
		}
		return result[i].Name < result[j].Name
	})
	return result, nil
}

func loadMarket(txn *badgerdb.Txn, address domain.Pubkey) (*domain.Market, error) {
	key := recordKey(marketPrefix, address)
	value, err := get(txn, key)
	if err != nil {
		return nil, err
	}
	return decodeMarket(key, value)
}

func decodeMarket(key, value []byte) (*domain.Market, error) {
	m, err := account.DecodeMarket(value)
	if err != nil {
		return nil, err
	}
	if m.Address, err = addressFromKey(marketPrefix, key); err != nil {
		return nil, err
	}
	return m, nil
}

// BetStore implements storage.BetStore on Badger.
type BetStore struct {
	kv
}

// Compile-time interface check.
var _ storage.BetStore = (*BetStore)(nil)

// Insert adds a new bet. Returns ErrDuplicateKey if the address exists and
// ErrNotFound if the market does not.
func (s *BetStore) Insert(ctx context.Context, b *domain.Bet) error {
	if b == nil || b.Address.IsZero() || b.Market.IsZero() || b.User.IsZero() {
		return storage.ErrInvalidInput
	}

	key := recordKey(betPrefix, b.Address)
	data := account.EncodeBet(b)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		found, err := exists(txn, key)
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		if found {
			return storage.ErrDuplicateKey
		}
		marketFound, err := exists(txn, recordKey(marketPrefix, b.Market))
		if err != nil {
			return fmt.Errorf("insert bet: %w", err)
		}
		if !marketFound {
			return storage.ErrNotFound
		}
		return txn.Set(key, data)
	})
}

// Update overwrites the claim fields of an existing bet.
func (s *BetStore) Update(ctx context.Context, b *domain.Bet) error {
	if b == nil {
		return storage.ErrInvalidInput
	}

	key := recordKey(betPrefix, b.Address)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		current, err := loadBet(txn, b.Address)
		if err != nil {
			return err
		}
		current.Claimed = b.Claimed
		current.ClaimedAt = b.ClaimedAt
		return txn.Set(key, account.EncodeBet(current))
	})
}

// GetByAddress retrieves a bet by address. Returns ErrNotFound if not exists.
func (s *BetStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.Bet, error) {
	var b *domain.Bet
	err := s.view(func(txn *badgerdb.Txn) error {
		var err error
		b, err = loadBet(txn, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}

// GetByMarket retrieves all bets of a market.
func (s *BetStore) GetByMarket(_ context.Context, market domain.Pubkey) ([]*domain.Bet, error) {
	return s.list(func(b *domain.Bet) bool { return b.Market == market })
}

// GetByUser retrieves all bets placed by user.
func (s *BetStore) GetByUser(_ context.Context, user domain.Pubkey) ([]*domain.Bet, error) {
	return s.list(func(b *domain.Bet) bool { return b.User == user })
}

func (s *BetStore) list(keep func(*domain.Bet) bool) ([]*domain.Bet, error) {
	var result []*domain.Bet
	err := s.view(func(txn *badgerdb.Txn) error {
		return scan(txn, betPrefix, func(key, value []byte) error {
			b, err := decodeBet(key, value)
			if err != nil {
				return err
			}
			if keep(b) {
				result = append(result, b)
			}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list bets: %w", err)
	}

	sort.Slice(result, func(i, j int) bool {
		if result[i].PlacedAt != result[j].PlacedAt {
			return result[i].PlacedAt < result[j].PlacedAt
		}
		return bytes.Compare(result[i].Address[:], result[j].Address[:]) < 0
	})
	return result, nil
}

func loadBet(txn *badgerdb.Txn, address domain.Pubkey) (*domain.Bet, error) {
	key := recordKey(betPrefix, address)
	value, err := get(txn, key)
	if err != nil {
		return nil, err
	}
	return decodeBet(key, value)
}

func decodeBet(key, value []byte) (*domain.Bet, error) {
	b, err := account.DecodeBet(value)
	if err != nil {
		return nil, err
	}
	if b.Address, err = addressFromKey(betPrefix, key); err != nil {
		return nil, err
	}
	return b, nil
}

// TokenAccountStore implements storage.TokenAccountStore on Badger.
type TokenAccountStore struct {
	kv
}

// Compile-time interface check.
var _ storage.TokenAccountStore = (*TokenAccountStore)(nil)

// Insert opens an account. Returns ErrDuplicateKey if the address exists.
func (s *TokenAccountStore) Insert(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || !a.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	key := recordKey(accountPrefix, a.Address)
	data := account.EncodeTokenAccount(a)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		found, err := exists(txn, key)
		if err != nil {
			return fmt.Errorf("insert token account: %w", err)
		}
		if found {
			return storage.ErrDuplicateKey
		}
		return txn.Set(key, data)
	})
}

// Update overwrites the amount of an existing account.
func (s *TokenAccountStore) Update(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	key := recordKey(accountPrefix, a.Address)
	return s.update(ctx, func(txn *badgerdb.Txn) error {
		current, err := loadTokenAccount(txn, a.Address)
		if err != nil {
			return err
		}
		current.Amount = a.Amount
		return txn.Set(key, account.EncodeTokenAccount(current))
	})
}

// GetByAddress retrieves an account. Returns ErrNotFound if not exists.
func (s *TokenAccountStore) GetByAddress(_ context.Context, address domain.Pubkey) (*domain.TokenAccount, error) {
	var a *domain.TokenAccount
	err := s.view(func(txn *badgerdb.Txn) error {
		var err error
		a, err = loadTokenAccount(txn, address)
		return err
	})
	if err != nil {
		return nil, err
	}
	return a, nil
}

// GetAll retrieves all accounts. Keys embed the address, so scan order is address order.
func (s *TokenAccountStore) GetAll(_ context.Context) ([]*domain.TokenAccount, error) {
	var result []*domain.TokenAccount
	err := s.view(func(txn *badgerdb.Txn) error {
		return scan(txn, accountPrefix, func(key, value []byte) error {
			a, err := decodeTokenAccount(key, value)
			if err != nil {
				return err
			}
			result = append(result, a)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list token accounts: %w", err)
	}
	return result, nil
}

func loadTokenAccount(txn *badgerdb.Txn, address domain.Pubkey) (*domain.TokenAccount, error) {
	key := recordKey(accountPrefix, address)
	value, err := get(txn, key)
	if err != nil {
		return nil, err
	}
	return decodeTokenAccount(key, value)
}

func decodeTokenAccount(key, value []byte) (*domain.TokenAccount, error) {
	a, err := account.DecodeTokenAccount(value)
	if err != nil {
		return nil, err
	}
	if a.Address, err = addressFromKey(accountPrefix, key); err != nil {
		return nil, err
	}
	return a, nil
}
