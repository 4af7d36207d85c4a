package storage

import (
	"context"

	"memecoin-prediction-market/internal/domain"
)

// MarketStore provides access to markets storage.
type MarketStore interface {
	// Insert adds a new market. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, m *domain.Market) error

	// Update overwrites the mutable fields (pools, settled, outcome) of an existing market.
	// Returns ErrNotFound if the address does not exist.
	Update(ctx context.Context, m *domain.Market) error

	// GetByAddress retrieves a market by its derived address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Market, error)

	// GetByCreator retrieves all markets created by creator, ordered by created_at ASC, name ASC.
	GetByCreator(ctx context.Context, creator domain.Pubkey) ([]*domain.Market, error)

	// GetAll retrieves all markets, ordered by created_at ASC, name ASC.
	GetAll(ctx context.Context) ([]*domain.Market, error)
}

// BetStore provides access to bets storage.
type BetStore interface {
	// Insert adds a new bet. Returns ErrDuplicateKey if a bet exists for the address.
	Insert(ctx context.Context, b *domain.Bet) error

	// Update overwrites the claim fields (claimed, claimed_at) of an existing bet.
	// Returns ErrNotFound if the address does not exist.
	Update(ctx context.Context, b *domain.Bet) error

	// GetByAddress retrieves a bet by its derived address. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Bet, error)

	// GetByMarket retrieves all bets of a market, ordered by placed_at ASC, address ASC.
	GetByMarket(ctx context.Context, market domain.Pubkey) ([]*domain.Bet, error)

	// GetByUser retrieves all bets placed by user, ordered by placed_at ASC, address ASC.
	GetByUser(ctx context.Context, user domain.Pubkey) ([]*domain.Bet, error)
}

// TokenAccountStore provides access to token balances: user wallets and
// market escrow accounts share one address space.
type TokenAccountStore interface {
	// Insert opens an account. Returns ErrDuplicateKey if the address exists.
	Insert(ctx context.Context, a *domain.TokenAccount) error

	// Update overwrites the amount of an existing account.
	// Returns ErrNotFound if the address does not exist.
	Update(ctx context.Context, a *domain.TokenAccount) error

	// GetByAddress retrieves an account. Returns ErrNotFound if not exists.
	GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.TokenAccount, error)

	// GetAll retrieves all accounts, ordered by address ASC.
	GetAll(ctx context.Context) ([]*domain.TokenAccount, error)
}

// Tx exposes the ledger stores. Inside WithinTx, reads of a record lock it
// until the transaction ends, where the backend supports row locks.
type Tx interface {
	Markets() MarketStore
	Bets() BetStore
	Accounts() TokenAccountStore
}

// Ledger is the market, bet and token balance storage with atomic
// multi-record commits.
// Calling the embedded Tx methods directly runs each operation on its own.
type Ledger interface {
	Tx

	// WithinTx runs fn in a transaction. All writes made through tx are
	// committed together if fn returns nil and discarded otherwise.
	// Optimistic backends may run fn more than once, so fn must only act through tx.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error
}

// ActivityStore provides access to the append-only ledger activity log.
type ActivityStore interface {
	// InsertBulk adds multiple events atomically. Fails entire batch on duplicate event_id.
	InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error

	// GetByMarket retrieves all events for a market, ordered by timestamp ASC.
	GetByMarket(ctx context.Context, market domain.Pubkey) ([]*domain.LedgerEvent, error)

	// GetByTimeRange retrieves events within [start, end] (inclusive), ordered by timestamp ASC.
	GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.LedgerEvent, error)
}
