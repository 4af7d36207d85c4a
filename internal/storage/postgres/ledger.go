package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"

	"memecoin-prediction-market/internal/storage"
)

// Ledger implements storage.Ledger using PostgreSQL transactions.
// Point reads inside WithinTx take row locks (SELECT ... FOR UPDATE).
type Ledger struct {
	pool     *Pool
	markets  *MarketStore
	bets     *BetStore
	accounts *TokenAccountStore
}

// NewLedger creates a new Ledger.
func NewLedger(pool *Pool) *Ledger {
	return &Ledger{
		pool:     pool,
		markets:  NewMarketStore(pool),
		bets:     NewBetStore(pool),
		accounts: NewTokenAccountStore(pool),
	}
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Markets returns the market store.
func (l *Ledger) Markets() storage.MarketStore { return l.markets }

// Bets returns the bet store.
func (l *Ledger) Bets() storage.BetStore { return l.bets }

// Accounts returns the token account store.
func (l *Ledger) Accounts() storage.TokenAccountStore { return l.accounts }

// WithinTx runs fn in a database transaction; pgx rolls back when fn fails.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return pgx.BeginFunc(ctx, l.pool, func(tx pgx.Tx) error {
		return fn(&txStores{
			markets:  &MarketStore{q: tx, lockRows: true},
			bets:     &BetStore{q: tx, lockRows: true},
			accounts: &TokenAccountStore{q: tx, lockRows: true},
		})
	})
}

type txStores struct {
	markets  *MarketStore
	bets     *BetStore
	accounts *TokenAccountStore
}

func (t *txStores) Markets() storage.MarketStore        { return t.markets }
func (t *txStores) Bets() storage.BetStore              { return t.bets }
func (t *txStores) Accounts() storage.TokenAccountStore { return t.accounts }
