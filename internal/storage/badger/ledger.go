// Package badger stores the ledger in an embedded Badger key/value database.
// Values use the binary account layout from internal/account; the record
// address is the key suffix.
package badger

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"memecoin-prediction-market/internal/account"
	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

var (
	marketPrefix  = []byte("market/")
	betPrefix     = []byte("bet/")
	accountPrefix = []byte("account/")
)

// maxConflictRetries bounds re-running a transaction after badger.ErrConflict.
// Claims on one market all write its escrow account, so conflicts are routine.
const maxConflictRetries = 32

// OpenOptions configures Open.
type OpenOptions struct {
	Path     string
	InMemory bool            // ignore Path and keep everything in memory
	Logger   badgerdb.Logger // nil silences badger
}

// Ledger implements storage.Ledger on Badger.
// Transactions are optimistic; WithinTx re-runs fn on write conflicts, so fn
// must only touch the stores it is given.
type Ledger struct {
	db *badgerdb.DB
}

// Open opens (or creates) the database.
func Open(opts OpenOptions) (*Ledger, error) {
	var bopts badgerdb.Options
	if opts.InMemory {
		bopts = badgerdb.DefaultOptions("").WithInMemory(true)
	} else {
		if strings.TrimSpace(opts.Path) == "" {
			return nil, errors.New("badger: path is required")
		}
		bopts = badgerdb.DefaultOptions(opts.Path)
	}
	bopts = bopts.WithLogger(opts.Logger)

	db, err := badgerdb.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return &Ledger{db: db}, nil
}

// Close closes the database.
func (l *Ledger) Close() error {
	return l.db.Close()
}

// Compile-time interface check.
var _ storage.Ledger = (*Ledger)(nil)

// Markets returns a market store that runs each call in its own transaction.
func (l *Ledger) Markets() storage.MarketStore { return &MarketStore{kv: kv{db: l.db}} }

// Bets returns a bet store that runs each call in its own transaction.
func (l *Ledger) Bets() storage.BetStore { return &BetStore{kv: kv{db: l.db}} }

// Accounts returns a token account store that runs each call in its own transaction.
func (l *Ledger) Accounts() storage.TokenAccountStore {
	return &TokenAccountStore{kv: kv{db: l.db}}
}

// WithinTx runs fn in a read-write transaction and commits it.
func (l *Ledger) WithinTx(ctx context.Context, fn func(tx storage.Tx) error) error {
	return update(ctx, l.db, func(txn *badgerdb.Txn) error {
		return fn(&txStores{
			markets:  &MarketStore{kv: kv{txn: txn}},
			bets:     &BetStore{kv: kv{txn: txn}},
			accounts: &TokenAccountStore{kv: kv{txn: txn}},
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

// update runs fn in db.Update, retrying on optimistic conflicts.
func update(ctx context.Context, db *badgerdb.DB, fn func(txn *badgerdb.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if attempt > 0 {
			backoff := time.Duration(rand.Int64N(int64(attempt)*int64(time.Millisecond))) + time.Millisecond
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		err = db.Update(fn)
		if !errors.Is(err, badgerdb.ErrConflict) {
			return err
		}
	}
	return fmt.Errorf("badger transaction: %w", err)
}

// kv runs reads and writes either inside a caller transaction or in a fresh one.
type kv struct {
	db  *badgerdb.DB
	txn *badgerdb.Txn
}

func (k kv) view(fn func(txn *badgerdb.Txn) error) error {
	if k.txn != nil {
		return fn(k.txn)
	}
	return k.db.View(fn)
}

func (k kv) update(ctx context.Context, fn func(txn *badgerdb.Txn) error) error {
	if k.txn != nil {
		return fn(k.txn)
	}
	return update(ctx, k.db, fn)
}

func recordKey(prefix []byte, address domain.Pubkey) []byte {
	key := make([]byte, 0, len(prefix)+domain.PubkeySize)
	key = append(key, prefix...)
	return append(key, address[:]...)
}

func addressFromKey(prefix, key []byte) (domain.Pubkey, error) {
	var pk domain.Pubkey
	if !bytes.HasPrefix(key, prefix) || len(key) != len(prefix)+domain.PubkeySize {
		return pk, fmt.Errorf("%w: malformed key %q", account.ErrInvalidAccountData, key)
	}
	copy(pk[:], key[len(prefix):])
	return pk, nil
}

// get loads the value at key. Returns storage.ErrNotFound when absent.
func get(txn *badgerdb.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}

func exists(txn *badgerdb.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scan calls fn for every key/value under prefix in key order.
func scan(txn *badgerdb.Txn, prefix []byte, fn func(key, value []byte) error) error {
	it := txn.NewIterator(badgerdb.DefaultIteratorOptions)
	defer it.Close()

	for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		value, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		if err := fn(item.KeyCopy(nil), value); err != nil {
			return err
		}
	}
	return nil
}
