// Package lock provides per-record mutual exclusion for ledger operations.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"memecoin-prediction-market/internal/domain"
)

// ErrNotAcquired is returned when a lock could not be obtained before the
// context ended. It wraps the context error.
var ErrNotAcquired = errors.New("lock not acquired")

// Locker serializes work on a key across callers.
type Locker interface {
	// Acquire blocks until the lock for key is held or ctx ends.
	// The returned unlock func is safe to call more than once.
	Acquire(ctx context.Context, key string) (unlock func(), err error)
}

// MarketKey is the lock key for a market and everything that mutates its pools.
func MarketKey(market domain.Pubkey) string {
	return "market:" + market.String()
}

// BetKey is the lock key for a single bet.
func BetKey(bet domain.Pubkey) string {
	return "bet:" + bet.String()
}

// MemoryLocker is an in-process keyed mutex.
type MemoryLocker struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	ch   chan struct{} // holds one token while locked
	refs int           // holders plus waiters
}

// NewMemoryLocker creates a new MemoryLocker.
func NewMemoryLocker() *MemoryLocker {
	return &MemoryLocker{locks: make(map[string]*entry)}
}

// Acquire implements Locker.
func (l *MemoryLocker) Acquire(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()
	e, ok := l.locks[key]
	if !ok {
		e = &entry{ch: make(chan struct{}, 1)}
		l.locks[key] = e
	}
	e.refs++
	l.mu.Unlock()

	select {
	case e.ch <- struct{}{}:
	case <-ctx.Done():
		l.release(key, e)
		return nil, fmt.Errorf("%w: %s: %w", ErrNotAcquired, key, ctx.Err())
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-e.ch
			l.release(key, e)
		})
	}, nil
}

// release drops one reference and forgets the key when nobody uses it.
func (l *MemoryLocker) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.locks, key)
	}
}

// Compile-time interface check.
var _ Locker = (*MemoryLocker)(nil)
