package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"memecoin-prediction-market/internal/lock"
)

// unlockLua deletes the lock key only while it still holds the caller's token,
// so an expired holder cannot release a successor's lock.
const unlockLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('DEL', KEYS[1])
end
return 0
`

// refreshLua extends the lock expiry only while the key still holds the caller's token.
const refreshLua = `
if redis.call('GET', KEYS[1]) == ARGV[1] then
    return redis.call('PEXPIRE', KEYS[1], ARGV[2])
end
return 0
`

const (
	// DefaultLockTTL bounds how long a crashed holder can block a record.
	DefaultLockTTL = 10 * time.Second

	// DefaultRetryInterval is the pause between SETNX attempts on a held key.
	DefaultRetryInterval = 25 * time.Millisecond
)

// LockManager implements lock.Locker with Redis SETNX + TTL and a Lua
// compare-and-delete unlock. While a lock is held its TTL is renewed every
// refresh interval, so only a crashed holder lets the key expire.
type LockManager struct {
	rdb       *redis.Client
	unlockSc  *redis.Script
	refreshSc *redis.Script
	ttl       time.Duration
	retry     time.Duration
	refresh   time.Duration
	prefix    string

	refreshSet bool
}

// LockOption configures a LockManager.
type LockOption func(*LockManager)

// WithTTL sets the lock expiry.
func WithTTL(ttl time.Duration) LockOption {
	return func(lm *LockManager) { lm.ttl = ttl }
}

// WithRetryInterval sets the pause between acquisition attempts.
func WithRetryInterval(d time.Duration) LockOption {
	return func(lm *LockManager) { lm.retry = d }
}

// WithRefreshInterval sets how often a held lock's TTL is renewed.
// The default is a third of the TTL; d <= 0 disables renewal.
func WithRefreshInterval(d time.Duration) LockOption {
	return func(lm *LockManager) {
		lm.refresh = d
		lm.refreshSet = true
	}
}

// WithKeyPrefix namespaces lock keys, e.g. per deployment.
func WithKeyPrefix(prefix string) LockOption {
	return func(lm *LockManager) { lm.prefix = prefix }
}

// NewLockManager creates a LockManager backed by c.
func NewLockManager(c *Client, opts ...LockOption) *LockManager {
	lm := &LockManager{
		rdb:       c.Underlying(),
		unlockSc:  redis.NewScript(unlockLua),
		refreshSc: redis.NewScript(refreshLua),
		ttl:       DefaultLockTTL,
		retry:     DefaultRetryInterval,
		prefix:    "lock:",
	}
	for _, opt := range opts {
		opt(lm)
	}
	if !lm.refreshSet {
		lm.refresh = lm.ttl / 3
	}
	return lm
}

func (lm *LockManager) lockKey(key string) string {
	return lm.prefix + key
}

// Acquire implements lock.Locker. A held key is retried until ctx ends.
func (lm *LockManager) Acquire(ctx context.Context, key string) (func(), error) {
	token := uuid.New().String()
	lk := lm.lockKey(key)

	ticker := time.NewTicker(lm.retry)
	defer ticker.Stop()

	for {
		ok, err := lm.rdb.SetNX(ctx, lk, token, lm.ttl).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, key, ctx.Err())
			}
			return nil, fmt.Errorf("redis: acquire lock %s: %w", key, err)
		}
		if ok {
			break
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %w", lock.ErrNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	var renewed sync.WaitGroup
	if lm.refresh > 0 {
		renewed.Add(1)
		go func() {
			defer renewed.Done()
			lm.keepAlive(lk, token, stop)
		}()
	}

	var once sync.Once
	unlock := func() {
		once.Do(func() {
			close(stop)
			renewed.Wait()

			// Detached from the caller's context so a canceled request still unlocks.
			unlockCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = lm.unlockSc.Run(unlockCtx, lm.rdb, []string{lk}, token).Err()
		})
	}
	return unlock, nil
}

// keepAlive renews the TTL of lk until stop is closed or the token is gone.
func (lm *LockManager) keepAlive(lk, token string, stop <-chan struct{}) {
	ticker := time.NewTicker(lm.refresh)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), lm.refresh)
		n, err := lm.refreshSc.Run(ctx, lm.rdb, []string{lk}, token, lm.ttl.Milliseconds()).Int()
		cancel()
		if err == nil && n == 0 {
			// Expired and possibly taken by another holder.
			return
		}
	}
}

// Compile-time interface check.
var _ lock.Locker = (*LockManager)(nil)
