package lock

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"memecoin-prediction-market/internal/domain"
)

func TestMemoryLocker_MutualExclusion(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
		counter int
	)

	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := locker.Acquire(ctx, "market:A")
			if err != nil {
				t.Errorf("Acquire failed: %v", err)
				return
			}
			defer unlock()

			mu.Lock()
			inside++
			if inside > maxSeen {
				maxSeen = inside
			}
			mu.Unlock()

			counter++ // guarded by the keyed lock only

			mu.Lock()
			inside--
			mu.Unlock()
		}()
	}
	wg.Wait()

	if maxSeen != 1 {
		t.Errorf("Expected at most 1 holder, saw %d", maxSeen)
	}
	if counter != 50 {
		t.Errorf("counter = %d, want 50", counter)
	}
	if len(locker.locks) != 0 {
		t.Errorf("Expected lock table to be empty, got %d entries", len(locker.locks))
	}
}

func TestMemoryLocker_DistinctKeysIndependent(t *testing.T) {
	locker := NewMemoryLocker()
	ctx := context.Background()

	unlockA, err := locker.Acquire(ctx, "bet:A")
	if err != nil {
		t.Fatalf("Acquire A failed: %v", err)
	}
	defer unlockA()

	ctxB, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := locker.Acquire(ctxB, "bet:B")
	if err != nil {
		t.Fatalf("Acquire B blocked by A: %v", err)
	}
	unlockB()
}

func TestMemoryLocker_ContextTimeout(t *testing.T) {
	locker := NewMemoryLocker()

	unlock, err := locker.Acquire(context.Background(), "market:A")
	if err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = locker.Acquire(ctx, "market:A")
	if !errors.Is(err, ErrNotAcquired) {
		t.Errorf("Expected ErrNotAcquired, got %v", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Expected wrapped DeadlineExceeded, got %v", err)
	}

	// Double unlock is harmless and frees the key
	unlock()
	unlock()

	again, err := locker.Acquire(context.Background(), "market:A")
	if err != nil {
		t.Fatalf("Acquire after unlock failed: %v", err)
	}
	again()
}

func TestKeys(t *testing.T) {
	pk := domain.Pubkey{1}
	if MarketKey(pk) == BetKey(pk) {
		t.Error("market and bet keys must not collide")
	}
}
