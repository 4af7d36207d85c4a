package redis

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"memecoin-prediction-market/internal/events"
	"memecoin-prediction-market/internal/lock"
)

// setupTestRedis starts a Redis container and returns a connected Client.
func setupTestRedis(t *testing.T) *Client {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()
	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections").WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "6379")
	require.NoError(t, err)

	client, err := New(ctx, ClientConfig{Addr: fmt.Sprintf("%s:%s", host, port.Port())})
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLockManager_MutualExclusion(t *testing.T) {
	client := setupTestRedis(t)
	lm := NewLockManager(client, WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := lm.Acquire(ctx, "market:A")
			if !assert.NoError(t, err) {
				return
			}
			defer unlock()
			v := counter
			time.Sleep(time.Millisecond)
			counter = v + 1
		}()
	}
	wg.Wait()
	assert.Equal(t, 10, counter)
}

func TestLockManager_TimeoutAndUnlock(t *testing.T) {
	client := setupTestRedis(t)
	lm := NewLockManager(client)
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "bet:X")
	require.NoError(t, err)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(short, "bet:X")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	unlock()
	unlock()

	again, err := lm.Acquire(ctx, "bet:X")
	require.NoError(t, err)
	again()
}

func TestLockManager_ExpiredHolderCannotReleaseSuccessor(t *testing.T) {
	client := setupTestRedis(t)
	// A holder that stops renewing behaves like a crashed process.
	lm := NewLockManager(client, WithTTL(100*time.Millisecond), WithRefreshInterval(0))
	ctx := context.Background()

	stale, err := lm.Acquire(ctx, "market:B")
	require.NoError(t, err)
	time.Sleep(200 * time.Millisecond)

	fresh, err := lm.Acquire(ctx, "market:B")
	require.NoError(t, err)
	defer fresh()

	stale()
	exists, err := client.Underlying().Exists(ctx, "lock:market:B").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), exists)
}

func TestLockManager_RenewsWhileHeld(t *testing.T) {
	client := setupTestRedis(t)
	lm := NewLockManager(client, WithTTL(150*time.Millisecond), WithRetryInterval(5*time.Millisecond))
	ctx := context.Background()

	unlock, err := lm.Acquire(ctx, "market:C")
	require.NoError(t, err)

	// Several TTLs pass while the holder is still working.
	time.Sleep(600 * time.Millisecond)

	short, cancel := context.WithTimeout(ctx, 100*time.Millisecond)
	defer cancel()
	_, err = lm.Acquire(short, "market:C")
	assert.ErrorIs(t, err, lock.ErrNotAcquired)

	ttl, err := client.Underlying().PTTL(ctx, "lock:market:C").Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, time.Duration(0))

	unlock()
	exists, err := client.Underlying().Exists(ctx, "lock:market:C").Result()
	require.NoError(t, err)
	assert.Equal(t, int64(0), exists)

	next, err := lm.Acquire(ctx, "market:C")
	require.NoError(t, err)
	next()
}

func TestEventBus_PublishSubscribe(t *testing.T) {
	client := setupTestRedis(t)
	bus := NewEventBus(client, "ledger:stream")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, err := bus.Subscribe(ctx, events.LedgerChannel)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, events.LedgerChannel, []byte("one")))
	require.NoError(t, bus.Publish(ctx, events.LedgerChannel, []byte("two")))

	for _, want := range []string{"one", "two"} {
		select {
		case msg := <-ch:
			assert.Equal(t, want, string(msg))
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for %q", want)
		}
	}

	recent, err := bus.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "one", string(recent[0]))
	assert.Equal(t, "two", string(recent[1]))

	cancel()
	select {
	case _, ok := <-ch:
		assert.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("subscription not closed")
	}
}

func TestHasPattern(t *testing.T) {
	assert.True(t, hasPattern("ledger:*"))
	assert.False(t, hasPattern("ledger"))
}
