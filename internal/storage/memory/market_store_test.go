package memory

import (
	"context"
	"errors"
	"sync"
	"testing"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

func testMarket(addr byte, name string, createdAt int64) *domain.Market {
	return &domain.Market{
		Address:         domain.Pubkey{addr},
		Name:            name,
		Creator:         domain.Pubkey{0xC0},
		ExpiryTimestamp: createdAt + 3600,
		Bump:            255,
		CreatedAt:       createdAt,
	}
}

func TestMarketStore_InsertAndGet(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	m := testMarket(1, "DOGE_USD", 1_700_000_000)

	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	got, err := store.GetByAddress(ctx, m.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if *got != *m {
		t.Errorf("Market mismatch: got %+v, want %+v", got, m)
	}
}

func TestMarketStore_DuplicateKey(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	m := testMarket(1, "DOGE_USD", 1_700_000_000)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("First insert failed: %v", err)
	}

	err := store.Insert(ctx, m)
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Errorf("Expected ErrDuplicateKey, got %v", err)
	}
}

func TestMarketStore_NotFound(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	if _, err := store.GetByAddress(ctx, domain.Pubkey{9}); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if err := store.Update(ctx, testMarket(9, "NOPE", 0)); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on update, got %v", err)
	}
}

func TestMarketStore_UpdateOnlyMutableFields(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	m := testMarket(1, "DOGE_USD", 1_700_000_000)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	changed := *m
	changed.YesAmount = 500
	changed.NoAmount = 200
	changed.Settled = true
	changed.Outcome = true
	changed.Name = "RENAMED"
	changed.Creator = domain.Pubkey{0xEE}
	changed.ExpiryTimestamp = 1

	if err := store.Update(ctx, &changed); err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	got, err := store.GetByAddress(ctx, m.Address)
	if err != nil {
		t.Fatalf("GetByAddress failed: %v", err)
	}
	if got.YesAmount != 500 || got.NoAmount != 200 || !got.Settled || !got.Outcome {
		t.Errorf("Mutable fields not updated: %+v", got)
	}
	if got.Name != m.Name || got.Creator != m.Creator || got.ExpiryTimestamp != m.ExpiryTimestamp {
		t.Errorf("Immutable fields changed: %+v", got)
	}
}

func TestMarketStore_CopyIsolation(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	m := testMarket(1, "DOGE_USD", 1_700_000_000)
	if err := store.Insert(ctx, m); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	// Mutating the inserted value or a returned value must not leak into the store
	m.YesAmount = 42
	got, _ := store.GetByAddress(ctx, m.Address)
	got.NoAmount = 42

	again, _ := store.GetByAddress(ctx, m.Address)
	if again.YesAmount != 0 || again.NoAmount != 0 {
		t.Errorf("Store mutated through external pointer: %+v", again)
	}
}

func TestMarketStore_GetAllOrdered(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	markets := []*domain.Market{
		testMarket(3, "C", 3000),
		testMarket(1, "B", 1000),
		testMarket(2, "A", 1000),
	}
	markets[0].Creator = domain.Pubkey{0xDD}

	for _, m := range markets {
		if err := store.Insert(ctx, m); err != nil {
			t.Fatalf("Insert failed: %v", err)
		}
	}

	all, err := store.GetAll(ctx)
	if err != nil {
		t.Fatalf("GetAll failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("Expected 3 markets, got %d", len(all))
	}
	want := []string{"A", "B", "C"}
	for i, name := range want {
		if all[i].Name != name {
			t.Errorf("Position %d: got %s, want %s", i, all[i].Name, name)
		}
	}

	byCreator, err := store.GetByCreator(ctx, domain.Pubkey{0xC0})
	if err != nil {
		t.Fatalf("GetByCreator failed: %v", err)
	}
	if len(byCreator) != 2 {
		t.Errorf("Expected 2 markets for creator, got %d", len(byCreator))
	}
}

func TestMarketStore_InvalidInput(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	if err := store.Insert(ctx, nil); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for nil, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Market{Name: "X"}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for zero address, got %v", err)
	}
	if err := store.Insert(ctx, &domain.Market{Address: domain.Pubkey{1}}); !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty name, got %v", err)
	}
}

func TestMarketStore_ConcurrentInserts(t *testing.T) {
	store := NewMarketStore()
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	inserted := 0

	// 100 goroutines racing over 10 addresses: exactly 10 inserts win
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			m := testMarket(byte(id%10+1), "M", int64(id))
			if err := store.Insert(ctx, m); err == nil {
				mu.Lock()
				inserted++
				mu.Unlock()
			}
		}(i)
	}

	wg.Wait()
	if inserted != 10 {
		t.Errorf("Expected 10 successful inserts, got %d", inserted)
	}
}
