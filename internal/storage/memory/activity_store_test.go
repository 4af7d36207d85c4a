package memory

import (
	"context"
	"errors"
	"testing"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

func testEvent(id string, kind domain.EventKind, market byte, ts int64) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:    id,
		Kind:       kind,
		Market:     domain.Pubkey{market},
		MarketName: "DOGE_USD",
		Actor:      domain.Pubkey{0xA1},
		Timestamp:  ts,
	}
}

func TestActivityStore_InsertBulkAndQuery(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()

	events := []*domain.LedgerEvent{
		testEvent("e3", domain.EventMarketSettled, 1, 3000),
		testEvent("e1", domain.EventMarketCreated, 1, 1000),
		testEvent("e2", domain.EventBetPlaced, 2, 2000),
	}
	if err := store.InsertBulk(ctx, events); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	byMarket, err := store.GetByMarket(ctx, domain.Pubkey{1})
	if err != nil {
		t.Fatalf("GetByMarket failed: %v", err)
	}
	if len(byMarket) != 2 {
		t.Fatalf("Expected 2 events, got %d", len(byMarket))
	}
	if byMarket[0].EventID != "e1" || byMarket[1].EventID != "e3" {
		t.Errorf("Events not ordered by timestamp: %s, %s", byMarket[0].EventID, byMarket[1].EventID)
	}

	ranged, err := store.GetByTimeRange(ctx, 2000, 3000)
	if err != nil {
		t.Fatalf("GetByTimeRange failed: %v", err)
	}
	if len(ranged) != 2 {
		t.Errorf("Expected 2 events in range, got %d", len(ranged))
	}
}

func TestActivityStore_DuplicateFailsWholeBatch(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()

	if err := store.InsertBulk(ctx, []*domain.LedgerEvent{testEvent("e1", domain.EventBetPlaced, 1, 1)}); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	err := store.InsertBulk(ctx, []*domain.LedgerEvent{
		testEvent("e2", domain.EventBetPlaced, 1, 2),
		testEvent("e1", domain.EventBetPlaced, 1, 3),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey, got %v", err)
	}

	err = store.InsertBulk(ctx, []*domain.LedgerEvent{
		testEvent("e4", domain.EventBetPlaced, 1, 2),
		testEvent("e4", domain.EventBetPlaced, 1, 3),
	})
	if !errors.Is(err, storage.ErrDuplicateKey) {
		t.Fatalf("Expected ErrDuplicateKey for intra-batch duplicate, got %v", err)
	}

	all, _ := store.GetByMarket(ctx, domain.Pubkey{1})
	if len(all) != 1 {
		t.Errorf("Failed batches left %d events, want 1", len(all))
	}
}

func TestActivityStore_InvalidInput(t *testing.T) {
	store := NewActivityStore()
	ctx := context.Background()

	err := store.InsertBulk(ctx, []*domain.LedgerEvent{testEvent("", domain.EventBetPlaced, 1, 1)})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for empty id, got %v", err)
	}
	err = store.InsertBulk(ctx, []*domain.LedgerEvent{testEvent("x", domain.EventKind("BOGUS"), 1, 1)})
	if !errors.Is(err, storage.ErrInvalidInput) {
		t.Errorf("Expected ErrInvalidInput for unknown kind, got %v", err)
	}
	if err := store.InsertBulk(ctx, nil); err != nil {
		t.Errorf("Empty batch should succeed, got %v", err)
	}
}
