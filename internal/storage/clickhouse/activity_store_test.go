package clickhouse_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
	"memecoin-prediction-market/internal/storage/clickhouse"
)

func testEvent(id string, kind domain.EventKind, market byte, ts int64) *domain.LedgerEvent {
	return &domain.LedgerEvent{
		EventID:    id,
		Kind:       kind,
		Market:     domain.Pubkey{market},
		MarketName: "DOGE_USD",
		Actor:      domain.Pubkey{0xA1},
		Amount:     1_000_000,
		Side:       domain.SideYes,
		YesAmount:  1_000_000,
		Timestamp:  ts,
	}
}

func TestActivityStore_InsertBulkAndQuery(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewActivityStore(conn)
	ctx := context.Background()

	events := []*domain.LedgerEvent{
		testEvent("e1", domain.EventMarketCreated, 1, 1000),
		testEvent("e2", domain.EventBetPlaced, 1, 2000),
		testEvent("e3", domain.EventBetPlaced, 2, 3000),
	}
	require.NoError(t, store.InsertBulk(ctx, events))

	byMarket, err := store.GetByMarket(ctx, domain.Pubkey{1})
	require.NoError(t, err)
	require.Len(t, byMarket, 2)
	assert.Equal(t, events[0], byMarket[0])
	assert.Equal(t, events[1], byMarket[1])

	ranged, err := store.GetByTimeRange(ctx, 2000, 3000)
	require.NoError(t, err)
	require.Len(t, ranged, 2)
	assert.Equal(t, "e2", ranged[0].EventID)
	assert.Equal(t, "e3", ranged[1].EventID)
}

func TestActivityStore_Duplicates(t *testing.T) {
	conn, cleanup := setupTestDB(t)
	defer cleanup()

	store := clickhouse.NewActivityStore(conn)
	ctx := context.Background()

	require.NoError(t, store.InsertBulk(ctx, []*domain.LedgerEvent{testEvent("e1", domain.EventBetPlaced, 1, 1)}))

	err := store.InsertBulk(ctx, []*domain.LedgerEvent{
		testEvent("e2", domain.EventBetPlaced, 1, 2),
		testEvent("e1", domain.EventBetPlaced, 1, 3),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	err = store.InsertBulk(ctx, []*domain.LedgerEvent{
		testEvent("e5", domain.EventBetPlaced, 1, 2),
		testEvent("e5", domain.EventBetPlaced, 1, 3),
	})
	assert.ErrorIs(t, err, storage.ErrDuplicateKey)

	all, err := store.GetByMarket(ctx, domain.Pubkey{1})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}
