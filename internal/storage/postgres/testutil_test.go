package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage/migrations"
	"memecoin-prediction-market/internal/storage/postgres"
)

// setupTestDB starts PostgreSQL in a container and applies the embedded
// ledger schema. The returned cleanup must be called when done.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("ledger"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := postgres.NewPool(ctx, dsn, 8)
	require.NoError(t, err)

	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool), "failed to apply migrations")
	// Reruns are no-ops
	require.NoError(t, migrations.RunPostgresMigrations(ctx, pool))

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}
	return pool, cleanup
}

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

func testBet(addr byte, market domain.Pubkey, user byte, placedAt int64) *domain.Bet {
	return &domain.Bet{
		Address:    domain.Pubkey{addr},
		Market:     market,
		User:       domain.Pubkey{user},
		Amount:     1_000_000,
		Prediction: true,
		Bump:       254,
		PlacedAt:   placedAt,
	}
}
