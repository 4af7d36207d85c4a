package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

const marketColumns = `address, name, creator, expiry_timestamp, yes_amount::text, no_amount::text,
	settled, outcome, bump, created_at`

// MarketStore implements storage.MarketStore using PostgreSQL.
type MarketStore struct {
	q        querier
	lockRows bool // SELECT ... FOR UPDATE on point reads inside a transaction
}

// NewMarketStore creates a new MarketStore.
func NewMarketStore(pool *Pool) *MarketStore {
	return &MarketStore{q: pool}
}

// Compile-time interface check.
var _ storage.MarketStore = (*MarketStore)(nil)

// Insert adds a new market. Returns ErrDuplicateKey if the address or name exists.
func (s *MarketStore) Insert(ctx context.Context, m *domain.Market) error {
	if m == nil || m.Name == "" || m.Address.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO markets (
			address, name, creator, expiry_timestamp, yes_amount, no_amount,
			settled, outcome, bump, created_at
		) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7, $8, $9, $10)
	`

	_, err := s.q.Exec(ctx, query,
		m.Address[:],
		m.Name,
		m.Creator[:],
		m.ExpiryTimestamp,
		formatAmount(m.YesAmount),
		formatAmount(m.NoAmount),
		m.Settled,
		m.Outcome,
		int16(m.Bump),
		m.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert market: %w", err)
	}
	return nil
}

// Update overwrites pools, settled and outcome. Returns ErrNotFound if the address does not exist.
func (s *MarketStore) Update(ctx context.Context, m *domain.Market) error {
	if m == nil {
		return storage.ErrInvalidInput
	}

	query := `
		UPDATE markets
		SET yes_amount = $2::numeric, no_amount = $3::numeric, settled = $4, outcome = $5
		WHERE address = $1
	`

	tag, err := s.q.Exec(ctx, query,
		m.Address[:],
		formatAmount(m.YesAmount),
		formatAmount(m.NoAmount),
		m.Settled,
		m.Outcome,
	)
	if err != nil {
		return fmt.Errorf("update market: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves a market by address. Returns ErrNotFound if not exists.
func (s *MarketStore) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Market, error) {
	query := `SELECT ` + marketColumns + ` FROM markets WHERE address = $1`
	if s.lockRows {
		query += ` FOR UPDATE`
	}

	m, err := scanMarket(s.q.QueryRow(ctx, query, address[:]))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get market by address: %w", err)
	}
	return m, nil
}

// GetByCreator retrieves all markets created by creator.
func (s *MarketStore) GetByCreator(ctx context.Context, creator domain.Pubkey) ([]*domain.Market, error) {
	query := `
		SELECT ` + marketColumns + `
		FROM markets
		WHERE creator = $1
		ORDER BY created_at ASC, name ASC
	`

	rows, err := s.q.Query(ctx, query, creator[:])
	if err != nil {
		return nil, fmt.Errorf("get markets by creator: %w", err)
	}
	defer rows.Close()

	return scanMarkets(rows)
}

// GetAll retrieves all markets.
func (s *MarketStore) GetAll(ctx context.Context) ([]*domain.Market, error) {
	query := `
		SELECT ` + marketColumns + `
		FROM markets
		ORDER BY created_at ASC, name ASC
	`

	rows, err := s.q.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("get all markets: %w", err)
	}
	defer rows.Close()

	return scanMarkets(rows)
}

// scanMarket scans a single row into a Market.
func scanMarket(row pgx.Row) (*domain.Market, error) {
	var (
		m                   domain.Market
		address, creator    []byte
		yesAmount, noAmount string
		bump                int16
	)

	err := row.Scan(
		&address,
		&m.Name,
		&creator,
		&m.ExpiryTimestamp,
		&yesAmount,
		&noAmount,
		&m.Settled,
		&m.Outcome,
		&bump,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if m.Address, err = pubkeyFromBytes(address); err != nil {
		return nil, err
	}
	if m.Creator, err = pubkeyFromBytes(creator); err != nil {
		return nil, err
	}
	if m.YesAmount, err = parseAmount(yesAmount); err != nil {
		return nil, err
	}
	if m.NoAmount, err = parseAmount(noAmount); err != nil {
		return nil, err
	}
	m.Bump = uint8(bump)
	return &m, nil
}

// scanMarkets scans multiple rows into a slice of Market.
func scanMarkets(rows pgx.Rows) ([]*domain.Market, error) {
	var markets []*domain.Market

	for rows.Next() {
		m, err := scanMarket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan market row: %w", err)
		}
		markets = append(markets, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate market rows: %w", err)
	}

	return markets, nil
}
