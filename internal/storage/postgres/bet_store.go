package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

const betColumns = `address, market, user_pubkey, amount::text, prediction, claimed, bump, placed_at, claimed_at`

// BetStore implements storage.BetStore using PostgreSQL.
type BetStore struct {
	q        querier
	lockRows bool
}

// NewBetStore creates a new BetStore.
func NewBetStore(pool *Pool) *BetStore {
	return &BetStore{q: pool}
}

// Compile-time interface check.
var _ storage.BetStore = (*BetStore)(nil)

// Insert adds a new bet. Returns ErrDuplicateKey if a bet exists for the address
// or for (market, user). Returns ErrNotFound if the market does not exist.
func (s *BetStore) Insert(ctx context.Context, b *domain.Bet) error {
	if b == nil || b.Address.IsZero() || b.Market.IsZero() || b.User.IsZero() {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO bets (
			address, market, user_pubkey, amount, prediction, claimed, bump, placed_at, claimed_at
		) VALUES ($1, $2, $3, $4::numeric, $5, $6, $7, $8, $9)
	`

	_, err := s.q.Exec(ctx, query,
		b.Address[:],
		b.Market[:],
		b.User[:],
		formatAmount(b.Amount),
		b.Prediction,
		b.Claimed,
		int16(b.Bump),
		b.PlacedAt,
		b.ClaimedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		if isForeignKeyError(err) {
			return storage.ErrNotFound
		}
		return fmt.Errorf("insert bet: %w", err)
	}
	return nil
}

// Update overwrites claimed and claimed_at. Returns ErrNotFound if the address does not exist.
func (s *BetStore) Update(ctx context.Context, b *domain.Bet) error {
	if b == nil {
		return storage.ErrInvalidInput
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE bets SET claimed = $2, claimed_at = $3 WHERE address = $1`,
		b.Address[:], b.Claimed, b.ClaimedAt,
	)
	if err != nil {
		return fmt.Errorf("update bet: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves a bet by address. Returns ErrNotFound if not exists.
func (s *BetStore) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.Bet, error) {
	query := `SELECT ` + betColumns + ` FROM bets WHERE address = $1`
	if s.lockRows {
		query += ` FOR UPDATE`
	}

	b, err := scanBet(s.q.QueryRow(ctx, query, address[:]))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get bet by address: %w", err)
	}
	return b, nil
}

// GetByMarket retrieves all bets of a market.
func (s *BetStore) GetByMarket(ctx context.Context, market domain.Pubkey) ([]*domain.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE market = $1
		ORDER BY placed_at ASC, address ASC
	`

	rows, err := s.q.Query(ctx, query, market[:])
	if err != nil {
		return nil, fmt.Errorf("get bets by market: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

// GetByUser retrieves all bets placed by user.
func (s *BetStore) GetByUser(ctx context.Context, user domain.Pubkey) ([]*domain.Bet, error) {
	query := `
		SELECT ` + betColumns + `
		FROM bets
		WHERE user_pubkey = $1
		ORDER BY placed_at ASC, address ASC
	`

	rows, err := s.q.Query(ctx, query, user[:])
	if err != nil {
		return nil, fmt.Errorf("get bets by user: %w", err)
	}
	defer rows.Close()

	return scanBets(rows)
}

// scanBet scans a single row into a Bet.
func scanBet(row pgx.Row) (*domain.Bet, error) {
	var (
		b                     domain.Bet
		address, market, user []byte
		amount                string
		bump                  int16
	)

	err := row.Scan(
		&address,
		&market,
		&user,
		&amount,
		&b.Prediction,
		&b.Claimed,
		&bump,
		&b.PlacedAt,
		&b.ClaimedAt,
	)
	if err != nil {
		return nil, err
	}

	if b.Address, err = pubkeyFromBytes(address); err != nil {
		return nil, err
	}
	if b.Market, err = pubkeyFromBytes(market); err != nil {
		return nil, err
	}
	if b.User, err = pubkeyFromBytes(user); err != nil {
		return nil, err
	}
	if b.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	b.Bump = uint8(bump)
	return &b, nil
}

// scanBets scans multiple rows into a slice of Bet.
func scanBets(rows pgx.Rows) ([]*domain.Bet, error) {
	var bets []*domain.Bet

	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("scan bet row: %w", err)
		}
		bets = append(bets, b)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bet rows: %w", err)
	}

	return bets, nil
}
