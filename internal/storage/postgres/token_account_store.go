package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

const tokenAccountColumns = `address, kind, amount::text`

// TokenAccountStore implements storage.TokenAccountStore using PostgreSQL.
type TokenAccountStore struct {
	q        querier
	lockRows bool
}

// NewTokenAccountStore creates a new TokenAccountStore.
func NewTokenAccountStore(pool *Pool) *TokenAccountStore {
	return &TokenAccountStore{q: pool}
}

// Compile-time interface check.
var _ storage.TokenAccountStore = (*TokenAccountStore)(nil)

// Insert opens an account. Returns ErrDuplicateKey if the address exists.
func (s *TokenAccountStore) Insert(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil || a.Address.IsZero() || !a.Kind.IsValid() {
		return storage.ErrInvalidInput
	}

	_, err := s.q.Exec(ctx,
		`INSERT INTO token_accounts (address, kind, amount) VALUES ($1, $2, $3::numeric)`,
		a.Address[:], int16(a.Kind), formatAmount(a.Amount),
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert token account: %w", err)
	}
	return nil
}

// Update overwrites the amount. Returns ErrNotFound if the address does not exist.
func (s *TokenAccountStore) Update(ctx context.Context, a *domain.TokenAccount) error {
	if a == nil {
		return storage.ErrInvalidInput
	}

	tag, err := s.q.Exec(ctx,
		`UPDATE token_accounts SET amount = $2::numeric WHERE address = $1`,
		a.Address[:], formatAmount(a.Amount),
	)
	if err != nil {
		return fmt.Errorf("update token account: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetByAddress retrieves an account. Returns ErrNotFound if not exists.
func (s *TokenAccountStore) GetByAddress(ctx context.Context, address domain.Pubkey) (*domain.TokenAccount, error) {
	query := `SELECT ` + tokenAccountColumns + ` FROM token_accounts WHERE address = $1`
	if s.lockRows {
		query += ` FOR UPDATE`
	}

	a, err := scanTokenAccount(s.q.QueryRow(ctx, query, address[:]))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get token account: %w", err)
	}
	return a, nil
}

// GetAll retrieves all accounts.
func (s *TokenAccountStore) GetAll(ctx context.Context) ([]*domain.TokenAccount, error) {
	rows, err := s.q.Query(ctx, `SELECT `+tokenAccountColumns+` FROM token_accounts ORDER BY address ASC`)
	if err != nil {
		return nil, fmt.Errorf("get token accounts: %w", err)
	}
	defer rows.Close()

	var accounts []*domain.TokenAccount
	for rows.Next() {
		a, err := scanTokenAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scan token account row: %w", err)
		}
		accounts = append(accounts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate token account rows: %w", err)
	}
	return accounts, nil
}

func scanTokenAccount(row pgx.Row) (*domain.TokenAccount, error) {
	var (
		a       domain.TokenAccount
		address []byte
		kind    int16
		amount  string
	)
	if err := row.Scan(&address, &kind, &amount); err != nil {
		return nil, err
	}

	var err error
	if a.Address, err = pubkeyFromBytes(address); err != nil {
		return nil, err
	}
	if a.Amount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	a.Kind = domain.AccountKind(kind)
	return &a, nil
}
