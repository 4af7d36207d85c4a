package clickhouse

import (
	"context"
	"fmt"

	"memecoin-prediction-market/internal/domain"
	"memecoin-prediction-market/internal/storage"
)

const activityColumns = `event_id, kind, market, market_name, actor, amount, side, yes_amount, no_amount, timestamp`

// ActivityStore implements storage.ActivityStore using ClickHouse.
// Pubkeys are stored in their base58 text form for ad-hoc querying.
type ActivityStore struct {
	conn *Conn
}

// NewActivityStore creates a new ActivityStore.
func NewActivityStore(conn *Conn) *ActivityStore {
	return &ActivityStore{conn: conn}
}

// Compile-time interface check.
var _ storage.ActivityStore = (*ActivityStore)(nil)

// InsertBulk adds multiple events atomically. Fails entire batch on any duplicate.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
func (s *ActivityStore) InsertBulk(ctx context.Context, events []*domain.LedgerEvent) error {
	if len(events) == 0 {
		return nil
	}

	seen := make(map[string]struct{}, len(events))
	for _, e := range events {
		if e == nil || e.EventID == "" || !e.Kind.IsValid() {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[e.EventID]; exists {
			return storage.ErrDuplicateKey
		}
		seen[e.EventID] = struct{}{}
	}

	for _, e := range events {
		exists, err := s.exists(ctx, e.EventID)
		if err != nil {
			return fmt.Errorf("check exists: %w", err)
		}
		if exists {
			return storage.ErrDuplicateKey
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `INSERT INTO ledger_events (`+activityColumns+`)`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range events {
		err = batch.Append(
			e.EventID,
			string(e.Kind),
			e.Market.String(),
			e.MarketName,
			e.Actor.String(),
			e.Amount,
			string(e.Side),
			e.YesAmount,
			e.NoAmount,
			e.Timestamp,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// GetByMarket retrieves all events for a market, ordered by timestamp ASC.
func (s *ActivityStore) GetByMarket(ctx context.Context, market domain.Pubkey) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM ledger_events
		WHERE market = ?
		ORDER BY timestamp ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, market.String())
	if err != nil {
		return nil, fmt.Errorf("query by market: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

// GetByTimeRange retrieves events within [start, end] (inclusive).
func (s *ActivityStore) GetByTimeRange(ctx context.Context, start, end int64) ([]*domain.LedgerEvent, error) {
	query := `
		SELECT ` + activityColumns + `
		FROM ledger_events
		WHERE timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC, event_id ASC
	`

	rows, err := s.conn.Query(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("query by time range: %w", err)
	}
	defer rows.Close()

	return scanEvents(rows)
}

func (s *ActivityStore) exists(ctx context.Context, eventID string) (bool, error) {
	var count uint64
	err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ledger_events WHERE event_id = ?`, eventID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// chRows is the subset of driver.Rows used for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

func scanEvents(rows chRows) ([]*domain.LedgerEvent, error) {
	var events []*domain.LedgerEvent

	for rows.Next() {
		var (
			e             domain.LedgerEvent
			kind, side    string
			market, actor string
		)
		err := rows.Scan(
			&e.EventID,
			&kind,
			&market,
			&e.MarketName,
			&actor,
			&e.Amount,
			&side,
			&e.YesAmount,
			&e.NoAmount,
			&e.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}

		e.Kind = domain.EventKind(kind)
		e.Side = domain.Side(side)
		if e.Market, err = domain.ParsePubkey(market); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		if e.Actor, err = domain.ParsePubkey(actor); err != nil {
			return nil, fmt.Errorf("scan event row: %w", err)
		}
		events = append(events, &e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate event rows: %w", err)
	}
	return events, nil
}
