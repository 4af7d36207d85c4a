// Package migrations creates the ledger tables in PostgreSQL and the
// activity log table in ClickHouse from embedded SQL files.
package migrations

import "embed"

// PostgresFS holds the ledger schema: markets, bets and token accounts.
//
//go:embed postgres/*.sql
var PostgresFS embed.FS

// ClickhouseFS holds the append-only activity log schema.
//
//go:embed clickhouse/*.sql
var ClickhouseFS embed.FS
