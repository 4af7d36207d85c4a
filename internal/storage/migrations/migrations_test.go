package migrations

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x UInt8) ENGINE = Memory; -- trailing

-- second
INSERT INTO b VALUES ('semi;colon', 'it''s -- not a comment');
`
	stmts, err := splitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x UInt8) ENGINE = Memory", stmts[0])
	assert.Equal(t, "INSERT INTO b VALUES ('semi;colon', 'it''s -- not a comment')", stmts[1])

	_, err = splitStatements(`SELECT 'open;`)
	assert.Error(t, err)

	stmts, err = splitStatements("-- only comments\n\n")
	require.NoError(t, err)
	assert.Empty(t, stmts)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := sqlFiles(PostgresFS, "postgres")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ledger.sql", "002_token_accounts.sql"}, pg)

	ch, err := sqlFiles(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	assert.Equal(t, []string{"001_activity.sql"}, ch)
}

func TestEmbeddedClickhouseMigrationsParse(t *testing.T) {
	data, err := ClickhouseFS.ReadFile("clickhouse/001_activity.sql")
	require.NoError(t, err)

	stmts, err := splitStatements(string(data))
	require.NoError(t, err)
	require.Len(t, stmts, 1)
	assert.Contains(t, stmts[0], "CREATE TABLE IF NOT EXISTS ledger_events")
}

func TestRunClickhouseMigrations_RejectsBadDatabase(t *testing.T) {
	_, err := RunClickhouseMigrations(t.Context(), "clickhouse://localhost:9000")
	assert.Error(t, err)

	_, err = RunClickhouseMigrations(t.Context(), "clickhouse://localhost:9000/bad-name")
	assert.ErrorContains(t, err, "not a plain identifier")
}
