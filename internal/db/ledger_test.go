package db

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbConn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	// In-memory DuckDB is per connection; keep the pool at one so every
	// statement sees the same database.
	dbConn.SetMaxOpenConns(1)
	t.Cleanup(func() { dbConn.Close() })
	require.NoError(t, InitializeSchema(dbConn))
	return dbConn
}

func testRunStart() time.Time {
	return time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)
}

func TestInitializeSchemaIdempotent(t *testing.T) {
	dbConn := openTestDB(t)
	require.NoError(t, InitializeSchema(dbConn))
}

func TestLedgerRecordsAndViews(t *testing.T) {
	dbConn := openTestDB(t)
	l := NewLedger(dbConn, "garmin", "run-1", testRunStart())

	l.SetRecord("a.csv", false, "", "")
	l.SetRecord("b.csv", false, "", "")
	l.SetRecord("a.csv", true, "", "") // last write wins
	l.SetRecord("c.csv", false, "bad header", "bad header in row 3")

	require.Equal(t, 3, l.Len())

	successes := l.Successes()
	require.Len(t, successes, 1)
	assert.Equal(t, "a.csv", successes[0].FileName)

	errs := l.Errors()
	require.Len(t, errs, 2)
	assert.Equal(t, "b.csv", errs[0].FileName)
	assert.Equal(t, "c.csv", errs[1].FileName)
	assert.Equal(t, "bad header", errs[1].ErrorKind)
}

func TestLedgerSubmitAndLoad(t *testing.T) {
	ctx := context.Background()
	dbConn := openTestDB(t)

	l := NewLedger(dbConn, "garmin", "run-1", testRunStart())
	l.SetRecord("a.csv", true, "", "")
	l.SetRecord("b.csv", false, "parse failure", "parse failure: line 7")
	require.NoError(t, l.Submit(ctx))

	loaded, err := LoadLedger(ctx, dbConn, "garmin", "run-1", testRunStart())
	require.NoError(t, err)
	assert.True(t, l.Equal(loaded))
	assert.True(t, loaded.Equal(l))
}

func TestLedgerSubmitIdempotent(t *testing.T) {
	ctx := context.Background()
	dbConn := openTestDB(t)

	l := NewLedger(dbConn, "garmin", "run-1", testRunStart())
	l.SetRecord("a.csv", false, "boom", "boom at stage 2")
	require.NoError(t, l.Submit(ctx))
	require.NoError(t, l.Submit(ctx))

	// Re-submission updates in place rather than duplicating rows.
	var count int
	row := dbConn.QueryRow(`SELECT COUNT(*) FROM etl_result WHERE run_id = 'run-1'`)
	require.NoError(t, row.Scan(&count))
	assert.Equal(t, 1, count)

	loaded, err := LoadLedger(ctx, dbConn, "garmin", "run-1", testRunStart())
	require.NoError(t, err)
	assert.True(t, l.Equal(loaded))
}

func TestLedgerResubmitOverwrites(t *testing.T) {
	ctx := context.Background()
	dbConn := openTestDB(t)

	l := NewLedger(dbConn, "garmin", "run-1", testRunStart())
	l.SetRecord("a.csv", false, "boom", "boom")
	require.NoError(t, l.Submit(ctx))

	// A retried task converges on the new outcome.
	l.SetRecord("a.csv", true, "", "")
	require.NoError(t, l.Submit(ctx))

	loaded, err := LoadLedger(ctx, dbConn, "garmin", "run-1", testRunStart())
	require.NoError(t, err)
	recs := loaded.Records()
	require.Len(t, recs, 1)
	assert.True(t, recs[0].Success)
	assert.Empty(t, recs[0].ErrorKind)
}

func TestLedgerRunsAreIsolated(t *testing.T) {
	ctx := context.Background()
	dbConn := openTestDB(t)

	run1 := NewLedger(dbConn, "garmin", "run-1", testRunStart())
	run1.SetRecord("a.csv", true, "", "")
	require.NoError(t, run1.Submit(ctx))

	run2 := NewLedger(dbConn, "garmin", "run-2", testRunStart().Add(time.Hour))
	run2.SetRecord("a.csv", false, "boom", "boom")
	require.NoError(t, run2.Submit(ctx))

	loaded1, err := LoadLedger(ctx, dbConn, "garmin", "run-1", testRunStart())
	require.NoError(t, err)
	require.Len(t, loaded1.Records(), 1)
	assert.True(t, loaded1.Records()[0].Success)
}

func TestLedgerEqual(t *testing.T) {
	dbConn := openTestDB(t)
	a := NewLedger(dbConn, "garmin", "run-1", testRunStart())
	b := NewLedger(dbConn, "garmin", "run-1", testRunStart())

	assert.True(t, a.Equal(b))
	a.SetRecord("a.csv", true, "", "")
	assert.False(t, a.Equal(b))
	b.SetRecord("a.csv", true, "", "")
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(nil))
}
