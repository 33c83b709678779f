package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/marcboeker/go-duckdb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/db"
	"github.com/lensworks/etlpipe/internal/fileset"
	"github.com/lensworks/etlpipe/internal/pipeline"
	"github.com/lensworks/etlpipe/internal/processor"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dbConn, err := sql.Open("duckdb", "")
	require.NoError(t, err)
	// In-memory DuckDB is per connection; keep the pool at one so every
	// statement sees the same database.
	dbConn.SetMaxOpenConns(1)
	t.Cleanup(func() { dbConn.Close() })
	require.NoError(t, db.InitializeSchema(dbConn))
	return dbConn
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func setupPipeline(t *testing.T) config.Config {
	t.Helper()
	cfg := config.Config{
		PipelineID:          "garmin",
		DataDir:             t.TempDir(),
		FileTypes:           fileset.DefaultTypes(),
		MaxBatches:          2,
		MinFileSetsPerBatch: 1,
		JitterSeed:          1,
	}
	dirs := pipeline.NewDataDirs(cfg.DataDir, cfg.PipelineID)
	require.NoError(t, dirs.Create(discardLogger()))
	return cfg
}

func dropFiles(t *testing.T, cfg config.Config, state pipeline.DataState, names ...string) {
	t.Helper()
	dirs := pipeline.NewDataDirs(cfg.DataDir, cfg.PipelineID)
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dirs.Path(state), name), []byte(name), 0o644))
	}
}

func filesIn(t *testing.T, cfg config.Config, state pipeline.DataState) []string {
	t.Helper()
	dirs := pipeline.NewDataDirs(cfg.DataDir, cfg.PipelineID)
	entries, err := os.ReadDir(dirs.Path(state))
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

// failMatching fails any file set containing a path with the given
// substring.
type failMatching struct{ substr string }

func (f failMatching) ProcessFileSet(_ context.Context, _ *sql.Tx, fs fileset.FileSet) error {
	for _, path := range fs.Paths() {
		if strings.Contains(path, f.substr) {
			return errors.New("synthetic failure")
		}
	}
	return nil
}

func TestRunPipelineHappyPath(t *testing.T) {
	ctx := context.Background()
	cfg := setupPipeline(t)
	dbConn := openTestDB(t)
	runStart := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)

	dropFiles(t, cfg, pipeline.StateIngest,
		"2025-08-02T12:00:00+00:00_data1.csv",
		"2025-08-02T12:00:00+00:00_data2.csv",
		"2025-08-02T13:00:00+00:00_data3.csv",
	)

	err := RunPipeline(ctx, cfg, dbConn, discardLogger(), processor.NoopProcessor{}, "run-1", runStart)
	require.NoError(t, err)

	assert.Empty(t, filesIn(t, cfg, pipeline.StateIngest))
	assert.Empty(t, filesIn(t, cfg, pipeline.StateProcess))
	assert.Empty(t, filesIn(t, cfg, pipeline.StateQuarantine))
	assert.ElementsMatch(t, []string{
		"2025-08-02T12:00:00+00:00_data1.csv",
		"2025-08-02T12:00:00+00:00_data2.csv",
		"2025-08-02T13:00:00+00:00_data3.csv",
	}, filesIn(t, cfg, pipeline.StateStore))

	ledger, err := db.LoadLedger(ctx, dbConn, cfg.PipelineID, "run-1", runStart)
	require.NoError(t, err)
	assert.Equal(t, 3, ledger.Len())
	assert.Len(t, ledger.Successes(), 3)
}

func TestRunPipelineQuarantinesFailedSet(t *testing.T) {
	ctx := context.Background()
	cfg := setupPipeline(t)
	dbConn := openTestDB(t)
	runStart := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)

	// The 12:00 set fails as a unit; the 13:00 set commits independently.
	dropFiles(t, cfg, pipeline.StateIngest,
		"2025-08-02T12:00:00+00:00_bad1.csv",
		"2025-08-02T12:00:00+00:00_bad2.csv",
		"2025-08-02T13:00:00+00:00_good.csv",
	)

	err := RunPipeline(ctx, cfg, dbConn, discardLogger(), failMatching{substr: "bad"}, "run-1", runStart)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{
		"2025-08-02T12:00:00+00:00_bad1.csv",
		"2025-08-02T12:00:00+00:00_bad2.csv",
	}, filesIn(t, cfg, pipeline.StateQuarantine))
	assert.Equal(t, []string{"2025-08-02T13:00:00+00:00_good.csv"}, filesIn(t, cfg, pipeline.StateStore))

	ledger, err := db.LoadLedger(ctx, dbConn, cfg.PipelineID, "run-1", runStart)
	require.NoError(t, err)
	assert.Len(t, ledger.Errors(), 2)
	assert.Len(t, ledger.Successes(), 1)
}

func TestRunPipelineEmptyIngestIsCleanSkip(t *testing.T) {
	cfg := setupPipeline(t)
	dbConn := openTestDB(t)

	err := RunPipeline(context.Background(), cfg, dbConn, discardLogger(), processor.NoopProcessor{}, "run-1", time.Now().UTC())
	assert.NoError(t, err)
}

func TestRunPipelineRerunConverges(t *testing.T) {
	ctx := context.Background()
	cfg := setupPipeline(t)
	dbConn := openTestDB(t)
	runStart := time.Date(2025, 8, 2, 12, 0, 0, 0, time.UTC)

	dropFiles(t, cfg, pipeline.StateIngest, "2025-08-02T12:00:00+00:00_data1.csv")

	// First attempt fails and quarantines the file.
	require.NoError(t, RunPipeline(ctx, cfg, dbConn, discardLogger(), failMatching{substr: "data"}, "run-1", runStart))
	require.Equal(t, []string{"2025-08-02T12:00:00+00:00_data1.csv"}, filesIn(t, cfg, pipeline.StateQuarantine))

	// Operator re-feeds the file; the same run retries and the upsert
	// flips the ledger row to success.
	dirs := pipeline.NewDataDirs(cfg.DataDir, cfg.PipelineID)
	require.NoError(t, os.Rename(
		filepath.Join(dirs.Path(pipeline.StateQuarantine), "2025-08-02T12:00:00+00:00_data1.csv"),
		filepath.Join(dirs.Path(pipeline.StateIngest), "2025-08-02T12:00:00+00:00_data1.csv"),
	))
	require.NoError(t, RunPipeline(ctx, cfg, dbConn, discardLogger(), processor.NoopProcessor{}, "run-1", runStart))

	assert.Equal(t, []string{"2025-08-02T12:00:00+00:00_data1.csv"}, filesIn(t, cfg, pipeline.StateStore))
	ledger, err := db.LoadLedger(ctx, dbConn, cfg.PipelineID, "run-1", runStart)
	require.NoError(t, err)
	require.Equal(t, 1, ledger.Len())
	assert.Len(t, ledger.Successes(), 1)
}
