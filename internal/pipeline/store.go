package pipeline

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"time"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/db"
)

// Store moves every file left in the process directory to store, except
// files recorded as failed in the result ledger for this run, which go to
// quarantine.
func Store(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, runID string, runStart time.Time) error {
	dirs := NewDataDirs(cfg.DataDir, cfg.PipelineID)
	if err := dirs.Check(StateProcess, StateStore, StateQuarantine); err != nil {
		return err
	}

	ledger, err := db.LoadLedger(ctx, dbConn, cfg.PipelineID, runID, runStart)
	if err != nil {
		return fmt.Errorf("load result ledger for run %s: %w", runID, err)
	}
	failed := make(map[string]bool)
	for _, rec := range ledger.Errors() {
		failed[rec.FileName] = true
	}

	names, err := listFiles(dirs.Path(StateProcess))
	if err != nil {
		return err
	}

	var toStore, toQuarantine []string
	for _, name := range names {
		src := filepath.Join(dirs.Path(StateProcess), name)
		dest := StateStore
		if failed[name] {
			dest = StateQuarantine
		}
		if err := moveFile(src, filepath.Join(dirs.Path(dest), name)); err != nil {
			return err
		}
		if dest == StateQuarantine {
			toQuarantine = append(toQuarantine, name)
		} else {
			toStore = append(toStore, name)
		}
	}
	sort.Strings(toStore)
	sort.Strings(toQuarantine)

	logger.Info("Store finished.",
		slog.Int("to_store", len(toStore)),
		slog.Any("store_files", toStore),
		slog.Int("to_quarantine", len(toQuarantine)),
		slog.Any("quarantine_files", toQuarantine),
	)
	return nil
}
