package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"

	"github.com/lensworks/etlpipe/internal/config"
)

// Ingest routes files from the ingest directory into process or store.
//
// Files matching the store filter move to store first. Files matching the
// process filter move to process. When no process filter is configured,
// every remaining file moves to process; otherwise non-matching files stay
// in ingest. Returns ErrSkip when the ingest directory is empty.
func Ingest(cfg config.Config, logger *slog.Logger) error {
	dirs := NewDataDirs(cfg.DataDir, cfg.PipelineID)
	if err := dirs.Check(StateIngest, StateProcess, StateStore); err != nil {
		return err
	}

	names, err := listFiles(dirs.Path(StateIngest))
	if err != nil {
		return err
	}
	if len(names) == 0 {
		return fmt.Errorf("no files found to ingest: %w", ErrSkip)
	}

	remaining := make(map[string]bool, len(names))
	for _, name := range names {
		remaining[name] = true
	}
	var toStore, toProcess []string

	move := func(name string, dest DataState) error {
		src := filepath.Join(dirs.Path(StateIngest), name)
		dst := filepath.Join(dirs.Path(dest), name)
		if err := moveFile(src, dst); err != nil {
			return err
		}
		delete(remaining, name)
		return nil
	}

	if cfg.StoreFormat != nil {
		for _, name := range names {
			if remaining[name] && cfg.StoreFormat.MatchString(name) {
				if err := move(name, StateStore); err != nil {
					return err
				}
				toStore = append(toStore, name)
			}
		}
	}
	if cfg.ProcessFormat != nil {
		for _, name := range names {
			if remaining[name] && cfg.ProcessFormat.MatchString(name) {
				if err := move(name, StateProcess); err != nil {
					return err
				}
				toProcess = append(toProcess, name)
			}
		}
	} else {
		for _, name := range names {
			if remaining[name] {
				if err := move(name, StateProcess); err != nil {
					return err
				}
				toProcess = append(toProcess, name)
			}
		}
	}

	left := make([]string, 0, len(remaining))
	for name := range remaining {
		left = append(left, name)
	}
	sort.Strings(left)
	sort.Strings(toProcess)
	sort.Strings(toStore)

	logger.Info("Ingest finished.",
		slog.Int("to_process", len(toProcess)),
		slog.Any("process_files", toProcess),
		slog.Int("to_store", len(toStore)),
		slog.Any("store_files", toStore),
		slog.Int("left_in_ingest", len(left)),
		slog.Any("ingest_files", left),
	)
	return nil
}
