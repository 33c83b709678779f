package pipeline

import (
	"fmt"
	"log/slog"
	"path/filepath"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/fileset"
)

// Batch scans the process directory, groups its files into file sets by
// timestamp, distributes the file sets into batches, and returns one
// serialized payload per batch for handoff to independent process workers.
// Returns ErrSkip when the process directory holds no files.
func Batch(cfg config.Config, logger *slog.Logger) ([][]byte, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dirs := NewDataDirs(cfg.DataDir, cfg.PipelineID)
	if err := dirs.Check(StateProcess); err != nil {
		return nil, err
	}

	names, err := listFiles(dirs.Path(StateProcess))
	if err != nil {
		return nil, err
	}
	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dirs.Path(StateProcess), name)
	}

	grouper := fileset.NewGrouper(cfg.FileTypes, cfg.JitterSeed)
	fileSets, err := grouper.Group(paths)
	if err != nil {
		return nil, fmt.Errorf("group files in %q: %w", StateProcess, err)
	}
	if len(fileSets) == 0 {
		return nil, fmt.Errorf("no files found to process: %w", ErrSkip)
	}

	batches, err := fileset.Distribute(fileSets, cfg.MaxBatches, cfg.MinFileSetsPerBatch)
	if err != nil {
		return nil, err
	}

	payloads := make([][]byte, len(batches))
	for i, batch := range batches {
		payload, err := fileset.EncodeBatch(batch)
		if err != nil {
			return nil, err
		}
		payloads[i] = payload
	}

	logger.Info("Batching finished.",
		slog.Int("files", len(paths)),
		slog.Int("file_sets", len(fileSets)),
		slog.Int("batches", len(batches)),
	)
	return payloads, nil
}
