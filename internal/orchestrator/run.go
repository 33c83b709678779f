package orchestrator

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/pipeline"
	"github.com/lensworks/etlpipe/internal/processor"
)

// RunPipeline executes a full pipeline run locally: ingest, batch,
// concurrent processing of every batch, then store. It plays the role an
// external workflow scheduler would otherwise play, fanning the process
// stage out across goroutines and treating a skip as a clean termination.
func RunPipeline(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, proc processor.FileSetProcessor, runID string, runStart time.Time) error {
	logger.Info("Starting pipeline run.",
		slog.String("pipeline", cfg.PipelineID),
		slog.String("run_id", runID),
		slog.Time("run_start", runStart),
	)

	// --- Phase 1: Ingest ---
	if err := pipeline.Ingest(cfg, logger); err != nil {
		if errors.Is(err, pipeline.ErrSkip) {
			logger.Info("Nothing to ingest. Run finished.")
			return nil
		}
		return fmt.Errorf("ingest: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// --- Phase 2: Batch ---
	payloads, err := pipeline.Batch(cfg, logger)
	if err != nil {
		if errors.Is(err, pipeline.ErrSkip) {
			logger.Info("Nothing to process. Run finished.")
			return nil
		}
		return fmt.Errorf("batch: %w", err)
	}

	// --- Phase 3: Process batches concurrently ---
	// Each batch crosses the serialization boundary and writes disjoint
	// file names, so concurrent ledger submissions never touch the same
	// row.
	logger.Info("Processing batches.", slog.Int("batches", len(payloads)))
	g, gctx := errgroup.WithContext(ctx)
	for i, payload := range payloads {
		batchLogger := logger.With(slog.Int("batch", i))
		g.Go(func() error {
			return processor.ProcessBatch(gctx, cfg, dbConn, batchLogger, proc, runID, runStart, payload)
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("process: %w", err)
	}

	// --- Phase 4: Store ---
	if err := pipeline.Store(ctx, cfg, dbConn, logger, runID, runStart); err != nil {
		return fmt.Errorf("store: %w", err)
	}

	logger.Info("Pipeline run finished.", slog.String("run_id", runID))
	return nil
}
