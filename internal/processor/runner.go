package processor

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/db"
	"github.com/lensworks/etlpipe/internal/fileset"
)

// Cap on persisted error detail, so a single pathological failure cannot
// bloat the ledger.
const maxErrorDetailLen = 2000

// Runner drives one batch of file sets through isolated transactions,
// recording a per-file outcome in the result ledger.
//
// Every file across every file set is pre-registered as a failure when the
// runner is constructed, so a crash before or during processing leaves
// failure as the safe default. Each file set then gets its own transaction:
// commit on success, rollback plus a recorded error on failure. A failure
// in one file set never blocks or rolls back another.
type Runner struct {
	dbConn   *sql.DB
	ledger   *db.Ledger
	proc     FileSetProcessor
	logger   *slog.Logger
	fileSets []fileset.FileSet
}

// NewRunner builds a runner for a batch and pre-registers every file in
// the ledger with success=false.
func NewRunner(dbConn *sql.DB, ledger *db.Ledger, proc FileSetProcessor, logger *slog.Logger, fileSets []fileset.FileSet) *Runner {
	r := &Runner{
		dbConn:   dbConn,
		ledger:   ledger,
		proc:     proc,
		logger:   logger,
		fileSets: fileSets,
	}
	for _, fs := range fileSets {
		for _, path := range fs.Paths() {
			ledger.SetRecord(filepath.Base(path), false, "", "")
		}
	}
	return r
}

// Run processes every file set in the batch sequentially and submits the
// full result ledger exactly once afterwards. Per-file-set failures are
// recorded, never returned; a ledger submission failure is fatal to the
// run.
func (r *Runner) Run(ctx context.Context) error {
	for _, fs := range r.fileSets {
		r.processOne(ctx, fs)
	}
	if err := r.ledger.Submit(ctx); err != nil {
		return fmt.Errorf("submit results for run '%s': %w", r.ledger.RunID, err)
	}
	r.logger.Info("Batch finished.",
		slog.Int("succeeded", len(r.ledger.Successes())),
		slog.Int("total", r.ledger.Len()),
	)
	return nil
}

func (r *Runner) processOne(ctx context.Context, fs fileset.FileSet) {
	paths := fs.Paths()
	r.logger.Info("Processing file set.",
		slog.Int("files", len(paths)),
		slog.Int64("total_bytes", fs.TotalSize()),
		slog.Any("paths", paths),
	)

	err := r.runInTx(ctx, fs)
	if err == nil {
		for _, path := range paths {
			r.ledger.SetRecord(filepath.Base(path), true, "", "")
		}
		r.logger.Info("File set processed successfully.")
		return
	}

	r.logger.Error("File set failed, transaction rolled back.", "error", err)
	kind := errKind(err)
	detail := err.Error()
	if len(detail) > maxErrorDetailLen {
		detail = detail[:maxErrorDetailLen]
	}
	for _, path := range paths {
		r.ledger.SetRecord(filepath.Base(path), false, kind, detail)
	}
}

// runInTx runs the optional prepare hook and the domain processor inside a
// transaction scoped to exactly one file set. Panics from the processor
// are recovered into errors so they cannot abort the rest of the batch.
func (r *Runner) runInTx(ctx context.Context, fs fileset.FileSet) (err error) {
	tx, err := r.dbConn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin file set transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("processor panic: %v (%s)", p, panicFrame())
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				r.logger.Warn("Rollback failed.", "error", rbErr)
			}
		}
	}()

	if prep, ok := r.proc.(TxPreparer); ok {
		if err := prep.PrepareTx(ctx, tx); err != nil {
			return fmt.Errorf("prepare transaction: %w", err)
		}
	}
	if err := r.proc.ProcessFileSet(ctx, tx, fs); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit file set transaction: %w", err)
	}
	return nil
}

// ProcessBatch is the entry point on the far side of the batch handoff
// boundary: it decodes a serialized batch payload and runs it against a
// fresh ledger for the given run.
func ProcessBatch(ctx context.Context, cfg config.Config, dbConn *sql.DB, logger *slog.Logger, proc FileSetProcessor, runID string, runStart time.Time, payload []byte) error {
	fileSets, err := fileset.DecodeBatch(payload)
	if err != nil {
		return err
	}
	logger.Info("Processing batch.", slog.Int("file_sets", len(fileSets)))

	ledger := db.NewLedger(dbConn, cfg.PipelineID, runID, runStart)
	return NewRunner(dbConn, ledger, proc, logger, fileSets).Run(ctx)
}

// errKind reduces an error chain to its root cause message, the short code
// recorded in the ledger's error_kind column.
func errKind(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			return err.Error()
		}
		err = next
	}
}

// panicFrame reports the first non-runtime frame of a recovered panic.
func panicFrame() string {
	pcs := make([]uintptr, 16)
	n := runtime.Callers(4, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if !strings.HasPrefix(frame.Function, "runtime.") {
			return fmt.Sprintf("%s %s:%d", frame.Function, filepath.Base(frame.File), frame.Line)
		}
		if !more {
			return "unknown frame"
		}
	}
}
