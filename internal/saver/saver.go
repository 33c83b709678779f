package saver

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/lensworks/etlpipe/internal/db"
)

// resultRow is the Parquet schema for one exported ledger record.
type resultRow struct {
	PipelineID  string `parquet:"name=pipeline_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	RunID       string `parquet:"name=run_id, type=BYTE_ARRAY, convertedtype=UTF8, encoding=PLAIN_DICTIONARY"`
	RunStartMS  int64  `parquet:"name=run_start_time, type=INT64, convertedtype=TIMESTAMP_MILLIS"`
	FileName    string `parquet:"name=file_name, type=BYTE_ARRAY, convertedtype=UTF8"`
	Success     bool   `parquet:"name=success, type=BOOLEAN"`
	ErrorKind   string `parquet:"name=error_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	ErrorDetail string `parquet:"name=error_detail, type=BYTE_ARRAY, convertedtype=UTF8"`
}

// SaveRunToParquet archives a run's result ledger rows to a Parquet file,
// for long-term retention outside the operational database.
func SaveRunToParquet(ctx context.Context, dbConn *sql.DB, logger *slog.Logger, pipelineID, runID string, runStart time.Time, outputPath string) error {
	ledger, err := db.LoadLedger(ctx, dbConn, pipelineID, runID, runStart)
	if err != nil {
		return fmt.Errorf("load ledger for run '%s': %w", runID, err)
	}
	if ledger.Len() == 0 {
		return fmt.Errorf("no ledger records found for run '%s'", runID)
	}

	if dir := filepath.Dir(outputPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output directory '%s': %w", dir, err)
		}
	}

	fw, err := local.NewLocalFileWriter(outputPath)
	if err != nil {
		return fmt.Errorf("create parquet file '%s': %w", outputPath, err)
	}

	pw, err := writer.NewParquetWriter(fw, new(resultRow), 1)
	if err != nil {
		fw.Close()
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = parquet.CompressionCodec_SNAPPY

	for _, rec := range ledger.Records() {
		row := resultRow{
			PipelineID:  pipelineID,
			RunID:       runID,
			RunStartMS:  ledger.RunStart.UnixMilli(),
			FileName:    rec.FileName,
			Success:     rec.Success,
			ErrorKind:   rec.ErrorKind,
			ErrorDetail: rec.ErrorDetail,
		}
		if err := pw.Write(row); err != nil {
			pw.WriteStop()
			fw.Close()
			return fmt.Errorf("write parquet row for '%s': %w", rec.FileName, err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		fw.Close()
		return fmt.Errorf("finalize parquet file: %w", err)
	}
	if err := fw.Close(); err != nil {
		return fmt.Errorf("close parquet file: %w", err)
	}

	logger.Info("Saved run results to Parquet.",
		slog.String("run_id", runID),
		slog.Int("records", ledger.Len()),
		slog.String("output_path", outputPath),
	)
	return nil
}
