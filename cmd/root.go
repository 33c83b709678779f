package cmd

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/lensworks/etlpipe/internal/config"
	"github.com/lensworks/etlpipe/internal/db"
	"github.com/lensworks/etlpipe/internal/fileset"
	"github.com/lensworks/etlpipe/internal/pipeline"

	_ "github.com/marcboeker/go-duckdb" // DuckDB driver
	"github.com/spf13/cobra"
)

var (
	// Config flags - bound in init()
	pipelineID    string
	dataDir       string
	dbPath        string
	fileTypeSpecs []string
	maxBatches    int
	minPerBatch   int
	storeFormat   string
	processFormat string
	jitterSeed    int64
	logFormat     string
	logLevel      string
	logOutput     string

	// Global instances populated in PersistentPreRunE
	rootLogger *slog.Logger
	dbConn     *sql.DB
	appConfig  config.Config
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "etlpipe",
	Short: "Move files through an ingest/process/store pipeline with per-file result tracking.",
	Long: `etlpipe coordinates file-based ETL pipelines. Files flow through four
state directories (ingest, process, quarantine, store); files in 'process'
are grouped into timestamp-derived file sets, distributed across a bounded
number of batches, and processed one transaction per file set. Per-file
outcomes are recorded in a DuckDB result ledger with upsert semantics, so
retried tasks converge instead of duplicating rows.

The primary command is 'run', which executes all four stages locally. The
individual stage commands (ingest, batch, process, store) exist for
external schedulers that wire the stages up themselves.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// --- 1. Initialize Logger ---
		var level slog.Level
		switch strings.ToLower(logLevel) {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			level = slog.LevelInfo
		}

		var logWriter io.Writer = os.Stderr
		switch strings.ToLower(logOutput) {
		case "", "stderr":
		case "stdout":
			logWriter = os.Stdout
		default:
			f, err := os.OpenFile(logOutput, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
			if err != nil {
				return fmt.Errorf("failed to open log file %s: %w", logOutput, err)
			}
			logWriter = f
		}

		opts := &slog.HandlerOptions{Level: level}
		var handler slog.Handler
		if logFormat == "json" {
			handler = slog.NewJSONHandler(logWriter, opts)
		} else {
			handler = slog.NewTextHandler(logWriter, opts)
		}
		rootLogger = slog.New(handler)
		slog.SetDefault(rootLogger)

		// --- 2. Load/Validate Config (from flags) ---
		fileTypes := fileset.DefaultTypes()
		if len(fileTypeSpecs) > 0 {
			var err error
			fileTypes, err = fileset.ParsePatterns(fileTypeSpecs)
			if err != nil {
				return err
			}
		}
		appConfig = config.Config{
			PipelineID:          pipelineID,
			DataDir:             dataDir,
			DbPath:              dbPath,
			FileTypes:           fileTypes,
			MaxBatches:          maxBatches,
			MinFileSetsPerBatch: minPerBatch,
			JitterSeed:          jitterSeed,
		}
		if storeFormat != "" {
			re, err := regexp.Compile(storeFormat)
			if err != nil {
				return fmt.Errorf("invalid --store-format regex: %w", err)
			}
			appConfig.StoreFormat = re
		}
		if processFormat != "" {
			re, err := regexp.Compile(processFormat)
			if err != nil {
				return fmt.Errorf("invalid --process-format regex: %w", err)
			}
			appConfig.ProcessFormat = re
		}
		if err := appConfig.Validate(); err != nil {
			return err
		}
		rootLogger.Debug("Configuration loaded.", slog.String("pipeline", appConfig.PipelineID))

		// --- 3. Ensure pipeline state directories exist ---
		dirs := pipeline.NewDataDirs(appConfig.DataDir, appConfig.PipelineID)
		if err := dirs.Create(rootLogger); err != nil {
			return err
		}

		// --- 4. Initialize DuckDB Connection & Ledger Schema ---
		if appConfig.DbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(appConfig.DbPath), 0o755); err != nil {
				return fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		var err error
		dbConn, err = sql.Open("duckdb", appConfig.DbPath)
		if err != nil {
			return fmt.Errorf("failed to open duckdb database (%s): %w", appConfig.DbPath, err)
		}
		pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err = dbConn.PingContext(pingCtx); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to ping duckdb database (%s): %w", appConfig.DbPath, err)
		}
		if err := db.InitializeSchema(dbConn); err != nil {
			dbConn.Close()
			return fmt.Errorf("failed to initialize ledger schema: %w", err)
		}
		rootLogger.Info("Ledger database ready.", slog.String("path", appConfig.DbPath))

		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if dbConn != nil {
			if err := dbConn.Close(); err != nil {
				rootLogger.Error("Failed to close database cleanly.", "error", err)
			}
		}
		return nil
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main().
func Execute() {
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(ingestCmd)
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(storeCmd)
	rootCmd.AddCommand(stateCmd)
	rootCmd.AddCommand(saveCmd)

	if err := rootCmd.Execute(); err != nil {
		if rootLogger != nil {
			rootLogger.Error("Command execution failed.", "error", err)
		} else {
			fmt.Fprintf(os.Stderr, "Command execution failed: %v\n", err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&pipelineID, "pipeline", "p", "", "Pipeline identifier (required; names the state directories and ledger rows)")
	rootCmd.PersistentFlags().StringVarP(&dataDir, "data-dir", "d", "./data", "Base directory holding per-pipeline state directories")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "./etlpipe_state.duckdb", "Path to the DuckDB result ledger database (:memory: for in-memory)")
	rootCmd.PersistentFlags().StringArrayVar(&fileTypeSpecs, "file-type", nil, "File type as NAME=REGEX; repeatable, order significant (default DEFAULT=.*)")
	rootCmd.PersistentFlags().IntVar(&maxBatches, "max-batches", config.DefaultMaxBatches, "Maximum number of concurrent process batches")
	rootCmd.PersistentFlags().IntVar(&minPerBatch, "min-per-batch", config.DefaultMinFileSetsPerBatch, "Minimum number of file sets per batch")
	rootCmd.PersistentFlags().StringVar(&storeFormat, "store-format", "", "Regex routing ingest files straight to the store directory")
	rootCmd.PersistentFlags().StringVar(&processFormat, "process-format", "", "Regex routing ingest files to the process directory; non-matching files stay in ingest")
	rootCmd.PersistentFlags().Int64Var(&jitterSeed, "jitter-seed", 0, "Seed for the mtime jitter applied to files without an embedded timestamp (0 = from clock)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log output format (text or json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logOutput, "log-output", "stderr", "Log output destination (stderr, stdout, or file path)")

	rootCmd.MarkPersistentFlagRequired("pipeline")
	rootCmd.Version = "0.1.0"
}

// Helper to get logger (could use context propagation instead)
func getLogger() *slog.Logger {
	if rootLogger == nil {
		return slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return rootLogger
}

// Helper to get DB connection
func getDB() *sql.DB {
	return dbConn
}

// Helper to get Config
func getConfig() config.Config {
	return appConfig
}

// parseRunStart parses the --run-start flag value.
func parseRunStart(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid run start time %q, expected RFC 3339", s)
}
