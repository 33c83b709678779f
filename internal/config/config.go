package config

import (
	"fmt"
	"regexp"

	"github.com/lensworks/etlpipe/internal/fileset"
)

const (
	// Default maximum number of batches processed concurrently.
	DefaultMaxBatches = 1

	// Default minimum number of file sets assigned to a single batch.
	DefaultMinFileSetsPerBatch = 1
)

// Config holds application settings for one pipeline instance.
type Config struct {
	// PipelineID names the pipeline. It is also the directory name under
	// DataDir holding the ingest/process/quarantine/store state directories,
	// and the pipeline_id column of the result ledger.
	PipelineID string

	// DataDir is the base directory under which per-pipeline state
	// directories live.
	DataDir string

	// DbPath is the DuckDB database file holding the result ledger
	// (":memory:" for in-memory).
	DbPath string

	// FileTypes is the ordered list of recognized file types. First match
	// wins during classification.
	FileTypes []fileset.TypePattern

	// MaxBatches bounds the number of concurrent process batches.
	MaxBatches int

	// MinFileSetsPerBatch is the minimum number of file sets per batch.
	MinFileSetsPerBatch int

	// StoreFormat, when set, routes ingest files matching it straight to
	// the store directory.
	StoreFormat *regexp.Regexp

	// ProcessFormat, when set, routes ingest files matching it to the
	// process directory; non-matching files stay in ingest.
	ProcessFormat *regexp.Regexp

	// JitterSeed seeds the random sub-second jitter applied to files whose
	// name carries no timestamp. Zero means seed from the clock.
	JitterSeed int64
}

// Validate checks configuration invariants before any file movement happens.
func (c Config) Validate() error {
	if c.PipelineID == "" {
		return fmt.Errorf("pipeline id must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("data dir must not be empty")
	}
	if c.MaxBatches < 1 {
		return fmt.Errorf("max batches must be >= 1, got %d", c.MaxBatches)
	}
	if c.MinFileSetsPerBatch < 1 {
		return fmt.Errorf("min file sets per batch must be >= 1, got %d", c.MinFileSetsPerBatch)
	}
	if len(c.FileTypes) == 0 {
		return fmt.Errorf("at least one file type pattern must be defined")
	}
	return nil
}
