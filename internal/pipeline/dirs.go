package pipeline

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
)

// DataState is one of the pipeline states a file moves through.
type DataState string

const (
	StateIngest     DataState = "ingest"
	StateProcess    DataState = "process"
	StateQuarantine DataState = "quarantine"
	StateStore      DataState = "store"
)

// AllStates lists every data state in pipeline order.
var AllStates = []DataState{StateIngest, StateProcess, StateQuarantine, StateStore}

// ErrSkip signals that a stage found no work. Callers treat it as a clean
// no-op termination of the run, not a failure.
var ErrSkip = errors.New("nothing to do")

// MissingDirError reports a state directory that must exist before a stage
// can run.
type MissingDirError struct {
	State DataState
	Path  string
}

func (e *MissingDirError) Error() string {
	return fmt.Sprintf("the %q directory does not exist: %s", e.State, e.Path)
}

// DataDirs computes the standard per-pipeline directory paths for each data
// state: <dataDir>/<pipelineID>/<state>.
type DataDirs struct {
	base string
}

// NewDataDirs binds the directory layout for one pipeline. No directories
// are created; call Create for that.
func NewDataDirs(dataDir, pipelineID string) DataDirs {
	return DataDirs{base: filepath.Join(dataDir, pipelineID)}
}

// Path returns the directory for the given data state.
func (d DataDirs) Path(state DataState) string {
	return filepath.Join(d.base, string(state))
}

// Create makes every state directory, if missing. Safe to call repeatedly.
func (d DataDirs) Create(logger *slog.Logger) error {
	for _, state := range AllStates {
		dir := d.Path(state)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %q directory: %w", state, err)
		}
		logger.Debug("Ensured directory exists.", slog.String("path", dir))
	}
	return nil
}

// Check fails fast with a MissingDirError if any of the given state
// directories does not exist.
func (d DataDirs) Check(states ...DataState) error {
	for _, state := range states {
		dir := d.Path(state)
		if _, err := os.Stat(dir); err != nil {
			return &MissingDirError{State: state, Path: dir}
		}
	}
	return nil
}

// listFiles returns the names of regular files directly under dir, sorted.
func listFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read directory %s: %w", dir, err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}
	return names, nil
}

// moveFile renames src to dst, falling back to copy-and-remove when the
// rename crosses filesystems.
func moveFile(src, dst string) error {
	if err := os.Rename(src, dst); err == nil {
		return nil
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return fmt.Errorf("move %s: %w", src, err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		return fmt.Errorf("move %s to %s: %w", src, dst, err)
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("remove %s after copy: %w", src, err)
	}
	return nil
}
