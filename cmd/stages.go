package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/lensworks/etlpipe/internal/pipeline"
	"github.com/lensworks/etlpipe/internal/processor"
)

// Flags shared by the scheduler-facing stage commands.
var (
	stageRunID         string
	stageRunStart      string
	stageBatchFile     string
	stageProcessorName string
)

// ingestCmd runs only the ingest stage.
var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Route files from 'ingest' into 'process' or 'store'",
	RunE: func(cmd *cobra.Command, args []string) error {
		err := pipeline.Ingest(getConfig(), getLogger())
		if errors.Is(err, pipeline.ErrSkip) {
			getLogger().Info("Nothing to ingest.")
			return nil
		}
		return err
	},
}

// batchCmd runs only the batch stage and emits the serialized batches on
// stdout, one JSON payload per line, for an external scheduler to fan out
// across 'process' invocations.
var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Group files in 'process' into file sets and emit serialized batches",
	RunE: func(cmd *cobra.Command, args []string) error {
		payloads, err := pipeline.Batch(getConfig(), getLogger())
		if errors.Is(err, pipeline.ErrSkip) {
			getLogger().Info("Nothing to batch.")
			return nil
		}
		if err != nil {
			return err
		}
		for _, payload := range payloads {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", payload)
		}
		return nil
	},
}

// processCmd runs one batch through the file set processor.
var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Process one serialized batch of file sets",
	Long: `Reads a serialized batch payload (as emitted by 'batch') from the file
given with --batch-file, or from stdin when the flag is '-', and processes
its file sets sequentially, one transaction per file set. Results are
upserted into the ledger under the given run ID and start time, so
re-running a failed task is safe.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := getConfig()
		logger := getLogger()

		runStart, err := parseRunStart(stageRunStart)
		if err != nil {
			return err
		}
		proc, err := processor.New(stageProcessorName, cfg)
		if err != nil {
			return err
		}

		var payload []byte
		if stageBatchFile == "-" {
			payload, err = io.ReadAll(cmd.InOrStdin())
		} else {
			payload, err = os.ReadFile(stageBatchFile)
		}
		if err != nil {
			return fmt.Errorf("read batch payload: %w", err)
		}

		return processor.ProcessBatch(context.Background(), cfg, getDB(), logger, proc, stageRunID, runStart, payload)
	},
}

// storeCmd runs only the store stage.
var storeCmd = &cobra.Command{
	Use:   "store",
	Short: "Move processed files to 'store' and failed files to 'quarantine'",
	RunE: func(cmd *cobra.Command, args []string) error {
		runStart, err := parseRunStart(stageRunStart)
		if err != nil {
			return err
		}
		return pipeline.Store(context.Background(), getConfig(), getDB(), getLogger(), stageRunID, runStart)
	},
}

func init() {
	for _, c := range []*cobra.Command{processCmd, storeCmd} {
		c.Flags().StringVar(&stageRunID, "run-id", "", "Run identifier assigned by the scheduler")
		c.Flags().StringVar(&stageRunStart, "run-start", "", "Run start time (RFC 3339) assigned by the scheduler")
		c.MarkFlagRequired("run-id")
		c.MarkFlagRequired("run-start")
	}
	processCmd.Flags().StringVar(&stageBatchFile, "batch-file", "-", "File holding the serialized batch payload ('-' for stdin)")
	processCmd.Flags().StringVar(&stageProcessorName, "processor", "noop", "Registered processor to apply to each file set")
}
