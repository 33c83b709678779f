package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/lensworks/etlpipe/internal/orchestrator"
	"github.com/lensworks/etlpipe/internal/processor"
)

var runProcessorName string

// runCmd executes a full pipeline run locally.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full ingest/batch/process/store workflow",
	Long: `Performs a complete pipeline run:
1. Routes files from 'ingest' into 'process' (or straight to 'store').
2. Groups files in 'process' into timestamp-derived file sets and
   distributes them across batches.
3. Processes each batch concurrently, one transaction per file set,
   recording per-file outcomes in the result ledger.
4. Moves processed files to 'store', failed files to 'quarantine'.

A fresh run ID is generated for each invocation.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		proc, err := processor.New(runProcessorName, cfg)
		if err != nil {
			return err
		}

		runID := uuid.NewString()
		runStart := time.Now().UTC()

		err = orchestrator.RunPipeline(context.Background(), cfg, getDB(), logger, proc, runID, runStart)
		if err != nil {
			return fmt.Errorf("run workflow failed: %w", err)
		}
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&runProcessorName, "processor", "noop", "Registered processor to apply to each file set")
}
