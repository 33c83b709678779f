package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/lensworks/etlpipe/internal/saver"
)

var (
	saveRunID    string
	saveRunStart string
	saveOutput   string
)

// saveCmd archives a run's ledger records to a Parquet file.
var saveCmd = &cobra.Command{
	Use:   "save",
	Short: "Save a run's ledger records to a Parquet file",
	Long: `Reads every result ledger row for the given run and writes them to a
Parquet file, for retention or analysis outside the operational database.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		runStart, err := parseRunStart(saveRunStart)
		if err != nil {
			return err
		}

		err = saver.SaveRunToParquet(context.Background(), getDB(), logger, cfg.PipelineID, saveRunID, runStart, saveOutput)
		if err != nil {
			return fmt.Errorf("save failed: %w", err)
		}
		return nil
	},
}

func init() {
	saveCmd.Flags().StringVar(&saveRunID, "run-id", "", "Run identifier to export")
	saveCmd.Flags().StringVar(&saveRunStart, "run-start", "", "Run start time (RFC 3339)")
	saveCmd.Flags().StringVarP(&saveOutput, "output", "o", "results.parquet", "Output Parquet file path")
	saveCmd.MarkFlagRequired("run-id")
	saveCmd.MarkFlagRequired("run-start")
}
