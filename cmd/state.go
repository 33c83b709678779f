package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/lensworks/etlpipe/internal/db"
)

var (
	stateLimit     int
	stateFilterRun string
)

// stateCmd displays persisted result ledger rows.
var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "View persisted per-file results from the ledger",
	Long: `Queries the DuckDB result ledger and displays per-file outcomes for this
pipeline, most recently updated first. Use --run to restrict the output to
a single run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger := getLogger()
		cfg := getConfig()

		logger.Info("Querying result ledger.", "run_filter", stateFilterRun, "limit", stateLimit)
		return db.DisplayResults(context.Background(), getDB(), cfg.PipelineID, stateFilterRun, stateLimit)
	},
}

func init() {
	stateCmd.Flags().IntVarP(&stateLimit, "limit", "n", 50, "Limit the number of ledger rows displayed")
	stateCmd.Flags().StringVarP(&stateFilterRun, "run", "r", "", "Filter rows by run ID")
}
