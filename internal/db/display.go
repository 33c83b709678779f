package db

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// DisplayResults queries and prints recent result ledger rows, optionally
// filtered by pipeline and run.
func DisplayResults(ctx context.Context, db *sql.DB, pipelineFilter, runFilter string, limit int) error {
	query := `
        SELECT pipeline_id, run_id, run_start_time, file_name, success,
               error_kind, update_ts
        FROM etl_result
    `
	conditions := []string{}
	args := []any{}
	if pipelineFilter != "" {
		conditions = append(conditions, "pipeline_id = ?")
		args = append(args, pipelineFilter)
	}
	if runFilter != "" {
		conditions = append(conditions, "run_id = ?")
		args = append(args, runFilter)
	}
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY update_ts DESC, file_name LIMIT ?"
	args = append(args, limit)

	fmt.Printf("--- Result Ledger (Limit %d) ---\n", limit)
	fmt.Printf("%-20s | %-30s | %-25s | %-40s | %-7s | %s\n",
		"Pipeline", "Run", "Run Start (UTC)", "File", "Success", "Error")
	fmt.Println(strings.Repeat("-", 150))

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to query result ledger: %w", err)
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var pipelineID, runID, fileName string
		var runStart, updateTS time.Time
		var success bool
		var errorKind sql.NullString
		if err := rows.Scan(&pipelineID, &runID, &runStart, &fileName, &success, &errorKind, &updateTS); err != nil {
			return fmt.Errorf("failed to scan result row: %w", err)
		}
		fmt.Printf("%-20s | %-30s | %-25s | %-40s | %-7t | %s\n",
			pipelineID, runID, runStart.Format(time.RFC3339), fileName, success, errorKind.String)
		count++
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating result rows: %w", err)
	}
	fmt.Printf("Displayed %d records.\n", count)
	return nil
}
