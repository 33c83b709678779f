package db

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb" // Driver
)

// Schema SQL. One row per (pipeline run, file name); the primary key makes
// re-submission from a retried task an update, never a duplicate row.
const schemaTableSQL = `
CREATE TABLE IF NOT EXISTS etl_result (
    pipeline_id    VARCHAR NOT NULL,
    run_id         VARCHAR NOT NULL,
    run_start_time TIMESTAMP NOT NULL,
    file_name      VARCHAR NOT NULL,
    success        BOOLEAN NOT NULL,
    error_kind     VARCHAR,
    error_detail   VARCHAR,
    create_ts      TIMESTAMP NOT NULL,
    update_ts      TIMESTAMP NOT NULL,
    PRIMARY KEY (pipeline_id, run_id, run_start_time, file_name)
);
`

// InitializeSchema creates the result ledger table.
func InitializeSchema(db *sql.DB) error {
	_, err := db.Exec(schemaTableSQL)
	if err != nil && !strings.Contains(strings.ToLower(err.Error()), "already exists") {
		return fmt.Errorf("failed to execute table setup: %w", err)
	}
	return nil
}

// ResultRecord is the outcome of processing one file in a pipeline run.
// ErrorKind and ErrorDetail are empty for successes.
type ResultRecord struct {
	FileName    string
	Success     bool
	ErrorKind   string
	ErrorDetail string
}

// Ledger accumulates per-file results for one pipeline run in memory and
// persists them with upsert semantics, so a retried task converges on the
// same rows instead of duplicating them.
type Ledger struct {
	db         *sql.DB
	PipelineID string
	RunID      string
	RunStart   time.Time

	records map[string]ResultRecord
}

// NewLedger creates an empty ledger for a run. The run start time is
// normalized to UTC microseconds, matching the TIMESTAMP precision of the
// persisted key.
func NewLedger(dbConn *sql.DB, pipelineID, runID string, runStart time.Time) *Ledger {
	return &Ledger{
		db:         dbConn,
		PipelineID: pipelineID,
		RunID:      runID,
		RunStart:   runStart.UTC().Truncate(time.Microsecond),
		records:    make(map[string]ResultRecord),
	}
}

// LoadLedger reads back the persisted records for a run.
func LoadLedger(ctx context.Context, dbConn *sql.DB, pipelineID, runID string, runStart time.Time) (*Ledger, error) {
	l := NewLedger(dbConn, pipelineID, runID, runStart)

	query := `
        SELECT file_name, success, error_kind, error_detail
        FROM etl_result
        WHERE pipeline_id = ? AND run_id = ? AND run_start_time = ?;
    `
	rows, err := dbConn.QueryContext(ctx, query, l.PipelineID, l.RunID, l.RunStart)
	if err != nil {
		return nil, fmt.Errorf("query results for run '%s': %w", runID, err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec ResultRecord
		var kind, detail sql.NullString
		if err := rows.Scan(&rec.FileName, &rec.Success, &kind, &detail); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		rec.ErrorKind = kind.String
		rec.ErrorDetail = detail.String
		l.records[rec.FileName] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate result rows: %w", err)
	}
	return l, nil
}

// SetRecord sets the in-memory record for a file. Last write wins.
func (l *Ledger) SetRecord(fileName string, success bool, errorKind, errorDetail string) {
	l.records[fileName] = ResultRecord{
		FileName:    fileName,
		Success:     success,
		ErrorKind:   errorKind,
		ErrorDetail: errorDetail,
	}
}

// Len returns the number of files tracked by the ledger.
func (l *Ledger) Len() int {
	return len(l.records)
}

// Records returns every record sorted by file name.
func (l *Ledger) Records() []ResultRecord {
	out := make([]ResultRecord, 0, len(l.records))
	for _, rec := range l.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FileName < out[j].FileName })
	return out
}

// Successes returns the records of files that processed successfully,
// sorted by file name.
func (l *Ledger) Successes() []ResultRecord {
	var out []ResultRecord
	for _, rec := range l.Records() {
		if rec.Success {
			out = append(out, rec)
		}
	}
	return out
}

// Errors returns the records of files that failed, sorted by file name.
func (l *Ledger) Errors() []ResultRecord {
	var out []ResultRecord
	for _, rec := range l.Records() {
		if !rec.Success {
			out = append(out, rec)
		}
	}
	return out
}

// Equal reports whether two ledgers hold the same record mapping.
func (l *Ledger) Equal(other *Ledger) bool {
	if other == nil || len(l.records) != len(other.records) {
		return false
	}
	for name, rec := range l.records {
		if other.records[name] != rec {
			return false
		}
	}
	return true
}

// Submit durably upserts every in-memory record, keyed by
// (pipeline_id, run_id, run_start_time, file_name). On conflict all
// non-key columns are updated, including a refreshed update_ts.
func (l *Ledger) Submit(ctx context.Context) error {
	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction for result submit: %w", err)
	}
	defer tx.Rollback() // Rollback is safe even after commit

	upsertSQL := `
        INSERT INTO etl_result
            (pipeline_id, run_id, run_start_time, file_name,
             success, error_kind, error_detail, create_ts, update_ts)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
        ON CONFLICT (pipeline_id, run_id, run_start_time, file_name)
        DO UPDATE SET
            success      = excluded.success,
            error_kind   = excluded.error_kind,
            error_detail = excluded.error_detail,
            update_ts    = excluded.update_ts;
    `
	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return fmt.Errorf("prepare result upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, rec := range l.Records() {
		_, err := stmt.ExecContext(ctx,
			l.PipelineID,
			l.RunID,
			l.RunStart,
			rec.FileName,
			rec.Success,
			sql.NullString{String: rec.ErrorKind, Valid: rec.ErrorKind != ""},
			sql.NullString{String: rec.ErrorDetail, Valid: rec.ErrorDetail != ""},
			now,
			now,
		)
		if err != nil {
			return fmt.Errorf("upsert result for '%s': %w", rec.FileName, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result submit: %w", err)
	}
	return nil
}
