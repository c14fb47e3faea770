package db

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Run statuses. A run leaves "running" exactly once.
const (
	RunStatusRunning   = "running"
	RunStatusSucceeded = "succeeded"
	RunStatusPartial   = "partial"
	RunStatusFailed    = "failed"
	RunStatusCancelled = "cancelled"
)

// RunCounts aggregates the per-record outcomes of one run.
type RunCounts struct {
	RecordsFetched  int `json:"records_fetched"`
	MatchedStrict   int `json:"matched_strict"`
	MatchedFuzzy    int `json:"matched_fuzzy"`
	ProductsCreated int `json:"products_created"`
	RecordsSkipped  int `json:"records_skipped"`
	RecordsErrored  int `json:"records_errored"`
}

// RunSummary is the read model for run status queries; the run row is the
// single source of truth for a run's outcome.
type RunSummary struct {
	RunID        int64      `json:"run_id"`
	RunUUID      string     `json:"run_uuid"`
	RetailerSlug string     `json:"retailer"`
	Source       string     `json:"source"`
	Status       string     `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	FinishedAt   *time.Time `json:"finished_at,omitempty"`
	Counts       RunCounts  `json:"counts"`
	ErrorMessage *string    `json:"error_message,omitempty"`
}

// RunListOptions filters ListRuns.
type RunListOptions struct {
	RetailerSlug string
	Status       string
	Limit        int
}

// InsertRun opens a run in status running and returns its row id.
func (p *Pool) InsertRun(ctx context.Context, runUUID string, retailerID int64, source string, startedAt time.Time) (int64, error) {
	const q = `
INSERT INTO catalog.ingestion_runs (run_uuid, retailer_id, source, started_at, status)
VALUES ($1, $2, $3, $4, $5)
RETURNING run_id`

	var runID int64
	err := p.QueryRow(ctx, q, runUUID, retailerID, source, startedAt.UTC(), RunStatusRunning).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("insert ingestion run: %w", err)
	}
	return runID, nil
}

// FinalizeRun moves a running run to its terminal status with aggregate
// counts. Guarded on status = running so finalization cannot apply twice.
func (p *Pool) FinalizeRun(ctx context.Context, runID int64, status string, counts RunCounts, errorMessage *string, finishedAt time.Time) error {
	const q = `
UPDATE catalog.ingestion_runs SET
	status = $2,
	records_fetched = $3,
	matched_strict = $4,
	matched_fuzzy = $5,
	products_created = $6,
	records_skipped = $7,
	records_errored = $8,
	error_message = $9,
	finished_at = $10,
	updated_at = now()
WHERE run_id = $1
  AND status = $11`

	tag, err := p.Exec(ctx, q,
		runID,
		status,
		counts.RecordsFetched,
		counts.MatchedStrict,
		counts.MatchedFuzzy,
		counts.ProductsCreated,
		counts.RecordsSkipped,
		counts.RecordsErrored,
		errorMessage,
		finishedAt.UTC(),
		RunStatusRunning,
	)
	if err != nil {
		return fmt.Errorf("finalize run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("run %d is not in running state", runID)
	}
	return nil
}

// GetRunByUUID returns the run summary for a run handle. Returns ErrNoRows
// for unknown handles.
func (p *Pool) GetRunByUUID(ctx context.Context, runUUID string) (RunSummary, error) {
	const q = `
SELECT
	r.run_id,
	r.run_uuid::text,
	rt.slug,
	r.source,
	r.status,
	r.started_at,
	r.finished_at,
	r.records_fetched,
	r.matched_strict,
	r.matched_fuzzy,
	r.products_created,
	r.records_skipped,
	r.records_errored,
	r.error_message
FROM catalog.ingestion_runs r
JOIN catalog.retailers rt ON rt.retailer_id = r.retailer_id
WHERE r.run_uuid = $1`

	var s RunSummary
	err := p.QueryRow(ctx, q, strings.TrimSpace(runUUID)).Scan(
		&s.RunID,
		&s.RunUUID,
		&s.RetailerSlug,
		&s.Source,
		&s.Status,
		&s.StartedAt,
		&s.FinishedAt,
		&s.Counts.RecordsFetched,
		&s.Counts.MatchedStrict,
		&s.Counts.MatchedFuzzy,
		&s.Counts.ProductsCreated,
		&s.Counts.RecordsSkipped,
		&s.Counts.RecordsErrored,
		&s.ErrorMessage,
	)
	if err != nil {
		return RunSummary{}, err
	}
	return s, nil
}

// ListRuns returns recent runs, newest first, optionally filtered by
// retailer slug and status.
func (p *Pool) ListRuns(ctx context.Context, opts RunListOptions) ([]RunSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 500 {
		limit = 500
	}

	const q = `
SELECT
	r.run_id,
	r.run_uuid::text,
	rt.slug,
	r.source,
	r.status,
	r.started_at,
	r.finished_at,
	r.records_fetched,
	r.matched_strict,
	r.matched_fuzzy,
	r.products_created,
	r.records_skipped,
	r.records_errored,
	r.error_message
FROM catalog.ingestion_runs r
JOIN catalog.retailers rt ON rt.retailer_id = r.retailer_id
WHERE ($1 = '' OR rt.slug = $1)
  AND ($2 = '' OR r.status = $2)
ORDER BY r.started_at DESC, r.run_id DESC
LIMIT $3`

	rows, err := p.Query(ctx, q,
		strings.TrimSpace(strings.ToLower(opts.RetailerSlug)),
		strings.TrimSpace(strings.ToLower(opts.Status)),
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var s RunSummary
		err := rows.Scan(
			&s.RunID,
			&s.RunUUID,
			&s.RetailerSlug,
			&s.Source,
			&s.Status,
			&s.StartedAt,
			&s.FinishedAt,
			&s.Counts.RecordsFetched,
			&s.Counts.MatchedStrict,
			&s.Counts.MatchedFuzzy,
			&s.Counts.ProductsCreated,
			&s.Counts.RecordsSkipped,
			&s.Counts.RecordsErrored,
			&s.ErrorMessage,
		)
		if err != nil {
			return nil, fmt.Errorf("scan run row: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run rows: %w", err)
	}
	return out, nil
}
