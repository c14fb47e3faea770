// Package ingest runs ingestion: the coordinator drives a bounded worker pool
// over a source adapter, each record flows fingerprint -> match -> normalize
// -> idempotent commit, and every outcome lands in the audit trail.
package ingest

import (
	"context"
	"time"

	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/match"
)

// Repository is the persistence surface the pipeline needs. *db.Pool is the
// production implementation; tests substitute an in-memory fake.
type Repository interface {
	match.CandidateStore

	FindRetailerBySlug(ctx context.Context, slug string) (db.RetailerRef, error)
	FindStoreID(ctx context.Context, retailerID int64, sourceStoreID string) (int64, error)

	InsertRun(ctx context.Context, runUUID string, retailerID int64, source string, startedAt time.Time) (int64, error)
	FinalizeRun(ctx context.Context, runID int64, status string, counts db.RunCounts, errorMessage *string, finishedAt time.Time) error

	CommitListing(ctx context.Context, params db.CommitParams) (db.CommitResult, error)
	InsertMatchEvent(ctx context.Context, event db.MatchEventInsert) error
	InsertRawListing(ctx context.Context, raw db.RawListingInsert) error
}

var _ Repository = (*db.Pool)(nil)
