package ingest

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"bottlo.nz/pricefeed/internal/db"
)

// AuditRecorder writes the per-record audit trail twice: a structured log
// event for operators and a match_events row for "why does this price belong
// to this product" queries.
type AuditRecorder struct {
	repo   Repository
	logger zerolog.Logger
}

func NewAuditRecorder(repo Repository, logger zerolog.Logger) *AuditRecorder {
	return &AuditRecorder{
		repo:   repo,
		logger: logger,
	}
}

// RecordMatch persists one audit row. Audit failures never fail the record;
// they are logged and dropped.
func (a *AuditRecorder) RecordMatch(ctx context.Context, event db.MatchEventInsert) {
	if a == nil || a.repo == nil {
		return
	}

	log := a.logger.Info()
	if event.Outcome == db.OutcomeError {
		log = a.logger.Warn()
	}
	log = log.
		Int64("run_id", event.RunID).
		Str("fingerprint", event.Fingerprint).
		Str("method", event.Method).
		Str("outcome", event.Outcome).
		Strs("reasons", event.Reasons)
	if event.SourceProductID != nil {
		log = log.Str("source_product_id", *event.SourceProductID)
	}
	if event.ProductID != nil {
		log = log.Int64("product_id", *event.ProductID)
	}
	if event.Confidence != nil {
		log = log.Float64("confidence", *event.Confidence)
	}
	log.Msg("record processed")

	if err := a.repo.InsertMatchEvent(ctx, event); err != nil {
		a.logger.Warn().Err(err).Int64("run_id", event.RunID).Msg("failed to persist match event")
	}
}

// RunFinished logs the run's terminal line with aggregate counts.
func (a *AuditRecorder) RunFinished(runID int64, runUUID, retailerSlug, status string, counts db.RunCounts, elapsed time.Duration) {
	if a == nil {
		return
	}

	log := a.logger.Info()
	if status == db.RunStatusFailed {
		log = a.logger.Error()
	}
	log.
		Int64("run_id", runID).
		Str("run_uuid", runUUID).
		Str("retailer", retailerSlug).
		Str("status", status).
		Int("records_fetched", counts.RecordsFetched).
		Int("matched_strict", counts.MatchedStrict).
		Int("matched_fuzzy", counts.MatchedFuzzy).
		Int("products_created", counts.ProductsCreated).
		Int("records_skipped", counts.RecordsSkipped).
		Int("records_errored", counts.RecordsErrored).
		Dur("elapsed", elapsed).
		Msg("ingestion run finished")
}
