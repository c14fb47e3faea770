package db

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"time"
)

// Match event outcomes. One event row is written per processed record.
const (
	OutcomeCreated          = "created"
	OutcomeUpdated          = "updated"
	OutcomeDuplicateSkipped = "duplicate_skipped"
	OutcomeError            = "error"
)

// MatchEventInsert is one audit row answering "why does this price belong to
// this product".
type MatchEventInsert struct {
	RunID           int64
	Fingerprint     string
	SourceProductID *string
	ProductID       *int64
	Method          string
	Confidence      *float64
	Outcome         string
	Reasons         []string
}

// RawListingInsert retains one raw payload for replay and dispute resolution.
type RawListingInsert struct {
	RunID           int64
	RetailerID      int64
	SourceProductID *string
	Payload         []byte
	FetchedAt       time.Time
}

// InsertMatchEvent appends one match audit row.
func (p *Pool) InsertMatchEvent(ctx context.Context, event MatchEventInsert) error {
	reasons, err := json.Marshal(event.Reasons)
	if err != nil {
		return fmt.Errorf("marshal match reasons: %w", err)
	}

	const q = `
INSERT INTO catalog.match_events
	(run_id, fingerprint, source_product_id, product_id, method, confidence, outcome, reasons)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err = p.Exec(ctx, q,
		event.RunID,
		event.Fingerprint,
		event.SourceProductID,
		event.ProductID,
		event.Method,
		event.Confidence,
		event.Outcome,
		reasons,
	)
	if err != nil {
		return fmt.Errorf("insert match event: %w", err)
	}
	return nil
}

// InsertRawListing retains the raw payload with its content hash. Only called
// when payload retention is enabled.
func (p *Pool) InsertRawListing(ctx context.Context, raw RawListingInsert) error {
	if len(raw.Payload) == 0 {
		return fmt.Errorf("raw listing payload is empty")
	}
	hash := sha256.Sum256(raw.Payload)

	const q = `
INSERT INTO catalog.raw_listings
	(run_id, retailer_id, source_product_id, payload, payload_hash, fetched_at)
VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := p.Exec(ctx, q,
		raw.RunID,
		raw.RetailerID,
		raw.SourceProductID,
		raw.Payload,
		hash[:],
		raw.FetchedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert raw listing: %w", err)
	}
	return nil
}
