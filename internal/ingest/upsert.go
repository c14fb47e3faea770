package ingest

import (
	"context"
	"fmt"

	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/fingerprint"
	"bottlo.nz/pricefeed/internal/listing"
	"bottlo.nz/pricefeed/internal/match"
	"bottlo.nz/pricefeed/internal/pricing"
)

// Outcome is the per-record commit result.
type Outcome string

const (
	OutcomeCreated          Outcome = "created"
	OutcomeUpdated          Outcome = "updated"
	OutcomeDuplicateSkipped Outcome = "duplicate_skipped"
)

// UpsertEngine turns one resolved record into its single commit transaction.
// Replaying the same input yields duplicate_skipped, never a second price row.
type UpsertEngine struct {
	repo Repository
}

func NewUpsertEngine(repo Repository) *UpsertEngine {
	return &UpsertEngine{repo: repo}
}

// Commit writes the resolved record. For MethodNew resolutions the canonical
// product is created (or the concurrent winner adopted) inside the same
// transaction as the price row.
func (e *UpsertEngine) Commit(
	ctx context.Context,
	retailerID, runID, storeID int64,
	raw listing.RawRecord,
	key fingerprint.Key,
	resolution match.Result,
	metrics pricing.Metrics,
) (Outcome, db.CommitResult, error) {
	if e == nil || e.repo == nil {
		return "", db.CommitResult{}, fmt.Errorf("upsert engine is not initialized")
	}

	params := db.CommitParams{
		RetailerID: retailerID,
		ProductID:  resolution.ProductID,
		Price: db.PriceInsert{
			StoreID:               storeID,
			RunID:                 runID,
			Price:                 raw.Price,
			PromoPrice:            raw.PromoPrice,
			PromoText:             raw.PromoText,
			PromoEndsAt:           raw.PromoEndsAt,
			MemberOnly:            raw.MemberOnly,
			PricePer100ML:         metrics.PricePer100ML,
			StandardDrinks:        metrics.StandardDrinks,
			PricePerStandardDrink: metrics.PricePerStandardDrink,
			SourceTS:              raw.ScrapedAt,
		},
	}
	if metrics.PromoDiscarded {
		// The promo price failed sanity checks; persist only the list price.
		params.Price.PromoPrice = nil
	}
	if sourceID := raw.TrimmedSourceProductID(); sourceID != "" {
		params.SourceProductID = &sourceID
	}
	if resolution.Method == match.MethodNew {
		params.Product = db.NewProduct{
			Fingerprint:    key.Key,
			NormalizedName: key.NormalizedName,
			Brand:          key.NormalizedBrand,
			Category:       key.Category,
			PackCount:      key.PackCount,
			VolumeBucket:   key.VolumeBucket,
		}
		if !key.Degraded {
			unitML := key.UnitVolumeML
			params.Product.UnitVolumeML = &unitML
		}
		if raw.ABVPercent != nil && *raw.ABVPercent > 0 {
			abv := *raw.ABVPercent
			params.Product.ABVPercent = &abv
		}
	}

	result, err := e.repo.CommitListing(ctx, params)
	if err != nil {
		return "", db.CommitResult{}, err
	}

	switch {
	case result.ProductCreated:
		return OutcomeCreated, result, nil
	case result.PriceInserted:
		return OutcomeUpdated, result, nil
	default:
		return OutcomeDuplicateSkipped, result, nil
	}
}
