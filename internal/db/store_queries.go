package db

import (
	"context"
	"fmt"
	"strings"
)

// StoreUpsert is the store-sync write shape. The ingestion pipeline itself
// never writes stores; this path serves the fixture bootstrap and tests.
type StoreUpsert struct {
	RetailerID    int64
	SourceStoreID string
	Name          string
	Address       *string
	Longitude     *float64
	Latitude      *float64
}

// FindStoreID resolves a source-reported store identifier to the internal
// store id. Returns ErrNoRows when the store has not been synced yet; callers
// treat that as a record-level error, not a run failure.
func (p *Pool) FindStoreID(ctx context.Context, retailerID int64, sourceStoreID string) (int64, error) {
	sourceStoreID = strings.TrimSpace(sourceStoreID)
	if sourceStoreID == "" {
		return 0, fmt.Errorf("source store id is empty: %w", ErrNoRows)
	}

	const q = `
SELECT store_id
FROM catalog.stores
WHERE retailer_id = $1
  AND source_store_id = $2`

	var storeID int64
	if err := p.QueryRow(ctx, q, retailerID, sourceStoreID).Scan(&storeID); err != nil {
		return 0, err
	}
	return storeID, nil
}

// UpsertStore inserts or refreshes one store keyed by
// (retailer_id, source_store_id).
func (p *Pool) UpsertStore(ctx context.Context, store StoreUpsert) (int64, error) {
	if strings.TrimSpace(store.SourceStoreID) == "" {
		return 0, fmt.Errorf("store upsert requires a source store id")
	}
	if strings.TrimSpace(store.Name) == "" {
		return 0, fmt.Errorf("store upsert requires a name")
	}

	const q = `
INSERT INTO catalog.stores (retailer_id, source_store_id, name, address, longitude, latitude)
VALUES ($1, $2, $3, $4, $5, $6)
ON CONFLICT (retailer_id, source_store_id) DO UPDATE SET
	name = EXCLUDED.name,
	address = EXCLUDED.address,
	longitude = EXCLUDED.longitude,
	latitude = EXCLUDED.latitude,
	updated_at = now()
RETURNING store_id`

	var storeID int64
	err := p.QueryRow(ctx, q,
		store.RetailerID,
		strings.TrimSpace(store.SourceStoreID),
		strings.TrimSpace(store.Name),
		store.Address,
		store.Longitude,
		store.Latitude,
	).Scan(&storeID)
	if err != nil {
		return 0, fmt.Errorf("upsert store %q: %w", store.SourceStoreID, err)
	}
	return storeID, nil
}
