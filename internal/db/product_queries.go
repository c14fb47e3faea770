package db

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"bottlo.nz/pricefeed/internal/match"
)

// NewProduct is the first-write shape of a canonical product. Descriptive
// fields are frozen at creation; later listings only accumulate source ids
// and price rows.
type NewProduct struct {
	Fingerprint    string
	NormalizedName string
	Brand          string
	Category       string
	PackCount      int
	UnitVolumeML   *float64
	ABVPercent     *float64
	VolumeBucket   int
}

// FindProductBySourceID implements the stable-identifier match tier. A nil
// candidate with nil error means no mapping exists yet.
func (p *Pool) FindProductBySourceID(ctx context.Context, retailerID int64, sourceProductID string) (*match.Candidate, error) {
	const q = `
SELECT pr.product_id, pr.normalized_name, pr.brand
FROM catalog.product_source_ids psi
JOIN catalog.products pr ON pr.product_id = psi.product_id
WHERE psi.retailer_id = $1
  AND psi.source_product_id = $2`

	var c match.Candidate
	err := p.QueryRow(ctx, q, retailerID, sourceProductID).Scan(&c.ProductID, &c.NormalizedName, &c.NormalizedBrand)
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product by source id: %w", err)
	}
	return &c, nil
}

// FindProductByFingerprint implements the exact-fingerprint match tier.
func (p *Pool) FindProductByFingerprint(ctx context.Context, key string) (*match.Candidate, error) {
	const q = `
SELECT product_id, normalized_name, brand
FROM catalog.products
WHERE fingerprint = $1`

	var c match.Candidate
	err := p.QueryRow(ctx, q, key).Scan(&c.ProductID, &c.NormalizedName, &c.NormalizedBrand)
	if errors.Is(err, ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("find product by fingerprint: %w", err)
	}
	return &c, nil
}

// FindFuzzyCandidates prefilters the fuzzy tier to products in the same
// volume bucket and category so scoring stays bounded.
func (p *Pool) FindFuzzyCandidates(ctx context.Context, volumeBucket int, category string) ([]match.Candidate, error) {
	const q = `
SELECT product_id, normalized_name, brand
FROM catalog.products
WHERE volume_bucket = $1
  AND category = $2
ORDER BY product_id`

	rows, err := p.Query(ctx, q, volumeBucket, strings.TrimSpace(strings.ToLower(category)))
	if err != nil {
		return nil, fmt.Errorf("find fuzzy candidates: %w", err)
	}
	defer rows.Close()

	var out []match.Candidate
	for rows.Next() {
		var c match.Candidate
		if err := rows.Scan(&c.ProductID, &c.NormalizedName, &c.NormalizedBrand); err != nil {
			return nil, fmt.Errorf("scan fuzzy candidate: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate fuzzy candidates: %w", err)
	}
	return out, nil
}

// insertProductIfAbsent creates the product or, on a fingerprint conflict,
// re-reads the winner's row. The unique constraint is the serialization point
// for concurrent workers producing the same fingerprint.
func insertProductIfAbsent(ctx context.Context, q Querier, product NewProduct) (productID int64, created bool, err error) {
	const insertQ = `
INSERT INTO catalog.products
	(fingerprint, normalized_name, brand, category, pack_count, unit_volume_ml, abv_percent, volume_bucket)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (fingerprint) DO NOTHING
RETURNING product_id`

	err = q.QueryRow(ctx, insertQ,
		product.Fingerprint,
		product.NormalizedName,
		product.Brand,
		product.Category,
		product.PackCount,
		product.UnitVolumeML,
		product.ABVPercent,
		product.VolumeBucket,
	).Scan(&productID)
	if err == nil {
		return productID, true, nil
	}
	if !errors.Is(err, ErrNoRows) {
		return 0, false, fmt.Errorf("insert product: %w", err)
	}

	const readQ = `
SELECT product_id
FROM catalog.products
WHERE fingerprint = $1`

	if err := q.QueryRow(ctx, readQ, product.Fingerprint).Scan(&productID); err != nil {
		return 0, false, fmt.Errorf("re-read product after fingerprint conflict: %w", err)
	}
	return productID, false, nil
}

// attachSourceID records the retailer's stable identifier against the
// canonical product. The mapping set only grows; conflicts are expected and
// ignored.
func attachSourceID(ctx context.Context, q Querier, retailerID, productID int64, sourceProductID string) error {
	const insertQ = `
INSERT INTO catalog.product_source_ids (retailer_id, source_product_id, product_id)
VALUES ($1, $2, $3)
ON CONFLICT (retailer_id, source_product_id) DO NOTHING`

	if _, err := q.Exec(ctx, insertQ, retailerID, sourceProductID, productID); err != nil {
		return fmt.Errorf("attach source id: %w", err)
	}
	return nil
}
