package db

import (
	"context"
	"fmt"
	"strings"

	"bottlo.nz/pricefeed/internal/config"
)

// RetailerRef is the resolved identity of one configured retailer.
type RetailerRef struct {
	RetailerID int64  `json:"retailer_id"`
	Slug       string `json:"slug"`
	Name       string `json:"name"`
}

// SeedRetailers inserts any configured retailers missing from the registry.
// Existing rows are never touched; the registry is static configuration, not
// pipeline state.
func (p *Pool) SeedRetailers(ctx context.Context, entries []config.RetailerEntry) error {
	if p == nil {
		return fmt.Errorf("database pool is not initialized")
	}

	const q = `
INSERT INTO catalog.retailers (slug, name)
VALUES ($1, $2)
ON CONFLICT (slug) DO NOTHING`

	for _, entry := range entries {
		if _, err := p.Exec(ctx, q, entry.Slug, entry.Name); err != nil {
			return fmt.Errorf("seed retailer %q: %w", entry.Slug, err)
		}
	}
	return nil
}

// FindRetailerBySlug resolves a retailer slug to its registry row. Returns
// ErrNoRows for unknown slugs.
func (p *Pool) FindRetailerBySlug(ctx context.Context, slug string) (RetailerRef, error) {
	slug = strings.TrimSpace(strings.ToLower(slug))
	if slug == "" {
		return RetailerRef{}, fmt.Errorf("retailer slug is empty: %w", ErrNoRows)
	}

	const q = `
SELECT retailer_id, slug, name
FROM catalog.retailers
WHERE slug = $1`

	var ref RetailerRef
	if err := p.QueryRow(ctx, q, slug).Scan(&ref.RetailerID, &ref.Slug, &ref.Name); err != nil {
		return RetailerRef{}, err
	}
	return ref, nil
}

// ListRetailers returns the registry ordered by slug.
func (p *Pool) ListRetailers(ctx context.Context) ([]RetailerRef, error) {
	const q = `
SELECT retailer_id, slug, name
FROM catalog.retailers
ORDER BY slug`

	rows, err := p.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("list retailers: %w", err)
	}
	defer rows.Close()

	var out []RetailerRef
	for rows.Next() {
		var ref RetailerRef
		if err := rows.Scan(&ref.RetailerID, &ref.Slug, &ref.Name); err != nil {
			return nil, fmt.Errorf("scan retailer row: %w", err)
		}
		out = append(out, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate retailer rows: %w", err)
	}
	return out, nil
}
