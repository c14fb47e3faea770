package db

import (
	"context"
	"fmt"
)

// StatsRetailerCount stores per-retailer catalog counts.
type StatsRetailerCount struct {
	Retailer     string `json:"retailer"`
	Stores       int64  `json:"stores"`
	PriceRecords int64  `json:"price_records"`
	Runs         int64  `json:"runs"`
}

// StatsTotals stores totals across retailers.
type StatsTotals struct {
	Products     int64 `json:"products"`
	Stores       int64 `json:"stores"`
	PriceRecords int64 `json:"price_records"`
	MatchEvents  int64 `json:"match_events"`
}

// CatalogStats is the read model returned by the stats endpoint.
type CatalogStats struct {
	Retailers    []StatsRetailerCount `json:"retailers"`
	Totals       StatsTotals          `json:"totals"`
	RunsByStatus map[string]int64     `json:"runs_by_status"`
}

// QueryCatalogStats returns per-retailer and total catalog counts plus run
// status breakdown.
func (p *Pool) QueryCatalogStats(ctx context.Context) (*CatalogStats, error) {
	stats := &CatalogStats{
		Retailers:    make([]StatsRetailerCount, 0, 8),
		RunsByStatus: make(map[string]int64, 8),
	}

	const countsQuery = `
WITH store_counts AS (
	SELECT s.retailer_id, COUNT(*)::BIGINT AS stores
	FROM catalog.stores s
	GROUP BY s.retailer_id
),
price_counts AS (
	SELECT s.retailer_id, COUNT(*)::BIGINT AS price_records
	FROM catalog.price_records pr
	JOIN catalog.stores s
		ON s.store_id = pr.store_id
	GROUP BY s.retailer_id
),
run_counts AS (
	SELECT r.retailer_id, COUNT(*)::BIGINT AS runs
	FROM catalog.ingestion_runs r
	GROUP BY r.retailer_id
)
SELECT
	rt.slug,
	COALESCE(sc.stores, 0) AS stores,
	COALESCE(pc.price_records, 0) AS price_records,
	COALESCE(rc.runs, 0) AS runs
FROM catalog.retailers rt
LEFT JOIN store_counts sc
	ON sc.retailer_id = rt.retailer_id
LEFT JOIN price_counts pc
	ON pc.retailer_id = rt.retailer_id
LEFT JOIN run_counts rc
	ON rc.retailer_id = rt.retailer_id
ORDER BY rt.slug
`

	rows, err := p.Query(ctx, countsQuery)
	if err != nil {
		return nil, fmt.Errorf("query stats retailer counts: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var row StatsRetailerCount
		if err := rows.Scan(&row.Retailer, &row.Stores, &row.PriceRecords, &row.Runs); err != nil {
			return nil, fmt.Errorf("scan stats retailer row: %w", err)
		}
		stats.Retailers = append(stats.Retailers, row)
		stats.Totals.Stores += row.Stores
		stats.Totals.PriceRecords += row.PriceRecords
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate stats retailer rows: %w", err)
	}

	const totalsQuery = `
SELECT
	(SELECT COUNT(*) FROM catalog.products) AS products,
	(SELECT COUNT(*) FROM catalog.match_events) AS match_events
`

	if err := p.QueryRow(ctx, totalsQuery).Scan(&stats.Totals.Products, &stats.Totals.MatchEvents); err != nil {
		return nil, fmt.Errorf("query stats totals: %w", err)
	}

	const statusQuery = `
SELECT status, COUNT(*)::BIGINT
FROM catalog.ingestion_runs
GROUP BY status
ORDER BY status
`

	statusRows, err := p.Query(ctx, statusQuery)
	if err != nil {
		return nil, fmt.Errorf("query run status counts: %w", err)
	}
	defer statusRows.Close()

	for statusRows.Next() {
		var status string
		var count int64
		if err := statusRows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("scan run status row: %w", err)
		}
		stats.RunsByStatus[status] = count
	}
	if err := statusRows.Err(); err != nil {
		return nil, fmt.Errorf("iterate run status rows: %w", err)
	}

	return stats, nil
}
