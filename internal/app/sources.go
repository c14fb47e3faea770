package app

import (
	"context"
	"fmt"
	"strings"

	"bottlo.nz/pricefeed/internal/config"
	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/fingerprint"
	"bottlo.nz/pricefeed/internal/ingest"
	"bottlo.nz/pricefeed/internal/match"
	"bottlo.nz/pricefeed/internal/pricing"
	"bottlo.nz/pricefeed/internal/source"
)

// newAdapterOpener wires the configured adapter mode. Live adapters are
// registered by deployment-specific builds; the open-source tree ships the
// fixture mode only.
func newAdapterOpener(cfg *config.Config) (source.Opener, error) {
	mode := strings.TrimSpace(strings.ToLower(cfg.AdapterMode))
	switch mode {
	case "fixture":
		fixtureDir := cfg.FixtureDir
		return source.OpenerFunc(func(_ context.Context, retailerSlug string) (source.Adapter, error) {
			return source.NewFixtureAdapter(fixtureDir, retailerSlug)
		}), nil
	case "live":
		return nil, fmt.Errorf("no live adapters are registered in this build")
	default:
		return nil, fmt.Errorf("unsupported adapter mode %q", mode)
	}
}

func coordinatorOptions(cfg *config.Config) ingest.Options {
	return ingest.Options{
		Workers:            cfg.Workers,
		RecordTimeout:      cfg.RecordTimeout,
		CommitRetries:      cfg.CommitRetries,
		CommitRetryBackoff: cfg.CommitRetryBackoff,
		AbortErrorRate:     cfg.AbortErrorRate,
		AbortMinRecords:    cfg.AbortMinRecords,
		RetainRawPayloads:  cfg.RetainRawPayloads,
		Fingerprint:        fingerprint.Options{VolumeTolerance: cfg.VolumeTolerance},
		Match: match.Options{
			AcceptThreshold: cfg.FuzzyAcceptThreshold,
			TieBand:         cfg.FuzzyTieBand,
		},
		Pricing: pricing.Options{StandardDrinkML: cfg.StandardDrinkML},
	}
}

// seedRegistry inserts missing retailers from configuration and, in fixture
// mode, bootstraps stores from each retailer's stores.json.
func seedRegistry(ctx context.Context, pool *db.Pool, cfg *config.Config) error {
	retailers, err := cfg.RetailerList()
	if err != nil {
		return err
	}
	if err := pool.SeedRetailers(ctx, retailers); err != nil {
		return err
	}

	if strings.TrimSpace(strings.ToLower(cfg.AdapterMode)) != "fixture" {
		return nil
	}

	for _, entry := range retailers {
		stores, err := source.ReadFixtureStores(cfg.FixtureDir, entry.Slug)
		if err != nil {
			return fmt.Errorf("load fixture stores for %q: %w", entry.Slug, err)
		}
		if len(stores) == 0 {
			continue
		}

		ref, err := pool.FindRetailerBySlug(ctx, entry.Slug)
		if err != nil {
			return fmt.Errorf("resolve retailer %q: %w", entry.Slug, err)
		}
		for _, store := range stores {
			upsert := db.StoreUpsert{
				RetailerID:    ref.RetailerID,
				SourceStoreID: store.SourceStoreID,
				Name:          store.Name,
				Address:       store.Address,
				Longitude:     store.Longitude,
				Latitude:      store.Latitude,
			}
			if _, err := pool.UpsertStore(ctx, upsert); err != nil {
				return fmt.Errorf("bootstrap store for %q: %w", entry.Slug, err)
			}
		}
	}
	return nil
}
