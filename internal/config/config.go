package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Environment string `envconfig:"ENVIRONMENT" default:"local"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	DatabaseURL string `envconfig:"DATABASE_URL" required:"true"`
	DBMinConns  int32  `envconfig:"PF_DB_MIN_CONNS" default:"1"`
	DBMaxConns  int32  `envconfig:"PF_DB_MAX_CONNS" default:"8"`

	// Retailers is the static retailer registry: "slug:Display Name" pairs,
	// comma separated. The pipeline never mutates retailers beyond seeding
	// missing rows at startup.
	Retailers string `envconfig:"PF_RETAILERS" default:"liquorland:Liquorland,superliquor:Super Liquor,bottleo:The Bottle-O"`

	// Run coordinator.
	Workers            int           `envconfig:"PF_WORKERS" default:"4"`
	RecordTimeout      time.Duration `envconfig:"PF_RECORD_TIMEOUT" default:"10s"`
	CommitRetries      int           `envconfig:"PF_COMMIT_RETRIES" default:"3"`
	CommitRetryBackoff time.Duration `envconfig:"PF_COMMIT_RETRY_BACKOFF" default:"250ms"`
	AbortErrorRate     float64       `envconfig:"PF_ABORT_ERROR_RATE" default:"0.5"`
	AbortMinRecords    int           `envconfig:"PF_ABORT_MIN_RECORDS" default:"20"`
	RetainRawPayloads  bool          `envconfig:"PF_RETAIN_RAW_PAYLOADS" default:"false"`

	// Entity matching policy. The acceptance threshold and tie band are
	// tunable until validated against labeled fixtures.
	FuzzyAcceptThreshold float64 `envconfig:"PF_FUZZY_ACCEPT_THRESHOLD" default:"0.85"`
	FuzzyTieBand         float64 `envconfig:"PF_FUZZY_TIE_BAND" default:"0.03"`

	// Volume bucketing tolerance for fingerprints, as a fraction (0.05 = 5%).
	VolumeTolerance float64 `envconfig:"PF_VOLUME_TOLERANCE" default:"0.05"`

	// Millilitres of pure alcohol in one NZ standard drink (10g at 0.789 g/ml).
	StandardDrinkML float64 `envconfig:"PF_STANDARD_DRINK_ML" default:"12.7"`

	// HTTP API surface for the serve command.
	HTTPHost string `envconfig:"PF_HTTP_HOST" default:"0.0.0.0"`
	HTTPPort int    `envconfig:"PF_HTTP_PORT" default:"8090"`

	// Source adapter mode: "fixture" reads schema-validated JSON listings from
	// PF_FIXTURE_DIR/<retailer-slug>/; "live" expects adapters registered by an
	// external build.
	AdapterMode string `envconfig:"PF_ADAPTER_MODE" default:"fixture"`
	FixtureDir  string `envconfig:"PF_FIXTURE_DIR" default:"testdata/listings"`
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.DBMinConns < 0 {
		return fmt.Errorf("PF_DB_MIN_CONNS must be >= 0")
	}
	if c.DBMaxConns < 1 {
		return fmt.Errorf("PF_DB_MAX_CONNS must be >= 1")
	}
	if c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("PF_DB_MIN_CONNS (%d) cannot exceed PF_DB_MAX_CONNS (%d)", c.DBMinConns, c.DBMaxConns)
	}
	if c.Workers < 1 {
		return fmt.Errorf("PF_WORKERS must be >= 1")
	}
	if c.RecordTimeout <= 0 {
		return fmt.Errorf("PF_RECORD_TIMEOUT must be > 0")
	}
	if c.CommitRetries < 1 {
		return fmt.Errorf("PF_COMMIT_RETRIES must be >= 1")
	}
	if c.AbortErrorRate <= 0 || c.AbortErrorRate > 1 {
		return fmt.Errorf("PF_ABORT_ERROR_RATE must be in (0, 1]")
	}
	if c.AbortMinRecords < 1 {
		return fmt.Errorf("PF_ABORT_MIN_RECORDS must be >= 1")
	}
	if c.FuzzyAcceptThreshold <= 0 || c.FuzzyAcceptThreshold >= 1 {
		return fmt.Errorf("PF_FUZZY_ACCEPT_THRESHOLD must be in (0, 1)")
	}
	if c.FuzzyTieBand < 0 || c.FuzzyTieBand >= c.FuzzyAcceptThreshold {
		return fmt.Errorf("PF_FUZZY_TIE_BAND must be >= 0 and below the acceptance threshold")
	}
	if c.VolumeTolerance <= 0 || c.VolumeTolerance >= 0.5 {
		return fmt.Errorf("PF_VOLUME_TOLERANCE must be in (0, 0.5)")
	}
	if c.StandardDrinkML <= 0 {
		return fmt.Errorf("PF_STANDARD_DRINK_ML must be > 0")
	}
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("PF_HTTP_PORT must be a valid port")
	}
	mode := strings.TrimSpace(strings.ToLower(c.AdapterMode))
	if mode != "fixture" && mode != "live" {
		return fmt.Errorf("PF_ADAPTER_MODE must be fixture or live")
	}
	if _, err := c.RetailerList(); err != nil {
		return err
	}
	return nil
}

// RetailerEntry is one static retailer registration.
type RetailerEntry struct {
	Slug string
	Name string
}

// RetailerList parses PF_RETAILERS into slug/name pairs, deduplicated by slug.
func (c *Config) RetailerList() ([]RetailerEntry, error) {
	if c == nil {
		return nil, nil
	}

	parts := strings.Split(c.Retailers, ",")
	entries := make([]RetailerEntry, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		slug, name, found := strings.Cut(trimmed, ":")
		if !found {
			return nil, fmt.Errorf("PF_RETAILERS entry %q must be slug:Name", trimmed)
		}
		slug = strings.TrimSpace(strings.ToLower(slug))
		name = strings.TrimSpace(name)
		if slug == "" || name == "" {
			return nil, fmt.Errorf("PF_RETAILERS entry %q must be slug:Name", trimmed)
		}
		if _, exists := seen[slug]; exists {
			continue
		}
		seen[slug] = struct{}{}
		entries = append(entries, RetailerEntry{Slug: slug, Name: name})
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("PF_RETAILERS must register at least one retailer")
	}
	return entries, nil
}
