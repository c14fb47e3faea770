package app

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"bottlo.nz/pricefeed/internal/cli"
	"bottlo.nz/pricefeed/internal/config"
	"bottlo.nz/pricefeed/internal/db"
	"bottlo.nz/pricefeed/internal/ingest"
	"bottlo.nz/pricefeed/internal/logging"
)

func runIngest(args []string) int {
	fs := flag.NewFlagSet("ingest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	envLoader := cli.AddEnvFlag(fs, ".env", "Path to the .env file")
	retailer := fs.String("retailer", "", "Retailer slug to ingest (required)")
	timeout := fs.Duration("timeout", 10*time.Minute, "Overall run timeout")

	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}

	slug := strings.TrimSpace(strings.ToLower(*retailer))
	if slug == "" {
		fmt.Fprintln(os.Stderr, "--retailer is required")
		return 2
	}

	if envLoader != nil {
		if _, err := envLoader.Load(); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: %v\n", err)
		}
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	logger, err := logging.New(cfg.Environment, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		return 1
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		logger.Error().Err(err).Msg("ingest failed to connect to database")
		fmt.Fprintf(os.Stderr, "Failed to connect to database: %v\n", err)
		return 1
	}
	defer pool.Close()

	if err := seedRegistry(ctx, pool, cfg); err != nil {
		logger.Error().Err(err).Msg("seed registry failed")
		fmt.Fprintf(os.Stderr, "Failed to seed retailer registry: %v\n", err)
		return 1
	}

	opener, err := newAdapterOpener(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure source adapter: %v\n", err)
		return 1
	}

	coordinator := ingest.NewCoordinator(pool, opener, logger, coordinatorOptions(cfg))

	handle, err := coordinator.StartRun(ctx, slug, "cli")
	if err != nil {
		logger.Error().Err(err).Str("retailer", slug).Msg("start run failed")
		fmt.Fprintf(os.Stderr, "Failed to start run: %v\n", err)
		return 1
	}

	if err := handle.Wait(ctx); err != nil {
		// The deadline hit while the run was still going; ask it to stop and
		// give finalization a moment to land.
		handle.Cancel()
		waitCtx, waitCancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer waitCancel()
		_ = handle.Wait(waitCtx)
	}

	summaryCtx, summaryCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer summaryCancel()

	summary, err := pool.GetRunByUUID(summaryCtx, handle.RunUUID)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load run summary: %v\n", err)
		return 1
	}

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to encode run summary: %v\n", err)
		return 1
	}
	fmt.Println(string(encoded))

	switch summary.Status {
	case db.RunStatusSucceeded, db.RunStatusPartial:
		return 0
	default:
		return 1
	}
}
