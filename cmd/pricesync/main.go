// pricesync fetches the latest wholesale price artifacts for every
// configured region and merges them into the PlugPilot database.
//
// The daemon runs the same sync on a timer; this command exists for manual
// refreshes and cron-driven setups. With --refresh the generation guard is
// bypassed and the fetched artifacts overwrite stored data even when they
// are not newer.
//
// Exit status is 0 only when every (region, tier) pair synced; a partial
// sync exits 1 so schedulers notice.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	_ "github.com/plugpilot/plugpilot-core/migrations"

	"github.com/plugpilot/plugpilot-core/internal/infrastructure/config"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/database"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/logging"
	"github.com/plugpilot/plugpilot-core/internal/pricesync"
	"github.com/plugpilot/plugpilot-core/internal/pricing"
	"github.com/plugpilot/plugpilot-core/internal/pricing/feed"
)

const defaultConfigPath = "configs/config.yaml"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string) error {
	_ = godotenv.Load()

	flags := flag.NewFlagSet("pricesync", flag.ContinueOnError)
	configPath := flags.String("config", configPathDefault(), "path to config file")
	refresh := flags.Bool("refresh", false, "bypass the generation guard and overwrite stored prices")
	if err := flags.Parse(args); err != nil {
		return err
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log := logging.New(cfg.Logging, "pricesync")

	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer db.Close()

	if err := db.Migrate(ctx); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	store := pricing.NewStore(pricing.NewSQLiteRepository(db.DB), log)
	if err := store.Load(ctx); err != nil {
		return fmt.Errorf("loading price store: %w", err)
	}

	client := feed.NewClient(feed.Config{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: cfg.FeedTimeout(),
	})
	syncer := pricesync.NewSyncer(client, store, cfg.Feed.Regions, log)

	result, err := syncer.Run(ctx, *refresh)
	if err != nil {
		return fmt.Errorf("sync: %w", err)
	}

	if !result.FullSuccess() {
		for _, f := range result.Failures {
			log.Warn("tier failed", "region", f.Region, "tier", f.Tier, "error", f.Err)
		}
		return fmt.Errorf("partial sync: %d region-tier pairs failed", len(result.Failures))
	}
	return nil
}

func configPathDefault() string {
	if path := os.Getenv("PLUGPILOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
