// PlugPilot Core - Smart Plug Power Intelligence
//
// This is the main entry point for the PlugPilot daemon. PlugPilot watches a
// fleet of MQTT-attached smart plugs, records their power draw on a 30-second
// grid, forecasts near-term consumption and cost against wholesale market
// prices, and power-cycles idle devices on a sustained-load schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	_ "github.com/plugpilot/plugpilot-core/migrations"

	"github.com/plugpilot/plugpilot-core/internal/automation"
	"github.com/plugpilot/plugpilot-core/internal/bridges/mqttplug"
	"github.com/plugpilot/plugpilot-core/internal/cost"
	"github.com/plugpilot/plugpilot-core/internal/device"
	"github.com/plugpilot/plugpilot-core/internal/forecast"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/config"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/database"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/influxdb"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/logging"
	"github.com/plugpilot/plugpilot-core/internal/infrastructure/mqtt"
	"github.com/plugpilot/plugpilot-core/internal/pipeline"
	"github.com/plugpilot/plugpilot-core/internal/pricesync"
	"github.com/plugpilot/plugpilot-core/internal/pricing"
	"github.com/plugpilot/plugpilot-core/internal/pricing/feed"
	"github.com/plugpilot/plugpilot-core/internal/telemetry"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
func run(ctx context.Context) error {
	// Optional .env file for local development; ignored when absent.
	_ = godotenv.Load()

	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting PlugPilot Core",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	loc, err := time.LoadLocation(cfg.Site.Timezone)
	if err != nil {
		return fmt.Errorf("loading timezone: %w", err)
	}

	// Open database
	db, err := database.Open(ctx, database.Config{
		Path:        cfg.Database.Path,
		WALMode:     cfg.Database.WALMode,
		BusyTimeout: cfg.Database.BusyTimeout,
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	log.Info("database connected", "path", cfg.Database.Path)

	// Run migrations
	if migrateErr := db.Migrate(ctx); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	log.Info("database migrations complete")

	// Initialise device registry (hydrates from SQLite)
	deviceRepo := device.NewSQLiteRepository(db.DB)
	registry, err := device.NewRegistry(ctx, deviceRepo)
	if err != nil {
		return fmt.Errorf("loading device registry: %w", err)
	}
	log.Info("device registry initialised", "devices", len(registry.List()))

	// Price store with persisted merge state
	priceRepo := pricing.NewSQLiteRepository(db.DB)
	priceStore := pricing.NewStore(priceRepo, log.With("component", "pricing"))
	if loadErr := priceStore.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading price store: %w", loadErr)
	}

	// Connect to MQTT broker
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() { log.Info("MQTT reconnected") })
	mqttClient.SetOnDisconnect(func(err error) { log.Warn("MQTT disconnected", "error", err) })
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	// Plug adapter over MQTT
	plugAdapter, err := mqttplug.NewAdapter(mqttplug.Options{
		Client: mqttClient,
		QoS:    byte(cfg.MQTT.QoS),
		Logger: log.With("component", "mqttplug"),
	})
	if err != nil {
		return fmt.Errorf("creating plug adapter: %w", err)
	}
	if startErr := plugAdapter.Start(); startErr != nil {
		return fmt.Errorf("starting plug adapter: %w", startErr)
	}
	adapters := device.NewAdapters()
	adapters.Register("mqttplug", plugAdapter)

	// Automation controller, restored from its persisted states
	controller := automation.NewController(
		automation.NewSQLiteRepository(db.DB),
		&registryCommander{registry: registry, adapters: adapters},
		loc,
		automation.Defaults{
			ThresholdWatts: cfg.Automation.ThresholdWatts,
			SustainSeconds: cfg.Automation.SustainMinutes * 60,
			RestartTime:    cfg.Automation.RestartTime,
		},
		log.With("component", "automation"),
	)
	if loadErr := controller.Load(ctx); loadErr != nil {
		return fmt.Errorf("loading automation states: %w", loadErr)
	}

	// Telemetry cache, forecaster, and cost projector
	store := telemetry.NewStore()
	aggregator := telemetry.NewAggregator()
	engine := forecast.NewEngine(store)
	projector := cost.NewProjector(store, engine, priceStore, cost.Tariff{
		Mode:     cfg.Tariff.Mode,
		FlatRate: cfg.Tariff.Rate,
		Region:   cfg.Site.Region,
	})

	// Connect to InfluxDB (optional)
	var exporter pipeline.Exporter
	if cfg.InfluxDB.Enabled {
		influxClient, connErr := influxdb.Connect(cfg.InfluxDB)
		if connErr != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", connErr)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		exporter = influxClient
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Background price sync
	feedClient := feed.NewClient(feed.Config{
		BaseURL: cfg.Feed.BaseURL,
		Timeout: cfg.FeedTimeout(),
	})
	syncer := pricesync.NewSyncer(feedClient, priceStore, cfg.Feed.Regions,
		log.With("component", "pricesync"))
	go runPriceSync(ctx, syncer, time.Duration(cfg.Feed.SyncInterval)*time.Minute, log)

	// Verify all connections are healthy
	if err := healthCheck(ctx, db, mqttClient); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Control loop: poll, record, forecast, automate. Blocks until shutdown.
	pipe := pipeline.New(registry, adapters, store, aggregator, engine, projector,
		controller, exporter, priceStore, nil,
		pipeline.Config{
			TickInterval:   cfg.TickInterval(),
			CommandTimeout: cfg.CommandTimeout(),
		},
		log.With("component", "pipeline"),
	)
	log.Info("initialisation complete, entering control loop")
	if err := pipe.Run(ctx); err != nil && ctx.Err() == nil {
		return fmt.Errorf("pipeline: %w", err)
	}

	log.Info("PlugPilot Core stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PLUGPILOT_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PLUGPILOT_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// runPriceSync performs an initial sync then resyncs on the configured
// interval until the context is cancelled. Failures are logged and retried
// next cycle; the daemon keeps running on last-known prices.
func runPriceSync(ctx context.Context, syncer *pricesync.Syncer, interval time.Duration, log *logging.Logger) {
	sync := func() {
		result, err := syncer.Run(ctx, false)
		if err != nil {
			log.Warn("price sync failed", "error", err)
			return
		}
		log.Info("price sync complete",
			"inserted", result.Inserted(),
			"updated", result.Updated(),
			"skipped", result.Skipped(),
			"failures", len(result.Failures),
		)
	}

	sync()
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sync()
		}
	}
}

// healthCheck verifies infrastructure connections are healthy.
func healthCheck(ctx context.Context, db *database.DB, mqttClient *mqtt.Client) error {
	if err := db.HealthCheck(ctx); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}
	return nil
}

// registryCommander adapts the device registry and adapter table to the
// automation controller's command surface. The controller addresses devices
// by ID; this resolves the device and dispatches to its adapter.
type registryCommander struct {
	registry *device.Registry
	adapters *device.Adapters
}

// SetPower implements automation.PowerCommander.
func (rc *registryCommander) SetPower(ctx context.Context, deviceID string, on bool) error {
	dev, err := rc.registry.Get(deviceID)
	if err != nil {
		return err
	}
	cap, err := rc.adapters.For(dev)
	if err != nil {
		return err
	}
	return cap.SetPower(ctx, dev, on)
}
