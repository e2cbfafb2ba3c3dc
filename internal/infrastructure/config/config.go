package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for PlugPilot Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Logging    LoggingConfig    `yaml:"logging"`
	Feed       FeedConfig       `yaml:"feed"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Tariff     TariffConfig     `yaml:"tariff"`
	Automation AutomationConfig `yaml:"automation"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`

	// Region is the default wholesale market region for price lookups
	// (e.g., "NSW1", "VIC1").
	Region string `yaml:"region"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
	MaxAttempts  int `yaml:"max_attempts"`
}

// InfluxDBConfig contains InfluxDB connection settings for telemetry export.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains file-based logging settings.
// Sizes are megabytes, ages are days.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// FeedConfig contains price feed fetch settings.
type FeedConfig struct {
	// BaseURL is the root of the market data file server.
	BaseURL string `yaml:"base_url"`

	// Regions lists the market regions to sync (e.g., NSW1, VIC1).
	Regions []string `yaml:"regions"`

	// TimeoutSeconds bounds each artifact fetch. A timeout is a failure,
	// never a hang.
	TimeoutSeconds int `yaml:"timeout_seconds"`

	// SyncInterval is how often the background price sync runs, in minutes.
	SyncInterval int `yaml:"sync_interval"`
}

// PipelineConfig contains poll-loop settings.
type PipelineConfig struct {
	// TickSeconds is the poll interval. Samples are bucketed to this grid.
	TickSeconds int `yaml:"tick_seconds"`

	// CommandTimeoutSeconds bounds each device read/write command.
	CommandTimeoutSeconds int `yaml:"command_timeout_seconds"`
}

// TariffConfig selects how power is priced.
type TariffConfig struct {
	// Mode is "flat" or "market". Market mode prices against the merged
	// regional feed; flat mode uses Rate.
	Mode string `yaml:"mode"`

	// Rate is the flat tariff in dollars per kWh (used when Mode is "flat").
	Rate float64 `yaml:"rate"`
}

// AutomationConfig contains defaults for newly enabled device automations.
type AutomationConfig struct {
	// ThresholdWatts is the default sustained-load threshold.
	ThresholdWatts float64 `yaml:"threshold_watts"`

	// SustainMinutes is the default sustain duration before power-off.
	SustainMinutes int `yaml:"sustain_minutes"`

	// RestartTime is the default time-of-day restart in HH:MM.
	RestartTime string `yaml:"restart_time"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PLUGPILOT_SECTION_KEY
// For example: PLUGPILOT_DATABASE_PATH, PLUGPILOT_MQTT_HOST
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "PlugPilot",
			Timezone: "Australia/Sydney",
			Region:   "NSW1",
		},
		Database: DatabaseConfig{
			Path:        "./data/plugpilot.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "plugpilot-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
				MaxAttempts:  0,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		Feed: FeedConfig{
			BaseURL:        "https://nemweb.com.au/Reports/Current",
			Regions:        []string{"NSW1"},
			TimeoutSeconds: 30,
			SyncInterval:   5,
		},
		Pipeline: PipelineConfig{
			TickSeconds:           30,
			CommandTimeoutSeconds: 10,
		},
		Tariff: TariffConfig{
			Mode: "market",
			Rate: 0.30,
		},
		Automation: AutomationConfig{
			ThresholdWatts: 5,
			SustainMinutes: 30,
			RestartTime:    "06:00",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PLUGPILOT_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Site
	if v := os.Getenv("PLUGPILOT_SITE_REGION"); v != "" {
		cfg.Site.Region = v
	}

	// Database
	if v := os.Getenv("PLUGPILOT_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	// MQTT
	if v := os.Getenv("PLUGPILOT_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PLUGPILOT_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PLUGPILOT_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// InfluxDB
	if v := os.Getenv("PLUGPILOT_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Feed
	if v := os.Getenv("PLUGPILOT_FEED_BASE_URL"); v != "" {
		cfg.Feed.BaseURL = v
	}
}

// Validate checks the configuration for errors.
//
// Invalid tariff or restart-time values are rejected here, at the input
// boundary, so a running daemon never adopts a broken configuration.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Site validation
	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if c.Site.Region == "" {
		errs = append(errs, "site.region is required")
	}
	if _, err := time.LoadLocation(c.Site.Timezone); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is not a valid IANA zone", c.Site.Timezone))
	}

	// Database validation
	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	// MQTT validation
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// Pipeline validation
	if c.Pipeline.TickSeconds <= 0 {
		errs = append(errs, "pipeline.tick_seconds must be positive")
	}

	// Tariff validation
	switch c.Tariff.Mode {
	case "flat":
		if c.Tariff.Rate <= 0 {
			errs = append(errs, "tariff.rate must be positive in flat mode")
		}
	case "market":
		// Rate is ignored; the merged feed supplies prices.
	default:
		errs = append(errs, fmt.Sprintf("tariff.mode %q must be \"flat\" or \"market\"", c.Tariff.Mode))
	}

	// Automation validation
	if _, err := ParseRestartTime(c.Automation.RestartTime); err != nil {
		errs = append(errs, fmt.Sprintf("automation.restart_time: %v", err))
	}
	if c.Automation.SustainMinutes <= 0 {
		errs = append(errs, "automation.sustain_minutes must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// ParseRestartTime validates an HH:MM time-of-day string and returns the
// minutes past midnight it represents.
func ParseRestartTime(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("restart time %q is not HH:MM", s)
	}
	return t.Hour()*60 + t.Minute(), nil
}

// TickInterval returns the pipeline poll interval as a Duration.
func (c *Config) TickInterval() time.Duration {
	return time.Duration(c.Pipeline.TickSeconds) * time.Second
}

// CommandTimeout returns the per-device command timeout as a Duration.
func (c *Config) CommandTimeout() time.Duration {
	return time.Duration(c.Pipeline.CommandTimeoutSeconds) * time.Second
}

// FeedTimeout returns the artifact fetch timeout as a Duration.
func (c *Config) FeedTimeout() time.Duration {
	return time.Duration(c.Feed.TimeoutSeconds) * time.Second
}
