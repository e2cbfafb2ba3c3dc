// Package database manages the SQLite store backing PlugPilot Core.
//
// It wraps database/sql with WAL-mode connection setup, health checks, and
// an embedded-migration runner. The store persists price records, automation
// state, and the device inventory; hot-path telemetry stays in memory and is
// exported to InfluxDB instead.
package database
