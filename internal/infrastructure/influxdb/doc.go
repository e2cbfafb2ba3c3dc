// Package influxdb exports power telemetry and cost figures to InfluxDB v2.
//
// The client wraps the official influxdb-client-go library with connection
// management, health checks, and batched non-blocking writes. Three
// measurements are written:
//
//   - power_sample: raw 30-second samples, tagged by device
//   - power_usage_5min: 5-minute aggregates at period end
//   - cost_summary: realized and projected cost, kept in separate fields
//
// Export is optional. When disabled in configuration, Connect returns
// ErrDisabled and callers run without an exporter.
//
// Writes are asynchronous; failures surface through the SetOnError callback
// rather than on the write call itself.
package influxdb
