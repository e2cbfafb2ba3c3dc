package influxdb

import (
	"context"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"

	"github.com/plugpilot/plugpilot-core/internal/cost"
	"github.com/plugpilot/plugpilot-core/internal/telemetry"
)

// Measurement names for PlugPilot exports.
const (
	measurementSample = "power_sample"
	measurementUsage  = "power_usage_5min"
	measurementCost   = "cost_summary"
)

// WriteSample exports a single 30-second power sample.
//
// Writes are non-blocking and batched; the point is queued and flushed by the
// write API on its own schedule. The context is accepted for interface
// compatibility but not consulted, since the actual network write happens
// asynchronously. Errors surface through the SetOnError callback.
//
// Parameters:
//   - ctx: Unused (async write)
//   - name: Human-readable device name, tagged alongside the device ID
//   - sample: The bucketed sample to export
//
// Returns:
//   - error: ErrNotConnected if the client is closed, nil otherwise
func (c *Client) WriteSample(_ context.Context, name string, sample telemetry.Sample) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	fields := map[string]interface{}{
		"status": sample.Status,
		"online": sample.Online,
	}
	if sample.Power != nil {
		fields["power"] = *sample.Power
	}
	if sample.Voltage != nil {
		fields["voltage"] = *sample.Voltage
	}
	if sample.Current != nil {
		fields["current"] = *sample.Current
	}

	point := influxdb2.NewPoint(
		measurementSample,
		map[string]string{
			"device_id":   sample.DeviceID,
			"device_name": name,
		},
		fields,
		sample.Bucket,
	)

	c.writeAPI.WritePoint(point)
	return nil
}

// WriteUsage exports a 5-minute usage aggregate.
//
// The point is timestamped at the period end, matching how the aggregate is
// keyed internally.
//
// Parameters:
//   - ctx: Unused (async write)
//   - rec: The aggregated usage record
//
// Returns:
//   - error: ErrNotConnected if the client is closed, nil otherwise
func (c *Client) WriteUsage(_ context.Context, rec telemetry.UsageRecord) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	fields := map[string]interface{}{
		"status":         rec.Status,
		"online":         rec.Online,
		"status_changed": rec.StatusChanged,
		"interval_count": rec.IntervalCount,
	}
	if rec.AvgPower != nil {
		fields["avg_power"] = *rec.AvgPower
	}
	if rec.AvgVoltage != nil {
		fields["avg_voltage"] = *rec.AvgVoltage
	}
	if rec.AvgCurrent != nil {
		fields["avg_current"] = *rec.AvgCurrent
	}

	point := influxdb2.NewPoint(
		measurementUsage,
		map[string]string{
			"device_id":   rec.DeviceID,
			"device_name": rec.DeviceName,
		},
		fields,
		rec.PeriodEnd,
	)

	c.writeAPI.WritePoint(point)
	return nil
}

// WriteCost exports realized and projected cost summaries as a single point.
//
// Realized and projected figures stay in separate fields; they are never
// combined into a blended total.
//
// Parameters:
//   - ctx: Unused (async write)
//   - realized: Observed energy and cost up to now
//   - projected: Forecast energy and cost over the projection horizon
//   - at: Timestamp for the point (typically the tick time)
//
// Returns:
//   - error: ErrNotConnected if the client is closed, nil otherwise
func (c *Client) WriteCost(_ context.Context, realized, projected cost.Summary, at time.Time) error {
	if !c.IsConnected() {
		return ErrNotConnected
	}

	point := influxdb2.NewPoint(
		measurementCost,
		map[string]string{
			"scope": "fleet",
		},
		map[string]interface{}{
			"realized_energy_kwh":        realized.EnergyKWh,
			"realized_cost":              realized.Cost,
			"realized_buckets":           realized.Buckets,
			"realized_unpriced_buckets":  realized.UnpricedBuckets,
			"projected_energy_kwh":       projected.EnergyKWh,
			"projected_cost":             projected.Cost,
			"projected_buckets":          projected.Buckets,
			"projected_unpriced_buckets": projected.UnpricedBuckets,
		},
		at,
	)

	c.writeAPI.WritePoint(point)
	return nil
}
