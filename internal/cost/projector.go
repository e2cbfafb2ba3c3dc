package cost

import (
	"time"

	"github.com/plugpilot/plugpilot-core/internal/forecast"
	"github.com/plugpilot/plugpilot-core/internal/telemetry"
)

// RateSource resolves a $/kWh price for a region at a point in time.
// A nil result means no price covers the bucket.
type RateSource interface {
	EffectivePrice(region string, at time.Time) *float64
}

// Tariff selects how buckets are priced.
type Tariff struct {
	// Mode is "flat" or "market".
	Mode string
	// FlatRate is the $/kWh applied in flat mode.
	FlatRate float64
	// Region keys market-mode price lookups.
	Region string
}

// Summary is one window's aggregate. Realized and projected figures are
// accumulated separately and never combined; a realized total only ever
// contains buckets that have already happened.
type Summary struct {
	From            time.Time
	To              time.Time
	EnergyKWh       float64
	Cost            float64
	Buckets         int
	UnpricedBuckets int // market mode, no price coverage; energy counted, cost not
}

// Projector converts observed and forecast power into energy and cost.
type Projector struct {
	store  *telemetry.Store
	engine *forecast.Engine
	prices RateSource
	tariff Tariff
}

// NewProjector creates a cost projector. The rate source may be nil when the
// tariff is flat.
func NewProjector(store *telemetry.Store, engine *forecast.Engine, prices RateSource, tariff Tariff) *Projector {
	return &Projector{store: store, engine: engine, prices: prices, tariff: tariff}
}

// EnergyKWh converts a wattage held for a duration into kilowatt-hours.
func EnergyKWh(watts float64, d time.Duration) float64 {
	return watts * d.Seconds() / 3600 / 1000
}

// Realized sums observed consumption across the devices over [from, to).
//
// Power is summed across devices per bucket before converting to energy, so
// the window total does not accumulate per-device rounding. Buckets at or
// after now never contribute; realized figures only cover what happened.
func (p *Projector) Realized(deviceIDs []string, from, to, now time.Time) Summary {
	if to.After(now) {
		to = now
	}
	summary := Summary{From: from, To: to}

	// bucket -> summed watts across devices
	watts := make(map[time.Time]float64)
	for _, id := range deviceIDs {
		for _, s := range p.store.Query(id, from) {
			if !s.Bucket.Before(to) || s.Power == nil {
				continue
			}
			watts[s.Bucket] += *s.Power
		}
	}

	for bucket, w := range watts {
		summary.Buckets++
		energy := EnergyKWh(w, telemetry.SampleInterval)
		summary.EnergyKWh += energy

		rate, ok := p.rate(bucket)
		if !ok {
			summary.UnpricedBuckets++
			continue
		}
		summary.Cost += energy * rate
	}
	return summary
}

// Projected estimates cost over the forecast horizon starting at now.
//
// Each device contributes its flat projection; quiescent devices contribute
// nothing. As with realized buckets, power is summed across devices before
// conversion.
func (p *Projector) Projected(deviceIDs []string, now time.Time) Summary {
	var totalWatts float64
	for _, id := range deviceIDs {
		proj := p.engine.Project(id, now)
		if proj.Watts != nil {
			totalWatts += *proj.Watts
		}
	}

	start := telemetry.BucketTime(now)
	summary := Summary{
		From: start,
		To:   start.Add(forecast.HorizonSteps * telemetry.SampleInterval),
	}

	for step := 0; step < forecast.HorizonSteps; step++ {
		bucket := start.Add(time.Duration(step) * telemetry.SampleInterval)
		summary.Buckets++
		energy := EnergyKWh(totalWatts, telemetry.SampleInterval)
		summary.EnergyKWh += energy

		rate, ok := p.rate(bucket)
		if !ok {
			summary.UnpricedBuckets++
			continue
		}
		summary.Cost += energy * rate
	}
	return summary
}

// rate resolves the $/kWh for a bucket under the configured tariff.
func (p *Projector) rate(bucket time.Time) (float64, bool) {
	if p.tariff.Mode == "market" {
		if p.prices == nil {
			return 0, false
		}
		price := p.prices.EffectivePrice(p.tariff.Region, bucket)
		if price == nil {
			return 0, false
		}
		return *price, true
	}
	return p.tariff.FlatRate, true
}
