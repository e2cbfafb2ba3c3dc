package pricing

import "time"

// BucketInterval is the grid width of regional price buckets.
const BucketInterval = 5 * time.Minute

// Tier identifies the provenance of a price value. Tiers never overwrite
// each other; each column of a record is gated independently.
type Tier string

const (
	// TierHistorical carries settled dispatch prices. Highest precedence.
	TierHistorical Tier = "historical"
	// TierFiveMin carries the short-horizon predispatch forecast.
	TierFiveMin Tier = "five_min_forecast"
	// TierThirtyMin carries the long-horizon predispatch forecast.
	TierThirtyMin Tier = "thirty_min_forecast"
)

// Valid reports whether t is a known tier.
func (t Tier) Valid() bool {
	switch t {
	case TierHistorical, TierFiveMin, TierThirtyMin:
		return true
	}
	return false
}

// TierEntry is one tier's contribution to a price record.
type TierEntry struct {
	Price        *float64  // $/kWh, nil when the tier has no value for the bucket
	GenerationID int64     // YYYYMMDDHHMM stamp of the source artifact
	FetchedAt    time.Time // when the artifact was retrieved
}

// Present reports whether the tier holds a value.
func (e TierEntry) Present() bool { return e.Price != nil }

// PriceRecord is the merged price state for one (region, bucket) pair.
//
// EffectivePrice and ForecastPrice are derived whenever a tier changes and
// are never written directly: effective prefers historical over 5-minute
// over 30-minute; forecast prefers 5-minute over 30-minute and ignores
// historical entirely.
type PriceRecord struct {
	Region      string
	Bucket      time.Time
	Historical  TierEntry
	FiveMin     TierEntry
	ThirtyMin   TierEntry
	LastUpdated time.Time
}

// tierEntry returns a pointer to the record's entry for the tier.
func (r *PriceRecord) tierEntry(tier Tier) *TierEntry {
	switch tier {
	case TierHistorical:
		return &r.Historical
	case TierFiveMin:
		return &r.FiveMin
	case TierThirtyMin:
		return &r.ThirtyMin
	}
	return nil
}

// EffectivePrice resolves the best available price for the bucket, walking
// tiers in precedence order. Returns nil when no tier holds a value.
func (r *PriceRecord) EffectivePrice() *float64 {
	for _, e := range []TierEntry{r.Historical, r.FiveMin, r.ThirtyMin} {
		if e.Present() {
			return e.Price
		}
	}
	return nil
}

// ForecastPrice resolves the best forward-looking price, preferring the
// 5-minute tier. Historical never contributes here.
func (r *PriceRecord) ForecastPrice() *float64 {
	for _, e := range []TierEntry{r.FiveMin, r.ThirtyMin} {
		if e.Present() {
			return e.Price
		}
	}
	return nil
}

// Point is one (bucket, price) pair from a feed artifact, pre-merge.
type Point struct {
	Bucket time.Time
	Price  float64
}

// MergeResult summarizes one tier merge for logging and sync reporting.
type MergeResult struct {
	Region   string
	Tier     Tier
	Inserted int
	Updated  int
	Skipped  int // stale-generation or guarded points, not an error
}

// Total returns the number of points examined.
func (m MergeResult) Total() int { return m.Inserted + m.Updated + m.Skipped }
