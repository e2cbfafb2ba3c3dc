package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Aggregator accumulates per-device samples into 5-minute usage records.
//
// Samples are grouped by the END of their 5-minute period; a period is only
// flushed once the wall clock has passed that end, so records always describe
// completed intervals. Flushing clears the flushed periods from the buffer.
type Aggregator struct {
	mu      sync.Mutex
	buckets map[string]map[time.Time][]Sample // device id -> period end -> samples
	last    map[string]string                 // device id -> status of previous flushed period
}

// NewAggregator creates an empty aggregation buffer.
func NewAggregator() *Aggregator {
	return &Aggregator{
		buckets: make(map[string]map[time.Time][]Sample),
		last:    make(map[string]string),
	}
}

// Add buffers a sample under the end of its 5-minute period.
func (a *Aggregator) Add(sample Sample) {
	period := Bucket5MinEnd(sample.Bucket)

	a.mu.Lock()
	defer a.mu.Unlock()

	periods, ok := a.buckets[sample.DeviceID]
	if !ok {
		periods = make(map[time.Time][]Sample)
		a.buckets[sample.DeviceID] = periods
	}
	periods[period] = append(periods[period], sample)
}

// Flush drains every completed period (period end <= now) and returns the
// usage records, ordered by period end then device id. Incomplete periods
// stay buffered for the next flush.
func (a *Aggregator) Flush(now time.Time, names func(deviceID string) string) []UsageRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	var records []UsageRecord
	for deviceID, periods := range a.buckets {
		for end, samples := range periods {
			if end.After(now) {
				continue
			}

			rec := summarize(deviceID, end, samples)
			if names != nil {
				rec.DeviceName = names(deviceID)
			}
			if prev, ok := a.last[deviceID]; ok {
				rec.StatusChanged = prev != rec.Status
			}
			a.last[deviceID] = rec.Status
			records = append(records, rec)
			delete(periods, end)
		}
		if len(periods) == 0 {
			delete(a.buckets, deviceID)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		if !records[i].PeriodEnd.Equal(records[j].PeriodEnd) {
			return records[i].PeriodEnd.Before(records[j].PeriodEnd)
		}
		return records[i].DeviceID < records[j].DeviceID
	})
	return records
}

// summarize reduces one period's samples to a usage record. Averages only
// cover samples that actually carried a value; the status and online flag are
// taken from the newest sample in the period.
func summarize(deviceID string, end time.Time, samples []Sample) UsageRecord {
	rec := UsageRecord{
		DeviceID:      deviceID,
		PeriodEnd:     end,
		IntervalCount: len(samples),
	}

	latest := samples[0]
	var powerSum, voltSum, currSum float64
	var powerN, voltN, currN int
	for _, s := range samples {
		if s.Bucket.After(latest.Bucket) {
			latest = s
		}
		if s.Power != nil {
			powerSum += *s.Power
			powerN++
		}
		if s.Voltage != nil {
			voltSum += *s.Voltage
			voltN++
		}
		if s.Current != nil {
			currSum += *s.Current
			currN++
		}
	}

	rec.Status = latest.Status
	rec.Online = latest.Online
	if powerN > 0 {
		avg := powerSum / float64(powerN)
		rec.AvgPower = &avg
	}
	if voltN > 0 {
		avg := voltSum / float64(voltN)
		rec.AvgVoltage = &avg
	}
	if currN > 0 {
		avg := currSum / float64(currN)
		rec.AvgCurrent = &avg
	}
	return rec
}

// Pending reports how many samples are buffered across all devices.
func (a *Aggregator) Pending() int {
	a.mu.Lock()
	defer a.mu.Unlock()

	total := 0
	for _, periods := range a.buckets {
		for _, samples := range periods {
			total += len(samples)
		}
	}
	return total
}
