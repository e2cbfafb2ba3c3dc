package telemetry

import (
	"sort"
	"sync"
	"time"
)

// Store is the bounded, bucketed in-memory time-series cache of power samples.
//
// Each device owns an independent series guarded by its own mutex, so
// unrelated devices never serialize against each other. Within a series,
// samples sit on the canonical 30-second grid; a second write to an occupied
// bucket overwrites it with the later-arriving value. Series length is capped
// at MaxSamples with the oldest sample evicted first.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu     sync.RWMutex // guards the series map only, never sample data
	series map[string]*deviceSeries
}

// deviceSeries holds one device's ordered samples plus display metadata.
type deviceSeries struct {
	mu      sync.Mutex
	name    string
	samples []Sample // ordered by Bucket ascending
}

// NewStore creates an empty telemetry store.
func NewStore() *Store {
	return &Store{
		series: make(map[string]*deviceSeries),
	}
}

// Append buckets a raw reading and upserts it into the device's series.
//
// The raw timestamp is mapped onto the 30-second grid; if the bucket is
// already occupied the sample is replaced (last write wins). The series is
// created on first append and trimmed to MaxSamples afterwards.
//
// Parameters:
//   - deviceID: Device identifier (series key)
//   - name: Human-readable device name, kept for export records
//   - reading: The poll result (nil power is a valid gap marker)
//   - raw: Wall-clock poll time, pre-bucketing
func (s *Store) Append(deviceID, name string, reading Reading, raw time.Time) Sample {
	ds := s.seriesFor(deviceID)

	sample := Sample{
		DeviceID: deviceID,
		Bucket:   BucketTime(raw),
		Power:    reading.Power,
		Voltage:  reading.Voltage,
		Current:  reading.Current,
		Status:   reading.Status,
		Online:   reading.Online,
		Recorded: raw,
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	if name != "" {
		ds.name = name
	}
	ds.upsert(sample)

	// Evict oldest beyond the 24-hour cap.
	if excess := len(ds.samples) - MaxSamples; excess > 0 {
		ds.samples = append(ds.samples[:0], ds.samples[excess:]...)
	}

	return sample
}

// upsert inserts the sample in bucket order, replacing an existing sample in
// the same bucket. The common case (newest bucket) is O(1); late or repeated
// buckets fall back to a binary search.
func (ds *deviceSeries) upsert(sample Sample) {
	n := len(ds.samples)
	if n == 0 || ds.samples[n-1].Bucket.Before(sample.Bucket) {
		ds.samples = append(ds.samples, sample)
		return
	}

	idx := sort.Search(n, func(i int) bool {
		return !ds.samples[i].Bucket.Before(sample.Bucket)
	})
	if idx < n && ds.samples[idx].Bucket.Equal(sample.Bucket) {
		ds.samples[idx] = sample
		return
	}

	ds.samples = append(ds.samples, Sample{})
	copy(ds.samples[idx+1:], ds.samples[idx:])
	ds.samples[idx] = sample
}

// Query returns the device's samples in bucket order.
//
// If since is non-zero, only samples with Bucket >= since are returned.
// An unknown device yields an empty slice, not an error; callers treat a
// device with no history the same as a brand-new one.
func (s *Store) Query(deviceID string, since time.Time) []Sample {
	s.mu.RLock()
	ds, ok := s.series[deviceID]
	s.mu.RUnlock()
	if !ok {
		return nil
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	samples := ds.samples
	if !since.IsZero() {
		idx := sort.Search(len(samples), func(i int) bool {
			return !samples[i].Bucket.Before(since)
		})
		samples = samples[idx:]
	}

	out := make([]Sample, len(samples))
	copy(out, samples)
	return out
}

// Recent returns up to n most-recent samples, newest last.
func (s *Store) Recent(deviceID string, n int) []Sample {
	s.mu.RLock()
	ds, ok := s.series[deviceID]
	s.mu.RUnlock()
	if !ok || n <= 0 {
		return nil
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()

	start := len(ds.samples) - n
	if start < 0 {
		start = 0
	}
	out := make([]Sample, len(ds.samples)-start)
	copy(out, ds.samples[start:])
	return out
}

// DeviceName returns the last name recorded for the device.
func (s *Store) DeviceName(deviceID string) string {
	s.mu.RLock()
	ds, ok := s.series[deviceID]
	s.mu.RUnlock()
	if !ok {
		return ""
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	return ds.name
}

// DeviceIDs returns the ids of all devices with at least one sample.
func (s *Store) DeviceIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.series))
	for id := range s.series {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len returns the number of samples held for the device.
func (s *Store) Len(deviceID string) int {
	s.mu.RLock()
	ds, ok := s.series[deviceID]
	s.mu.RUnlock()
	if !ok {
		return 0
	}

	ds.mu.Lock()
	defer ds.mu.Unlock()
	return len(ds.samples)
}

// seriesFor returns the device's series, creating it if absent.
func (s *Store) seriesFor(deviceID string) *deviceSeries {
	s.mu.RLock()
	ds, ok := s.series[deviceID]
	s.mu.RUnlock()
	if ok {
		return ds
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if ds, ok = s.series[deviceID]; ok {
		return ds
	}
	ds = &deviceSeries{}
	s.series[deviceID] = ds
	return ds
}
