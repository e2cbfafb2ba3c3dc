package telemetry

import (
	"testing"
	"time"
)

func fp(v float64) *float64 { return &v }

func at(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	if err != nil {
		t.Fatalf("parse %q: %v", value, err)
	}
	return ts
}

// ─── Bucketing ───────────────────────────────────────────────────────────────

func TestBucketTime(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"floor to minute", "2026-03-15T10:00:07Z", "2026-03-15T10:00:00Z"},
		{"exact minute", "2026-03-15T10:00:00Z", "2026-03-15T10:00:00Z"},
		{"edge of floor window", "2026-03-15T10:00:14Z", "2026-03-15T10:00:00Z"},
		{"snap to half minute", "2026-03-15T10:00:15Z", "2026-03-15T10:00:30Z"},
		{"mid half-minute window", "2026-03-15T10:00:29Z", "2026-03-15T10:00:30Z"},
		{"exact half minute", "2026-03-15T10:00:30Z", "2026-03-15T10:00:30Z"},
		{"edge of half-minute window", "2026-03-15T10:00:44Z", "2026-03-15T10:00:30Z"},
		{"roll to next minute", "2026-03-15T10:00:45Z", "2026-03-15T10:01:00Z"},
		{"last second rolls", "2026-03-15T10:59:59Z", "2026-03-15T11:00:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := BucketTime(at(t, tt.raw))
			if want := at(t, tt.want); !got.Equal(want) {
				t.Errorf("BucketTime(%s) = %s, want %s", tt.raw, got, want)
			}
		})
	}
}

func TestBucket5MinEnd(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"start of period", "2026-03-15T10:00:30Z", "2026-03-15T10:05:00Z"},
		{"end of period", "2026-03-15T10:04:30Z", "2026-03-15T10:05:00Z"},
		{"exact boundary kept", "2026-03-15T10:05:00Z", "2026-03-15T10:05:00Z"},
		{"just past boundary", "2026-03-15T10:05:30Z", "2026-03-15T10:10:00Z"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Bucket5MinEnd(at(t, tt.in))
			if want := at(t, tt.want); !got.Equal(want) {
				t.Errorf("Bucket5MinEnd(%s) = %s, want %s", tt.in, got, want)
			}
		})
	}
}

// ─── Store ───────────────────────────────────────────────────────────────────

func TestStoreLastWriteWins(t *testing.T) {
	store := NewStore()

	// Two raw timestamps that land in the same bucket.
	store.Append("plug-1", "Dryer", Reading{Power: fp(100), Status: "on", Online: true}, at(t, "2026-03-15T10:00:16Z"))
	store.Append("plug-1", "Dryer", Reading{Power: fp(250), Status: "on", Online: true}, at(t, "2026-03-15T10:00:40Z"))

	samples := store.Query("plug-1", time.Time{})
	if len(samples) != 1 {
		t.Fatalf("expected 1 sample after same-bucket appends, got %d", len(samples))
	}
	if samples[0].Power == nil || *samples[0].Power != 250 {
		t.Errorf("expected later write to win, got power %v", samples[0].Power)
	}
	if want := at(t, "2026-03-15T10:00:30Z"); !samples[0].Bucket.Equal(want) {
		t.Errorf("bucket = %s, want %s", samples[0].Bucket, want)
	}
}

func TestStoreBounded(t *testing.T) {
	store := NewStore()
	start := at(t, "2026-03-15T00:00:00Z")

	// Append well past the cap; every sample occupies a distinct bucket.
	total := MaxSamples + 100
	for i := 0; i < total; i++ {
		store.Append("plug-1", "", Reading{Power: fp(float64(i)), Online: true},
			start.Add(time.Duration(i)*SampleInterval))
	}

	if got := store.Len("plug-1"); got != MaxSamples {
		t.Fatalf("series length = %d, want %d", got, MaxSamples)
	}

	samples := store.Query("plug-1", time.Time{})
	if first := *samples[0].Power; first != 100 {
		t.Errorf("oldest surviving sample = %v, want 100 (oldest evicted first)", first)
	}
	if last := *samples[len(samples)-1].Power; last != float64(total-1) {
		t.Errorf("newest sample = %v, want %d", last, total-1)
	}
}

func TestStoreOutOfOrderAppend(t *testing.T) {
	store := NewStore()

	store.Append("plug-1", "", Reading{Power: fp(3)}, at(t, "2026-03-15T10:01:00Z"))
	store.Append("plug-1", "", Reading{Power: fp(1)}, at(t, "2026-03-15T10:00:00Z"))
	store.Append("plug-1", "", Reading{Power: fp(2)}, at(t, "2026-03-15T10:00:30Z"))

	samples := store.Query("plug-1", time.Time{})
	if len(samples) != 3 {
		t.Fatalf("expected 3 samples, got %d", len(samples))
	}
	for i, want := range []float64{1, 2, 3} {
		if *samples[i].Power != want {
			t.Errorf("samples[%d].Power = %v, want %v", i, *samples[i].Power, want)
		}
	}
}

func TestStoreQuerySince(t *testing.T) {
	store := NewStore()
	start := at(t, "2026-03-15T10:00:00Z")
	for i := 0; i < 10; i++ {
		store.Append("plug-1", "", Reading{Power: fp(float64(i))},
			start.Add(time.Duration(i)*SampleInterval))
	}

	since := start.Add(5 * SampleInterval)
	samples := store.Query("plug-1", since)
	if len(samples) != 5 {
		t.Fatalf("expected 5 samples since %s, got %d", since, len(samples))
	}
	if samples[0].Bucket.Before(since) {
		t.Errorf("first sample %s precedes since %s", samples[0].Bucket, since)
	}
}

func TestStoreUnknownDevice(t *testing.T) {
	store := NewStore()
	if samples := store.Query("ghost", time.Time{}); len(samples) != 0 {
		t.Errorf("expected empty result for unknown device, got %d samples", len(samples))
	}
	if n := store.Len("ghost"); n != 0 {
		t.Errorf("Len(ghost) = %d, want 0", n)
	}
}

func TestStoreDeviceIsolation(t *testing.T) {
	store := NewStore()
	ts := at(t, "2026-03-15T10:00:00Z")
	store.Append("plug-1", "Dryer", Reading{Power: fp(100)}, ts)
	store.Append("plug-2", "Fridge", Reading{Power: fp(50)}, ts)

	if n := store.Len("plug-1"); n != 1 {
		t.Errorf("plug-1 length = %d, want 1", n)
	}
	if name := store.DeviceName("plug-2"); name != "Fridge" {
		t.Errorf("DeviceName(plug-2) = %q, want Fridge", name)
	}
	ids := store.DeviceIDs()
	if len(ids) != 2 || ids[0] != "plug-1" || ids[1] != "plug-2" {
		t.Errorf("DeviceIDs() = %v", ids)
	}
}

// ─── Aggregation ─────────────────────────────────────────────────────────────

func TestAggregatorFlushCompletedPeriods(t *testing.T) {
	agg := NewAggregator()

	// Three samples in the 10:00-10:05 period, one in the next.
	for _, s := range []struct {
		bucket string
		power  float64
	}{
		{"2026-03-15T10:00:30Z", 100},
		{"2026-03-15T10:01:00Z", 200},
		{"2026-03-15T10:01:30Z", 300},
		{"2026-03-15T10:05:30Z", 999},
	} {
		agg.Add(Sample{
			DeviceID: "plug-1",
			Bucket:   at(t, s.bucket),
			Power:    fp(s.power),
			Status:   "on",
			Online:   true,
		})
	}

	records := agg.Flush(at(t, "2026-03-15T10:05:00Z"), func(string) string { return "Dryer" })
	if len(records) != 1 {
		t.Fatalf("expected 1 completed record, got %d", len(records))
	}

	rec := records[0]
	if want := at(t, "2026-03-15T10:05:00Z"); !rec.PeriodEnd.Equal(want) {
		t.Errorf("PeriodEnd = %s, want %s", rec.PeriodEnd, want)
	}
	if rec.AvgPower == nil || *rec.AvgPower != 200 {
		t.Errorf("AvgPower = %v, want 200", rec.AvgPower)
	}
	if rec.IntervalCount != 3 {
		t.Errorf("IntervalCount = %d, want 3", rec.IntervalCount)
	}
	if rec.DeviceName != "Dryer" {
		t.Errorf("DeviceName = %q, want Dryer", rec.DeviceName)
	}

	// The 10:10 period is still open.
	if agg.Pending() != 1 {
		t.Errorf("Pending() = %d, want 1", agg.Pending())
	}
}

func TestAggregatorNilPowerAverages(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Sample{DeviceID: "plug-1", Bucket: at(t, "2026-03-15T10:00:30Z"), Power: fp(100), Status: "on"})
	agg.Add(Sample{DeviceID: "plug-1", Bucket: at(t, "2026-03-15T10:01:00Z"), Status: "unknown"})

	records := agg.Flush(at(t, "2026-03-15T10:05:00Z"), nil)
	if len(records) != 1 {
		t.Fatalf("expected 1 record, got %d", len(records))
	}
	// The gap sample counts toward the interval but not the average.
	if records[0].AvgPower == nil || *records[0].AvgPower != 100 {
		t.Errorf("AvgPower = %v, want 100", records[0].AvgPower)
	}
	if records[0].IntervalCount != 2 {
		t.Errorf("IntervalCount = %d, want 2", records[0].IntervalCount)
	}
	// Status comes from the newest sample in the period.
	if records[0].Status != "unknown" {
		t.Errorf("Status = %q, want unknown", records[0].Status)
	}
}

func TestAggregatorStatusChanged(t *testing.T) {
	agg := NewAggregator()
	agg.Add(Sample{DeviceID: "plug-1", Bucket: at(t, "2026-03-15T10:00:30Z"), Status: "on"})
	first := agg.Flush(at(t, "2026-03-15T10:05:00Z"), nil)
	if len(first) != 1 {
		t.Fatalf("first flush: got %d records, want 1", len(first))
	}
	if first[0].StatusChanged {
		t.Error("first flush: StatusChanged = true, want false with no prior period")
	}

	agg.Add(Sample{DeviceID: "plug-1", Bucket: at(t, "2026-03-15T10:05:30Z"), Status: "off"})
	second := agg.Flush(at(t, "2026-03-15T10:10:00Z"), nil)
	if len(second) != 1 || !second[0].StatusChanged {
		t.Fatalf("second flush: expected StatusChanged after on->off")
	}
}
