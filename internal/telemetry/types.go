package telemetry

import "time"

// SampleInterval is the canonical bucket width for power samples.
const SampleInterval = 30 * time.Second

// MaxSamples bounds each device's series: 24 hours at 30-second resolution.
const MaxSamples = 2880

// Sample is a single bucketed power reading for one device.
//
// Power is nil when the device was polled but returned no reading (offline,
// or the plug does not report energy). A nil-power sample still occupies its
// bucket so gaps are visible to the forecaster.
type Sample struct {
	DeviceID string     `json:"device_id"`
	Bucket   time.Time  `json:"bucket"`
	Power    *float64   `json:"power,omitempty"`   // watts
	Voltage  *float64   `json:"voltage,omitempty"` // volts
	Current  *float64   `json:"current,omitempty"` // amps
	Status   string     `json:"status,omitempty"`  // on, off, unknown
	Online   bool       `json:"online"`
	Recorded time.Time  `json:"recorded"` // raw poll time, pre-bucketing
}

// Reading carries one poll result into the store, before bucketing.
type Reading struct {
	Power   *float64
	Voltage *float64
	Current *float64
	Status  string
	Online  bool
}

// UsageRecord is a 5-minute aggregate of samples for one device, reported at
// the end of its period. This is the shape exported to long-term storage.
type UsageRecord struct {
	DeviceID      string
	DeviceName    string
	PeriodEnd     time.Time
	AvgPower      *float64
	AvgVoltage    *float64
	AvgCurrent    *float64
	Status        string
	Online        bool
	StatusChanged bool
	IntervalCount int
}
