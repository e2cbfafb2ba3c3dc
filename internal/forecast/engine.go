package forecast

import (
	"time"

	"github.com/plugpilot/plugpilot-core/internal/telemetry"
)

const (
	// HorizonSteps is the number of 30-second steps projected forward.
	HorizonSteps = 60

	// quiescenceWindow is how many trailing samples must all be zero or
	// empty before a device is excluded from projection.
	quiescenceWindow = 3

	// stepChangeMinSamples is the history needed to compare the two
	// 4-sample windows of the step-change rule.
	stepChangeMinSamples = 8

	// stepChangeRatio is the rise that flips the forecast onto the new
	// baseline immediately instead of blending it in.
	stepChangeRatio = 1.05

	// defaultWindow is the trailing span averaged by the fallback rule.
	defaultWindow = 30 * time.Minute
)

// Projection is one device's flat forward power estimate.
//
// Watts is nil for a quiescent device; such devices contribute nothing to
// projected cost. A non-nil value applies uniformly across every step of
// the horizon.
type Projection struct {
	DeviceID string
	Watts    *float64
	Steps    int
	StepSize time.Duration
}

// Horizon returns the projection's total forward span.
func (p Projection) Horizon() time.Duration {
	return time.Duration(p.Steps) * p.StepSize
}

// Engine projects near-term power from a device's sample history.
type Engine struct {
	store *telemetry.Store
}

// NewEngine creates a forecast engine reading from the telemetry store.
func NewEngine(store *telemetry.Store) *Engine {
	return &Engine{store: store}
}

// Project estimates the device's forward power draw as of now.
//
// Rules apply in priority order: a device whose three newest samples are all
// zero or empty is quiescent (nil watts); a sustained rise of more than 5%
// between the two most recent 4-sample windows adopts the new level
// immediately; otherwise the trailing 30-minute mean applies, falling back
// to the mean of all positive history, then zero.
func (e *Engine) Project(deviceID string, now time.Time) Projection {
	samples := e.store.Query(deviceID, time.Time{})
	return project(deviceID, samples, now)
}

func project(deviceID string, samples []telemetry.Sample, now time.Time) Projection {
	p := Projection{
		DeviceID: deviceID,
		Steps:    HorizonSteps,
		StepSize: telemetry.SampleInterval,
	}

	if quiescent(samples) {
		return p
	}

	if watts, ok := stepChange(samples); ok {
		p.Watts = &watts
		return p
	}

	watts := trailingMean(samples, now)
	p.Watts = &watts
	return p
}

// quiescent reports whether the newest samples show no draw. A short history
// is not quiescence; a brand-new device falls through to the default rule.
func quiescent(samples []telemetry.Sample) bool {
	if len(samples) < quiescenceWindow {
		return false
	}
	for _, s := range samples[len(samples)-quiescenceWindow:] {
		if s.Power != nil && *s.Power > 0 {
			return false
		}
	}
	return true
}

// stepChange compares the mean of the 4 newest samples against the mean of
// the 4 before them. A rise past the ratio adopts the new level.
func stepChange(samples []telemetry.Sample) (float64, bool) {
	if len(samples) < stepChangeMinSamples {
		return 0, false
	}

	n := len(samples)
	recent := windowMean(samples[n-4:])
	prior := windowMean(samples[n-8 : n-4])
	if prior > 0 && recent > stepChangeRatio*prior {
		return recent, true
	}
	return 0, false
}

// trailingMean averages samples within the trailing window, falling back to
// the mean of all positive history, then zero.
func trailingMean(samples []telemetry.Sample, now time.Time) float64 {
	cutoff := now.Add(-defaultWindow)

	var sum float64
	var n int
	for _, s := range samples {
		if s.Power == nil || s.Bucket.Before(cutoff) {
			continue
		}
		sum += *s.Power
		n++
	}
	if n > 0 {
		return sum / float64(n)
	}

	for _, s := range samples {
		if s.Power != nil && *s.Power > 0 {
			sum += *s.Power
			n++
		}
	}
	if n > 0 {
		return sum / float64(n)
	}
	return 0
}

// windowMean averages a window, counting empty samples as zero draw.
func windowMean(samples []telemetry.Sample) float64 {
	var sum float64
	for _, s := range samples {
		if s.Power != nil {
			sum += *s.Power
		}
	}
	return sum / float64(len(samples))
}
