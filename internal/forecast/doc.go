// Package forecast estimates each device's near-term power draw from its
// recent sample history.
//
// The output is deliberately flat: one wattage applied across a 30-minute
// horizon. The three rules (quiescence, step-change, trailing mean) trade
// modeling sophistication for fast reaction to load changes and shutdowns
// while damping single-sample noise.
package forecast
