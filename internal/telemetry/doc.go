// Package telemetry holds the in-memory power sample cache and the 5-minute
// aggregation buffer that feeds long-term storage.
//
// Samples live on a canonical 30-second grid (see BucketTime). Each device's
// series is bounded to 24 hours (MaxSamples) and guarded by its own lock, so
// a slow reader of one device never blocks writers for another. The forecast
// engine and cost projector both read from this package; neither touches the
// database on the hot path.
package telemetry
