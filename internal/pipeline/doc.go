// Package pipeline runs the cooperative 30-second control loop that ties
// polling, telemetry, forecasting, cost export, and automation together.
//
// The loop is single-threaded by design: one tick at a time, with late
// ticks skipped rather than queued. The driving clock is injectable so
// tests can step time without waiting.
package pipeline
