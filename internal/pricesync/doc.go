// Package pricesync runs the batch job that pulls tiered price artifacts
// from the feed and merges them into the price store, one (region, tier)
// at a time with failures isolated.
package pricesync
