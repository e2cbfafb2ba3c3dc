// Package pricing merges regional electricity prices from multiple feed
// tiers into a single record per (region, 5-minute bucket).
//
// Three tiers contribute: settled historical dispatch, the 5-minute
// predispatch forecast, and the 30-minute predispatch forecast. Each tier is
// gated independently by the generation id stamped into its source artifact
// name, so replayed or out-of-order artifacts can never roll a tier
// backwards. The effective price prefers historical over 5-minute over
// 30-minute; the forecast price prefers 5-minute over 30-minute.
//
// Records persist to SQLite through Repository and age out under the
// retention policy in Sweep.
package pricing
