// Package feed retrieves tiered price artifacts from the upstream market
// data service and parses them into merge-ready points.
package feed
