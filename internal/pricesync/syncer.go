package pricesync

import (
	"context"
	"fmt"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/pricing"
	"github.com/plugpilot/plugpilot-core/internal/pricing/feed"
)

// Fetcher retrieves one tier's latest artifact for a region.
type Fetcher interface {
	FetchTier(ctx context.Context, region string, tier pricing.Tier) (*feed.Artifact, error)
}

// Merger applies a fetched tier into the price store.
type Merger interface {
	Merge(ctx context.Context, region string, tier pricing.Tier, generationID int64, fetchedAt time.Time, points []pricing.Point, force bool) (pricing.MergeResult, error)
}

// Logger is the minimal logging interface the syncer depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// Failure records one (region, tier) that did not merge this run.
type Failure struct {
	Region string
	Tier   pricing.Tier
	Err    error
}

// Result summarizes one sync run across all regions and tiers.
type Result struct {
	Merged   []pricing.MergeResult
	Failures []Failure
}

// FullSuccess reports whether every (region, tier) merged.
func (r Result) FullSuccess() bool { return len(r.Failures) == 0 }

// Inserted sums inserted points across all merges.
func (r Result) Inserted() int { return r.sum(func(m pricing.MergeResult) int { return m.Inserted }) }

// Updated sums updated points across all merges.
func (r Result) Updated() int { return r.sum(func(m pricing.MergeResult) int { return m.Updated }) }

// Skipped sums stale-skipped points across all merges.
func (r Result) Skipped() int { return r.sum(func(m pricing.MergeResult) int { return m.Skipped }) }

func (r Result) sum(f func(pricing.MergeResult) int) int {
	total := 0
	for _, m := range r.Merged {
		total += f(m)
	}
	return total
}

// tiers is the fetch order per region. Historical first so a cycle that
// dies midway has already locked in settled prices.
var tiers = []pricing.Tier{pricing.TierHistorical, pricing.TierFiveMin, pricing.TierThirtyMin}

// Syncer pulls every configured region's tiers from the feed and merges
// them into the price store.
//
// Runs are idempotent and safe to overlap: the store's generation gate
// makes re-applying an equal-or-older artifact a no-op. Failures are
// isolated per (region, tier); whatever succeeded stays merged.
type Syncer struct {
	fetcher Fetcher
	merger  Merger
	regions []string
	log     Logger
}

// NewSyncer creates a syncer over the configured regions. A nil logger
// discards output.
func NewSyncer(fetcher Fetcher, merger Merger, regions []string, log Logger) *Syncer {
	if log == nil {
		log = noopLogger{}
	}
	return &Syncer{fetcher: fetcher, merger: merger, regions: regions, log: log}
}

// Run fetches and merges every region and tier.
//
// With force set, the per-tier generation gate is bypassed and every
// fetched point overwrites what is stored. The returned result carries
// both the merge counters and the per-tier failures; the error return is
// only non-nil when the run could not start at all.
func (s *Syncer) Run(ctx context.Context, force bool) (Result, error) {
	var result Result

	for _, region := range s.regions {
		for _, tier := range tiers {
			if err := ctx.Err(); err != nil {
				return result, fmt.Errorf("sync aborted: %w", err)
			}

			artifact, err := s.fetcher.FetchTier(ctx, region, tier)
			if err != nil {
				s.log.Warn("tier fetch failed",
					"region", region, "tier", tier, "error", err)
				result.Failures = append(result.Failures, Failure{Region: region, Tier: tier, Err: err})
				continue
			}

			merged, err := s.merger.Merge(ctx, region, tier,
				artifact.GenerationID, artifact.FetchedAt, artifact.Points, force)
			if err != nil {
				s.log.Error("tier merge failed",
					"region", region, "tier", tier, "error", err)
				result.Failures = append(result.Failures, Failure{Region: region, Tier: tier, Err: err})
				continue
			}
			result.Merged = append(result.Merged, merged)
		}
	}

	s.log.Info("sync complete",
		"regions", len(s.regions),
		"inserted", result.Inserted(), "updated", result.Updated(), "skipped", result.Skipped(),
		"failures", len(result.Failures), "force", force)
	return result, nil
}
