package pricesync

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/pricing"
	"github.com/plugpilot/plugpilot-core/internal/pricing/feed"
)

// mockFetcher serves canned artifacts keyed by region/tier.
type mockFetcher struct {
	artifacts map[string]*feed.Artifact
	errs      map[string]error
	calls     []string
}

func key(region string, tier pricing.Tier) string {
	return region + "/" + string(tier)
}

func (m *mockFetcher) FetchTier(_ context.Context, region string, tier pricing.Tier) (*feed.Artifact, error) {
	k := key(region, tier)
	m.calls = append(m.calls, k)
	if err, ok := m.errs[k]; ok {
		return nil, err
	}
	if art, ok := m.artifacts[k]; ok {
		return art, nil
	}
	return nil, fmt.Errorf("no artifact for %s", k)
}

// mockMerger records merge invocations.
type mockMerger struct {
	merges []mergeCall
	errs   map[string]error
}

type mergeCall struct {
	region string
	tier   pricing.Tier
	gen    int64
	force  bool
	points int
}

func (m *mockMerger) Merge(_ context.Context, region string, tier pricing.Tier, gen int64, _ time.Time, points []pricing.Point, force bool) (pricing.MergeResult, error) {
	if err, ok := m.errs[key(region, tier)]; ok {
		return pricing.MergeResult{}, err
	}
	m.merges = append(m.merges, mergeCall{region: region, tier: tier, gen: gen, force: force, points: len(points)})
	return pricing.MergeResult{Region: region, Tier: tier, Inserted: len(points)}, nil
}

func artifact(region string, tier pricing.Tier, gen int64, points int) *feed.Artifact {
	pts := make([]pricing.Point, points)
	base := time.Date(2025, 11, 18, 20, 0, 0, 0, time.UTC)
	for i := range pts {
		pts[i] = pricing.Point{Bucket: base.Add(time.Duration(i) * 5 * time.Minute), Price: 0.2}
	}
	return &feed.Artifact{
		Name:         fmt.Sprintf("PUBLIC_%s_%d_1.zip", tier, gen),
		Region:       region,
		Tier:         tier,
		GenerationID: gen,
		FetchedAt:    base,
		Points:       pts,
	}
}

func fullFetcher(regions ...string) *mockFetcher {
	f := &mockFetcher{artifacts: make(map[string]*feed.Artifact), errs: make(map[string]error)}
	for _, region := range regions {
		f.artifacts[key(region, pricing.TierHistorical)] = artifact(region, pricing.TierHistorical, 202511182020, 3)
		f.artifacts[key(region, pricing.TierFiveMin)] = artifact(region, pricing.TierFiveMin, 202511182025, 2)
		f.artifacts[key(region, pricing.TierThirtyMin)] = artifact(region, pricing.TierThirtyMin, 202511181800, 6)
	}
	return f
}

func TestRunAllTiersAllRegions(t *testing.T) {
	fetcher := fullFetcher("NSW1", "QLD1")
	merger := &mockMerger{}
	s := NewSyncer(fetcher, merger, []string{"NSW1", "QLD1"}, nil)

	result, err := s.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if !result.FullSuccess() {
		t.Fatalf("failures: %+v", result.Failures)
	}
	if len(merger.merges) != 6 {
		t.Fatalf("merges = %d, want 6 (2 regions x 3 tiers)", len(merger.merges))
	}
	if result.Inserted() != 2*(3+2+6) {
		t.Errorf("inserted = %d, want 22", result.Inserted())
	}

	// Historical merges before the forecast tiers within each region.
	if merger.merges[0].tier != pricing.TierHistorical {
		t.Errorf("first merge tier = %s, want historical", merger.merges[0].tier)
	}
}

func TestRunIsolatesFailures(t *testing.T) {
	fetcher := fullFetcher("NSW1", "QLD1")
	// NSW1's five-minute tier is malformed; QLD1's merge of thirty-minute fails.
	fetcher.errs[key("NSW1", pricing.TierFiveMin)] = pricing.ErrMalformedFeed
	merger := &mockMerger{errs: map[string]error{
		key("QLD1", pricing.TierThirtyMin): errors.New("disk full"),
	}}

	s := NewSyncer(fetcher, merger, []string{"NSW1", "QLD1"}, nil)
	result, err := s.Run(context.Background(), false)
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	if result.FullSuccess() {
		t.Fatal("expected partial failure")
	}
	if len(result.Failures) != 2 {
		t.Fatalf("failures = %d, want 2", len(result.Failures))
	}
	// The other four (region, tier) pairs still merged.
	if len(merger.merges) != 4 {
		t.Errorf("merges = %d, want 4", len(merger.merges))
	}
	for _, f := range result.Failures {
		if f.Region == "NSW1" && !errors.Is(f.Err, pricing.ErrMalformedFeed) {
			t.Errorf("NSW1 failure = %v, want ErrMalformedFeed", f.Err)
		}
	}
}

func TestRunForcePropagates(t *testing.T) {
	fetcher := fullFetcher("NSW1")
	merger := &mockMerger{}
	s := NewSyncer(fetcher, merger, []string{"NSW1"}, nil)

	if _, err := s.Run(context.Background(), true); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, m := range merger.merges {
		if !m.force {
			t.Errorf("merge %s/%s missing force flag", m.region, m.tier)
		}
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	fetcher := fullFetcher("NSW1")
	merger := &mockMerger{}
	s := NewSyncer(fetcher, merger, []string{"NSW1"}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := s.Run(ctx, false); err == nil {
		t.Fatal("expected error on cancelled context")
	}
	if len(merger.merges) != 0 {
		t.Errorf("merges after cancellation = %d", len(merger.merges))
	}
}
