package pricing

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Logger is the minimal logging interface the store depends on.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger discards all log output. Used when no logger is provided.
type noopLogger struct{}

func (noopLogger) Debug(msg string, args ...any) {}
func (noopLogger) Info(msg string, args ...any)  {}
func (noopLogger) Warn(msg string, args ...any)  {}
func (noopLogger) Error(msg string, args ...any) {}

// futureSlack is how far past now a historical bucket may sit before the
// merge treats it as corrupt and skips it. Settled prices cannot describe
// the future; a stamp beyond this window is feed damage, not clock skew.
const futureSlack = 10 * time.Minute

// Store is the merged regional price cache.
//
// Records are held in memory keyed by (region, bucket) and written through
// to the repository on every change. Merges are gated per tier by generation
// id: within a tier, an older artifact never overwrites a newer one, and a
// repeated generation re-applies (last write wins). Tiers never cross.
//
// Thread Safety: all methods are safe for concurrent use.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[int64]*PriceRecord // region -> bucket unix -> record
	repo    Repository
	log     Logger
	now     func() time.Time
}

// NewStore creates a price store backed by the repository. Pass a nil
// logger to discard log output.
func NewStore(repo Repository, log Logger) *Store {
	if log == nil {
		log = noopLogger{}
	}
	return &Store{
		records: make(map[string]map[int64]*PriceRecord),
		repo:    repo,
		log:     log,
		now:     time.Now,
	}
}

// Load hydrates the in-memory cache from the repository. Call once at
// startup, before any merge.
func (s *Store) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	records, err := s.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load price records: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		region := s.records[rec.Region]
		if region == nil {
			region = make(map[int64]*PriceRecord)
			s.records[rec.Region] = region
		}
		r := rec
		region[rec.Bucket.Unix()] = &r
	}
	s.log.Info("price store loaded", "records", len(records))
	return nil
}

// Merge applies one tier's points from one artifact generation.
//
// Points whose stored generation is newer are skipped and counted, not
// failed; a skip means the store already holds fresher data. With force set
// the generation gate is bypassed and every point applies. Historical points
// stamped in the future are always skipped regardless of force.
//
// Returns:
//   - MergeResult: inserted/updated/skipped counts for the tier
//   - error: ErrUnknownTier, or a repository write failure
func (s *Store) Merge(ctx context.Context, region string, tier Tier, generationID int64, fetchedAt time.Time, points []Point, force bool) (MergeResult, error) {
	result := MergeResult{Region: region, Tier: tier}
	if !tier.Valid() {
		return result, fmt.Errorf("%w: %q", ErrUnknownTier, tier)
	}

	now := s.now()
	var dirty []*PriceRecord

	s.mu.Lock()
	regionRecs := s.records[region]
	if regionRecs == nil {
		regionRecs = make(map[int64]*PriceRecord)
		s.records[region] = regionRecs
	}

	for _, p := range points {
		bucket := p.Bucket.Truncate(BucketInterval)

		if tier == TierHistorical && bucket.After(now.Add(futureSlack)) {
			result.Skipped++
			s.log.Warn("historical point in the future, skipping",
				"region", region, "bucket", bucket, "generation", generationID)
			continue
		}

		rec, ok := regionRecs[bucket.Unix()]
		if !ok {
			rec = &PriceRecord{Region: region, Bucket: bucket}
			regionRecs[bucket.Unix()] = rec
			result.Inserted++
		}

		entry := rec.tierEntry(tier)
		if ok {
			if entry.Present() && generationID < entry.GenerationID && !force {
				result.Skipped++
				s.log.Debug("stale generation, skipping",
					"region", region, "tier", tier, "bucket", bucket,
					"incoming", generationID, "stored", entry.GenerationID)
				continue
			}
			result.Updated++
		}

		price := p.Price
		entry.Price = &price
		entry.GenerationID = generationID
		entry.FetchedAt = fetchedAt
		rec.LastUpdated = now
		dirty = append(dirty, rec)
	}

	saved := make([]PriceRecord, len(dirty))
	for i, rec := range dirty {
		saved[i] = *rec
	}
	s.mu.Unlock()

	if s.repo != nil && len(saved) > 0 {
		if err := s.repo.Save(ctx, saved); err != nil {
			return result, fmt.Errorf("persist price records: %w", err)
		}
	}

	s.log.Info("tier merged",
		"region", region, "tier", tier, "generation", generationID,
		"inserted", result.Inserted, "updated", result.Updated, "skipped", result.Skipped)
	return result, nil
}

// Get returns a copy of the record for the region and bucket.
func (s *Store) Get(region string, bucket time.Time) (PriceRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[region][bucket.Truncate(BucketInterval).Unix()]
	if !ok {
		return PriceRecord{}, fmt.Errorf("%w: %s @ %s", ErrNotFound, region, bucket)
	}
	return *rec, nil
}

// EffectivePrice resolves the best price for a region at a point in time,
// or nil if no tier covers the bucket.
func (s *Store) EffectivePrice(region string, at time.Time) *float64 {
	rec, err := s.Get(region, at)
	if err != nil {
		return nil
	}
	return rec.EffectivePrice()
}

// ForecastPrices returns forward-looking prices for buckets in [from, to),
// ordered by bucket. Buckets with no forecast tier are omitted.
func (s *Store) ForecastPrices(region string, from, to time.Time) []Point {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var points []Point
	for _, rec := range s.records[region] {
		if rec.Bucket.Before(from) || !rec.Bucket.Before(to) {
			continue
		}
		if price := rec.ForecastPrice(); price != nil {
			points = append(points, Point{Bucket: rec.Bucket, Price: *price})
		}
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Bucket.Before(points[j].Bucket) })
	return points
}

// Regions returns the regions with at least one record, sorted.
func (s *Store) Regions() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	regions := make([]string, 0, len(s.records))
	for region := range s.records {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// Len returns the number of records held for the region.
func (s *Store) Len(region string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records[region])
}
