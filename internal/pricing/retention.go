package pricing

import (
	"context"
	"fmt"
	"time"
)

const (
	// DeleteHorizon is the age past which whole records are removed.
	DeleteHorizon = 48 * time.Hour
	// ForecastHorizon is the age past which forecast tiers are cleared.
	// Historical settles within this window, so a forecast older than it
	// can never be preferred again.
	ForecastHorizon = 2 * time.Hour
)

// SweepResult summarizes one retention pass.
type SweepResult struct {
	Deleted int // records removed outright
	Cleared int // records with forecast tiers dropped
}

// Sweep applies the retention policy as of now.
//
// Records older than DeleteHorizon are deleted. Records between the two
// horizons keep their historical tier but lose both forecast tiers. Newer
// records are untouched. Running the sweep twice at the same instant is a
// no-op the second time.
func (s *Store) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	deleteBefore := now.Add(-DeleteHorizon)
	clearBefore := now.Add(-ForecastHorizon)

	var result SweepResult
	var removed []PriceRecord
	var changed []PriceRecord

	s.mu.Lock()
	for region, regionRecs := range s.records {
		for key, rec := range regionRecs {
			switch {
			case rec.Bucket.Before(deleteBefore):
				removed = append(removed, *rec)
				delete(regionRecs, key)
				result.Deleted++
			case rec.Bucket.Before(clearBefore):
				if !rec.FiveMin.Present() && !rec.ThirtyMin.Present() {
					continue
				}
				rec.FiveMin = TierEntry{}
				rec.ThirtyMin = TierEntry{}
				rec.LastUpdated = now
				changed = append(changed, *rec)
				result.Cleared++
			}
		}
		if len(regionRecs) == 0 {
			delete(s.records, region)
		}
	}
	s.mu.Unlock()

	if s.repo != nil {
		if len(removed) > 0 {
			if err := s.repo.Delete(ctx, removed); err != nil {
				return result, fmt.Errorf("delete expired price records: %w", err)
			}
		}
		if len(changed) > 0 {
			if err := s.repo.Save(ctx, changed); err != nil {
				return result, fmt.Errorf("persist cleared price records: %w", err)
			}
		}
	}

	if result.Deleted > 0 || result.Cleared > 0 {
		s.log.Info("retention sweep", "deleted", result.Deleted, "cleared", result.Cleared)
	}
	return result, nil
}
