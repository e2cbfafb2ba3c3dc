package feed

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/plugpilot/plugpilot-core/internal/pricing"
)

// Artifact is one parsed feed document for a single region and tier.
type Artifact struct {
	Name         string
	Region       string
	Tier         pricing.Tier
	GenerationID int64
	FetchedAt    time.Time
	Points       []pricing.Point
}

// document is the upstream JSON shape.
type document struct {
	Artifact string  `json:"artifact"`
	Region   string  `json:"region"`
	Tier     string  `json:"tier"`
	Points   []point `json:"points"`
}

type point struct {
	Bucket string  `json:"bucket"`
	Price  float64 `json:"price"`
}

// Config tunes the feed client.
type Config struct {
	BaseURL    string
	Timeout    time.Duration
	RetryCount int
}

// Client fetches price artifacts from the upstream feed.
//
// Each (region, tier) pair is fetched independently; one malformed or
// unreachable tier never blocks the others. Timeouts surface as errors so
// the caller can keep last-known data.
type Client struct {
	http *resty.Client
}

// NewClient creates a feed client.
func NewClient(cfg Config) *Client {
	client := resty.New().
		SetBaseURL(cfg.BaseURL).
		SetTimeout(cfg.Timeout).
		SetRetryCount(cfg.RetryCount).
		SetHeader("Accept", "application/json")
	return &Client{http: client}
}

// FetchTier retrieves and parses the latest artifact for a region and tier.
//
// A transport failure is returned as-is for retry next cycle. A response
// that cannot be parsed, names the wrong region or tier, or carries an
// invalid generation stamp wraps pricing.ErrMalformedFeed; the caller drops
// that tier for the cycle.
func (c *Client) FetchTier(ctx context.Context, region string, tier pricing.Tier) (*Artifact, error) {
	var doc document
	resp, err := c.http.R().
		SetContext(ctx).
		SetResult(&doc).
		SetPathParam("region", region).
		SetPathParam("tier", string(tier)).
		Get("/v1/prices/{region}/{tier}/latest")
	if err != nil {
		return nil, fmt.Errorf("fetch %s/%s: %w", region, tier, err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("fetch %s/%s: upstream status %s", region, tier, resp.Status())
	}

	return parseDocument(&doc, region, tier, time.Now().UTC())
}

func parseDocument(doc *document, region string, tier pricing.Tier, fetchedAt time.Time) (*Artifact, error) {
	if doc.Artifact == "" {
		return nil, fmt.Errorf("%w: response carries no artifact name", pricing.ErrMalformedFeed)
	}
	if doc.Region != region {
		return nil, fmt.Errorf("%w: artifact %q is for region %q, requested %q",
			pricing.ErrMalformedFeed, doc.Artifact, doc.Region, region)
	}
	if pricing.Tier(doc.Tier) != tier {
		return nil, fmt.Errorf("%w: artifact %q is tier %q, requested %q",
			pricing.ErrMalformedFeed, doc.Artifact, doc.Tier, tier)
	}

	generation, err := pricing.ExtractGenerationID(doc.Artifact)
	if err != nil {
		return nil, err
	}

	points := make([]pricing.Point, 0, len(doc.Points))
	for _, p := range doc.Points {
		bucket, err := time.Parse(time.RFC3339, p.Bucket)
		if err != nil {
			return nil, fmt.Errorf("%w: artifact %q bucket %q: %v",
				pricing.ErrMalformedFeed, doc.Artifact, p.Bucket, err)
		}
		points = append(points, pricing.Point{Bucket: bucket, Price: p.Price})
	}

	return &Artifact{
		Name:         doc.Artifact,
		Region:       region,
		Tier:         tier,
		GenerationID: generation,
		FetchedAt:    fetchedAt,
		Points:       points,
	}, nil
}
