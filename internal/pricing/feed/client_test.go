package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/plugpilot/plugpilot-core/internal/pricing"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	srv := httptest.NewServer(handler)
	client := NewClient(Config{BaseURL: srv.URL, Timeout: 2 * time.Second})
	return client, srv
}

func TestFetchTier(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/prices/NSW1/historical/latest" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
			"artifact": "PUBLIC_DISPATCH_202511182020_0000000469036372.zip",
			"region": "NSW1",
			"tier": "historical",
			"points": [
				{"bucket": "2025-11-18T20:15:00Z", "price": 0.21},
				{"bucket": "2025-11-18T20:20:00Z", "price": 0.23}
			]
		}`))
	})
	defer srv.Close()

	art, err := client.FetchTier(context.Background(), "NSW1", pricing.TierHistorical)
	if err != nil {
		t.Fatalf("FetchTier: %v", err)
	}
	if art.GenerationID != 202511182020 {
		t.Errorf("generation = %d, want 202511182020", art.GenerationID)
	}
	if len(art.Points) != 2 || art.Points[1].Price != 0.23 {
		t.Errorf("points = %+v", art.Points)
	}
	if art.FetchedAt.IsZero() {
		t.Error("fetched_at not stamped")
	}
}

func TestFetchTierMalformed(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"no artifact name", `{"region":"NSW1","tier":"historical","points":[]}`},
		{"wrong region", `{"artifact":"PUBLIC_DISPATCH_202511182020_1.zip","region":"QLD1","tier":"historical","points":[]}`},
		{"wrong tier", `{"artifact":"PUBLIC_DISPATCH_202511182020_1.zip","region":"NSW1","tier":"five_min_forecast","points":[]}`},
		{"no generation stamp", `{"artifact":"PUBLIC_DISPATCH.zip","region":"NSW1","tier":"historical","points":[]}`},
		{"bad bucket", `{"artifact":"PUBLIC_DISPATCH_202511182020_1.zip","region":"NSW1","tier":"historical","points":[{"bucket":"yesterday","price":1}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.Write([]byte(tt.body))
			})
			defer srv.Close()

			_, err := client.FetchTier(context.Background(), "NSW1", pricing.TierHistorical)
			if !errors.Is(err, pricing.ErrMalformedFeed) {
				t.Errorf("error = %v, want ErrMalformedFeed", err)
			}
		})
	}
}

func TestFetchTierUpstreamError(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	defer srv.Close()

	_, err := client.FetchTier(context.Background(), "NSW1", pricing.TierHistorical)
	if err == nil {
		t.Fatal("expected error for 503 response")
	}
	// Transport-level failures are transient, not malformed.
	if errors.Is(err, pricing.ErrMalformedFeed) {
		t.Errorf("upstream 503 classified as malformed: %v", err)
	}
}

func TestFetchTierTimeout(t *testing.T) {
	client, srv := newTestClient(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	if _, err := client.FetchTier(ctx, "NSW1", pricing.TierHistorical); err == nil {
		t.Fatal("expected timeout error")
	}
}
