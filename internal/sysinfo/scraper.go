package sysinfo

import (
	"context"
	"time"

	"github.com/hazem-soussi-HA/hazoom/internal/cache"
)

// Scraper serves host snapshots, cached for a TTL.
type Scraper struct {
	cache   cache.Cache
	ttl     time.Duration
	collect func(context.Context) (*Info, error)
}

// NewScraper returns a scraper backed by c. A nil cache gets an in-memory one.
func NewScraper(c cache.Cache, ttl time.Duration) *Scraper {
	if c == nil {
		c = cache.NewMemoryCache("")
	}
	if ttl <= 0 {
		ttl = cache.SystemInfoTTL
	}
	return &Scraper{
		cache:   c,
		ttl:     ttl,
		collect: NewCollector(500 * time.Millisecond).Collect,
	}
}

// Snapshot returns the cached snapshot, collecting a new one when stale.
func (s *Scraper) Snapshot(ctx context.Context) (*Info, error) {
	return cache.Fetch(ctx, s.cache, s.cache.Key("sysinfo", "snapshot"), s.ttl, s.collect)
}

// Recommendations returns tuning advice for the current snapshot.
func (s *Scraper) Recommendations(ctx context.Context) (*Info, Recommendation, error) {
	info, err := s.Snapshot(ctx)
	if err != nil {
		return nil, Recommendation{}, err
	}
	return info, Recommend(info), nil
}
