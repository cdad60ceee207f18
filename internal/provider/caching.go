package provider

import (
	"context"
	"sync"

	"pitscout/pkg/model"
)

// CachingProvider wraps a Provider with an in-memory cache for GetDailyBars.
// Used when the scanner and backtester read the same codes in one process.
type CachingProvider struct {
	inner   Provider
	cache   map[string]cachedBars
	mu      sync.Mutex
	maxDays int
}

type cachedBars struct {
	bars      []model.Bar
	requested int
}

// NewCachingProvider creates a caching wrapper. maxDays is the number of days
// to always fetch so later requests for shorter histories hit the cache.
func NewCachingProvider(inner Provider, maxDays int) *CachingProvider {
	return &CachingProvider{
		inner:   inner,
		cache:   make(map[string]cachedBars),
		maxDays: maxDays,
	}
}

func (p *CachingProvider) Name() string      { return p.inner.Name() }
func (p *CachingProvider) IsAvailable() bool { return p.inner.IsAvailable() }
func (p *CachingProvider) RateLimit() int    { return p.inner.RateLimit() }

func (p *CachingProvider) GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error) {
	p.mu.Lock()
	cached, ok := p.cache[code]
	p.mu.Unlock()
	if ok && days <= cached.requested {
		return tail(cached.bars, days), nil
	}

	fetchDays := max(p.maxDays, days)
	bars, err := p.inner.GetDailyBars(ctx, code, fetchDays)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	p.cache[code] = cachedBars{bars: bars, requested: fetchDays}
	p.mu.Unlock()

	return tail(bars, days), nil
}
