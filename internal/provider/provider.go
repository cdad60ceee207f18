package provider

import (
	"context"
	"errors"

	"pitscout/pkg/model"
)

// Provider defines the interface for daily bar sources
type Provider interface {
	// Name returns the provider name
	Name() string

	// GetDailyBars fetches up to days forward-adjusted daily bars for code, oldest first.
	// code is exchange-suffixed, e.g. 603212.SS or 000001.SZ
	GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error)

	// IsAvailable checks if the provider can serve requests
	IsAvailable() bool

	// RateLimit returns the rate limit per minute
	RateLimit() int
}

// ProviderError represents a provider-specific error
type ProviderError struct {
	Provider  string
	Err       error
	Retryable bool
}

func (e *ProviderError) Error() string {
	return e.Provider + ": " + e.Err.Error()
}

func (e *ProviderError) Unwrap() error {
	return e.Err
}

// ErrNoData is returned when a source answers but has no bars for the code
var ErrNoData = errors.New("no data available")

// FallbackProvider tries multiple providers in order
type FallbackProvider struct {
	providers []Provider
}

// NewFallbackProvider creates a new fallback provider
func NewFallbackProvider(providers ...Provider) *FallbackProvider {
	// Filter to only available providers
	available := make([]Provider, 0, len(providers))
	for _, p := range providers {
		if p.IsAvailable() {
			available = append(available, p)
		}
	}
	return &FallbackProvider{providers: available}
}

// Name returns the combined provider name
func (f *FallbackProvider) Name() string {
	return "fallback"
}

// GetDailyBars tries each provider in order until one succeeds
func (f *FallbackProvider) GetDailyBars(ctx context.Context, code string, days int) ([]model.Bar, error) {
	lastErr := error(&ProviderError{Provider: f.Name(), Err: errors.New("no providers available")})
	for _, p := range f.providers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		bars, err := p.GetDailyBars(ctx, code, days)
		if err == nil {
			return bars, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

// IsAvailable returns true if any provider is available
func (f *FallbackProvider) IsAvailable() bool {
	return len(f.providers) > 0
}

// RateLimit returns the highest rate limit among providers
func (f *FallbackProvider) RateLimit() int {
	maxRate := 0
	for _, p := range f.providers {
		if p.RateLimit() > maxRate {
			maxRate = p.RateLimit()
		}
	}
	return maxRate
}

// Providers returns the list of underlying providers
func (f *FallbackProvider) Providers() []Provider {
	return f.providers
}

// tail returns the last n bars, or all of them when fewer are available
func tail(bars []model.Bar, n int) []model.Bar {
	if n > 0 && len(bars) > n {
		return bars[len(bars)-n:]
	}
	return bars
}
