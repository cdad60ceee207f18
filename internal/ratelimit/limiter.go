package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	initialBackoff = 100 * time.Millisecond
	maxBackoff     = 2 * time.Minute
)

// Limiter paces requests to one quote API and backs off after 429 responses
type Limiter struct {
	limiter *rate.Limiter
	name    string

	mu       sync.Mutex
	backoff  time.Duration
	throttle bool // set by SignalRateLimited, cleared by ResetBackoff
}

// NewLimiter creates a new rate limiter
// perMinute specifies the number of requests allowed per minute
func NewLimiter(name string, perMinute int) *Limiter {
	if perMinute < 1 {
		perMinute = 1
	}
	// Burst of 1/10th of the per-minute limit, between 1 and 5
	burst := min(max(perMinute/10, 1), 5)

	return &Limiter{
		limiter: rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), burst),
		name:    name,
		backoff: initialBackoff,
	}
}

// Wait blocks until a token is available or ctx is done. After a rate-limit
// signal it first sleeps for the current backoff.
func (l *Limiter) Wait(ctx context.Context) error {
	if delay := l.pendingBackoff(); delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	return l.limiter.Wait(ctx)
}

func (l *Limiter) pendingBackoff() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.throttle {
		return 0
	}
	return l.backoff
}

// Allow reports whether an event may happen now
func (l *Limiter) Allow() bool {
	return l.limiter.Allow()
}

// SignalRateLimited should be called when a 429 response is received.
// Each call doubles the backoff up to two minutes.
func (l *Limiter) SignalRateLimited() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.throttle {
		l.backoff = min(l.backoff*2, maxBackoff)
	}
	l.throttle = true
}

// ResetBackoff clears the backoff after a successful request
func (l *Limiter) ResetBackoff() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.backoff = initialBackoff
	l.throttle = false
}

// GetBackoff returns the delay the next Wait adds, zero when not throttled
func (l *Limiter) GetBackoff() time.Duration {
	return l.pendingBackoff()
}

// Name returns the limiter name
func (l *Limiter) Name() string {
	return l.name
}
