package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/JakeFAU/classical-corpus/internal/metrics"
)

// siteLimiter caps the request rate per site on top of the random pacing.
type siteLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	metrics  *metrics.Recorder
}

// newSiteLimiter builds a limiter allowing perSecond requests per site.
// A non-positive rate disables limiting.
func newSiteLimiter(perSecond float64, recorder *metrics.Recorder) *siteLimiter {
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &siteLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    limit,
		metrics:  recorder,
	}
}

// Wait blocks until pageURL's site may be requested again.
func (l *siteLimiter) Wait(ctx context.Context, pageURL string) error {
	if l.limit == rate.Inf {
		return nil
	}
	site := metrics.SanitizeSite(pageURL)
	l.mu.Lock()
	limiter, ok := l.limiters[site]
	if !ok {
		limiter = rate.NewLimiter(l.limit, 1)
		l.limiters[site] = limiter
	}
	l.mu.Unlock()

	start := time.Now()
	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}
	if waited := time.Since(start); waited > time.Millisecond {
		l.metrics.ObserveRateLimitDelay(site, waited)
	}
	return nil
}
