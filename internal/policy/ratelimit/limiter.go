// Package ratelimit paces outbound requests per host. Each host gets its own
// limiter with burst 1, which enforces a minimum interval between permits to
// that host while leaving other hosts untouched.
package ratelimit

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter manages per-host request pacing.
type Limiter struct {
	mu          sync.Mutex
	limiters    map[string]*rate.Limiter
	defaultRate rate.Limit
}

// Config holds rate limiter configuration.
type Config struct {
	// RequestsPerSec is the per-host ceiling; the minimum interval between
	// requests to one host is 1/RequestsPerSec.
	RequestsPerSec float64
}

// New creates a Limiter. A non-positive rate disables pacing.
func New(cfg Config) *Limiter {
	r := rate.Limit(cfg.RequestsPerSec)
	if cfg.RequestsPerSec <= 0 {
		r = rate.Inf
	}
	return &Limiter{
		limiters:    make(map[string]*rate.Limiter),
		defaultRate: r,
	}
}

// Wait blocks until a request to host is permitted, respecting the context.
// Hosts are independent: a slow host never delays requests to another.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	if host == "" {
		host = "unknown"
	}
	key := strings.ToLower(host)

	l.mu.Lock()
	limiter, ok := l.limiters[key]
	if !ok {
		// Burst 1 means a permit is issued at most once per interval,
		// matching a last-request-timestamp gate.
		limiter = rate.NewLimiter(l.defaultRate, 1)
		l.limiters[key] = limiter
	}
	l.mu.Unlock()

	if err := limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit wait for %s: %w", key, err)
	}
	return nil
}
