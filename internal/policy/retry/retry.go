// Package retry wraps single idempotent network calls with bounded,
// jittered exponential backoff. Only transport-level failures are retried;
// protocol errors carried in a response propagate immediately.
package retry

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"math"
	"math/big"
	"net"
	"time"
)

// Policy retries transient failures with exponential backoff.
type Policy struct {
	maxAttempts int
	baseDelay   time.Duration
	jitter      time.Duration
}

// Option mutates a Policy during construction.
type Option func(*Policy)

// WithMaxAttempts overrides the total attempt budget.
func WithMaxAttempts(n int) Option {
	return func(p *Policy) {
		if n > 0 {
			p.maxAttempts = n
		}
	}
}

// WithBaseDelay overrides the first backoff interval. Tests use this to keep
// backoff out of the wall clock.
func WithBaseDelay(d time.Duration) Option {
	return func(p *Policy) {
		if d >= 0 {
			p.baseDelay = d
			if d < time.Second {
				p.jitter = d
			}
		}
	}
}

// New builds a Policy with the crawl defaults: 3 attempts, 1s base delay
// doubling per attempt, plus up to 1s of uniform jitter.
func New(opts ...Option) *Policy {
	p := &Policy{
		maxAttempts: 3,
		baseDelay:   time.Second,
		jitter:      time.Second,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Do invokes op until it succeeds, fails terminally, or attempts run out.
// The last transient error is returned unwrapped when attempts are exhausted.
func (p *Policy) Do(ctx context.Context, op func(context.Context) error) error {
	var lastErr error
	for attempt := 0; attempt < p.maxAttempts; attempt++ {
		if attempt > 0 {
			if err := p.sleep(ctx, p.Backoff(attempt-1)); err != nil {
				return err
			}
		}
		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if !Transient(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// Backoff returns the wait before the attempt following attempt n (0-indexed).
func (p *Policy) Backoff(attempt int) time.Duration {
	delay := float64(p.baseDelay) * math.Pow(2, float64(attempt))
	return time.Duration(delay) + p.randomJitter()
}

// Transient reports whether err is a connection-level or timeout failure.
// Context cancellation and anything carrying a protocol response are not.
func Transient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	// The bare deadline sentinel itself satisfies net.Error, so it must be
	// excluded before the interface check. Per-call HTTP client timeouts
	// arrive wrapped in transport errors and stay retryable.
	if err == context.DeadlineExceeded {
		return false
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}

func (p *Policy) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (p *Policy) randomJitter() time.Duration {
	if p.jitter <= 0 {
		return 0
	}
	bound := big.NewInt(int64(p.jitter))
	n, err := rand.Int(rand.Reader, bound)
	if err != nil {
		return p.jitter / 2
	}
	return time.Duration(n.Int64())
}
