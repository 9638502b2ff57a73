package crawler

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	fetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsignal_fetches_total",
			Help: "Total storefront fetches, labeled by host and outcome.",
		},
		[]string{"host", "outcome"},
	)

	brandCrawlFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopsignal_brand_crawl_failures_total",
			Help: "Brand crawls aborted by errors, labeled by host.",
		},
		[]string{"host"},
	)

	rateLimitDelaySeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopsignal_rate_limit_delay_seconds",
			Help:    "Delay introduced by the per-host rate limiter.",
			Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"host"},
	)
)

const (
	outcomeOK          = "ok"
	outcomeNotModified = "not_modified"
	outcomeUnavailable = "unavailable"
	outcomeError       = "error"
	outcomeDenied      = "robots_denied"
)

func observeFetch(host, outcome string) {
	fetchesTotal.WithLabelValues(host, outcome).Inc()
}

func observeBrandFailure(host string) {
	brandCrawlFailures.WithLabelValues(host).Inc()
}

func observeRateLimitDelay(host string, d time.Duration) {
	if d > time.Millisecond {
		rateLimitDelaySeconds.WithLabelValues(host).Observe(d.Seconds())
	}
}
