package crawler

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/temoto/robotstxt"
	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/policy/retry"
)

// RobotsPolicy answers whether a URL may be fetched.
type RobotsPolicy interface {
	Allowed(ctx context.Context, rawURL string) bool
}

// RobotsGate enforces robots.txt directives per origin, caching the parsed
// ruleset for the lifetime of the gate. Fetch failures fail open: an origin
// whose robots.txt cannot be read is treated as fully permissive.
type RobotsGate struct {
	client    *http.Client
	retry     *retry.Policy
	cache     sync.Map
	userAgent string
	logger    *zap.Logger
}

// NewRobotsGate builds a RobotsGate for the given crawler agent string.
func NewRobotsGate(userAgent string, retryPolicy *retry.Policy, logger *zap.Logger) *RobotsGate {
	if logger == nil {
		logger = zap.NewNop()
	}
	if retryPolicy == nil {
		retryPolicy = retry.New()
	}
	return &RobotsGate{
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		retry:     retryPolicy,
		userAgent: userAgent,
		logger:    logger,
	}
}

// Allowed implements RobotsPolicy.
func (g *RobotsGate) Allowed(ctx context.Context, rawURL string) bool {
	if g == nil {
		return true
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	data, err := g.load(ctx, parsed)
	if err != nil {
		g.logger.Warn("robots fetch failed; allowing access",
			zap.String("host", parsed.Host), zap.Error(err))
		return true
	}
	group := data.FindGroup(g.userAgent)
	if group == nil {
		return true
	}
	return group.Test(parsed.Path)
}

func (g *RobotsGate) load(ctx context.Context, parsed *url.URL) (*robotstxt.RobotsData, error) {
	originKey := strings.ToLower(parsed.Scheme + "://" + parsed.Host)
	if data, ok := g.cache.Load(originKey); ok {
		cached, assertOK := data.(*robotstxt.RobotsData)
		if !assertOK {
			return nil, fmt.Errorf("robots cache type mismatch: %T", data)
		}
		return cached, nil
	}

	robotsURL := *parsed
	robotsURL.Path = path.Join("/", "robots.txt")
	robotsURL.RawQuery = ""
	robotsURL.Fragment = ""

	var data *robotstxt.RobotsData
	err := g.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL.String(), nil)
		if err != nil {
			return fmt.Errorf("new robots request: %w", err)
		}
		req.Header.Set("User-Agent", g.userAgent)
		resp, err := g.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch robots: %w", err)
		}
		defer func() {
			if cerr := resp.Body.Close(); cerr != nil {
				g.logger.Debug("failed to close robots response body", zap.Error(cerr))
			}
		}()
		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return fmt.Errorf("read robots body: %w", err)
		}
		data, err = robotstxt.FromStatusAndBytes(resp.StatusCode, body)
		if err != nil {
			return fmt.Errorf("parse robots: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	g.cache.Store(originKey, data)
	return data, nil
}

// AllowAll is a RobotsPolicy that permits everything, for tests and for
// configurations that opt out of robots enforcement.
type AllowAll struct{}

// Allowed implements RobotsPolicy.
func (AllowAll) Allowed(context.Context, string) bool { return true }
