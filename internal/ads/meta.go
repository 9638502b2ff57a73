// Package ads fetches per-brand advertising activity summaries from the
// Meta ads archive directory.
package ads

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/policy/retry"
)

// DefaultEndpoint is the ads-archive search endpoint.
const DefaultEndpoint = "https://graph.facebook.com/v18.0/ads_archive"

// Summary is one brand's advertising snapshot.
type Summary struct {
	ActiveAds     int
	NewAdsLast24h int
}

// Config controls the ads directory query.
type Config struct {
	Endpoint string
	Token    string
	AdType   string
	Limit    int
	Timeout  time.Duration
}

// Client queries the ads directory for one account at a time.
type Client struct {
	httpClient *http.Client
	cfg        Config
	retry      *retry.Policy
	logger     *zap.Logger
}

// NewClient builds a Client; a missing token is allowed and simply means the
// caller should not construct one.
func NewClient(cfg Config, retryPolicy *retry.Policy, logger *zap.Logger) *Client {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Limit <= 0 {
		cfg.Limit = 500
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if retryPolicy == nil {
		retryPolicy = retry.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		cfg:        cfg,
		retry:      retryPolicy,
		logger:     logger,
	}
}

// FetchSummary returns the active-ad count for accountID and how many of
// those ads were created within one day of today (the configured local date).
func (c *Client) FetchSummary(ctx context.Context, accountID string, today time.Time) (Summary, error) {
	if accountID == "" {
		return Summary{}, fmt.Errorf("account id is required")
	}

	params := url.Values{}
	params.Set("search_page_ids", accountID)
	params.Set("ad_type", c.cfg.AdType)
	params.Set("access_token", c.cfg.Token)
	params.Set("fields", "ad_creation_time")
	params.Set("limit", strconv.Itoa(c.cfg.Limit))
	reqURL := c.cfg.Endpoint + "?" + params.Encode()

	var payload struct {
		Data []struct {
			AdCreationTime string `json:"ad_creation_time"`
		} `json:"data"`
	}
	err := c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
		if err != nil {
			return fmt.Errorf("new ads request: %w", err)
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("fetch ads summary: %w", err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("ads directory returned status %d", resp.StatusCode)
		}
		if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
			return fmt.Errorf("decode ads response: %w", err)
		}
		return nil
	})
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{ActiveAds: len(payload.Data)}
	for _, ad := range payload.Data {
		if createdWithinDay(ad.AdCreationTime, today) {
			summary.NewAdsLast24h++
		}
	}
	return summary, nil
}

// createdWithinDay reports whether the creation timestamp's calendar date is
// at most one day before today. Unparseable timestamps count as not recent.
func createdWithinDay(ts string, today time.Time) bool {
	if len(ts) < 10 {
		return false
	}
	created, err := time.Parse("2006-01-02", ts[:10])
	if err != nil {
		return false
	}
	days := int(today.Sub(created).Hours() / 24)
	return days <= 1
}
