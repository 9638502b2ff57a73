// Package crawler fetches storefront product and variant data under
// politeness constraints: robots.txt enforcement, per-host pacing,
// conditional revalidation, and bounded retry.
package crawler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/merchwire/shopsignal/internal/policy/ratelimit"
	"github.com/merchwire/shopsignal/internal/policy/retry"
)

var productHandleRE = regexp.MustCompile(`/products/([^/?#"'<\s]+)`)

// Product is one storefront product with its raw variant payloads. Variant
// maps are passed through opaquely; the store owns field conversion.
type Product struct {
	Handle   string
	Title    string
	URL      string
	Variants []map[string]any
}

// Config holds per-storefront fetch knobs.
type Config struct {
	UserAgent       string
	Concurrency     int
	MaxCatalogPages int
	Timeout         time.Duration
}

// ShopifyClient discovers product handles and fetches per-product JSON
// documents for one storefront at a time.
type ShopifyClient struct {
	client  *http.Client
	cfg     Config
	limiter *ratelimit.Limiter
	robots  RobotsPolicy
	retry   *retry.Policy
	cache   *ETagCache
	logger  *zap.Logger
}

// NewShopifyClient wires the crawler's collaborators together.
func NewShopifyClient(
	cfg Config,
	limiter *ratelimit.Limiter,
	robots RobotsPolicy,
	retryPolicy *retry.Policy,
	cache *ETagCache,
	logger *zap.Logger,
) *ShopifyClient {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 5
	}
	if cfg.MaxCatalogPages <= 0 {
		cfg.MaxCatalogPages = 10
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "MerchwireBot/1.0"
	}
	if robots == nil {
		robots = AllowAll{}
	}
	if retryPolicy == nil {
		retryPolicy = retry.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ShopifyClient{
		client:  &http.Client{Timeout: cfg.Timeout},
		cfg:     cfg,
		limiter: limiter,
		robots:  robots,
		retry:   retryPolicy,
		cache:   cache,
		logger:  logger,
	}
}

// FetchProducts returns all products currently discoverable on the
// storefront at domain. Unchanged products (conditional-fetch hits) and
// individually unavailable products are omitted; a robots denial or a
// non-404 HTTP failure aborts the whole storefront.
func (c *ShopifyClient) FetchProducts(ctx context.Context, domain string) ([]Product, error) {
	base := strings.TrimRight(domain, "/")
	handles, err := c.discoverHandles(ctx, base)
	if err != nil {
		observeBrandFailure(hostOf(base))
		return nil, err
	}
	c.logger.Info("discovered product handles",
		zap.String("storefront", base), zap.Int("handles", len(handles)))

	results := make([]*Product, len(handles))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.cfg.Concurrency)
	for i, handle := range handles {
		i, handle := i, handle
		g.Go(func() error {
			product, err := c.fetchProduct(gctx, base, handle)
			if err != nil {
				return err
			}
			results[i] = product
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		observeBrandFailure(hostOf(base))
		return nil, err
	}

	products := make([]Product, 0, len(results))
	for _, p := range results {
		if p != nil {
			products = append(products, *p)
		}
	}
	return products, nil
}

// discoverHandles tries the product sitemap first and falls back to
// paginating the catalog listing. Handles come back deduplicated and sorted
// so repeat crawls are reproducible.
func (c *ShopifyClient) discoverHandles(ctx context.Context, base string) ([]string, error) {
	sitemapURL := base + "/sitemap_products_1.xml"
	body, err := c.get(ctx, sitemapURL)
	if err != nil {
		if IsPolicyViolation(err) {
			return nil, err
		}
		c.logger.Info("sitemap fetch failed, falling back to catalog pages",
			zap.String("storefront", base), zap.Error(err))
		return c.discoverViaCatalog(ctx, base)
	}
	return uniqueSortedHandles(handlesFromText(body)), nil
}

func (c *ShopifyClient) discoverViaCatalog(ctx context.Context, base string) ([]string, error) {
	var handles []string
	for page := 1; page <= c.cfg.MaxCatalogPages; page++ {
		pageURL := fmt.Sprintf("%s/collections/all?page=%d", base, page)
		body, err := c.get(ctx, pageURL)
		if err != nil {
			var httpErr *HTTPError
			if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusNotFound {
				break
			}
			return nil, err
		}
		handles = append(handles, handlesFromHTML(body)...)
		// The storefront theme renders a "Next" link while more pages exist.
		if !bytes.Contains(body, []byte("Next")) {
			break
		}
	}
	return uniqueSortedHandles(handles), nil
}

func (c *ShopifyClient) fetchProduct(ctx context.Context, base, handle string) (*Product, error) {
	productURL := base + "/products/" + handle + ".js"
	body, err := c.get(ctx, productURL)
	if errors.Is(err, ErrNotModified) {
		c.logger.Debug("product not modified", zap.String("url", productURL))
		return nil, nil
	}
	var httpErr *HTTPError
	if errors.As(err, &httpErr) && httpErr.Unavailable() {
		c.logger.Warn("product unavailable",
			zap.String("url", productURL), zap.Int("status", httpErr.StatusCode))
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var payload struct {
		Title    string           `json:"title"`
		Variants []map[string]any `json:"variants"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode product %s: %w", productURL, err)
	}
	title := payload.Title
	if title == "" {
		title = titleFromHandle(handle)
	}
	return &Product{
		Handle:   handle,
		Title:    title,
		URL:      base + "/products/" + handle,
		Variants: payload.Variants,
	}, nil
}

// get performs one polite fetch: robots check, per-host pacing, conditional
// header, then the request wrapped in the retry policy.
func (c *ShopifyClient) get(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	host := u.Host

	if !c.robots.Allowed(ctx, rawURL) {
		observeFetch(host, outcomeDenied)
		return nil, &PolicyViolationError{URL: rawURL}
	}

	if c.limiter != nil {
		start := time.Now()
		if err := c.limiter.Wait(ctx, u.Hostname()); err != nil {
			return nil, err
		}
		observeRateLimitDelay(u.Hostname(), time.Since(start))
	}

	var etag string
	var conditional bool
	if c.cache != nil {
		etag, conditional = c.cache.Get(rawURL)
	}

	var body []byte
	err = c.retry.Do(ctx, func(ctx context.Context) error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("new request %s: %w", rawURL, err)
		}
		req.Header.Set("User-Agent", c.cfg.UserAgent)
		if conditional {
			req.Header.Set("If-None-Match", etag)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("fetch %s: %w", rawURL, err)
		}
		defer func() {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
		}()

		if resp.StatusCode == http.StatusNotModified {
			observeFetch(host, outcomeNotModified)
			return ErrNotModified
		}
		if resp.StatusCode >= http.StatusBadRequest {
			httpErr := &HTTPError{URL: rawURL, StatusCode: resp.StatusCode}
			if httpErr.Unavailable() {
				observeFetch(host, outcomeUnavailable)
			} else {
				observeFetch(host, outcomeError)
			}
			return httpErr
		}

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read body %s: %w", rawURL, err)
		}
		if c.cache != nil {
			if newTag := resp.Header.Get("ETag"); newTag != "" {
				c.cache.Set(rawURL, newTag)
			}
		}
		observeFetch(host, outcomeOK)
		body = data
		return nil
	})
	if err != nil {
		return nil, err
	}
	return body, nil
}

// handlesFromHTML extracts product handles from anchor hrefs; if the page
// does not parse as HTML the raw-text scan is used instead.
func handlesFromHTML(body []byte) []string {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return handlesFromText(body)
	}
	var handles []string
	doc.Find("a[href]").Each(func(_ int, sel *goquery.Selection) {
		href, _ := sel.Attr("href")
		if m := productHandleRE.FindStringSubmatch(href); m != nil {
			handles = append(handles, m[1])
		}
	})
	return handles
}

func handlesFromText(body []byte) []string {
	matches := productHandleRE.FindAllSubmatch(body, -1)
	handles := make([]string, 0, len(matches))
	for _, m := range matches {
		handles = append(handles, string(m[1]))
	}
	return handles
}

func uniqueSortedHandles(handles []string) []string {
	seen := make(map[string]struct{}, len(handles))
	unique := make([]string, 0, len(handles))
	for _, h := range handles {
		if h == "" {
			continue
		}
		if _, ok := seen[h]; ok {
			continue
		}
		seen[h] = struct{}{}
		unique = append(unique, h)
	}
	sort.Strings(unique)
	return unique
}

func titleFromHandle(handle string) string {
	words := strings.Split(strings.ReplaceAll(handle, "-", " "), " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func hostOf(base string) string {
	if u, err := url.Parse(base); err == nil {
		return u.Host
	}
	return "unknown"
}
