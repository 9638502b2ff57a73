package digest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwire/shopsignal/internal/ads"
	"github.com/merchwire/shopsignal/internal/clock"
	"github.com/merchwire/shopsignal/internal/crawler"
	"github.com/merchwire/shopsignal/internal/store"
)

type fakeProducts struct {
	byDomain map[string][]crawler.Product
	errs     map[string]error
}

func (f *fakeProducts) FetchProducts(_ context.Context, domain string) ([]crawler.Product, error) {
	if err := f.errs[domain]; err != nil {
		return nil, err
	}
	return f.byDomain[domain], nil
}

type fakeAds struct {
	summaries map[string]ads.Summary
	errs      map[string]error
	calls     []string
}

func (f *fakeAds) FetchSummary(_ context.Context, accountID string, _ time.Time) (ads.Summary, error) {
	f.calls = append(f.calls, accountID)
	if err := f.errs[accountID]; err != nil {
		return ads.Summary{}, err
	}
	return f.summaries[accountID], nil
}

func testBrands() []store.Brand {
	return []store.Brand{
		{Name: "Glossier", Domain: "https://www.glossier.com", Category: "beauty", AdAccountID: "acct-1"},
		{Name: "Allbirds", Domain: "https://www.allbirds.com", Category: "footwear"},
		{Name: "Blocked", Domain: "https://blocked.example", Category: "misc"},
	}
}

func newTestRunner(fs *fakeStore, products *fakeProducts, adSource AdSource) *Runner {
	clk := clock.Fixed{T: time.Date(2024, 6, 10, 7, 0, 0, 0, time.UTC)}
	return NewRunner(testBrands(), products, adSource, fs, NewAssembler(fs, nil, nil), clk, nil)
}

func TestRunIsolatesBrandFailures(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	products := &fakeProducts{
		byDomain: map[string][]crawler.Product{
			"https://www.glossier.com": {
				{Handle: "cloud-paint", Title: "Cloud Paint", URL: "https://www.glossier.com/products/cloud-paint",
					Variants: []map[string]any{{"sku": "CP-1", "price": "20.00"}}},
			},
			"https://www.allbirds.com": {
				{Handle: "wool-runner", Title: "Wool Runner", URL: "https://www.allbirds.com/products/wool-runner"},
			},
		},
		errs: map[string]error{
			"https://blocked.example": &crawler.PolicyViolationError{URL: "https://blocked.example/products/x.js"},
		},
	}
	adSource := &fakeAds{summaries: map[string]ads.Summary{"acct-1": {ActiveAds: 12, NewAdsLast24h: 3}}}

	runner := newTestRunner(fs, products, adSource)
	digest, err := runner.Run(context.Background(), day)
	require.NoError(t, err)
	require.NotNil(t, digest)

	// both healthy brands persisted, the blocked one skipped
	assert.Len(t, fs.crawls, 2)
	glossierID := fs.brandIDs["https://www.glossier.com"]
	require.Len(t, fs.crawls[glossierID], 1)
	assert.Equal(t, "cloud-paint", fs.crawls[glossierID][0].Handle)

	// only the brand with an ads account was queried
	assert.Equal(t, []string{"acct-1"}, adSource.calls)
	assert.Equal(t, [2]int{12, 3}, fs.adObs[glossierID])

	require.Len(t, fs.runsStarted, 1)
	runID := fs.runsStarted[0]
	assert.Equal(t, store.RunSuccess, fs.runsFinished[runID])
	assert.Equal(t, "1 of 3 brands degraded", fs.runMessages[runID])
}

func TestRunPersistsLeaderboard(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	fs.rows = []store.PriceRow{
		priceRow(1, "glossier", "Cloud Paint", int64p(3900), int64p(4900), int64p(4900)),
		priceRow(2, "allbirds", "Wool Runner", int64p(9500), int64p(11000), int64p(9500)),
	}
	products := &fakeProducts{byDomain: map[string][]crawler.Product{}}

	runner := newTestRunner(fs, products, nil)
	digest, err := runner.Run(context.Background(), day)
	require.NoError(t, err)

	persisted := fs.leaderboards["2024-06-10"]
	require.Len(t, persisted, len(digest.Leaderboard))
	assert.Equal(t, int64(1), persisted[0].BrandID)
	assert.Equal(t, 1, persisted[0].Rank)
}

func TestRunWithoutAdSourceSkipsAds(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	products := &fakeProducts{byDomain: map[string][]crawler.Product{}}

	runner := newTestRunner(fs, products, nil)
	_, err := runner.Run(context.Background(), day)
	require.NoError(t, err)
	assert.Empty(t, fs.adObs)
}

func TestRunAdsFailureDoesNotUndoCrawl(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	products := &fakeProducts{
		byDomain: map[string][]crawler.Product{
			"https://www.glossier.com": {{Handle: "cloud-paint", Title: "Cloud Paint", URL: "u"}},
		},
	}
	adSource := &fakeAds{errs: map[string]error{"acct-1": assert.AnError}}

	runner := newTestRunner(fs, products, adSource)
	_, err := runner.Run(context.Background(), day)
	require.NoError(t, err)

	glossierID := fs.brandIDs["https://www.glossier.com"]
	assert.Contains(t, fs.crawls, glossierID)
	assert.Empty(t, fs.adObs)
}
