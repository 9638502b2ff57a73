package digest

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/merchwire/shopsignal/internal/signal"
	"github.com/merchwire/shopsignal/internal/store"
)

type fakeStore struct {
	rows     []store.PriceRow
	activity map[int64]store.AdWindow

	brandIDs     map[string]int64
	nextBrandID  int64
	crawls       map[int64][]store.ProductRecord
	adObs        map[int64][2]int
	leaderboards map[string][]store.LeaderboardEntry
	runsStarted  []uuid.UUID
	runsFinished map[uuid.UUID]store.RunStatus
	runMessages  map[uuid.UUID]string

	crawlErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		brandIDs:     map[string]int64{},
		crawls:       map[int64][]store.ProductRecord{},
		adObs:        map[int64][2]int{},
		leaderboards: map[string][]store.LeaderboardEntry{},
		runsFinished: map[uuid.UUID]store.RunStatus{},
		runMessages:  map[uuid.UUID]string{},
	}
}

func (f *fakeStore) EnsureBrand(_ context.Context, brand store.Brand) (int64, error) {
	if id, ok := f.brandIDs[brand.Domain]; ok {
		return id, nil
	}
	f.nextBrandID++
	f.brandIDs[brand.Domain] = f.nextBrandID
	return f.nextBrandID, nil
}

func (f *fakeStore) SaveCrawl(_ context.Context, brandID int64, _ time.Time, products []store.ProductRecord) error {
	if f.crawlErr != nil {
		return f.crawlErr
	}
	f.crawls[brandID] = products
	return nil
}

func (f *fakeStore) SaveAdObservation(_ context.Context, brandID int64, _ time.Time, activeAds, newAds24h int) error {
	f.adObs[brandID] = [2]int{activeAds, newAds24h}
	return nil
}

func (f *fakeStore) PriceRows(context.Context, time.Time) ([]store.PriceRow, error) {
	return f.rows, nil
}

func (f *fakeStore) AdActivity(context.Context, time.Time) (map[int64]store.AdWindow, error) {
	return f.activity, nil
}

func (f *fakeStore) SaveLeaderboard(_ context.Context, day time.Time, entries []store.LeaderboardEntry) error {
	f.leaderboards[day.Format("2006-01-02")] = entries
	return nil
}

func (f *fakeStore) StartRun(_ context.Context, id uuid.UUID, _ time.Time) error {
	f.runsStarted = append(f.runsStarted, id)
	return nil
}

func (f *fakeStore) FinishRun(_ context.Context, id uuid.UUID, _ time.Time, status store.RunStatus, errMsg *string) error {
	f.runsFinished[id] = status
	if errMsg != nil {
		f.runMessages[id] = *errMsg
	}
	return nil
}

func int64p(v int64) *int64 { return &v }

func stringp(v string) *string { return &v }

func priceRow(brandID int64, brand, title string, price, compareAt, price7d *int64) store.PriceRow {
	return store.PriceRow{
		BrandID:        brandID,
		BrandName:      brand,
		Title:          title,
		URL:            "https://" + brand + ".example/products/x",
		SKU:            stringp(title),
		PriceCents:     price,
		CompareAtCents: compareAt,
		Available:      true,
		Price7d:        price7d,
	}
}

func TestAssembleBuildsMoversLeaderboardAndAds(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	fs.rows = []store.PriceRow{
		// discounted and a 20% weekly drop
		priceRow(1, "glossier", "Cloud Paint", int64p(3900), int64p(4900), int64p(4900)),
		// discounted, no weekly movement
		priceRow(2, "allbirds", "Wool Runner", int64p(9500), int64p(11000), int64p(9500)),
		// neither discounted nor moved
		priceRow(3, "quince", "Silk Shirt", int64p(5000), nil, int64p(5000)),
	}
	fs.activity = map[int64]store.AdWindow{
		1: {ActiveToday: 20, NewAds24h: 8, Trailing: []int{5, 5, 5}},
		2: {ActiveToday: 6, NewAds24h: 1, Trailing: []int{5, 5, 5}},
	}

	assembler := NewAssembler(fs, signal.NewEngine(signal.DefaultConfig()), nil)
	digest, err := assembler.Assemble(context.Background(), day)
	require.NoError(t, err)

	assert.Equal(t, "2024-06-10", digest.Date)

	require.Len(t, digest.Movers, 1)
	assert.Equal(t, "glossier", digest.Movers[0].Brand)
	assert.Equal(t, "Cloud Paint", digest.Movers[0].Product)
	require.NotNil(t, digest.Movers[0].Delta7d)
	assert.InDelta(t, -0.204, *digest.Movers[0].Delta7d, 0.001)

	// only the two discounted brands are leaderboard candidates
	require.Len(t, digest.Leaderboard, 2)
	assert.Equal(t, "glossier", digest.Leaderboard[0].Brand)
	assert.Equal(t, 1, digest.Leaderboard[0].Rank)
	assert.Equal(t, "allbirds", digest.Leaderboard[1].Brand)
	assert.Equal(t, 2, digest.Leaderboard[1].Rank)

	require.Len(t, digest.Ads, 1)
	assert.Equal(t, "glossier", digest.Ads[0].Brand)
	assert.Equal(t, 20, digest.Ads[0].ActiveAds)
	assert.True(t, digest.Ads[0].Surge)
}

func TestAssembleIsDeterministic(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	for brandID := int64(1); brandID <= 8; brandID++ {
		name := string(rune('a' + brandID - 1))
		fs.rows = append(fs.rows,
			priceRow(brandID, name, "Item", int64p(4000), int64p(5000), int64p(4000)))
	}

	assembler := NewAssembler(fs, nil, nil)
	first, err := assembler.Assemble(context.Background(), day)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		again, err := assembler.Assemble(context.Background(), day)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestAssembleCapsNotableAdsAtThree(t *testing.T) {
	t.Parallel()

	day := time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC)
	fs := newFakeStore()
	fs.activity = map[int64]store.AdWindow{}
	for brandID := int64(1); brandID <= 5; brandID++ {
		name := string(rune('a' + brandID - 1))
		fs.rows = append(fs.rows, priceRow(brandID, name, "Item", int64p(4000), nil, nil))
		fs.activity[brandID] = store.AdWindow{
			ActiveToday: int(20 + brandID),
			Trailing:    []int{5, 5, 5},
		}
	}

	assembler := NewAssembler(fs, nil, nil)
	digest, err := assembler.Assemble(context.Background(), day)
	require.NoError(t, err)

	require.Len(t, digest.Ads, 3)
	assert.Equal(t, 25, digest.Ads[0].ActiveAds)
	assert.Equal(t, 24, digest.Ads[1].ActiveAds)
	assert.Equal(t, 23, digest.Ads[2].ActiveAds)
}

func TestAssembleEmptyDayYieldsEmptyDigest(t *testing.T) {
	t.Parallel()

	assembler := NewAssembler(newFakeStore(), nil, nil)
	digest, err := assembler.Assemble(context.Background(), time.Date(2024, 6, 10, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Empty(t, digest.Movers)
	assert.Empty(t, digest.Leaderboard)
	assert.Empty(t, digest.Ads)
}
