// Package digest turns one day's persisted observations into the daily
// brief: top movers, the brand leaderboard, and notable ad activity. This is
// the sole contract downstream renderers consume; they never re-derive
// signals themselves.
package digest

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/merchwire/shopsignal/internal/clock"
	"github.com/merchwire/shopsignal/internal/signal"
	"github.com/merchwire/shopsignal/internal/store"
)

const maxNotableAds = 3

// Mover is one variant with a week-over-week price move past the threshold.
type Mover struct {
	Brand       string   `json:"brand"`
	Product     string   `json:"product"`
	SKU         *string  `json:"sku"`
	URL         string   `json:"url"`
	NewPrice    *int64   `json:"new_price_cents"`
	OldPrice    *int64   `json:"old_price_cents"`
	Delta7d     *float64 `json:"delta_pct_7d"`
	DiscountPct float64  `json:"discount_pct"`
}

// Leader is one ranked brand.
type Leader struct {
	BrandID int64   `json:"-"`
	Brand   string  `json:"brand"`
	Score   float64 `json:"score"`
	Rank    int     `json:"rank"`
}

// NotableAd is one surging brand's ad activity.
type NotableAd struct {
	Brand     string `json:"brand"`
	ActiveAds int    `json:"active_ads"`
	NewAds24h int    `json:"new_ads_24h"`
	Surge     bool   `json:"surge"`
}

// Digest is the assembled daily brief for one date.
type Digest struct {
	Date        string      `json:"date"`
	Movers      []Mover     `json:"movers"`
	Leaderboard []Leader    `json:"leaderboard"`
	Ads         []NotableAd `json:"ads"`
}

// Assembler builds digests from the store's signal read queries.
type Assembler struct {
	store  store.TimeSeries
	engine *signal.Engine
	logger *zap.Logger
}

// NewAssembler wires an Assembler.
func NewAssembler(ts store.TimeSeries, engine *signal.Engine, logger *zap.Logger) *Assembler {
	if engine == nil {
		engine = signal.NewEngine(signal.DefaultConfig())
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assembler{store: ts, engine: engine, logger: logger}
}

// Assemble builds the digest for day from whatever observations exist. A day
// with sparse or missing data yields a sparse digest, not an error.
func (a *Assembler) Assemble(ctx context.Context, day time.Time) (*Digest, error) {
	rows, err := a.store.PriceRows(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load price rows: %w", err)
	}
	activity, err := a.store.AdActivity(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("load ad activity: %w", err)
	}

	var (
		movers         []signal.MoverEntry
		discountCounts = make(map[int64]int)
		discountOrder  []int64
		adsByBrand     = make(map[int64]NotableAd)
		adsOrder       []int64
	)
	for _, row := range rows {
		discountPct := signal.DiscountPercentage(row.PriceCents, row.CompareAtCents)
		if discountPct > 0 {
			if _, seen := discountCounts[row.BrandID]; !seen {
				discountOrder = append(discountOrder, row.BrandID)
			}
			discountCounts[row.BrandID]++
		}
		delta := signal.PercentChange(row.PriceCents, row.Price7d)
		if a.engine.IsMover(delta) {
			movers = append(movers, signal.MoverEntry{
				BrandID:      row.BrandID,
				BrandName:    row.BrandName,
				ProductTitle: row.Title,
				SKU:          row.SKU,
				URL:          row.URL,
				NewPrice:     row.PriceCents,
				OldPrice:     row.Price7d,
				Delta7d:      delta,
				DiscountPct:  discountPct,
			})
		}
		if window, ok := activity[row.BrandID]; ok {
			if _, seen := adsByBrand[row.BrandID]; !seen {
				adsOrder = append(adsOrder, row.BrandID)
				adsByBrand[row.BrandID] = NotableAd{
					Brand:     row.BrandName,
					ActiveAds: window.ActiveToday,
					NewAds24h: window.NewAds24h,
					Surge:     a.engine.AdSurge(window.ActiveToday, window.Trailing),
				}
			}
		}
	}

	// Each candidate brand's delta comes from its first price row of the
	// day, not an aggregate across its SKUs. Changing this changes ranking
	// outcomes.
	var brandSignals []signal.BrandSignal
	for _, brandID := range discountOrder {
		example, ok := firstRowForBrand(rows, brandID)
		if !ok {
			continue
		}
		delta := 0.0
		if change := signal.PercentChange(example.PriceCents, example.Price7d); change != nil {
			delta = *change
		}
		surge := 0.0
		if ad, ok := adsByBrand[brandID]; ok && ad.Surge {
			surge = 1.0
		}
		brandSignals = append(brandSignals, signal.BrandSignal{
			BrandID:        brandID,
			BrandName:      example.BrandName,
			Delta7d:        delta,
			DiscountedSKUs: discountCounts[brandID],
			AdSurge:        surge,
		})
	}

	digest := &Digest{
		Date:        clock.FormatDate(day),
		Movers:      convertMovers(signal.TopMovers(movers)),
		Leaderboard: convertLeaders(signal.RankBrands(brandSignals)),
		Ads:         notableAds(adsByBrand, adsOrder),
	}
	a.logger.Info("digest assembled",
		zap.String("date", digest.Date),
		zap.Int("movers", len(digest.Movers)),
		zap.Int("leaderboard", len(digest.Leaderboard)),
		zap.Int("notable_ads", len(digest.Ads)),
	)
	return digest, nil
}

func firstRowForBrand(rows []store.PriceRow, brandID int64) (store.PriceRow, bool) {
	for _, row := range rows {
		if row.BrandID == brandID {
			return row, true
		}
	}
	return store.PriceRow{}, false
}

func convertMovers(entries []signal.MoverEntry) []Mover {
	out := make([]Mover, 0, len(entries))
	for _, m := range entries {
		out = append(out, Mover{
			Brand:       m.BrandName,
			Product:     m.ProductTitle,
			SKU:         m.SKU,
			URL:         m.URL,
			NewPrice:    m.NewPrice,
			OldPrice:    m.OldPrice,
			Delta7d:     m.Delta7d,
			DiscountPct: m.DiscountPct,
		})
	}
	return out
}

func convertLeaders(entries []store.LeaderboardEntry) []Leader {
	out := make([]Leader, 0, len(entries))
	for _, e := range entries {
		out = append(out, Leader{BrandID: e.BrandID, Brand: e.BrandName, Score: e.Score, Rank: e.Rank})
	}
	return out
}

// notableAds keeps at most three surging brands, ordered by active-ad count
// descending with ties in brand first-appearance order.
func notableAds(byBrand map[int64]NotableAd, order []int64) []NotableAd {
	surging := make([]NotableAd, 0, len(order))
	for _, brandID := range order {
		if ad := byBrand[brandID]; ad.Surge {
			surging = append(surging, ad)
		}
	}
	sort.SliceStable(surging, func(i, j int) bool {
		return surging[i].ActiveAds > surging[j].ActiveAds
	})
	if len(surging) > maxNotableAds {
		surging = surging[:maxNotableAds]
	}
	return surging
}
