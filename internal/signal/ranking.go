package signal

import (
	"math"
	"sort"

	"github.com/merchwire/shopsignal/internal/store"
)

// Combined-score weights for the brand leaderboard.
const (
	weightDelta    = 0.5
	weightDiscount = 0.3
	weightAds      = 0.2
)

const topN = 10

// BrandSignal is one brand's raw signal triple for a date.
type BrandSignal struct {
	BrandID   int64
	BrandName string
	// Delta7d is the brand's week-over-week price change ratio.
	Delta7d float64
	// DiscountedSKUs counts the brand's SKUs discounted that day.
	DiscountedSKUs int
	// AdSurge is 1 when the brand's ads surged, else 0.
	AdSurge float64
}

// MoverEntry is one variant whose week-over-week delta cleared the mover
// threshold.
type MoverEntry struct {
	BrandID      int64
	BrandName    string
	ProductTitle string
	SKU          *string
	URL          string
	NewPrice     *int64
	OldPrice     *int64
	Delta7d      *float64
	DiscountPct  float64
}

// RankBrands normalizes each signal dimension independently across the
// candidate set, combines with fixed weights, and returns the top entries
// with dense 1-based ranks. Ties keep first-appearance order.
func RankBrands(signals []BrandSignal) []store.LeaderboardEntry {
	if len(signals) == 0 {
		return nil
	}
	deltas := make([]float64, len(signals))
	discounts := make([]float64, len(signals))
	ads := make([]float64, len(signals))
	for i, sig := range signals {
		deltas[i] = math.Abs(sig.Delta7d)
		discounts[i] = float64(sig.DiscountedSKUs)
		ads[i] = sig.AdSurge
	}
	deltaNorm := Normalize(deltas)
	discountNorm := Normalize(discounts)
	adsNorm := Normalize(ads)

	type scored struct {
		sig   BrandSignal
		score float64
	}
	scores := make([]scored, len(signals))
	for i, sig := range signals {
		scores[i] = scored{
			sig:   sig,
			score: weightDelta*deltaNorm[i] + weightDiscount*discountNorm[i] + weightAds*adsNorm[i],
		}
	}
	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].score > scores[j].score
	})

	n := len(scores)
	if n > topN {
		n = topN
	}
	leaderboard := make([]store.LeaderboardEntry, 0, n)
	for rank, entry := range scores[:n] {
		leaderboard = append(leaderboard, store.LeaderboardEntry{
			BrandID:   entry.sig.BrandID,
			BrandName: entry.sig.BrandName,
			Score:     math.Round(entry.score*10000) / 10000,
			Rank:      rank + 1,
		})
	}
	return leaderboard
}

// TopMovers sorts movers with a defined delta by absolute magnitude
// descending and returns the top entries.
func TopMovers(movers []MoverEntry) []MoverEntry {
	filtered := make([]MoverEntry, 0, len(movers))
	for _, m := range movers {
		if m.Delta7d != nil {
			filtered = append(filtered, m)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return math.Abs(*filtered[i].Delta7d) > math.Abs(*filtered[j].Delta7d)
	})
	if len(filtered) > topN {
		filtered = filtered[:topN]
	}
	return filtered
}
