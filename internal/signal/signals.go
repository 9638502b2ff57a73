// Package signal computes pricing and advertising signals over time-series
// rows already persisted by the store. Everything here is a pure function of
// its inputs; thresholds arrive through an explicit Config, never ambient
// process state.
package signal

import (
	"math"
	"sort"
)

const floatTolerance = 1e-9

// Config carries the signal thresholds.
type Config struct {
	// MoverThreshold is the minimum |week-over-week delta| that flags a mover.
	MoverThreshold float64
	// AdSurgeMultiplier scales the trailing median for surge detection.
	AdSurgeMultiplier float64
	// AdSurgeMinDelta is the minimum absolute increase over the trailing median.
	AdSurgeMinDelta int
}

// DefaultConfig returns the production thresholds.
func DefaultConfig() Config {
	return Config{
		MoverThreshold:    0.10,
		AdSurgeMultiplier: 2.0,
		AdSurgeMinDelta:   5,
	}
}

// Engine evaluates threshold-dependent signals.
type Engine struct {
	cfg Config
}

// NewEngine builds an Engine, filling zero thresholds with defaults.
func NewEngine(cfg Config) *Engine {
	def := DefaultConfig()
	if cfg.MoverThreshold <= 0 {
		cfg.MoverThreshold = def.MoverThreshold
	}
	if cfg.AdSurgeMultiplier <= 0 {
		cfg.AdSurgeMultiplier = def.AdSurgeMultiplier
	}
	if cfg.AdSurgeMinDelta <= 0 {
		cfg.AdSurgeMinDelta = def.AdSurgeMinDelta
	}
	return &Engine{cfg: cfg}
}

// DiscountPercentage returns (compareAt - price) / compareAt, or 0 when either
// value is absent, non-positive, or the price is not actually discounted.
func DiscountPercentage(price, compareAt *int64) float64 {
	if price == nil || compareAt == nil {
		return 0
	}
	p, c := *price, *compareAt
	if p <= 0 || c <= 0 || p >= c {
		return 0
	}
	return float64(c-p) / float64(c)
}

// PercentChange returns (new - old) / max(old, 1), or nil when either value
// is absent or old is zero.
func PercentChange(newPrice, oldPrice *int64) *float64 {
	if newPrice == nil || oldPrice == nil || *oldPrice == 0 {
		return nil
	}
	denom := *oldPrice
	if denom < 1 {
		denom = 1
	}
	change := float64(*newPrice-*oldPrice) / float64(denom)
	return &change
}

// IsMover reports whether the week-over-week delta exceeds the mover threshold.
func (e *Engine) IsMover(delta *float64) bool {
	if delta == nil {
		return false
	}
	return math.Abs(*delta) >= e.cfg.MoverThreshold
}

// AdSurge reports whether today's active-ad count sharply exceeds the trailing
// median. An empty trailing window never surges.
func (e *Engine) AdSurge(activeToday int, trailing []int) bool {
	if len(trailing) == 0 {
		return false
	}
	m := median(trailing)
	if m == 0 {
		return float64(activeToday) >= float64(e.cfg.AdSurgeMinDelta)
	}
	return float64(activeToday) >= e.cfg.AdSurgeMultiplier*m &&
		float64(activeToday)-m >= float64(e.cfg.AdSurgeMinDelta)
}

// Normalize min-max scales values into [0,1]. When every value is equal
// within floating tolerance the result is all zeros, not 0.5; ties must not
// contribute rank weight.
func Normalize(values []float64) []float64 {
	if len(values) == 0 {
		return nil
	}
	minV, maxV := values[0], values[0]
	for _, v := range values[1:] {
		minV = math.Min(minV, v)
		maxV = math.Max(maxV, v)
	}
	out := make([]float64, len(values))
	if maxV-minV <= floatTolerance {
		return out
	}
	for i, v := range values {
		out[i] = (v - minV) / (maxV - minV)
	}
	return out
}

func median(values []int) float64 {
	sorted := make([]int, len(values))
	copy(sorted, values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
