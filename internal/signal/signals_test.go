package signal

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func int64p(v int64) *int64 { return &v }

func float64p(v float64) *float64 { return &v }

func TestDiscountPercentage(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name      string
		price     *int64
		compareAt *int64
		want      float64
	}{
		{"typical discount", int64p(3900), int64p(4900), 1000.0 / 4900.0},
		{"no compare at", int64p(3900), nil, 0},
		{"no price", nil, int64p(4900), 0},
		{"price above compare", int64p(5000), int64p(4900), 0},
		{"price equals compare", int64p(4900), int64p(4900), 0},
		{"non-positive price", int64p(0), int64p(4900), 0},
		{"non-positive compare", int64p(3900), int64p(-1), 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := DiscountPercentage(tc.price, tc.compareAt)
			assert.InDelta(t, tc.want, got, 1e-9)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		})
	}
}

func TestPercentChange(t *testing.T) {
	t.Parallel()

	got := PercentChange(int64p(3900), int64p(4900))
	require.NotNil(t, got)
	assert.InDelta(t, -0.204, *got, 0.001)

	assert.Nil(t, PercentChange(nil, int64p(4900)))
	assert.Nil(t, PercentChange(int64p(3900), nil))
	assert.Nil(t, PercentChange(int64p(3900), int64p(0)))
}

func TestIsMoverAgainstWeeklyExample(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultConfig())
	delta := PercentChange(int64p(3900), int64p(4900))
	require.NotNil(t, delta)
	assert.True(t, engine.IsMover(delta))

	assert.False(t, engine.IsMover(nil))
	assert.False(t, engine.IsMover(float64p(0.05)))
	assert.True(t, engine.IsMover(float64p(-0.10)))
}

func TestAdSurgeThresholds(t *testing.T) {
	t.Parallel()

	engine := NewEngine(DefaultConfig())

	assert.True(t, engine.AdSurge(20, []int{5, 5, 5}))
	assert.False(t, engine.AdSurge(6, []int{5, 5, 5}))
	assert.False(t, engine.AdSurge(100, nil))

	// zero trailing median requires only the minimum delta
	assert.True(t, engine.AdSurge(5, []int{0, 0, 0}))
	assert.False(t, engine.AdSurge(4, []int{0, 0, 0}))

	// doubling the median is not enough without the absolute increase
	assert.False(t, engine.AdSurge(4, []int{2, 2, 2}))
	assert.True(t, engine.AdSurge(7, []int{2, 2, 2}))
}

func TestNormalize(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []float64{0, 0.5, 1}, Normalize([]float64{1, 2, 3}))
	assert.Equal(t, []float64{0, 0, 0}, Normalize([]float64{7, 7, 7}))
	assert.Equal(t, []float64{0, 0, 0}, Normalize([]float64{0, 0, 0}))
	assert.Nil(t, Normalize(nil))
}

func TestMedian(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 5.0, median([]int{5, 1, 9}))
	assert.Equal(t, 3.5, median([]int{2, 5, 1, 9}))
	assert.Equal(t, 4.0, median([]int{4}))
}
