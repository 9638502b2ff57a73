package store

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPriceCents(t *testing.T) {
	t.Parallel()

	cents := func(v int64) *int64 { return &v }

	cases := []struct {
		name  string
		input any
		want  *int64
	}{
		{"nil", nil, nil},
		{"empty string", "", nil},
		{"decimal string", "49.99", cents(4999)},
		{"float", 12.5, cents(1250)},
		{"integer", 30, cents(3000)},
		{"json number", json.Number("19.90"), cents(1990)},
		{"garbage string", "call us", nil},
		{"wrong type", []string{"49.99"}, nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := PriceCents(tc.input)
			if tc.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.Equal(t, *tc.want, *got)
		})
	}
}

func TestExtractVariantKeepsOptionKeysOpaquely(t *testing.T) {
	t.Parallel()

	raw := map[string]any{
		"sku":              "TEE-S",
		"price":            "39.00",
		"compare_at_price": "49.00",
		"currency_code":    "EUR",
		"available":        false,
		"option1":          "Small",
		"option2":          "Black",
		"options":          []any{"Small", "Black"},
		"title":            "Small / Black",
	}

	v := ExtractVariant(raw, 1)
	require.NotNil(t, v.SKU)
	assert.Equal(t, "TEE-S", *v.SKU)
	assert.Equal(t, 1, v.Position)
	assert.Equal(t, "EUR", v.Currency)
	assert.False(t, v.Available)
	require.NotNil(t, v.PriceCents)
	assert.Equal(t, int64(3900), *v.PriceCents)
	require.NotNil(t, v.CompareAtCents)
	assert.Equal(t, int64(4900), *v.CompareAtCents)

	var options map[string]any
	require.NoError(t, json.Unmarshal(v.OptionsJSON, &options))
	assert.Contains(t, options, "option1")
	assert.Contains(t, options, "option2")
	assert.Contains(t, options, "options")
	assert.NotContains(t, options, "title")
}

func TestExtractVariantDefaults(t *testing.T) {
	t.Parallel()

	v := ExtractVariant(map[string]any{"price": "not a price"}, 3)
	assert.Nil(t, v.SKU)
	assert.Equal(t, 3, v.Position)
	assert.Equal(t, "USD", v.Currency)
	assert.True(t, v.Available)
	assert.Nil(t, v.PriceCents)
	assert.Nil(t, v.CompareAtCents)
}
