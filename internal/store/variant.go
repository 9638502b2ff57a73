package store

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// ExtractVariant converts one raw variant payload into its typed form.
// Malformed price fields become nil rather than zero or an error; the record
// is persisted either way. position is the variant's 1-based index within
// the product, used for identity when the SKU is absent.
func ExtractVariant(raw map[string]any, position int) Variant {
	v := Variant{
		Position:  position,
		Currency:  currencyOf(raw),
		Available: availableOf(raw),
	}
	if sku := stringOf(raw["sku"]); sku != "" {
		v.SKU = &sku
	}
	v.PriceCents = PriceCents(raw["price"])
	v.CompareAtCents = PriceCents(raw["compare_at_price"])
	v.OptionsJSON = optionsJSON(raw)
	return v
}

// PriceCents converts a major-unit decimal price into integer minor units,
// rounding to nearest. Absent or non-numeric input yields nil.
func PriceCents(value any) *int64 {
	var f float64
	switch t := value.(type) {
	case nil:
		return nil
	case float64:
		f = t
	case int:
		f = float64(t)
	case int64:
		f = float64(t)
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return nil
		}
		f = parsed
	case string:
		if t == "" {
			return nil
		}
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	cents := int64(math.Round(f * 100))
	return &cents
}

// optionsJSON keeps every origin key starting with "option" as an opaque
// JSON document.
func optionsJSON(raw map[string]any) []byte {
	options := make(map[string]any)
	for k, v := range raw {
		if strings.HasPrefix(k, "option") {
			options[k] = v
		}
	}
	data, err := json.Marshal(options)
	if err != nil {
		return []byte("{}")
	}
	return data
}

func currencyOf(raw map[string]any) string {
	if c := stringOf(raw["currency"]); c != "" {
		return c
	}
	if c := stringOf(raw["currency_code"]); c != "" {
		return c
	}
	return "USD"
}

func availableOf(raw map[string]any) bool {
	v, ok := raw["available"]
	if !ok {
		return true
	}
	b, ok := v.(bool)
	if !ok {
		return true
	}
	return b
}

func stringOf(v any) string {
	s, _ := v.(string)
	return s
}
