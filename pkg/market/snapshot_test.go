package market_test

import (
	"context"
	"testing"

	"github.com/cryptodashboard/reportgen/pkg/market"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseStreamValues(t *testing.T) {
	snapshot := market.ParseStreamValues(map[string]any{
		"btc_price_usd":    "65000.25",
		"fng_value":        "72",
		"fng_label":        "Greed",
		"us_stock_indices": `{"DJI":{"price":39000.5}}`,
		"broken_json":      "{not json",
		"tags":             `["a","b"]`,
	})

	assert.InDelta(t, 65000.25, snapshot["btc_price_usd"], 0.0001)
	assert.Equal(t, int64(72), snapshot["fng_value"])
	assert.Equal(t, "Greed", snapshot["fng_label"])
	assert.Equal(t, map[string]any{"DJI": map[string]any{"price": 39000.5}}, snapshot["us_stock_indices"])
	assert.Equal(t, "{not json", snapshot["broken_json"])
	assert.Equal(t, []any{"a", "b"}, snapshot["tags"])
}

func TestNormalizeLegacy(t *testing.T) {
	snapshot := market.NormalizeLegacy(map[string]any{
		"btc_price_usd":             64000.0,
		"bitcoin":                   1.0,
		"eth":                       3000.0,
		"btc_market_cap_percentage": 55.2,
		"fng_value":                 40.0,
		"partial_failure":           true,
		"unrelated":                 "dropped",
	})

	assert.Equal(t, market.Snapshot{
		"btc_price":        64000.0,
		"eth_price":        3000.0,
		"btc_dominance":    55.2,
		"fear_greed_index": 40.0,
		"partial_failure":  true,
	}, snapshot)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name     string
		snapshot market.Snapshot
		valid    bool
	}{
		{name: "typical", snapshot: market.Snapshot{"btc_price_usd": 65000.0, "fng_value": int64(70), "data_source": "redis_stream"}, valid: true},
		{name: "empty", snapshot: market.Snapshot{}, valid: false},
		{name: "negative price", snapshot: market.Snapshot{"btc_price_usd": -1.0}, valid: false},
		{name: "price as text", snapshot: market.Snapshot{"btc_price": "n/a"}, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := market.Validate(tt.snapshot)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStaticSource(t *testing.T) {
	_, err := market.Static{}.Latest(context.Background())
	require.ErrorIs(t, err, market.ErrNoSnapshot)

	snapshot, err := market.Static{Snapshot: market.Snapshot{"btc_price": 1.0}}.Latest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1.0, snapshot["btc_price"])
}
