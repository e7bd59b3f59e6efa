// Package market reads the latest cached market data snapshot that grounds the research prompt.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Snapshot is a flat-ish map of market figures as produced by the data collector.
type Snapshot map[string]any

// ErrNoSnapshot means no usable snapshot is cached. Callers treat it as degraded input.
var ErrNoSnapshot = errors.New("no market snapshot available")

// Source returns the most recent snapshot.
type Source interface {
	Latest(ctx context.Context) (Snapshot, error)
}

// Static always returns the same snapshot; a nil snapshot yields ErrNoSnapshot.
type Static struct {
	Snapshot Snapshot
}

func (s Static) Latest(context.Context) (Snapshot, error) {
	if len(s.Snapshot) == 0 {
		return nil, ErrNoSnapshot
	}

	return s.Snapshot, nil
}

const snapshotSchema = `{
  "type": "object",
  "minProperties": 1,
  "properties": {
    "btc_price_usd":    {"type": "number", "minimum": 0},
    "btc_price":        {"type": "number", "minimum": 0},
    "eth_price_usd":    {"type": "number", "minimum": 0},
    "eth_price":        {"type": "number", "minimum": 0},
    "market_cap_usd":   {"type": "number", "minimum": 0},
    "market_cap":       {"type": "number", "minimum": 0},
    "fear_greed_index": {"type": ["number", "string"]},
    "fng_value":        {"type": ["number", "string"]},
    "data_source":      {"type": "string"}
  }
}`

var schemaLoader = gojsonschema.NewStringLoader(snapshotSchema)

// Validate checks the snapshot against the expected shape.
func Validate(snapshot Snapshot) error {
	result, err := gojsonschema.Validate(schemaLoader, gojsonschema.NewGoLoader(map[string]any(snapshot)))
	if err != nil {
		return fmt.Errorf("failed to validate snapshot: %w", err)
	}

	if result.Valid() {
		return nil
	}

	errs := make([]error, 0, len(result.Errors()))
	for _, desc := range result.Errors() {
		errs = append(errs, errors.New(desc.String()))
	}

	return fmt.Errorf("invalid snapshot: %w", errors.Join(errs...))
}

// ParseStreamValues decodes the string fields of a stream entry: JSON objects
// and arrays are decoded, numbers are parsed, everything else stays a string.
func ParseStreamValues(values map[string]any) Snapshot {
	snapshot := make(Snapshot, len(values))

	for key, raw := range values {
		text, ok := raw.(string)
		if !ok {
			snapshot[key] = raw

			continue
		}

		snapshot[key] = parseValue(text)
	}

	return snapshot
}

func parseValue(text string) any {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		var decoded any
		if err := json.Unmarshal([]byte(trimmed), &decoded); err == nil {
			return decoded
		}

		return text
	}

	if strings.Contains(trimmed, ".") {
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}

		return text
	}

	if i, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return i
	}

	return text
}

// fallbackFields maps canonical snapshot keys to the aliases found in the
// legacy cache key, in order of preference.
var fallbackFields = []struct {
	target  string
	aliases []string
}{
	{"btc_price", []string{"btc_price", "btc_price_usd", "btc", "bitcoin"}},
	{"btc_change_24h", []string{"btc_change_24h", "btc_24h_change", "bitcoin_change_24h"}},
	{"btc_rsi_14", []string{"btc_rsi_14", "rsi_14", "btc_rsi", "rsi"}},
	{"eth_price", []string{"eth_price", "eth_price_usd", "eth", "ethereum"}},
	{"eth_change_24h", []string{"eth_change_24h", "eth_24h_change", "ethereum_change_24h"}},
	{"sol_price", []string{"sol_price", "sol_price_usd", "sol", "solana"}},
	{"sol_change_24h", []string{"sol_change_24h", "sol_24h_change", "solana_change_24h"}},
	{"xrp_price", []string{"xrp_price", "xrp_price_usd", "xrp"}},
	{"xrp_change_24h", []string{"xrp_change_24h", "xrp_24h_change"}},
	{"ada_price", []string{"ada_price", "ada_price_usd", "ada", "cardano"}},
	{"ada_change_24h", []string{"ada_change_24h", "ada_24h_change", "cardano_change_24h"}},
	{"link_price", []string{"link_price", "link_price_usd", "link", "chainlink"}},
	{"link_change_24h", []string{"link_change_24h", "link_24h_change", "chainlink_change_24h"}},
	{"bnb_price", []string{"bnb_price", "bnb_price_usd", "bnb", "binance_coin"}},
	{"bnb_change_24h", []string{"bnb_change_24h", "bnb_24h_change"}},
	{"market_cap", []string{"market_cap", "market_cap_usd", "total_market_cap"}},
	{"volume_24h", []string{"volume_24h", "volume_24h_usd", "total_volume_24h"}},
	{"market_cap_change_24h", []string{"market_cap_change_percentage_24h_usd", "market_cap_change_24h", "total_market_cap_change_24h"}},
	{"btc_dominance", []string{"btc_dominance", "btc_market_cap_percentage", "bitcoin_dominance"}},
	{"eth_dominance", []string{"eth_dominance", "eth_market_cap_percentage", "ethereum_dominance"}},
	{"fear_greed_index", []string{"fear_greed_index", "fng_value", "fear_and_greed_index"}},
	{"timestamp", []string{"timestamp", "last_updated", "updated_at"}},
	{"source", []string{"source", "data_source", "normalized_by"}},
}

var passthroughFields = []string{"data_sources", "partial_failure", "fetch_duration_ms"}

// NormalizeLegacy maps a document from the legacy cache key onto canonical field names.
func NormalizeLegacy(full map[string]any) Snapshot {
	snapshot := Snapshot{}

	for _, field := range fallbackFields {
		for _, alias := range field.aliases {
			if value, ok := full[alias]; ok {
				snapshot[field.target] = value

				break
			}
		}
	}

	for _, key := range passthroughFields {
		if value, ok := full[key]; ok {
			snapshot[key] = value
		}
	}

	return snapshot
}
