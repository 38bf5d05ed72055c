// Package types holds the value types shared by every stage of the
// rate-resolution pipeline: assets, samples, the final exchange rate, and
// the timestamp alignment rules the rest of the engine depends on.
package types

import (
	"fmt"
	"strings"
	"time"
)

// AssetClass distinguishes a cryptocurrency from a national currency.
type AssetClass int

const (
	Crypto AssetClass = iota
	Fiat
)

func (c AssetClass) String() string {
	if c == Fiat {
		return "fiat"
	}
	return "crypto"
}

// Asset is a normalized symbol plus its class. Symbols are upper-cased and
// trimmed at construction so every downstream lookup can compare by value.
type Asset struct {
	Symbol string
	Class  AssetClass
}

// NewAsset normalizes symbol (trim + upper-case) and validates its length.
func NewAsset(symbol string, class AssetClass) (Asset, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if len(s) == 0 || len(s) > 32 {
		return Asset{}, fmt.Errorf("invalid asset symbol %q: must be 1-32 characters", symbol)
	}
	return Asset{Symbol: s, Class: class}, nil
}

func (a Asset) String() string { return a.Symbol }

// AssetPair is an ordered (base, quote) pair. Its semantic inverse is
// computed by the caller (invert the rate); it is never stored separately.
type AssetPair struct {
	Base  Asset
	Quote Asset
}

func (p AssetPair) String() string {
	return fmt.Sprintf("%s/%s", p.Base.Symbol, p.Quote.Symbol)
}

// Decimals is fixed system-wide: every scaled integer in this codebase is a
// value of 10^-Decimals units.
const Decimals = 9

// ScaleFactor is 10^Decimals, used to convert between real-valued prices and
// their scaled integer representation.
const ScaleFactor uint64 = 1_000_000_000

// MinuteAlign truncates a UNIX timestamp down to the start of its containing
// UTC minute: T - (T mod 60).
func MinuteAlign(ts uint64) uint64 {
	return ts - (ts % 60)
}

// DayAlign truncates a UNIX timestamp down to the start of its containing
// UTC day.
func DayAlign(ts uint64) uint64 {
	t := time.Unix(int64(ts), 0).UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	return uint64(day.Unix())
}

// RateSample is one normalized quote pulled from a single upstream source.
// Invariant: Value / 10^Decimals is the sample's real-valued price.
type RateSample struct {
	SourceID  string
	Value     uint64
	Decimals  uint32
	TsMinute  uint64
}

// ExchangeRateMetadata carries the provenance of an ExchangeRate.
type ExchangeRateMetadata struct {
	BaseAssetNumQueriedSources  uint64
	BaseAssetNumReceivedRates   uint64
	QuoteAssetNumQueriedSources uint64
	QuoteAssetNumReceivedRates  uint64
	StandardDeviation           uint64
	ForexTimestamp              *uint64
}

// ExchangeRate is the output entity: a scaled integer rate plus provenance.
// Produced once by the Aggregator and read-only thereafter.
type ExchangeRate struct {
	Pair      AssetPair
	Timestamp uint64
	Rate      uint64
	Metadata  ExchangeRateMetadata
}
