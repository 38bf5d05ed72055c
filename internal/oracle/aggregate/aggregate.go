// Package aggregate implements the core cross-multiplication and
// outlier-rejection algorithm described in spec.md §4.6: converting a set of
// per-source samples into one scaled ExchangeRate with a standard deviation
// and a consistency check.
package aggregate

import (
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/oracle/types"
)

// InconsistencyThreshold is the maximum (max-min)/median ratio tolerated
// when at least 3 samples are present (spec.md §4.6 step 5).
const InconsistencyThreshold = 0.1

// Leg is the result of cross-multiplying one side's samples into a single
// common unit ("base-asset scaled nanos per 1 unit of the final quote
// asset").
type Leg struct {
	Rate               decimal.Decimal
	StandardDeviation  decimal.Decimal
	NumReceivedRates   uint64
	NumQueriedSources  uint64
}

// ResolveLeg converts samples (already expressed in a common unit by the
// caller) into a Leg: it keeps the most recent sample per source, then
// applies the consistency check.
func ResolveLeg(samples []types.RateSample, numQueried uint64, notFoundCode types.ErrorCode) (Leg, *types.OracleError) {
	deduped := dedupeBySource(samples)
	if len(deduped) < 1 {
		return Leg{}, types.NewError(notFoundCode)
	}

	values := make([]decimal.Decimal, len(deduped))
	for i, s := range deduped {
		values[i] = decimal.New(int64(s.Value), -int32(types.Decimals))
	}

	mean, stddev := meanAndStdDev(values)

	if len(values) >= 3 {
		sorted := make([]decimal.Decimal, len(values))
		copy(sorted, values)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
		n := len(sorted)
		minV, maxV := sorted[0], sorted[n-1]
		median := sorted[n/2]
		if n%2 == 0 {
			median = sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
		}
		if !median.IsZero() {
			spread := maxV.Sub(minV).Div(median)
			if spread.GreaterThan(decimal.NewFromFloat(InconsistencyThreshold)) {
				return Leg{}, types.NewError(types.InconsistentRatesReceived)
			}
		}
	}

	return Leg{
		Rate:              mean,
		StandardDeviation: stddev,
		NumReceivedRates:  uint64(len(deduped)),
		NumQueriedSources: numQueried,
	}, nil
}

// dedupeBySource keeps, for each SourceID, only the sample with the highest
// TsMinute (spec.md §4.6 step 2: "keep most recent").
func dedupeBySource(samples []types.RateSample) []types.RateSample {
	latest := make(map[string]types.RateSample, len(samples))
	for _, s := range samples {
		if cur, ok := latest[s.SourceID]; !ok || s.TsMinute > cur.TsMinute {
			latest[s.SourceID] = s
		}
	}
	out := make([]types.RateSample, 0, len(latest))
	for _, s := range latest {
		out = append(out, s)
	}
	return out
}

func meanAndStdDev(values []decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	n := decimal.NewFromInt(int64(len(values)))
	sum := decimal.Zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	mean := sum.Div(n)

	if len(values) < 2 {
		return mean, decimal.Zero
	}

	sumSq := decimal.Zero
	for _, v := range values {
		diff := v.Sub(mean)
		sumSq = sumSq.Add(diff.Mul(diff))
	}
	variance, _ := sumSq.Div(n).Float64()
	return mean, decimal.NewFromFloat(math.Sqrt(variance))
}

// CombineCryptoCrypto divides base's USDT leg by quote's USDT leg, producing
// the crypto/crypto rate (spec.md §4.6: "both sides are fetched in USDT and
// one is divided into the other").
func CombineCryptoCrypto(base, quote Leg) types.ExchangeRate {
	rate := base.Rate.Div(quote.Rate)
	combinedStdDev := combineRelativeStdDev(base, quote, rate)
	return types.ExchangeRate{
		Rate: toScaled(rate),
		Metadata: types.ExchangeRateMetadata{
			BaseAssetNumQueriedSources:  base.NumQueriedSources,
			BaseAssetNumReceivedRates:   base.NumReceivedRates,
			QuoteAssetNumQueriedSources: quote.NumQueriedSources,
			QuoteAssetNumReceivedRates:  quote.NumReceivedRates,
			StandardDeviation:           toScaled(combinedStdDev),
		},
	}
}

// CombineCryptoFiat converts a crypto leg (quoted in USDT per crypto unit)
// through the stablecoin bridge (USD per USDT) and then through the forex
// store's rate for the fiat symbol (fiat units per 1 USD) to the target
// fiat.
func CombineCryptoFiat(cryptoLeg Leg, usdPerUSDT decimal.Decimal, fiatUnitsPerUSD decimal.Decimal, forexTimestamp uint64) types.ExchangeRate {
	rate := cryptoLeg.Rate.Mul(usdPerUSDT).Mul(fiatUnitsPerUSD)
	ts := forexTimestamp
	return types.ExchangeRate{
		Rate: toScaled(rate),
		Metadata: types.ExchangeRateMetadata{
			BaseAssetNumQueriedSources:  cryptoLeg.NumQueriedSources,
			BaseAssetNumReceivedRates:   cryptoLeg.NumReceivedRates,
			QuoteAssetNumQueriedSources: 0,
			QuoteAssetNumReceivedRates:  0,
			StandardDeviation:           toScaled(cryptoLeg.StandardDeviation.Mul(usdPerUSDT).Mul(fiatUnitsPerUSD)),
			ForexTimestamp:              &ts,
		},
	}
}

// CombineFiatFiat divides two forex-store rates, each expressed as
// "currency units per 1 USD", into a base->quote rate: baseUnitsPerUSD tells
// us 1 USD buys that many base units, quoteUnitsPerUSD the same for quote,
// so 1 base unit = (quoteUnitsPerUSD / baseUnitsPerUSD) quote units.
func CombineFiatFiat(baseUnitsPerUSD, quoteUnitsPerUSD decimal.Decimal, forexTimestamp uint64) types.ExchangeRate {
	rate := quoteUnitsPerUSD.Div(baseUnitsPerUSD)
	ts := forexTimestamp
	return types.ExchangeRate{
		Rate: toScaled(rate),
		Metadata: types.ExchangeRateMetadata{
			ForexTimestamp: &ts,
		},
	}
}

func combineRelativeStdDev(base, quote Leg, combinedRate decimal.Decimal) decimal.Decimal {
	if base.Rate.IsZero() || quote.Rate.IsZero() {
		return decimal.Zero
	}
	baseRel, _ := base.StandardDeviation.Div(base.Rate).Float64()
	quoteRel, _ := quote.StandardDeviation.Div(quote.Rate).Float64()
	combinedRel := math.Sqrt(baseRel*baseRel + quoteRel*quoteRel)
	return combinedRate.Mul(decimal.NewFromFloat(combinedRel))
}

func toScaled(d decimal.Decimal) uint64 {
	scaled := d.Mul(decimal.New(1, int32(types.Decimals))).RoundHalfUp(0)
	big := scaled.BigInt()
	if !big.IsUint64() {
		return 0
	}
	return big.Uint64()
}
