// Package stablecoin computes the USDT<->USD conversion rate from the
// median of several USD-pegged stablecoins quoted against USDT, bounding
// the influence any single peg coin can have on a crypto/fiat rate.
package stablecoin

import (
	"sort"

	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/oracle/types"
)

// Peg is one stablecoin's rate against USDT from one source, already
// normalized to "USD per USDT" (inverted if the source quoted USDT per
// stablecoin).
type Peg struct {
	SourceID string
	Symbol   string // USDC, DAI, BUSD, ...
	USDPerUSDT decimal.Decimal
}

// Rate is the resolved USDT->USD conversion.
type Rate struct {
	USDPerUSDT decimal.Decimal
	NumSamples int
}

// Resolve computes the median of pegs, deduplicating by (source, symbol) and
// keeping the most recently observed value per pair.
func Resolve(pegs []Peg) (Rate, *types.OracleError) {
	if len(pegs) == 0 {
		return Rate{}, types.NewError(types.StablecoinRateNotFound)
	}

	dedup := make(map[string]Peg, len(pegs))
	for _, p := range pegs {
		dedup[p.SourceID+"/"+p.Symbol] = p
	}

	values := make([]decimal.Decimal, 0, len(dedup))
	for _, p := range dedup {
		values = append(values, p.USDPerUSDT)
	}

	if len(values) < 2 {
		return Rate{}, types.NewError(types.StablecoinRateTooFewRates)
	}

	median := computeMedian(values)
	if median.IsZero() {
		return Rate{}, types.NewError(types.StablecoinRateZeroRate)
	}

	return Rate{USDPerUSDT: median, NumSamples: len(values)}, nil
}

func computeMedian(values []decimal.Decimal) decimal.Decimal {
	sorted := make([]decimal.Decimal, len(values))
	copy(sorted, values)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })

	n := len(sorted)
	if n%2 == 1 {
		return sorted[n/2]
	}
	sum := sorted[n/2-1].Add(sorted[n/2])
	return sum.Div(decimal.NewFromInt(2))
}

// NormalizePeg converts a raw sample (stablecoin priced against USDT, e.g.
// "1.0003 USDT per USDC") into USD-per-USDT by inverting when the exchange
// quoted the stablecoin as base rather than quote.
func NormalizePeg(sourceID, symbol string, usdtPerStablecoin decimal.Decimal) (Peg, bool) {
	if usdtPerStablecoin.IsZero() {
		return Peg{}, false
	}
	usdPerUSDT := decimal.NewFromInt(1).Div(usdtPerStablecoin)
	return Peg{SourceID: sourceID, Symbol: symbol, USDPerUSDT: usdPerUSDT}, true
}
