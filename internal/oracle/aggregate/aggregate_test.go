package aggregate

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"exchangerateoracle/internal/oracle/types"
)

func sample(source string, value uint64, tsMinute uint64) types.RateSample {
	return types.RateSample{SourceID: source, Value: value, Decimals: types.Decimals, TsMinute: tsMinute}
}

func TestResolveLeg_MeanOfSamples(t *testing.T) {
	leg, err := ResolveLeg([]types.RateSample{
		sample("binance", 100_000_000_000, 60),
		sample("okx", 102_000_000_000, 60),
	}, 2, types.CryptoBaseAssetNotFound)
	require.Nil(t, err)
	require.Equal(t, uint64(2), leg.NumReceivedRates)
	v, _ := leg.Rate.Float64()
	require.InDelta(t, 101, v, 0.001)
}

func TestResolveLeg_NotFoundWhenEmpty(t *testing.T) {
	_, err := ResolveLeg(nil, 3, types.CryptoBaseAssetNotFound)
	require.NotNil(t, err)
	require.Equal(t, types.CryptoBaseAssetNotFound, err.Code)
}

func TestResolveLeg_DedupesBySourceKeepingMostRecent(t *testing.T) {
	leg, err := ResolveLeg([]types.RateSample{
		sample("binance", 90_000_000_000, 60),
		sample("binance", 100_000_000_000, 120),
		sample("okx", 100_000_000_000, 60),
	}, 2, types.CryptoBaseAssetNotFound)
	require.Nil(t, err)
	require.Equal(t, uint64(2), leg.NumReceivedRates)
	v, _ := leg.Rate.Float64()
	require.InDelta(t, 100, v, 0.001)
}

func TestResolveLeg_InconsistentAboveThresholdWithThreeOrMore(t *testing.T) {
	_, err := ResolveLeg([]types.RateSample{
		sample("a", 100_000_000_000, 60),
		sample("b", 101_000_000_000, 60),
		sample("c", 130_000_000_000, 60),
	}, 3, types.CryptoBaseAssetNotFound)
	require.NotNil(t, err)
	require.Equal(t, types.InconsistentRatesReceived, err.Code)
}

func TestResolveLeg_ConsistencyCheckSkippedBelowThreeSamples(t *testing.T) {
	// Two samples with a 30% spread should NOT trip InconsistentRatesReceived,
	// since the check only applies at 3+ samples.
	leg, err := ResolveLeg([]types.RateSample{
		sample("a", 100_000_000_000, 60),
		sample("b", 130_000_000_000, 60),
	}, 2, types.CryptoBaseAssetNotFound)
	require.Nil(t, err)
	require.Equal(t, uint64(2), leg.NumReceivedRates)
}

func TestCombineCryptoCrypto_DividesLegs(t *testing.T) {
	base := Leg{Rate: decimal.NewFromInt(100), NumQueriedSources: 2, NumReceivedRates: 2}
	quote := Leg{Rate: decimal.NewFromInt(50), NumQueriedSources: 2, NumReceivedRates: 2}
	rate := CombineCryptoCrypto(base, quote)
	require.Equal(t, uint64(2_000_000_000), rate.Rate)
}

func TestCombineCryptoFiat_ChainsThroughBridgeAndForex(t *testing.T) {
	leg := Leg{Rate: decimal.NewFromInt(100), NumQueriedSources: 3, NumReceivedRates: 3}
	usdPerUSDT := decimal.NewFromFloat(1.0)
	fiatUnitsPerUSD := decimal.NewFromFloat(0.92)
	rate := CombineCryptoFiat(leg, usdPerUSDT, fiatUnitsPerUSD, 86400)
	require.Equal(t, uint64(92_000_000_000), rate.Rate)
	require.NotNil(t, rate.Metadata.ForexTimestamp)
	require.Equal(t, uint64(86400), *rate.Metadata.ForexTimestamp)
}

func TestCombineFiatFiat_DividesUnitsPerUSD(t *testing.T) {
	// 1 USD = 0.92 EUR, 1 USD = 1.35 CAD => 1 EUR = 1.35/0.92 CAD
	rate := CombineFiatFiat(decimal.NewFromFloat(0.92), decimal.NewFromFloat(1.35), 86400)
	v := float64(rate.Rate) / float64(types.ScaleFactor)
	require.InDelta(t, 1.35/0.92, v, 0.0001)
}
