package extract

import (
	"testing"

	"github.com/stretchr/testify/require"

	"exchangerateoracle/internal/oracle/types"
)

func TestExtractBinanceKlines(t *testing.T) {
	body := []byte(`[[1700000000000,"100.0","110.0","90.0","105.50","10","1700000059999","1000","5","3","300","0"]]`)
	sample, err := extractBinanceKlines("binance", body, 1700000060)
	require.NoError(t, err)
	require.Equal(t, "binance", sample.SourceID)
	require.Equal(t, uint64(105_500_000_000), sample.Value)
	require.Equal(t, types.MinuteAlign(1700000000), sample.TsMinute)
}

func TestExtractBinanceKlines_RejectsFutureSample(t *testing.T) {
	body := []byte(`[[1700000120000,"100.0","110.0","90.0","105.50","10"]]`)
	_, err := extractBinanceKlines("binance", body, 1700000060)
	require.Error(t, err)
}

func TestExtractBinanceKlines_RejectsOversizedBody(t *testing.T) {
	big := make([]byte, MaxBodyBytes+1)
	_, err := extractBinanceKlines("binance", big, 0)
	require.Error(t, err)
}

func TestExtractOKXCandles(t *testing.T) {
	body := []byte(`{"data":[["1700000000000","100","110","90","55.25","1000"]]}`)
	sample, err := extractOKXCandles("okx", body, 1700000060)
	require.NoError(t, err)
	require.Equal(t, uint64(55_250_000_000), sample.Value)
}

func TestExtractCoinbaseCandles(t *testing.T) {
	body := []byte(`[[1700000000,90,110,100,99.99,1000]]`)
	sample, err := extractCoinbaseCandles("coinbase", body, 1700000060)
	require.NoError(t, err)
	require.Equal(t, uint64(99_990_000_000), sample.Value)
}

func TestExtractKrakenOHLC(t *testing.T) {
	body := []byte(`{"error":[],"result":{"XBTUSD":[[1700000000,"100","110","90","42000.5","95","10","5"]],"last":1700000060}}`)
	sample, err := extractKrakenOHLC("kraken", body, 1700000060)
	require.NoError(t, err)
	require.Equal(t, uint64(42_000_500_000_000), sample.Value)
}

func TestExtractKrakenOHLC_PropagatesExchangeError(t *testing.T) {
	body := []byte(`{"error":["EQuery:Unknown asset pair"],"result":{}}`)
	_, err := extractKrakenOHLC("kraken", body, 1700000060)
	require.Error(t, err)
}

func TestExtractCoinGeckoHistory(t *testing.T) {
	body := []byte(`{"market_data":{"current_price":{"usd":27123.45,"eur":25000.0}}}`)
	sample, err := extractCoinGeckoHistory("coingecko", body, 1700000060)
	require.NoError(t, err)
	require.Equal(t, uint64(27_123_450_000_000), sample.Value)
}

func TestExtractAlphaVantageFXDaily(t *testing.T) {
	body := []byte(`{"Time Series FX (Daily)":{"2024-01-01":{"4. close":"1.1000"},"2024-01-02":{"4. close":"1.0950"}}}`)
	sample, err := extractAlphaVantageFXDaily("alphavantage", body, 1704153600)
	require.NoError(t, err)
	require.Equal(t, uint64(1_095_000_000), sample.Value)
}

func TestExtractForexBasketRates(t *testing.T) {
	body := []byte(`{"amount":1.0,"base":"USD","date":"2024-01-02","rates":{"EUR":0.92,"GBP":0.79}}`)
	rates, err := ExtractForexBasketRates("frankfurter", body)
	require.NoError(t, err)
	require.True(t, rates["EUR"].Equal(rates["EUR"]))
	eur, _ := rates["EUR"].Float64()
	require.InDelta(t, 0.92, eur, 0.0001)
}

func TestExtractForexBasketRates_RejectsEmptyBasket(t *testing.T) {
	_, err := ExtractForexBasketRates("frankfurter", []byte(`{"rates":{}}`))
	require.Error(t, err)
}
