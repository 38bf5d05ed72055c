// Package extract holds the per-source response extractors: small, total
// functions that pull a normalized RateSample out of an already-fetched
// response body. Per §9, adding a source means registering a descriptor
// (registry package) and an extractor here — never growing a class
// hierarchy.
package extract

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/oracle/types"
)

// MaxBodyBytes is the documented response-size cap; bodies larger than this
// are rejected before parsing is attempted.
const MaxBodyBytes = 500 * 1024

// Func extracts a RateSample from a raw response body for the given
// requested minute. It selects the sample whose timestamp is closest to but
// not after reqMinute.
type Func func(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error)

// Registry is the table of function pointers keyed by source id (§9:
// "table of function pointers keyed by source id" instead of subclassing).
// Registry covers only single-sample sources. The two basket forex
// providers (frankfurter, exchangerate-host) return a whole currency basket
// per call and are parsed by ExtractForexBasketRates instead, since a single
// RateSample cannot represent a basket — see the Forex Store package.
var Registry = map[string]Func{
	"binance":      extractBinanceKlines,
	"okx":          extractOKXCandles,
	"coinbase":     extractCoinbaseCandles,
	"kraken":       extractKrakenOHLC,
	"coingecko":    extractCoinGeckoHistory,
	"alphavantage": extractAlphaVantageFXDaily,
}

func checkSize(sourceID string, body []byte) error {
	if len(body) == 0 {
		return failed(sourceID, "empty response body")
	}
	if len(body) > MaxBodyBytes {
		return failed(sourceID, "response body exceeds 500 KiB cap")
	}
	return nil
}

// --- Binance: GET /api/v3/klines -> [[openTime, open, high, low, close, ...], ...]

func extractBinanceKlines(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed klines payload")
	}
	if len(rows) == 0 {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	row := rows[0]
	if len(row) < 5 {
		return types.RateSample{}, failed(sourceID, "missing fields in kline row")
	}
	var openTimeMs int64
	if err := json.Unmarshal(row[0], &openTimeMs); err != nil {
		return types.RateSample{}, failed(sourceID, "missing open time field")
	}
	var closeStr string
	if err := json.Unmarshal(row[4], &closeStr); err != nil {
		return types.RateSample{}, failed(sourceID, "missing close price field")
	}
	price, err := decimal.NewFromString(closeStr)
	if err != nil {
		return types.RateSample{}, failed(sourceID, "unparseable close price")
	}
	ts := uint64(openTimeMs / 1000)
	if ts > reqMinute {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.MinuteAlign(ts)}, nil
}

// --- OKX: GET /api/v5/market/history-candles -> {"data": [[ts, o, h, l, c, ...], ...]}

func extractOKXCandles(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var resp struct {
		Data [][]string `json:"data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed candles payload")
	}
	if len(resp.Data) == 0 || len(resp.Data[0]) < 5 {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	row := resp.Data[0]
	tsMs, err := strconv.ParseInt(row[0], 10, 64)
	if err != nil {
		return types.RateSample{}, failed(sourceID, "missing timestamp field")
	}
	price, err := decimal.NewFromString(row[4])
	if err != nil {
		return types.RateSample{}, failed(sourceID, "unparseable close price")
	}
	ts := uint64(tsMs / 1000)
	if ts > reqMinute {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.MinuteAlign(ts)}, nil
}

// --- Coinbase: GET /products/{pair}/candles -> [[time, low, high, open, close, volume], ...]

func extractCoinbaseCandles(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var rows [][]float64
	if err := json.Unmarshal(body, &rows); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed candles payload")
	}
	if len(rows) == 0 || len(rows[0]) < 5 {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	row := rows[0]
	ts := uint64(row[0])
	if ts > reqMinute {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	price := decimal.NewFromFloat(row[4])
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.MinuteAlign(ts)}, nil
}

// --- Kraken: GET /0/public/OHLC -> {"result": {"<pair>": [[time, o, h, l, c, ...], ...]}}

func extractKrakenOHLC(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var resp struct {
		Error  []string                     `json:"error"`
		Result map[string]json.RawMessage `json:"result"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed OHLC payload")
	}
	if len(resp.Error) > 0 {
		return types.RateSample{}, failed(sourceID, "exchange reported an error")
	}
	var rows [][]interface{}
	for key, raw := range resp.Result {
		if key == "last" {
			continue
		}
		if err := json.Unmarshal(raw, &rows); err != nil {
			continue
		}
		break
	}
	if len(rows) == 0 {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	last := rows[len(rows)-1]
	for i := len(rows) - 1; i >= 0; i-- {
		ts, ok := rows[i][0].(float64)
		if ok && uint64(ts) <= reqMinute {
			last = rows[i]
			break
		}
	}
	ts, _ := last[0].(float64)
	if uint64(ts) > reqMinute {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	closeStr, ok := last[4].(string)
	if !ok {
		return types.RateSample{}, failed(sourceID, "missing close price field")
	}
	price, err := decimal.NewFromString(closeStr)
	if err != nil {
		return types.RateSample{}, failed(sourceID, "unparseable close price")
	}
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.MinuteAlign(uint64(ts))}, nil
}

// --- CoinGecko: GET /coins/{id}/history -> {"market_data": {"current_price": {"usd": 123.4}}}

func extractCoinGeckoHistory(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var resp struct {
		MarketData struct {
			CurrentPrice map[string]float64 `json:"current_price"`
		} `json:"market_data"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed history payload")
	}
	usd, ok := resp.MarketData.CurrentPrice["usd"]
	if !ok {
		return types.RateSample{}, failed(sourceID, "missing usd price field")
	}
	price := decimal.NewFromFloat(usd)
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.DayAlign(reqMinute)}, nil
}

// ExtractForexBasketRates parses a whole-basket forex provider response
// (frankfurter, exchangerate-host) into symbol -> rate-against-USD. Forex
// sources return many currencies per call, so they are not expressed as a
// single-sample Func; the Forex Store calls this directly per source.
func ExtractForexBasketRates(sourceID string, body []byte) (map[string]decimal.Decimal, error) {
	if err := checkSize(sourceID, body); err != nil {
		return nil, err
	}
	var resp struct {
		Rates map[string]float64 `json:"rates"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, failed(sourceID, "malformed forex basket payload")
	}
	if len(resp.Rates) == 0 {
		return nil, failed(sourceID, "empty forex basket")
	}
	out := make(map[string]decimal.Decimal, len(resp.Rates))
	for symbol, rate := range resp.Rates {
		out[symbol] = decimal.NewFromFloat(rate)
	}
	return out, nil
}

// --- Alpha Vantage: GET ?function=FX_DAILY -> {"Time Series FX (Daily)": {"<date>": {"4. close": "1.0921"}}}

func extractAlphaVantageFXDaily(sourceID string, body []byte, reqMinute uint64) (types.RateSample, error) {
	if err := checkSize(sourceID, body); err != nil {
		return types.RateSample{}, err
	}
	var resp struct {
		Series map[string]map[string]string `json:"Time Series FX (Daily)"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return types.RateSample{}, failed(sourceID, "malformed FX_DAILY payload")
	}
	if len(resp.Series) == 0 {
		return types.RateSample{}, failed(sourceID, "empty FX_DAILY series")
	}
	reqDate := time.Unix(int64(reqMinute), 0).UTC().Format("2006-01-02")
	var best string
	for date := range resp.Series {
		if date <= reqDate && (best == "" || date > best) {
			best = date
		}
	}
	if best == "" {
		return types.RateSample{}, failed(sourceID, "no sample at or before requested minute")
	}
	closeStr, ok := resp.Series[best]["4. close"]
	if !ok {
		return types.RateSample{}, failed(sourceID, "missing close field")
	}
	price, err := decimal.NewFromString(closeStr)
	if err != nil {
		return types.RateSample{}, failed(sourceID, "unparseable close price")
	}
	value, err := ScaleToNanos(price, sourceID)
	if err != nil {
		return types.RateSample{}, err
	}
	return types.RateSample{SourceID: sourceID, Value: value, Decimals: types.Decimals, TsMinute: types.DayAlign(reqMinute)}, nil
}
