// Package registry holds the static catalog of cryptocurrency exchanges and
// forex providers the engine is allowed to call. Descriptors are immutable
// once built; the Registry owns them for the lifetime of the process.
package registry

import "fmt"

// QuoteCurrency is the currency a crypto exchange source expresses its rate
// in. Exchanges are declared to quote either USDT or USD.
type QuoteCurrency int

const (
	QuoteUSDT QuoteCurrency = iota
	QuoteUSD
)

// SourceKind distinguishes crypto exchanges from forex/central-bank feeds.
type SourceKind int

const (
	KindCryptoExchange SourceKind = iota
	KindForexProvider
)

// URLBuilder renders a source's request URL for a symbol at a given minute.
// Basket forex providers ignore symbol (they return a full currency basket
// for one day) and use tsMinute only to select the day; single-pair forex
// providers such as Alpha Vantage use symbol to select the currency pair.
type URLBuilder func(symbol string, tsMinute uint64) string

// Source is an immutable descriptor for one upstream quote provider.
type Source struct {
	ID       string
	Kind     SourceKind
	Hostname string
	BuildURL URLBuilder
	Quote    QuoteCurrency // meaningful only for KindCryptoExchange
	// Symbols this source can quote. For crypto sources these are base
	// asset symbols (BTC, ETH, ...); for forex providers this is the
	// superset of fiat symbols it returns in one basket call.
	Symbols map[string]struct{}
	// Stablecoins marks a source+symbol combination used by the
	// stablecoin bridge (USDC, DAI, BUSD priced against USDT).
	Stablecoins map[string]struct{}
}

// Supports reports whether the source can quote symbol.
func (s Source) Supports(symbol string) bool {
	_, ok := s.Symbols[symbol]
	return ok
}

// SymbolList returns the symbols this source can quote, in no particular
// order. Used by the periodic forex refresh to drive single-pair providers
// that require one outcall per symbol rather than returning a basket.
func (s Source) SymbolList() []string {
	out := make([]string, 0, len(s.Symbols))
	for symbol := range s.Symbols {
		out = append(out, symbol)
	}
	return out
}

// Registry is the immutable catalog of all known sources.
type Registry struct {
	cryptoSources []Source
	forexSources  []Source
	byID          map[string]Source
}

// New builds the registry from the compiled-in catalog (§4.1: a static list,
// not dynamically discovered).
func New() *Registry {
	r := &Registry{byID: make(map[string]Source)}
	for _, s := range defaultCryptoSources() {
		r.cryptoSources = append(r.cryptoSources, s)
		r.byID[s.ID] = s
	}
	for _, s := range defaultForexSources() {
		r.forexSources = append(r.forexSources, s)
		r.byID[s.ID] = s
	}
	return r
}

// NewFromSources builds a Registry from an explicit source list, bypassing
// the compiled-in catalog. Used by tests that need to point sources at a
// local httptest server instead of a real exchange.
func NewFromSources(cryptoSources, forexSources []Source) *Registry {
	r := &Registry{byID: make(map[string]Source)}
	for _, s := range cryptoSources {
		r.cryptoSources = append(r.cryptoSources, s)
		r.byID[s.ID] = s
	}
	for _, s := range forexSources {
		r.forexSources = append(r.forexSources, s)
		r.byID[s.ID] = s
	}
	return r
}

// Get returns the descriptor for id.
func (r *Registry) Get(id string) (Source, bool) {
	s, ok := r.byID[id]
	return s, ok
}

// CryptoSourcesFor returns, in a fixed order, every crypto exchange source
// that can quote symbol. At most one such list is ever returned for a given
// symbol — the order is the registration order, so results are deterministic
// across calls and across replicas.
func (r *Registry) CryptoSourcesFor(symbol string) []Source {
	var out []Source
	for _, s := range r.cryptoSources {
		if s.Supports(symbol) {
			out = append(out, s)
		}
	}
	return out
}

// StablecoinSourcesFor returns the crypto exchange sources that quote a USD
// stablecoin peg (symbol is one of USDC, DAI, BUSD) against USDT.
func (r *Registry) StablecoinSourcesFor(symbol string) []Source {
	var out []Source
	for _, s := range r.cryptoSources {
		if _, ok := s.Stablecoins[symbol]; ok {
			out = append(out, s)
		}
	}
	return out
}

// ForexSources returns every registered forex/central-bank provider.
func (r *Registry) ForexSources() []Source {
	out := make([]Source, len(r.forexSources))
	copy(out, r.forexSources)
	return out
}

func symbolSet(symbols ...string) map[string]struct{} {
	m := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		m[s] = struct{}{}
	}
	return m
}

var majorCryptoSymbols = []string{
	"BTC", "ETH", "SOL", "ADA", "XRP", "AVAX", "LINK", "DOT", "USDC", "DAI", "BUSD",
}

func defaultCryptoSources() []Source {
	return []Source{
		{
			ID:       "binance",
			Kind:     KindCryptoExchange,
			Hostname: "api.binance.com",
			Quote:    QuoteUSDT,
			BuildURL: func(symbol string, tsMinute uint64) string {
				return fmt.Sprintf("https://api.binance.com/api/v3/klines?symbol=%sUSDT&interval=1m&startTime=%d&limit=1", symbol, tsMinute*1000)
			},
			Symbols:     symbolSet(majorCryptoSymbols...),
			Stablecoins: symbolSet("USDC", "DAI", "BUSD"),
		},
		{
			ID:       "okx",
			Kind:     KindCryptoExchange,
			Hostname: "www.okx.com",
			Quote:    QuoteUSDT,
			BuildURL: func(symbol string, tsMinute uint64) string {
				return fmt.Sprintf("https://www.okx.com/api/v5/market/history-candles?instId=%s-USDT&bar=1m&after=%d&limit=1", symbol, (tsMinute+60)*1000)
			},
			Symbols:     symbolSet(majorCryptoSymbols...),
			Stablecoins: symbolSet("USDC", "DAI"),
		},
		{
			ID:       "coinbase",
			Kind:     KindCryptoExchange,
			Hostname: "api.exchange.coinbase.com",
			Quote:    QuoteUSD,
			BuildURL: func(symbol string, tsMinute uint64) string {
				return fmt.Sprintf("https://api.exchange.coinbase.com/products/%s-USD/candles?granularity=60&start=%d&end=%d", symbol, tsMinute, tsMinute+60)
			},
			Symbols: symbolSet("BTC", "ETH", "SOL", "ADA", "XRP", "AVAX", "LINK", "DOT"),
		},
		{
			ID:       "kraken",
			Kind:     KindCryptoExchange,
			Hostname: "api.kraken.com",
			Quote:    QuoteUSD,
			BuildURL: func(symbol string, tsMinute uint64) string {
				return fmt.Sprintf("https://api.kraken.com/0/public/OHLC?pair=%sUSD&interval=1&since=%d", symbol, tsMinute)
			},
			Symbols: symbolSet("BTC", "ETH", "SOL", "ADA", "XRP", "DOT"),
		},
		{
			ID:       "coingecko",
			Kind:     KindCryptoExchange,
			Hostname: "api.coingecko.com",
			Quote:    QuoteUSD,
			BuildURL: func(symbol string, tsMinute uint64) string {
				id := coinGeckoID(symbol)
				return fmt.Sprintf("https://api.coingecko.com/api/v3/coins/%s/history?date=%s", id, formatDDMMYYYY(tsMinute))
			},
			Symbols:     symbolSet(majorCryptoSymbols...),
			Stablecoins: symbolSet("USDC", "BUSD"),
		},
	}
}

func defaultForexSources() []Source {
	return []Source{
		{
			ID:       "frankfurter",
			Kind:     KindForexProvider,
			Hostname: "api.frankfurter.app",
			BuildURL: func(_ string, tsMinute uint64) string {
				return fmt.Sprintf("https://api.frankfurter.app/%s", formatISODate(tsMinute))
			},
			Symbols: symbolSet("EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "CNY"),
		},
		{
			ID:       "exchangerate-host",
			Kind:     KindForexProvider,
			Hostname: "api.exchangerate.host",
			BuildURL: func(_ string, tsMinute uint64) string {
				return fmt.Sprintf("https://api.exchangerate.host/%s?base=USD", formatISODate(tsMinute))
			},
			Symbols: symbolSet("EUR", "GBP", "JPY", "CHF", "CAD", "AUD", "CNY"),
		},
		{
			// Alpha Vantage's FX_DAILY endpoint returns one currency pair per
			// call, not a basket, so BuildURL uses symbol (unlike the basket
			// providers above, which ignore it) and the periodic refresh
			// issues one outcall per symbol via extract.Registry["alphavantage"]
			// instead of ExtractForexBasketRates.
			ID:       "alphavantage",
			Kind:     KindForexProvider,
			Hostname: "www.alphavantage.co",
			BuildURL: func(symbol string, _ uint64) string {
				return fmt.Sprintf("https://www.alphavantage.co/query?function=FX_DAILY&from_symbol=USD&to_symbol=%s", symbol)
			},
			Symbols: symbolSet("EUR", "GBP", "JPY"),
		},
	}
}
