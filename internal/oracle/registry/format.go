package registry

import "time"

// coinGeckoIDs maps supported symbols to CoinGecko coin identifiers,
// grounded on the teacher's own coinGeckoIDs table in exchange_rate_service.go.
var coinGeckoIDs = map[string]string{
	"BTC": "bitcoin", "ETH": "ethereum", "SOL": "solana", "ADA": "cardano",
	"XRP": "ripple", "AVAX": "avalanche-2", "LINK": "chainlink", "DOT": "polkadot",
	"USDC": "usd-coin", "DAI": "dai", "BUSD": "binance-usd",
}

func coinGeckoID(symbol string) string {
	if id, ok := coinGeckoIDs[symbol]; ok {
		return id
	}
	return symbol
}

func formatISODate(tsMinute uint64) string {
	return time.Unix(int64(tsMinute), 0).UTC().Format("2006-01-02")
}

func formatDDMMYYYY(tsMinute uint64) string {
	return time.Unix(int64(tsMinute), 0).UTC().Format("02-01-2006")
}
