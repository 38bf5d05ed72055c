package registry

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCryptoSourcesFor_ReturnsDeterministicOrder(t *testing.T) {
	r := New()
	first := r.CryptoSourcesFor("BTC")
	second := r.CryptoSourcesFor("BTC")
	require.Equal(t, first, second)
	require.NotEmpty(t, first)
}

func TestCryptoSourcesFor_UnknownSymbolIsEmpty(t *testing.T) {
	r := New()
	require.Empty(t, r.CryptoSourcesFor("NOPE"))
}

func TestStablecoinSourcesFor(t *testing.T) {
	r := New()
	sources := r.StablecoinSourcesFor("USDC")
	require.NotEmpty(t, sources)
	for _, s := range sources {
		_, ok := s.Stablecoins["USDC"]
		require.True(t, ok)
	}
}

func TestForexSources_NonEmptyAndImmutable(t *testing.T) {
	r := New()
	sources := r.ForexSources()
	require.NotEmpty(t, sources)

	sources[0].ID = "tampered"
	require.NotEqual(t, "tampered", r.ForexSources()[0].ID)
}

func TestGet(t *testing.T) {
	r := New()
	s, ok := r.Get("binance")
	require.True(t, ok)
	require.Equal(t, "binance", s.ID)

	_, ok = r.Get("nonexistent")
	require.False(t, ok)
}

func TestBuildURL_EmbedsSymbol(t *testing.T) {
	r := New()
	s, ok := r.Get("binance")
	require.True(t, ok)
	url := s.BuildURL("BTC", 1700000000)
	require.True(t, strings.Contains(url, "BTCUSDT"))
}
