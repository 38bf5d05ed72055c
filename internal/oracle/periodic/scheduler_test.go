package periodic

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"exchangerateoracle/internal/oracle/outcall"
	"exchangerateoracle/internal/oracle/registry"
	"exchangerateoracle/internal/oracle/types"
)

func TestFetchForexBasket_BasketProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"rates":{"EUR":0.92,"GBP":0.79}}`))
	}))
	defer srv.Close()

	src := registry.Source{
		ID:   "frankfurter",
		Kind: registry.KindForexProvider,
		BuildURL: func(_ string, _ uint64) string {
			return srv.URL
		},
	}

	s := &Scheduler{driver: outcall.New(2 * time.Second)}
	day := types.DayAlign(uint64(time.Now().Unix()))

	basket, err := s.fetchForexBasket(context.Background(), src, day)
	require.NoError(t, err)
	require.Len(t, basket, 2)
	require.True(t, basket["EUR"].IsPositive())
}

func TestFetchForexBasket_SinglePairProvider(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"Time Series FX (Daily)":{"2024-01-02":{"4. close":"1.0921"},"2024-01-01":{"4. close":"1.1000"}}}`))
	}))
	defer srv.Close()

	src := registry.Source{
		ID:   "alphavantage",
		Kind: registry.KindForexProvider,
		BuildURL: func(symbol string, _ uint64) string {
			return srv.URL
		},
		Symbols: map[string]struct{}{"EUR": {}, "GBP": {}},
	}

	s := &Scheduler{driver: outcall.New(2 * time.Second)}
	day := types.DayAlign(uint64(time.Now().Unix()))

	basket, err := s.fetchForexBasket(context.Background(), src, day)
	require.NoError(t, err)
	require.Len(t, basket, 2)
	require.True(t, basket["EUR"].IsPositive())
	require.True(t, basket["GBP"].IsPositive())
}

func TestFetchForexBasket_SinglePairProviderAllFail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	src := registry.Source{
		ID:   "alphavantage",
		Kind: registry.KindForexProvider,
		BuildURL: func(symbol string, _ uint64) string {
			return srv.URL
		},
		Symbols: map[string]struct{}{"EUR": {}},
	}

	s := &Scheduler{driver: outcall.New(2 * time.Second)}
	day := types.DayAlign(uint64(time.Now().Unix()))

	_, err := s.fetchForexBasket(context.Background(), src, day)
	require.Error(t, err)
}
