package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/opentracing/opentracing-go"
	"github.com/stretchr/testify/require"

	"exchangerateoracle/internal/oracle/coordinator"
	"exchangerateoracle/internal/oracle/forex"
	"exchangerateoracle/internal/oracle/outcall"
	"exchangerateoracle/internal/oracle/registry"
)

func newTestServer() *Server {
	reg := registry.NewFromSources(nil, nil)
	driver := outcall.New(0)
	forexStore := forex.New(nil)
	coord := coordinator.New(reg, driver, forexStore, opentracing.NoopTracer{})
	return NewServer(coord)
}

func TestHandleGetExchangeRate_AnonymousRequestReturnsTypedError(t *testing.T) {
	s := newTestServer()

	body, _ := json.Marshal(map[string]interface{}{
		"base_asset":  map[string]string{"symbol": "BTC", "class": "crypto"},
		"quote_asset": map[string]string{"symbol": "ETH", "class": "crypto"},
	})
	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", bytes.NewReader(body))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var payload map[string]map[string]string
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Equal(t, "AnonymousPrincipalNotAllowed", payload["error"]["code"])
}

func TestHandleGetExchangeRate_MalformedBodyIsBadRequest(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/get_exchange_rate", bytes.NewReader([]byte("not json")))
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandleMetrics_ReturnsSnapshot(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodGet, "/v1/metrics", nil)
	rr := httptest.NewRecorder()

	s.ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	var snapshot map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &snapshot))
	require.Contains(t, snapshot, "total_requests")
}
