// Package api exposes the engine's single ingress call over HTTP, standing
// in for the IC's candid message dispatch. Routed with gorilla/mux the way
// the rest of the retrieval pack's oracle service wires its handlers, since
// the teacher's own api package predates that dependency and routes by hand
// with http.HandleFunc.
package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"exchangerateoracle/internal/oracle/coordinator"
	"exchangerateoracle/internal/oracle/metrics"
	"exchangerateoracle/internal/oracle/types"
	"exchangerateoracle/internal/runtime"
)

// Server wires the coordinator into a mux.Router.
type Server struct {
	coord  *coordinator.Coordinator
	router *mux.Router
}

func NewServer(coord *coordinator.Coordinator) *Server {
	s := &Server{coord: coord, router: mux.NewRouter()}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/v1/get_exchange_rate", s.handleGetExchangeRate).Methods(http.MethodPost)
	s.router.HandleFunc("/v1/metrics", s.handleMetrics).Methods(http.MethodGet)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// getExchangeRateRequest mirrors the candid-encoded request body.
type getExchangeRateRequest struct {
	BaseAsset struct {
		Symbol string `json:"symbol"`
		Class  string `json:"class"` // "crypto" or "fiat"
	} `json:"base_asset"`
	QuoteAsset struct {
		Symbol string `json:"symbol"`
		Class  string `json:"class"`
	} `json:"quote_asset"`
	Timestamp *uint64 `json:"timestamp,omitempty"`
}

func assetClassFromString(s string) types.AssetClass {
	if s == "fiat" {
		return types.Fiat
	}
	return types.Crypto
}

func (s *Server) handleGetExchangeRate(w http.ResponseWriter, r *http.Request) {
	var body getExchangeRateRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		sendJSONError(w, http.StatusBadRequest, types.NewOtherError("malformed request body"))
		return
	}

	caller, err := runtime.PrincipalFromRequest(r)
	if err != nil {
		sendJSONError(w, http.StatusUnauthorized, types.NewOtherError(err.Error()))
		return
	}

	attachedCycles := parseAttachedCycles(r.Header.Get("X-Attached-Cycles"))

	base, err := types.NewAsset(body.BaseAsset.Symbol, assetClassFromString(body.BaseAsset.Class))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, types.NewOtherError(err.Error()))
		return
	}
	quote, err := types.NewAsset(body.QuoteAsset.Symbol, assetClassFromString(body.QuoteAsset.Class))
	if err != nil {
		sendJSONError(w, http.StatusBadRequest, types.NewOtherError(err.Error()))
		return
	}

	req := coordinator.Request{BaseAsset: base, QuoteAsset: quote, Timestamp: body.Timestamp}

	rate, refunded, oracleErr := s.coord.GetExchangeRate(r.Context(), caller, attachedCycles, req)
	if oracleErr != nil {
		sendJSONError(w, http.StatusOK, oracleErr)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Refunded-Cycles", strconv.FormatUint(refunded, 10))
	if err := json.NewEncoder(w).Encode(rate); err != nil {
		sendJSONError(w, http.StatusInternalServerError, types.NewOtherError("failed to encode response"))
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(metrics.Global().Snapshot())
}

// sendJSONError writes a typed OracleError as the JSON response body.
// get_exchange_rate failures are reported with 200 OK plus an error
// envelope (mirroring a candid Result variant, which has no HTTP status of
// its own); everything else uses a real HTTP status.
func sendJSONError(w http.ResponseWriter, status int, err *types.OracleError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]interface{}{
			"code":        err.Code.String(),
			"description": err.Description,
		},
	})
}

func parseAttachedCycles(header string) uint64 {
	v, err := strconv.ParseUint(header, 10, 64)
	if err != nil {
		return 0
	}
	return v
}
