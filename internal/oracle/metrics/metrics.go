// Package metrics exposes the process-wide observability counters named in
// spec.md §6: total requests, cache hits, outcall counts/failures, and
// per-source success rates. Kept as one package-level singleton, the same
// convention the teacher uses for its own process-wide infrastructure
// (GetGlobalPriceCache, InitRateLimiter).
package metrics

import (
	"sync"

	"go.uber.org/atomic"
)

type SourceHealth struct {
	Successes atomic.Int64
	Failures  atomic.Int64
}

type Registry struct {
	TotalRequests   atomic.Int64
	CacheHits       atomic.Int64
	CacheMisses     atomic.Int64
	OutcallsIssued  atomic.Int64
	OutcallFailures atomic.Int64
	RateLimited     atomic.Int64
	Pending         atomic.Int64
	Failures        atomic.Int64

	mu      sync.RWMutex
	sources map[string]*SourceHealth
}

var global = &Registry{sources: make(map[string]*SourceHealth)}

// Global returns the process-wide metrics registry.
func Global() *Registry { return global }

func (r *Registry) sourceHealth(sourceID string) *SourceHealth {
	r.mu.RLock()
	h, ok := r.sources[sourceID]
	r.mu.RUnlock()
	if ok {
		return h
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if h, ok := r.sources[sourceID]; ok {
		return h
	}
	h = &SourceHealth{}
	r.sources[sourceID] = h
	return h
}

func (r *Registry) RecordOutcallSuccess(sourceID string) {
	r.OutcallsIssued.Inc()
	r.sourceHealth(sourceID).Successes.Inc()
}

func (r *Registry) RecordOutcallFailure(sourceID string) {
	r.OutcallsIssued.Inc()
	r.OutcallFailures.Inc()
	r.sourceHealth(sourceID).Failures.Inc()
}

// SourceSuccessRates snapshots per-source success rate as successes /
// (successes + failures), omitting sources with no observations.
func (r *Registry) SourceSuccessRates() map[string]float64 {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]float64, len(r.sources))
	for id, h := range r.sources {
		s, f := h.Successes.Load(), h.Failures.Load()
		if s+f == 0 {
			continue
		}
		out[id] = float64(s) / float64(s+f)
	}
	return out
}

// Snapshot is the JSON-serializable view returned by the metrics endpoint.
type Snapshot struct {
	TotalRequests        int64              `json:"total_requests"`
	CacheHits            int64              `json:"cache_hits"`
	CacheMisses          int64              `json:"cache_misses"`
	OutcallsIssued       int64              `json:"outcalls_issued"`
	OutcallFailures      int64              `json:"outcall_failures"`
	RateLimited          int64              `json:"rate_limited"`
	Pending              int64              `json:"pending"`
	Failures             int64              `json:"failures"`
	PerSourceSuccessRate map[string]float64 `json:"per_source_success_rate"`
}

func (r *Registry) Snapshot() Snapshot {
	return Snapshot{
		TotalRequests:        r.TotalRequests.Load(),
		CacheHits:            r.CacheHits.Load(),
		CacheMisses:          r.CacheMisses.Load(),
		OutcallsIssued:       r.OutcallsIssued.Load(),
		OutcallFailures:      r.OutcallFailures.Load(),
		RateLimited:          r.RateLimited.Load(),
		Pending:              r.Pending.Load(),
		Failures:             r.Failures.Load(),
		PerSourceSuccessRate: r.SourceSuccessRates(),
	}
}
