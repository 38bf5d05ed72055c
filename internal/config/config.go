package config

import "time"

// --- Deployment configuration ---
// Fee schedule, concurrency limits, and the inconsistency threshold are
// compile-time constants per deployment (spec.md §4.7).

// BaseFee is retained on every get_exchange_rate call regardless of outcome.
const BaseFee uint64 = 10_000_000_000

// PerOutcallFee is charged per outbound HTTP call actually issued.
const PerOutcallFee uint64 = 2_000_000_000

// MaxConcurrentRequests bounds non-privileged in-flight resolutions before
// admission control starts returning RateLimited.
const MaxConcurrentRequests = 50

// ResponseSizeCapBytes mirrors extract.MaxBodyBytes; duplicated here as the
// deployment-facing knob so it can be surfaced without importing extract
// from the config package.
const ResponseSizeCapBytes = 500 * 1024

// InconsistencyThreshold mirrors aggregate.InconsistencyThreshold.
const InconsistencyThreshold = 0.1

// RateCacheCapacity bounds the number of (pair, minute) entries held by the
// rate cache; least-recently-used entries are evicted beyond this.
const RateCacheCapacity = 10_000

// OutcallTimeout is the per-outcall deadline materialized as a Timeout
// failure when exceeded (spec.md §5: "the host imposes a per-outcall
// timeout").
const OutcallTimeout = 8 * time.Second

// ForexRefreshSchedule is the cron expression driving the daily forex store
// refresh (spec.md §2.9 "Periodic Tasks").
const ForexRefreshSchedule = "0 5 * * *" // 05:00 UTC daily

// CacheSweepSchedule drives the periodic eviction of expired rate-cache
// entries.
const CacheSweepSchedule = "@every 1m"

// HTTPListenAddress is the address the ingress HTTP server binds to,
// matching the teacher's LocalServerAddress constant convention.
const HTTPListenAddress = ":8080"

// GetExchangeRatePath is the ingress endpoint path.
const GetExchangeRatePath = "/v1/get_exchange_rate"

// MetricsPath is the observability query endpoint path.
const MetricsPath = "/v1/metrics"

// PrivilegedPrincipals lists callers exempt from RateLimited admission
// control, modeling the IC cycles-minting canister's exemption (spec.md
// §4.7). Open Question per spec.md §9: verify the exact membership of this
// list before pinning it to a deployment; a single well-known caller is
// used here as the minimal documented case.
var PrivilegedPrincipals = []string{"cycles-minting-canister"}
