// Package coordinator is the top-level orchestrator: validates caller and
// cycles, dedupes in-flight identical requests, caches results, issues
// outcalls in parallel, composes legs through the aggregator, and refunds
// unused cycles. Implements the state machine documented in spec.md §4.7.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/config"
	"exchangerateoracle/internal/oracle/aggregate"
	"exchangerateoracle/internal/oracle/extract"
	"exchangerateoracle/internal/oracle/forex"
	"exchangerateoracle/internal/oracle/metrics"
	"exchangerateoracle/internal/oracle/outcall"
	"exchangerateoracle/internal/oracle/registry"
	"exchangerateoracle/internal/oracle/stablecoin"
	"exchangerateoracle/internal/oracle/types"
	"exchangerateoracle/internal/runtime"
)

// Request mirrors the candid-encoded GetExchangeRateRequest.
type Request struct {
	BaseAsset  types.Asset
	QuoteAsset types.Asset
	Timestamp  *uint64
}

// Coordinator holds all process-wide mutable state: the rate cache, the
// inflight table, and the forex store. Per spec.md §3, it is the sole owner
// of these structures.
type Coordinator struct {
	registry *registry.Registry
	driver   *outcall.Driver
	cache    *RateCache
	inflight *InflightTable
	forex    *forex.Store
	metrics  *metrics.Registry
	tracer   opentracing.Tracer

	concMu    sync.Mutex
	concCount int

	privileged []string
}

func New(reg *registry.Registry, driver *outcall.Driver, forexStore *forex.Store, tracer opentracing.Tracer) *Coordinator {
	return &Coordinator{
		registry:   reg,
		driver:     driver,
		cache:      NewRateCache(config.RateCacheCapacity),
		inflight:   NewInflightTable(),
		forex:      forexStore,
		metrics:    metrics.Global(),
		tracer:     tracer,
		privileged: config.PrivilegedPrincipals,
	}
}

func (c *Coordinator) acquireConcurrencySlot() bool {
	c.concMu.Lock()
	defer c.concMu.Unlock()
	if c.concCount >= config.MaxConcurrentRequests {
		return false
	}
	c.concCount++
	return true
}

func (c *Coordinator) releaseConcurrencySlot() {
	c.concMu.Lock()
	defer c.concMu.Unlock()
	c.concCount--
}

// worstCaseOutcallCount bounds the number of outcalls a request could issue,
// for the upfront NotEnoughCycles check.
func (c *Coordinator) worstCaseOutcallCount(req Request) uint64 {
	pegOutcalls := uint64(0) // one per source per stablecoin the bridge queries
	for _, symbol := range []string{"USDC", "DAI", "BUSD"} {
		pegOutcalls += uint64(len(c.registry.StablecoinSourcesFor(symbol)))
	}
	count := uint64(0)
	if req.BaseAsset.Class == types.Crypto {
		count += uint64(len(c.registry.CryptoSourcesFor(req.BaseAsset.Symbol))) + pegOutcalls
	}
	if req.QuoteAsset.Class == types.Crypto {
		count += uint64(len(c.registry.CryptoSourcesFor(req.QuoteAsset.Symbol))) + pegOutcalls
	}
	if req.BaseAsset.Class == types.Fiat || req.QuoteAsset.Class == types.Fiat {
		count += 1 // forex store lookup, no outcall if already refreshed; counted defensively
	}
	if count == 0 {
		count = 1
	}
	return count
}

func invert(r types.ExchangeRate) types.ExchangeRate {
	if r.Rate == 0 {
		return r
	}
	scale := decimal.New(1, int32(types.Decimals))
	rateDec := decimal.New(int64(r.Rate), -int32(types.Decimals))
	invDec := decimal.NewFromInt(1).Div(rateDec).Mul(scale).RoundHalfUp(0)
	big := invDec.BigInt()
	inv := r
	if big.IsUint64() {
		inv.Rate = big.Uint64()
	}
	return inv
}

// fetchCryptoLeg issues parallel outcalls to every crypto exchange that
// quotes symbol in USDT at tsMinute, extracts samples, and resolves them
// into a Leg.
func (c *Coordinator) fetchCryptoLeg(ctx context.Context, symbol string, tsMinute uint64, ledger *runtime.CycleLedger, notFoundCode types.ErrorCode) (aggregate.Leg, *types.OracleError) {
	sources := c.usdtSourcesFor(symbol)
	samples, _ := c.fetchSamples(ctx, sources, symbol, tsMinute, ledger)
	return aggregate.ResolveLeg(samples, uint64(len(sources)), notFoundCode)
}

func (c *Coordinator) usdtSourcesFor(symbol string) []registry.Source {
	var out []registry.Source
	for _, s := range c.registry.CryptoSourcesFor(symbol) {
		if s.Quote == registry.QuoteUSDT {
			out = append(out, s)
		}
	}
	return out
}

// fetchSamples issues one outcall per source in parallel against tsMinute
// and extracts each response. Per-source failures are tolerated and folded
// into a single diagnostic multierror rather than surfaced to the caller
// (spec.md §7).
func (c *Coordinator) fetchSamples(ctx context.Context, sources []registry.Source, symbol string, tsMinute uint64, ledger *runtime.CycleLedger) ([]types.RateSample, error) {
	type outcome struct {
		sample types.RateSample
		err    error
	}

	results := make(chan outcome, len(sources))
	var wg sync.WaitGroup

	for _, src := range sources {
		wg.Add(1)
		go func(src registry.Source) {
			defer wg.Done()
			span := c.startSpan(ctx, "outcall."+src.ID)
			defer span.Finish()

			url := src.BuildURL(symbol, tsMinute)
			res, err := c.driver.Fetch(ctx, src.ID, url, extract.MaxBodyBytes)
			ledger.SpendOutcall(config.PerOutcallFee)
			if err != nil {
				c.metrics.RecordOutcallFailure(src.ID)
				results <- outcome{err: errors.Wrapf(err, "source %s", src.ID)}
				return
			}
			fn, ok := extract.Registry[src.ID]
			if !ok {
				results <- outcome{err: fmt.Errorf("no extractor registered for %s", src.ID)}
				return
			}
			sample, err := fn(src.ID, res.Body, tsMinute)
			if err != nil {
				c.metrics.RecordOutcallFailure(src.ID)
				results <- outcome{err: err}
				return
			}
			c.metrics.RecordOutcallSuccess(src.ID)
			results <- outcome{sample: sample}
		}(src)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	var samples []types.RateSample
	var errs *multierror.Error
	for o := range results {
		if o.err != nil {
			errs = multierror.Append(errs, o.err)
			continue
		}
		samples = append(samples, o.sample)
	}
	if errs != nil {
		log.Printf("coordinator: per-source failures tolerated: %v", errs)
	}
	return samples, errs.ErrorOrNil()
}

func (c *Coordinator) resolveStablecoinBridge(ctx context.Context, tsMinute uint64, ledger *runtime.CycleLedger) (decimal.Decimal, *types.OracleError) {
	var pegs []stablecoin.Peg
	for _, symbol := range []string{"USDC", "DAI", "BUSD"} {
		sources := c.registry.StablecoinSourcesFor(symbol)
		samples, _ := c.fetchSamples(ctx, sources, symbol, tsMinute, ledger)
		for _, s := range samples {
			usdtPerStable := decimal.New(int64(s.Value), -int32(types.Decimals))
			if peg, ok := stablecoin.NormalizePeg(s.SourceID, symbol, usdtPerStable); ok {
				pegs = append(pegs, peg)
			}
		}
	}
	rateResult, err := stablecoin.Resolve(pegs)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return rateResult.USDPerUSDT, nil
}

func (c *Coordinator) lookupForex(symbol string, tsMinute uint64, notFoundCode types.ErrorCode) (decimal.Decimal, uint64, *types.OracleError) {
	rate, day, err := c.forex.Lookup(tsMinute, symbol)
	if err != nil {
		if err.Code == types.ForexInvalidTimestamp {
			return decimal.Decimal{}, 0, err
		}
		return decimal.Decimal{}, 0, types.NewError(notFoundCode)
	}
	return rate, day, nil
}

func (c *Coordinator) startSpan(ctx context.Context, name string) opentracing.Span {
	if c.tracer == nil {
		return opentracing.NoopTracer{}.StartSpan(name)
	}
	return c.tracer.StartSpan(name)
}

// Cache exposes the rate cache for the periodic sweep task.
func (c *Coordinator) Cache() *RateCache { return c.cache }
