// pipeline.go implements GetExchangeRate as the explicit sequence of stages
// the state machine in state.go describes: validate, checkCache,
// checkInflight, plan, fetch, aggregate, reply. Each stage is traced with its
// own opentracing.Span and tagged with the request's RequestID, so a single
// call can be followed through logs and traces end to end.
package coordinator

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/config"
	"exchangerateoracle/internal/oracle/aggregate"
	"exchangerateoracle/internal/oracle/types"
	"exchangerateoracle/internal/runtime"
)

// pairKind classifies a requested pair by asset class, selecting which combine
// function the aggregate stage applies.
type pairKind int

const (
	pairCryptoCrypto pairKind = iota
	pairCryptoFiat
	pairFiatCrypto
	pairFiatFiat
)

// legSet accumulates whatever the fetch stage resolved, in the shape the
// aggregate stage needs for pairKind. Only the fields for the active kind are
// populated.
type legSet struct {
	kind pairKind

	baseLeg  aggregate.Leg
	quoteLeg aggregate.Leg

	cryptoLeg       aggregate.Leg
	usdPerUSDT      decimal.Decimal
	fiatUnitsPerUSD decimal.Decimal

	baseUnitsPerUSD  decimal.Decimal
	quoteUnitsPerUSD decimal.Decimal

	forexDay uint64
}

// requestCtx carries one get_exchange_rate call through the pipeline. A
// RequestID tags every span and log line it produces so a single call can be
// correlated across both.
type requestCtx struct {
	ctx            context.Context
	coord          *Coordinator
	caller         runtime.Principal
	req            Request
	cyclesAttached uint64
	requestID      string

	state State

	ledger *runtime.CycleLedger

	pair     types.AssetPair
	tsMinute uint64

	releaseInflight func()
	releaseSlot     bool

	legs legSet
	rate types.ExchangeRate
}

// advance moves rc to the next state, panicking if the edge isn't legal per
// the transitions table in state.go. A stage that reaches an illegal
// transition is a programming error, not a request-level failure.
func (rc *requestCtx) advance(to State) {
	if !CanTransition(rc.state, to) {
		panic(fmt.Sprintf("coordinator: illegal transition %s -> %s", rc.state, to))
	}
	rc.state = to
}

// spanStage runs fn inside its own span, named and tagged with the request
// ID so the per-stage trace (spec.md §9 tracing note) can be stitched back
// into one request's timeline.
func (rc *requestCtx) spanStage(name string, fn func() *types.OracleError) *types.OracleError {
	span := rc.coord.startSpan(rc.ctx, "pipeline."+name)
	span.SetTag("request_id", rc.requestID)
	defer span.Finish()
	return fn()
}

// validate rejects anonymous callers, accepts the worst-case cycle budget,
// and normalizes the request into an (AssetPair, ts_minute).
func (rc *requestCtx) validate() *types.OracleError {
	if rc.caller.IsAnonymous() {
		return types.NewError(types.AnonymousPrincipalNotAllowed)
	}

	rc.ledger = runtime.NewCycleLedger(rc.cyclesAttached)
	worst := rc.coord.worstCaseOutcallCount(rc.req)*config.PerOutcallFee + config.BaseFee
	if err := rc.ledger.Accept(worst); err != nil {
		return types.NewError(types.NotEnoughCycles)
	}

	pair, tsMinute, err := normalizeRequest(rc.req)
	if err != nil {
		return types.NewOtherError(err.Error())
	}
	rc.pair, rc.tsMinute = pair, tsMinute
	return nil
}

// normalizeRequest defaults a missing Timestamp to now and minute-aligns
// whatever timestamp is in effect, so the cache, the inflight table, and
// every outcall URL agree on the same ts_minute for this request.
func normalizeRequest(req Request) (types.AssetPair, uint64, error) {
	ts := uint64(time.Now().Unix())
	if req.Timestamp != nil {
		ts = *req.Timestamp
	}
	return types.AssetPair{Base: req.BaseAsset, Quote: req.QuoteAsset}, types.MinuteAlign(ts), nil
}

// checkCache looks up the already-resolved rate for this exact (pair,
// minute). A hit retains only the base fee; everything else is refunded
// immediately since no outcall was issued.
func (rc *requestCtx) checkCache() (types.ExchangeRate, uint64, bool) {
	rate, ok := rc.coord.cache.Get(rc.pair, rc.tsMinute)
	if !ok {
		rc.coord.metrics.CacheMisses.Inc()
		return types.ExchangeRate{}, 0, false
	}
	rc.coord.metrics.CacheHits.Inc()
	return rate, rc.ledger.Refund(config.BaseFee), true
}

// checkInflight dedupes against an identical resolution already in progress.
// A dedupe hit costs the caller nothing beyond the retained base fee and
// does not count as a Failure — it is the caller's bad luck, not the
// engine's fault.
func (rc *requestCtx) checkInflight() *types.OracleError {
	release, ok := rc.coord.inflight.TryAcquire(rc.pair, rc.tsMinute)
	if !ok {
		rc.coord.metrics.Pending.Inc()
		return types.NewError(types.Pending)
	}
	rc.releaseInflight = release
	return nil
}

// plan runs admission control: privileged callers bypass it, everyone else
// competes for one of MaxConcurrentRequests concurrency slots.
func (rc *requestCtx) plan() *types.OracleError {
	if runtime.IsPrivileged(rc.caller, rc.coord.privileged) {
		return nil
	}
	if !rc.coord.acquireConcurrencySlot() {
		rc.coord.metrics.RateLimited.Inc()
		return types.NewError(types.RateLimited)
	}
	rc.releaseSlot = true
	return nil
}

// fetch issues the outcalls the pair's asset classes require and stashes the
// results in rc.legs for the aggregate stage.
func (rc *requestCtx) fetch() *types.OracleError {
	base, quote := rc.req.BaseAsset, rc.req.QuoteAsset

	switch {
	case base.Class == types.Crypto && quote.Class == types.Crypto:
		rc.legs.kind = pairCryptoCrypto
		baseLeg, err := rc.coord.fetchCryptoLeg(rc.ctx, base.Symbol, rc.tsMinute, rc.ledger, types.CryptoBaseAssetNotFound)
		if err != nil {
			return err
		}
		quoteLeg, err := rc.coord.fetchCryptoLeg(rc.ctx, quote.Symbol, rc.tsMinute, rc.ledger, types.CryptoQuoteAssetNotFound)
		if err != nil {
			return err
		}
		rc.legs.baseLeg, rc.legs.quoteLeg = baseLeg, quoteLeg
		return nil

	case base.Class == types.Crypto && quote.Class == types.Fiat:
		rc.legs.kind = pairCryptoFiat
		return rc.fetchCryptoFiatLegs(base.Symbol, quote.Symbol, types.CryptoBaseAssetNotFound, types.ForexQuoteAssetNotFound)

	case base.Class == types.Fiat && quote.Class == types.Crypto:
		rc.legs.kind = pairFiatCrypto
		return rc.fetchCryptoFiatLegs(quote.Symbol, base.Symbol, types.CryptoQuoteAssetNotFound, types.ForexBaseAssetNotFound)

	default:
		rc.legs.kind = pairFiatFiat
		return rc.fetchFiatFiatLegs()
	}
}

// fetchCryptoFiatLegs resolves the crypto leg, the stablecoin bridge, and the
// forex rate shared by both the crypto/fiat and fiat/crypto cases — the
// latter inverts the combined rate in the aggregate stage instead of
// re-deriving it here.
func (rc *requestCtx) fetchCryptoFiatLegs(cryptoSymbol, fiatSymbol string, cryptoNotFound, fiatNotFound types.ErrorCode) *types.OracleError {
	leg, err := rc.coord.fetchCryptoLeg(rc.ctx, cryptoSymbol, rc.tsMinute, rc.ledger, cryptoNotFound)
	if err != nil {
		return err
	}
	usdPerUSDT, err := rc.coord.resolveStablecoinBridge(rc.ctx, rc.tsMinute, rc.ledger)
	if err != nil {
		return err
	}
	fiatUnitsPerUSD, day, err := rc.coord.lookupForex(fiatSymbol, rc.tsMinute, fiatNotFound)
	if err != nil {
		return err
	}
	rc.legs.cryptoLeg = leg
	rc.legs.usdPerUSDT = usdPerUSDT
	rc.legs.fiatUnitsPerUSD = fiatUnitsPerUSD
	rc.legs.forexDay = day
	return nil
}

// fetchFiatFiatLegs resolves both sides' forex rates against USD. If both
// fail it's reported as ForexAssetsNotFound rather than just the base's
// error, so the caller isn't misled into thinking only one side is bad.
func (rc *requestCtx) fetchFiatFiatLegs() *types.OracleError {
	baseUnitsPerUSD, day, errBase := rc.coord.lookupForex(rc.pair.Base.Symbol, rc.tsMinute, types.ForexBaseAssetNotFound)
	quoteUnitsPerUSD, _, errQuote := rc.coord.lookupForex(rc.pair.Quote.Symbol, rc.tsMinute, types.ForexQuoteAssetNotFound)

	if errBase != nil && errQuote != nil {
		return types.NewError(types.ForexAssetsNotFound)
	}
	if errBase != nil {
		return errBase
	}
	if errQuote != nil {
		return errQuote
	}

	rc.legs.baseUnitsPerUSD = baseUnitsPerUSD
	rc.legs.quoteUnitsPerUSD = quoteUnitsPerUSD
	rc.legs.forexDay = day
	return nil
}

// aggregateStage combines the legs fetch gathered into the final scaled
// rate, inverting the crypto/fiat combination for the fiat/crypto case
// instead of duplicating CombineCryptoFiat's math in reverse.
func (rc *requestCtx) aggregateStage() *types.OracleError {
	switch rc.legs.kind {
	case pairCryptoCrypto:
		rc.rate = aggregate.CombineCryptoCrypto(rc.legs.baseLeg, rc.legs.quoteLeg)
	case pairCryptoFiat:
		rc.rate = aggregate.CombineCryptoFiat(rc.legs.cryptoLeg, rc.legs.usdPerUSDT, rc.legs.fiatUnitsPerUSD, rc.legs.forexDay)
	case pairFiatCrypto:
		direct := aggregate.CombineCryptoFiat(rc.legs.cryptoLeg, rc.legs.usdPerUSDT, rc.legs.fiatUnitsPerUSD, rc.legs.forexDay)
		rc.rate = invert(direct)
	case pairFiatFiat:
		rc.rate = aggregate.CombineFiatFiat(rc.legs.baseUnitsPerUSD, rc.legs.quoteUnitsPerUSD, rc.legs.forexDay)
	}
	if rc.rate.Rate == 0 {
		// The combine functions scale to 0 when the rate overflows uint64
		// (or rounds to nothing); neither is a usable rate.
		return types.NewOtherError("combined rate overflowed or rounded to zero during scaling")
	}
	rc.rate.Pair = rc.pair
	rc.rate.Timestamp = rc.tsMinute
	return nil
}

// reply is the pipeline's finalizer: every exit path from GetExchangeRate
// funnels through it so the RequestID correlation log line is written
// exactly once, win or lose.
func (rc *requestCtx) reply(rate types.ExchangeRate, refund uint64, err *types.OracleError) (types.ExchangeRate, uint64, *types.OracleError) {
	rc.spanStage("reply", func() *types.OracleError {
		if err != nil {
			log.Printf("coordinator: request %s failed in state %s: %s", rc.requestID, rc.state, err.Code)
		} else {
			log.Printf("coordinator: request %s resolved %s refunded %d cycles", rc.requestID, rc.pair, refund)
		}
		return nil
	})
	return rate, refund, err
}

// GetExchangeRate resolves one exchange-rate request end to end, advancing
// rc through every state in state.go's transition table as each pipeline
// stage completes.
func (c *Coordinator) GetExchangeRate(ctx context.Context, caller runtime.Principal, cyclesAttached uint64, req Request) (types.ExchangeRate, uint64, *types.OracleError) {
	c.metrics.TotalRequests.Inc()

	rc := &requestCtx{
		ctx:            ctx,
		coord:          c,
		caller:         caller,
		req:            req,
		cyclesAttached: cyclesAttached,
		requestID:      uuid.NewString(),
		state:          Received,
	}

	topSpan := c.startSpan(ctx, "get_exchange_rate")
	topSpan.SetTag("request_id", rc.requestID)
	defer topSpan.Finish()

	if err := rc.spanStage("validate", rc.validate); err != nil {
		rc.advance(Failing)
		return rc.reply(types.ExchangeRate{}, 0, err)
	}
	rc.advance(Validated)

	var (
		cachedRate  types.ExchangeRate
		cacheHit    bool
		cacheRefund uint64
	)
	rc.spanStage("checkCache", func() *types.OracleError {
		cachedRate, cacheRefund, cacheHit = rc.checkCache()
		return nil
	})
	if cacheHit {
		rc.advance(Replying)
		return rc.reply(cachedRate, cacheRefund, nil)
	}
	rc.advance(CheckedCache)

	if err := rc.spanStage("checkInflight", rc.checkInflight); err != nil {
		rc.advance(Failing)
		return rc.reply(types.ExchangeRate{}, rc.ledger.Refund(config.BaseFee), err)
	}
	rc.advance(CheckedInflight)
	// The inflight entry is held until reply below has run, on every return
	// path and during a panic unwind; Guard only recovers stage panics.
	defer rc.releaseInflight()

	var guardedErr *types.OracleError
	runErr := Guard(func() {}, func() error {
		defer func() {
			if rc.releaseSlot {
				c.releaseConcurrencySlot()
			}
		}()

		if err := rc.spanStage("plan", rc.plan); err != nil {
			guardedErr = err
			return err
		}
		rc.advance(Planning)

		if err := rc.spanStage("fetch", rc.fetch); err != nil {
			guardedErr = err
			return err
		}
		rc.advance(Fetching)

		if err := rc.spanStage("aggregate", rc.aggregateStage); err != nil {
			guardedErr = err
			return err
		}
		rc.advance(Aggregating)

		return nil
	})

	if runErr != nil {
		rc.advance(Failing)
		c.metrics.Failures.Inc()
		if guardedErr != nil {
			return rc.reply(types.ExchangeRate{}, 0, guardedErr)
		}
		return rc.reply(types.ExchangeRate{}, 0, types.NewOtherError(runErr.Error()))
	}

	rc.advance(Replying)
	c.cache.Put(rc.pair, rc.tsMinute, rc.rate)
	refund := rc.ledger.Refund(config.BaseFee)
	return rc.reply(rc.rate, refund, nil)
}
