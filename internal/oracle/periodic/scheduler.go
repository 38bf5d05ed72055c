// Package periodic runs the engine's two background tasks on a cron
// schedule: the daily forex basket refresh and the rate-cache sweep.
// Grounded on the teacher's own cron.New()/AddFunc/Start lifecycle in
// internal/services/partition_manager_service.go.
package periodic

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/config"
	"exchangerateoracle/internal/oracle/coordinator"
	"exchangerateoracle/internal/oracle/extract"
	"exchangerateoracle/internal/oracle/forex"
	"exchangerateoracle/internal/oracle/outcall"
	"exchangerateoracle/internal/oracle/registry"
	"exchangerateoracle/internal/oracle/types"
)

// Scheduler owns the cron instance and the dependencies its jobs need.
type Scheduler struct {
	cron        *cron.Cron
	registry    *registry.Registry
	driver      *outcall.Driver
	forexStore  *forex.Store
	coordinator *coordinator.Coordinator
}

func New(reg *registry.Registry, driver *outcall.Driver, forexStore *forex.Store, coord *coordinator.Coordinator) *Scheduler {
	return &Scheduler{
		cron:        cron.New(),
		registry:    reg,
		driver:      driver,
		forexStore:  forexStore,
		coordinator: coord,
	}
}

// Start registers both jobs and runs an initial forex refresh immediately
// so the store is warm before the first fiat-leg request arrives.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(config.ForexRefreshSchedule, func() {
		s.refreshForex(ctx)
	}); err != nil {
		return fmt.Errorf("periodic: failed to schedule forex refresh: %w", err)
	}

	if _, err := s.cron.AddFunc(config.CacheSweepSchedule, func() {
		s.sweepCache()
	}); err != nil {
		return fmt.Errorf("periodic: failed to schedule cache sweep: %w", err)
	}

	go s.refreshForex(ctx)

	s.cron.Start()
	log.Printf("periodic: scheduler started (forex=%q sweep=%q)", config.ForexRefreshSchedule, config.CacheSweepSchedule)
	return nil
}

// Stop drains running jobs before returning.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
}

// refreshForex fetches every forex provider's basket, medians them per
// symbol, and writes the result into the store for today's day bucket
// (spec.md §4.5: the forex store is refreshed once per UTC day).
func (s *Scheduler) refreshForex(ctx context.Context) {
	day := types.DayAlign(uint64(time.Now().Unix()))
	bySource := make(map[string]map[string]decimal.Decimal)

	for _, src := range s.registry.ForexSources() {
		basket, err := s.fetchForexBasket(ctx, src, day)
		if err != nil {
			log.Printf("periodic: forex source %s failed: %v", src.ID, err)
			continue
		}
		bySource[src.ID] = basket
	}

	if len(bySource) == 0 {
		log.Printf("periodic: forex refresh for day %d found no usable sources", day)
		return
	}

	medianed := forex.Median(bySource)
	s.forexStore.Put(ctx, day, medianed)
	log.Printf("periodic: forex refresh for day %d updated %d symbols from %d sources", day, len(medianed), len(bySource))
}

// fetchForexBasket resolves one provider's symbol->rate basket for day.
// Basket providers (frankfurter, exchangerate-host) return every currency
// in one call, parsed by ExtractForexBasketRates. Single-pair providers
// (alphavantage) are registered in extract.Registry instead and need one
// outcall per symbol, each extracted individually and assembled into a
// basket here.
func (s *Scheduler) fetchForexBasket(ctx context.Context, src registry.Source, day uint64) (map[string]decimal.Decimal, error) {
	if fn, ok := extract.Registry[src.ID]; ok {
		symbols := src.SymbolList()
		basket := make(map[string]decimal.Decimal, len(symbols))
		for _, symbol := range symbols {
			url := src.BuildURL(symbol, day)
			res, err := s.driver.Fetch(ctx, src.ID, url, extract.MaxBodyBytes)
			if err != nil {
				log.Printf("periodic: forex source %s symbol %s failed: %v", src.ID, symbol, err)
				continue
			}
			sample, err := fn(src.ID, res.Body, day)
			if err != nil {
				log.Printf("periodic: forex source %s symbol %s extraction failed: %v", src.ID, symbol, err)
				continue
			}
			basket[symbol] = decimal.New(int64(sample.Value), -int32(types.Decimals))
		}
		if len(basket) == 0 {
			return nil, fmt.Errorf("no symbols resolved for single-pair source %s", src.ID)
		}
		return basket, nil
	}

	url := src.BuildURL("", day)
	res, err := s.driver.Fetch(ctx, src.ID, url, extract.MaxBodyBytes)
	if err != nil {
		return nil, err
	}
	return extract.ExtractForexBasketRates(src.ID, res.Body)
}

// sweepCache evicts expired cache entries so memory does not grow
// unbounded across minutes nobody queries again.
func (s *Scheduler) sweepCache() {
	n := s.coordinator.Cache().SweepExpired(time.Now())
	if n > 0 {
		log.Printf("periodic: cache sweep evicted %d expired entries", n)
	}
}
