// Package forex maintains the in-memory (day, fiat-symbol) -> rate-against-USD
// map the engine consults for any fiat leg. Refreshed once per UTC day by the
// periodic task; write-through cached into Redis the way the teacher's
// forex_aggregator_service.go write-throughs completed OHLC bars, so a
// restarted process can warm from Redis instead of starting cold.
package forex

import (
	"context"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"exchangerateoracle/internal/oracle/types"
)

// Store is the process-wide forex rate cache. The Coordinator owns the one
// instance created at boot.
type Store struct {
	mu   sync.RWMutex
	days map[uint64]map[string]decimal.Decimal // dayStart -> symbol -> rate vs USD

	redis *redis.Client // optional; nil degrades to in-memory only

	// WeekendRetreatOverride disables the weekend-retreat policy for
	// tests (spec §4.5: "this weekend-retreat policy has an override
	// flag used during testing").
	WeekendRetreatOverride bool
}

func New(redisClient *redis.Client) *Store {
	return &Store{
		days:  make(map[uint64]map[string]decimal.Decimal),
		redis: redisClient,
	}
}

// Put overwrites the entry for a day atomically with a fresh snapshot and
// write-throughs it to Redis when available.
func (s *Store) Put(ctx context.Context, dayStart uint64, rates map[string]decimal.Decimal) {
	snapshot := make(map[string]decimal.Decimal, len(rates))
	for k, v := range rates {
		snapshot[k] = v
	}

	s.mu.Lock()
	s.days[dayStart] = snapshot
	s.mu.Unlock()

	if s.redis != nil {
		s.writeThrough(ctx, dayStart, snapshot)
	}
}

func (s *Store) writeThrough(ctx context.Context, dayStart uint64, rates map[string]decimal.Decimal) {
	key := fmt.Sprintf("forex:day:%d", dayStart)
	fields := make(map[string]interface{}, len(rates))
	for symbol, rate := range rates {
		fields[symbol] = rate.String()
	}
	if err := s.redis.HSet(ctx, key, fields).Err(); err != nil {
		log.Printf("forex store: redis write-through failed for day %d: %v", dayStart, err)
		return
	}
	s.redis.Expire(ctx, key, 30*24*time.Hour)
}

// WarmFromRedis loads a day's entry from Redis into memory if it is not
// already present locally. Used at boot before the first scheduled refresh.
func (s *Store) WarmFromRedis(ctx context.Context, dayStart uint64) {
	if s.redis == nil {
		return
	}
	s.mu.RLock()
	_, have := s.days[dayStart]
	s.mu.RUnlock()
	if have {
		return
	}

	key := fmt.Sprintf("forex:day:%d", dayStart)
	fields, err := s.redis.HGetAll(ctx, key).Result()
	if err != nil || len(fields) == 0 {
		return
	}
	rates := make(map[string]decimal.Decimal, len(fields))
	for symbol, raw := range fields {
		d, err := decimal.NewFromString(raw)
		if err != nil {
			continue
		}
		rates[symbol] = d
	}
	if len(rates) > 0 {
		s.mu.Lock()
		s.days[dayStart] = rates
		s.mu.Unlock()
	}
}

// Lookup resolves symbol's rate-against-USD for the day containing ts,
// retreating to the nearest prior open day when ts falls on a weekend
// (unless WeekendRetreatOverride is set). Fails with ForexInvalidTimestamp
// when no entry exists for the resolved day.
func (s *Store) Lookup(ts uint64, symbol string) (decimal.Decimal, uint64, *types.OracleError) {
	day := types.DayAlign(ts)
	if !s.WeekendRetreatOverride {
		day = retreatFromWeekend(day)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rates, ok := s.days[day]
	if !ok {
		return decimal.Decimal{}, 0, types.NewError(types.ForexInvalidTimestamp)
	}
	rate, ok := rates[symbol]
	if !ok {
		return decimal.Decimal{}, 0, types.NewError(types.ForexInvalidTimestamp)
	}
	return rate, day, nil
}

// retreatFromWeekend walks a day-aligned timestamp back to the nearest prior
// weekday (Mon-Fri) when it lands on Saturday or Sunday.
func retreatFromWeekend(dayStart uint64) uint64 {
	t := time.Unix(int64(dayStart), 0).UTC()
	for t.Weekday() == time.Saturday || t.Weekday() == time.Sunday {
		t = t.AddDate(0, 0, -1)
	}
	return uint64(t.Unix())
}

// Median computes the per-symbol median across multiple sources' baskets,
// used by the periodic refresh task after all forex sources respond.
func Median(bySource map[string]map[string]decimal.Decimal) map[string]decimal.Decimal {
	bySymbol := make(map[string][]decimal.Decimal)
	for _, basket := range bySource {
		for symbol, rate := range basket {
			bySymbol[symbol] = append(bySymbol[symbol], rate)
		}
	}

	out := make(map[string]decimal.Decimal, len(bySymbol))
	for symbol, values := range bySymbol {
		sorted := make([]decimal.Decimal, len(values))
		copy(sorted, values)
		sort.Slice(sorted, func(i, j int) bool { return sorted[i].Cmp(sorted[j]) < 0 })
		n := len(sorted)
		if n%2 == 1 {
			out[symbol] = sorted[n/2]
		} else {
			out[symbol] = sorted[n/2-1].Add(sorted[n/2]).Div(decimal.NewFromInt(2))
		}
	}
	return out
}
