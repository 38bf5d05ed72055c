package coordinator

import (
	"container/list"
	"sync"
	"time"

	"exchangerateoracle/internal/oracle/types"
)

// cacheKey identifies one (pair, minute) rate-cache entry.
type cacheKey struct {
	pair     types.AssetPair
	tsMinute uint64
}

type cacheEntry struct {
	key     cacheKey
	rate    types.ExchangeRate
	expires time.Time
}

// RateCache is a capacity-bounded, least-recently-used cache of resolved
// exchange rates, keyed by (pair, ts_minute) with a TTL of one minute past
// the timestamp's minute (spec.md §3). None of the retrieval pack's caching
// libraries (patrickmn/go-cache, Redis) support capacity-bounded
// least-recent eviction — go-cache is TTL-only and Redis eviction is a
// server-side policy, not something a Go client programs per-cache — so this
// is hand-rolled over container/list, the idiomatic stdlib LRU primitive.
type RateCache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[cacheKey]*list.Element
}

func NewRateCache(capacity int) *RateCache {
	return &RateCache{
		capacity: capacity,
		ll:       list.New(),
		items:    make(map[cacheKey]*list.Element),
	}
}

// Get returns the cached rate for (pair, tsMinute) if present and not
// expired, promoting it to most-recently-used.
func (c *RateCache) Get(pair types.AssetPair, tsMinute uint64) (types.ExchangeRate, bool) {
	key := cacheKey{pair: pair, tsMinute: tsMinute}

	c.mu.Lock()
	defer c.mu.Unlock()

	el, ok := c.items[key]
	if !ok {
		return types.ExchangeRate{}, false
	}
	entry := el.Value.(*cacheEntry)
	if time.Now().After(entry.expires) {
		c.removeLocked(el)
		return types.ExchangeRate{}, false
	}
	c.ll.MoveToFront(el)
	return entry.rate, true
}

// Put inserts or replaces the entry for (pair, tsMinute), evicting the
// least-recently-used entry if the cache is at capacity.
func (c *RateCache) Put(pair types.AssetPair, tsMinute uint64, rate types.ExchangeRate) {
	key := cacheKey{pair: pair, tsMinute: tsMinute}
	expires := minuteExpiry(tsMinute)

	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		el.Value.(*cacheEntry).rate = rate
		el.Value.(*cacheEntry).expires = expires
		c.ll.MoveToFront(el)
		return
	}

	entry := &cacheEntry{key: key, rate: rate, expires: expires}
	el := c.ll.PushFront(entry)
	c.items[key] = el

	if c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		if oldest != nil {
			c.removeLocked(oldest)
		}
	}
}

// SweepExpired drops every entry whose TTL has passed, independent of LRU
// order. Called by the periodic cache-sweep task.
func (c *RateCache) SweepExpired(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for el := c.ll.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*cacheEntry)
		if now.After(entry.expires) {
			c.removeLocked(el)
			removed++
		}
		el = prev
	}
	return removed
}

func (c *RateCache) removeLocked(el *list.Element) {
	entry := el.Value.(*cacheEntry)
	delete(c.items, entry.key)
	c.ll.Remove(el)
}

// minuteExpiry is one minute past the timestamp's minute, or the next
// minute boundary, whichever rule applies per spec.md §3 — in practice the
// later of (tsMinute+120) and (now rounded up to the next minute boundary),
// so a rate requested for a timestamp in the past still gets at least until
// the next minute boundary to serve duplicate requests from cache.
func minuteExpiry(tsMinute uint64) time.Time {
	byTimestamp := time.Unix(int64(tsMinute)+120, 0)
	nextBoundary := time.Now().Truncate(time.Minute).Add(time.Minute)
	if byTimestamp.After(nextBoundary) {
		return byTimestamp
	}
	return nextBoundary
}
