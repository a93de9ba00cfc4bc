// Package callcache deduplicates identical provider calls within a
// TTL window. Concurrent requests for the same key share one in-flight
// fetch; only successful, cacheable results are ever stored, so an
// error or a bad quote is never served stale.
package callcache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"

	"github.com/openfold/brokergate/internal/provider"
	"golang.org/x/sync/singleflight"
)

// flightTimeout bounds a detached fetch once every caller has walked
// away from it.
const flightTimeout = 30 * time.Second

// Key builds a stable cache key from the provider, operation and a
// request fingerprint. BuildURL output is deterministic for identical
// params, so the fingerprint is typically method+url+body.
func Key(providerID string, op provider.Operation, fingerprint string) string {
	sum := sha256.Sum256([]byte(fingerprint))
	return providerID + ":" + string(op) + ":" + hex.EncodeToString(sum[:8])
}

// FetchFunc performs the network call on a cache miss. cacheable=false
// keeps a successful result out of the cache (zero-price quotes);
// errors are never cached regardless.
type FetchFunc func(ctx context.Context) (result *provider.RawResult, cacheable bool, err error)

type entry struct {
	payload  *provider.RawResult
	storedAt time.Time
	ttl      time.Duration
}

func (e entry) fresh(now time.Time) bool {
	return now.Before(e.storedAt.Add(e.ttl))
}

// Cache is a TTL call cache with per-key dedup.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]entry
	group   singleflight.Group
	now     func() time.Time

	hits   uint64
	misses uint64
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// NewWithClock creates a cache with a fixed clock (for testing).
func NewWithClock(now func() time.Time) *Cache {
	c := New()
	c.now = now
	return c
}

// GetOrFetch returns the cached payload for key if fresh, otherwise
// runs fetch. Concurrent callers with the same key share a single
// fetch and all receive its result. A cancelled caller detaches
// without aborting the shared fetch for the others; a fetch that
// errors leaves the key empty.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (*provider.RawResult, bool, error) {
	if ttl > 0 {
		if payload, ok := c.get(key); ok {
			return payload, true, nil
		}
	}

	ch := c.group.DoChan(key, func() (any, error) {
		// The flight is shared: it must not die with the caller that
		// happened to start it. Detach from the caller's cancellation
		// but keep a hard bound so an abandoned flight cannot hang.
		fctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), flightTimeout)
		defer cancel()

		// A concurrent flight may have committed between our miss and
		// the flight starting.
		if ttl > 0 {
			if payload, ok := c.get(key); ok {
				return payload, nil
			}
		}

		payload, cacheable, err := fetch(fctx)
		if err != nil {
			return nil, err
		}
		if ttl > 0 && cacheable {
			c.put(key, payload, ttl)
		}
		return clone(payload), nil
	})

	select {
	case <-ctx.Done():
		// Leave the flight running for the callers still waiting on
		// it; this caller just stops waiting.
		c.group.Forget(key)
		return nil, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, false, res.Err
		}
		payload, _ := res.Val.(*provider.RawResult)
		return clone(payload), res.Shared, res.Err
	}
}

func (c *Cache) get(key string) (*provider.RawResult, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()

	if !ok {
		c.miss()
		return nil, false
	}
	if !e.fresh(c.now()) {
		// Lazy eviction on read.
		c.mu.Lock()
		if cur, still := c.entries[key]; still && !cur.fresh(c.now()) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		c.miss()
		return nil, false
	}
	c.hit()
	return clone(e.payload), true
}

func (c *Cache) put(key string, payload *provider.RawResult, ttl time.Duration) {
	c.mu.Lock()
	c.entries[key] = entry{payload: clone(payload), storedAt: c.now(), ttl: ttl}
	c.mu.Unlock()
}

// Sweep evicts every expired entry and reports how many were removed.
// Eviction is otherwise lazy; a periodic sweep keeps a long-running
// process from accumulating dead entries.
func (c *Cache) Sweep() int {
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for k, e := range c.entries {
		if !e.fresh(now) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of live entries, expired or not.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Stats returns cumulative hit and miss counts.
func (c *Cache) Stats() (hits, misses uint64) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.hits, c.misses
}

func (c *Cache) hit() {
	c.mu.Lock()
	c.hits++
	c.mu.Unlock()
}

func (c *Cache) miss() {
	c.mu.Lock()
	c.misses++
	c.mu.Unlock()
}

// clone copies a result so callers never hold references into the
// cache's internal store.
func clone(r *provider.RawResult) *provider.RawResult {
	if r == nil {
		return nil
	}
	out := *r
	out.Body = append([]byte(nil), r.Body...)
	return &out
}
