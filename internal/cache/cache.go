// Package cache keeps recent orchestrator results in memory for the HTTP
// layer and coalesces identical in-flight requests.
package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"marketfeed/internal/aggregate"
	"marketfeed/internal/provider"
)

// StaleWarning is attached to a result served from an expired entry after a
// refresh produced no data.
const StaleWarning = "served from cache after refresh failure"

// entry stores one result with its expiry.
type entry struct {
	expiresAt time.Time
	snap      aggregate.Snapshot
}

// FetchFunc produces a fresh result for a request.
type FetchFunc func(ctx context.Context, req provider.Request) provider.Result

// Results caches one result per (kind, asset, timeframe) for a TTL.
// Only results without an error are served from cache while fresh.
type Results struct {
	TTL      time.Duration
	MaxItems int
	// Stale is how long past expiry an entry may still back a failed refresh.
	// Zero disables stale serving.
	Stale time.Duration

	now func() time.Time

	mu    sync.RWMutex
	items map[string]entry
	sf    singleflight.Group
}

// New builds a cache. ttl <= 0 disables caching but keeps coalescing.
func New(ttl time.Duration, maxItems int) *Results {
	return &Results{TTL: ttl, MaxItems: maxItems, Stale: ttl, now: time.Now}
}

// Key identifies a request in the cache.
func Key(req provider.Request) string {
	return strings.Join([]string{string(req.Kind), strings.ToUpper(req.AssetID), req.TimeframeID}, "|")
}

func (c *Results) clock() time.Time {
	if c.now == nil {
		return time.Now()
	}
	return c.now()
}

// Get returns the cached result for req when it is fresh and error free.
func (c *Results) Get(req provider.Request) (provider.Result, bool) {
	if c.TTL <= 0 {
		return provider.Result{}, false
	}
	c.mu.RLock()
	e, ok := c.items[Key(req)]
	c.mu.RUnlock()
	if !ok || !c.clock().Before(e.expiresAt) || e.snap.Result.Error != "" {
		return provider.Result{}, false
	}
	return e.snap.Result, true
}

// Put stores res for req.
func (c *Results) Put(req provider.Request, res provider.Result) {
	if c.TTL <= 0 {
		return
	}
	now := c.clock()
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items == nil {
		c.items = make(map[string]entry)
	}
	c.items[Key(req)] = entry{
		expiresAt: now.Add(c.TTL),
		snap: aggregate.Snapshot{
			AssetID:    req.AssetID,
			Kind:       req.Kind,
			Timeframe:  req.TimeframeID,
			Result:     res,
			ReceivedAt: now.UTC(),
		},
	}
	c.evict(now)
}

// evict caps the cache size: dead entries first, then the oldest by
// ReceivedAt. Caller holds mu.
func (c *Results) evict(now time.Time) {
	if c.MaxItems <= 0 || len(c.items) <= c.MaxItems {
		return
	}
	for k, v := range c.items {
		if now.After(v.expiresAt.Add(c.Stale)) {
			delete(c.items, k)
		}
	}
	for len(c.items) > c.MaxItems {
		oldest := ""
		for k, v := range c.items {
			if oldest == "" || v.snap.ReceivedAt.Before(c.items[oldest].snap.ReceivedAt) {
				oldest = k
			}
		}
		delete(c.items, oldest)
	}
}

// Fetch returns a fresh cached result or runs fn once for all concurrent
// callers of the same request. When fn yields no data and an expired entry
// with data is still within the stale window, that entry is returned with
// StaleWarning attached.
func (c *Results) Fetch(ctx context.Context, req provider.Request, fn FetchFunc) provider.Result {
	if res, ok := c.Get(req); ok {
		return res
	}
	key := Key(req)
	v, _, _ := c.sf.Do(key, func() (any, error) {
		res := fn(ctx, req)
		if res.Fields.Empty() {
			if stale, ok := c.stale(key); ok {
				return stale, nil
			}
		}
		c.Put(req, res)
		return res, nil
	})
	return v.(provider.Result)
}

func (c *Results) stale(key string) (provider.Result, bool) {
	if c.Stale <= 0 {
		return provider.Result{}, false
	}
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()
	if !ok || e.snap.Result.Fields.Empty() || c.clock().After(e.expiresAt.Add(c.Stale)) {
		return provider.Result{}, false
	}
	res := e.snap.Result
	res.Warnings = append(append([]string(nil), res.Warnings...), StaleWarning)
	return res, true
}

// Snapshots returns every stored result, including expired ones not yet
// evicted.
func (c *Results) Snapshots() []aggregate.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]aggregate.Snapshot, 0, len(c.items))
	for _, e := range c.items {
		out = append(out, e.snap)
	}
	return out
}
