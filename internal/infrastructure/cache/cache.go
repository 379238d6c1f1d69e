// Package cache memoizes expensive statistics computations.
//
// Results are keyed by a canonical fingerprint of the request and kept for a
// TTL. Expiry is checked lazily on read against an injectable clock; there
// is no background sweeper, so the store is bounded instead.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/grade-analytics/internal/domain/shared"
	"github.com/alem-hub/grade-analytics/pkg/logger"
	"github.com/alem-hub/grade-analytics/pkg/timeutil"
)

// DefaultTTL applies when a caller passes a non-positive TTL.
const DefaultTTL = 5 * time.Minute

// Options configures a Cache.
type Options struct {
	// Store holds entries. Nil means an in-memory LRU of MaxEntries.
	Store Store

	// Backend labels metrics ("memory", "redis").
	Backend string

	MaxEntries int
	DefaultTTL time.Duration
	Clock      timeutil.Clock
	Registerer prometheus.Registerer
	Logger     *logger.Logger
}

// Cache is the statistics cache. Safe for concurrent use.
type Cache struct {
	store      Store
	clock      timeutil.Clock
	defaultTTL time.Duration
	metrics    *metrics
	flight     singleflight.Group
	log        *logger.Logger
}

// New creates a cache.
func New(opts Options) *Cache {
	if opts.Clock == nil {
		opts.Clock = timeutil.SystemClock{}
	}
	if opts.DefaultTTL <= 0 {
		opts.DefaultTTL = DefaultTTL
	}
	if opts.Logger == nil {
		opts.Logger = logger.Nop()
	}
	if opts.Backend == "" {
		opts.Backend = "memory"
	}

	c := &Cache{
		clock:      opts.Clock,
		defaultTTL: opts.DefaultTTL,
		metrics:    newMetrics(opts.Registerer, opts.Backend),
		log:        opts.Logger.With(logger.Component("stats_cache")),
	}

	c.store = opts.Store
	if c.store == nil {
		c.store = NewMemoryStore(opts.MaxEntries, func(key string) {
			c.metrics.record(eventEviction)
			c.log.Debug("cache entry evicted", logger.Fingerprint(key))
		})
	}
	return c
}

// flightResult is shared between deduplicated callers.
type flightResult struct {
	value   any
	payload []byte
}

// GetOrCompute returns the cached result for request, or runs compute and
// stores its result for ttl. cached reports whether the value was served
// from the store.
//
// An entry is valid while now < ExpiresAt; an expired entry is deleted on
// read and treated as a miss. Concurrent misses on one fingerprint run
// compute once; every caller of that flight gets cached=false. Store
// failures are logged and degrade to computing. Errors from compute are
// returned unchanged and nothing is stored.
func GetOrCompute[T any](ctx context.Context, c *Cache, request any, ttl time.Duration, compute func() (T, error)) (T, bool, error) {
	var zero T

	key, err := Fingerprint(request)
	if err != nil {
		return zero, false, shared.WrapError("cache", "GetOrCompute", shared.ErrInvalidInput, "request cannot be fingerprinted", err)
	}
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	if payload, ok := c.lookup(ctx, key); ok {
		var v T
		if err := json.Unmarshal(payload, &v); err == nil {
			c.metrics.record(eventHit)
			return v, true, nil
		}
		c.log.Warn("dropping undecodable cache entry", logger.Fingerprint(key))
		c.deleteQuietly(ctx, key)
	}
	c.metrics.record(eventMiss)

	res, err, _ := c.flight.Do(key, func() (any, error) {
		v, err := compute()
		if err != nil {
			return nil, err
		}
		payload, err := json.Marshal(v)
		if err != nil {
			c.log.Warn("result not cacheable", logger.Fingerprint(key), logger.Err(err))
			return flightResult{value: v}, nil
		}
		entry := Entry{Fingerprint: key, Payload: payload, ExpiresAt: c.clock.Now().Add(ttl)}
		if err := c.store.Set(ctx, entry); err != nil {
			c.metrics.record(eventStoreError)
			c.log.Warn("cache store write failed", logger.Fingerprint(key), logger.Err(err))
		}
		return flightResult{value: v, payload: payload}, nil
	})
	if err != nil {
		return zero, false, err
	}

	fr := res.(flightResult)
	if v, ok := fr.value.(T); ok {
		return v, false, nil
	}
	// same fingerprint computed by a caller with a different result type
	var v T
	if err := json.Unmarshal(fr.payload, &v); err != nil {
		return zero, false, fmt.Errorf("cache: shared result has type %T: %w", fr.value, err)
	}
	return v, false, nil
}

// lookup returns a valid payload for key, deleting it when expired.
func (c *Cache) lookup(ctx context.Context, key string) ([]byte, bool) {
	entry, found, err := c.store.Get(ctx, key)
	if err != nil {
		c.metrics.record(eventStoreError)
		c.log.Warn("cache store read failed", logger.Fingerprint(key), logger.Err(err))
		return nil, false
	}
	if !found {
		return nil, false
	}
	if entry.Expired(c.clock.Now()) {
		c.metrics.record(eventExpiration)
		c.deleteQuietly(ctx, key)
		return nil, false
	}
	return entry.Payload, true
}

func (c *Cache) deleteQuietly(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.metrics.record(eventStoreError)
		c.log.Warn("cache store delete failed", logger.Fingerprint(key), logger.Err(err))
	}
}

// Invalidate removes the entry for request.
func (c *Cache) Invalidate(ctx context.Context, request any) error {
	key, err := Fingerprint(request)
	if err != nil {
		return err
	}
	return c.store.Delete(ctx, key)
}

// Clear removes every entry.
func (c *Cache) Clear(ctx context.Context) error {
	return c.store.Clear(ctx)
}

// Stats returns a snapshot of cache counters and the current entry count.
func (c *Cache) Stats(ctx context.Context) Stats {
	s := c.metrics.snapshot()
	if n, err := c.store.Len(ctx); err == nil {
		s.Entries = n
	}
	return s
}
