// Package cache memoises computed statistics in Redis, keyed by a hash of
// the operation and the exact input texts, so a changed document can never
// be served a stale result. Concurrent identical computations are collapsed
// with singleflight. Redis failures degrade to recomputation behind a
// circuit breaker.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/metrics"
	pkgredis "github.com/Adithya-Monish-Kumar-K/docstats/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/docstats/pkg/resilience"
)

const keyPrefix = "docstats:"

// Backend is the subset of *pkgredis.Client the cache needs.
type Backend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
	CountByPattern(ctx context.Context, pattern string) (int64, error)
}

type ResultCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	breaker *resilience.Breaker
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New returns a cache over backend. A nil backend disables storage but
// keeps request collapsing. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ResultCache {
	c := &ResultCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "result-cache"),
	}
	c.breaker = resilience.NewBreaker("redis-cache", resilience.BreakerConfig{
		Threshold: 5,
		Cooldown:  30 * time.Second,
		OnStateChange: func(name string, _, to resilience.State) {
			if m != nil {
				m.CircuitBreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
	})
	return c
}

// Key derives a cache key from the operation name and its inputs. Each part
// is length-prefixed so ("ab","c") and ("a","bc") differ.
func Key(op string, parts ...string) string {
	h := sha256.New()
	var n [8]byte
	for _, p := range append([]string{op}, parts...) {
		binary.BigEndian.PutUint64(n[:], uint64(len(p)))
		h.Write(n[:])
		h.Write([]byte(p))
	}
	return keyPrefix + op + ":" + hex.EncodeToString(h.Sum(nil)[:16])
}

// GetOrCompute returns the cached value under key or runs compute, stores
// its result and returns it. The bool reports a cache hit. Errors from
// compute are returned as-is and never cached.
func GetOrCompute[T any](ctx context.Context, c *ResultCache, key string, compute func() (T, error)) (T, bool, error) {
	var v T
	if c.load(ctx, key, &v) {
		c.hit()
		return v, true, nil
	}
	if c.backend != nil {
		c.miss()
	}
	val, err, _ := c.group.Do(key, func() (any, error) {
		// A caller that finished while this one waited may have stored it;
		// the miss is already counted.
		var cached T
		if c.load(ctx, key, &cached) {
			return cached, nil
		}
		result, err := compute()
		if err != nil {
			return nil, err
		}
		c.set(ctx, key, result)
		return result, nil
	})
	if err != nil {
		var zero T
		return zero, false, err
	}
	return val.(T), false, nil
}

// load reads key into dst without touching the hit/miss counters.
func (c *ResultCache) load(ctx context.Context, key string, dst any) bool {
	if c.backend == nil {
		return false
	}
	var data string
	found := false
	err := c.breaker.Do(func() error {
		var err error
		data, err = c.backend.Get(ctx, key)
		if pkgredis.IsMiss(err) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil {
		c.logger.Warn("cache get failed", "key", key, "error", err)
	}
	if !found {
		return false
	}
	if err := json.Unmarshal([]byte(data), dst); err != nil {
		c.logger.Error("cache unmarshal failed", "key", key, "error", err)
		return false
	}
	return true
}

func (c *ResultCache) set(ctx context.Context, key string, value any) {
	if c.backend == nil {
		return
	}
	data, err := json.Marshal(value)
	if err != nil {
		c.logger.Error("cache marshal failed", "key", key, "error", err)
		return
	}
	err = c.breaker.Do(func() error {
		return c.backend.Set(ctx, key, string(data), c.ttl)
	})
	if err != nil {
		c.logger.Warn("cache set failed", "key", key, "error", err)
	}
}

// Invalidate drops every cached result and returns how many were removed.
func (c *ResultCache) Invalidate(ctx context.Context) (int64, error) {
	if c.backend == nil {
		return 0, nil
	}
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return deleted, fmt.Errorf("invalidating cache: %w", err)
	}
	if c.metrics != nil {
		c.metrics.CacheInvalidations.Inc()
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

// Stats reports hit/miss counters and, when a backend is configured, the
// number of stored results.
type Stats struct {
	Enabled  bool                     `json:"enabled"`
	Hits     int64                    `json:"hits"`
	Misses   int64                    `json:"misses"`
	Entries  int64                    `json:"entries"`
	Breaker  string                   `json:"circuit_breaker"`
	Counters resilience.BreakerCounts `json:"circuit_breaker_counts"`
}

func (c *ResultCache) Stats(ctx context.Context) Stats {
	s := Stats{
		Enabled: c.backend != nil,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	s.Counters = c.breaker.Counts()
	s.Breaker = s.Counters.State.String()
	if c.backend != nil {
		n, err := c.backend.CountByPattern(ctx, keyPrefix+"*")
		if err != nil {
			c.logger.Warn("counting cache entries failed", "error", err)
		}
		s.Entries = n
	}
	return s
}

func (c *ResultCache) hit() {
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
}

func (c *ResultCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}
