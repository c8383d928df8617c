package cache

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/fjod/storefront/internal/kvstore"
	"github.com/sirupsen/logrus"
)

const (
	DefaultTTL = 5 * time.Minute

	// KeyPrefix namespaces cache entries in the shared store.
	KeyPrefix = "cache_"
)

// Cache is what read paths depend on; ResponseCache implements it.
type Cache interface {
	Get(ctx context.Context, key string, dst any) bool
	Set(ctx context.Context, key string, value any)
	SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration)
	Remove(ctx context.Context, key string)
	Clear(ctx context.Context, keys ...string)
}

type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
	ExpiresAt int64           `json:"expiresAt"`
}

// ResponseCache stores JSON payloads with a per-entry expiry. Expired entries
// are evicted when read. Storage failures are logged and turn into misses.
type ResponseCache struct {
	store  kvstore.Store
	ttl    time.Duration
	jitter time.Duration
	now    func() time.Time
	log    logrus.FieldLogger
}

type Option func(*ResponseCache)

func WithTTL(ttl time.Duration) Option {
	return func(c *ResponseCache) { c.ttl = ttl }
}

func WithClock(now func() time.Time) Option {
	return func(c *ResponseCache) { c.now = now }
}

// WithJitter bounds the random slack added to the store-level expiry.
func WithJitter(d time.Duration) Option {
	return func(c *ResponseCache) { c.jitter = d }
}

func NewResponseCache(store kvstore.Store, log logrus.FieldLogger, opts ...Option) *ResponseCache {
	c := &ResponseCache{
		store:  kvstore.Namespace(store, KeyPrefix),
		ttl:    DefaultTTL,
		jitter: time.Minute,
		now:    time.Now,
		log:    log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *ResponseCache) TTL() time.Duration { return c.ttl }

func (c *ResponseCache) Set(ctx context.Context, key string, value any) {
	c.SetWithTTL(ctx, key, value, c.ttl)
}

func (c *ResponseCache) SetWithTTL(ctx context.Context, key string, value any, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.ttl
	}
	logger := c.log.WithField("key", key)

	data, err := json.Marshal(value)
	if err != nil {
		logger.WithError(err).Warn("marshal cache value failed")
		c.dropStale(ctx, key)
		return
	}

	now := c.now()
	raw, err := json.Marshal(entry{
		Data:      data,
		Timestamp: now.UnixMilli(),
		ExpiresAt: now.Add(ttl).UnixMilli(),
	})
	if err != nil {
		logger.WithError(err).Warn("marshal cache entry failed")
		c.dropStale(ctx, key)
		return
	}

	// The store expiry only reclaims space; the envelope's expiresAt decides.
	if err := c.store.Set(ctx, key, raw, ttl+c.storeJitter()); err != nil {
		logger.WithError(err).Warn("cache set failed")
		c.dropStale(ctx, key)
	}
}

// dropStale removes the previous value after a failed write so it cannot be
// served in place of the value that failed to land.
func (c *ResponseCache) dropStale(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Debug("cache delete after failed set failed")
	}
}

func (c *ResponseCache) storeJitter() time.Duration {
	if c.jitter <= 0 {
		return 0
	}
	return time.Duration(rand.Int63n(int64(c.jitter)))
}

// Get decodes the entry for key into dst. It reports false on a miss, on
// expiry (the entry is evicted) and on any storage or decode failure.
func (c *ResponseCache) Get(ctx context.Context, key string, dst any) bool {
	logger := c.log.WithField("key", key)

	raw, err := c.store.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, kvstore.ErrNotFound) {
			logger.WithError(err).Warn("cache get failed")
		}
		return false
	}

	var e entry
	if err := json.Unmarshal(raw, &e); err != nil {
		logger.WithError(err).Warn("corrupted cache entry")
		c.Remove(ctx, key)
		return false
	}

	if !c.now().Before(time.UnixMilli(e.ExpiresAt)) {
		c.Remove(ctx, key)
		return false
	}

	if err := json.Unmarshal(e.Data, dst); err != nil {
		logger.WithError(err).Warn("unmarshal cached value failed")
		c.Remove(ctx, key)
		return false
	}
	return true
}

// Has reports whether key holds a live entry without decoding it.
func (c *ResponseCache) Has(ctx context.Context, key string) bool {
	var discard json.RawMessage
	return c.Get(ctx, key, &discard)
}

func (c *ResponseCache) Remove(ctx context.Context, key string) {
	if err := c.store.Delete(ctx, key); err != nil {
		c.log.WithError(err).WithField("key", key).Warn("cache remove failed")
	}
}

// Clear removes the given keys, or every cache entry when called without keys.
func (c *ResponseCache) Clear(ctx context.Context, keys ...string) {
	if len(keys) > 0 {
		for _, key := range keys {
			c.Remove(ctx, key)
		}
		return
	}
	if err := c.store.DeletePrefix(ctx, ""); err != nil {
		c.log.WithError(err).Warn("cache clear failed")
	}
}
