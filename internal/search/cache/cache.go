// Package cache keeps rendered catalog listings in Redis. Concurrent misses
// for the same key are coalesced so only one of them reaches the store.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/Adithya-Monish-Kumar-K/buyit/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/buyit/pkg/metrics"
)

const keyPrefix = "catalog:"

// Backend is the subset of the Redis client the cache needs.
type Backend interface {
	GetJSON(ctx context.Context, key string, dst any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
	FlushByPattern(ctx context.Context, pattern string) (int64, error)
}

// Key identifies one listing request. Random listings are never cached.
type Key struct {
	Category string
	Search   string
	Sort     string
	Page     int
	PerPage  int
}

type ListingCache struct {
	backend Backend
	ttl     time.Duration
	group   singleflight.Group
	metrics *metrics.Metrics
	logger  *slog.Logger
	hits    atomic.Int64
	misses  atomic.Int64
}

// New creates a cache whose entries live for ttl. m may be nil.
func New(backend Backend, ttl time.Duration, m *metrics.Metrics) *ListingCache {
	return &ListingCache{
		backend: backend,
		ttl:     ttl,
		metrics: m,
		logger:  slog.Default().With("component", "listing-cache"),
	}
}

func (c *ListingCache) Get(ctx context.Context, k Key) (catalog.Listing, bool) {
	key := buildKey(k)
	listing, ok := c.lookup(ctx, key)
	if !ok {
		c.miss()
		return catalog.Listing{}, false
	}
	c.hits.Add(1)
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.Inc()
	}
	c.logger.Debug("cache hit", "key", key, "search", k.Search, "category", k.Category)
	return listing, true
}

func (c *ListingCache) lookup(ctx context.Context, key string) (catalog.Listing, bool) {
	var listing catalog.Listing
	found, err := c.backend.GetJSON(ctx, key, &listing)
	if err != nil {
		c.logger.Error("cache get failed", "key", key, "error", err)
		return catalog.Listing{}, false
	}
	return listing, found
}

func (c *ListingCache) Set(ctx context.Context, k Key, listing catalog.Listing) {
	key := buildKey(k)
	if err := c.backend.SetJSON(ctx, key, listing, c.ttl); err != nil {
		c.logger.Error("cache set failed", "key", key, "error", err)
	}
}

// GetOrCompute returns the cached listing for k, or computes and stores it.
// The boolean reports a cache hit.
func (c *ListingCache) GetOrCompute(
	ctx context.Context,
	k Key,
	computeFn func() (catalog.Listing, error),
) (catalog.Listing, bool, error) {
	if listing, ok := c.Get(ctx, k); ok {
		return listing, true, nil
	}
	key := buildKey(k)
	val, err, _ := c.group.Do(key, func() (any, error) {
		// a caller that missed just before the previous flight finished
		if listing, ok := c.lookup(ctx, key); ok {
			return listing, nil
		}
		listing, err := computeFn()
		if err != nil {
			return catalog.Listing{}, err
		}
		c.Set(ctx, k, listing)
		return listing, nil
	})
	if err != nil {
		return catalog.Listing{}, false, err
	}
	return val.(catalog.Listing), false, nil
}

// Invalidate drops every cached listing.
func (c *ListingCache) Invalidate(ctx context.Context) (int64, error) {
	deleted, err := c.backend.FlushByPattern(ctx, keyPrefix+"*")
	if err != nil {
		return 0, fmt.Errorf("invalidating cache: %w", err)
	}
	c.logger.Info("cache invalidated", "keys_deleted", deleted)
	return deleted, nil
}

func (c *ListingCache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

func (c *ListingCache) miss() {
	c.misses.Add(1)
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.Inc()
	}
}

// HandleInvalidate returns a MessageHandler that flushes the cache on every
// catalog change event.
func HandleInvalidate(c *ListingCache) kafka.MessageHandler {
	return func(ctx context.Context, key []byte, value []byte) error {
		ev, err := kafka.DecodeJSON[catalog.ChangeEvent](value)
		if err != nil {
			return err
		}
		if _, err := c.Invalidate(ctx); err != nil {
			return err
		}
		c.logger.Debug("catalog change applied", "product_id", ev.ProductID, "reason", ev.Reason)
		return nil
	}
}

// buildKey hashes the JSON form of k, so separators inside field values
// cannot make two different requests collide.
func buildKey(k Key) string {
	k.Search = normalizeSearch(k.Search)
	// strings and ints always marshal
	raw, _ := json.Marshal(k)
	hash := sha256.Sum256(raw)
	return fmt.Sprintf("%s%x", keyPrefix, hash[:16])
}

// normalizeSearch folds case and whitespace, which the fuzzy matcher
// ignores anyway.
func normalizeSearch(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}
