// Package resolve maintains the entity resolution cache: a bounded
// in-memory LRU backed by the durable state store, filled through batched,
// retried, concurrency-limited fetches against the entity API.
package resolve

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"

	"github.com/propertydigital/pdimport/pkg/core"
)

// Fetcher retrieves one sub-batch of entities from the upstream API.
// Implementations return a map of id to entity; missing ids are simply
// absent from the map.
type Fetcher interface {
	FetchBatch(ctx context.Context, entityType string, ids []string) (map[string]core.Entity, error)
}

// Config holds resolver tuning knobs.
type Config struct {
	Capacity    int           // in-memory LRU capacity
	BatchSize   int           // ids per upstream request
	Concurrency int           // simultaneous outstanding sub-batch requests
	MaxRetries  uint64        // retries after the first attempt
	BaseDelay   time.Duration // first backoff interval, doubles per attempt
}

// Defaults mirror the production tuning.
const (
	DefaultCapacity    = 5000
	DefaultBatchSize   = 100
	DefaultConcurrency = 5
	DefaultMaxRetries  = 2 // 3 attempts total
	DefaultBaseDelay   = 500 * time.Millisecond
)

func (c *Config) applyDefaults() {
	if c.Capacity <= 0 {
		c.Capacity = DefaultCapacity
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.Concurrency <= 0 {
		c.Concurrency = DefaultConcurrency
	}
	if c.BaseDelay <= 0 {
		c.BaseDelay = DefaultBaseDelay
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
}

// Stats is a point-in-time view of cache effectiveness.
type Stats struct {
	Hits    int64
	Misses  int64
	Entries int
}

// HitRate formats the hit percentage, e.g. "83.3%".
func (s Stats) HitRate() string {
	total := s.Hits + s.Misses
	if total == 0 {
		return "0.0%"
	}
	return fmt.Sprintf("%.1f%%", float64(s.Hits)/float64(total)*100)
}

// Resolver resolves batches of foreign-entity ids with caching.
// Construct with New, then call Initialize before serving: it warms the
// in-memory cache from durable storage and flips the readiness flag.
type Resolver struct {
	cfg     Config
	memory  *memoryCache
	durable core.CacheStore
	fetcher Fetcher
	logger  *slog.Logger
	ready   atomic.Bool
}

// New creates a resolver. The durable store may be nil for a purely
// in-memory cache (tests).
func New(cfg Config, durable core.CacheStore, fetcher Fetcher, logger *slog.Logger) *Resolver {
	cfg.applyDefaults()
	return &Resolver{
		cfg:     cfg,
		memory:  newMemoryCache(cfg.Capacity),
		durable: durable,
		fetcher: fetcher,
		logger:  logger,
	}
}

// Initialize warms the in-memory cache from the durable store and marks the
// resolver ready. Callers await it before serving requests; the readiness
// flag feeds health checks. Durable entries beyond memory capacity are
// evicted from memory only, never from storage.
func (r *Resolver) Initialize(ctx context.Context) error {
	if r.durable != nil {
		entries, err := r.durable.GetAll()
		if err != nil {
			return fmt.Errorf("failed to warm entity cache: %w", err)
		}
		for key, entity := range entries {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.memory.warm(key, entity)
		}
		r.logger.Info("entity cache warmed", "entries", len(entries))
	}
	r.ready.Store(true)
	return nil
}

// Ready reports whether Initialize has completed.
func (r *Resolver) Ready() bool {
	return r.ready.Load()
}

// Resolve returns entities for the requested ids. The id set is
// deduplicated before any network activity; cache misses are fetched in
// sub-batches with bounded concurrency and retried with exponential
// backoff. Ids that cannot be resolved after retries are simply absent from
// the result — partial resolution is expected and never an error.
func (r *Resolver) Resolve(ctx context.Context, entityType string, ids []string) (map[string]core.Entity, error) {
	unique := dedupe(ids)
	result := make(map[string]core.Entity, len(unique))

	var toFetch []string
	for _, id := range unique {
		if entity, ok := r.memory.Get(cacheKey(entityType, id)); ok {
			result[id] = entity
		} else {
			toFetch = append(toFetch, id)
		}
	}
	if len(toFetch) == 0 {
		return result, nil
	}

	var mu sync.Mutex
	eg, egctx := errgroup.WithContext(ctx)
	eg.SetLimit(r.cfg.Concurrency)

	for start := 0; start < len(toFetch); start += r.cfg.BatchSize {
		end := start + r.cfg.BatchSize
		if end > len(toFetch) {
			end = len(toFetch)
		}
		batch := toFetch[start:end]

		eg.Go(func() error {
			fetched, err := r.fetchWithRetry(egctx, entityType, batch)
			if err != nil {
				// Exhausted retries: these ids stay unresolved. Callers
				// tolerate partial resolution, so the call carries on.
				r.logger.Warn("sub-batch resolution failed", "entity_type", entityType, "ids", len(batch), "error", err)
				return nil
			}

			mu.Lock()
			for id, entity := range fetched {
				result[id] = entity
			}
			mu.Unlock()

			for id, entity := range fetched {
				r.memory.Add(cacheKey(entityType, id), entity)
				if r.durable != nil {
					if err := r.durable.Put(cacheKey(entityType, id), entity); err != nil {
						r.logger.Warn("durable cache write failed", "key", cacheKey(entityType, id), "error", err)
					}
				}
			}
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return result, err
	}
	return result, ctx.Err()
}

// fetchWithRetry runs one sub-batch fetch with capped exponential backoff.
func (r *Resolver) fetchWithRetry(ctx context.Context, entityType string, ids []string) (map[string]core.Entity, error) {
	backoff := retry.WithMaxRetries(r.cfg.MaxRetries, retry.NewExponential(r.cfg.BaseDelay))

	var fetched map[string]core.Entity
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		var err error
		fetched, err = r.fetcher.FetchBatch(ctx, entityType, ids)
		if err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	return fetched, err
}

// Invalidate clears one entity type's keys from memory and durable storage.
func (r *Resolver) Invalidate(entityType string) error {
	r.memory.RemovePrefix(entityType + ":")
	if r.durable != nil {
		if err := r.durable.DeletePrefix(entityType + ":"); err != nil {
			return fmt.Errorf("failed to invalidate %s cache: %w", entityType, err)
		}
	}
	return nil
}

// InvalidateAll clears all cache state, memory and durable.
func (r *Resolver) InvalidateAll() error {
	r.memory.Clear()
	if r.durable != nil {
		if err := r.durable.DeleteAll(); err != nil {
			return fmt.Errorf("failed to clear cache: %w", err)
		}
	}
	return nil
}

// Stats returns the current hit/miss counters.
func (r *Resolver) Stats() Stats {
	hits, misses := r.memory.Counters()
	return Stats{Hits: hits, Misses: misses, Entries: r.memory.Len()}
}

func cacheKey(entityType, id string) string {
	return entityType + ":" + id
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
