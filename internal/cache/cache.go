// Package cache implements the response cache for the governance layer:
// a cache-aside store of successful response bodies keyed by namespace,
// plus the invalidation coordination that keeps cached reads consistent
// with mutations. Cache failures never fail a request; every operation
// degrades to a miss or a no-op.
package cache

import (
	"context"
	"encoding/json"
	"time"

	"request-governor/internal/common/errors"
	"request-governor/internal/common/logging"
	"request-governor/internal/keys"
)

// deleteBatchSize bounds the number of keys removed per store command when
// clearing a namespace.
const deleteBatchSize = 100

// Store is the key-value surface the cache needs from the shared store.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
	DeleteBatch(ctx context.Context, keys []string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}

// Entry is one cached response. A re-fill overwrites; entries are never
// mutated in place.
type Entry struct {
	Body       json.RawMessage `json:"body"`
	StatusCode int             `json:"status_code"`
	StoredAt   time.Time       `json:"stored_at"`
}

// ResponseCache stores response entries in the shared store under
// namespaced keys.
type ResponseCache struct {
	store  Store
	logger logging.Logger
}

func New(store Store) *ResponseCache {
	return &ResponseCache{
		store:  store,
		logger: logging.GetGlobalLogger().WithFields(logging.Field{Key: "component", Value: "cache"}),
	}
}

// Get returns the cached entry for (namespace, key), or found=false on a
// miss. Store and decode failures are logged and reported as misses.
func (c *ResponseCache) Get(ctx context.Context, namespace, key string) (*Entry, bool) {
	storeKey, err := keys.Build(namespace, key)
	if err != nil {
		c.logger.Error("invalid cache key", err,
			logging.String("namespace", namespace),
			logging.String("key", key))
		return nil, false
	}

	raw, ok, err := c.store.Get(ctx, storeKey)
	if err != nil {
		c.logger.Warn("cache get failed, treating as miss",
			logging.String("key", storeKey),
			logging.Err(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}

	var entry Entry
	if err := json.Unmarshal([]byte(raw), &entry); err != nil {
		c.logger.Warn("cache entry decode failed, treating as miss",
			logging.String("key", storeKey),
			logging.Err(err))
		return nil, false
	}

	return &entry, true
}

// Set stores an entry best-effort; failures are logged and swallowed.
func (c *ResponseCache) Set(ctx context.Context, namespace, key string, entry *Entry, ttl time.Duration) {
	storeKey, err := keys.Build(namespace, key)
	if err != nil {
		c.logger.Error("invalid cache key", err,
			logging.String("namespace", namespace),
			logging.String("key", key))
		return
	}

	if err := c.store.Set(ctx, storeKey, entry, ttl); err != nil {
		c.logger.Warn("cache set failed",
			logging.String("key", storeKey),
			logging.Err(err))
	}
}

// Delete removes a single entry best-effort.
func (c *ResponseCache) Delete(ctx context.Context, namespace, key string) {
	storeKey, err := keys.Build(namespace, key)
	if err != nil {
		c.logger.Error("invalid cache key", err,
			logging.String("namespace", namespace),
			logging.String("key", key))
		return
	}

	if err := c.store.Delete(ctx, storeKey); err != nil {
		c.logger.Warn("cache delete failed",
			logging.String("key", storeKey),
			logging.Err(err))
	}
}

// DeleteBatch removes a set of entries under one namespace best-effort.
func (c *ResponseCache) DeleteBatch(ctx context.Context, namespace string, rawKeys []string) {
	storeKeys := make([]string, 0, len(rawKeys))
	for _, k := range rawKeys {
		storeKey, err := keys.Build(namespace, k)
		if err != nil {
			c.logger.Error("invalid cache key", err,
				logging.String("namespace", namespace),
				logging.String("key", k))
			continue
		}
		storeKeys = append(storeKeys, storeKey)
	}

	if len(storeKeys) == 0 {
		return
	}

	if err := c.store.DeleteBatch(ctx, storeKeys); err != nil {
		c.logger.Warn("cache batch delete failed",
			logging.String("namespace", namespace),
			logging.Int("count", len(storeKeys)),
			logging.Err(err))
	}
}

// ClearNamespace removes every entry under a namespace, deleting in fixed
// batches to bound the size of a single store command. Returns the number
// of keys removed, 0 on any failure.
func (c *ResponseCache) ClearNamespace(ctx context.Context, namespace string) int {
	ns := keys.Sanitize(namespace)
	if ns == "" {
		c.logger.Error("invalid cache namespace", errors.InvalidKey("namespace is required"),
			logging.String("namespace", namespace))
		return 0
	}

	matched, err := c.store.Scan(ctx, ns+keys.Separator+"*")
	if err != nil {
		c.logger.Warn("cache namespace scan failed",
			logging.String("namespace", ns),
			logging.Err(err))
		return 0
	}

	removed := 0
	for start := 0; start < len(matched); start += deleteBatchSize {
		end := start + deleteBatchSize
		if end > len(matched) {
			end = len(matched)
		}
		if err := c.store.DeleteBatch(ctx, matched[start:end]); err != nil {
			c.logger.Warn("cache namespace clear failed",
				logging.String("namespace", ns),
				logging.Int("removed", removed),
				logging.Err(err))
			return 0
		}
		removed += end - start
	}

	return removed
}
