// Package redis adapts go-redis to the key-value store contract the
// governance layer depends on: TTL-bound values, atomic counters and
// pattern-based key enumeration. All cross-request state lives here; the
// application keeps no authoritative counter or cache value in memory.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"request-governor/internal/common/errors"
)

type Client struct {
	rdb    *redis.Client
	config *Config
}

type Config struct {
	Address  string `json:"address"`
	Password string `json:"password"`
	DB       int    `json:"db"`
	PoolSize int    `json:"pool_size"`
}

// incrWithTTL increments a counter and arms its TTL only when the increment
// created the key. Running as a script keeps the pair atomic across
// processes, and a later increment never resets an existing window.
var incrWithTTL = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
	redis.call("EXPIRE", KEYS[1], ARGV[1])
end
return count
`)

func NewClient(config *Config) (*Client, error) {
	if config == nil {
		return nil, fmt.Errorf("redis config is required")
	}

	if config.Address == "" {
		config.Address = "localhost:6379"
	}
	if config.PoolSize == 0 {
		config.PoolSize = 10
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     config.Address,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Client{
		rdb:    rdb,
		config: config,
	}, nil
}

func (c *Client) Close() error {
	return c.rdb.Close()
}

func (c *Client) Health() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return c.rdb.Ping(ctx).Err()
}

// Get returns the value for key; ok is false when the key is absent.
func (c *Client) Get(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.StoreError("failed to get key", err).WithContext("key", key)
	}
	return val, true, nil
}

// GetWithTTL returns the value for key together with its remaining TTL.
// Both reads go out in one pipelined round trip.
func (c *Client) GetWithTTL(ctx context.Context, key string) (string, time.Duration, bool, error) {
	pipe := c.rdb.Pipeline()
	getCmd := pipe.Get(ctx, key)
	ttlCmd := pipe.TTL(ctx, key)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return "", 0, false, errors.StoreError("failed to get key with ttl", err).WithContext("key", key)
	}

	val, err := getCmd.Result()
	if err == redis.Nil {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, errors.StoreError("failed to get key with ttl", err).WithContext("key", key)
	}

	ttl := ttlCmd.Val()
	if ttl < 0 {
		ttl = 0
	}
	return val, ttl, true, nil
}

// Set stores a value under key with a TTL. Strings and byte slices are
// stored as-is; anything else is marshaled to JSON.
func (c *Client) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	var data []byte
	var err error

	switch v := value.(type) {
	case string:
		data = []byte(v)
	case []byte:
		data = v
	default:
		data, err = json.Marshal(v)
		if err != nil {
			return errors.InternalError("failed to marshal value", err).WithContext("key", key)
		}
	}

	if err := c.rdb.Set(ctx, key, data, ttl).Err(); err != nil {
		return errors.StoreError("failed to set key", err).WithContext("key", key)
	}
	return nil
}

// IncrWithTTL atomically increments the counter at key, creating it with
// the given TTL on first use. Subsequent increments leave the TTL alone,
// so the TTL is the window boundary.
func (c *Client) IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	seconds := int(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}

	count, err := incrWithTTL.Run(ctx, c.rdb, []string{key}, seconds).Int64()
	if err != nil {
		return 0, errors.StoreError("failed to increment counter", err).WithContext("key", key)
	}
	return count, nil
}

// Delete removes a single key; absence is not an error.
func (c *Client) Delete(ctx context.Context, key string) error {
	if err := c.rdb.Del(ctx, key).Err(); err != nil {
		return errors.StoreError("failed to delete key", err).WithContext("key", key)
	}
	return nil
}

// DeleteBatch removes a set of keys in one round trip.
func (c *Client) DeleteBatch(ctx context.Context, ks []string) error {
	if len(ks) == 0 {
		return nil
	}
	if err := c.rdb.Del(ctx, ks...).Err(); err != nil {
		return errors.StoreError("failed to delete keys", err).WithContext("count", len(ks))
	}
	return nil
}

// Scan enumerates all keys matching pattern via cursor iteration.
func (c *Client) Scan(ctx context.Context, pattern string) ([]string, error) {
	iter := c.rdb.Scan(ctx, 0, pattern, 0).Iterator()

	var ks []string
	for iter.Next(ctx) {
		ks = append(ks, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return nil, errors.StoreError("failed to scan keys", err).WithContext("pattern", pattern)
	}
	return ks, nil
}
