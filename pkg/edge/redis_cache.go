package edge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const redisKeyPrefix = "edge:"

// RedisCache shares the response cache between edge instances.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

type redisEntry struct {
	Status int         `json:"status"`
	Header http.Header `json:"header"`
	Body   []byte      `json:"body"`
}

// NewRedisCache stores entries for ttl; the edge uses the asset max-age.
// logger may be nil.
func NewRedisCache(client *redis.Client, ttl time.Duration, logger *zap.Logger) *RedisCache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisCache{client: client, ttl: ttl, logger: logger}
}

func (c *RedisCache) key(k CacheKey) string {
	return redisKeyPrefix + k.String()
}

// Ping checks that the server is reachable.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Get returns the entry stored under key. A missing or undecodable entry is a
// miss; only transport errors are returned.
func (c *RedisCache) Get(ctx context.Context, key CacheKey) (*Response, bool, error) {
	raw, err := c.client.Get(ctx, c.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis cache get: %w", err)
	}
	return c.entry(key, raw)
}

// entry decodes a stored value. Corrupt values are logged and treated as a
// miss; the next Put for key overwrites them.
func (c *RedisCache) entry(key CacheKey, raw []byte) (*Response, bool, error) {
	res, err := decodeEntry(raw)
	if err != nil {
		c.logger.Warn("discarding corrupt redis cache entry",
			zap.String("key", c.key(key)),
			zap.Int("bytes", len(raw)),
			zap.Error(err))
		return nil, false, nil
	}
	return res, true, nil
}

// Put stores res under key for the cache ttl.
func (c *RedisCache) Put(ctx context.Context, key CacheKey, res *Response) error {
	raw, err := encodeEntry(res)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.key(key), raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis cache put: %w", err)
	}
	return nil
}

func encodeEntry(res *Response) ([]byte, error) {
	raw, err := json.Marshal(redisEntry{Status: res.Status, Header: res.Header, Body: res.Body})
	if err != nil {
		return nil, fmt.Errorf("redis cache encode: %w", err)
	}
	return raw, nil
}

func decodeEntry(raw []byte) (*Response, error) {
	var e redisEntry
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("redis cache decode: %w", err)
	}
	if e.Status == 0 {
		return nil, errors.New("redis cache decode: missing status")
	}
	if e.Header == nil {
		e.Header = http.Header{}
	}
	return &Response{Status: e.Status, Header: e.Header, Body: e.Body}, nil
}
