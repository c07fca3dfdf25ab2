package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/config"
)

// Entry is a cached engine result
type Entry struct {
	Text    string   `json:"text"`
	Changed bool     `json:"changed"`
	Stages  []string `json:"stages,omitempty"`
	Skipped bool     `json:"skipped,omitempty"`
}

// Stats reports cache usage
type Stats struct {
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	TotalKeys int64 `json:"total_keys"`
}

// ResultCache shares engine results between service instances through
// Redis. Lookups never fail: Redis errors count as misses.
type ResultCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
	logger *zap.Logger

	hits   atomic.Int64
	misses atomic.Int64
}

// NewResultCache connects to the Redis instance named in cfg
func NewResultCache(cfg config.CacheConfig, logger *zap.Logger) (*ResultCache, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}
	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	rc := &ResultCache{
		client: redis.NewClient(opts),
		ttl:    cfg.TTL,
		prefix: cfg.KeyPrefix,
		logger: logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rc.client.Ping(ctx).Err(); err != nil {
		rc.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Result cache initialized",
		zap.String("redis_url", MaskRedisURL(cfg.RedisURL)),
		zap.Duration("ttl", cfg.TTL),
		zap.String("key_prefix", cfg.KeyPrefix))

	return rc, nil
}

// Key identifies text cleaned under the rule set with the given fingerprint
func Key(fingerprint, text string) string {
	return fingerprint + ":" + hashText(text)
}

// Key returns the Redis key for text under the given fingerprint
func (rc *ResultCache) Key(fingerprint, text string) string {
	return rc.prefix + Key(fingerprint, text)
}

// Get looks up a result
func (rc *ResultCache) Get(ctx context.Context, key string) (Entry, bool) {
	data, err := rc.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		rc.misses.Add(1)
		return Entry{}, false
	}
	if err != nil {
		rc.misses.Add(1)
		rc.logger.Warn("Result cache lookup failed", zap.Error(err))
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		rc.misses.Add(1)
		rc.logger.Warn("Dropping corrupt result cache entry", zap.String("key", key), zap.Error(err))
		rc.client.Del(ctx, key)
		return Entry{}, false
	}

	rc.hits.Add(1)
	return entry, true
}

// Set stores a result with the configured TTL
func (rc *ResultCache) Set(ctx context.Context, key string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal cache entry: %w", err)
	}
	return rc.client.Set(ctx, key, data, rc.ttl).Err()
}

// Stats returns hit counters and the number of cached results
func (rc *ResultCache) Stats(ctx context.Context) Stats {
	stats := Stats{
		Hits:   rc.hits.Load(),
		Misses: rc.misses.Load(),
	}

	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 0).Iterator()
	for iter.Next(ctx) {
		stats.TotalKeys++
	}
	if err := iter.Err(); err != nil {
		rc.logger.Warn("Failed to count cached results", zap.Error(err))
	}

	return stats
}

// Clear removes every cached result
func (rc *ResultCache) Clear(ctx context.Context) (int, error) {
	iter := rc.client.Scan(ctx, 0, rc.prefix+"*", 0).Iterator()
	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		return 0, fmt.Errorf("failed to scan cache keys: %w", err)
	}

	const batchSize = 100
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := rc.client.Del(ctx, keys[i:end]...).Err(); err != nil {
			return i, fmt.Errorf("failed to delete cache keys: %w", err)
		}
	}

	rc.logger.Info("Result cache cleared", zap.Int("deleted_keys", len(keys)))
	return len(keys), nil
}

// Close closes the Redis connection
func (rc *ResultCache) Close() error {
	if rc.client != nil {
		return rc.client.Close()
	}
	return nil
}

func hashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

// MaskRedisURL hides the password in a Redis URL for logging. The mask is
// spliced into the raw string because url.URL.String would escape it.
func MaskRedisURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, hasPassword := u.User.Password(); !hasPassword {
		return raw
	}

	schemeEnd := strings.Index(raw, "://")
	if schemeEnd < 0 {
		return raw
	}
	start := schemeEnd + len("://")

	authority := raw[start:]
	if end := strings.IndexAny(authority, "/?#"); end >= 0 {
		authority = authority[:end]
	}
	at := strings.LastIndex(authority, "@")
	colon := strings.Index(authority, ":")
	if at < 0 || colon < 0 || colon > at {
		return raw
	}

	return raw[:start+colon+1] + "***" + raw[start+at:]
}
