package server

import (
	"context"
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru"
	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cache"
	"github.com/raaihank/vn-text-trim/internal/cleaner"
)

// resultCache memoises engine results in a local LRU and, when configured,
// in Redis shared with other instances. Keys include the rule set
// fingerprint, so entries from a previous rule set are never served after
// a reload.
type resultCache struct {
	local  *lru.Cache
	shared *cache.ResultCache
	logger *zap.Logger
	hits   atomic.Int64
	misses atomic.Int64
}

// CacheStats reports cache usage
type CacheStats struct {
	Enabled bool         `json:"enabled"`
	Entries int          `json:"entries"`
	Hits    int64        `json:"hits"`
	Misses  int64        `json:"misses"`
	Shared  *cache.Stats `json:"shared,omitempty"`
}

// newResultCache returns nil when both tiers are disabled
func newResultCache(size int, shared *cache.ResultCache, logger *zap.Logger) (*resultCache, error) {
	if size <= 0 && shared == nil {
		return nil, nil
	}

	c := &resultCache{shared: shared, logger: logger}
	if size > 0 {
		local, err := lru.New(size)
		if err != nil {
			return nil, err
		}
		c.local = local
	}
	return c, nil
}

// process returns the cached result for text or computes and stores it
func (c *resultCache) process(ctx context.Context, engine cleaner.Engine, text string) cleaner.Result {
	if c == nil {
		return engine.Process(text)
	}

	// Pin one cleaner so a concurrent reload cannot pair new results with
	// the old fingerprint.
	if holder, ok := engine.(*cleaner.Holder); ok {
		engine = holder.Load()
	}

	fingerprint := engine.RuleSet().Fingerprint()
	key := cache.Key(fingerprint, text)

	if c.local != nil {
		if value, ok := c.local.Get(key); ok {
			c.hits.Add(1)
			return value.(cleaner.Result)
		}
	}

	if c.shared != nil {
		if entry, ok := c.shared.Get(ctx, c.shared.Key(fingerprint, text)); ok {
			result := fromEntry(text, entry)
			c.storeLocal(key, result)
			c.hits.Add(1)
			return result
		}
	}

	c.misses.Add(1)
	result := engine.Process(text)
	c.storeLocal(key, result)

	if c.shared != nil {
		if err := c.shared.Set(ctx, c.shared.Key(fingerprint, text), toEntry(result)); err != nil {
			c.logger.Warn("Failed to store shared result", zap.Error(err))
		}
	}

	return result
}

func (c *resultCache) storeLocal(key string, result cleaner.Result) {
	if c.local != nil {
		c.local.Add(key, result)
	}
}

// clear empties both tiers and returns the number of shared keys removed
func (c *resultCache) clear(ctx context.Context) (int, error) {
	if c == nil {
		return 0, nil
	}
	if c.local != nil {
		c.local.Purge()
	}
	if c.shared != nil {
		return c.shared.Clear(ctx)
	}
	return 0, nil
}

func (c *resultCache) stats(ctx context.Context) CacheStats {
	if c == nil {
		return CacheStats{}
	}

	stats := CacheStats{
		Enabled: true,
		Hits:    c.hits.Load(),
		Misses:  c.misses.Load(),
	}
	if c.local != nil {
		stats.Entries = c.local.Len()
	}
	if c.shared != nil {
		shared := c.shared.Stats(ctx)
		stats.Shared = &shared
	}
	return stats
}

func (c *resultCache) close() error {
	if c == nil || c.shared == nil {
		return nil
	}
	return c.shared.Close()
}

func toEntry(result cleaner.Result) cache.Entry {
	return cache.Entry{
		Text:    result.Text,
		Changed: result.Changed,
		Stages:  result.StageNames(),
		Skipped: result.Skipped,
	}
}

func fromEntry(original string, entry cache.Entry) cleaner.Result {
	stages := make([]cleaner.Stage, len(entry.Stages))
	for i, name := range entry.Stages {
		stages[i] = cleaner.Stage(name)
	}
	if len(stages) == 0 {
		stages = nil
	}
	return cleaner.Result{
		Text:     entry.Text,
		Changed:  entry.Changed,
		Stages:   stages,
		Skipped:  entry.Skipped,
		Original: original,
	}
}
