package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/cache"
	"github.com/raaihank/vn-text-trim/internal/config"
)

// RedisBuffer keeps the text under a Redis key and announces every write on
// a pub/sub channel, so several machines can share one buffer.
type RedisBuffer struct {
	client  *redis.Client
	key     string
	channel string
	logger  *zap.Logger
}

// NewRedisBuffer connects to Redis and checks the connection
func NewRedisBuffer(cfg config.BufferConfig, logger *zap.Logger) (*RedisBuffer, error) {
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	if cfg.PoolSize > 0 {
		opts.PoolSize = cfg.PoolSize
	}

	buf := &RedisBuffer{
		client:  redis.NewClient(opts),
		key:     cfg.Key,
		channel: cfg.Channel,
		logger:  logger,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := buf.client.Ping(ctx).Err(); err != nil {
		buf.client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Info("Redis buffer initialized",
		zap.String("redis_url", cache.MaskRedisURL(cfg.RedisURL)),
		zap.String("key", cfg.Key),
		zap.String("channel", cfg.Channel))

	return buf, nil
}

// Read returns the text under the key; a missing key reads as empty
func (r *RedisBuffer) Read(ctx context.Context) (string, error) {
	text, err := r.client.Get(ctx, r.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return text, nil
}

// Write stores text and publishes a change notice in one transaction
func (r *RedisBuffer) Write(ctx context.Context, text string) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.key, text, 0)
		if r.channel != "" {
			pipe.Publish(ctx, r.channel, r.key)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Changes subscribes to the change channel
func (r *RedisBuffer) Changes(ctx context.Context) (<-chan struct{}, error) {
	if r.channel == "" {
		return nil, fmt.Errorf("redis buffer: no change channel configured")
	}

	sub := r.client.Subscribe(ctx, r.channel)
	if _, err := sub.Receive(ctx); err != nil {
		sub.Close()
		return nil, fmt.Errorf("failed to subscribe to %s: %w", r.channel, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer sub.Close()

		messages := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					return
				}
				notify(out)
			}
		}
	}()

	return out, nil
}

// Close closes the Redis connection
func (r *RedisBuffer) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}
