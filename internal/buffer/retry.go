package buffer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Retrier repeats buffer operations that fail with ErrUnavailable, e.g.
// while another program holds the clipboard. Attempts are paced by a token
// bucket so a dead buffer is not hammered.
type Retrier struct {
	interval    time.Duration
	maxAttempts int
	logger      *zap.Logger
}

// NewRetrier creates a retrier; maxAttempts 0 retries until ctx is done
func NewRetrier(interval time.Duration, maxAttempts int, logger *zap.Logger) *Retrier {
	if interval <= 0 {
		interval = 100 * time.Millisecond
	}
	return &Retrier{
		interval:    interval,
		maxAttempts: maxAttempts,
		logger:      logger,
	}
}

// Read reads buf, retrying while it is unavailable
func (r *Retrier) Read(ctx context.Context, buf Buffer) (string, error) {
	var text string
	err := r.do(ctx, "read", func() error {
		var err error
		text, err = buf.Read(ctx)
		return err
	})
	return text, err
}

// Write writes text to buf, retrying while it is unavailable
func (r *Retrier) Write(ctx context.Context, buf Buffer, text string) error {
	return r.do(ctx, "write", func() error {
		return buf.Write(ctx, text)
	})
}

func (r *Retrier) do(ctx context.Context, op string, fn func() error) error {
	limiter := rate.NewLimiter(rate.Every(r.interval), 1)

	for attempt := 1; ; attempt++ {
		if err := limiter.Wait(ctx); err != nil {
			return err
		}

		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrUnavailable) {
			return err
		}

		r.logger.Warn("Buffer operation failed",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err))

		if r.maxAttempts > 0 && attempt >= r.maxAttempts {
			return fmt.Errorf("buffer %s failed after %d attempts: %w", op, attempt, err)
		}
	}
}
