package buffer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/config"
)

var (
	// ErrUnavailable indicates the buffer could not be reached
	ErrUnavailable = errors.New("buffer unavailable")

	// ErrNotText indicates the buffer holds something that is not UTF-8 text
	ErrNotText = errors.New("buffer does not hold text")
)

// Buffer is a shared text slot: the watcher reads it, cleans the text and
// writes the result back.
type Buffer interface {
	Read(ctx context.Context) (string, error)
	Write(ctx context.Context, text string) error
	Close() error
}

// Notifier is implemented by buffers that can signal changes instead of
// being polled. The channel is closed when ctx is done.
type Notifier interface {
	Changes(ctx context.Context) (<-chan struct{}, error)
}

// Open creates the buffer described by cfg
func Open(cfg config.BufferConfig, logger *zap.Logger) (Buffer, error) {
	switch cfg.Type {
	case "file":
		buf, err := NewFileBuffer(cfg.Path, logger)
		if err != nil {
			return nil, err
		}
		return buf, nil
	case "redis":
		buf, err := NewRedisBuffer(cfg, logger)
		if err != nil {
			return nil, err
		}
		return buf, nil
	case "none", "":
		return nil, fmt.Errorf("%w: no buffer configured", ErrUnavailable)
	default:
		return nil, fmt.Errorf("unsupported buffer type: %s", cfg.Type)
	}
}

// notify performs a non-blocking send; a pending signal already covers it
func notify(ch chan struct{}) {
	select {
	case ch <- struct{}{}:
	default:
	}
}
