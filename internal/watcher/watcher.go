package watcher

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/raaihank/vn-text-trim/internal/buffer"
	"github.com/raaihank/vn-text-trim/internal/cleaner"
	"github.com/raaihank/vn-text-trim/internal/logger"
	"github.com/raaihank/vn-text-trim/internal/websocket"
)

const source = "watcher"

// Publisher receives an event for every text the watcher processed
type Publisher interface {
	PublishClean(event websocket.CleanEvent)
}

// Options controls polling and retries
type Options struct {
	PollInterval  time.Duration
	RetryInterval time.Duration
	MaxAttempts   int
	Publisher     Publisher
}

// Stats counts watcher activity
type Stats struct {
	Checks  int64
	Cleaned int64
	Errors  int64
}

// Watcher keeps a buffer clean: whenever the buffer holds new text, the
// text is run through the engine and the result written back.
type Watcher struct {
	buf     buffer.Buffer
	engine  cleaner.Engine
	retrier *buffer.Retrier
	opts    Options
	logger  *logger.Logger

	// last is the text most recently read or written; a read returning it
	// again is not processed
	last string
	seen bool

	checks  atomic.Int64
	cleaned atomic.Int64
	errors  atomic.Int64
}

// New creates a watcher over buf
func New(buf buffer.Buffer, engine cleaner.Engine, opts Options, log *logger.Logger) *Watcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 250 * time.Millisecond
	}

	log = log.WithComponent("watcher")

	return &Watcher{
		buf:     buf,
		engine:  engine,
		retrier: buffer.NewRetrier(opts.RetryInterval, opts.MaxAttempts, log.Logger),
		opts:    opts,
		logger:  log,
	}
}

// Run polls the buffer, and listens for change notifications when the
// buffer supports them, until ctx is done
func (w *Watcher) Run(ctx context.Context) error {
	var changes <-chan struct{}
	if notifier, ok := w.buf.(buffer.Notifier); ok {
		ch, err := notifier.Changes(ctx)
		if err != nil {
			w.logger.Warn("Change notifications unavailable, polling only", zap.Error(err))
		} else {
			changes = ch
		}
	}

	ticker := time.NewTicker(w.opts.PollInterval)
	defer ticker.Stop()

	w.logger.Info("Watcher started",
		zap.Duration("poll_interval", w.opts.PollInterval),
		zap.Bool("notifications", changes != nil))

	w.check(ctx)

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("Watcher stopped",
				zap.Int64("checks", w.checks.Load()),
				zap.Int64("cleaned", w.cleaned.Load()))
			return ctx.Err()

		case <-ticker.C:
			w.check(ctx)

		case _, ok := <-changes:
			if !ok {
				changes = nil
				continue
			}
			w.check(ctx)
		}
	}
}

// check reads the buffer once and cleans it if it holds new text
func (w *Watcher) check(ctx context.Context) {
	w.checks.Add(1)

	text, err := w.retrier.Read(ctx, w.buf)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.errors.Add(1)
		if errors.Is(err, buffer.ErrNotText) {
			w.logger.Debug("Buffer does not hold text")
			return
		}
		w.logger.Error("Failed to read buffer", zap.Error(err))
		return
	}

	if w.seen && text == w.last {
		return
	}
	w.last = text
	w.seen = true

	start := time.Now()
	result := w.engine.Process(text)
	elapsed := time.Since(start)

	w.logger.LogClean(source, text, result.Text, result.Changed, result.StageNames())
	w.publish(result, elapsed)

	if !result.Changed {
		return
	}

	if err := w.retrier.Write(ctx, w.buf, result.Text); err != nil {
		if ctx.Err() != nil {
			return
		}
		w.errors.Add(1)
		w.logger.Error("Failed to write cleaned text", zap.Error(err))
		// Try again on the next tick
		w.seen = false
		return
	}

	w.cleaned.Add(1)
	w.last = result.Text
}

func (w *Watcher) publish(result cleaner.Result, elapsed time.Duration) {
	if w.opts.Publisher == nil {
		return
	}

	event := websocket.CleanEvent{
		Source:         source,
		Changed:        result.Changed,
		Skipped:        result.Skipped,
		Stages:         result.StageNames(),
		OriginalLength: len(result.Original),
		CleanedLength:  len(result.Text),
		ProcessingMS:   float64(elapsed.Microseconds()) / 1000,
	}
	if result.Changed {
		event.Cleaned = result.Text
	}

	w.opts.Publisher.PublishClean(event)
}

// Stats returns counters since the watcher was created
func (w *Watcher) Stats() Stats {
	return Stats{
		Checks:  w.checks.Load(),
		Cleaned: w.cleaned.Load(),
		Errors:  w.errors.Load(),
	}
}
