package buffer

import (
	"context"
	"fmt"
	"sync"
)

// MemoryBuffer keeps the text in memory. Hosts embedding the engine use it
// to hand text over directly; tests use it to inject failures.
type MemoryBuffer struct {
	mu          sync.Mutex
	text        string
	writes      []string
	failReads   int
	failWrites  int
	subscribers []chan struct{}
}

// NewMemoryBuffer creates a buffer holding initial
func NewMemoryBuffer(initial string) *MemoryBuffer {
	return &MemoryBuffer{text: initial}
}

// Read returns the current text
func (m *MemoryBuffer) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.failReads > 0 {
		m.failReads--
		return "", fmt.Errorf("%w: injected read failure", ErrUnavailable)
	}
	return m.text, nil
}

// Write replaces the text and records the write
func (m *MemoryBuffer) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	if m.failWrites > 0 {
		m.failWrites--
		m.mu.Unlock()
		return fmt.Errorf("%w: injected write failure", ErrUnavailable)
	}
	m.text = text
	m.writes = append(m.writes, text)
	subscribers := append([]chan struct{}(nil), m.subscribers...)
	m.mu.Unlock()

	for _, ch := range subscribers {
		notify(ch)
	}
	return nil
}

// Set changes the text from outside, as another program would
func (m *MemoryBuffer) Set(text string) {
	m.mu.Lock()
	m.text = text
	subscribers := append([]chan struct{}(nil), m.subscribers...)
	m.mu.Unlock()

	for _, ch := range subscribers {
		notify(ch)
	}
}

// Text returns the current text without going through Read
func (m *MemoryBuffer) Text() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.text
}

// Writes returns every text written through Write, in order
func (m *MemoryBuffer) Writes() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.writes...)
}

// FailNext makes the next reads and writes fail with ErrUnavailable
func (m *MemoryBuffer) FailNext(reads, writes int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failReads = reads
	m.failWrites = writes
}

// Changes signals every Set and Write until ctx is done
func (m *MemoryBuffer) Changes(ctx context.Context) (<-chan struct{}, error) {
	ch := make(chan struct{}, 1)

	m.mu.Lock()
	m.subscribers = append(m.subscribers, ch)
	m.mu.Unlock()

	out := make(chan struct{})
	go func() {
		defer close(out)
		defer m.unsubscribe(ch)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ch:
				select {
				case out <- struct{}{}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

func (m *MemoryBuffer) unsubscribe(ch chan struct{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sub := range m.subscribers {
		if sub == ch {
			m.subscribers = append(m.subscribers[:i], m.subscribers[i+1:]...)
			return
		}
	}
}

// Close is a no-op
func (m *MemoryBuffer) Close() error {
	return nil
}
