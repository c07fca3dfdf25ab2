package buffer

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const utf8BOM = "\ufeff"

// FileBuffer uses a UTF-8 text file as the buffer, e.g. the output file of
// a text hooker.
type FileBuffer struct {
	path   string
	logger *zap.Logger
	mu     sync.Mutex
}

// NewFileBuffer creates the file (and its directory) when missing
func NewFileBuffer(path string, logger *zap.Logger) (*FileBuffer, error) {
	if path == "" {
		return nil, fmt.Errorf("file buffer: empty path")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("file buffer: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("file buffer: failed to create directory: %w", err)
	}

	file, err := os.OpenFile(abs, os.O_CREATE|os.O_RDONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("file buffer: %w", err)
	}
	file.Close()

	logger.Info("File buffer opened", zap.String("path", abs))

	return &FileBuffer{path: abs, logger: logger}, nil
}

// Path returns the absolute path of the file
func (f *FileBuffer) Path() string {
	return f.path
}

// Read returns the file contents without a leading byte order mark
func (f *FileBuffer) Read(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	if !utf8.Valid(data) {
		return "", ErrNotText
	}

	return strings.TrimPrefix(string(data), utf8BOM), nil
}

// Write replaces the file contents
func (f *FileBuffer) Write(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if err := os.WriteFile(f.path, []byte(text), 0o644); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Changes signals writes to the file. The directory is watched so that
// editors replacing the file by rename are seen too.
func (f *FileBuffer) Changes(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("file buffer: failed to create watcher: %w", err)
	}

	if err := watcher.Add(filepath.Dir(f.path)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("file buffer: failed to watch directory: %w", err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				return
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != f.path {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) || event.Has(fsnotify.Rename) {
					notify(out)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				f.logger.Warn("File watcher error", zap.String("path", f.path), zap.Error(err))
			}
		}
	}()

	return out, nil
}

// Close is a no-op; the file is not held open
func (f *FileBuffer) Close() error {
	return nil
}
