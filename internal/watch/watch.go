// Package watch re-reads a saved page whenever it changes on disk.
package watch

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// ErrWatcherFailed indicates the filesystem watcher failed to initialize.
var ErrWatcherFailed = errors.New("failed to initialize filesystem watcher")

// ApplyFunc receives the current content of the watched file.
type ApplyFunc func(ctx context.Context, content []byte) error

// File watches a single file. The parent directory is watched so that
// editors and browsers replacing the file by rename are still seen.
type File struct {
	path    string
	watcher *fsnotify.Watcher
	logger  *zap.Logger
}

// NewFile creates a watcher for path.
func NewFile(path string, logger *zap.Logger) (*File, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolving %s: %w", path, err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWatcherFailed, err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, fmt.Errorf("watching %s: %w", filepath.Dir(abs), err)
	}
	return &File{path: abs, watcher: w, logger: logger}, nil
}

// Path returns the absolute path being watched.
func (f *File) Path() string {
	return f.path
}

// Run calls apply with the file content once at start and again after
// every write, create or rename onto the path, until ctx is done. Read and
// apply failures are logged and watching continues.
func (f *File) Run(ctx context.Context, apply ApplyFunc) error {
	defer f.watcher.Close()

	f.reload(ctx, apply)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-f.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != f.path {
				continue
			}
			if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
				f.reload(ctx, apply)
			}
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return nil
			}
			f.logger.Warn("watcher error", zap.String("path", f.path), zap.Error(err))
		}
	}
}

func (f *File) reload(ctx context.Context, apply ApplyFunc) {
	content, err := os.ReadFile(f.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			f.logger.Warn("failed to read watched file", zap.String("path", f.path), zap.Error(err))
		}
		return
	}
	// truncated mid-write
	if len(content) == 0 {
		return
	}
	if err := apply(ctx, content); err != nil {
		f.logger.Warn("failed to apply page snapshot", zap.String("path", f.path), zap.Error(err))
	}
}
