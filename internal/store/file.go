package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
)

// maxFileSize bounds a fingerprint document read from disk.
const maxFileSize = 16 << 20

// File keeps each key as a JSON array in <dir>/<key>.json. Writes go to a
// temporary file that is renamed into place.
type File struct {
	dir string
	mu  sync.Mutex
}

// NewFile creates the directory if needed and returns a store rooted there.
func NewFile(dir string) (*File, error) {
	if dir == "" {
		return nil, errors.New("store directory is required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating store directory: %w", err)
	}
	return &File{dir: dir}, nil
}

func (f *File) path(key string) string {
	return filepath.Join(f.dir, key+".json")
}

// Get implements collector.Persister.
func (f *File) Get(ctx context.Context, key string) ([]string, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	info, err := os.Stat(f.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", key, err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("%s: file too large (%d bytes)", key, info.Size())
	}

	data, err := os.ReadFile(f.path(key))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", key, err)
	}
	var fps []string
	if err := json.Unmarshal(data, &fps); err != nil {
		return nil, fmt.Errorf("decoding %s: %w", key, err)
	}
	if fps == nil {
		fps = []string{}
	}
	return fps, nil
}

// Set implements collector.Persister.
func (f *File) Set(ctx context.Context, key string, fingerprints []string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if fingerprints == nil {
		fingerprints = []string{}
	}
	data, err := json.Marshal(fingerprints)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	tmp, err := os.CreateTemp(f.dir, "."+key+"-*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("syncing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", key, err)
	}
	if err := os.Chmod(tmp.Name(), 0o600); err != nil {
		return fmt.Errorf("chmod %s: %w", key, err)
	}
	if err := os.Rename(tmp.Name(), f.path(key)); err != nil {
		return fmt.Errorf("replacing %s: %w", key, err)
	}
	return nil
}

// Close implements Store.
func (f *File) Close() error {
	return nil
}
