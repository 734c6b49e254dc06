// Package store persists dedup fingerprints.
//
// Three backends are provided: File keeps one JSON document per key in a
// directory, NATSKV keeps them in a JetStream key-value bucket and Memory
// keeps them in process. All of them return an empty slice for a key that
// was never written.
package store

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
)

// ErrInvalidKey is returned for keys that are not safe as file names or KV
// keys.
var ErrInvalidKey = errors.New("invalid store key")

var validKey = regexp.MustCompile(`^[A-Za-z0-9_=-][A-Za-z0-9._=-]*$`)

// Store is a collector.Persister that holds resources.
type Store interface {
	collector.Persister
	Close() error
}

func checkKey(key string) error {
	if !validKey.MatchString(key) {
		return fmt.Errorf("%w: %q", ErrInvalidKey, key)
	}
	return nil
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Driver {
	case config.StoreFile:
		dir, err := config.ExpandHome(cfg.Dir)
		if err != nil {
			return nil, fmt.Errorf("resolving store dir: %w", err)
		}
		logger.Debug("using file store", zap.String("dir", dir))
		return NewFile(dir)
	case config.StoreNATS:
		logger.Debug("using nats kv store",
			zap.String("url", cfg.NATSURL),
			zap.String("bucket", cfg.Bucket),
		)
		return DialNATSKV(ctx, cfg.NATSURL, cfg.Bucket)
	case config.StoreMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.Driver)
	}
}
