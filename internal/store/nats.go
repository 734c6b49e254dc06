package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NATSKV keeps fingerprints in a JetStream key-value bucket, so several
// collectors can share dedup state.
type NATSKV struct {
	nc     *nats.Conn
	owned  bool
	kv     jetstream.KeyValue
	bucket string
}

// DialNATSKV connects to url and opens bucket, creating it when missing.
// The connection is closed by Close.
func DialNATSKV(ctx context.Context, url, bucket string) (*NATSKV, error) {
	nc, err := nats.Connect(url, nats.Name("contextkeeper-store"))
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	s, err := NewNATSKV(ctx, nc, bucket)
	if err != nil {
		nc.Close()
		return nil, err
	}
	s.owned = true
	return s, nil
}

// NewNATSKV opens bucket on an existing connection. Close leaves nc open.
func NewNATSKV(ctx context.Context, nc *nats.Conn, bucket string) (*NATSKV, error) {
	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("creating jetstream context: %w", err)
	}
	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      bucket,
		Description: "contextkeeper dedup fingerprints",
		History:     1,
	})
	if err != nil {
		return nil, fmt.Errorf("opening kv bucket %q: %w", bucket, err)
	}
	return &NATSKV{nc: nc, kv: kv, bucket: bucket}, nil
}

// Get implements collector.Persister.
func (s *NATSKV) Get(ctx context.Context, key string) ([]string, error) {
	if err := checkKey(key); err != nil {
		return nil, err
	}
	entry, err := s.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("kv get %s/%s: %w", s.bucket, key, err)
	}
	var fps []string
	if err := json.Unmarshal(entry.Value(), &fps); err != nil {
		return nil, fmt.Errorf("decoding %s/%s: %w", s.bucket, key, err)
	}
	if fps == nil {
		fps = []string{}
	}
	return fps, nil
}

// Set implements collector.Persister.
func (s *NATSKV) Set(ctx context.Context, key string, fingerprints []string) error {
	if err := checkKey(key); err != nil {
		return err
	}
	if fingerprints == nil {
		fingerprints = []string{}
	}
	data, err := json.Marshal(fingerprints)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", key, err)
	}
	if _, err := s.kv.Put(ctx, key, data); err != nil {
		return fmt.Errorf("kv put %s/%s: %w", s.bucket, key, err)
	}
	return nil
}

// Close implements Store.
func (s *NATSKV) Close() error {
	if s.owned {
		s.nc.Close()
	}
	return nil
}
