package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/contextkeeper/internal/collector"
	"github.com/fyrsmithlabs/contextkeeper/internal/config"
)

// startTestNATSServer starts an embedded NATS server with JetStream.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	t.Helper()
	opts := &natsserver.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func backends(t *testing.T) map[string]Store {
	t.Helper()
	file, err := NewFile(filepath.Join(t.TempDir(), "state"))
	require.NoError(t, err)

	server := startTestNATSServer(t)
	kv, err := DialNATSKV(context.Background(), server.ClientURL(), "test-fingerprints")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	return map[string]Store{
		"memory": NewMemory(),
		"file":   file,
		"nats":   kv,
	}
}

func TestStores(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			got, err := s.Get(ctx, "missing")
			require.NoError(t, err)
			assert.NotNil(t, got)
			assert.Empty(t, got)

			require.NoError(t, s.Set(ctx, collector.DefaultStorageKey, []string{"user::a", "assistant::b"}))
			got, err = s.Get(ctx, collector.DefaultStorageKey)
			require.NoError(t, err)
			assert.Equal(t, []string{"user::a", "assistant::b"}, got)

			// overwrite
			require.NoError(t, s.Set(ctx, collector.DefaultStorageKey, []string{"user::c"}))
			got, err = s.Get(ctx, collector.DefaultStorageKey)
			require.NoError(t, err)
			assert.Equal(t, []string{"user::c"}, got)

			require.NoError(t, s.Set(ctx, "empty", nil))
			got, err = s.Get(ctx, "empty")
			require.NoError(t, err)
			assert.Empty(t, got)

			assert.ErrorIs(t, s.Set(ctx, "../escape", nil), ErrInvalidKey)
			_, err = s.Get(ctx, ".hidden")
			assert.ErrorIs(t, err, ErrInvalidKey)
		})
	}
}

func TestStores_BackDedup(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			d := collector.NewDedup(s, "", 2)
			d.Record("one")
			d.Record("two")
			d.Record("three")
			require.NoError(t, d.Save(ctx))

			restored := collector.NewDedup(s, "", 2)
			require.NoError(t, restored.Load(ctx))
			assert.Equal(t, []string{"two", "three"}, restored.Fingerprints())
		})
	}
}

func TestFile_Layout(t *testing.T) {
	dir := t.TempDir()
	f, err := NewFile(dir)
	require.NoError(t, err)
	require.NoError(t, f.Set(context.Background(), "k", []string{"x"}))

	data, err := os.ReadFile(filepath.Join(dir, "k.json"))
	require.NoError(t, err)
	assert.JSONEq(t, `["x"]`, string(data))

	info, err := os.Stat(filepath.Join(dir, "k.json"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not linger")
}

func TestFile_CorruptDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "k.json"), []byte("{not json"), 0o600))
	f, err := NewFile(dir)
	require.NoError(t, err)

	_, err = f.Get(context.Background(), "k")
	assert.ErrorContains(t, err, "decoding k")
}

func TestFile_CancelledContext(t *testing.T) {
	f, err := NewFile(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = f.Get(ctx, "k")
	assert.ErrorIs(t, err, context.Canceled)
	assert.ErrorIs(t, f.Set(ctx, "k", nil), context.Canceled)
}

func TestNATSKV_SharedConnection(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	s, err := NewNATSKV(context.Background(), nc, "shared")
	require.NoError(t, err)
	require.NoError(t, s.Close())
	assert.True(t, nc.IsConnected(), "Close must not close a borrowed connection")
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, config.StoreConfig{Driver: config.StoreMemory}, nil)
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, config.StoreConfig{Driver: config.StoreFile, Dir: t.TempDir()}, nil)
	require.NoError(t, err)
	assert.IsType(t, &File{}, s)

	server := startTestNATSServer(t)
	s, err = Open(ctx, config.StoreConfig{Driver: config.StoreNATS, NATSURL: server.ClientURL(), Bucket: "open"}, nil)
	require.NoError(t, err)
	assert.IsType(t, &NATSKV{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, config.StoreConfig{Driver: "redis"}, nil)
	assert.ErrorContains(t, err, "unknown store driver")
}
