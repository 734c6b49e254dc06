package collector

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFingerprint(t *testing.T) {
	assert.Equal(t, "user::hi", Fingerprint(Message{Role: RoleUser, Text: "hi"}))

	long := strings.Repeat("ж", 2500)
	fp := Fingerprint(Message{Role: RoleAssistant, Text: long})
	assert.Equal(t, "assistant::"+strings.Repeat("ж", 2000), fp)

	// texts sharing the first 2000 runes collide
	a := Fingerprint(Message{Role: RoleUser, Text: strings.Repeat("x", 2000) + "a"})
	b := Fingerprint(Message{Role: RoleUser, Text: strings.Repeat("x", 2000) + "b"})
	assert.Equal(t, a, b)
}

func TestDedup_RecordAndEvict(t *testing.T) {
	d := NewDedup(nil, "", 3)
	for i := range 4 {
		d.Record(fmt.Sprintf("fp%d", i))
	}

	assert.Equal(t, 3, d.Len())
	assert.False(t, d.Has("fp0"))
	assert.True(t, d.Has("fp1"))
	assert.True(t, d.Has("fp3"))
	assert.Equal(t, []string{"fp1", "fp2", "fp3"}, d.Fingerprints())

	// evicted fingerprints can come back
	d.Record("fp0")
	assert.True(t, d.Has("fp0"))
	assert.False(t, d.Has("fp1"))
}

func TestDedup_DuplicateEntriesEvictIndependently(t *testing.T) {
	d := NewDedup(nil, "", 2)
	d.Record("a")
	d.Record("a")
	d.Record("b")
	assert.True(t, d.Has("a"))
	d.Record("c")
	assert.False(t, d.Has("a"))
}

func TestDedup_DefaultCapacity(t *testing.T) {
	d := NewDedup(nil, "", 0)
	for i := range DefaultCapacity + 25 {
		d.Record(fmt.Sprint(i))
	}
	assert.Equal(t, DefaultCapacity, d.Len())
	assert.False(t, d.Has("24"))
	assert.True(t, d.Has("25"))
}

func TestDedup_LoadSave(t *testing.T) {
	ctx := context.Background()
	p := newMemPersister()
	p.data[DefaultStorageKey] = []string{"old1", "old2", "old3", "old4"}

	d := NewDedup(p, "", 3)
	require.NoError(t, d.Load(ctx))
	assert.Equal(t, []string{"old2", "old3", "old4"}, d.Fingerprints())

	d.Record("new")
	require.NoError(t, d.Save(ctx))
	assert.Equal(t, []string{"old3", "old4", "new"}, p.data[DefaultStorageKey])
}

func TestDedup_LoadMissingKey(t *testing.T) {
	d := NewDedup(newMemPersister(), "custom", 10)
	require.NoError(t, d.Load(context.Background()))
	assert.Zero(t, d.Len())
}

func TestDedup_Errors(t *testing.T) {
	p := newMemPersister()
	p.getErr = errors.New("boom")
	p.setErr = errors.New("full")

	d := NewDedup(p, "", 10)
	assert.ErrorContains(t, d.Load(context.Background()), "boom")
	assert.ErrorContains(t, d.Save(context.Background()), "full")
}

func TestDedup_NoPersister(t *testing.T) {
	d := NewDedup(nil, "", 10)
	d.Record("x")
	assert.NoError(t, d.Save(context.Background()))
	assert.NoError(t, d.Load(context.Background()))
	assert.True(t, d.Has("x"))
}
