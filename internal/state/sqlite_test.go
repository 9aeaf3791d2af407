package state

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/pollwatch/internal/model"
)

// newTestStore creates an in-memory store with all migrations applied.
func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)

	t.Cleanup(func() {
		assert.NoError(t, s.Close())
	})

	return s
}

const ttl = 7 * 24 * time.Hour

func TestReadMissingKeyReturnsEmptyMap(t *testing.T) {
	s := newTestStore(t)

	m, err := s.Read(context.Background(), "never-written", ttl)

	require.NoError(t, err)
	assert.NotNil(t, m)
	assert.Empty(t, m)
	assert.True(t, m.IsFirstRun())
}

func TestWriteReadRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	m := model.StateMap{
		"drive://d/1": {URI: "drive://d/1", Version: "etag-1", FirstSeenAt: now, LastSeenAt: now},
		"drive://d/2": {URI: "drive://d/2", Version: "size:42", FirstSeenAt: now, LastSeenAt: now},
	}
	m.SetCursor("delta-token", now)

	require.NoError(t, s.Write(ctx, "trig-1", m))

	got, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "etag-1", got["drive://d/1"].Version)
	assert.Equal(t, "delta-token", got.Cursor())
	assert.True(t, got["drive://d/1"].FirstSeenAt.Equal(now))
}

func TestWriteReplacesPreviousState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	first := model.StateMap{
		"a": {URI: "a", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
		"b": {URI: "b", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
	}
	require.NoError(t, s.Write(ctx, "trig-1", first))

	second := model.StateMap{
		"a": {URI: "a", Version: "v2", FirstSeenAt: now, LastSeenAt: now},
	}
	require.NoError(t, s.Write(ctx, "trig-1", second))

	got, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)
	assert.Len(t, got, 1)
	assert.Equal(t, "v2", got["a"].Version)
}

func TestReadPrunesExpiredEntries(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	m := model.StateMap{
		"fresh": {URI: "fresh", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
		"stale": {
			URI: "stale", Version: "v1",
			FirstSeenAt: now.Add(-30 * 24 * time.Hour),
			LastSeenAt:  now.Add(-30 * 24 * time.Hour),
		},
	}
	m.SetCursor("token", now.Add(-30*24*time.Hour))
	require.NoError(t, s.Write(ctx, "trig-1", m))

	got, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)

	_, ok := got["fresh"]
	assert.True(t, ok)
	_, ok = got["stale"]
	assert.False(t, ok, "entries past their TTL must not be returned")
	assert.Equal(t, "token", got.Cursor(), "the cursor entry is TTL-exempt")
}

func TestKeysAreIndependent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Write(ctx, "trig-1", model.StateMap{
		"a": {URI: "a", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
	}))
	require.NoError(t, s.Write(ctx, "trig-2", model.StateMap{
		"b": {URI: "b", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
	}))

	got1, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)
	got2, err := s.Read(ctx, "trig-2", ttl)
	require.NoError(t, err)

	assert.Len(t, got1, 1)
	assert.Len(t, got2, 1)
	_, ok := got1["b"]
	assert.False(t, ok)
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Write(ctx, "trig-1", model.StateMap{
		"a": {URI: "a", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
	}))
	require.NoError(t, s.Delete(ctx, "trig-1"))

	got, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteEmptyMapClearsState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.Write(ctx, "trig-1", model.StateMap{
		"a": {URI: "a", Version: "v1", FirstSeenAt: now, LastSeenAt: now},
	}))
	require.NoError(t, s.Write(ctx, "trig-1", model.StateMap{}))

	got, err := s.Read(ctx, "trig-1", ttl)
	require.NoError(t, err)
	assert.True(t, got.IsFirstRun())
}
