package memory_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avvvet/skillbuddy-chat/internal/memory"
)

func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	store := memory.NewFileStore(filepath.Join(t.TempDir(), "sessions.json"))

	sessions, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func TestFileStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "sessions.json")
	store := memory.NewFileStore(path)

	in := memory.Sessions{
		"session_a": {turn(1), turn(2), turn(3)},
		"session_b": {},
	}
	in["session_a"][0].AI = "Kỹ năng <Go> & \"Rust\""
	require.NoError(t, store.Save(ctx, in))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Kỹ năng <Go> &")

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp files must not be left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	sessions, err := memory.NewFileStore(path).Load(context.Background())
	require.Error(t, err)
	assert.Empty(t, sessions)
}

func TestFileStore_ReadsLegacyFormat(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sessions.json")
	legacy := `{
  "session_20240101_120000": [
    {"timestamp": "2024-01-01T12:00:01.123456", "user": "hi", "ai": "hello"}
  ]
}`
	require.NoError(t, os.WriteFile(path, []byte(legacy), 0o600))

	sessions, err := memory.NewFileStore(path).Load(context.Background())
	require.NoError(t, err)
	require.Len(t, sessions["session_20240101_120000"], 1)
	assert.Equal(t, "hello", sessions["session_20240101_120000"][0].AI)
}

func TestRedisStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	store, err := memory.NewRedisStore("redis://"+mr.Addr()+"/0", "test:sessions")
	require.NoError(t, err)
	defer store.Close()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	in := memory.Sessions{"session_a": {turn(1), turn(2)}}
	require.NoError(t, store.Save(ctx, in))
	assert.True(t, mr.Exists("test:sessions"))
	assert.Equal(t, 0, int(mr.TTL("test:sessions")))

	out, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, in, out)
	require.NoError(t, store.Ping(ctx))
}

func TestRedisStore_CorruptValue(t *testing.T) {
	mr := miniredis.RunT(t)
	require.NoError(t, mr.Set("test:sessions", "nope"))

	store, err := memory.NewRedisStore("redis://"+mr.Addr()+"/0", "test:sessions")
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load(context.Background())
	assert.Error(t, err)
}

func TestNewRedisStore_BadURL(t *testing.T) {
	_, err := memory.NewRedisStore("://bad", "k")
	assert.Error(t, err)
}
