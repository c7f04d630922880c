package memory

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleSnapshot() Snapshot {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589000000, time.UTC)
	return Snapshot{
		"user_1": {
			{Role: RoleUser, Content: "hello", Timestamp: ts},
			{Role: RoleAssistant, Content: "hi there", Timestamp: ts.Add(time.Second), Provider: "openai", Model: "gpt-4o"},
		},
		"user_2": {
			{Role: RoleUser, Content: "deploy my repo", Timestamp: ts},
			{Role: RoleAssistant, Content: "Anthropic Error: boom", Timestamp: ts, Provider: "anthropic", Model: "claude-sonnet-4-5"},
		},
	}
}

func assertRoundTrip(t *testing.T, store Store) {
	t.Helper()
	ctx := context.Background()

	empty, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, empty)

	want := sampleSnapshot()
	require.NoError(t, store.Save(ctx, want))

	got, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, want, got)

	// Full rewrite: users missing from the new snapshot disappear.
	next := Snapshot{"user_2": want["user_2"]}
	require.NoError(t, store.Save(ctx, next))
	got, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, next, got)
}

func TestInMemoryStoreRoundTrip(t *testing.T) {
	assertRoundTrip(t, NewInMemoryStore())
}

func TestFileStoreRoundTrip(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "nested", "memory.json"))
	require.NoError(t, err)
	assertRoundTrip(t, store)
}

func TestFileStoreDocumentLayout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Save(context.Background(), Snapshot{"u1": {
		{Role: RoleUser, Content: "hi", Timestamp: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
	}}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.JSONEq(t, `{"u1":[{"role":"user","content":"hi","timestamp":"2026-01-02T03:04:05Z"}]}`, string(raw))

	leftovers, err := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	require.NoError(t, err)
	assert.Empty(t, leftovers)
}

func TestFileStoreCorruptDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	_, err = store.Load(context.Background())
	require.Error(t, err)

	m := NewManager(store, ManagerOptions{Logger: testLogger()})
	m.Load(context.Background())
	assert.Equal(t, 0, m.UserCount())
}

func TestFileStoreNullDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	require.NoError(t, os.WriteFile(path, []byte("null"), 0o644))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	got, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestSQLiteStoreRoundTrip(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "memory.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assertRoundTrip(t, store)
}

func TestBadgerStoreRoundTrip(t *testing.T) {
	store, err := NewBadgerStore(filepath.Join(t.TempDir(), "badger"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	assertRoundTrip(t, store)
}

func TestManagerSurvivesRestartWithFileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "memory.json")
	store, err := NewFileStore(path)
	require.NoError(t, err)

	first := NewManager(store, ManagerOptions{Logger: testLogger()})
	first.Load(context.Background())
	u, a := exchange(1)
	require.NoError(t, first.AppendExchange(context.Background(), "u1", u, a))

	reopened, err := NewFileStore(path)
	require.NoError(t, err)
	second := NewManager(reopened, ManagerOptions{Logger: testLogger()})
	second.Load(context.Background())

	assert.Equal(t, first.Snapshot(), second.Snapshot())
}

func TestNewStoreBackends(t *testing.T) {
	dir := t.TempDir()
	cases := []struct {
		name    string
		cfg     StoreConfig
		wantErr bool
	}{
		{name: "default file", cfg: StoreConfig{FilePath: filepath.Join(dir, "memory.json")}},
		{name: "memory", cfg: StoreConfig{Backend: "memory"}},
		{name: "sqlite", cfg: StoreConfig{Backend: "SQLite", SQLitePath: filepath.Join(dir, "m.db")}},
		{name: "postgres without url", cfg: StoreConfig{Backend: "postgres"}, wantErr: true},
		{name: "unknown", cfg: StoreConfig{Backend: "etcd"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			store, err := NewStore(context.Background(), tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NoError(t, store.Close())
		})
	}
}
