package runstate

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(t.TempDir(), nil, func() time.Time { return fixedNow })
}

type doc struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestStore_PutGet(t *testing.T) {
	s := newTestStore(t)

	var got doc
	assert.ErrorIs(t, s.Get("run-1", "other.json", &got), ErrNotFound)
	assert.False(t, s.Exists("run-1", "other.json"))

	require.NoError(t, s.Put("run-1", "other.json", doc{Name: "a", Count: 2}))
	assert.True(t, s.Exists("run-1", "other.json"))
	require.NoError(t, s.Get("run-1", "other.json", &got))
	assert.Equal(t, doc{Name: "a", Count: 2}, got)

	require.NoError(t, s.Put("run-1", "other.json", doc{Name: "b", Count: 3}))
	require.NoError(t, s.Get("run-1", "other.json", &got))
	assert.Equal(t, "b", got.Name)

	entries, err := os.ReadDir(s.RunDir("run-1"))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files must not be left behind")

	require.NoError(t, s.Delete("run-1", "other.json"))
	require.NoError(t, s.Delete("run-1", "other.json"))
	assert.False(t, s.Exists("run-1", "other.json"))
}

func TestStore_PutRequiresRunID(t *testing.T) {
	s := newTestStore(t)
	assert.Error(t, s.Put("", KeyManifest, doc{}))
}

func TestStore_GetCorruptDocument(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, os.MkdirAll(s.RunDir("run-1"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(s.RunDir("run-1"), string(KeyManifest)), []byte("{not json"), 0o644))

	var got doc
	err := s.Get("run-1", KeyManifest, &got)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestStore_SchemaDriftIsOnlyLogged(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewStore(t.TempDir(), zap.New(core), nil)

	require.NoError(t, s.Put("run-1", KeyManifest, map[string]any{"run_id": "run-1"}))

	var got map[string]any
	require.NoError(t, s.Get("run-1", KeyManifest, &got))
	assert.Equal(t, "run-1", got["run_id"])
	assert.Equal(t, 1, logs.FilterMessage("run document does not match schema").Len())
}

func TestStore_List(t *testing.T) {
	s := newTestStore(t)

	ids, err := s.List()
	require.NoError(t, err)
	assert.Empty(t, ids)

	require.NoError(t, s.Put("b-q1-minimal", KeyManifest, doc{}))
	require.NoError(t, s.Put("a-q1-minimal", KeyManifest, doc{}))
	require.NoError(t, s.Put("c-q1-minimal", KeyResumeState, doc{}))

	ids, err = s.List()
	require.NoError(t, err)
	assert.Equal(t, []string{"a-q1-minimal", "b-q1-minimal"}, ids)
}

func TestWriteFileAtomic_CreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "deeper", "file.txt")
	require.NoError(t, WriteFileAtomic(path, []byte("hello")))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(data))
}
