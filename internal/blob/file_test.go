package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStoreReadWrite(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data"))
	require.NoError(t, err)

	_, err = s.Read(ctx, "missing.json")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.Write(ctx, "doc.json", []byte(`{"a":1}`)))
	require.NoError(t, s.Write(ctx, "doc.json", []byte(`{"a":2}`)))

	data, err := s.Read(ctx, "doc.json")
	require.NoError(t, err)
	assert.Equal(t, `{"a":2}`, string(data))
}

func TestFileStoreList(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	for _, key := range []string{"learning_log_20240102.json", "learning_log_20240101.json", "learning_progress.json"} {
		require.NoError(t, s.Write(ctx, key, []byte("[]")))
	}
	require.NoError(t, os.Mkdir(filepath.Join(dir, "learning_log_dir"), 0755))

	keys, err := s.List(ctx, "learning_log_")
	require.NoError(t, err)
	assert.Equal(t, []string{"learning_log_20240101.json", "learning_log_20240102.json"}, keys)
}

func TestFileStoreRejectsPathKeys(t *testing.T) {
	ctx := context.Background()
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	for _, key := range []string{"", "../escape.json", "nested/doc.json"} {
		assert.Error(t, s.Write(ctx, key, []byte("{}")), "key %q", key)
		_, err := s.Read(ctx, key)
		assert.Error(t, err, "key %q", key)
	}
}
