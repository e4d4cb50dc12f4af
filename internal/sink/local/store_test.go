// Package local_test tests the local filesystem artifact destination.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cna-research/geoharvest/internal/sink/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		store, err := local.New(local.Config{BaseDir: t.TempDir()})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("CreatesAbsentBaseDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "nested", "artifacts")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := local.New(local.Config{BaseDir: path})
		assert.Error(t, err)
	})
}

func TestExistsAndWrite(t *testing.T) {
	dir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("MissingObject", func(t *testing.T) {
		ok, err := store.Exists(ctx, "prefix/absent.pdf")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("WriteThenExists", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, "prefix/a.pdf", strings.NewReader("payload")))

		ok, err := store.Exists(ctx, "prefix/a.pdf")
		require.NoError(t, err)
		assert.True(t, ok)

		data, err := os.ReadFile(filepath.Join(dir, "prefix", "a.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "payload", string(data))
	})

	t.Run("NeverOverwrites", func(t *testing.T) {
		require.NoError(t, store.Write(ctx, "prefix/b.pdf", strings.NewReader("first")))
		err := store.Write(ctx, "prefix/b.pdf", strings.NewReader("second"))
		assert.Error(t, err)

		data, err := os.ReadFile(filepath.Join(dir, "prefix", "b.pdf"))
		require.NoError(t, err)
		assert.Equal(t, "first", string(data))
	})

	t.Run("PathTraversalRejected", func(t *testing.T) {
		err := store.Write(ctx, "../escape.pdf", strings.NewReader("x"))
		assert.Error(t, err)
		_, err = store.Exists(ctx, "../escape.pdf")
		assert.Error(t, err)
	})

	t.Run("EmptyName", func(t *testing.T) {
		err := store.Write(ctx, "  ", strings.NewReader("x"))
		assert.Error(t, err)
	})
}
