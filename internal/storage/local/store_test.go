package local_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/waymirror/waymirror/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Run("ExistingDir", func(t *testing.T) {
		store, err := local.New(t.TempDir())
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("CreatesMissingDir", func(t *testing.T) {
		base := filepath.Join(t.TempDir(), "example.com_20200601120000")
		store, err := local.New(base)
		require.NoError(t, err)
		assert.Equal(t, base, store.BaseDir())

		info, err := os.Stat(base)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})

	t.Run("EmptyBaseDir", func(t *testing.T) {
		_, err := local.New("")
		assert.Error(t, err)
	})

	t.Run("BaseDirIsAFile", func(t *testing.T) {
		file := filepath.Join(t.TempDir(), "occupied")
		require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))
		_, err := local.New(file)
		assert.Error(t, err)
	})

	t.Run("BaseDirNotWritable", func(t *testing.T) {
		base := t.TempDir()
		require.NoError(t, os.Chmod(base, 0o500))
		t.Cleanup(func() {
			_ = os.Chmod(base, 0o700)
		})

		_, err := local.New(base)
		assert.Error(t, err)
	})
}

func TestPut(t *testing.T) {
	base := t.TempDir()
	store, err := local.New(base)
	require.NoError(t, err)

	t.Run("WritesNestedPath", func(t *testing.T) {
		abs, err := store.Put("example.com/blog/post.html", []byte("<html></html>"))
		require.NoError(t, err)
		assert.Equal(t, filepath.Join(base, "example.com", "blog", "post.html"), abs)

		data, err := os.ReadFile(abs)
		require.NoError(t, err)
		assert.Equal(t, []byte("<html></html>"), data)
	})

	t.Run("OverwritesExisting", func(t *testing.T) {
		_, err := store.Put("example.com/index.html", []byte("old"))
		require.NoError(t, err)
		abs, err := store.Put("example.com/index.html", []byte("new"))
		require.NoError(t, err)

		data, err := os.ReadFile(abs)
		require.NoError(t, err)
		assert.Equal(t, []byte("new"), data)
	})

	t.Run("EmptyPath", func(t *testing.T) {
		_, err := store.Put("", []byte("x"))
		assert.Error(t, err)
	})

	t.Run("RejectsTraversal", func(t *testing.T) {
		_, err := store.Put("../outside.html", []byte("x"))
		assert.Error(t, err)
	})

	t.Run("LeavesNoTempFiles", func(t *testing.T) {
		_, err := store.Put("assets/css/example.com/site.css", []byte("body{}"))
		require.NoError(t, err)

		entries, err := os.ReadDir(filepath.Join(base, "assets", "css", "example.com"))
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "site.css", entries[0].Name())
	})
}
