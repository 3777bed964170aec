// Package local_test tests the local filesystem snapshot archive.
package local_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agriveille/prefecture-crawler/internal/archive/local"
)

func TestNew(t *testing.T) {
	t.Run("ValidConfig", func(t *testing.T) {
		tempDir := t.TempDir()
		store, err := local.New(local.Config{BaseDir: tempDir})
		require.NoError(t, err)
		assert.NotNil(t, store)
	})

	t.Run("MissingBaseDir", func(t *testing.T) {
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("BaseDirIsNotADirectory", func(t *testing.T) {
		tempFile, err := os.CreateTemp("", "testfile")
		require.NoError(t, err)
		t.Cleanup(func() {
			removeErr := os.Remove(tempFile.Name())
			if removeErr != nil && !os.IsNotExist(removeErr) {
				t.Fatalf("failed to remove temp file: %v", removeErr)
			}
		})

		_, err = local.New(local.Config{BaseDir: tempFile.Name()})
		assert.Error(t, err)
	})

	t.Run("CreatesMissingBaseDir", func(t *testing.T) {
		dir := filepath.Join(t.TempDir(), "snapshots")
		_, err := local.New(local.Config{BaseDir: dir})
		require.NoError(t, err)
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	})
}

func TestSave(t *testing.T) {
	tempDir := t.TempDir()
	store, err := local.New(local.Config{BaseDir: tempDir})
	require.NoError(t, err)

	t.Run("ValidSave", func(t *testing.T) {
		data := []byte("<html>notice</html>")
		uri, err := store.Save(context.Background(), "ab/cdef.html", "text/html", data)
		require.NoError(t, err)

		expectedURI := "file://" + filepath.Join(tempDir, "ab/cdef.html")
		assert.Equal(t, expectedURI, uri)

		// #nosec G304 -- test reads from the controlled temp directory.
		readData, err := os.ReadFile(filepath.Join(tempDir, "ab/cdef.html"))
		require.NoError(t, err)
		assert.Equal(t, data, readData)
	})

	t.Run("EmptyObjectName", func(t *testing.T) {
		_, err := store.Save(context.Background(), "", "text/html", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("PathTraversalRejected", func(t *testing.T) {
		_, err := store.Save(context.Background(), "../escape.html", "text/html", []byte("data"))
		assert.Error(t, err)
	})

	t.Run("NestedObjectName", func(t *testing.T) {
		uri, err := store.Save(context.Background(), "a/b/c/object.html", "text/html", []byte("nested"))
		require.NoError(t, err)
		assert.Equal(t, "file://"+filepath.Join(tempDir, "a/b/c/object.html"), uri)
	})
}
