package logger

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSmallWriter(t *testing.T, maxBytes int64, keep int) (*RotatingWriter, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "driver.log")
	w, err := NewRotatingWriter(path, 1, keep)
	require.NoError(t, err)
	w.maxBytes = maxBytes
	t.Cleanup(func() { w.Close() })

	return w, path
}

func rotatedFiles(t *testing.T, path string) []string {
	t.Helper()

	matches, err := filepath.Glob(path + ".*")
	require.NoError(t, err)
	return matches
}

func TestRotatingWriterRotatesBySize(t *testing.T) {
	w, path := newSmallWriter(t, 64, 0)

	first := strings.Repeat("a", 40) + "\n"
	_, err := w.Write([]byte(first))
	require.NoError(t, err)
	assert.Empty(t, rotatedFiles(t, path))

	_, err = w.Write([]byte(strings.Repeat("b", 40) + "\n"))
	require.NoError(t, err)

	rotated := rotatedFiles(t, path)
	require.Len(t, rotated, 1)
	assert.True(t, strings.HasSuffix(rotated[0], ".gz"))

	// The live file holds only the post-rotation write.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "a")
	assert.Contains(t, string(data), "b")
}

func TestRotatingWriterCompressesRotatedFile(t *testing.T) {
	w, path := newSmallWriter(t, 64, 0)

	first := strings.Repeat("a", 40) + "\n"
	_, err := w.Write([]byte(first))
	require.NoError(t, err)
	_, err = w.Write([]byte(strings.Repeat("b", 40) + "\n"))
	require.NoError(t, err)

	rotated := rotatedFiles(t, path)
	require.Len(t, rotated, 1)

	f, err := os.Open(rotated[0])
	require.NoError(t, err)
	defer f.Close()

	gzr, err := gzip.NewReader(f)
	require.NoError(t, err)
	defer gzr.Close()

	data, err := io.ReadAll(gzr)
	require.NoError(t, err)
	assert.Equal(t, first, string(data))
}

func TestRotatingWriterPrunes(t *testing.T) {
	w, path := newSmallWriter(t, 64, 2)

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte(strings.Repeat("x", 40) + "\n"))
		require.NoError(t, err)
	}

	assert.Len(t, rotatedFiles(t, path), 2)
}

func TestRotatingWriterKeepZeroDisablesPruning(t *testing.T) {
	w, path := newSmallWriter(t, 64, 0)

	for i := 0; i < 5; i++ {
		_, err := w.Write([]byte(strings.Repeat("x", 40) + "\n"))
		require.NoError(t, err)
	}

	assert.Len(t, rotatedFiles(t, path), 4)
}

func TestNewRotatingWriterCreatesDirectories(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "logs", "driver.log")

	w, err := NewRotatingWriter(path, 1, 0)
	require.NoError(t, err)
	defer w.Close()

	_, err = w.Write([]byte("hello\n"))
	require.NoError(t, err)
	assert.FileExists(t, path)
}
