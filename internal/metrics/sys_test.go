package metrics

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetSysHealth(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.db"), make([]byte, 3*1024), 0o644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.db"), make([]byte, 1024), 0o644))

	h := GetSysHealth(dir)
	assert.Equal(t, int64(4*1024), h.DataBytes)
	assert.Equal(t, "4.0 KB", h.DataDiskSize)
	assert.Positive(t, h.Goroutines)
	assert.Positive(t, h.SysMB)
}

func TestDirSize(t *testing.T) {
	dir := t.TempDir()
	assert.Zero(t, dirSize(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "small"), []byte("hello"), 0o644))
	assert.Equal(t, int64(5), dirSize(dir))

	assert.Zero(t, dirSize(filepath.Join(dir, "missing")))
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "5 B", formatBytes(5))
	assert.Equal(t, "1.5 KB", formatBytes(1536))
	assert.Equal(t, "2.0 MB", formatBytes(2<<20))
}
