package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, body string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
}

func TestScanDirectory(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.png"), "b")
	writeFile(t, filepath.Join(root, "a.JPG"), "a")
	writeFile(t, filepath.Join(root, "notes.txt"), "skip")
	writeFile(t, filepath.Join(root, "scan.pdf"), "skip")
	writeFile(t, filepath.Join(root, "sub", "c.gif"), "c")
	writeFile(t, filepath.Join(root, ".hidden", "d.png"), "d")
	writeFile(t, filepath.Join(root, ".e.png"), "e")

	uploads, results, stats, err := ScanDirectory(context.Background(), root, true)
	require.NoError(t, err)

	var names []string
	for _, u := range uploads {
		names = append(names, u.Filename)
	}
	assert.Equal(t, []string{"a.JPG", "b.png", "sub/c.gif"}, names)
	assert.Equal(t, []byte("a"), uploads[0].Data)
	assert.Len(t, results, 3)
	assert.Equal(t, uint32(3), stats.Matched)
	assert.Equal(t, uint32(3), stats.Succeeded)
	assert.Zero(t, stats.Failed)

	uploads, _, _, err = ScanDirectory(context.Background(), root, false)
	require.NoError(t, err)
	assert.Len(t, uploads, 5)
}

func TestScanDirectory_Errors(t *testing.T) {
	_, _, _, err := ScanDirectory(context.Background(), " ", true)
	assert.Error(t, err)

	_, results, stats, err := ScanDirectory(context.Background(), filepath.Join(t.TempDir(), "missing"), true)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.NotEmpty(t, results[0].Err)
	assert.Equal(t, uint32(1), stats.Failed)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.png"), "a")
	_, _, _, err = ScanDirectory(ctx, root, true)
	assert.ErrorIs(t, err, context.Canceled)
}
