package metadata

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScan(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "day2")
	require.NoError(t, os.Mkdir(sub, 0o755))

	for _, name := range []string{
		"a.jpg", "b.NEF", "c.jpeg.backup", "notes.txt", "d.mov",
		filepath.Join("day2", "e.cr2"),
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	files, err := Scan(dir)
	require.NoError(t, err)

	got := make([]string, 0, len(files))
	for _, f := range files {
		rel, err := filepath.Rel(dir, f)
		require.NoError(t, err)
		got = append(got, rel)
	}
	assert.Equal(t, []string{"a.jpg", "b.NEF", filepath.Join("day2", "e.cr2")}, got)
}

func TestScan_NotADirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.jpg")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	_, err := Scan(path)
	assert.ErrorContains(t, err, "not a directory")

	_, err = Scan(filepath.Join(t.TempDir(), "missing"))
	assert.Error(t, err)
}
