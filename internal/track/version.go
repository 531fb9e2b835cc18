package track

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// TrackFileName returns the canonical track file name for a source folder,
// with an explicit marker when the coordinates were anonymized.
func TrackFileName(sourceDir string, anonymized bool) string {
	name := "gps_track_" + sanitizeName(filepath.Base(filepath.Clean(sourceDir)))
	if anonymized {
		name += "_anonymized"
	}
	return name + ".gpx"
}

// VersionedPath returns dir/base, or the smallest numeric suffix variant
// (base_1, base_2, ...) not already present. Existing files are never
// overwritten, and the choice is deterministic.
func VersionedPath(dir, base string) (string, error) {
	path := filepath.Join(dir, base)
	exists, err := fileExists(path)
	if err != nil {
		return "", err
	}
	if !exists {
		return path, nil
	}

	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	for n := 1; ; n++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, n, ext))
		exists, err := fileExists(path)
		if err != nil {
			return "", err
		}
		if !exists {
			return path, nil
		}
	}
}

func fileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func sanitizeName(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_', r == '.':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
