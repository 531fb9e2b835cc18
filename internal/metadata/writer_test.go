package metadata

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/observability"
)

func testWriter(runner *fakeRunner) *Writer {
	return NewWriter(NewToolWithRunner("exiftool", runner), testLogger(), observability.NewMetricsForTesting())
}

func parisPoint() domain.TrackPoint {
	return domain.TrackPoint{
		Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
		Coord:     domain.Coordinate{Lat: 48.8566, Lon: 2.3522},
		Place:     domain.PlaceInfo{City: "Paris", State: "Ile-de-France", Country: "France", CountryCode: "FR"},
	}
}

func TestTagArgs(t *testing.T) {
	t.Run("northern hemisphere", func(t *testing.T) {
		args := tagArgs(parisPoint())
		assert.Contains(t, args, "-GPSVersionID=2 3 0 0")
		assert.Contains(t, args, "-GPSLatitude=48.856600")
		assert.Contains(t, args, "-GPSLatitudeRef=N")
		assert.Contains(t, args, "-GPSLongitude=2.352200")
		assert.Contains(t, args, "-GPSLongitudeRef=E")
		assert.Contains(t, args, "-IPTC:City=Paris")
		assert.Contains(t, args, "-IPTC:Province-State=Ile-de-France")
		assert.Contains(t, args, "-IPTC:Country-PrimaryLocationName=France")
		assert.Contains(t, args, "-IPTC:Country-PrimaryLocationCode=FR")
	})

	t.Run("southern hemisphere below sea level", func(t *testing.T) {
		alt := -30.25
		args := tagArgs(domain.TrackPoint{
			Coord:    domain.Coordinate{Lat: -31.5, Lon: -64.18},
			Altitude: &alt,
		})
		assert.Contains(t, args, "-GPSLatitude=31.500000")
		assert.Contains(t, args, "-GPSLatitudeRef=S")
		assert.Contains(t, args, "-GPSLongitude=64.180000")
		assert.Contains(t, args, "-GPSLongitudeRef=W")
		assert.Contains(t, args, "-GPSAltitude=30.25")
		assert.Contains(t, args, "-GPSAltitudeRef=1")
		assert.NotContains(t, args, "-IPTC:City=")
	})
}

func TestWriter_Apply_JPEGInPlace(t *testing.T) {
	path := writePhoto(t, "shot.jpg")
	runner := &fakeRunner{}

	res, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, path, res.Path)
	assert.False(t, res.BackedUp)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.Equal(t, "exiftool", call[0])
	assert.Contains(t, call, "-overwrite_original")
	assert.Equal(t, path, call[len(call)-1], "JPEG writes go straight to the original")
}

func TestWriter_Apply_StagedForRAW(t *testing.T) {
	path := writePhoto(t, "shot.nef")
	runner := &fakeRunner{}

	_, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	target := call[len(call)-1]
	assert.NotEqual(t, path, target, "RAW writes never touch the original directly")
	assert.Equal(t, ".nef", filepath.Ext(target))

	// The staged copy replaced the original; content survives intact.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "not a real image", string(data))
}

func TestWriter_Apply_StagedForNonASCIIPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "café.jpg")
	require.NoError(t, os.WriteFile(path, []byte("img"), 0o644))
	runner := &fakeRunner{}

	_, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{})
	require.NoError(t, err)

	require.Len(t, runner.calls, 1)
	call := runner.calls[0]
	assert.NotEqual(t, path, call[len(call)-1])
}

func TestWriter_Apply_DryRun(t *testing.T) {
	path := writePhoto(t, "shot.jpg")
	runner := &fakeRunner{}

	res, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{DryRun: true, Backup: true})
	require.NoError(t, err)

	assert.True(t, res.DryRun)
	assert.False(t, res.BackedUp)
	// The report still carries the exact assignments a real run would make.
	assert.Contains(t, res.Tags, "-IPTC:City=Paris")

	assert.Empty(t, runner.calls, "dry run must not invoke exiftool")
	_, err = os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(err), "dry run must not create backups")
}

func TestWriter_Apply_Backup(t *testing.T) {
	path := writePhoto(t, "shot.jpg")
	runner := &fakeRunner{}
	w := testWriter(runner)

	res, err := w.Apply(context.Background(), path, parisPoint(), WriteOptions{Backup: true})
	require.NoError(t, err)
	assert.True(t, res.BackedUp)

	data, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, "not a real image", string(data))

	// An existing backup is preserved, not overwritten.
	res, err = w.Apply(context.Background(), path, parisPoint(), WriteOptions{Backup: true})
	require.NoError(t, err)
	assert.False(t, res.BackedUp)
}

func TestWriter_Apply_BackupFailureAbortsWrite(t *testing.T) {
	path := writePhoto(t, "shot.jpg")
	runner := &fakeRunner{}
	w := testWriter(runner)
	w.copyFn = func(string, string) error { return errors.New("no space left on device") }

	_, err := w.Apply(context.Background(), path, parisPoint(), WriteOptions{Backup: true})
	require.Error(t, err)
	assert.ErrorContains(t, err, "backup")

	// Fail-closed: no write is attempted and the original survives untouched.
	assert.Empty(t, runner.calls)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "not a real image", string(data))

	_, statErr := os.Stat(path + ".backup")
	assert.True(t, os.IsNotExist(statErr))
}

func TestWriter_Apply_BackupPathCollision(t *testing.T) {
	path := writePhoto(t, "shot.jpg")
	// A directory squatting on the backup path is not an existing backup.
	require.NoError(t, os.Mkdir(path+".backup", 0o755))
	runner := &fakeRunner{}

	_, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{Backup: true})
	require.Error(t, err)
	assert.ErrorContains(t, err, "not a regular file")

	assert.Empty(t, runner.calls)
	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "not a real image", string(data))
}

func TestWriter_Apply_UnsupportedFormat(t *testing.T) {
	runner := &fakeRunner{}
	_, err := testWriter(runner).Apply(context.Background(), "/photos/clip.mov", parisPoint(), WriteOptions{})
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Empty(t, runner.calls)
}

func TestWriter_Apply_ToolFailureLeavesOriginalIntact(t *testing.T) {
	path := writePhoto(t, "shot.nef")
	runner := &fakeRunner{err: errors.New("exiftool exploded")}

	_, err := testWriter(runner).Apply(context.Background(), path, parisPoint(), WriteOptions{})
	require.Error(t, err)

	data, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, "not a real image", string(data))
}
