package metadata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/observability"
)

// WriteOptions control how a metadata write is performed.
type WriteOptions struct {
	// Backup copies the original to a sibling .backup file before any
	// mutation. Backup failure aborts the write for that file.
	Backup bool
	// DryRun computes the write without touching the filesystem.
	DryRun bool
}

// WriteResult reports what happened (or, for a dry run, what would happen)
// to one target file. Tags is the exact exiftool assignment list, computed
// identically on both paths so a dry-run report is a true prediction.
type WriteResult struct {
	Path     string
	Tags     []string
	BackedUp bool
	DryRun   bool
}

// formatWriter applies tags to one file in a container-specific way.
type formatWriter interface {
	apply(ctx context.Context, tool *Tool, path string, tags []string) error
}

// Writer embeds GPS and place metadata into photo files. The container
// strategy is a capability lookup by extension, so supporting a new format
// means registering one more entry.
type Writer struct {
	tool    *Tool
	logger  *slog.Logger
	metrics *observability.Metrics
	formats map[string]formatWriter

	// copyFn performs the backup copy; tests inject failures here.
	copyFn func(src, dst string) error
}

// NewWriter creates a Writer over the given exiftool handle.
func NewWriter(tool *Tool, logger *slog.Logger, metrics *observability.Metrics) *Writer {
	direct := directWriter{}
	staged := stagedWriter{}
	return &Writer{
		tool:    tool,
		logger:  logger,
		metrics: metrics,
		copyFn:  copyFile,
		formats: map[string]formatWriter{
			".jpg":  direct,
			".jpeg": direct,
			// RAW and TIFF containers always go through a staged copy with
			// an atomic replace; a partial in-place rewrite corrupts them.
			".nef":  staged,
			".cr2":  staged,
			".arw":  staged,
			".dng":  staged,
			".tif":  staged,
			".tiff": staged,
		},
	}
}

// Apply writes the matched trackpoint's coordinate and place into the target
// file's metadata.
func (w *Writer) Apply(ctx context.Context, path string, pt domain.TrackPoint, opts WriteOptions) (WriteResult, error) {
	fw, ok := w.formats[strings.ToLower(filepath.Ext(path))]
	if !ok {
		return WriteResult{Path: path}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	res := WriteResult{Path: path, Tags: tagArgs(pt), DryRun: opts.DryRun}
	if opts.DryRun {
		return res, nil
	}

	if opts.Backup {
		created, err := w.backupOriginal(path)
		if err != nil {
			return res, fmt.Errorf("backup %s: %w", path, err)
		}
		res.BackedUp = created
		if created {
			w.metrics.FilesBackedUp.Inc()
		}
	}

	start := domain.Clock().Now()
	if err := fw.apply(ctx, w.tool, path, res.Tags); err != nil {
		return res, fmt.Errorf("write metadata %s: %w", path, err)
	}
	w.metrics.WriteDuration.Observe(domain.Clock().Since(start).Seconds())

	return res, nil
}

// directWriter rewrites the file in place; safe for JPEG. Non-ASCII paths
// still go through staging because exiftool mishandles accented file names
// on some platforms.
type directWriter struct{}

func (directWriter) apply(ctx context.Context, tool *Tool, path string, tags []string) error {
	if !isASCII(path) {
		return stagedApply(ctx, tool, path, tags)
	}
	_, err := tool.run(ctx, append(tags, "-overwrite_original", path)...)
	return err
}

// stagedWriter writes through a temporary copy and atomically replaces the
// original on success, so an interrupted write never leaves a half-written
// file behind.
type stagedWriter struct{}

func (stagedWriter) apply(ctx context.Context, tool *Tool, path string, tags []string) error {
	return stagedApply(ctx, tool, path, tags)
}

func stagedApply(ctx context.Context, tool *Tool, path string, tags []string) error {
	dir, err := os.MkdirTemp("", "phototrack-stage-")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	staged := filepath.Join(dir, "stage"+strings.ToLower(filepath.Ext(path)))
	if err := copyFile(path, staged); err != nil {
		return err
	}

	if _, err := tool.run(ctx, append(tags, "-overwrite_original", staged)...); err != nil {
		return err
	}

	return replaceAtomically(staged, path)
}

// replaceAtomically copies src next to dst and renames over it. The rename
// stays within one directory, so it is atomic on every supported filesystem.
func replaceAtomically(src, dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".phototrack-*"+filepath.Ext(dst))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()

	in, err := os.Open(src)
	if err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	_, copyErr := io.Copy(tmp, in)
	in.Close()
	closeErr := tmp.Close()
	if copyErr != nil || closeErr != nil {
		os.Remove(tmpPath)
		return errors.Join(copyErr, closeErr)
	}

	if info, err := os.Stat(dst); err == nil {
		os.Chmod(tmpPath, info.Mode()) //nolint:errcheck // best-effort mode preservation
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return nil
}

// backupOriginal copies the file to a sibling .backup unless a regular file
// already sits there. Any other occupant of the backup path is an error, not
// an existing backup. Returns whether a new backup was created.
func (w *Writer) backupOriginal(path string) (bool, error) {
	backupPath := path + ".backup"
	info, err := os.Stat(backupPath)
	switch {
	case err == nil && info.Mode().IsRegular():
		return false, nil
	case err == nil:
		return false, fmt.Errorf("backup path %s exists and is not a regular file", backupPath)
	case !errors.Is(err, os.ErrNotExist):
		return false, err
	}
	if err := w.copyFn(path, backupPath); err != nil {
		return false, err
	}
	return true, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dst)
		return err
	}
	return out.Close()
}

// tagArgs builds the exiftool assignments for a trackpoint: EXIF GPS fields
// plus the IPTC place fields.
func tagArgs(pt domain.TrackPoint) []string {
	latRef, lonRef := "N", "E"
	if pt.Coord.Lat < 0 {
		latRef = "S"
	}
	if pt.Coord.Lon < 0 {
		lonRef = "W"
	}

	args := []string{
		"-GPSVersionID=2 3 0 0",
		fmt.Sprintf("-GPSLatitude=%.6f", math.Abs(pt.Coord.Lat)),
		"-GPSLatitudeRef=" + latRef,
		fmt.Sprintf("-GPSLongitude=%.6f", math.Abs(pt.Coord.Lon)),
		"-GPSLongitudeRef=" + lonRef,
	}

	if pt.Altitude != nil {
		ref := "0"
		alt := *pt.Altitude
		if alt < 0 {
			ref = "1"
			alt = -alt
		}
		args = append(args,
			fmt.Sprintf("-GPSAltitude=%.2f", alt),
			"-GPSAltitudeRef="+ref,
		)
	}

	if pt.Place.City != "" {
		args = append(args, "-IPTC:City="+pt.Place.City)
	}
	if pt.Place.State != "" {
		args = append(args, "-IPTC:Province-State="+pt.Place.State)
	}
	if pt.Place.Country != "" {
		args = append(args, "-IPTC:Country-PrimaryLocationName="+pt.Place.Country)
	}
	if pt.Place.CountryCode != "" {
		args = append(args, "-IPTC:Country-PrimaryLocationCode="+pt.Place.CountryCode)
	}
	return args
}

func isASCII(s string) bool {
	for _, r := range s {
		if r > unicode.MaxASCII {
			return false
		}
	}
	return true
}
