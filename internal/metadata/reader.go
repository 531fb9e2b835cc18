package metadata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/rwcarlsen/goexif/exif"

	"github.com/couchcryptid/phototrack/internal/domain"
)

var (
	// ErrNoTimestamp means the file's metadata was readable but carried no
	// capture time under any known tag.
	ErrNoTimestamp = errors.New("no capture timestamp found")
	// ErrUnsupportedFormat means the file extension is not one the tool
	// knows how to read or write.
	ErrUnsupportedFormat = errors.New("unsupported photo format")
	// ErrCorruptMetadata means every read strategy failed to parse the file.
	ErrCorruptMetadata = errors.New("corrupt photo metadata")
)

// exifTimeLayout is the EXIF DateTime format. It carries no timezone; both
// passes parse it in UTC so track and photo timestamps compare in one frame.
const exifTimeLayout = "2006:01:02 15:04:05"

// Reader extracts a PhotoRecord from an image file. Strategies are tried in
// priority order and the first one yielding a usable timestamp wins: the
// standard EXIF block first, then fallback tag sets, then an exiftool probe
// for RAW containers goexif cannot decode.
type Reader struct {
	tool   *Tool
	logger *slog.Logger
}

// NewReader creates a Reader using tool for the RAW fallback strategy.
func NewReader(tool *Tool, logger *slog.Logger) *Reader {
	return &Reader{tool: tool, logger: logger}
}

type readStrategy struct {
	name string
	read func(ctx context.Context, path string) (domain.PhotoRecord, error)
}

func (r *Reader) strategies() []readStrategy {
	return []readStrategy{
		{name: "exif_original", read: r.readExif(exif.DateTimeOriginal)},
		{name: "exif_digitized", read: r.readExif(exif.DateTimeDigitized)},
		{name: "exif_datetime", read: r.readExif(exif.DateTime)},
		{name: "exiftool_probe", read: r.readExiftool},
	}
}

// Read extracts timestamp, GPS coordinate and altitude from the file.
// A record with a timestamp but no coordinate is valid: only track building
// requires both.
func (r *Reader) Read(ctx context.Context, path string) (domain.PhotoRecord, error) {
	if !supportedExt(path) {
		return domain.PhotoRecord{}, fmt.Errorf("%s: %w", path, ErrUnsupportedFormat)
	}

	allFailed := true
	for _, s := range r.strategies() {
		rec, err := s.read(ctx, path)
		if err != nil {
			r.logger.Debug("read strategy failed", "strategy", s.name, "path", path, "error", err)
			continue
		}
		allFailed = false
		if rec.TakenAt.IsZero() {
			continue
		}
		rec.Path = path
		return rec, nil
	}

	if allFailed {
		return domain.PhotoRecord{}, fmt.Errorf("%s: %w", path, ErrCorruptMetadata)
	}
	return domain.PhotoRecord{}, fmt.Errorf("%s: %w", path, ErrNoTimestamp)
}

// readExif builds a strategy extracting the capture time from one specific
// EXIF tag, plus whatever GPS fields the block carries.
func (r *Reader) readExif(field exif.FieldName) func(ctx context.Context, path string) (domain.PhotoRecord, error) {
	return func(_ context.Context, path string) (domain.PhotoRecord, error) {
		f, err := os.Open(path)
		if err != nil {
			return domain.PhotoRecord{}, err
		}
		defer f.Close()

		x, err := exif.Decode(f)
		if err != nil {
			return domain.PhotoRecord{}, fmt.Errorf("decode exif: %w", err)
		}

		var rec domain.PhotoRecord
		tag, err := x.Get(field)
		if err == nil {
			if s, err := tag.StringVal(); err == nil {
				if t, err := parseExifTime(s); err == nil {
					rec.TakenAt = t
				}
			}
		}

		if lat, lon, err := x.LatLong(); err == nil {
			rec.Coord = &domain.Coordinate{Lat: lat, Lon: lon}
		}
		rec.Altitude = altitudeFrom(x)

		return rec, nil
	}
}

// readExiftool is the last-resort strategy for containers goexif cannot
// parse; it shells out to exiftool.
func (r *Reader) readExiftool(ctx context.Context, path string) (domain.PhotoRecord, error) {
	probe, err := r.tool.Probe(ctx, path)
	if err != nil {
		return domain.PhotoRecord{}, err
	}

	var rec domain.PhotoRecord
	for _, s := range []string{probe.DateTimeOriginal, probe.CreateDate, probe.ModifyDate} {
		if s == "" {
			continue
		}
		if t, err := parseExifTime(s); err == nil {
			rec.TakenAt = t
			break
		}
	}

	if probe.GPSLatitude != nil && probe.GPSLongitude != nil {
		rec.Coord = &domain.Coordinate{Lat: *probe.GPSLatitude, Lon: *probe.GPSLongitude}
	}
	rec.Altitude = probe.GPSAltitude

	return rec, nil
}

func parseExifTime(s string) (time.Time, error) {
	return time.ParseInLocation(exifTimeLayout, strings.TrimSpace(s), time.UTC)
}

func altitudeFrom(x *exif.Exif) *float64 {
	tag, err := x.Get(exif.GPSAltitude)
	if err != nil {
		return nil
	}
	num, den, err := tag.Rat2(0)
	if err != nil || den == 0 {
		return nil
	}
	alt := float64(num) / float64(den)

	// GPSAltitudeRef 1 means below sea level.
	if ref, err := x.Get(exif.GPSAltitudeRef); err == nil {
		if v, err := ref.Int(0); err == nil && v == 1 {
			alt = -alt
		}
	}
	return &alt
}
