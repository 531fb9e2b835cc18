package track

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"

	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/geocode"
	"github.com/couchcryptid/phototrack/internal/metadata"
	"github.com/couchcryptid/phototrack/internal/observability"
)

// photoReader extracts metadata from one image file.
type photoReader interface {
	Read(ctx context.Context, path string) (domain.PhotoRecord, error)
}

// placeResolver maps coordinates to places through the cache → service chain.
type placeResolver interface {
	Resolve(ctx context.Context, coord domain.Coordinate, anonymize bool) geocode.Resolution
	FlushCache(ctx context.Context)
	CacheStats() (hits, misses int)
}

// Builder turns a folder of GPS-tagged photos into a track file.
type Builder struct {
	reader   photoReader
	resolver placeResolver
	logger   *slog.Logger
	metrics  *observability.Metrics
}

// NewBuilder wires a Builder.
func NewBuilder(reader photoReader, resolver placeResolver, logger *slog.Logger, metrics *observability.Metrics) *Builder {
	return &Builder{reader: reader, resolver: resolver, logger: logger, metrics: metrics}
}

// BuildResult summarizes one track pass.
type BuildResult struct {
	OutputPath  string
	Points      int
	NoGPS       int
	ReadErrors  int
	CacheHits   int
	CacheMisses int
}

// Build scans sourceDir, resolves each GPS-tagged photo's place, and writes
// the sorted track to destDir (sourceDir when empty). Photos without both a
// timestamp and a coordinate are skipped with a warning; the pass aborts
// only when no usable photo remains.
func (b *Builder) Build(ctx context.Context, sourceDir, destDir string, anonymize bool) (BuildResult, error) {
	files, err := metadata.Scan(sourceDir)
	if err != nil {
		return BuildResult{}, err
	}
	if len(files) == 0 {
		return BuildResult{}, fmt.Errorf("no photos found in %s", sourceDir)
	}

	// Persist geocoding results even when the pass aborts early or produces
	// no track: resolved places already cost real requests.
	defer b.resolver.FlushCache(ctx)

	var res BuildResult
	var points []domain.TrackPoint
	for _, path := range files {
		if ctx.Err() != nil {
			return res, ctx.Err()
		}
		b.metrics.PhotosScanned.Inc()

		rec, err := b.reader.Read(ctx, path)
		if err != nil {
			b.logger.Warn("skipping unreadable photo", "path", path, "error", err)
			b.metrics.PhotosSkipped.WithLabelValues("read_error").Inc()
			res.ReadErrors++
			continue
		}
		if rec.Coord == nil {
			b.logger.Debug("photo has no GPS fix, skipping", "path", path)
			b.metrics.PhotosSkipped.WithLabelValues("no_gps").Inc()
			res.NoGPS++
			continue
		}

		r := b.resolver.Resolve(ctx, *rec.Coord, anonymize)
		points = append(points, domain.TrackPoint{
			Timestamp:  rec.TakenAt,
			Coord:      r.Coord,
			Altitude:   rec.Altitude,
			Place:      r.Place,
			Name:       filepath.Base(path),
			Anonymized: r.Anonymized,
		})
	}

	res.CacheHits, res.CacheMisses = b.resolver.CacheStats()

	if len(points) == 0 {
		return res, fmt.Errorf("no photos with GPS data in %s", sourceDir)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})

	if destDir == "" {
		destDir = sourceDir
	} else if err := os.MkdirAll(destDir, 0o755); err != nil {
		return res, fmt.Errorf("create destination folder: %w", err)
	}

	outPath, err := VersionedPath(destDir, TrackFileName(sourceDir, anonymize))
	if err != nil {
		return res, err
	}
	if err := b.writeTrack(outPath, points); err != nil {
		return res, err
	}

	b.metrics.TrackPointsWritten.Add(float64(len(points)))
	res.OutputPath = outPath
	res.Points = len(points)
	return res, nil
}

func (b *Builder) writeTrack(path string, points []domain.TrackPoint) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create track file: %w", err)
	}
	if err := Encode(f, "Photo GPS track", points); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
