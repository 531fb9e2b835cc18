// Package syncer runs the second pass: matching target photos against a
// loaded track and writing position and place metadata into each file.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/match"
	"github.com/couchcryptid/phototrack/internal/metadata"
	"github.com/couchcryptid/phototrack/internal/observability"
)

// photoReader extracts metadata from one image file.
type photoReader interface {
	Read(ctx context.Context, path string) (domain.PhotoRecord, error)
}

// metadataWriter applies a trackpoint's fields to one image file.
type metadataWriter interface {
	Apply(ctx context.Context, path string, pt domain.TrackPoint, opts metadata.WriteOptions) (metadata.WriteResult, error)
}

// Options control one sync pass.
type Options struct {
	Backup  bool
	DryRun  bool
	Workers int
}

// Summary aggregates the per-file outcomes of a sync pass. Every scanned
// file appears in Outcomes exactly once; nothing is silently dropped from
// the report.
type Summary struct {
	Total       int
	Matched     int
	NoTimestamp int
	OutOfRange  int
	Failed      int
	BackedUp    int
	DryRun      bool
	Outcomes    []domain.SyncOutcome
}

// Syncer matches each target photo to its closest trackpoint in time and
// writes the result into the file's metadata.
type Syncer struct {
	reader    photoReader
	writer    metadataWriter
	threshold time.Duration
	logger    *slog.Logger
	metrics   *observability.Metrics
}

// New wires a Syncer.
func New(reader photoReader, writer metadataWriter, threshold time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Syncer {
	return &Syncer{
		reader:    reader,
		writer:    writer,
		threshold: threshold,
		logger:    logger,
		metrics:   metrics,
	}
}

// Sync processes every supported photo under targetDir against the track.
// Files are handled by a bounded worker pool: each file's read/match/write is
// independent, and completion order is not significant. A per-file failure
// never aborts the batch. Cancellation stops scheduling new files; a write
// already in flight finishes its atomic-replace-or-abort sequence.
func (s *Syncer) Sync(ctx context.Context, points []domain.TrackPoint, targetDir string, opts Options) (Summary, error) {
	if len(points) == 0 {
		return Summary{}, errors.New("empty track")
	}

	files, err := metadata.Scan(targetDir)
	if err != nil {
		return Summary{}, err
	}
	if len(files) == 0 {
		return Summary{}, fmt.Errorf("no photos found in %s", targetDir)
	}

	workers := opts.Workers
	if workers < 1 {
		workers = 1
	}

	outcomes := make([]domain.SyncOutcome, len(files))
	g := &errgroup.Group{}
	g.SetLimit(workers)

	for i, path := range files {
		if ctx.Err() != nil {
			outcomes[i] = domain.SyncOutcome{Path: path, Status: domain.StatusWriteFailed, Err: ctx.Err()}
			continue
		}
		g.Go(func() error {
			outcomes[i] = s.syncOne(ctx, points, path, opts)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors; failures live in outcomes

	return s.summarize(outcomes, opts.DryRun), nil
}

func (s *Syncer) syncOne(ctx context.Context, points []domain.TrackPoint, path string, opts Options) domain.SyncOutcome {
	s.metrics.PhotosScanned.Inc()

	rec, err := s.reader.Read(ctx, path)
	if err != nil {
		if errors.Is(err, metadata.ErrUnsupportedFormat) {
			return domain.SyncOutcome{Path: path, Status: domain.StatusUnsupported, Err: err}
		}
		s.logger.Warn("no capture time, skipping", "path", path, "error", err)
		s.metrics.PhotosSkipped.WithLabelValues("no_timestamp").Inc()
		return domain.SyncOutcome{Path: path, Status: domain.StatusNoTimestamp, Err: err}
	}

	m := match.Match(points, rec.TakenAt, s.threshold)
	if !m.Matched {
		s.logger.Debug("no trackpoint within threshold",
			"path", path, "delta", m.Delta, "threshold", s.threshold)
		return domain.SyncOutcome{Path: path, Status: domain.StatusOutOfRange, Delta: m.Delta}
	}

	res, err := s.writer.Apply(ctx, path, *m.Point, metadata.WriteOptions{
		Backup: opts.Backup,
		DryRun: opts.DryRun,
	})
	if err != nil {
		s.logger.Warn("metadata write failed", "path", path, "error", err)
		return domain.SyncOutcome{
			Path:     path,
			Status:   domain.StatusWriteFailed,
			Point:    m.Point,
			Delta:    m.Delta,
			BackedUp: res.BackedUp,
			Err:      err,
		}
	}

	s.logger.Info("synced", "path", path, "delta", m.Delta,
		"coord", m.Point.Coord.String(), "place", m.Point.Place.Description(), "dry_run", opts.DryRun)
	return domain.SyncOutcome{
		Path:     path,
		Status:   domain.StatusMatched,
		Point:    m.Point,
		Delta:    m.Delta,
		BackedUp: res.BackedUp,
	}
}

func (s *Syncer) summarize(outcomes []domain.SyncOutcome, dryRun bool) Summary {
	sum := Summary{Total: len(outcomes), DryRun: dryRun, Outcomes: outcomes}
	for _, o := range outcomes {
		s.metrics.SyncOutcomes.WithLabelValues(string(o.Status)).Inc()
		switch o.Status {
		case domain.StatusMatched:
			sum.Matched++
		case domain.StatusNoTimestamp:
			sum.NoTimestamp++
		case domain.StatusOutOfRange:
			sum.OutOfRange++
		default:
			sum.Failed++
		}
		if o.BackedUp {
			sum.BackedUp++
		}
	}
	return sum
}
