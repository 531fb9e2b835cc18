// Command phototrack geotags photos in two passes.
//
// The track pass builds a GPX file from a folder of GPS-tagged photos,
// reverse-geocoding each point through a persistent shared cache:
//
//	phototrack track [-anonymize] <photo-folder> [gpx-destination-folder]
//
// The sync pass transfers that track onto a folder of photos lacking GPS,
// matching by capture time and writing GPS + place metadata into each file:
//
//	phototrack sync [-backup] [-dry-run] <track.gpx> <photo-folder>
//
// Exit status: 0 on success, 1 for validation failures or nothing to do,
// 2 when some files failed while the batch continued.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/couchcryptid/phototrack/internal/config"
	"github.com/couchcryptid/phototrack/internal/geocode"
	"github.com/couchcryptid/phototrack/internal/metadata"
	"github.com/couchcryptid/phototrack/internal/observability"
	"github.com/couchcryptid/phototrack/internal/syncer"
	"github.com/couchcryptid/phototrack/internal/track"
)

const (
	exitOK             = 0
	exitInputError     = 1
	exitPartialFailure = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	godotenv.Load() //nolint:errcheck // a missing .env is fine

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return exitInputError
	}

	logger := observability.NewLogger(cfg).With("run_id", uuid.NewString())
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.MetricsAddr != "" {
		srv := observability.NewServer(cfg.MetricsAddr, logger)
		go func() {
			if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server error", "error", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx) //nolint:errcheck // best-effort shutdown
		}()
	}

	if len(args) == 0 {
		usage()
		return exitInputError
	}

	switch args[0] {
	case "track":
		return runTrack(ctx, cfg, logger, metrics, args[1:])
	case "sync":
		return runSync(ctx, cfg, logger, metrics, args[1:])
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		usage()
		return exitInputError
	}
}

func runTrack(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, args []string) int {
	fs := flag.NewFlagSet("track", flag.ContinueOnError)
	anonymize := fs.Bool("anonymize", false, "replace exact coordinates with place center coordinates")
	if err := fs.Parse(args); err != nil {
		return exitInputError
	}

	rest := fs.Args()
	if len(rest) < 1 || len(rest) > 2 {
		usage()
		return exitInputError
	}
	sourceDir := rest[0]
	destDir := ""
	if len(rest) == 2 {
		destDir = rest[1]
	}
	if !isDir(sourceDir) {
		logger.Error("photo folder does not exist", "path", sourceDir)
		return exitInputError
	}

	tool := metadata.NewTool(cfg.ExiftoolPath)
	reader := metadata.NewReader(tool, logger)
	client := geocode.NewClient(cfg, logger, metrics)
	cache := geocode.OpenCache(cfg.CachePath, cfg.CachePrecision, cfg.CacheLockTimeout, logger)
	resolver := geocode.NewResolver(cache, client, logger, metrics)
	builder := track.NewBuilder(reader, resolver, logger, metrics)

	res, err := builder.Build(ctx, sourceDir, destDir, *anonymize)
	if err != nil {
		logger.Error("track build failed", "error", err)
		return exitInputError
	}

	logger.Info("track written",
		"path", res.OutputPath,
		"points", res.Points,
		"skipped_no_gps", res.NoGPS,
		"read_errors", res.ReadErrors,
		"cache_hits", res.CacheHits,
		"cache_misses", res.CacheMisses,
	)
	if res.ReadErrors > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func runSync(ctx context.Context, cfg *config.Config, logger *slog.Logger, metrics *observability.Metrics, args []string) int {
	fs := flag.NewFlagSet("sync", flag.ContinueOnError)
	backup := fs.Bool("backup", false, "copy each original to a .backup sibling before writing")
	dryRun := fs.Bool("dry-run", false, "report what would be written without modifying any file")
	if err := fs.Parse(args); err != nil {
		return exitInputError
	}

	rest := fs.Args()
	if len(rest) != 2 {
		usage()
		return exitInputError
	}
	trackPath, targetDir := rest[0], rest[1]
	if !isDir(targetDir) {
		logger.Error("photo folder does not exist", "path", targetDir)
		return exitInputError
	}

	points, err := track.Load(trackPath)
	if err != nil {
		logger.Error("cannot load track", "path", trackPath, "error", err)
		return exitInputError
	}
	logger.Info("track loaded", "path", trackPath, "points", len(points),
		"from", points[0].Timestamp, "to", points[len(points)-1].Timestamp)

	tool := metadata.NewTool(cfg.ExiftoolPath)
	reader := metadata.NewReader(tool, logger)
	writer := metadata.NewWriter(tool, logger, metrics)
	s := syncer.New(reader, writer, cfg.MatchThreshold, logger, metrics)

	sum, err := s.Sync(ctx, points, targetDir, syncer.Options{
		Backup:  *backup,
		DryRun:  *dryRun,
		Workers: cfg.SyncWorkers,
	})
	if err != nil {
		logger.Error("sync failed", "error", err)
		return exitInputError
	}

	logger.Info("sync finished",
		"total", sum.Total,
		"matched", sum.Matched,
		"out_of_range", sum.OutOfRange,
		"no_timestamp", sum.NoTimestamp,
		"failed", sum.Failed,
		"backed_up", sum.BackedUp,
		"dry_run", sum.DryRun,
	)
	if sum.Failed > 0 {
		return exitPartialFailure
	}
	return exitOK
}

func isDir(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}

func usage() {
	fmt.Fprint(os.Stderr, `Usage:
  phototrack track [-anonymize] <photo-folder> [gpx-destination-folder]
  phototrack sync [-backup] [-dry-run] <track.gpx> <photo-folder>
`)
}
