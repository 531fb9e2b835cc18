package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters and histograms for both passes.
type Metrics struct {
	PhotosScanned prometheus.Counter
	PhotosSkipped *prometheus.CounterVec // labels: reason={no_timestamp,no_gps,read_error}

	// Geocoding metrics.
	GeocodeRequests    *prometheus.CounterVec // labels: endpoint={reverse,search}, outcome={success,error,empty}
	GeocodeCache       *prometheus.CounterVec // labels: result={hit,miss}
	GeocodeAPIDuration prometheus.Histogram
	CacheFlushFailures prometheus.Counter

	// Track pass.
	TrackPointsWritten prometheus.Counter

	// Sync pass.
	SyncOutcomes  *prometheus.CounterVec // labels: status
	FilesBackedUp prometheus.Counter
	WriteDuration prometheus.Histogram
}

// NewMetrics creates and registers all metrics with the default Prometheus
// registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.PhotosScanned,
		m.PhotosSkipped,
		m.GeocodeRequests,
		m.GeocodeCache,
		m.GeocodeAPIDuration,
		m.CacheFlushFailures,
		m.TrackPointsWritten,
		m.SyncOutcomes,
		m.FilesBackedUp,
		m.WriteDuration,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, avoiding
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		PhotosScanned: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "photos_scanned_total",
			Help:      "Total photo files read from source and target folders.",
		}),
		PhotosSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "photos_skipped_total",
			Help:      "Photos skipped during scanning by reason.",
		}, []string{"reason"}),
		GeocodeRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "geocode_requests_total",
			Help:      "Geocoding API requests by endpoint and outcome.",
		}, []string{"endpoint", "outcome"}),
		GeocodeCache: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "geocode_cache_total",
			Help:      "Geocoding cache lookups by result.",
		}, []string{"result"}),
		GeocodeAPIDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phototrack",
			Name:      "geocode_api_duration_seconds",
			Help:      "Nominatim request duration in seconds.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}),
		CacheFlushFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "cache_flush_failures_total",
			Help:      "Geocoding cache flushes that could not reach disk.",
		}),
		TrackPointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "track_points_written_total",
			Help:      "Trackpoints serialized into track files.",
		}),
		SyncOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "sync_outcomes_total",
			Help:      "Sync pass per-file outcomes by status.",
		}, []string{"status"}),
		FilesBackedUp: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "phototrack",
			Name:      "files_backed_up_total",
			Help:      "Target files copied to .backup before writing.",
		}),
		WriteDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "phototrack",
			Name:      "metadata_write_duration_seconds",
			Help:      "Duration of a single metadata write including staging.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}),
	}
}
