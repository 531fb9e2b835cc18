package geocode

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/couchcryptid/phototrack/internal/domain"
	"github.com/couchcryptid/phototrack/internal/observability"
)

// placeClient is the remote surface the resolver needs; *Client implements
// it, tests substitute a mock.
type placeClient interface {
	ReverseGeocode(ctx context.Context, coord domain.Coordinate) (domain.PlaceInfo, error)
	SearchPlace(ctx context.Context, place domain.PlaceInfo) (domain.Coordinate, bool, error)
}

// Resolution is the outcome of resolving one coordinate. Coord is the
// effective trackpoint coordinate: the place's center when anonymization
// succeeded, the original otherwise. Anonymization never degrades silently —
// it either replaces the coordinate fully or leaves it untouched.
type Resolution struct {
	Place      domain.PlaceInfo
	Coord      domain.Coordinate
	Anonymized bool
}

// Resolver answers place lookups through the cache → remote client chain.
// Failures degrade to a "GPS lat, lon" placeholder so a track description is
// never empty; placeholders are not cached, letting a later run retry.
type Resolver struct {
	cache   *Cache
	client  placeClient
	logger  *slog.Logger
	metrics *observability.Metrics
}

// NewResolver wires a resolver over the given cache and client.
func NewResolver(cache *Cache, client placeClient, logger *slog.Logger, metrics *observability.Metrics) *Resolver {
	return &Resolver{cache: cache, client: client, logger: logger, metrics: metrics}
}

// Resolve maps a coordinate to its place, consulting the cache first.
func (r *Resolver) Resolve(ctx context.Context, coord domain.Coordinate, anonymize bool) Resolution {
	entry, ok := r.cache.Lookup(coord)
	if ok {
		r.metrics.GeocodeCache.WithLabelValues("hit").Inc()
	} else {
		r.metrics.GeocodeCache.WithLabelValues("miss").Inc()

		place, err := r.client.ReverseGeocode(ctx, coord)
		if err != nil {
			r.logger.Warn("reverse geocoding failed", "coord", coord.String(), "error", err)
			return Resolution{Place: placeholder(coord, place), Coord: coord}
		}
		if !place.Resolved() {
			return Resolution{Place: placeholder(coord, place), Coord: coord}
		}

		entry = Entry{Place: place}
		r.cache.Store(coord, entry)
	}

	res := Resolution{Place: entry.Place, Coord: coord}
	if !anonymize {
		return res
	}

	center := entry.Center
	if center == nil {
		c, found, err := r.client.SearchPlace(ctx, entry.Place)
		if err != nil {
			r.logger.Warn("place center lookup failed, keeping original coordinate",
				"place", entry.Place.Description(), "error", err)
			return res
		}
		if !found {
			r.logger.Warn("no center found for place, keeping original coordinate",
				"place", entry.Place.Description())
			return res
		}
		entry.Center = &c
		r.cache.Store(coord, entry)
		center = &c
	}

	res.Coord = *center
	res.Anonymized = true
	return res
}

// FlushCache persists the cache, degrading gracefully: a failed flush is
// logged and counted but never aborts the run.
func (r *Resolver) FlushCache(ctx context.Context) {
	if err := r.cache.Flush(ctx); err != nil {
		r.metrics.CacheFlushFailures.Inc()
		r.logger.Warn("geocoding cache flush failed, run continues in-memory", "error", err)
	}
}

// CacheStats exposes hit/miss counts for the end-of-run summary.
func (r *Resolver) CacheStats() (hits, misses int) {
	return r.cache.Stats()
}

// placeholder builds the degraded place used when no city could be resolved,
// keeping whatever partial region fields the service did return.
func placeholder(coord domain.Coordinate, partial domain.PlaceInfo) domain.PlaceInfo {
	partial.City = fmt.Sprintf("GPS %.4f, %.4f", coord.Lat, coord.Lon)
	return partial
}
