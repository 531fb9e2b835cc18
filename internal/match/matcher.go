// Package match aligns photo timestamps with trackpoints.
package match

import (
	"sort"
	"time"

	"github.com/couchcryptid/phototrack/internal/domain"
)

// Result is the outcome of matching one timestamp against a track.
type Result struct {
	// Point is the closest trackpoint; nil only when the track is empty.
	Point *domain.TrackPoint
	// Delta is the absolute time difference to Point.
	Delta time.Duration
	// Matched is true when Delta is within the threshold. The boundary is
	// inclusive: a delta exactly equal to the threshold still matches.
	Matched bool
}

// Closest returns the index of the trackpoint with the minimum absolute time
// difference to t. Points must be sorted by timestamp. When two points are
// equidistant, the earlier one wins, which keeps results deterministic for
// tracks with duplicate timestamps.
func Closest(points []domain.TrackPoint, t time.Time) int {
	i := sort.Search(len(points), func(i int) bool {
		return !points[i].Timestamp.Before(t)
	})

	switch {
	case i == 0:
		return 0
	case i == len(points):
		return len(points) - 1
	}

	before := t.Sub(points[i-1].Timestamp)
	after := points[i].Timestamp.Sub(t)
	if before <= after {
		return i - 1
	}
	return i
}

// Match finds the closest trackpoint and decides whether it is close enough
// in time to trust. Beyond the threshold no GPS fix is trustworthy for the
// photo: writing stale position data would be worse than writing none.
func Match(points []domain.TrackPoint, t time.Time, threshold time.Duration) Result {
	if len(points) == 0 {
		return Result{}
	}

	i := Closest(points, t)
	delta := t.Sub(points[i].Timestamp)
	if delta < 0 {
		delta = -delta
	}

	return Result{
		Point:   &points[i],
		Delta:   delta,
		Matched: delta <= threshold,
	}
}
