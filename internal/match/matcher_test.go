package match

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/phototrack/internal/domain"
)

func trackAt(offsets ...time.Duration) []domain.TrackPoint {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	points := make([]domain.TrackPoint, 0, len(offsets))
	for i, off := range offsets {
		points = append(points, domain.TrackPoint{
			Timestamp: base.Add(off),
			Coord:     domain.Coordinate{Lat: float64(i), Lon: float64(i)},
		})
	}
	return points
}

func TestClosest(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	points := trackAt(0, 1*time.Hour, 2*time.Hour)

	tests := []struct {
		name string
		t    time.Time
		want int
	}{
		{"before first", base.Add(-time.Hour), 0},
		{"after last", base.Add(5 * time.Hour), 2},
		{"exact hit", base.Add(time.Hour), 1},
		{"nearer earlier", base.Add(20 * time.Minute), 0},
		{"nearer later", base.Add(40 * time.Minute), 1},
		{"equidistant picks earlier", base.Add(30 * time.Minute), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Closest(points, tt.t))
		})
	}
}

func TestClosest_DuplicateTimestamps(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	points := trackAt(0, time.Hour, time.Hour, 2*time.Hour)

	// The first of the duplicates wins, deterministically.
	assert.Equal(t, 1, Closest(points, base.Add(time.Hour)))
}

func TestMatch(t *testing.T) {
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	points := trackAt(0, 2*time.Hour)
	threshold := time.Hour

	t.Run("within threshold", func(t *testing.T) {
		res := Match(points, base.Add(30*time.Minute), threshold)
		require.NotNil(t, res.Point)
		assert.True(t, res.Matched)
		assert.Equal(t, 30*time.Minute, res.Delta)
		assert.Equal(t, points[0].Coord, res.Point.Coord)
	})

	t.Run("boundary is inclusive", func(t *testing.T) {
		res := Match(points, base.Add(-time.Hour), threshold)
		assert.True(t, res.Matched)
		assert.Equal(t, time.Hour, res.Delta)
	})

	t.Run("beyond threshold", func(t *testing.T) {
		res := Match(points, base.Add(4*time.Hour), threshold)
		require.NotNil(t, res.Point)
		assert.False(t, res.Matched)
		assert.Equal(t, 2*time.Hour, res.Delta)
	})

	t.Run("empty track", func(t *testing.T) {
		res := Match(nil, base, threshold)
		assert.Nil(t, res.Point)
		assert.False(t, res.Matched)
	})
}
