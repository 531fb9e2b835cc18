package track

import (
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/couchcryptid/phototrack/internal/domain"
)

// ErrMalformedTrack means the file parsed but contained no usable points.
// It is fatal for the sync pass: an empty track cannot drive any matching.
var ErrMalformedTrack = errors.New("malformed track: no parseable points")

// Load parses a track file into points ordered by timestamp. The builder
// already sorts, but tracks may be hand-edited or come from other tools, so
// the loader re-sorts defensively.
func Load(path string) ([]domain.TrackPoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open track: %w", err)
	}
	defer f.Close()

	points, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("parse track %s: %w", path, err)
	}
	if len(points) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrMalformedTrack)
	}

	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Timestamp.Before(points[j].Timestamp)
	})
	return points, nil
}
