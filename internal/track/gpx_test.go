package track

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/phototrack/internal/domain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	alt := 35.5
	points := []domain.TrackPoint{
		{
			Timestamp: time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
			Coord:     domain.Coordinate{Lat: 48.8566, Lon: 2.3522},
			Altitude:  &alt,
			Place:     domain.PlaceInfo{City: "Paris", State: "Ile-de-France", Country: "France", CountryCode: "FR"},
			Name:      "IMG_0001.jpg",
		},
		{
			Timestamp: time.Date(2024, 6, 1, 11, 30, 0, 0, time.UTC),
			Coord:     domain.Coordinate{Lat: -33.8688, Lon: 151.2093},
			Place:     domain.PlaceInfo{City: "Sydney", Country: "Australia", CountryCode: "AU"},
			Name:      "IMG_0002.jpg",
		},
	}

	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, "holiday", points))

	out := buf.String()
	assert.Contains(t, out, `version="1.1"`)
	assert.Contains(t, out, `xmlns="http://www.topografix.com/GPX/1/1"`)
	assert.Contains(t, out, "Paris, Ile-de-France, France (FR)")

	got, err := Decode(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, points[0].Timestamp, got[0].Timestamp)
	assert.InDelta(t, points[0].Coord.Lat, got[0].Coord.Lat, 1e-6)
	assert.InDelta(t, points[0].Coord.Lon, got[0].Coord.Lon, 1e-6)
	require.NotNil(t, got[0].Altitude)
	assert.InDelta(t, alt, *got[0].Altitude, 0.1)
	assert.Equal(t, points[0].Place, got[0].Place)
	assert.Equal(t, "IMG_0001.jpg", got[0].Name)

	assert.Nil(t, got[1].Altitude)
	assert.Equal(t, points[1].Place, got[1].Place)
}

func TestDecode_SkipsUnusablePoints(t *testing.T) {
	doc := `<?xml version="1.0"?>
<gpx version="1.1" creator="other-tool" xmlns="http://www.topografix.com/GPX/1/1">
  <trk><trkseg>
    <trkpt lat="48.8566" lon="2.3522"><time>2024-06-01T10:00:00Z</time></trkpt>
    <trkpt lat="not-a-number" lon="2.35"><time>2024-06-01T10:01:00Z</time></trkpt>
    <trkpt lat="48.86" lon="2.36"></trkpt>
    <trkpt lat="48.87" lon="2.37"><time>2024-06-01T10:02:00</time></trkpt>
  </trkseg></trk>
</gpx>`

	points, err := Decode(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, points, 2)

	// A time without zone designator parses as UTC.
	assert.Equal(t, time.Date(2024, 6, 1, 10, 2, 0, 0, time.UTC), points[1].Timestamp)
}

func TestDecode_NotXML(t *testing.T) {
	_, err := Decode(strings.NewReader("this is not a track"))
	assert.Error(t, err)
}
