package track

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/couchcryptid/phototrack/internal/domain"
)

// Track files are GPX 1.1 so they open directly in Google Earth, gpx.studio,
// QGIS and the like. Place names ride in each point's <desc> element in the
// "City, State, Country (CC)" form that the loader parses back.

const (
	gpxNamespace = "http://www.topografix.com/GPX/1/1"
	gpxCreator   = "phototrack"
)

type gpxFile struct {
	XMLName  xml.Name    `xml:"gpx"`
	Version  string      `xml:"version,attr"`
	Creator  string      `xml:"creator,attr"`
	Xmlns    string      `xml:"xmlns,attr"`
	Metadata gpxMetadata `xml:"metadata"`
	Tracks   []gpxTrk    `xml:"trk"`
}

type gpxMetadata struct {
	Name string `xml:"name,omitempty"`
	Desc string `xml:"desc,omitempty"`
}

type gpxTrk struct {
	Name     string   `xml:"name,omitempty"`
	Segments []gpxSeg `xml:"trkseg"`
}

type gpxSeg struct {
	Points []gpxPoint `xml:"trkpt"`
}

type gpxPoint struct {
	Lat  string `xml:"lat,attr"`
	Lon  string `xml:"lon,attr"`
	Ele  string `xml:"ele,omitempty"`
	Time string `xml:"time,omitempty"`
	Name string `xml:"name,omitempty"`
	Desc string `xml:"desc,omitempty"`
}

// Encode serializes points as a single-segment GPX track.
func Encode(w io.Writer, name string, points []domain.TrackPoint) error {
	seg := gpxSeg{Points: make([]gpxPoint, 0, len(points))}
	for _, pt := range points {
		gp := gpxPoint{
			Lat:  strconv.FormatFloat(pt.Coord.Lat, 'f', 6, 64),
			Lon:  strconv.FormatFloat(pt.Coord.Lon, 'f', 6, 64),
			Time: pt.Timestamp.UTC().Format(time.RFC3339),
			Name: pt.Name,
			Desc: pt.Place.Description(),
		}
		if pt.Altitude != nil {
			gp.Ele = strconv.FormatFloat(*pt.Altitude, 'f', 1, 64)
		}
		seg.Points = append(seg.Points, gp)
	}

	doc := gpxFile{
		Version: "1.1",
		Creator: gpxCreator,
		Xmlns:   gpxNamespace,
		Metadata: gpxMetadata{
			Name: name,
			Desc: "GPS track generated from geotagged photos",
		},
		Tracks: []gpxTrk{{Name: name, Segments: []gpxSeg{seg}}},
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode gpx: %w", err)
	}
	return enc.Close()
}

// Decode parses a GPX document into trackpoints. It is deliberately lenient:
// points without a coordinate or a parseable time are skipped rather than
// failing the whole file, since tracks may be hand-edited or produced by
// other tools.
func Decode(r io.Reader) ([]domain.TrackPoint, error) {
	var doc gpxFile
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode gpx: %w", err)
	}

	var points []domain.TrackPoint
	for _, trk := range doc.Tracks {
		for _, seg := range trk.Segments {
			for _, gp := range seg.Points {
				pt, ok := parsePoint(gp)
				if !ok {
					continue
				}
				points = append(points, pt)
			}
		}
	}
	return points, nil
}

func parsePoint(gp gpxPoint) (domain.TrackPoint, bool) {
	lat, errLat := strconv.ParseFloat(gp.Lat, 64)
	lon, errLon := strconv.ParseFloat(gp.Lon, 64)
	if errLat != nil || errLon != nil {
		return domain.TrackPoint{}, false
	}

	ts, ok := parseTime(gp.Time)
	if !ok {
		return domain.TrackPoint{}, false
	}

	pt := domain.TrackPoint{
		Timestamp: ts,
		Coord:     domain.Coordinate{Lat: lat, Lon: lon},
		Name:      gp.Name,
		Place:     domain.ParsePlaceDescription(gp.Desc),
	}
	if gp.Ele != "" {
		if ele, err := strconv.ParseFloat(gp.Ele, 64); err == nil {
			pt.Altitude = &ele
		}
	}
	return pt, true
}

func parseTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
