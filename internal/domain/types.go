package domain

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Coordinate is a WGS-84 latitude/longitude pair in decimal degrees.
type Coordinate struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Quantize rounds the coordinate onto a grid with the given number of
// decimal places. Nearby points collapse onto the same grid cell, which is
// what makes the geocoding cache reusable across photos taken in the same
// area.
func (c Coordinate) Quantize(decimals int) Coordinate {
	scale := math.Pow10(decimals)
	return Coordinate{
		Lat: math.Round(c.Lat*scale) / scale,
		Lon: math.Round(c.Lon*scale) / scale,
	}
}

// Key returns the quantized cache key for the coordinate, e.g. "48.86,2.35".
func (c Coordinate) Key(decimals int) string {
	q := c.Quantize(decimals)
	return strconv.FormatFloat(q.Lat, 'f', decimals, 64) + "," +
		strconv.FormatFloat(q.Lon, 'f', decimals, 64)
}

func (c Coordinate) String() string {
	return fmt.Sprintf("%.6f, %.6f", c.Lat, c.Lon)
}

// PlaceInfo is a reverse-geocoded place. Any field may be empty when the
// provider could not resolve it.
type PlaceInfo struct {
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Country     string `json:"country,omitempty"`
	CountryCode string `json:"country_code,omitempty"`
}

// Resolved reports whether the provider identified at least a city-level name.
func (p PlaceInfo) Resolved() bool {
	return p.City != ""
}

// Description renders the place in the track description format
// "City, State, Country (CC)". State is omitted when unknown.
func (p PlaceInfo) Description() string {
	parts := make([]string, 0, 3)
	if p.City != "" {
		parts = append(parts, p.City)
	}
	if p.State != "" {
		parts = append(parts, p.State)
	}
	if p.Country != "" {
		parts = append(parts, p.Country)
	}
	s := strings.Join(parts, ", ")
	if p.CountryCode != "" {
		s += " (" + p.CountryCode + ")"
	}
	return strings.TrimSpace(s)
}

// ParsePlaceDescription is the inverse of Description. It accepts the
// "City, State, Country (CC)" and "City, Country (CC)" forms as well as
// partial variants found in hand-edited tracks.
func ParsePlaceDescription(s string) PlaceInfo {
	s = strings.TrimSpace(s)
	if s == "" {
		return PlaceInfo{}
	}

	var p PlaceInfo
	if open := strings.LastIndex(s, "("); open >= 0 {
		if close := strings.LastIndex(s, ")"); close > open {
			p.CountryCode = strings.TrimSpace(s[open+1 : close])
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s[:open]), ","))
		}
	}

	var parts []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			parts = append(parts, part)
		}
	}

	switch len(parts) {
	case 0:
	case 1:
		p.City = parts[0]
	case 2:
		p.City, p.Country = parts[0], parts[1]
	default:
		p.City, p.State, p.Country = parts[0], parts[1], parts[2]
	}
	return p
}

// PhotoRecord is the metadata extracted from a single image file. Coordinate
// is nil when the file carries a timestamp but no GPS fix, which is valid
// input for the sync pass but not for track building.
type PhotoRecord struct {
	Path     string
	TakenAt  time.Time
	Coord    *Coordinate
	Altitude *float64
}

// TrackPoint is one entry of a track: a moment in time at a coordinate,
// optionally annotated with the place it resolves to and the photo it came
// from.
type TrackPoint struct {
	Timestamp  time.Time
	Coord      Coordinate
	Altitude   *float64
	Place      PlaceInfo
	Name       string
	Anonymized bool
}

// SyncStatus classifies the outcome of syncing one target photo.
type SyncStatus string

const (
	StatusMatched     SyncStatus = "matched"
	StatusNoTimestamp SyncStatus = "no_timestamp"
	StatusOutOfRange  SyncStatus = "out_of_range"
	StatusUnsupported SyncStatus = "unsupported"
	StatusWriteFailed SyncStatus = "write_failed"
)

// SyncOutcome is the per-file result of the sync pass. It is reporting
// state only and is never persisted.
type SyncOutcome struct {
	Path     string
	Status   SyncStatus
	Point    *TrackPoint
	Delta    time.Duration
	BackedUp bool
	Err      error
}
