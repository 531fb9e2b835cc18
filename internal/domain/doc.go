// Package domain models the data shared by the two phototrack passes.
//
// # Track pass
//
// The track pass scans a folder of GPS-tagged photos, reverse-geocodes each
// coordinate into a [PlaceInfo] through the persistent cache, and writes the
// resulting [TrackPoint] sequence as a GPX 1.1 file. Timestamps come from the
// EXIF capture time, which carries no timezone; both passes parse those local
// times in UTC so the two streams compare in a single frame.
//
// # Sync pass
//
// The sync pass loads a track file and, for every photo in a target folder,
// finds the trackpoint with the smallest absolute time difference. Matches
// beyond the configured threshold (default one hour) are rejected: GPS tracks
// are sparse relative to photo capture, and writing stale position data would
// be worse than writing none. Each target file's result is reported as a
// [SyncOutcome].
//
// # Place descriptions
//
// Places travel inside GPX <desc> elements in the form
//
//	City, State, Country (CC)
//
// with State omitted when unknown. [PlaceInfo.Description] and
// [ParsePlaceDescription] are the two sides of that encoding, and tolerate
// the partial variants that appear in hand-edited tracks.
//
// # Coordinate quantization
//
// Geocoding cache keys are coordinates rounded to a fixed number of decimal
// places (two by default, roughly a 1.1 km grid). Photos taken near each
// other share a cache entry, which bounds cache growth and keeps the request
// count to the geocoding service low.
package domain
