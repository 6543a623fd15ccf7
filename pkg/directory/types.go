// Package directory provides the public types shared by the STEM incubator
// directory client: records, change events and geographic values.
// This package is intended to be importable by front ends that consume the
// directory's collections.
package directory

import "fmt"

// Well-known record field names.
const (
	// FieldID is the stable unique identifier every record carries.
	FieldID = "id"
	// FieldThumbnailURL holds a small picture URL for groups and users.
	FieldThumbnailURL = "thumbnailUrl"
	// FieldLatitude and FieldLongitude place a record on the map.
	FieldLatitude  = "latitude"
	FieldLongitude = "longitude"
)

// Record is a flat mapping describing one group, user or point of interest.
// The field set differs per record type.
type Record map[string]interface{}

// ID returns the record's identifier as a string.
// Returns an empty string if the record has no id field.
func (r Record) ID() string {
	v, ok := r[FieldID]
	if !ok || v == nil {
		return ""
	}
	switch id := v.(type) {
	case string:
		return id
	case float64:
		if id == float64(int64(id)) {
			return fmt.Sprintf("%d", int64(id))
		}
		return fmt.Sprintf("%v", id)
	default:
		return fmt.Sprintf("%v", id)
	}
}

// String returns the string value of a field, or "" if absent or not a string.
func (r Record) String(field string) string {
	s, _ := r[field].(string)
	return s
}

// Location returns the record's coordinates.
// The boolean is false when either coordinate is missing or not numeric.
func (r Record) Location() (LatLng, bool) {
	lat, okLat := toFloat(r[FieldLatitude])
	lng, okLng := toFloat(r[FieldLongitude])
	if !okLat || !okLng {
		return LatLng{}, false
	}
	return LatLng{Latitude: lat, Longitude: lng}, true
}

func toFloat(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}

// EventType identifies the kind of change a collection reports.
type EventType string

const (
	// EventAdd is emitted once per record added to a collection.
	EventAdd EventType = "add"
	// EventReset is emitted when a collection's whole record set is replaced.
	EventReset EventType = "reset"
)

// Event is a change notification emitted by a collection.
// For EventAdd, Records holds the single added record; for EventReset it
// holds the complete new record set.
type Event struct {
	// Collection is the name of the collection that changed
	Collection string `json:"collection"`

	// Type is the change kind
	Type EventType `json:"type"`

	// Records are the records concerned by the change
	Records []Record `json:"records"`
}

// LatLng is a geographic coordinate in decimal degrees.
type LatLng struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Bounds is a rectangular geographic area.
type Bounds struct {
	NorthWest LatLng `json:"northwest"`
	SouthEast LatLng `json:"southeast"`
}

// Center returns the midpoint of the bounds.
func (b Bounds) Center() LatLng {
	return LatLng{
		Latitude:  (b.NorthWest.Latitude + b.SouthEast.Latitude) / 2,
		Longitude: (b.NorthWest.Longitude + b.SouthEast.Longitude) / 2,
	}
}

// Contains reports whether p lies within the bounds (edges included).
func (b Bounds) Contains(p LatLng) bool {
	return p.Latitude <= b.NorthWest.Latitude && p.Latitude >= b.SouthEast.Latitude &&
		p.Longitude >= b.NorthWest.Longitude && p.Longitude <= b.SouthEast.Longitude
}
