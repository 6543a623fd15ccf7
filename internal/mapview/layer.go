package mapview

import (
	"encoding/json"
	"sync"

	"github.com/gscoppino/STEM/pkg/directory"
)

// Layer is an in-memory Widget. It keeps the markers and fitted bounds so a
// browser front end can fetch them as GeoJSON.
type Layer struct {
	mu      sync.RWMutex
	bounds  directory.Bounds
	markers []Marker
}

// NewLayer creates an empty layer.
func NewLayer() *Layer {
	return &Layer{}
}

// FitBounds implements Widget.
func (l *Layer) FitBounds(b directory.Bounds) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.bounds = b
}

// AddMarker implements Widget.
func (l *Layer) AddMarker(m Marker) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = append(l.markers, m)
}

// ClearMarkers implements Widget.
func (l *Layer) ClearMarkers() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.markers = nil
}

// Bounds returns the last fitted bounds.
func (l *Layer) Bounds() directory.Bounds {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.bounds
}

// Markers returns a copy of the markers in drawing order.
func (l *Layer) Markers() []Marker {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]Marker, len(l.markers))
	copy(out, l.markers)
	return out
}

// FeatureCollection is a GeoJSON feature collection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	BBox     []float64 `json:"bbox,omitempty"`
	Features []Feature `json:"features"`
}

// Feature is a GeoJSON point feature.
type Feature struct {
	Type       string                 `json:"type"`
	ID         string                 `json:"id,omitempty"`
	Geometry   Geometry               `json:"geometry"`
	Properties map[string]interface{} `json:"properties"`
}

// Geometry is a GeoJSON point. Coordinates are [longitude, latitude].
type Geometry struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"`
}

// FeatureCollection converts the layer to GeoJSON values. The bbox is
// [west, south, east, north] of the fitted bounds.
func (l *Layer) FeatureCollection() FeatureCollection {
	l.mu.RLock()
	defer l.mu.RUnlock()

	fc := FeatureCollection{
		Type:     "FeatureCollection",
		Features: make([]Feature, 0, len(l.markers)),
	}
	if l.bounds != (directory.Bounds{}) {
		fc.BBox = []float64{
			l.bounds.NorthWest.Longitude,
			l.bounds.SouthEast.Latitude,
			l.bounds.SouthEast.Longitude,
			l.bounds.NorthWest.Latitude,
		}
	}

	for _, m := range l.markers {
		props := make(map[string]interface{}, len(m.Properties)+2)
		for k, v := range m.Properties {
			props[k] = v
		}
		props["label"] = m.Label
		props["class"] = m.Class

		fc.Features = append(fc.Features, Feature{
			Type: "Feature",
			ID:   m.ID,
			Geometry: Geometry{
				Type:        "Point",
				Coordinates: []float64{m.Position.Longitude, m.Position.Latitude},
			},
			Properties: props,
		})
	}
	return fc
}

// GeoJSON returns the layer encoded as a GeoJSON FeatureCollection.
func (l *Layer) GeoJSON() ([]byte, error) {
	return json.Marshal(l.FeatureCollection())
}
