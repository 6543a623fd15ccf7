// Package mapview binds a points-of-interest collection to a mapping widget.
// The widget itself (tiles, projection, drawing) is an external collaborator
// reached through the Widget interface.
package mapview

import (
	"log/slog"
	"sync"

	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/internal/template"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Defaults
const (
	DefaultAspectRatio   = 0.5
	DefaultMarkerClass   = "poi-marker"
	DefaultLabelTemplate = `{{record.displayName | default: ""}}`
)

// Marker is one point drawn on the map.
type Marker struct {
	ID       string
	Position directory.LatLng
	Label    string
	Class    string
	// Properties are the record fields carried with the marker.
	Properties map[string]interface{}
}

// Widget is the mapping widget a view draws on.
type Widget interface {
	FitBounds(b directory.Bounds)
	AddMarker(m Marker)
	ClearMarkers()
}

// Source is the collection a view displays. *collection.Collection satisfies
// it.
type Source interface {
	Records() []directory.Record
	Subscribe(fn func(directory.Event)) func()
}

// Options configure a view.
type Options struct {
	// AspectRatio is height/width of the map element. Defaults to 0.5.
	AspectRatio float64
	// Bounds is the area fitted on render.
	Bounds directory.Bounds
	// DefaultLocation places records that carry no coordinates. When nil
	// such records get no marker.
	DefaultLocation *directory.LatLng
	// LabelTemplate renders a marker label from its record.
	LabelTemplate string
	// MarkerClass is the CSS class given to markers.
	MarkerClass string
}

// PoisAsMap displays a POI collection as map markers and keeps them in sync
// with the collection's add and reset events.
type PoisAsMap struct {
	source    Source
	widget    Widget
	opts      Options
	evaluator *template.Evaluator

	mu          sync.Mutex
	rendered    bool
	markers     int
	unsubscribe func()
}

// New creates a view over source drawing on widget. The view starts
// listening to the collection immediately; markers are drawn once it has
// been rendered.
func New(source Source, widget Widget, opts Options) *PoisAsMap {
	if opts.AspectRatio <= 0 {
		opts.AspectRatio = DefaultAspectRatio
	}
	if opts.LabelTemplate == "" {
		opts.LabelTemplate = DefaultLabelTemplate
	}
	if opts.MarkerClass == "" {
		opts.MarkerClass = DefaultMarkerClass
	}

	v := &PoisAsMap{
		source:    source,
		widget:    widget,
		opts:      opts,
		evaluator: template.NewEvaluator(),
	}
	v.unsubscribe = source.Subscribe(v.handleEvent)
	return v
}

// Render fits the configured bounds and draws every record. It returns the
// view.
func (v *PoisAsMap) Render() *PoisAsMap {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.widget.FitBounds(v.opts.Bounds)
	v.redrawLocked(v.source.Records())
	v.rendered = true

	logger.Debug("map view rendered",
		slog.Int("marker_count", v.markers),
		slog.Float64("aspect_ratio", v.opts.AspectRatio),
	)
	return v
}

// Show makes the view visible, rendering it first if needed. It returns the
// view.
func (v *PoisAsMap) Show() *PoisAsMap {
	v.mu.Lock()
	rendered := v.rendered
	v.mu.Unlock()

	if !rendered {
		return v.Render()
	}
	return v
}

// Rendered reports whether Render has run.
func (v *PoisAsMap) Rendered() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.rendered
}

// AspectRatio returns the configured aspect ratio.
func (v *PoisAsMap) AspectRatio() float64 { return v.opts.AspectRatio }

// Map returns the widget the view draws on.
func (v *PoisAsMap) Map() Widget { return v.widget }

// MarkerCount returns the number of markers drawn.
func (v *PoisAsMap) MarkerCount() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.markers
}

// Close stops listening to the collection.
func (v *PoisAsMap) Close() {
	if v.unsubscribe != nil {
		v.unsubscribe()
	}
}

func (v *PoisAsMap) handleEvent(ev directory.Event) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if !v.rendered {
		return
	}

	switch ev.Type {
	case directory.EventAdd:
		for _, r := range ev.Records {
			v.addMarkerLocked(r)
		}
	case directory.EventReset:
		v.redrawLocked(ev.Records)
	}
}

func (v *PoisAsMap) redrawLocked(records []directory.Record) {
	v.widget.ClearMarkers()
	v.markers = 0
	for _, r := range records {
		v.addMarkerLocked(r)
	}
}

func (v *PoisAsMap) addMarkerLocked(r directory.Record) {
	m, ok := v.markerFor(r)
	if !ok {
		logger.Debug("record has no location, no marker drawn",
			slog.String("record_id", r.ID()),
		)
		return
	}
	v.widget.AddMarker(m)
	v.markers++
}

func (v *PoisAsMap) markerFor(r directory.Record) (Marker, bool) {
	pos, ok := r.Location()
	if !ok {
		if v.opts.DefaultLocation == nil {
			return Marker{}, false
		}
		pos = *v.opts.DefaultLocation
	}

	props := make(map[string]interface{}, len(r))
	for k, val := range r {
		props[k] = val
	}

	return Marker{
		ID:         r.ID(),
		Position:   pos,
		Label:      v.evaluator.Evaluate(v.opts.LabelTemplate, r),
		Class:      v.opts.MarkerClass,
		Properties: props,
	}, true
}
