// Package factory assembles the runtime components of a site from its
// configuration: the named collections, the search filter set and the POI
// map view.
//
// Collection kinds are resolved through the registry. To add a kind, see
// the documentation in internal/registry; this package needs no change.
package factory

import (
	"fmt"
	"log/slog"

	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/config"
	"github.com/gscoppino/STEM/internal/filter"
	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/internal/mapview"
	"github.com/gscoppino/STEM/internal/registry"
)

// Directory holds the components built for one site.
type Directory struct {
	Site    *config.Site
	Filters *filter.Set
	// Map displays the first local (pois) collection; nil when there is none.
	Map   *mapview.PoisAsMap
	Layer *mapview.Layer

	order       []string
	collections map[string]*collection.Collection
}

// Collection returns the collection named name.
func (d *Directory) Collection(name string) (*collection.Collection, bool) {
	c, ok := d.collections[name]
	return c, ok
}

// Collections returns the collections in configuration order.
func (d *Directory) Collections() []*collection.Collection {
	out := make([]*collection.Collection, 0, len(d.order))
	for _, name := range d.order {
		out = append(out, d.collections[name])
	}
	return out
}

// Fetchable returns the collections that have a remote endpoint.
func (d *Directory) Fetchable() []*collection.Collection {
	var out []*collection.Collection
	for _, c := range d.Collections() {
		if collection.Fetchable(c.Kind()) {
			out = append(out, c)
		}
	}
	return out
}

// Close detaches the map view from its collection.
func (d *Directory) Close() {
	if d.Map != nil {
		d.Map.Close()
	}
}

// Build creates every component of site. A nil transport uses the site's
// HTTP settings.
func Build(site *config.Site, transport collection.Transport) (*Directory, error) {
	if site == nil {
		return nil, fmt.Errorf("site configuration is nil")
	}
	if transport == nil {
		httpCfg := site.HTTP()
		transport = httpCfg.NewClient()
	}

	d := &Directory{
		Site:        site,
		collections: make(map[string]*collection.Collection),
	}

	for _, decl := range site.Collections() {
		c, err := CreateCollection(site, decl, transport)
		if err != nil {
			return nil, err
		}
		d.order = append(d.order, decl.Name)
		d.collections[decl.Name] = c
	}

	filters, err := CreateFilterSet(site)
	if err != nil {
		return nil, err
	}
	d.Filters = filters

	for _, c := range d.Collections() {
		if !collection.Fetchable(c.Kind()) {
			d.Layer = mapview.NewLayer()
			d.Map = CreateMapView(site, c, d.Layer)
			break
		}
	}

	logger.Debug("directory assembled",
		slog.Int("collections", len(d.order)),
		slog.Int("filters", filters.Len()),
		slog.Bool("has_map", d.Map != nil),
	)
	return d, nil
}

// CreateCollection creates one declared collection. Seed records are used as
// given; nothing is fetched.
func CreateCollection(site *config.Site, decl config.Collection, transport collection.Transport) (*collection.Collection, error) {
	kind, ok := registry.GetKind(decl.Kind)
	if !ok {
		return nil, fmt.Errorf("collection %q: unknown kind %q (registered: %v)", decl.Name, decl.Kind, registry.ListKinds())
	}

	c, err := collection.New(collection.Config{
		Name:      decl.Name,
		Kind:      kind,
		Endpoint:  site.Endpoint(),
		Transport: transport,
	}, decl.Records, site.Options(decl)...)
	if err != nil {
		return nil, fmt.Errorf("collection %q: %w", decl.Name, err)
	}
	return c, nil
}

// CreateFilterSet compiles the site's search filters.
func CreateFilterSet(site *config.Site) (*filter.Set, error) {
	set, err := filter.NewSet(site.Filters())
	if err != nil {
		return nil, fmt.Errorf("search filters: %w", err)
	}
	return set, nil
}

// CreateMapView binds source to widget with the site's map settings.
func CreateMapView(site *config.Site, source mapview.Source, widget mapview.Widget) *mapview.PoisAsMap {
	m := site.Map()
	geo := site.Geo()

	opts := mapview.Options{
		AspectRatio:   m.AspectRatio,
		Bounds:        geo.Bounds,
		LabelTemplate: m.LabelTemplate,
		MarkerClass:   m.MarkerClass,
	}
	if m.UseDefaultLocation {
		center := geo.Center
		opts.DefaultLocation = &center
	}
	return mapview.New(source, widget, opts)
}
