package config

import (
	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/filter"
	"github.com/gscoppino/STEM/internal/httpconfig"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Default site values: the OAE tenant of the incubator and the centre and
// corners of Georgia.
const (
	DefaultProtocol   = "https:"
	DefaultHost       = "stemincubator.oaeproject.org"
	DefaultGroupID    = "g%3Asi%3A7Ji6H8sI"
	DefaultLatitude   = 32.9605
	DefaultLongitude  = -83.1132
	DefaultServerAddr = ":8080"
)

// DefaultGroups are the directory's top-level groups.
var DefaultGroups = []string{"businesses", "courses", "partnerships", "schools"}

// DefaultBounds frames the state on the map.
var DefaultBounds = directory.Bounds{
	NorthWest: directory.LatLng{Latitude: 35.000659, Longitude: -85.605165},
	SouthEast: directory.LatLng{Latitude: 30.355757, Longitude: -80.751429},
}

// OAE locates the tenant and names its groups.
type OAE struct {
	Protocol string
	Host     string
	// Groups maps a group key (businesses, schools, ...) to its OAE id.
	Groups map[string]string
}

// Geo holds the default map location and area.
type Geo struct {
	Center directory.LatLng
	Bounds directory.Bounds
}

// Map configures the POI map view.
type Map struct {
	AspectRatio        float64
	LabelTemplate      string
	MarkerClass        string
	UseDefaultLocation bool
}

// Refresh configures periodic re-fetching. Schedule (cron) wins over
// Interval when both are set; neither means no periodic refresh.
type Refresh struct {
	Schedule   string
	IntervalMs int
	Retry      errhandling.RetryConfig
}

// Enabled reports whether periodic refresh is configured.
func (r Refresh) Enabled() bool {
	return r.Schedule != "" || r.IntervalMs > 0
}

// Collection declares one named collection.
type Collection struct {
	Name string
	Kind string
	// Group references a key of OAE.Groups; ParentID, when set, wins.
	Group    string
	ParentID string
	Limit    *int
	// Records seed local collections.
	Records []directory.Record
}

// Server configures the HTTP surface.
type Server struct {
	Addr string
}

// Site is the validated application configuration. It is immutable: every
// accessor returns a copy.
type Site struct {
	oae         OAE
	geo         Geo
	http        httpconfig.BaseConfig
	filters     []filter.Config
	mapView     Map
	refresh     Refresh
	collections []Collection
	server      Server
}

// OAE returns the tenant settings.
func (s *Site) OAE() OAE {
	out := s.oae
	out.Groups = make(map[string]string, len(s.oae.Groups))
	for k, v := range s.oae.Groups {
		out.Groups[k] = v
	}
	return out
}

// Endpoint returns the tenant as a collection endpoint.
func (s *Site) Endpoint() collection.Endpoint {
	return collection.Endpoint{Protocol: s.oae.Protocol, Host: s.oae.Host}
}

// GroupID returns the OAE id of a configured group key.
func (s *Site) GroupID(key string) (string, bool) {
	id, ok := s.oae.Groups[key]
	return id, ok
}

// Geo returns the geographic defaults.
func (s *Site) Geo() Geo { return s.geo }

// HTTP returns the transport settings.
func (s *Site) HTTP() httpconfig.BaseConfig { return s.http.Clone() }

// Filters returns the search filter declarations in order.
func (s *Site) Filters() []filter.Config {
	out := make([]filter.Config, len(s.filters))
	copy(out, s.filters)
	return out
}

// Map returns the map view settings.
func (s *Site) Map() Map { return s.mapView }

// Refresh returns the refresh settings.
func (s *Site) Refresh() Refresh { return s.refresh }

// Server returns the HTTP surface settings.
func (s *Site) Server() Server { return s.server }

// Collections returns the collection declarations in order.
func (s *Site) Collections() []Collection {
	out := make([]Collection, len(s.collections))
	for i, c := range s.collections {
		out[i] = c
		if c.Limit != nil {
			n := *c.Limit
			out[i].Limit = &n
		}
		if c.Records != nil {
			out[i].Records = make([]directory.Record, len(c.Records))
			copy(out[i].Records, c.Records)
		}
	}
	return out
}

// Collection returns the declaration named name.
func (s *Site) Collection(name string) (Collection, bool) {
	for _, c := range s.Collections() {
		if c.Name == name {
			return c, true
		}
	}
	return Collection{}, false
}

// ParentID resolves the parent group id of a declaration.
func (s *Site) ParentID(c Collection) string {
	if c.ParentID != "" {
		return c.ParentID
	}
	if c.Group != "" {
		return s.oae.Groups[c.Group]
	}
	return ""
}

// Options converts a declaration into collection options.
func (s *Site) Options(c Collection) []collection.Option {
	opts := []collection.Option{collection.WithParentID(s.ParentID(c))}
	if c.Limit != nil {
		opts = append(opts, collection.WithLimit(*c.Limit))
	}
	return opts
}

// Default returns the built-in site: the four directory groups as sub-group
// collections plus an empty points-of-interest collection.
func Default() *Site {
	groups := make(map[string]string, len(DefaultGroups))
	collections := make([]Collection, 0, len(DefaultGroups)+1)
	for _, g := range DefaultGroups {
		groups[g] = decodeID(DefaultGroupID)
		collections = append(collections, Collection{Name: g, Kind: collection.SubGroups{}.Name(), Group: g})
	}
	collections = append(collections, Collection{Name: "pois", Kind: collection.Pois{}.Name()})

	return &Site{
		oae: OAE{Protocol: DefaultProtocol, Host: DefaultHost, Groups: groups},
		geo: Geo{
			Center: directory.LatLng{Latitude: DefaultLatitude, Longitude: DefaultLongitude},
			Bounds: DefaultBounds,
		},
		http:        httpconfig.BaseConfig{TimeoutMs: httpconfig.DefaultTimeoutMs},
		mapView:     Map{AspectRatio: 0.5, UseDefaultLocation: true},
		refresh:     Refresh{Retry: errhandling.DefaultRetryConfig()},
		collections: collections,
		server:      Server{Addr: DefaultServerAddr},
	}
}
