package config

import (
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/filter"
	"github.com/gscoppino/STEM/internal/httpconfig"
	"github.com/gscoppino/STEM/internal/pathutil"
	"github.com/gscoppino/STEM/internal/registry"
	"github.com/gscoppino/STEM/internal/scheduler"
	"github.com/gscoppino/STEM/internal/template"
	"github.com/gscoppino/STEM/pkg/directory"
)

// document mirrors the configuration file. Pointers mark optional values so
// absent keys keep their defaults.
type document struct {
	OAE *struct {
		Protocol *string          `json:"protocol"`
		Host     *string          `json:"host"`
		Groups   map[string]string `json:"groups"`
	} `json:"oae"`
	Geo *struct {
		Latitude        *float64   `json:"latitude"`
		Longitude       *float64   `json:"longitude"`
		NorthwestCorner *[]float64 `json:"northwestCorner"`
		SoutheastCorner *[]float64 `json:"southeastCorner"`
	} `json:"geo"`
	HTTP    *httpconfig.BaseConfig `json:"http"`
	Filters []filter.Config        `json:"filters"`
	Map     *struct {
		AspectRatio        *float64 `json:"aspectRatio"`
		LabelTemplate      *string  `json:"labelTemplate"`
		MarkerClass        *string  `json:"markerClass"`
		UseDefaultLocation *bool    `json:"useDefaultLocation"`
	} `json:"map"`
	Refresh *struct {
		Schedule   string `json:"schedule"`
		IntervalMs int    `json:"intervalMs"`
		Retry      *struct {
			MaxAttempts       *int     `json:"maxAttempts"`
			DelayMs           *int     `json:"delayMs"`
			BackoffMultiplier *float64 `json:"backoffMultiplier"`
			MaxDelayMs        *int     `json:"maxDelayMs"`
		} `json:"retry"`
	} `json:"refresh"`
	Collections []struct {
		Name     string                   `json:"name"`
		Kind     string                   `json:"kind"`
		Group    string                   `json:"group"`
		ParentID string                   `json:"parentId"`
		Limit    *int                     `json:"limit"`
		Records  []map[string]interface{} `json:"records"`
	} `json:"collections"`
	Server *struct {
		Addr string `json:"addr"`
	} `json:"server"`
}

// Convert builds a Site from a schema-validated document, applying defaults
// for absent sections. baseDir anchors relative script paths.
func Convert(data map[string]interface{}, baseDir string) (*Site, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encoding configuration: %w", err)
	}
	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decoding configuration: %w", err)
	}

	site := Default()
	var errs []ValidationError

	if doc.OAE != nil {
		if doc.OAE.Protocol != nil {
			site.oae.Protocol = *doc.OAE.Protocol
		}
		if doc.OAE.Host != nil {
			site.oae.Host = *doc.OAE.Host
		}
		if doc.OAE.Groups != nil {
			site.oae.Groups = make(map[string]string, len(doc.OAE.Groups))
			for key, id := range doc.OAE.Groups {
				site.oae.Groups[key] = decodeID(id)
			}
		}
	}

	if doc.Geo != nil {
		if doc.Geo.Latitude != nil {
			site.geo.Center.Latitude = *doc.Geo.Latitude
		}
		if doc.Geo.Longitude != nil {
			site.geo.Center.Longitude = *doc.Geo.Longitude
		}
		if doc.Geo.NorthwestCorner != nil {
			site.geo.Bounds.NorthWest = corner(*doc.Geo.NorthwestCorner)
		}
		if doc.Geo.SoutheastCorner != nil {
			site.geo.Bounds.SouthEast = corner(*doc.Geo.SoutheastCorner)
		}
		b := site.geo.Bounds
		if b.NorthWest.Latitude < b.SouthEast.Latitude || b.NorthWest.Longitude > b.SouthEast.Longitude {
			errs = append(errs, ValidationError{Path: "/geo", Type: "range", Message: "northwestCorner must be north-west of southeastCorner"})
		}
	}

	if doc.HTTP != nil {
		site.http = doc.HTTP.Clone()
		if err := httpconfig.ValidateBaseConfig(site.http); err != nil {
			errs = append(errs, ValidationError{Path: "/http", Type: "validation", Message: err.Error()})
		}
	}

	errs = append(errs, site.setFilters(doc.Filters, baseDir)...)

	if doc.Map != nil {
		if doc.Map.AspectRatio != nil {
			site.mapView.AspectRatio = *doc.Map.AspectRatio
		}
		if doc.Map.LabelTemplate != nil {
			if err := template.ValidateSyntax(*doc.Map.LabelTemplate); err != nil {
				errs = append(errs, ValidationError{Path: "/map/labelTemplate", Type: "format", Message: err.Error()})
			}
			site.mapView.LabelTemplate = *doc.Map.LabelTemplate
		}
		if doc.Map.MarkerClass != nil {
			site.mapView.MarkerClass = *doc.Map.MarkerClass
		}
		if doc.Map.UseDefaultLocation != nil {
			site.mapView.UseDefaultLocation = *doc.Map.UseDefaultLocation
		}
	}

	if doc.Refresh != nil {
		site.refresh.Schedule = doc.Refresh.Schedule
		site.refresh.IntervalMs = doc.Refresh.IntervalMs
		if site.refresh.Schedule != "" {
			if err := scheduler.ValidateCronExpression(site.refresh.Schedule); err != nil {
				errs = append(errs, ValidationError{Path: "/refresh/schedule", Type: "format", Message: err.Error()})
			}
		}
		if r := doc.Refresh.Retry; r != nil {
			if r.MaxAttempts != nil {
				site.refresh.Retry.MaxAttempts = *r.MaxAttempts
			}
			if r.DelayMs != nil {
				site.refresh.Retry.DelayMs = *r.DelayMs
			}
			if r.BackoffMultiplier != nil {
				site.refresh.Retry.BackoffMultiplier = *r.BackoffMultiplier
			}
			if r.MaxDelayMs != nil {
				site.refresh.Retry.MaxDelayMs = *r.MaxDelayMs
			}
			if err := site.refresh.Retry.Validate(); err != nil {
				errs = append(errs, ValidationError{Path: "/refresh/retry", Type: "range", Message: err.Error()})
			}
		}
	}

	if doc.Collections != nil {
		site.collections = make([]Collection, 0, len(doc.Collections))
		for _, c := range doc.Collections {
			var records []directory.Record
			for _, r := range c.Records {
				records = append(records, directory.Record(r))
			}
			site.collections = append(site.collections, Collection{
				Name:     c.Name,
				Kind:     c.Kind,
				Group:    c.Group,
				ParentID: decodeID(c.ParentID),
				Limit:    c.Limit,
				Records:  records,
			})
		}
	}
	errs = append(errs, site.checkCollections()...)

	if doc.Server != nil && doc.Server.Addr != "" {
		site.server.Addr = doc.Server.Addr
	}

	if len(errs) > 0 {
		return nil, &Error{ValidationErrors: errs}
	}
	return site, nil
}

func corner(v []float64) directory.LatLng {
	if len(v) != 2 {
		return directory.LatLng{}
	}
	return directory.LatLng{Latitude: v[0], Longitude: v[1]}
}

// setFilters resolves script paths and compiles every filter once so that
// expression errors surface at load time.
func (s *Site) setFilters(cfgs []filter.Config, baseDir string) []ValidationError {
	var errs []ValidationError
	s.filters = make([]filter.Config, 0, len(cfgs))
	seen := make(map[string]bool, len(cfgs))

	for i, cfg := range cfgs {
		path := fmt.Sprintf("/filters/%d", i)
		if cfg.ScriptFile != "" {
			resolved, err := pathutil.ResolveRelative(baseDir, cfg.ScriptFile)
			if err != nil {
				errs = append(errs, ValidationError{Path: path + "/scriptFile", Type: "path", Message: err.Error()})
				continue
			}
			cfg.ScriptFile = resolved
		}
		if seen[cfg.Title] {
			errs = append(errs, ValidationError{Path: path + "/title", Type: "duplicate", Message: fmt.Sprintf("duplicate filter title %q", cfg.Title)})
			continue
		}
		seen[cfg.Title] = true
		if _, err := filter.New(cfg); err != nil {
			errs = append(errs, ValidationError{Path: path, Type: "expression", Message: err.Error()})
			continue
		}
		s.filters = append(s.filters, cfg)
	}
	return errs
}

func (s *Site) checkCollections() []ValidationError {
	var errs []ValidationError
	seen := make(map[string]bool, len(s.collections))

	for i, c := range s.collections {
		path := fmt.Sprintf("/collections/%d", i)
		if seen[c.Name] {
			errs = append(errs, ValidationError{Path: path + "/name", Type: "duplicate", Message: fmt.Sprintf("duplicate collection name %q", c.Name)})
		}
		seen[c.Name] = true

		kind, ok := registry.GetKind(c.Kind)
		if !ok {
			errs = append(errs, ValidationError{Path: path + "/kind", Type: "enum", Message: fmt.Sprintf("unknown collection kind %q", c.Kind)})
			continue
		}
		if c.Group != "" {
			if _, ok := s.oae.Groups[c.Group]; !ok {
				errs = append(errs, ValidationError{Path: path + "/group", Type: "reference", Message: fmt.Sprintf("group %q is not defined in oae.groups", c.Group)})
				continue
			}
		}
		if collection.Fetchable(kind) && s.ParentID(c) == "" {
			errs = append(errs, ValidationError{Path: path, Type: "required", Message: fmt.Sprintf("%s collection needs a group or parentId", c.Kind)})
		}
		if !collection.Fetchable(kind) && (c.Limit != nil || c.Group != "" || c.ParentID != "") {
			errs = append(errs, ValidationError{Path: path, Type: "validation", Message: fmt.Sprintf("%s collections are local and take no group, parentId or limit", c.Kind)})
		}
	}
	return errs
}

// decodeID returns the decoded form of a resource id written into a site
// document. OAE ids are often copied from URLs already escaped
// ("g%3Asi%3A7Ji6H8sI"); ids that do not decode are kept as written.
func decodeID(id string) string {
	if !strings.Contains(id, "%") {
		return id
	}
	decoded, err := url.PathUnescape(id)
	if err != nil {
		return id
	}
	return decoded
}
