package server

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/gscoppino/STEM/internal/collection"
	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/filter"
	"github.com/gscoppino/STEM/pkg/directory"
)

type collectionSummary struct {
	Name      string `json:"name"`
	Kind      string `json:"kind"`
	Fetchable bool   `json:"fetchable"`
	ParentID  string `json:"parentId,omitempty"`
	Limit     *int   `json:"limit,omitempty"`
	URL       string `json:"url,omitempty"`
	Count     int    `json:"count"`
}

func summarize(c *collection.Collection) collectionSummary {
	opts := c.Options()
	sum := collectionSummary{
		Name:      c.Name(),
		Kind:      c.Kind().Name(),
		Fetchable: collection.Fetchable(c.Kind()),
		ParentID:  opts.ParentID,
		Limit:     opts.Limit,
		Count:     c.Len(),
	}
	if sum.Fetchable {
		sum.URL, _ = c.BuildURL()
	}
	return sum
}

type recordsResponse struct {
	Collection string             `json:"collection"`
	Count      int                `json:"count"`
	Records    []directory.Record `json:"records"`
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
}

func (s *Server) collectionParam(w http.ResponseWriter, r *http.Request) (*collection.Collection, bool) {
	name := chi.URLParam(r, "name")
	c, ok := s.dir.Collection(name)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown collection: "+name)
		return nil, false
	}
	return c, true
}

func (s *Server) listCollections(w http.ResponseWriter, _ *http.Request) {
	cols := s.dir.Collections()
	out := make([]collectionSummary, 0, len(cols))
	for _, c := range cols {
		out = append(out, summarize(c))
	}
	writeJSON(w, http.StatusOK, map[string]any{"collections": out})
}

func (s *Server) getCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionParam(w, r)
	if !ok {
		return
	}
	records := c.Records()
	writeJSON(w, http.StatusOK, recordsResponse{Collection: c.Name(), Count: len(records), Records: records})
}

// refreshCollection fetches a collection. The parentId and limit query
// parameters update its options first; limit=none clears the limit.
func (s *Server) refreshCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionParam(w, r)
	if !ok {
		return
	}
	if !collection.Fetchable(c.Kind()) {
		writeError(w, http.StatusConflict, "collection "+c.Name()+" is local and cannot be refreshed")
		return
	}

	opts, err := optionsFromQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(opts) > 0 {
		c.SetOptions(opts...)
	}

	if err := c.Fetch(r.Context()); err != nil {
		writeError(w, fetchErrorStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, summarize(c))
}

func optionsFromQuery(r *http.Request) ([]collection.Option, error) {
	q := r.URL.Query()
	var opts []collection.Option
	if q.Has("parentId") {
		opts = append(opts, collection.WithParentID(q.Get("parentId")))
	}
	if q.Has("limit") {
		raw := q.Get("limit")
		if raw == "none" {
			opts = append(opts, collection.WithoutLimit())
		} else {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				return nil, errors.New("limit must be a non-negative integer or \"none\"")
			}
			opts = append(opts, collection.WithLimit(n))
		}
	}
	return opts, nil
}

// fetchErrorStatus maps a fetch failure to a response status.
func fetchErrorStatus(err error) int {
	switch {
	case errhandling.IsAborted(err):
		return http.StatusConflict
	case errors.Is(err, context.Canceled):
		return 499
	case errhandling.GetErrorCategory(err) == errhandling.CategoryRateLimit:
		return http.StatusTooManyRequests
	case errhandling.GetErrorCategory(err) == errhandling.CategoryNetwork && errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func (s *Server) searchCollection(w http.ResponseWriter, r *http.Request) {
	c, ok := s.collectionParam(w, r)
	if !ok {
		return
	}
	records, err := s.dir.Filters.Apply(r.Context(), c.Records())
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, recordsResponse{Collection: c.Name(), Count: len(records), Records: records})
}

type filterView struct {
	Icon       string `json:"icon"`
	Title      string `json:"title"`
	Selected   bool   `json:"selected"`
	Lang       string `json:"lang"`
	Expression string `json:"expression,omitempty"`
}

func viewFilters(filters []filter.SearchFilter) []filterView {
	out := make([]filterView, 0, len(filters))
	for _, f := range filters {
		out = append(out, filterView{
			Icon:       f.Icon,
			Title:      f.Title,
			Selected:   f.Selected,
			Lang:       f.Lang,
			Expression: f.Expression(),
		})
	}
	return out
}

func (s *Server) listFilters(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"filters": viewFilters(s.dir.Filters.Filters())})
}

func (s *Server) toggleFilter(w http.ResponseWriter, r *http.Request) {
	title := chi.URLParam(r, "title")
	selected, err := s.dir.Filters.Toggle(title)
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"title": title, "selected": selected})
}

func (s *Server) poisGeoJSON(w http.ResponseWriter, _ *http.Request) {
	if s.dir.Map == nil || s.dir.Layer == nil {
		writeError(w, http.StatusNotFound, "site has no points of interest collection")
		return
	}
	s.dir.Map.Show()

	body, err := s.dir.Layer.GeoJSON()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
