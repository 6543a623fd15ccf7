package filter

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gscoppino/STEM/internal/logger"
	"github.com/gscoppino/STEM/pkg/directory"
)

// Set is an ordered group of search filters with their selection state.
// It is safe for concurrent use.
type Set struct {
	mu      sync.RWMutex
	filters []*SearchFilter
	index   map[string]int
}

// NewSet compiles cfgs into a set, keeping their order.
func NewSet(cfgs []Config) (*Set, error) {
	s := &Set{index: make(map[string]int, len(cfgs))}
	for i, cfg := range cfgs {
		f, err := New(cfg)
		if err != nil {
			return nil, fmt.Errorf("filter %d: %w", i, err)
		}
		if err := s.add(f); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Set) add(f *SearchFilter) error {
	if _, exists := s.index[f.Title]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateTitle, f.Title)
	}
	s.index[f.Title] = len(s.filters)
	s.filters = append(s.filters, f)
	return nil
}

// Filters returns a snapshot of the filters in order.
func (s *Set) Filters() []SearchFilter {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]SearchFilter, len(s.filters))
	for i, f := range s.filters {
		out[i] = *f
	}
	return out
}

// Len returns the number of filters.
func (s *Set) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.filters)
}

// Toggle flips the selection of the filter titled title and returns the new
// state.
func (s *Set) Toggle(title string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[title]
	if !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownFilter, title)
	}
	s.filters[i].Selected = !s.filters[i].Selected
	return s.filters[i].Selected, nil
}

// Select sets the selection of the filter titled title.
func (s *Set) Select(title string, selected bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i, ok := s.index[title]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownFilter, title)
	}
	s.filters[i].Selected = selected
	return nil
}

// Selected returns the titles of the selected filters in order.
func (s *Set) Selected() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var titles []string
	for _, f := range s.filters {
		if f.Selected {
			titles = append(titles, f.Title)
		}
	}
	return titles
}

// Apply returns the records matching at least one selected filter, in their
// original order. With nothing selected every record is returned. A record
// whose evaluation fails counts as not matching that filter.
func (s *Set) Apply(ctx context.Context, records []directory.Record) ([]directory.Record, error) {
	s.mu.RLock()
	var active []*SearchFilter
	for _, f := range s.filters {
		if f.Selected {
			active = append(active, f)
		}
	}
	s.mu.RUnlock()

	if len(active) == 0 {
		out := make([]directory.Record, len(records))
		copy(out, records)
		return out, nil
	}

	out := make([]directory.Record, 0, len(records))
	for recordIdx, record := range records {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, f := range active {
			ok, err := f.Match(ctx, record)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return nil, ctxErr
				}
				logger.Warn("skipping record for filter due to evaluation error",
					slog.Int("record_index", recordIdx),
					slog.String("record_id", record.ID()),
					slog.String("filter", f.Title),
					slog.String("error", err.Error()),
				)
				continue
			}
			if ok {
				out = append(out, record)
				break
			}
		}
	}
	return out, nil
}
