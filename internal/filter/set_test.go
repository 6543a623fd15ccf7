package filter

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func newTestSet(t *testing.T) *Set {
	t.Helper()
	s, err := NewSet([]Config{
		{Icon: "users", Title: "Groups", Expression: `resourceType == "group"`},
		{Icon: "user", Title: "People", Lang: LangJS, Expression: `record.resourceType === "user"`},
		{Title: "Large", Expression: `memberCount >= 10`},
	})
	if err != nil {
		t.Fatalf("NewSet() returned error: %v", err)
	}
	return s
}

func TestSet_NothingSelectedReturnsAll(t *testing.T) {
	s := newTestSet(t)
	got, err := s.Apply(context.Background(), sampleRecords)
	if err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"g1", "u1", "g2"}, ids(got)); diff != "" {
		t.Errorf("Apply() mismatch (-want +got):\n%s", diff)
	}
}

func TestSet_ToggleAndApply(t *testing.T) {
	s := newTestSet(t)

	selected, err := s.Toggle("Large")
	if err != nil || !selected {
		t.Fatalf("Toggle(Large) = %v, %v", selected, err)
	}
	got, _ := s.Apply(context.Background(), sampleRecords)
	if diff := cmp.Diff([]string{"g1"}, ids(got)); diff != "" {
		t.Errorf("Large only (-want +got):\n%s", diff)
	}

	if err := s.Select("People", true); err != nil {
		t.Fatalf("Select() returned error: %v", err)
	}
	got, _ = s.Apply(context.Background(), sampleRecords)
	if diff := cmp.Diff([]string{"g1", "u1"}, ids(got)); diff != "" {
		t.Errorf("Large or People (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]string{"People", "Large"}, s.Selected()); diff != "" {
		t.Errorf("Selected() mismatch (-want +got):\n%s", diff)
	}

	if selected, _ := s.Toggle("Large"); selected {
		t.Error("second toggle should deselect")
	}
}

func TestSet_UnknownAndDuplicate(t *testing.T) {
	s := newTestSet(t)
	if _, err := s.Toggle("Missing"); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("Toggle() error = %v, want ErrUnknownFilter", err)
	}
	if err := s.Select("Missing", true); !errors.Is(err, ErrUnknownFilter) {
		t.Errorf("Select() error = %v, want ErrUnknownFilter", err)
	}

	_, err := NewSet([]Config{{Title: "A"}, {Title: "A"}})
	if !errors.Is(err, ErrDuplicateTitle) {
		t.Errorf("NewSet() error = %v, want ErrDuplicateTitle", err)
	}
}

func TestSet_EvaluationErrorSkipsRecord(t *testing.T) {
	s, err := NewSet([]Config{
		{Title: "Throws", Lang: LangJS, Expression: `record.missing.deeper === 1`, Selected: true},
	})
	if err != nil {
		t.Fatalf("NewSet() returned error: %v", err)
	}
	got, err := s.Apply(context.Background(), sampleRecords)
	if err != nil {
		t.Fatalf("Apply() returned error: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("expected no records, got %v", ids(got))
	}
}

func TestSet_FiltersSnapshot(t *testing.T) {
	s := newTestSet(t)
	filters := s.Filters()
	filters[0].Selected = true

	if len(s.Selected()) != 0 {
		t.Error("mutating a snapshot changed the set")
	}
	if s.Len() != 3 || filters[0].Icon != "users" {
		t.Errorf("unexpected snapshot %+v", filters)
	}
}
