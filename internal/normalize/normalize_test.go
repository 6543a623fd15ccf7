package normalize

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/gscoppino/STEM/pkg/directory"
)

func loadFixture(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading fixture %s: %v", name, err)
	}
	return data
}

func TestParse_OAEMembersResponse(t *testing.T) {
	records, err := Parse(loadFixture(t, "members.json"))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected 2 records, got %d", len(records))
	}
	if records[0].ID() != "g:gatech:XkcBsFRK" || records[1].ID() != "u:gatech:lknvFkQkb" {
		t.Errorf("server order not preserved: %q, %q", records[0].ID(), records[1].ID())
	}
	if records[0]["description"] != "Simple group. To be deleted soon." {
		t.Errorf("unexpected description %v", records[0]["description"])
	}
	for i, r := range records {
		if _, ok := r["role"]; ok {
			t.Errorf("record %d should not carry wrapper metadata", i)
		}
		if _, ok := r[ProfileField]; ok {
			t.Errorf("record %d should be the profile itself", i)
		}
	}

	picture := records[0]["picture"].(map[string]interface{})
	if records[0][directory.FieldThumbnailURL] != picture["small"] {
		t.Errorf("thumbnailUrl = %v, want picture.small %v", records[0][directory.FieldThumbnailURL], picture["small"])
	}
}

func TestNormalize_DropsRoleKeepsProfile(t *testing.T) {
	raw := map[string]interface{}{
		"results": []interface{}{
			map[string]interface{}{"profile": map[string]interface{}{"id": "a", "displayName": "A"}, "role": "x"},
			map[string]interface{}{"profile": map[string]interface{}{"id": "b"}, "role": "y"},
		},
	}

	want := []directory.Record{
		{"id": "a", "displayName": "A"},
		{"id": "b"},
	}
	if diff := cmp.Diff(want, Normalize(raw)); diff != "" {
		t.Errorf("Normalize() mismatch (-want +got):\n%s", diff)
	}
}

func TestNormalize_ThumbnailDerivation(t *testing.T) {
	t.Run("derived from picture.small", func(t *testing.T) {
		profile := map[string]interface{}{"id": "a", "picture": map[string]interface{}{"small": "S"}}
		raw := map[string]interface{}{"results": []interface{}{map[string]interface{}{"profile": profile}}}

		got := Normalize(raw)
		if got[0][directory.FieldThumbnailURL] != "S" {
			t.Errorf("thumbnailUrl = %v, want S", got[0][directory.FieldThumbnailURL])
		}
		if _, mutated := profile[directory.FieldThumbnailURL]; mutated {
			t.Error("input profile should not be modified")
		}
	})

	t.Run("existing thumbnail kept", func(t *testing.T) {
		profile := map[string]interface{}{
			"id":           "a",
			"thumbnailUrl": "T",
			"picture":      map[string]interface{}{"small": "S"},
		}
		raw := map[string]interface{}{"results": []interface{}{map[string]interface{}{"profile": profile}}}

		if got := Normalize(raw); got[0][directory.FieldThumbnailURL] != "T" {
			t.Errorf("thumbnailUrl = %v, want T", got[0][directory.FieldThumbnailURL])
		}
	})

	t.Run("missing picture tolerated", func(t *testing.T) {
		raw := map[string]interface{}{"results": []interface{}{
			map[string]interface{}{"profile": map[string]interface{}{"id": "a"}},
			map[string]interface{}{"profile": map[string]interface{}{"id": "b", "picture": map[string]interface{}{}}},
			map[string]interface{}{"profile": map[string]interface{}{"id": "c", "picture": "not-an-object"}},
		}}

		got := Normalize(raw)
		if len(got) != 3 {
			t.Fatalf("expected 3 records, got %d", len(got))
		}
		for _, r := range got {
			if _, ok := r[directory.FieldThumbnailURL]; ok {
				t.Errorf("record %s should have no thumbnail", r.ID())
			}
		}
	})
}

func TestNormalize_FlatPassThrough(t *testing.T) {
	flat := []interface{}{
		map[string]interface{}{"id": "a", "picture": map[string]interface{}{"small": "S"}},
		map[string]interface{}{"id": "b"},
	}

	got := Normalize(flat)
	want := []directory.Record{
		{"id": "a", "picture": map[string]interface{}{"small": "S"}},
		{"id": "b"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("flat input should pass through unchanged (-want +got):\n%s", diff)
	}
}

func TestParse_FlatArrayDropsNonObjects(t *testing.T) {
	records, err := Parse([]byte(`[{"id": "a"}, "stray", 42, null, [{"id": "nested"}], {"id": "b"}]`))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	want := []directory.Record{{"id": "a"}, {"id": "b"}}
	if diff := cmp.Diff(want, records); diff != "" {
		t.Errorf("only object elements should be kept, in order (-want +got):\n%s", diff)
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	records, err := Parse(loadFixture(t, "members.json"))
	if err != nil {
		t.Fatalf("Parse() returned error: %v", err)
	}

	again := Normalize(records)
	if diff := cmp.Diff(records, again); diff != "" {
		t.Errorf("normalize(normalize(x)) != normalize(x) (-first +second):\n%s", diff)
	}
}

func TestNormalize_OtherShapes(t *testing.T) {
	single := Normalize(map[string]interface{}{"id": "solo"})
	if len(single) != 1 || single[0].ID() != "solo" {
		t.Errorf("plain object should become one record, got %v", single)
	}

	if got := Normalize("unexpected"); len(got) != 0 {
		t.Errorf("scalar input should yield no records, got %v", got)
	}
	if got := Normalize(nil); len(got) != 0 {
		t.Errorf("nil input should yield no records, got %v", got)
	}

	skipped := Normalize(map[string]interface{}{"results": []interface{}{"junk", map[string]interface{}{"role": "x"}}})
	if len(skipped) != 0 {
		t.Errorf("wrappers without a profile should be skipped, got %v", skipped)
	}
}

func TestParse_InvalidJSON(t *testing.T) {
	_, err := Parse([]byte("{not json"))
	if !errors.Is(err, ErrJSONParse) {
		t.Errorf("expected ErrJSONParse, got %v", err)
	}
}
