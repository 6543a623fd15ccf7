package filter

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/gscoppino/STEM/pkg/directory"
)

var sampleRecords = []directory.Record{
	{"id": "g1", "resourceType": "group", "displayName": "Robotics Club", "memberCount": float64(12)},
	{"id": "u1", "resourceType": "user", "displayName": "Ada", "picture": map[string]interface{}{"small": "/a.jpg"}},
	{"id": "g2", "resourceType": "group", "displayName": "Chemistry Lab", "memberCount": float64(3)},
}

func ids(records []directory.Record) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID())
	}
	return out
}

func TestNew_Defaults(t *testing.T) {
	f, err := New(Config{})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	if f.Icon != "" {
		t.Errorf("Icon = %q, want empty", f.Icon)
	}
	if f.Selected {
		t.Error("Selected should default to false")
	}
	if f.Title != "" {
		t.Errorf("Title = %q, want empty", f.Title)
	}
	if f.Lang != LangExpr {
		t.Errorf("Lang = %q, want %q", f.Lang, LangExpr)
	}

	ok, err := f.Match(context.Background(), sampleRecords[0])
	if err != nil || !ok {
		t.Errorf("empty filter should match everything, got %v, %v", ok, err)
	}
}

func TestNew_Errors(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{name: "unsupported lang", cfg: Config{Lang: "cel", Expression: "true"}, wantErr: ErrUnsupportedLang},
		{name: "invalid expr", cfg: Config{Expression: "resourceType ==="}, wantErr: ErrInvalidExpression},
		{name: "invalid js", cfg: Config{Lang: LangJS, Expression: "record.("}, wantErr: ErrInvalidExpression},
		{name: "js without match", cfg: Config{Lang: LangJS, ScriptFile: filepath.Join("testdata", "no_match.js")}, wantErr: ErrMissingMatchFunc},
		{name: "js with both sources", cfg: Config{Lang: LangJS, Expression: "true", ScriptFile: filepath.Join("testdata", "has_picture.js")}, wantErr: ErrScriptAndFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.cfg)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("New() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestNew_ScriptFileTraversal(t *testing.T) {
	if _, err := New(Config{Lang: LangJS, ScriptFile: "../secrets.js"}); err == nil {
		t.Error("expected path traversal to be rejected")
	}
	if _, err := New(Config{ScriptFile: filepath.Join("testdata", "has_picture.js")}); err == nil {
		t.Error("scriptFile without lang js should be rejected")
	}
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want []string
	}{
		{name: "expr field comparison", cfg: Config{Expression: `resourceType == "group"`}, want: []string{"g1", "g2"}},
		{name: "expr via record", cfg: Config{Expression: `record.resourceType == "group" && record.memberCount > 5`}, want: []string{"g1"}},
		{name: "expr string function", cfg: Config{Expression: `displayName contains "Lab"`}, want: []string{"g2"}},
		{name: "expr missing field", cfg: Config{Expression: `picture != nil`}, want: []string{"u1"}},
		{name: "js expression", cfg: Config{Lang: LangJS, Expression: `record.resourceType === "user"`}, want: []string{"u1"}},
		{name: "js truthiness", cfg: Config{Lang: LangJS, Expression: `record.memberCount`}, want: []string{"g1", "g2"}},
		{name: "js script file", cfg: Config{Lang: LangJS, ScriptFile: filepath.Join("testdata", "has_picture.js")}, want: []string{"u1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := New(tt.cfg)
			if err != nil {
				t.Fatalf("New() returned error: %v", err)
			}
			var got []string
			for _, r := range sampleRecords {
				ok, err := f.Match(context.Background(), r)
				if err != nil {
					t.Fatalf("Match(%s) returned error: %v", r.ID(), err)
				}
				if ok {
					got = append(got, r.ID())
				}
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("matches mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestMatch_CanceledContext(t *testing.T) {
	f, err := New(Config{Lang: LangJS, Expression: "true"})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := f.Match(ctx, sampleRecords[0]); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestMatch_InterruptDoesNotLeak(t *testing.T) {
	f, err := New(Config{
		Lang:       LangJS,
		Expression: `record.spin ? (function() { while (true) {} })() : record.resourceType === "group"`,
	})
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	spinning := directory.Record{"id": "spin", "spin": true}
	for i := 0; i < 5; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		_, err := f.Match(ctx, spinning)
		cancel()
		if err == nil {
			t.Fatal("expected the runaway script to be interrupted")
		}

		ok, err := f.Match(context.Background(), sampleRecords[0])
		if err != nil {
			t.Fatalf("Match after interrupt returned error: %v", err)
		}
		if !ok {
			t.Error("expected g1 to match after interrupt")
		}
	}
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   interface{}
		want bool
	}{
		{nil, false},
		{true, true},
		{0, false},
		{float64(2), true},
		{"", false},
		{"x", true},
		{[]interface{}{}, false},
		{map[string]interface{}{"a": 1}, true},
	}
	for _, tt := range tests {
		if got := toBool(tt.in); got != tt.want {
			t.Errorf("toBool(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}
