package pathutil

import (
	"path/filepath"
	"testing"
)

func TestValidateFilePath(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{"empty", "", true},
		{"null byte", "a\x00b", true},
		{"simple segment", "..", true},
		{"leading segment", "../foo", true},
		{"middle segment", "filters/../secrets.js", true},
		{"dotted name", "filters/..hidden/match.js", false},
		{"valid relative", "filters/has_picture.js", false},
		{"single segment", "match.js", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateFilePath(tt.path)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateFilePath(%q) err = %v, wantErr %v", tt.path, err, tt.wantErr)
			}
		})
	}
}

func TestResolveRelative(t *testing.T) {
	base := filepath.Join("/etc", "stem")
	abs := filepath.Join("/opt", "filters", "match.js")

	tests := []struct {
		name    string
		base    string
		path    string
		want    string
		wantErr bool
	}{
		{"relative anchored at base", base, "filters/match.js", filepath.Join(base, "filters", "match.js"), false},
		{"absolute kept", base, abs, abs, false},
		{"no base", "", "filters/match.js", filepath.Join("filters", "match.js"), false},
		{"traversal rejected", base, "../match.js", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ResolveRelative(tt.base, tt.path)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ResolveRelative() err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("ResolveRelative() = %q, want %q", got, tt.want)
			}
		})
	}
}
