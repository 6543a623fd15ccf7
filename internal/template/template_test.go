package template

import (
	"strings"
	"testing"
)

func TestEvaluator_Evaluate(t *testing.T) {
	record := map[string]interface{}{
		"displayName": "Child Group",
		"tenant": map[string]interface{}{
			"alias":       "gatech",
			"displayName": "Georgia Institute of Technology",
		},
		"tags":  []interface{}{"robotics", "outreach"},
		"count": float64(3),
		"score": 4.5,
	}

	tests := []struct {
		name string
		tmpl string
		want string
	}{
		{"plain text", "no variables", "no variables"},
		{"simple field", "{{record.displayName}}", "Child Group"},
		{"without prefix", "{{displayName}}", "Child Group"},
		{"nested field", "{{record.displayName}} ({{record.tenant.displayName}})", "Child Group (Georgia Institute of Technology)"},
		{"array index", "{{record.tags[1]}}", "outreach"},
		{"whole number", "{{record.count}} members", "3 members"},
		{"fraction", "{{record.score}}", "4.5"},
		{"missing field", "[{{record.missing}}]", "[]"},
		{"default value", `{{record.missing | default: "n/a"}}`, "n/a"},
		{"default ignored when present", `{{record.displayName | default: "n/a"}}`, "Child Group"},
	}

	e := NewEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.Evaluate(tt.tmpl, record); got != tt.want {
				t.Errorf("Evaluate(%q) = %q, want %q", tt.tmpl, got, tt.want)
			}
		})
	}
}

func TestEvaluator_EvaluatePath(t *testing.T) {
	e := NewEvaluator()

	tests := []struct {
		name string
		data map[string]interface{}
		want string
	}{
		{"simple id", map[string]interface{}{"parentId": "ParentId"}, "group/ParentId/members"},
		{"reserved characters", map[string]interface{}{"parentId": "g:si:7Ji6H8sI"}, "group/g%3Asi%3A7Ji6H8sI/members"},
		{"literal percent", map[string]interface{}{"parentId": "id%41"}, "group/id%2541/members"},
		{"slash and space", map[string]interface{}{"parentId": "a/b c"}, "group/a%2Fb%20c/members"},
		{"empty id", map[string]interface{}{"parentId": ""}, "group//members"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := e.EvaluatePath("group/{{parentId}}/members", tt.data); got != tt.want {
				t.Errorf("EvaluatePath() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEscapeSegment_Idempotent(t *testing.T) {
	inputs := []string{"g:si:7Ji6H8sI", "a b", "x?y=z&w", "100%"}
	for _, in := range inputs {
		once := EscapeSegment(in)
		twice := EscapeSegment(once)
		if once != twice {
			t.Errorf("EscapeSegment not idempotent for %q: %q then %q", in, once, twice)
		}
		if strings.ContainsAny(once, ":/?&= ") {
			t.Errorf("EscapeSegment(%q) = %q still contains reserved characters", in, once)
		}
	}
}

func TestGetNestedValue(t *testing.T) {
	obj := map[string]interface{}{
		"picture": map[string]interface{}{"small": "/s.jpg"},
		"items":   []interface{}{map[string]interface{}{"id": "a"}},
	}

	if v, ok := GetNestedValue(obj, "picture.small"); !ok || v != "/s.jpg" {
		t.Errorf("picture.small = %v, %v", v, ok)
	}
	if v, ok := GetNestedValue(obj, "items[0].id"); !ok || v != "a" {
		t.Errorf("items[0].id = %v, %v", v, ok)
	}
	if _, ok := GetNestedValue(obj, "items[3].id"); ok {
		t.Error("out of range index should not be found")
	}
	if _, ok := GetNestedValue(obj, "picture.small.deeper"); ok {
		t.Error("descending into a string should not be found")
	}
	if _, ok := GetNestedValue(nil, "picture"); ok {
		t.Error("nil object should not be found")
	}
	if _, ok := GetNestedValue(obj, ""); ok {
		t.Error("empty path should not be found")
	}
}

func TestValidateSyntax(t *testing.T) {
	valid := []string{"", "plain", "{{record.name}}", `{{a | default: "x"}} and {{b}}`}
	for _, tmpl := range valid {
		if err := ValidateSyntax(tmpl); err != nil {
			t.Errorf("ValidateSyntax(%q) unexpected error: %v", tmpl, err)
		}
	}

	invalid := []string{"{{record.name}", "{{}}", "}}{{", "{{ }}"}
	for _, tmpl := range invalid {
		if err := ValidateSyntax(tmpl); err == nil {
			t.Errorf("ValidateSyntax(%q) expected error", tmpl)
		}
	}
}
