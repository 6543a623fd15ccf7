// Package template provides template evaluation for dynamic string construction.
// It supports variable substitution using {{record.field}} syntax with optional
// default values. Collection kinds use it to build resource paths
// ("group/{{parentId}}/members") and the map view uses it for marker labels.
package template

import (
	"fmt"
	"log/slog"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/gscoppino/STEM/internal/logger"
)

// Template syntax constants
const (
	// TemplatePrefix is the opening delimiter for template variables
	TemplatePrefix = "{{"
	// TemplateSuffix is the closing delimiter for template variables
	TemplateSuffix = "}}"
	// RecordPrefix is an optional prefix on variable paths ("record.displayName")
	RecordPrefix = "record."
)

// ErrMsgInvalidTemplateSyntax prefixes syntax validation errors.
const ErrMsgInvalidTemplateSyntax = "invalid template syntax"

// templateVarRegex matches {{path}} or {{path | default: "value"}}.
// Group 1: variable path, group 2: default clause, group 3: default value.
var templateVarRegex = regexp.MustCompile(`\{\{\s*([^|}]+?)(\s*\|\s*default:\s*"([^"]*)")?\s*\}\}`)

var emptyBracesRegex = regexp.MustCompile(`\{\{\s*\}\}`)

// Variable represents a parsed template variable
type Variable struct {
	FullMatch    string // The full matched string including {{ }}
	Path         string // The variable path (e.g., "record.picture.small")
	DefaultValue string // Default value if specified
	HasDefault   bool   // Whether a default value was specified
}

// Evaluator evaluates template strings against record data.
// Parsed variables are cached per template string. The cache is not
// goroutine-safe; each owner keeps its own Evaluator.
type Evaluator struct {
	cache map[string][]Variable
}

// NewEvaluator creates a new template evaluator.
func NewEvaluator() *Evaluator {
	return &Evaluator{
		cache: make(map[string][]Variable),
	}
}

// HasVariables checks if a string contains template variables.
func HasVariables(s string) bool {
	return strings.Contains(s, TemplatePrefix) && strings.Contains(s, TemplateSuffix)
}

// ParseVariables extracts all template variables from a template string.
func (e *Evaluator) ParseVariables(tmpl string) []Variable {
	if cached, ok := e.cache[tmpl]; ok {
		return cached
	}

	matches := templateVarRegex.FindAllStringSubmatch(tmpl, -1)
	variables := make([]Variable, 0, len(matches))
	for _, match := range matches {
		v := Variable{
			FullMatch: match[0],
			Path:      strings.TrimSpace(match[1]),
		}
		if match[2] != "" {
			v.DefaultValue = match[3]
			v.HasDefault = true
		}
		variables = append(variables, v)
	}

	e.cache[tmpl] = variables
	return variables
}

// Evaluate replaces every variable in tmpl with its value from data.
// Missing or null values become the default if one is given, else "".
func (e *Evaluator) Evaluate(tmpl string, data map[string]interface{}) string {
	return e.evaluate(tmpl, data, func(s string) string { return s })
}

// EvaluatePath evaluates a URL path template. Every substituted value is
// escaped as a single path segment with EscapeSegment; literal text is kept.
func (e *Evaluator) EvaluatePath(tmpl string, data map[string]interface{}) string {
	return e.evaluate(tmpl, data, EscapeSegment)
}

func (e *Evaluator) evaluate(tmpl string, data map[string]interface{}, encode func(string) string) string {
	if !HasVariables(tmpl) {
		return tmpl
	}

	result := tmpl
	for _, v := range e.ParseVariables(tmpl) {
		result = strings.Replace(result, v.FullMatch, encode(e.resolveVariable(v, data)), 1)
	}
	return result
}

// resolveVariable resolves a single template variable using record data.
func (e *Evaluator) resolveVariable(v Variable, data map[string]interface{}) string {
	path := strings.TrimPrefix(v.Path, RecordPrefix)

	value, found := GetNestedValue(data, path)
	if !found || value == nil {
		if v.HasDefault {
			return v.DefaultValue
		}
		logger.Debug("template variable missing, using empty string",
			slog.String("path", v.Path),
		)
		return ""
	}

	return ValueToString(value)
}

// EscapeSegment escapes s for use as one URL path segment. Every reserved
// character is escaped, including ':' which OAE resource ids contain
// ("g:si:7Ji6H8sI" becomes "g%3Asi%3A7Ji6H8sI"). A literal '%' is escaped
// too, so s must be the decoded identifier.
func EscapeSegment(s string) string {
	return strings.ReplaceAll(url.QueryEscape(s), "+", "%20")
}

// GetNestedValue extracts a value from a nested object using dot notation.
// Supports array indexing with [n] syntax ("items[0].name").
// Returns the value and whether the full path was found.
func GetNestedValue(obj map[string]interface{}, path string) (interface{}, bool) {
	if path == "" || obj == nil {
		return nil, false
	}

	var current interface{} = obj
	for _, part := range strings.Split(path, ".") {
		key, index, hasIndex := parseArrayNotation(part)

		m, ok := asMap(current)
		if !ok {
			return nil, false
		}
		val, ok := m[key]
		if !ok {
			return nil, false
		}
		current = val

		if hasIndex {
			arr, ok := current.([]interface{})
			if !ok || index >= len(arr) {
				return nil, false
			}
			current = arr[index]
		}
	}

	return current, true
}

// asMap returns v as a non-nil JSON object.
func asMap(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case map[string]interface{}:
		return m, m != nil
	default:
		return nil, false
	}
}

// parseArrayNotation splits "items[0]" into ("items", 0, true).
func parseArrayNotation(part string) (string, int, bool) {
	open := strings.Index(part, "[")
	if open == -1 || !strings.HasSuffix(part, "]") || open+1 >= len(part)-1 {
		return part, -1, false
	}

	index, err := strconv.Atoi(part[open+1 : len(part)-1])
	if err != nil || index < 0 {
		return part, -1, false
	}
	return part[:open], index, true
}

// ValueToString converts any value to its string representation.
// Whole float64 values (JSON numbers) are printed without a decimal point.
func ValueToString(value interface{}) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// ValidateSyntax validates that a template string has valid syntax.
func ValidateSyntax(tmpl string) error {
	if tmpl == "" {
		return nil
	}

	openCount := strings.Count(tmpl, TemplatePrefix)
	closeCount := strings.Count(tmpl, TemplateSuffix)
	if openCount != closeCount {
		return fmt.Errorf("%s: unmatched template delimiters (found %d '{{' and %d '}}')",
			ErrMsgInvalidTemplateSyntax, openCount, closeCount)
	}
	if openCount == 0 {
		return nil
	}

	if emptyBracesRegex.MatchString(tmpl) {
		return fmt.Errorf("%s: empty variable path", ErrMsgInvalidTemplateSyntax)
	}

	// "}}{{" balances the counts but pairs nothing.
	remainder := templateVarRegex.ReplaceAllString(tmpl, "")
	if strings.Contains(remainder, TemplatePrefix) || strings.Contains(remainder, TemplateSuffix) {
		return fmt.Errorf("%s: stray '{{' or '}}' found", ErrMsgInvalidTemplateSyntax)
	}

	return nil
}
