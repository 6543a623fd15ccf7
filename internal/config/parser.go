package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// ParseFile reads, decodes and schema-validates a configuration file. The
// format is taken from the extension (.json, .yaml, .yml) and otherwise
// detected from the content.
func ParseFile(path string) *Result {
	result := &Result{FilePath: path}

	content, err := os.ReadFile(path)
	if err != nil {
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Path:    path,
			Message: fmt.Sprintf("failed to read file: %v", err),
			Type:    ErrorTypeIO,
		})
		return result
	}

	parsed := ParseString(string(content), DetectFormat(path))
	parsed.FilePath = path
	for i := range parsed.ParseErrors {
		if parsed.ParseErrors[i].Path == "" {
			parsed.ParseErrors[i].Path = path
		}
	}
	return parsed
}

// ParseString decodes and schema-validates configuration content. An empty
// format is detected from the content.
func ParseString(content, format string) *Result {
	result := &Result{Format: format}

	if strings.TrimSpace(content) == "" {
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Message: "empty content: expected a configuration object",
			Type:    ErrorTypeSyntax,
		})
		return result
	}

	if format == "" {
		switch {
		case IsJSON(content):
			format = FormatJSON
		case IsYAML(content):
			format = FormatYAML
		default:
			result.ParseErrors = append(result.ParseErrors, ParseError{
				Message: "unable to detect configuration format: not valid JSON or YAML",
				Type:    ErrorTypeFormat,
			})
			return result
		}
		result.Format = format
	}

	var (
		data     interface{}
		parseErr *ParseError
	)
	switch format {
	case FormatJSON:
		data, parseErr = decodeJSON(content)
	case FormatYAML:
		data, parseErr = decodeYAML(content)
	default:
		parseErr = &ParseError{Message: fmt.Sprintf("unsupported format: %s", format), Type: ErrorTypeFormat}
	}
	if parseErr != nil {
		result.ParseErrors = append(result.ParseErrors, *parseErr)
		return result
	}

	dataMap, ok := data.(map[string]interface{})
	if !ok {
		result.ParseErrors = append(result.ParseErrors, ParseError{
			Message: fmt.Sprintf("invalid configuration: expected an object, got %T", data),
			Type:    ErrorTypeFormat,
		})
		return result
	}
	result.Data = dataMap
	result.ValidationErrors = ValidateData(dataMap)
	return result
}

// DetectFormat returns the format implied by a file extension, or "".
func DetectFormat(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return FormatJSON
	case ".yaml", ".yml":
		return FormatYAML
	default:
		return ""
	}
}

// IsJSON reports whether content looks like a JSON document.
func IsJSON(content string) bool {
	content = strings.TrimSpace(content)
	return strings.HasPrefix(content, "{") || strings.HasPrefix(content, "[")
}

// IsYAML reports whether content decodes as non-empty YAML.
// JSON is also YAML, so check IsJSON first.
func IsYAML(content string) bool {
	var data interface{}
	return yaml.Unmarshal([]byte(content), &data) == nil && data != nil
}

func decodeJSON(content string) (interface{}, *ParseError) {
	var data interface{}
	err := json.Unmarshal([]byte(content), &data)
	if err == nil {
		return data, nil
	}

	parseErr := &ParseError{Message: err.Error(), Type: ErrorTypeSyntax}
	var syntaxErr *json.SyntaxError
	if errors.As(err, &syntaxErr) {
		parseErr.Line, parseErr.Column = offsetToLineColumn(content, syntaxErr.Offset)
		parseErr.Message = fmt.Sprintf("JSON syntax error: %s", syntaxErr.Error())
	}
	return nil, parseErr
}

func decodeYAML(content string) (interface{}, *ParseError) {
	var data interface{}
	err := yaml.Unmarshal([]byte(content), &data)
	if err == nil {
		return data, nil
	}

	parseErr := &ParseError{Message: err.Error(), Type: ErrorTypeSyntax}
	var typeErr *yaml.TypeError
	if errors.As(err, &typeErr) {
		parseErr.Message = fmt.Sprintf("YAML type error: %s", strings.Join(typeErr.Errors, "; "))
	}
	// yaml.v3 reports "yaml: line N: ..."
	var line int
	if _, scanErr := fmt.Sscanf(err.Error(), "yaml: line %d:", &line); scanErr == nil {
		parseErr.Line = line
	}
	return nil, parseErr
}

// offsetToLineColumn converts a byte offset to 1-based line and column.
func offsetToLineColumn(content string, offset int64) (line, column int) {
	line, column = 1, 1
	for i := int64(0); i < offset-1 && i < int64(len(content)); i++ {
		if content[i] == '\n' {
			line++
			column = 1
		} else {
			column++
		}
	}
	return line, column
}
