package config

import (
	"fmt"
	"strings"
)

// Error types for parse errors
const (
	ErrorTypeIO     = "io"
	ErrorTypeSyntax = "syntax"
	ErrorTypeFormat = "format"
)

// Supported formats
const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// ParseError is a failure to read or decode a configuration document.
type ParseError struct {
	// Path is the file the error occurred in (empty when parsed from a string)
	Path string
	// Line is the line number (1-based, 0 if unknown)
	Line int
	// Column is the column number (1-based, 0 if unknown)
	Column int
	// Message is the error message
	Message string
	// Type is one of ErrorTypeIO, ErrorTypeSyntax, ErrorTypeFormat
	Type string
}

// Error implements the error interface.
func (e ParseError) Error() string {
	var sb strings.Builder
	if e.Path != "" {
		sb.WriteString(e.Path)
		sb.WriteString(": ")
	}
	if e.Line > 0 {
		fmt.Fprintf(&sb, "line %d", e.Line)
		if e.Column > 0 {
			fmt.Fprintf(&sb, ", column %d", e.Column)
		}
		sb.WriteString(": ")
	}
	sb.WriteString(e.Message)
	return sb.String()
}

// ValidationError is a schema or semantic violation in a decoded document.
type ValidationError struct {
	// Path is the JSON pointer of the offending value (e.g. "/collections/0/kind")
	Path string
	// Type is a short classification (required, type, enum, reference, ...)
	Type string
	// Message is the error message
	Message string
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("%s: %s", e.Path, e.Message)
	}
	return e.Message
}

// Result is the outcome of parsing and validating one document.
type Result struct {
	// Data is the decoded document
	Data map[string]interface{}
	// ParseErrors are decoding failures; validation is skipped when present
	ParseErrors []ParseError
	// ValidationErrors are schema violations
	ValidationErrors []ValidationError
	// FilePath is the source file (empty when parsed from a string)
	FilePath string
	// Format is FormatJSON or FormatYAML
	Format string
}

// IsValid returns true if no errors occurred.
func (r *Result) IsValid() bool {
	return len(r.ParseErrors) == 0 && len(r.ValidationErrors) == 0
}

// AllErrors returns parse errors followed by validation errors.
func (r *Result) AllErrors() []error {
	errs := make([]error, 0, len(r.ParseErrors)+len(r.ValidationErrors))
	for _, e := range r.ParseErrors {
		errs = append(errs, e)
	}
	for _, e := range r.ValidationErrors {
		errs = append(errs, e)
	}
	return errs
}
