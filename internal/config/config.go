// Package config loads the site configuration: the OAE tenant and groups,
// geographic defaults, transport settings, search filters, the map view,
// periodic refresh and the named collections.
//
// Documents are JSON or YAML. They are decoded, validated against the
// embedded JSON schema, then converted into an immutable *Site with
// defaults for every absent section.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/gscoppino/STEM/internal/logger"
)

// ErrInvalidConfig is matched by every *Error.
var ErrInvalidConfig = errors.New("invalid configuration")

// Error reports everything wrong with a configuration document.
type Error struct {
	FilePath         string
	ParseErrors      []ParseError
	ValidationErrors []ValidationError
}

func (e *Error) Error() string {
	msgs := make([]string, 0, len(e.ParseErrors)+len(e.ValidationErrors))
	for _, pe := range e.ParseErrors {
		msgs = append(msgs, pe.Error())
	}
	for _, ve := range e.ValidationErrors {
		msgs = append(msgs, ve.Error())
	}
	prefix := ErrInvalidConfig.Error()
	if e.FilePath != "" {
		prefix = fmt.Sprintf("%s %s", prefix, e.FilePath)
	}
	return fmt.Sprintf("%s: %s", prefix, strings.Join(msgs, "; "))
}

// Is makes errors.Is(err, ErrInvalidConfig) hold.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidConfig
}

// Load parses, validates and converts a configuration file. Relative script
// paths in the file are resolved against the file's directory.
func Load(path string) (*Site, error) {
	result := ParseFile(path)
	if !result.IsValid() {
		return nil, &Error{FilePath: path, ParseErrors: result.ParseErrors, ValidationErrors: result.ValidationErrors}
	}

	baseDir, err := filepath.Abs(filepath.Dir(path))
	if err != nil {
		baseDir = filepath.Dir(path)
	}

	site, err := Convert(result.Data, baseDir)
	if err != nil {
		var cfgErr *Error
		if errors.As(err, &cfgErr) {
			cfgErr.FilePath = path
		}
		return nil, err
	}

	logger.Debug("configuration loaded",
		"file", path,
		"format", result.Format,
		"collections", len(site.collections),
		"filters", len(site.filters),
	)
	return site, nil
}

// LoadString parses, validates and converts configuration content. An
// empty format is detected from the content.
func LoadString(content, format string) (*Site, error) {
	result := ParseString(content, format)
	if !result.IsValid() {
		return nil, &Error{ParseErrors: result.ParseErrors, ValidationErrors: result.ValidationErrors}
	}
	return Convert(result.Data, "")
}
