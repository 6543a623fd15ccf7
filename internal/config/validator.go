package config

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

//go:embed schema/site-schema.json
var embeddedSchema []byte

const schemaURL = "https://stemincubator.org/schemas/site/v1/site-schema.json"

var (
	schemaOnce     sync.Once
	compiledSchema *jsonschema.Schema
	schemaInitErr  error
)

// EmbeddedSchema returns the site configuration JSON schema.
func EmbeddedSchema() []byte {
	return embeddedSchema
}

func getCompiledSchema() (*jsonschema.Schema, error) {
	schemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(embeddedSchema))
		if err != nil {
			schemaInitErr = fmt.Errorf("failed to parse embedded schema: %w", err)
			return
		}

		compiler := jsonschema.NewCompiler()
		if err := compiler.AddResource(schemaURL, doc); err != nil {
			schemaInitErr = fmt.Errorf("failed to add schema resource: %w", err)
			return
		}

		compiledSchema, schemaInitErr = compiler.Compile(schemaURL)
		if schemaInitErr != nil {
			schemaInitErr = fmt.Errorf("failed to compile schema: %w", schemaInitErr)
		}
	})
	return compiledSchema, schemaInitErr
}

// ValidateData checks a decoded document against the site schema. An empty
// document is valid: every section has defaults.
func ValidateData(data map[string]interface{}) []ValidationError {
	if data == nil {
		return []ValidationError{{Path: "/", Type: "required", Message: "configuration data is nil"}}
	}

	schema, err := getCompiledSchema()
	if err != nil {
		return []ValidationError{{Path: "/", Type: "schema", Message: fmt.Sprintf("failed to load schema: %v", err)}}
	}

	validationErr := schema.Validate(data)
	if validationErr == nil {
		return nil
	}

	var detailed *jsonschema.ValidationError
	if errors.As(validationErr, &detailed) {
		return convertValidationErrors(detailed)
	}
	return []ValidationError{{Path: "/", Type: "validation", Message: validationErr.Error()}}
}

// convertValidationErrors flattens the leaf causes of a schema error.
func convertValidationErrors(err *jsonschema.ValidationError) []ValidationError {
	if len(err.Causes) == 0 {
		return []ValidationError{{
			Path:    formatInstanceLocation(err.InstanceLocation),
			Type:    extractErrorType(err),
			Message: err.Error(),
		}}
	}

	var out []ValidationError
	for _, cause := range err.Causes {
		out = append(out, convertValidationErrors(cause)...)
	}
	return out
}

func formatInstanceLocation(loc []string) string {
	if len(loc) == 0 {
		return "/"
	}
	return "/" + strings.Join(loc, "/")
}

func extractErrorType(err *jsonschema.ValidationError) string {
	msg := strings.ToLower(err.Error())

	switch {
	case strings.Contains(msg, "additional properties") || strings.Contains(msg, "additionalproperties"):
		return "additionalProperties"
	case strings.Contains(msg, "missing propert") || strings.Contains(msg, "required"):
		return "required"
	case strings.Contains(msg, "value must be one of") || strings.Contains(msg, "enum"):
		return "enum"
	case strings.Contains(msg, "does not match pattern") || strings.Contains(msg, "pattern"):
		return "pattern"
	case strings.Contains(msg, "minimum") || strings.Contains(msg, "maximum") ||
		strings.Contains(msg, "must be >") || strings.Contains(msg, "must be <"):
		return "range"
	case strings.Contains(msg, "got ") && strings.Contains(msg, "want "):
		return "type"
	default:
		return "validation"
	}
}
