package httpconfig

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gscoppino/STEM/internal/template"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for %s: %s", e.Field, e.Message)
}

// reservedHeaders are set by the transport itself.
var reservedHeaders = map[string]bool{
	"Accept":       true,
	"X-Request-Id": true,
}

// ValidateBaseConfig validates a BaseConfig.
func ValidateBaseConfig(config BaseConfig) error {
	if config.TimeoutMs < 0 {
		return &ValidationError{Field: "timeoutMs", Message: "must be >= 0"}
	}
	if config.RequestsPerSecond < 0 {
		return &ValidationError{Field: "requestsPerSecond", Message: "must be >= 0"}
	}
	if config.Burst < 0 {
		return &ValidationError{Field: "burst", Message: "must be >= 0"}
	}

	for name, value := range config.Headers {
		if strings.TrimSpace(name) == "" {
			return &ValidationError{Field: "headers", Message: "header name cannot be empty"}
		}
		if reservedHeaders[http.CanonicalHeaderKey(name)] {
			return &ValidationError{Field: fmt.Sprintf("headers.%s", name), Message: "header is set by the client"}
		}
		// Headers are sent verbatim; a placeholder would reach the server as-is.
		if template.HasVariables(value) {
			return &ValidationError{Field: fmt.Sprintf("headers.%s", name), Message: "template variables are not supported in headers"}
		}
	}

	return nil
}
