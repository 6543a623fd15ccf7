// Package httpconfig holds the HTTP transport settings shared by every
// collection of a site.
package httpconfig

import (
	"time"

	"github.com/gscoppino/STEM/internal/collection"
)

// Default configuration values
const (
	DefaultTimeoutMs = 30000
	DefaultTimeout   = 30 * time.Second
)

// BaseConfig contains the HTTP settings of the listing transport.
type BaseConfig struct {
	// TimeoutMs is the request timeout in milliseconds (default 30000).
	TimeoutMs int `json:"timeoutMs,omitempty"`

	// UserAgent overrides the default User-Agent header.
	UserAgent string `json:"userAgent,omitempty"`

	// Headers are static headers sent with every request.
	Headers map[string]string `json:"headers,omitempty"`

	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64 `json:"requestsPerSecond,omitempty"`

	// Burst is the rate limiter burst size (default 1).
	Burst int `json:"burst,omitempty"`
}

// GetTimeout returns the timeout duration from TimeoutMs, or the default if not set.
func (c *BaseConfig) GetTimeout() time.Duration {
	if c.TimeoutMs > 0 {
		return time.Duration(c.TimeoutMs) * time.Millisecond
	}
	return DefaultTimeout
}

// Clone returns a copy that shares no maps with c.
func (c *BaseConfig) Clone() BaseConfig {
	out := *c
	if c.Headers != nil {
		out.Headers = make(map[string]string, len(c.Headers))
		for k, v := range c.Headers {
			out.Headers[k] = v
		}
	}
	return out
}

// ClientConfig converts the settings to a collection transport config.
func (c *BaseConfig) ClientConfig() collection.ClientConfig {
	return collection.ClientConfig{
		Timeout:           c.GetTimeout(),
		UserAgent:         c.UserAgent,
		Headers:           c.Clone().Headers,
		RequestsPerSecond: c.RequestsPerSecond,
		Burst:             c.Burst,
	}
}

// NewClient builds the listing transport from the settings.
func (c *BaseConfig) NewClient() *collection.Client {
	return collection.NewClient(c.ClientConfig())
}
