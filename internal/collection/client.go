package collection

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gscoppino/STEM/internal/errhandling"
	"github.com/gscoppino/STEM/internal/logger"
)

// Default transport values
const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "STEM-Directory/1.0"

	// maxResponseSize bounds how much of a listing response is read.
	maxResponseSize = 10 << 20
)

// Transport issues the GET requests of a collection fetch.
type Transport interface {
	// Get fetches url and returns the response body. Non-2xx responses and
	// network failures are returned as *errhandling.ClassifiedError.
	Get(ctx context.Context, url, requestID string) ([]byte, error)
}

// HTTPError represents a non-2xx response.
type HTTPError struct {
	StatusCode int
	Status     string
	URL        string
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("http error %d (%s) from %s: %s", e.StatusCode, e.Status, e.URL, e.Body)
}

// ClientConfig configures the HTTP transport.
type ClientConfig struct {
	// Timeout bounds each request (default 30s).
	Timeout time.Duration
	// UserAgent is sent with every request.
	UserAgent string
	// Headers are static headers added to every request.
	Headers map[string]string
	// RequestsPerSecond enables client-side rate limiting when > 0.
	RequestsPerSecond float64
	// Burst is the limiter burst size (default 1).
	Burst int
	// HTTPClient overrides the underlying client; Timeout is ignored when set.
	HTTPClient *http.Client
}

// Client is the default Transport, built on net/http.
type Client struct {
	http      *http.Client
	userAgent string
	headers   map[string]string
	limiter   *rate.Limiter
}

// NewClient creates a Client from cfg, filling in defaults.
func NewClient(cfg ClientConfig) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = DefaultUserAgent
	}

	headers := make(map[string]string, len(cfg.Headers))
	for k, v := range cfg.Headers {
		headers[k] = v
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	return &Client{
		http:      httpClient,
		userAgent: userAgent,
		headers:   headers,
		limiter:   limiter,
	}
}

// Get implements Transport.
func (c *Client) Get(ctx context.Context, url, requestID string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, errhandling.ClassifyNetworkError(err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating http request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}
	for key, value := range c.headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errhandling.ClassifyNetworkError(err)
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Warn("failed to close response body",
				"url", url,
				"error", closeErr.Error(),
			)
		}
	}()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, errhandling.ClassifyNetworkError(fmt.Errorf("reading response body: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet := string(body)
		if len(snippet) > 500 {
			snippet = snippet[:500] + "..."
		}
		logger.Debug("http error response",
			"url", url,
			"request_id", requestID,
			"status_code", resp.StatusCode,
			"duration", time.Since(start),
		)

		classified := errhandling.ClassifyHTTPStatus(resp.StatusCode, resp.Status)
		classified.OriginalErr = &HTTPError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			URL:        url,
			Body:       snippet,
		}
		return nil, classified
	}

	logger.Debug("http request completed",
		"url", url,
		"request_id", requestID,
		"status_code", resp.StatusCode,
		"duration", time.Since(start),
		"response_size", len(body),
	)

	return body, nil
}
