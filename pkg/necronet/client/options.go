package client

import (
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// DefaultBaseURL is the service address used when none is configured.
	DefaultBaseURL = "http://localhost:8000"

	// DefaultUploadTimeout bounds a single upload request.
	DefaultUploadTimeout = 120 * time.Second

	// DefaultRequestTimeout bounds every non-upload request.
	DefaultRequestTimeout = 30 * time.Second
)

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithBaseURL sets the service address, e.g. "https://api.example.com".
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		c.baseURL = strings.TrimSuffix(baseURL, "/")
	}
}

// WithHTTPClient sets a custom HTTP client. Its own Timeout, if any,
// applies on top of the per-request timeouts.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithUploadTimeout bounds a single upload. Zero disables the bound.
func WithUploadTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.uploadTimeout = d
	}
}

// WithRequestTimeout bounds every non-upload request. Zero disables the bound.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.requestTimeout = d
	}
}

// WithLogger sets the logger used for request tracing.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithRequestIDFunc sets the generator for the X-Request-ID header.
func WithRequestIDFunc(fn func() string) Option {
	return func(c *Client) {
		c.requestID = fn
	}
}
