package client

import (
	"fmt"
	"net/http"
	"time"
)

// Status represents the health check response.
type Status struct {
	// Status is the health status string (e.g. "ok").
	Status string `json:"status"`
}

// APIError is returned for every non-2xx response from the daemon.
type APIError struct {
	StatusCode int
	// Code is the machine readable error, e.g. "graph_not_loaded".
	Code string `json:"error"`
	// Reason carries details such as which field was missing.
	Reason string `json:"reason,omitempty"`
}

func (e *APIError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("datamap-d: %d %s: %s", e.StatusCode, e.Code, e.Reason)
	}
	return fmt.Sprintf("datamap-d: %d %s", e.StatusCode, e.Code)
}

// Temporary reports whether retrying the same request may succeed.
func (e *APIError) Temporary() bool {
	switch e.StatusCode {
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	}
	return false
}

// Option configures a Client.
type Option func(*Client)

// WithToken sets the bearer token sent with mutations.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

// WithRetries sets how often idempotent requests are retried on network errors
// and temporary statuses, and the wait between attempts.
func WithRetries(n int, b BackoffStrategy) Option {
	return func(c *Client) {
		c.retries = n
		if b != nil {
			c.backoff = b
		}
	}
}

// ReportQuery selects a CSV report. Zero times leave the server defaults in
// place; EventTypes only narrows the journal report.
type ReportQuery struct {
	Type       string
	From       time.Time
	To         time.Time
	EventTypes []string
}
