// Package httpclient provides a small JSON HTTP client for provider APIs.
// It performs exactly one attempt per call: retry policy belongs to the
// resilience layer wrapping the providers, which classifies the StatusError
// codes surfaced here.
package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// StatusError is returned when a request completes with an error status code.
// The code is preserved so callers can classify the failure (429 and 5xx are
// transient for most providers).
type StatusError struct {
	StatusCode int
	Body       string
}

// Error implements the error interface.
func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status code %d: %s", e.StatusCode, e.Body)
}

// Client is a thin wrapper around http.Client with a per-request timeout.
type Client struct {
	httpClient *http.Client
}

// NewClient creates a new HTTP client wrapper.
func NewClient(timeout time.Duration) *Client {
	return &Client{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// DoRequest executes an HTTP request once. Transport errors and timeouts
// propagate unchanged for the caller's retry classification.
func (c *Client) DoRequest(req *http.Request) (*http.Response, error) {
	return c.httpClient.Do(req)
}

// DoJSON executes a JSON request, decodes the response, and ensures the body
// is closed. Error status codes become a StatusError carrying the body.
func (c *Client) DoJSON(req *http.Request, v interface{}) error {
	resp, err := c.DoRequest(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return &StatusError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
	}

	if v != nil {
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
