// Package client is the Go SDK for the datamap-d HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/api"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/binding"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/datamap"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/engine"
	"github.com/THA-Embedded-Systems-Lab/soar-code-extension-sub001/pkg/store"
)

// DefaultEndpoint is used when NewClient gets an empty endpoint.
const DefaultEndpoint = "http://127.0.0.1:8090"

// Client is the datamap-d SDK client.
type Client struct {
	endpoint string
	token    string
	http     *http.Client
	backoff  BackoffStrategy
	retries  int
}

// NewClient creates a new client. Queries are retried twice with DefaultBackoff
// unless WithRetries says otherwise; mutations are never retried.
func NewClient(endpoint string, opts ...Option) *Client {
	if endpoint == "" {
		endpoint = DefaultEndpoint
	}
	c := &Client{
		endpoint: endpoint,
		http: &http.Client{
			Timeout: 10 * time.Second,
		},
		backoff: DefaultBackoff(),
		retries: 2,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Endpoint returns the daemon base URL.
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Ping checks the health of the daemon.
func (c *Client) Ping(ctx context.Context) (Status, error) {
	var status Status
	err := c.doOnce(ctx, http.MethodGet, "/v1/health", nil, nil, &status)
	return status, err
}

// WaitReady polls the health endpoint until it answers or ctx ends.
func (c *Client) WaitReady(ctx context.Context) error {
	for attempt := 0; ; attempt++ {
		if _, err := c.Ping(ctx); err == nil {
			return nil
		}
		if err := c.sleep(ctx, attempt); err != nil {
			return err
		}
	}
}

// Graph downloads the full graph document.
func (c *Client) Graph(ctx context.Context) (datamap.Document, error) {
	var doc datamap.Document
	err := c.do(ctx, http.MethodGet, "/v1/graph", nil, nil, &doc)
	return doc, err
}

// Stats returns graph counters and the journal position.
func (c *Client) Stats(ctx context.Context) (api.StatsResponse, error) {
	var resp api.StatsResponse
	err := c.do(ctx, http.MethodGet, "/v1/stats", nil, nil, &resp)
	return resp, err
}

// PathExists reports whether the dotted attribute path exists.
func (c *Client) PathExists(ctx context.Context, path string) (bool, error) {
	var resp api.PathExistsResponse
	err := c.do(ctx, http.MethodGet, "/v1/paths/exists", url.Values{"path": {path}}, nil, &resp)
	return resp.Exists, err
}

// FirstInvalidSegment explains where path stops resolving. Valid is true when it
// does resolve.
func (c *Client) FirstInvalidSegment(ctx context.Context, path string) (api.InvalidSegmentResponse, error) {
	var resp api.InvalidSegmentResponse
	err := c.do(ctx, http.MethodGet, "/v1/paths/invalid", url.Values{"path": {path}}, nil, &resp)
	return resp, err
}

// ResolveTargets follows path from each start vertex.
func (c *Client) ResolveTargets(ctx context.Context, starts []string, path string) ([]string, error) {
	var resp api.TargetsResponse
	err := c.do(ctx, http.MethodPost, "/v1/targets", nil, api.TargetsRequest{Starts: starts, Path: path}, &resp)
	return resp.Targets, err
}

// FindEnumerations lists the Enumeration vertices path reaches.
func (c *Client) FindEnumerations(ctx context.Context, path string) ([]datamap.EnumerationMatch, error) {
	var resp api.EnumerationsResponse
	err := c.do(ctx, http.MethodGet, "/v1/enumerations", url.Values{"path": {path}}, nil, &resp)
	return resp.Matches, err
}

// EdgeMetadata classifies one edge triple.
func (c *Client) EdgeMetadata(ctx context.Context, parent, name, target string) (api.EdgeMetadataResponse, error) {
	q := url.Values{"parent": {parent}, "name": {name}, "target": {target}}
	var resp api.EdgeMetadataResponse
	err := c.do(ctx, http.MethodGet, "/v1/edges", q, nil, &resp)
	return resp, err
}

// Owner returns the owning parent of a vertex.
func (c *Client) Owner(ctx context.Context, id string) (api.OwnerResponse, error) {
	var resp api.OwnerResponse
	err := c.do(ctx, http.MethodGet, "/v1/owners/"+url.PathEscape(id), nil, nil, &resp)
	return resp, err
}

// InboundReferences lists every edge pointing at a vertex.
func (c *Client) InboundReferences(ctx context.Context, id string) ([]datamap.InboundRef, error) {
	var resp api.InboundResponse
	err := c.do(ctx, http.MethodGet, "/v1/inbound/"+url.PathEscape(id), nil, nil, &resp)
	return resp.References, err
}

// ResolveBindings computes the candidate vertices of each rule variable.
func (c *Client) ResolveBindings(ctx context.Context, rootVariable string, assignments []binding.Assignment) (map[string][]string, error) {
	req := api.BindingsRequest{RootVariable: rootVariable, Assignments: assignments}
	var resp api.BindingsResponse
	err := c.do(ctx, http.MethodPost, "/v1/bindings", nil, req, &resp)
	return resp.Bindings, err
}

// Submit commits a structural edit. It is not retried: a lost response may still
// have been journaled.
func (c *Client) Submit(ctx context.Context, m engine.Mutation) (api.MutationResponse, error) {
	var resp api.MutationResponse
	err := c.doOnce(ctx, http.MethodPost, "/v1/mutations", nil, m, &resp)
	return resp, err
}

// GetEvents fetches recent journal entries, newest first.
func (c *Client) GetEvents(ctx context.Context, limit int) ([]store.Event, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []store.Event
	err := c.do(ctx, http.MethodGet, "/v1/events", url.Values{"limit": {strconv.Itoa(limit)}}, nil, &events)
	return events, err
}

// GetEvent fetches one journal entry by id.
func (c *Client) GetEvent(ctx context.Context, id string) (store.Event, error) {
	var event store.Event
	err := c.do(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(id), nil, nil, &event)
	return event, err
}

// Report downloads a CSV report.
func (c *Client) Report(ctx context.Context, q ReportQuery) ([]byte, error) {
	query := url.Values{"type": {q.Type}}
	if !q.From.IsZero() {
		query.Set("from", q.From.Format(time.RFC3339))
	}
	if !q.To.IsZero() {
		query.Set("to", q.To.Format(time.RFC3339))
	}
	if len(q.EventTypes) > 0 {
		query.Set("event_type", strings.Join(q.EventTypes, ","))
	}

	var buf bytes.Buffer
	if err := c.do(ctx, http.MethodGet, "/v1/reports", query, nil, &buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// do runs an idempotent request, retrying network errors and temporary statuses.
func (c *Client) do(ctx context.Context, method, path string, query url.Values, body, out any) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = c.doOnce(ctx, method, path, query, body, out)
		if err == nil || attempt >= c.retries || !retryable(err) {
			return err
		}
		if serr := c.sleep(ctx, attempt); serr != nil {
			return err
		}
	}
}

func (c *Client) doOnce(ctx context.Context, method, path string, query url.Values, body, out any) error {
	u := c.endpoint + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var rd io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		rd = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Code == "" {
			apiErr.Code = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}

	if out == nil {
		return nil
	}
	// Raw bodies are buffered first so a retried attempt never appends to a
	// partial write.
	if w, ok := out.(io.Writer); ok {
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("failed to read response: %w", err)
		}
		_, err = w.Write(data)
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (c *Client) sleep(ctx context.Context, attempt int) error {
	select {
	case <-time.After(c.backoff.Next(attempt)):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Temporary()
	}
	return true
}
