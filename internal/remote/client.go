package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/agritrack/fieldsync/internal/mirror"
)

// Client is the narrow surface the sync orchestrator depends on: one
// idempotent mutation per entity type.
type Client interface {
	SubmitDailyLog(ctx context.Context, l *mirror.DailyLog) error
	SubmitMaintenance(ctx context.Context, r *mirror.MaintenanceRecord) error
	UpdateMachine(ctx context.Context, m *mirror.Machine) error
}

// HTTPClient submits entity snapshots to the remote API as JSON.
type HTTPClient struct {
	baseURL string
	http    *http.Client
	// token, when set, is sent as a bearer credential.
	token string
}

// Option configures an HTTPClient.
type Option func(*HTTPClient)

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *HTTPClient) {
		c.token = token
	}
}

// WithHTTPClient overrides the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *HTTPClient) {
		c.http = hc
	}
}

// NewHTTPClient creates a client for the given API base URL.
func NewHTTPClient(baseURL string, opts ...Option) *HTTPClient {
	c := &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SubmitDailyLog implements Client.
func (c *HTTPClient) SubmitDailyLog(ctx context.Context, l *mirror.DailyLog) error {
	return c.put(ctx, "submit daily log", "/daily-logs/"+l.ID, l)
}

// SubmitMaintenance implements Client.
func (c *HTTPClient) SubmitMaintenance(ctx context.Context, r *mirror.MaintenanceRecord) error {
	return c.put(ctx, "submit maintenance record", "/maintenance/"+r.ID, r)
}

// UpdateMachine implements Client.
func (c *HTTPClient) UpdateMachine(ctx context.Context, m *mirror.Machine) error {
	return c.put(ctx, "update machine", "/machines/"+m.ID, m)
}

// put sends an idempotent PUT of the JSON-encoded record. The server keys on
// the entity id in the path, so replaying a delivery is harmless.
func (c *HTTPClient) put(ctx context.Context, op, path string, record interface{}) error {
	body, err := json.Marshal(record)
	if err != nil {
		return &Error{Op: op, Err: fmt.Errorf("failed to encode record: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		// Drain so the connection can be reused.
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}

	return &Error{Op: op, StatusCode: resp.StatusCode, Err: readAPIError(resp.Body)}
}

// readAPIError extracts a failure description from an error response body.
// The API returns {"error": "..."} on rejections; anything else is reported
// as-is, truncated.
func readAPIError(body io.Reader) error {
	data, err := io.ReadAll(io.LimitReader(body, 4096))
	if err != nil || len(data) == 0 {
		return nil
	}

	var apiErr struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Error != "" {
		return fmt.Errorf("%s", apiErr.Error)
	}

	return fmt.Errorf("%s", strings.TrimSpace(string(data)))
}
