package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alfredjeanlab/hotstore/internal/codec"
	"github.com/alfredjeanlab/hotstore/internal/model"
	"github.com/alfredjeanlab/hotstore/internal/presence"
)

// HTTPClient implements EventsClient using the hotstore HTTP/JSON API.
type HTTPClient struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewHTTPClient creates a new HTTP client targeting the given base URL
// (e.g. "http://localhost:8080"). When token is non-empty, an Authorization
// header is set on every request.
func NewHTTPClient(baseURL, token string) *HTTPClient {
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{},
	}
}

// BaseURL returns the server URL the client talks to.
func (c *HTTPClient) BaseURL() string { return c.baseURL }

// Close is a no-op for the HTTP client.
func (c *HTTPClient) Close() error { return nil }

func (c *HTTPClient) CreateEvent(ctx context.Context, req *CreateEventRequest) (*CreateEventResponse, error) {
	var resp CreateEventResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) ListEvents(ctx context.Context, req *ListEventsRequest) (*ListEventsResponse, error) {
	params := url.Values{}
	if req.Count > 0 {
		params.Set("count", strconv.Itoa(req.Count))
	}
	if req.EventID != "" {
		params.Set("event_id", req.EventID)
	}
	if req.BotID != "" {
		params.Set("botId", req.BotID)
	}
	if req.EventType != "" {
		params.Set("event_type", req.EventType)
	}
	if req.MinSeverity != nil {
		params.Set("min_severity", strconv.Itoa(*req.MinSeverity))
	}
	if req.OrderBy != "" {
		params.Set("order_by", req.OrderBy)
	}
	if req.OrderDesc != nil {
		params.Set("order_desc", strconv.FormatBool(*req.OrderDesc))
	}

	path := "/v1/events"
	if len(params) > 0 {
		path += "?" + params.Encode()
	}
	var resp ListEventsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *HTTPClient) GetEvent(ctx context.Context, id string) (*model.Event, error) {
	var ev model.Event
	if err := c.doJSON(ctx, http.MethodGet, "/v1/events/"+url.PathEscape(id), nil, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

func (c *HTTPClient) FeedEvents(ctx context.Context, events []*model.Event) (int, error) {
	body := map[string]any{"events": events}
	var resp feedResponse
	if err := c.doJSON(ctx, http.MethodPost, "/v1/events/feed", body, &resp); err != nil {
		return 0, err
	}
	return resp.AddedCount, nil
}

func (c *HTTPClient) UpdateEvent(ctx context.Context, id string, u model.EventUpdate) error {
	return c.doJSON(ctx, http.MethodPatch, "/v1/events/"+url.PathEscape(id), u, nil)
}

func (c *HTTPClient) DeleteEvent(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/v1/events/"+url.PathEscape(id), nil, nil)
}

func (c *HTTPClient) Stats(ctx context.Context) (*Stats, error) {
	var st Stats
	if err := c.doJSON(ctx, http.MethodGet, "/v1/stats", nil, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (c *HTTPClient) ListBots(ctx context.Context, stale time.Duration) ([]presence.Entry, error) {
	path := "/v1/bots"
	if stale > 0 {
		path += "?stale=" + url.QueryEscape(stale.String())
	}
	var resp botsResponse
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Bots, nil
}

func (c *HTTPClient) Health(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.doJSON(ctx, http.MethodGet, "/v1/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Export downloads the JSONL dump of the hot log, zstd-compressed when
// compress is set.
func (c *HTTPClient) Export(ctx context.Context, compress bool) ([]byte, error) {
	path := "/v1/export"
	if compress {
		path += "?compress=zstd"
	}
	resp, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return nil, apiError(resp.StatusCode, data)
	}
	return data, nil
}

// Stream opens the server's SSE notification stream. The caller must close
// the returned body.
func (c *HTTPClient) Stream(ctx context.Context, topics []string) (io.ReadCloser, error) {
	path := "/v1/events/stream"
	if len(topics) > 0 {
		path += "?topics=" + url.QueryEscape(strings.Join(topics, ","))
	}
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	// The default client has no timeout; a stream stays open until ctx ends.
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		data, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, data)
	}
	return resp.Body, nil
}

// --- internal helpers ---

// APIError represents an error response from the server.
type APIError struct {
	StatusCode int
	Message    string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d: %s: %s", e.StatusCode, e.Message, e.Detail)
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

func apiError(code int, body []byte) *APIError {
	var errResp struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(body, &errResp) == nil && errResp.Error != "" {
		return &APIError{StatusCode: code, Message: errResp.Error, Detail: errResp.Detail}
	}
	return &APIError{StatusCode: code, Message: strings.TrimSpace(string(body))}
}

func (c *HTTPClient) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *HTTPClient) do(ctx context.Context, method, path string, body io.Reader) (*http.Response, error) {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("performing request: %w", err)
	}
	return resp, nil
}

// doJSON performs an HTTP request with optional JSON body and decodes the JSON response.
// If result is nil, the response body is discarded.
func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	resp, err := c.do(ctx, method, path, bodyReader)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}
	if resp.StatusCode >= 400 {
		return apiError(resp.StatusCode, respBody)
	}
	if result != nil {
		if err := codec.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
