// Package governance talks to the data-governance REST API behind the
// console: paged list queries and lookup option sources.
package governance

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/odyssey-erp/govconsole/internal/listing"
	"github.com/odyssey-erp/govconsole/internal/listing/filters"
	"github.com/odyssey-erp/govconsole/internal/listing/query"
)

// APIError represents an error response from the governance API.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// Client is a JSON client for the governance API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	lookups    singleflight.Group
	logger     *slog.Logger
}

// NewClient targets baseURL (e.g. "http://localhost:9000"). When token is
// non-empty an Authorization header is set on every request.
func NewClient(baseURL, token string, timeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// List posts the canonical params of a list screen and returns the raw page.
func (c *Client) List(ctx context.Context, resource string, params listing.Params) (query.Payload, error) {
	var payload query.Payload
	path := "/api/v1/" + url.PathEscape(resource) + "/query"
	if err := c.doJSON(ctx, http.MethodPost, path, params, &payload); err != nil {
		return nil, fmt.Errorf("governance: list %s: %w", resource, err)
	}
	return payload, nil
}

// Fetcher binds List to one resource.
func (c *Client) Fetcher(resource string) query.Fetcher {
	return func(ctx context.Context, params listing.Params) (query.Payload, error) {
		return c.List(ctx, resource, params)
	}
}

// Options loads the options of a lookup source. Concurrent loads of the same
// source share one request.
func (c *Client) Options(ctx context.Context, source string) ([]filters.Option, error) {
	// The shared request must outlive the first caller's cancellation.
	shared := context.WithoutCancel(ctx)
	ch := c.lookups.DoChan(source, func() (interface{}, error) {
		var resp struct {
			Options []filters.Option `json:"options"`
		}
		path := "/api/v1/lookups/" + url.PathEscape(source)
		if err := c.doJSON(shared, http.MethodGet, path, nil, &resp); err != nil {
			return nil, err
		}
		return resp.Options, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("governance: lookup %s: %w", source, res.Err)
		}
		if res.Shared {
			c.logger.Debug("lookup load shared", slog.String("source", source))
		}
		opts := res.Val.([]filters.Option)
		return append([]filters.Option{}, opts...), nil
	}
}

// doJSON performs a request with an optional JSON body and decodes the JSON
// response into result.
func (c *Client) doJSON(ctx context.Context, method, path string, body any, result any) error {
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request body: %w", err)
		}
		bodyReader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("performing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		return nil
	}

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var errResp struct {
			Error  string `json:"error"`
			Detail string `json:"detail"`
		}
		if json.Unmarshal(respBody, &errResp) == nil {
			if errResp.Error != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Error}
			}
			if errResp.Detail != "" {
				return &APIError{StatusCode: resp.StatusCode, Message: errResp.Detail}
			}
		}
		return &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(respBody))}
	}

	if result != nil {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}
	return nil
}
