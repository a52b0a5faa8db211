package clint

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultHost       = "https://api.clint.digital/v1"
	DefaultAuthHeader = "api-token"
	MaxPerPage        = 200
)

type Resource string

const (
	ResourceOrigins  Resource = "origins"
	ResourceStages   Resource = "stages"
	ResourceContacts Resource = "contacts"
	ResourceDeals    Resource = "deals"
)

// Client is a stateless wrapper around the CRM's paginated REST resources.
// Every call is a single round trip; retries belong to whoever re-invokes the sync.
type Client struct {
	host       string
	token      string
	authHeader string
	httpClient *http.Client
	logger     *zap.Logger
}

type Option func(*Client)

func WithToken(token string) Option {
	return func(c *Client) { c.token = strings.TrimSpace(token) }
}

func WithAuthHeader(header string) Option {
	return func(c *Client) {
		if h := strings.TrimSpace(header); h != "" {
			c.authHeader = h
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Body)
}

type Meta struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Total   int `json:"total"`
}

// Page is one response envelope. Meta is advisory; the caller decides
// exhaustion from len(Data) alone.
type Page[T any] struct {
	Data    []T   `json:"data"`
	Meta    *Meta `json:"meta,omitempty"`
	Invalid int   `json:"-"`
}

// Len is the number of records the server returned, decodable or not.
func (p Page[T]) Len() int {
	return len(p.Data) + p.Invalid
}

func NewClient(httpClient *http.Client, host string, opts ...Option) *Client {
	if host == "" {
		host = DefaultHost
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	host = strings.TrimRight(host, "/")
	c := &Client{
		host:       host,
		authHeader: DefaultAuthHeader,
		httpClient: httpClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) doRequest(ctx context.Context, path string, query url.Values) ([]byte, int, error) {
	fullURL := c.host + path
	if len(query) > 0 {
		fullURL = fullURL + "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		if strings.EqualFold(c.authHeader, "Authorization") {
			req.Header.Set("Authorization", "Bearer "+c.token)
		} else {
			req.Header.Set(c.authHeader, c.token)
		}
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, resp.StatusCode, &APIError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, resp.StatusCode, nil
}

// FetchPage returns one raw page of resource. page is clamped to >= 1 and
// perPage to [1, MaxPerPage].
func (c *Client) FetchPage(ctx context.Context, resource Resource, page, perPage int) (Page[json.RawMessage], error) {
	page = NormalizePage(page)
	perPage = NormalizePerPage(perPage)
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("per_page", strconv.Itoa(perPage))

	start := time.Now()
	body, status, err := c.doRequest(ctx, "/"+url.PathEscape(string(resource)), query)
	if c.logger != nil {
		c.logger.Debug("clint fetch page",
			zap.String("resource", string(resource)),
			zap.Int("page", page),
			zap.Int("per_page", perPage),
			zap.Int("status", status),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
	}
	if err != nil {
		return Page[json.RawMessage]{}, err
	}
	out, err := decodePage(body)
	if err != nil {
		return Page[json.RawMessage]{}, fmt.Errorf("decode %s page %d: %w", resource, page, err)
	}
	return out, nil
}

func (c *Client) ListOrigins(ctx context.Context, page, perPage int) (Page[Origin], error) {
	return fetchTyped[Origin](ctx, c, ResourceOrigins, page, perPage)
}

func (c *Client) ListStages(ctx context.Context, page, perPage int) (Page[Stage], error) {
	return fetchTyped[Stage](ctx, c, ResourceStages, page, perPage)
}

func (c *Client) ListContacts(ctx context.Context, page, perPage int) (Page[Contact], error) {
	return fetchTyped[Contact](ctx, c, ResourceContacts, page, perPage)
}

func (c *Client) ListDeals(ctx context.Context, page, perPage int) (Page[Deal], error) {
	return fetchTyped[Deal](ctx, c, ResourceDeals, page, perPage)
}

// fetchTyped decodes each record on its own so one malformed record does not
// sink the page. Undecodable records are logged and counted in Invalid.
func fetchTyped[T any](ctx context.Context, c *Client, resource Resource, page, perPage int) (Page[T], error) {
	raw, err := c.FetchPage(ctx, resource, page, perPage)
	if err != nil {
		return Page[T]{}, err
	}
	out := Page[T]{Data: make([]T, 0, len(raw.Data)), Meta: raw.Meta}
	for i, item := range raw.Data {
		var v T
		if err := json.Unmarshal(item, &v); err != nil {
			out.Invalid++
			if c.logger != nil {
				c.logger.Warn("clint record decode failed",
					zap.String("resource", string(resource)),
					zap.Int("page", page),
					zap.Int("index", i),
					zap.Error(err),
				)
			}
			continue
		}
		out.Data = append(out.Data, v)
	}
	return out, nil
}

func decodePage(body []byte) (Page[json.RawMessage], error) {
	trimmed := strings.TrimSpace(string(body))
	if trimmed == "" || trimmed == "null" {
		return Page[json.RawMessage]{}, nil
	}
	if strings.HasPrefix(trimmed, "[") {
		var items []json.RawMessage
		if err := json.Unmarshal(body, &items); err != nil {
			return Page[json.RawMessage]{}, err
		}
		return Page[json.RawMessage]{Data: items}, nil
	}
	var out Page[json.RawMessage]
	if err := json.Unmarshal(body, &out); err != nil {
		return Page[json.RawMessage]{}, err
	}
	return out, nil
}

func NormalizePage(page int) int {
	if page < 1 {
		return 1
	}
	return page
}

func NormalizePerPage(perPage int) int {
	if perPage < 1 {
		return 1
	}
	if perPage > MaxPerPage {
		return MaxPerPage
	}
	return perPage
}
