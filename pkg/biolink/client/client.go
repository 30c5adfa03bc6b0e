// Package client is a Go client for the owner-facing JSON API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mikepea/biolink/pkg/biolink/ordering"
)

// DefaultTimeout bounds every request made with the default HTTP client
const DefaultTimeout = 15 * time.Second

// Link is a link as the API returns it
type Link struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	IsActive    bool   `json:"is_active"`
	OrderIndex  int    `json:"order_index"`
}

// OrderKey identifies the link in write-sets
func (l *Link) OrderKey() string {
	return l.ID
}

// SetOrderIndex records a new display position
func (l *Link) SetOrderIndex(i int) {
	l.OrderIndex = i
}

// NewLink is the body of a create request
type NewLink struct {
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

// LinkPatch is the body of an update request. Nil fields are unchanged.
type LinkPatch struct {
	Title       *string `json:"title,omitempty"`
	URL         *string `json:"url,omitempty"`
	Description *string `json:"description,omitempty"`
}

// APIError is a non-2xx response
type APIError struct {
	Status  int
	Message string            `json:"error"`
	Fields  map[string]string `json:"fields,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error %d: %s", e.Status, e.Message)
}

// Client calls the API with a bearer token (JWT or API key)
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option configures a Client
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// New creates a client for the server at baseURL
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: DefaultTimeout, Transport: &http.Transport{}},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Close releases idle connections
func (c *Client) Close() {
	c.http.CloseIdleConnections()
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		apiErr := &APIError{Status: resp.StatusCode}
		if err := json.NewDecoder(resp.Body).Decode(apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = http.StatusText(resp.StatusCode)
		}
		return apiErr
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s: %w", method, path, err)
	}
	return nil
}

// Links returns the caller's active links in display order
func (c *Client) Links(ctx context.Context) ([]Link, error) {
	var out []Link
	err := c.do(ctx, http.MethodGet, "/api/links", nil, &out)
	return out, err
}

// CreateLink adds a link at the top of the list
func (c *Client) CreateLink(ctx context.Context, in NewLink) (*Link, error) {
	var out Link
	if err := c.do(ctx, http.MethodPost, "/api/links", in, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UpdateLink patches a link
func (c *Client) UpdateLink(ctx context.Context, id string, patch LinkPatch) (*Link, error) {
	var out Link
	if err := c.do(ctx, http.MethodPut, "/api/links/"+url.PathEscape(id), patch, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DeleteLink soft-deletes a link
func (c *Client) DeleteLink(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/api/links/"+url.PathEscape(id), nil, nil)
}

// PersistOrder writes ws as one batch and returns the stored order
func (c *Client) PersistOrder(ctx context.Context, ws ordering.WriteSet) ([]Link, error) {
	var out []Link
	err := c.do(ctx, http.MethodPut, "/api/links/order", map[string]interface{}{"positions": ws}, &out)
	return out, err
}
