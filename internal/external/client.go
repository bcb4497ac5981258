package external

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

	"github.com/tidwall/gjson"

	"github.com/mschirtzinger/todosync/internal/schema"
)

// DefaultTimeout bounds every outbound call.
const DefaultTimeout = 5 * time.Second

// maxBodyBytes caps how much of a response body is read.
const maxBodyBytes = 8 << 20

// StatusError is returned when the external system answers with a non-2xx status.
type StatusError struct {
	Op   string
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("external %s: unexpected status %d", e.Op, e.Code)
	}
	return fmt.Sprintf("external %s: unexpected status %d: %s", e.Op, e.Code, e.Body)
}

// API is the set of calls the external system supports.
type API interface {
	FetchSnapshot(ctx context.Context) ([]List, error)
	CreateList(ctx context.Context, name string) (string, error)
	UpdateList(ctx context.Context, listID, name string) error
	DeleteList(ctx context.Context, listID string) error
	CreateItem(ctx context.Context, listID, description string, done bool) (string, error)
	UpdateItem(ctx context.Context, listID, itemID string, patch schema.ItemPatch) error
	DeleteItem(ctx context.Context, listID, itemID string) error
}

// Client is an HTTP client for the external todo system.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

var _ API = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithTimeout sets the per-call timeout. Non-positive values keep the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// NewClient creates a client for the external system rooted at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid external url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid external url %q: scheme must be http or https", baseURL)
	}

	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    DefaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the configured base URL without a trailing slash.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// FetchSnapshot retrieves every external list with its items.
func (c *Client) FetchSnapshot(ctx context.Context) ([]List, error) {
	body, err := c.do(ctx, "fetch snapshot", http.MethodGet, "/todolists", nil)
	if err != nil {
		return nil, err
	}

	lists, err := DecodeSnapshot(body)
	if err != nil {
		return nil, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return lists, nil
}

// CreateList creates an external list and returns its external ID.
func (c *Client) CreateList(ctx context.Context, name string) (string, error) {
	body, err := c.do(ctx, "create list", http.MethodPost, "/todolists", listRequest{Name: name})
	if err != nil {
		return "", err
	}
	return createdID("create list", body)
}

// UpdateList renames an external list.
func (c *Client) UpdateList(ctx context.Context, listID, name string) error {
	_, err := c.do(ctx, "update list", http.MethodPatch, listPath(listID), listRequest{Name: name})
	return err
}

// DeleteList deletes an external list.
func (c *Client) DeleteList(ctx context.Context, listID string) error {
	_, err := c.do(ctx, "delete list", http.MethodDelete, listPath(listID), nil)
	return err
}

// CreateItem creates an item in an external list and returns its external ID.
func (c *Client) CreateItem(ctx context.Context, listID, description string, done bool) (string, error) {
	req := itemRequest{Description: &description, IsFinished: &done}
	body, err := c.do(ctx, "create item", http.MethodPost, listPath(listID)+"/todoitems", req)
	if err != nil {
		return "", err
	}
	return createdID("create item", body)
}

// UpdateItem sends the set fields of patch to an external item.
func (c *Client) UpdateItem(ctx context.Context, listID, itemID string, patch schema.ItemPatch) error {
	req := itemRequest{Description: patch.Description, IsFinished: patch.Done}
	_, err := c.do(ctx, "update item", http.MethodPatch, itemPath(listID, itemID), req)
	return err
}

// DeleteItem deletes an external item.
func (c *Client) DeleteItem(ctx context.Context, listID, itemID string) error {
	_, err := c.do(ctx, "delete item", http.MethodDelete, itemPath(listID, itemID), nil)
	return err
}

type listRequest struct {
	Name string `json:"name"`
}

type itemRequest struct {
	Description *string `json:"description,omitempty"`
	IsFinished  *bool   `json:"isFinished,omitempty"`
}

func listPath(listID string) string {
	return "/todolists/" + url.PathEscape(listID)
}

func itemPath(listID, itemID string) string {
	return listPath(listID) + "/todoitems/" + url.PathEscape(itemID)
}

func createdID(op string, body []byte) (string, error) {
	id := gjson.GetBytes(body, "id").String()
	if id == "" {
		return "", fmt.Errorf("external %s: response has no id", op)
	}
	return id, nil
}

// do performs a single request bounded by the client timeout and returns
// the response body of a 2xx answer.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s request: %w", op, err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build %s request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("external %s: %w", op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("external %s: failed to read response: %w", op, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return body, nil
}
