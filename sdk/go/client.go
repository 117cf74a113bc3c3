package projectdesksdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"projectdesk/internal/domain"
)

// Client is a minimal projectdesk HTTP API client. It is safe for
// concurrent use once configured.
type Client struct {
	BaseURL     string
	BearerToken string
	HTTPClient  *http.Client

	// Timeout bounds each request. Zero means no bound beyond ctx.
	Timeout   time.Duration
	Hydration domain.Hydration

	// NewRequestID overrides the X-Request-Id generator.
	NewRequestID func() string
}

// New creates a client with sane defaults.
func New(baseURL, token string) *Client {
	return &Client{
		BaseURL:     baseURL,
		BearerToken: token,
		HTTPClient:  &http.Client{},
		Timeout:     10 * time.Second,
	}
}

// Health is the health endpoint body.
type Health struct {
	Status string `json:"status"`
}

// APIError wraps non-2xx responses. Code, Message and Details come from the
// server error envelope when the body carries one.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Details    map[string]any
	Body       string
	RequestID  string
}

// Error returns the server message verbatim when there is one.
func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

// GetProject fetches one project record, hydrated with c.Hydration.
func (c *Client) GetProject(ctx context.Context, id int64) (domain.Project, error) {
	var raw json.RawMessage
	if err := c.do(ctx, http.MethodGet, fmt.Sprintf("v0/projects/%d", id), nil, &raw); err != nil {
		return domain.Project{}, err
	}
	return domain.DecodeProject(raw, c.Hydration)
}

// FetchProject makes Client usable as a view fetcher.
func (c *Client) FetchProject(ctx context.Context, id int64) (domain.Project, error) {
	return c.GetProject(ctx, id)
}

// Health checks the API.
func (c *Client) Health(ctx context.Context) (Health, error) {
	var resp Health
	err := c.do(ctx, http.MethodGet, "v0/health", nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	hc := c.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	requestID := c.requestID()
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("X-Request-Id", requestID)
	if c.BearerToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b), RequestID: requestID}
		var env errorEnvelope
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
			apiErr.Details = env.Error.Details
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) requestID() string {
	if c.NewRequestID != nil {
		return c.NewRequestID()
	}
	return uuid.NewString()
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/")
}
