package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Client wraps HTTP calls to the knowledge-graph editor REST API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	limiter    *rate.Limiter
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout sets the HTTP timeout.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithRateLimit caps outgoing requests per second. A non-positive rate disables the limiter.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Client) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// NewClient creates a new API client.
func NewClient(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetToken updates the bearer token used for subsequent requests.
func (c *Client) SetToken(token string) {
	c.token = token
}

// BaseURL returns the server the client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// do executes an HTTP request and returns the raw response body.
func (c *Client) do(ctx context.Context, method, path string, body any) ([]byte, int, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("marshal body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, 0, fmt.Errorf("rate limit: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, 0, fmt.Errorf("create request: %w", err)
	}

	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		apiErr := &Error{StatusCode: resp.StatusCode}
		if code, msg, ok := extractAPIErrorBody(respBody); ok {
			apiErr.Code = code
			apiErr.Message = msg
		} else {
			apiErr.Message = strings.TrimSpace(string(respBody))
		}
		return nil, resp.StatusCode, apiErr
	}

	return respBody, resp.StatusCode, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, error) {
	body, _, err := c.do(ctx, http.MethodGet, path, nil)
	return body, err
}

func (c *Client) post(ctx context.Context, path string, body any) ([]byte, error) {
	b, _, err := c.do(ctx, http.MethodPost, path, body)
	return b, err
}

func (c *Client) patch(ctx context.Context, path string, body any) ([]byte, error) {
	b, _, err := c.do(ctx, http.MethodPatch, path, body)
	return b, err
}

func (c *Client) del(ctx context.Context, path string) ([]byte, error) {
	b, _, err := c.do(ctx, http.MethodDelete, path, nil)
	return b, err
}

// decodeOne decodes a single-item API response.
func decodeOne[T any](data []byte) (*T, error) {
	var resp apiResponse[*T]
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if resp.Data == nil {
		return nil, &DecodeError{Err: errors.New("empty data")}
	}
	return resp.Data, nil
}

// decodeList decodes a list API response.
func decodeList[T any](data []byte) ([]T, error) {
	var resp apiResponse[[]T]
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	return resp.Data, nil
}

// decodeBatch decodes an id-keyed bulk response. Each entry is either the
// payload itself or an object carrying an "error" member.
func decodeBatch[T any](data []byte) (map[string]Result[T], error) {
	var resp apiResponse[map[string]json.RawMessage]
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &DecodeError{Err: err}
	}
	if resp.Data == nil {
		return nil, &DecodeError{Err: errors.New("empty data")}
	}
	out := make(map[string]Result[T], len(resp.Data))
	for id, raw := range resp.Data {
		var probe struct {
			Error *ItemError `json:"error"`
		}
		if err := json.Unmarshal(raw, &probe); err == nil && probe.Error != nil {
			out[id] = Result[T]{Error: probe.Error}
			continue
		}
		var item T
		if err := json.Unmarshal(raw, &item); err != nil {
			out[id] = Result[T]{Error: &ItemError{Message: fmt.Sprintf("decode %s: %v", id, err)}}
			continue
		}
		out[id] = Result[T]{Data: &item}
	}
	return out, nil
}

// buildQuery appends query params to a path.
func buildQuery(path string, params QueryParams) string {
	if len(params) == 0 {
		return path
	}
	q := url.Values{}
	for k, v := range params {
		if v != "" {
			q.Set(k, v)
		}
	}
	encoded := q.Encode()
	if encoded == "" {
		return path
	}
	return path + "?" + encoded
}

func extractAPIErrorBody(body []byte) (string, string, bool) {
	if len(body) == 0 {
		return "", "", false
	}

	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", "", false
	}

	if code, msg, ok := parseErrorValue(payload["error"]); ok {
		return code, msg, true
	}
	if code, msg, ok := parseErrorValue(payload["detail"]); ok {
		return code, msg, true
	}
	if code, msg, ok := parseErrorValue(payload["message"]); ok {
		return code, msg, true
	}
	return "", "", false
}

func parseErrorValue(raw any) (string, string, bool) {
	switch value := raw.(type) {
	case string:
		msg := strings.TrimSpace(value)
		if msg == "" {
			return "", "", false
		}
		return "", msg, true
	case map[string]any:
		if code, msg, ok := parseErrorValue(value["error"]); ok {
			return code, msg, true
		}
		var code string
		switch c := value["code"].(type) {
		case string:
			code = strings.TrimSpace(c)
		case float64:
			code = fmt.Sprintf("%d", int(c))
		}
		message, _ := value["message"].(string)
		message = strings.TrimSpace(message)
		if code == "" && message == "" {
			return "", "", false
		}
		return code, message, true
	}
	return "", "", false
}
