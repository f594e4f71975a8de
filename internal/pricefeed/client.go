package pricefeed

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// Default configuration values.
const (
	DefaultTimeout    = 5 * time.Second
	DefaultMaxRetries = 0
	DefaultRetryDelay = 200 * time.Millisecond
	DefaultMaxDelay   = 2 * time.Second
	DefaultUserAgent  = "MegaBridge/1.0"

	maxBodyBytes = 4 << 20
)

// Client performs JSON requests against price providers.
type Client struct {
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
	maxDelay   time.Duration
	userAgent  string
}

// ClientOption configures Client.
type ClientOption func(*Client)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts. Zero disables retries.
func WithMaxRetries(n int) ClientOption {
	return func(c *Client) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *Client) {
		c.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *Client) {
		c.client = client
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) ClientOption {
	return func(c *Client) {
		c.userAgent = ua
	}
}

// NewClient creates a new provider client.
func NewClient(opts ...ClientOption) *Client {
	c := &Client{
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
		maxDelay:   DefaultMaxDelay,
		userAgent:  DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// GetJSON issues a GET and decodes the JSON body into result.
func (c *Client) GetJSON(ctx context.Context, url string, header http.Header, result interface{}) error {
	return c.do(ctx, http.MethodGet, url, header, nil, result)
}

// PostJSON marshals body, issues a POST and decodes the JSON response into result.
func (c *Client) PostJSON(ctx context.Context, url string, header http.Header, body, result interface{}) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	return c.do(ctx, http.MethodPost, url, header, payload, result)
}

// do runs one request, retrying transport errors, 429 and 5xx when retries are enabled.
func (c *Client) do(ctx context.Context, method, url string, header http.Header, payload []byte, result interface{}) error {
	op := func() error {
		var body io.Reader
		if payload != nil {
			body = bytes.NewReader(payload)
		}

		req, err := http.NewRequestWithContext(ctx, method, url, body)
		if err != nil {
			return backoff.Permanent(fmt.Errorf("create request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if c.userAgent != "" {
			req.Header.Set("User-Agent", c.userAgent)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(fmt.Errorf("http request: %w", err))
			}
			return fmt.Errorf("http request: %w", err)
		}
		defer resp.Body.Close()

		respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			serr := &StatusError{Code: resp.StatusCode, Body: truncate(string(respBody), 256)}
			// Rate limiting and server errors are worth another attempt
			if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
				return serr
			}
			return backoff.Permanent(serr)
		}

		if err := json.Unmarshal(respBody, result); err != nil {
			return backoff.Permanent(fmt.Errorf("unmarshal response: %w", err))
		}
		return nil
	}

	if c.maxRetries <= 0 {
		err := op()
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		return err
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retryDelay
	b.MaxInterval = c.maxDelay
	return backoff.Retry(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.maxRetries)), ctx))
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
