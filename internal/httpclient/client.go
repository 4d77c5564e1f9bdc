// Package httpclient provides the HTTP client used to talk to the upstream table API
package httpclient

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"
)

const (
	// DefaultTimeout bounds a single request
	DefaultTimeout = 30 * time.Second

	// MaxResponseSize caps a response body at 32MB
	MaxResponseSize = 32 << 20

	// DefaultUserAgent is sent unless WithUserAgent overrides it
	DefaultUserAgent = "placesync/1.0"
)

// Client is an interface for HTTP operations
type Client interface {
	// Get fetches url with the given extra headers and returns the body of a 2xx response
	Get(ctx context.Context, url string, header http.Header) ([]byte, error)
}

// DefaultClient is the net/http backed Client
type DefaultClient struct {
	client    *http.Client
	userAgent string
}

// ClientOption configures a DefaultClient
type ClientOption func(*DefaultClient)

// WithTransport replaces the round tripper, e.g. with an instrumented one
func WithTransport(rt http.RoundTripper) ClientOption {
	return func(c *DefaultClient) {
		c.client.Transport = rt
	}
}

// WithUserAgent sets the User-Agent header
func WithUserAgent(ua string) ClientOption {
	return func(c *DefaultClient) {
		if ua != "" {
			c.userAgent = ua
		}
	}
}

// NewDefaultClient creates a client whose requests time out after timeout,
// or DefaultTimeout when timeout is not positive
func NewDefaultClient(timeout time.Duration, opts ...ClientOption) Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	c := &DefaultClient{
		client:    &http.Client{Timeout: timeout},
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get implements Client
func (c *DefaultClient) Get(ctx context.Context, url string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	for key, values := range header {
		req.Header[http.CanonicalHeaderKey(key)] = append([]string(nil), values...)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode/100 != 2 {
		// a short drain lets the connection go back to the pool
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, NewHTTPError(resp.StatusCode, url, resp.Status)
	}

	return readLimited(resp)
}

// readLimited reads the body, failing once it passes MaxResponseSize
func readLimited(resp *http.Response) ([]byte, error) {
	tooLarge := fmt.Errorf("response size exceeds maximum allowed size of %d bytes", MaxResponseSize)
	if resp.ContentLength > MaxResponseSize {
		return nil, fmt.Errorf("%w: server announced %d bytes", tooLarge, resp.ContentLength)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxResponseSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > MaxResponseSize {
		return nil, tooLarge
	}
	return body, nil
}
