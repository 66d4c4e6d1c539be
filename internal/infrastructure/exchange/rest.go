package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// RESTClient 单个交易所共享的 HTTP 客户端，所有请求先经过限速器。
type RESTClient struct {
	name    string
	baseURL string
	http    *http.Client
	limiter *rate.Limiter
}

// NewRESTClient creates a client limited to rps requests per second with the given burst.
func NewRESTClient(name, baseURL string, rps float64, burst int) *RESTClient {
	if rps <= 0 {
		rps = 5
	}
	if burst <= 0 {
		burst = 1
	}
	return &RESTClient{
		name:    name,
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
	}
}

func (c *RESTClient) Name() string { return c.name }

func (c *RESTClient) BaseURL() string { return c.baseURL }

// WithTimeout sets the per-request HTTP timeout; d <= 0 keeps the default.
func (c *RESTClient) WithTimeout(d time.Duration) *RESTClient {
	if d > 0 {
		c.http = &http.Client{Timeout: d}
	}
	return c
}

// WithBaseURL returns a client for another host sharing the same limiter.
func (c *RESTClient) WithBaseURL(baseURL string) *RESTClient {
	cp := *c
	cp.baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	return &cp
}

// NewRequest builds a GET request for path with params.
func (c *RESTClient) NewRequest(ctx context.Context, method, path string, params url.Values) (*http.Request, error) {
	endpoint, err := BuildQueryURL(c.baseURL, path, params.Encode())
	if err != nil {
		return nil, err
	}
	return http.NewRequestWithContext(ctx, method, endpoint, nil)
}

// Do waits for the limiter, sends req and returns the body of a 200 response.
func (c *RESTClient) Do(req *http.Request) ([]byte, error) {
	if err := c.limiter.Wait(req.Context()); err != nil {
		return nil, fmt.Errorf("%s rate limit wait: %w", c.name, err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%s http %d: %s", c.name, resp.StatusCode, truncate(body, 256))
	}
	return body, nil
}

// GetJSON performs an unsigned GET and decodes the body into out.
func (c *RESTClient) GetJSON(ctx context.Context, path string, params url.Values, out interface{}) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, params)
	if err != nil {
		return err
	}
	body, err := c.Do(req)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode %s %s failed: %w", c.name, path, err)
	}
	return nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
