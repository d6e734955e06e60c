package probe

import (
	"bytes"
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Request headers understood by the probe endpoint.
const (
	HeaderTrace        = "X-Fleet-Trace"
	HeaderInvocationID = "X-Fleet-Invocation-ID"
)

// Client issues streaming probe requests over a shared connection pool.
// The pool is built lazily on first use and reused across cycles; the
// mutex serializes construction so concurrent callers never race to build
// two pools.
type Client struct {
	apiKey  string
	limiter *rate.Limiter

	mu   sync.Mutex
	http *http.Client
}

// NewClient creates a probe client. perMin caps outbound probe requests
// per minute; zero or negative disables the cap.
func NewClient(apiKey string, perMin int) *Client {
	limit := rate.Inf
	if perMin > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMin))
	}
	return &Client{
		apiKey:  apiKey,
		limiter: rate.NewLimiter(limit, 1),
	}
}

// pooled returns the shared HTTP client, building it on first use.
func (c *Client) pooled() *http.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.http == nil {
		c.http = &http.Client{
			// No overall timeout: the response body is a long-lived
			// stream. The per-cycle deadline bounds total time instead.
			Transport: &http.Transport{
				MaxIdleConns:          100,
				MaxIdleConnsPerHost:   10,
				IdleConnTimeout:       120 * time.Second,
				ResponseHeaderTimeout: 30 * time.Second,
			},
		}
	}
	return c.http
}

// Stream POSTs body to url with tracing enabled and returns the raw
// response. The caller owns resp.Body and must close it. Non-200 statuses
// are returned as-is, not errors.
func (c *Client) Stream(ctx context.Context, url string, body []byte) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set(HeaderTrace, "true")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	return c.pooled().Do(req)
}
