package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
)

// Directory fetches the registered service fleet over HTTP.
type Directory struct {
	client *resty.Client
}

// DirectoryOption customizes the directory client.
type DirectoryOption func(*Directory)

// WithTimeout overrides the request timeout.
func WithTimeout(d time.Duration) DirectoryOption {
	return func(dir *Directory) {
		dir.client.SetTimeout(d)
	}
}

// NewDirectory creates a directory client for the given API base URL.
func NewDirectory(baseURL string, opts ...DirectoryOption) *Directory {
	retryClient := retryablehttp.NewClient()
	retryClient.RetryMax = 3
	retryClient.RetryWaitMin = 1 * time.Second
	retryClient.RetryWaitMax = 10 * time.Second
	retryClient.Logger = nil // Disable logging

	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30*time.Second).
		SetHeader("User-Agent", "fleetwatch-canary/1.0").
		SetTransport(retryClient.HTTPClient.Transport)

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		req.SetHeader("X-Request-ID", uuid.NewString())
		return nil
	})

	dir := &Directory{client: client}
	for _, opt := range opts {
		opt(dir)
	}
	return dir
}

// directoryResponse is the wire shape of the service listing.
type directoryResponse struct {
	Items []Service `json:"items"`
}

// Fetch retrieves the current fleet snapshot. The result is a fresh value
// each call; callers own it for the duration of one cycle.
func (d *Directory) Fetch(ctx context.Context) (Snapshot, error) {
	var body directoryResponse
	resp, err := d.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"include_public": "true",
			"limit":          "1000",
		}).
		SetResult(&body).
		Get("/services/")
	if err != nil {
		return Snapshot{}, fmt.Errorf("fetch directory: %w", err)
	}
	if resp.IsError() {
		return Snapshot{}, fmt.Errorf("fetch directory: status %d", resp.StatusCode())
	}

	return Snapshot{
		Services:  body.Items,
		FetchedAt: time.Now(),
	}, nil
}
