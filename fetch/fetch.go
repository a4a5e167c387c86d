// Package fetch pulls raw per-source records from the external
// marketplaces. Every fetcher returns the source's typed records and leaves
// qualification, deduplication and persistence to the pipeline.
package fetch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// maxBodyBytes caps response reads; listing pages are large but bounded.
const maxBodyBytes = 8 << 20

// Client is the shared HTTP front for the API and page fetchers. It applies
// the configured user agent and classifies failures.
type Client struct {
	http      *http.Client
	userAgent string
}

// NewClient builds a client with the given timeout and user agent. A nil
// transport uses a pooled default; tests pass an httpmock transport.
func NewClient(timeout time.Duration, userAgent string, transport http.RoundTripper) *Client {
	if transport == nil {
		transport = &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			DialContext: (&net.Dialer{
				Timeout:   timeout,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		}
	}
	return &Client{
		http:      &http.Client{Timeout: timeout, Transport: transport},
		userAgent: userAgent,
	}
}

// Get fetches url and returns the body. Non-2xx responses come back as a
// classified RequestError.
func (c *Client) Get(ctx context.Context, url string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, url, nil, "")
}

// PostJSON sends a JSON payload and returns the response body.
func (c *Client) PostJSON(ctx context.Context, url string, payload []byte) ([]byte, error) {
	return c.do(ctx, http.MethodPost, url, bytes.NewReader(payload), "application/json")
}

func (c *Client) do(ctx context.Context, method, url string, body io.Reader, contentType string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept-Language", "es-MX,es;q=0.9,en;q=0.8")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, Classify(err, 0, url)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		io.Copy(io.Discard, resp.Body) //nolint:errcheck
		return nil, Classify(nil, resp.StatusCode, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, Classify(err, resp.StatusCode, url)
	}
	return data, nil
}
