package channel

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"relaybot/internal/metrics"
)

// SharedHTTPClient returns an HTTP client with connection pooling. Every
// media download in the relay goes through one instance of it.
func SharedHTTPClient(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	transport := &http.Transport{
		MaxIdleConns:        20,
		MaxIdleConnsPerHost: 10,
		IdleConnTimeout:     90 * time.Second,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: timeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// MediaFetcher downloads the bytes behind a URL.
type MediaFetcher interface {
	Fetch(ctx context.Context, url string) (io.ReadCloser, error)
}

// HTTPFetcher is a MediaFetcher backed by an *http.Client.
type HTTPFetcher struct {
	client  *http.Client
	metrics *metrics.Recorder
}

// NewHTTPFetcher wraps client. A nil client uses SharedHTTPClient defaults.
func NewHTTPFetcher(client *http.Client, rec *metrics.Recorder) *HTTPFetcher {
	if client == nil {
		client = SharedHTTPClient(0)
	}
	return &HTTPFetcher{client: client, metrics: rec}
}

// Fetch issues a GET and returns the response body. Non-2xx responses are
// errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (rc io.ReadCloser, err error) {
	defer func() { f.metrics.Fetch(err) }()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, fmt.Errorf("fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	return resp.Body, nil
}
