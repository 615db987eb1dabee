package trust

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
)

const (
	// Metadata files are small; anything bigger is suspect.
	maxMetadataBytes = 1 << 20

	userAgent = "molt"
)

// Fetcher retrieves metadata files over HTTP with a short constant-backoff
// retry for transient failures.
type Fetcher struct {
	client     *http.Client
	maxRetries uint64
	retryWait  time.Duration
}

// NewFetcher creates a fetcher with sane defaults.
func NewFetcher() *Fetcher {
	return &Fetcher{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 2,
		retryWait:  time.Second,
	}
}

// WithClient replaces the HTTP client.
func (f *Fetcher) WithClient(client *http.Client) *Fetcher {
	f.client = client
	return f
}

// Fetch downloads url and returns the body. Client errors (4xx) fail
// immediately; network errors and server errors are retried.
func (f *Fetcher) Fetch(ctx context.Context, url string) ([]byte, error) {
	var body []byte

	op := func() error {
		data, err := f.fetchOnce(ctx, url)
		if err != nil {
			return err
		}
		body = data
		return nil
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(f.retryWait), f.maxRetries), ctx)
	if err := backoff.Retry(op, bo); err != nil {
		return nil, err
	}
	return body, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return nil, backoff.Permanent(fmt.Errorf("unexpected status %s for %s", resp.Status, url))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s for %s", resp.Status, url)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxMetadataBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if len(data) == 0 {
		return nil, backoff.Permanent(fmt.Errorf("empty response for %s", url))
	}

	return data, nil
}

func joinURL(base, name string) string {
	return strings.TrimSuffix(base, "/") + "/" + name
}
