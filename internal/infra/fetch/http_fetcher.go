package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"
)

// DefaultMaxBytes caps attachment downloads.
const DefaultMaxBytes = 2 << 20

// HTTPFetcher downloads attachments over HTTP(S). Concurrent fetches of the
// same URL share one request.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
	sf       singleflight.Group
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &HTTPFetcher{
		client:   &http.Client{Timeout: timeout},
		maxBytes: maxBytes,
	}
}

// Fetch downloads url. The shared request is bounded by the client timeout,
// not by any single caller; a cancelled caller stops waiting on its own.
func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (string, error) {
	ch := f.sf.DoChan(url, func() (interface{}, error) {
		return f.get(context.WithoutCancel(ctx), url)
	})
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (f *HTTPFetcher) get(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download: unexpected status %s", resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return "", fmt.Errorf("attachment larger than %d bytes", f.maxBytes)
	}
	return string(body), nil
}
