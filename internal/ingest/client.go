package ingest

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"
)

// ErrNotConfigured is returned by a source whose credentials are absent.
var ErrNotConfigured = errors.New("source not configured")

type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

func NewHTTPClient(timeout time.Duration) HTTPClient {
	return &http.Client{Timeout: timeout}
}

// UpstreamError is a non-2xx answer from a third-party API.
type UpstreamError struct {
	Source     string
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: non-2xx: %d body=%s", e.Source, e.StatusCode, e.Body)
}

func getJSON(ctx context.Context, c HTTPClient, source, url string, v any) error {
	if url == "" {
		return errors.New("empty url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	return doJSON(c, source, req, v)
}
