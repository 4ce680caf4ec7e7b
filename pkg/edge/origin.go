package edge

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// CacheHint tells the origin fetch how intermediaries may treat the request.
type CacheHint int

const (
	// HintCacheEverything lets shared caches between edge and origin keep the response.
	HintCacheEverything CacheHint = iota
	// HintNoStore bypasses every intermediate cache.
	HintNoStore
)

// ErrBodyTooLarge is returned when an origin body exceeds the configured limit.
var ErrBodyTooLarge = errors.New("origin body too large")

// Origin fetches responses from the origin server.
type Origin interface {
	Fetch(ctx context.Context, url string, hint CacheHint) (*Response, error)
}

// HTTPOrigin is an Origin over plain HTTP.
type HTTPOrigin struct {
	client    *http.Client
	maxBody   int64
	userAgent string
}

// NewHTTPOrigin creates an origin client. maxBody of zero or less disables the limit.
func NewHTTPOrigin(timeout time.Duration, maxBody int64, userAgent string) *HTTPOrigin {
	return &HTTPOrigin{
		client:    &http.Client{Timeout: timeout},
		maxBody:   maxBody,
		userAgent: userAgent,
	}
}

// Fetch GETs url with only the edge's own headers. The transport negotiates
// compression itself and returns the decoded body.
func (o *HTTPOrigin) Fetch(ctx context.Context, url string, hint CacheHint) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("error building origin request: %w", err)
	}
	if o.userAgent != "" {
		req.Header.Set("User-Agent", o.userAgent)
	}
	if hint == HintNoStore {
		req.Header.Set("Cache-Control", "no-store")
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error fetching origin: %w", err)
	}
	defer resp.Body.Close()

	var body io.Reader = resp.Body
	if o.maxBody > 0 {
		body = io.LimitReader(resp.Body, o.maxBody+1)
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("error reading origin body: %w", err)
	}
	if o.maxBody > 0 && int64(len(data)) > o.maxBody {
		return nil, fmt.Errorf("%s: %w", url, ErrBodyTooLarge)
	}

	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}
