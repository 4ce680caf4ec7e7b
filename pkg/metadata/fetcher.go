package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.uber.org/zap"
)

// maxMetadataBody bounds the og-meta response read.
const maxMetadataBody = 64 << 10

// HTTPFetcher reads metadata from the origin's og-meta endpoint.
type HTTPFetcher struct {
	origin string
	client *http.Client
	site   Site
	logger *zap.Logger
}

// NewHTTPFetcher creates a fetcher for origin (e.g. "https://example.com").
// A zero timeout leaves the request bounded only by the caller's context.
func NewHTTPFetcher(origin string, site Site, timeout time.Duration, logger *zap.Logger) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPFetcher{
		origin: strings.TrimSuffix(origin, "/"),
		client: &http.Client{Timeout: timeout},
		site:   site,
		logger: logger,
	}
}

// Fetch calls GET {origin}/og-meta?subdomain=... with caching disabled.
// Non-2xx answers and undecodable bodies are errors.
func (f *HTTPFetcher) Fetch(ctx context.Context, subdomain string) (Metadata, error) {
	endpoint := f.origin + "/og-meta?subdomain=" + url.QueryEscape(subdomain)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return Metadata{}, fmt.Errorf("building metadata request: %w", err)
	}
	req.Header.Set("Cache-Control", "no-store")
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return Metadata{}, fmt.Errorf("fetching metadata for %q: %w", subdomain, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return Metadata{}, fmt.Errorf("fetching metadata for %q: unexpected status %d", subdomain, resp.StatusCode)
	}

	var m Metadata
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxMetadataBody)).Decode(&m); err != nil {
		return Metadata{}, fmt.Errorf("decoding metadata for %q: %w", subdomain, err)
	}
	return f.site.Normalize(m), nil
}

// FetchOrDefault never fails: any error is logged and the site defaults are
// returned instead.
func (f *HTTPFetcher) FetchOrDefault(ctx context.Context, subdomain string) Metadata {
	m, err := f.Fetch(ctx, subdomain)
	if err != nil {
		f.logger.Warn("metadata fetch failed, using defaults", zap.String("subdomain", subdomain), zap.Error(err))
		return f.site.Defaults()
	}
	return m
}
