package edge

import (
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/andesco/subpage/pkg/metadata"
)

var testSite = metadata.Site{Apex: "example.com"}

type testOrigin struct {
	srv  *httptest.Server
	hits atomic.Int32
}

func newTestOrigin(t *testing.T) *testOrigin {
	t.Helper()
	o := &testOrigin{}
	o.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		o.hits.Add(1)
		switch r.URL.Path {
		case "/index.html":
			w.Header().Set("Content-Type", "text/html")
			w.Header().Set("Set-Cookie", "leak=1")
			w.Write([]byte(shell))
		case "/app.js":
			w.Header().Set("Content-Type", "text/javascript")
			w.Write([]byte("console.log(" + r.URL.Query().Get("v") + ")"))
		case "/blob.woff2":
			w.Write([]byte{0x77, 0x4f, 0x46, 0x32})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(o.srv.Close)
	return o
}

func newTestProxy(t *testing.T, originURL string, fetcher metadata.Fetcher) (*Proxy, *MemoryCache) {
	t.Helper()
	cache := NewMemoryCache(100)
	p := New(Options{
		Router:   NewRouter(originURL),
		Origin:   NewHTTPOrigin(5*time.Second, 1<<20, "edge-test"),
		Rewriter: NewRewriter(fetcher),
		Cache:    cache,
		Site:     testSite,
		Logger:   zaptest.NewLogger(t),
	})
	return p, cache
}

func assertSecurityHeaders(t *testing.T, h http.Header) {
	t.Helper()
	assert.Equal(t, "nosniff", h.Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", h.Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", h.Get("Permissions-Policy"))
	assert.Equal(t, "DENY", h.Get("X-Frame-Options"))
	assert.Equal(t, "same-origin", h.Get("Cross-Origin-Opener-Policy"))
	assert.Equal(t, "same-site", h.Get("Cross-Origin-Resource-Policy"))
}

func TestProxy_Asset(t *testing.T) {
	ctx := context.Background()
	origin := newTestOrigin(t)
	p, cache := newTestProxy(t, origin.srv.URL, &stubFetcher{})

	req := Request{Method: "GET", Host: "alice.example.com", Path: "/app.js", RawQuery: "v=2"}
	res := p.Handle(ctx, req)
	require.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "console.log(2)", string(res.Body))
	assert.Equal(t, "text/javascript", res.Header.Get("Content-Type"))
	assert.Equal(t, "public, max-age=31536000", res.Header.Get("Cache-Control"))
	assertSecurityHeaders(t, res.Header)

	p.Wait()
	assert.Equal(t, 1, cache.Len())

	// Served from cache, also for a different host mapping to the same origin URL.
	again := p.Handle(ctx, Request{Method: "GET", Host: "bob.example.com", Path: "/app.js", RawQuery: "v=2"})
	assert.Equal(t, "console.log(2)", string(again.Body))
	assert.Equal(t, int32(1), origin.hits.Load())
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.CacheLookups.WithLabelValues("hit")))

	// A new version query is a different key.
	v3 := p.Handle(ctx, Request{Method: "GET", Path: "/app.js", RawQuery: "v=3"})
	assert.Equal(t, "console.log(3)", string(v3.Body))
	assert.Equal(t, int32(2), origin.hits.Load())
}

// The origin compresses when asked, but the transport decodes the body before
// it is cached, so clients with different Accept-Encoding share one entry.
func TestProxy_AssetSharedAcrossEncodings(t *testing.T) {
	ctx := context.Background()
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.Header().Set("Content-Type", "text/css")
		if !strings.Contains(r.Header.Get("Accept-Encoding"), "gzip") {
			w.Write([]byte("body{}"))
			return
		}
		w.Header().Set("Content-Encoding", "gzip")
		gz := gzip.NewWriter(w)
		gz.Write([]byte("body{}"))
		gz.Close()
	}))
	t.Cleanup(srv.Close)
	p, _ := newTestProxy(t, srv.URL, &stubFetcher{})

	for _, enc := range []string{"br", "identity", "gzip"} {
		res := p.Handle(ctx, Request{Method: "GET", Path: "/site.css", Header: http.Header{"Accept-Encoding": {enc}}})
		require.Equal(t, http.StatusOK, res.Status)
		assert.Equal(t, "body{}", string(res.Body), "Accept-Encoding %q", enc)
		assert.Empty(t, res.Header.Get("Content-Encoding"))
		p.Wait()
	}
	assert.Equal(t, int32(1), hits.Load())
}

func TestProxy_AssetDefaults(t *testing.T) {
	ctx := context.Background()
	origin := newTestOrigin(t)
	p, cache := newTestProxy(t, origin.srv.URL, &stubFetcher{})

	res := p.Handle(ctx, Request{Method: "GET", Path: "/blob.woff2"})
	require.Equal(t, http.StatusOK, res.Status)
	// Go's server sniffs a type for bodies without one; only a missing header falls back.
	assert.NotEmpty(t, res.Header.Get("Content-Type"))

	missing := p.Handle(ctx, Request{Method: "GET", Path: "/missing.png"})
	assert.Equal(t, http.StatusNotFound, missing.Status)
	assert.Equal(t, "public, max-age=31536000", missing.Header.Get("Cache-Control"))
	assertSecurityHeaders(t, missing.Header)

	post := p.Handle(ctx, Request{Method: "POST", Path: "/app.js"})
	assert.Equal(t, http.StatusOK, post.Status)

	p.Wait()
	// Only the successful GET was stored.
	assert.Equal(t, 1, cache.Len())
}

func TestProxy_AssetContentTypeFallback(t *testing.T) {
	p := New(Options{
		Router:   NewRouter("https://origin.test"),
		Origin:   staticOrigin{res: &Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("x")}},
		Rewriter: NewRewriter(&stubFetcher{}),
		Site:     testSite,
	})
	res := p.Handle(context.Background(), Request{Method: "GET", Path: "/x.svg"})
	assert.Equal(t, "application/octet-stream", res.Header.Get("Content-Type"))
	p.Wait()
}

func TestProxy_DocumentRewritten(t *testing.T) {
	ctx := context.Background()
	origin := newTestOrigin(t)
	fetcher := &stubFetcher{m: metadata.Metadata{Title: "Alice & co", Description: "Hi", Image: "https://cdn.test/i.png"}}
	p, cache := newTestProxy(t, origin.srv.URL, fetcher)

	req := Request{Method: "GET", Host: "alice.example.com", Path: "/some/route"}
	res := p.Handle(ctx, req)
	require.Equal(t, http.StatusOK, res.Status)
	body := string(res.Body)
	assert.Contains(t, body, "<title>Alice &amp; co</title>")
	assert.Equal(t, 1, strings.Count(body, `property="og:title"`))
	assert.Equal(t, "text/html; charset=utf-8", res.Header.Get("Content-Type"))
	assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
	assert.Empty(t, res.Header.Get("Set-Cookie"))
	assertSecurityHeaders(t, res.Header)
	assert.Equal(t, 1, fetcher.calls)

	p.Wait()
	_, ok, err := cache.Get(ctx, p.router.Classify(req).CacheKey)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, cache.Len())

	// Documents always go back to the origin.
	p.Handle(ctx, req)
	assert.Equal(t, int32(2), origin.hits.Load())
}

func TestProxy_DocumentNotRewritten(t *testing.T) {
	ctx := context.Background()
	origin := newTestOrigin(t)

	tests := []struct {
		name    string
		host    string
		fetcher *stubFetcher
		calls   int
	}{
		{"apex", "example.com", &stubFetcher{m: metadata.Metadata{Title: "X"}}, 0},
		{"www", "www.example.com", &stubFetcher{m: metadata.Metadata{Title: "X"}}, 0},
		{"foreign host", "alice.other.test", &stubFetcher{m: metadata.Metadata{Title: "X"}}, 0},
		{"metadata down", "alice.example.com", &stubFetcher{err: errors.New("down")}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, _ := newTestProxy(t, origin.srv.URL, tt.fetcher)
			res := p.Handle(ctx, Request{Method: "GET", Host: tt.host, Path: "/"})
			require.Equal(t, http.StatusOK, res.Status)
			assert.Equal(t, shell, string(res.Body))
			assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
			assertSecurityHeaders(t, res.Header)
			assert.Equal(t, tt.calls, tt.fetcher.calls)
		})
	}
}

func TestProxy_DocumentWithoutHead(t *testing.T) {
	fetcher := &stubFetcher{m: metadata.Metadata{Title: "X"}}
	p := New(Options{
		Router:   NewRouter("https://origin.test"),
		Origin:   staticOrigin{res: &Response{Status: http.StatusOK, Header: http.Header{}, Body: []byte("<p>no head</p>")}},
		Rewriter: NewRewriter(fetcher),
		Site:     testSite,
	})
	res := p.Handle(context.Background(), Request{Method: "GET", Host: "alice.example.com", Path: "/"})
	assert.Equal(t, "<p>no head</p>", string(res.Body))
	assert.Equal(t, 0, fetcher.calls)
}

func TestProxy_OriginStatusPropagates(t *testing.T) {
	fetcher := &stubFetcher{m: metadata.Metadata{Title: "X"}}
	p := New(Options{
		Router:   NewRouter("https://origin.test"),
		Origin:   staticOrigin{res: &Response{Status: http.StatusServiceUnavailable, Header: http.Header{}, Body: []byte("<head></head>")}},
		Rewriter: NewRewriter(fetcher),
		Site:     testSite,
	})
	res := p.Handle(context.Background(), Request{Method: "GET", Host: "alice.example.com", Path: "/"})
	assert.Equal(t, http.StatusServiceUnavailable, res.Status)
	assert.Equal(t, "<head></head>", string(res.Body))
	assert.Equal(t, 0, fetcher.calls)
	assertSecurityHeaders(t, res.Header)
}

func TestProxy_OriginDown(t *testing.T) {
	origin := newTestOrigin(t)
	url := origin.srv.URL
	origin.srv.Close()

	p, _ := newTestProxy(t, url, &stubFetcher{})
	for _, path := range []string{"/", "/app.js"} {
		res := p.Handle(context.Background(), Request{Method: "GET", Host: "alice.example.com", Path: path})
		assert.Equal(t, http.StatusBadGateway, res.Status)
		assert.Equal(t, "no-store", res.Header.Get("Cache-Control"))
		assertSecurityHeaders(t, res.Header)
	}
	assert.Equal(t, 2.0, testutil.ToFloat64(p.metrics.OriginErrors))
}

func TestProxy_CacheWriteFailureIgnored(t *testing.T) {
	origin := newTestOrigin(t)
	p := New(Options{
		Router:   NewRouter(origin.srv.URL),
		Origin:   NewHTTPOrigin(5*time.Second, 0, ""),
		Rewriter: NewRewriter(&stubFetcher{}),
		Cache:    brokenCache{},
		Site:     testSite,
		Logger:   zaptest.NewLogger(t),
	})

	res := p.Handle(context.Background(), Request{Method: "GET", Path: "/app.js", RawQuery: "v=1"})
	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, "console.log(1)", string(res.Body))
	p.Wait()
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.CacheWrites.WithLabelValues("error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(p.metrics.CacheLookups.WithLabelValues("error")))
}

func TestHTTPOrigin_BodyLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	_, err := NewHTTPOrigin(time.Second, 16, "").Fetch(context.Background(), srv.URL, HintCacheEverything)
	assert.ErrorIs(t, err, ErrBodyTooLarge)

	res, err := NewHTTPOrigin(time.Second, 64, "").Fetch(context.Background(), srv.URL, HintNoStore)
	require.NoError(t, err)
	assert.Len(t, res.Body, 64)
}

type staticOrigin struct {
	res *Response
}

func (o staticOrigin) Fetch(context.Context, string, CacheHint) (*Response, error) {
	return o.res.Clone(), nil
}

type brokenCache struct{}

func (brokenCache) Get(context.Context, CacheKey) (*Response, bool, error) {
	return nil, false, errors.New("cache unavailable")
}

func (brokenCache) Put(context.Context, CacheKey, *Response) error {
	return errors.New("cache unavailable")
}
