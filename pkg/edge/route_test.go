package edge

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	r := NewRouter("https://origin.test/")

	tests := []struct {
		name    string
		req     Request
		kind    Kind
		wantURL string
	}{
		{"versioned js", Request{Method: "GET", Path: "/app.js", RawQuery: "v=2"}, KindAsset, "https://origin.test/app.js?v=2"},
		{"css no query", Request{Method: "GET", Path: "/static/site.css"}, KindAsset, "https://origin.test/static/site.css"},
		{"upper ext", Request{Method: "GET", Path: "/LOGO.PNG"}, KindAsset, "https://origin.test/LOGO.PNG"},
		{"woff", Request{Method: "GET", Path: "/f.woff"}, KindAsset, "https://origin.test/f.woff"},
		{"woff2", Request{Method: "GET", Path: "/f.woff2"}, KindAsset, "https://origin.test/f.woff2"},
		{"root", Request{Method: "GET", Path: "/"}, KindDocument, "https://origin.test/index.html"},
		{"deep route", Request{Method: "GET", Path: "/u/alice/settings", RawQuery: "tab=1"}, KindDocument, "https://origin.test/index.html"},
		{"unknown ext", Request{Method: "GET", Path: "/data.json"}, KindDocument, "https://origin.test/index.html"},
		{"ext mid path", Request{Method: "GET", Path: "/app.js/more"}, KindDocument, "https://origin.test/index.html"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := r.Classify(tt.req)
			assert.Equal(t, tt.kind, got.Kind)
			assert.Equal(t, tt.wantURL, got.OriginURL)
			assert.Equal(t, CacheKey{Method: "GET", URL: tt.wantURL}, got.CacheKey)
		})
	}
}

func TestClassify_SharedKeys(t *testing.T) {
	r := NewRouter("https://origin.test")

	a := r.Classify(Request{Method: "GET", Host: "alice.example.com", Path: "/"})
	b := r.Classify(Request{Method: "GET", Host: "bob.example.com", Path: "/profile"})
	assert.Equal(t, a.CacheKey, b.CacheKey)

	post := r.Classify(Request{Method: "post", Path: "/app.js"})
	assert.Equal(t, "POST", post.CacheKey.Method)
	assert.Equal(t, "GET", r.Classify(Request{Path: "/app.js"}).CacheKey.Method)
}

func TestClassify_HeadersDoNotVaryKey(t *testing.T) {
	r := NewRouter("https://origin.test")

	plain := r.Classify(Request{Method: "GET", Path: "/app.js", Header: http.Header{}})
	for _, enc := range []string{"gzip", "br", "identity", "gzip, deflate, br"} {
		got := r.Classify(Request{Method: "GET", Path: "/app.js", Header: http.Header{"Accept-Encoding": {enc}}})
		assert.Equal(t, plain.CacheKey, got.CacheKey, "Accept-Encoding %q", enc)
	}
}
