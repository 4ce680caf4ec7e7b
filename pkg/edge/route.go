// Package edge is the delivery layer in front of the origin. Every request is
// classified as a static asset or an HTML document; assets are served with a
// year-long cache policy and stored in the response cache, documents are always
// fetched fresh, get per-subdomain social-preview tags spliced into their head,
// and are never cached. Every response carries the hardened header policy.
package edge

import (
	"net/http"
	"regexp"
	"strings"
)

// Kind tells assets and documents apart.
type Kind int

const (
	KindDocument Kind = iota
	KindAsset
)

func (k Kind) String() string {
	if k == KindAsset {
		return "asset"
	}
	return "document"
}

// Request is the inbound request as seen by the edge.
type Request struct {
	Method   string
	Host     string
	Path     string
	RawQuery string
	Header   http.Header
}

// CacheKey identifies a response in the cache. Different inbound paths that
// resolve to the same origin URL share a key. No inbound header is forwarded to
// the origin and cached bodies are stored decoded, so request headers such as
// Accept-Encoding never vary the response and are not part of the key.
type CacheKey struct {
	Method string
	URL    string
}

func (k CacheKey) String() string {
	return k.Method + " " + k.URL
}

// Route is the outcome of classifying a Request.
type Route struct {
	Kind      Kind
	OriginURL string
	CacheKey  CacheKey
}

var assetPathRe = regexp.MustCompile(`(?i)\.(js|css|png|jpg|jpeg|svg|webp|ico|woff|woff2)$`)

// Router maps requests onto the origin.
type Router struct {
	origin string
}

// NewRouter creates a router for the origin base URL, e.g. "https://example.com".
func NewRouter(origin string) *Router {
	return &Router{origin: strings.TrimSuffix(origin, "/")}
}

// Classify is a pure function of the request. Paths ending in a known asset
// extension map to the same path and query on the origin, query included so
// that version parameters bust the cache. Every other path maps to the single
// page shell at /index.html.
func (r *Router) Classify(req Request) Route {
	route := Route{Kind: KindDocument, OriginURL: r.origin + "/index.html"}
	if assetPathRe.MatchString(req.Path) {
		route.Kind = KindAsset
		route.OriginURL = r.origin + req.Path
		if req.RawQuery != "" {
			route.OriginURL += "?" + req.RawQuery
		}
	}

	method := strings.ToUpper(req.Method)
	if method == "" {
		method = http.MethodGet
	}
	route.CacheKey = CacheKey{Method: method, URL: route.OriginURL}
	return route
}
