package edge

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/andesco/subpage/pkg/metadata"
)

// AssetMaxAge is the browser and cache lifetime of asset responses.
const AssetMaxAge = 365 * 24 * time.Hour

const defaultCacheWriteTimeout = 10 * time.Second

// Options wires a Proxy. Router, Origin and Rewriter are required.
type Options struct {
	Router   *Router
	Origin   Origin
	Rewriter *Rewriter
	Cache    Cache
	Site     metadata.Site
	Headers  *HeaderPolicy
	Metrics  *Metrics
	Logger   *zap.Logger

	// CacheWriteTimeout bounds a background cache store.
	CacheWriteTimeout time.Duration
}

// Proxy answers edge requests from the cache or the origin.
type Proxy struct {
	router       *Router
	origin       Origin
	rewriter     *Rewriter
	cache        Cache
	site         metadata.Site
	headers      HeaderPolicy
	metrics      *Metrics
	logger       *zap.Logger
	writeTimeout time.Duration

	pending sync.WaitGroup
}

// New builds a Proxy from opts. Cache, Headers, Metrics and Logger fall back
// to an unbounded memory cache, DefaultHeaderPolicy, unregistered metrics and a
// no-op logger.
func New(opts Options) *Proxy {
	p := &Proxy{
		router:       opts.Router,
		origin:       opts.Origin,
		rewriter:     opts.Rewriter,
		cache:        opts.Cache,
		site:         opts.Site,
		headers:      DefaultHeaderPolicy(),
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		writeTimeout: opts.CacheWriteTimeout,
	}
	if opts.Headers != nil {
		p.headers = *opts.Headers
	}
	if p.cache == nil {
		p.cache = NewMemoryCache(0)
	}
	if p.metrics == nil {
		p.metrics = NewMetrics(nil)
	}
	if p.logger == nil {
		p.logger = zap.NewNop()
	}
	if p.writeTimeout <= 0 {
		p.writeTimeout = defaultCacheWriteTimeout
	}
	return p
}

// Handle serves one request. It never returns nil: origin failures become a
// 502 carrying the security headers.
func (p *Proxy) Handle(ctx context.Context, req Request) *Response {
	route := p.router.Classify(req)
	p.metrics.Requests.WithLabelValues(route.Kind.String()).Inc()

	cacheable := route.Kind == KindAsset && route.CacheKey.Method == http.MethodGet
	if cacheable {
		res, ok, err := p.cache.Get(ctx, route.CacheKey)
		switch {
		case err != nil:
			p.metrics.CacheLookups.WithLabelValues("error").Inc()
			p.logger.Warn("cache lookup failed", zap.String("key", route.CacheKey.String()), zap.Error(err))
		case ok:
			p.metrics.CacheLookups.WithLabelValues("hit").Inc()
			return res
		default:
			p.metrics.CacheLookups.WithLabelValues("miss").Inc()
		}
	}

	originRes, err := p.origin.Fetch(ctx, route.OriginURL, HintCacheEverything)
	if err != nil {
		p.metrics.OriginErrors.Inc()
		p.logger.Error("origin fetch failed",
			zap.String("url", route.OriginURL),
			zap.String("kind", route.Kind.String()),
			zap.Error(err))
		return p.badGateway()
	}

	if route.Kind == KindAsset {
		res := p.asset(originRes)
		if cacheable && isSuccess(res.Status) {
			p.storeAsync(ctx, route.CacheKey, res)
		}
		return res
	}
	return p.document(ctx, req, originRes)
}

// Wait blocks until every background cache write has finished.
func (p *Proxy) Wait() {
	p.pending.Wait()
}

func (p *Proxy) asset(originRes *Response) *Response {
	h := http.Header{}
	contentType := originRes.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	h.Set("Content-Type", contentType)
	h.Set("Cache-Control", "public, max-age="+strconv.Itoa(int(AssetMaxAge/time.Second)))
	p.headers.Apply(h)
	return &Response{Status: originRes.Status, Header: h, Body: originRes.Body}
}

func (p *Proxy) document(ctx context.Context, req Request, originRes *Response) *Response {
	html := string(originRes.Body)

	sub, isSub := p.site.SubdomainFromHost(req.Host)
	if isSub && isSuccess(originRes.Status) && HasHeadClose(html) {
		rewritten, err := p.rewrite(ctx, sub, html)
		if err != nil {
			p.metrics.Rewrites.WithLabelValues("failed").Inc()
			p.logger.Warn("og inject failed", zap.String("subdomain", sub), zap.Error(err))
		} else {
			p.metrics.Rewrites.WithLabelValues("applied").Inc()
			html = rewritten
		}
	} else {
		p.metrics.Rewrites.WithLabelValues("skipped").Inc()
	}

	h := http.Header{}
	h.Set("Content-Type", "text/html; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	p.headers.Apply(h)
	return &Response{Status: originRes.Status, Header: h, Body: []byte(html)}
}

func (p *Proxy) rewrite(ctx context.Context, sub, html string) (out string, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("rewrite panic: %v", r)
		}
	}()
	return p.rewriter.Rewrite(ctx, sub, html)
}

// storeAsync writes res to the cache without holding up the response. The
// write outlives the request context.
func (p *Proxy) storeAsync(ctx context.Context, key CacheKey, res *Response) {
	entry := res.Clone()
	p.pending.Add(1)
	go func() {
		defer p.pending.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.writeTimeout)
		defer cancel()

		if err := p.cache.Put(ctx, key, entry); err != nil {
			p.metrics.CacheWrites.WithLabelValues("error").Inc()
			p.logger.Warn("cache write failed", zap.String("key", key.String()), zap.Error(err))
			return
		}
		p.metrics.CacheWrites.WithLabelValues("ok").Inc()
	}()
}

func (p *Proxy) badGateway() *Response {
	h := http.Header{}
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	p.headers.Apply(h)
	return &Response{Status: http.StatusBadGateway, Header: h, Body: []byte("Bad Gateway")}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}
