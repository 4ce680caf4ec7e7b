package edge

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics are the edge's Prometheus collectors.
type Metrics struct {
	Requests     *prometheus.CounterVec
	CacheLookups *prometheus.CounterVec
	CacheWrites  *prometheus.CounterVec
	Rewrites     *prometheus.CounterVec
	OriginErrors prometheus.Counter
}

// NewMetrics registers the collectors with reg. A nil reg leaves them
// unregistered, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_requests_total",
			Help: "Requests handled by the edge, by route kind.",
		}, []string{"kind"}),
		CacheLookups: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_cache_lookups_total",
			Help: "Response cache lookups, by result (hit, miss, error).",
		}, []string{"result"}),
		CacheWrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_cache_writes_total",
			Help: "Background response cache writes, by result (ok, error).",
		}, []string{"result"}),
		Rewrites: f.NewCounterVec(prometheus.CounterOpts{
			Name: "edge_rewrites_total",
			Help: "Document rewrites, by outcome (applied, skipped, failed).",
		}, []string{"outcome"}),
		OriginErrors: f.NewCounter(prometheus.CounterOpts{
			Name: "edge_origin_errors_total",
			Help: "Origin fetches that failed before a response arrived.",
		}),
	}
}
