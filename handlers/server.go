package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/andesco/subpage/pkg/edge"
	"github.com/andesco/subpage/pkg/metadata"
)

func newApp(name string, logger *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               name,
		DisableStartupMessage: true,
	})
	app.Use(recover.New())
	app.Use(RequestLogger(logger))
	return app
}

// NewEdgeApp routes every method and path through the proxy.
func NewEdgeApp(p *edge.Proxy, logger *zap.Logger) *fiber.App {
	app := newApp("subpage-edge", logger)
	app.All("/*", ProxySite(p))
	return app
}

// OriginOptions configures NewOriginApp.
type OriginOptions struct {
	Store     ProfileStore
	Resolver  MetadataResolver
	Site      metadata.Site
	StaticDir string
	Logger    *zap.Logger
}

// NewOriginApp serves the profile API, the og-meta endpoint and the static
// single-page app.
func NewOriginApp(opts OriginOptions) *fiber.App {
	app := newApp("subpage-origin", opts.Logger)
	app.Get("/healthz", Healthz)
	app.Get("/og-meta", OGMeta(opts.Resolver, opts.Site))
	NewProfileAPI(opts.Store, opts.Logger).Register(app)
	if opts.StaticDir != "" {
		app.Static("/", opts.StaticDir, fiber.Static{Index: "index.html"})
	}
	return app
}

// NewMetricsApp exposes g at /metrics. It also answers /healthz, since the
// edge app forwards every path to the origin.
func NewMetricsApp(g prometheus.Gatherer) *fiber.App {
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Get("/healthz", Healthz)
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))
	return app
}

// Healthz reports liveness.
func Healthz(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "no-store")
	return c.SendString("ok")
}
