package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/akamensky/argparse"
	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/andesco/subpage/handlers"
	"github.com/andesco/subpage/pkg/config"
	"github.com/andesco/subpage/pkg/edge"
	"github.com/andesco/subpage/pkg/logging"
	"github.com/andesco/subpage/pkg/metadata"
	"github.com/andesco/subpage/pkg/profile"
)

const shutdownTimeout = 10 * time.Second

func main() {
	parser := argparse.NewParser("subpage", "Profile pages served on their own subdomain")

	configPath := parser.String("c", "config", &argparse.Options{
		Required: false,
		Default:  os.Getenv("SUBPAGE_CONFIG"),
		Help:     "YAML config file. Environment variables override its values",
	})
	port := parser.String("p", "port", &argparse.Options{
		Required: false,
		Help:     "Port to listen on. Overrides LISTEN",
	})
	edgeCmd := parser.NewCommand("edge", "Run the edge proxy in front of the origin")
	originCmd := parser.NewCommand("origin", "Run the origin: static app, og-meta and profile API")

	if err := parser.Parse(os.Args); err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if *port != "" {
		cfg.Listen = ":" + *port
	}

	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	switch {
	case edgeCmd.Happened():
		err = runEdge(ctx, cfg, logger)
	case originCmd.Happened():
		err = runOrigin(ctx, cfg, logger)
	default:
		fmt.Print(parser.Usage(nil))
		os.Exit(2)
	}
	if err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}

func runEdge(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cache, err := newCache(ctx, cfg, logger)
	if err != nil {
		return err
	}

	site := metadata.Site{Apex: cfg.Apex, DefaultImage: cfg.DefaultImage, DefaultFavicon: cfg.DefaultFavicon}
	proxy := edge.New(edge.Options{
		Router:   edge.NewRouter(cfg.Origin),
		Origin:   edge.NewHTTPOrigin(cfg.HTTPTimeout, cfg.MaxBodyBytes, cfg.UserAgent),
		Rewriter: edge.NewRewriter(metadata.NewHTTPFetcher(cfg.Origin, site, cfg.MetadataTimeout, logger)),
		Cache:    cache,
		Site:     site,
		Metrics:  edge.NewMetrics(reg),
		Logger:   logger,
	})
	defer proxy.Wait()

	logger.Info("starting edge",
		zap.String("listen", cfg.Listen),
		zap.String("origin", cfg.Origin),
		zap.String("apex", cfg.Apex),
		zap.String("cache", cfg.Cache.Backend))

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return serve(ctx, handlers.NewEdgeApp(proxy, logger), cfg.Listen, logger) })
	if cfg.MetricsListen != "" {
		g.Go(func() error { return serve(ctx, handlers.NewMetricsApp(reg), cfg.MetricsListen, logger) })
	}
	return g.Wait()
}

func newCache(ctx context.Context, cfg config.Config, logger *zap.Logger) (edge.Cache, error) {
	if cfg.Cache.Backend != config.CacheRedis {
		return edge.NewMemoryCache(cfg.Cache.MaxEntries), nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Cache.RedisAddr})
	cache := edge.NewRedisCache(rdb, edge.AssetMaxAge, logger)
	if err := cache.Ping(ctx); err != nil {
		return nil, fmt.Errorf("unable to connect to redis at %s: %w", cfg.Cache.RedisAddr, err)
	}
	logger.Info("redis connection established", zap.String("addr", cfg.Cache.RedisAddr))
	return cache, nil
}

func runOrigin(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	db, err := profile.Open(cfg.DatabasePath)
	if err != nil {
		return err
	}
	defer db.Close()

	site := metadata.Site{Apex: cfg.Apex, DefaultImage: cfg.DefaultImage, DefaultFavicon: cfg.DefaultFavicon}
	store := profile.NewStore(db, "https://"+cfg.Apex)
	var files metadata.URLResolver
	if cfg.StorageBaseURL != "" {
		files = profile.FileURLs{BaseURL: cfg.StorageBaseURL}
	}

	app := handlers.NewOriginApp(handlers.OriginOptions{
		Store:     store,
		Resolver:  metadata.NewResolver(store, files, site, logger),
		Site:      site,
		StaticDir: cfg.StaticDir,
		Logger:    logger,
	})

	logger.Info("starting origin",
		zap.String("listen", cfg.Listen),
		zap.String("database", cfg.DatabasePath),
		zap.String("static", cfg.StaticDir))
	return serve(ctx, app, cfg.Listen, logger)
}

// serve runs app until ctx is cancelled, then shuts it down gracefully.
func serve(ctx context.Context, app *fiber.App, addr string, logger *zap.Logger) error {
	errc := make(chan error, 1)
	go func() { errc <- app.Listen(addr) }()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down", zap.String("listen", addr))
	if err := app.ShutdownWithTimeout(shutdownTimeout); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}
