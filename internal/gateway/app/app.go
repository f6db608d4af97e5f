package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	log "github.com/sirupsen/logrus"

	"llmnexus/internal/dispatch"
	"llmnexus/internal/gateway/config"
	"llmnexus/internal/gateway/handler"
	"llmnexus/internal/gateway/handler/rpc"
	"llmnexus/internal/gateway/server"
	"llmnexus/internal/llm"
	"llmnexus/internal/metrics"
	"llmnexus/internal/orchestrator"
	"llmnexus/internal/ratelimit"
	"llmnexus/internal/report"
	"llmnexus/internal/router"
)

type App struct {
	cfg      *config.Config
	server   *server.Server
	handler  http.Handler
	registry *llm.InMemoryModelRegistry
	health   *llm.HealthTracker
	router   *router.Router
	recorder *metrics.Recorder
	orch     *orchestrator.Orchestrator
	watcher  *config.CatalogWatcher
	stop     context.CancelFunc
}

func New() (*App, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ConfigureLogging(); err != nil {
		return nil, err
	}
	return Build(context.Background(), cfg)
}

// Build wires every component from cfg.
func Build(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := log.StandardLogger()

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load catalog: %w", err)
	}

	// Dependencies
	registry := llm.NewInMemoryModelRegistry(func(desc llm.ModelDescriptor) []llm.Middleware {
		return []llm.Middleware{
			llm.WithLogging(logger),
			llm.ProviderLimit(desc.RateLimit),
			llm.RespectRateLimitSignals(nil),
		}
	})
	health := llm.NewHealthTracker(llm.DefaultBreakerConfig())
	a := &App{cfg: cfg, registry: registry, health: health}
	if err := a.registerModels(catalog); err != nil {
		return nil, err
	}
	rt, err := router.New(catalog.Routes, registry, health)
	if err != nil {
		return nil, fmt.Errorf("invalid routing table: %w", err)
	}
	a.router = rt

	algo, err := ratelimit.ParseAlgorithm(cfg.RateAlgorithm)
	if err != nil {
		return nil, err
	}
	limiter, err := ratelimit.New(cfg.RateLimit, cfg.RateWindow, ratelimit.WithAlgorithm(algo))
	if err != nil {
		return nil, err
	}

	sink, err := openSink(ctx, cfg.Metrics)
	if err != nil {
		return nil, err
	}
	a.recorder = metrics.NewRecorder(sink, metrics.WithBuffer(cfg.Metrics.Buffer), metrics.WithLogger(logger))

	var exporter report.Exporter
	if s3 := cfg.Reports.S3; s3.Enabled {
		exp, err := report.NewS3Exporter(report.S3Config{
			Endpoint:  s3.Endpoint,
			Region:    s3.Region,
			AccessKey: s3.AccessKey,
			SecretKey: s3.SecretKey,
			Bucket:    s3.Bucket,
			UseSSL:    s3.UseSSL,
		})
		if err != nil {
			logger.WithField("event", "report_export_disabled").WithError(err).Warn("report export disabled")
		} else {
			exporter = exp
			logger.WithFields(log.Fields{"event": "report_export", "bucket": s3.Bucket, "endpoint": s3.Endpoint}).Info("report export enabled")
		}
	}

	orch, err := orchestrator.New(orchestrator.Config{
		Timeout:        cfg.DispatchTimeout,
		MaxPromptBytes: cfg.MaxPromptBytes,
	}, orchestrator.Deps{
		Limiter:    limiter,
		Router:     rt,
		Dispatcher: dispatch.New(registry, logger),
		Recorder:   a.recorder,
		Health:     health,
		Reports:    report.NewCache(cfg.Reports.CacheSize, cfg.Reports.CacheTTL),
		Exporter:   exporter,
		Logger:     logger,
	})
	if err != nil {
		_ = a.recorder.Close(ctx)
		return nil, err
	}
	a.orch = orch

	bg, stop := context.WithCancel(context.Background())
	a.stop = stop
	go limiter.RunJanitor(bg, cfg.RateWindow)

	if cfg.CatalogWatch && cfg.CatalogPath != "" {
		w, err := config.WatchCatalog(cfg.CatalogPath, a.applyCatalog, logger)
		if err != nil {
			logger.WithField("event", "catalog_watch_disabled").WithError(err).Warn("catalog hot reload disabled")
		} else {
			a.watcher = w
		}
	}

	nexusHandler := rpc.NewNexusHandler(orch, registry, health, rt)
	feedHandler := handler.NewMetricsFeedHandler(a.recorder)
	traceHandler := handler.NewTraceHandler(a.recorder)

	// Routing & Server
	a.handler = server.NewMux(nexusHandler, feedHandler, traceHandler, logger)
	a.server = server.New(cfg.Port, a.handler)

	logger.WithFields(log.Fields{
		"event":      "app_ready",
		"models":     len(catalog.Models),
		"metrics":    cfg.Metrics.Backend,
		"rate_limit": cfg.RateLimit,
		"window":     cfg.RateWindow.String(),
	}).Info("nexus wired")
	return a, nil
}

// registerModels adds every catalog model. Models whose provider needs a
// credential that is not configured start unavailable.
func (a *App) registerModels(c *config.Catalog) error {
	factory := clientFactory(a.cfg.Providers)
	for _, desc := range c.Models {
		if err := a.registry.RegisterModel(llm.ModelRegistration{Descriptor: desc, Factory: factory}); err != nil {
			return err
		}
		if needsKey(desc.Provider) && a.cfg.Providers.Key(desc.Provider) == "" {
			a.health.SetHealthy(desc.ID, false)
			log.WithFields(log.Fields{"event": "model_unavailable", "model": desc.ID, "provider": desc.Provider}).Warn("missing provider credentials")
		}
	}
	return nil
}

func (a *App) applyCatalog(c *config.Catalog) error {
	if err := a.registerModels(c); err != nil {
		return err
	}
	return a.router.Reload(c.Routes)
}

func openSink(ctx context.Context, cfg config.MetricsConfig) (metrics.Sink, error) {
	var (
		sink metrics.Sink
		err  error
	)
	switch cfg.Backend {
	case "memory":
		sink = metrics.NewMemorySink()
	case "csv":
		sink, err = metrics.NewCSVSink(cfg.CSVPath)
	case "sqlite":
		sink, err = metrics.NewSQLiteSink(cfg.SQLitePath)
	case "postgres":
		sink, err = metrics.NewPostgresSink(ctx, cfg.PostgresDSN)
	default:
		return nil, fmt.Errorf("unknown metrics backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s metrics store: %w", cfg.Backend, err)
	}
	log.WithFields(log.Fields{"event": "metrics_store", "backend": cfg.Backend}).Info("metrics store ready")
	return sink, nil
}

func (a *App) Handler() http.Handler { return a.handler }

func (a *App) Start() error {
	return a.server.Start()
}

func (a *App) Shutdown(ctx context.Context) error {
	errs := []error{a.server.Shutdown(ctx)}
	if a.watcher != nil {
		errs = append(errs, a.watcher.Close())
	}
	a.stop()
	errs = append(errs, a.orch.Close(ctx), a.recorder.Close(ctx), a.registry.Close())
	return errors.Join(errs...)
}
