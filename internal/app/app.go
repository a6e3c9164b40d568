// Package app provides application initialization and wiring.
package app

import (
	"context"
	"fmt"
	"log/slog"

	httpAdapter "github.com/ambrazasp/geofields/internal/adapters/http"
	"github.com/ambrazasp/geofields/internal/adapters/metrics"
	"github.com/ambrazasp/geofields/internal/adapters/schema"
	"github.com/ambrazasp/geofields/internal/adapters/sqldb"
	"github.com/ambrazasp/geofields/internal/application"
	"github.com/ambrazasp/geofields/internal/config"
	"github.com/ambrazasp/geofields/internal/ports/output"
	"github.com/ambrazasp/geofields/internal/sqlfrag"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	DB            *sqldb.DB
	Registry      *application.ServiceRegistry
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	Metrics       *metrics.Collector
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("geofields")
		metricsCollector = app.Metrics
	}

	// Load service declarations
	services, err := schema.LoadFile(cfg.Schema.Path, cfg.Geometry.DefaultSRID)
	if err != nil {
		return nil, fmt.Errorf("loading schema: %w", err)
	}

	// Connect to the spatial database
	db, err := sqldb.Open(ctx, sqldb.Config{
		Driver:          cfg.Database.Driver,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		MaxIdleConns:    cfg.Database.MaxIdleConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("connecting database: %w", err)
	}
	app.DB = db

	// Initialize services
	app.Registry, err = BuildRegistry(services, db, db.Builder(), cfg.Geometry.CacheSize, metricsCollector, logger)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	// Initialize health service
	app.HealthService = application.NewHealthService(app.Registry, db)

	// Initialize HTTP server
	app.HTTPServer = httpAdapter.NewServer(
		cfg.Server,
		app.Registry,
		app.HealthService,
		logger,
	)
	if app.Metrics != nil {
		app.HTTPServer.MountMetrics(cfg.Metrics.Path, metrics.Handler(), app.Metrics.Middleware)
	}

	return app, nil
}

// BuildRegistry binds every declared service and registers it. All services
// share one normalizer and with it one normalization cache.
func BuildRegistry(
	services []application.ServiceConfig,
	db output.Database,
	builder sqlfrag.Builder,
	cacheSize int,
	metricsCollector output.MetricsCollector,
	logger *slog.Logger,
) (*application.ServiceRegistry, error) {
	normalizer, err := application.NewNormalizer(db, builder, cacheSize, metricsCollector, logger)
	if err != nil {
		return nil, err
	}

	registry := application.NewServiceRegistry(metricsCollector, logger)
	for _, cfg := range services {
		if cfg.Methods == nil {
			cfg.Methods = Methods()
		}
		svc, err := application.NewService(cfg, db, builder, normalizer, metricsCollector, logger.With("service", cfg.Name))
		if err != nil {
			return nil, fmt.Errorf("binding service %s: %w", cfg.Name, err)
		}
		if err := registry.Register(svc); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// Methods returns the validation methods schema fields may name.
func Methods() map[string]application.ValidateFunc {
	return map[string]application.ValidateFunc{
		"geometry": application.ValidateGeometry,
		"required": requireGeometry,
	}
}

// requireGeometry applies the default rules and additionally rejects an
// empty value even when the field is not declared required.
func requireGeometry(ctx context.Context, p application.ValidateParams) (bool, string) {
	if p.Field != nil && p.Field.Geom != nil && !p.Field.Geom.Required {
		f := *p.Field
		g := *f.Geom
		g.Required = true
		f.Geom = &g
		p.Field = &f
	}
	return application.ValidateGeometry(ctx, p)
}

// Start starts all application components.
func (a *App) Start(_ context.Context) error {
	a.Logger.Info("services ready", "count", a.Registry.ServiceCount())
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if err := a.HTTPServer.Shutdown(ctx); err != nil {
		a.Logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := a.DB.Close(); err != nil {
		a.Logger.Error("database close error", "error", err)
		return err
	}

	return nil
}
