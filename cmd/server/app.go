package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/task-tracker/internal/cache"
	"github.com/phrazzld/task-tracker/internal/config"
	"github.com/phrazzld/task-tracker/internal/platform/telemetry"
	"github.com/phrazzld/task-tracker/internal/redact"
	"github.com/phrazzld/task-tracker/internal/service"
	"go.opentelemetry.io/otel"
)

const instrumentationName = "github.com/phrazzld/task-tracker"

// application holds all the shared application dependencies to simplify management
// and ensure proper cleanup on shutdown.
type application struct {
	config *config.Config
	logger *slog.Logger

	storage     *storage
	memoryCache *cache.MemoryCache
	taskService service.TaskService
}

// newApplication opens storage, builds the cache and the task service.
func newApplication(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*application, error) {
	app := &application{
		config: cfg,
		logger: logger,
	}

	var err error
	app.storage, err = openStorage(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	var taskCache cache.Cache = cache.Disabled{}
	if cfg.Cache.Enabled {
		app.memoryCache, err = cache.NewMemoryCache(cache.MemoryOptions{MaxEntries: cfg.Cache.MaxEntries})
		if err != nil {
			app.cleanup()
			return nil, fmt.Errorf("failed to create task cache: %w", err)
		}
		taskCache = app.memoryCache
		logger.Info("task cache enabled",
			slog.Int64("max_entries", cfg.Cache.MaxEntries),
			slog.Duration("item_ttl", cfg.Cache.ItemTTL),
			slog.Duration("search_ttl", cfg.Cache.SearchTTL))
	}

	metrics, err := telemetry.NewCacheMetrics(otel.Meter(instrumentationName))
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create cache metrics: %w", err)
	}

	app.taskService, err = service.NewTaskService(
		app.storage.tasks,
		taskCache,
		metrics,
		logger,
		service.WithCacheTTLs(cfg.Cache.ItemTTL, cfg.Cache.SearchTTL),
	)
	if err != nil {
		app.cleanup()
		return nil, fmt.Errorf("failed to create task service: %w", err)
	}

	logger.Info("application initialized successfully")
	return app, nil
}

// Run serves HTTP until ctx is cancelled, then releases resources.
func (app *application) Run(ctx context.Context) error {
	defer app.cleanup()

	if err := app.startHTTPServer(ctx, app.setupRouter()); err != nil {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// cleanup handles graceful shutdown of application resources.
func (app *application) cleanup() {
	if app.memoryCache != nil {
		if err := app.memoryCache.Close(); err != nil {
			app.logger.Error("error closing task cache", redact.ErrorAttr(err))
		}
		app.memoryCache = nil
	}
	if app.storage != nil {
		if err := app.storage.close(); err != nil {
			app.logger.Error("error closing storage", redact.ErrorAttr(err))
		}
		app.storage = nil
	}
	app.logger.Info("application shutdown completed")
}
