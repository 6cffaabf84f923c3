package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/phrazzld/task-tracker/internal/config"
	"github.com/phrazzld/task-tracker/internal/platform/logger"
	"github.com/phrazzld/task-tracker/internal/platform/memory"
	"github.com/phrazzld/task-tracker/internal/platform/postgres"
	"github.com/phrazzld/task-tracker/internal/platform/sqlite"
	"github.com/phrazzld/task-tracker/internal/store"
)

// storage is the selected task store and the function that releases it.
type storage struct {
	tasks store.TaskStore
	close func() error
}

// openStorage opens the task store selected by cfg.Driver. SQLite always
// migrates on open; PostgreSQL migrates only with AutoMigrate.
func openStorage(ctx context.Context, cfg config.DatabaseConfig) (*storage, error) {
	log := logger.FromContext(ctx)

	switch cfg.Driver {
	case config.DriverMemory:
		log.Warn("using in-memory task storage; data is lost on exit")
		return &storage{tasks: memory.NewTaskStore(), close: func() error { return nil }}, nil

	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		log.Info("sqlite storage opened", slog.String("path", cfg.Path))
		return &storage{tasks: s, close: s.Close}, nil

	case config.DriverPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			if err := postgres.Migrate(ctx, db, postgres.MigrateUp); err != nil {
				_ = db.Close()
				return nil, fmt.Errorf("failed to apply migrations: %w", err)
			}
		}
		log.Info("database connection established")
		return &storage{tasks: postgres.NewPostgresTaskStore(db), close: db.Close}, nil

	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := postgres.Open(ctx, cfg.URL, postgres.PoolOptions{
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open postgres storage: %w", err)
	}
	return db, nil
}

// runMigrations executes a -migrate command. PostgreSQL supports every
// command; SQLite supports "up", which opening the store already performs.
func runMigrations(ctx context.Context, cfg config.DatabaseConfig, command string) error {
	log := logger.FromContext(ctx)
	log.Info("executing migrations", slog.String("command", command), slog.String("driver", cfg.Driver))

	switch cfg.Driver {
	case config.DriverPostgres:
		db, err := openPostgres(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()
		return postgres.Migrate(ctx, db, command)

	case config.DriverSQLite:
		if command != postgres.MigrateUp {
			return fmt.Errorf("migration command %q is not supported for the sqlite driver", command)
		}
		s, err := sqlite.Open(ctx, cfg.Path)
		if err != nil {
			return fmt.Errorf("failed to open sqlite storage: %w", err)
		}
		return s.Close()

	default:
		return fmt.Errorf("driver %q has no migrations", cfg.Driver)
	}
}
