package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Iron-Ham/planningpoker/internal/bus"
	"github.com/Iron-Ham/planningpoker/internal/config"
	"github.com/Iron-Ham/planningpoker/internal/logging"
	"github.com/Iron-Ham/planningpoker/internal/storage"
	"github.com/Iron-Ham/planningpoker/internal/storage/postgres"
)

// backend bundles the storage of a command and what it holds open.
type backend struct {
	storage storage.Storage
	pool    *pgxpool.Pool
}

func (b *backend) Close() {
	if b.pool != nil {
		b.pool.Close()
	}
}

func newLogger(cfg *config.Config) (*logging.Logger, error) {
	return logging.NewLogger(logging.Options{
		Dir:    cfg.Logging.Dir,
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
}

// openBackend opens the configured storage. The postgres driver also runs
// migrations when enabled and keeps the pool for the node bus.
func openBackend(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*backend, error) {
	switch cfg.Storage.Driver {
	case "memory":
		return &backend{storage: storage.NewMemory()}, nil
	case "file":
		if err := os.MkdirAll(cfg.Storage.Dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
		return &backend{storage: storage.NewFileStore(cfg.Storage.Dir)}, nil
	case "postgres":
		if cfg.Storage.Migrate {
			if err := postgres.Migrate(cfg.Storage.DSN); err != nil {
				return nil, err
			}
			logger.Info("database migrations applied")
		}
		pool, err := pgxpool.New(ctx, cfg.Storage.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to create connection pool: %w", err)
		}
		if err := pool.Ping(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("failed to reach database: %w", err)
		}
		return &backend{storage: postgres.New(pool), pool: pool}, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// openBus returns the node bus for the cluster.
func openBus(ctx context.Context, cfg *config.Config, b *backend, logger *logging.Logger) (bus.Bus, error) {
	switch cfg.Cluster.Bus {
	case "memory":
		return bus.NewMemoryHub().Connect(), nil
	case "postgres":
		pool := b.pool
		if pool == nil {
			// The bus parks oversized payloads in a table of the schema.
			if cfg.Storage.Migrate {
				if err := postgres.Migrate(cfg.Storage.DSN); err != nil {
					return nil, err
				}
			}
			var err error
			pool, err = pgxpool.New(ctx, cfg.Storage.DSN)
			if err != nil {
				return nil, fmt.Errorf("failed to create bus connection pool: %w", err)
			}
			b.pool = pool
		}
		return bus.NewPostgresBus(pool,
			bus.WithChannel(cfg.Cluster.Channel),
			bus.WithBusLogger(logger),
		), nil
	default:
		return nil, fmt.Errorf("unknown cluster bus %q", cfg.Cluster.Bus)
	}
}
