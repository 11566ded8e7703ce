package app

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/postgres"
)

type runtimeDependencies struct {
	store          domain.Store
	storageChecker health.Checker
	backlogChecker health.Checker
	closeFn        func() error
}

// initRuntimeDependencies открывает хранилище по драйверу из конфигурации.
func initRuntimeDependencies(ctx context.Context, cfg Config, logger *log.Entry) (runtimeDependencies, error) {
	var store domain.Store
	switch cfg.StorageDriver {
	case StorageDriverMemory:
		store = memory.NewStore()
	case StorageDriverPostgres:
		if cfg.PostgresDSN == "" {
			return runtimeDependencies{}, fmt.Errorf("postgres dsn is required for postgres storage driver")
		}
		pg, err := postgres.Open(ctx, cfg.PostgresDSN)
		if err != nil {
			return runtimeDependencies{}, err
		}
		if cfg.PostgresAutoMigrate {
			if err := pg.EnsureSchema(ctx); err != nil {
				_ = pg.Close()
				return runtimeDependencies{}, fmt.Errorf("apply migrations: %w", err)
			}
		}
		store = pg
	default:
		return runtimeDependencies{}, fmt.Errorf("unsupported storage driver %q", cfg.StorageDriver)
	}

	logger.WithField("driver", cfg.StorageDriver).Info("storage initialized")
	return runtimeDependencies{
		store:          store,
		storageChecker: health.NewPingChecker(store.Ping),
		backlogChecker: health.NewBacklogChecker(outboxBacklog(store), cfg.OutboxMaxPendingAge),
		closeFn:        store.Close,
	}, nil
}

func outboxBacklog(store domain.Store) func() (health.Backlog, error) {
	return func() (health.Backlog, error) {
		stats, err := store.Repos().Outbox.Stats()
		if err != nil {
			return health.Backlog{}, err
		}
		backlog := health.Backlog{Pending: stats.PendingCount}
		if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
			backlog.OldestAge = time.Since(stats.OldestPendingAt)
		}
		return backlog, nil
	}
}
