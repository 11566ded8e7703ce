package app

import (
	"context"
	"os"
	"strings"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
)

func TestInitRuntimeDependencies_Memory(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "memory-storage"))
	require.NoError(t, err)
	require.NotNil(t, deps.store)
	require.NotNil(t, deps.closeFn)

	check := deps.storageChecker.Check(context.Background())
	require.Equal(t, health.StatusHealthy, check.Status)
}

func TestInitRuntimeDependencies_BacklogChecker(t *testing.T) {
	t.Parallel()

	deps, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverMemory,
	}, log.WithField("test", "backlog"))
	require.NoError(t, err)

	_, err = deps.store.Repos().Outbox.Enqueue(domain.OutboxMessage{
		ID:            "msg-1",
		AggregateType: domain.AggregateOrder,
		AggregateID:   "order-1",
		EventType:     string(domain.EventOrderCreated),
		Payload:       []byte(`{}`),
	})
	require.NoError(t, err)

	check := deps.backlogChecker.Check(context.Background())
	require.Equal(t, health.StatusHealthy, check.Status)
	require.Equal(t, "1 pending", check.Message)
}

func TestInitRuntimeDependencies_PostgresRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: StorageDriverPostgres,
	}, log.WithField("test", "postgres-missing-dsn"))
	require.ErrorContains(t, err, "postgres dsn is required")
}

func TestInitRuntimeDependencies_UnsupportedDriver(t *testing.T) {
	t.Parallel()

	_, err := initRuntimeDependencies(context.Background(), Config{
		StorageDriver: "sqlite",
	}, log.WithField("test", "unsupported-driver"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestInitRuntimeDependencies_PostgresSuccess(t *testing.T) {
	dsn := strings.TrimSpace(os.Getenv("MARKETPLACE_TEST_POSTGRES_DSN"))
	if dsn == "" {
		t.Skip("MARKETPLACE_TEST_POSTGRES_DSN is not set")
	}

	cfg := DefaultConfig()
	cfg.StorageDriver = StorageDriverPostgres
	cfg.PostgresDSN = dsn

	deps, err := initRuntimeDependencies(context.Background(), cfg, log.WithField("test", "postgres-init"))
	if err != nil {
		t.Skipf("postgres is not available for app integration test: %v", err)
	}
	defer func() { _ = deps.closeFn() }()

	check := deps.storageChecker.Check(context.Background())
	require.Equal(t, health.StatusHealthy, check.Status)
}
