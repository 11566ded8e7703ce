package app

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

func testBuild(t *testing.T, cfg Config) *application {
	t.Helper()
	a, err := build(context.Background(), cfg, metrics.NewWithRegisterer(prometheus.NewRegistry()), log.WithField("test", t.Name()))
	require.NoError(t, err)
	t.Cleanup(a.close)
	return a
}

func TestBuild_MemoryWiring(t *testing.T) {
	a := testBuild(t, validConfig())

	require.NotNil(t, a.api)
	require.NotNil(t, a.outbox)
	require.NotNil(t, a.cleanup)
	require.Nil(t, a.producer)
	require.Nil(t, a.consumer)

	report := a.health.Run(context.Background())
	require.Equal(t, health.StatusHealthy, report.Status)
	require.Contains(t, report.Checks, "storage")
	require.Contains(t, report.Checks, "outbox")
	require.NotContains(t, report.Checks, "redis")
}

func TestBuild_BootstrapAdmin(t *testing.T) {
	cfg := validConfig()
	cfg.AdminUsername = "root"
	cfg.AdminEmail = "root@example.com"
	a := testBuild(t, cfg)

	users, err := a.deps.store.Repos().Users.ListRecent(10)
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.Equal(t, "root", users[0].Username)
	require.True(t, users[0].IsAdmin())
}

func TestBuild_InvalidConfig(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = "invalid-driver"
	_, err := build(context.Background(), cfg, nil, log.WithField("test", "invalid"))
	require.ErrorContains(t, err, "unsupported storage driver")
}

func TestBuild_OutboxWorkerProjectsNotifications(t *testing.T) {
	a := testBuild(t, validConfig())

	draft := domain.NotificationDraft{RecipientID: "user-1", Type: domain.NotificationMessage, Title: "hello", Message: "world"}
	msg, err := domain.NewNotificationMessage(draft)
	require.NoError(t, err)
	_, err = a.deps.store.Repos().Outbox.Enqueue(msg)
	require.NoError(t, err)

	a.outbox.ProcessOnce(context.Background())

	items, err := a.deps.store.Repos().Notifications.List("user-1", false, 0)
	require.NoError(t, err)
	require.Len(t, items, 1)
}

func TestOpsMux(t *testing.T) {
	registry := health.NewRegistry("test")
	registry.Register("storage", health.NewPingChecker(func(context.Context) error { return errors.New("down") }))
	mux := opsMux(registry)

	cases := map[string]int{
		"/livez":   http.StatusOK,
		"/healthz": http.StatusServiceUnavailable,
		"/readyz":  http.StatusServiceUnavailable,
		"/metrics": http.StatusOK,
	}
	for path, want := range cases {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		require.Equal(t, want, rec.Code, path)
	}
}

func TestRun_MemoryGracefulShutdown(t *testing.T) {
	cfg := validConfig()
	cfg.HTTPAddr = "127.0.0.1:0"
	cfg.GRPCAddr = "127.0.0.1:0"
	cfg.MetricsAddr = "127.0.0.1:0"
	cfg.ShutdownTimeout = time.Second

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(150 * time.Millisecond)
		cancel()
	}()

	err := Run(ctx, cfg)
	require.ErrorIs(t, err, context.Canceled)
}

func TestRun_InvalidStorageDriver(t *testing.T) {
	cfg := validConfig()
	cfg.StorageDriver = "invalid-driver"

	err := Run(context.Background(), cfg)
	require.ErrorContains(t, err, "unsupported storage driver")
}
