// Package app собирает площадку из хранилища, сервисов, воркеров и серверов.
package app

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	promgrpc "github.com/grpc-ecosystem/go-grpc-prometheus"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	grpchealth "google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/admin"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/httpapi"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/identity"
	"github.com/vladislavdragonenkov/marketplace/internal/service/interaction"
	"github.com/vladislavdragonenkov/marketplace/internal/service/negotiation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const cacheKeyPrefix = "marketplace:"

// application — собранные компоненты до запуска серверов.
type application struct {
	cfg      Config
	logger   *log.Entry
	deps     runtimeDependencies
	health   *health.Registry
	api      *httpapi.API
	outbox   *outbox.Worker
	cleanup  *idempotency.CleanupWorker
	producer *kafka.Producer
	consumer *kafka.Consumer
	closers  []func() error
}

// build собирает приложение без открытия сетевых портов.
func build(ctx context.Context, cfg Config, m *metrics.Metrics, logger *log.Entry) (*application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	deps, err := initRuntimeDependencies(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	a := &application{cfg: cfg, logger: logger, deps: deps}
	a.closers = append(a.closers, deps.closeFn)

	a.health = health.NewRegistry(version.Get().Version)
	a.health.Register("storage", deps.storageChecker)
	a.health.Register("outbox", deps.backlogChecker)

	var (
		tracking cache.TrackingCache
		stats    cache.StatsCache
	)
	if client := cache.NewClient(cfg.RedisAddr); client != nil {
		store := cache.NewJSON(client, cacheKeyPrefix)
		tracking = cache.NewTrackingCache(store, cache.TTLTracking)
		stats = cache.NewStatsCache(store, cache.TTLDashboard)
		a.health.Register("redis", health.NewOptionalChecker(store.Ping))
		a.closers = append(a.closers, client.Close)
	}

	projector := outbox.NewNotificationProjector(deps.store, m)
	exec := outbox.NewExecutor(
		deps.store,
		retry.NewRunner(retry.DefaultConfig(), logger.WithField("component", "retry")),
		outbox.NewDispatcher(projector, logger.WithField("component", "outbox-dispatcher")),
		m,
	)

	services := httpapi.Services{
		Identity:    identity.NewService(exec, logger.WithField("component", "identity-service")),
		Catalog:     catalog.NewService(exec, logger.WithField("component", "catalog-service")),
		Negotiation: negotiation.NewService(exec, m, logger.WithField("component", "negotiation-service")),
		Transaction: transaction.NewService(exec, m, logger.WithField("component", "transaction-service"),
			transaction.WithIdempotency(idempotency.NewGuard(cfg.IdempotencyTTL)),
			transaction.WithTrackingCache(tracking),
		),
		Interaction: interaction.NewService(exec, logger.WithField("component", "interaction-service")),
		Admin:       admin.NewService(exec, stats, a.health, logger.WithField("component", "admin-service")),
	}
	a.api = httpapi.New(httpapi.Config{JWTSecret: cfg.JWTSecret, RequestTimeout: cfg.RequestTimeout}, services, m, logger.WithField("component", "http-api"))

	if cfg.AdminUsername != "" {
		if _, err := services.Identity.EnsureAdmin(ctx, cfg.AdminUsername, cfg.AdminEmail); err != nil {
			a.close()
			return nil, fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	a.producer, err = initKafkaProducer(cfg.KafkaBrokers, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create kafka producer, continuing without kafka")
	}
	events, dlq := outboxPublishers(a.producer, cfg, logger)
	a.outbox = outbox.NewWorker(deps.store.Repos().Outbox, events,
		outbox.WithLogger(logger.WithField("component", "outbox-worker")),
		outbox.WithMetrics(m),
		outbox.WithProjection(projector),
		outbox.WithDLQPublisher(dlq),
		outbox.WithPollInterval(cfg.OutboxPollInterval),
		outbox.WithBatchSize(cfg.OutboxBatchSize),
		outbox.WithMaxAttempts(cfg.OutboxMaxAttempts),
		outbox.WithRetryBaseDelay(cfg.OutboxRetryDelay),
	)

	a.cleanup = idempotency.NewCleanupWorker(deps.store.Repos().Idempotency,
		idempotency.WithLogger(logger.WithField("component", "idempotency-cleanup")),
		idempotency.WithMetrics(m),
		idempotency.WithInterval(cfg.IdempotencyCleanupInterval),
		idempotency.WithBatchSize(cfg.IdempotencyCleanupBatchSize),
	)

	a.consumer, err = initActivityConsumer(cfg, a.producer, m, logger)
	if err != nil {
		logger.WithError(err).Warn("failed to create activity consumer, continuing without it")
	}
	return a, nil
}

func (a *application) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if a.closers[i] == nil {
			continue
		}
		if err := a.closers[i](); err != nil {
			a.logger.WithError(err).Warn("failed to close dependency")
		}
	}
	a.closers = nil
}

// Run запускает HTTP API, gRPC health, сервер метрик и фоновые воркеры
// и блокируется до отмены ctx или падения сервера.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")
	m := metrics.New()

	a, err := build(ctx, cfg, m, logger)
	if err != nil {
		return err
	}
	defer a.close()

	workerCtx, cancelWorkers := context.WithCancel(ctx)
	var workers sync.WaitGroup
	startWorker := func(run func(context.Context)) {
		workers.Add(1)
		go func() {
			defer workers.Done()
			run(workerCtx)
		}()
	}
	startWorker(a.outbox.Run)
	startWorker(a.cleanup.Run)
	if a.consumer != nil {
		if err := a.consumer.Start(workerCtx); err != nil {
			logger.WithError(err).Warn("failed to start activity consumer")
			a.consumer = nil
		}
	}

	grpcServer, grpcHealth := newGRPCServer(logger)
	grpcLis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		cancelWorkers()
		workers.Wait()
		return fmt.Errorf("listen grpc: %w", err)
	}

	apiSrv := &http.Server{Addr: cfg.HTTPAddr, Handler: a.api.Router(), ReadHeaderTimeout: 5 * time.Second}
	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: opsMux(a.health), ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 3)
	go func() {
		logger.Infof("gRPC сервер слушает %s", grpcLis.Addr())
		errCh <- grpcServer.Serve(grpcLis)
	}()
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- serveHTTP(apiSrv)
	}()
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", cfg.MetricsAddr)
		errCh <- serveHTTP(metricsSrv)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем серверы")
		runErr = ctx.Err()
	case err := <-errCh:
		runErr = err
	}

	grpcHealth.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	shutdownHTTP(apiSrv, cfg.ShutdownTimeout, logger)
	stopGRPC(grpcServer, cfg.ShutdownTimeout, logger)
	shutdownHTTP(metricsSrv, cfg.ShutdownTimeout, logger)

	if a.consumer != nil {
		if err := a.consumer.Stop(); err != nil {
			logger.WithError(err).Warn("failed to stop activity consumer")
		}
	}
	cancelWorkers()
	workers.Wait()
	closeKafkaProducer(a.producer, logger)

	if errors.Is(runErr, grpc.ErrServerStopped) {
		return nil
	}
	return runErr
}

func serveHTTP(srv *http.Server) error {
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server %s: %w", srv.Addr, err)
	}
	return nil
}

// newGRPCServer создаёт gRPC-сервер с health, reflection и метриками.
func newGRPCServer(logger *log.Entry) (*grpc.Server, *grpchealth.Server) {
	grpcMetrics := promgrpc.NewServerMetrics()
	if err := prometheus.Register(grpcMetrics); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*promgrpc.ServerMetrics); ok {
				grpcMetrics = existing
			}
		} else {
			logger.WithError(err).Warn("failed to register grpc metrics")
		}
	}

	server := grpc.NewServer(
		grpc.ChainUnaryInterceptor(grpcMetrics.UnaryServerInterceptor()),
		grpc.ChainStreamInterceptor(grpcMetrics.StreamServerInterceptor()),
	)
	healthServer := grpchealth.NewServer()
	healthpb.RegisterHealthServer(server, healthServer)
	reflection.Register(server)
	grpcMetrics.InitializeMetrics(server)

	healthServer.SetServingStatus("", healthpb.HealthCheckResponse_SERVING)
	return server, healthServer
}

// opsMux отдаёт /metrics и пробы.
func opsMux(registry *health.Registry) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", registry)
	mux.HandleFunc("/livez", health.LivenessHandler)
	mux.HandleFunc("/readyz", registry.ReadinessHandler)
	return mux
}

func stopGRPC(server *grpc.Server, timeout time.Duration, logger *log.Entry) {
	stopped := make(chan struct{})
	go func() {
		server.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(timeout):
		logger.Warn("graceful stop превысил таймаут, принудительно останавливаем")
		server.Stop()
	}
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, timeout time.Duration, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).WithField("addr", srv.Addr).Warn("http shutdown with error")
	}
}
