// Команда marketplace запускает API площадки вместе с воркерами и ops-серверами.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/app"
	"github.com/vladislavdragonenkov/marketplace/internal/version"
)

const (
	envHTTPAddr                    = "MARKETPLACE_HTTP_ADDR"
	envGRPCAddr                    = "MARKETPLACE_GRPC_ADDR"
	envMetricsAddr                 = "MARKETPLACE_METRICS_ADDR"
	envStorageDriver               = "MARKETPLACE_STORAGE_DRIVER"
	envPostgresDSN                 = "MARKETPLACE_POSTGRES_DSN"
	envPostgresAutoMigrate         = "MARKETPLACE_POSTGRES_AUTO_MIGRATE"
	envRedisAddr                   = "MARKETPLACE_REDIS_ADDR"
	envKafkaBrokers                = "MARKETPLACE_KAFKA_BROKERS"
	envKafkaTopic                  = "MARKETPLACE_KAFKA_TOPIC"
	envKafkaDLQTopic               = "MARKETPLACE_KAFKA_DLQ_TOPIC"
	envKafkaConsumerGroup          = "MARKETPLACE_KAFKA_CONSUMER_GROUP"
	envOutboxPollInterval          = "MARKETPLACE_OUTBOX_POLL_INTERVAL"
	envOutboxBatchSize             = "MARKETPLACE_OUTBOX_BATCH_SIZE"
	envOutboxMaxAttempts           = "MARKETPLACE_OUTBOX_MAX_ATTEMPTS"
	envOutboxRetryDelay            = "MARKETPLACE_OUTBOX_RETRY_BASE_DELAY"
	envOutboxMaxPendingAge         = "MARKETPLACE_OUTBOX_MAX_PENDING_AGE"
	envJWTSecret                   = "MARKETPLACE_JWT_SECRET"
	envRequestTimeout              = "MARKETPLACE_REQUEST_TIMEOUT"
	envIdempotencyTTL              = "MARKETPLACE_IDEMPOTENCY_TTL"
	envIdempotencyCleanupInterval  = "MARKETPLACE_IDEMPOTENCY_CLEANUP_INTERVAL"
	envIdempotencyCleanupBatchSize = "MARKETPLACE_IDEMPOTENCY_CLEANUP_BATCH"
	envAdminUsername               = "MARKETPLACE_ADMIN_USERNAME"
	envAdminEmail                  = "MARKETPLACE_ADMIN_EMAIL"
	envShutdownTimeout             = "MARKETPLACE_SHUTDOWN_TIMEOUT"
	envLogLevel                    = "MARKETPLACE_LOG_LEVEL"
)

type envLookup func(key string) (string, bool)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(level string) error {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	lvl, err := log.ParseLevel(level)
	if err != nil {
		log.SetLevel(log.InfoLevel)
		return err
	}
	log.SetLevel(lvl)
	return nil
}

// readConfigFromEnv накладывает переменные окружения на DefaultConfig.
// Некорректное значение оставляет значение по умолчанию и даёт предупреждение.
func readConfigFromEnv(lookup envLookup) (app.Config, []error) {
	cfg := app.DefaultConfig()
	var warnings []error

	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	boolean := func(key string, dst *bool) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseBool(v)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	integer := func(key string, dst *int) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseInt(v, func(n int) bool { return n > 0 }, "must be > 0")
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	duration := func(key string, dst *time.Duration, valid func(time.Duration) bool, rule string) {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return
		}
		parsed, err := parseDuration(v, valid, rule)
		if err != nil {
			warnings = append(warnings, fmt.Errorf("%s: %w", key, err))
			return
		}
		*dst = parsed
	}
	positive := func(d time.Duration) bool { return d > 0 }
	nonNegative := func(d time.Duration) bool { return d >= 0 }

	str(envHTTPAddr, &cfg.HTTPAddr)
	str(envGRPCAddr, &cfg.GRPCAddr)
	str(envMetricsAddr, &cfg.MetricsAddr)
	str(envStorageDriver, &cfg.StorageDriver)
	cfg.StorageDriver = strings.ToLower(cfg.StorageDriver)
	str(envPostgresDSN, &cfg.PostgresDSN)
	boolean(envPostgresAutoMigrate, &cfg.PostgresAutoMigrate)
	str(envRedisAddr, &cfg.RedisAddr)

	if v, ok := lookup(envKafkaBrokers); ok {
		cfg.KafkaBrokers = parseList(v)
	}
	str(envKafkaTopic, &cfg.KafkaTopic)
	str(envKafkaDLQTopic, &cfg.KafkaDLQTopic)
	str(envKafkaConsumerGroup, &cfg.KafkaConsumerGroup)

	duration(envOutboxPollInterval, &cfg.OutboxPollInterval, positive, "must be > 0")
	integer(envOutboxBatchSize, &cfg.OutboxBatchSize)
	integer(envOutboxMaxAttempts, &cfg.OutboxMaxAttempts)
	duration(envOutboxRetryDelay, &cfg.OutboxRetryDelay, nonNegative, "must be >= 0")
	duration(envOutboxMaxPendingAge, &cfg.OutboxMaxPendingAge, nonNegative, "must be >= 0")

	str(envJWTSecret, &cfg.JWTSecret)
	duration(envRequestTimeout, &cfg.RequestTimeout, positive, "must be > 0")

	duration(envIdempotencyTTL, &cfg.IdempotencyTTL, positive, "must be > 0")
	duration(envIdempotencyCleanupInterval, &cfg.IdempotencyCleanupInterval, positive, "must be > 0")
	integer(envIdempotencyCleanupBatchSize, &cfg.IdempotencyCleanupBatchSize)

	str(envAdminUsername, &cfg.AdminUsername)
	str(envAdminEmail, &cfg.AdminEmail)
	duration(envShutdownTimeout, &cfg.ShutdownTimeout, positive, "must be > 0")
	str(envLogLevel, &cfg.LogLevel)

	return cfg, warnings
}

func parseBool(raw string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "1", "true", "yes", "on":
		return true, nil
	case "0", "false", "no", "off":
		return false, nil
	default:
		return false, fmt.Errorf("invalid boolean %q", raw)
	}
}

func parseInt(raw string, valid func(int) bool, rule string) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid integer %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%d %s", v, rule)
	}
	return v, nil
}

func parseDuration(raw string, valid func(time.Duration) bool, rule string) (time.Duration, error) {
	v, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid duration %q", raw)
	}
	if !valid(v) {
		return 0, fmt.Errorf("%s %s", v, rule)
	}
	return v, nil
}

func parseList(raw string) []string {
	var out []string
	for _, chunk := range strings.Split(raw, ",") {
		if item := strings.TrimSpace(chunk); item != "" {
			out = append(out, item)
		}
	}
	return out
}

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	cfg, warnings := readConfigFromEnv(os.LookupEnv)
	if err := setupLogger(cfg.LogLevel); err != nil {
		log.WithError(err).Warn("invalid log level, using info")
	}
	for _, w := range warnings {
		log.WithError(w).Warn("ignoring invalid environment value")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"version":      version.Get().String(),
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        len(cfg.KafkaBrokers) > 0,
		"redis":        cfg.RedisAddr != "",
	}).Info("запускаем marketplace")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("marketplace остановлен")
}
