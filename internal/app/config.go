package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

// Драйверы хранилища.
const (
	StorageDriverMemory   = "memory"
	StorageDriverPostgres = "postgres"
)

// Config описывает настройки запуска приложения.
type Config struct {
	HTTPAddr    string
	GRPCAddr    string
	MetricsAddr string

	StorageDriver       string
	PostgresDSN         string
	PostgresAutoMigrate bool

	// RedisAddr пустой — кэши выключены.
	RedisAddr string

	// KafkaBrokers пустой — события не публикуются в брокер.
	KafkaBrokers       []string
	KafkaTopic         string
	KafkaDLQTopic      string
	KafkaConsumerGroup string

	OutboxPollInterval time.Duration
	OutboxBatchSize    int
	OutboxMaxAttempts  int
	OutboxRetryDelay   time.Duration
	// OutboxMaxPendingAge — возраст очереди, после которого health отдаёт degraded.
	OutboxMaxPendingAge time.Duration

	JWTSecret      string
	RequestTimeout time.Duration

	IdempotencyTTL              time.Duration
	IdempotencyCleanupInterval  time.Duration
	IdempotencyCleanupBatchSize int

	AdminUsername string
	AdminEmail    string

	ShutdownTimeout time.Duration
	LogLevel        string
}

// DefaultConfig возвращает настройки для локального запуска на памяти.
func DefaultConfig() Config {
	return Config{
		HTTPAddr:    ":8080",
		GRPCAddr:    ":50051",
		MetricsAddr: ":9090",

		StorageDriver:       StorageDriverMemory,
		PostgresAutoMigrate: true,

		KafkaTopic:    kafka.TopicEvents,
		KafkaDLQTopic: kafka.TopicDeadLetterQueue,

		OutboxPollInterval:  time.Second,
		OutboxBatchSize:     100,
		OutboxMaxAttempts:   3,
		OutboxRetryDelay:    100 * time.Millisecond,
		OutboxMaxPendingAge: 5 * time.Minute,

		RequestTimeout: 15 * time.Second,

		IdempotencyTTL:              24 * time.Hour,
		IdempotencyCleanupInterval:  10 * time.Minute,
		IdempotencyCleanupBatchSize: 500,

		ShutdownTimeout: 10 * time.Second,
		LogLevel:        "info",
	}
}

// Validate проверяет согласованность настроек.
func (c Config) Validate() error {
	var errs []error
	switch c.StorageDriver {
	case StorageDriverMemory:
	case StorageDriverPostgres:
		if strings.TrimSpace(c.PostgresDSN) == "" {
			errs = append(errs, errors.New("postgres dsn is required for postgres storage driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported storage driver %q", c.StorageDriver))
	}
	if strings.TrimSpace(c.JWTSecret) == "" {
		errs = append(errs, errors.New("jwt secret is required"))
	}
	if len(c.KafkaBrokers) > 0 && strings.TrimSpace(c.KafkaTopic) == "" {
		errs = append(errs, errors.New("kafka topic is required when brokers are set"))
	}

	positive := []struct {
		name  string
		value time.Duration
	}{
		{"outbox poll interval", c.OutboxPollInterval},
		{"request timeout", c.RequestTimeout},
		{"idempotency ttl", c.IdempotencyTTL},
		{"idempotency cleanup interval", c.IdempotencyCleanupInterval},
		{"shutdown timeout", c.ShutdownTimeout},
	}
	for _, p := range positive {
		if p.value <= 0 {
			errs = append(errs, fmt.Errorf("%s must be > 0", p.name))
		}
	}
	if c.OutboxRetryDelay < 0 {
		errs = append(errs, errors.New("outbox retry delay must be >= 0"))
	}
	if c.OutboxBatchSize <= 0 {
		errs = append(errs, errors.New("outbox batch size must be > 0"))
	}
	if c.OutboxMaxAttempts <= 0 {
		errs = append(errs, errors.New("outbox max attempts must be > 0"))
	}
	if c.IdempotencyCleanupBatchSize <= 0 {
		errs = append(errs, errors.New("idempotency cleanup batch size must be > 0"))
	}
	if (c.AdminUsername == "") != (c.AdminEmail == "") {
		errs = append(errs, errors.New("admin username and email must be set together"))
	}
	return errors.Join(errs...)
}
