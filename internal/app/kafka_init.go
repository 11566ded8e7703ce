package app

import (
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
)

const (
	producerClientID = "marketplace"

	breakerMaxFailures  = 5
	breakerResetTimeout = 30 * time.Second
)

// initKafkaProducer подключается к брокерам. Пустой список брокеров — (nil, nil).
func initKafkaProducer(brokers []string, logger *log.Entry) (*kafka.Producer, error) {
	if len(brokers) == 0 {
		return nil, nil
	}

	producer, err := kafka.NewProducer(brokers, producerClientID)
	if err != nil {
		return nil, err
	}
	logger.WithField("brokers", brokers).Info("kafka producer initialized")
	return producer, nil
}

// outboxPublishers возвращает паблишеры событий и DLQ для outbox worker.
// Без producer оба nil, и worker только проецирует уведомления.
// Публикация событий идёт через circuit breaker.
func outboxPublishers(producer *kafka.Producer, cfg Config, logger *log.Entry) (events, dlq domain.OutboxPublisher) {
	if producer == nil {
		return nil, nil
	}
	breaker := retry.NewCircuitBreaker(breakerMaxFailures, breakerResetTimeout, logger.WithField("component", "kafka-breaker"))
	events = outbox.NewBreakerPublisher(kafka.NewOutboxPublisher(producer, cfg.KafkaTopic), breaker)
	return events, kafka.NewDeadLetterPublisher(producer, cfg.KafkaDLQTopic, cfg.KafkaTopic)
}

// initActivityConsumer подписывается на топик событий, если задана consumer group.
func initActivityConsumer(cfg Config, producer *kafka.Producer, m *metrics.Metrics, logger *log.Entry) (*kafka.Consumer, error) {
	if producer == nil || cfg.KafkaConsumerGroup == "" {
		return nil, nil
	}
	return kafka.NewConsumer(kafka.ConsumerConfig{
		Brokers:    cfg.KafkaBrokers,
		GroupID:    cfg.KafkaConsumerGroup,
		Topics:     []string{cfg.KafkaTopic},
		DLQTopic:   cfg.KafkaDLQTopic,
		MaxRetries: 3,
		RetryDelay: 200 * time.Millisecond,
	}, kafka.NewActivityHandler(m, logger.WithField("component", "activity-consumer")), producer, logger.WithField("component", "kafka-consumer"))
}

// closeKafkaProducer закрывает producer, если он есть.
func closeKafkaProducer(producer *kafka.Producer, logger *log.Entry) {
	if producer == nil {
		return
	}
	if err := producer.Close(); err != nil {
		logger.WithError(err).Warn("failed to close kafka producer")
		return
	}
	logger.Info("kafka producer closed")
}
