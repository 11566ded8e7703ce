package kafka

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"
)

// MessageHandler обрабатывает сообщение из Kafka.
type MessageHandler func(ctx context.Context, message *sarama.ConsumerMessage) error

// ConsumerConfig описывает подписку consumer group.
type ConsumerConfig struct {
	Brokers    []string
	GroupID    string
	Topics     []string
	DLQTopic   string
	MaxRetries int
	RetryDelay time.Duration
}

// Consumer читает топики в составе consumer group. Сообщение, которое не удалось
// обработать за MaxRetries повторов, уходит в DLQ.
type Consumer struct {
	consumer    sarama.ConsumerGroup
	topics      []string
	handler     MessageHandler
	logger      *log.Entry
	wg          sync.WaitGroup
	dlqProducer *Producer
	dlqTopic    string
	maxRetries  int
	retryDelay  time.Duration
	now         func() time.Time
}

// NewConsumer создаёт consumer group. dlq может быть nil.
func NewConsumer(cfg ConsumerConfig, handler MessageHandler, dlq *Producer, logger *log.Entry) (*Consumer, error) {
	config := sarama.NewConfig()
	config.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}
	config.Consumer.Offsets.Initial = sarama.OffsetNewest
	config.Consumer.Return.Errors = true

	group, err := sarama.NewConsumerGroup(cfg.Brokers, cfg.GroupID, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create kafka consumer: %w", err)
	}
	return newConsumer(group, cfg, handler, dlq, logger), nil
}

func newConsumer(group sarama.ConsumerGroup, cfg ConsumerConfig, handler MessageHandler, dlq *Producer, logger *log.Entry) *Consumer {
	if logger == nil {
		logger = log.WithField("component", "kafka-consumer")
	}
	if cfg.DLQTopic == "" {
		cfg.DLQTopic = TopicDeadLetterQueue
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	return &Consumer{
		consumer:    group,
		topics:      cfg.Topics,
		handler:     handler,
		logger:      logger,
		dlqProducer: dlq,
		dlqTopic:    cfg.DLQTopic,
		maxRetries:  cfg.MaxRetries,
		retryDelay:  cfg.RetryDelay,
		now:         time.Now,
	}
}

// Start запускает чтение в фоне и возвращается сразу.
func (c *Consumer) Start(ctx context.Context) error {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for {
			// Consume завершается при каждом rebalance.
			if err := c.consumer.Consume(ctx, c.topics, c); err != nil {
				if errors.Is(err, sarama.ErrClosedConsumerGroup) {
					return
				}
				c.logger.WithError(err).Error("error from consumer")
			}
			if ctx.Err() != nil {
				return
			}
		}
	}()

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		for err := range c.consumer.Errors() {
			c.logger.WithError(err).Error("consumer error")
		}
	}()

	c.logger.WithField("topics", c.topics).Info("kafka consumer started")
	return nil
}

// Stop закрывает consumer group и ждёт фоновые горутины.
func (c *Consumer) Stop() error {
	if err := c.consumer.Close(); err != nil {
		return fmt.Errorf("failed to close kafka consumer: %w", err)
	}
	c.wg.Wait()
	c.logger.Info("kafka consumer stopped")
	return nil
}

// Setup вызывается при старте сессии.
func (c *Consumer) Setup(sarama.ConsumerGroupSession) error {
	return nil
}

// Cleanup вызывается при завершении сессии.
func (c *Consumer) Cleanup(sarama.ConsumerGroupSession) error {
	return nil
}

// ConsumeClaim обрабатывает сообщения партиции.
func (c *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case message, ok := <-claim.Messages():
			if !ok || message == nil {
				return nil
			}
			fields := log.Fields{
				"topic":     message.Topic,
				"partition": message.Partition,
				"offset":    message.Offset,
			}
			c.logger.WithFields(fields).Debug("received message")

			if err := c.handleMessageWithRetry(session.Context(), message); err != nil {
				// Не маркируем: сообщение перечитается после перезапуска.
				c.logger.WithError(err).WithFields(fields).Error("message processing failed")
				continue
			}
			session.MarkMessage(message, "")

		case <-session.Context().Done():
			return nil
		}
	}
}

// handleMessageWithRetry вызывает handler, пока не исчерпан бюджет повторов.
// Уже сделанные попытки берутся из заголовка x-retry-count. Ошибки
// ErrMalformedMessage не повторяются.
func (c *Consumer) handleMessageWithRetry(ctx context.Context, message *sarama.ConsumerMessage) error {
	attempt := c.getRetryCount(message)
	delay := c.retryDelay

	var err error
	for {
		err = c.handler(ctx, message)
		if err == nil {
			return nil
		}
		if errors.Is(err, ErrMalformedMessage) || attempt >= c.maxRetries {
			break
		}
		attempt++

		c.logger.WithError(err).WithFields(log.Fields{
			"topic":       message.Topic,
			"retry_count": attempt,
			"max_retries": c.maxRetries,
		}).Warn("message processing failed, retrying")

		if delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			delay *= 2
		}
	}

	if c.dlqProducer == nil {
		return err
	}
	if dlqErr := c.sendToDLQ(message, err, attempt); dlqErr != nil {
		return fmt.Errorf("failed to send to DLQ: %w", dlqErr)
	}
	c.logger.WithFields(log.Fields{
		"topic":       message.Topic,
		"retry_count": attempt,
	}).Warn("message sent to DLQ")
	return nil
}

func (c *Consumer) getRetryCount(message *sarama.ConsumerMessage) int {
	for _, h := range message.Headers {
		if h == nil || string(h.Key) != HeaderRetryCount {
			continue
		}
		if count, err := strconv.Atoi(string(h.Value)); err == nil && count >= 0 {
			return count
		}
	}
	return 0
}

func (c *Consumer) sendToDLQ(message *sarama.ConsumerMessage, processingErr error, retries int) error {
	record := ConsumerDLQRecord{
		OriginalTopic:     message.Topic,
		OriginalPartition: message.Partition,
		OriginalOffset:    message.Offset,
		OriginalKey:       string(message.Key),
		OriginalValue:     string(message.Value),
		ErrorMessage:      processingErr.Error(),
		FailedAt:          c.now().UTC(),
		RetryCount:        retries,
	}
	return c.dlqProducer.PublishEvent(c.dlqTopic, string(message.Key), record,
		header(HeaderOriginalTopic, message.Topic),
		header(HeaderRetryCount, strconv.Itoa(retries)),
		header(HeaderErrorMessage, processingErr.Error()),
	)
}
