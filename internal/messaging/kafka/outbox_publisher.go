package kafka

import (
	"errors"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

var errPublisherNotReady = errors.New("kafka outbox publisher is not initialized")

// OutboxTopicPublisher отправляет сообщения outbox в один topic в виде Envelope.
// Заголовки дублируют тип события и агрегата, чтобы consumer мог
// отфильтровать сообщение без разбора тела.
type OutboxTopicPublisher struct {
	producer    *Producer
	topic       string
	sourceTopic string
	now         func() time.Time
}

// NewOutboxPublisher создаёт паблишер топика событий. Пустой topic означает TopicEvents.
func NewOutboxPublisher(producer *Producer, topic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, now: time.Now}
}

// NewDeadLetterPublisher создаёт паблишер DLQ для outbox worker.
// Сообщения помечаются заголовком x-original-topic = sourceTopic,
// по нему dlq-reprocess выбирает, куда вернуть событие.
func NewDeadLetterPublisher(producer *Producer, topic, sourceTopic string) *OutboxTopicPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	if sourceTopic == "" {
		sourceTopic = TopicEvents
	}
	return &OutboxTopicPublisher{producer: producer, topic: topic, sourceTopic: sourceTopic, now: time.Now}
}

// Topic возвращает topic назначения.
func (p *OutboxTopicPublisher) Topic() string { return p.topic }

func (p *OutboxTopicPublisher) Publish(msg domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return errPublisherNotReady
	}
	envelope := NewEnvelope(msg, p.now())
	return p.producer.PublishEvent(p.topic, envelope.Key(), envelope, p.headers(msg)...)
}

func (p *OutboxTopicPublisher) headers(msg domain.OutboxMessage) []sarama.RecordHeader {
	headers := []sarama.RecordHeader{
		header(HeaderEventType, msg.EventType),
		header(HeaderOutboxID, msg.ID),
	}
	if msg.AggregateType != "" {
		headers = append(headers, header(HeaderAggregateType, msg.AggregateType))
	}
	if p.sourceTopic != "" {
		headers = append(headers, header(HeaderOriginalTopic, p.sourceTopic))
	}
	return headers
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)
