package kafka

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Топики по умолчанию.
const (
	TopicEvents          = "marketplace.events"
	TopicDeadLetterQueue = "marketplace.dlq"
)

// Заголовки сообщений
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderEventType     = "x-event-type"
	HeaderAggregateType = "x-aggregate-type"
	HeaderOutboxID      = "x-outbox-id"
)

// ErrMalformedMessage помечает сообщение, которое нельзя обработать ни с какой попытки.
var ErrMalformedMessage = errors.New("malformed kafka message")

// Envelope — формат события outbox в топике событий.
type Envelope struct {
	ID            string          `json:"id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishedAt   time.Time       `json:"published_at"`
}

// NewEnvelope оборачивает сообщение outbox.
func NewEnvelope(msg domain.OutboxMessage, at time.Time) Envelope {
	return Envelope{
		ID:            msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       json.RawMessage(msg.Payload),
		PublishedAt:   at.UTC(),
	}
}

// Key возвращает ключ партиционирования: события одного агрегата идут в одну партицию.
func (e Envelope) Key() string {
	if e.AggregateID != "" {
		return e.AggregateID
	}
	return e.ID
}

// DomainEvent декодирует полезную нагрузку доменного события.
// Для notification.requested возвращает false.
func (e Envelope) DomainEvent() (domain.DomainEvent, bool, error) {
	if e.EventType == string(domain.EventNotificationRequested) {
		return domain.DomainEvent{}, false, nil
	}
	var event domain.DomainEvent
	if err := json.Unmarshal(e.Payload, &event); err != nil {
		return domain.DomainEvent{}, true, fmt.Errorf("%w: decode %s payload: %v", ErrMalformedMessage, e.EventType, err)
	}
	return event, true, nil
}

// ParseEnvelope разбирает Envelope из сообщения Kafka.
func ParseEnvelope(message *sarama.ConsumerMessage) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(message.Value, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: unmarshal envelope: %v", ErrMalformedMessage, err)
	}
	if strings.TrimSpace(env.EventType) == "" {
		return Envelope{}, fmt.Errorf("%w: envelope without event_type", ErrMalformedMessage)
	}
	return env, nil
}

// ConsumerDLQRecord — запись consumer-а в DLQ после исчерпания попыток.
type ConsumerDLQRecord struct {
	OriginalTopic     string    `json:"original_topic"`
	OriginalPartition int32     `json:"original_partition"`
	OriginalOffset    int64     `json:"original_offset"`
	OriginalKey       string    `json:"original_key"`
	OriginalValue     string    `json:"original_value"`
	ErrorMessage      string    `json:"error_message"`
	FailedAt          time.Time `json:"failed_at"`
	RetryCount        int       `json:"retry_count"`
}

// OutboxDLQRecord — payload, который outbox worker кладёт в DLQ.
type OutboxDLQRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
}
