package kafka

import (
	"context"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// NewActivityHandler возвращает handler, который учитывает события площадки
// по типам. Сообщения без корректного envelope уходят в DLQ без повторов.
func NewActivityHandler(m *metrics.Metrics, logger *log.Entry) MessageHandler {
	if logger == nil {
		logger = log.WithField("component", "activity-consumer")
	}
	return func(_ context.Context, message *sarama.ConsumerMessage) error {
		env, err := ParseEnvelope(message)
		if err != nil {
			return err
		}
		event, isDomain, err := env.DomainEvent()
		if err != nil {
			return err
		}

		m.RecordEventConsumed(env.EventType)

		entry := logger.WithFields(log.Fields{
			"event_type":   env.EventType,
			"aggregate":    env.AggregateType,
			"aggregate_id": env.AggregateID,
			"outbox_id":    env.ID,
		})
		if isDomain {
			entry = entry.WithFields(log.Fields{
				"actor_id": event.ActorID,
				"status":   event.Status,
			})
		}
		entry.Debug("event consumed")
		return nil
	}
}
