package kafka

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
)

// Replay — сообщение DLQ, подготовленное к повторной публикации.
type Replay struct {
	Topic string
	Key   string
	Value []byte
}

// ExtractReplay восстанавливает исходное сообщение из записи DLQ.
// Поддерживаются записи consumer-а и outbox worker-а. ok=false означает, что
// запись не содержит исходного события и пропускается.
func ExtractReplay(msg *sarama.ConsumerMessage, defaultTopic string, now time.Time) (Replay, bool, error) {
	var consumerRecord ConsumerDLQRecord
	if err := json.Unmarshal(msg.Value, &consumerRecord); err == nil && consumerRecord.OriginalValue != "" {
		topic := strings.TrimSpace(consumerRecord.OriginalTopic)
		if topic == "" {
			topic = defaultTopic
		}
		return Replay{
			Topic: topic,
			Key:   consumerRecord.OriginalKey,
			Value: []byte(consumerRecord.OriginalValue),
		}, true, nil
	}

	var env Envelope
	if err := json.Unmarshal(msg.Value, &env); err != nil || len(env.Payload) == 0 {
		return Replay{}, false, nil
	}

	var outboxRecord OutboxDLQRecord
	if err := json.Unmarshal(env.Payload, &outboxRecord); err != nil {
		return Replay{}, false, fmt.Errorf("decode outbox dlq payload: %w", err)
	}
	if len(outboxRecord.Payload) == 0 {
		return Replay{}, false, fmt.Errorf("outbox dlq payload does not contain original event payload")
	}

	replay := Envelope{
		ID:            firstNonEmpty(outboxRecord.OutboxID, env.ID),
		AggregateType: firstNonEmpty(outboxRecord.AggregateType, env.AggregateType),
		AggregateID:   firstNonEmpty(outboxRecord.AggregateID, env.AggregateID),
		EventType:     firstNonEmpty(outboxRecord.EventType, env.EventType),
		Payload:       outboxRecord.Payload,
		PublishedAt:   now.UTC(),
	}
	encoded, err := json.Marshal(replay)
	if err != nil {
		return Replay{}, false, fmt.Errorf("encode replay envelope: %w", err)
	}
	topic := headerValue(msg, HeaderOriginalTopic)
	if topic == "" {
		topic = defaultTopic
	}
	return Replay{Topic: topic, Key: replay.Key(), Value: encoded}, true, nil
}

func headerValue(msg *sarama.ConsumerMessage, key string) string {
	for _, h := range msg.Headers {
		if h != nil && string(h.Key) == key {
			return strings.TrimSpace(string(h.Value))
		}
	}
	return ""
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
