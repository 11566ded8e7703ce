package kafka

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/stretchr/testify/require"
)

func TestExtractReplayConsumerRecord(t *testing.T) {
	raw, err := json.Marshal(ConsumerDLQRecord{
		OriginalTopic: "marketplace.custom",
		OriginalKey:   "order-1",
		OriginalValue: `{"id":"evt-1"}`,
	})
	require.NoError(t, err)

	got, ok, err := ExtractReplay(&sarama.ConsumerMessage{Value: raw}, TopicEvents, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "marketplace.custom", got.Topic)
	require.Equal(t, "order-1", got.Key)
	require.Equal(t, `{"id":"evt-1"}`, string(got.Value))
}

func TestExtractReplayConsumerRecordDefaultTopic(t *testing.T) {
	raw, err := json.Marshal(ConsumerDLQRecord{OriginalValue: `{}`})
	require.NoError(t, err)

	got, ok, err := ExtractReplay(&sarama.ConsumerMessage{Value: raw}, TopicEvents, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TopicEvents, got.Topic)
}

func TestExtractReplayOutboxRecord(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	raw := []byte(`{
		"id": "outbox-1",
		"aggregate_type": "order",
		"aggregate_id": "order-1",
		"event_type": "order.shipped",
		"payload": {
			"outbox_id": "outbox-1",
			"event_type": "order.shipped",
			"payload": {"status": "shipped"},
			"publish_error": "timeout"
		}
	}`)

	got, ok, err := ExtractReplay(&sarama.ConsumerMessage{Value: raw}, TopicEvents, now)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, TopicEvents, got.Topic)
	require.Equal(t, "order-1", got.Key)

	var env Envelope
	require.NoError(t, json.Unmarshal(got.Value, &env))
	require.Equal(t, "outbox-1", env.ID)
	require.Equal(t, "order", env.AggregateType)
	require.Equal(t, "order.shipped", env.EventType)
	require.JSONEq(t, `{"status":"shipped"}`, string(env.Payload))
	require.True(t, env.PublishedAt.Equal(now))
}

func TestExtractReplayOutboxRecordHonorsOriginalTopicHeader(t *testing.T) {
	raw := []byte(`{"id":"outbox-2","aggregate_id":"order-2","event_type":"order.delivered",` +
		`"payload":{"outbox_id":"outbox-2","payload":{"status":"delivered"}}}`)
	msg := &sarama.ConsumerMessage{
		Value:   raw,
		Headers: []*sarama.RecordHeader{{Key: []byte(HeaderOriginalTopic), Value: []byte("custom.events")}},
	}

	got, ok, err := ExtractReplay(msg, TopicEvents, time.Now())
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "custom.events", got.Topic)
	require.Equal(t, "order-2", got.Key)
}

func TestExtractReplayOutboxRecordWithoutPayload(t *testing.T) {
	raw := []byte(`{"id":"outbox-1","event_type":"order.shipped","payload":{"outbox_id":"outbox-1"}}`)

	_, ok, err := ExtractReplay(&sarama.ConsumerMessage{Value: raw}, TopicEvents, time.Now())
	require.Error(t, err)
	require.False(t, ok)
}

func TestExtractReplaySkipsUnknown(t *testing.T) {
	for _, value := range []string{`{"foo":"bar"}`, `garbage`} {
		_, ok, err := ExtractReplay(&sarama.ConsumerMessage{Value: []byte(value)}, TopicEvents, time.Now())
		require.NoError(t, err)
		require.False(t, ok)
	}
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "x", firstNonEmpty("", "  ", "x", "y"))
	require.Empty(t, firstNonEmpty("", " "))
}
