package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"io"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

type stubOffsetClient struct {
	partitions []int32
	oldest     int64
	newest     int64
	err        error
}

func (s *stubOffsetClient) GetOffset(_ string, _ int32, marker int64) (int64, error) {
	if s.err != nil {
		return 0, s.err
	}
	if marker == sarama.OffsetOldest {
		return s.oldest, nil
	}
	return s.newest, nil
}

func (s *stubOffsetClient) Partitions(string) ([]int32, error) { return s.partitions, nil }
func (s *stubOffsetClient) Close() error                       { return nil }

type stubPartitionConsumer struct {
	messages chan *sarama.ConsumerMessage
	errors   chan *sarama.ConsumerError
}

func (s *stubPartitionConsumer) AsyncClose()                              {}
func (s *stubPartitionConsumer) Close() error                             { return nil }
func (s *stubPartitionConsumer) Messages() <-chan *sarama.ConsumerMessage { return s.messages }
func (s *stubPartitionConsumer) Errors() <-chan *sarama.ConsumerError     { return s.errors }
func (s *stubPartitionConsumer) HighWaterMarkOffset() int64               { return 0 }
func (s *stubPartitionConsumer) Pause()                                   {}
func (s *stubPartitionConsumer) Resume()                                  {}
func (s *stubPartitionConsumer) IsPaused() bool                           { return false }

type stubSource struct {
	consumers   map[int32]*stubPartitionConsumer
	startOffset map[int32]int64
}

func (s *stubSource) ConsumePartition(_ string, partition int32, offset int64) (sarama.PartitionConsumer, error) {
	pc, ok := s.consumers[partition]
	if !ok {
		return nil, errors.New("unknown partition")
	}
	if s.startOffset == nil {
		s.startOffset = map[int32]int64{}
	}
	s.startOffset[partition] = offset
	return pc, nil
}

func (s *stubSource) Close() error { return nil }

func partitionWith(messages ...*sarama.ConsumerMessage) *stubPartitionConsumer {
	pc := &stubPartitionConsumer{
		messages: make(chan *sarama.ConsumerMessage, len(messages)),
		errors:   make(chan *sarama.ConsumerError),
	}
	for _, m := range messages {
		pc.messages <- m
	}
	return pc
}

func consumerRecord(t *testing.T, offset int64, value string) *sarama.ConsumerMessage {
	t.Helper()
	raw, err := json.Marshal(kafka.ConsumerDLQRecord{OriginalTopic: kafka.TopicEvents, OriginalKey: "order-1", OriginalValue: value})
	require.NoError(t, err)
	return &sarama.ConsumerMessage{Offset: offset, Value: raw}
}

func testConfig(execute bool) config {
	return config{
		brokers:     []string{"broker:9092"},
		sourceTopic: kafka.TopicDeadLetterQueue,
		targetTopic: kafka.TopicEvents,
		limit:       10,
		execute:     execute,
		idleTimeout: 50 * time.Millisecond,
	}
}

func TestParseBrokers(t *testing.T) {
	require.Equal(t, []string{"broker-1:9092", "broker-2:9092"}, parseBrokers(" broker-1:9092, ,broker-2:9092 "))
	require.Empty(t, parseBrokers(" , "))
}

func TestReadConfigFromFlags(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	cfg, err := readConfig(fs, []string{
		"-brokers=broker-1:9092,broker-2:9092",
		"-limit=10",
		"-execute",
		"-from-newest",
		"-idle-timeout=3s",
	})
	require.NoError(t, err)
	require.Len(t, cfg.brokers, 2)
	require.Equal(t, 10, cfg.limit)
	require.True(t, cfg.execute)
	require.True(t, cfg.fromNewest)
	require.Equal(t, 3*time.Second, cfg.idleTimeout)
	require.Equal(t, kafka.TopicDeadLetterQueue, cfg.sourceTopic)
	require.Equal(t, kafka.TopicEvents, cfg.targetTopic)
}

func TestReadConfigBrokersFromEnv(t *testing.T) {
	t.Setenv("MARKETPLACE_KAFKA_BROKERS", "env-broker:9092")
	t.Setenv("MARKETPLACE_KAFKA_TOPIC", "custom.events")

	cfg, err := readConfig(flag.NewFlagSet("test", flag.ContinueOnError), nil)
	require.NoError(t, err)
	require.Equal(t, []string{"env-broker:9092"}, cfg.brokers)
	require.Equal(t, "custom.events", cfg.targetTopic)
}

func TestReadConfigValidation(t *testing.T) {
	t.Setenv("MARKETPLACE_KAFKA_BROKERS", "")

	cases := map[string][]string{
		"kafka brokers are required": {"-brokers="},
		"source-topic is required":   {"-brokers=b:9092", "-source-topic="},
		"target-topic is required":   {"-brokers=b:9092", "-target-topic="},
		"limit must be > 0":          {"-brokers=b:9092", "-limit=0"},
		"idle-timeout must be > 0":   {"-brokers=b:9092", "-idle-timeout=0s"},
	}
	for want, args := range cases {
		fs := flag.NewFlagSet("test", flag.ContinueOnError)
		fs.SetOutput(io.Discard)
		_, err := readConfig(fs, args)
		require.ErrorContains(t, err, want)
	}
}

func TestRunReplayDryRun(t *testing.T) {
	source := &stubSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(consumerRecord(t, 0, `{"id":"1"}`), &sarama.ConsumerMessage{Offset: 1, Value: []byte(`{"foo":"bar"}`)}),
	}}
	deps := replayDeps{client: &stubOffsetClient{partitions: []int32{0}, newest: 2}, consumer: source}

	stats, err := runReplay(context.Background(), testConfig(false), deps)
	require.NoError(t, err)
	require.Equal(t, replayStats{processed: 2, replayed: 1, skipped: 1}, stats)
}

func TestRunReplayExecute(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageWithCheckerFunctionAndSucceed(func(val []byte) error {
		if string(val) != `{"id":"1"}` {
			return errors.New("unexpected replay value")
		}
		return nil
	})
	source := &stubSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(consumerRecord(t, 0, `{"id":"1"}`)),
	}}
	deps := replayDeps{
		client:   &stubOffsetClient{partitions: []int32{0}, newest: 1},
		consumer: source,
		producer: kafka.NewProducerFrom(mock, nil),
	}

	stats, err := runReplay(context.Background(), testConfig(true), deps)
	require.NoError(t, err)
	require.Equal(t, 1, stats.replayed)
	require.NoError(t, mock.Close())
}

func TestRunReplayExecuteRequiresProducer(t *testing.T) {
	deps := replayDeps{client: &stubOffsetClient{}, consumer: &stubSource{}}
	_, err := runReplay(context.Background(), testConfig(true), deps)
	require.ErrorContains(t, err, "producer is required")
}

func TestRunReplayPublishFailure(t *testing.T) {
	mock := mocks.NewSyncProducer(t, nil)
	mock.ExpectSendMessageAndFail(sarama.ErrOutOfBrokers)
	source := &stubSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(consumerRecord(t, 0, `{}`)),
	}}
	deps := replayDeps{
		client:   &stubOffsetClient{partitions: []int32{0}, newest: 1},
		consumer: source,
		producer: kafka.NewProducerFrom(mock, nil),
	}

	_, err := runReplay(context.Background(), testConfig(true), deps)
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
	require.NoError(t, mock.Close())
}

func TestRunReplayRespectsLimitAcrossPartitions(t *testing.T) {
	source := &stubSource{consumers: map[int32]*stubPartitionConsumer{
		0: partitionWith(consumerRecord(t, 0, `{}`), consumerRecord(t, 1, `{}`)),
		1: partitionWith(consumerRecord(t, 0, `{}`), consumerRecord(t, 1, `{}`)),
	}}
	cfg := testConfig(false)
	cfg.limit = 3
	deps := replayDeps{client: &stubOffsetClient{partitions: []int32{1, 0}, newest: 2}, consumer: source}

	stats, err := runReplay(context.Background(), cfg, deps)
	require.NoError(t, err)
	require.Equal(t, 3, stats.processed)
}

func TestProcessPartitionFromNewest(t *testing.T) {
	source := &stubSource{consumers: map[int32]*stubPartitionConsumer{0: partitionWith()}}
	cfg := testConfig(false)
	cfg.fromNewest = true
	deps := replayDeps{client: &stubOffsetClient{oldest: 10, newest: 100}, consumer: source}

	stats, err := processPartition(context.Background(), cfg, deps, 0, 5)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
	require.Equal(t, int64(95), source.startOffset[0])
}

func TestProcessPartitionEmpty(t *testing.T) {
	deps := replayDeps{client: &stubOffsetClient{oldest: 5, newest: 5}, consumer: &stubSource{}}
	stats, err := processPartition(context.Background(), testConfig(false), deps, 0, 5)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
}

func TestProcessPartitionOffsetError(t *testing.T) {
	deps := replayDeps{client: &stubOffsetClient{err: errors.New("offset")}, consumer: &stubSource{}}
	_, err := processPartition(context.Background(), testConfig(false), deps, 0, 5)
	require.ErrorContains(t, err, "oldest offset")
}

func TestProcessPartitionConsumerError(t *testing.T) {
	pc := partitionWith()
	pc.errors = make(chan *sarama.ConsumerError, 1)
	pc.errors <- &sarama.ConsumerError{Err: sarama.ErrOutOfBrokers}
	deps := replayDeps{client: &stubOffsetClient{newest: 3}, consumer: &stubSource{consumers: map[int32]*stubPartitionConsumer{0: pc}}}

	_, err := processPartition(context.Background(), testConfig(false), deps, 0, 5)
	require.ErrorIs(t, err, sarama.ErrOutOfBrokers)
}

func TestProcessPartitionContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg := testConfig(false)
	cfg.idleTimeout = time.Minute
	deps := replayDeps{client: &stubOffsetClient{newest: 3}, consumer: &stubSource{consumers: map[int32]*stubPartitionConsumer{0: partitionWith()}}}

	_, err := processPartition(ctx, cfg, deps, 0, 5)
	require.ErrorIs(t, err, context.Canceled)
}

func TestProcessPartitionIdleTimeout(t *testing.T) {
	deps := replayDeps{client: &stubOffsetClient{newest: 3}, consumer: &stubSource{consumers: map[int32]*stubPartitionConsumer{0: partitionWith()}}}

	stats, err := processPartition(context.Background(), testConfig(false), deps, 0, 5)
	require.NoError(t, err)
	require.Zero(t, stats.processed)
}

func TestRunUsesReplayDeps(t *testing.T) {
	original := newReplayDeps
	t.Cleanup(func() { newReplayDeps = original })

	newReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{}, errors.New("no brokers")
	}
	require.ErrorContains(t, run(context.Background(), testConfig(false)), "no brokers")

	newReplayDeps = func(config) (replayDeps, error) {
		return replayDeps{
			client:   &stubOffsetClient{partitions: []int32{0}, newest: 1},
			consumer: &stubSource{consumers: map[int32]*stubPartitionConsumer{0: partitionWith(consumerRecord(t, 0, `{}`))}},
		}, nil
	}
	require.NoError(t, run(context.Background(), testConfig(false)))
}
