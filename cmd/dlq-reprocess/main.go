// Команда dlq-reprocess перечитывает DLQ и возвращает исходные события
// в топик событий. По умолчанию работает в режиме dry-run.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/messaging/kafka"
)

const (
	defaultReplayLimit = 100
	defaultIdleTimeout = 2 * time.Second
)

type config struct {
	brokers     []string
	sourceTopic string
	targetTopic string
	limit       int
	execute     bool
	fromNewest  bool
	idleTimeout time.Duration
}

type offsetClient interface {
	GetOffset(topic string, partition int32, time int64) (int64, error)
	Partitions(topic string) ([]int32, error)
	Close() error
}

type partitionSource interface {
	ConsumePartition(topic string, partition int32, offset int64) (sarama.PartitionConsumer, error)
	Close() error
}

type replayDeps struct {
	client   offsetClient
	consumer partitionSource
	producer *kafka.Producer
}

func (d replayDeps) close() {
	if d.producer != nil {
		_ = d.producer.Close()
	}
	if d.consumer != nil {
		_ = d.consumer.Close()
	}
	if d.client != nil {
		_ = d.client.Close()
	}
}

var newReplayDeps = func(cfg config) (replayDeps, error) {
	consumerConfig := sarama.NewConfig()
	consumerConfig.Consumer.Return.Errors = true

	client, err := sarama.NewClient(cfg.brokers, consumerConfig)
	if err != nil {
		return replayDeps{}, fmt.Errorf("create kafka client: %w", err)
	}
	consumer, err := sarama.NewConsumerFromClient(client)
	if err != nil {
		_ = client.Close()
		return replayDeps{}, fmt.Errorf("create kafka consumer: %w", err)
	}
	deps := replayDeps{client: client, consumer: consumer}
	if !cfg.execute {
		return deps, nil
	}

	producer, err := kafka.NewProducer(cfg.brokers, "marketplace-dlq-reprocess")
	if err != nil {
		deps.close()
		return replayDeps{}, err
	}
	deps.producer = producer
	return deps, nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	log.SetLevel(log.InfoLevel)

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		log.WithError(err).Warn("failed to load .env")
	}

	cfg, err := readConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		fail("%v", err)
	}
	if err := run(context.Background(), cfg); err != nil {
		fail("dlq replay failed: %v", err)
	}
}

func readConfig(fs *flag.FlagSet, args []string) (config, error) {
	var (
		brokersRaw string
		cfg        config
	)

	fs.StringVar(&brokersRaw, "brokers", "", "Kafka brokers, comma-separated (fallback: MARKETPLACE_KAFKA_BROKERS)")
	fs.StringVar(&cfg.sourceTopic, "source-topic", envOr("MARKETPLACE_KAFKA_DLQ_TOPIC", kafka.TopicDeadLetterQueue), "DLQ source topic")
	fs.StringVar(&cfg.targetTopic, "target-topic", envOr("MARKETPLACE_KAFKA_TOPIC", kafka.TopicEvents), "target topic for replay")
	fs.IntVar(&cfg.limit, "limit", defaultReplayLimit, "max number of messages to scan")
	fs.BoolVar(&cfg.execute, "execute", false, "publish replays; default is dry-run")
	fs.BoolVar(&cfg.fromNewest, "from-newest", false, "scan the latest messages first (bounded by limit)")
	fs.DurationVar(&cfg.idleTimeout, "idle-timeout", defaultIdleTimeout, "idle timeout per partition")
	if err := fs.Parse(args); err != nil {
		return config{}, err
	}

	if strings.TrimSpace(brokersRaw) == "" {
		brokersRaw = os.Getenv("MARKETPLACE_KAFKA_BROKERS")
	}
	cfg.brokers = parseBrokers(brokersRaw)

	switch {
	case len(cfg.brokers) == 0:
		return config{}, fmt.Errorf("kafka brokers are required (-brokers or MARKETPLACE_KAFKA_BROKERS)")
	case strings.TrimSpace(cfg.sourceTopic) == "":
		return config{}, fmt.Errorf("source-topic is required")
	case strings.TrimSpace(cfg.targetTopic) == "":
		return config{}, fmt.Errorf("target-topic is required")
	case cfg.limit <= 0:
		return config{}, fmt.Errorf("limit must be > 0")
	case cfg.idleTimeout <= 0:
		return config{}, fmt.Errorf("idle-timeout must be > 0")
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func parseBrokers(raw string) []string {
	var brokers []string
	for _, chunk := range strings.Split(raw, ",") {
		if broker := strings.TrimSpace(chunk); broker != "" {
			brokers = append(brokers, broker)
		}
	}
	return brokers
}

func run(ctx context.Context, cfg config) error {
	log.WithFields(log.Fields{
		"source_topic": cfg.sourceTopic,
		"target_topic": cfg.targetTopic,
		"limit":        cfg.limit,
		"execute":      cfg.execute,
		"from_newest":  cfg.fromNewest,
	}).Info("starting dlq replay")

	deps, err := newReplayDeps(cfg)
	if err != nil {
		return err
	}
	defer deps.close()

	stats, err := runReplay(ctx, cfg, deps)
	if err != nil {
		return err
	}

	mode := "dry-run"
	if cfg.execute {
		mode = "execute"
	}
	log.WithFields(log.Fields{
		"mode":      mode,
		"processed": stats.processed,
		"replayed":  stats.replayed,
		"skipped":   stats.skipped,
	}).Info("dlq replay finished")
	return nil
}

type replayStats struct {
	processed int
	replayed  int
	skipped   int
}

func (s *replayStats) add(other replayStats) {
	s.processed += other.processed
	s.replayed += other.replayed
	s.skipped += other.skipped
}

func runReplay(ctx context.Context, cfg config, deps replayDeps) (replayStats, error) {
	var total replayStats
	if deps.client == nil || deps.consumer == nil {
		return total, fmt.Errorf("kafka client and consumer are required")
	}
	if cfg.execute && deps.producer == nil {
		return total, fmt.Errorf("producer is required in execute mode")
	}

	partitions, err := deps.client.Partitions(cfg.sourceTopic)
	if err != nil {
		return total, fmt.Errorf("get partitions for topic %s: %w", cfg.sourceTopic, err)
	}
	if len(partitions) == 0 {
		log.WithField("topic", cfg.sourceTopic).Warn("source topic has no partitions")
		return total, nil
	}
	sort.Slice(partitions, func(i, j int) bool { return partitions[i] < partitions[j] })

	for _, partition := range partitions {
		if total.processed >= cfg.limit {
			break
		}
		stats, err := processPartition(ctx, cfg, deps, partition, cfg.limit-total.processed)
		total.add(stats)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func processPartition(ctx context.Context, cfg config, deps replayDeps, partition int32, limit int) (replayStats, error) {
	var stats replayStats

	oldest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetOldest)
	if err != nil {
		return stats, fmt.Errorf("get oldest offset for partition %d: %w", partition, err)
	}
	newest, err := deps.client.GetOffset(cfg.sourceTopic, partition, sarama.OffsetNewest)
	if err != nil {
		return stats, fmt.Errorf("get newest offset for partition %d: %w", partition, err)
	}
	if newest <= oldest {
		return stats, nil
	}

	start := oldest
	if cfg.fromNewest && newest-int64(limit) > oldest {
		start = newest - int64(limit)
	}

	pc, err := deps.consumer.ConsumePartition(cfg.sourceTopic, partition, start)
	if err != nil {
		return stats, fmt.Errorf("consume partition %d: %w", partition, err)
	}
	defer func() { _ = pc.Close() }()

	idle := time.NewTimer(cfg.idleTimeout)
	defer idle.Stop()

	for stats.processed < limit {
		select {
		case <-ctx.Done():
			return stats, ctx.Err()
		case cerr := <-pc.Errors():
			if cerr != nil {
				return stats, fmt.Errorf("partition %d consumer error: %w", partition, cerr)
			}
		case <-idle.C:
			return stats, nil
		case msg, ok := <-pc.Messages():
			if !ok || msg == nil || msg.Offset >= newest {
				return stats, nil
			}
			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(cfg.idleTimeout)

			if err := handleMessage(cfg, deps.producer, msg, &stats); err != nil {
				return stats, err
			}
			if msg.Offset+1 >= newest {
				return stats, nil
			}
		}
	}
	return stats, nil
}

func handleMessage(cfg config, producer *kafka.Producer, msg *sarama.ConsumerMessage, stats *replayStats) error {
	stats.processed++
	fields := log.Fields{"partition": msg.Partition, "offset": msg.Offset}

	replay, ok, err := kafka.ExtractReplay(msg, cfg.targetTopic, time.Now())
	if err != nil {
		stats.skipped++
		log.WithError(err).WithFields(fields).Warn("skip unsupported dlq message")
		return nil
	}
	if !ok {
		stats.skipped++
		return nil
	}

	if cfg.execute {
		if err := producer.Publish(replay.Topic, replay.Key, replay.Value); err != nil {
			return fmt.Errorf("publish replay message: %w", err)
		}
	} else {
		fields["target_topic"] = replay.Topic
		fields["key"] = replay.Key
		log.WithFields(fields).Info("dlq replay candidate")
	}
	stats.replayed++
	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
