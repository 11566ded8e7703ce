package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
)

const (
	defaultPollInterval   = time.Second
	defaultBatchSize      = 100
	defaultMaxAttempts    = 3
	defaultRetryBaseDelay = 50 * time.Millisecond
	maxRetryDelay         = 5 * time.Second
)

// Option настраивает Worker.
type Option func(*Worker)

// WithLogger задаёт logger.
func WithLogger(logger *log.Entry) Option {
	return func(w *Worker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithMetrics задаёт метрики доставки и backlog.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Worker) { w.metrics = m }
}

// WithDLQPublisher задаёт publisher для сообщений, исчерпавших попытки.
func WithDLQPublisher(publisher domain.OutboxPublisher) Option {
	return func(w *Worker) { w.dlq = publisher }
}

// WithProjection задаёт локальную проекцию, которая применяется до публикации.
func WithProjection(projection Projection) Option {
	return func(w *Worker) { w.projection = projection }
}

// WithPollInterval задаёт паузу между опросами пустой очереди.
func WithPollInterval(interval time.Duration) Option {
	return func(w *Worker) {
		if interval > 0 {
			w.pollInterval = interval
		}
	}
}

// WithBatchSize задаёт размер выборки.
func WithBatchSize(size int) Option {
	return func(w *Worker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxAttempts задаёт число попыток доставки до failed и DLQ.
func WithMaxAttempts(attempts int) Option {
	return func(w *Worker) {
		if attempts > 0 {
			w.maxAttempts = attempts
		}
	}
}

// WithRetryBaseDelay задаёт первую паузу экспоненциального backoff. 0 отключает паузы.
func WithRetryBaseDelay(delay time.Duration) Option {
	return func(w *Worker) {
		if delay < 0 {
			delay = 0
		}
		w.retryBaseDelay = delay
	}
}

// Worker доставляет pending-сообщения outbox: сначала локальная проекция
// (уведомления), затем публикация в брокер, если он настроен.
//
// Пока брокер недоступен (retry.ErrCircuitOpen), сообщения остаются pending
// и батч прерывается. В DLQ попадают только сообщения, которые брокер
// отверг maxAttempts раз подряд.
type Worker struct {
	repo       domain.OutboxRepository
	publisher  domain.OutboxPublisher
	projection Projection
	dlq        domain.OutboxPublisher
	metrics    *metrics.Metrics
	logger     *log.Entry

	pollInterval   time.Duration
	batchSize      int
	maxAttempts    int
	retryBaseDelay time.Duration
	now            func() time.Time
}

// NewWorker создаёт worker. publisher может быть nil, тогда worker только проецирует.
func NewWorker(repo domain.OutboxRepository, publisher domain.OutboxPublisher, options ...Option) *Worker {
	w := &Worker{
		repo:           repo,
		publisher:      publisher,
		logger:         log.WithField("component", "outbox-worker"),
		pollInterval:   defaultPollInterval,
		batchSize:      defaultBatchSize,
		maxAttempts:    defaultMaxAttempts,
		retryBaseDelay: defaultRetryBaseDelay,
		now:            time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run опрашивает outbox до отмены ctx. Полный батч выбирается повторно без паузы.
func (w *Worker) Run(ctx context.Context) {
	if w.repo == nil || (w.publisher == nil && w.projection == nil) {
		w.logger.Warn("outbox worker is disabled: nothing to deliver to")
		return
	}

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wait := w.pollInterval
		if w.ProcessOnce(ctx) == w.batchSize {
			wait = 0
		}
		timer.Reset(wait)
	}
}

// ProcessOnce обрабатывает один батч и возвращает число сообщений, получивших
// окончательный статус (sent или failed).
func (w *Worker) ProcessOnce(ctx context.Context) int {
	if ctx.Err() != nil {
		return 0
	}
	defer w.observeBacklog()

	batch, err := w.repo.PullPending(w.batchSize)
	if err != nil {
		w.logger.WithError(err).Warn("failed to pull pending outbox messages")
		return 0
	}

	done := 0
	for _, msg := range batch {
		if ctx.Err() != nil {
			break
		}
		fields := log.Fields{"outbox_id": msg.ID, "event_type": msg.EventType}

		err := w.deliver(ctx, msg)
		switch {
		case err == nil:
			w.metrics.RecordOutboxDelivery("sent")
			if markErr := w.repo.MarkSent(msg.ID); markErr != nil {
				w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as sent")
			}
			done++
		case errors.Is(err, retry.ErrCircuitOpen), ctx.Err() != nil:
			w.metrics.RecordOutboxDelivery("deferred")
			w.logger.WithError(err).WithFields(fields).Debug("outbox delivery deferred")
			return done
		default:
			w.metrics.RecordOutboxDelivery("failed")
			w.logger.WithError(err).WithFields(fields).Error("outbox delivery failed after retries")
			w.deadLetter(msg, err)
			if markErr := w.repo.MarkFailed(msg.ID); markErr != nil {
				w.logger.WithError(markErr).WithFields(fields).Warn("failed to mark outbox message as failed")
			}
			done++
		}
	}
	return done
}

// deliver применяет проекцию один раз и повторяет публикацию с backoff.
func (w *Worker) deliver(ctx context.Context, msg domain.OutboxMessage) error {
	projected := w.projection == nil
	var err error
	for attempt := 1; ; attempt++ {
		if !projected {
			if err = w.projection.Project(ctx, msg); err == nil {
				projected = true
			} else {
				err = fmt.Errorf("project: %w", err)
			}
		}
		if projected && w.publisher != nil {
			err = w.publisher.Publish(msg)
		}
		if err == nil || errors.Is(err, retry.ErrCircuitOpen) || attempt >= w.maxAttempts {
			return err
		}
		w.metrics.RecordOutboxDelivery("retry")

		if delay := w.backoff(attempt); delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}
}

func (w *Worker) backoff(attempt int) time.Duration {
	delay := w.retryBaseDelay
	for i := 1; i < attempt && delay > 0 && delay < maxRetryDelay; i++ {
		delay *= 2
	}
	if delay > maxRetryDelay {
		return maxRetryDelay
	}
	return delay
}

func (w *Worker) observeBacklog() {
	stats, err := w.repo.Stats()
	if err != nil {
		w.logger.WithError(err).Warn("failed to collect outbox backlog stats")
		return
	}
	var age time.Duration
	if stats.PendingCount > 0 && !stats.OldestPendingAt.IsZero() {
		age = w.now().Sub(stats.OldestPendingAt)
	}
	w.metrics.SetOutboxBacklog(stats.PendingCount, age)
}

// deadLetterRecord — тело сообщения DLQ; исходный payload вложен без изменений.
type deadLetterRecord struct {
	OutboxID      string          `json:"outbox_id"`
	AggregateType string          `json:"aggregate_type"`
	AggregateID   string          `json:"aggregate_id"`
	EventType     string          `json:"event_type"`
	Payload       json.RawMessage `json:"payload"`
	PublishError  string          `json:"publish_error"`
	Attempts      int             `json:"attempts"`
	FailedAt      time.Time       `json:"failed_at"`
}

func (w *Worker) deadLetter(msg domain.OutboxMessage, cause error) {
	if w.dlq == nil {
		return
	}
	original := json.RawMessage(msg.Payload)
	if len(original) == 0 {
		original = json.RawMessage("null")
	}
	payload, err := json.Marshal(deadLetterRecord{
		OutboxID:      msg.ID,
		AggregateType: msg.AggregateType,
		AggregateID:   msg.AggregateID,
		EventType:     msg.EventType,
		Payload:       original,
		PublishError:  cause.Error(),
		Attempts:      w.maxAttempts,
		FailedAt:      w.now().UTC(),
	})
	if err == nil {
		err = w.dlq.Publish(domain.OutboxMessage{
			ID:            msg.ID,
			AggregateType: msg.AggregateType,
			AggregateID:   msg.AggregateID,
			EventType:     msg.EventType,
			Payload:       payload,
		})
	}
	if err != nil {
		w.metrics.RecordOutboxDelivery("dlq_failed")
		w.logger.WithError(err).WithField("outbox_id", msg.ID).Warn("failed to publish to DLQ")
	}
}
