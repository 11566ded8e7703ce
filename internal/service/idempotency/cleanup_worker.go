package idempotency

import (
	"context"
	"errors"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

const (
	defaultCleanupInterval  = 10 * time.Minute
	defaultCleanupBatchSize = 500
	// defaultMaxBatches ограничивает один проход; остаток удалится на следующем тике.
	defaultMaxBatches = 20
)

// CleanupOption настраивает CleanupWorker.
type CleanupOption func(*CleanupWorker)

func WithLogger(logger *log.Entry) CleanupOption {
	return func(w *CleanupWorker) {
		if logger != nil {
			w.logger = logger
		}
	}
}

func WithMetrics(m *metrics.Metrics) CleanupOption {
	return func(w *CleanupWorker) { w.metrics = m }
}

// WithInterval задаёт паузу между проходами.
func WithInterval(interval time.Duration) CleanupOption {
	return func(w *CleanupWorker) {
		if interval > 0 {
			w.interval = interval
		}
	}
}

// WithBatchSize ограничивает число ключей, удаляемых одним запросом.
func WithBatchSize(size int) CleanupOption {
	return func(w *CleanupWorker) {
		if size > 0 {
			w.batchSize = size
		}
	}
}

// WithMaxBatches ограничивает число запросов за проход.
func WithMaxBatches(n int) CleanupOption {
	return func(w *CleanupWorker) {
		if n > 0 {
			w.maxBatches = n
		}
	}
}

// CleanupWorker удаляет ключи идемпотентности с истёкшим TTL. После этого
// повтор запроса с тем же ключом оформляет новый заказ.
type CleanupWorker struct {
	repo       domain.IdempotencyRepository
	logger     *log.Entry
	metrics    *metrics.Metrics
	interval   time.Duration
	batchSize  int
	maxBatches int
	now        func() time.Time
}

// NewCleanupWorker создаёт воркер очистки.
func NewCleanupWorker(repo domain.IdempotencyRepository, options ...CleanupOption) *CleanupWorker {
	w := &CleanupWorker{
		repo:       repo,
		logger:     log.WithField("component", "idempotency-cleanup"),
		interval:   defaultCleanupInterval,
		batchSize:  defaultCleanupBatchSize,
		maxBatches: defaultMaxBatches,
		now:        time.Now,
	}
	for _, option := range options {
		option(w)
	}
	return w
}

// Run выполняет проход сразу и затем раз в interval до отмены ctx.
func (w *CleanupWorker) Run(ctx context.Context) {
	if w.repo == nil {
		w.logger.Warn("idempotency cleanup worker is disabled: repo is nil")
		return
	}

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		deleted, err := w.Sweep(ctx)
		if errors.Is(err, context.Canceled) {
			return
		}
		w.metrics.RecordIdempotencySweep(deleted, err)
		switch {
		case err != nil:
			w.logger.WithError(err).Warn("idempotency cleanup run failed")
		case deleted > 0:
			w.logger.WithField("deleted", deleted).Info("expired idempotency keys removed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// Sweep удаляет ключи, истёкшие к текущему моменту, порциями по batchSize.
// Возвращает число удалённых ключей, в том числе при ошибке.
func (w *CleanupWorker) Sweep(ctx context.Context) (int, error) {
	before := w.now().UTC()
	total := 0
	for batch := 0; batch < w.maxBatches; batch++ {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		deleted, err := w.repo.DeleteExpired(before, w.batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < w.batchSize {
			return total, nil
		}
	}
	w.logger.WithField("deleted", total).Debug("cleanup pass hit batch limit, continuing next tick")
	return total, nil
}
