package outbox

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
)

// Executor выполняет единицу работы сервиса: транзакция, повтор при
// конфликте версий и доставка записанных сообщений после коммита.
type Executor struct {
	store      domain.Store
	runner     *retry.Runner
	dispatcher *Dispatcher
	metrics    *metrics.Metrics
}

// NewExecutor создаёт Executor. runner и dispatcher могут быть nil:
// тогда единица работы выполняется один раз, а сообщения ждут Worker.
func NewExecutor(store domain.Store, runner *retry.Runner, dispatcher *Dispatcher, m *metrics.Metrics) *Executor {
	return &Executor{store: store, runner: runner, dispatcher: dispatcher, metrics: m}
}

// Store возвращает хранилище для чтений вне транзакции.
func (e *Executor) Store() domain.Store {
	return e.store
}

// Do выполняет fn в транзакции. Каждая попытка получает чистый Recorder.
func (e *Executor) Do(ctx context.Context, operation string, fn func(repos domain.Repositories, rec *Recorder) error) error {
	start := time.Now()
	var rec Recorder

	attempt := func() error {
		rec.Reset()
		err := e.store.WithinTx(ctx, func(repos domain.Repositories) error {
			return fn(repos, &rec)
		})
		if domain.IsVersionConflict(err) {
			e.metrics.RecordVersionConflict()
		}
		return err
	}

	var err error
	if e.runner != nil {
		err = e.runner.Do(ctx, operation, attempt)
	} else {
		err = attempt()
	}
	e.metrics.ObserveOperation(operation, err, time.Since(start))
	if err != nil {
		return err
	}

	e.dispatcher.Dispatch(ctx, rec.Messages())
	return nil
}
