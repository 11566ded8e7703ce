package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
)

// Projection применяет сообщение outbox к локальному состоянию.
type Projection interface {
	Project(ctx context.Context, msg domain.OutboxMessage) error
}

// NotificationProjector превращает notification.requested в строку уведомления.
// Идентификатор уведомления равен идентификатору сообщения, поэтому повторная
// проекция того же сообщения ничего не создаёт.
type NotificationProjector struct {
	store   domain.Store
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewNotificationProjector создаёт проектор уведомлений.
func NewNotificationProjector(store domain.Store, m *metrics.Metrics) *NotificationProjector {
	return &NotificationProjector{
		store:   store,
		metrics: m,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Project материализует уведомление. Прочие типы событий игнорируются.
func (p *NotificationProjector) Project(ctx context.Context, msg domain.OutboxMessage) error {
	draft, ok, err := domain.DecodeNotification(msg)
	if !ok {
		return nil
	}
	if err != nil {
		p.metrics.RecordNotification("failed")
		return fmt.Errorf("decode notification %s: %w", msg.ID, err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	err = p.store.Repos().Notifications.Create(draft.ToNotification(msg.ID, p.now()))
	switch {
	case err == nil:
		p.metrics.RecordNotification("created")
		return nil
	case errors.Is(err, domain.ErrNotificationExists):
		p.metrics.RecordNotification("duplicate")
		return nil
	default:
		p.metrics.RecordNotification("failed")
		return fmt.Errorf("create notification %s: %w", msg.ID, err)
	}
}

// Dispatcher сразу после коммита применяет проекцию к записанным сообщениям.
// Ошибки только логируются: сообщения остаются pending, и их доставит Worker.
type Dispatcher struct {
	projection Projection
	logger     *log.Entry
}

// NewDispatcher создаёт Dispatcher.
func NewDispatcher(projection Projection, logger *log.Entry) *Dispatcher {
	if logger == nil {
		logger = log.WithField("component", "outbox-dispatcher")
	}
	return &Dispatcher{projection: projection, logger: logger}
}

// Dispatch проецирует сообщения. Безопасен для nil Dispatcher.
func (d *Dispatcher) Dispatch(ctx context.Context, msgs []domain.OutboxMessage) {
	if d == nil || d.projection == nil {
		return
	}
	for _, msg := range msgs {
		if err := d.projection.Project(ctx, msg); err != nil {
			d.logger.WithError(err).WithFields(log.Fields{
				"outbox_id":  msg.ID,
				"event_type": msg.EventType,
			}).Warn("post-commit dispatch failed, leaving message to outbox worker")
		}
	}
}
