package outbox

import (
	"fmt"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Recorder накапливает сообщения outbox, записанные в одной единице работы.
// После коммита они передаются Dispatcher. Перед повтором единицы работы
// вызывается Reset, чтобы не отправить сообщения откатанной попытки.
type Recorder struct {
	msgs []domain.OutboxMessage
}

// Reset очищает накопленные сообщения.
func (r *Recorder) Reset() {
	r.msgs = r.msgs[:0]
}

// Messages возвращает сообщения, записанные с последнего Reset.
func (r *Recorder) Messages() []domain.OutboxMessage {
	return append([]domain.OutboxMessage(nil), r.msgs...)
}

// Notify ставит уведомления в outbox. Черновики без получателя и уведомления
// самому себе пропускаются.
func (r *Recorder) Notify(repo domain.OutboxRepository, drafts ...domain.NotificationDraft) error {
	for _, draft := range drafts {
		if draft.RecipientID == "" || draft.RecipientID == draft.SenderID {
			continue
		}
		msg, err := domain.NewNotificationMessage(draft)
		if err != nil {
			return fmt.Errorf("encode notification: %w", err)
		}
		if err := r.enqueue(repo, msg); err != nil {
			return err
		}
	}
	return nil
}

// Event ставит доменное событие в outbox.
func (r *Recorder) Event(repo domain.OutboxRepository, aggregateType string, eventType domain.EventType, event domain.DomainEvent) error {
	msg, err := domain.NewEventMessage(aggregateType, eventType, event)
	if err != nil {
		return fmt.Errorf("encode %s event: %w", eventType, err)
	}
	return r.enqueue(repo, msg)
}

func (r *Recorder) enqueue(repo domain.OutboxRepository, msg domain.OutboxMessage) error {
	stored, err := repo.Enqueue(msg)
	if err != nil {
		return err
	}
	r.msgs = append(r.msgs, stored)
	return nil
}
