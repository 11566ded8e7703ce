package memory

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

const (
	outboxPending = "pending"
	outboxSent    = "sent"
	outboxFailed  = "failed"
)

// outboxRecord хранит сообщение и служебные поля для in-memory реализации.
type outboxRecord struct {
	msg        domain.OutboxMessage
	seq        int64
	status     string
	attemptCnt int
	createdAt  time.Time
	updatedAt  time.Time
}

type outboxRepository struct{ view }

// Enqueue сохраняет событие со статусом `pending` и возвращает его с идентификатором.
func (r outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	defer r.lock()()

	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	msg.Payload = append([]byte(nil), msg.Payload...)
	now := time.Now().UTC()

	r.s.st.outboxSeq++
	put(r.tx, r.s.st.outbox, msg.ID, outboxRecord{
		msg:       msg,
		seq:       r.s.st.outboxSeq,
		status:    outboxPending,
		createdAt: now,
		updatedAt: now,
	})
	return msg, nil
}

// PullPending возвращает до limit сообщений со статусом `pending` в порядке постановки.
func (r outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	defer r.rlock()()

	if limit <= 0 {
		limit = 100
	}

	pending := make([]outboxRecord, 0)
	for _, rec := range r.s.st.outbox {
		if rec.status == outboxPending {
			pending = append(pending, rec)
		}
	}
	sort.Slice(pending, func(i, j int) bool { return pending[i].seq < pending[j].seq })

	result := make([]domain.OutboxMessage, 0, limit)
	for _, rec := range limitSlice(pending, limit) {
		result = append(result, rec.msg)
	}
	return result, nil
}

// Stats возвращает размер backlog и время самого старого сообщения.
func (r outboxRepository) Stats() (domain.OutboxStats, error) {
	defer r.rlock()()

	var stats domain.OutboxStats
	for _, rec := range r.s.st.outbox {
		if rec.status != outboxPending {
			continue
		}
		stats.PendingCount++
		if stats.OldestPendingAt.IsZero() || rec.createdAt.Before(stats.OldestPendingAt) {
			stats.OldestPendingAt = rec.createdAt
		}
	}
	return stats, nil
}

// MarkSent обновляет статус события после успешной публикации.
func (r outboxRepository) MarkSent(id string) error {
	return r.mark(id, outboxSent)
}

// MarkFailed фиксирует ошибку публикации.
func (r outboxRepository) MarkFailed(id string) error {
	return r.mark(id, outboxFailed)
}

func (r outboxRepository) mark(id, status string) error {
	defer r.lock()()

	rec, ok := r.s.st.outbox[id]
	if !ok {
		return domain.ErrOutboxPublish
	}
	rec.status = status
	rec.attemptCnt++
	rec.updatedAt = time.Now().UTC()
	put(r.tx, r.s.st.outbox, id, rec)
	return nil
}

var _ domain.OutboxRepository = outboxRepository{}
