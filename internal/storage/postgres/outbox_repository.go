package postgres

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type outboxRepository struct{ querier }

// Enqueue сохраняет событие со статусом `pending`. Внутри WithinTx запись
// появляется только вместе с изменением, которое её породило.
func (r outboxRepository) Enqueue(msg domain.OutboxMessage) (domain.OutboxMessage, error) {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	now := time.Now().UTC()

	_, err := r.exec(`
		INSERT INTO outbox_messages (
			id, aggregate_type, aggregate_id, event_type, payload,
			status, attempt_count, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,'pending',0,$6,$7)
	`,
		msg.ID, msg.AggregateType, msg.AggregateID, msg.EventType, msg.Payload, now, now,
	)
	if err != nil {
		return domain.OutboxMessage{}, fmt.Errorf("enqueue outbox message: %w", err)
	}
	return msg, nil
}

func scanOutbox(row rowScanner) (domain.OutboxMessage, error) {
	var msg domain.OutboxMessage
	err := row.Scan(&msg.ID, &msg.AggregateType, &msg.AggregateID, &msg.EventType, &msg.Payload)
	return msg, err
}

func (r outboxRepository) PullPending(limit int) ([]domain.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	msgs, err := queryList(r.querier, scanOutbox, `
		SELECT id, aggregate_type, aggregate_id, event_type, payload
		FROM outbox_messages
		WHERE status = 'pending'
		ORDER BY created_at, id
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("pull pending outbox messages: %w", err)
	}
	return msgs, nil
}

func (r outboxRepository) Stats() (domain.OutboxStats, error) {
	scan := func(row rowScanner) (domain.OutboxStats, error) {
		var (
			stats  domain.OutboxStats
			oldest sql.NullTime
		)
		if err := row.Scan(&stats.PendingCount, &oldest); err != nil {
			return stats, err
		}
		if oldest.Valid {
			stats.OldestPendingAt = oldest.Time.UTC()
		}
		return stats, nil
	}
	return getOne(r.querier, scan, nil, "outbox stats query failed", `
		SELECT COUNT(*), MIN(created_at)
		FROM outbox_messages
		WHERE status = 'pending'
	`)
}

func (r outboxRepository) MarkSent(id string) error {
	return r.markStatus(id, "sent")
}

func (r outboxRepository) MarkFailed(id string) error {
	return r.markStatus(id, "failed")
}

func (r outboxRepository) markStatus(id, status string) error {
	affected, err := r.exec(`
		UPDATE outbox_messages
		SET status = $2,
		    attempt_count = attempt_count + 1,
		    updated_at = $3
		WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark outbox message as %s: %w", status, err)
	}
	if affected == 0 {
		return domain.ErrOutboxPublish
	}
	return nil
}

var _ domain.OutboxRepository = outboxRepository{}
