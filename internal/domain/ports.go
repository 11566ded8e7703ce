package domain

import "context"

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// ActorResolver возвращает текущего участника по идентификатору из токена.
type ActorResolver interface {
	ResolveActor(ctx context.Context, userID string) (User, error)
}
