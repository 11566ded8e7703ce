package idempotency

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// DefaultTTL — сколько живёт ключ идемпотентности, если не задано иное.
const DefaultTTL = 24 * time.Hour

// Guard связывает повторные запросы с уже созданным ресурсом.
// Ключ регистрируется в той же единице работы, что и сам ресурс, поэтому
// откат транзакции освобождает ключ.
type Guard struct {
	ttl time.Duration
	now func() time.Time
}

// NewGuard создаёт Guard. Неположительный ttl заменяется DefaultTTL.
func NewGuard(ttl time.Duration) *Guard {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Guard{ttl: ttl, now: func() time.Time { return time.Now().UTC() }}
}

// Request описывает один идемпотентный запрос.
type Request struct {
	Operation string
	ActorID   string
	ClientKey string
	Payload   any
}

// Enabled сообщает, передал ли клиент ключ.
func (r Request) Enabled() bool {
	return strings.TrimSpace(r.ClientKey) != ""
}

func (r Request) key() string {
	return domain.IdempotencyKey(r.Operation, r.ActorID, strings.TrimSpace(r.ClientKey))
}

func (r Request) hash() (string, error) {
	canonical, err := json.Marshal(r.Payload)
	if err != nil {
		return "", fmt.Errorf("encode idempotent payload: %w", err)
	}
	return domain.HashRequest(canonical), nil
}

// Claim регистрирует ключ запроса. Если запрос с этим ключом уже выполнен,
// возвращает идентификатор ресурса и replay=true. Тот же ключ с другим телом
// даёт ErrIdempotencyKeyReused.
func (g *Guard) Claim(repo domain.IdempotencyRepository, req Request) (resourceID string, replay bool, err error) {
	if !req.Enabled() {
		return "", false, nil
	}
	hash, err := req.hash()
	if err != nil {
		return "", false, err
	}

	record, err := repo.CreateProcessing(req.key(), hash, g.now().Add(g.ttl))
	switch {
	case err == nil:
		return "", false, nil
	case errors.Is(err, domain.ErrIdempotencyKeyExists):
	default:
		return "", false, err
	}

	switch record.Status {
	case domain.IdempotencyStatusDone:
		return record.ResourceID, true, nil
	case domain.IdempotencyStatusFailed:
		return "", false, nil
	default:
		return "", false, domain.ErrIdempotencyInProgress
	}
}

// Complete сохраняет идентификатор созданного ресурса.
func (g *Guard) Complete(repo domain.IdempotencyRepository, req Request, resourceID string) error {
	if !req.Enabled() {
		return nil
	}
	if err := repo.MarkDone(req.key(), resourceID); err != nil {
		return fmt.Errorf("complete idempotency key: %w", err)
	}
	return nil
}
