package memory

import (
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type idempotencyRepository struct{ view }

// CreateProcessing регистрирует ключ. Повтор с тем же хэшем возвращает
// существующую запись и ErrIdempotencyKeyExists, с другим хэшем ErrIdempotencyKeyReused.
func (r idempotencyRepository) CreateProcessing(key, requestHash string, ttlAt time.Time) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	requestHash = strings.TrimSpace(requestHash)

	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	if requestHash == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyHashRequired
	}

	now := time.Now().UTC()
	if ttlAt.IsZero() {
		ttlAt = now.Add(24 * time.Hour)
	}

	defer r.lock()()

	if existing, ok := r.s.st.idempotency[key]; ok {
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyKeyReused
		}
		return existing, domain.ErrIdempotencyKeyExists
	}

	record := domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	put(r.tx, r.s.st.idempotency, key, record)
	return record, nil
}

func (r idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}

	defer r.rlock()()

	record, ok := r.s.st.idempotency[key]
	if !ok {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyNotFound
	}
	return record, nil
}

func (r idempotencyRepository) MarkDone(key, resourceID string) error {
	return r.markStatus(key, domain.IdempotencyStatusDone, resourceID)
}

func (r idempotencyRepository) MarkFailed(key string) error {
	return r.markStatus(key, domain.IdempotencyStatusFailed, "")
}

func (r idempotencyRepository) DeleteExpired(before time.Time, limit int) (int, error) {
	if before.IsZero() {
		before = time.Now().UTC()
	}

	defer r.lock()()

	removed := 0
	for key, record := range r.s.st.idempotency {
		if record.TTLAt.After(before) {
			continue
		}
		remove(r.tx, r.s.st.idempotency, key)
		removed++
		if limit > 0 && removed >= limit {
			break
		}
	}
	return removed, nil
}

func (r idempotencyRepository) markStatus(key string, status domain.IdempotencyStatus, resourceID string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	defer r.lock()()

	record, ok := r.s.st.idempotency[key]
	if !ok {
		return domain.ErrIdempotencyKeyNotFound
	}
	record.Status = status
	record.ResourceID = resourceID
	record.UpdatedAt = time.Now().UTC()
	put(r.tx, r.s.st.idempotency, key, record)
	return nil
}

var _ domain.IdempotencyRepository = idempotencyRepository{}
