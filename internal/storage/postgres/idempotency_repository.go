package postgres

import (
	"fmt"
	"strings"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type idempotencyRepository struct{ querier }

// CreateProcessing регистрирует ключ. ON CONFLICT не обрывает внешнюю транзакцию,
// поэтому существующая запись дочитывается обычным SELECT.
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

	affected, err := r.exec(`
		INSERT INTO idempotency_keys (key, request_hash, resource_id, status, ttl_at, created_at, updated_at)
		VALUES ($1,$2,'',$3,$4,$5,$6)
		ON CONFLICT (key) DO NOTHING
	`, key, requestHash, string(domain.IdempotencyStatusProcessing), ttlAt, now, now)
	if err != nil {
		return domain.IdempotencyRecord{}, fmt.Errorf("create idempotency record: %w", err)
	}
	if affected == 0 {
		existing, getErr := r.Get(key)
		if getErr != nil {
			return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyExists
		}
		if existing.RequestHash != requestHash {
			return existing, domain.ErrIdempotencyKeyReused
		}
		return existing, domain.ErrIdempotencyKeyExists
	}

	return domain.IdempotencyRecord{
		Key:         key,
		RequestHash: requestHash,
		Status:      domain.IdempotencyStatusProcessing,
		TTLAt:       ttlAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}, nil
}

func scanIdempotency(row rowScanner) (domain.IdempotencyRecord, error) {
	var (
		rec    domain.IdempotencyRecord
		status string
	)
	if err := row.Scan(&rec.Key, &rec.RequestHash, &rec.ResourceID, &status, &rec.TTLAt, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return domain.IdempotencyRecord{}, err
	}
	rec.Status = domain.IdempotencyStatus(status)
	if !rec.Status.Valid() {
		return domain.IdempotencyRecord{}, fmt.Errorf("invalid idempotency status %q for key %s", status, rec.Key)
	}
	return rec, nil
}

func (r idempotencyRepository) Get(key string) (domain.IdempotencyRecord, error) {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.IdempotencyRecord{}, domain.ErrIdempotencyKeyRequired
	}
	return getOne(r.querier, scanIdempotency, domain.ErrIdempotencyKeyNotFound, "get idempotency record", `
		SELECT key, request_hash, resource_id, status, ttl_at, created_at, updated_at
		FROM idempotency_keys
		WHERE key = $1
	`, key)
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

	var (
		affected int64
		err      error
	)
	if limit > 0 {
		affected, err = r.exec(`
			DELETE FROM idempotency_keys
			WHERE key IN (
				SELECT key
				FROM idempotency_keys
				WHERE ttl_at <= $1
				ORDER BY ttl_at ASC
				LIMIT $2
			)
		`, before, limit)
	} else {
		affected, err = r.exec(`DELETE FROM idempotency_keys WHERE ttl_at <= $1`, before)
	}
	if err != nil {
		return 0, fmt.Errorf("delete expired idempotency records: %w", err)
	}
	return int(affected), nil
}

func (r idempotencyRepository) markStatus(key string, status domain.IdempotencyStatus, resourceID string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return domain.ErrIdempotencyKeyRequired
	}

	affected, err := r.exec(`
		UPDATE idempotency_keys
		SET resource_id = $2, status = $3, updated_at = $4
		WHERE key = $1
	`, key, resourceID, string(status), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark idempotency key status: %w", err)
	}
	if affected == 0 {
		return domain.ErrIdempotencyKeyNotFound
	}
	return nil
}

var _ domain.IdempotencyRepository = idempotencyRepository{}
