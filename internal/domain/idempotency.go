package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"
)

// IdempotencyStatus описывает жизненный цикл ключа идемпотентности.
type IdempotencyStatus string

const (
	// IdempotencyStatusProcessing означает, что запрос принят и ещё обрабатывается.
	IdempotencyStatusProcessing IdempotencyStatus = "processing"
	// IdempotencyStatusDone означает, что запрос завершён успешно и результат сохранён.
	IdempotencyStatusDone IdempotencyStatus = "done"
	// IdempotencyStatusFailed означает, что обработка завершилась ошибкой.
	IdempotencyStatusFailed IdempotencyStatus = "failed"
)

// IdempotencyRecord хранит состояние обработки запроса с Idempotency-Key.
// Key уже включает операцию и автора запроса.
type IdempotencyRecord struct {
	Key         string
	RequestHash string
	// ResourceID — идентификатор созданной сущности, по нему повторный запрос получает тот же результат.
	ResourceID string
	Status     IdempotencyStatus
	TTLAt      time.Time
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Valid проверяет, что статус относится к поддерживаемым значениям.
func (s IdempotencyStatus) Valid() bool {
	switch s {
	case IdempotencyStatusProcessing, IdempotencyStatusDone, IdempotencyStatusFailed:
		return true
	default:
		return false
	}
}

// IdempotencyKey собирает ключ хранилища из операции, автора и клиентского ключа.
func IdempotencyKey(operation, actorID, clientKey string) string {
	return operation + ":" + actorID + ":" + clientKey
}

// HashRequest возвращает sha256 от канонического представления запроса.
func HashRequest(canonical []byte) string {
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:])
}

// IsIdempotencyConflict проверяет, что ключ уже зарегистрирован.
func IsIdempotencyConflict(err error) bool {
	return errors.Is(err, ErrIdempotencyKeyExists)
}
