// Package cache хранит производные представления в redis.
// Источником истины всегда остаётся хранилище, кэш можно потерять.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// keyOrderTracking: track:{order_number} -> domain.OrderTracking
	keyOrderTracking = "track:%s"
	// keyDashboardStats: admin:stats:{period} -> domain.DashboardStats
	keyDashboardStats = "admin:stats:%s"

	defaultTimeout = 2 * time.Second
)

// TTL по умолчанию.
var (
	TTLTracking  = 5 * time.Minute
	TTLDashboard = 60 * time.Second
)

// NewClient создаёт клиента redis. Пустой адрес означает, что кэш выключен.
func NewClient(addr string) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  defaultTimeout,
		ReadTimeout:  defaultTimeout,
		WriteTimeout: defaultTimeout,
	})
}

// JSON — значения в redis в виде JSON под общим префиксом ключей.
type JSON struct {
	client redis.UniversalClient
	prefix string
}

// NewJSON создаёт обёртку. prefix отделяет ключи окружений друг от друга.
func NewJSON(client redis.UniversalClient, prefix string) *JSON {
	return &JSON{client: client, prefix: prefix}
}

func (j *JSON) key(format string, args ...any) string {
	return j.prefix + fmt.Sprintf(format, args...)
}

// Get читает значение в dst. Отсутствие ключа — (false, nil).
func (j *JSON) Get(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := j.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get %s: %w", key, err)
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode cached %s: %w", key, err)
	}
	return true, nil
}

// Set сохраняет значение с TTL.
func (j *JSON) Set(ctx context.Context, key string, v any, ttl time.Duration) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode cached %s: %w", key, err)
	}
	if err := j.client.Set(ctx, key, raw, ttl).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", key, err)
	}
	return nil
}

// Delete удаляет ключи.
func (j *JSON) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if err := j.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping проверяет доступность redis.
func (j *JSON) Ping(ctx context.Context) error {
	return j.client.Ping(ctx).Err()
}
