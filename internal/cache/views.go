package cache

import (
	"context"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// TrackingCache хранит публичное представление заказа по номеру.
type TrackingCache interface {
	Get(ctx context.Context, orderNumber string) (domain.OrderTracking, bool, error)
	Set(ctx context.Context, tracking domain.OrderTracking) error
	Invalidate(ctx context.Context, orderNumber string) error
}

// StatsCache хранит сводку панели администратора по окну.
type StatsCache interface {
	Get(ctx context.Context, period domain.StatsPeriod) (domain.DashboardStats, bool, error)
	Set(ctx context.Context, stats domain.DashboardStats) error
}

// Pinger сообщает о доступности кэша.
type Pinger interface {
	Ping(ctx context.Context) error
}

type redisTracking struct {
	store *JSON
	ttl   time.Duration
}

// NewTrackingCache возвращает кэш отслеживания. nil store даёт пустую реализацию.
func NewTrackingCache(store *JSON, ttl time.Duration) TrackingCache {
	if store == nil {
		return NoopTracking{}
	}
	if ttl <= 0 {
		ttl = TTLTracking
	}
	return redisTracking{store: store, ttl: ttl}
}

func (c redisTracking) Get(ctx context.Context, orderNumber string) (domain.OrderTracking, bool, error) {
	var t domain.OrderTracking
	ok, err := c.store.Get(ctx, c.store.key(keyOrderTracking, orderNumber), &t)
	return t, ok, err
}

func (c redisTracking) Set(ctx context.Context, tracking domain.OrderTracking) error {
	return c.store.Set(ctx, c.store.key(keyOrderTracking, tracking.OrderNumber), tracking, c.ttl)
}

func (c redisTracking) Invalidate(ctx context.Context, orderNumber string) error {
	return c.store.Delete(ctx, c.store.key(keyOrderTracking, orderNumber))
}

type redisStats struct {
	store *JSON
	ttl   time.Duration
}

// NewStatsCache возвращает кэш сводки. nil store даёт пустую реализацию.
func NewStatsCache(store *JSON, ttl time.Duration) StatsCache {
	if store == nil {
		return NoopStats{}
	}
	if ttl <= 0 {
		ttl = TTLDashboard
	}
	return redisStats{store: store, ttl: ttl}
}

func (c redisStats) Get(ctx context.Context, period domain.StatsPeriod) (domain.DashboardStats, bool, error) {
	var s domain.DashboardStats
	ok, err := c.store.Get(ctx, c.store.key(keyDashboardStats, period), &s)
	return s, ok, err
}

func (c redisStats) Set(ctx context.Context, stats domain.DashboardStats) error {
	return c.store.Set(ctx, c.store.key(keyDashboardStats, stats.Period), stats, c.ttl)
}

// NoopTracking — кэш отслеживания, который ничего не хранит. Используется без redis.
type NoopTracking struct{}

func (NoopTracking) Get(context.Context, string) (domain.OrderTracking, bool, error) {
	return domain.OrderTracking{}, false, nil
}

func (NoopTracking) Set(context.Context, domain.OrderTracking) error { return nil }

func (NoopTracking) Invalidate(context.Context, string) error { return nil }

// NoopStats — кэш сводки без хранения.
type NoopStats struct{}

func (NoopStats) Get(context.Context, domain.StatsPeriod) (domain.DashboardStats, bool, error) {
	return domain.DashboardStats{}, false, nil
}

func (NoopStats) Set(context.Context, domain.DashboardStats) error { return nil }

var (
	_ TrackingCache = NoopTracking{}
	_ TrackingCache = redisTracking{}
	_ StatsCache    = NoopStats{}
	_ StatsCache    = redisStats{}
)
