// Package admin собирает сводку площадки и модерирует жалобы.
package admin

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/health"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const recentLimit = 5

// HealthRunner выполняет проверки зависимостей.
type HealthRunner interface {
	Run(ctx context.Context) health.Report
}

// Service — операции панели администратора. Все методы требуют персонал.
type Service struct {
	exec   *outbox.Executor
	stats  cache.StatsCache
	health HealthRunner
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис администратора. nil stats отключает кэш сводки,
// nil checks оставляет в SystemHealth только очередь outbox.
func NewService(exec *outbox.Executor, stats cache.StatsCache, checks HealthRunner, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "admin-service")
	}
	if stats == nil {
		stats = cache.NoopStats{}
	}
	return &Service{
		exec:   exec,
		stats:  stats,
		health: checks,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// DashboardStats возвращает сводку за окно. Результат кэшируется по окну.
func (s *Service) DashboardStats(ctx context.Context, staff domain.User, period domain.StatsPeriod) (domain.DashboardStats, error) {
	if !staff.IsAdmin() {
		return domain.DashboardStats{}, domain.ErrStaffOnly
	}
	if period == "" {
		period = domain.PeriodWeek
	}

	cached, ok, err := s.stats.Get(ctx, period)
	if err != nil {
		s.logger.WithError(err).WithField("period", period).Warn("dashboard cache read failed")
	}
	if ok {
		return cached, nil
	}

	repos := s.exec.Store().Repos()
	totals, err := repos.Stats.Totals()
	if err != nil {
		return domain.DashboardStats{}, err
	}
	now := s.now()
	curFrom, prevFrom := period.Windows(now)
	cur, err := repos.Stats.PeriodCounts(curFrom, now)
	if err != nil {
		return domain.DashboardStats{}, err
	}
	prev, err := repos.Stats.PeriodCounts(prevFrom, curFrom)
	if err != nil {
		return domain.DashboardStats{}, err
	}

	stats := domain.NewDashboardStats(period, totals, cur, prev, now)
	if err := s.stats.Set(ctx, stats); err != nil {
		s.logger.WithError(err).WithField("period", period).Warn("dashboard cache write failed")
	}
	return stats, nil
}

// Activities — последние события площадки.
type Activities struct {
	Users    []domain.User    `json:"recent_users"`
	Orders   []domain.Order   `json:"recent_orders"`
	Disputes []domain.Dispute `json:"open_disputes"`
}

// RecentActivities возвращает последних пользователей, заказы и открытые споры.
func (s *Service) RecentActivities(_ context.Context, staff domain.User) (Activities, error) {
	if !staff.IsAdmin() {
		return Activities{}, domain.ErrStaffOnly
	}
	repos := s.exec.Store().Repos()

	users, err := repos.Users.ListRecent(recentLimit)
	if err != nil {
		return Activities{}, err
	}
	orders, err := repos.Orders.List(domain.OrderFilter{Limit: recentLimit})
	if err != nil {
		return Activities{}, err
	}
	disputes, err := repos.Disputes.ListForUser("", domain.DisputeStatusOpen, recentLimit)
	if err != nil {
		return Activities{}, err
	}
	return Activities{Users: users, Orders: orders, Disputes: disputes}, nil
}

// OutboxBacklog — состояние очереди outbox.
type OutboxBacklog struct {
	Pending          int     `json:"pending"`
	OldestPendingAge float64 `json:"oldest_pending_age_seconds"`
}

// SystemHealth — проверки зависимостей и очередь outbox.
type SystemHealth struct {
	Status    health.Status           `json:"status"`
	Checks    map[string]health.Check `json:"checks"`
	Outbox    OutboxBacklog           `json:"outbox"`
	CheckedAt time.Time               `json:"checked_at"`
}

// SystemHealth проверяет хранилище, кэш и очередь outbox.
func (s *Service) SystemHealth(ctx context.Context, staff domain.User) (SystemHealth, error) {
	if !staff.IsAdmin() {
		return SystemHealth{}, domain.ErrStaffOnly
	}

	result := SystemHealth{
		Status:    health.StatusHealthy,
		Checks:    map[string]health.Check{},
		CheckedAt: s.now(),
	}
	if s.health != nil {
		report := s.health.Run(ctx)
		result.Status = report.Status
		result.Checks = report.Checks
	}

	backlog, err := s.exec.Store().Repos().Outbox.Stats()
	if err != nil {
		return SystemHealth{}, err
	}
	result.Outbox.Pending = backlog.PendingCount
	if backlog.PendingCount > 0 && !backlog.OldestPendingAt.IsZero() {
		result.Outbox.OldestPendingAge = result.CheckedAt.Sub(backlog.OldestPendingAt).Seconds()
	}
	return result, nil
}
