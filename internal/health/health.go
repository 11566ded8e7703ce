// Package health собирает проверки зависимостей для проб и панели администратора.
package health

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"time"
)

// Status — состояние компонента.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
	StatusDegraded  Status = "degraded"
)

const defaultCheckTimeout = 3 * time.Second

// Check — результат одной проверки.
type Check struct {
	Name       string `json:"name"`
	Status     Status `json:"status"`
	Message    string `json:"message,omitempty"`
	DurationMs int64  `json:"duration_ms"`
}

// Report — сводный результат всех проверок.
type Report struct {
	Status        Status           `json:"status"`
	Timestamp     time.Time        `json:"timestamp"`
	Checks        map[string]Check `json:"checks,omitempty"`
	Version       string           `json:"version,omitempty"`
	UptimeSeconds int64            `json:"uptime_seconds"`
}

// Checker проверяет один компонент.
type Checker interface {
	Check(ctx context.Context) Check
}

// Registry хранит проверки и отдаёт их результат по HTTP.
type Registry struct {
	mu        sync.RWMutex
	checkers  map[string]Checker
	version   string
	startTime time.Time
	timeout   time.Duration
}

// NewRegistry создаёт реестр проверок.
func NewRegistry(version string) *Registry {
	return &Registry{
		checkers:  make(map[string]Checker),
		version:   version,
		startTime: time.Now(),
		timeout:   defaultCheckTimeout,
	}
}

// Register добавляет проверку. Повторное имя заменяет прежнюю.
func (r *Registry) Register(name string, checker Checker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.checkers[name] = checker
}

func (r *Registry) snapshot() map[string]Checker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	checkers := make(map[string]Checker, len(r.checkers))
	for k, v := range r.checkers {
		checkers[k] = v
	}
	return checkers
}

// Run выполняет все проверки. Общий статус — худший из статусов проверок.
func (r *Registry) Run(ctx context.Context) Report {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	checkers := r.snapshot()
	names := make([]string, 0, len(checkers))
	for name := range checkers {
		names = append(names, name)
	}
	sort.Strings(names)

	checks := make(map[string]Check, len(checkers))
	overall := StatusHealthy
	for _, name := range names {
		check := checkers[name].Check(ctx)
		check.Name = name
		checks[name] = check
		switch {
		case check.Status == StatusUnhealthy:
			overall = StatusUnhealthy
		case check.Status == StatusDegraded && overall == StatusHealthy:
			overall = StatusDegraded
		}
	}

	return Report{
		Status:        overall,
		Timestamp:     time.Now().UTC(),
		Checks:        checks,
		Version:       r.version,
		UptimeSeconds: int64(time.Since(r.startTime).Seconds()),
	}
}

// ServeHTTP отдаёт отчёт. Неисправный компонент даёт 503, деградация — 200.
func (r *Registry) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	report := r.Run(req.Context())

	code := http.StatusOK
	if report.Status == StatusUnhealthy {
		code = http.StatusServiceUnavailable
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(report)
}

// LivenessHandler всегда отвечает 200.
func LivenessHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

// ReadinessHandler отвечает 503, пока хотя бы одна проверка неисправна.
func (r *Registry) ReadinessHandler(w http.ResponseWriter, req *http.Request) {
	if r.Run(req.Context()).Status == StatusUnhealthy {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// PingChecker считает компонент исправным, пока ping не вернул ошибку.
type PingChecker struct {
	ping func(ctx context.Context) error
	// optional: ошибка даёт degraded вместо unhealthy.
	optional bool
}

// NewPingChecker создаёт обязательную проверку.
func NewPingChecker(ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{ping: ping}
}

// NewOptionalChecker создаёт проверку компонента, без которого сервис работает.
func NewOptionalChecker(ping func(ctx context.Context) error) *PingChecker {
	return &PingChecker{ping: ping, optional: true}
}

// Check выполняет ping.
func (c *PingChecker) Check(ctx context.Context) Check {
	start := time.Now()
	err := c.ping(ctx)
	check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	if err != nil {
		check.Status = StatusUnhealthy
		if c.optional {
			check.Status = StatusDegraded
		}
		check.Message = err.Error()
	}
	return check
}

// Backlog — размер очереди и возраст самого старого элемента.
type Backlog struct {
	Pending   int
	OldestAge time.Duration
}

// BacklogChecker помечает очередь деградировавшей, когда её возраст превышает порог.
type BacklogChecker struct {
	read   func() (Backlog, error)
	maxAge time.Duration
}

// NewBacklogChecker создаёт проверку очереди.
func NewBacklogChecker(read func() (Backlog, error), maxAge time.Duration) *BacklogChecker {
	return &BacklogChecker{read: read, maxAge: maxAge}
}

// Check читает состояние очереди.
func (c *BacklogChecker) Check(_ context.Context) Check {
	start := time.Now()
	backlog, err := c.read()
	check := Check{Status: StatusHealthy, DurationMs: time.Since(start).Milliseconds()}
	switch {
	case err != nil:
		check.Status = StatusUnhealthy
		check.Message = err.Error()
	case c.maxAge > 0 && backlog.OldestAge > c.maxAge:
		check.Status = StatusDegraded
		check.Message = fmt.Sprintf("%d pending, oldest %s", backlog.Pending, backlog.OldestAge.Round(time.Second))
	case backlog.Pending > 0:
		check.Message = fmt.Sprintf("%d pending", backlog.Pending)
	}
	return check
}
