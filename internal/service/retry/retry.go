// Package retry повторяет единицы работы, проигравшие гонку optimistic locking,
// и ограничивает вызовы нестабильных внешних зависимостей.
package retry

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// Config конфигурация для retry логики.
type Config struct {
	MaxAttempts   int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// DefaultConfig возвращает конфигурацию по умолчанию.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:   3,
		InitialDelay:  20 * time.Millisecond,
		MaxDelay:      500 * time.Millisecond,
		BackoffFactor: 2.0,
	}
}

// Runner повторяет функцию при конфликте версий.
type Runner struct {
	config Config
	logger *log.Entry
}

// NewRunner создаёт Runner. Нулевые поля конфигурации заменяются значениями по умолчанию.
func NewRunner(config Config, logger *log.Entry) *Runner {
	def := DefaultConfig()
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = def.MaxAttempts
	}
	if config.InitialDelay < 0 {
		config.InitialDelay = 0
	}
	if config.MaxDelay <= 0 {
		config.MaxDelay = def.MaxDelay
	}
	if config.BackoffFactor < 1 {
		config.BackoffFactor = def.BackoffFactor
	}
	if logger == nil {
		logger = log.New().WithField("component", "retry")
	}
	return &Runner{config: config, logger: logger}
}

// Do выполняет fn, повторяя её с экспоненциальной задержкой, пока fn возвращает
// ErrVersionConflict. Остальные ошибки возвращаются сразу.
func (r *Runner) Do(ctx context.Context, operation string, fn func() error) error {
	var lastErr error
	delay := r.config.InitialDelay

	for attempt := 1; attempt <= r.config.MaxAttempts; attempt++ {
		err := fn()
		if err == nil {
			if attempt > 1 {
				r.logger.WithFields(log.Fields{
					"operation": operation,
					"attempt":   attempt,
				}).Info("operation succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if !ShouldRetry(err) {
			return err
		}
		if attempt == r.config.MaxAttempts {
			break
		}

		r.logger.WithFields(log.Fields{
			"operation": operation,
			"attempt":   attempt,
			"delay":     delay,
		}).WithError(err).Warn("operation failed, retrying")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay = time.Duration(float64(delay) * r.config.BackoffFactor)
		if delay > r.config.MaxDelay {
			delay = r.config.MaxDelay
		}
	}

	r.logger.WithFields(log.Fields{
		"operation":    operation,
		"max_attempts": r.config.MaxAttempts,
	}).WithError(lastErr).Error("operation failed after all retry attempts")
	return lastErr
}

// ShouldRetry определяет, стоит ли повторять единицу работы при данной ошибке.
func ShouldRetry(err error) bool {
	return domain.IsVersionConflict(err)
}

// ErrCircuitOpen возвращается, пока circuit breaker разомкнут.
var ErrCircuitOpen = errors.New("circuit breaker is open")

// CircuitState — состояние circuit breaker.
type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// CircuitBreaker размыкается после maxFailures подряд и пропускает пробный
// вызов по истечении resetTimeout.
type CircuitBreaker struct {
	maxFailures  int
	resetTimeout time.Duration
	logger       *log.Entry
	now          func() time.Time

	mu          sync.Mutex
	failures    int
	lastFailure time.Time
	state       CircuitState
}

// NewCircuitBreaker создаёт новый circuit breaker.
func NewCircuitBreaker(maxFailures int, resetTimeout time.Duration, logger *log.Entry) *CircuitBreaker {
	if maxFailures <= 0 {
		maxFailures = 5
	}
	if logger == nil {
		logger = log.New().WithField("component", "circuit-breaker")
	}

	return &CircuitBreaker{
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		logger:       logger,
		now:          time.Now,
		state:        CircuitClosed,
	}
}

// State возвращает текущее состояние.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// Execute выполняет операцию через circuit breaker.
func (cb *CircuitBreaker) Execute(operation string, fn func() error) error {
	cb.mu.Lock()
	if cb.state == CircuitOpen {
		if cb.now().Sub(cb.lastFailure) <= cb.resetTimeout {
			cb.mu.Unlock()
			return ErrCircuitOpen
		}
		cb.state = CircuitHalfOpen
		cb.logger.WithField("operation", operation).Info("circuit breaker half-open")
	}
	cb.mu.Unlock()

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailure = cb.now()
		if cb.state == CircuitHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = CircuitOpen
			cb.logger.WithFields(log.Fields{
				"operation": operation,
				"failures":  cb.failures,
			}).Warn("circuit breaker opened")
		}
		return err
	}

	if cb.state == CircuitHalfOpen {
		cb.logger.WithField("operation", operation).Info("circuit breaker closed")
	}
	cb.state = CircuitClosed
	cb.failures = 0
	return nil
}
