package outbox

import (
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
)

// BreakerPublisher пропускает публикацию через circuit breaker, чтобы worker
// не долбил недоступный брокер каждым сообщением батча.
type BreakerPublisher struct {
	next    domain.OutboxPublisher
	breaker *retry.CircuitBreaker
}

// NewBreakerPublisher оборачивает publisher.
func NewBreakerPublisher(next domain.OutboxPublisher, breaker *retry.CircuitBreaker) *BreakerPublisher {
	return &BreakerPublisher{next: next, breaker: breaker}
}

// Publish реализует domain.OutboxPublisher.
func (p *BreakerPublisher) Publish(event domain.OutboxMessage) error {
	return p.breaker.Execute("outbox.publish", func() error {
		return p.next.Publish(event)
	})
}

var _ domain.OutboxPublisher = (*BreakerPublisher)(nil)
