package outbox

import (
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
)

func newTestBreaker() *retry.CircuitBreaker {
	return retry.NewCircuitBreaker(2, time.Hour, nil)
}
