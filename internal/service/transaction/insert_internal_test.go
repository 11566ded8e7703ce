package transaction

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

// collidingOrders отклоняет первые taken вставок как занятые номера.
type collidingOrders struct {
	domain.OrderRepository
	taken   int
	numbers []string
}

func (r *collidingOrders) Create(order domain.Order) error {
	r.numbers = append(r.numbers, order.OrderNumber)
	if len(r.numbers) <= r.taken {
		return domain.ErrOrderNumberTaken
	}
	return nil
}

func TestInsertOrder_RegeneratesNumberOnCollision(t *testing.T) {
	s := NewService(nil, nil, nil)
	repo := &collidingOrders{taken: 3}
	order := validOrder()

	require.NoError(t, s.insertOrder(context.Background(), repo, &order))
	require.Len(t, repo.numbers, 4)
	require.Equal(t, repo.numbers[3], order.OrderNumber)
}

func TestInsertOrder_KeepsRegeneratingThroughLongCollisionRuns(t *testing.T) {
	s := NewService(nil, nil, nil)
	repo := &collidingOrders{taken: 100}
	order := validOrder()

	require.NoError(t, s.insertOrder(context.Background(), repo, &order))
	require.Len(t, repo.numbers, 101)
	require.Equal(t, repo.numbers[100], order.OrderNumber)
}

func TestInsertOrder_StopsWhenContextCancelled(t *testing.T) {
	s := NewService(nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	repo := &cancellingOrders{cancel: cancel, after: 3}
	order := validOrder()

	err := s.insertOrder(ctx, repo, &order)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, 3, repo.calls)
}

// cancellingOrders всегда сообщает о коллизии и отменяет контекст на after-й вставке.
type cancellingOrders struct {
	domain.OrderRepository
	cancel context.CancelFunc
	after  int
	calls  int
}

func (r *cancellingOrders) Create(domain.Order) error {
	r.calls++
	if r.calls == r.after {
		r.cancel()
	}
	return domain.ErrOrderNumberTaken
}

type failingOrders struct {
	domain.OrderRepository
}

func (failingOrders) Create(domain.Order) error { return errors.New("disk full") }

func TestInsertOrder_PropagatesOtherErrors(t *testing.T) {
	s := NewService(nil, nil, nil)
	order := validOrder()

	err := s.insertOrder(context.Background(), failingOrders{}, &order)
	require.EqualError(t, err, "disk full")
}

func validOrder() domain.Order {
	o := domain.Order{BuyerID: "b", SellerID: "s", ProductID: "p"}
	o.Price(decimal.NewFromInt(10), decimal.Zero)
	return o
}
