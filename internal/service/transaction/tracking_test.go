package transaction_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

type stubTrackingCache struct {
	mu          sync.Mutex
	items       map[string]domain.OrderTracking
	hits        int
	invalidated []string
}

func newStubTrackingCache() *stubTrackingCache {
	return &stubTrackingCache{items: make(map[string]domain.OrderTracking)}
}

func (c *stubTrackingCache) Get(_ context.Context, orderNumber string) (domain.OrderTracking, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	t, ok := c.items[orderNumber]
	if ok {
		c.hits++
	}
	return t, ok, nil
}

func (c *stubTrackingCache) Set(_ context.Context, tracking domain.OrderTracking) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[tracking.OrderNumber] = tracking
	return nil
}

func (c *stubTrackingCache) Invalidate(_ context.Context, orderNumber string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, orderNumber)
	c.invalidated = append(c.invalidated, orderNumber)
	return nil
}

func TestTrackOrder_CachedUntilTransition(t *testing.T) {
	cache := newStubTrackingCache()
	f := newFixture(t, transaction.WithTrackingCache(cache))
	ctx := context.Background()
	order := f.place(t, f.buyer)

	tracking, err := f.svc.TrackOrder(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, tracking.Status)
	require.Len(t, tracking.History, 1)
	require.Zero(t, cache.hits)

	_, err = f.svc.TrackOrder(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, 1, cache.hits)

	_, err = f.svc.ApproveOrder(ctx, f.seller, order.ID, "")
	require.NoError(t, err)
	require.Equal(t, []string{order.OrderNumber}, cache.invalidated)

	tracking, err = f.svc.TrackOrder(ctx, order.OrderNumber)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusApproved, tracking.Status)
	require.Len(t, tracking.History, 2)
	require.Equal(t, 1, cache.hits)
}

func TestTrackOrder_UnknownOrMalformedNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.TrackOrder(ctx, "nope")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	_, err = f.svc.TrackOrder(ctx, "ZZZZZZZZ")
	require.ErrorIs(t, err, domain.ErrOrderNotFound)

	order := f.place(t, f.buyer)
	tracking, err := f.svc.TrackOrder(ctx, " "+order.OrderNumber+" ")
	require.NoError(t, err)
	require.Equal(t, order.OrderNumber, tracking.OrderNumber)
}
