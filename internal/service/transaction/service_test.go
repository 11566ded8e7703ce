package transaction_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/servicetest"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

type fixture struct {
	env     *servicetest.Env
	svc     *transaction.Service
	seller  domain.User
	buyer   domain.User
	admin   domain.User
	product domain.Product
}

func newFixture(t *testing.T, opts ...transaction.Option) fixture {
	t.Helper()
	env := servicetest.New(t)
	seller := env.Seller(t, "sam")
	opts = append([]transaction.Option{transaction.WithIdempotency(idempotency.NewGuard(time.Hour))}, opts...)
	return fixture{
		env:     env,
		svc:     transaction.NewService(env.Exec, env.Metrics, nil, opts...),
		seller:  seller,
		buyer:   env.Buyer(t, "bob"),
		admin:   env.Admin(t, "ada"),
		product: env.Product(t, seller, env.Category(t, "cameras"), "100.00", "10.00"),
	}
}

func (f fixture) input() transaction.PlaceOrderInput {
	return transaction.PlaceOrderInput{
		ProductID:       f.product.ID,
		ShippingAddress: "1 Main St",
		ShippingCity:    "Springfield",
		ShippingCountry: "US",
	}
}

func (f fixture) place(t *testing.T, buyer domain.User) domain.Order {
	t.Helper()
	order, err := f.svc.PlaceOrder(context.Background(), buyer, f.input())
	require.NoError(t, err)
	return order
}

func (f fixture) history(t *testing.T, orderID string) []domain.OrderStatusEntry {
	t.Helper()
	entries, err := f.env.Repos().OrderHistory.List(orderID)
	require.NoError(t, err)
	return entries
}

func notificationsOfType(items []domain.Notification, typ domain.NotificationType) []domain.Notification {
	var result []domain.Notification
	for _, n := range items {
		if n.Type == typ {
			result = append(result, n)
		}
	}
	return result
}

func TestPlaceOrder_PricingHistoryAndNotification(t *testing.T) {
	f := newFixture(t)

	order := f.place(t, f.buyer)
	require.Equal(t, domain.OrderStatusPending, order.Status)
	require.True(t, domain.IsValidOrderNumber(order.OrderNumber))
	require.True(t, order.UnitPrice.Equal(decimal.RequireFromString("100")))
	require.True(t, order.ShippingCost.Equal(decimal.RequireFromString("10")))
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("110")))
	require.Equal(t, f.seller.ID, order.SellerID)

	entries := f.history(t, order.ID)
	require.Len(t, entries, 1)
	require.Equal(t, "Order created", entries[0].Notes)
	require.Equal(t, f.buyer.ID, entries[0].ChangedBy)

	created := notificationsOfType(f.env.Notifications(t, f.seller.ID), domain.NotificationOrderCreated)
	require.Len(t, created, 1)
	require.Equal(t, order.ID, created[0].OrderID)
}

func TestPlaceOrder_Guards(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.PlaceOrder(ctx, f.seller, f.input())
	require.ErrorIs(t, err, domain.ErrCannotBuy)

	trader := f.env.Trader(t, "tess")
	own := f.env.Product(t, trader, f.env.Category(t, "lenses"), "50.00", "0")
	_, err = f.svc.PlaceOrder(ctx, trader, transaction.PlaceOrderInput{ProductID: own.ID})
	require.ErrorIs(t, err, domain.ErrOrderOwnProduct)
	require.Equal(t, "You cannot purchase your own product", err.Error())

	in := f.input()
	in.ShippingMethodID = "missing"
	_, err = f.svc.PlaceOrder(ctx, f.buyer, in)
	require.ErrorIs(t, err, domain.ErrShippingMethodInvalid)

	in.ShippingMethodID = ""
	in.OfferID = "missing"
	_, err = f.svc.PlaceOrder(ctx, f.buyer, in)
	require.ErrorIs(t, err, domain.ErrOrderOfferInvalid)

	product := f.product
	product.Status = domain.ProductStatusInactive
	require.NoError(t, f.env.Repos().Products.Save(product))
	_, err = f.svc.PlaceOrder(ctx, f.buyer, f.input())
	require.ErrorIs(t, err, domain.ErrOrderProductNotForSale)
	require.Equal(t, "Product is not available for purchase", err.Error())
	require.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestPlaceOrder_AcceptedOfferSetsUnitPrice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	now := time.Now().UTC()

	offer := domain.Offer{
		ID:        ids.New(),
		ProductID: f.product.ID,
		BuyerID:   f.buyer.ID,
		SellerID:  f.seller.ID,
		Amount:    decimal.RequireFromString("90"),
		Status:    domain.OfferStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	require.NoError(t, f.env.Repos().Offers.Create(offer))

	in := f.input()
	in.OfferID = offer.ID
	_, err := f.svc.PlaceOrder(ctx, f.buyer, in)
	require.ErrorIs(t, err, domain.ErrOrderOfferInvalid)

	require.NoError(t, offer.Accept("ok", now))
	require.NoError(t, f.env.Repos().Offers.Save(offer))

	stranger := f.env.Buyer(t, "eve")
	_, err = f.svc.PlaceOrder(ctx, stranger, in)
	require.ErrorIs(t, err, domain.ErrOrderOfferInvalid)

	order, err := f.svc.PlaceOrder(ctx, f.buyer, in)
	require.NoError(t, err)
	require.Equal(t, offer.ID, order.OfferID)
	require.True(t, order.UnitPrice.Equal(decimal.RequireFromString("90")))
	require.True(t, order.TotalAmount.Equal(decimal.RequireFromString("100")))
}

func TestPlaceOrder_ShippingMethod(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateShippingMethod(ctx, f.buyer, transaction.ShippingMethodInput{Name: "Courier"})
	require.ErrorIs(t, err, domain.ErrStaffOnly)
	_, err = f.svc.CreateShippingMethod(ctx, f.admin, transaction.ShippingMethodInput{Name: " "})
	require.ErrorIs(t, err, domain.ErrShippingNameRequired)

	method, err := f.svc.CreateShippingMethod(ctx, f.admin, transaction.ShippingMethodInput{
		Name:          "Courier",
		BaseCost:      decimal.RequireFromString("7.5"),
		EstimatedDays: 3,
	})
	require.NoError(t, err)
	methods, err := f.svc.ListShippingMethods(ctx)
	require.NoError(t, err)
	require.Len(t, methods, 1)

	in := f.input()
	in.ShippingMethodID = method.ID
	order, err := f.svc.PlaceOrder(ctx, f.buyer, in)
	require.NoError(t, err)
	require.Equal(t, "Courier", order.ShippingName)
	require.True(t, order.ShippingCost.Equal(decimal.RequireFromString("10")))
}

func TestPlaceOrder_IdempotencyKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	in := f.input()
	in.IdempotencyKey = "checkout-1"
	first, err := f.svc.PlaceOrder(ctx, f.buyer, in)
	require.NoError(t, err)

	again, err := f.svc.PlaceOrder(ctx, f.buyer, in)
	require.NoError(t, err)
	require.Equal(t, first.ID, again.ID)
	require.Equal(t, first.OrderNumber, again.OrderNumber)

	in.BuyerNotes = "leave at the door"
	_, err = f.svc.PlaceOrder(ctx, f.buyer, in)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)
	require.Equal(t, domain.KindValidation, domain.KindOf(err))

	orders, err := f.svc.ListOrders(ctx, f.buyer, domain.OrderRoleBuyer, "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	require.Len(t, notificationsOfType(f.env.Notifications(t, f.seller.ID), domain.NotificationOrderCreated), 1)
}

func TestOrderLifecycle_HappyPath(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)

	approved, err := f.svc.ApproveOrder(ctx, f.seller, order.ID, "thanks")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusApproved, approved.Status)
	require.NotNil(t, approved.ApprovedAt)

	product, err := f.env.Repos().Products.Get(f.product.ID)
	require.NoError(t, err)
	require.Equal(t, domain.ProductStatusSold, product.Status)

	shipped, err := f.svc.ShipOrder(ctx, f.seller, order.ID, "TRK-42")
	require.NoError(t, err)
	require.Equal(t, "TRK-42", shipped.TrackingNumber)
	require.NotNil(t, shipped.ShippedAt)

	delivered, err := f.svc.DeliverOrder(ctx, f.buyer, order.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveredAt)

	entries, err := f.svc.OrderHistory(ctx, f.buyer, order.ID)
	require.NoError(t, err)
	require.Len(t, entries, 4)
	statuses := make([]domain.OrderStatus, 0, len(entries))
	for _, e := range entries {
		statuses = append(statuses, e.Status)
	}
	require.Equal(t, []domain.OrderStatus{
		domain.OrderStatusPending, domain.OrderStatusApproved, domain.OrderStatusShipped, domain.OrderStatusDelivered,
	}, statuses)

	buyerNotes := f.env.Notifications(t, f.buyer.ID)
	require.Len(t, notificationsOfType(buyerNotes, domain.NotificationOrderApproved), 1)
	require.Len(t, notificationsOfType(buyerNotes, domain.NotificationOrderShipped), 1)
	require.Len(t, notificationsOfType(f.env.Notifications(t, f.seller.ID), domain.NotificationOrderDelivered), 1)
}

func TestOrderHistory_DefaultNotesWithoutCallerText(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)
	other := f.place(t, f.buyer)

	_, err := f.svc.CancelOrder(ctx, f.seller, other.ID, "")
	require.NoError(t, err)
	_, err = f.svc.ApproveOrder(ctx, f.seller, order.ID, "")
	require.NoError(t, err)
	_, err = f.svc.ShipOrder(ctx, f.seller, order.ID, "")
	require.NoError(t, err)
	_, err = f.svc.DeliverOrder(ctx, f.buyer, order.ID)
	require.NoError(t, err)

	notes := func(orderID string) []string {
		var result []string
		for _, e := range f.history(t, orderID) {
			require.NotEmpty(t, e.Notes, "status %s", e.Status)
			result = append(result, e.Notes)
		}
		return result
	}
	require.Equal(t, []string{
		"Order created", "Order approved by seller", "Order shipped", "Delivery confirmed by buyer",
	}, notes(order.ID))
	require.Equal(t, []string{"Order created", "Order cancelled by seller"}, notes(other.ID))
}

func TestOrderHistory_CallerTextAppendedToNotes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)
	rejected := f.place(t, f.buyer)

	_, err := f.svc.RejectOrder(ctx, f.seller, rejected.ID, "out of stock")
	require.NoError(t, err)
	_, err = f.svc.ApproveOrder(ctx, f.seller, order.ID, "thanks")
	require.NoError(t, err)
	_, err = f.svc.ShipOrder(ctx, f.seller, order.ID, "TRK-7")
	require.NoError(t, err)

	entries := f.history(t, order.ID)
	require.Equal(t, "Order approved by seller: thanks", entries[1].Notes)
	require.Equal(t, "Order shipped: Tracking number: TRK-7", entries[2].Notes)
	require.Equal(t, "Order rejected by seller: out of stock", f.history(t, rejected.ID)[1].Notes)
}

func TestTransitions_RoleAndStateChecks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)
	stranger := f.env.Buyer(t, "eve")

	_, err := f.svc.ApproveOrder(ctx, f.buyer, order.ID, "")
	require.ErrorIs(t, err, domain.ErrNotOrderSeller)
	require.Equal(t, domain.KindForbidden, domain.KindOf(err))

	_, err = f.svc.CancelOrder(ctx, stranger, order.ID, "")
	require.ErrorIs(t, err, domain.ErrNotOrderParty)

	_, err = f.svc.ShipOrder(ctx, f.seller, order.ID, "TRK")
	require.ErrorIs(t, err, domain.ErrOrderTransition)
	require.Equal(t, domain.KindState, domain.KindOf(err))

	_, err = f.svc.DeliverOrder(ctx, f.seller, order.ID)
	require.ErrorIs(t, err, domain.ErrNotOrderBuyer)

	require.Len(t, f.history(t, order.ID), 1)
}

func TestRejectOrder_KeepsProductAvailable(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)

	rejected, err := f.svc.RejectOrder(ctx, f.seller, order.ID, "out of stock")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusRejected, rejected.Status)
	require.Equal(t, "out of stock", rejected.SellerNotes)

	product, err := f.env.Repos().Products.Get(f.product.ID)
	require.NoError(t, err)
	require.True(t, product.IsAvailable())
}

func TestCancelOrder_OnlyWhilePending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pending := f.place(t, f.buyer)
	cancelled, err := f.svc.CancelOrder(ctx, f.buyer, pending.ID, "changed my mind")
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancelledAt)
	require.Len(t, notificationsOfType(f.env.Notifications(t, f.seller.ID), domain.NotificationOrderCancelled), 1)

	order := f.place(t, f.buyer)
	_, err = f.svc.ApproveOrder(ctx, f.seller, order.ID, "")
	require.NoError(t, err)
	before := len(f.history(t, order.ID))

	_, err = f.svc.CancelOrder(ctx, f.seller, order.ID, "too late")
	require.ErrorIs(t, err, domain.ErrOrderCannotCancel)
	require.Equal(t, "Order cannot be cancelled at this stage", err.Error())
	require.Len(t, f.history(t, order.ID), before)
}

func TestApproveOrder_SecondOrderOnSameProductFails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.place(t, f.buyer)
	second := f.place(t, f.env.Buyer(t, "eve"))

	_, err := f.svc.ApproveOrder(ctx, f.seller, first.ID, "")
	require.NoError(t, err)

	_, err = f.svc.ApproveOrder(ctx, f.seller, second.ID, "")
	require.ErrorIs(t, err, domain.ErrProductUnavailable)

	got, err := f.svc.GetOrder(ctx, f.seller, second.ID)
	require.NoError(t, err)
	require.Equal(t, domain.OrderStatusPending, got.Status)
	require.Len(t, f.history(t, second.ID), 1)
}

func TestApproveOrder_ConcurrentApprovalsSellOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const buyers = 8
	orders := make([]domain.Order, 0, buyers)
	for i := 0; i < buyers; i++ {
		orders = append(orders, f.place(t, f.env.Buyer(t, "buyer-"+ids.New())))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		approved int
	)
	for _, order := range orders {
		wg.Add(1)
		go func(orderID string) {
			defer wg.Done()
			_, err := f.svc.ApproveOrder(ctx, f.seller, orderID, "")
			if err == nil {
				mu.Lock()
				approved++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, domain.ErrProductUnavailable)
		}(order.ID)
	}
	wg.Wait()

	require.Equal(t, 1, approved)
}

func TestPlaceOrder_ConcurrentOrderNumbersAreUnique(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	const (
		workers   = 8
		perWorker = 50
	)
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = make(map[string]struct{}, workers*perWorker)
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				order, err := f.svc.PlaceOrder(ctx, f.buyer, f.input())
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				numbers[order.OrderNumber] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Len(t, numbers, workers*perWorker)
}

func TestOrderVisibility(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	order := f.place(t, f.buyer)
	stranger := f.env.Buyer(t, "eve")

	_, err := f.svc.GetOrder(ctx, stranger, order.ID)
	require.ErrorIs(t, err, domain.ErrNotOrderParty)
	_, err = f.svc.OrderHistory(ctx, stranger, order.ID)
	require.ErrorIs(t, err, domain.ErrNotOrderParty)

	_, err = f.svc.GetOrder(ctx, f.admin, order.ID)
	require.NoError(t, err)

	sales, err := f.svc.ListOrders(ctx, f.seller, domain.OrderRoleSeller, "", 0)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	purchases, err := f.svc.ListOrders(ctx, f.seller, domain.OrderRoleBuyer, "", 0)
	require.NoError(t, err)
	require.Empty(t, purchases)
}

func TestOrderStatistics(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	delivered := f.place(t, f.buyer)
	_, err := f.svc.ApproveOrder(ctx, f.seller, delivered.ID, "")
	require.NoError(t, err)
	_, err = f.svc.ShipOrder(ctx, f.seller, delivered.ID, "TRK")
	require.NoError(t, err)
	_, err = f.svc.DeliverOrder(ctx, f.buyer, delivered.ID)
	require.NoError(t, err)

	other := f.env.Product(t, f.seller, f.env.Category(t, "phones"), "20.00", "0")
	_, err = f.svc.PlaceOrder(ctx, f.buyer, transaction.PlaceOrderInput{ProductID: other.ID})
	require.NoError(t, err)

	_, err = f.svc.OpenDispute(ctx, f.buyer, transaction.OpenDisputeInput{
		OrderID:     delivered.ID,
		Type:        domain.DisputeDamagedItem,
		Description: "cracked lens",
	})
	require.NoError(t, err)

	buyerStats, err := f.svc.OrderStatistics(ctx, f.buyer)
	require.NoError(t, err)
	require.Equal(t, 2, buyerStats.BuyerTotal)
	require.Equal(t, 1, buyerStats.BuyerPending)
	require.Equal(t, 1, buyerStats.BuyerCompleted)
	require.True(t, buyerStats.BuyerSpent.Equal(decimal.RequireFromString("110")))
	require.Equal(t, 1, buyerStats.DisputesOpened)
	require.Equal(t, 1, buyerStats.DisputesActive)
	require.Len(t, buyerStats.RecentPurchases, 2)

	sellerStats, err := f.svc.OrderStatistics(ctx, f.seller)
	require.NoError(t, err)
	require.Equal(t, 2, sellerStats.SellerTotal)
	require.True(t, sellerStats.SellerRevenue.Equal(decimal.RequireFromString("110")))
	require.Zero(t, sellerStats.DisputesOpened)
}
