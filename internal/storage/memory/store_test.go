package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

func seedProduct(t *testing.T, repos domain.Repositories, id string) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Product{
		ID:         id,
		SellerID:   "seller-1",
		CategoryID: "cat-1",
		Title:      "Bike",
		Condition:  domain.ConditionGood,
		Price:      decimal.RequireFromString("100"),
		Status:     domain.ProductStatusActive,
		IsActive:   true,
		IsVerified: true,
		Version:    1,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	require.NoError(t, repos.Products.Create(p))
	return p
}

func TestWithinTxRollsBackOnError(t *testing.T) {
	store := memory.NewStore()
	seedProduct(t, store.Repos(), "p-1")
	boom := errors.New("boom")

	err := store.WithinTx(context.Background(), func(repos domain.Repositories) error {
		p, err := repos.Products.Get("p-1")
		require.NoError(t, err)
		require.NoError(t, p.MarkSold(time.Now()))
		require.NoError(t, repos.Products.Save(p))
		require.NoError(t, repos.Favorites.Add(domain.Favorite{UserID: "u-1", ProductID: "p-1"}))
		require.NoError(t, repos.Products.AdjustFavorites("p-1", 1))
		_, err = repos.Outbox.Enqueue(domain.OutboxMessage{AggregateType: domain.AggregateProduct})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	repos := store.Repos()
	p, err := repos.Products.Get("p-1")
	require.NoError(t, err)
	require.Equal(t, domain.ProductStatusActive, p.Status)
	require.Equal(t, int64(1), p.Version)
	require.Zero(t, p.FavoritesCount)

	exists, err := repos.Favorites.Exists("u-1", "p-1")
	require.NoError(t, err)
	require.False(t, exists)

	stats, err := repos.Outbox.Stats()
	require.NoError(t, err)
	require.Zero(t, stats.PendingCount)
}

func TestWithinTxRollsBackOnPanic(t *testing.T) {
	store := memory.NewStore()

	require.Panics(t, func() {
		_ = store.WithinTx(context.Background(), func(repos domain.Repositories) error {
			_ = repos.Users.Create(domain.User{ID: "u-1", Username: "ann", Email: "ann@example.com"})
			panic("unexpected")
		})
	})

	_, err := store.Repos().Users.Get("u-1")
	require.ErrorIs(t, err, domain.ErrUserNotFound)

	// Мьютекс должен быть освобождён.
	require.NoError(t, store.Repos().Users.Create(domain.User{ID: "u-1", Username: "ann", Email: "ann@example.com"}))
}

func TestWithinTxHonorsCancelledContext(t *testing.T) {
	store := memory.NewStore()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := store.WithinTx(ctx, func(domain.Repositories) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
	require.False(t, called)
}

func TestUserRepositoryUniqueness(t *testing.T) {
	repos := memory.NewStore().Repos()
	require.NoError(t, repos.Users.Create(domain.User{ID: "u-1", Username: "Ann", Email: "ann@example.com"}))

	require.ErrorIs(t, repos.Users.Create(domain.User{ID: "u-2", Username: "ann", Email: "x@example.com"}), domain.ErrUsernameTaken)
	require.ErrorIs(t, repos.Users.Create(domain.User{ID: "u-3", Username: "bob", Email: "ANN@example.com"}), domain.ErrEmailTaken)
}

func TestProductSaveVersionConflict(t *testing.T) {
	repos := memory.NewStore().Repos()
	seedProduct(t, repos, "p-1")

	first, err := repos.Products.Get("p-1")
	require.NoError(t, err)
	second := first

	first.Title = "Road bike"
	require.NoError(t, repos.Products.Save(first))

	second.Title = "Mountain bike"
	require.True(t, domain.IsVersionConflict(repos.Products.Save(second)))

	stored, err := repos.Products.Get("p-1")
	require.NoError(t, err)
	require.Equal(t, "Road bike", stored.Title)
	require.Equal(t, int64(2), stored.Version)
}

func TestProductCountersAreAtomic(t *testing.T) {
	repos := memory.NewStore().Repos()
	seedProduct(t, repos, "p-1")

	for i := 0; i < 3; i++ {
		_, err := repos.Products.IncrementViews("p-1")
		require.NoError(t, err)
	}
	require.NoError(t, repos.Products.AdjustFavorites("p-1", -1))

	p, err := repos.Products.Get("p-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.ViewsCount)
	require.Zero(t, p.FavoritesCount, "favorites must not go negative")

	// Save со старыми счётчиками не перетирает атомарные изменения.
	p.ViewsCount = 0
	require.NoError(t, repos.Products.Save(p))
	p, err = repos.Products.Get("p-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), p.ViewsCount)
}

func TestProductListSortAndPaging(t *testing.T) {
	repos := memory.NewStore().Repos()
	base := time.Now().UTC()
	for i, price := range []string{"30", "10", "20"} {
		p := seedProduct(t, repos, "p-"+price)
		p.Price = decimal.RequireFromString(price)
		p.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, repos.Products.Save(p))
	}

	list, err := repos.Products.List(domain.ProductFilter{DiscoverableOnly: true, Sort: domain.SortPriceLow})
	require.NoError(t, err)
	require.Len(t, list, 3)
	require.Equal(t, []string{"p-10", "p-20", "p-30"}, []string{list[0].ID, list[1].ID, list[2].ID})

	page, err := repos.Products.List(domain.ProductFilter{Sort: domain.SortNewest, Offset: 1, Limit: 1})
	require.NoError(t, err)
	require.Len(t, page, 1)
	require.Equal(t, "p-10", page[0].ID)
}

func TestOrderRepositoryRejectsTakenNumber(t *testing.T) {
	repos := memory.NewStore().Repos()
	order := domain.Order{ID: "o-1", OrderNumber: "ABCD1234", BuyerID: "b", SellerID: "s", ProductID: "p", Status: domain.OrderStatusPending}
	require.NoError(t, repos.Orders.Create(order))

	dup := order
	dup.ID = "o-2"
	require.ErrorIs(t, repos.Orders.Create(dup), domain.ErrOrderNumberTaken)

	got, err := repos.Orders.GetByNumber("ABCD1234")
	require.NoError(t, err)
	require.Equal(t, "o-1", got.ID)
}

func TestOfferRepositorySinglePending(t *testing.T) {
	repos := memory.NewStore().Repos()
	offer := domain.Offer{ID: "of-1", ProductID: "p-1", BuyerID: "b-1", Status: domain.OfferStatusPending}
	require.NoError(t, repos.Offers.Create(offer))

	second := offer
	second.ID = "of-2"
	require.ErrorIs(t, repos.Offers.Create(second), domain.ErrOfferDuplicatePending)

	offer.Status = domain.OfferStatusRejected
	require.NoError(t, repos.Offers.Save(offer))
	require.NoError(t, repos.Offers.Create(second))
}

func TestImageRepositorySetMain(t *testing.T) {
	repos := memory.NewStore().Repos()
	now := time.Now()
	require.NoError(t, repos.Images.Add(domain.ProductImage{ID: "i-1", ProductID: "p-1", IsMain: true, CreatedAt: now}))
	require.NoError(t, repos.Images.Add(domain.ProductImage{ID: "i-2", ProductID: "p-1", CreatedAt: now.Add(time.Second)}))

	require.NoError(t, repos.Images.SetMain("p-1", "i-2"))

	images, err := repos.Images.ListByProduct("p-1")
	require.NoError(t, err)
	require.False(t, images[0].IsMain)
	require.True(t, images[1].IsMain)

	require.ErrorIs(t, repos.Images.SetMain("p-2", "i-1"), domain.ErrImageNotFound)
}

func TestMessagesUnreadExcludesOwn(t *testing.T) {
	repos := memory.NewStore().Repos()
	now := time.Now()
	require.NoError(t, repos.Conversations.Create(domain.Conversation{ID: "c-1", ProductID: "p-1", BuyerID: "b", SellerID: "s", IsActive: true, CreatedAt: now}))
	require.NoError(t, repos.Messages.Create(domain.Message{ID: "m-1", ConversationID: "c-1", SenderID: "b", Content: "hi"}))
	require.NoError(t, repos.Messages.Create(domain.Message{ID: "m-2", ConversationID: "c-1", SenderID: "s", Content: "hello"}))

	n, err := repos.Messages.CountUnread("b")
	require.NoError(t, err)
	require.Equal(t, 1, n)

	marked, err := repos.Messages.MarkRead("c-1", "b")
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	n, err = repos.Messages.CountUnread("b")
	require.NoError(t, err)
	require.Zero(t, n)

	// Личные сообщения хранятся отдельно.
	n, err = repos.DirectMessages.CountUnread("s")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestNotificationRepositoryScopesByRecipient(t *testing.T) {
	repos := memory.NewStore().Repos()
	require.NoError(t, repos.Notifications.Create(domain.Notification{ID: "n-1", RecipientID: "u-1", Type: domain.NotificationOffer}))
	require.ErrorIs(t, repos.Notifications.Create(domain.Notification{ID: "n-1", RecipientID: "u-1"}), domain.ErrNotificationExists)

	require.ErrorIs(t, repos.Notifications.MarkRead("u-2", "n-1"), domain.ErrNotificationNotFound)
	require.ErrorIs(t, repos.Notifications.Delete("u-2", "n-1"), domain.ErrNotificationNotFound)

	require.NoError(t, repos.Notifications.MarkRead("u-1", "n-1"))
	n, err := repos.Notifications.CountUnread("u-1")
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStatsTotalsAndRevenue(t *testing.T) {
	repos := memory.NewStore().Repos()
	now := time.Now().UTC()
	orders := []domain.Order{
		{ID: "o-1", OrderNumber: "AAAAAAA1", SellerID: "s", BuyerID: "b", Status: domain.OrderStatusDelivered, TotalAmount: decimal.RequireFromString("110"), CreatedAt: now},
		{ID: "o-2", OrderNumber: "AAAAAAA2", SellerID: "s", BuyerID: "b", Status: domain.OrderStatusShipped, TotalAmount: decimal.RequireFromString("40"), CreatedAt: now},
		{ID: "o-3", OrderNumber: "AAAAAAA3", SellerID: "s", BuyerID: "b", Status: domain.OrderStatusPending, TotalAmount: decimal.RequireFromString("5"), CreatedAt: now.Add(-48 * time.Hour)},
	}
	for _, o := range orders {
		require.NoError(t, repos.Orders.Create(o))
	}

	totals, err := repos.Stats.Totals()
	require.NoError(t, err)
	require.Equal(t, 3, totals.TotalOrders)
	require.Equal(t, 1, totals.CompletedOrders)
	require.True(t, totals.TotalRevenue.Equal(decimal.RequireFromString("110")))

	counts, err := repos.Stats.PeriodCounts(now.Add(-time.Hour), now.Add(time.Hour))
	require.NoError(t, err)
	require.Equal(t, 2, counts.NewOrders)

	revenue, err := repos.Stats.RevenueFor(
		domain.OrderFilter{UserID: "s", Role: domain.OrderRoleSeller},
		domain.OrderStatusShipped, domain.OrderStatusDelivered,
	)
	require.NoError(t, err)
	require.True(t, revenue.Equal(decimal.RequireFromString("150")))
}
