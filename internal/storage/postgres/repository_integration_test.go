package postgres

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

func TestUserRepository_PostgresUniqueness(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repos := store.Repos()
	seller, _, _ := seedMarketplace(t, repos)

	dup := seller
	dup.ID = "u-other"
	dup.Email = "other@example.com"
	dup.Username = "SELLER"
	require.ErrorIs(t, repos.Users.Create(dup), domain.ErrUsernameTaken)

	dup.Username = "other"
	dup.Email = "Seller@Example.com"
	require.ErrorIs(t, repos.Users.Create(dup), domain.ErrEmailTaken)
}

func TestProductRepository_PostgresVersionAndCounters(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repos := store.Repos()
	_, _, product := seedMarketplace(t, repos)

	views, err := repos.Products.IncrementViews(product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, views)

	require.NoError(t, repos.Products.AdjustFavorites(product.ID, -1))

	product.Title = "Camera body"
	require.NoError(t, repos.Products.Save(product))
	require.ErrorIs(t, repos.Products.Save(product), domain.ErrVersionConflict)

	got, err := repos.Products.Get(product.ID)
	require.NoError(t, err)
	require.Equal(t, "Camera body", got.Title)
	require.EqualValues(t, 2, got.Version)
	require.EqualValues(t, 1, got.ViewsCount)
	require.EqualValues(t, 0, got.FavoritesCount)

	listed, err := repos.Products.List(domain.ProductFilter{DiscoverableOnly: true})
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestOrderRepository_PostgresNumberAndVersion(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repos := store.Repos()
	seller, buyer, product := seedMarketplace(t, repos)

	now := time.Now().UTC().Truncate(time.Microsecond)
	order := domain.Order{
		ID: "o-1", OrderNumber: "ABCD1234", BuyerID: buyer.ID, SellerID: seller.ID, ProductID: product.ID,
		Status: domain.OrderStatusPending, Version: 1, CreatedAt: now, UpdatedAt: now,
	}
	order.Price(product.Price, decimal.RequireFromString("5.00"))
	require.NoError(t, repos.Orders.Create(order))

	clash := order
	clash.ID = "o-2"
	require.ErrorIs(t, repos.Orders.Create(clash), domain.ErrOrderNumberTaken)

	byNumber, err := repos.Orders.GetByNumber("ABCD1234")
	require.NoError(t, err)
	require.True(t, byNumber.TotalAmount.Equal(decimal.RequireFromString("105.00")))

	require.NoError(t, order.Transition(domain.OrderStatusApproved, now))
	require.NoError(t, repos.Orders.Save(order))
	require.ErrorIs(t, repos.Orders.Save(order), domain.ErrVersionConflict)

	missing := order
	missing.ID = "o-missing"
	require.ErrorIs(t, repos.Orders.Save(missing), domain.ErrOrderNotFound)

	require.NoError(t, repos.OrderHistory.Append(domain.OrderStatusEntry{
		ID: "h-1", OrderID: order.ID, Status: domain.OrderStatusApproved, ChangedBy: seller.ID, CreatedAt: now,
	}))
	history, err := repos.OrderHistory.List(order.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)

	sales, err := repos.Orders.List(domain.OrderFilter{UserID: seller.ID, Role: domain.OrderRoleSeller})
	require.NoError(t, err)
	require.Len(t, sales, 1)

	revenue, err := repos.Stats.RevenueFor(domain.OrderFilter{UserID: buyer.ID, Role: domain.OrderRoleBuyer}, domain.OrderStatusApproved)
	require.NoError(t, err)
	require.True(t, revenue.Equal(decimal.RequireFromString("105")))
}

func TestOfferRepository_PostgresSinglePending(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repos := store.Repos()
	seller, buyer, product := seedMarketplace(t, repos)

	now := time.Now().UTC()
	offer := domain.Offer{
		ID: "of-1", ProductID: product.ID, BuyerID: buyer.ID, SellerID: seller.ID,
		Amount: decimal.RequireFromString("80"), Status: domain.OfferStatusPending, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repos.Offers.Create(offer))

	second := offer
	second.ID = "of-2"
	require.ErrorIs(t, repos.Offers.Create(second), domain.ErrOfferDuplicatePending)

	require.NoError(t, offer.Reject("no", now))
	require.NoError(t, repos.Offers.Save(offer))
	require.NoError(t, repos.Offers.Create(second))

	pending, err := repos.Offers.HasPending(product.ID, buyer.ID)
	require.NoError(t, err)
	require.True(t, pending)
}

func TestInteractionRepositories_PostgresUnreadCounts(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repos := store.Repos()
	seller, buyer, product := seedMarketplace(t, repos)

	now := time.Now().UTC()
	conv := domain.Conversation{
		ID: "cv-1", ProductID: product.ID, BuyerID: buyer.ID, SellerID: seller.ID,
		IsActive: true, CreatedAt: now, UpdatedAt: now,
	}
	require.NoError(t, repos.Conversations.Create(conv))
	dup := conv
	dup.ID = "cv-2"
	require.ErrorIs(t, repos.Conversations.Create(dup), domain.ErrConversationExists)

	require.NoError(t, repos.Messages.Create(domain.Message{ID: "m-1", ConversationID: conv.ID, SenderID: buyer.ID, Content: "hi", CreatedAt: now}))
	require.NoError(t, repos.Messages.Create(domain.Message{ID: "m-2", ConversationID: conv.ID, SenderID: seller.ID, Content: "hello", CreatedAt: now.Add(time.Second)}))

	unread, err := repos.Messages.CountUnread(seller.ID)
	require.NoError(t, err)
	require.Equal(t, 1, unread)

	marked, err := repos.Messages.MarkRead(conv.ID, seller.ID)
	require.NoError(t, err)
	require.Equal(t, 1, marked)

	n := domain.Notification{ID: "n-1", RecipientID: seller.ID, Type: domain.NotificationMessage, Title: "New message", ConversationID: conv.ID, CreatedAt: now}
	require.NoError(t, repos.Notifications.Create(n))
	require.ErrorIs(t, repos.Notifications.Create(n), domain.ErrNotificationExists)
	require.ErrorIs(t, repos.Notifications.MarkRead(buyer.ID, n.ID), domain.ErrNotificationNotFound)

	cleared, err := repos.Notifications.MarkConversationRead(seller.ID, conv.ID)
	require.NoError(t, err)
	require.Equal(t, 1, cleared)

	count, err := repos.Notifications.CountUnread(seller.ID)
	require.NoError(t, err)
	require.Zero(t, count)
}

func TestIdempotencyRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := store.Repos().Idempotency

	ttl := time.Now().UTC().Add(time.Hour)
	_, err := repo.CreateProcessing("order.create:u1:k1", "hash-1", ttl)
	require.NoError(t, err)

	_, err = repo.CreateProcessing("order.create:u1:k1", "hash-1", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyExists)
	_, err = repo.CreateProcessing("order.create:u1:k1", "hash-2", ttl)
	require.ErrorIs(t, err, domain.ErrIdempotencyKeyReused)

	require.NoError(t, repo.MarkDone("order.create:u1:k1", "o-1"))
	rec, err := repo.Get("order.create:u1:k1")
	require.NoError(t, err)
	require.Equal(t, domain.IdempotencyStatusDone, rec.Status)
	require.Equal(t, "o-1", rec.ResourceID)

	removed, err := repo.DeleteExpired(ttl.Add(time.Minute), 10)
	require.NoError(t, err)
	require.Equal(t, 1, removed)
}

func TestOutboxRepository_PostgresFlow(t *testing.T) {
	store := openPostgresStoreForIntegrationTest(t)
	repo := store.Repos().Outbox

	stored, err := repo.Enqueue(domain.OutboxMessage{
		AggregateType: domain.AggregateOrder,
		AggregateID:   "o-1",
		EventType:     string(domain.EventOrderCreated),
		Payload:       []byte(`{"aggregate_id":"o-1"}`),
	})
	require.NoError(t, err)
	require.NotEmpty(t, stored.ID)

	stats, err := repo.Stats()
	require.NoError(t, err)
	require.Equal(t, 1, stats.PendingCount)
	require.False(t, stats.OldestPendingAt.IsZero())

	require.NoError(t, repo.MarkSent(stored.ID))
	require.ErrorIs(t, repo.MarkFailed("missing"), domain.ErrOutboxPublish)

	pending, err := repo.PullPending(10)
	require.NoError(t, err)
	require.Empty(t, pending)
}
