// Package servicetest собирает in-memory окружение для тестов сервисов.
package servicetest

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
	"github.com/vladislavdragonenkov/marketplace/internal/service/retry"
	"github.com/vladislavdragonenkov/marketplace/internal/storage/memory"
)

// Env — хранилище и исполнитель единиц работы поверх него.
type Env struct {
	Store   *memory.Store
	Exec    *outbox.Executor
	Metrics *metrics.Metrics
}

// New создаёт окружение с немедленной материализацией уведомлений.
func New(t testing.TB) *Env {
	t.Helper()
	store := memory.NewStore()
	m := metrics.NewWithRegisterer(prometheus.NewRegistry())
	exec := outbox.NewExecutor(
		store,
		retry.NewRunner(retry.Config{MaxAttempts: 3, InitialDelay: time.Millisecond}, nil),
		outbox.NewDispatcher(outbox.NewNotificationProjector(store, m), nil),
		m,
	)
	return &Env{Store: store, Exec: exec, Metrics: m}
}

// Repos возвращает репозитории вне транзакции.
func (e *Env) Repos() domain.Repositories {
	return e.Store.Repos()
}

func (e *Env) user(t testing.TB, username string, userType domain.UserType, verified bool) domain.User {
	t.Helper()
	now := time.Now().UTC()
	u := domain.User{
		ID:        ids.New(),
		Username:  username,
		Email:     username + "@example.com",
		UserType:  userType,
		IsActive:  true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	domain.ApplyRoleDefaults(&u)
	if verified {
		require.NoError(t, u.Approve("bootstrap", "", now))
	}
	require.NoError(t, e.Repos().Users.Create(u))
	return u
}

// Buyer создаёт покупателя.
func (e *Env) Buyer(t testing.TB, username string) domain.User {
	return e.user(t, username, domain.UserTypeBuyer, false)
}

// Seller создаёт проверенного продавца.
func (e *Env) Seller(t testing.TB, username string) domain.User {
	return e.user(t, username, domain.UserTypeSeller, true)
}

// Trader создаёт проверенного пользователя с ролью both.
func (e *Env) Trader(t testing.TB, username string) domain.User {
	return e.user(t, username, domain.UserTypeBoth, true)
}

// Admin создаёт сотрудника.
func (e *Env) Admin(t testing.TB, username string) domain.User {
	return e.user(t, username, domain.UserTypeAdmin, false)
}

// Category создаёт активную рубрику.
func (e *Env) Category(t testing.TB, name string) domain.Category {
	t.Helper()
	c := domain.Category{ID: ids.New(), Name: name, Slug: name, IsActive: true, CreatedAt: time.Now().UTC()}
	require.NoError(t, e.Repos().Categories.Create(c))
	return c
}

// Product создаёт опубликованное проверенное объявление продавца.
func (e *Env) Product(t testing.TB, seller domain.User, category domain.Category, price, shipping string) domain.Product {
	t.Helper()
	now := time.Now().UTC()
	p := domain.Product{
		ID:           ids.New(),
		SellerID:     seller.ID,
		CategoryID:   category.ID,
		Title:        "Camera " + price,
		Condition:    domain.ConditionGood,
		Price:        decimal.RequireFromString(price),
		ShippingCost: decimal.RequireFromString(shipping),
		IsNegotiable: true,
		Status:       domain.ProductStatusActive,
		IsActive:     true,
		IsVerified:   true,
		Version:      1,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	require.NoError(t, e.Repos().Products.Create(p))
	return p
}

// PendingProduct создаёт объявление, ещё не прошедшее проверку.
func (e *Env) PendingProduct(t testing.TB, seller domain.User, category domain.Category) domain.Product {
	t.Helper()
	p := e.Product(t, seller, category, "50.00", "5.00")
	p.Status = domain.ProductStatusPendingVerification
	p.IsVerified = false
	require.NoError(t, e.Repos().Products.Save(p))
	saved, err := e.Repos().Products.Get(p.ID)
	require.NoError(t, err)
	return saved
}

// Notifications возвращает уведомления получателя, новые первыми.
func (e *Env) Notifications(t testing.TB, recipientID string) []domain.Notification {
	t.Helper()
	items, err := e.Repos().Notifications.List(recipientID, false, 0)
	require.NoError(t, err)
	return items
}
