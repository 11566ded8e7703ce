package transaction

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const (
	recentOrdersLimit = 5
	maxListLimit      = 100
)

// GetOrder возвращает заказ стороне сделки или персоналу.
func (s *Service) GetOrder(_ context.Context, actor domain.User, orderID string) (domain.Order, error) {
	order, err := s.exec.Store().Repos().Orders.Get(orderID)
	if err != nil {
		return domain.Order{}, err
	}
	if !order.IsParty(actor.ID) && !actor.IsAdmin() {
		return domain.Order{}, domain.ErrNotOrderParty
	}
	return order, nil
}

// ListOrders возвращает заказы пользователя в роли покупателя, продавца или обеих.
func (s *Service) ListOrders(_ context.Context, actor domain.User, role domain.OrderRole, status domain.OrderStatus, limit int) ([]domain.Order, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	return s.exec.Store().Repos().Orders.List(domain.OrderFilter{
		UserID: actor.ID,
		Role:   role,
		Status: status,
		Limit:  limit,
	})
}

// OrderHistory возвращает историю статусов в хронологическом порядке.
func (s *Service) OrderHistory(ctx context.Context, actor domain.User, orderID string) ([]domain.OrderStatusEntry, error) {
	if _, err := s.GetOrder(ctx, actor, orderID); err != nil {
		return nil, err
	}
	return s.exec.Store().Repos().OrderHistory.List(orderID)
}

// TrackOrder возвращает публичное представление заказа по номеру.
// Ответ кэшируется до следующей смены статуса.
func (s *Service) TrackOrder(ctx context.Context, orderNumber string) (domain.OrderTracking, error) {
	orderNumber = strings.ToUpper(strings.TrimSpace(orderNumber))
	if !domain.IsValidOrderNumber(orderNumber) {
		return domain.OrderTracking{}, domain.ErrOrderNotFound
	}

	cached, ok, err := s.tracking.Get(ctx, orderNumber)
	if err != nil {
		s.logger.WithError(err).WithField("order_number", orderNumber).Warn("tracking cache read failed")
	}
	if ok {
		return cached, nil
	}

	repos := s.exec.Store().Repos()
	order, err := repos.Orders.GetByNumber(orderNumber)
	if err != nil {
		return domain.OrderTracking{}, err
	}
	history, err := repos.OrderHistory.List(order.ID)
	if err != nil {
		return domain.OrderTracking{}, err
	}

	tracking := domain.NewOrderTracking(order, history)
	if err := s.tracking.Set(ctx, tracking); err != nil {
		s.logger.WithError(err).WithField("order_number", orderNumber).Warn("tracking cache write failed")
	}
	return tracking, nil
}

// OrderStatistics собирает сводку заказов пользователя по обеим ролям.
func (s *Service) OrderStatistics(_ context.Context, actor domain.User) (domain.OrderStatistics, error) {
	repos := s.exec.Store().Repos()
	stats := domain.OrderStatistics{
		BuyerSpent:      decimal.Zero,
		SellerRevenue:   decimal.Zero,
		RecentPurchases: []domain.Order{},
		RecentSales:     []domain.Order{},
	}

	purchases, err := repos.Orders.List(domain.OrderFilter{UserID: actor.ID, Role: domain.OrderRoleBuyer})
	if err != nil {
		return domain.OrderStatistics{}, err
	}
	stats.BuyerTotal = len(purchases)
	stats.BuyerPending = countStatus(purchases, domain.OrderStatusPending)
	stats.BuyerCompleted = countStatus(purchases, domain.OrderStatusDelivered)
	stats.RecentPurchases = head(purchases, recentOrdersLimit)

	sales, err := repos.Orders.List(domain.OrderFilter{UserID: actor.ID, Role: domain.OrderRoleSeller})
	if err != nil {
		return domain.OrderStatistics{}, err
	}
	stats.SellerTotal = len(sales)
	stats.SellerPending = countStatus(sales, domain.OrderStatusPending)
	stats.SellerCompleted = countStatus(sales, domain.OrderStatusDelivered)
	stats.RecentSales = head(sales, recentOrdersLimit)

	if stats.BuyerSpent, err = repos.Stats.RevenueFor(
		domain.OrderFilter{UserID: actor.ID, Role: domain.OrderRoleBuyer},
		domain.OrderStatusShipped, domain.OrderStatusDelivered,
	); err != nil {
		return domain.OrderStatistics{}, err
	}
	if stats.SellerRevenue, err = repos.Stats.RevenueFor(
		domain.OrderFilter{UserID: actor.ID, Role: domain.OrderRoleSeller},
		domain.OrderStatusShipped, domain.OrderStatusDelivered,
	); err != nil {
		return domain.OrderStatistics{}, err
	}

	disputes, err := repos.Disputes.ListForUser(actor.ID, "", 0)
	if err != nil {
		return domain.OrderStatistics{}, err
	}
	for _, d := range disputes {
		if d.ComplainantID != actor.ID {
			continue
		}
		stats.DisputesOpened++
		if d.Status.IsActive() {
			stats.DisputesActive++
		}
	}
	return stats, nil
}

func countStatus(orders []domain.Order, status domain.OrderStatus) int {
	n := 0
	for _, o := range orders {
		if o.Status == status {
			n++
		}
	}
	return n
}

func head(orders []domain.Order, n int) []domain.Order {
	if len(orders) > n {
		return orders[:n]
	}
	return orders
}

// ShippingMethodInput — новый способ доставки.
type ShippingMethodInput struct {
	Name          string          `json:"name"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	EstimatedDays int             `json:"estimated_days"`
}

// CreateShippingMethod добавляет способ доставки. Только персонал.
func (s *Service) CreateShippingMethod(ctx context.Context, staff domain.User, in ShippingMethodInput) (domain.ShippingMethod, error) {
	if !staff.IsAdmin() {
		return domain.ShippingMethod{}, domain.ErrStaffOnly
	}
	if strings.TrimSpace(in.Name) == "" {
		return domain.ShippingMethod{}, domain.ErrShippingNameRequired
	}
	if in.BaseCost.IsNegative() {
		return domain.ShippingMethod{}, domain.ErrProductPriceInvalid
	}

	method := domain.ShippingMethod{
		ID:            ids.New(),
		Name:          strings.TrimSpace(in.Name),
		BaseCost:      in.BaseCost,
		EstimatedDays: in.EstimatedDays,
		IsActive:      true,
		CreatedAt:     s.now(),
	}
	if err := s.exec.Do(ctx, "create_shipping_method", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return repos.ShippingMethods.Create(method)
	}); err != nil {
		return domain.ShippingMethod{}, err
	}
	s.logger.WithField("shipping_method_id", method.ID).Info("shipping method created")
	return method, nil
}

// ListShippingMethods возвращает активные способы доставки.
func (s *Service) ListShippingMethods(_ context.Context) ([]domain.ShippingMethod, error) {
	return s.exec.Store().Repos().ShippingMethods.ListActive()
}
