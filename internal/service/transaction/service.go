// Package transaction ведёт заказы, их историю, способы доставки и споры.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/cache"
	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/idempotency"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// Service управляет жизненным циклом заказа.
type Service struct {
	exec     *outbox.Executor
	guard    *idempotency.Guard
	tracking cache.TrackingCache
	metrics  *metrics.Metrics
	logger   *log.Entry
	now      func() time.Time
}

// Option настраивает Service.
type Option func(*Service)

// WithIdempotency задаёт Guard для PlaceOrder.
func WithIdempotency(guard *idempotency.Guard) Option {
	return func(s *Service) {
		if guard != nil {
			s.guard = guard
		}
	}
}

// WithTrackingCache задаёт кэш публичного отслеживания.
func WithTrackingCache(c cache.TrackingCache) Option {
	return func(s *Service) {
		if c != nil {
			s.tracking = c
		}
	}
}

// NewService создаёт сервис заказов.
func NewService(exec *outbox.Executor, m *metrics.Metrics, logger *log.Entry, opts ...Option) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "transaction-service")
	}
	s := &Service{
		exec:     exec,
		guard:    idempotency.NewGuard(idempotency.DefaultTTL),
		tracking: cache.NoopTracking{},
		metrics:  m,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PlaceOrderInput — оформление заказа покупателем.
type PlaceOrderInput struct {
	ProductID          string `json:"product_id"`
	OfferID            string `json:"offer_id,omitempty"`
	ShippingMethodID   string `json:"shipping_method_id,omitempty"`
	ShippingAddress    string `json:"shipping_address"`
	ShippingCity       string `json:"shipping_city"`
	ShippingPostalCode string `json:"shipping_postal_code"`
	ShippingCountry    string `json:"shipping_country"`
	ShippingPhone      string `json:"shipping_phone"`
	BuyerNotes         string `json:"buyer_notes,omitempty"`
	// IdempotencyKey не входит в хэш запроса.
	IdempotencyKey string `json:"-"`
}

// PlaceOrder оформляет заказ. Повтор с тем же ключом идемпотентности и тем же
// телом возвращает уже созданный заказ без побочных эффектов.
func (s *Service) PlaceOrder(ctx context.Context, actor domain.User, in PlaceOrderInput) (domain.Order, error) {
	if !actor.CanBuy() {
		return domain.Order{}, domain.ErrCannotBuy
	}

	req := idempotency.Request{
		Operation: "place_order",
		ActorID:   actor.ID,
		ClientKey: in.IdempotencyKey,
		Payload:   in,
	}

	var (
		order    domain.Order
		replayed bool
	)
	err := s.exec.Do(ctx, "place_order", func(repos domain.Repositories, rec *outbox.Recorder) error {
		replayed = false
		existingID, replay, err := s.guard.Claim(repos.Idempotency, req)
		if err != nil {
			return err
		}
		if replay {
			replayed = true
			order, err = repos.Orders.Get(existingID)
			return err
		}

		order, err = s.buildOrder(repos, actor, in)
		if err != nil {
			return err
		}
		if err := s.insertOrder(ctx, repos.Orders, &order); err != nil {
			return err
		}
		if err := repos.OrderHistory.Append(historyEntry(order, actor.ID, "Order created")); err != nil {
			return err
		}
		if err := s.guard.Complete(repos.Idempotency, req, order.ID); err != nil {
			return err
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: order.SellerID,
			SenderID:    actor.ID,
			Type:        domain.NotificationOrderCreated,
			Title:       "New order received",
			Message:     fmt.Sprintf("Order %s was placed by %s", order.OrderNumber, actor.Username),
			ProductID:   order.ProductID,
			OrderID:     order.ID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateOrder, domain.EventOrderCreated, orderEvent(order, actor.ID, order.CreatedAt))
	})
	if err != nil {
		return domain.Order{}, err
	}
	if replayed {
		s.logger.WithField("order_id", order.ID).Debug("order replayed by idempotency key")
		return order, nil
	}

	s.metrics.RecordOrderPlaced()
	s.logger.WithFields(log.Fields{
		"order_id":     order.ID,
		"order_number": order.OrderNumber,
		"buyer_id":     order.BuyerID,
		"product_id":   order.ProductID,
		"total":        order.TotalAmount.String(),
	}).Info("order placed")
	return order, nil
}

func (s *Service) buildOrder(repos domain.Repositories, actor domain.User, in PlaceOrderInput) (domain.Order, error) {
	product, err := repos.Products.Get(in.ProductID)
	if err != nil {
		return domain.Order{}, err
	}
	if product.SellerID == actor.ID {
		return domain.Order{}, domain.ErrOrderOwnProduct
	}

	unit := product.Price
	if in.OfferID != "" {
		offer, err := repos.Offers.Get(in.OfferID)
		if errors.Is(err, domain.ErrOfferNotFound) {
			return domain.Order{}, domain.ErrOrderOfferInvalid
		}
		if err != nil {
			return domain.Order{}, err
		}
		if offer.Status != domain.OfferStatusAccepted || offer.BuyerID != actor.ID ||
			offer.ProductID != product.ID || !product.IsAvailable() {
			return domain.Order{}, domain.ErrOrderOfferInvalid
		}
		unit = offer.Amount
	} else if !product.IsAvailable() {
		return domain.Order{}, domain.ErrOrderProductNotForSale
	}

	now := s.now()
	order := domain.Order{
		ID:                 ids.New(),
		BuyerID:            actor.ID,
		SellerID:           product.SellerID,
		ProductID:          product.ID,
		OfferID:            in.OfferID,
		ShippingAddress:    in.ShippingAddress,
		ShippingCity:       in.ShippingCity,
		ShippingPostalCode: in.ShippingPostalCode,
		ShippingCountry:    in.ShippingCountry,
		ShippingPhone:      in.ShippingPhone,
		Status:             domain.OrderStatusPending,
		BuyerNotes:         in.BuyerNotes,
		Version:            1,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
	if in.ShippingMethodID != "" {
		method, err := repos.ShippingMethods.Get(in.ShippingMethodID)
		if err != nil || !method.IsActive {
			return domain.Order{}, domain.ErrShippingMethodInvalid
		}
		order.ShippingMethodID = method.ID
		order.ShippingName = method.Name
	}
	order.Price(unit, product.ShippingCost)
	return order, nil
}

// insertOrder подбирает свободный номер заказа. Коллизия не прерывает
// транзакцию, поэтому номер генерируется заново, пока не найдётся свободный
// или не будет отменён ctx.
func (s *Service) insertOrder(ctx context.Context, repo domain.OrderRepository, order *domain.Order) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("allocate order number: %w", err)
		}
		order.OrderNumber = domain.NewOrderNumber()
		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		err := repo.Create(*order)
		if err == nil {
			return nil
		}
		if !errors.Is(err, domain.ErrOrderNumberTaken) {
			return err
		}
		s.logger.WithField("attempt", attempt).Debug("order number collision, regenerating")
	}
}

// ApproveOrder одобряет заказ и помечает товар проданным в той же транзакции.
func (s *Service) ApproveOrder(ctx context.Context, actor domain.User, orderID, notes string) (domain.Order, error) {
	return s.transition(ctx, actor, orderID, transition{
		operation:    "approve_order",
		to:           domain.OrderStatusApproved,
		role:         domain.OrderRoleSeller,
		event:        domain.EventOrderApproved,
		notification: domain.NotificationOrderApproved,
		title:        "Your order was approved",
		summary:      "Order approved by seller",
		detail:       notes,
		apply: func(repos domain.Repositories, rec *outbox.Recorder, order *domain.Order, at time.Time) error {
			order.SellerNotes = notes
			product, err := repos.Products.Get(order.ProductID)
			if err != nil {
				return err
			}
			if err := product.MarkSold(at); err != nil {
				return err
			}
			if err := repos.Products.Save(product); err != nil {
				return err
			}
			return rec.Event(repos.Outbox, domain.AggregateProduct, domain.EventProductSold, domain.DomainEvent{
				AggregateID: product.ID,
				ActorID:     order.SellerID,
				Status:      string(product.Status),
				OccurredAt:  at,
				Attributes:  map[string]string{"order_id": order.ID},
			})
		},
	})
}

// RejectOrder отклоняет заказ. Товар остаётся в продаже.
func (s *Service) RejectOrder(ctx context.Context, actor domain.User, orderID, reason string) (domain.Order, error) {
	return s.transition(ctx, actor, orderID, transition{
		operation:    "reject_order",
		to:           domain.OrderStatusRejected,
		role:         domain.OrderRoleSeller,
		event:        domain.EventOrderRejected,
		notification: domain.NotificationOrderRejected,
		title:        "Your order was rejected",
		summary:      "Order rejected by seller",
		detail:       reason,
		apply: func(_ domain.Repositories, _ *outbox.Recorder, order *domain.Order, _ time.Time) error {
			order.SellerNotes = reason
			return nil
		},
	})
}

// ShipOrder отмечает отправку и сохраняет трек-номер.
func (s *Service) ShipOrder(ctx context.Context, actor domain.User, orderID, trackingNumber string) (domain.Order, error) {
	return s.transition(ctx, actor, orderID, transition{
		operation:    "ship_order",
		to:           domain.OrderStatusShipped,
		role:         domain.OrderRoleSeller,
		event:        domain.EventOrderShipped,
		notification: domain.NotificationOrderShipped,
		title:        "Your order has shipped",
		summary:      "Order shipped",
		detail:       trackingNotes(trackingNumber),
		apply: func(_ domain.Repositories, _ *outbox.Recorder, order *domain.Order, _ time.Time) error {
			order.TrackingNumber = trackingNumber
			return nil
		},
	})
}

// DeliverOrder подтверждает получение покупателем.
func (s *Service) DeliverOrder(ctx context.Context, actor domain.User, orderID string) (domain.Order, error) {
	return s.transition(ctx, actor, orderID, transition{
		operation:    "deliver_order",
		to:           domain.OrderStatusDelivered,
		role:         domain.OrderRoleBuyer,
		event:        domain.EventOrderDelivered,
		notification: domain.NotificationOrderDelivered,
		title:        "Order delivered",
		summary:      "Delivery confirmed by buyer",
	})
}

// CancelOrder отменяет ожидающий заказ. Доступно обеим сторонам.
func (s *Service) CancelOrder(ctx context.Context, actor domain.User, orderID, reason string) (domain.Order, error) {
	return s.transition(ctx, actor, orderID, transition{
		operation:    "cancel_order",
		to:           domain.OrderStatusCancelled,
		role:         domain.OrderRoleAny,
		event:        domain.EventOrderCancelled,
		notification: domain.NotificationOrderCancelled,
		title:        "Order cancelled",
		summary:      "Order cancelled by %s",
		detail:       reason,
	})
}

type transition struct {
	operation    string
	to           domain.OrderStatus
	role         domain.OrderRole
	event        domain.EventType
	notification domain.NotificationType
	title        string
	// summary — запись в истории без пояснений; %s заменяется ролью актора.
	summary string
	// detail — текст актора, дописывается к summary.
	detail string
	// apply выполняется после смены статуса и до сохранения заказа.
	apply func(repos domain.Repositories, rec *outbox.Recorder, order *domain.Order, at time.Time) error
}

func (s *Service) transition(ctx context.Context, actor domain.User, orderID string, t transition) (domain.Order, error) {
	var order domain.Order
	err := s.exec.Do(ctx, t.operation, func(repos domain.Repositories, rec *outbox.Recorder) error {
		var err error
		order, err = repos.Orders.Get(orderID)
		if err != nil {
			return err
		}
		if err := checkRole(order, actor.ID, t.role); err != nil {
			return err
		}

		now := s.now()
		if err := order.Transition(t.to, now); err != nil {
			return err
		}
		if t.apply != nil {
			if err := t.apply(repos, rec, &order, now); err != nil {
				return err
			}
		}
		if err := repos.Orders.Save(order); err != nil {
			return err
		}
		if order, err = repos.Orders.Get(order.ID); err != nil {
			return err
		}
		if err := repos.OrderHistory.Append(historyEntry(order, actor.ID, t.historyNotes(order, actor.ID))); err != nil {
			return err
		}
		message := fmt.Sprintf("Order %s is now %s", order.OrderNumber, order.Status)
		if t.detail != "" {
			message += ": " + t.detail
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: order.Counterparty(actor.ID),
			SenderID:    actor.ID,
			Type:        t.notification,
			Title:       t.title,
			Message:     message,
			ProductID:   order.ProductID,
			OrderID:     order.ID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateOrder, t.event, orderEvent(order, actor.ID, now))
	})
	if err != nil {
		return domain.Order{}, err
	}

	s.metrics.RecordOrderTransition(string(order.Status))
	if err := s.tracking.Invalidate(ctx, order.OrderNumber); err != nil {
		s.logger.WithError(err).WithField("order_number", order.OrderNumber).Warn("failed to invalidate tracking cache")
	}
	s.logger.WithFields(log.Fields{
		"order_id": order.ID,
		"status":   order.Status,
		"actor_id": actor.ID,
	}).Info("order status changed")
	return order, nil
}

func (t transition) historyNotes(order domain.Order, actorID string) string {
	notes := t.summary
	if strings.Contains(notes, "%s") {
		party := "buyer"
		if order.SellerID == actorID {
			party = "seller"
		}
		notes = fmt.Sprintf(notes, party)
	}
	if detail := strings.TrimSpace(t.detail); detail != "" {
		notes += ": " + detail
	}
	return notes
}

func checkRole(order domain.Order, actorID string, role domain.OrderRole) error {
	switch role {
	case domain.OrderRoleSeller:
		if order.SellerID != actorID {
			return domain.ErrNotOrderSeller
		}
	case domain.OrderRoleBuyer:
		if order.BuyerID != actorID {
			return domain.ErrNotOrderBuyer
		}
	default:
		if !order.IsParty(actorID) {
			return domain.ErrNotOrderParty
		}
	}
	return nil
}

func historyEntry(order domain.Order, actorID, notes string) domain.OrderStatusEntry {
	return domain.OrderStatusEntry{
		ID:        ids.Sortable(),
		OrderID:   order.ID,
		Status:    order.Status,
		Notes:     notes,
		ChangedBy: actorID,
		CreatedAt: order.UpdatedAt,
	}
}

func trackingNotes(trackingNumber string) string {
	if trackingNumber == "" {
		return ""
	}
	return "Tracking number: " + trackingNumber
}

func orderEvent(order domain.Order, actorID string, at time.Time) domain.DomainEvent {
	return domain.DomainEvent{
		AggregateID: order.ID,
		ActorID:     actorID,
		Status:      string(order.Status),
		OccurredAt:  at,
		Attributes: map[string]string{
			"order_number": order.OrderNumber,
			"buyer_id":     order.BuyerID,
			"seller_id":    order.SellerID,
			"product_id":   order.ProductID,
			"total":        order.TotalAmount.String(),
		},
	}
}
