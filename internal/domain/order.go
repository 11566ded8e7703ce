package domain

import (
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus описывает жизненный цикл заказа.
type OrderStatus string

const (
	// OrderStatusPending — заказ создан покупателем и ждёт решения продавца.
	OrderStatusPending OrderStatus = "pending"
	// OrderStatusApproved — продавец одобрил заказ, товар помечен проданным.
	OrderStatusApproved OrderStatus = "approved"
	// OrderStatusRejected — продавец отказал, товар остаётся в продаже.
	OrderStatusRejected OrderStatus = "rejected"
	// OrderStatusShipped — продавец отправил товар.
	OrderStatusShipped OrderStatus = "shipped"
	// OrderStatusDelivered — покупатель подтвердил получение.
	OrderStatusDelivered OrderStatus = "delivered"
	// OrderStatusCancelled — заказ отменён до решения продавца.
	OrderStatusCancelled OrderStatus = "cancelled"
)

// orderTransitions — единственная таблица допустимых переходов заказа.
var orderTransitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:   {OrderStatusApproved: true, OrderStatusRejected: true, OrderStatusCancelled: true},
	OrderStatusApproved:  {OrderStatusShipped: true},
	OrderStatusShipped:   {OrderStatusDelivered: true},
	OrderStatusRejected:  {},
	OrderStatusDelivered: {},
	OrderStatusCancelled: {},
}

// CanTransition проверяет переход по таблице.
func CanTransition(from, to OrderStatus) bool {
	return orderTransitions[from][to]
}

// IsTerminal сообщает, что из статуса нет переходов.
func (s OrderStatus) IsTerminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order — сделка между покупателем и продавцом по одному товару.
type Order struct {
	ID                 string          `json:"id"`
	OrderNumber        string          `json:"order_number"`
	BuyerID            string          `json:"buyer_id"`
	SellerID           string          `json:"seller_id"`
	ProductID          string          `json:"product_id"`
	OfferID            string          `json:"offer_id"`
	UnitPrice          decimal.Decimal `json:"unit_price"`
	ShippingCost       decimal.Decimal `json:"shipping_cost"`
	TotalAmount        decimal.Decimal `json:"total_amount"`
	ShippingMethodID   string          `json:"shipping_method_id"`
	ShippingName       string          `json:"shipping_name"`
	ShippingAddress    string          `json:"shipping_address"`
	ShippingCity       string          `json:"shipping_city"`
	ShippingPostalCode string          `json:"shipping_postal_code"`
	ShippingCountry    string          `json:"shipping_country"`
	ShippingPhone      string          `json:"shipping_phone"`
	TrackingNumber     string          `json:"tracking_number"`
	Status             OrderStatus     `json:"status"`
	BuyerNotes         string          `json:"buyer_notes"`
	SellerNotes        string          `json:"seller_notes"`
	Version            int64           `json:"version"`
	CreatedAt          time.Time       `json:"created_at"`
	UpdatedAt          time.Time       `json:"updated_at"`
	ApprovedAt         *time.Time      `json:"approved_at,omitempty"`
	ShippedAt          *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt        *time.Time      `json:"delivered_at,omitempty"`
	CancelledAt        *time.Time      `json:"cancelled_at,omitempty"`
}

// IsParty — пользователь является покупателем или продавцом.
func (o Order) IsParty(userID string) bool {
	return o.BuyerID == userID || o.SellerID == userID
}

// Counterparty возвращает вторую сторону сделки.
func (o Order) Counterparty(userID string) string {
	if o.BuyerID == userID {
		return o.SellerID
	}
	return o.BuyerID
}

// Price фиксирует цену заказа: total = unit + shipping.
func (o *Order) Price(unit, shipping decimal.Decimal) {
	o.UnitPrice = unit
	o.ShippingCost = shipping
	o.TotalAmount = unit.Add(shipping)
}

// Transition переводит заказ в новый статус и проставляет отметки времени.
func (o *Order) Transition(to OrderStatus, at time.Time) error {
	if !CanTransition(o.Status, to) {
		if to == OrderStatusCancelled {
			return ErrOrderCannotCancel
		}
		return ErrOrderTransition
	}
	o.Status = to
	o.UpdatedAt = at
	switch to {
	case OrderStatusApproved:
		o.ApprovedAt = &at
	case OrderStatusShipped:
		o.ShippedAt = &at
	case OrderStatusDelivered:
		o.DeliveredAt = &at
	case OrderStatusCancelled:
		o.CancelledAt = &at
	}
	return nil
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error
	if o.BuyerID == "" || o.SellerID == "" || o.ProductID == "" {
		errs = append(errs, ErrOrderPartiesRequired)
	}
	if o.UnitPrice.IsNegative() || o.ShippingCost.IsNegative() {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if !o.TotalAmount.Equal(o.UnitPrice.Add(o.ShippingCost)) {
		errs = append(errs, ErrAmountMismatch)
	}
	if !IsValidOrderNumber(o.OrderNumber) {
		errs = append(errs, ErrOrderNumberInvalid)
	}
	return errs
}

// OrderStatusEntry — неизменяемая запись истории статусов.
type OrderStatusEntry struct {
	ID        string      `json:"id"`
	OrderID   string      `json:"order_id"`
	Status    OrderStatus `json:"status"`
	Notes     string      `json:"notes"`
	ChangedBy string      `json:"changed_by"`
	CreatedAt time.Time   `json:"created_at"`
}

// ShippingMethod — способ доставки, выбираемый при оформлении.
type ShippingMethod struct {
	ID            string          `json:"id"`
	Name          string          `json:"name"`
	BaseCost      decimal.Decimal `json:"base_cost"`
	EstimatedDays int             `json:"estimated_days"`
	IsActive      bool            `json:"is_active"`
	CreatedAt     time.Time       `json:"created_at"`
}

// OrderRole ограничивает выборку заказов стороной сделки.
type OrderRole string

const (
	OrderRoleAny    OrderRole = ""
	OrderRoleBuyer  OrderRole = "buyer"
	OrderRoleSeller OrderRole = "seller"
)

// OrderFilter описывает параметры выборки заказов.
type OrderFilter struct {
	UserID string
	Role   OrderRole
	Status OrderStatus
	Limit  int
}

// Matches проверяет заказ на соответствие фильтру.
func (f OrderFilter) Matches(o Order) bool {
	switch f.Role {
	case OrderRoleBuyer:
		if o.BuyerID != f.UserID {
			return false
		}
	case OrderRoleSeller:
		if o.SellerID != f.UserID {
			return false
		}
	default:
		if f.UserID != "" && !o.IsParty(f.UserID) {
			return false
		}
	}
	return f.Status == "" || o.Status == f.Status
}

const (
	orderNumberLength   = 8
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// NewOrderNumber генерирует код из 8 заглавных букв и цифр.
// Уникальность обеспечивает вызывающий код повторной генерацией при коллизии.
func NewOrderNumber() string {
	var b strings.Builder
	b.Grow(orderNumberLength)
	limit := big.NewInt(int64(len(orderNumberAlphabet)))
	for i := 0; i < orderNumberLength; i++ {
		n, err := rand.Int(rand.Reader, limit)
		if err != nil {
			panic(err)
		}
		b.WriteByte(orderNumberAlphabet[n.Int64()])
	}
	return b.String()
}

// IsValidOrderNumber проверяет формат номера заказа.
func IsValidOrderNumber(s string) bool {
	if len(s) != orderNumberLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		if !strings.ContainsRune(orderNumberAlphabet, rune(s[i])) {
			return false
		}
	}
	return true
}

// TrackingEvent — шаг публичной истории доставки.
type TrackingEvent struct {
	Status OrderStatus `json:"status"`
	Notes  string      `json:"notes,omitempty"`
	At     time.Time   `json:"at"`
}

// OrderTracking — публичное представление заказа по номеру, без сумм и адреса.
type OrderTracking struct {
	OrderNumber     string          `json:"order_number"`
	Status          OrderStatus     `json:"status"`
	TrackingNumber  string          `json:"tracking_number,omitempty"`
	ShippingName    string          `json:"shipping_method,omitempty"`
	ShippingCity    string          `json:"shipping_city,omitempty"`
	ShippingCountry string          `json:"shipping_country,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
	ShippedAt       *time.Time      `json:"shipped_at,omitempty"`
	DeliveredAt     *time.Time      `json:"delivered_at,omitempty"`
	History         []TrackingEvent `json:"history"`
}

// NewOrderTracking собирает публичное представление из заказа и его истории.
func NewOrderTracking(o Order, history []OrderStatusEntry) OrderTracking {
	t := OrderTracking{
		OrderNumber:     o.OrderNumber,
		Status:          o.Status,
		TrackingNumber:  o.TrackingNumber,
		ShippingName:    o.ShippingName,
		ShippingCity:    o.ShippingCity,
		ShippingCountry: o.ShippingCountry,
		CreatedAt:       o.CreatedAt,
		ShippedAt:       o.ShippedAt,
		DeliveredAt:     o.DeliveredAt,
		History:         make([]TrackingEvent, 0, len(history)),
	}
	for _, h := range history {
		t.History = append(t.History, TrackingEvent{Status: h.Status, Notes: h.Notes, At: h.CreatedAt})
	}
	return t
}
