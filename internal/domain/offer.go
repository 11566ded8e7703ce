package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// OfferStatus описывает жизненный цикл предложения цены.
type OfferStatus string

const (
	// OfferStatusPending — ждёт ответа продавца.
	OfferStatusPending OfferStatus = "pending"
	// OfferStatusAccepted — продавец согласился, покупатель может оформить заказ по этой цене.
	OfferStatusAccepted OfferStatus = "accepted"
	// OfferStatusRejected — продавец отказал.
	OfferStatusRejected OfferStatus = "rejected"
	// OfferStatusExpired — зарезервировано под истечение по времени, сейчас не выставляется.
	OfferStatusExpired OfferStatus = "expired"
)

// Offer — предложение цены покупателем.
type Offer struct {
	ID             string          `json:"id"`
	ProductID      string          `json:"product_id"`
	BuyerID        string          `json:"buyer_id"`
	SellerID       string          `json:"seller_id"`
	Amount         decimal.Decimal `json:"amount"`
	Message        string          `json:"message"`
	Status         OfferStatus     `json:"status"`
	SellerResponse string          `json:"seller_response"`
	ExpiresAt      *time.Time      `json:"expires_at,omitempty"`
	RespondedAt    *time.Time      `json:"responded_at,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

// Accept принимает предложение. Статус товара не меняется до одобрения заказа.
func (o *Offer) Accept(response string, at time.Time) error {
	return o.respond(OfferStatusAccepted, response, at)
}

// Reject отклоняет предложение.
func (o *Offer) Reject(response string, at time.Time) error {
	return o.respond(OfferStatusRejected, response, at)
}

func (o *Offer) respond(to OfferStatus, response string, at time.Time) error {
	if o.Status != OfferStatusPending {
		return ErrOfferNotPending
	}
	o.Status = to
	o.SellerResponse = response
	o.RespondedAt = &at
	o.UpdatedAt = at
	return nil
}

// ValidateNewOffer проверяет условия создания предложения в порядке,
// в котором их видит покупатель.
func ValidateNewOffer(buyer User, product Product, amount decimal.Decimal, hasPending bool) error {
	if !product.IsDiscoverable() {
		return ErrOfferProductUnavailable
	}
	if product.SellerID == buyer.ID {
		return ErrOfferOwnProduct
	}
	if !amount.IsPositive() {
		return ErrOfferAmountInvalid
	}
	if hasPending {
		return ErrOfferDuplicatePending
	}
	return nil
}
