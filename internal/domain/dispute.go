package domain

import (
	"strings"
	"time"
)

// DisputeType — тип претензии по заказу.
type DisputeType string

const (
	DisputeItemNotReceived    DisputeType = "item_not_received"
	DisputeItemNotAsDescribed DisputeType = "item_not_as_described"
	DisputeDamagedItem        DisputeType = "damaged_item"
	DisputeWrongItem          DisputeType = "wrong_item"
	DisputeOther              DisputeType = "other"
)

// Valid сообщает, известен ли тип.
func (t DisputeType) Valid() bool {
	switch t {
	case DisputeItemNotReceived, DisputeItemNotAsDescribed, DisputeDamagedItem, DisputeWrongItem, DisputeOther:
		return true
	}
	return false
}

// DisputeStatus описывает стадии рассмотрения спора.
type DisputeStatus string

const (
	// DisputeStatusOpen — спор открыт стороной сделки.
	DisputeStatusOpen DisputeStatus = "open"
	// DisputeStatusUnderReview — спор взят в работу персоналом.
	DisputeStatusUnderReview DisputeStatus = "under_review"
	// DisputeStatusResolved — вынесено решение.
	DisputeStatusResolved DisputeStatus = "resolved"
	// DisputeStatusClosed — спор закрыт без решения.
	DisputeStatusClosed DisputeStatus = "closed"
)

// IsActive — спор ещё не завершён.
func (s DisputeStatus) IsActive() bool {
	return s == DisputeStatusOpen || s == DisputeStatusUnderReview
}

var disputeTransitions = map[DisputeStatus]map[DisputeStatus]bool{
	DisputeStatusOpen:        {DisputeStatusUnderReview: true},
	DisputeStatusUnderReview: {DisputeStatusResolved: true, DisputeStatusClosed: true},
}

// DisputeEligible сообщает, можно ли открыть спор по заказу в этом статусе.
func DisputeEligible(s OrderStatus) bool {
	return s == OrderStatusApproved || s == OrderStatusShipped || s == OrderStatusDelivered
}

// Dispute — спор по заказу.
type Dispute struct {
	ID            string        `json:"id"`
	OrderID       string        `json:"order_id"`
	ComplainantID string        `json:"complainant_id"`
	Type          DisputeType   `json:"type"`
	Description   string        `json:"description"`
	Evidence      string        `json:"evidence"`
	Status        DisputeStatus `json:"status"`
	Resolution    string        `json:"resolution"`
	ResolvedBy    string        `json:"resolved_by"`
	ResolvedAt    *time.Time    `json:"resolved_at,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	UpdatedAt     time.Time     `json:"updated_at"`
}

// StartReview переводит спор на рассмотрение.
func (d *Dispute) StartReview(at time.Time) error {
	return d.move(DisputeStatusUnderReview, at)
}

// Resolve выносит решение. Нужны текст решения и сотрудник.
func (d *Dispute) Resolve(staffID, resolution string, at time.Time) error {
	if strings.TrimSpace(resolution) == "" {
		return ErrDisputeResolutionEmpty
	}
	if staffID == "" {
		return ErrDisputeResolverRequired
	}
	if err := d.move(DisputeStatusResolved, at); err != nil {
		return err
	}
	d.Resolution = resolution
	d.ResolvedBy = staffID
	d.ResolvedAt = &at
	return nil
}

// Close закрывает спор без решения.
func (d *Dispute) Close(staffID, note string, at time.Time) error {
	if staffID == "" {
		return ErrDisputeResolverRequired
	}
	if err := d.move(DisputeStatusClosed, at); err != nil {
		return err
	}
	d.Resolution = note
	d.ResolvedBy = staffID
	d.ResolvedAt = &at
	return nil
}

func (d *Dispute) move(to DisputeStatus, at time.Time) error {
	if !disputeTransitions[d.Status][to] {
		return ErrDisputeTransition
	}
	d.Status = to
	d.UpdatedAt = at
	return nil
}

// CanAccess — доступ к спору и его переписке имеют заявитель и стороны заказа.
func (d Dispute) CanAccess(userID string, order Order) bool {
	return userID == d.ComplainantID || order.IsParty(userID)
}

// DisputeMessage — сообщение в переписке по спору, только добавление.
type DisputeMessage struct {
	ID             string    `json:"id"`
	DisputeID      string    `json:"dispute_id"`
	SenderID       string    `json:"sender_id"`
	Message        string    `json:"message"`
	IsAdminMessage bool      `json:"is_admin_message"`
	CreatedAt      time.Time `json:"created_at"`
}
