package domain

import (
	"encoding/json"
	"time"
)

// Типы агрегатов в outbox.
const (
	AggregateNotification = "notification"
	AggregateOrder        = "order"
	AggregateOffer        = "offer"
	AggregateProduct      = "product"
	AggregateDispute      = "dispute"
	AggregateUser         = "user"
)

// EventType — тип события, публикуемого через outbox.
type EventType string

const (
	// EventNotificationRequested — запрос на уведомление контрагенту.
	EventNotificationRequested EventType = "notification.requested"

	EventOrderCreated   EventType = "order.created"
	EventOrderApproved  EventType = "order.approved"
	EventOrderRejected  EventType = "order.rejected"
	EventOrderShipped   EventType = "order.shipped"
	EventOrderDelivered EventType = "order.delivered"
	EventOrderCancelled EventType = "order.cancelled"

	EventOfferCreated  EventType = "offer.created"
	EventOfferAccepted EventType = "offer.accepted"
	EventOfferRejected EventType = "offer.rejected"

	EventProductVerified EventType = "product.verified"
	EventProductRejected EventType = "product.rejected"
	EventProductSold     EventType = "product.sold"

	EventUserApproved EventType = "user.approved"
	EventUserRejected EventType = "user.rejected"

	EventDisputeOpened   EventType = "dispute.opened"
	EventDisputeResolved EventType = "dispute.resolved"
	EventDisputeClosed   EventType = "dispute.closed"
)

// OutboxMessage хранит данные для публикуемого события.
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}

// DomainEvent — полезная нагрузка доменного события.
type DomainEvent struct {
	AggregateID string            `json:"aggregate_id"`
	ActorID     string            `json:"actor_id,omitempty"`
	Status      string            `json:"status,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

// NewEventMessage собирает сообщение outbox для доменного события.
func NewEventMessage(aggregateType string, eventType EventType, event DomainEvent) (OutboxMessage, error) {
	payload, err := json.Marshal(event)
	if err != nil {
		return OutboxMessage{}, err
	}
	return OutboxMessage{
		AggregateType: aggregateType,
		AggregateID:   event.AggregateID,
		EventType:     string(eventType),
		Payload:       payload,
	}, nil
}

// NewNotificationMessage собирает сообщение outbox с запросом на уведомление.
func NewNotificationMessage(draft NotificationDraft) (OutboxMessage, error) {
	payload, err := json.Marshal(draft)
	if err != nil {
		return OutboxMessage{}, err
	}
	return OutboxMessage{
		AggregateType: AggregateNotification,
		AggregateID:   draft.RecipientID,
		EventType:     string(EventNotificationRequested),
		Payload:       payload,
	}, nil
}

// DecodeNotification извлекает черновик уведомления из сообщения outbox.
func DecodeNotification(msg OutboxMessage) (NotificationDraft, bool, error) {
	if msg.EventType != string(EventNotificationRequested) {
		return NotificationDraft{}, false, nil
	}
	var draft NotificationDraft
	if err := json.Unmarshal(msg.Payload, &draft); err != nil {
		return NotificationDraft{}, true, err
	}
	return draft, true, nil
}
