package domain

import "time"

// NotificationType — тип уведомления.
type NotificationType string

const (
	NotificationMessage        NotificationType = "message"
	NotificationOffer          NotificationType = "offer"
	NotificationOfferAccepted  NotificationType = "offer_accepted"
	NotificationOfferRejected  NotificationType = "offer_rejected"
	NotificationProductSold    NotificationType = "product_sold"
	NotificationRating         NotificationType = "rating"
	NotificationVerification   NotificationType = "verification"
	NotificationOrderCreated   NotificationType = "order_created"
	NotificationOrderApproved  NotificationType = "order_approved"
	NotificationOrderRejected  NotificationType = "order_rejected"
	NotificationOrderShipped   NotificationType = "order_shipped"
	NotificationOrderDelivered NotificationType = "order_delivered"
	NotificationOrderCancelled NotificationType = "order_cancelled"
	NotificationDispute        NotificationType = "dispute"
)

// Notification — уведомление получателю. После записи меняется только IsRead.
type Notification struct {
	ID             string           `json:"id"`
	RecipientID    string           `json:"recipient_id"`
	SenderID       string           `json:"sender_id"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ProductID      string           `json:"product_id"`
	ConversationID string           `json:"conversation_id"`
	OrderID        string           `json:"order_id"`
	IsRead         bool             `json:"is_read"`
	CreatedAt      time.Time        `json:"created_at"`
}

// NotificationDraft — запрос на уведомление, который сервисы кладут в outbox.
type NotificationDraft struct {
	RecipientID    string           `json:"recipient_id"`
	SenderID       string           `json:"sender_id,omitempty"`
	Type           NotificationType `json:"type"`
	Title          string           `json:"title"`
	Message        string           `json:"message"`
	ProductID      string           `json:"product_id,omitempty"`
	ConversationID string           `json:"conversation_id,omitempty"`
	OrderID        string           `json:"order_id,omitempty"`
}

// ToNotification материализует черновик. ID совпадает с ID сообщения outbox,
// поэтому повторная доставка не создаёт дубликат.
func (d NotificationDraft) ToNotification(id string, at time.Time) Notification {
	return Notification{
		ID:             id,
		RecipientID:    d.RecipientID,
		SenderID:       d.SenderID,
		Type:           d.Type,
		Title:          d.Title,
		Message:        d.Message,
		ProductID:      d.ProductID,
		ConversationID: d.ConversationID,
		OrderID:        d.OrderID,
		CreatedAt:      at,
	}
}
