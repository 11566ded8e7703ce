package domain

import "time"

// Conversation — переписка покупателя и продавца по товару.
// Уникальна для тройки (product, buyer, seller).
type Conversation struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	BuyerID   string    `json:"buyer_id"`
	SellerID  string    `json:"seller_id"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsParticipant — пользователь участвует в переписке.
func (c Conversation) IsParticipant(userID string) bool {
	return c.BuyerID == userID || c.SellerID == userID
}

// OtherParticipant возвращает собеседника.
func (c Conversation) OtherParticipant(userID string) string {
	if c.BuyerID == userID {
		return c.SellerID
	}
	return c.BuyerID
}

// Message — сообщение в переписке. ID сортируется по времени создания.
type Message struct {
	ID             string    `json:"id"`
	ConversationID string    `json:"conversation_id"`
	SenderID       string    `json:"sender_id"`
	Content        string    `json:"content"`
	IsRead         bool      `json:"is_read"`
	CreatedAt      time.Time `json:"created_at"`
}

// DirectConversation — личная переписка двух пользователей без привязки к товару.
// Участники хранятся упорядоченно: Participant1ID < Participant2ID.
type DirectConversation struct {
	ID             string    `json:"id"`
	Participant1ID string    `json:"participant1_id"`
	Participant2ID string    `json:"participant2_id"`
	IsActive       bool      `json:"is_active"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NormalizeParticipants упорядочивает пару участников.
func NormalizeParticipants(a, b string) (string, string, error) {
	if a == b {
		return "", "", ErrDirectSelf
	}
	if a > b {
		a, b = b, a
	}
	return a, b, nil
}

// IsParticipant — пользователь участвует в переписке.
func (c DirectConversation) IsParticipant(userID string) bool {
	return c.Participant1ID == userID || c.Participant2ID == userID
}

// OtherParticipant возвращает собеседника.
func (c DirectConversation) OtherParticipant(userID string) string {
	if c.Participant1ID == userID {
		return c.Participant2ID
	}
	return c.Participant1ID
}

// UnreadCounts — счётчики непрочитанного для пользователя.
type UnreadCounts struct {
	UnreadMessages      int `json:"unread_messages"`
	UnreadNotifications int `json:"unread_notifications"`
}
