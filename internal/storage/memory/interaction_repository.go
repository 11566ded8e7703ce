package memory

import (
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type conversationRepository struct{ view }

func (r conversationRepository) Create(conv domain.Conversation) error {
	defer r.lock()()

	if _, ok := r.find(conv.ProductID, conv.BuyerID, conv.SellerID); ok {
		return domain.ErrConversationExists
	}
	put(r.tx, r.s.st.conversations, conv.ID, conv)
	return nil
}

func (r conversationRepository) Get(id string) (domain.Conversation, error) {
	defer r.rlock()()

	c, ok := r.s.st.conversations[id]
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r conversationRepository) Find(productID, buyerID, sellerID string) (domain.Conversation, error) {
	defer r.rlock()()

	c, ok := r.find(productID, buyerID, sellerID)
	if !ok {
		return domain.Conversation{}, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r conversationRepository) find(productID, buyerID, sellerID string) (domain.Conversation, bool) {
	for _, c := range r.s.st.conversations {
		if c.ProductID == productID && c.BuyerID == buyerID && c.SellerID == sellerID {
			return c, true
		}
	}
	return domain.Conversation{}, false
}

func (r conversationRepository) Save(conv domain.Conversation) error {
	defer r.lock()()

	if _, ok := r.s.st.conversations[conv.ID]; !ok {
		return domain.ErrConversationNotFound
	}
	put(r.tx, r.s.st.conversations, conv.ID, conv)
	return nil
}

// ListByUser возвращает активные переписки пользователя, последние обновлённые первыми.
func (r conversationRepository) ListByUser(userID string) ([]domain.Conversation, error) {
	defer r.rlock()()

	result := make([]domain.Conversation, 0)
	for _, c := range r.s.st.conversations {
		if c.IsActive && c.IsParticipant(userID) {
			result = append(result, c)
		}
	}
	sortNewestFirst(result, func(c domain.Conversation) (int64, string) { return c.UpdatedAt.UnixNano(), c.ID })
	return result, nil
}

// messageRepository обслуживает и переписки по товарам, и личные переписки.
type messageRepository struct {
	view
	direct bool
}

func (r messageRepository) messages() map[string][]domain.Message {
	if r.direct {
		return r.s.st.directMessages
	}
	return r.s.st.messages
}

func (r messageRepository) Create(msg domain.Message) error {
	defer r.lock()()
	appendTo(r.tx, r.messages(), msg.ConversationID, msg)
	return nil
}

// List возвращает сообщения в хронологическом порядке.
func (r messageRepository) List(conversationID string) ([]domain.Message, error) {
	defer r.rlock()()

	msgs := r.messages()[conversationID]
	result := make([]domain.Message, len(msgs))
	copy(result, msgs)
	return result, nil
}

func (r messageRepository) MarkRead(conversationID, readerID string) (int, error) {
	defer r.lock()()

	msgs := r.messages()[conversationID]
	next := make([]domain.Message, len(msgs))
	copy(next, msgs)

	marked := 0
	for i := range next {
		if next[i].SenderID != readerID && !next[i].IsRead {
			next[i].IsRead = true
			marked++
		}
	}
	if marked > 0 {
		put(r.tx, r.messages(), conversationID, next)
	}
	return marked, nil
}

// CountUnread считает чужие непрочитанные сообщения в активных переписках пользователя.
func (r messageRepository) CountUnread(userID string) (int, error) {
	defer r.rlock()()

	count := 0
	for convID, msgs := range r.messages() {
		if !r.participates(convID, userID) {
			continue
		}
		for _, m := range msgs {
			if !m.IsRead && m.SenderID != userID {
				count++
			}
		}
	}
	return count, nil
}

func (r messageRepository) participates(conversationID, userID string) bool {
	if r.direct {
		c, ok := r.s.st.directConversations[conversationID]
		return ok && c.IsActive && c.IsParticipant(userID)
	}
	c, ok := r.s.st.conversations[conversationID]
	return ok && c.IsActive && c.IsParticipant(userID)
}

type directConversationRepository struct{ view }

func (r directConversationRepository) Create(conv domain.DirectConversation) error {
	defer r.lock()()

	if _, ok := r.find(conv.Participant1ID, conv.Participant2ID); ok {
		return domain.ErrConversationExists
	}
	put(r.tx, r.s.st.directConversations, conv.ID, conv)
	return nil
}

func (r directConversationRepository) Get(id string) (domain.DirectConversation, error) {
	defer r.rlock()()

	c, ok := r.s.st.directConversations[id]
	if !ok {
		return domain.DirectConversation{}, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r directConversationRepository) Find(participant1ID, participant2ID string) (domain.DirectConversation, error) {
	defer r.rlock()()

	c, ok := r.find(participant1ID, participant2ID)
	if !ok {
		return domain.DirectConversation{}, domain.ErrConversationNotFound
	}
	return c, nil
}

func (r directConversationRepository) find(p1, p2 string) (domain.DirectConversation, bool) {
	for _, c := range r.s.st.directConversations {
		if c.Participant1ID == p1 && c.Participant2ID == p2 {
			return c, true
		}
	}
	return domain.DirectConversation{}, false
}

func (r directConversationRepository) Touch(id string, at time.Time) error {
	defer r.lock()()

	c, ok := r.s.st.directConversations[id]
	if !ok {
		return domain.ErrConversationNotFound
	}
	c.UpdatedAt = at
	put(r.tx, r.s.st.directConversations, id, c)
	return nil
}

func (r directConversationRepository) ListByUser(userID string) ([]domain.DirectConversation, error) {
	defer r.rlock()()

	result := make([]domain.DirectConversation, 0)
	for _, c := range r.s.st.directConversations {
		if c.IsActive && c.IsParticipant(userID) {
			result = append(result, c)
		}
	}
	sortNewestFirst(result, func(c domain.DirectConversation) (int64, string) { return c.UpdatedAt.UnixNano(), c.ID })
	return result, nil
}

type notificationRepository struct{ view }

func (r notificationRepository) Create(n domain.Notification) error {
	defer r.lock()()

	if _, exists := r.s.st.notifications[n.ID]; exists {
		return domain.ErrNotificationExists
	}
	put(r.tx, r.s.st.notifications, n.ID, n)
	return nil
}

func (r notificationRepository) List(recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	defer r.rlock()()

	result := make([]domain.Notification, 0)
	for _, n := range r.s.st.notifications {
		if n.RecipientID != recipientID || (unreadOnly && n.IsRead) {
			continue
		}
		result = append(result, n)
	}
	sortNewestFirst(result, func(n domain.Notification) (int64, string) { return n.CreatedAt.UnixNano(), n.ID })
	return limitSlice(result, limit), nil
}

// MarkRead отмечает уведомление получателя. Чужое уведомление неотличимо от отсутствующего.
func (r notificationRepository) MarkRead(recipientID, id string) error {
	defer r.lock()()

	n, ok := r.s.st.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotificationNotFound
	}
	if !n.IsRead {
		n.IsRead = true
		put(r.tx, r.s.st.notifications, id, n)
	}
	return nil
}

func (r notificationRepository) MarkAllRead(recipientID string) (int, error) {
	return r.markWhere(func(n domain.Notification) bool { return n.RecipientID == recipientID })
}

func (r notificationRepository) MarkConversationRead(recipientID, conversationID string) (int, error) {
	return r.markWhere(func(n domain.Notification) bool {
		return n.RecipientID == recipientID &&
			n.ConversationID == conversationID &&
			n.Type == domain.NotificationMessage
	})
}

func (r notificationRepository) markWhere(match func(domain.Notification) bool) (int, error) {
	defer r.lock()()

	marked := 0
	for id, n := range r.s.st.notifications {
		if n.IsRead || !match(n) {
			continue
		}
		n.IsRead = true
		put(r.tx, r.s.st.notifications, id, n)
		marked++
	}
	return marked, nil
}

func (r notificationRepository) Delete(recipientID, id string) error {
	defer r.lock()()

	n, ok := r.s.st.notifications[id]
	if !ok || n.RecipientID != recipientID {
		return domain.ErrNotificationNotFound
	}
	remove(r.tx, r.s.st.notifications, id)
	return nil
}

func (r notificationRepository) CountUnread(recipientID string) (int, error) {
	defer r.rlock()()

	count := 0
	for _, n := range r.s.st.notifications {
		if n.RecipientID == recipientID && !n.IsRead {
			count++
		}
	}
	return count, nil
}

var (
	_ domain.ConversationRepository       = conversationRepository{}
	_ domain.MessageRepository            = messageRepository{}
	_ domain.DirectConversationRepository = directConversationRepository{}
	_ domain.DirectMessageRepository      = messageRepository{}
	_ domain.NotificationRepository       = notificationRepository{}
)
