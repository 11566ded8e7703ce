package postgres

import (
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type conversationRepository struct{ querier }

const conversationColumns = `id, product_id, buyer_id, seller_id, is_active, created_at, updated_at`

func scanConversation(row rowScanner) (domain.Conversation, error) {
	var c domain.Conversation
	err := row.Scan(&c.ID, &c.ProductID, &c.BuyerID, &c.SellerID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r conversationRepository) Create(c domain.Conversation) error {
	affected, err := r.exec(`
		INSERT INTO conversations (`+conversationColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (product_id, buyer_id, seller_id) DO NOTHING
	`, c.ID, c.ProductID, c.BuyerID, c.SellerID, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationExists
	}
	return nil
}

func (r conversationRepository) Get(id string) (domain.Conversation, error) {
	return getOne(r.querier, scanConversation, domain.ErrConversationNotFound, "select conversation",
		`SELECT `+conversationColumns+` FROM conversations WHERE id = $1`, id)
}

func (r conversationRepository) Find(productID, buyerID, sellerID string) (domain.Conversation, error) {
	return getOne(r.querier, scanConversation, domain.ErrConversationNotFound, "find conversation", `
		SELECT `+conversationColumns+` FROM conversations
		WHERE product_id = $1 AND buyer_id = $2 AND seller_id = $3
	`, productID, buyerID, sellerID)
}

func (r conversationRepository) Save(c domain.Conversation) error {
	affected, err := r.exec(`UPDATE conversations SET is_active = $2, updated_at = $3 WHERE id = $1`,
		c.ID, c.IsActive, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update conversation: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r conversationRepository) ListByUser(userID string) ([]domain.Conversation, error) {
	convs, err := queryList(r.querier, scanConversation, `
		SELECT `+conversationColumns+` FROM conversations
		WHERE is_active AND (buyer_id = $1 OR seller_id = $1)
		ORDER BY updated_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return convs, nil
}

// messageRepository обслуживает обе таблицы сообщений. convCols перечисляет
// столбцы участников в таблице переписок с псевдонимом c.
type messageRepository struct {
	querier
	table     string
	convTable string
	convCols  string
}

func scanMessage(row rowScanner) (domain.Message, error) {
	var m domain.Message
	err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.IsRead, &m.CreatedAt)
	return m, err
}

func (r messageRepository) Create(m domain.Message) error {
	if _, err := r.exec(`
		INSERT INTO `+r.table+` (id, conversation_id, sender_id, content, is_read, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, m.ID, m.ConversationID, m.SenderID, m.Content, m.IsRead, m.CreatedAt); err != nil {
		return fmt.Errorf("insert %s: %w", r.table, err)
	}
	return nil
}

func (r messageRepository) List(conversationID string) ([]domain.Message, error) {
	msgs, err := queryList(r.querier, scanMessage, `
		SELECT id, conversation_id, sender_id, content, is_read, created_at
		FROM `+r.table+`
		WHERE conversation_id = $1
		ORDER BY created_at, id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", r.table, err)
	}
	return msgs, nil
}

func (r messageRepository) MarkRead(conversationID, readerID string) (int, error) {
	affected, err := r.exec(`
		UPDATE `+r.table+` SET is_read = TRUE
		WHERE conversation_id = $1 AND sender_id <> $2 AND NOT is_read
	`, conversationID, readerID)
	if err != nil {
		return 0, fmt.Errorf("mark %s read: %w", r.table, err)
	}
	return int(affected), nil
}

func (r messageRepository) CountUnread(userID string) (int, error) {
	scan := func(row rowScanner) (int, error) {
		var n int
		err := row.Scan(&n)
		return n, err
	}
	return getOne(r.querier, scan, nil, "count unread "+r.table, `
		SELECT COUNT(*)
		FROM `+r.table+` m
		JOIN `+r.convTable+` c ON c.id = m.conversation_id
		WHERE c.is_active AND $1 IN (`+r.convCols+`)
		  AND m.sender_id <> $1 AND NOT m.is_read
	`, userID)
}

type directConversationRepository struct{ querier }

const directConversationColumns = `id, participant1_id, participant2_id, is_active, created_at, updated_at`

func scanDirectConversation(row rowScanner) (domain.DirectConversation, error) {
	var c domain.DirectConversation
	err := row.Scan(&c.ID, &c.Participant1ID, &c.Participant2ID, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func (r directConversationRepository) Create(c domain.DirectConversation) error {
	affected, err := r.exec(`
		INSERT INTO direct_conversations (`+directConversationColumns+`) VALUES ($1,$2,$3,$4,$5,$6)
		ON CONFLICT (participant1_id, participant2_id) DO NOTHING
	`, c.ID, c.Participant1ID, c.Participant2ID, c.IsActive, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert direct conversation: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationExists
	}
	return nil
}

func (r directConversationRepository) Get(id string) (domain.DirectConversation, error) {
	return getOne(r.querier, scanDirectConversation, domain.ErrConversationNotFound, "select direct conversation",
		`SELECT `+directConversationColumns+` FROM direct_conversations WHERE id = $1`, id)
}

func (r directConversationRepository) Find(participant1ID, participant2ID string) (domain.DirectConversation, error) {
	return getOne(r.querier, scanDirectConversation, domain.ErrConversationNotFound, "find direct conversation", `
		SELECT `+directConversationColumns+` FROM direct_conversations
		WHERE participant1_id = $1 AND participant2_id = $2
	`, participant1ID, participant2ID)
}

func (r directConversationRepository) Touch(id string, at time.Time) error {
	affected, err := r.exec(`UPDATE direct_conversations SET updated_at = $2 WHERE id = $1`, id, at)
	if err != nil {
		return fmt.Errorf("touch direct conversation: %w", err)
	}
	if affected == 0 {
		return domain.ErrConversationNotFound
	}
	return nil
}

func (r directConversationRepository) ListByUser(userID string) ([]domain.DirectConversation, error) {
	convs, err := queryList(r.querier, scanDirectConversation, `
		SELECT `+directConversationColumns+` FROM direct_conversations
		WHERE is_active AND (participant1_id = $1 OR participant2_id = $1)
		ORDER BY updated_at DESC, id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list direct conversations: %w", err)
	}
	return convs, nil
}

type notificationRepository struct{ querier }

const notificationColumns = `
	id, recipient_id, sender_id, type, title, message, product_id,
	conversation_id, order_id, is_read, created_at`

func scanNotification(row rowScanner) (domain.Notification, error) {
	var (
		n    domain.Notification
		kind string
	)
	err := row.Scan(&n.ID, &n.RecipientID, &n.SenderID, &kind, &n.Title, &n.Message, &n.ProductID,
		&n.ConversationID, &n.OrderID, &n.IsRead, &n.CreatedAt)
	n.Type = domain.NotificationType(kind)
	return n, err
}

// Create материализует уведомление. Повторная доставка того же события даёт ErrNotificationExists.
func (r notificationRepository) Create(n domain.Notification) error {
	affected, err := r.exec(`
		INSERT INTO notifications (`+notificationColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		ON CONFLICT (id) DO NOTHING
	`, n.ID, n.RecipientID, n.SenderID, string(n.Type), n.Title, n.Message, n.ProductID,
		n.ConversationID, n.OrderID, n.IsRead, n.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationExists
	}
	return nil
}

func (r notificationRepository) List(recipientID string, unreadOnly bool, limit int) ([]domain.Notification, error) {
	items, err := queryList(r.querier, scanNotification, `
		SELECT `+notificationColumns+` FROM notifications
		WHERE recipient_id = $1 AND (NOT $2 OR NOT is_read)
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($3, 0)
	`, recipientID, unreadOnly, limit)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (r notificationRepository) MarkRead(recipientID, id string) error {
	affected, err := r.exec(`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("mark notification read: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r notificationRepository) MarkAllRead(recipientID string) (int, error) {
	affected, err := r.exec(`UPDATE notifications SET is_read = TRUE WHERE recipient_id = $1 AND NOT is_read`, recipientID)
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return int(affected), nil
}

func (r notificationRepository) MarkConversationRead(recipientID, conversationID string) (int, error) {
	affected, err := r.exec(`
		UPDATE notifications SET is_read = TRUE
		WHERE recipient_id = $1 AND conversation_id = $2 AND type = $3 AND NOT is_read
	`, recipientID, conversationID, string(domain.NotificationMessage))
	if err != nil {
		return 0, fmt.Errorf("mark conversation notifications read: %w", err)
	}
	return int(affected), nil
}

func (r notificationRepository) Delete(recipientID, id string) error {
	affected, err := r.exec(`DELETE FROM notifications WHERE id = $1 AND recipient_id = $2`, id, recipientID)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	if affected == 0 {
		return domain.ErrNotificationNotFound
	}
	return nil
}

func (r notificationRepository) CountUnread(recipientID string) (int, error) {
	scan := func(row rowScanner) (int, error) {
		var n int
		err := row.Scan(&n)
		return n, err
	}
	return getOne(r.querier, scan, nil, "count unread notifications",
		`SELECT COUNT(*) FROM notifications WHERE recipient_id = $1 AND NOT is_read`, recipientID)
}

var (
	_ domain.ConversationRepository       = conversationRepository{}
	_ domain.MessageRepository            = messageRepository{}
	_ domain.DirectConversationRepository = directConversationRepository{}
	_ domain.DirectMessageRepository      = messageRepository{}
	_ domain.NotificationRepository       = notificationRepository{}
)
