// Package interaction ведёт переписки по товарам, личные переписки и уведомления.
package interaction

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// Service обслуживает переписки и уведомления.
type Service struct {
	exec   *outbox.Executor
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис переписок.
func NewService(exec *outbox.Executor, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "interaction-service")
	}
	return &Service{
		exec:   exec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// StartConversation открывает переписку с продавцом товара. Если переписка
// уже есть, возвращает её с created=false.
func (s *Service) StartConversation(ctx context.Context, actor domain.User, productID, message string) (conv domain.Conversation, created bool, err error) {
	err = s.exec.Do(ctx, "start_conversation", func(repos domain.Repositories, rec *outbox.Recorder) error {
		created = false
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		if !productVisibleTo(actor, product) {
			return domain.ErrProductNotFound
		}
		if product.SellerID == actor.ID {
			return domain.ErrConversationOwnProduct
		}

		conv, err = repos.Conversations.Find(product.ID, actor.ID, product.SellerID)
		switch {
		case err == nil:
			if conv.IsActive {
				return nil
			}
			conv.IsActive = true
			conv.UpdatedAt = s.now()
			return repos.Conversations.Save(conv)
		case !errors.Is(err, domain.ErrConversationNotFound):
			return err
		}

		now := s.now()
		conv = domain.Conversation{
			ID:        ids.New(),
			ProductID: product.ID,
			BuyerID:   actor.ID,
			SellerID:  product.SellerID,
			IsActive:  true,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repos.Conversations.Create(conv); err != nil {
			return err
		}
		created = true
		if strings.TrimSpace(message) != "" {
			if err := repos.Messages.Create(newMessage(conv.ID, actor.ID, message, now)); err != nil {
				return err
			}
		}
		return rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID:    product.SellerID,
			SenderID:       actor.ID,
			Type:           domain.NotificationMessage,
			Title:          fmt.Sprintf("New conversation about %s", product.Title),
			Message:        fmt.Sprintf("%s started a conversation about your product", actor.Username),
			ProductID:      product.ID,
			ConversationID: conv.ID,
		})
	})
	if err != nil {
		return domain.Conversation{}, false, err
	}
	if created {
		s.logger.WithFields(log.Fields{"conversation_id": conv.ID, "product_id": conv.ProductID}).Info("conversation started")
	}
	return conv, created, nil
}

// ConversationExists ищет активную переписку пользователя по товару.
func (s *Service) ConversationExists(_ context.Context, actor domain.User, productID string) (string, bool, error) {
	repos := s.exec.Store().Repos()
	product, err := repos.Products.Get(productID)
	if err != nil {
		return "", false, err
	}
	conv, err := repos.Conversations.Find(product.ID, actor.ID, product.SellerID)
	if errors.Is(err, domain.ErrConversationNotFound) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return conv.ID, conv.IsActive, nil
}

// SendMessage добавляет сообщение в переписку и уведомляет собеседника.
func (s *Service) SendMessage(ctx context.Context, actor domain.User, conversationID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.ErrMessageEmpty
	}

	var msg domain.Message
	err := s.exec.Do(ctx, "send_message", func(repos domain.Repositories, rec *outbox.Recorder) error {
		conv, err := participantConversation(repos, actor.ID, conversationID)
		if err != nil {
			return err
		}
		now := s.now()
		msg = newMessage(conv.ID, actor.ID, content, now)
		if err := repos.Messages.Create(msg); err != nil {
			return err
		}
		conv.UpdatedAt = now
		if err := repos.Conversations.Save(conv); err != nil {
			return err
		}

		title := "your product"
		if product, err := repos.Products.Get(conv.ProductID); err == nil {
			title = product.Title
		}
		return rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID:    conv.OtherParticipant(actor.ID),
			SenderID:       actor.ID,
			Type:           domain.NotificationMessage,
			Title:          "New message from " + actor.Username,
			Message:        fmt.Sprintf("You have a new message about %q", title),
			ProductID:      conv.ProductID,
			ConversationID: conv.ID,
		})
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

// ListConversations возвращает активные переписки, свежие первыми.
func (s *Service) ListConversations(_ context.Context, actor domain.User) ([]domain.Conversation, error) {
	return s.exec.Store().Repos().Conversations.ListByUser(actor.ID)
}

// ConversationView — переписка с сообщениями.
type ConversationView struct {
	Conversation domain.Conversation `json:"conversation"`
	Messages     []domain.Message    `json:"messages"`
}

// GetConversation открывает переписку: сообщения собеседника и уведомления
// о них становятся прочитанными.
func (s *Service) GetConversation(ctx context.Context, actor domain.User, conversationID string) (ConversationView, error) {
	var view ConversationView
	err := s.exec.Do(ctx, "read_conversation", func(repos domain.Repositories, _ *outbox.Recorder) error {
		conv, err := participantConversation(repos, actor.ID, conversationID)
		if err != nil {
			return err
		}
		if _, err := repos.Messages.MarkRead(conv.ID, actor.ID); err != nil {
			return err
		}
		if _, err := repos.Notifications.MarkConversationRead(actor.ID, conv.ID); err != nil {
			return err
		}
		msgs, err := repos.Messages.List(conv.ID)
		if err != nil {
			return err
		}
		view = ConversationView{Conversation: conv, Messages: msgs}
		return nil
	})
	return view, err
}

// ListMessages возвращает сообщения переписки в хронологическом порядке.
func (s *Service) ListMessages(_ context.Context, actor domain.User, conversationID string) ([]domain.Message, error) {
	repos := s.exec.Store().Repos()
	conv, err := participantConversation(repos, actor.ID, conversationID)
	if err != nil {
		return nil, err
	}
	return repos.Messages.List(conv.ID)
}

// DeleteConversation скрывает переписку. Сообщения сохраняются.
func (s *Service) DeleteConversation(ctx context.Context, actor domain.User, conversationID string) error {
	return s.exec.Do(ctx, "delete_conversation", func(repos domain.Repositories, _ *outbox.Recorder) error {
		conv, err := participantConversation(repos, actor.ID, conversationID)
		if err != nil {
			return err
		}
		conv.IsActive = false
		conv.UpdatedAt = s.now()
		return repos.Conversations.Save(conv)
	})
}

// productVisibleTo повторяет правило каталога: непроверенное или удалённое
// объявление видят только продавец и staff.
func productVisibleTo(actor domain.User, product domain.Product) bool {
	return product.IsPublic() || actor.ID == product.SellerID || actor.IsAdmin()
}

func participantConversation(repos domain.Repositories, actorID, conversationID string) (domain.Conversation, error) {
	conv, err := repos.Conversations.Get(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.IsParticipant(actorID) {
		return domain.Conversation{}, domain.ErrNotConversationParty
	}
	return conv, nil
}

func newMessage(conversationID, senderID, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             ids.Sortable(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		CreatedAt:      at,
	}
}
