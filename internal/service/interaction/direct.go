package interaction

import (
	"context"
	"errors"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// StartDirectConversation находит или создаёт личную переписку с пользователем.
// Непустое сообщение отправляется сразу.
func (s *Service) StartDirectConversation(ctx context.Context, actor domain.User, otherUserID, message string) (conv domain.DirectConversation, created bool, err error) {
	p1, p2, err := domain.NormalizeParticipants(actor.ID, otherUserID)
	if err != nil {
		return domain.DirectConversation{}, false, err
	}

	err = s.exec.Do(ctx, "start_direct_conversation", func(repos domain.Repositories, rec *outbox.Recorder) error {
		created = false
		if _, err := repos.Users.Get(otherUserID); err != nil {
			return err
		}

		now := s.now()
		conv, err = repos.DirectConversations.Find(p1, p2)
		switch {
		case errors.Is(err, domain.ErrConversationNotFound):
			conv = domain.DirectConversation{
				ID:             ids.New(),
				Participant1ID: p1,
				Participant2ID: p2,
				IsActive:       true,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := repos.DirectConversations.Create(conv); err != nil {
				return err
			}
			created = true
		case err != nil:
			return err
		}

		if strings.TrimSpace(message) == "" {
			return nil
		}
		_, err := s.sendDirect(repos, rec, actor, conv, message)
		return err
	})
	if err != nil {
		return domain.DirectConversation{}, false, err
	}
	return conv, created, nil
}

// SendDirectMessage отправляет сообщение в личную переписку.
func (s *Service) SendDirectMessage(ctx context.Context, actor domain.User, conversationID, content string) (domain.Message, error) {
	if strings.TrimSpace(content) == "" {
		return domain.Message{}, domain.ErrMessageEmpty
	}

	var msg domain.Message
	err := s.exec.Do(ctx, "send_direct_message", func(repos domain.Repositories, rec *outbox.Recorder) error {
		conv, err := participantDirect(repos, actor.ID, conversationID)
		if err != nil {
			return err
		}
		msg, err = s.sendDirect(repos, rec, actor, conv, content)
		return err
	})
	if err != nil {
		return domain.Message{}, err
	}
	return msg, nil
}

func (s *Service) sendDirect(repos domain.Repositories, rec *outbox.Recorder, actor domain.User, conv domain.DirectConversation, content string) (domain.Message, error) {
	now := s.now()
	msg := newMessage(conv.ID, actor.ID, content, now)
	if err := repos.DirectMessages.Create(msg); err != nil {
		return domain.Message{}, err
	}
	if err := repos.DirectConversations.Touch(conv.ID, now); err != nil {
		return domain.Message{}, err
	}
	err := rec.Notify(repos.Outbox, domain.NotificationDraft{
		RecipientID:    conv.OtherParticipant(actor.ID),
		SenderID:       actor.ID,
		Type:           domain.NotificationMessage,
		Title:          "New message from " + actor.Username,
		Message:        "You have a new message from " + actor.Username,
		ConversationID: conv.ID,
	})
	return msg, err
}

// ListDirectConversations возвращает личные переписки, свежие первыми.
func (s *Service) ListDirectConversations(_ context.Context, actor domain.User) ([]domain.DirectConversation, error) {
	return s.exec.Store().Repos().DirectConversations.ListByUser(actor.ID)
}

// ListDirectMessages возвращает сообщения и отмечает сообщения собеседника прочитанными.
func (s *Service) ListDirectMessages(ctx context.Context, actor domain.User, conversationID string) ([]domain.Message, error) {
	var msgs []domain.Message
	err := s.exec.Do(ctx, "read_direct_conversation", func(repos domain.Repositories, _ *outbox.Recorder) error {
		conv, err := participantDirect(repos, actor.ID, conversationID)
		if err != nil {
			return err
		}
		if _, err := repos.DirectMessages.MarkRead(conv.ID, actor.ID); err != nil {
			return err
		}
		if _, err := repos.Notifications.MarkConversationRead(actor.ID, conv.ID); err != nil {
			return err
		}
		msgs, err = repos.DirectMessages.List(conv.ID)
		return err
	})
	return msgs, err
}

func participantDirect(repos domain.Repositories, actorID, conversationID string) (domain.DirectConversation, error) {
	conv, err := repos.DirectConversations.Get(conversationID)
	if err != nil {
		return domain.DirectConversation{}, err
	}
	if !conv.IsParticipant(actorID) {
		return domain.DirectConversation{}, domain.ErrNotConversationParty
	}
	return conv, nil
}
