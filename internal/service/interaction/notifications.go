package interaction

import (
	"context"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const maxNotifications = 100

// ListNotifications возвращает уведомления пользователя, новые первыми.
func (s *Service) ListNotifications(_ context.Context, actor domain.User, unreadOnly bool, limit int) ([]domain.Notification, error) {
	if limit <= 0 || limit > maxNotifications {
		limit = maxNotifications
	}
	return s.exec.Store().Repos().Notifications.List(actor.ID, unreadOnly, limit)
}

// MarkNotificationRead отмечает уведомление прочитанным. Чужое уведомление
// возвращает ErrNotificationNotFound.
func (s *Service) MarkNotificationRead(ctx context.Context, actor domain.User, notificationID string) error {
	return s.exec.Do(ctx, "mark_notification_read", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return repos.Notifications.MarkRead(actor.ID, notificationID)
	})
}

// MarkAllNotificationsRead отмечает прочитанными все уведомления пользователя.
func (s *Service) MarkAllNotificationsRead(ctx context.Context, actor domain.User) (int, error) {
	var marked int
	err := s.exec.Do(ctx, "mark_all_notifications_read", func(repos domain.Repositories, _ *outbox.Recorder) error {
		var err error
		marked, err = repos.Notifications.MarkAllRead(actor.ID)
		return err
	})
	return marked, err
}

// DeleteNotification удаляет уведомление пользователя.
func (s *Service) DeleteNotification(ctx context.Context, actor domain.User, notificationID string) error {
	return s.exec.Do(ctx, "delete_notification", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return repos.Notifications.Delete(actor.ID, notificationID)
	})
}

// UnreadCounts считает непрочитанные чужие сообщения во всех переписках и
// непрочитанные уведомления.
func (s *Service) UnreadCounts(_ context.Context, actor domain.User) (domain.UnreadCounts, error) {
	repos := s.exec.Store().Repos()
	product, err := repos.Messages.CountUnread(actor.ID)
	if err != nil {
		return domain.UnreadCounts{}, err
	}
	direct, err := repos.DirectMessages.CountUnread(actor.ID)
	if err != nil {
		return domain.UnreadCounts{}, err
	}
	notifications, err := repos.Notifications.CountUnread(actor.ID)
	if err != nil {
		return domain.UnreadCounts{}, err
	}
	return domain.UnreadCounts{
		UnreadMessages:      product + direct,
		UnreadNotifications: notifications,
	}, nil
}
