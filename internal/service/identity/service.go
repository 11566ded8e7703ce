// Package identity ведёт учётные записи, роли и верификацию продавцов.
package identity

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

// Service реализует операции над пользователями.
type Service struct {
	exec   *outbox.Executor
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис пользователей.
func NewService(exec *outbox.Executor, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "identity-service")
	}
	return &Service{
		exec:   exec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput — данные регистрации.
type RegisterInput struct {
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	Phone     string          `json:"phone"`
	Location  string          `json:"location"`
	UserType  domain.UserType `json:"user_type"`
	IsPremium bool            `json:"is_premium"`
}

// Register создаёт пользователя и выставляет поля верификации по роли.
func (s *Service) Register(ctx context.Context, in RegisterInput) (domain.User, error) {
	now := s.now()
	user := domain.User{
		ID:        ids.New(),
		Username:  strings.TrimSpace(in.Username),
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		FirstName: in.FirstName,
		LastName:  in.LastName,
		Phone:     in.Phone,
		Location:  in.Location,
		UserType:  in.UserType,
		IsActive:  true,
		IsPremium: in.IsPremium,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if user.UserType == "" {
		user.UserType = domain.UserTypeBuyer
	}
	if errs := user.ValidateInvariants(); len(errs) > 0 {
		return domain.User{}, errs[0]
	}
	domain.ApplyRoleDefaults(&user)

	err := s.exec.Do(ctx, "register_user", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return repos.Users.Create(user)
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":   user.ID,
		"user_type": user.UserType,
	}).Info("user registered")
	return user, nil
}

// GetUser возвращает пользователя.
func (s *Service) GetUser(_ context.Context, id string) (domain.User, error) {
	return s.exec.Store().Repos().Users.Get(id)
}

// ResolveActor возвращает активного пользователя по идентификатору из токена.
func (s *Service) ResolveActor(ctx context.Context, userID string) (domain.User, error) {
	user, err := s.GetUser(ctx, userID)
	if err != nil {
		return domain.User{}, err
	}
	if !user.IsActive {
		return domain.User{}, domain.ErrUserNotFound
	}
	return user, nil
}

// ProfileInput — изменяемые поля профиля. nil означает «не менять».
type ProfileInput struct {
	FirstName *string          `json:"first_name,omitempty"`
	LastName  *string          `json:"last_name,omitempty"`
	Phone     *string          `json:"phone,omitempty"`
	Location  *string          `json:"location,omitempty"`
	Email     *string          `json:"email,omitempty"`
	UserType  *domain.UserType `json:"user_type,omitempty"`
}

// UpdateProfile меняет собственный профиль. Смена роли заново применяет
// правила верификации.
func (s *Service) UpdateProfile(ctx context.Context, actor domain.User, userID string, in ProfileInput) (domain.User, error) {
	if actor.ID != userID {
		return domain.User{}, domain.ErrNotProfileOwner
	}

	var updated domain.User
	err := s.exec.Do(ctx, "update_profile", func(repos domain.Repositories, _ *outbox.Recorder) error {
		user, err := repos.Users.Get(userID)
		if err != nil {
			return err
		}
		applyProfile(&user, in)
		if errs := user.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if in.UserType != nil && user.UserType == domain.UserTypeAdmin && !actor.IsAdmin() {
			return domain.ErrStaffOnly
		}
		domain.ApplyRoleDefaults(&user)
		user.UpdatedAt = s.now()
		if err := repos.Users.Save(user); err != nil {
			return err
		}
		updated = user
		return nil
	})
	return updated, err
}

func applyProfile(user *domain.User, in ProfileInput) {
	if in.FirstName != nil {
		user.FirstName = *in.FirstName
	}
	if in.LastName != nil {
		user.LastName = *in.LastName
	}
	if in.Phone != nil {
		user.Phone = *in.Phone
	}
	if in.Location != nil {
		user.Location = *in.Location
	}
	if in.Email != nil {
		user.Email = strings.ToLower(strings.TrimSpace(*in.Email))
	}
	if in.UserType != nil {
		user.UserType = *in.UserType
	}
}

// ApproveUser верифицирует продавца.
func (s *Service) ApproveUser(ctx context.Context, staff domain.User, userID, notes string) (domain.User, error) {
	return s.decide(ctx, staff, userID, "approve_user", func(u *domain.User, at time.Time) (domain.EventType, string, error) {
		return domain.EventUserApproved, "Your seller account has been verified", u.Approve(staff.ID, notes, at)
	})
}

// RejectUser отклоняет заявку продавца.
func (s *Service) RejectUser(ctx context.Context, staff domain.User, userID, reason string) (domain.User, error) {
	return s.decide(ctx, staff, userID, "reject_user", func(u *domain.User, at time.Time) (domain.EventType, string, error) {
		return domain.EventUserRejected, "Your seller verification was rejected", u.Reject(staff.ID, reason, at)
	})
}

func (s *Service) decide(
	ctx context.Context,
	staff domain.User,
	userID, operation string,
	apply func(u *domain.User, at time.Time) (domain.EventType, string, error),
) (domain.User, error) {
	if !staff.IsAdmin() {
		return domain.User{}, domain.ErrStaffOnly
	}

	var updated domain.User
	err := s.exec.Do(ctx, operation, func(repos domain.Repositories, rec *outbox.Recorder) error {
		user, err := repos.Users.Get(userID)
		if err != nil {
			return err
		}
		now := s.now()
		eventType, title, err := apply(&user, now)
		if err != nil {
			return err
		}
		if err := repos.Users.Save(user); err != nil {
			return err
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: user.ID,
			SenderID:    staff.ID,
			Type:        domain.NotificationVerification,
			Title:       title,
			Message:     user.VerificationNotes,
		}); err != nil {
			return err
		}
		if err := rec.Event(repos.Outbox, domain.AggregateUser, eventType, domain.DomainEvent{
			AggregateID: user.ID,
			ActorID:     staff.ID,
			Status:      string(user.VerificationStatus),
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return domain.User{}, err
	}

	s.logger.WithFields(log.Fields{
		"user_id":  updated.ID,
		"staff_id": staff.ID,
		"status":   updated.VerificationStatus,
	}).Info("seller verification decided")
	return updated, nil
}

// ListPendingVerifications возвращает продавцов, ожидающих проверки.
func (s *Service) ListPendingVerifications(_ context.Context, staff domain.User, limit int) ([]domain.User, error) {
	if !staff.IsAdmin() {
		return nil, domain.ErrStaffOnly
	}
	return s.exec.Store().Repos().Users.ListPendingVerification(limit)
}

// RateInput — оценка контрагента по заказу.
type RateInput struct {
	ToUserID string `json:"to_user_id"`
	OrderID  string `json:"order_id"`
	Rating   int    `json:"rating"`
	Comment  string `json:"comment"`
}

// RateUser оценивает вторую сторону доставленного заказа и пересчитывает средний рейтинг.
func (s *Service) RateUser(ctx context.Context, actor domain.User, in RateInput) (domain.UserRating, error) {
	if !domain.ValidRatingValue(in.Rating) {
		return domain.UserRating{}, domain.ErrRatingValueInvalid
	}
	if actor.ID == in.ToUserID {
		return domain.UserRating{}, domain.ErrCannotRateSelf
	}

	var rating domain.UserRating
	err := s.exec.Do(ctx, "rate_user", func(repos domain.Repositories, rec *outbox.Recorder) error {
		order, err := repos.Orders.Get(in.OrderID)
		if err != nil {
			return err
		}
		if !order.IsParty(actor.ID) || order.Counterparty(actor.ID) != in.ToUserID {
			return domain.ErrNotOrderParty
		}
		if order.Status != domain.OrderStatusDelivered {
			return domain.ErrRatingOrderNotDelivered
		}

		rating = domain.UserRating{
			ID:         ids.New(),
			FromUserID: actor.ID,
			ToUserID:   in.ToUserID,
			OrderID:    order.ID,
			Rating:     in.Rating,
			Comment:    in.Comment,
			CreatedAt:  s.now(),
		}
		if err := repos.UserRatings.Create(rating); err != nil {
			return err
		}
		if err := recomputeUserRating(repos, in.ToUserID); err != nil {
			return err
		}
		return rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: in.ToUserID,
			SenderID:    actor.ID,
			Type:        domain.NotificationRating,
			Title:       "You received a new rating",
			Message:     fmt.Sprintf("%s rated you %d/5", actor.Username, in.Rating),
			OrderID:     order.ID,
		})
	})
	if err != nil {
		return domain.UserRating{}, err
	}
	return rating, nil
}

func recomputeUserRating(repos domain.Repositories, userID string) error {
	ratings, err := repos.UserRatings.ListForUser(userID)
	if err != nil {
		return err
	}
	values := make([]int, 0, len(ratings))
	for _, r := range ratings {
		values = append(values, r.Rating)
	}
	avg, total := domain.AverageRating(values)
	return repos.Users.SetRating(userID, avg, total)
}

// ListUserRatings возвращает оценки пользователя, новые первыми.
func (s *Service) ListUserRatings(_ context.Context, userID string) ([]domain.UserRating, error) {
	if _, err := s.exec.Store().Repos().Users.Get(userID); err != nil {
		return nil, err
	}
	return s.exec.Store().Repos().UserRatings.ListForUser(userID)
}

// EnsureAdmin создаёт учётную запись администратора, если её ещё нет.
func (s *Service) EnsureAdmin(ctx context.Context, username, email string) (domain.User, error) {
	user, err := s.Register(ctx, RegisterInput{Username: username, Email: email, UserType: domain.UserTypeAdmin})
	if errors.Is(err, domain.ErrUsernameTaken) || errors.Is(err, domain.ErrEmailTaken) {
		s.logger.WithField("username", username).Debug("bootstrap admin already exists")
		return domain.User{}, nil
	}
	return user, err
}

var _ domain.ActorResolver = (*Service)(nil)
