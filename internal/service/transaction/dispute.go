package transaction

import (
	"context"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// OpenDisputeInput — заявление о споре.
type OpenDisputeInput struct {
	OrderID     string             `json:"order_id"`
	Type        domain.DisputeType `json:"type"`
	Description string             `json:"description"`
	Evidence    string             `json:"evidence"`
	// Message — первое сообщение переписки, необязательно.
	Message string `json:"message"`
}

// OpenDispute открывает спор по заказу. Открыть может покупатель или продавец,
// когда заказ одобрен, отправлен или доставлен, и активного спора ещё нет.
func (s *Service) OpenDispute(ctx context.Context, actor domain.User, in OpenDisputeInput) (domain.Dispute, error) {
	if !in.Type.Valid() {
		return domain.Dispute{}, domain.ErrDisputeTypeInvalid
	}
	if strings.TrimSpace(in.Description) == "" {
		return domain.Dispute{}, domain.ErrDisputeDescription
	}

	var dispute domain.Dispute
	err := s.exec.Do(ctx, "open_dispute", func(repos domain.Repositories, rec *outbox.Recorder) error {
		order, err := repos.Orders.Get(in.OrderID)
		if err != nil {
			return err
		}
		if !order.IsParty(actor.ID) {
			return domain.ErrNotOrderParty
		}
		if !domain.DisputeEligible(order.Status) {
			return domain.ErrDisputeOrderState
		}
		active, err := repos.Disputes.HasActive(order.ID)
		if err != nil {
			return err
		}
		if active {
			return domain.ErrDisputeAlreadyOpen
		}

		now := s.now()
		dispute = domain.Dispute{
			ID:            ids.New(),
			OrderID:       order.ID,
			ComplainantID: actor.ID,
			Type:          in.Type,
			Description:   in.Description,
			Evidence:      in.Evidence,
			Status:        domain.DisputeStatusOpen,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := repos.Disputes.Create(dispute); err != nil {
			return err
		}
		if strings.TrimSpace(in.Message) != "" {
			if err := repos.DisputeMessages.Append(domain.DisputeMessage{
				ID:        ids.Sortable(),
				DisputeID: dispute.ID,
				SenderID:  actor.ID,
				Message:   in.Message,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: order.Counterparty(actor.ID),
			SenderID:    actor.ID,
			Type:        domain.NotificationDispute,
			Title:       "A dispute was opened",
			Message:     fmt.Sprintf("A dispute was opened for order %s", order.OrderNumber),
			ProductID:   order.ProductID,
			OrderID:     order.ID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateDispute, domain.EventDisputeOpened, disputeEvent(dispute, actor.ID, now))
	})
	if err != nil {
		return domain.Dispute{}, err
	}

	s.metrics.RecordDispute(string(dispute.Status))
	s.logger.WithFields(log.Fields{
		"dispute_id": dispute.ID,
		"order_id":   dispute.OrderID,
		"type":       dispute.Type,
	}).Info("dispute opened")
	return dispute, nil
}

// ReviewDispute берёт спор в работу.
func (s *Service) ReviewDispute(ctx context.Context, staff domain.User, disputeID string) (domain.Dispute, error) {
	return s.moveDispute(ctx, staff, disputeID, "review_dispute", "", func(d *domain.Dispute, at time.Time) error {
		return d.StartReview(at)
	})
}

// ResolveDispute выносит решение по спору и уведомляет заявителя.
func (s *Service) ResolveDispute(ctx context.Context, staff domain.User, disputeID, resolution string) (domain.Dispute, error) {
	return s.moveDispute(ctx, staff, disputeID, "resolve_dispute", domain.EventDisputeResolved, func(d *domain.Dispute, at time.Time) error {
		return d.Resolve(staff.ID, resolution, at)
	})
}

// CloseDispute закрывает спор без решения и уведомляет заявителя.
func (s *Service) CloseDispute(ctx context.Context, staff domain.User, disputeID, note string) (domain.Dispute, error) {
	return s.moveDispute(ctx, staff, disputeID, "close_dispute", domain.EventDisputeClosed, func(d *domain.Dispute, at time.Time) error {
		return d.Close(staff.ID, note, at)
	})
}

// moveDispute меняет статус спора. Пустой event означает переход без
// уведомления заявителя.
func (s *Service) moveDispute(
	ctx context.Context,
	staff domain.User,
	disputeID, operation string,
	event domain.EventType,
	apply func(d *domain.Dispute, at time.Time) error,
) (domain.Dispute, error) {
	if !staff.IsAdmin() {
		return domain.Dispute{}, domain.ErrStaffOnly
	}

	var dispute domain.Dispute
	err := s.exec.Do(ctx, operation, func(repos domain.Repositories, rec *outbox.Recorder) error {
		var err error
		dispute, err = repos.Disputes.Get(disputeID)
		if err != nil {
			return err
		}
		now := s.now()
		if err := apply(&dispute, now); err != nil {
			return err
		}
		if err := repos.Disputes.Save(dispute); err != nil {
			return err
		}
		if event == "" {
			return nil
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: dispute.ComplainantID,
			SenderID:    staff.ID,
			Type:        domain.NotificationDispute,
			Title:       "Your dispute was " + string(dispute.Status),
			Message:     dispute.Resolution,
			OrderID:     dispute.OrderID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateDispute, event, disputeEvent(dispute, staff.ID, now))
	})
	if err != nil {
		return domain.Dispute{}, err
	}

	s.metrics.RecordDispute(string(dispute.Status))
	s.logger.WithFields(log.Fields{
		"dispute_id": dispute.ID,
		"status":     dispute.Status,
		"staff_id":   staff.ID,
	}).Info("dispute status changed")
	return dispute, nil
}

// GetDispute возвращает спор заявителю, сторонам заказа или персоналу.
func (s *Service) GetDispute(_ context.Context, actor domain.User, disputeID string) (domain.Dispute, error) {
	dispute, _, err := s.accessDispute(s.exec.Store().Repos(), actor, disputeID)
	return dispute, err
}

// ListDisputes возвращает споры пользователя. Персонал видит все.
func (s *Service) ListDisputes(_ context.Context, actor domain.User, status domain.DisputeStatus, limit int) ([]domain.Dispute, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}
	userID := actor.ID
	if actor.IsAdmin() {
		userID = ""
	}
	return s.exec.Store().Repos().Disputes.ListForUser(userID, status, limit)
}

// PostDisputeMessage добавляет сообщение в переписку по спору.
// Сообщения персонала помечаются как административные.
func (s *Service) PostDisputeMessage(ctx context.Context, actor domain.User, disputeID, text string) (domain.DisputeMessage, error) {
	if strings.TrimSpace(text) == "" {
		return domain.DisputeMessage{}, domain.ErrMessageEmpty
	}

	var msg domain.DisputeMessage
	err := s.exec.Do(ctx, "post_dispute_message", func(repos domain.Repositories, rec *outbox.Recorder) error {
		dispute, order, err := s.accessDispute(repos, actor, disputeID)
		if err != nil {
			return err
		}
		msg = domain.DisputeMessage{
			ID:             ids.Sortable(),
			DisputeID:      dispute.ID,
			SenderID:       actor.ID,
			Message:        text,
			IsAdminMessage: actor.IsAdmin() && !dispute.CanAccess(actor.ID, order),
			CreatedAt:      s.now(),
		}
		if err := repos.DisputeMessages.Append(msg); err != nil {
			return err
		}

		recipients := []string{order.BuyerID, order.SellerID}
		if dispute.ComplainantID != order.BuyerID && dispute.ComplainantID != order.SellerID {
			recipients = append(recipients, dispute.ComplainantID)
		}
		drafts := make([]domain.NotificationDraft, 0, len(recipients))
		for _, recipient := range recipients {
			drafts = append(drafts, domain.NotificationDraft{
				RecipientID: recipient,
				SenderID:    actor.ID,
				Type:        domain.NotificationDispute,
				Title:       "New message in dispute",
				Message:     text,
				OrderID:     order.ID,
			})
		}
		return rec.Notify(repos.Outbox, drafts...)
	})
	if err != nil {
		return domain.DisputeMessage{}, err
	}
	return msg, nil
}

// ListDisputeMessages возвращает переписку в порядке создания.
func (s *Service) ListDisputeMessages(_ context.Context, actor domain.User, disputeID string) ([]domain.DisputeMessage, error) {
	repos := s.exec.Store().Repos()
	if _, _, err := s.accessDispute(repos, actor, disputeID); err != nil {
		return nil, err
	}
	return repos.DisputeMessages.List(disputeID)
}

func (s *Service) accessDispute(repos domain.Repositories, actor domain.User, disputeID string) (domain.Dispute, domain.Order, error) {
	dispute, err := repos.Disputes.Get(disputeID)
	if err != nil {
		return domain.Dispute{}, domain.Order{}, err
	}
	order, err := repos.Orders.Get(dispute.OrderID)
	if err != nil {
		return domain.Dispute{}, domain.Order{}, err
	}
	if !dispute.CanAccess(actor.ID, order) && !actor.IsAdmin() {
		return domain.Dispute{}, domain.Order{}, domain.ErrNotDisputeParty
	}
	return dispute, order, nil
}

func disputeEvent(d domain.Dispute, actorID string, at time.Time) domain.DomainEvent {
	return domain.DomainEvent{
		AggregateID: d.ID,
		ActorID:     actorID,
		Status:      string(d.Status),
		OccurredAt:  at,
		Attributes: map[string]string{
			"order_id": d.OrderID,
			"type":     string(d.Type),
		},
	}
}
