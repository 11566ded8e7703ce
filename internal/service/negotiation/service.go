// Package negotiation ведёт предложения цены покупателей.
package negotiation

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// Service реализует жизненный цикл предложения: pending → accepted | rejected.
type Service struct {
	exec    *outbox.Executor
	metrics *metrics.Metrics
	logger  *log.Entry
	now     func() time.Time
}

// NewService создаёт сервис предложений.
func NewService(exec *outbox.Executor, m *metrics.Metrics, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "negotiation-service")
	}
	return &Service{
		exec:    exec,
		metrics: m,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// OfferInput — предложение покупателя.
type OfferInput struct {
	ProductID string          `json:"product_id"`
	Amount    decimal.Decimal `json:"amount"`
	Message   string          `json:"message"`
}

// MakeOffer создаёт предложение. Проверки идут в порядке: товар доступен,
// покупатель не продавец, сумма положительна, нет другого ожидающего предложения.
func (s *Service) MakeOffer(ctx context.Context, actor domain.User, in OfferInput) (domain.Offer, error) {
	if !actor.CanBuy() {
		return domain.Offer{}, domain.ErrCannotBuy
	}

	var offer domain.Offer
	err := s.exec.Do(ctx, "make_offer", func(repos domain.Repositories, rec *outbox.Recorder) error {
		product, err := repos.Products.Get(in.ProductID)
		if err != nil {
			return err
		}
		pending, err := repos.Offers.HasPending(product.ID, actor.ID)
		if err != nil {
			return err
		}
		if err := domain.ValidateNewOffer(actor, product, in.Amount, pending); err != nil {
			return err
		}

		now := s.now()
		offer = domain.Offer{
			ID:        ids.New(),
			ProductID: product.ID,
			BuyerID:   actor.ID,
			SellerID:  product.SellerID,
			Amount:    in.Amount,
			Message:   in.Message,
			Status:    domain.OfferStatusPending,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := repos.Offers.Create(offer); err != nil {
			return err
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: product.SellerID,
			SenderID:    actor.ID,
			Type:        domain.NotificationOffer,
			Title:       "New offer received",
			Message:     fmt.Sprintf("%s offered %s for %q", actor.Username, in.Amount.StringFixed(2), product.Title),
			ProductID:   product.ID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateOffer, domain.EventOfferCreated, offerEvent(offer, actor.ID, now))
	})
	if err != nil {
		s.metrics.RecordOffer("failed")
		return domain.Offer{}, err
	}

	s.metrics.RecordOffer("created")
	s.logger.WithFields(log.Fields{
		"offer_id":   offer.ID,
		"product_id": offer.ProductID,
		"buyer_id":   offer.BuyerID,
	}).Info("offer created")
	return offer, nil
}

// AcceptOffer принимает предложение. Статус товара не меняется: товар
// остаётся в продаже, пока продавец не одобрит заказ.
func (s *Service) AcceptOffer(ctx context.Context, actor domain.User, offerID, response string) (domain.Offer, error) {
	return s.respond(ctx, actor, offerID, response, true)
}

// RejectOffer отклоняет предложение.
func (s *Service) RejectOffer(ctx context.Context, actor domain.User, offerID, response string) (domain.Offer, error) {
	return s.respond(ctx, actor, offerID, response, false)
}

func (s *Service) respond(ctx context.Context, actor domain.User, offerID, response string, accept bool) (domain.Offer, error) {
	operation, eventType, notification, title := "reject_offer", domain.EventOfferRejected, domain.NotificationOfferRejected, "Your offer was rejected"
	if accept {
		operation, eventType, notification, title = "accept_offer", domain.EventOfferAccepted, domain.NotificationOfferAccepted, "Your offer was accepted"
	}

	var offer domain.Offer
	err := s.exec.Do(ctx, operation, func(repos domain.Repositories, rec *outbox.Recorder) error {
		var err error
		offer, err = repos.Offers.Get(offerID)
		if err != nil {
			return err
		}
		if offer.SellerID != actor.ID {
			return domain.ErrNotOfferSeller
		}

		now := s.now()
		if accept {
			err = offer.Accept(response, now)
		} else {
			err = offer.Reject(response, now)
		}
		if err != nil {
			return err
		}
		if err := repos.Offers.Save(offer); err != nil {
			return err
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: offer.BuyerID,
			SenderID:    actor.ID,
			Type:        notification,
			Title:       title,
			Message:     response,
			ProductID:   offer.ProductID,
		}); err != nil {
			return err
		}
		return rec.Event(repos.Outbox, domain.AggregateOffer, eventType, offerEvent(offer, actor.ID, now))
	})
	if err != nil {
		return domain.Offer{}, err
	}

	s.metrics.RecordOffer(string(offer.Status))
	return offer, nil
}

func offerEvent(offer domain.Offer, actorID string, at time.Time) domain.DomainEvent {
	return domain.DomainEvent{
		AggregateID: offer.ID,
		ActorID:     actorID,
		Status:      string(offer.Status),
		OccurredAt:  at,
		Attributes: map[string]string{
			"product_id": offer.ProductID,
			"buyer_id":   offer.BuyerID,
			"amount":     offer.Amount.String(),
		},
	}
}

// GetOffer возвращает предложение одной из его сторон.
func (s *Service) GetOffer(_ context.Context, actor domain.User, offerID string) (domain.Offer, error) {
	offer, err := s.exec.Store().Repos().Offers.Get(offerID)
	if err != nil {
		return domain.Offer{}, err
	}
	if offer.BuyerID != actor.ID && offer.SellerID != actor.ID && !actor.IsAdmin() {
		return domain.Offer{}, domain.ErrNotOfferParty
	}
	return offer, nil
}

// ListProductOffers возвращает предложения по товару его продавцу.
func (s *Service) ListProductOffers(_ context.Context, actor domain.User, productID string) ([]domain.Offer, error) {
	repos := s.exec.Store().Repos()
	product, err := repos.Products.Get(productID)
	if err != nil {
		return nil, err
	}
	if product.SellerID != actor.ID && !actor.IsAdmin() {
		return nil, domain.ErrNotProductOwner
	}
	return repos.Offers.ListByProduct(productID)
}

// ListMyOffers возвращает предложения покупателя.
func (s *Service) ListMyOffers(_ context.Context, actor domain.User) ([]domain.Offer, error) {
	return s.exec.Store().Repos().Offers.ListByBuyer(actor.ID)
}
