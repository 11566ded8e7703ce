// Package catalog ведёт рубрики и объявления вместе с их изображениями,
// избранным, оценками и жалобами.
package catalog

import (
	"context"
	"strings"
	"time"
	"unicode"

	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

const (
	topListSize      = 10
	defaultPageLimit = 20
	maxPageLimit     = 100
)

// Service реализует операции каталога.
type Service struct {
	exec   *outbox.Executor
	logger *log.Entry
	now    func() time.Time
}

// NewService создаёт сервис каталога.
func NewService(exec *outbox.Executor, logger *log.Entry) *Service {
	if logger == nil {
		logger = log.New().WithField("component", "catalog-service")
	}
	return &Service{
		exec:   exec,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) repos() domain.Repositories {
	return s.exec.Store().Repos()
}

// CategoryInput — данные новой рубрики.
type CategoryInput struct {
	Name        string `json:"name"`
	Slug        string `json:"slug"`
	Description string `json:"description"`
	ParentID    string `json:"parent_id"`
}

// CreateCategory создаёт рубрику. Только для персонала.
func (s *Service) CreateCategory(ctx context.Context, staff domain.User, in CategoryInput) (domain.Category, error) {
	if !staff.IsAdmin() {
		return domain.Category{}, domain.ErrStaffOnly
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return domain.Category{}, domain.ErrCategoryNameRequired
	}
	slug := in.Slug
	if strings.TrimSpace(slug) == "" {
		slug = slugify(name)
	}

	category := domain.Category{
		ID:          ids.New(),
		Name:        name,
		Slug:        strings.ToLower(strings.TrimSpace(slug)),
		Description: in.Description,
		ParentID:    in.ParentID,
		IsActive:    true,
		CreatedAt:   s.now(),
	}
	err := s.exec.Do(ctx, "create_category", func(repos domain.Repositories, _ *outbox.Recorder) error {
		if category.ParentID != "" {
			if _, err := repos.Categories.Get(category.ParentID); err != nil {
				return err
			}
		}
		return repos.Categories.Create(category)
	})
	if err != nil {
		return domain.Category{}, err
	}
	return category, nil
}

// ListCategories возвращает активные рубрики.
func (s *Service) ListCategories(context.Context) ([]domain.Category, error) {
	return s.repos().Categories.ListActive()
}

func slugify(name string) string {
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(name) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			dash = false
		case !dash && b.Len() > 0:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}

// ProductInput — поля объявления при создании.
type ProductInput struct {
	CategoryID      string                  `json:"category_id"`
	Title           string                  `json:"title"`
	Description     string                  `json:"description"`
	Condition       domain.ProductCondition `json:"condition"`
	Brand           string                  `json:"brand"`
	Model           string                  `json:"model"`
	Price           decimal.Decimal         `json:"price"`
	OriginalPrice   *decimal.Decimal        `json:"original_price,omitempty"`
	IsNegotiable    bool                    `json:"is_negotiable"`
	Location        string                  `json:"location"`
	City            string                  `json:"city"`
	Country         string                  `json:"country"`
	ShippingOptions string                  `json:"shipping_options"`
	ShippingCost    decimal.Decimal         `json:"shipping_cost"`
	ExpiresAt       *time.Time              `json:"expires_at,omitempty"`
}

// CreateProduct размещает объявление. Оно скрыто до проверки персоналом.
func (s *Service) CreateProduct(ctx context.Context, actor domain.User, in ProductInput) (domain.Product, error) {
	if !actor.CanSell() {
		return domain.Product{}, domain.ErrCannotSell
	}

	now := s.now()
	product := domain.Product{
		ID:              ids.New(),
		SellerID:        actor.ID,
		CategoryID:      in.CategoryID,
		Title:           strings.TrimSpace(in.Title),
		Description:     in.Description,
		Condition:       in.Condition,
		Brand:           in.Brand,
		Model:           in.Model,
		Price:           in.Price,
		OriginalPrice:   in.OriginalPrice,
		IsNegotiable:    in.IsNegotiable,
		Location:        in.Location,
		City:            in.City,
		Country:         in.Country,
		ShippingOptions: in.ShippingOptions,
		ShippingCost:    in.ShippingCost,
		Status:          domain.ProductStatusPendingVerification,
		IsActive:        true,
		ExpiresAt:       in.ExpiresAt,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if errs := product.ValidateInvariants(); len(errs) > 0 {
		return domain.Product{}, errs[0]
	}

	err := s.exec.Do(ctx, "create_product", func(repos domain.Repositories, _ *outbox.Recorder) error {
		if _, err := repos.Categories.Get(product.CategoryID); err != nil {
			return err
		}
		return repos.Products.Create(product)
	})
	if err != nil {
		return domain.Product{}, err
	}

	s.logger.WithFields(log.Fields{
		"product_id": product.ID,
		"seller_id":  actor.ID,
	}).Info("product created, awaiting verification")
	return product, nil
}

// ProductUpdate — изменяемые поля объявления. nil означает «не менять».
type ProductUpdate struct {
	CategoryID      *string                  `json:"category_id,omitempty"`
	Title           *string                  `json:"title,omitempty"`
	Description     *string                  `json:"description,omitempty"`
	Condition       *domain.ProductCondition `json:"condition,omitempty"`
	Brand           *string                  `json:"brand,omitempty"`
	Model           *string                  `json:"model,omitempty"`
	Price           *decimal.Decimal         `json:"price,omitempty"`
	OriginalPrice   *decimal.Decimal         `json:"original_price,omitempty"`
	IsNegotiable    *bool                    `json:"is_negotiable,omitempty"`
	Location        *string                  `json:"location,omitempty"`
	City            *string                  `json:"city,omitempty"`
	Country         *string                  `json:"country,omitempty"`
	ShippingOptions *string                  `json:"shipping_options,omitempty"`
	ShippingCost    *decimal.Decimal         `json:"shipping_cost,omitempty"`
}

func (u ProductUpdate) apply(p *domain.Product) {
	setIf(&p.CategoryID, u.CategoryID)
	setIf(&p.Title, u.Title)
	setIf(&p.Description, u.Description)
	setIf(&p.Condition, u.Condition)
	setIf(&p.Brand, u.Brand)
	setIf(&p.Model, u.Model)
	setIf(&p.Price, u.Price)
	setIf(&p.IsNegotiable, u.IsNegotiable)
	setIf(&p.Location, u.Location)
	setIf(&p.City, u.City)
	setIf(&p.Country, u.Country)
	setIf(&p.ShippingOptions, u.ShippingOptions)
	setIf(&p.ShippingCost, u.ShippingCost)
	if u.OriginalPrice != nil {
		v := *u.OriginalPrice
		p.OriginalPrice = &v
	}
}

func setIf[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// UpdateProduct меняет поля собственного объявления.
func (s *Service) UpdateProduct(ctx context.Context, actor domain.User, productID string, in ProductUpdate) (domain.Product, error) {
	var updated domain.Product
	err := s.exec.Do(ctx, "update_product", func(repos domain.Repositories, _ *outbox.Recorder) error {
		product, err := ownedProduct(repos, actor, productID)
		if err != nil {
			return err
		}
		in.apply(&product)
		if errs := product.ValidateInvariants(); len(errs) > 0 {
			return errs[0]
		}
		if in.CategoryID != nil {
			if _, err := repos.Categories.Get(product.CategoryID); err != nil {
				return err
			}
		}
		product.UpdatedAt = s.now()
		if err := repos.Products.Save(product); err != nil {
			return err
		}
		updated, err = repos.Products.Get(product.ID)
		return err
	})
	return updated, err
}

func ownedProduct(repos domain.Repositories, actor domain.User, productID string) (domain.Product, error) {
	product, err := repos.Products.Get(productID)
	if err != nil {
		return domain.Product{}, err
	}
	if product.SellerID != actor.ID {
		return domain.Product{}, domain.ErrNotProductOwner
	}
	return product, nil
}

// ChangeStatus переводит объявление между active, inactive и expired.
// Персонал может только снять объявление по сроку.
func (s *Service) ChangeStatus(ctx context.Context, actor domain.User, productID string, to domain.ProductStatus) (domain.Product, error) {
	var updated domain.Product
	err := s.exec.Do(ctx, "change_product_status", func(repos domain.Repositories, _ *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		if product.SellerID != actor.ID {
			if !actor.IsAdmin() {
				return domain.ErrNotProductOwner
			}
			if to != domain.ProductStatusExpired {
				return domain.ErrProductStatusChange
			}
		}
		if err := product.ChangeStatus(to, s.now()); err != nil {
			return err
		}
		if err := repos.Products.Save(product); err != nil {
			return err
		}
		updated, err = repos.Products.Get(product.ID)
		return err
	})
	return updated, err
}

// DeleteProduct снимает объявление мягким удалением.
func (s *Service) DeleteProduct(ctx context.Context, actor domain.User, productID string) error {
	return s.exec.Do(ctx, "delete_product", func(repos domain.Repositories, _ *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		if product.SellerID != actor.ID && !actor.IsAdmin() {
			return domain.ErrNotProductOwner
		}
		if !product.IsActive {
			return nil
		}
		product.IsActive = false
		product.UpdatedAt = s.now()
		return repos.Products.Save(product)
	})
}

// GetProduct возвращает объявление, если оно опубликовано либо смотрит
// владелец или персонал. Каждый просмотр проверенного объявления
// увеличивает счётчик ровно на единицу.
func (s *Service) GetProduct(_ context.Context, actor *domain.User, productID string) (domain.Product, error) {
	repos := s.repos()
	product, err := repos.Products.Get(productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !canSee(actor, product) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	if !product.IsVerified {
		return product, nil
	}

	views, err := repos.Products.IncrementViews(product.ID)
	if err != nil {
		s.logger.WithError(err).WithField("product_id", product.ID).Warn("failed to count product view")
		return product, nil
	}
	product.ViewsCount = views
	return product, nil
}

// visibleProduct читает товар вне транзакции. Скрытый товар для чужого
// пользователя неотличим от отсутствующего.
func (s *Service) visibleProduct(actor *domain.User, productID string) (domain.Product, error) {
	product, err := s.repos().Products.Get(productID)
	if err != nil {
		return domain.Product{}, err
	}
	if !canSee(actor, product) {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return product, nil
}

func canSee(actor *domain.User, product domain.Product) bool {
	if product.IsPublic() {
		return true
	}
	if actor == nil {
		return false
	}
	return actor.ID == product.SellerID || actor.IsAdmin()
}

// ListProducts возвращает публичную выдачу с фильтрами, сортировкой и пагинацией.
func (s *Service) ListProducts(_ context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	filter.DiscoverableOnly = true
	filter.SellerID = ""
	filter.FeaturedOnly = false
	if filter.Sort == "" {
		filter.Sort = domain.SortNewest
	}
	switch {
	case filter.Limit <= 0:
		filter.Limit = defaultPageLimit
	case filter.Limit > maxPageLimit:
		filter.Limit = maxPageLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	return s.repos().Products.List(filter)
}

// FeaturedProducts — последние объявления с отметкой is_featured.
func (s *Service) FeaturedProducts(context.Context) ([]domain.Product, error) {
	return s.repos().Products.List(domain.ProductFilter{
		DiscoverableOnly: true,
		FeaturedOnly:     true,
		Sort:             domain.SortNewest,
		Limit:            topListSize,
	})
}

// PopularProducts — самые просматриваемые объявления.
func (s *Service) PopularProducts(context.Context) ([]domain.Product, error) {
	return s.repos().Products.List(domain.ProductFilter{
		DiscoverableOnly: true,
		Sort:             domain.SortPopular,
		Limit:            topListSize,
	})
}

// CategoryProducts — публичные объявления рубрики, новые первыми.
func (s *Service) CategoryProducts(_ context.Context, categoryID string) ([]domain.Product, error) {
	if _, err := s.repos().Categories.Get(categoryID); err != nil {
		return nil, err
	}
	return s.repos().Products.List(domain.ProductFilter{
		DiscoverableOnly: true,
		CategoryID:       categoryID,
		Sort:             domain.SortNewest,
	})
}

// ListMyProducts возвращает все объявления продавца, включая скрытые.
func (s *Service) ListMyProducts(_ context.Context, actor domain.User) ([]domain.Product, error) {
	return s.repos().Products.List(domain.ProductFilter{SellerID: actor.ID, Sort: domain.SortNewest})
}

// VerifyProduct публикует объявление после проверки.
func (s *Service) VerifyProduct(ctx context.Context, staff domain.User, productID, notes string) (domain.Product, error) {
	return s.moderate(ctx, staff, productID, "verify_product", func(p *domain.Product, at time.Time) (domain.EventType, string, error) {
		return domain.EventProductVerified, "Your product has been verified", p.Verify(staff.ID, notes, at)
	})
}

// RejectProduct отклоняет объявление с указанием причины.
func (s *Service) RejectProduct(ctx context.Context, staff domain.User, productID, reason string) (domain.Product, error) {
	return s.moderate(ctx, staff, productID, "reject_product", func(p *domain.Product, at time.Time) (domain.EventType, string, error) {
		return domain.EventProductRejected, "Your product was rejected", p.Reject(staff.ID, reason, at)
	})
}

func (s *Service) moderate(
	ctx context.Context,
	staff domain.User,
	productID, operation string,
	apply func(p *domain.Product, at time.Time) (domain.EventType, string, error),
) (domain.Product, error) {
	if !staff.IsAdmin() {
		return domain.Product{}, domain.ErrStaffOnly
	}

	var updated domain.Product
	err := s.exec.Do(ctx, operation, func(repos domain.Repositories, rec *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		now := s.now()
		eventType, title, err := apply(&product, now)
		if err != nil {
			return err
		}
		if err := repos.Products.Save(product); err != nil {
			return err
		}
		message := product.VerificationNotes
		if eventType == domain.EventProductRejected {
			message = product.RejectionReason
		}
		if err := rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: product.SellerID,
			SenderID:    staff.ID,
			Type:        domain.NotificationVerification,
			Title:       title,
			Message:     message,
			ProductID:   product.ID,
		}); err != nil {
			return err
		}
		if err := rec.Event(repos.Outbox, domain.AggregateProduct, eventType, domain.DomainEvent{
			AggregateID: product.ID,
			ActorID:     staff.ID,
			Status:      string(product.Status),
			OccurredAt:  now,
		}); err != nil {
			return err
		}
		updated, err = repos.Products.Get(product.ID)
		return err
	})
	return updated, err
}

// SetFeatured ставит или снимает отметку is_featured. Только для персонала.
func (s *Service) SetFeatured(ctx context.Context, staff domain.User, productID string, featured bool) (domain.Product, error) {
	if !staff.IsAdmin() {
		return domain.Product{}, domain.ErrStaffOnly
	}
	var updated domain.Product
	err := s.exec.Do(ctx, "feature_product", func(repos domain.Repositories, _ *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		product.IsFeatured = featured
		product.UpdatedAt = s.now()
		if err := repos.Products.Save(product); err != nil {
			return err
		}
		updated, err = repos.Products.Get(product.ID)
		return err
	})
	return updated, err
}
