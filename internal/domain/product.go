package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ProductStatus описывает жизненный цикл объявления.
type ProductStatus string

const (
	// ProductStatusPendingVerification — объявление ждёт проверки администратором.
	ProductStatusPendingVerification ProductStatus = "pending_verification"
	// ProductStatusActive — объявление опубликовано.
	ProductStatusActive ProductStatus = "active"
	// ProductStatusSold — товар продан, выставляется при одобрении заказа.
	ProductStatusSold ProductStatus = "sold"
	// ProductStatusExpired — срок размещения истёк.
	ProductStatusExpired ProductStatus = "expired"
	// ProductStatusInactive — продавец снял объявление с публикации.
	ProductStatusInactive ProductStatus = "inactive"
)

// ProductCondition — состояние товара.
type ProductCondition string

const (
	ConditionNew     ProductCondition = "new"
	ConditionLikeNew ProductCondition = "like_new"
	ConditionGood    ProductCondition = "good"
	ConditionFair    ProductCondition = "fair"
	ConditionPoor    ProductCondition = "poor"
)

// Valid сообщает, известно ли состояние.
func (c ProductCondition) Valid() bool {
	switch c {
	case ConditionNew, ConditionLikeNew, ConditionGood, ConditionFair, ConditionPoor:
		return true
	}
	return false
}

// Product — объявление продавца.
type Product struct {
	ID                string           `json:"id"`
	SellerID          string           `json:"seller_id"`
	CategoryID        string           `json:"category_id"`
	Title             string           `json:"title"`
	Description       string           `json:"description"`
	Condition         ProductCondition `json:"condition"`
	Brand             string           `json:"brand"`
	Model             string           `json:"model"`
	Price             decimal.Decimal  `json:"price"`
	OriginalPrice     *decimal.Decimal `json:"original_price,omitempty"`
	IsNegotiable      bool             `json:"is_negotiable"`
	Location          string           `json:"location"`
	City              string           `json:"city"`
	Country           string           `json:"country"`
	ShippingOptions   string           `json:"shipping_options"`
	ShippingCost      decimal.Decimal  `json:"shipping_cost"`
	Status            ProductStatus    `json:"status"`
	IsActive          bool             `json:"is_active"`
	IsVerified        bool             `json:"is_verified"`
	IsFeatured        bool             `json:"is_featured"`
	VerifiedBy        string           `json:"verified_by"`
	VerifiedAt        *time.Time       `json:"verified_at,omitempty"`
	VerificationNotes string           `json:"verification_notes"`
	RejectionReason   string           `json:"rejection_reason"`
	ViewsCount        int64            `json:"views_count"`
	FavoritesCount    int64            `json:"favorites_count"`
	AverageRating     float64          `json:"average_rating"`
	TotalRatings      int              `json:"total_ratings"`
	ExpiresAt         *time.Time       `json:"expires_at,omitempty"`
	Version           int64            `json:"version"`
	CreatedAt         time.Time        `json:"created_at"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// IsAvailable — товар можно купить или предложить цену.
func (p Product) IsAvailable() bool {
	return p.Status == ProductStatusActive && p.IsActive
}

// IsDiscoverable — товар виден в публичных выдачах.
func (p Product) IsDiscoverable() bool {
	return p.IsAvailable() && p.IsVerified
}

// IsPublic — карточку товара видят все: объявление проверено и не удалено.
// Проданный товар остаётся публичным, но не попадает в выдачи.
func (p Product) IsPublic() bool {
	return p.IsActive && p.IsVerified
}

// Verify публикует объявление после проверки.
// Повторная верификация возвращает ErrProductAlreadyVerified и ничего не меняет.
func (p *Product) Verify(staffID, notes string, at time.Time) error {
	if p.IsVerified {
		return ErrProductAlreadyVerified
	}
	p.IsVerified = true
	p.RejectionReason = ""
	if p.Status == ProductStatusPendingVerification {
		p.Status = ProductStatusActive
	}
	p.VerifiedBy = staffID
	p.VerifiedAt = &at
	p.VerificationNotes = notes
	p.UpdatedAt = at
	return nil
}

// Reject отклоняет объявление, оно остаётся скрытым из выдачи.
func (p *Product) Reject(staffID, reason string, at time.Time) error {
	if p.Status == ProductStatusSold {
		return ErrProductStatusChange
	}
	p.IsVerified = false
	p.Status = ProductStatusPendingVerification
	p.RejectionReason = reason
	p.VerifiedBy = staffID
	p.VerifiedAt = nil
	p.UpdatedAt = at
	return nil
}

// ownerTransitions — переходы статуса, доступные владельцу и персоналу.
var ownerTransitions = map[ProductStatus]map[ProductStatus]bool{
	ProductStatusActive:   {ProductStatusInactive: true, ProductStatusExpired: true},
	ProductStatusInactive: {ProductStatusActive: true},
	ProductStatusExpired:  {ProductStatusActive: true},
}

// ChangeStatus меняет статус объявления вне цикла верификации и продажи.
func (p *Product) ChangeStatus(to ProductStatus, at time.Time) error {
	if !ownerTransitions[p.Status][to] {
		return ErrProductStatusChange
	}
	if to == ProductStatusActive && !p.IsVerified {
		return ErrProductStatusChange
	}
	p.Status = to
	p.UpdatedAt = at
	return nil
}

// MarkSold фиксирует продажу. Вызывается только при одобрении заказа.
func (p *Product) MarkSold(at time.Time) error {
	if !p.IsAvailable() {
		return ErrProductUnavailable
	}
	p.Status = ProductStatusSold
	p.UpdatedAt = at
	return nil
}

// ValidateInvariants проверяет поля объявления и возвращает список замечаний.
func (p *Product) ValidateInvariants() []error {
	var errs []error
	if strings.TrimSpace(p.Title) == "" {
		errs = append(errs, ErrProductTitleRequired)
	}
	if p.CategoryID == "" {
		errs = append(errs, ErrCategoryNotFound)
	}
	if !p.Condition.Valid() {
		errs = append(errs, ErrProductConditionInvalid)
	}
	if p.Price.IsNegative() || p.ShippingCost.IsNegative() {
		errs = append(errs, ErrProductPriceInvalid)
	}
	if p.OriginalPrice != nil && p.OriginalPrice.IsNegative() {
		errs = append(errs, ErrProductPriceInvalid)
	}
	return errs
}

// ProductSort — порядок публичной выдачи.
type ProductSort string

const (
	SortNewest    ProductSort = "newest"
	SortPriceLow  ProductSort = "price_low"
	SortPriceHigh ProductSort = "price_high"
	SortPopular   ProductSort = "popular"
)

// ProductFilter описывает параметры выборки объявлений.
type ProductFilter struct {
	// SellerID ограничивает выборку одним продавцом.
	SellerID string
	// DiscoverableOnly оставляет только опубликованные и проверенные объявления.
	DiscoverableOnly bool
	// FeaturedOnly оставляет только объявления с отметкой is_featured.
	FeaturedOnly bool
	CategoryID   string
	Condition    ProductCondition
	City         string
	Country      string
	Negotiable   *bool
	MinPrice     *decimal.Decimal
	MaxPrice     *decimal.Decimal
	Location     string
	Search       string
	Sort         ProductSort
	Limit        int
	Offset       int
}

// Matches проверяет объявление на соответствие фильтру.
// Используется in-memory хранилищем, postgres строит эквивалентный SQL.
func (f ProductFilter) Matches(p Product) bool {
	if f.SellerID != "" && p.SellerID != f.SellerID {
		return false
	}
	if f.DiscoverableOnly && !p.IsDiscoverable() {
		return false
	}
	if f.FeaturedOnly && !p.IsFeatured {
		return false
	}
	if f.CategoryID != "" && p.CategoryID != f.CategoryID {
		return false
	}
	if f.Condition != "" && p.Condition != f.Condition {
		return false
	}
	if f.City != "" && !strings.EqualFold(p.City, f.City) {
		return false
	}
	if f.Country != "" && !strings.EqualFold(p.Country, f.Country) {
		return false
	}
	if f.Negotiable != nil && p.IsNegotiable != *f.Negotiable {
		return false
	}
	if f.MinPrice != nil && p.Price.LessThan(*f.MinPrice) {
		return false
	}
	if f.MaxPrice != nil && p.Price.GreaterThan(*f.MaxPrice) {
		return false
	}
	if f.Location != "" && !containsFold(p.Location, f.Location) {
		return false
	}
	if f.Search != "" {
		if !containsFold(p.Title, f.Search) && !containsFold(p.Description, f.Search) &&
			!containsFold(p.Brand, f.Search) && !containsFold(p.Model, f.Search) {
			return false
		}
	}
	return true
}

func containsFold(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}

// Category — рубрика каталога.
type Category struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Slug        string    `json:"slug"`
	Description string    `json:"description"`
	ParentID    string    `json:"parent_id"`
	IsActive    bool      `json:"is_active"`
	CreatedAt   time.Time `json:"created_at"`
}

// CategoryCount — число активных объявлений в рубрике.
type CategoryCount struct {
	CategoryID string `json:"category_id"`
	Name       string `json:"name"`
	Count      int    `json:"count"`
}

// ProductImage — ссылка на изображение во внешнем хранилище.
type ProductImage struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	URL       string    `json:"url"`
	AltText   string    `json:"alt_text"`
	IsMain    bool      `json:"is_main"`
	CreatedAt time.Time `json:"created_at"`
}

// Favorite — товар в избранном пользователя.
type Favorite struct {
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	CreatedAt time.Time `json:"created_at"`
}

// ProductRating — оценка товара пользователем, одна на пару (user, product).
type ProductRating struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	ProductID string    `json:"product_id"`
	Rating    int       `json:"rating"`
	Review    string    `json:"review"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
