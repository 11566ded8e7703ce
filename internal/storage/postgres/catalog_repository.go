package postgres

import (
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type categoryRepository struct{ querier }

func scanCategory(row rowScanner) (domain.Category, error) {
	var (
		c      domain.Category
		parent sql.NullString
	)
	err := row.Scan(&c.ID, &c.Name, &c.Slug, &c.Description, &parent, &c.IsActive, &c.CreatedAt)
	c.ParentID = parent.String
	return c, err
}

func (r categoryRepository) Create(category domain.Category) error {
	_, err := r.exec(`
		INSERT INTO categories (id, name, slug, description, parent_id, is_active, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
	`, category.ID, category.Name, category.Slug, category.Description, nullString(category.ParentID), category.IsActive, category.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrCategorySlugTaken
		}
		return fmt.Errorf("insert category: %w", err)
	}
	return nil
}

func (r categoryRepository) Get(id string) (domain.Category, error) {
	return getOne(r.querier, scanCategory, domain.ErrCategoryNotFound, "select category", `
		SELECT id, name, slug, description, parent_id, is_active, created_at
		FROM categories WHERE id = $1
	`, id)
}

func (r categoryRepository) ListActive() ([]domain.Category, error) {
	categories, err := queryList(r.querier, scanCategory, `
		SELECT id, name, slug, description, parent_id, is_active, created_at
		FROM categories
		WHERE is_active
		ORDER BY name
	`)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

const productColumns = `
	id, seller_id, category_id, title, description, condition, brand, model,
	price, original_price, is_negotiable, location, city, country, shipping_options, shipping_cost,
	status, is_active, is_verified, is_featured, verified_by, verified_at, verification_notes,
	rejection_reason, views_count, favorites_count, average_rating, total_ratings, expires_at,
	version, created_at, updated_at`

type productRepository struct{ querier }

func scanProduct(row rowScanner) (domain.Product, error) {
	var (
		p          domain.Product
		condition  string
		status     string
		original   decimal.NullDecimal
		verifiedBy sql.NullString
		verifiedAt sql.NullTime
		expiresAt  sql.NullTime
	)
	err := row.Scan(
		&p.ID, &p.SellerID, &p.CategoryID, &p.Title, &p.Description, &condition, &p.Brand, &p.Model,
		&p.Price, &original, &p.IsNegotiable, &p.Location, &p.City, &p.Country, &p.ShippingOptions, &p.ShippingCost,
		&status, &p.IsActive, &p.IsVerified, &p.IsFeatured, &verifiedBy, &verifiedAt, &p.VerificationNotes,
		&p.RejectionReason, &p.ViewsCount, &p.FavoritesCount, &p.AverageRating, &p.TotalRatings, &expiresAt,
		&p.Version, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return domain.Product{}, err
	}
	p.Condition = domain.ProductCondition(condition)
	p.Status = domain.ProductStatus(status)
	if original.Valid {
		v := original.Decimal
		p.OriginalPrice = &v
	}
	p.VerifiedBy = verifiedBy.String
	p.VerifiedAt = timePtr(verifiedAt)
	p.ExpiresAt = timePtr(expiresAt)
	return p, nil
}

func nullDecimal(d *decimal.Decimal) decimal.NullDecimal {
	if d == nil {
		return decimal.NullDecimal{}
	}
	return decimal.NullDecimal{Decimal: *d, Valid: true}
}

func (r productRepository) Create(p domain.Product) error {
	_, err := r.exec(`
		INSERT INTO products (`+productColumns+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,
		        $21,$22,$23,$24,$25,$26,$27,$28,$29,$30,$31,$32)
	`,
		p.ID, p.SellerID, p.CategoryID, p.Title, p.Description, string(p.Condition), p.Brand, p.Model,
		p.Price, nullDecimal(p.OriginalPrice), p.IsNegotiable, p.Location, p.City, p.Country, p.ShippingOptions, p.ShippingCost,
		string(p.Status), p.IsActive, p.IsVerified, p.IsFeatured, nullString(p.VerifiedBy), nullTime(p.VerifiedAt), p.VerificationNotes,
		p.RejectionReason, p.ViewsCount, p.FavoritesCount, p.AverageRating, p.TotalRatings, nullTime(p.ExpiresAt),
		p.Version, p.CreatedAt, p.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrVersionConflict
		}
		return fmt.Errorf("insert product: %w", err)
	}
	return nil
}

func (r productRepository) Get(id string) (domain.Product, error) {
	return getOne(r.querier, scanProduct, domain.ErrProductNotFound, "select product",
		`SELECT `+productColumns+` FROM products WHERE id = $1`, id)
}

// Save обновляет объявление при совпадении версии. Счётчики не трогает.
func (r productRepository) Save(p domain.Product) error {
	affected, err := r.exec(`
		UPDATE products SET
			category_id = $3, title = $4, description = $5, condition = $6, brand = $7, model = $8,
			price = $9, original_price = $10, is_negotiable = $11, location = $12, city = $13, country = $14,
			shipping_options = $15, shipping_cost = $16, status = $17, is_active = $18, is_verified = $19,
			is_featured = $20, verified_by = $21, verified_at = $22, verification_notes = $23,
			rejection_reason = $24, expires_at = $25, updated_at = $26, version = version + 1
		WHERE id = $1 AND version = $2
	`,
		p.ID, p.Version, p.CategoryID, p.Title, p.Description, string(p.Condition), p.Brand, p.Model,
		p.Price, nullDecimal(p.OriginalPrice), p.IsNegotiable, p.Location, p.City, p.Country,
		p.ShippingOptions, p.ShippingCost, string(p.Status), p.IsActive, p.IsVerified,
		p.IsFeatured, nullString(p.VerifiedBy), nullTime(p.VerifiedAt), p.VerificationNotes,
		p.RejectionReason, nullTime(p.ExpiresAt), p.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update product: %w", err)
	}
	if affected == 0 {
		if _, getErr := r.Get(p.ID); getErr != nil {
			return getErr
		}
		return domain.ErrVersionConflict
	}
	return nil
}

// whereBuilder собирает условия с позиционными параметрами.
type whereBuilder struct {
	conds []string
	args  []any
}

func (w *whereBuilder) add(cond string, args ...any) {
	for _, a := range args {
		w.args = append(w.args, a)
		cond = strings.Replace(cond, "?", "$"+strconv.Itoa(len(w.args)), 1)
	}
	w.conds = append(w.conds, cond)
}

func (w *whereBuilder) sql() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

func (w *whereBuilder) arg(v any) string {
	w.args = append(w.args, v)
	return "$" + strconv.Itoa(len(w.args))
}

func (r productRepository) List(f domain.ProductFilter) ([]domain.Product, error) {
	var w whereBuilder
	if f.DiscoverableOnly {
		w.add("status = 'active' AND is_active AND is_verified")
	}
	if f.FeaturedOnly {
		w.add("is_featured")
	}
	if f.SellerID != "" {
		w.add("seller_id = ?", f.SellerID)
	}
	if f.CategoryID != "" {
		w.add("category_id = ?", f.CategoryID)
	}
	if f.Condition != "" {
		w.add("condition = ?", string(f.Condition))
	}
	if f.City != "" {
		w.add("LOWER(city) = LOWER(?)", f.City)
	}
	if f.Country != "" {
		w.add("LOWER(country) = LOWER(?)", f.Country)
	}
	if f.Negotiable != nil {
		w.add("is_negotiable = ?", *f.Negotiable)
	}
	if f.MinPrice != nil {
		w.add("price >= ?", *f.MinPrice)
	}
	if f.MaxPrice != nil {
		w.add("price <= ?", *f.MaxPrice)
	}
	if f.Location != "" {
		w.add("location ILIKE ?", "%"+f.Location+"%")
	}
	if f.Search != "" {
		p := w.arg("%" + f.Search + "%")
		w.conds = append(w.conds, "(title ILIKE "+p+" OR description ILIKE "+p+" OR brand ILIKE "+p+" OR model ILIKE "+p+")")
	}

	order := "created_at DESC, id DESC"
	switch f.Sort {
	case domain.SortPriceLow:
		order = "price ASC, created_at DESC, id DESC"
	case domain.SortPriceHigh:
		order = "price DESC, created_at DESC, id DESC"
	case domain.SortPopular:
		order = "views_count DESC, created_at DESC, id DESC"
	}

	query := `SELECT ` + productColumns + ` FROM products` + w.sql() + ` ORDER BY ` + order
	if f.Limit > 0 {
		query += " LIMIT " + w.arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + w.arg(f.Offset)
	}

	products, err := queryList(r.querier, scanProduct, query, w.args...)
	if err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	return products, nil
}

func (r productRepository) IncrementViews(id string) (int64, error) {
	scan := func(row rowScanner) (int64, error) {
		var n int64
		err := row.Scan(&n)
		return n, err
	}
	return getOne(r.querier, scan, domain.ErrProductNotFound, "increment views",
		`UPDATE products SET views_count = views_count + 1 WHERE id = $1 RETURNING views_count`, id)
}

func (r productRepository) AdjustFavorites(id string, delta int64) error {
	affected, err := r.exec(
		`UPDATE products SET favorites_count = GREATEST(favorites_count + $2, 0) WHERE id = $1`, id, delta)
	if err != nil {
		return fmt.Errorf("adjust favorites: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r productRepository) SetRating(id string, average float64, total int) error {
	affected, err := r.exec(`UPDATE products SET average_rating = $2, total_ratings = $3 WHERE id = $1`, id, average, total)
	if err != nil {
		return fmt.Errorf("update product rating: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

type imageRepository struct{ querier }

func scanImage(row rowScanner) (domain.ProductImage, error) {
	var img domain.ProductImage
	err := row.Scan(&img.ID, &img.ProductID, &img.URL, &img.AltText, &img.IsMain, &img.CreatedAt)
	return img, err
}

func (r imageRepository) Add(img domain.ProductImage) error {
	if _, err := r.exec(`
		INSERT INTO product_images (id, product_id, url, alt_text, is_main, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, img.ID, img.ProductID, img.URL, img.AltText, img.IsMain, img.CreatedAt); err != nil {
		return fmt.Errorf("insert image: %w", err)
	}
	return nil
}

func (r imageRepository) Get(id string) (domain.ProductImage, error) {
	return getOne(r.querier, scanImage, domain.ErrImageNotFound, "select image", `
		SELECT id, product_id, url, alt_text, is_main, created_at FROM product_images WHERE id = $1
	`, id)
}

func (r imageRepository) ListByProduct(productID string) ([]domain.ProductImage, error) {
	images, err := queryList(r.querier, scanImage, `
		SELECT id, product_id, url, alt_text, is_main, created_at
		FROM product_images
		WHERE product_id = $1
		ORDER BY created_at, id
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return images, nil
}

func (r imageRepository) Delete(id string) error {
	affected, err := r.exec(`DELETE FROM product_images WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete image: %w", err)
	}
	if affected == 0 {
		return domain.ErrImageNotFound
	}
	return nil
}

func (r imageRepository) SetMain(productID, imageID string) error {
	affected, err := r.exec(`
		UPDATE product_images SET is_main = (id = $2)
		WHERE product_id = $1 AND EXISTS (
			SELECT 1 FROM product_images WHERE id = $2 AND product_id = $1
		)
	`, productID, imageID)
	if err != nil {
		return fmt.Errorf("set main image: %w", err)
	}
	if affected == 0 {
		return domain.ErrImageNotFound
	}
	return nil
}

type favoriteRepository struct{ querier }

func scanFavorite(row rowScanner) (domain.Favorite, error) {
	var f domain.Favorite
	err := row.Scan(&f.UserID, &f.ProductID, &f.CreatedAt)
	return f, err
}

func (r favoriteRepository) Add(fav domain.Favorite) error {
	affected, err := r.exec(`
		INSERT INTO favorites (user_id, product_id, created_at) VALUES ($1,$2,$3)
		ON CONFLICT (user_id, product_id) DO NOTHING
	`, fav.UserID, fav.ProductID, fav.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert favorite: %w", err)
	}
	if affected == 0 {
		return domain.ErrAlreadyFavorite
	}
	return nil
}

func (r favoriteRepository) Remove(userID, productID string) error {
	affected, err := r.exec(`DELETE FROM favorites WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("delete favorite: %w", err)
	}
	if affected == 0 {
		return domain.ErrFavoriteNotFound
	}
	return nil
}

func (r favoriteRepository) Exists(userID, productID string) (bool, error) {
	scan := func(row rowScanner) (bool, error) {
		var ok bool
		err := row.Scan(&ok)
		return ok, err
	}
	return getOne(r.querier, scan, nil, "favorite exists",
		`SELECT EXISTS (SELECT 1 FROM favorites WHERE user_id = $1 AND product_id = $2)`, userID, productID)
}

func (r favoriteRepository) ListByUser(userID string) ([]domain.Favorite, error) {
	favs, err := queryList(r.querier, scanFavorite, `
		SELECT user_id, product_id, created_at
		FROM favorites
		WHERE user_id = $1
		ORDER BY created_at DESC, product_id DESC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("list favorites: %w", err)
	}
	return favs, nil
}

type productRatingRepository struct{ querier }

func scanProductRating(row rowScanner) (domain.ProductRating, error) {
	var x domain.ProductRating
	err := row.Scan(&x.ID, &x.UserID, &x.ProductID, &x.Rating, &x.Review, &x.CreatedAt, &x.UpdatedAt)
	return x, err
}

func (r productRatingRepository) Upsert(rating domain.ProductRating) (domain.ProductRating, error) {
	return getOne(r.querier, scanProductRating, nil, "upsert product rating", `
		INSERT INTO product_ratings (id, user_id, product_id, rating, review, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (user_id, product_id) DO UPDATE
		SET rating = EXCLUDED.rating, review = EXCLUDED.review, updated_at = EXCLUDED.updated_at
		RETURNING id, user_id, product_id, rating, review, created_at, updated_at
	`, rating.ID, rating.UserID, rating.ProductID, rating.Rating, rating.Review, rating.CreatedAt, rating.UpdatedAt)
}

func (r productRatingRepository) Delete(userID, productID string) error {
	affected, err := r.exec(`DELETE FROM product_ratings WHERE user_id = $1 AND product_id = $2`, userID, productID)
	if err != nil {
		return fmt.Errorf("delete product rating: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductRatingNotFound
	}
	return nil
}

func (r productRatingRepository) ListByProduct(productID string) ([]domain.ProductRating, error) {
	ratings, err := queryList(r.querier, scanProductRating, `
		SELECT id, user_id, product_id, rating, review, created_at, updated_at
		FROM product_ratings
		WHERE product_id = $1
		ORDER BY created_at DESC, id DESC
	`, productID)
	if err != nil {
		return nil, fmt.Errorf("list product ratings: %w", err)
	}
	return ratings, nil
}

type reportRepository struct{ querier }

func scanReport(row rowScanner) (domain.Report, error) {
	var (
		rep        domain.Report
		reason     string
		status     string
		reviewedBy sql.NullString
	)
	err := row.Scan(&rep.ID, &rep.ReporterID, &rep.ProductID, &reason, &rep.Description, &status,
		&reviewedBy, &rep.AdminNotes, &rep.CreatedAt, &rep.UpdatedAt)
	rep.Reason = domain.ReportReason(reason)
	rep.Status = domain.ReportStatus(status)
	rep.ReviewedBy = reviewedBy.String
	return rep, err
}

const reportColumns = `id, reporter_id, product_id, reason, description, status, reviewed_by, admin_notes, created_at, updated_at`

func (r reportRepository) Create(rep domain.Report) error {
	_, err := r.exec(`
		INSERT INTO reports (`+reportColumns+`) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
	`, rep.ID, rep.ReporterID, rep.ProductID, string(rep.Reason), rep.Description, string(rep.Status),
		nullString(rep.ReviewedBy), rep.AdminNotes, rep.CreatedAt, rep.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrReportDuplicate
		}
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (r reportRepository) Get(id string) (domain.Report, error) {
	return getOne(r.querier, scanReport, domain.ErrReportNotFound, "select report",
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
}

func (r reportRepository) Save(rep domain.Report) error {
	affected, err := r.exec(`
		UPDATE reports SET status = $2, reviewed_by = $3, admin_notes = $4, updated_at = $5
		WHERE id = $1
	`, rep.ID, string(rep.Status), nullString(rep.ReviewedBy), rep.AdminNotes, rep.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	if affected == 0 {
		return domain.ErrReportNotFound
	}
	return nil
}

func (r reportRepository) HasOpen(reporterID, productID string) (bool, error) {
	scan := func(row rowScanner) (bool, error) {
		var ok bool
		err := row.Scan(&ok)
		return ok, err
	}
	return getOne(r.querier, scan, nil, "open report exists", `
		SELECT EXISTS (
			SELECT 1 FROM reports
			WHERE reporter_id = $1 AND product_id = $2 AND status IN ('pending', 'reviewed')
		)
	`, reporterID, productID)
}

func (r reportRepository) List(status domain.ReportStatus, limit int) ([]domain.Report, error) {
	reports, err := queryList(r.querier, scanReport, `
		SELECT `+reportColumns+`
		FROM reports
		WHERE $1 = '' OR status = $1
		ORDER BY created_at DESC, id DESC
		LIMIT NULLIF($2, 0)
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	return reports, nil
}

var (
	_ domain.CategoryRepository      = categoryRepository{}
	_ domain.ProductRepository       = productRepository{}
	_ domain.ProductImageRepository  = imageRepository{}
	_ domain.FavoriteRepository      = favoriteRepository{}
	_ domain.ProductRatingRepository = productRatingRepository{}
	_ domain.ReportRepository        = reportRepository{}
)
