package memory

import (
	"sort"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
)

type categoryRepository struct{ view }

func (r categoryRepository) Create(category domain.Category) error {
	defer r.lock()()
	st := r.s.st

	slug := strings.ToLower(category.Slug)
	if _, taken := st.categorySlugs[slug]; taken {
		return domain.ErrCategorySlugTaken
	}
	put(r.tx, st.categories, category.ID, category)
	put(r.tx, st.categorySlugs, slug, category.ID)
	return nil
}

func (r categoryRepository) Get(id string) (domain.Category, error) {
	defer r.rlock()()

	c, ok := r.s.st.categories[id]
	if !ok {
		return domain.Category{}, domain.ErrCategoryNotFound
	}
	return c, nil
}

func (r categoryRepository) ListActive() ([]domain.Category, error) {
	defer r.rlock()()

	result := make([]domain.Category, 0, len(r.s.st.categories))
	for _, c := range r.s.st.categories {
		if c.IsActive {
			result = append(result, c)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Name < result[j].Name })
	return result, nil
}

type productRepository struct{ view }

func (r productRepository) Create(product domain.Product) error {
	defer r.lock()()

	if _, exists := r.s.st.products[product.ID]; exists {
		return domain.ErrVersionConflict
	}
	put(r.tx, r.s.st.products, product.ID, product)
	return nil
}

func (r productRepository) Get(id string) (domain.Product, error) {
	defer r.rlock()()

	p, ok := r.s.st.products[id]
	if !ok {
		return domain.Product{}, domain.ErrProductNotFound
	}
	return p, nil
}

// Save перезаписывает объявление, проверяя версию (optimistic locking).
func (r productRepository) Save(product domain.Product) error {
	defer r.lock()()

	current, ok := r.s.st.products[product.ID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if current.Version != product.Version {
		return domain.ErrVersionConflict
	}
	// Счётчики меняются только атомарными методами.
	product.ViewsCount = current.ViewsCount
	product.FavoritesCount = current.FavoritesCount
	product.Version++
	put(r.tx, r.s.st.products, product.ID, product)
	return nil
}

func (r productRepository) List(filter domain.ProductFilter) ([]domain.Product, error) {
	defer r.rlock()()

	result := make([]domain.Product, 0)
	for _, p := range r.s.st.products {
		if filter.Matches(p) {
			result = append(result, p)
		}
	}
	sortProducts(result, filter.Sort)

	if filter.Offset > 0 {
		if filter.Offset >= len(result) {
			return []domain.Product{}, nil
		}
		result = result[filter.Offset:]
	}
	return limitSlice(result, filter.Limit), nil
}

func sortProducts(items []domain.Product, order domain.ProductSort) {
	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch order {
		case domain.SortPriceLow:
			if !a.Price.Equal(b.Price) {
				return a.Price.LessThan(b.Price)
			}
		case domain.SortPriceHigh:
			if !a.Price.Equal(b.Price) {
				return a.Price.GreaterThan(b.Price)
			}
		case domain.SortPopular:
			if a.ViewsCount != b.ViewsCount {
				return a.ViewsCount > b.ViewsCount
			}
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}

func (r productRepository) IncrementViews(id string) (int64, error) {
	defer r.lock()()

	p, ok := r.s.st.products[id]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	p.ViewsCount++
	put(r.tx, r.s.st.products, id, p)
	return p.ViewsCount, nil
}

func (r productRepository) AdjustFavorites(id string, delta int64) error {
	defer r.lock()()

	p, ok := r.s.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.FavoritesCount += delta
	if p.FavoritesCount < 0 {
		p.FavoritesCount = 0
	}
	put(r.tx, r.s.st.products, id, p)
	return nil
}

func (r productRepository) SetRating(id string, average float64, total int) error {
	defer r.lock()()

	p, ok := r.s.st.products[id]
	if !ok {
		return domain.ErrProductNotFound
	}
	p.AverageRating = average
	p.TotalRatings = total
	put(r.tx, r.s.st.products, id, p)
	return nil
}

type imageRepository struct{ view }

func (r imageRepository) Add(image domain.ProductImage) error {
	defer r.lock()()
	put(r.tx, r.s.st.images, image.ID, image)
	return nil
}

func (r imageRepository) Get(id string) (domain.ProductImage, error) {
	defer r.rlock()()

	img, ok := r.s.st.images[id]
	if !ok {
		return domain.ProductImage{}, domain.ErrImageNotFound
	}
	return img, nil
}

// ListByProduct возвращает изображения от старых к новым.
func (r imageRepository) ListByProduct(productID string) ([]domain.ProductImage, error) {
	defer r.rlock()()

	result := make([]domain.ProductImage, 0)
	for _, img := range r.s.st.images {
		if img.ProductID == productID {
			result = append(result, img)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.Before(result[j].CreatedAt)
		}
		return result[i].ID < result[j].ID
	})
	return result, nil
}

func (r imageRepository) Delete(id string) error {
	defer r.lock()()

	if _, ok := r.s.st.images[id]; !ok {
		return domain.ErrImageNotFound
	}
	remove(r.tx, r.s.st.images, id)
	return nil
}

func (r imageRepository) SetMain(productID, imageID string) error {
	defer r.lock()()
	st := r.s.st

	target, ok := st.images[imageID]
	if !ok || target.ProductID != productID {
		return domain.ErrImageNotFound
	}
	for id, img := range st.images {
		if img.ProductID != productID {
			continue
		}
		want := id == imageID
		if img.IsMain != want {
			img.IsMain = want
			put(r.tx, st.images, id, img)
		}
	}
	return nil
}

type favoriteRepository struct{ view }

func (r favoriteRepository) Add(fav domain.Favorite) error {
	defer r.lock()()

	key := pairKey{fav.UserID, fav.ProductID}
	if _, exists := r.s.st.favorites[key]; exists {
		return domain.ErrAlreadyFavorite
	}
	put(r.tx, r.s.st.favorites, key, fav)
	return nil
}

func (r favoriteRepository) Remove(userID, productID string) error {
	defer r.lock()()

	key := pairKey{userID, productID}
	if _, exists := r.s.st.favorites[key]; !exists {
		return domain.ErrFavoriteNotFound
	}
	remove(r.tx, r.s.st.favorites, key)
	return nil
}

func (r favoriteRepository) Exists(userID, productID string) (bool, error) {
	defer r.rlock()()

	_, ok := r.s.st.favorites[pairKey{userID, productID}]
	return ok, nil
}

func (r favoriteRepository) ListByUser(userID string) ([]domain.Favorite, error) {
	defer r.rlock()()

	result := make([]domain.Favorite, 0)
	for key, fav := range r.s.st.favorites {
		if key.a == userID {
			result = append(result, fav)
		}
	}
	sortNewestFirst(result, func(f domain.Favorite) (int64, string) { return f.CreatedAt.UnixNano(), f.ProductID })
	return result, nil
}

type productRatingRepository struct{ view }

// Upsert сохраняет оценку пары (user, product), сохраняя исходные ID и время создания.
func (r productRatingRepository) Upsert(rating domain.ProductRating) (domain.ProductRating, error) {
	defer r.lock()()

	key := pairKey{rating.UserID, rating.ProductID}
	if existing, ok := r.s.st.productRatings[key]; ok {
		rating.ID = existing.ID
		rating.CreatedAt = existing.CreatedAt
	}
	put(r.tx, r.s.st.productRatings, key, rating)
	return rating, nil
}

func (r productRatingRepository) Delete(userID, productID string) error {
	defer r.lock()()

	key := pairKey{userID, productID}
	if _, ok := r.s.st.productRatings[key]; !ok {
		return domain.ErrProductRatingNotFound
	}
	remove(r.tx, r.s.st.productRatings, key)
	return nil
}

func (r productRatingRepository) ListByProduct(productID string) ([]domain.ProductRating, error) {
	defer r.rlock()()

	result := make([]domain.ProductRating, 0)
	for key, rating := range r.s.st.productRatings {
		if key.b == productID {
			result = append(result, rating)
		}
	}
	sortNewestFirst(result, func(x domain.ProductRating) (int64, string) { return x.CreatedAt.UnixNano(), x.ID })
	return result, nil
}

type reportRepository struct{ view }

func (r reportRepository) Create(report domain.Report) error {
	defer r.lock()()
	put(r.tx, r.s.st.reports, report.ID, report)
	return nil
}

func (r reportRepository) Get(id string) (domain.Report, error) {
	defer r.rlock()()

	rep, ok := r.s.st.reports[id]
	if !ok {
		return domain.Report{}, domain.ErrReportNotFound
	}
	return rep, nil
}

func (r reportRepository) Save(report domain.Report) error {
	defer r.lock()()

	if _, ok := r.s.st.reports[report.ID]; !ok {
		return domain.ErrReportNotFound
	}
	put(r.tx, r.s.st.reports, report.ID, report)
	return nil
}

func (r reportRepository) HasOpen(reporterID, productID string) (bool, error) {
	defer r.rlock()()

	for _, rep := range r.s.st.reports {
		if rep.ReporterID == reporterID && rep.ProductID == productID && rep.Status.IsOpen() {
			return true, nil
		}
	}
	return false, nil
}

func (r reportRepository) List(status domain.ReportStatus, limit int) ([]domain.Report, error) {
	defer r.rlock()()

	result := make([]domain.Report, 0)
	for _, rep := range r.s.st.reports {
		if status == "" || rep.Status == status {
			result = append(result, rep)
		}
	}
	sortNewestFirst(result, func(x domain.Report) (int64, string) { return x.CreatedAt.UnixNano(), x.ID })
	return limitSlice(result, limit), nil
}

var (
	_ domain.CategoryRepository      = categoryRepository{}
	_ domain.ProductRepository       = productRepository{}
	_ domain.ProductImageRepository  = imageRepository{}
	_ domain.FavoriteRepository      = favoriteRepository{}
	_ domain.ProductRatingRepository = productRatingRepository{}
	_ domain.ReportRepository        = reportRepository{}
)
