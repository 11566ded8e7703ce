package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/ids"
	"github.com/vladislavdragonenkov/marketplace/internal/service/outbox"
)

// ImageInput — ссылка на изображение во внешнем хранилище.
type ImageInput struct {
	URL     string `json:"url"`
	AltText string `json:"alt_text"`
	IsMain  bool   `json:"is_main"`
}

// AddImage прикрепляет изображение. Первое изображение всегда главное.
func (s *Service) AddImage(ctx context.Context, actor domain.User, productID string, in ImageInput) (domain.ProductImage, error) {
	url := strings.TrimSpace(in.URL)
	if url == "" {
		return domain.ProductImage{}, domain.ErrImageURLRequired
	}

	image := domain.ProductImage{
		ID:        ids.New(),
		ProductID: productID,
		URL:       url,
		AltText:   in.AltText,
		CreatedAt: s.now(),
	}
	err := s.exec.Do(ctx, "add_image", func(repos domain.Repositories, _ *outbox.Recorder) error {
		if _, err := ownedProduct(repos, actor, productID); err != nil {
			return err
		}
		existing, err := repos.Images.ListByProduct(productID)
		if err != nil {
			return err
		}
		image.IsMain = in.IsMain || len(existing) == 0
		if err := repos.Images.Add(image); err != nil {
			return err
		}
		if image.IsMain && len(existing) > 0 {
			return repos.Images.SetMain(productID, image.ID)
		}
		return nil
	})
	if err != nil {
		return domain.ProductImage{}, err
	}
	return image, nil
}

// SetMainImage делает изображение главным и снимает флаг с остальных.
func (s *Service) SetMainImage(ctx context.Context, actor domain.User, imageID string) error {
	return s.exec.Do(ctx, "set_main_image", func(repos domain.Repositories, _ *outbox.Recorder) error {
		image, err := repos.Images.Get(imageID)
		if err != nil {
			return err
		}
		if _, err := ownedProduct(repos, actor, image.ProductID); err != nil {
			return err
		}
		return repos.Images.SetMain(image.ProductID, image.ID)
	})
}

// DeleteImage удаляет изображение. Если удалено главное, главным становится
// самое раннее из оставшихся.
func (s *Service) DeleteImage(ctx context.Context, actor domain.User, imageID string) error {
	return s.exec.Do(ctx, "delete_image", func(repos domain.Repositories, _ *outbox.Recorder) error {
		image, err := repos.Images.Get(imageID)
		if err != nil {
			return err
		}
		if _, err := ownedProduct(repos, actor, image.ProductID); err != nil {
			return err
		}
		if err := repos.Images.Delete(image.ID); err != nil {
			return err
		}
		if !image.IsMain {
			return nil
		}
		rest, err := repos.Images.ListByProduct(image.ProductID)
		if err != nil {
			return err
		}
		if len(rest) == 0 {
			return nil
		}
		return repos.Images.SetMain(image.ProductID, rest[0].ID)
	})
}

// ListImages возвращает изображения объявления в порядке добавления.
// actor nil для анонимного запроса.
func (s *Service) ListImages(_ context.Context, actor *domain.User, productID string) ([]domain.ProductImage, error) {
	if _, err := s.visibleProduct(actor, productID); err != nil {
		return nil, err
	}
	return s.repos().Images.ListByProduct(productID)
}

// AddFavorite добавляет товар в избранное и увеличивает счётчик в той же транзакции.
func (s *Service) AddFavorite(ctx context.Context, actor domain.User, productID string) error {
	return s.exec.Do(ctx, "add_favorite", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return s.addFavorite(repos, actor, productID)
	})
}

func (s *Service) addFavorite(repos domain.Repositories, actor domain.User, productID string) error {
	product, err := repos.Products.Get(productID)
	if err != nil {
		return err
	}
	if !canSee(&actor, product) {
		return domain.ErrProductNotFound
	}
	if err := repos.Favorites.Add(domain.Favorite{UserID: actor.ID, ProductID: productID, CreatedAt: s.now()}); err != nil {
		return err
	}
	return repos.Products.AdjustFavorites(productID, 1)
}

// RemoveFavorite убирает товар из избранного.
func (s *Service) RemoveFavorite(ctx context.Context, actor domain.User, productID string) error {
	return s.exec.Do(ctx, "remove_favorite", func(repos domain.Repositories, _ *outbox.Recorder) error {
		return removeFavorite(repos, actor, productID)
	})
}

func removeFavorite(repos domain.Repositories, actor domain.User, productID string) error {
	if err := repos.Favorites.Remove(actor.ID, productID); err != nil {
		return err
	}
	return repos.Products.AdjustFavorites(productID, -1)
}

// ToggleFavorite переключает избранное и сообщает итоговое состояние.
func (s *Service) ToggleFavorite(ctx context.Context, actor domain.User, productID string) (bool, error) {
	var favorited bool
	err := s.exec.Do(ctx, "toggle_favorite", func(repos domain.Repositories, _ *outbox.Recorder) error {
		exists, err := repos.Favorites.Exists(actor.ID, productID)
		if err != nil {
			return err
		}
		if exists {
			favorited = false
			return removeFavorite(repos, actor, productID)
		}
		favorited = true
		return s.addFavorite(repos, actor, productID)
	})
	return favorited, err
}

// ListFavorites возвращает избранное пользователя, новые первыми.
func (s *Service) ListFavorites(_ context.Context, actor domain.User) ([]domain.Favorite, error) {
	return s.repos().Favorites.ListByUser(actor.ID)
}

// RatingInput — оценка товара.
type RatingInput struct {
	Rating int    `json:"rating"`
	Review string `json:"review"`
}

// RateProduct создаёт или обновляет оценку и пересчитывает средний рейтинг.
func (s *Service) RateProduct(ctx context.Context, actor domain.User, productID string, in RatingInput) (domain.ProductRating, error) {
	if !domain.ValidRatingValue(in.Rating) {
		return domain.ProductRating{}, domain.ErrRatingValueInvalid
	}

	var saved domain.ProductRating
	err := s.exec.Do(ctx, "rate_product", func(repos domain.Repositories, rec *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		if !canSee(&actor, product) {
			return domain.ErrProductNotFound
		}
		if product.SellerID == actor.ID {
			return domain.ErrCannotRateOwnProduct
		}
		now := s.now()
		saved, err = repos.ProductRatings.Upsert(domain.ProductRating{
			ID:        ids.New(),
			UserID:    actor.ID,
			ProductID: productID,
			Rating:    in.Rating,
			Review:    in.Review,
			CreatedAt: now,
			UpdatedAt: now,
		})
		if err != nil {
			return err
		}
		if err := recomputeProductRating(repos, productID); err != nil {
			return err
		}
		return rec.Notify(repos.Outbox, domain.NotificationDraft{
			RecipientID: product.SellerID,
			SenderID:    actor.ID,
			Type:        domain.NotificationRating,
			Title:       "Your product received a rating",
			Message:     fmt.Sprintf("%s rated %q %d/5", actor.Username, product.Title, in.Rating),
			ProductID:   productID,
		})
	})
	return saved, err
}

// DeleteRating удаляет собственную оценку и пересчитывает средний рейтинг.
func (s *Service) DeleteRating(ctx context.Context, actor domain.User, productID string) error {
	return s.exec.Do(ctx, "delete_product_rating", func(repos domain.Repositories, _ *outbox.Recorder) error {
		if err := repos.ProductRatings.Delete(actor.ID, productID); err != nil {
			return err
		}
		return recomputeProductRating(repos, productID)
	})
}

// ListRatings возвращает оценки товара.
func (s *Service) ListRatings(_ context.Context, actor *domain.User, productID string) ([]domain.ProductRating, error) {
	if _, err := s.visibleProduct(actor, productID); err != nil {
		return nil, err
	}
	return s.repos().ProductRatings.ListByProduct(productID)
}

func recomputeProductRating(repos domain.Repositories, productID string) error {
	ratings, err := repos.ProductRatings.ListByProduct(productID)
	if err != nil {
		return err
	}
	values := make([]int, 0, len(ratings))
	for _, r := range ratings {
		values = append(values, r.Rating)
	}
	avg, total := domain.AverageRating(values)
	return repos.Products.SetRating(productID, avg, total)
}

// ReportInput — жалоба на объявление.
type ReportInput struct {
	Reason      domain.ReportReason `json:"reason"`
	Description string              `json:"description"`
}

// ReportProduct регистрирует жалобу. Одна открытая жалоба на пару (автор, товар).
func (s *Service) ReportProduct(ctx context.Context, actor domain.User, productID string, in ReportInput) (domain.Report, error) {
	if !in.Reason.Valid() {
		return domain.Report{}, domain.ErrReportReasonInvalid
	}

	now := s.now()
	report := domain.Report{
		ID:          ids.New(),
		ReporterID:  actor.ID,
		ProductID:   productID,
		Reason:      in.Reason,
		Description: in.Description,
		Status:      domain.ReportStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	err := s.exec.Do(ctx, "report_product", func(repos domain.Repositories, _ *outbox.Recorder) error {
		product, err := repos.Products.Get(productID)
		if err != nil {
			return err
		}
		if !canSee(&actor, product) {
			return domain.ErrProductNotFound
		}
		if product.SellerID == actor.ID {
			return domain.NewValidationError("you cannot report your own product")
		}
		open, err := repos.Reports.HasOpen(actor.ID, productID)
		if err != nil {
			return err
		}
		if open {
			return domain.ErrReportDuplicate
		}
		return repos.Reports.Create(report)
	})
	if err != nil {
		return domain.Report{}, err
	}
	return report, nil
}
