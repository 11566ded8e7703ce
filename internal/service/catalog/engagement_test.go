package catalog_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

func TestToggleFavorite_TwiceRestoresCounter(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	buyer := env.Buyer(t, "bob")
	product := env.Product(t, env.Seller(t, "sam"), env.Category(t, "cameras"), "100.00", "10.00")

	favorited, err := svc.ToggleFavorite(ctx, buyer, product.ID)
	require.NoError(t, err)
	require.True(t, favorited)
	got, err := env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.FavoritesCount)

	favorited, err = svc.ToggleFavorite(ctx, buyer, product.ID)
	require.NoError(t, err)
	require.False(t, favorited)
	got, err = env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Zero(t, got.FavoritesCount)
}

func TestAddAndRemoveFavorite(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	buyer := env.Buyer(t, "bob")
	product := env.Product(t, env.Seller(t, "sam"), env.Category(t, "cameras"), "100.00", "10.00")

	require.NoError(t, svc.AddFavorite(ctx, buyer, product.ID))
	err := svc.AddFavorite(ctx, buyer, product.ID)
	require.ErrorIs(t, err, domain.ErrAlreadyFavorite)
	require.Equal(t, "Product is already in your favorites", err.Error())

	got, err := env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, got.FavoritesCount)

	favorites, err := svc.ListFavorites(ctx, buyer)
	require.NoError(t, err)
	require.Len(t, favorites, 1)

	require.NoError(t, svc.RemoveFavorite(ctx, buyer, product.ID))
	require.ErrorIs(t, svc.RemoveFavorite(ctx, buyer, product.ID), domain.ErrFavoriteNotFound)

	got, err = env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Zero(t, got.FavoritesCount)
}

func TestRateProduct_RecomputesAverage(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	seller := env.Seller(t, "sam")
	product := env.Product(t, seller, env.Category(t, "cameras"), "100.00", "10.00")
	a, b, c := env.Buyer(t, "a"), env.Buyer(t, "b"), env.Buyer(t, "c")

	_, err := svc.RateProduct(ctx, seller, product.ID, catalog.RatingInput{Rating: 5})
	require.ErrorIs(t, err, domain.ErrCannotRateOwnProduct)

	for user, value := range map[*domain.User]int{&a: 5, &b: 3, &c: 4} {
		_, err := svc.RateProduct(ctx, *user, product.ID, catalog.RatingInput{Rating: value})
		require.NoError(t, err)
	}
	got, err := env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Equal(t, 4.0, got.AverageRating)
	require.Equal(t, 3, got.TotalRatings)

	require.NoError(t, svc.DeleteRating(ctx, b, product.ID))
	got, err = env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Equal(t, 4.5, got.AverageRating)
	require.Equal(t, 2, got.TotalRatings)

	_, err = svc.RateProduct(ctx, a, product.ID, catalog.RatingInput{Rating: 2, Review: "changed my mind"})
	require.NoError(t, err)
	got, err = env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Equal(t, 3.0, got.AverageRating)
	require.Equal(t, 2, got.TotalRatings)

	ratings, err := svc.ListRatings(ctx, nil, product.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 2)
}

func TestImages_MainImageRules(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	seller := env.Seller(t, "sam")
	product := env.Product(t, seller, env.Category(t, "cameras"), "100.00", "10.00")

	_, err := svc.AddImage(ctx, env.Seller(t, "olga"), product.ID, catalog.ImageInput{URL: "https://cdn/x.jpg"})
	require.ErrorIs(t, err, domain.ErrNotProductOwner)

	first, err := svc.AddImage(ctx, seller, product.ID, catalog.ImageInput{URL: "https://cdn/1.jpg"})
	require.NoError(t, err)
	require.True(t, first.IsMain)

	second, err := svc.AddImage(ctx, seller, product.ID, catalog.ImageInput{URL: "https://cdn/2.jpg"})
	require.NoError(t, err)
	require.False(t, second.IsMain)

	third, err := svc.AddImage(ctx, seller, product.ID, catalog.ImageInput{URL: "https://cdn/3.jpg", IsMain: true})
	require.NoError(t, err)
	require.Equal(t, []string{third.ID}, mainImages(t, svc, product.ID))

	require.NoError(t, svc.SetMainImage(ctx, seller, second.ID))
	require.Equal(t, []string{second.ID}, mainImages(t, svc, product.ID))

	require.NoError(t, svc.DeleteImage(ctx, seller, second.ID))
	require.Equal(t, []string{first.ID}, mainImages(t, svc, product.ID))

	_, err = svc.AddImage(ctx, seller, product.ID, catalog.ImageInput{URL: "  "})
	require.ErrorIs(t, err, domain.ErrImageURLRequired)
}

func TestEngagement_UnverifiedProductIsHiddenFromOthers(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	seller := env.Seller(t, "sam")
	buyer := env.Buyer(t, "bob")
	product := env.PendingProduct(t, seller, env.Category(t, "cameras"))

	_, err := svc.RateProduct(ctx, buyer, product.ID, catalog.RatingInput{Rating: 1})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = svc.ReportProduct(ctx, buyer, product.ID, catalog.ReportInput{Reason: domain.ReportReasonSpam})
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = svc.ListRatings(ctx, &buyer, product.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)
	_, err = svc.ListImages(ctx, nil, product.ID)
	require.ErrorIs(t, err, domain.ErrProductNotFound)

	got, err := env.Repos().Products.Get(product.ID)
	require.NoError(t, err)
	require.Zero(t, got.TotalRatings)
	require.Empty(t, env.Notifications(t, seller.ID))

	_, err = svc.ListImages(ctx, &seller, product.ID)
	require.NoError(t, err, "owner still sees own pending listing")
	_, err = svc.ListRatings(ctx, ptr(env.Admin(t, "root")), product.ID)
	require.NoError(t, err, "staff sees every listing")
}

func TestRateProduct_SoldProductStaysRateable(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	buyer := env.Buyer(t, "bob")
	product := env.Product(t, env.Seller(t, "sam"), env.Category(t, "cameras"), "100.00", "10.00")
	product.Status = domain.ProductStatusSold
	require.NoError(t, env.Repos().Products.Save(product))

	_, err := svc.RateProduct(ctx, buyer, product.ID, catalog.RatingInput{Rating: 5, Review: "as described"})
	require.NoError(t, err)
	ratings, err := svc.ListRatings(ctx, nil, product.ID)
	require.NoError(t, err)
	require.Len(t, ratings, 1)
}

func ptr(u domain.User) *domain.User { return &u }

func mainImages(t *testing.T, svc *catalog.Service, productID string) []string {
	t.Helper()
	images, err := svc.ListImages(context.Background(), nil, productID)
	require.NoError(t, err)
	var main []string
	for _, img := range images {
		if img.IsMain {
			main = append(main, img.ID)
		}
	}
	return main
}

func TestReportProduct_OneOpenReportPerPair(t *testing.T) {
	svc, env := newCatalog(t)
	ctx := context.Background()
	buyer := env.Buyer(t, "bob")
	product := env.Product(t, env.Seller(t, "sam"), env.Category(t, "cameras"), "100.00", "10.00")

	_, err := svc.ReportProduct(ctx, buyer, product.ID, catalog.ReportInput{Reason: "boring"})
	require.ErrorIs(t, err, domain.ErrReportReasonInvalid)

	report, err := svc.ReportProduct(ctx, buyer, product.ID, catalog.ReportInput{Reason: domain.ReportReasonFraud})
	require.NoError(t, err)
	require.Equal(t, domain.ReportStatusPending, report.Status)

	_, err = svc.ReportProduct(ctx, buyer, product.ID, catalog.ReportInput{Reason: domain.ReportReasonSpam})
	require.ErrorIs(t, err, domain.ErrReportDuplicate)
}
