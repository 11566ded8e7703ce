package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
)

func (a *API) catalogRoutes(r chi.Router) {
	r.Post("/products", a.createProduct)
	r.Patch("/products/{productID}", a.updateProduct)
	r.Post("/products/{productID}/status", a.changeProductStatus)
	r.Delete("/products/{productID}", a.deleteProduct)
	r.Get("/me/products", a.listMyProducts)

	r.Post("/products/{productID}/images", a.addImage)
	r.Post("/images/{imageID}/main", a.setMainImage)
	r.Delete("/images/{imageID}", a.deleteImage)

	r.Post("/products/{productID}/favorite", a.toggleFavorite)
	r.Put("/products/{productID}/favorite", a.addFavorite)
	r.Delete("/products/{productID}/favorite", a.removeFavorite)
	r.Get("/me/favorites", a.listFavorites)

	r.Put("/products/{productID}/rating", a.rateProduct)
	r.Delete("/products/{productID}/rating", a.deleteRating)

	r.Post("/products/{productID}/reports", a.reportProduct)
}

func (a *API) listCategories(w http.ResponseWriter, r *http.Request) {
	categories, err := a.svc.Catalog.ListCategories(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, categories)
}

// productFilter разбирает параметры публичной выдачи.
func productFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		CategoryID: q.Get("category"),
		Condition:  domain.ProductCondition(q.Get("condition")),
		City:       q.Get("city"),
		Country:    q.Get("country"),
		Location:   q.Get("location"),
		Search:     strings.TrimSpace(q.Get("search")),
		Sort:       domain.ProductSort(q.Get("sort")),
	}

	var err error
	if filter.Negotiable, err = queryBool(r, "negotiable"); err != nil {
		return filter, err
	}
	if filter.MinPrice, err = queryDecimal(r, "min_price"); err != nil {
		return filter, err
	}
	if filter.MaxPrice, err = queryDecimal(r, "max_price"); err != nil {
		return filter, err
	}
	if filter.Limit, err = queryInt(r, "limit", 0); err != nil {
		return filter, err
	}
	if filter.Offset, err = queryInt(r, "offset", 0); err != nil {
		return filter, err
	}
	switch filter.Sort {
	case "", domain.SortNewest, domain.SortPriceLow, domain.SortPriceHigh, domain.SortPopular:
	default:
		return filter, domain.NewValidationError("unknown sort order")
	}
	return filter, nil
}

func queryDecimal(r *http.Request, key string) (*decimal.Decimal, error) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil, nil
	}
	v, err := decimal.NewFromString(raw)
	if err != nil {
		return nil, domain.NewValidationError(key + " must be a decimal number")
	}
	return &v, nil
}

func (a *API) listProducts(w http.ResponseWriter, r *http.Request) {
	filter, err := productFilter(r)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	products, err := a.svc.Catalog.ListProducts(r.Context(), filter)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) featuredProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Catalog.FeaturedProducts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) popularProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Catalog.PopularProducts(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) categoryProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Catalog.CategoryProducts(r.Context(), chi.URLParam(r, "categoryID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	product, err := a.svc.Catalog.GetProduct(r.Context(), optionalActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (a *API) createProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.svc.Catalog.CreateProduct(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, product)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ProductUpdate
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.svc.Catalog.UpdateProduct(r.Context(), mustActor(r), chi.URLParam(r, "productID"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

type statusRequest struct {
	Status domain.ProductStatus `json:"status"`
}

func (a *API) changeProductStatus(w http.ResponseWriter, r *http.Request) {
	var req statusRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.svc.Catalog.ChangeStatus(r.Context(), mustActor(r), chi.URLParam(r, "productID"), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (a *API) deleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.DeleteProduct(r.Context(), mustActor(r), chi.URLParam(r, "productID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) listMyProducts(w http.ResponseWriter, r *http.Request) {
	products, err := a.svc.Catalog.ListMyProducts(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, products)
}

func (a *API) listImages(w http.ResponseWriter, r *http.Request) {
	images, err := a.svc.Catalog.ListImages(r.Context(), optionalActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, images)
}

func (a *API) addImage(w http.ResponseWriter, r *http.Request) {
	var in catalog.ImageInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	image, err := a.svc.Catalog.AddImage(r.Context(), mustActor(r), chi.URLParam(r, "productID"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, image)
}

func (a *API) setMainImage(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.SetMainImage(r.Context(), mustActor(r), chi.URLParam(r, "imageID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) deleteImage(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.DeleteImage(r.Context(), mustActor(r), chi.URLParam(r, "imageID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) toggleFavorite(w http.ResponseWriter, r *http.Request) {
	favorited, err := a.svc.Catalog.ToggleFavorite(r.Context(), mustActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]bool{"favorited": favorited})
}

func (a *API) addFavorite(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.AddFavorite(r.Context(), mustActor(r), chi.URLParam(r, "productID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) removeFavorite(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.RemoveFavorite(r.Context(), mustActor(r), chi.URLParam(r, "productID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) listFavorites(w http.ResponseWriter, r *http.Request) {
	favorites, err := a.svc.Catalog.ListFavorites(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, favorites)
}

func (a *API) rateProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.RatingInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	rating, err := a.svc.Catalog.RateProduct(r.Context(), mustActor(r), chi.URLParam(r, "productID"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rating)
}

func (a *API) deleteRating(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Catalog.DeleteRating(r.Context(), mustActor(r), chi.URLParam(r, "productID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) listRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := a.svc.Catalog.ListRatings(r.Context(), optionalActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ratings)
}

func (a *API) reportProduct(w http.ResponseWriter, r *http.Request) {
	var in catalog.ReportInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	report, err := a.svc.Catalog.ReportProduct(r.Context(), mustActor(r), chi.URLParam(r, "productID"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, report)
}
