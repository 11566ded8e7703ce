// Package httpapi — JSON API площадки поверх chi.
package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/marketplace/internal/metrics"
	"github.com/vladislavdragonenkov/marketplace/internal/service/admin"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/identity"
	"github.com/vladislavdragonenkov/marketplace/internal/service/interaction"
	"github.com/vladislavdragonenkov/marketplace/internal/service/negotiation"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

const defaultRequestTimeout = 15 * time.Second

// Services — прикладные сервисы, которые обслуживает API.
type Services struct {
	Identity    *identity.Service
	Catalog     *catalog.Service
	Negotiation *negotiation.Service
	Transaction *transaction.Service
	Interaction *interaction.Service
	Admin       *admin.Service
}

// Config — параметры HTTP API.
type Config struct {
	JWTSecret      string
	RequestTimeout time.Duration
}

// API связывает маршруты с сервисами.
type API struct {
	svc     Services
	auth    *Authenticator
	metrics *metrics.Metrics
	logger  *log.Entry
	timeout time.Duration
}

// New создаёт API. Токены проверяются через Identity.ResolveActor.
func New(cfg Config, svc Services, m *metrics.Metrics, logger *log.Entry) *API {
	if logger == nil {
		logger = log.New().WithField("component", "http-api")
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = defaultRequestTimeout
	}
	return &API{
		svc:     svc,
		auth:    NewAuthenticator(cfg.JWTSecret, svc.Identity),
		metrics: m,
		logger:  logger,
		timeout: cfg.RequestTimeout,
	}
}

// Authenticator возвращает проверку токенов API.
func (a *API) Authenticator() *Authenticator {
	return a.auth
}

// Router собирает маршруты.
func (a *API) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Use(a.instrument)
	r.Use(middleware.Timeout(a.timeout))
	r.Use(a.auth.Middleware(a.writeError))

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, envelope{Error: "route not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, envelope{Error: "method not allowed"})
	})

	r.Route("/api", func(r chi.Router) {
		a.publicRoutes(r)
		r.Group(func(r chi.Router) {
			r.Use(requireActor)
			a.identityRoutes(r)
			a.catalogRoutes(r)
			a.negotiationRoutes(r)
			a.orderRoutes(r)
			a.disputeRoutes(r)
			a.interactionRoutes(r)
		})
		r.Route("/admin", func(r chi.Router) {
			r.Use(requireStaff)
			a.adminRoutes(r)
		})
	})
	return r
}

func (a *API) publicRoutes(r chi.Router) {
	r.Post("/users", a.register)
	r.Get("/users/{userID}", a.getUser)
	r.Get("/users/{userID}/ratings", a.listUserRatings)

	r.Get("/categories", a.listCategories)
	r.Get("/categories/{categoryID}/products", a.categoryProducts)
	r.Get("/products", a.listProducts)
	r.Get("/products/featured", a.featuredProducts)
	r.Get("/products/popular", a.popularProducts)
	r.Get("/products/{productID}", a.getProduct)
	r.Get("/products/{productID}/images", a.listImages)
	r.Get("/products/{productID}/ratings", a.listRatings)

	r.Get("/shipping-methods", a.listShippingMethods)
	r.Get("/track/{orderNumber}", a.trackOrder)
}
