package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

// HeaderIdempotencyKey — заголовок ключа идемпотентности оформления заказа.
const HeaderIdempotencyKey = "Idempotency-Key"

func (a *API) orderRoutes(r chi.Router) {
	r.Post("/orders", a.placeOrder)
	r.Get("/orders", a.listOrders)
	r.Get("/orders/{orderID}", a.getOrder)
	r.Get("/orders/{orderID}/history", a.orderHistory)
	r.Post("/orders/{orderID}/approve", a.orderTransition(func(ctx context.Context, actor domain.User, id string, req transitionRequest) (domain.Order, error) {
		return a.svc.Transaction.ApproveOrder(ctx, actor, id, req.Notes)
	}))
	r.Post("/orders/{orderID}/reject", a.orderTransition(func(ctx context.Context, actor domain.User, id string, req transitionRequest) (domain.Order, error) {
		return a.svc.Transaction.RejectOrder(ctx, actor, id, req.Reason)
	}))
	r.Post("/orders/{orderID}/ship", a.orderTransition(func(ctx context.Context, actor domain.User, id string, req transitionRequest) (domain.Order, error) {
		return a.svc.Transaction.ShipOrder(ctx, actor, id, req.TrackingNumber)
	}))
	r.Post("/orders/{orderID}/deliver", a.orderTransition(func(ctx context.Context, actor domain.User, id string, _ transitionRequest) (domain.Order, error) {
		return a.svc.Transaction.DeliverOrder(ctx, actor, id)
	}))
	r.Post("/orders/{orderID}/cancel", a.orderTransition(func(ctx context.Context, actor domain.User, id string, req transitionRequest) (domain.Order, error) {
		return a.svc.Transaction.CancelOrder(ctx, actor, id, req.Reason)
	}))
	r.Get("/me/order-statistics", a.orderStatistics)
}

func (a *API) placeOrder(w http.ResponseWriter, r *http.Request) {
	var in transaction.PlaceOrderInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	in.IdempotencyKey = strings.TrimSpace(r.Header.Get(HeaderIdempotencyKey))

	order, err := a.svc.Transaction.PlaceOrder(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, order)
}

func (a *API) listOrders(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	role := domain.OrderRole(r.URL.Query().Get("role"))
	switch role {
	case domain.OrderRoleAny, domain.OrderRoleBuyer, domain.OrderRoleSeller:
	default:
		a.writeError(w, r, domain.NewValidationError("role must be buyer or seller"))
		return
	}
	status := domain.OrderStatus(r.URL.Query().Get("status"))

	orders, err := a.svc.Transaction.ListOrders(r.Context(), mustActor(r), role, status, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, orders)
}

func (a *API) getOrder(w http.ResponseWriter, r *http.Request) {
	order, err := a.svc.Transaction.GetOrder(r.Context(), mustActor(r), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, order)
}

func (a *API) orderHistory(w http.ResponseWriter, r *http.Request) {
	history, err := a.svc.Transaction.OrderHistory(r.Context(), mustActor(r), chi.URLParam(r, "orderID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

type transitionRequest struct {
	Notes          string `json:"notes"`
	Reason         string `json:"reason"`
	TrackingNumber string `json:"tracking_number"`
}

type orderTransitionFunc func(ctx context.Context, actor domain.User, orderID string, req transitionRequest) (domain.Order, error)

func (a *API) orderTransition(fn orderTransitionFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req transitionRequest
		if err := decode(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		order, err := fn(r.Context(), mustActor(r), chi.URLParam(r, "orderID"), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, order)
	}
}

func (a *API) orderStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := a.svc.Transaction.OrderStatistics(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (a *API) trackOrder(w http.ResponseWriter, r *http.Request) {
	tracking, err := a.svc.Transaction.TrackOrder(r.Context(), chi.URLParam(r, "orderNumber"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, tracking)
}

func (a *API) listShippingMethods(w http.ResponseWriter, r *http.Request) {
	methods, err := a.svc.Transaction.ListShippingMethods(r.Context())
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, methods)
}
