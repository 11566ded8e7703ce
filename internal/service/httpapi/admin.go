package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/catalog"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

// adminRoutes монтируется под /api/admin, доступ к нему проверен requireStaff.
func (a *API) adminRoutes(r chi.Router) {
	r.Get("/dashboard", a.dashboard)
	r.Get("/activities", a.activities)
	r.Get("/health", a.systemHealth)

	r.Get("/users/pending", a.pendingUsers)
	r.Post("/users/{userID}/approve", a.staffAction("userID", a.approveUser))
	r.Post("/users/{userID}/reject", a.staffAction("userID", a.rejectUser))

	r.Post("/products/{productID}/verify", a.staffAction("productID", a.verifyProduct))
	r.Post("/products/{productID}/reject", a.staffAction("productID", a.rejectProduct))
	r.Post("/products/{productID}/feature", a.featureProduct)

	r.Post("/disputes/{disputeID}/review", a.staffAction("disputeID", a.reviewDispute))
	r.Post("/disputes/{disputeID}/resolve", a.staffAction("disputeID", a.resolveDispute))
	r.Post("/disputes/{disputeID}/close", a.staffAction("disputeID", a.closeDispute))

	r.Get("/reports", a.listReports)
	r.Post("/reports/{reportID}/review", a.staffAction("reportID", a.reviewReport))
	r.Post("/reports/{reportID}/resolve", a.resolveReport)
	r.Post("/reports/{reportID}/dismiss", a.staffAction("reportID", a.dismissReport))

	r.Post("/categories", a.createCategory)
	r.Post("/shipping-methods", a.createShippingMethod)
}

func (a *API) dashboard(w http.ResponseWriter, r *http.Request) {
	period := domain.ParseStatsPeriod(r.URL.Query().Get("period"))
	stats, err := a.svc.Admin.DashboardStats(r.Context(), mustActor(r), period)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, stats)
}

func (a *API) activities(w http.ResponseWriter, r *http.Request) {
	acts, err := a.svc.Admin.RecentActivities(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, acts)
}

func (a *API) systemHealth(w http.ResponseWriter, r *http.Request) {
	report, err := a.svc.Admin.SystemHealth(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (a *API) pendingUsers(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	users, err := a.svc.Identity.ListPendingVerifications(r.Context(), mustActor(r), limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, users)
}

// moderationRequest покрывает тела всех решений модератора.
type moderationRequest struct {
	Notes      string `json:"notes"`
	Reason     string `json:"reason"`
	Resolution string `json:"resolution"`
	Note       string `json:"note"`
}

type featureRequest struct {
	Featured bool `json:"featured"`
}

type resolveReportRequest struct {
	Notes             string `json:"notes"`
	DeactivateProduct bool   `json:"deactivate_product"`
}

// staffAction разбирает тело решения и вызывает fn с id из пути.
func (a *API) staffAction(param string, fn func(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req moderationRequest
		if err := decode(r, &req); err != nil {
			a.writeError(w, r, err)
			return
		}
		out, err := fn(r.Context(), mustActor(r), chi.URLParam(r, param), req)
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		writeData(w, http.StatusOK, out)
	}
}

func (a *API) approveUser(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Identity.ApproveUser(ctx, staff, id, req.Notes)
}

func (a *API) rejectUser(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Identity.RejectUser(ctx, staff, id, req.Reason)
}

func (a *API) verifyProduct(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Catalog.VerifyProduct(ctx, staff, id, req.Notes)
}

func (a *API) rejectProduct(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Catalog.RejectProduct(ctx, staff, id, req.Reason)
}

func (a *API) featureProduct(w http.ResponseWriter, r *http.Request) {
	var req featureRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	product, err := a.svc.Catalog.SetFeatured(r.Context(), mustActor(r), chi.URLParam(r, "productID"), req.Featured)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, product)
}

func (a *API) reviewDispute(ctx context.Context, staff domain.User, id string, _ moderationRequest) (any, error) {
	return a.svc.Transaction.ReviewDispute(ctx, staff, id)
}

func (a *API) resolveDispute(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Transaction.ResolveDispute(ctx, staff, id, req.Resolution)
}

func (a *API) closeDispute(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Transaction.CloseDispute(ctx, staff, id, req.Note)
}

func (a *API) listReports(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := domain.ReportStatus(r.URL.Query().Get("status"))
	reports, err := a.svc.Admin.ListReports(r.Context(), mustActor(r), status, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, reports)
}

func (a *API) reviewReport(ctx context.Context, staff domain.User, id string, _ moderationRequest) (any, error) {
	return a.svc.Admin.ReviewReport(ctx, staff, id)
}

func (a *API) resolveReport(w http.ResponseWriter, r *http.Request) {
	var req resolveReportRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	report, err := a.svc.Admin.ResolveReport(r.Context(), mustActor(r), chi.URLParam(r, "reportID"), req.Notes, req.DeactivateProduct)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, report)
}

func (a *API) dismissReport(ctx context.Context, staff domain.User, id string, req moderationRequest) (any, error) {
	return a.svc.Admin.DismissReport(ctx, staff, id, req.Notes)
}

func (a *API) createCategory(w http.ResponseWriter, r *http.Request) {
	var in catalog.CategoryInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	category, err := a.svc.Catalog.CreateCategory(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, category)
}

func (a *API) createShippingMethod(w http.ResponseWriter, r *http.Request) {
	var in transaction.ShippingMethodInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	method, err := a.svc.Transaction.CreateShippingMethod(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, method)
}
