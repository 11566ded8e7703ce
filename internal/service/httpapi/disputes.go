package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/transaction"
)

func (a *API) disputeRoutes(r chi.Router) {
	r.Post("/disputes", a.openDispute)
	r.Get("/disputes", a.listDisputes)
	r.Get("/disputes/{disputeID}", a.getDispute)
	r.Get("/disputes/{disputeID}/messages", a.listDisputeMessages)
	r.Post("/disputes/{disputeID}/messages", a.postDisputeMessage)
}

func (a *API) openDispute(w http.ResponseWriter, r *http.Request) {
	var in transaction.OpenDisputeInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	dispute, err := a.svc.Transaction.OpenDispute(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, dispute)
}

func (a *API) listDisputes(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	status := domain.DisputeStatus(r.URL.Query().Get("status"))
	disputes, err := a.svc.Transaction.ListDisputes(r.Context(), mustActor(r), status, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, disputes)
}

func (a *API) getDispute(w http.ResponseWriter, r *http.Request) {
	dispute, err := a.svc.Transaction.GetDispute(r.Context(), mustActor(r), chi.URLParam(r, "disputeID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, dispute)
}

type messageRequest struct {
	Message string `json:"message"`
}

func (a *API) postDisputeMessage(w http.ResponseWriter, r *http.Request) {
	var req messageRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.svc.Transaction.PostDisputeMessage(r.Context(), mustActor(r), chi.URLParam(r, "disputeID"), req.Message)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (a *API) listDisputeMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.svc.Transaction.ListDisputeMessages(r.Context(), mustActor(r), chi.URLParam(r, "disputeID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, messages)
}
