package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/negotiation"
)

func (a *API) negotiationRoutes(r chi.Router) {
	r.Post("/offers", a.makeOffer)
	r.Get("/offers/{offerID}", a.getOffer)
	r.Post("/offers/{offerID}/accept", a.acceptOffer)
	r.Post("/offers/{offerID}/reject", a.rejectOffer)
	r.Get("/products/{productID}/offers", a.listProductOffers)
	r.Get("/me/offers", a.listMyOffers)
}

type offerResponder func(ctx context.Context, actor domain.User, offerID, response string) (domain.Offer, error)

type responseRequest struct {
	Response string `json:"response"`
}

func (a *API) makeOffer(w http.ResponseWriter, r *http.Request) {
	var in negotiation.OfferInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	offer, err := a.svc.Negotiation.MakeOffer(r.Context(), mustActor(r), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, offer)
}

func (a *API) getOffer(w http.ResponseWriter, r *http.Request) {
	offer, err := a.svc.Negotiation.GetOffer(r.Context(), mustActor(r), chi.URLParam(r, "offerID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, offer)
}

func (a *API) acceptOffer(w http.ResponseWriter, r *http.Request) {
	a.respondOffer(w, r, a.svc.Negotiation.AcceptOffer)
}

func (a *API) rejectOffer(w http.ResponseWriter, r *http.Request) {
	a.respondOffer(w, r, a.svc.Negotiation.RejectOffer)
}

func (a *API) respondOffer(w http.ResponseWriter, r *http.Request, respond offerResponder) {
	var req responseRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	offer, err := respond(r.Context(), mustActor(r), chi.URLParam(r, "offerID"), req.Response)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, offer)
}

func (a *API) listProductOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := a.svc.Negotiation.ListProductOffers(r.Context(), mustActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, offers)
}

func (a *API) listMyOffers(w http.ResponseWriter, r *http.Request) {
	offers, err := a.svc.Negotiation.ListMyOffers(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, offers)
}
