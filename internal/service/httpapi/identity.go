package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vladislavdragonenkov/marketplace/internal/domain"
	"github.com/vladislavdragonenkov/marketplace/internal/service/identity"
)

var errAdminRegistration = domain.NewValidationError("admin accounts cannot be registered")

func (a *API) identityRoutes(r chi.Router) {
	r.Get("/me", a.me)
	r.Patch("/users/{userID}", a.updateProfile)
	r.Post("/users/{userID}/ratings", a.rateUser)
}

func (a *API) register(w http.ResponseWriter, r *http.Request) {
	var in identity.RegisterInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if in.UserType == domain.UserTypeAdmin {
		a.writeError(w, r, errAdminRegistration)
		return
	}
	user, err := a.svc.Identity.Register(r.Context(), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, user)
}

func (a *API) me(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, mustActor(r))
}

func (a *API) getUser(w http.ResponseWriter, r *http.Request) {
	user, err := a.svc.Identity.GetUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

func (a *API) updateProfile(w http.ResponseWriter, r *http.Request) {
	var in identity.ProfileInput
	if err := decode(r, &in); err != nil {
		a.writeError(w, r, err)
		return
	}
	if in.UserType != nil && *in.UserType == domain.UserTypeAdmin {
		a.writeError(w, r, errAdminRegistration)
		return
	}
	user, err := a.svc.Identity.UpdateProfile(r.Context(), mustActor(r), chi.URLParam(r, "userID"), in)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, user)
}

type rateUserRequest struct {
	OrderID string `json:"order_id"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment"`
}

func (a *API) rateUser(w http.ResponseWriter, r *http.Request) {
	var req rateUserRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	rating, err := a.svc.Identity.RateUser(r.Context(), mustActor(r), identity.RateInput{
		ToUserID: chi.URLParam(r, "userID"),
		OrderID:  req.OrderID,
		Rating:   req.Rating,
		Comment:  req.Comment,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, rating)
}

func (a *API) listUserRatings(w http.ResponseWriter, r *http.Request) {
	ratings, err := a.svc.Identity.ListUserRatings(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, ratings)
}
