package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

func (a *API) interactionRoutes(r chi.Router) {
	r.Post("/conversations", a.startConversation)
	r.Get("/conversations", a.listConversations)
	r.Get("/conversations/{conversationID}", a.getConversation)
	r.Delete("/conversations/{conversationID}", a.deleteConversation)
	r.Get("/conversations/{conversationID}/messages", a.listMessages)
	r.Post("/conversations/{conversationID}/messages", a.sendMessage)
	r.Get("/products/{productID}/conversation", a.conversationExists)

	r.Post("/direct", a.startDirect)
	r.Get("/direct", a.listDirect)
	r.Get("/direct/{conversationID}/messages", a.listDirectMessages)
	r.Post("/direct/{conversationID}/messages", a.sendDirectMessage)

	r.Get("/notifications", a.listNotifications)
	r.Post("/notifications/read-all", a.markAllNotificationsRead)
	r.Post("/notifications/{notificationID}/read", a.markNotificationRead)
	r.Delete("/notifications/{notificationID}", a.deleteNotification)
	r.Get("/me/unread", a.unreadCounts)
}

type startConversationRequest struct {
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

type conversationResponse struct {
	Conversation any  `json:"conversation"`
	Created      bool `json:"created"`
}

func (a *API) startConversation(w http.ResponseWriter, r *http.Request) {
	var req startConversationRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	conv, created, err := a.svc.Interaction.StartConversation(r.Context(), mustActor(r), req.ProductID, req.Message)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeData(w, code, conversationResponse{Conversation: conv, Created: created})
}

func (a *API) conversationExists(w http.ResponseWriter, r *http.Request) {
	id, exists, err := a.svc.Interaction.ConversationExists(r.Context(), mustActor(r), chi.URLParam(r, "productID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]any{"exists": exists, "conversation_id": id})
}

func (a *API) listConversations(w http.ResponseWriter, r *http.Request) {
	convs, err := a.svc.Interaction.ListConversations(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, convs)
}

func (a *API) getConversation(w http.ResponseWriter, r *http.Request) {
	view, err := a.svc.Interaction.GetConversation(r.Context(), mustActor(r), chi.URLParam(r, "conversationID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, view)
}

func (a *API) deleteConversation(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Interaction.DeleteConversation(r.Context(), mustActor(r), chi.URLParam(r, "conversationID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) listMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.svc.Interaction.ListMessages(r.Context(), mustActor(r), chi.URLParam(r, "conversationID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, messages)
}

type contentRequest struct {
	Content string `json:"content"`
}

func (a *API) sendMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.svc.Interaction.SendMessage(r.Context(), mustActor(r), chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

type startDirectRequest struct {
	UserID  string `json:"user_id"`
	Message string `json:"message"`
}

func (a *API) startDirect(w http.ResponseWriter, r *http.Request) {
	var req startDirectRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	conv, created, err := a.svc.Interaction.StartDirectConversation(r.Context(), mustActor(r), req.UserID, req.Message)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	code := http.StatusOK
	if created {
		code = http.StatusCreated
	}
	writeData(w, code, conversationResponse{Conversation: conv, Created: created})
}

func (a *API) listDirect(w http.ResponseWriter, r *http.Request) {
	convs, err := a.svc.Interaction.ListDirectConversations(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, convs)
}

func (a *API) listDirectMessages(w http.ResponseWriter, r *http.Request) {
	messages, err := a.svc.Interaction.ListDirectMessages(r.Context(), mustActor(r), chi.URLParam(r, "conversationID"))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, messages)
}

func (a *API) sendDirectMessage(w http.ResponseWriter, r *http.Request) {
	var req contentRequest
	if err := decode(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	msg, err := a.svc.Interaction.SendDirectMessage(r.Context(), mustActor(r), chi.URLParam(r, "conversationID"), req.Content)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (a *API) listNotifications(w http.ResponseWriter, r *http.Request) {
	unread, err := queryBool(r, "unread")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	items, err := a.svc.Interaction.ListNotifications(r.Context(), mustActor(r), unread != nil && *unread, limit)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, items)
}

func (a *API) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Interaction.MarkNotificationRead(r.Context(), mustActor(r), chi.URLParam(r, "notificationID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) markAllNotificationsRead(w http.ResponseWriter, r *http.Request) {
	n, err := a.svc.Interaction.MarkAllNotificationsRead(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]int{"marked": n})
}

func (a *API) deleteNotification(w http.ResponseWriter, r *http.Request) {
	if err := a.svc.Interaction.DeleteNotification(r.Context(), mustActor(r), chi.URLParam(r, "notificationID")); err != nil {
		a.writeError(w, r, err)
		return
	}
	writeNoContent(w)
}

func (a *API) unreadCounts(w http.ResponseWriter, r *http.Request) {
	counts, err := a.svc.Interaction.UnreadCounts(r.Context(), mustActor(r))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, counts)
}
