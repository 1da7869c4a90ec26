package handlers

import (
	"net/http"

	"linguachat/apperr"
	"linguachat/services"
	"linguachat/ws"
)

type SubscriptionHandler struct {
	auth *services.AuthService
	hub  *ws.Hub
}

func NewSubscriptionHandler(a *services.AuthService, h *ws.Hub) *SubscriptionHandler {
	return &SubscriptionHandler{auth: a, hub: h}
}

// ServeHTTP authenticates before the upgrade. Browsers cannot set headers on
// a websocket handshake, so the token may also come as ?token=.
func (h *SubscriptionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("Authorization")
	if token == "" {
		token = r.URL.Query().Get("token")
	}
	if token == "" {
		respondWithAppError(w, apperr.ErrUnauthenticated)
		return
	}
	id, err := h.auth.ParseToken(token)
	if err != nil {
		respondWithAppError(w, err)
		return
	}
	h.hub.ServeWS(w, r, *id)
}
