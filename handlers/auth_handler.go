package handlers

import (
	"encoding/json"
	"net/http"

	"linguachat/apperr"
	"linguachat/models"
	"linguachat/services"
)

type AuthHandler struct {
	svc *services.AuthService
}

func NewAuthHandler(s *services.AuthService) *AuthHandler { return &AuthHandler{svc: s} }

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

type SuccessResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data"`
}

type AuthResult struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Email    string `json:"email"`
		Password string `json:"password"`
		Language string `json:"language"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" || req.Language == "" {
		respondWithError(w, "Missing fields", "Username, password and language are required", http.StatusBadRequest)
		return
	}

	user, err := h.svc.Register(r.Context(), req.Username, req.Email, req.Password, req.Language)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	token, err := h.svc.CreateToken(user.Username)
	if err != nil {
		respondWithError(w, "Token creation failed", "Could not create authentication token", http.StatusInternalServerError)
		return
	}

	respondWithSuccess(w, AuthResult{Token: token, User: user})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, "Invalid JSON", "Bad request format", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		respondWithError(w, "Missing fields", "Username and password are required", http.StatusBadRequest)
		return
	}

	token, user, err := h.svc.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		respondWithAppError(w, err)
		return
	}

	respondWithSuccess(w, AuthResult{Token: token, User: user})
}

// statusOf maps an error kind to the HTTP status it is served with.
func statusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalidInput:
		return http.StatusBadRequest
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindUpstream:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func respondWithAppError(w http.ResponseWriter, err error) {
	respondWithError(w, apperr.CodeOf(err), apperr.MessageOf(err), statusOf(err))
}

func respondWithError(w http.ResponseWriter, error, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(ErrorResponse{
		Error:   error,
		Message: message,
	})
}

func respondWithSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(SuccessResponse{
		Success: true,
		Data:    data,
	})
}
