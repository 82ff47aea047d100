package handlers

import (
	"errors"
	"net/http"

	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// PushTokenRequest is the body of PUT /users/me/push-token
type PushTokenRequest struct {
	PushToken string `json:"push_token" validate:"max=200"`
}

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// Register handles POST /api/v1/register
func (h *UserHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.userService.Register(r.Context(), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := h.userService.Login(r.Context(), req)
	if err != nil {
		if errors.Is(err, services.ErrUnauthorized) {
			respondJSON(w, http.StatusUnauthorized, ErrorResponse{Error: services.MessageOf(err), Kind: services.ErrUnauthorized.Error()})
			return
		}
		respondServiceError(w, r, err)
		return
	}

	log.Info().Str("user_id", resp.User.ID).Msg("User logged in")
	respondJSON(w, http.StatusOK, resp)
}

// UpdatePushToken handles PUT /api/v1/users/me/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	var req PushTokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	userID := middleware.GetUserID(r.Context())
	if err := h.userService.UpdatePushToken(r.Context(), userID, req.PushToken); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: "Push token updated"})
}
