package handlers

import (
	"context"
	"net/http"

	"photo-trade-backend/internal/middleware"
	"photo-trade-backend/internal/services"
)

// FriendHandler handles friendship HTTP requests
type FriendHandler struct {
	friendService *services.FriendService
}

// NewFriendHandler creates a new friend handler
func NewFriendHandler(friendService *services.FriendService) *FriendHandler {
	return &FriendHandler{friendService: friendService}
}

// SendRequest handles POST /api/v1/friends/request
func (h *FriendHandler) SendRequest(w http.ResponseWriter, r *http.Request) {
	var req services.FriendRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	friend, err := h.friendService.RequestFriend(r.Context(), middleware.GetUserID(r.Context()), req.Username)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]any{"message": "Friend request sent", "friend": friend})
}

// Accept handles POST /api/v1/friends/accept
func (h *FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.friendService.AcceptFriend, "Friend request accepted")
}

// Decline handles POST /api/v1/friends/decline
func (h *FriendHandler) Decline(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.friendService.DeclineFriend, "Friend request declined")
}

// Remove handles POST /api/v1/friends/remove
func (h *FriendHandler) Remove(w http.ResponseWriter, r *http.Request) {
	h.mutate(w, r, h.friendService.RemoveFriend, "Friend removed")
}

func (h *FriendHandler) mutate(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, userID, friendID string) error, message string) {
	var req services.FriendAction
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := op(r.Context(), middleware.GetUserID(r.Context()), req.FriendID); err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, MessageResponse{Message: message})
}

// List handles GET /api/v1/friends and its /api/v1/users alias
func (h *FriendHandler) List(w http.ResponseWriter, r *http.Request) {
	friends, err := h.friendService.ListFriends(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, friends)
}

// Requests handles GET /api/v1/friends/requests
func (h *FriendHandler) Requests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.friendService.ListIncomingRequests(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, requests)
}
