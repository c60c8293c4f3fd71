package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/momentchat/backend/internal/logging"
	"github.com/momentchat/backend/internal/repositories"
)

// UserHandler serves public profile information.
type UserHandler struct {
	Users UserStore
}

// Info handles GET /api/v1/users/{username}.
func (h UserHandler) Info(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := r.PathValue("username")
	user, err := h.Users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		logging.FromContext(ctx).Error("fetch user info", "username", username, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch user info"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{
		"username": user.Username,
		"email":    user.Email,
		"bio":      user.Bio,
	})
}

// Update handles PUT /api/v1/users/{username}.
func (h UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := r.PathValue("username")

	var req struct {
		Email string `json:"email"`
		Bio   string `json:"bio"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request payload"})
		return
	}
	if req.Email == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "email is required"})
		return
	}

	if err := h.Users.UpdateProfile(ctx, username, req.Email, req.Bio); err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "user not found"})
			return
		}
		logging.FromContext(ctx).Error("update user profile", "username", username, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to update profile"})
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "profile updated"})
}
