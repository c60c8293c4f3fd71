package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/momentchat/backend/internal/logging"
	"github.com/momentchat/backend/internal/models"
	"github.com/momentchat/backend/internal/repositories"
)

// AuthHandler implements account registration and credential login.
type AuthHandler struct {
	Users   UserStore
	Friends FriendLister
	NowFunc func() time.Time
}

type registerRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Bio      string `json:"bio"`
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Message string       `json:"message"`
	User    loginProfile `json:"user"`
}

type loginProfile struct {
	Username string   `json:"username"`
	Friends  []string `json:"friends"`
	Points   int64    `json:"points"`
}

// Register handles POST /api/v1/auth/register.
func (h AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid register payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}
	if len(req.Password) < 8 {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "password must be at least 8 characters"})
		return
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		logger.Error("hash password", "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to secure password"})
		return
	}

	now := h.now()
	user := models.User{
		Username:  req.Username,
		Password:  string(hashed),
		Email:     strings.TrimSpace(req.Email),
		Bio:       req.Bio,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := h.Users.Create(ctx, user); err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			respondJSON(ctx, w, http.StatusConflict, map[string]string{"error": "username already taken"})
			return
		}
		logger.Error("create user", "username", req.Username, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "failed to create account"})
		return
	}

	respondJSON(ctx, w, http.StatusCreated, map[string]string{"message": "user registered successfully"})
}

// Login handles POST /api/v1/auth/login. A successful login returns the
// profile snapshot the client needs before opening its realtime connection.
func (h AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Warn("invalid login payload", "error", err)
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	req.Username = strings.TrimSpace(req.Username)
	if req.Username == "" || req.Password == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username and password are required"})
		return
	}

	user, err := h.Users.FindByUsername(ctx, req.Username)
	if err != nil {
		logger.Warn("login user lookup failed", "username", req.Username, "error", err)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)) != nil {
		logger.Warn("login password mismatch", "username", req.Username)
		respondJSON(ctx, w, http.StatusUnauthorized, map[string]string{"error": "invalid credentials"})
		return
	}

	friends, err := h.Friends.ListFriends(ctx, user.Username)
	if err != nil {
		logger.Error("list friends on login", "username", user.Username, "error", err)
		friends = nil
	}
	if friends == nil {
		friends = []string{}
	}

	respondJSON(ctx, w, http.StatusOK, loginResponse{
		Message: "login successful",
		User: loginProfile{
			Username: user.Username,
			Friends:  friends,
			Points:   user.Points,
		},
	})
}

func (h AuthHandler) now() time.Time {
	if h.NowFunc != nil {
		return h.NowFunc()
	}
	return time.Now().UTC()
}
