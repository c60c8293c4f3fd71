package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"path"
	"strconv"

	"github.com/google/uuid"

	"github.com/momentchat/backend/internal/logging"
	"github.com/momentchat/backend/internal/moments"
	"github.com/momentchat/backend/internal/repositories"
)

const (
	maxImageSize  = 5 << 20
	maxImageCount = 9
)

var allowedImageTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/gif":  ".gif",
}

// MomentHandler exposes the feed over HTTP.
type MomentHandler struct {
	Feed   FeedService
	Images ImageStore
}

// List handles GET /api/v1/moments.
func (h MomentHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	username := r.URL.Query().Get("username")
	if username == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}
	page := queryInt(r, "page", 1)
	limit := queryInt(r, "limit", 10)

	listed, pagination, err := h.Feed.List(ctx, username, page, limit)
	if err != nil {
		h.respondError(ctx, w, "list moments", err)
		return
	}
	if listed == nil {
		listed = []moments.Payload{}
	}

	respondJSON(ctx, w, http.StatusOK, map[string]any{
		"moments":    listed,
		"pagination": pagination,
	})
}

// Create handles POST /api/v1/moments. The request is multipart so posts can
// carry up to nine images alongside the text fields.
func (h MomentHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := logging.FromContext(ctx)

	if err := r.ParseMultipartForm(maxImageCount * maxImageSize); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid multipart form"})
		return
	}

	author := r.FormValue("username")
	content := r.FormValue("content")
	visibility := r.FormValue("visibility")
	if author == "" {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "username is required"})
		return
	}

	var images []string
	if r.MultipartForm != nil {
		files := r.MultipartForm.File["images"]
		if len(files) > maxImageCount {
			respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": fmt.Sprintf("at most %d images allowed", maxImageCount)})
			return
		}
		if len(files) > 0 && h.Images == nil {
			respondJSON(ctx, w, http.StatusServiceUnavailable, map[string]string{"error": "image storage unavailable"})
			return
		}
		for _, header := range files {
			url, err := h.saveImage(ctx, header)
			if err != nil {
				logger.Warn("store moment image", "author", author, "error", err)
				respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": err.Error()})
				return
			}
			images = append(images, url)
		}
	}

	created, err := h.Feed.Create(ctx, author, content, visibility, images)
	if err != nil {
		h.respondError(ctx, w, "create moment", err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, created)
}

// Comment handles POST /api/v1/moments/{momentID}/comments.
func (h MomentHandler) Comment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Username string `json:"username"`
		Content  string `json:"content"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.Feed.AddComment(ctx, req.Username, r.PathValue("momentID"), req.Content)
	if err != nil {
		h.respondError(ctx, w, "add comment", err)
		return
	}

	respondJSON(ctx, w, http.StatusCreated, updated)
}

// Like handles POST /api/v1/moments/{momentID}/like.
func (h MomentHandler) Like(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	updated, err := h.Feed.ToggleLike(ctx, req.Username, r.PathValue("momentID"))
	if err != nil {
		h.respondError(ctx, w, "toggle like", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, updated)
}

// Delete handles DELETE /api/v1/moments/{momentID}.
func (h MomentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		Username string `json:"username"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	if err := h.Feed.Delete(ctx, req.Username, r.PathValue("momentID")); err != nil {
		h.respondError(ctx, w, "delete moment", err)
		return
	}

	respondJSON(ctx, w, http.StatusOK, map[string]string{"message": "moment deleted successfully"})
}

func (h MomentHandler) saveImage(ctx context.Context, header *multipart.FileHeader) (string, error) {
	if header.Size > maxImageSize {
		return "", fmt.Errorf("image %s exceeds the 5MB limit", header.Filename)
	}

	contentType := header.Header.Get("Content-Type")
	ext, ok := allowedImageTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported image type %q", contentType)
	}

	file, err := header.Open()
	if err != nil {
		return "", fmt.Errorf("open upload: %w", err)
	}
	defer file.Close()

	key := path.Join("uploads", "moments", uuid.NewString()+ext)
	return h.Images.Save(ctx, key, file)
}

func (h MomentHandler) respondError(ctx context.Context, w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, repositories.ErrNotFound):
		respondJSON(ctx, w, http.StatusNotFound, map[string]string{"error": "not found"})
	case errors.Is(err, moments.ErrForbidden):
		respondJSON(ctx, w, http.StatusForbidden, map[string]string{"error": "access denied"})
	case errors.Is(err, moments.ErrEmptyContent):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "content is required"})
	case errors.Is(err, moments.ErrBadVisibility):
		respondJSON(ctx, w, http.StatusBadRequest, map[string]string{"error": "unknown visibility"})
	default:
		logging.FromContext(ctx).Error(op, "error", err)
		respondJSON(ctx, w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func queryInt(r *http.Request, key string, fallback int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return fallback
	}
	i, err := strconv.Atoi(value)
	if err != nil || i < 1 {
		return fallback
	}
	return i
}
