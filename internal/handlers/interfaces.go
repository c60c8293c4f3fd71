package handlers

import (
	"context"
	"io"

	"github.com/momentchat/backend/internal/models"
	"github.com/momentchat/backend/internal/moments"
)

// UserStore captures the persistence operations required by the auth and
// profile handlers.
type UserStore interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateProfile(ctx context.Context, username, email, bio string) error
}

// FriendLister exposes the friend list pushed back on login.
type FriendLister interface {
	ListFriends(ctx context.Context, username string) ([]string, error)
}

// FeedService captures the feed operations exposed over HTTP.
type FeedService interface {
	List(ctx context.Context, username string, page, limit int) ([]moments.Payload, moments.Pagination, error)
	Create(ctx context.Context, author, content, visibility string, images []string) (moments.Payload, error)
	AddComment(ctx context.Context, username, momentID, content string) (moments.Payload, error)
	ToggleLike(ctx context.Context, username, momentID string) (moments.Payload, error)
	Delete(ctx context.Context, username, momentID string) error
}

// ImageStore persists uploaded moment images and returns their public URLs.
type ImageStore interface {
	Save(ctx context.Context, name string, r io.Reader) (string, error)
}
