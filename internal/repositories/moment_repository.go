package repositories

import (
	"context"

	"github.com/momentchat/backend/internal/models"
)

// MomentRepository defines persistence for feed posts and their likes,
// comments, and image references.
type MomentRepository interface {
	Create(ctx context.Context, moment models.Moment) error
	FindByID(ctx context.Context, id string) (models.Moment, error)
	// ListVisible returns the page of moments the viewer may read, newest
	// first, along with the total count matching the visibility predicate.
	ListVisible(ctx context.Context, viewer string, page, limit int) ([]models.Moment, int, error)
	AddComment(ctx context.Context, momentID string, comment models.Comment) error
	// AddLike inserts a like and reports whether it was new; a duplicate like
	// by the same user leaves the row untouched.
	AddLike(ctx context.Context, momentID string, like models.Like) (bool, error)
	RemoveLike(ctx context.Context, momentID, username string) error
	Delete(ctx context.Context, id string) error
}
