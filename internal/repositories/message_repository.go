package repositories

import (
	"context"

	"github.com/momentchat/backend/internal/models"
)

// MessageRepository defines persistence for chat messages.
type MessageRepository interface {
	Create(ctx context.Context, message models.Message) error
	// ListBetween returns every private message exchanged between the two
	// users in either direction, oldest first.
	ListBetween(ctx context.Context, a, b string) ([]models.Message, error)
}
