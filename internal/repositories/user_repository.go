package repositories

import (
	"context"
	"time"

	"github.com/momentchat/backend/internal/models"
)

// UserRepository defines the data access contract for user accounts.
type UserRepository interface {
	Create(ctx context.Context, user models.User) error
	FindByUsername(ctx context.Context, username string) (models.User, error)
	UpdateProfile(ctx context.Context, username, email, bio string) error
	// RecordLogin stamps the start of a live session.
	RecordLogin(ctx context.Context, username string, at time.Time) error
	// Settle folds a finished session into the user's accumulated totals and
	// clears the login timestamp. A user with no open session is left untouched.
	Settle(ctx context.Context, username string, elapsedSeconds, points int64) error
	// AddMessagePoints bumps messages_sent and points by one and returns the
	// new points balance.
	AddMessagePoints(ctx context.Context, username string) (int64, error)
}
