package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/momentchat/backend/internal/db"
	"github.com/momentchat/backend/internal/models"
)

// PostgresMessageRepository provides PostgreSQL-backed persistence for chat
// messages.
type PostgresMessageRepository struct {
	pool db.Pool
}

// NewPostgresMessageRepository constructs a message repository backed by PostgreSQL.
func NewPostgresMessageRepository(pool db.Pool) *PostgresMessageRepository {
	return &PostgresMessageRepository{pool: pool}
}

// Create persists an immutable message record. Group messages are stored with
// a NULL recipient.
func (r *PostgresMessageRepository) Create(ctx context.Context, message models.Message) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	recipient := sql.NullString{}
	if message.To != "" {
		recipient = sql.NullString{Valid: true, String: message.To}
	}

	_, err = conn.Exec(ctx, `
        INSERT INTO messages (id, sender, recipient, body, kind, created_at)
        VALUES ($1, $2, $3, $4, $5, $6)
    `, message.ID, message.From, recipient, message.Body, message.Kind, message.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			switch pgErr.Code {
			case "23505":
				return ErrConflict
			case "23503":
				return ErrNotFound
			}
		}
		return fmt.Errorf("insert message: %w", err)
	}

	return nil
}

// ListBetween returns the private conversation between a and b, oldest first.
func (r *PostgresMessageRepository) ListBetween(ctx context.Context, a, b string) ([]models.Message, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT id, sender, recipient, body, kind, created_at
        FROM messages
        WHERE (sender = $1 AND recipient = $2) OR (sender = $2 AND recipient = $1)
        ORDER BY created_at
    `, a, b)
	if err != nil {
		return nil, fmt.Errorf("query private messages: %w", err)
	}
	defer rows.Close()

	var messages []models.Message
	for rows.Next() {
		var (
			message   models.Message
			recipient sql.NullString
		)
		if err := rows.Scan(&message.ID, &message.From, &recipient, &message.Body, &message.Kind, &message.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		if recipient.Valid {
			message.To = recipient.String
		}
		messages = append(messages, message)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate private messages: %w", err)
	}

	return messages, nil
}

var _ MessageRepository = (*PostgresMessageRepository)(nil)
