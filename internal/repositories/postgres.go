package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/momentchat/backend/internal/db"
	"github.com/momentchat/backend/internal/models"
)

// PostgresUserRepository provides PostgreSQL-backed persistence for users.
type PostgresUserRepository struct {
	pool db.Pool
}

// NewPostgresUserRepository constructs a user repository backed by PostgreSQL.
func NewPostgresUserRepository(pool db.Pool) *PostgresUserRepository {
	return &PostgresUserRepository{pool: pool}
}

// Create persists a new user record.
func (r *PostgresUserRepository) Create(ctx context.Context, user models.User) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO users (username, password_hash, email, bio, points, messages_sent, online_time, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    `, user.Username, user.Password, user.Email, user.Bio, user.Points, user.MessagesSent, user.OnlineTime, user.CreatedAt, user.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrConflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	return nil
}

// FindByUsername fetches a user by their username.
func (r *PostgresUserRepository) FindByUsername(ctx context.Context, username string) (models.User, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.User{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT username, password_hash, email, bio, points, messages_sent, online_time, login_time, created_at, updated_at
        FROM users
        WHERE username = $1
    `, username)

	var (
		user      models.User
		loginTime *time.Time
	)
	if err := row.Scan(&user.Username, &user.Password, &user.Email, &user.Bio, &user.Points, &user.MessagesSent, &user.OnlineTime, &loginTime, &user.CreatedAt, &user.UpdatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrNotFound
		}
		return models.User{}, fmt.Errorf("select user by username: %w", err)
	}

	if loginTime != nil {
		t := loginTime.UTC()
		user.LoginTime = &t
	}

	return user, nil
}

// UpdateProfile modifies the mutable profile fields of an existing user.
func (r *PostgresUserRepository) UpdateProfile(ctx context.Context, username, email, bio string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET email = $2, bio = $3, updated_at = NOW()
        WHERE username = $1
    `, username, email, bio)
	if err != nil {
		return fmt.Errorf("update user profile: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// RecordLogin stamps the start of a session for the user.
func (r *PostgresUserRepository) RecordLogin(ctx context.Context, username string, at time.Time) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        UPDATE users
        SET login_time = $2, updated_at = NOW()
        WHERE username = $1
    `, username, at.UTC())
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// Settle folds a finished session into the accumulated totals. The login_time
// guard makes the write idempotent: a session can only be settled once even if
// disconnect and logout race.
func (r *PostgresUserRepository) Settle(ctx context.Context, username string, elapsedSeconds, points int64) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        UPDATE users
        SET online_time = online_time + $2,
            points = points + $3,
            login_time = NULL,
            updated_at = NOW()
        WHERE username = $1 AND login_time IS NOT NULL
    `, username, elapsedSeconds, points)
	if err != nil {
		return fmt.Errorf("settle session: %w", err)
	}

	return nil
}

// AddMessagePoints increments the sender's counters and returns the new balance.
func (r *PostgresUserRepository) AddMessagePoints(ctx context.Context, username string) (int64, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        UPDATE users
        SET messages_sent = messages_sent + 1,
            points = points + 1,
            updated_at = NOW()
        WHERE username = $1
        RETURNING points
    `, username)

	var points int64
	if err := row.Scan(&points); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("add message points: %w", err)
	}

	return points, nil
}

// PostgresFriendRepository provides PostgreSQL-backed persistence for the
// friend graph and pending requests.
type PostgresFriendRepository struct {
	pool db.Pool
}

// NewPostgresFriendRepository constructs a friend repository backed by PostgreSQL.
func NewPostgresFriendRepository(pool db.Pool) *PostgresFriendRepository {
	return &PostgresFriendRepository{pool: pool}
}

// AreFriends reports whether the symmetric edge between a and b exists.
func (r *PostgresFriendRepository) AreFriends(ctx context.Context, a, b string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT EXISTS (
            SELECT 1 FROM friendships WHERE user_a = $1 AND user_b = $2
        )
    `, a, b)

	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}

	return exists, nil
}

// ListFriends returns the usernames of everyone the user is friends with.
func (r *PostgresFriendRepository) ListFriends(ctx context.Context, username string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT user_b FROM friendships WHERE user_a = $1 ORDER BY user_b
    `, username)
	if err != nil {
		return nil, fmt.Errorf("query friends: %w", err)
	}
	defer rows.Close()

	var friends []string
	for rows.Next() {
		var friend string
		if err := rows.Scan(&friend); err != nil {
			return nil, fmt.Errorf("scan friend: %w", err)
		}
		friends = append(friends, friend)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friends: %w", err)
	}

	return friends, nil
}

// AddFriendship writes both directions of the edge in one transaction.
func (r *PostgresFriendRepository) AddFriendship(ctx context.Context, a, b string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin friendship transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := insertFriendshipPair(ctx, tx, a, b); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit friendship: %w", err)
	}

	return nil
}

// CreateRequest records a pending edge from requester to receiver.
func (r *PostgresFriendRepository) CreateRequest(ctx context.Context, requester, receiver string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO friend_requests (requester, receiver, created_at)
        VALUES ($1, $2, NOW())
    `, requester, receiver)
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
		return fmt.Errorf("insert friend request: %w", err)
	}

	return nil
}

// ListRequests returns the usernames with a pending request to the receiver.
func (r *PostgresFriendRepository) ListRequests(ctx context.Context, receiver string) ([]string, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	rows, err := conn.Query(ctx, `
        SELECT requester FROM friend_requests WHERE receiver = $1 ORDER BY created_at
    `, receiver)
	if err != nil {
		return nil, fmt.Errorf("query friend requests: %w", err)
	}
	defer rows.Close()

	var requesters []string
	for rows.Next() {
		var requester string
		if err := rows.Scan(&requester); err != nil {
			return nil, fmt.Errorf("scan friend request: %w", err)
		}
		requesters = append(requesters, requester)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate friend requests: %w", err)
	}

	return requesters, nil
}

// AcceptRequest consumes the pending edge and promotes it to a friendship in
// a single transaction. Accepting a request that does not exist is a no-op.
func (r *PostgresFriendRepository) AcceptRequest(ctx context.Context, requester, receiver string) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("begin accept transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
        DELETE FROM friend_requests WHERE requester = $1 AND receiver = $2
    `, requester, receiver)
	if err != nil {
		return false, fmt.Errorf("delete friend request: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return false, tx.Commit(ctx)
	}

	if err := insertFriendshipPair(ctx, tx, requester, receiver); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("commit accept: %w", err)
	}

	return true, nil
}

func insertFriendshipPair(ctx context.Context, tx pgx.Tx, a, b string) error {
	_, err := tx.Exec(ctx, `
        INSERT INTO friendships (user_a, user_b)
        VALUES ($1, $2), ($2, $1)
        ON CONFLICT (user_a, user_b) DO NOTHING
    `, a, b)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert friendship pair: %w", err)
	}
	return nil
}

var _ UserRepository = (*PostgresUserRepository)(nil)
var _ FriendRepository = (*PostgresFriendRepository)(nil)
