package repositories

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/momentchat/backend/internal/db"
	"github.com/momentchat/backend/internal/models"
)

// visibilityPredicate selects the moments readable by $1: public posts, the
// viewer's own posts, and friends-only posts from the viewer's friends.
const visibilityPredicate = `
        m.visibility = 'public'
        OR m.author = $1
        OR (m.visibility = 'friends' AND m.author IN (
            SELECT user_b FROM friendships WHERE user_a = $1
        ))`

// PostgresMomentRepository provides PostgreSQL-backed persistence for moments.
type PostgresMomentRepository struct {
	pool db.Pool
}

// NewPostgresMomentRepository constructs a moment repository backed by PostgreSQL.
func NewPostgresMomentRepository(pool db.Pool) *PostgresMomentRepository {
	return &PostgresMomentRepository{pool: pool}
}

// Create persists a moment and its image references in one transaction.
func (r *PostgresMomentRepository) Create(ctx context.Context, moment models.Moment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tx, err := conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin moment transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
        INSERT INTO moments (id, author, content, visibility, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, moment.ID, moment.Author, moment.Content, moment.Visibility, moment.CreatedAt)
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
		return fmt.Errorf("insert moment: %w", err)
	}

	for i, url := range moment.Images {
		if _, err := tx.Exec(ctx, `
            INSERT INTO moment_images (moment_id, position, url)
            VALUES ($1, $2, $3)
        `, moment.ID, i, url); err != nil {
			return fmt.Errorf("insert moment image: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit moment: %w", err)
	}

	return nil
}

// FindByID loads a moment with its images, likes, and comments.
func (r *PostgresMomentRepository) FindByID(ctx context.Context, id string) (models.Moment, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return models.Moment{}, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	row := conn.QueryRow(ctx, `
        SELECT id, author, content, visibility, created_at
        FROM moments
        WHERE id = $1
    `, id)

	var moment models.Moment
	if err := row.Scan(&moment.ID, &moment.Author, &moment.Content, &moment.Visibility, &moment.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Moment{}, ErrNotFound
		}
		return models.Moment{}, fmt.Errorf("select moment: %w", err)
	}

	moments := []models.Moment{moment}
	if err := r.hydrate(ctx, conn, moments); err != nil {
		return models.Moment{}, err
	}

	return moments[0], nil
}

// ListVisible returns the page of moments readable by the viewer, newest
// first, plus the total count matching the visibility predicate.
func (r *PostgresMomentRepository) ListVisible(ctx context.Context, viewer string, page, limit int) ([]models.Moment, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 10
	}

	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	var total int
	if err := conn.QueryRow(ctx, `
        SELECT COUNT(*) FROM moments m WHERE `+visibilityPredicate, viewer).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count visible moments: %w", err)
	}

	rows, err := conn.Query(ctx, `
        SELECT m.id, m.author, m.content, m.visibility, m.created_at
        FROM moments m
        WHERE `+visibilityPredicate+`
        ORDER BY m.created_at DESC
        LIMIT $2 OFFSET $3
    `, viewer, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, fmt.Errorf("query visible moments: %w", err)
	}
	defer rows.Close()

	var moments []models.Moment
	for rows.Next() {
		var moment models.Moment
		if err := rows.Scan(&moment.ID, &moment.Author, &moment.Content, &moment.Visibility, &moment.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan moment: %w", err)
		}
		moments = append(moments, moment)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate visible moments: %w", err)
	}
	rows.Close()

	if err := r.hydrate(ctx, conn, moments); err != nil {
		return nil, 0, err
	}

	return moments, total, nil
}

// AddComment appends a comment to the moment's thread.
func (r *PostgresMomentRepository) AddComment(ctx context.Context, momentID string, comment models.Comment) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	_, err = conn.Exec(ctx, `
        INSERT INTO moment_comments (id, moment_id, username, content, created_at)
        VALUES ($1, $2, $3, $4, $5)
    `, comment.ID, momentID, comment.Username, comment.Content, comment.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return ErrNotFound
		}
		return fmt.Errorf("insert comment: %w", err)
	}

	return nil
}

// AddLike inserts a like and reports whether the row was new.
func (r *PostgresMomentRepository) AddLike(ctx context.Context, momentID string, like models.Like) (bool, error) {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return false, fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        INSERT INTO moment_likes (moment_id, username, created_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (moment_id, username) DO NOTHING
    `, momentID, like.Username, like.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23503" {
			return false, ErrNotFound
		}
		return false, fmt.Errorf("insert like: %w", err)
	}

	return tag.RowsAffected() > 0, nil
}

// RemoveLike deletes the user's like if present.
func (r *PostgresMomentRepository) RemoveLike(ctx context.Context, momentID, username string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `
        DELETE FROM moment_likes WHERE moment_id = $1 AND username = $2
    `, momentID, username); err != nil {
		return fmt.Errorf("delete like: %w", err)
	}

	return nil
}

// Delete removes a moment; images, likes, and comments cascade.
func (r *PostgresMomentRepository) Delete(ctx context.Context, id string) error {
	conn, err := r.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire connection: %w", err)
	}
	defer conn.Release()

	tag, err := conn.Exec(ctx, `
        DELETE FROM moments WHERE id = $1
    `, id)
	if err != nil {
		return fmt.Errorf("delete moment: %w", err)
	}

	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	return nil
}

// hydrate loads images, likes, and comments for the given moments in place.
func (r *PostgresMomentRepository) hydrate(ctx context.Context, conn *pgxpool.Conn, moments []models.Moment) error {
	if len(moments) == 0 {
		return nil
	}

	ids := make([]string, len(moments))
	index := make(map[string]*models.Moment, len(moments))
	for i := range moments {
		ids[i] = moments[i].ID
		index[moments[i].ID] = &moments[i]
	}

	rows, err := conn.Query(ctx, `
        SELECT moment_id, url
        FROM moment_images
        WHERE moment_id = ANY($1)
        ORDER BY moment_id, position
    `, ids)
	if err != nil {
		return fmt.Errorf("query moment images: %w", err)
	}
	for rows.Next() {
		var momentID, url string
		if err := rows.Scan(&momentID, &url); err != nil {
			rows.Close()
			return fmt.Errorf("scan moment image: %w", err)
		}
		if m := index[momentID]; m != nil {
			m.Images = append(m.Images, url)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate moment images: %w", err)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
        SELECT moment_id, username, created_at
        FROM moment_likes
        WHERE moment_id = ANY($1)
        ORDER BY created_at
    `, ids)
	if err != nil {
		return fmt.Errorf("query moment likes: %w", err)
	}
	for rows.Next() {
		var (
			momentID string
			like     models.Like
		)
		if err := rows.Scan(&momentID, &like.Username, &like.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan moment like: %w", err)
		}
		if m := index[momentID]; m != nil {
			m.Likes = append(m.Likes, like)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate moment likes: %w", err)
	}
	rows.Close()

	rows, err = conn.Query(ctx, `
        SELECT moment_id, id, username, content, created_at
        FROM moment_comments
        WHERE moment_id = ANY($1)
        ORDER BY created_at
    `, ids)
	if err != nil {
		return fmt.Errorf("query moment comments: %w", err)
	}
	for rows.Next() {
		var (
			momentID string
			comment  models.Comment
		)
		if err := rows.Scan(&momentID, &comment.ID, &comment.Username, &comment.Content, &comment.CreatedAt); err != nil {
			rows.Close()
			return fmt.Errorf("scan moment comment: %w", err)
		}
		if m := index[momentID]; m != nil {
			m.Comments = append(m.Comments, comment)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate moment comments: %w", err)
	}
	rows.Close()

	return nil
}

var _ MomentRepository = (*PostgresMomentRepository)(nil)
