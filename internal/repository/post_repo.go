package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/models"
)

const postColumns = `p.id, p.user_id, p.title, p.slug, p.body, p.featured_image, p.published_at,
	p.created_at, p.updated_at, u.name`

// postRepo is the concrete implementation of PostRepository
type postRepo struct {
	db *database.DB
}

// NewPostRepo creates a new post repository
func NewPostRepo(db *database.DB) PostRepository {
	return &postRepo{db: db}
}

// Create inserts a new post
func (r *postRepo) Create(ctx context.Context, post *models.Post) error {
	query := `
		INSERT INTO posts (id, user_id, title, slug, body, featured_image, published_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		post.ID, post.UserID, post.Title, post.Slug, post.Body,
		nullString(post.FeaturedImage), post.PublishedAt,
		post.CreatedAt, post.UpdatedAt,
	)
	if database.IsForeignKeyViolation(err) {
		return ErrMissingReference
	}
	return err
}

// Update writes the editable fields of a post. Owner and slug never change.
func (r *postRepo) Update(ctx context.Context, post *models.Post) error {
	query := `
		UPDATE posts SET title = $1, body = $2, featured_image = $3, published_at = $4, updated_at = $5
		WHERE id = $6
	`
	_, err := r.db.ExecContext(ctx, query,
		post.Title, post.Body, nullString(post.FeaturedImage), post.PublishedAt,
		post.UpdatedAt, post.ID,
	)
	return err
}

// GetByID retrieves a post by ID
func (r *postRepo) GetByID(ctx context.Context, id string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p JOIN users u ON u.id = p.user_id WHERE p.id = $1`
	return r.getOne(ctx, query, id)
}

// GetBySlug retrieves a post by slug
func (r *postRepo) GetBySlug(ctx context.Context, slug string) (*models.Post, error) {
	query := `SELECT ` + postColumns + ` FROM posts p JOIN users u ON u.id = p.user_id WHERE p.slug = $1`
	return r.getOne(ctx, query, slug)
}

func (r *postRepo) getOne(ctx context.Context, query string, arg string) (*models.Post, error) {
	post, err := scanPost(r.db.QueryRowContext(ctx, query, arg))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return post, nil
}

// SlugExists checks if a post already uses the slug
func (r *postRepo) SlugExists(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, "SELECT EXISTS(SELECT 1 FROM posts WHERE slug = $1)", slug).Scan(&exists)
	return exists, err
}

// ListPublished returns one page of published posts, newest publication
// first, and the total number of matches.
func (r *postRepo) ListPublished(ctx context.Context, q models.PostQuery, now time.Time) ([]*models.Post, int, error) {
	where := `p.published_at IS NOT NULL AND p.published_at <= $1`
	args := []interface{}{now}

	if search := strings.TrimSpace(q.Search); search != "" {
		args = append(args, "%"+escapeLike(search)+"%")
		where += ` AND (p.title ILIKE $2 OR p.body ILIKE $2)`
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM posts p WHERE ` + where
	if err := r.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	limitPos := len(args) + 1
	args = append(args, q.Limit, q.Offset)
	query := fmt.Sprintf(
		`SELECT %s FROM posts p JOIN users u ON u.id = p.user_id WHERE %s
		ORDER BY p.published_at DESC, p.id LIMIT $%d OFFSET $%d`,
		postColumns, where, limitPos, limitPos+1,
	)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var posts []*models.Post
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, 0, err
		}
		posts = append(posts, post)
	}

	return posts, total, rows.Err()
}

// Count returns the total number of posts
func (r *postRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM posts").Scan(&count)
	return count, err
}

// Delete removes a post and its comments in one transaction
func (r *postRepo) Delete(ctx context.Context, id string) (bool, error) {
	var deleted bool
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `DELETE FROM comments WHERE post_id = $1`, id); err != nil {
			return err
		}
		result, err := tx.ExecContext(ctx, `DELETE FROM posts WHERE id = $1`, id)
		if err != nil {
			return err
		}
		rows, _ := result.RowsAffected()
		deleted = rows > 0
		return nil
	})
	return deleted, err
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanPost(row rowScanner) (*models.Post, error) {
	var post models.Post
	var featuredImage sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&post.ID, &post.UserID, &post.Title, &post.Slug, &post.Body,
		&featuredImage, &publishedAt, &post.CreatedAt, &post.UpdatedAt, &post.AuthorName,
	)
	if err != nil {
		return nil, err
	}

	post.FeaturedImage = featuredImage.String
	if publishedAt.Valid {
		post.PublishedAt = &publishedAt.Time
	}
	return &post, nil
}

// escapeLike escapes LIKE wildcards so search terms match literally
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}
