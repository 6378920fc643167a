package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/models"
	"github.com/lib/pq"
)

// commentRepo is the concrete implementation of CommentRepository
type commentRepo struct {
	db *database.DB
}

// NewCommentRepo creates a new comment repository
func NewCommentRepo(db *database.DB) CommentRepository {
	return &commentRepo{db: db}
}

// Create inserts a new comment. A post or author deleted in the meantime
// surfaces as ErrMissingReference.
func (r *commentRepo) Create(ctx context.Context, comment *models.Comment) error {
	query := `
		INSERT INTO comments (id, post_id, user_id, body, approved, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err := r.db.ExecContext(ctx, query,
		comment.ID, comment.PostID, comment.UserID, comment.Body, comment.Approved,
		comment.CreatedAt, comment.UpdatedAt,
	)
	if database.IsForeignKeyViolation(err) {
		return ErrMissingReference
	}
	return err
}

// GetByID retrieves a comment by ID
func (r *commentRepo) GetByID(ctx context.Context, id string) (*models.Comment, error) {
	query := `
		SELECT c.id, c.post_id, c.user_id, c.body, c.approved, c.created_at, c.updated_at, u.name
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.id = $1
	`

	var comment models.Comment
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&comment.ID, &comment.PostID, &comment.UserID, &comment.Body, &comment.Approved,
		&comment.CreatedAt, &comment.UpdatedAt, &comment.AuthorName,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &comment, nil
}

// Approve marks a comment approved. The row counts as matched even when it
// was already approved, so repeated approvals are no-ops rather than misses.
func (r *commentRepo) Approve(ctx context.Context, id string) (bool, error) {
	query := `
		UPDATE comments SET approved = TRUE,
			updated_at = CASE WHEN approved THEN updated_at ELSE NOW() END
		WHERE id = $1
	`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// Delete removes a comment
func (r *commentRepo) Delete(ctx context.Context, id string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM comments WHERE id = $1`, id)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// ListByPost returns a post's comments matching filter, newest first
func (r *commentRepo) ListByPost(ctx context.Context, postID string, filter models.CommentFilter) ([]*models.Comment, error) {
	query := `
		SELECT c.id, c.post_id, c.user_id, c.body, c.approved, c.created_at, c.updated_at, u.name
		FROM comments c JOIN users u ON u.id = c.user_id
		WHERE c.post_id = $1`
	args := []interface{}{postID}

	if filter.Approved != nil {
		args = append(args, *filter.Approved)
		query += fmt.Sprintf(" AND c.approved = $%d", len(args))
	}
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		query += fmt.Sprintf(" AND c.user_id = $%d", len(args))
	}
	query += " ORDER BY c.created_at DESC, c.id DESC"

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var comments []*models.Comment
	for rows.Next() {
		var comment models.Comment
		err := rows.Scan(
			&comment.ID, &comment.PostID, &comment.UserID, &comment.Body, &comment.Approved,
			&comment.CreatedAt, &comment.UpdatedAt, &comment.AuthorName,
		)
		if err != nil {
			return nil, err
		}
		comments = append(comments, &comment)
	}

	return comments, rows.Err()
}

// CountApprovedByPosts returns approved comment counts keyed by post ID.
// Posts without approved comments are absent from the map.
func (r *commentRepo) CountApprovedByPosts(ctx context.Context, postIDs []string) (map[string]int, error) {
	counts := make(map[string]int, len(postIDs))
	if len(postIDs) == 0 {
		return counts, nil
	}

	query := `
		SELECT post_id, COUNT(*) FROM comments
		WHERE approved = TRUE AND post_id = ANY($1)
		GROUP BY post_id
	`
	rows, err := r.db.QueryContext(ctx, query, pq.Array(postIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var postID string
		var count int
		if err := rows.Scan(&postID, &count); err != nil {
			return nil, err
		}
		counts[postID] = count
	}

	return counts, rows.Err()
}

// Count returns the total number of comments
func (r *commentRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments").Scan(&count)
	return count, err
}

// CountPending returns the number of comments awaiting approval
func (r *commentRepo) CountPending(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM comments WHERE approved = FALSE").Scan(&count)
	return count, err
}
