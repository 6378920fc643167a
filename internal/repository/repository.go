package repository

import (
	"context"
	"errors"
	"time"

	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/models"
)

// ErrMissingReference is returned when an insert points at a post or user
// that no longer exists.
var ErrMissingReference = errors.New("referenced record does not exist")

// UserRepository defines the interface for user data operations
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	Exists(ctx context.Context, id string) (bool, error)
	Count(ctx context.Context) (int, error)
	// Delete removes the user together with their posts, the comments on
	// those posts and every comment they wrote, atomically.
	Delete(ctx context.Context, id string) (bool, error)
}

// PostRepository defines the interface for post data operations
type PostRepository interface {
	Create(ctx context.Context, post *models.Post) error
	Update(ctx context.Context, post *models.Post) error
	GetByID(ctx context.Context, id string) (*models.Post, error)
	GetBySlug(ctx context.Context, slug string) (*models.Post, error)
	SlugExists(ctx context.Context, slug string) (bool, error)
	ListPublished(ctx context.Context, q models.PostQuery, now time.Time) ([]*models.Post, int, error)
	Count(ctx context.Context) (int, error)
	// Delete removes the post and its comments atomically
	Delete(ctx context.Context, id string) (bool, error)
}

// CommentRepository defines the interface for comment data operations
type CommentRepository interface {
	Create(ctx context.Context, comment *models.Comment) error
	GetByID(ctx context.Context, id string) (*models.Comment, error)
	// Approve sets approved = true. It reports false when the comment
	// does not exist; approving an approved comment succeeds.
	Approve(ctx context.Context, id string) (bool, error)
	Delete(ctx context.Context, id string) (bool, error)
	// ListByPost returns matching comments newest first with AuthorName set
	ListByPost(ctx context.Context, postID string, filter models.CommentFilter) ([]*models.Comment, error)
	CountApprovedByPosts(ctx context.Context, postIDs []string) (map[string]int, error)
	Count(ctx context.Context) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// JobRepository defines the interface for job data operations
type JobRepository interface {
	Create(ctx context.Context, job *models.Job) error
	Update(ctx context.Context, job *models.Job) error
	GetByID(ctx context.Context, id string) (*models.Job, error)
	// GetDueJobs returns pending jobs whose available_at is not after now
	GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error)
	// MarkJobAsProcessing atomically claims a due pending job and counts
	// the attempt. It reports false if another worker got there first or
	// the job has no attempts left.
	MarkJobAsProcessing(ctx context.Context, jobID string, now time.Time) (bool, error)
	// RecoverInterrupted returns jobs left in processing by a previous
	// process to pending, or fails them when no attempts remain.
	RecoverInterrupted(ctx context.Context, now time.Time) (int, error)
	ListFailed(ctx context.Context, limit int) ([]*models.Job, error)
	CountByStatus(ctx context.Context, status models.JobStatus) (int, error)
	AddAttempt(ctx context.Context, attempt *models.JobAttempt) error
	GetAttempts(ctx context.Context, jobID string) ([]models.JobAttempt, error)
}

// Repositories holds all repository interfaces
type Repositories struct {
	User    UserRepository
	Post    PostRepository
	Comment CommentRepository
	Job     JobRepository
}

// New creates all repositories with the given database connection
func New(db *database.DB) *Repositories {
	return &Repositories{
		User:    NewUserRepo(db),
		Post:    NewPostRepo(db),
		Comment: NewCommentRepo(db),
		Job:     NewJobRepo(db),
	}
}
