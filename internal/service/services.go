package service

import (
	"context"
	"time"

	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/mail"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/blog-moderation-api/internal/storage"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/rs/zerolog"
)

// CommentService defines the comment lifecycle and visibility operations
type CommentService interface {
	CreateComment(ctx context.Context, actor *models.User, postID string, req *models.CommentRequest) (*models.CommentResponse, error)
	ApproveComment(ctx context.Context, actor *models.User, commentID string) (*models.Comment, error)
	DeleteComment(ctx context.Context, actor *models.User, commentID string) error
	GetThread(ctx context.Context, post *models.Post, viewer *models.User) (*models.CommentThread, error)
}

// PostService defines the interface for post operations
type PostService interface {
	CreatePost(ctx context.Context, actor *models.User, req *models.PostRequest) (*models.Post, error)
	UpdatePost(ctx context.Context, actor *models.User, id string, req *models.PostRequest) (*models.Post, error)
	DeletePost(ctx context.Context, actor *models.User, id string) error
	GetPost(ctx context.Context, viewer *models.User, slug string) (*models.PostDetail, error)
	ListPublished(ctx context.Context, search string, page int) (*models.PostPage, error)
}

// UserService defines the interface for user operations
type UserService interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	DeleteUser(ctx context.Context, actor *models.User, id string) error
}

// NotificationService sends comment notification emails
type NotificationService interface {
	SendCommentNotification(ctx context.Context, commentID string) error
}

// JobService defines the interface for background job management
type JobService interface {
	JobEnqueuer
	RegisterHandler(jobType models.JobType, handler JobHandler)
	RecoverInterrupted(ctx context.Context) error
	// StartProcessor returns once the polling loop is running
	StartProcessor(ctx context.Context)
	StopProcessor()
	RunDueJobs(ctx context.Context) int
	GetJob(ctx context.Context, id string) (*models.JobResponse, error)
	ListFailedJobs(ctx context.Context, limit int) ([]*models.JobResponse, error)
}

// StatsService reports record counts
type StatsService interface {
	GetStats(ctx context.Context) (*models.Stats, error)
}

// Dependencies are the collaborators services need besides repositories
type Dependencies struct {
	Mailer mail.Mailer
	Files  storage.FileStore
	// Now defaults to time.Now
	Now func() time.Time
}

// Services holds all service interfaces
type Services struct {
	Post         PostService
	Comment      CommentService
	User         UserService
	Notification NotificationService
	Job          JobService
	Stats        StatsService
	Events       *EventBus
}

// NewServices creates all services and wires the comment notification
// pipeline: CommentCreated -> notification listener -> job -> dispatcher
func NewServices(repos *repository.Repositories, cfg *config.Config, deps Dependencies, log zerolog.Logger) *Services {
	now := deps.Now
	if now == nil {
		now = time.Now
	}

	validator := validation.NewValidator(cfg.Moderation.CommentMinLength, cfg.Moderation.CommentMaxLength)
	events := NewEventBus(log)

	jobSvc := newJobService(repos.Job, &cfg.Notification, now, log)
	notificationSvc := newNotificationService(repos, deps.Mailer, cfg.Blog.SiteBaseURL, cfg.Mail.FromName, log)
	commentSvc := newCommentService(repos, validator, events, cfg.Moderation.Enabled, now, log)
	postSvc := newPostService(repos, commentSvc, validator, deps.Files, &cfg.Blog, now, log)
	userSvc := newUserService(repos.User, now, log)

	events.Subscribe(NewNotificationListener(jobSvc, log))
	jobSvc.RegisterHandler(models.JobTypeCommentNotification, notificationSvc.handleJob)

	return &Services{
		Post:         postSvc,
		Comment:      commentSvc,
		User:         userSvc,
		Notification: notificationSvc,
		Job:          jobSvc,
		Stats:        newStatsService(repos),
		Events:       events,
	}
}
