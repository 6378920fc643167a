package service

import (
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/rs/zerolog"
)

// maxStripPasses bounds nested entity decoding in cleanBody
const maxStripPasses = 8

// Messages returned to the commenter
const (
	MessageCommentPending  = "Your comment has been submitted and is awaiting approval."
	MessageCommentApproved = "Your comment has been posted successfully!"
)

// commentService is the concrete implementation of CommentService
type commentService struct {
	repos      *repository.Repositories
	validator  *validation.Validator
	events     *EventBus
	moderation bool
	strip      *bluemonday.Policy
	now        func() time.Time
	log        zerolog.Logger
}

// newCommentService creates the comment lifecycle manager. When moderation
// is true new comments start pending.
func newCommentService(repos *repository.Repositories, validator *validation.Validator, events *EventBus,
	moderation bool, now func() time.Time, log zerolog.Logger) *commentService {
	return &commentService{
		repos:      repos,
		validator:  validator,
		events:     events,
		moderation: moderation,
		strip:      bluemonday.StrictPolicy(),
		now:        now,
		log:        log.With().Str("service", "comment").Logger(),
	}
}

// CreateComment stores a comment by actor on the post and publishes
// CommentCreated before returning
func (s *commentService) CreateComment(ctx context.Context, actor *models.User, postID string, req *models.CommentRequest) (*models.CommentResponse, error) {
	if !CanCreateComment(actor) {
		return nil, ErrUnauthenticated
	}

	now := s.now()
	post, err := s.repos.Post.GetByID(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil || !post.VisibleTo(actor, now) {
		return nil, ErrNotFound
	}

	body := s.cleanBody(req.Body)
	if err := newValidationErrors(s.validator.ValidateComment(body)); err != nil {
		return nil, err
	}

	comment := &models.Comment{
		ID:         uuid.New().String(),
		PostID:     post.ID,
		UserID:     actor.ID,
		Body:       body,
		Approved:   !s.moderation,
		CreatedAt:  now,
		UpdatedAt:  now,
		AuthorName: actor.Name,
	}

	if err := s.repos.Comment.Create(ctx, comment); err != nil {
		if errors.Is(err, repository.ErrMissingReference) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to create comment: %w", err)
	}

	s.log.Info().
		Str("comment_id", comment.ID).
		Str("post_id", post.ID).
		Str("user_id", actor.ID).
		Str("state", string(comment.State())).
		Msg("Comment created")

	// The comment is stored; a lost notification is tolerated
	event := &models.CommentCreatedEvent{
		CommentID: comment.ID,
		Comment:   comment,
		Post:      post,
		Author:    actor,
	}
	if err := s.events.PublishCommentCreated(ctx, event); err != nil {
		s.log.Error().Err(err).Str("comment_id", comment.ID).Msg("Failed to publish CommentCreated")
	}

	message := MessageCommentApproved
	if !comment.Approved {
		message = MessageCommentPending
	}
	return &models.CommentResponse{Comment: comment, Message: message}, nil
}

// ApproveComment moves a pending comment to approved. Approving an approved
// comment succeeds without writing. No event is published.
func (s *commentService) ApproveComment(ctx context.Context, actor *models.User, commentID string) (*models.Comment, error) {
	comment, post, err := s.loadCommentWithPost(ctx, commentID)
	if err != nil {
		return nil, err
	}

	if !CanApproveComment(actor, comment, post) {
		return nil, denied(actor)
	}

	if comment.Approved {
		return comment, nil
	}

	ok, err := s.repos.Comment.Approve(ctx, comment.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to approve comment: %w", err)
	}
	if !ok {
		return nil, ErrNotFound
	}

	comment.Approved = true
	comment.UpdatedAt = s.now()

	s.log.Info().
		Str("comment_id", comment.ID).
		Str("post_id", post.ID).
		Str("approved_by", actor.ID).
		Msg("Comment approved")

	return comment, nil
}

// DeleteComment permanently removes a comment
func (s *commentService) DeleteComment(ctx context.Context, actor *models.User, commentID string) error {
	comment, post, err := s.loadCommentWithPost(ctx, commentID)
	if err != nil {
		return err
	}

	if !CanDeleteComment(actor, comment, post) {
		return denied(actor)
	}

	ok, err := s.repos.Comment.Delete(ctx, comment.ID)
	if err != nil {
		return fmt.Errorf("failed to delete comment: %w", err)
	}
	if !ok {
		return ErrNotFound
	}

	s.log.Info().
		Str("comment_id", comment.ID).
		Str("post_id", post.ID).
		Str("deleted_by", actor.ID).
		Msg("Comment deleted")
	return nil
}

// GetThread loads the comments viewer may see on post and partitions them
func (s *commentService) GetThread(ctx context.Context, post *models.Post, viewer *models.User) (*models.CommentThread, error) {
	approved := true
	comments, err := s.repos.Comment.ListByPost(ctx, post.ID, models.CommentFilter{Approved: &approved})
	if err != nil {
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}

	if viewer != nil {
		pending := false
		filter := models.CommentFilter{Approved: &pending}
		if !post.IsOwnedBy(viewer) {
			filter.UserID = viewer.ID
		}
		extra, err := s.repos.Comment.ListByPost(ctx, post.ID, filter)
		if err != nil {
			return nil, fmt.Errorf("failed to list pending comments: %w", err)
		}
		comments = append(comments, extra...)
	}

	return ResolveThread(post, viewer, comments), nil
}

func (s *commentService) loadCommentWithPost(ctx context.Context, commentID string) (*models.Comment, *models.Post, error) {
	comment, err := s.repos.Comment.GetByID(ctx, commentID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load comment: %w", err)
	}
	if comment == nil {
		return nil, nil, ErrNotFound
	}

	post, err := s.repos.Post.GetByID(ctx, comment.PostID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		return nil, nil, ErrNotFound
	}
	return comment, post, nil
}

// cleanBody strips markup and surrounding whitespace from a submitted body.
// Entities are decoded between passes so escaped tags are stripped too; a
// body that never settles is stored in its escaped form.
func (s *commentService) cleanBody(body string) string {
	for i := 0; i < maxStripPasses; i++ {
		next := html.UnescapeString(s.strip.Sanitize(body))
		if next == body {
			return strings.TrimSpace(body)
		}
		body = next
	}
	return strings.TrimSpace(s.strip.Sanitize(body))
}
