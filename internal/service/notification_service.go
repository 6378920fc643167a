package service

import (
	"context"
	"fmt"

	"github.com/blog-moderation-api/internal/mail"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/rs/zerolog"
)

// notificationService is the concrete implementation of NotificationService
type notificationService struct {
	repos    *repository.Repositories
	mailer   mail.Mailer
	siteURL  string
	siteName string
	log      zerolog.Logger
}

func newNotificationService(repos *repository.Repositories, mailer mail.Mailer, siteURL, siteName string, log zerolog.Logger) *notificationService {
	return &notificationService{
		repos:    repos,
		mailer:   mailer,
		siteURL:  siteURL,
		siteName: siteName,
		log:      log.With().Str("service", "notification").Logger(),
	}
}

// SendCommentNotification emails the owner of the comment's post. The
// comment, post and both users are loaded fresh; if any of them is gone
// there is nothing to notify and nil is returned. Storage and delivery
// errors are returned so the job is retried; other mailer errors are
// permanent.
func (s *notificationService) SendCommentNotification(ctx context.Context, commentID string) error {
	log := s.log.With().Str("comment_id", commentID).Logger()

	comment, err := s.repos.Comment.GetByID(ctx, commentID)
	if err != nil {
		return fmt.Errorf("failed to load comment: %w", err)
	}
	if comment == nil {
		log.Info().Msg("Comment no longer exists, nothing to notify")
		return nil
	}

	post, err := s.repos.Post.GetByID(ctx, comment.PostID)
	if err != nil {
		return fmt.Errorf("failed to load post: %w", err)
	}
	if post == nil {
		log.Info().Str("post_id", comment.PostID).Msg("Post no longer exists, nothing to notify")
		return nil
	}

	owner, err := s.repos.User.GetByID(ctx, post.UserID)
	if err != nil {
		return fmt.Errorf("failed to load post owner: %w", err)
	}
	author, err := s.repos.User.GetByID(ctx, comment.UserID)
	if err != nil {
		return fmt.Errorf("failed to load comment author: %w", err)
	}
	if owner == nil || author == nil {
		log.Info().Msg("Post owner or comment author no longer exists, nothing to notify")
		return nil
	}

	// Only reachable for jobs queued outside the listener
	if owner.ID == author.ID {
		log.Info().Msg("Comment author owns the post, nothing to notify")
		return nil
	}

	msg, err := mail.RenderCommentPosted(&mail.CommentPostedData{
		OwnerName:     owner.Name,
		OwnerEmail:    owner.Email,
		CommenterName: author.Name,
		PostTitle:     post.Title,
		CommentBody:   comment.Body,
		Approved:      comment.Approved,
		PostURL:       s.siteURL + "/posts/" + post.Slug,
		SiteName:      s.siteName,
	})
	if err != nil {
		return Permanent(fmt.Errorf("failed to render notification: %w", err))
	}

	if err := s.mailer.Send(ctx, msg); err != nil {
		err = fmt.Errorf("failed to send comment notification: %w", err)
		if mail.IsDeliveryError(err) || ctx.Err() != nil {
			return err
		}
		return Permanent(err)
	}

	log.Info().Str("post_id", post.ID).Msg("Comment notification sent")
	return nil
}

// handleJob runs a comment notification job
func (s *notificationService) handleJob(ctx context.Context, job *models.Job) error {
	payload, err := decodeCommentNotification(job)
	if err != nil {
		return Permanent(err)
	}
	return s.SendCommentNotification(ctx, payload.CommentID)
}
