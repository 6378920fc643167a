package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/blog-moderation-api/internal/models"
	"github.com/rs/zerolog"
)

// CommentCreatedListener is notified synchronously after a comment is stored
type CommentCreatedListener interface {
	OnCommentCreated(ctx context.Context, event *models.CommentCreatedEvent) error
}

// EventBus delivers comment events to explicitly subscribed listeners, in
// subscription order, on the caller's goroutine
type EventBus struct {
	mu        sync.RWMutex
	listeners []CommentCreatedListener
	log       zerolog.Logger
}

// NewEventBus creates an event bus with no listeners
func NewEventBus(log zerolog.Logger) *EventBus {
	return &EventBus{log: log.With().Str("component", "events").Logger()}
}

// Subscribe registers a listener for CommentCreated
func (b *EventBus) Subscribe(l CommentCreatedListener) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.listeners = append(b.listeners, l)
}

// Listeners returns the number of registered listeners
func (b *EventBus) Listeners() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// PublishCommentCreated runs every listener. A failing listener does not
// stop the others; their errors are joined.
func (b *EventBus) PublishCommentCreated(ctx context.Context, event *models.CommentCreatedEvent) error {
	b.mu.RLock()
	listeners := append([]CommentCreatedListener(nil), b.listeners...)
	b.mu.RUnlock()

	var errs []error
	for _, l := range listeners {
		if err := l.OnCommentCreated(ctx, event); err != nil {
			b.log.Error().Err(err).Str("comment_id", event.CommentID).Msg("CommentCreated listener failed")
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// JobEnqueuer schedules background work
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType models.JobType, payload interface{}) (*models.Job, error)
}

// notificationListener queues an email to the post owner for each new
// comment not written by the owner
type notificationListener struct {
	jobs JobEnqueuer
	log  zerolog.Logger
}

// NewNotificationListener creates the listener that feeds the notification
// dispatcher
func NewNotificationListener(jobs JobEnqueuer, log zerolog.Logger) CommentCreatedListener {
	return &notificationListener{
		jobs: jobs,
		log:  log.With().Str("component", "notification_listener").Logger(),
	}
}

func (l *notificationListener) OnCommentCreated(ctx context.Context, event *models.CommentCreatedEvent) error {
	if event.Comment == nil || event.Post == nil {
		return fmt.Errorf("comment created event %s is missing its comment or post", event.CommentID)
	}

	if event.Comment.UserID == event.Post.UserID {
		l.log.Debug().Str("comment_id", event.CommentID).Msg("Owner commented on own post, no notification")
		return nil
	}

	job, err := l.jobs.Enqueue(ctx, models.JobTypeCommentNotification,
		models.CommentNotificationPayload{CommentID: event.CommentID})
	if err != nil {
		return fmt.Errorf("failed to enqueue comment notification: %w", err)
	}

	l.log.Info().
		Str("comment_id", event.CommentID).
		Str("job_id", job.ID).
		Msg("Comment notification queued")
	return nil
}

func decodeCommentNotification(job *models.Job) (*models.CommentNotificationPayload, error) {
	var payload models.CommentNotificationPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("invalid comment notification payload: %w", err)
	}
	if payload.CommentID == "" {
		return nil, errors.New("comment notification payload has no comment_id")
	}
	return &payload, nil
}
