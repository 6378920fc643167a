package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/blog-moderation-api/internal/mail"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/service"
)

func TestNotificationListener_SuppressesSelfNotification(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Other")
	post := f.post(t, owner, "hello", true)

	if _, err := f.svc.Comment.CreateComment(context.Background(), owner, post.ID, &models.CommentRequest{Body: "Thanks all"}); err != nil {
		t.Fatalf("owner CreateComment() error = %v", err)
	}
	if jobs := f.notificationJobs(); len(jobs) != 0 {
		t.Fatalf("owner comment queued %d jobs, want 0", len(jobs))
	}

	resp, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	jobs := f.notificationJobs()
	if len(jobs) != 1 {
		t.Fatalf("expected 1 job, got %d", len(jobs))
	}

	var payload models.CommentNotificationPayload
	if err := json.Unmarshal(jobs[0].Payload, &payload); err != nil {
		t.Fatalf("payload: %v", err)
	}
	if payload.CommentID != resp.Comment.ID {
		t.Errorf("payload comment_id = %s, want %s", payload.CommentID, resp.Comment.ID)
	}
	if jobs[0].MaxAttempts != 3 || jobs[0].RetryDelay != 60*time.Second {
		t.Errorf("job policy = %d attempts / %s", jobs[0].MaxAttempts, jobs[0].RetryDelay)
	}
}

func TestNotificationListener_SuppressedWithModerationOff(t *testing.T) {
	f := newFixture(t, false)
	owner := f.user(t, "owner", "Owner")
	post := f.post(t, owner, "hello", true)

	for i := 0; i < 3; i++ {
		if _, err := f.svc.Comment.CreateComment(context.Background(), owner, post.ID, &models.CommentRequest{Body: "Owner reply"}); err != nil {
			t.Fatalf("CreateComment() error = %v", err)
		}
	}
	if jobs := f.notificationJobs(); len(jobs) != 0 {
		t.Errorf("expected no jobs, got %d", len(jobs))
	}
}

func TestNotificationJob_SendsEmail(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Grace")
	post := f.post(t, owner, "hello", true)

	if _, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if len(f.mailer.Messages()) != 0 {
		t.Fatal("mail must not be sent in the request path")
	}

	if started := f.svc.Job.RunDueJobs(context.Background()); started != 1 {
		t.Fatalf("RunDueJobs() started %d, want 1", started)
	}

	sent := f.mailer.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	msg := sent[0]
	if msg.To != owner.Email {
		t.Errorf("To = %s, want %s", msg.To, owner.Email)
	}
	if msg.Subject != "New Comment on Your Post: "+post.Title {
		t.Errorf("Subject = %q", msg.Subject)
	}
	for _, want := range []string{"Grace", "Great post!", "awaiting your approval", "http://blog.test/posts/hello"} {
		if !strings.Contains(msg.TextBody, want) {
			t.Errorf("text body missing %q", want)
		}
	}

	job := f.notificationJobs()[0]
	if job.Status != models.JobStatusCompleted || job.Attempts != 1 {
		t.Errorf("job = %s after %d attempts", job.Status, job.Attempts)
	}
}

func TestNotificationJob_ApprovedBeforeSendOmitsApprovalLine(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Other")
	post := f.post(t, owner, "hello", true)

	resp, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if _, err := f.svc.Comment.ApproveComment(context.Background(), owner, resp.Comment.ID); err != nil {
		t.Fatalf("ApproveComment() error = %v", err)
	}

	f.svc.Job.RunDueJobs(context.Background())

	sent := f.mailer.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if strings.Contains(sent[0].TextBody, "awaiting your approval") {
		t.Error("approval line should reflect the state at send time")
	}
}

func TestNotificationJob_RetryContract(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Other")
	post := f.post(t, owner, "hello", true)

	f.mailer.SendFunc = func(ctx context.Context, msg *mail.Message) error {
		return &mail.DeliveryError{To: msg.To, Err: errors.New("relay unavailable")}
	}

	if _, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	jobID := f.notificationJobs()[0].ID
	ctx := context.Background()

	var attemptTimes []time.Time
	for attempt := 1; attempt <= 3; attempt++ {
		if started := f.svc.Job.RunDueJobs(ctx); started != 1 {
			t.Fatalf("attempt %d: started %d jobs, want 1", attempt, started)
		}
		attemptTimes = append(attemptTimes, f.clock.Now())

		// Not due again before the backoff elapses
		f.clock.Advance(59 * time.Second)
		if started := f.svc.Job.RunDueJobs(ctx); started != 0 {
			t.Fatalf("attempt %d: job ran again before 60s", attempt)
		}
		f.clock.Advance(time.Second)
	}

	// A fourth attempt never happens
	f.clock.Advance(time.Hour)
	if started := f.svc.Job.RunDueJobs(ctx); started != 0 {
		t.Fatalf("job attempted a 4th time")
	}

	if calls := f.mailer.SendCalls(); calls != 3 {
		t.Errorf("mailer called %d times, want 3", calls)
	}
	for i := 1; i < len(attemptTimes); i++ {
		if gap := attemptTimes[i].Sub(attemptTimes[i-1]); gap < 60*time.Second {
			t.Errorf("gap between attempts %d and %d = %s", i, i+1, gap)
		}
	}

	resp, err := f.svc.Job.GetJob(ctx, jobID)
	if err != nil {
		t.Fatalf("GetJob() error = %v", err)
	}
	if resp.Status != models.JobStatusFailed || resp.Attempts != 3 || resp.FailedAt == nil {
		t.Errorf("job = %s, attempts %d, failed_at %v", resp.Status, resp.Attempts, resp.FailedAt)
	}
	if len(resp.Failures) != 3 || !strings.Contains(resp.Failures[2].Error, "relay unavailable") {
		t.Errorf("failures = %+v", resp.Failures)
	}

	failed, err := f.svc.Job.ListFailedJobs(ctx, 10)
	if err != nil || len(failed) != 1 || failed[0].ID != jobID {
		t.Errorf("ListFailedJobs() = %+v, %v", failed, err)
	}
}

func TestNotificationJob_RecoversAfterTransientFailure(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Other")
	post := f.post(t, owner, "hello", true)

	failures := 1
	f.mailer.SendFunc = func(ctx context.Context, msg *mail.Message) error {
		if failures > 0 {
			failures--
			return &mail.DeliveryError{To: msg.To, Err: errors.New("timeout")}
		}
		return nil
	}

	if _, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	f.svc.Job.RunDueJobs(context.Background())
	f.clock.Advance(60 * time.Second)
	f.svc.Job.RunDueJobs(context.Background())

	job := f.notificationJobs()[0]
	if job.Status != models.JobStatusCompleted || job.Attempts != 2 {
		t.Errorf("job = %s after %d attempts, want completed after 2", job.Status, job.Attempts)
	}
	if len(f.mailer.Messages()) != 1 {
		t.Errorf("expected exactly one delivered email, got %d", len(f.mailer.Messages()))
	}
}

func TestNotificationJob_MailerErrorClassification(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus models.JobStatus
	}{
		{"delivery failure retries", &mail.DeliveryError{To: "owner@example.com", Err: errors.New("421 busy")}, models.JobStatusPending},
		{"wrapped delivery failure retries", fmt.Errorf("relay: %w", &mail.DeliveryError{Err: errors.New("reset")}), models.JobStatusPending},
		{"malformed message is final", errors.New("invalid recipient header"), models.JobStatusFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			owner := f.user(t, "owner", "Owner")
			other := f.user(t, "other", "Other")
			post := f.post(t, owner, "hello", true)

			f.mailer.SendFunc = func(ctx context.Context, msg *mail.Message) error {
				return tt.err
			}
			if _, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"}); err != nil {
				t.Fatalf("CreateComment() error = %v", err)
			}

			f.svc.Job.RunDueJobs(context.Background())

			job := f.notificationJobs()[0]
			if job.Status != tt.wantStatus || job.Attempts != 1 {
				t.Errorf("job = %s after %d attempts, want %s after 1", job.Status, job.Attempts, tt.wantStatus)
			}
		})
	}
}

func TestNotificationJob_MissingDependenciesAreBenign(t *testing.T) {
	tests := []struct {
		name   string
		remove func(f *fixture, post *models.Post, comment *models.Comment, author *models.User)
	}{
		{"comment deleted", func(f *fixture, _ *models.Post, c *models.Comment, _ *models.User) {
			f.repos.Comment.Delete(context.Background(), c.ID)
		}},
		{"post deleted", func(f *fixture, p *models.Post, _ *models.Comment, _ *models.User) {
			f.repos.Post.Delete(context.Background(), p.ID)
		}},
		{"author deleted", func(f *fixture, _ *models.Post, _ *models.Comment, u *models.User) {
			f.repos.User.Delete(context.Background(), u.ID)
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, true)
			owner := f.user(t, "owner", "Owner")
			other := f.user(t, "other", "Other")
			post := f.post(t, owner, "hello", true)

			resp, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"})
			if err != nil {
				t.Fatalf("CreateComment() error = %v", err)
			}
			tt.remove(f, post, resp.Comment, other)

			f.svc.Job.RunDueJobs(context.Background())

			job := f.notificationJobs()[0]
			if job.Status != models.JobStatusCompleted {
				t.Errorf("job status = %s, want completed", job.Status)
			}
			if f.mailer.SendCalls() != 0 {
				t.Error("no email should be sent")
			}
		})
	}
}

func TestJobService_UnregisteredTypeFailsPermanently(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	job, err := f.svc.Job.Enqueue(ctx, models.JobType("unknown"), map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	f.svc.Job.RunDueJobs(ctx)

	got, _ := f.svc.Job.GetJob(ctx, job.ID)
	if got.Status != models.JobStatusFailed || got.Attempts != 1 {
		t.Errorf("job = %s after %d attempts, want failed after 1", got.Status, got.Attempts)
	}
}

func TestJobService_MalformedPayloadFailsPermanently(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	job, err := f.svc.Job.Enqueue(ctx, models.JobTypeCommentNotification, map[string]string{})
	if err != nil {
		t.Fatalf("Enqueue() error = %v", err)
	}

	f.svc.Job.RunDueJobs(ctx)

	got, _ := f.svc.Job.GetJob(ctx, job.ID)
	if got.Status != models.JobStatusFailed || got.Attempts != 1 {
		t.Errorf("job = %s after %d attempts, want failed after 1", got.Status, got.Attempts)
	}
}

func TestJobService_HandlerPanicCountsAsFailure(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.svc.Job.RegisterHandler("panics", func(ctx context.Context, job *models.Job) error {
		panic("boom")
	})
	job, _ := f.svc.Job.Enqueue(ctx, "panics", nil)

	f.svc.Job.RunDueJobs(ctx)

	got, _ := f.svc.Job.GetJob(ctx, job.ID)
	if got.Status != models.JobStatusPending || got.Attempts != 1 {
		t.Errorf("job = %s after %d attempts, want pending retry after 1", got.Status, got.Attempts)
	}
	if !strings.Contains(got.LastError, "panicked") {
		t.Errorf("last error = %q", got.LastError)
	}
}

func TestJobService_PermanentErrorSkipsRetries(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()

	f.svc.Job.RegisterHandler("permanent", func(ctx context.Context, job *models.Job) error {
		return service.Permanent(errors.New("bad input"))
	})
	job, _ := f.svc.Job.Enqueue(ctx, "permanent", nil)

	f.svc.Job.RunDueJobs(ctx)

	got, _ := f.svc.Job.GetJob(ctx, job.ID)
	if got.Status != models.JobStatusFailed || got.Attempts != 1 {
		t.Errorf("job = %s after %d attempts, want failed after 1", got.Status, got.Attempts)
	}
}

func TestJobService_RecoverInterrupted(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	started := f.clock.Now()

	runs := 0
	f.svc.Job.RegisterHandler("x", func(ctx context.Context, job *models.Job) error {
		runs++
		return nil
	})

	retryable := &models.Job{ID: "retryable", Type: "x", Status: models.JobStatusProcessing, Attempts: 1, MaxAttempts: 3,
		RetryDelay: time.Minute, AvailableAt: started, StartedAt: &started, CreatedAt: started}
	exhausted := &models.Job{ID: "exhausted", Type: "x", Status: models.JobStatusProcessing, Attempts: 3, MaxAttempts: 3,
		RetryDelay: time.Minute, AvailableAt: started, StartedAt: &started, CreatedAt: started}
	f.repos.Job.Create(ctx, retryable)
	f.repos.Job.Create(ctx, exhausted)

	// The process dies mid-attempt and restarts a few seconds later
	f.clock.Advance(5 * time.Second)
	if err := f.svc.Job.RecoverInterrupted(ctx); err != nil {
		t.Fatalf("RecoverInterrupted() error = %v", err)
	}

	got, _ := f.repos.Job.GetByID(ctx, "retryable")
	if got.Status != models.JobStatusPending {
		t.Errorf("retryable job status = %s, want pending", got.Status)
	}
	if want := started.Add(time.Minute); !got.AvailableAt.Equal(want) {
		t.Errorf("retryable job available at %v, want %v", got.AvailableAt, want)
	}
	if got, _ := f.repos.Job.GetByID(ctx, "exhausted"); got.Status != models.JobStatusFailed {
		t.Errorf("exhausted job status = %s, want failed", got.Status)
	}

	if n := f.svc.Job.RunDueJobs(ctx); n != 0 || runs != 0 {
		t.Fatalf("attempt 2 ran %d job(s) only 5s after attempt 1", n)
	}

	f.clock.Advance(55 * time.Second)
	if n := f.svc.Job.RunDueJobs(ctx); n != 1 || runs != 1 {
		t.Fatalf("expected the retry once the delay elapsed, ran %d", n)
	}

	// Long-dead processes requeue for immediate pickup
	late := f.clock.Now().Add(-time.Hour)
	stale := &models.Job{ID: "stale", Type: "x", Status: models.JobStatusProcessing, Attempts: 1, MaxAttempts: 3,
		RetryDelay: time.Minute, AvailableAt: late, StartedAt: &late, CreatedAt: late}
	f.repos.Job.Create(ctx, stale)
	f.svc.Job.RecoverInterrupted(ctx)
	if got, _ := f.repos.Job.GetByID(ctx, "stale"); !got.AvailableAt.Equal(f.clock.Now()) {
		t.Errorf("stale job available at %v, want now %v", got.AvailableAt, f.clock.Now())
	}
}

func TestJobService_ProcessorLifecycle(t *testing.T) {
	f := newFixture(t, true)
	owner := f.user(t, "owner", "Owner")
	other := f.user(t, "other", "Other")
	post := f.post(t, owner, "hello", true)

	if _, err := f.svc.Comment.CreateComment(context.Background(), other, post.ID, &models.CommentRequest{Body: "Great post!"}); err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}

	stop := func() {
		stopped := make(chan struct{})
		go func() {
			f.svc.Job.StopProcessor()
			close(stopped)
		}()
		select {
		case <-stopped:
		case <-time.After(5 * time.Second):
			t.Fatal("processor did not stop")
		}
	}

	// Stopping right after starting leaves nothing claimed
	f.svc.Job.StartProcessor(context.Background())
	stop()
	if job := f.notificationJobs()[0]; job.Status != models.JobStatusPending || job.Attempts != 0 {
		t.Fatalf("job = %s after %d attempts, want untouched", job.Status, job.Attempts)
	}

	f.svc.Job.StartProcessor(context.Background())
	f.svc.Job.StartProcessor(context.Background())

	deadline := time.Now().Add(5 * time.Second)
	for len(f.mailer.Messages()) == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	stop()

	if len(f.mailer.Messages()) != 1 {
		t.Errorf("expected the processor to deliver 1 email, got %d", len(f.mailer.Messages()))
	}
	if job := f.notificationJobs()[0]; job.Status != models.JobStatusCompleted || job.Attempts != 1 {
		t.Errorf("job = %s after %d attempts, want completed after 1", job.Status, job.Attempts)
	}

	// A stopped processor can be stopped again
	stop()
}

// User U2 comments on U1's published post with moderation on; U1 sees it in
// the queue, approves it, and receives exactly one email.
func TestCommentModerationScenario(t *testing.T) {
	f := newFixture(t, true)
	ctx := context.Background()
	u1 := f.user(t, "u1", "Author")
	u2 := f.user(t, "u2", "Reader")
	post := f.post(t, u1, "my-post", true)

	resp, err := f.svc.Comment.CreateComment(ctx, u2, post.ID, &models.CommentRequest{Body: "Great post!"})
	if err != nil {
		t.Fatalf("CreateComment() error = %v", err)
	}
	if resp.Comment.Approved {
		t.Fatal("comment should start pending")
	}

	detail, err := f.svc.Post.GetPost(ctx, u1, post.Slug)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if detail.Thread.PendingCount != 1 || detail.Thread.Count != 0 || detail.Post.CommentCount != 0 {
		t.Fatalf("before approval: pending %d, count %d", detail.Thread.PendingCount, detail.Thread.Count)
	}

	if _, err := f.svc.Comment.ApproveComment(ctx, u1, resp.Comment.ID); err != nil {
		t.Fatalf("ApproveComment() error = %v", err)
	}

	detail, err = f.svc.Post.GetPost(ctx, u1, post.Slug)
	if err != nil {
		t.Fatalf("GetPost() error = %v", err)
	}
	if detail.Thread.PendingCount != 0 || detail.Thread.Count != 1 || !sameIDs(detail.Thread.Comments, resp.Comment.ID) {
		t.Fatalf("after approval: pending %d, count %d, feed %v",
			detail.Thread.PendingCount, detail.Thread.Count, ids(detail.Thread.Comments))
	}

	if jobs := f.notificationJobs(); len(jobs) != 1 {
		t.Fatalf("expected exactly 1 notification job, got %d", len(jobs))
	}

	f.svc.Job.RunDueJobs(ctx)
	f.clock.Advance(time.Hour)
	f.svc.Job.RunDueJobs(ctx)

	sent := f.mailer.Messages()
	if len(sent) != 1 {
		t.Fatalf("expected 1 email, got %d", len(sent))
	}
	if sent[0].To != u1.Email || !strings.Contains(sent[0].Subject, post.Title) {
		t.Errorf("email to %s with subject %q", sent[0].To, sent[0].Subject)
	}
}
