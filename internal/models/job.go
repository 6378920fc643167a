package models

import (
	"encoding/json"
	"time"
)

// JobStatus represents the status of a background job
type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

// JobType identifies the handler that runs a job
type JobType string

const (
	JobTypeCommentNotification JobType = "comment_notification"
)

// Job is a unit of background work. Attempts counts started runs; a job is
// never started more than MaxAttempts times, and consecutive runs are at
// least RetryDelay apart.
type Job struct {
	ID          string          `json:"job_id" db:"id"`
	Type        JobType         `json:"type" db:"type"`
	Payload     json.RawMessage `json:"payload" db:"payload"`
	Status      JobStatus       `json:"status" db:"status"`
	Attempts    int             `json:"attempts" db:"attempts"`
	MaxAttempts int             `json:"max_attempts" db:"max_attempts"`
	RetryDelay  time.Duration   `json:"retry_delay" db:"retry_delay_ms"`
	AvailableAt time.Time       `json:"available_at" db:"available_at"`
	LastError   string          `json:"last_error,omitempty" db:"last_error"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time      `json:"completed_at,omitempty" db:"completed_at"`
	FailedAt    *time.Time      `json:"failed_at,omitempty" db:"failed_at"`
}

// JobAttempt records one failed run of a job
type JobAttempt struct {
	JobID     string    `json:"job_id" db:"job_id"`
	Attempt   int       `json:"attempt" db:"attempt"`
	Error     string    `json:"error" db:"error"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// JobResponse is the API response for a job with its failure history
type JobResponse struct {
	Job
	Failures []JobAttempt `json:"failures,omitempty"`
}

// CommentNotificationPayload carries only the comment identity; the job
// reloads the comment when it runs.
type CommentNotificationPayload struct {
	CommentID string `json:"comment_id"`
}
