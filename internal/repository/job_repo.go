package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/blog-moderation-api/internal/database"
	"github.com/blog-moderation-api/internal/models"
)

const jobColumns = `id, type, payload, status, attempts, max_attempts, retry_delay_ms, available_at,
	last_error, created_at, started_at, completed_at, failed_at`

// jobRepo is the concrete implementation of JobRepository
type jobRepo struct {
	db *database.DB
}

// NewJobRepo creates a new job repository
func NewJobRepo(db *database.DB) JobRepository {
	return &jobRepo{db: db}
}

// Create inserts a new job
func (r *jobRepo) Create(ctx context.Context, job *models.Job) error {
	query := `
		INSERT INTO jobs (id, type, payload, status, attempts, max_attempts, retry_delay_ms,
			available_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := r.db.ExecContext(ctx, query,
		job.ID, job.Type, string(job.Payload), job.Status, job.Attempts, job.MaxAttempts,
		job.RetryDelay.Milliseconds(), job.AvailableAt, job.CreatedAt,
	)
	return err
}

// Update writes job status, schedule and timestamps
func (r *jobRepo) Update(ctx context.Context, job *models.Job) error {
	query := `
		UPDATE jobs SET
			status = $1, attempts = $2, available_at = $3, last_error = $4,
			started_at = $5, completed_at = $6, failed_at = $7
		WHERE id = $8
	`
	_, err := r.db.ExecContext(ctx, query,
		job.Status, job.Attempts, job.AvailableAt, nullString(job.LastError),
		job.StartedAt, job.CompletedAt, job.FailedAt, job.ID,
	)
	return err
}

// GetByID retrieves a job by ID
func (r *jobRepo) GetByID(ctx context.Context, id string) (*models.Job, error) {
	job, err := scanJob(r.db.QueryRowContext(ctx, `SELECT `+jobColumns+` FROM jobs WHERE id = $1`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return job, nil
}

// GetDueJobs retrieves pending jobs that are ready to run, oldest first
func (r *jobRepo) GetDueJobs(ctx context.Context, now time.Time, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'pending' AND available_at <= $1
		ORDER BY available_at, created_at
		LIMIT $2
	`
	return r.queryJobs(ctx, query, now, limit)
}

// MarkJobAsProcessing atomically claims a pending job and counts the attempt
func (r *jobRepo) MarkJobAsProcessing(ctx context.Context, jobID string, now time.Time) (bool, error) {
	query := `
		UPDATE jobs SET status = 'processing', started_at = $1, attempts = attempts + 1
		WHERE id = $2 AND status = 'pending' AND available_at <= $1 AND attempts < max_attempts
	`
	result, err := r.db.ExecContext(ctx, query, now, jobID)
	if err != nil {
		return false, err
	}
	rows, _ := result.RowsAffected()
	return rows > 0, nil
}

// RecoverInterrupted resets jobs a crashed process left in processing. A
// requeued job keeps the retry delay measured from its last start.
func (r *jobRepo) RecoverInterrupted(ctx context.Context, now time.Time) (int, error) {
	var recovered int
	err := r.db.WithTx(ctx, func(tx *sql.Tx) error {
		failed, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'failed', failed_at = $1,
				last_error = COALESCE(last_error, 'interrupted')
			WHERE status = 'processing' AND attempts >= max_attempts
		`, now)
		if err != nil {
			return err
		}
		requeued, err := tx.ExecContext(ctx, `
			UPDATE jobs SET status = 'pending',
				available_at = GREATEST($1, COALESCE(started_at, $1) + retry_delay_ms * INTERVAL '1 millisecond')
			WHERE status = 'processing'
		`, now)
		if err != nil {
			return err
		}
		f, _ := failed.RowsAffected()
		q, _ := requeued.RowsAffected()
		recovered = int(f + q)
		return nil
	})
	return recovered, err
}

// ListFailed returns the most recently failed jobs
func (r *jobRepo) ListFailed(ctx context.Context, limit int) ([]*models.Job, error) {
	query := `
		SELECT ` + jobColumns + ` FROM jobs
		WHERE status = 'failed'
		ORDER BY failed_at DESC
		LIMIT $1
	`
	return r.queryJobs(ctx, query, limit)
}

// CountByStatus returns the number of jobs in the given status
func (r *jobRepo) CountByStatus(ctx context.Context, status models.JobStatus) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM jobs WHERE status = $1", status).Scan(&count)
	return count, err
}

// AddAttempt records a failed run of a job
func (r *jobRepo) AddAttempt(ctx context.Context, attempt *models.JobAttempt) error {
	query := `INSERT INTO job_attempts (job_id, attempt, error, created_at) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, attempt.JobID, attempt.Attempt, attempt.Error, attempt.CreatedAt)
	return err
}

// GetAttempts retrieves the failure history of a job in attempt order
func (r *jobRepo) GetAttempts(ctx context.Context, jobID string) ([]models.JobAttempt, error) {
	query := `SELECT job_id, attempt, error, created_at FROM job_attempts WHERE job_id = $1 ORDER BY attempt`
	rows, err := r.db.QueryContext(ctx, query, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []models.JobAttempt
	for rows.Next() {
		var a models.JobAttempt
		if err := rows.Scan(&a.JobID, &a.Attempt, &a.Error, &a.CreatedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}

	return attempts, rows.Err()
}

func (r *jobRepo) queryJobs(ctx context.Context, query string, args ...interface{}) ([]*models.Job, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []*models.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}

	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*models.Job, error) {
	var job models.Job
	var payload []byte
	var retryDelayMs int64
	var lastError sql.NullString
	var startedAt, completedAt, failedAt sql.NullTime

	err := row.Scan(
		&job.ID, &job.Type, &payload, &job.Status, &job.Attempts, &job.MaxAttempts,
		&retryDelayMs, &job.AvailableAt, &lastError, &job.CreatedAt,
		&startedAt, &completedAt, &failedAt,
	)
	if err != nil {
		return nil, err
	}

	job.Payload = payload
	job.RetryDelay = time.Duration(retryDelayMs) * time.Millisecond
	job.LastError = lastError.String
	if startedAt.Valid {
		job.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		job.CompletedAt = &completedAt.Time
	}
	if failedAt.Valid {
		job.FailedAt = &failedAt.Time
	}
	return &job, nil
}

// helper to convert empty string to NULL
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
