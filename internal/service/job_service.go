package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/blog-moderation-api/internal/config"
	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// JobHandler runs one attempt of a job. Returning an error schedules a
// retry unless the error is permanent or attempts are exhausted.
type JobHandler func(ctx context.Context, job *models.Job) error

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Permanent marks err as not worth retrying
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent
func IsPermanent(err error) bool {
	var pe *permanentError
	return errors.As(err, &pe)
}

// jobService is the concrete implementation of JobService
type jobService struct {
	jobRepo      repository.JobRepository
	log          zerolog.Logger
	now          func() time.Time
	pollInterval time.Duration
	maxAttempts  int
	retryDelay   time.Duration

	handlersMu sync.RWMutex
	handlers   map[models.JobType]JobHandler

	cancel  context.CancelFunc
	done    chan struct{}
	wg      sync.WaitGroup
	running bool
	mu      sync.Mutex
	// Semaphore bounding concurrently running jobs
	sem chan struct{}
}

// newJobService creates a JobService with a worker pool sized for I/O-bound
// work unless cfg.Workers is set
func newJobService(jobRepo repository.JobRepository, cfg *config.NotificationConfig, now func() time.Time, log zerolog.Logger) *jobService {
	maxWorkers := cfg.Workers
	if maxWorkers <= 0 {
		// Mail delivery waits on the network, so allow more workers than cores
		maxWorkers = runtime.NumCPU() * 4
		if maxWorkers < 4 {
			maxWorkers = 4
		}
		if maxWorkers > 32 {
			maxWorkers = 32
		}
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = 2 * time.Second
	}

	log.Info().Int("max_workers", maxWorkers).Msg("Initializing job service worker pool")

	return &jobService{
		jobRepo:      jobRepo,
		log:          log.With().Str("service", "job").Logger(),
		now:          now,
		pollInterval: pollInterval,
		maxAttempts:  cfg.MaxAttempts,
		retryDelay:   cfg.RetryDelay,
		handlers:     make(map[models.JobType]JobHandler),
		sem:          make(chan struct{}, maxWorkers),
	}
}

// RegisterHandler sets the handler for a job type
func (s *jobService) RegisterHandler(jobType models.JobType, handler JobHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers[jobType] = handler
}

func (s *jobService) handler(jobType models.JobType) JobHandler {
	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	return s.handlers[jobType]
}

// Enqueue persists a pending job that is due immediately
func (s *jobService) Enqueue(ctx context.Context, jobType models.JobType, payload interface{}) (*models.Job, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to encode job payload: %w", err)
	}

	now := s.now()
	job := &models.Job{
		ID:          uuid.New().String(),
		Type:        jobType,
		Payload:     data,
		Status:      models.JobStatusPending,
		MaxAttempts: s.maxAttempts,
		RetryDelay:  s.retryDelay,
		AvailableAt: now,
		CreatedAt:   now,
	}

	if err := s.jobRepo.Create(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job: %w", err)
	}

	s.log.Debug().Str("job_id", job.ID).Str("type", string(jobType)).Msg("Job enqueued")
	return job, nil
}

// RecoverInterrupted requeues jobs a previous process left running
func (s *jobService) RecoverInterrupted(ctx context.Context) error {
	n, err := s.jobRepo.RecoverInterrupted(ctx, s.now())
	if err != nil {
		return fmt.Errorf("failed to recover interrupted jobs: %w", err)
	}
	if n > 0 {
		s.log.Warn().Int("count", n).Msg("Recovered jobs interrupted by a previous shutdown")
	}
	return nil
}

// StartProcessor launches the polling loop in the background and returns.
// The loop runs until ctx is cancelled or StopProcessor is called. Calling
// it while the loop is running does nothing.
func (s *jobService) StartProcessor(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return
	}
	s.running = true

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.poll(runCtx, s.done)

	s.log.Info().Dur("poll_interval", s.pollInterval).Msg("Job processor started")
}

func (s *jobService) poll(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info().Msg("Job processor stopping")
			return
		case <-ticker.C:
			s.dispatchDue(ctx, &s.wg)
		}
	}
}

// StopProcessor stops polling and waits for the loop and running jobs to
// finish. No job is claimed once it returns.
func (s *jobService) StopProcessor() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}

	s.cancel()
	<-s.done
	s.wg.Wait()
	s.running = false
	s.log.Info().Msg("Job processor stopped")
}

// RunDueJobs runs every job that is due now and waits for them to finish.
// It returns the number of jobs started.
func (s *jobService) RunDueJobs(ctx context.Context) int {
	var wg sync.WaitGroup
	started := s.dispatchDue(ctx, &wg)
	wg.Wait()
	return started
}

// dispatchDue claims due jobs and runs each on the worker pool
func (s *jobService) dispatchDue(ctx context.Context, wg *sync.WaitGroup) int {
	jobs, err := s.jobRepo.GetDueJobs(ctx, s.now(), cap(s.sem)*2)
	if err != nil {
		s.log.Error().Err(err).Msg("Failed to get due jobs")
		return 0
	}

	started := 0
	for _, job := range jobs {
		// Blocks while every worker is busy
		select {
		case s.sem <- struct{}{}:
		case <-ctx.Done():
			return started
		}
		if ctx.Err() != nil {
			<-s.sem
			return started
		}

		now := s.now()
		marked, err := s.jobRepo.MarkJobAsProcessing(ctx, job.ID, now)
		if err != nil || !marked {
			<-s.sem
			continue // claimed elsewhere or out of attempts
		}
		job.Status = models.JobStatusProcessing
		job.Attempts++
		job.StartedAt = &now
		started++

		wg.Add(1)
		go func(j *models.Job) {
			defer wg.Done()
			defer func() { <-s.sem }()
			s.runJob(ctx, j)
		}(job)
	}
	return started
}

// runJob runs one attempt and records the outcome
func (s *jobService) runJob(ctx context.Context, job *models.Job) {
	log := s.log.With().
		Str("job_id", job.ID).
		Str("type", string(job.Type)).
		Int("attempt", job.Attempts).
		Int("max_attempts", job.MaxAttempts).
		Logger()

	log.Info().Msg("Processing job")

	var runErr error
	if handler := s.handler(job.Type); handler == nil {
		runErr = Permanent(fmt.Errorf("no handler registered for job type %q", job.Type))
	} else {
		runErr = s.safeRun(ctx, handler, job)
	}

	// Record the outcome even when shutdown cancelled ctx
	ctx = context.WithoutCancel(ctx)
	now := s.now()

	if runErr == nil {
		job.Status = models.JobStatusCompleted
		job.CompletedAt = &now
		job.LastError = ""
		if err := s.jobRepo.Update(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to mark job completed")
			return
		}
		log.Info().Msg("Job completed")
		return
	}

	job.LastError = runErr.Error()
	attempt := &models.JobAttempt{
		JobID:     job.ID,
		Attempt:   job.Attempts,
		Error:     runErr.Error(),
		CreatedAt: now,
	}
	if err := s.jobRepo.AddAttempt(ctx, attempt); err != nil {
		log.Error().Err(err).Msg("Failed to record job attempt")
	}

	if IsPermanent(runErr) || job.Attempts >= job.MaxAttempts {
		job.Status = models.JobStatusFailed
		job.FailedAt = &now
		if err := s.jobRepo.Update(ctx, job); err != nil {
			log.Error().Err(err).Msg("Failed to mark job failed")
			return
		}
		log.Error().Err(runErr).Msg("Job failed permanently")
		return
	}

	job.Status = models.JobStatusPending
	job.AvailableAt = now.Add(job.RetryDelay)
	if err := s.jobRepo.Update(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to reschedule job")
		return
	}
	log.Warn().Err(runErr).Time("retry_at", job.AvailableAt).Msg("Job failed, retry scheduled")
}

// safeRun calls handler, converting a panic into an error
func (s *jobService) safeRun(ctx context.Context, handler JobHandler, job *models.Job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error().Interface("panic", r).Str("job_id", job.ID).Msg("Job handler panicked - recovered")
			err = fmt.Errorf("job handler panicked: %v", r)
		}
	}()
	return handler(ctx, job)
}

// GetJob retrieves a job with its failure history
func (s *jobService) GetJob(ctx context.Context, id string) (*models.JobResponse, error) {
	job, err := s.jobRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, ErrNotFound
	}

	failures, err := s.jobRepo.GetAttempts(ctx, id)
	if err != nil {
		s.log.Error().Err(err).Str("job_id", id).Msg("Failed to get job attempts")
	}

	return &models.JobResponse{Job: *job, Failures: failures}, nil
}

// ListFailedJobs returns permanently failed jobs, most recent first
func (s *jobService) ListFailedJobs(ctx context.Context, limit int) ([]*models.JobResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = 100
	}

	jobs, err := s.jobRepo.ListFailed(ctx, limit)
	if err != nil {
		return nil, err
	}

	responses := make([]*models.JobResponse, 0, len(jobs))
	for _, job := range jobs {
		failures, err := s.jobRepo.GetAttempts(ctx, job.ID)
		if err != nil {
			return nil, err
		}
		responses = append(responses, &models.JobResponse{Job: *job, Failures: failures})
	}
	return responses, nil
}
