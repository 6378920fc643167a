package service

import (
	"context"

	"github.com/blog-moderation-api/internal/models"
	"github.com/blog-moderation-api/internal/repository"
)

// statsService is the concrete implementation of StatsService
type statsService struct {
	repos *repository.Repositories
}

func newStatsService(repos *repository.Repositories) *statsService {
	return &statsService{repos: repos}
}

// GetStats returns record counts for the metrics endpoint
func (s *statsService) GetStats(ctx context.Context) (*models.Stats, error) {
	var stats models.Stats
	var err error

	if stats.Users, err = s.repos.User.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Posts, err = s.repos.Post.Count(ctx); err != nil {
		return nil, err
	}
	if stats.Comments, err = s.repos.Comment.Count(ctx); err != nil {
		return nil, err
	}
	if stats.PendingComments, err = s.repos.Comment.CountPending(ctx); err != nil {
		return nil, err
	}
	if stats.PendingJobs, err = s.repos.Job.CountByStatus(ctx, models.JobStatusPending); err != nil {
		return nil, err
	}
	if stats.FailedJobs, err = s.repos.Job.CountByStatus(ctx, models.JobStatusFailed); err != nil {
		return nil, err
	}
	return &stats, nil
}
