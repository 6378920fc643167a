package api

import (
	"net/http"
	"strconv"

	"github.com/blog-moderation-api/internal/service"
	"github.com/blog-moderation-api/internal/validation"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

const (
	defaultFailedJobsLimit = 50
	maxFailedJobsLimit     = 100
)

// JobHandler exposes background job state
type JobHandler struct {
	services *service.Services
	log      zerolog.Logger
}

// NewJobHandler creates a new job handler
func NewJobHandler(services *service.Services, log zerolog.Logger) *JobHandler {
	return &JobHandler{
		services: services,
		log:      log.With().Str("handler", "job").Logger(),
	}
}

// ListFailed handles GET /v1/jobs/failed
func (h *JobHandler) ListFailed(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultFailedJobsLimit)))
	if err != nil || limit < 1 {
		limit = defaultFailedJobsLimit
	}
	if limit > maxFailedJobsLimit {
		limit = maxFailedJobsLimit
	}

	jobs, err := h.services.Job.ListFailedJobs(c.Request.Context(), limit)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"jobs":  jobs,
		"count": len(jobs),
	})
}

// GetJob handles GET /v1/jobs/:id
func (h *JobHandler) GetJob(c *gin.Context) {
	id := c.Param("id")
	if !validation.IsValidUUID(id) {
		respondError(c, h.log, service.ErrNotFound)
		return
	}

	job, err := h.services.Job.GetJob(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.log, err)
		return
	}

	c.JSON(http.StatusOK, job)
}
