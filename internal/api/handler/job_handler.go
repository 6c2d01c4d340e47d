package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pixelcraft/studio-be/internal/api/dto"
	"github.com/pixelcraft/studio-be/internal/queue"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// CreateJob handles POST /api/v1/jobs
// Enqueues a new background job for processing
func (h *JobHandler) CreateJob(c *gin.Context) {
	var req dto.CreateJobRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	maxRetries := queue.DefaultMaxRetries
	if req.MaxRetries != nil {
		if *req.MaxRetries < 0 {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "max_retries must not be negative",
			})
			return
		}
		maxRetries = *req.MaxRetries
	}

	job, err := h.store.CreateJob(c.Request.Context(), req.JobType, string(req.Payload), req.OwnerID, maxRetries)
	if err != nil {
		h.logger.Error("Failed to create job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to create job",
		})
		return
	}

	h.logger.Info("Job created",
		slog.String("job_id", job.ID),
		slog.String("job_type", job.JobType),
		slog.String("owner_id", job.OwnerID),
	)

	h.notifyJobCreated(c, job)

	c.JSON(http.StatusCreated, toJobDTO(job))
}

// notifyJobCreated publishes a job-available notification so idle
// workers wake before their next poll tick. Failures are logged and
// ignored; workers find the job by polling either way.
func (h *JobHandler) notifyJobCreated(c *gin.Context, job *queue.Job) {
	if h.notifier == nil {
		return
	}

	body, err := json.Marshal(gin.H{"job_id": job.ID, "job_type": job.JobType})
	if err != nil {
		return
	}

	if err := h.notifier.Publish(c.Request.Context(), body, "application/json"); err != nil {
		h.logger.Warn("Failed to publish job notification",
			slog.String("job_id", job.ID),
			slog.Any("error", err),
		)
	}
}

// GetJob handles GET /api/v1/jobs/:job_id
// Retrieves detailed information about a specific job
func (h *JobHandler) GetJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		h.logger.Error("Invalid job_id format", slog.String("job_id", jobID), slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.store.GetJob(c.Request.Context(), jobID)
	if err != nil {
		if errors.Is(err, queue.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Job not found",
			})
			return
		}

		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, toJobDTO(job))
}

// ListJobs handles GET /api/v1/jobs
// Lists jobs filtered by status or owner
func (h *JobHandler) ListJobs(c *gin.Context) {
	var req dto.ListJobsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.logger.Error("Invalid query parameters", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.Limit <= 0 {
		req.Limit = defaultListLimit
	}
	if req.Limit > maxListLimit {
		req.Limit = maxListLimit
	}

	var (
		jobs []queue.Job
		err  error
	)
	switch {
	case req.Status != "":
		if !queue.ValidStatus(req.Status) {
			c.JSON(http.StatusBadRequest, gin.H{
				"error": "Invalid status filter",
			})
			return
		}
		jobs, err = h.store.GetJobsByStatus(c.Request.Context(), req.Status, req.Limit)
	case req.OwnerID != "":
		jobs, err = h.store.GetJobsByOwner(c.Request.Context(), req.OwnerID, req.Limit)
	default:
		jobs, err = h.store.GetPendingJobs(c.Request.Context(), req.Limit)
	}

	if err != nil {
		h.logger.Error("Failed to list jobs", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list jobs",
		})
		return
	}

	jobResponse := make([]dto.JobDTO, len(jobs))
	for i := range jobs {
		jobResponse[i] = toJobDTO(&jobs[i])
	}

	c.JSON(http.StatusOK, dto.ListJobsResponse{
		Jobs: jobResponse,
	})
}

func toJobDTO(job *queue.Job) dto.JobDTO {
	d := dto.JobDTO{
		JobID:        job.ID,
		JobType:      job.JobType,
		OwnerID:      job.OwnerID,
		Payload:      job.Payload,
		Status:       job.Status,
		RetryCount:   job.RetryCount,
		MaxRetries:   job.MaxRetries,
		ErrorMessage: job.ErrorMessage,
		CreatedAt:    job.CreatedAt.Format(time.RFC3339),
	}
	if job.ProcessedAt != nil {
		d.ProcessedAt = job.ProcessedAt.Format(time.RFC3339)
	}
	if job.CompletedAt != nil {
		d.CompletedAt = job.CompletedAt.Format(time.RFC3339)
	}
	return d
}
