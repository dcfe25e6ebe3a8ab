package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robolab/trainerd/internal/domain"
	"github.com/robolab/trainerd/internal/jobs"
	"github.com/robolab/trainerd/internal/logger"
)

// JobHandler serves the local-tier job endpoints.
type JobHandler struct {
	jobs *jobs.Service
}

// NewJobHandler creates a new job handler.
func NewJobHandler(svc *jobs.Service) *JobHandler {
	return &JobHandler{jobs: svc}
}

// CreateJob launches a training job and returns its initial snapshot.
// Launch failures surface through the job's status, never as a create error.
func (h *JobHandler) CreateJob(c *gin.Context) {
	ctx := c.Request.Context()

	var params domain.TrainingParams
	if err := c.ShouldBindJSON(&params); err != nil {
		logger.CtxWarn(ctx, "invalid job request: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	job, err := h.jobs.Start(ctx, params)
	if err != nil {
		logger.CtxError(ctx, "failed to create job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create job"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// GetJob returns the current snapshot of one job.
func (h *JobHandler) GetJob(c *gin.Context) {
	job, err := h.jobs.Get(c.Param("id"))
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		logger.CtxError(c.Request.Context(), "failed to read job: %v", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to read job"})
		return
	}
	c.JSON(http.StatusOK, job)
}

// ListJobs returns all known jobs.
func (h *JobHandler) ListJobs(c *gin.Context) {
	c.JSON(http.StatusOK, h.jobs.List())
}

// CancelJob cancels a starting or running job.
func (h *JobHandler) CancelJob(c *gin.Context) {
	id := c.Param("id")
	err := h.jobs.Cancel(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, jobs.ErrNotFound) || errors.Is(err, jobs.ErrNotCancellable) {
			c.JSON(http.StatusNotFound, gin.H{
				"error": "Failed to cancel job. Job may not exist or is not running.",
			})
			return
		}
		logger.CtxError(c.Request.Context(), "failed to cancel job %s: %v", id, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to cancel job"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Job %s cancelled successfully", id)})
}
