package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/robolab/trainerd/internal/logger"
	"github.com/robolab/trainerd/internal/pods"
	"github.com/robolab/trainerd/internal/provider"
)

// PodHandler serves the remote-tier endpoints: provisioning and polling.
type PodHandler struct {
	orchestrator *Orchestrator
	poller       *Poller
}

// Orchestrator and Poller aliases keep the handler signatures readable.
type (
	Orchestrator = pods.Orchestrator
	Poller       = pods.StatusPoller
)

// NewPodHandler creates a new pod handler.
func NewPodHandler(orch *Orchestrator, poller *Poller) *PodHandler {
	return &PodHandler{orchestrator: orch, poller: poller}
}

// CreatePodRequest is the API request for provisioning a node.
type CreatePodRequest struct {
	Name              string            `json:"name"`
	GPUTypeID         string            `json:"gpu_type_id" binding:"required"`
	GPUCount          int               `json:"gpu_count"`
	VolumeInGb        int               `json:"volume_in_gb"`
	ContainerDiskInGb int               `json:"container_disk_in_gb"`
	Interruptible     bool              `json:"interruptible"`
	CloudType         string            `json:"cloud_type"`
	EnvVars           map[string]string `json:"env_vars"`
}

func (r *CreatePodRequest) applyDefaults() {
	if r.Name == "" {
		r.Name = "Training Pod"
	}
	if r.GPUCount == 0 {
		r.GPUCount = 1
	}
	if r.VolumeInGb == 0 {
		r.VolumeInGb = 50
	}
	if r.ContainerDiskInGb == 0 {
		r.ContainerDiskInGb = 50
	}
	if r.CloudType == "" {
		r.CloudType = "SECURE"
	}
}

// providerStatus maps a provider error to a response, embedding the
// provider's code and body.
func providerStatus(c *gin.Context, err error, fallbackCode int, msg string) {
	var apiErr *provider.APIError
	if errors.As(err, &apiErr) {
		c.JSON(fallbackCode, gin.H{"error": fmt.Sprintf("%s: %s", msg, apiErr.Error())})
		return
	}
	c.JSON(fallbackCode, gin.H{"error": fmt.Sprintf("%s: %s", msg, err.Error())})
}

// CreatePod provisions a node running the training image.
func (h *PodHandler) CreatePod(c *gin.Context) {
	ctx := c.Request.Context()

	var req CreatePodRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	req.applyDefaults()

	pod, err := h.orchestrator.CreatePod(ctx, provider.CreatePodRequest{
		Name:              req.Name,
		GPUTypeID:         req.GPUTypeID,
		GPUCount:          req.GPUCount,
		VolumeInGb:        req.VolumeInGb,
		ContainerDiskInGb: req.ContainerDiskInGb,
		Interruptible:     req.Interruptible,
		CloudType:         req.CloudType,
		EnvVars:           req.EnvVars,
	})
	if err != nil {
		logger.CtxError(ctx, "failed to create pod: %v", err)
		providerStatus(c, err, http.StatusInternalServerError, "Failed to create pod")
		return
	}

	c.JSON(http.StatusOK, pod)
}

// ListPods lists all provisioned nodes.
func (h *PodHandler) ListPods(c *gin.Context) {
	list, err := h.orchestrator.ListPods(c.Request.Context())
	if err != nil {
		logger.CtxError(c.Request.Context(), "failed to list pods: %v", err)
		providerStatus(c, err, http.StatusInternalServerError, "Failed to list pods")
		return
	}
	c.JSON(http.StatusOK, list)
}

// GetPodStatus returns the provider status plus the runner reachability probe.
func (h *PodHandler) GetPodStatus(c *gin.Context) {
	podID := c.Param("id")
	ctx := logger.SetPodID(c.Request.Context(), podID)

	status, err := h.poller.GetPodStatus(ctx, podID)
	if err != nil {
		logger.CtxError(ctx, "failed to get pod status: %v", err)
		providerStatus(c, err, http.StatusNotFound, "Pod not found or error")
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetJobStatus returns one remote job's status from the pod's own runner.
func (h *PodHandler) GetJobStatus(c *gin.Context) {
	podID := c.Param("id")
	jobID := c.Param("jobId")
	ctx := logger.SetPodID(c.Request.Context(), podID)

	status, err := h.poller.GetJobStatus(ctx, podID, jobID)
	if err != nil {
		logger.CtxError(ctx, "failed to get remote job status: %v", err)
		providerStatus(c, err, http.StatusNotFound, "Job not found or error")
		return
	}
	c.JSON(http.StatusOK, status)
}

// TerminatePod tears a node down.
func (h *PodHandler) TerminatePod(c *gin.Context) {
	podID := c.Param("id")
	ctx := logger.SetPodID(c.Request.Context(), podID)

	if err := h.orchestrator.TerminatePod(ctx, podID); err != nil {
		logger.CtxError(ctx, "failed to terminate pod: %v", err)
		providerStatus(c, err, http.StatusInternalServerError, "Failed to terminate pod")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": fmt.Sprintf("Pod %s terminated successfully", podID)})
}
