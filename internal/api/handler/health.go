package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Version is the service version reported on the root endpoint.
const Version = "1.0.0"

// HealthHandler handles health check and root endpoints
type HealthHandler struct{}

// NewHealthHandler creates a new health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// Health returns the health status of the service
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
	})
}

// Root returns the service banner
func (h *HealthHandler) Root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "trainerd training API",
		"version": Version,
	})
}
