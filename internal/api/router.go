package api

import (
	"github.com/gin-gonic/gin"
	"github.com/robolab/trainerd/internal/api/handler"
	"github.com/robolab/trainerd/internal/api/middleware"
)

// SetupRouter configures the Gin router with all routes. podHandler may be
// nil: instances embedded inside remote nodes run the /jobs surface only.
func SetupRouter(
	jobHandler *handler.JobHandler,
	podHandler *handler.PodHandler,
	cors middleware.CORSConfig,
	mode string,
) *gin.Engine {
	switch mode {
	case "release":
		gin.SetMode(gin.ReleaseMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	r := gin.New()

	r.Use(gin.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.CORS(cors))

	healthHandler := handler.NewHealthHandler()
	r.GET("/health", healthHandler.Health)
	r.GET("/", healthHandler.Root)

	r.POST("/jobs", jobHandler.CreateJob)
	r.GET("/jobs", jobHandler.ListJobs)
	r.GET("/jobs/:id", jobHandler.GetJob)
	r.DELETE("/jobs/:id", jobHandler.CancelJob)

	if podHandler != nil {
		r.POST("/pods", podHandler.CreatePod)
		r.GET("/pods", podHandler.ListPods)
		r.GET("/pods/:id", podHandler.GetPodStatus)
		r.GET("/pods/:id/jobs/:jobId", podHandler.GetJobStatus)
		r.DELETE("/pods/:id", podHandler.TerminatePod)
	}

	return r
}
