package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/handlers"
	httpMW "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/middleware"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	ServiceName    string
	CORSOrigins    []string
	AuthMiddleware *httpMW.AuthMiddleware

	ProjectHandler  *httpH.ProjectHandler
	StageHandler    *httpH.StageHandler
	JobHandler      *httpH.JobHandler
	UsageHandler    *httpH.UsageHandler
	ProviderHandler *httpH.ProviderHandler

	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log, "/healthcheck"))
	r.Use(httpMW.CORS(cfg.CORSOrigins...))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	{
		// Middleware
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		// Projects
		if cfg.ProjectHandler != nil {
			protected.POST("/projects", cfg.ProjectHandler.Create)
			protected.GET("/projects", cfg.ProjectHandler.List)
			protected.GET("/projects/:projectId/stages", cfg.ProjectHandler.ListStages)
		}

		// Stages
		if cfg.StageHandler != nil {
			stage := protected.Group("/projects/:projectId/stages/:stageKey")
			stage.POST("/run", cfg.StageHandler.Run)
			stage.GET("/output", cfg.StageHandler.GetOutput)
			stage.GET("/output/export", cfg.StageHandler.Export)
			stage.POST("/versions", cfg.StageHandler.SaveVersion)
			stage.POST("/approve", cfg.StageHandler.Approve)
			stage.GET("/config", cfg.StageHandler.GetConfig)
			stage.PUT("/config", cfg.StageHandler.PutConfig)
		}

		// Jobs
		if cfg.JobHandler != nil {
			protected.GET("/jobs", cfg.JobHandler.ListJobs)
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
			if cfg.AuthMiddleware != nil {
				protected.POST("/jobs/:id/fail", cfg.AuthMiddleware.RequireAdmin(), cfg.JobHandler.FailJob)
			}
		}

		// Usage & providers
		if cfg.UsageHandler != nil {
			protected.GET("/usage", cfg.UsageHandler.GetUsage)
		}
		if cfg.ProviderHandler != nil {
			protected.GET("/ai/providers", cfg.ProviderHandler.List)
		}
	}

	return r
}
