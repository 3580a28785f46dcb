package app

import (
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http"
	httpH "github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http/handlers"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/observability"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type Handlers struct {
	Health   *httpH.HealthHandler
	Project  *httpH.ProjectHandler
	Stage    *httpH.StageHandler
	Job      *httpH.JobHandler
	Usage    *httpH.UsageHandler
	Provider *httpH.ProviderHandler
}

func wireHandlers(log *logger.Logger, db httpH.Pinger, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:   httpH.NewHealthHandler(db),
		Project:  httpH.NewProjectHandler(log, services.Projects),
		Stage:    httpH.NewStageHandler(log, services.Stages),
		Job:      httpH.NewJobHandler(log, services.Stages),
		Usage:    httpH.NewUsageHandler(log, services.Budget),
		Provider: httpH.NewProviderHandler(services.Providers),
	}
}

func wireServer(log *logger.Logger, cfg Config, handlers Handlers, middleware Middleware) *http.Server {
	serviceName := ""
	if cfg.Otel.Enabled {
		serviceName = cfg.Otel.ServiceName
		if serviceName == "" {
			serviceName = observability.DefaultServiceName
		}
	}
	return http.NewServer(http.RouterConfig{
		Log:             log,
		ServiceName:     serviceName,
		CORSOrigins:     cfg.CORSOrigins,
		AuthMiddleware:  middleware.Auth,
		ProjectHandler:  handlers.Project,
		StageHandler:    handlers.Stage,
		JobHandler:      handlers.Job,
		UsageHandler:    handlers.Usage,
		ProviderHandler: handlers.Provider,
		HealthHandler:   handlers.Health,
	})
}
