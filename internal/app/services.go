package app

import (
	"fmt"

	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/ai/registry"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/pipeline/stage_generate"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/runtime"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/jobs/worker"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/pipeline"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/modules/stagerun/prompts"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/redislock"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/services"
)

type Services struct {
	Providers *registry.Registry
	Prompts   *prompts.Registry
	Graph     *pipeline.Graph
	Notifier  services.JobNotifier

	Budget   services.BudgetService
	Projects services.ProjectService
	Stages   services.StageRunService

	JobRegistry *runtime.Registry
	JobWorker   *worker.Worker
}

func wireServices(db *gorm.DB, log *logger.Logger, cfg Config, reposet repos.Set, clients Clients) (Services, error) {
	log.Info("Wiring services...")

	promptReg, err := prompts.NewRegistry()
	if err != nil {
		return Services{}, fmt.Errorf("load prompt registry: %w", err)
	}
	graph := pipeline.Default()
	providers := registry.New(cfg.AI, log)

	var (
		locker redislock.Locker
		notify services.JobNotifier
	)
	if clients.Redis != nil {
		locker = redislock.NewRedisLocker(clients.Redis)
		notify = services.NewJobNotifier(clients.Redis, log)
	} else {
		locker = redislock.NewLocalLocker()
		notify = services.NopJobNotifier{}
	}

	budget := services.NewBudgetService(db, log, reposet.Budget)
	projects := services.NewProjectService(db, log, reposet, graph)
	stages := services.NewStageRunService(db, log, reposet, graph, promptReg, providers, budget, locker, notify, services.StageRunConfig{
		Inline:          cfg.StageRunInline,
		DefaultProvider: cfg.DefaultProvider,
		DefaultModel:    cfg.DefaultModel,
		DefaultPreset:   cfg.DefaultPreset,
		MaxAttempts:     cfg.JobMaxAttempts,
	})

	jobRegistry := runtime.NewRegistry()
	if err := stage_generate.RegisterAll(jobRegistry, db, log, stages); err != nil {
		return Services{}, fmt.Errorf("register job handlers: %w", err)
	}
	jobWorker := worker.NewWorker(db, log, reposet.Jobs, jobRegistry, notify, cfg.Worker)
	stages.SetProcessor(jobWorker)

	return Services{
		Providers:   providers,
		Prompts:     promptReg,
		Graph:       graph,
		Notifier:    notify,
		Budget:      budget,
		Projects:    projects,
		Stages:      stages,
		JobRegistry: jobRegistry,
		JobWorker:   jobWorker,
	}, nil
}
