package app

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/db"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/data/repos"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/http"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/observability"
	"github.com/pedrodellabosca-hash/Branbuilder-sub000/internal/platform/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Server   *http.Server
	Cfg      Config
	Repos    repos.Set
	Services Services
	Clients  Clients

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, cfg Config) (*App, error) {
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, cfg.Otel)

	dbService, err := db.NewService(cfg.DB, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init db: %w", err)
	}
	if err := dbService.Migrate(); err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("db automigrate: %w", err)
	}
	theDB := dbService.DB()

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	log.Info("Wiring repos...")
	reposet := repos.NewSet(theDB, log)

	serviceset, err := wireServices(theDB, log, cfg, reposet, clients)
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, err
	}

	sqlDB, err := theDB.DB()
	if err != nil {
		clients.Close()
		_ = dbService.Close()
		log.Sync()
		return nil, fmt.Errorf("db handle: %w", err)
	}
	handlerset := wireHandlers(log, sqlDB, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlerset, middleware)

	return &App{
		Log:          log,
		DB:           theDB,
		Server:       server,
		Cfg:          cfg,
		Repos:        reposet,
		Services:     serviceset,
		Clients:      clients,
		dbService:    dbService,
		otelShutdown: otelShutdown,
	}, nil
}

// StartWorker runs the job worker in the background until Close.
func (a *App) StartWorker(ctx context.Context) {
	if a == nil || a.cancel != nil || a.Services.JobWorker == nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel
	a.Services.JobWorker.Start(ctx)
}

func (a *App) Run(ctx context.Context, addr string) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	if addr == "" {
		addr = ":" + a.Cfg.Port
	}
	a.Log.Info("http server listening", "addr", addr)
	return a.Server.Run(ctx, addr)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.otelShutdown != nil {
		_ = a.otelShutdown(context.Background())
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil && a.Log != nil {
			a.Log.Warn("db close failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
