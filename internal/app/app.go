package app

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/config"
	"github.com/yungbote/wellchat-backend/internal/data/db"
	"github.com/yungbote/wellchat-backend/internal/http"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
	"github.com/yungbote/wellchat-backend/internal/services"
)

const (
	serviceName = "wellchat-backend"
	version     = "dev"
)

type App struct {
	Log      *logger.Logger
	Cfg      *config.Config
	DB       *gorm.DB
	Metrics  *observability.Metrics
	Repos    Repos
	Clients  Clients
	Services Services
	Server   *http.Server

	dbService    *db.Service
	otelShutdown func(context.Context) error
	cancel       context.CancelFunc
}

func New(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	otelShutdown := observability.InitOTel(ctx, log, observability.OtelConfig{
		ServiceName: serviceName,
		Environment: cfg.Environment,
		Version:     version,
	})
	metrics := observability.Init()

	dbs, err := db.Open(cfg.Database, log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init database: %w", err)
	}
	theDB := dbs.DB()
	if cfg.Database.AutoMigrate {
		if err := db.AutoMigrateAll(theDB); err != nil {
			_ = dbs.Close()
			log.Sync()
			return nil, fmt.Errorf("automigrate: %w", err)
		}
	}

	reposet := wireRepos(theDB, log)
	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	serviceset, err := wireServices(theDB, log, cfg, reposet, clients, metrics)
	if err != nil {
		clients.Close()
		_ = dbs.Close()
		log.Sync()
		return nil, err
	}
	handlerset := wireHandlers(log, theDB, serviceset)
	middleware := wireMiddleware(log, cfg)
	server := wireServer(log, cfg, handlerset, middleware, metrics)

	return &App{
		Log:          log,
		Cfg:          cfg,
		DB:           theDB,
		Metrics:      metrics,
		Repos:        reposet,
		Clients:      clients,
		Services:     serviceset,
		Server:       server,
		dbService:    dbs,
		otelShutdown: otelShutdown,
	}, nil
}

// Start launches the background loops. Run calls it.
func (a *App) Start(ctx context.Context) {
	if a == nil || a.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if a.Cfg.Metrics.Enabled {
		a.Metrics.StartSLOEvaluator(ctx, a.Log, sloConfig(a.Cfg.Metrics.SLO))
	}
	if a.Clients.EventBus != nil {
		handler := services.ReplicaEventHandler(a.Log, a.Services.Engine, a.Metrics)
		if err := a.Clients.EventBus.StartForwarder(ctx, handler); err != nil {
			a.Log.Warn("event forwarder not started", "error", err)
		}
	}
}

// Run serves HTTP until ctx is cancelled, then drains in-flight requests.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	a.Start(ctx)
	addr := fmt.Sprintf(":%d", a.Cfg.Server.Port)
	a.Log.Info("Starting server", "addr", addr, "db_driver", a.dbService.Driver())
	return a.Server.Run(ctx, addr, time.Duration(a.Cfg.Server.ShutdownSeconds)*time.Second)
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	a.Clients.Close()
	if a.dbService != nil {
		if err := a.dbService.Close(); err != nil {
			a.Log.Warn("database close failed", "error", err)
		}
	}
	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Log.Warn("otel shutdown failed", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}

func sloConfig(c config.SLOConfig) observability.SLOConfig {
	return observability.SLOConfig{
		Enabled:                c.Enabled,
		Interval:               c.Interval,
		Window:                 c.Window,
		APIAvailabilityTarget:  c.APIAvailabilityTarget,
		DetectorSuccessTarget:  c.DetectorSuccessTarget,
		ScorerSuccessTarget:    c.ScorerSuccessTarget,
		AnswerDurabilityTarget: c.AnswerDurabilityTarget,
		AlertWebhookURL:        c.AlertWebhookURL,
		AlertOwner:             c.AlertOwner,
		AlertMinInterval:       c.AlertMinInterval,
	}
}
