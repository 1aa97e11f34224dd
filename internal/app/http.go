package app

import (
	"context"

	"gorm.io/gorm"

	"github.com/yungbote/wellchat-backend/internal/config"
	"github.com/yungbote/wellchat-backend/internal/http"
	httpH "github.com/yungbote/wellchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/wellchat-backend/internal/http/middleware"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type Middleware struct {
	Auth *httpMW.AuthMiddleware
}

type Handlers struct {
	Health     *httpH.HealthHandler
	Assessment *httpH.AssessmentHandler
}

func wireHandlers(log *logger.Logger, db *gorm.DB, services Services) Handlers {
	log.Info("Wiring handlers...")
	return Handlers{
		Health:     httpH.NewHealthHandler(dbPinger(db)),
		Assessment: httpH.NewAssessmentHandler(services.Engine, services.Control),
	}
}

func wireMiddleware(log *logger.Logger, cfg *config.Config) Middleware {
	log.Info("Wiring middleware...")
	if cfg.Auth.JWTSecretKey == "" {
		log.Warn("JWT_SECRET_KEY not set; every authenticated route will reject requests")
	}
	return Middleware{
		Auth: httpMW.NewAuthMiddleware(log, cfg.Auth.JWTSecretKey, cfg.Auth.Issuer),
	}
}

func wireServer(log *logger.Logger, cfg *config.Config, handlers Handlers, middleware Middleware, metrics *observability.Metrics) *http.Server {
	rc := http.RouterConfig{
		Log:               log,
		ServiceName:       serviceName,
		AllowOrigins:      cfg.Server.AllowOrigins,
		AuthMiddleware:    middleware.Auth,
		AssessmentHandler: handlers.Assessment,
		HealthHandler:     handlers.Health,
	}
	if cfg.Metrics.Enabled {
		rc.Metrics = metrics
		rc.MetricsPath = cfg.Metrics.Path
	}
	return http.NewServer(rc)
}

func dbPinger(db *gorm.DB) httpH.Pinger {
	if db == nil {
		return nil
	}
	return func(ctx context.Context) error {
		sqlDB, err := db.DB()
		if err != nil {
			return err
		}
		return sqlDB.PingContext(ctx)
	}
}
