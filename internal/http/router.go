package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/wellchat-backend/internal/http/handlers"
	httpMW "github.com/yungbote/wellchat-backend/internal/http/middleware"
	"github.com/yungbote/wellchat-backend/internal/observability"
	"github.com/yungbote/wellchat-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log          *logger.Logger
	ServiceName  string
	AllowOrigins []string

	Metrics     *observability.Metrics
	MetricsPath string

	AuthMiddleware    *httpMW.AuthMiddleware
	AssessmentHandler *httpH.AssessmentHandler
	HealthHandler     *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachRequestContext())
	if cfg.Log != nil {
		r.Use(httpMW.RequestLogger(cfg.Log))
	}
	metricsPath := cfg.MetricsPath
	if metricsPath == "" {
		metricsPath = "/metrics"
	}
	r.Use(httpMW.Metrics(cfg.Metrics, "/healthcheck", metricsPath))
	r.Use(httpMW.CORS(cfg.AllowOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET(metricsPath, gin.WrapH(cfg.Metrics.Handler()))
	}

	api := r.Group("/api")
	protected := api.Group("/assessment")
	{
		if cfg.AuthMiddleware != nil {
			protected.Use(cfg.AuthMiddleware.RequireAuth())
		}

		if h := cfg.AssessmentHandler; h != nil {
			protected.POST("/turns", h.PostTurn)

			phq9 := protected.Group("/phq9/conversational")
			phq9.GET("/status", h.GetStatus)
			phq9.GET("/history", h.GetHistory)
			phq9.GET("/latest", h.GetLatest)
			phq9.DELETE("/cancel", h.Cancel)

			protected.GET("/summary", h.GetSummary)
			protected.GET("/risk-alert", h.GetRiskAlert)
			protected.GET("/detections", h.ListDetections)
		}
	}

	return r
}
