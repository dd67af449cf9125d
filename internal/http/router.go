package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/planforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/planforge-backend/internal/http/middleware"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

type RouterConfig struct {
	Log            *logger.Logger
	Metrics        *observability.Metrics
	TracingEnabled bool
	ServiceName    string
	CORSOrigins    []string

	AuthMiddleware *httpMW.AuthMiddleware

	SessionHandler *httpH.SessionHandler
	PlanHandler    *httpH.PlanHandler
	ExportHandler  *httpH.ExportHandler
	JobHandler     *httpH.JobHandler
	HealthHandler  *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.TracingEnabled {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.TraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}

	protected := r.Group("/api")
	if cfg.AuthMiddleware != nil {
		protected.Use(cfg.AuthMiddleware.RequireAuth())
	}
	{
		if cfg.SessionHandler != nil {
			protected.POST("/sessions", cfg.SessionHandler.CreateSession)
			protected.GET("/sessions/:id", cfg.SessionHandler.GetSession)
			protected.PUT("/sessions/:id/phases/:phase", cfg.SessionHandler.SavePhase)
			protected.POST("/sessions/:id/archive", cfg.SessionHandler.ArchiveSession)
		}

		if cfg.PlanHandler != nil {
			protected.POST("/sessions/:id/plan", cfg.PlanHandler.GeneratePlan)
			protected.POST("/sessions/:id/plan/jobs", cfg.PlanHandler.EnqueuePlan)
			protected.GET("/sessions/:id/plan", cfg.PlanHandler.GetPlan)
			protected.PUT("/sessions/:id/plan", cfg.PlanHandler.EditPlan)
			protected.POST("/sessions/:id/plan/approve", cfg.PlanHandler.ApprovePlan)
		}

		if cfg.ExportHandler != nil {
			protected.POST("/sessions/:id/exports", cfg.ExportHandler.StartExport)
			protected.GET("/exports/:id", cfg.ExportHandler.GetExport)
			protected.GET("/exports/:id/download", cfg.ExportHandler.DownloadExport)
		}

		if cfg.JobHandler != nil {
			protected.GET("/jobs/:id", cfg.JobHandler.GetJob)
		}
	}

	return r
}
