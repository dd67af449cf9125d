package app

import (
	"gorm.io/gorm"

	apphttp "github.com/yungbote/planforge-backend/internal/http"
	httpH "github.com/yungbote/planforge-backend/internal/http/handlers"
	httpMW "github.com/yungbote/planforge-backend/internal/http/middleware"
	"github.com/yungbote/planforge-backend/internal/observability"
	"github.com/yungbote/planforge-backend/internal/platform/envutil"
	"github.com/yungbote/planforge-backend/internal/platform/logger"
)

const serviceName = "planforge"

func wireServer(db *gorm.DB, log *logger.Logger, cfg Config, svc Services, metrics *observability.Metrics) *apphttp.Server {
	log.Info("Wiring handlers and router...")
	return apphttp.NewServer(apphttp.RouterConfig{
		Log:            log,
		Metrics:        metrics,
		TracingEnabled: envutil.Bool("OTEL_ENABLED", false),
		ServiceName:    serviceName,
		CORSOrigins:    cfg.CORSOrigins,

		AuthMiddleware: httpMW.NewAuthMiddleware(log, cfg.JWTSecretKey),

		SessionHandler: httpH.NewSessionHandler(svc.Session),
		PlanHandler:    httpH.NewPlanHandler(svc.Plan),
		ExportHandler:  httpH.NewExportHandler(svc.Export),
		JobHandler:     httpH.NewJobHandler(svc.Jobs),
		HealthHandler:  httpH.NewHealthHandler(db),
	})
}
