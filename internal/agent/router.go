package agent

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	_ "github.com/noah-isme/attendance-offline-sync/api/swagger"
	"github.com/noah-isme/attendance-offline-sync/internal/handler"
	"github.com/noah-isme/attendance-offline-sync/internal/middleware"
	"github.com/noah-isme/attendance-offline-sync/pkg/config"
	"github.com/noah-isme/attendance-offline-sync/pkg/logger"
	corsmiddleware "github.com/noah-isme/attendance-offline-sync/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/attendance-offline-sync/pkg/middleware/requestid"
)

// Router builds the local HTTP API used by the attendance UI and operators.
func (a *Agent) Router() *gin.Engine {
	cfg := a.Config
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(a.Logger.Named("http"), "/health", "/metrics"))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.Metrics, "/metrics"))

	metricsHandler := handler.NewMetricsHandler(a.Metrics, a.Ready)
	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	prefix := cfg.APIPrefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)

	attendance := handler.NewAttendanceHandler(a.Attendance, a.Exports, a.Connectivity)
	api.POST("/attendance", attendance.Save)
	api.GET("/attendance/records", attendance.List)
	api.GET("/attendance/records/export", attendance.Export)

	syncHandler := handler.NewSyncHandler(nil, a.Hub, a.Connectivity, nil)
	if a.Sync != nil {
		syncHandler = handler.NewSyncHandler(a.Sync, a.Hub, a.Connectivity, a.Retention)
	}
	api.POST("/sync", syncHandler.Sync)
	api.GET("/sync/status", syncHandler.Status)
	api.GET("/sync/status/stream", syncHandler.Stream)
	api.PUT("/connectivity", syncHandler.SetConnectivity)
	api.POST("/maintenance/cleanup", syncHandler.Cleanup)

	return r
}
