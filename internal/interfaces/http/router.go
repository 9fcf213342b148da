// Package http exposes the generalization service over a gin REST API.
package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/MetaNet-Generalizer/internal/config"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MetaNet-Generalizer/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/handlers"
	"github.com/turtacn/MetaNet-Generalizer/internal/interfaces/http/middleware"
	"github.com/turtacn/MetaNet-Generalizer/pkg/errors"
)

// RouterConfig aggregates the handler and middleware dependencies of the
// route tree. Nil handlers leave their routes unregistered.
type RouterConfig struct {
	Server                config.ServerConfig
	GeneralizationHandler *handlers.GeneralizationHandler
	HealthHandler         *handlers.HealthHandler

	// Auth, when set, guards every /api/v1 route.
	Auth gin.HandlerFunc

	Logger           logging.Logger
	Metrics          *prometheus.AppMetrics
	MetricsCollector prometheus.MetricsCollector
}

// NewRouter builds the route tree:
//
//	GET  /healthz, /readyz, /metrics
//	POST /api/v1/generalizations
//	GET  /api/v1/generalizations[?network_id=&limit=&offset=]
//	GET  /api/v1/generalizations/:id
//	GET  /api/v1/species-groups[?q=&network_id=&term_id=&from=&size=]
func NewRouter(cfg RouterConfig) *gin.Engine {
	if cfg.Server.Mode != "" {
		gin.SetMode(cfg.Server.Mode)
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	r := gin.New()
	r.Use(gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("Panic serving request",
			logging.Any("panic", recovered),
			logging.String("path", c.Request.URL.Path))
		c.AbortWithStatusJSON(http.StatusInternalServerError, handlers.ErrorResponse{
			Code:      string(errors.ErrCodeInternal),
			Message:   "internal server error",
			RequestID: middleware.GetRequestID(c),
		})
	}))
	r.Use(middleware.RequestID())
	if len(cfg.Server.CORSOrigins) > 0 {
		corsCfg := middleware.DefaultCORSConfig()
		corsCfg.AllowedOrigins = cfg.Server.CORSOrigins
		r.Use(middleware.CORS(corsCfg))
	}
	r.Use(middleware.RequestLogging(logger, middleware.DefaultLoggingConfig()))
	if cfg.Metrics != nil {
		r.Use(middleware.Metrics(cfg.Metrics))
	}
	if cfg.Server.RateLimitRPS > 0 {
		r.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.Server.RateLimitRPS,
			BurstSize:         cfg.Server.RateLimitBurst,
			SkipPaths:         []string{"/healthz", "/readyz", "/metrics"},
		}))
	}

	if cfg.HealthHandler != nil {
		r.GET("/healthz", cfg.HealthHandler.Liveness)
		r.GET("/readyz", cfg.HealthHandler.Readiness)
	}
	if cfg.MetricsCollector != nil {
		r.GET("/metrics", gin.WrapH(cfg.MetricsCollector.Handler()))
	}

	api := r.Group("/api/v1")
	if cfg.Auth != nil {
		api.Use(cfg.Auth)
	}
	if h := cfg.GeneralizationHandler; h != nil {
		runs := api.Group("/generalizations")
		runs.POST("", h.Create)
		runs.GET("", h.List)
		runs.GET("/:id", h.Get)
		api.GET("/species-groups", h.SearchGroups)
	}

	return r
}
