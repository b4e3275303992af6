package v1

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Gerald18902/gestion-citas/internal/config"
	"github.com/Gerald18902/gestion-citas/internal/middleware"
	"github.com/Gerald18902/gestion-citas/pkg/metrics"
)

// NewRouter wires the middleware chain and the appointment routes. ping
// reports store health for the liveness endpoint.
func NewRouter(
	cfg *config.Config,
	log *zap.Logger,
	m *metrics.Collector,
	h *AppointmentHandler,
	ping func(ctx context.Context) error,
) *gin.Engine {
	router := gin.New()

	router.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.Logging(log),
		middleware.Metrics(m),
		middleware.CORS(cfg.CORS),
		middleware.RateLimit(middleware.NewRateLimiter(cfg.RateLimit.RequestsPerSecond, cfg.RateLimit.BurstSize)),
	)

	router.GET("/healthz", func(c *gin.Context) {
		if err := ping(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	router.GET("/metrics", gin.WrapH(metrics.MetricsHandler()))

	api := router.Group("/api")
	{
		appts := api.Group("/appointments")
		appts.POST("", h.Create)
		appts.GET("", h.List)
		// Static route must be declared alongside the :id routes; gin gives
		// it priority over the parameter match.
		appts.GET("/conflicts/check", h.CheckConflicts)
		appts.GET("/:id", h.Get)
		appts.PUT("/:id", h.Update)
		appts.DELETE("/:id", h.Delete)
	}

	return router
}
