package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/common"
	"github.com/suPer8Hu/ai-relay/internal/config"
	"github.com/suPer8Hu/ai-relay/internal/httpapi/handlers"
	"github.com/suPer8Hu/ai-relay/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"github.com/suPer8Hu/ai-relay/internal/tracing"
	"go.uber.org/zap"
)

type Deps struct {
	Handler *handlers.Handler
	Metrics *metrics.Metrics
	Log     *zap.Logger
	// Stop ends background middleware goroutines.
	Stop <-chan struct{}
}

func NewRouter(cfg config.Config, d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}

	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))
	r.Use(middleware.AccessLog(log))
	r.Use(middleware.CORS(cfg.CORSOrigins))
	if cfg.TracingEnabled {
		r.Use(tracing.GinMiddleware())
	}
	r.Use(d.Metrics.Middleware())

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h := d.Handler

	r.GET("/ping", h.Ping)
	r.GET("/healthz", h.Healthz)
	if d.Metrics != nil {
		r.GET("/metrics", d.Metrics.Handler())
	}

	limited := r.Group("/")
	limited.Use(middleware.NewRateLimiter(cfg.RateLimitMax, cfg.RateLimitEvery, d.Stop).Middleware())
	limited.POST("/submit", h.Submit)
	limited.POST("/submit/", h.Submit)
	limited.POST("/generate-response", h.GenerateResponse)
	limited.POST("/check-answer", h.CheckAnswer)

	// audit read-back (JWT required)
	if cfg.LogReaderJWTSecret != "" && h.Logs != nil {
		authGroup := r.Group("/")
		authGroup.Use(middleware.AuthRequired(cfg.LogReaderJWTSecret))
		authGroup.GET("/logs/:id", h.GetLog)
	}
	return r
}
