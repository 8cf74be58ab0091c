package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/common"
	"go.uber.org/zap"
)

func (h *Handler) Ping(c *gin.Context) {
	common.OK(c, gin.H{"msg": "pong"})
}

func (h *Handler) Healthz(c *gin.Context) {
	if h.Health == nil {
		common.OK(c, gin.H{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	if err := h.Health.Ping(ctx); err != nil {
		h.Log.Warn("health check failed", zap.Error(err))
		common.Fail(c, http.StatusServiceUnavailable, 50300, "unhealthy")
		return
	}
	common.OK(c, gin.H{"status": "ok"})
}
