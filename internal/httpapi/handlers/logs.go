package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"github.com/suPer8Hu/ai-relay/internal/common"
	"go.uber.org/zap"
)

func (h *Handler) GetLog(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if id == "" || len(id) > 36 {
		common.Fail(c, http.StatusBadRequest, 40003, "invalid id")
		return
	}

	rec, err := h.Logs.GetByCorrelationID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, auditlog.ErrNotFound) {
			common.Fail(c, http.StatusNotFound, 40401, "log record not found")
			return
		}
		h.Log.Error("log lookup failed", zap.String("correlation_id", id), zap.Error(err))
		common.Fail(c, http.StatusInternalServerError, 20001, "log store error")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":            rec.CorrelationID,
		"submission":    rec.RequestBio,
		"style_example": rec.StyleExample,
		"model":         rec.Model,
		"response_data": rec.ResponseData,
		"created_at":    rec.CreatedAt,
	})
}
