package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/common"
	"github.com/suPer8Hu/ai-relay/internal/httpapi/middleware"
	"github.com/suPer8Hu/ai-relay/internal/relay"
	"go.uber.org/zap"
)

// submitReq accepts the current {question} field and the legacy {bio}.
type submitReq struct {
	Question     *string `json:"question"`
	Bio          *string `json:"bio"`
	StyleExample *string `json:"style_example"`
}

func (r submitReq) text() string {
	if r.Question != nil && strings.TrimSpace(*r.Question) != "" {
		return *r.Question
	}
	if r.Bio != nil {
		return *r.Bio
	}
	return ""
}

func (h *Handler) Submit(c *gin.Context) {
	var req submitReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "invalid json")
		return
	}

	res, err := h.Relay.Submit(c.Request.Context(), relay.NewSubmission(req.text(), req.StyleExample))
	if err != nil {
		h.relayFail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type generateReq struct {
	Messages []relay.Message `json:"messages"`
}

func (h *Handler) GenerateResponse(c *gin.Context) {
	var req generateReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "invalid json")
		return
	}

	res, err := h.Relay.Submit(c.Request.Context(), relay.ConversationSubmission(req.Messages))
	if err != nil {
		h.relayFail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// relayFail maps the relay error taxonomy to a status. Internal detail is
// logged, never returned.
func (h *Handler) relayFail(c *gin.Context, err error) {
	var (
		te *relay.TimeoutError
		ue *relay.UpstreamError
	)
	switch {
	case errors.Is(err, relay.ErrValidation):
		common.Fail(c, http.StatusBadRequest, 40001, "question or bio is required")
		return
	case errors.As(err, &te):
		common.Fail(c, http.StatusRequestTimeout, 40800, "upstream timeout")
		return
	case errors.As(err, &ue):
		status := ue.StatusCode
		if status < 400 || status > 599 {
			status = http.StatusInternalServerError
		}
		common.Fail(c, status, 50200, "upstream error")
	case errors.Is(err, relay.ErrMalformedUpstreamResponse):
		common.Fail(c, http.StatusInternalServerError, 50001, "malformed upstream response")
	default:
		common.Fail(c, http.StatusInternalServerError, 50000, "internal server error")
	}

	h.Log.Error("submit failed",
		zap.String("request_id", middleware.GetRequestID(c)),
		zap.String("outcome", relay.Outcome(err)),
		zap.Error(err),
	)
}
