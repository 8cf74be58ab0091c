package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/suPer8Hu/ai-relay/internal/answer"
	"github.com/suPer8Hu/ai-relay/internal/common"
	"github.com/suPer8Hu/ai-relay/internal/httpapi/middleware"
	"go.uber.org/zap"
)

type checkAnswerReq struct {
	UserAnswer    string `json:"user_answer"`
	CorrectAnswer string `json:"correct_answer"`
}

func (h *Handler) CheckAnswer(c *gin.Context) {
	var req checkAnswerReq
	if err := c.ShouldBindJSON(&req); err != nil {
		common.Fail(c, http.StatusBadRequest, 40000, "invalid json")
		return
	}

	ok, err := h.Answers.Evaluate(c.Request.Context(), req.UserAnswer, req.CorrectAnswer)
	if err != nil {
		if errors.Is(err, answer.ErrValidation) {
			common.Fail(c, http.StatusBadRequest, 40002, "user_answer and correct_answer are required")
			return
		}
		h.Log.Error("check answer failed",
			zap.String("request_id", middleware.GetRequestID(c)),
			zap.Bool("ambiguous", errors.Is(err, answer.ErrAmbiguousVerdict)),
			zap.Error(err),
		)
		common.Fail(c, http.StatusInternalServerError, 50000, "internal server error")
		return
	}
	c.JSON(http.StatusOK, gin.H{"is_correct": ok})
}
