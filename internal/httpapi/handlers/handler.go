package handlers

import (
	"context"

	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"github.com/suPer8Hu/ai-relay/internal/relay"
	"go.uber.org/zap"
)

type Submitter interface {
	Submit(ctx context.Context, sub relay.Submission) (*relay.Result, error)
}

type Evaluator interface {
	Evaluate(ctx context.Context, userAnswer, correctAnswer string) (bool, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handler struct {
	Relay   Submitter
	Answers Evaluator
	Logs    auditlog.Store
	Health  Pinger
	Log     *zap.Logger
}

func NewHandler(relaySvc Submitter, answers Evaluator, logs auditlog.Store, health Pinger, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{
		Relay:   relaySvc,
		Answers: answers,
		Logs:    logs,
		Health:  health,
		Log:     log,
	}
}
