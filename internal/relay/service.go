package relay

import (
	"context"
	"errors"
	"time"

	"github.com/suPer8Hu/ai-relay/internal/common"
	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"github.com/suPer8Hu/ai-relay/internal/persist"
	"go.uber.org/zap"
)

type Relayer interface {
	Relay(ctx context.Context, sub Submission) (*UpstreamResponse, error)
}

// Scheduler accepts a log record for detached persistence. Submit must not
// block and never reports persistence failures.
type Scheduler interface {
	Submit(rec persist.Record) bool
}

type Service struct {
	client    Relayer
	scheduler Scheduler
	log       *zap.Logger
	metrics   *metrics.Metrics
}

func NewService(client Relayer, scheduler Scheduler, log *zap.Logger, m *metrics.Metrics) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{client: client, scheduler: scheduler, log: log, metrics: m}
}

// Submit relays sub, extracts the completion and returns it with a fresh
// correlation id. The log record is scheduled only after the result is
// ready and only on success.
func (s *Service) Submit(ctx context.Context, sub Submission) (*Result, error) {
	if err := sub.Validate(); err != nil {
		s.metrics.RelayOutcome(Outcome(err))
		return nil, err
	}

	start := time.Now()
	resp, err := s.client.Relay(ctx, sub)
	if err != nil {
		s.fail(err, start)
		return nil, err
	}

	completion, err := Extract(resp)
	if err != nil {
		s.fail(err, start)
		return nil, err
	}

	result := &Result{
		ID:         common.NewCorrelationID(),
		Completion: completion,
	}
	s.metrics.RelayOutcome(Outcome(nil))
	s.log.Debug("relay succeeded",
		zap.String("correlation_id", result.ID),
		zap.String("model", completion.Model),
		zap.Duration("cost", time.Since(start)),
	)

	s.scheduler.Submit(persist.Record{
		CorrelationID:    result.ID,
		SubmissionText:   sub.Text,
		StyleExample:     copyString(sub.StyleExample),
		Model:            completion.Model,
		PromptTokens:     completion.Tokens.PromptTokens,
		CompletionTokens: completion.Tokens.CompletionTokens,
		ResponseData:     append([]byte(nil), resp.Raw...),
	})
	return result, nil
}

func (s *Service) fail(err error, start time.Time) {
	outcome := Outcome(err)
	s.metrics.RelayOutcome(outcome)

	fields := []zap.Field{
		zap.String("outcome", outcome),
		zap.Duration("cost", time.Since(start)),
		zap.Error(err),
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		fields = append(fields, zap.Int("upstream_status", ue.StatusCode))
	}
	s.log.Error("relay failed", fields...)
}

func copyString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
