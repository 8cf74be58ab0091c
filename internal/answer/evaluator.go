package answer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/suPer8Hu/ai-relay/internal/ai"
	"github.com/suPer8Hu/ai-relay/internal/metrics"
	"go.uber.org/zap"
)

var (
	ErrValidation = errors.New("user_answer and correct_answer are required")

	// ErrAmbiguousVerdict means the classifier reply contained neither
	// "true" nor "false".
	ErrAmbiguousVerdict = errors.New("ambiguous classifier verdict")
)

const (
	defaultMaxTokens = 10
	defaultTimeout   = 30 * time.Second
)

const systemInstruction = "You grade quiz answers. Be lenient: accept answers that are roughly " +
	"equivalent, partially correct, misspelled or phrased differently. Reject only answers " +
	"that are nonsensical or unrelated. Reply with exactly one word: true or false."

// Classifier is the chat backend asked for a verdict.
type Classifier interface {
	Chat(ctx context.Context, messages []ai.Message, opts ...ai.CallOption) (string, error)
}

// VerdictCache remembers verdicts by key. A miss is (false, false, nil).
type VerdictCache interface {
	GetVerdict(ctx context.Context, key string) (verdict bool, ok bool, err error)
	SetVerdict(ctx context.Context, key string, verdict bool) error
}

type Options struct {
	MaxTokens int
	Timeout   time.Duration
	Cache     VerdictCache
	Logger    *zap.Logger
	Metrics   *metrics.Metrics
}

type Evaluator struct {
	classifier Classifier
	maxTokens  int
	timeout    time.Duration
	cache      VerdictCache
	log        *zap.Logger
	metrics    *metrics.Metrics
}

func NewEvaluator(c Classifier, opts Options) *Evaluator {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = defaultMaxTokens
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Evaluator{
		classifier: c,
		maxTokens:  opts.MaxTokens,
		timeout:    opts.Timeout,
		cache:      opts.Cache,
		log:        opts.Logger,
		metrics:    opts.Metrics,
	}
}

func buildPrompt(userAnswer, correctAnswer string) string {
	return fmt.Sprintf(
		"Correct answer: %s\nUser answer: %s\n"+
			"Is the user answer roughly correct? Give credit for close but imperfect answers. "+
			"Answer true or false.",
		correctAnswer, userAnswer,
	)
}

// Evaluate reports whether userAnswer is leniently equivalent to correctAnswer.
func (e *Evaluator) Evaluate(ctx context.Context, userAnswer, correctAnswer string) (bool, error) {
	if strings.TrimSpace(userAnswer) == "" || strings.TrimSpace(correctAnswer) == "" {
		return false, ErrValidation
	}

	key := cacheKey(userAnswer, correctAnswer)
	if e.cache != nil {
		verdict, ok, err := e.cache.GetVerdict(ctx, key)
		switch {
		case err != nil:
			e.log.Warn("verdict cache read failed", zap.Error(err))
		case ok:
			e.metrics.Verdict(label(verdict))
			return verdict, nil
		}
	}

	cctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	reply, err := e.classifier.Chat(cctx, []ai.Message{
		{Role: "system", Content: systemInstruction},
		{Role: "user", Content: buildPrompt(userAnswer, correctAnswer)},
	}, ai.WithMaxTokens(e.maxTokens))
	if err != nil {
		e.metrics.Verdict("error")
		return false, fmt.Errorf("answer: classifier call: %w", err)
	}

	verdict, err := ParseVerdict(reply)
	if err != nil {
		e.metrics.Verdict("ambiguous")
		e.log.Warn("classifier verdict unparseable", zap.String("reply", reply))
		return false, err
	}
	e.metrics.Verdict(label(verdict))

	if e.cache != nil {
		if err := e.cache.SetVerdict(ctx, key, verdict); err != nil {
			e.log.Warn("verdict cache write failed", zap.Error(err))
		}
	}
	return verdict, nil
}

// ParseVerdict matches "true" before "false", case-insensitively, so a
// reply containing both is true.
func ParseVerdict(reply string) (bool, error) {
	s := strings.ToLower(reply)
	if strings.Contains(s, "true") {
		return true, nil
	}
	if strings.Contains(s, "false") {
		return false, nil
	}
	return false, fmt.Errorf("%w: %q", ErrAmbiguousVerdict, reply)
}

func cacheKey(userAnswer, correctAnswer string) string {
	sum := sha256.Sum256([]byte(correctAnswer + "\x00" + userAnswer))
	return hex.EncodeToString(sum[:])
}

func label(verdict bool) string {
	if verdict {
		return "true"
	}
	return "false"
}
