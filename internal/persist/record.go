package persist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/suPer8Hu/ai-relay/internal/auditlog"
	"gorm.io/datatypes"
)

var ErrBadMessage = errors.New("persist: bad log message")

// Record is the unit handed to the detached task. It is also the queue
// message body in queue mode.
type Record struct {
	CorrelationID    string          `json:"correlation_id"`
	SubmissionText   string          `json:"submission_text"`
	StyleExample     *string         `json:"style_example,omitempty"`
	Model            string          `json:"model"`
	PromptTokens     int             `json:"prompt_tokens"`
	CompletionTokens int             `json:"completion_tokens"`
	ResponseData     json.RawMessage `json:"response_data"`
}

func (r Record) validate() error {
	if strings.TrimSpace(r.CorrelationID) == "" {
		return fmt.Errorf("%w: correlation_id is empty", ErrBadMessage)
	}
	if !json.Valid(r.ResponseData) {
		return fmt.Errorf("%w: response_data is not valid json", ErrBadMessage)
	}
	return nil
}

func (r Record) logRecord() *auditlog.LogRecord {
	return &auditlog.LogRecord{
		CorrelationID:    r.CorrelationID,
		RequestBio:       r.SubmissionText,
		StyleExample:     r.StyleExample,
		ResponseData:     datatypes.JSON(r.ResponseData),
		Model:            r.Model,
		PromptTokens:     r.PromptTokens,
		CompletionTokens: r.CompletionTokens,
	}
}

type Persister interface {
	Persist(ctx context.Context, rec Record) error
}

// StorePersister writes records straight to the log store.
type StorePersister struct {
	store auditlog.Store
}

func NewStorePersister(store auditlog.Store) *StorePersister {
	return &StorePersister{store: store}
}

func (p *StorePersister) Persist(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	return p.store.Insert(ctx, rec.logRecord())
}

type Publisher interface {
	PublishLog(ctx context.Context, correlationID string, body []byte) error
}

// QueuePersister hands records to the worker process through the queue.
type QueuePersister struct {
	pub Publisher
}

func NewQueuePersister(pub Publisher) *QueuePersister {
	return &QueuePersister{pub: pub}
}

func (p *QueuePersister) Persist(ctx context.Context, rec Record) error {
	if err := rec.validate(); err != nil {
		return err
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return p.pub.PublishLog(ctx, rec.CorrelationID, body)
}
