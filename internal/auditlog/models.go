package auditlog

import (
	"context"
	"errors"
	"time"

	"gorm.io/datatypes"
)

var ErrNotFound = errors.New("log record not found")

// LogRecord is one successful exchange. ResponseData holds the upstream body
// exactly as received. Records are written once and never updated.
type LogRecord struct {
	ID               uint64         `gorm:"primaryKey;autoIncrement" json:"-"`
	CorrelationID    string         `gorm:"type:varchar(36);uniqueIndex;not null" json:"id"`
	RequestBio       string         `gorm:"type:text;not null" json:"request_bio"`
	StyleExample     *string        `gorm:"type:text" json:"style_example,omitempty"`
	ResponseData     datatypes.JSON `gorm:"not null" json:"response_data"`
	Model            string         `gorm:"type:varchar(128);index" json:"model"`
	PromptTokens     int            `json:"prompt_tokens"`
	CompletionTokens int            `json:"completion_tokens"`
	CreatedAt        time.Time      `json:"created_at"`
}

func (LogRecord) TableName() string { return "api_logs" }

// Store is the durable log store. Insert must be idempotent per CorrelationID.
type Store interface {
	Insert(ctx context.Context, rec *LogRecord) error
	GetByCorrelationID(ctx context.Context, correlationID string) (*LogRecord, error)
}
