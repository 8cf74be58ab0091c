package persist

import (
	"context"
	"encoding/json"
	"fmt"
)

// Consumer is the worker-side half of queue mode: it decodes one queue
// message and writes it through the wrapped persister.
type Consumer struct {
	persister Persister
}

func NewConsumer(p Persister) *Consumer {
	return &Consumer{persister: p}
}

// Handle returns an error wrapping ErrBadMessage when body can never succeed,
// so the caller can dead-letter it instead of retrying.
func (c *Consumer) Handle(ctx context.Context, body []byte) (string, error) {
	var rec Record
	if err := json.Unmarshal(body, &rec); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadMessage, err)
	}
	if err := rec.validate(); err != nil {
		return rec.CorrelationID, err
	}
	return rec.CorrelationID, c.persister.Persist(ctx, rec)
}
