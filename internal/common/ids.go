package common

import (
	"crypto/rand"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewCorrelationID returns a random UUIDv4 string. It needs no coordination and
// links a synchronous response to the log record written after it.
func NewCorrelationID() string {
	return uuid.NewString()
}

// NewULID returns a lexically sortable id, used for queue message ids.
func NewULID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
