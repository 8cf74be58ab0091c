package relay

import (
	"errors"
	"fmt"
)

var (
	ErrValidation                = errors.New("invalid submission")
	ErrMalformedUpstreamResponse = errors.New("malformed upstream response")
)

// TimeoutError reports that the connect or total timeout of the relay call
// was exceeded.
type TimeoutError struct {
	Err error
}

func (e *TimeoutError) Error() string { return "upstream timeout: " + e.Err.Error() }
func (e *TimeoutError) Unwrap() error { return e.Err }

// UpstreamError carries a non-2xx status returned by the upstream endpoint.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("upstream status %d", e.StatusCode)
	}
	return fmt.Sprintf("upstream status %d: %s", e.StatusCode, e.Body)
}

// InternalError wraps any other transport or encoding fault. Its detail is
// for logs only.
type InternalError struct {
	Err error
}

func (e *InternalError) Error() string { return "relay internal error: " + e.Err.Error() }
func (e *InternalError) Unwrap() error { return e.Err }

// Outcome names the failure category of err for metrics and logs.
func Outcome(err error) string {
	var (
		te *TimeoutError
		ue *UpstreamError
	)
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.As(err, &te):
		return "timeout"
	case errors.As(err, &ue):
		return "upstream_error"
	case errors.Is(err, ErrMalformedUpstreamResponse):
		return "malformed"
	default:
		return "internal"
	}
}
