package gateway

import (
	"errors"
	"fmt"

	"github.com/feedopt/feedopt/pkg/formulation"
)

// Error reports a failed exchange with the optimization service. StatusCode is
// zero when no response was received.
type Error struct {
	Op         string
	StatusCode int
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Unreachable reports whether err means the service could not be contacted.
func Unreachable(err error) bool {
	var gerr *Error
	return errors.As(err, &gerr) && gerr.StatusCode == 0 && !errors.Is(err, formulation.ErrServiceFailure)
}

// StatusMessage turns an operation error into the one-line message shown to
// users.
func StatusMessage(err error) string {
	if err == nil {
		return ""
	}
	var gerr *Error
	if errors.As(err, &gerr) {
		switch {
		case errors.Is(err, formulation.ErrServiceFailure):
			return "Optimization failed: " + gerr.Message
		case gerr.StatusCode == 0:
			return "Optimization service unavailable: " + gerr.Message
		default:
			return fmt.Sprintf("Optimization service error (%d): %s", gerr.StatusCode, gerr.Message)
		}
	}
	return "Error: " + err.Error()
}
