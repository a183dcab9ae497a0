package transport

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/smorand/slides-mirror/internal/host"
	"github.com/smorand/slides-mirror/internal/session"
)

// Sentinel errors for request handling.
var (
	ErrRouteNotFound    = errors.New("route not found")
	ErrMissingParameter = errors.New("missing parameter")
	ErrInvalidParameter = errors.New("invalid parameter value")
	ErrSlideNotCached   = errors.New("slide is not cached")
	ErrFileNotFound     = errors.New("file does not exist")
)

// StatusError is a handler failure with the HTTP status and the message
// written to the client.
type StatusError struct {
	Code    int
	Message string
	Err     error
}

func (e *StatusError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%d %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%d %s", e.Code, e.Message)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// NewStatusError creates a StatusError.
func NewStatusError(code int, message string, err error) *StatusError {
	return &StatusError{Code: code, Message: message, Err: err}
}

// statusFor maps a handler error to the response status and message.
// Client input errors answer 500, matching what existing frontends expect.
func statusFor(err error) (int, string) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code, se.Message
	}

	switch {
	case errors.Is(err, session.ErrNoActiveSlideShow), errors.Is(err, host.ErrNoSlideShowView):
		return http.StatusNotFound, "No active slide show"
	case errors.Is(err, ErrSlideNotCached):
		return http.StatusNotFound, "Slide does not exist"
	case errors.Is(err, ErrRouteNotFound), errors.Is(err, ErrFileNotFound):
		return http.StatusNotFound, "File does not exist"
	case errors.Is(err, ErrMissingParameter), errors.Is(err, ErrInvalidParameter):
		return http.StatusInternalServerError, err.Error()
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}
