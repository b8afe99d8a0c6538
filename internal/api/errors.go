package api

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the fetcher can report.
type Kind int

const (
	// NetworkError: no response reached the client.
	NetworkError Kind = iota + 1
	// Unauthorized: the backend answered 401; the credential has been cleared.
	Unauthorized
	// ValidationError: a 4xx other than 401, usually with a message for the user.
	ValidationError
	// ServerError: a 5xx.
	ServerError
	// MalformedResponse: the body was not JSON of the expected shape, or the
	// status made no sense.
	MalformedResponse
	// Canceled: the caller gave up; the response, if any, must be ignored.
	Canceled
)

func (k Kind) String() string {
	switch k {
	case NetworkError:
		return "network error"
	case Unauthorized:
		return "unauthorized"
	case ValidationError:
		return "validation error"
	case ServerError:
		return "server error"
	case MalformedResponse:
		return "malformed response"
	case Canceled:
		return "canceled"
	}
	return "unknown"
}

// Sentinels matched with errors.Is against an *Error of the same kind.
var (
	ErrNetwork      = errors.New("network error")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation error")
	ErrServer       = errors.New("server error")
	ErrMalformed    = errors.New("malformed response")
	ErrCanceled     = errors.New("request canceled")
)

var sentinels = map[Kind]error{
	NetworkError:      ErrNetwork,
	Unauthorized:      ErrUnauthorized,
	ValidationError:   ErrValidation,
	ServerError:       ErrServer,
	MalformedResponse: ErrMalformed,
	Canceled:          ErrCanceled,
}

// Error is the normalized failure of one request.  Message is suitable for
// showing to the user.
type Error struct {
	Kind    Kind
	Status  int // 0 when no response arrived
	Message string
	Err     error // underlying transport or decode error, if any
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes both the kind sentinel and the underlying cause.
func (e *Error) Unwrap() []error {
	out := make([]error, 0, 2)
	if s, ok := sentinels[e.Kind]; ok {
		out = append(out, s)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// Retryable reports whether showing a "try again" action makes sense.
func (e *Error) Retryable() bool {
	return e.Kind == NetworkError || e.Kind == ServerError
}

// KindOf returns the Kind of err, or 0 when err did not come from the fetcher.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return 0
}

// Message returns the text to show the user for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	return err.Error()
}
