package examclient

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/stemsi/exstem-attempt/internal/response"
)

// Lifecycle and authorization outcomes of exam API calls.
var (
	ErrNotFound       = errors.New("attempt not found")
	ErrAlreadyExists  = errors.New("attempt already exists")
	ErrNotInProgress  = errors.New("attempt is not in progress")
	ErrResultNotReady = errors.New("result not ready")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrTransport      = errors.New("transport failure")
)

// APIError is a well-formed error response from the exam API.
// It unwraps to one of the sentinels above when the code maps to one.
type APIError struct {
	StatusCode int
	Code       response.ErrCode
	Message    string
	Fields     map[string]string
	kind       error
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("exam api: status %d (%s)", e.StatusCode, e.Code)
	}
	return fmt.Sprintf("exam api: %s: %s", e.Code, e.Message)
}

func (e *APIError) Unwrap() error {
	return e.kind
}

// TransportError is a network failure, a 5xx, or an unreadable response.
type TransportError struct {
	Op         string
	StatusCode int
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: status %d: %v", e.Op, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Is makes every TransportError match ErrTransport.
func (e *TransportError) Is(target error) bool {
	return target == ErrTransport
}

// IsRetryable reports whether err is a transient failure that the next edit
// or poll may recover from.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTransport)
}

func classify(statusCode int, code response.ErrCode) error {
	switch code {
	case response.ErrAttemptNotFound:
		return ErrNotFound
	case response.ErrAttemptExists:
		return ErrAlreadyExists
	case response.ErrAttemptClosed, response.ErrAttemptTimeOver:
		return ErrNotInProgress
	case response.ErrResultNotReady:
		return ErrResultNotReady
	case response.ErrTokenRequired, response.ErrTokenInvalid, response.ErrSessionInvalidated:
		return ErrUnauthorized
	}
	if statusCode == http.StatusUnauthorized || statusCode == http.StatusForbidden {
		return ErrUnauthorized
	}
	return nil
}
