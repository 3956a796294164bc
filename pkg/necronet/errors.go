package necronet

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// Error kinds. Every *APIError unwraps to exactly one of these.
var (
	// ErrNetwork indicates no response was received.
	ErrNetwork = errors.New("network error")

	// ErrTimeout indicates a request deadline or the polling attempt budget was exceeded.
	ErrTimeout = errors.New("timeout")

	// ErrNotFound indicates the service answered 404.
	ErrNotFound = errors.New("not found")

	// ErrServer indicates any other non-2xx answer or an unreadable body.
	ErrServer = errors.New("server error")

	// ErrValidation indicates a client-side rejection before any request was sent.
	ErrValidation = errors.New("validation failed")
)

// User-facing messages in the museum curator's voice.
const (
	MessageNetwork  = "The spirits are restless... Connection lost. Please try again."
	MessageNotFound = "This artifact has vanished into the void..."
	MessageServer   = "Something corrupted in the crypt. Try again?"
	MessageTimeout  = "The ghost curator is taking too long..."
	MessageUnknown  = "An unknown force disrupted the resurrection..."
)

// APIError is the single normalized error shape surfaced by the client,
// the poller and the upload controller.
type APIError struct {
	Kind   error  // one of the Err* sentinels
	Detail string // user-facing message
	Status int    // HTTP status code, 0 when no response was received
	Err    error  // underlying cause, may be nil
}

func (e *APIError) Error() string {
	return e.Detail
}

// Unwrap exposes both the kind sentinel and the cause.
func (e *APIError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is matches another *APIError of the same kind and status.
func (e *APIError) Is(target error) bool {
	t, ok := target.(*APIError)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Status == 0 || t.Status == e.Status)
}

// NewNetworkError reports that no response was received.
func NewNetworkError(cause error) *APIError {
	return &APIError{Kind: ErrNetwork, Detail: MessageNetwork, Status: 0, Err: cause}
}

// NewTimeoutError reports an exceeded deadline or attempt budget.
func NewTimeoutError(cause error) *APIError {
	return &APIError{Kind: ErrTimeout, Detail: MessageTimeout, Status: 0, Err: cause}
}

// NewNotFoundError reports a 404 answer.
func NewNotFoundError(cause error) *APIError {
	return &APIError{Kind: ErrNotFound, Detail: MessageNotFound, Status: 404, Err: cause}
}

// NewServerError reports a non-2xx answer. An empty detail falls back to
// the generic server message.
func NewServerError(status int, detail string, cause error) *APIError {
	if detail == "" {
		detail = MessageServer
	}
	return &APIError{Kind: ErrServer, Detail: detail, Status: status, Err: cause}
}

// NewValidationError reports a local pre-flight rejection.
func NewValidationError(detail string) *APIError {
	return &APIError{Kind: ErrValidation, Detail: detail, Status: 0}
}

// AsAPIError coerces any error into the normalized shape. Errors that are
// already *APIError are returned unchanged; deadline errors become Timeout,
// other transport errors become Network and anything else becomes Server.
func AsAPIError(err error) *APIError {
	if err == nil {
		return nil
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	if isTimeout(err) {
		return NewTimeoutError(err)
	}
	var netErr net.Error
	if errors.Is(err, context.Canceled) || errors.As(err, &netErr) {
		return NewNetworkError(err)
	}
	return NewServerError(0, MessageUnknown, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTimeout reports whether err is a deadline or attempt-budget failure.
func IsTimeout(err error) bool {
	return errors.Is(err, ErrTimeout) || isTimeout(err)
}

// DisplayMessage returns the detail of err, or fallback when err carries none.
func DisplayMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Detail != "" {
		return apiErr.Detail
	}
	return fallback
}

// StorageError represents a failed object storage operation.
type StorageError struct {
	Bucket string
	Key    string
	Op     string
	Err    error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage operation %s failed for key %s in bucket %s: %v", e.Op, e.Key, e.Bucket, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}
