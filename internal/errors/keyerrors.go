package errors

import (
	"errors"
	"fmt"
)

// Key lifecycle errors (sentinel errors usable with errors.Is)
var (
	// ErrKeyFormat indicates a key code that does not match the expected
	// textual format. User-correctable; surfaced as a rejection reason.
	ErrKeyFormat = errors.New("invalid key format")

	// ErrKeyIntegrity indicates the embedded hash segment does not match
	// the recomputed value. Treated the same as a format error for users.
	ErrKeyIntegrity = errors.New("key integrity check failed")
)

// TransportError represents a network or HTTP-level failure talking to
// the remote key store. Non-2xx statuses and malformed JSON both map here.
type TransportError struct {
	Op         string // remote action, e.g. "VALIDATE_KEY"
	StatusCode int    // zero when the request never completed
	Err        error
}

func (e *TransportError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("remote store %s: HTTP %d", e.Op, e.StatusCode)
	}
	return fmt.Sprintf("remote store %s: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// NewTransportError wraps a transport failure for a remote action.
func NewTransportError(op string, statusCode int, err error) *TransportError {
	return &TransportError{Op: op, StatusCode: statusCode, Err: err}
}

// IsTransport reports whether err is (or wraps) a TransportError.
func IsTransport(err error) bool {
	var te *TransportError
	return errors.As(err, &te)
}

// RemoteLogicError represents an application-level failure reported by the
// remote endpoint (success:false with an error string). The remote message
// is surfaced verbatim to aid debugging.
type RemoteLogicError struct {
	Op      string
	Message string
}

func (e *RemoteLogicError) Error() string {
	return fmt.Sprintf("remote store %s rejected request: %s", e.Op, e.Message)
}

// NewRemoteLogicError creates a remote logic error for an action.
func NewRemoteLogicError(op, message string) *RemoteLogicError {
	return &RemoteLogicError{Op: op, Message: message}
}

// IsRemoteLogic reports whether err is (or wraps) a RemoteLogicError.
func IsRemoteLogic(err error) bool {
	var re *RemoteLogicError
	return errors.As(err, &re)
}
