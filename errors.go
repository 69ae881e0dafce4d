package bidi

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConnected is returned when a broker is used before Connect.
	ErrNotConnected = errors.New("bidi: broker not connected")
	// ErrAlreadyConnected is returned by a second Connect.
	ErrAlreadyConnected = errors.New("bidi: broker already connected")
	// ErrClosed is the cause observed by every wait once the broker is closed.
	ErrClosed = errors.New("bidi: broker closed")
	// ErrDisconnected is the cause observed by every wait once the transport
	// failed. The transport error is wrapped alongside it.
	ErrDisconnected = errors.New("bidi: connection lost")
	// ErrTimeout is returned when no response arrived within the command
	// timeout. The remote command may still have run.
	ErrTimeout = errors.New("bidi: command timed out")
	// ErrInvalidHandler is returned by Subscribe for a nil handler.
	ErrInvalidHandler = errors.New("bidi: handler is required")
)

// ProtocolError is a remote error response to a command.
type ProtocolError struct {
	ID         int64
	Method     string
	Code       string
	Message    string
	Stacktrace string
}

func (e *ProtocolError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bidi: %s failed: %s", e.Method, e.Code)
	}
	return fmt.Sprintf("bidi: %s failed: %s: %s", e.Method, e.Code, e.Message)
}

// IsProtocolError reports whether err carries a remote error with the given
// code, e.g. "no such frame". An empty code matches any remote error.
func IsProtocolError(err error, code string) bool {
	var pe *ProtocolError
	if !errors.As(err, &pe) {
		return false
	}
	return code == "" || pe.Code == code
}
