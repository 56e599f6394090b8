package imap

import (
	"fmt"
)

// TransportErrorKind classifies transport failures for the reconnect policy.
type TransportErrorKind string

const (
	TransportConnect   TransportErrorKind = "connect"
	TransportTLS       TransportErrorKind = "tls"
	TransportIO        TransportErrorKind = "io"
	TransportTimeout   TransportErrorKind = "timeout"
	TransportCancelled TransportErrorKind = "cancelled"
)

// TransportError wraps a network level failure. IO and timeout failures are
// recoverable through reconnection; cancellation never is.
type TransportError struct {
	Kind TransportErrorKind
	Err  error
}

func (e *TransportError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("transport %s error", e.Kind)
	}
	return fmt.Sprintf("transport %s error: %v", e.Kind, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the session may attempt a reconnect.
func (e *TransportError) Recoverable() bool {
	switch e.Kind {
	case TransportIO, TransportTimeout:
		return true
	default:
		return false
	}
}

// ProtocolError indicates bytes the codec or the parsers could not make sense
// of. The session is torn down; the error is not retried.
type ProtocolError struct {
	Detail string
}

func (e *ProtocolError) Error() string {
	return "protocol error: " + e.Detail
}

func protocolErrorf(format string, args ...interface{}) *ProtocolError {
	return &ProtocolError{Detail: fmt.Sprintf(format, args...)}
}

// AuthError is fatal to the run. Reason is human-readable and never contains
// credentials.
type AuthError struct {
	Reason string
}

func (e *AuthError) Error() string {
	return "authentication failed: " + e.Reason
}

// ServerStatusError is a tagged NO or BAD completion for a single command.
type ServerStatusError struct {
	Command string
	Status  string // NO or BAD
	Text    string
}

func (e *ServerStatusError) Error() string {
	return fmt.Sprintf("server returned %s to %s: %s", e.Status, e.Command, e.Text)
}
