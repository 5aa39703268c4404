// Package amperr defines the domain error taxonomy shared by every
// component of the bridge and its mapping onto JSON-RPC wire codes.
package amperr

import (
	"errors"
	"fmt"
)

// Kind identifies a domain-level error category. Kinds map 1:1 onto the
// JSON-RPC error codes the router serializes onto the wire.
type Kind string

const (
	KindParseError        Kind = "parse_error"
	KindInvalidRequest    Kind = "invalid_request"
	KindMethodNotFound    Kind = "method_not_found"
	KindInvalidArgs       Kind = "invalid_args"
	KindInternalError     Kind = "internal_error"
	KindWebSocketError    Kind = "websocket_error"
	KindDatabaseError     Kind = "database_error"
	KindIoError           Kind = "io_error"
	KindExternalCliError  Kind = "external_cli_error"
	KindConfigError       Kind = "config_error"
	KindHubError          Kind = "hub_error"
	KindNotificationError Kind = "notification_error"
	KindConversionError   Kind = "conversion_error"

	// KindAlreadyRunning is facade-level only (internal/server's
	// Start/Stop): it never crosses the RPC router, so it has no wire
	// code of its own and falls back to InternalError's in CodeFor/ToWire.
	KindAlreadyRunning Kind = "already_running"
)

var wireCodes = map[Kind]int{
	KindParseError:        -32700,
	KindInvalidRequest:    -32600,
	KindMethodNotFound:    -32601,
	KindInvalidArgs:       -32602,
	KindInternalError:     -32603,
	KindWebSocketError:    -32001,
	KindDatabaseError:     -32002,
	KindIoError:           -32003,
	KindExternalCliError:  -32004,
	KindConfigError:       -32005,
	KindHubError:          -32006,
	KindNotificationError: -32007,
	KindConversionError:   -32008,
}

var userMessages = map[Kind]string{
	KindParseError:        "The request could not be parsed as JSON.",
	KindInvalidRequest:    "The request envelope is malformed.",
	KindMethodNotFound:    "Unknown method.",
	KindInvalidArgs:       "The request arguments are invalid.",
	KindInternalError:     "An internal error occurred.",
	KindWebSocketError:    "The connection was closed.",
	KindDatabaseError:     "A database error occurred.",
	KindIoError:           "A filesystem error occurred.",
	KindExternalCliError:  "An external command failed.",
	KindConfigError:       "The bridge could not be configured.",
	KindHubError:          "The client registry rejected the operation.",
	KindNotificationError: "A notification could not be delivered.",
	KindConversionError:   "A value could not be converted.",
	KindAlreadyRunning:    "The bridge is already running.",
}

// Error is the single error type that crosses every component boundary in
// this module. Handlers return it (or a plain error, which the router
// treats as KindInternalError) instead of a bare string.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap lifts a plain error into the domain taxonomy, preserving it for
// errors.Unwrap / errors.Is chains.
func Wrap(kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Message: err.Error(), Cause: err}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the JSON-RPC wire code for this error's kind.
func (e *Error) Code() int { return CodeFor(e.Kind) }

// UserMessage returns editor-facing text distinct from the (often
// technical) Message field.
func (e *Error) UserMessage() string {
	if msg, ok := userMessages[e.Kind]; ok {
		return msg
	}
	return "An unknown error occurred."
}

// CodeFor returns the wire code for a Kind, defaulting to InternalError's
// code for unrecognized kinds (should not happen for a zero-value Kind
// produced outside this package).
func CodeFor(kind Kind) int {
	if code, ok := wireCodes[kind]; ok {
		return code
	}
	return wireCodes[KindInternalError]
}

// Is reports whether err is an *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// ToWire converts any error into a (code, message) pair suitable for a
// JSON-RPC or wrapped-dialect error object. Non-amperr errors are treated
// as internal errors, matching the router's propagation policy: every
// handler error crossing the router boundary becomes a structured
// response, never a panic or a dropped connection.
func ToWire(err error) (code int, message string) {
	var e *Error
	if errors.As(err, &e) {
		return e.Code(), e.Message
	}
	return CodeFor(KindInternalError), err.Error()
}
