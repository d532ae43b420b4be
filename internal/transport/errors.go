package transport

import (
	"errors"
	"fmt"
)

// Kind classifies every failure the sync core can produce.
type Kind int

const (
	KindUnknown Kind = iota
	// TransportTransient covers timeouts, 502 and 504; retried silently.
	TransportTransient
	// SessionInvalid is a 403; fatal, forces reload.
	SessionInvalid
	// ServerUnavailable is a 503 or a failure with no status; fatal, forces reload.
	ServerUnavailable
	// ClientCancelled is a cooperative cancel and never surfaced as a failure.
	ClientCancelled
	// OperationRejected carries a server-provided error body.
	OperationRejected
	// ConnectionFailed is any other failure without a body.
	ConnectionFailed
	// StaleSession means an edit was refused because no listener is live.
	StaleSession
	// ConfirmationRequired means the edit needs an explicit confirmed resend.
	ConfirmationRequired
)

var kindNames = map[Kind]string{
	KindUnknown:          "unknown",
	TransportTransient:   "transport_transient",
	SessionInvalid:       "session_invalid",
	ServerUnavailable:    "server_unavailable",
	ClientCancelled:      "client_cancelled",
	OperationRejected:    "operation_rejected",
	ConnectionFailed:     "connection_failed",
	StaleSession:         "stale_session",
	ConfirmationRequired: "confirmation_required",
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Fatal reports whether the kind requires a full client reload.
func (k Kind) Fatal() bool {
	return k == SessionInvalid || k == ServerUnavailable
}

// Retryable reports whether the listener reissues its request immediately.
func (k Kind) Retryable() bool {
	return k == TransportTransient
}

// GenericMessage is surfaced when the server gave no body to show.
const GenericMessage = "Server connection error"

// Error is a classified failure.
type Error struct {
	Kind    Kind
	Status  int
	Message string
	Err     error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Status != 0:
		return fmt.Sprintf("%s (status %d): %s", e.Kind, e.Status, e.Message)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Status != 0:
		return fmt.Sprintf("%s (status %d)", e.Kind, e.Status)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so sentinels below work with errors.Is.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// UserMessage returns the text to surface for the failure.
func (e *Error) UserMessage() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericMessage
}

var (
	ErrStaleSession         = &Error{Kind: StaleSession, Message: "no live change feed for track"}
	ErrConfirmationRequired = &Error{Kind: ConfirmationRequired}
	ErrCancelled            = &Error{Kind: ClientCancelled}
)

// KindOf extracts the classification from err, returning KindUnknown for
// unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
