package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
)

// Classify maps an error returned while sending a request or reading its body
// onto the taxonomy. parent is the caller's context, used to tell a
// cooperative cancel apart from a per-request timeout.
func Classify(parent context.Context, err error) *Error {
	if err == nil {
		return nil
	}
	var classified *Error
	if errors.As(err, &classified) {
		return classified
	}
	if parent != nil && parent.Err() != nil {
		return &Error{Kind: ClientCancelled, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Kind: TransportTransient, Err: err}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &Error{Kind: TransportTransient, Err: err}
	}
	if errors.Is(err, context.Canceled) {
		return &Error{Kind: ClientCancelled, Err: err}
	}
	// No status: refused, reset or unreachable.
	return &Error{Kind: ServerUnavailable, Message: GenericMessage, Err: err}
}

// FromResponse classifies a non-2xx response by status and body.
func FromResponse(status int, body []byte) *Error {
	switch status {
	case http.StatusBadGateway, http.StatusGatewayTimeout:
		return &Error{Kind: TransportTransient, Status: status}
	case http.StatusServiceUnavailable, 0:
		return &Error{Kind: ServerUnavailable, Status: status, Message: GenericMessage}
	case http.StatusForbidden:
		return &Error{Kind: SessionInvalid, Status: status, Message: "Logged out"}
	}
	if msg := ErrorMessage(body); msg != "" {
		return &Error{Kind: OperationRejected, Status: status, Message: msg}
	}
	return &Error{Kind: ConnectionFailed, Status: status, Message: GenericMessage}
}

type errorBody struct {
	Error string `json:"error"`
}

// ErrorMessage extracts the server message from a response body. JSON bodies
// of the form {"error": "..."} yield the error field; anything else is
// returned trimmed.
func ErrorMessage(body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return ""
	}
	if trimmed[0] == '{' {
		var parsed errorBody
		if err := json.Unmarshal(trimmed, &parsed); err == nil && parsed.Error != "" {
			return parsed.Error
		}
	}
	return strings.TrimSpace(string(trimmed))
}
