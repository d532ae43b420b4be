package transport

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestFromResponseTable(t *testing.T) {
	cases := []struct {
		status int
		body   string
		kind   Kind
		msg    string
	}{
		{http.StatusBadGateway, "", TransportTransient, ""},
		{http.StatusGatewayTimeout, "<html>", TransportTransient, ""},
		{http.StatusServiceUnavailable, "", ServerUnavailable, GenericMessage},
		{0, "", ServerUnavailable, GenericMessage},
		{http.StatusForbidden, "", SessionInvalid, "Logged out"},
		{http.StatusInternalServerError, `{"error":"Feature locked"}`, OperationRejected, "Feature locked"},
		{http.StatusBadRequest, "  plain text  ", OperationRejected, "plain text"},
		{http.StatusNotFound, "", ConnectionFailed, GenericMessage},
	}
	for _, tc := range cases {
		err := FromResponse(tc.status, []byte(tc.body))
		if err.Kind != tc.kind {
			t.Fatalf("status %d: expected %s, got %s", tc.status, tc.kind, err.Kind)
		}
		if err.Message != tc.msg {
			t.Fatalf("status %d: expected message %q, got %q", tc.status, tc.msg, err.Message)
		}
	}
}

func TestClassifyDistinguishesCancelFromTimeout(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	cancel()
	if got := Classify(parent, context.Canceled); got.Kind != ClientCancelled {
		t.Fatalf("expected cancel, got %s", got.Kind)
	}

	if got := Classify(context.Background(), fmt.Errorf("get: %w", context.DeadlineExceeded)); got.Kind != TransportTransient {
		t.Fatalf("expected transient for timeout, got %s", got.Kind)
	}

	if got := Classify(context.Background(), errors.New("connection refused")); got.Kind != ServerUnavailable {
		t.Fatalf("expected server unavailable, got %s", got.Kind)
	}
}

func TestErrorsIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("execute: %w", &Error{Kind: StaleSession, Message: "track t"})
	if !errors.Is(err, ErrStaleSession) {
		t.Fatalf("expected errors.Is to match stale session sentinel")
	}
	if errors.Is(err, ErrConfirmationRequired) {
		t.Fatalf("kinds must not cross-match")
	}
	if KindOf(err) != StaleSession {
		t.Fatalf("unexpected kind %s", KindOf(err))
	}
	if KindOf(errors.New("plain")) != KindUnknown {
		t.Fatalf("plain errors should be unknown")
	}
}

func TestEndpointJoin(t *testing.T) {
	got, err := Endpoint("http://host:8080/apollo/", ChangeFeedPath)
	if err != nil {
		t.Fatalf("endpoint: %v", err)
	}
	if got != "http://host:8080/apollo/AnnotationChangeNotificationService" {
		t.Fatalf("unexpected endpoint %s", got)
	}
}

func TestKindRecoveryClasses(t *testing.T) {
	cases := []struct {
		kind      Kind
		fatal     bool
		retryable bool
	}{
		{TransportTransient, false, true},
		{SessionInvalid, true, false},
		{ServerUnavailable, true, false},
		{ClientCancelled, false, false},
		{OperationRejected, false, false},
		{ConnectionFailed, false, false},
		{StaleSession, false, false},
	}
	for _, tc := range cases {
		if tc.kind.Fatal() != tc.fatal || tc.kind.Retryable() != tc.retryable {
			t.Fatalf("%s: fatal=%v retryable=%v", tc.kind, tc.kind.Fatal(), tc.kind.Retryable())
		}
	}
}
