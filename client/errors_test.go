package client

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
)

func TestConnectionErrorJSON(t *testing.T) {
	err := &ConnectionError{
		Code:    "CONNECTION_FAILED",
		Type:    "CONNECTION_ERROR",
		Message: "failed to connect",
		Details: map[string]interface{}{"address": "localhost:7632"},
		Cause: &ConnectionError{
			Code:    "NETWORK_ERROR",
			Type:    "CONNECTION_ERROR",
			Message: "connection refused",
		},
	}

	var parsed map[string]interface{}
	if jsonErr := json.Unmarshal([]byte(err.Error()), &parsed); jsonErr != nil {
		t.Fatalf("error should be valid JSON: %v", jsonErr)
	}
	if parsed["code"] != "CONNECTION_FAILED" {
		t.Errorf("expected code=CONNECTION_FAILED, got %v", parsed["code"])
	}
	cause, ok := parsed["cause"].(map[string]interface{})
	if !ok || cause["code"] != "NETWORK_ERROR" {
		t.Errorf("expected nested cause code, got %v", parsed["cause"])
	}
}

func TestFormatErrorModes(t *testing.T) {
	err := &QueryError{
		Code:    "SERVER_ERROR",
		Type:    "QUERY_ERROR",
		Message: "table missing",
		Query:   "UPDATE t SET a = 1;",
		TraceID: "abc",
	}

	if got := FormatError(err, false); got != "SERVER_ERROR: table missing" {
		t.Errorf("unexpected short form %q", got)
	}
	if err.Error() != "SERVER_ERROR: table missing" {
		t.Errorf("Error() should use the short form, got %q", err.Error())
	}

	debug := FormatError(err, true)
	for _, want := range []string{`"query": "UPDATE t SET a = 1;"`, `"trace_id": "abc"`} {
		if !strings.Contains(debug, want) {
			t.Errorf("debug form missing %s:\n%s", want, debug)
		}
	}

	if FormatError(nil, true) != "" {
		t.Error("nil error should format as empty string")
	}
	if FormatError(errors.New("plain"), true) != "plain" {
		t.Error("plain errors should use Error()")
	}
}

func TestErrInvalidState(t *testing.T) {
	err := ErrInvalidState("Query", CONNECTED, CONNECTING)

	var se *StateError
	if !errors.As(err, &se) {
		t.Fatalf("expected *StateError, got %T", err)
	}
	if se.Details["currentState"] != "CONNECTING" {
		t.Errorf("unexpected details %v", se.Details)
	}
	if len(se.StackTrace) == 0 {
		t.Error("expected a captured stack trace")
	}
	if !strings.Contains(se.FormatError(false), "Query requires CONNECTED state") {
		t.Errorf("unexpected message %q", se.FormatError(false))
	}
}

func TestErrorsUnwrap(t *testing.T) {
	root := errors.New("boom")

	for _, err := range []error{
		&ConnectionError{Code: "X", Cause: root},
		&ProtocolError{Code: "X", Cause: root},
		&QueryError{Code: "X", Cause: root},
	} {
		if !errors.Is(err, root) {
			t.Errorf("%T should unwrap to its cause", err)
		}
	}
}
