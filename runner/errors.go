package runner

import (
	"encoding/json"
	"fmt"
)

// Run error codes.
const (
	CodeScriptOpenFailed = "SCRIPT_OPEN_FAILED"
	CodeFlushFailed      = "FLUSH_FAILED"
	CodeSessionFailed    = "SESSION_FAILED"
	CodeCancelled        = "CANCELLED"
)

// RunError is a failure that ends a run. Statement failures never produce one.
type RunError struct {
	Code    string                 `json:"code"`
	Type    string                 `json:"type"`
	Message string                 `json:"message"`
	Details map[string]interface{} `json:"details"`
	Cause   error                  `json:"cause,omitempty"`
}

// Error implements the error interface.
func (e *RunError) Error() string {
	data := map[string]interface{}{
		"code":    e.Code,
		"type":    e.Type,
		"message": e.Message,
		"details": e.Details,
	}
	if e.Cause != nil {
		data["cause"] = map[string]interface{}{"message": e.Cause.Error()}
	}

	b, _ := json.Marshal(data)
	return string(b)
}

// Summary is the one-line form used on the console.
func (e *RunError) Summary() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause error.
func (e *RunError) Unwrap() error {
	return e.Cause
}

// ErrScriptOpen creates an error for a script that cannot be opened.
func ErrScriptOpen(path string, cause error) error {
	return &RunError{
		Code:    CodeScriptOpenFailed,
		Type:    "RUN_ERROR",
		Message: fmt.Sprintf("cannot open script '%s'", path),
		Details: map[string]interface{}{"path": path},
		Cause:   cause,
	}
}

// ErrFlushFailed creates an error for artifacts that could not be written.
func ErrFlushFailed(commandCount, pending int, cause error) error {
	return &RunError{
		Code:    CodeFlushFailed,
		Type:    "RUN_ERROR",
		Message: "failed to write error artifacts",
		Details: map[string]interface{}{
			"commandCount": commandCount,
			"pending":      pending,
		},
		Cause: cause,
	}
}

// ErrSessionFailed creates an error for a connect, authenticate or use step
// that failed before any statement ran.
func ErrSessionFailed(stage, address string, cause error) error {
	return &RunError{
		Code:    CodeSessionFailed,
		Type:    "RUN_ERROR",
		Message: fmt.Sprintf("%s failed", stage),
		Details: map[string]interface{}{
			"stage":   stage,
			"address": address,
		},
		Cause: cause,
	}
}

// ErrCancelled creates an error for a run stopped by its context.
func ErrCancelled(commandCount int, cause error) error {
	return &RunError{
		Code:    CodeCancelled,
		Type:    "RUN_ERROR",
		Message: "run cancelled",
		Details: map[string]interface{}{"commandCount": commandCount},
		Cause:   cause,
	}
}
