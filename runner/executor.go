package runner

import (
	"context"
	"errors"
	"time"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/script"
)

// Querier sends statement text to a store. store.Session satisfies it.
type Querier interface {
	Query(ctx context.Context, text string) error
}

// Executor runs one statement and reports whether it failed.
type Executor interface {
	Execute(ctx context.Context, stmt script.Statement) error
}

// SessionExecutor sends each statement verbatim through a Querier.
type SessionExecutor struct {
	q       Querier
	timeout time.Duration
}

// NewSessionExecutor wraps q. A zero timeout leaves statements unbounded.
func NewSessionExecutor(q Querier, timeout time.Duration) *SessionExecutor {
	return &SessionExecutor{q: q, timeout: timeout}
}

// Execute implements Executor.
func (e *SessionExecutor) Execute(ctx context.Context, stmt script.Statement) error {
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	return e.q.Query(ctx, stmt.Text)
}

// DryRunExecutor accepts every statement without contacting a store.
type DryRunExecutor struct {
	Logger logger.Logger
}

// Execute implements Executor.
func (e DryRunExecutor) Execute(ctx context.Context, stmt script.Statement) error {
	if e.Logger != nil {
		e.Logger.Debug("dry run: statement skipped",
			logger.Int("command", stmt.Ordinal),
			logger.Int("lines", stmt.Lines()))
	}
	return nil
}

// errorMessage prefers the short form of structured errors for the error log.
func errorMessage(err error) string {
	var f interface{ FormatError(bool) string }
	if errors.As(err, &f) {
		return f.FormatError(false)
	}
	return err.Error()
}
