package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/dan-strohschein/stmtrunner/store"
)

var _ store.Session = (*MockSession)(nil)

// MockSession is an in-memory store.Session for tests. Statements succeed
// unless an expectation matches them.
//
// Example usage:
//
//	mock := NewMockSession()
//	mock.ExpectQuery("UPDATE broken").WillReturnError(errors.New("rejected"))
//
//	rep, err := runner.New(runner.NewSessionExecutor(mock, 0), sink, opts).Run(ctx, src)
//	mock.VerifyExpectations(t)
type MockSession struct {
	mu           sync.Mutex
	expectations []*Expectation
	calls        []Call
	authErr      error
	useErr       error
	closed       bool
}

// Expectation matches statements containing a fragment.
type Expectation struct {
	fragment    string
	err         error
	times       int // -1 = any
	actualCalls int
}

// Call is one recorded session call.
type Call struct {
	Method string
	Args   []string
}

// NewMockSession creates a session that accepts every statement.
func NewMockSession() *MockSession {
	return &MockSession{}
}

// ExpectQuery registers an expectation for statements containing fragment.
func (m *MockSession) ExpectQuery(fragment string) *Expectation {
	m.mu.Lock()
	defer m.mu.Unlock()

	exp := &Expectation{fragment: fragment, times: 1}
	m.expectations = append(m.expectations, exp)
	return exp
}

// FailAuthenticate makes Authenticate return err.
func (m *MockSession) FailAuthenticate(err error) *MockSession {
	m.authErr = err
	return m
}

// FailUse makes Use return err.
func (m *MockSession) FailUse(err error) *MockSession {
	m.useErr = err
	return m
}

// WillReturnError sets the error returned for matching statements.
func (e *Expectation) WillReturnError(err error) *Expectation {
	e.err = err
	return e
}

// Times sets how often the expectation must match. Use -1 for any.
func (e *Expectation) Times(n int) *Expectation {
	e.times = n
	return e
}

// AnyTimes allows any number of matches.
func (e *Expectation) AnyTimes() *Expectation {
	return e.Times(-1)
}

// Authenticate implements store.Session.
func (m *MockSession) Authenticate(ctx context.Context, username, password string) error {
	m.record("Authenticate", username)
	return m.authErr
}

// Use implements store.Session.
func (m *MockSession) Use(ctx context.Context, namespace, database string) error {
	m.record("Use", namespace, database)
	return m.useErr
}

// Query implements store.Session.
func (m *MockSession) Query(ctx context.Context, text string) error {
	m.record("Query", text)
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return fmt.Errorf("query on closed session")
	}
	for _, exp := range m.expectations {
		if !strings.Contains(text, exp.fragment) {
			continue
		}
		if exp.times == -1 || exp.actualCalls < exp.times {
			exp.actualCalls++
			return exp.err
		}
	}
	return nil
}

// Close implements store.Session.
func (m *MockSession) Close() error {
	m.record("Close")
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

// Calls returns every recorded call in order.
func (m *MockSession) Calls() []Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Call, len(m.calls))
	copy(out, m.calls)
	return out
}

// Queries returns the text of every Query call in order.
func (m *MockSession) Queries() []string {
	var out []string
	for _, c := range m.Calls() {
		if c.Method == "Query" {
			out = append(out, c.Args[0])
		}
	}
	return out
}

// Closed reports whether Close was called.
func (m *MockSession) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Unmet describes every expectation that matched fewer times than required.
func (m *MockSession) Unmet() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []string
	for _, exp := range m.expectations {
		if exp.times != -1 && exp.actualCalls != exp.times {
			out = append(out, fmt.Sprintf("expectation %q: expected %d call(s), got %d", exp.fragment, exp.times, exp.actualCalls))
		}
	}
	return out
}

// VerifyExpectations fails t for every unmet expectation.
func (m *MockSession) VerifyExpectations(t *testing.T) {
	t.Helper()
	for _, msg := range m.Unmet() {
		t.Error(msg)
	}
}

func (m *MockSession) record(method string, args ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, Call{Method: method, Args: args})
}
