package client

import (
	"fmt"
	"sync"
	"time"
)

// ConnectionState represents the current state of the client connection.
type ConnectionState int

const (
	// DISCONNECTED indicates no active connection.
	DISCONNECTED ConnectionState = iota
	// CONNECTING covers dial, version handshake and credential exchange.
	CONNECTING
	// CONNECTED indicates the session is logged in to a database.
	CONNECTED
	// DISCONNECTING indicates graceful disconnect in progress.
	DISCONNECTING
)

// String returns the string representation of the connection state.
func (cs ConnectionState) String() string {
	switch cs {
	case DISCONNECTED:
		return "DISCONNECTED"
	case CONNECTING:
		return "CONNECTING"
	case CONNECTED:
		return "CONNECTED"
	case DISCONNECTING:
		return "DISCONNECTING"
	default:
		return "UNKNOWN"
	}
}

// StateTransition represents a change in connection state.
//
// Metadata conventionally carries "reason" ("user_initiated" | "error")
// and "address".
type StateTransition struct {
	From      ConnectionState
	To        ConnectionState
	Timestamp time.Time

	// Error is the error that caused the transition (if any).
	Error error

	// Duration is how long the previous state was held.
	Duration time.Duration

	Metadata map[string]interface{}
}

// StateChangeHandler is called when the connection state changes.
type StateChangeHandler func(transition StateTransition)

// StateManager manages connection state transitions and event handlers.
type StateManager struct {
	current        ConnectionState
	lastTransition time.Time
	handlers       []StateChangeHandler
	mu             sync.RWMutex
}

// NewStateManager creates a new state manager in DISCONNECTED state.
func NewStateManager() *StateManager {
	return &StateManager{
		current:        DISCONNECTED,
		lastTransition: time.Now(),
	}
}

// TransitionTo attempts to transition to a new state.
// Returns error if the transition is illegal.
//
// Legal transitions:
//   - DISCONNECTED → CONNECTING
//   - CONNECTING → CONNECTED
//   - CONNECTING → DISCONNECTED (failed login or close before login)
//   - CONNECTED → DISCONNECTING
//   - DISCONNECTING → DISCONNECTED
func (sm *StateManager) TransitionTo(newState ConnectionState, err error, metadata map[string]interface{}) error {
	sm.mu.Lock()

	if !isLegalTransition(sm.current, newState) {
		from := sm.current
		sm.mu.Unlock()
		return fmt.Errorf("illegal state transition: %s → %s", from, newState)
	}

	now := time.Now()
	transition := StateTransition{
		From:      sm.current,
		To:        newState,
		Timestamp: now,
		Error:     err,
		Duration:  now.Sub(sm.lastTransition),
		Metadata:  metadata,
	}

	sm.current = newState
	sm.lastTransition = now

	handlers := make([]StateChangeHandler, len(sm.handlers))
	copy(handlers, sm.handlers)
	sm.mu.Unlock()

	// Handlers run outside the lock so they may query the manager.
	for _, handler := range handlers {
		handler(transition)
	}

	return nil
}

func isLegalTransition(from, to ConnectionState) bool {
	switch from {
	case DISCONNECTED:
		return to == CONNECTING
	case CONNECTING:
		return to == CONNECTED || to == DISCONNECTED
	case CONNECTED:
		return to == DISCONNECTING
	case DISCONNECTING:
		return to == DISCONNECTED
	default:
		return false
	}
}

// OnStateChange registers a handler to be called on state transitions.
func (sm *StateManager) OnStateChange(handler StateChangeHandler) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.handlers = append(sm.handlers, handler)
}

// GetState returns the current connection state (thread-safe).
func (sm *StateManager) GetState() ConnectionState {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return sm.current
}
