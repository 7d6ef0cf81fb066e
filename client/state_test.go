package client

import (
	"testing"
)

func TestConnectionStateString(t *testing.T) {
	tests := []struct {
		state    ConnectionState
		expected string
	}{
		{DISCONNECTED, "DISCONNECTED"},
		{CONNECTING, "CONNECTING"},
		{CONNECTED, "CONNECTED"},
		{DISCONNECTING, "DISCONNECTING"},
		{ConnectionState(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.expected, func(t *testing.T) {
			if got := tt.state.String(); got != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestLegalStateTransitions(t *testing.T) {
	tests := []struct {
		name     string
		from     ConnectionState
		to       ConnectionState
		shouldOK bool
	}{
		{"DISCONNECTED to CONNECTING", DISCONNECTED, CONNECTING, true},
		{"CONNECTING to CONNECTED", CONNECTING, CONNECTED, true},
		{"CONNECTING to DISCONNECTED", CONNECTING, DISCONNECTED, true},
		{"CONNECTED to DISCONNECTING", CONNECTED, DISCONNECTING, true},
		{"DISCONNECTING to DISCONNECTED", DISCONNECTING, DISCONNECTED, true},
		{"DISCONNECTED to CONNECTED", DISCONNECTED, CONNECTED, false},
		{"CONNECTING to DISCONNECTING", CONNECTING, DISCONNECTING, false},
		{"CONNECTED to DISCONNECTED", CONNECTED, DISCONNECTED, false},
		{"DISCONNECTING to CONNECTED", DISCONNECTING, CONNECTED, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLegalTransition(tt.from, tt.to); got != tt.shouldOK {
				t.Errorf("isLegalTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.shouldOK)
			}
		})
	}
}

func TestStateManagerNotifiesHandlers(t *testing.T) {
	sm := NewStateManager()

	var seen []StateTransition
	sm.OnStateChange(func(tr StateTransition) {
		// handlers run outside the lock
		_ = sm.GetState()
		seen = append(seen, tr)
	})

	if err := sm.TransitionTo(CONNECTING, nil, map[string]interface{}{"reason": "user_initiated"}); err != nil {
		t.Fatalf("TransitionTo(CONNECTING): %v", err)
	}
	if err := sm.TransitionTo(DISCONNECTING, nil, nil); err == nil {
		t.Fatal("expected illegal transition error")
	}

	if len(seen) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(seen))
	}
	if seen[0].From != DISCONNECTED || seen[0].To != CONNECTING {
		t.Errorf("unexpected transition %s → %s", seen[0].From, seen[0].To)
	}
	if seen[0].Metadata["reason"] != "user_initiated" {
		t.Errorf("expected reason metadata, got %v", seen[0].Metadata)
	}
	if sm.GetState() != CONNECTING {
		t.Errorf("expected CONNECTING, got %s", sm.GetState())
	}
}
