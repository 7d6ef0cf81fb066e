package client

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/protocol"
	"github.com/dan-strohschein/stmtrunner/transport/mock"
)

func newTestClient(tr *mock.MockTransport) *Client {
	opts := DefaultOptions()
	opts.Logger = logger.NewNoop()
	opts.TransportFactory = tr.Factory()
	return NewClient(&opts)
}

func loggedIn(t *testing.T, tr *mock.MockTransport) *Client {
	t.Helper()
	c := newTestClient(tr)
	ctx := context.Background()

	if err := c.Connect(ctx, "syndrdb://mock:7632"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if err := c.Authenticate(ctx, "root", "secret"); err != nil {
		t.Fatalf("Authenticate: %v", err)
	}
	if err := c.Use(ctx, "job-seek", "development"); err != nil {
		t.Fatalf("Use: %v", err)
	}
	return c
}

func TestClientLoginSequence(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses(
		"PROTOCOL_OK 2",
		"Welcome to SyndrDB S0001",
		`{"status":"success","message":"Authentication successful"}`,
	)
	c := loggedIn(t, tr)

	if c.GetState() != CONNECTED {
		t.Fatalf("expected CONNECTED, got %s", c.GetState())
	}
	if c.Database() != "development" {
		t.Errorf("expected database development, got %q", c.Database())
	}

	sent := tr.GetSendHistory()
	if len(sent) != 2 {
		t.Fatalf("expected handshake and login, got %d sends", len(sent))
	}
	if string(sent[0]) != "PROTOCOL_VERSION 2\x04" {
		t.Errorf("unexpected handshake %q", sent[0])
	}
	if string(sent[1]) != "syndrdb://mock:7632:development:root:secret;\x04" {
		t.Errorf("unexpected login line %q", sent[1])
	}
}

func TestClientQuery(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses(
		"PROTOCOL_OK 2",
		"S0001",
		`{"status":"success"}`,
		`{"success":true,"data":[]}`,
		`{"success":false,"error":"bundle \"users\" not found"}`,
	)
	c := loggedIn(t, tr)
	ctx := context.Background()

	if err := c.Query(ctx, "CREATE BUNDLE \"users\";"); err != nil {
		t.Fatalf("first statement should succeed: %v", err)
	}

	err := c.Query(ctx, "UPDATE users SET a = 1;")
	var qe *QueryError
	if !errors.As(err, &qe) {
		t.Fatalf("expected *QueryError, got %T (%v)", err, err)
	}
	if qe.Message != `bundle "users" not found` {
		t.Errorf("unexpected message %q", qe.Message)
	}
	if qe.TraceID == "" {
		t.Error("expected a trace id on the error")
	}

	sent := tr.GetSendHistory()
	if got := string(sent[len(sent)-1]); got != "UPDATE users SET a = 1;\x04" {
		t.Errorf("unexpected frame %q", got)
	}
}

func TestClientQueryRequiresLogin(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses("PROTOCOL_OK 2")
	c := newTestClient(tr)
	ctx := context.Background()

	if err := c.Query(ctx, "CREATE a;"); err == nil {
		t.Fatal("expected state error before connect")
	}

	if err := c.Connect(ctx, "mock:7632"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	var se *StateError
	if err := c.Query(ctx, "CREATE a;"); !errors.As(err, &se) {
		t.Fatalf("expected *StateError before Use, got %v", err)
	}
}

func TestClientAuthFailure(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses(
		"PROTOCOL_OK 2",
		"S0001",
		`{"status":"error","message":"invalid credentials"}`,
	)
	c := newTestClient(tr)
	ctx := context.Background()

	if err := c.Connect(ctx, "syndrdb://mock:7632"); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	c.Authenticate(ctx, "root", "wrong")

	err := c.Use(ctx, "", "development")
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Code != "AUTH_FAILED" {
		t.Fatalf("expected AUTH_FAILED, got %v", err)
	}
	if !strings.Contains(ce.Message, "invalid credentials") {
		t.Errorf("unexpected message %q", ce.Message)
	}
	if c.GetState() != DISCONNECTED {
		t.Errorf("expected DISCONNECTED after failed login, got %s", c.GetState())
	}
	if !tr.IsClosed() {
		t.Error("transport should be closed after failed login")
	}
}

func TestClientMissingWelcome(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses("PROTOCOL_OK 2", "go away")
	c := newTestClient(tr)
	ctx := context.Background()

	c.Connect(ctx, "mock:7632")
	c.Authenticate(ctx, "root", "root")
	if err := c.Use(ctx, "", "development"); err == nil {
		t.Fatal("expected error without welcome code")
	}
}

func TestClientVersionMismatch(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses("PROTOCOL_ERROR unsupported_version")
	c := newTestClient(tr)

	err := c.Connect(context.Background(), "mock:7632")
	var ce *ConnectionError
	if !errors.As(err, &ce) || ce.Code != "VERSION_MISMATCH" {
		t.Fatalf("expected VERSION_MISMATCH, got %v", err)
	}
	var te *protocol.TransportError
	if !errors.As(err, &te) || te.Code != protocol.ErrorCodeProtocolVersionMismatch {
		t.Errorf("expected wrapped version mismatch transport error, got %v", err)
	}
	if c.GetState() != DISCONNECTED {
		t.Errorf("expected DISCONNECTED, got %s", c.GetState())
	}
}

func TestClientInvalidAddress(t *testing.T) {
	c := newTestClient(mock.NewMockTransport())
	if err := c.Connect(context.Background(), "syndrdb://nohost"); err == nil {
		t.Fatal("expected error for address without port")
	}
	if c.GetState() != DISCONNECTED {
		t.Errorf("state should not change on a bad address, got %s", c.GetState())
	}
}

func TestClientClose(t *testing.T) {
	tr := mock.NewMockTransport().WithResponses("PROTOCOL_OK 2", "S0001", `{"status":"success"}`)
	c := loggedIn(t, tr)

	var states []ConnectionState
	c.OnStateChange(func(st StateTransition) { states = append(states, st.To) })

	if err := c.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close should be a no-op: %v", err)
	}

	if len(states) != 2 || states[0] != DISCONNECTING || states[1] != DISCONNECTED {
		t.Errorf("unexpected transitions %v", states)
	}
	if tr.GetCloseCallCount() != 1 {
		t.Errorf("expected 1 transport close, got %d", tr.GetCloseCallCount())
	}
}

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		address  string
		hostPort string
		tls      bool
		insecure bool
		wantErr  bool
	}{
		{"syndrdb://db:7632", "db:7632", false, false, false},
		{"db:7632", "db:7632", false, false, false},
		{"syndrdb://db:7632/", "db:7632", false, false, false},
		{"syndrdb://db:7632?tls=true&tlsInsecureSkipVerify=true", "db:7632", true, true, false},
		{"syndrdb://", "", false, false, true},
		{"db", "", false, false, true},
	}

	for _, tt := range tests {
		t.Run(tt.address, func(t *testing.T) {
			ep, err := parseEndpoint(tt.address, DefaultOptions())
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ep.hostPort != tt.hostPort || ep.tls != tt.tls || ep.insecure != tt.insecure {
				t.Errorf("got %+v", ep)
			}
		})
	}
}
