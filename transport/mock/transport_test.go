package mock

import (
	"context"
	"testing"
	"time"

	"github.com/dan-strohschein/stmtrunner/protocol"
)

func TestMockTransport_Send(t *testing.T) {
	mock := NewMockTransport()
	ctx := context.Background()
	data := []byte("CREATE a;\x04")

	if err := mock.Send(ctx, data); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if mock.GetSendCallCount() != 1 {
		t.Errorf("expected 1 send call, got %d", mock.GetSendCallCount())
	}

	history := mock.GetSendHistory()
	if len(history) != 1 {
		t.Fatalf("expected 1 item in history, got %d", len(history))
	}
	if string(history[0]) != string(data) {
		t.Errorf("expected %q in history, got %q", data, history[0])
	}
}

func TestMockTransport_SendError(t *testing.T) {
	mock := NewMockTransport().WithSendError(protocol.ConnectionError("test error", nil))

	if err := mock.Send(context.Background(), []byte("test")); err == nil {
		t.Fatal("expected error, got nil")
	}

	if metrics := mock.GetMetrics(); metrics.TotalErrors != 1 {
		t.Errorf("expected 1 error, got %d", metrics.TotalErrors)
	}
}

func TestMockTransport_SendContextCancellation(t *testing.T) {
	mock := NewMockTransport().WithSendDelay(100 * time.Millisecond)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	if err := mock.Send(ctx, []byte("test")); err == nil {
		t.Fatal("expected context deadline exceeded error")
	}
}

func TestMockTransport_ResponsesAreQueued(t *testing.T) {
	mock := NewMockTransport().
		WithResponses("first", "second").
		WithReceiveData([]byte("fallback"))
	ctx := context.Background()

	for _, want := range []string{"first", "second", "fallback", "fallback"} {
		got, err := mock.Receive(ctx)
		if err != nil {
			t.Fatalf("Receive: %v", err)
		}
		if string(got) != want {
			t.Errorf("expected %q, got %q", want, got)
		}
	}

	if mock.GetReceiveCallCount() != 4 {
		t.Errorf("expected 4 receive calls, got %d", mock.GetReceiveCallCount())
	}
}

func TestMockTransport_Responder(t *testing.T) {
	mock := NewMockTransport().WithResponder(func(sent []byte) []byte {
		return append([]byte("echo:"), sent...)
	})
	ctx := context.Background()

	mock.Send(ctx, []byte("ping"))
	got, err := mock.Receive(ctx)
	if err != nil {
		t.Fatalf("Receive: %v", err)
	}
	if string(got) != "echo:ping" {
		t.Errorf("expected echo:ping, got %q", got)
	}
}

func TestMockTransport_ReceiveError(t *testing.T) {
	mock := NewMockTransport().WithReceiveError(protocol.TimeoutError("test timeout", nil))

	if _, err := mock.Receive(context.Background()); err == nil {
		t.Fatal("expected error, got nil")
	}
}

func TestMockTransport_ReceiveNoData(t *testing.T) {
	mock := NewMockTransport()

	if _, err := mock.Receive(context.Background()); err == nil {
		t.Fatal("expected error when no data configured, got nil")
	}
}

func TestMockTransport_Close(t *testing.T) {
	mock := NewMockTransport()

	if err := mock.Close(); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if !mock.IsClosed() {
		t.Error("expected transport to be closed")
	}
	if mock.IsHealthy() {
		t.Error("closed transport should not be healthy")
	}
	if mock.GetCloseCallCount() != 1 {
		t.Errorf("expected 1 close call, got %d", mock.GetCloseCallCount())
	}

	if err := mock.Send(context.Background(), []byte("test")); err == nil {
		t.Error("expected error when sending to closed transport")
	}
}

func TestMockTransport_GetMetrics(t *testing.T) {
	mock := NewMockTransport().WithReceiveData([]byte("test"))

	mock.Send(context.Background(), []byte("hello"))
	mock.Send(context.Background(), []byte("world"))
	mock.Receive(context.Background())

	metrics := mock.GetMetrics()

	if metrics.TotalRequests != 2 {
		t.Errorf("expected 2 requests, got %d", metrics.TotalRequests)
	}
	if metrics.BytesSent != 10 {
		t.Errorf("expected 10 bytes sent, got %d", metrics.BytesSent)
	}
	if metrics.BytesReceived != 4 {
		t.Errorf("expected 4 bytes received, got %d", metrics.BytesReceived)
	}
}
