// Package mock provides a scripted transport.Transport for tests.
package mock

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/stmtrunner/protocol"
	"github.com/dan-strohschein/stmtrunner/transport"
)

// MockTransport implements transport.Transport for testing
type MockTransport struct {
	// Behavior configuration
	sendErr     error
	receiveErr  error
	receiveData []byte
	queue       [][]byte
	responder   func(sent []byte) []byte
	healthy     bool

	// Call tracking
	sendCalls    atomic.Int32
	receiveCalls atomic.Int32
	closeCalls   atomic.Int32

	metrics     mockMetrics
	mu          sync.RWMutex
	closed      bool
	sendDelay   time.Duration
	recvDelay   time.Duration
	sendHistory [][]byte
	recvHistory [][]byte
}

type mockMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
}

// NewMockTransport creates a new mock transport
func NewMockTransport() *MockTransport {
	return &MockTransport{
		healthy:     true,
		sendHistory: make([][]byte, 0),
		recvHistory: make([][]byte, 0),
	}
}

// Factory returns a transport.Factory that always hands out m.
func (m *MockTransport) Factory() transport.Factory {
	return func(ctx context.Context, address string) (transport.Transport, error) {
		return m, nil
	}
}

// WithSendError configures the transport to return an error on Send
func (m *MockTransport) WithSendError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendErr = err
	return m
}

// WithReceiveError configures the transport to return an error on Receive
func (m *MockTransport) WithReceiveError(err error) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveErr = err
	return m
}

// WithReceiveData configures the data returned on Receive once the queue is drained
func (m *MockTransport) WithReceiveData(data []byte) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.receiveData = data
	return m
}

// WithResponses queues responses returned by successive Receive calls
func (m *MockTransport) WithResponses(responses ...string) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range responses {
		m.queue = append(m.queue, []byte(r))
	}
	return m
}

// WithResponder computes the next response from the last sent message.
// Queued responses take precedence.
func (m *MockTransport) WithResponder(fn func(sent []byte) []byte) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithHealthy configures the health status
func (m *MockTransport) WithHealthy(healthy bool) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.healthy = healthy
	return m
}

// WithSendDelay adds a delay to Send operations
func (m *MockTransport) WithSendDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sendDelay = delay
	return m
}

// WithReceiveDelay adds a delay to Receive operations
func (m *MockTransport) WithReceiveDelay(delay time.Duration) *MockTransport {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.recvDelay = delay
	return m
}

// Send implements transport.Transport
func (m *MockTransport) Send(ctx context.Context, data []byte) error {
	m.sendCalls.Add(1)
	m.metrics.totalRequests.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return fmt.Errorf("transport is closed")
	}
	delay := m.sendDelay
	sendErr := m.sendErr
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	if sendErr != nil {
		m.metrics.totalErrors.Add(1)
		return sendErr
	}

	m.mu.Lock()
	m.sendHistory = append(m.sendHistory, data)
	m.mu.Unlock()

	m.metrics.bytesSent.Add(int64(len(data)))
	return nil
}

// Receive implements transport.Transport
func (m *MockTransport) Receive(ctx context.Context) ([]byte, error) {
	m.receiveCalls.Add(1)

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, fmt.Errorf("transport is closed")
	}
	delay := m.recvDelay
	receiveErr := m.receiveErr
	var data []byte
	switch {
	case len(m.queue) > 0:
		data = m.queue[0]
		m.queue = m.queue[1:]
	case m.responder != nil && len(m.sendHistory) > 0:
		data = m.responder(m.sendHistory[len(m.sendHistory)-1])
	default:
		data = m.receiveData
	}
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	if receiveErr != nil {
		m.metrics.totalErrors.Add(1)
		return nil, receiveErr
	}

	if data == nil {
		return nil, protocol.TimeoutError("no data available", nil)
	}

	m.mu.Lock()
	m.recvHistory = append(m.recvHistory, data)
	m.mu.Unlock()

	m.metrics.bytesReceived.Add(int64(len(data)))
	return data, nil
}

// Close implements transport.Transport
func (m *MockTransport) Close() error {
	m.closeCalls.Add(1)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// IsHealthy implements transport.Transport
func (m *MockTransport) IsHealthy() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.healthy && !m.closed
}

// GetMetrics implements transport.Transport
func (m *MockTransport) GetMetrics() transport.TransportMetrics {
	return transport.TransportMetrics{
		TotalRequests: m.metrics.totalRequests.Load(),
		TotalErrors:   m.metrics.totalErrors.Load(),
		BytesSent:     m.metrics.bytesSent.Load(),
		BytesReceived: m.metrics.bytesReceived.Load(),
	}
}

// GetSendCallCount returns the number of times Send was called
func (m *MockTransport) GetSendCallCount() int {
	return int(m.sendCalls.Load())
}

// GetReceiveCallCount returns the number of times Receive was called
func (m *MockTransport) GetReceiveCallCount() int {
	return int(m.receiveCalls.Load())
}

// GetCloseCallCount returns the number of times Close was called
func (m *MockTransport) GetCloseCallCount() int {
	return int(m.closeCalls.Load())
}

// GetSendHistory returns all data sent through this transport
func (m *MockTransport) GetSendHistory() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([][]byte, len(m.sendHistory))
	copy(history, m.sendHistory)
	return history
}

// GetReceiveHistory returns all data received through this transport
func (m *MockTransport) GetReceiveHistory() [][]byte {
	m.mu.RLock()
	defer m.mu.RUnlock()

	history := make([][]byte, len(m.recvHistory))
	copy(history, m.recvHistory)
	return history
}

// IsClosed returns whether the transport has been closed
func (m *MockTransport) IsClosed() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.closed
}
