// Package transport defines the transport layer abstraction for the native wire protocol
package transport

import (
	"context"
	"time"
)

// Transport defines the interface for sending and receiving framed messages.
// Implementations are used from a single goroutine: one Send is always
// followed by the matching Receive before the next Send.
type Transport interface {
	// Send transmits data to the server
	Send(ctx context.Context, data []byte) error

	// Receive reads one EOT-delimited message from the server
	Receive(ctx context.Context) ([]byte, error)

	// Close closes the transport connection
	Close() error

	// IsHealthy returns whether the transport is healthy
	IsHealthy() bool

	// GetMetrics returns transport performance metrics
	GetMetrics() TransportMetrics
}

// TransportMetrics contains performance and health metrics
type TransportMetrics struct {
	// TotalRequests is the total number of requests sent
	TotalRequests int64

	// TotalErrors is the total number of errors encountered
	TotalErrors int64

	// AverageLatency is the average round-trip latency
	AverageLatency time.Duration

	// LastError is the most recent error encountered
	LastError error

	// LastErrorTime is when the last error occurred
	LastErrorTime time.Time

	// BytesSent is the total bytes sent
	BytesSent int64

	// BytesReceived is the total bytes received
	BytesReceived int64
}

// Factory creates a transport connected to address
type Factory func(ctx context.Context, address string) (Transport, error)
