// Package tcp implements transport.Transport over a single TCP (optionally TLS) connection.
package tcp

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dan-strohschein/stmtrunner/protocol"
	"github.com/dan-strohschein/stmtrunner/transport"
)

// maxMessageSize bounds a single EOT-delimited response.
const maxMessageSize = 64 * 1024 * 1024

// TCPTransportOptions configures the TCP transport
type TCPTransportOptions struct {
	// Address is the server address (host:port)
	Address string

	// DialTimeout bounds connection establishment. Reads and writes are only
	// bounded by the caller's context deadline.
	DialTimeout time.Duration

	// TLS configuration
	UseTLS     bool
	CertPath   string
	KeyPath    string
	SkipVerify bool
}

// TCPTransport implements transport.Transport for native TCP connections.
// Statements are executed strictly one at a time, so it owns exactly one
// connection instead of a pool.
type TCPTransport struct {
	opts    TCPTransportOptions
	conn    net.Conn
	scanner *bufio.Scanner
	alive   atomic.Bool
	metrics transportMetrics
}

// transportMetrics tracks transport performance
type transportMetrics struct {
	totalRequests atomic.Int64
	totalErrors   atomic.Int64
	bytesSent     atomic.Int64
	bytesReceived atomic.Int64
	lastError     error
	lastErrorTime time.Time
	latencySum    atomic.Int64 // nanoseconds
	mu            sync.RWMutex
}

// NewTCPTransport dials the server and returns a ready transport
func NewTCPTransport(ctx context.Context, opts TCPTransportOptions) (*TCPTransport, error) {
	if opts.Address == "" {
		return nil, fmt.Errorf("address is required")
	}
	if opts.DialTimeout == 0 {
		opts.DialTimeout = 30 * time.Second
	}

	t := &TCPTransport{opts: opts}
	if err := t.connect(ctx); err != nil {
		return nil, err
	}
	return t, nil
}

// Factory returns a transport.Factory dialing with the given TLS settings.
func Factory(opts TCPTransportOptions) transport.Factory {
	return func(ctx context.Context, address string) (transport.Transport, error) {
		o := opts
		o.Address = address
		return NewTCPTransport(ctx, o)
	}
}

// Send implements transport.Transport
func (t *TCPTransport) Send(ctx context.Context, data []byte) error {
	start := time.Now()
	t.metrics.totalRequests.Add(1)

	if !t.alive.Load() {
		err := protocol.ConnectionError("connection is closed", map[string]interface{}{
			"address": t.opts.Address,
		})
		t.recordError(err)
		return err
	}

	if err := t.applyDeadline(ctx); err != nil {
		t.recordError(err)
		return err
	}

	if _, err := t.conn.Write(data); err != nil {
		t.alive.Store(false)
		t.recordError(err)
		return err
	}

	t.metrics.bytesSent.Add(int64(len(data)))
	t.recordLatency(time.Since(start))
	return nil
}

// Receive implements transport.Transport
func (t *TCPTransport) Receive(ctx context.Context) ([]byte, error) {
	start := time.Now()

	if !t.alive.Load() {
		err := protocol.ConnectionError("connection is closed", nil)
		t.recordError(err)
		return nil, err
	}

	if err := t.applyDeadline(ctx); err != nil {
		t.recordError(err)
		return nil, err
	}

	if !t.scanner.Scan() {
		t.alive.Store(false)
		err := t.scanner.Err()
		if err == nil {
			err = protocol.ConnectionError("connection closed by server", map[string]interface{}{
				"address": t.opts.Address,
			})
		} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
			err = protocol.TimeoutError("timed out waiting for response", map[string]interface{}{
				"address": t.opts.Address,
			})
		}
		t.recordError(err)
		return nil, err
	}

	data := t.scanner.Bytes()
	t.metrics.bytesReceived.Add(int64(len(data)))
	t.recordLatency(time.Since(start))

	// Return a copy since scanner reuses the buffer
	result := make([]byte, len(data))
	copy(result, data)
	return result, nil
}

// Close implements transport.Transport
func (t *TCPTransport) Close() error {
	t.alive.Store(false)
	if t.conn != nil {
		return t.conn.Close()
	}
	return nil
}

// IsHealthy implements transport.Transport
func (t *TCPTransport) IsHealthy() bool {
	return t.alive.Load()
}

// GetMetrics implements transport.Transport
func (t *TCPTransport) GetMetrics() transport.TransportMetrics {
	t.metrics.mu.RLock()
	lastErr := t.metrics.lastError
	lastErrTime := t.metrics.lastErrorTime
	t.metrics.mu.RUnlock()

	totalReqs := t.metrics.totalRequests.Load()
	avgLatency := time.Duration(0)
	if totalReqs > 0 {
		avgLatency = time.Duration(t.metrics.latencySum.Load() / totalReqs)
	}

	return transport.TransportMetrics{
		TotalRequests:  totalReqs,
		TotalErrors:    t.metrics.totalErrors.Load(),
		AverageLatency: avgLatency,
		LastError:      lastErr,
		LastErrorTime:  lastErrTime,
		BytesSent:      t.metrics.bytesSent.Load(),
		BytesReceived:  t.metrics.bytesReceived.Load(),
	}
}

// connect creates the TCP connection with optional TLS
func (t *TCPTransport) connect(ctx context.Context) error {
	dialer := &net.Dialer{Timeout: t.opts.DialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", t.opts.Address)
	if err != nil {
		return protocol.ConnectionError(fmt.Sprintf("failed to connect to %s", t.opts.Address), map[string]interface{}{
			"address": t.opts.Address,
			"timeout": t.opts.DialTimeout.String(),
			"error":   err.Error(),
		})
	}

	if t.opts.UseTLS {
		tlsConfig, err := t.buildTLSConfig()
		if err != nil {
			conn.Close()
			return err
		}

		tlsConn := tls.Client(conn, tlsConfig)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			tlsConn.Close()
			return protocol.ConnectionError("TLS handshake failed", map[string]interface{}{
				"error": err.Error(),
			})
		}

		conn = tlsConn
	}

	scanner := bufio.NewScanner(conn)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)
	scanner.Split(splitAtEOT)

	t.conn = conn
	t.scanner = scanner
	t.alive.Store(true)
	return nil
}

// applyDeadline sets the connection deadline from ctx, or clears it.
func (t *TCPTransport) applyDeadline(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	deadline, _ := ctx.Deadline()
	return t.conn.SetDeadline(deadline)
}

// buildTLSConfig creates a TLS configuration
func (t *TCPTransport) buildTLSConfig() (*tls.Config, error) {
	tlsConfig := &tls.Config{
		InsecureSkipVerify: t.opts.SkipVerify,
	}

	serverName := t.opts.Address
	if host, _, err := net.SplitHostPort(t.opts.Address); err == nil {
		serverName = host
	} else if idx := strings.Index(t.opts.Address, ":"); idx >= 0 {
		serverName = t.opts.Address[:idx]
	}
	tlsConfig.ServerName = serverName

	if t.opts.CertPath != "" && t.opts.KeyPath != "" {
		cert, err := tls.LoadX509KeyPair(t.opts.CertPath, t.opts.KeyPath)
		if err != nil {
			return nil, protocol.ConnectionError("failed to load TLS certificate", map[string]interface{}{
				"certPath": t.opts.CertPath,
				"keyPath":  t.opts.KeyPath,
				"error":    err.Error(),
			})
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

// recordError records an error in metrics
func (t *TCPTransport) recordError(err error) {
	t.metrics.totalErrors.Add(1)
	t.metrics.mu.Lock()
	t.metrics.lastError = err
	t.metrics.lastErrorTime = time.Now()
	t.metrics.mu.Unlock()
}

// recordLatency records latency in metrics
func (t *TCPTransport) recordLatency(latency time.Duration) {
	t.metrics.latencySum.Add(int64(latency))
}

// splitAtEOT is a bufio.SplitFunc that splits on EOT (0x04)
func splitAtEOT(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, protocol.EOT); i >= 0 {
		return i + 1, data[0:i], nil
	}

	// If at EOF, return all remaining data
	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}
