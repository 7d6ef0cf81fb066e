// Package client is a session over the native EOT-framed protocol.
//
// The native login line names the database, so Authenticate only records
// credentials and the actual login happens in Use.
package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/protocol"
	"github.com/dan-strohschein/stmtrunner/transport"
	"github.com/dan-strohschein/stmtrunner/transport/tcp"
)

// Client is a single-connection native protocol session.
type Client struct {
	opts      ClientOptions
	codec     protocol.Codec
	stateMgr  *StateManager
	logger    logger.Logger
	debugMode atomic.Bool

	mu        sync.Mutex // serialises round trips on the transport
	transport transport.Transport
	endpoint  endpoint
	username  string
	password  string
	database  string
}

// NewClient creates a new client with the given options.
// If opts is nil, default options are used.
func NewClient(opts *ClientOptions) *Client {
	if opts == nil {
		defaultOpts := DefaultOptions()
		opts = &defaultOpts
	}

	log := opts.Logger
	if log == nil {
		log = logger.New(opts.LogLevel, nil)
	}

	c := &Client{
		opts:     *opts,
		codec:    protocol.NewCodec(),
		stateMgr: NewStateManager(),
		logger:   log.WithFields(logger.String("backend", "native")),
	}
	c.debugMode.Store(opts.DebugMode)

	c.stateMgr.OnStateChange(func(t StateTransition) {
		fields := []logger.Field{
			logger.String("from", t.From.String()),
			logger.String("to", t.To.String()),
			logger.Duration("held", t.Duration),
		}
		if t.Error != nil {
			fields = append(fields, logger.Error("error", t.Error))
		}
		c.logger.Debug("connection state changed", fields...)
	})

	return c
}

// Connect dials the server and performs the protocol version handshake.
// Address format: syndrdb://HOST:PORT[?tls=true]
func (c *Client) Connect(ctx context.Context, address string) error {
	ep, err := parseEndpoint(address, c.opts)
	if err != nil {
		return err
	}

	if err := c.stateMgr.TransitionTo(CONNECTING, nil, map[string]interface{}{
		"reason":  "user_initiated",
		"address": ep.hostPort,
	}); err != nil {
		return err
	}

	c.logger.Info("connecting to database", logger.String("address", ep.hostPort), logger.Bool("tls", ep.tls))

	factory := c.opts.TransportFactory
	if factory == nil {
		factory = tcp.Factory(tcp.TCPTransportOptions{
			DialTimeout: c.opts.DialTimeout,
			UseTLS:      ep.tls,
			CertPath:    ep.certFile,
			KeyPath:     ep.keyFile,
			SkipVerify:  ep.insecure,
		})
	}

	dialCtx := ctx
	if c.opts.DialTimeout > 0 {
		var cancel context.CancelFunc
		dialCtx, cancel = context.WithTimeout(ctx, c.opts.DialTimeout)
		defer cancel()
	}

	tr, err := factory(dialCtx, ep.hostPort)
	if err != nil {
		if ep.tls {
			err = parseTLSError(err)
		}
		c.failConnecting(err)
		return wrapConnectError(err, ep.hostPort)
	}

	if c.opts.VersionHandshake {
		if err := c.handshake(dialCtx, tr); err != nil {
			tr.Close()
			c.failConnecting(err)
			return err
		}
	}

	c.mu.Lock()
	c.transport = tr
	c.endpoint = ep
	c.mu.Unlock()

	return nil
}

func (c *Client) handshake(ctx context.Context, tr transport.Transport) error {
	if err := tr.Send(ctx, c.codec.EncodeVersionHandshake()); err != nil {
		return &ProtocolError{Code: "HANDSHAKE_FAILED", Type: "PROTOCOL_ERROR", Message: "failed to send version handshake", Cause: err}
	}
	data, err := tr.Receive(ctx)
	if err != nil {
		return &ProtocolError{Code: "HANDSHAKE_FAILED", Type: "PROTOCOL_ERROR", Message: "failed to read version response", Cause: err}
	}
	if err := c.codec.DecodeVersionResponse(data); err != nil {
		return &ConnectionError{
			Code:    "VERSION_MISMATCH",
			Type:    "CONNECTION_ERROR",
			Message: err.Error(),
			Details: map[string]interface{}{"clientVersion": protocol.PROTOCOL_VERSION},
			Cause:   protocol.ProtocolVersionMismatchError(err.Error(), nil),
		}
	}
	return nil
}

// Authenticate records credentials for the login performed by Use.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	if state := c.stateMgr.GetState(); state != CONNECTING {
		return ErrInvalidState("Authenticate", CONNECTING, state)
	}
	c.mu.Lock()
	c.username = username
	c.password = password
	c.mu.Unlock()
	return nil
}

// Use logs in to database. The native protocol has no namespaces, so
// namespace is only logged.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	if state := c.stateMgr.GetState(); state != CONNECTING {
		return ErrInvalidState("Use", CONNECTING, state)
	}
	if database == "" {
		return &ConnectionError{Code: "INVALID_DATABASE", Type: "CONNECTION_ERROR", Message: "database name is required"}
	}
	if namespace != "" {
		c.logger.Debug("namespace ignored by native protocol", logger.String("namespace", namespace))
	}

	c.mu.Lock()
	err := c.login(ctx, database)
	c.mu.Unlock()
	if err != nil {
		c.closeTransport()
		c.failConnecting(err)
		return err
	}

	if err := c.stateMgr.TransitionTo(CONNECTED, nil, map[string]interface{}{
		"reason":   "user_initiated",
		"database": database,
	}); err != nil {
		return err
	}

	c.logger.Info("logged in", logger.String("database", database), logger.String("username", c.username))
	return nil
}

// login must be called with c.mu held.
func (c *Client) login(ctx context.Context, database string) error {
	line := c.codec.EncodeLogin(c.endpoint.hostPort, database, c.username, c.password)
	if err := c.transport.Send(ctx, line); err != nil {
		return &ProtocolError{Code: "SEND_FAILED", Type: "PROTOCOL_ERROR", Message: "failed to send login", Cause: err}
	}

	welcome, err := c.receive(ctx)
	if err != nil {
		return err
	}
	if !welcome.IsWelcome() {
		return &ConnectionError{
			Code:    "AUTH_FAILED",
			Type:    "CONNECTION_ERROR",
			Message: fmt.Sprintf("authentication failed: unexpected welcome response %q", welcome.Raw),
			Details: map[string]interface{}{"response": welcome.Raw},
			Cause:   protocol.AuthError("missing welcome code", nil),
		}
	}

	auth, err := c.receive(ctx)
	if err != nil {
		return err
	}
	if !strings.EqualFold(auth.Status, "success") {
		message := "unknown error"
		if auth.Message != "" {
			message = auth.Message
		} else if auth.Error != "" {
			message = auth.Error
		}
		return &ConnectionError{
			Code:    "AUTH_FAILED",
			Type:    "CONNECTION_ERROR",
			Message: fmt.Sprintf("authentication failed: %s", message),
			Details: map[string]interface{}{"response": auth.Raw},
			Cause:   protocol.AuthError(message, nil),
		}
	}

	c.database = database
	return nil
}

// Query sends one statement and waits for its response. A response the
// server marks as failed is returned as *QueryError.
func (c *Client) Query(ctx context.Context, text string) error {
	_, err := c.Execute(ctx, text)
	return err
}

// Execute is Query returning the decoded response.
func (c *Client) Execute(ctx context.Context, text string) (*protocol.Response, error) {
	if state := c.stateMgr.GetState(); state != CONNECTED {
		return nil, ErrInvalidState("Query", CONNECTED, state)
	}

	start := time.Now()
	traceID := uuid.New().String()
	debugMode := c.debugMode.Load()

	if debugMode {
		c.logger.Debug("sending raw command",
			logger.String("command", text),
			logger.String("trace_id", traceID))
	}

	frame, err := c.codec.Encode(text)
	if err != nil {
		return nil, &QueryError{
			Code:    "ENCODE_FAILED",
			Type:    "QUERY_ERROR",
			Message: "statement cannot be sent",
			Query:   text,
			TraceID: traceID,
			Cause:   err,
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := c.transport.Send(ctx, frame); err != nil {
		return nil, &ProtocolError{
			Code:    "SEND_FAILED",
			Type:    "PROTOCOL_ERROR",
			Message: "failed to send statement",
			Details: map[string]interface{}{"trace_id": traceID},
			Cause:   err,
		}
	}

	resp, err := c.receive(ctx)
	if err != nil {
		return nil, err
	}

	if debugMode {
		c.logger.Debug("received raw response",
			logger.String("response", resp.Raw),
			logger.String("trace_id", traceID),
			logger.Duration("duration", time.Since(start)))
	}

	if !resp.Success {
		code := resp.Code
		if code == "" {
			code = "SERVER_ERROR"
		}
		return resp, &QueryError{
			Code:      code,
			Type:      "QUERY_ERROR",
			Message:   resp.ErrorMessage(),
			Details:   resp.Details,
			Query:     text,
			TraceID:   traceID,
			Timestamp: time.Now(),
		}
	}

	return resp, nil
}

// receive must be called with c.mu held.
func (c *Client) receive(ctx context.Context) (*protocol.Response, error) {
	data, err := c.transport.Receive(ctx)
	if err != nil {
		return nil, &ProtocolError{Code: "RECEIVE_FAILED", Type: "PROTOCOL_ERROR", Message: "failed to read response", Cause: err}
	}
	resp, err := c.codec.Decode(data)
	if err != nil {
		return nil, &ProtocolError{Code: "DECODE_FAILED", Type: "PROTOCOL_ERROR", Message: "malformed response", Cause: err}
	}
	return resp, nil
}

// Close releases the connection. It is safe to call in any state.
func (c *Client) Close() error {
	switch c.stateMgr.GetState() {
	case CONNECTED:
		if err := c.stateMgr.TransitionTo(DISCONNECTING, nil, map[string]interface{}{"reason": "user_initiated"}); err != nil {
			return err
		}
		err := c.closeTransport()
		c.stateMgr.TransitionTo(DISCONNECTED, err, map[string]interface{}{"reason": "user_initiated"})
		if err == nil {
			c.logger.Info("disconnected")
		}
		return err
	case CONNECTING:
		err := c.closeTransport()
		c.stateMgr.TransitionTo(DISCONNECTED, err, map[string]interface{}{"reason": "user_initiated"})
		return err
	default:
		return nil
	}
}

func (c *Client) closeTransport() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport == nil {
		return nil
	}
	err := c.transport.Close()
	c.transport = nil
	return err
}

func (c *Client) failConnecting(err error) {
	c.stateMgr.TransitionTo(DISCONNECTED, err, map[string]interface{}{"reason": "error"})
}

// GetState returns the current connection state.
func (c *Client) GetState() ConnectionState {
	return c.stateMgr.GetState()
}

// OnStateChange registers a handler to be called on state transitions.
func (c *Client) OnStateChange(handler StateChangeHandler) {
	c.stateMgr.OnStateChange(handler)
}

// Database returns the database the session is logged in to.
func (c *Client) Database() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.database
}

// SetDebugMode toggles raw command logging.
func (c *Client) SetDebugMode(enabled bool) {
	c.debugMode.Store(enabled)
}

// GetVersion returns the build version of the client.
func (c *Client) GetVersion() string {
	return Version
}

func wrapConnectError(err error, address string) error {
	var ce *ConnectionError
	if errors.As(err, &ce) {
		return err
	}
	return &ConnectionError{
		Code:      "CONNECTION_FAILED",
		Type:      "CONNECTION_ERROR",
		Message:   fmt.Sprintf("failed to connect to %s", address),
		Details:   map[string]interface{}{"address": address},
		Cause:     err,
		Timestamp: time.Now(),
	}
}
