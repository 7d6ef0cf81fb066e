// Package surreal runs statements against SurrealDB through the official Go
// SDK, over WebSocket by default.
package surreal

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	surrealdb "github.com/surrealdb/surrealdb.go"

	"github.com/dan-strohschein/stmtrunner/logger"
)

// Error is a statement rejected by the server: a result entry whose status
// is not OK.
type Error struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	// Index is the position of the failing result in a multi-statement reply.
	Index int `json:"index"`
}

func (e *Error) Error() string {
	return e.Message
}

// Result is one entry of a query reply.
type Result struct {
	Status string
	Result any
}

// Conn is the part of an SDK connection a session needs.
type Conn interface {
	SignIn(ctx context.Context, username, password string) error
	Use(ctx context.Context, namespace, database string) error
	Query(ctx context.Context, text string) ([]Result, error)
	Close(ctx context.Context) error
}

// Dialer opens a Conn to a normalised endpoint URL.
type Dialer func(ctx context.Context, endpoint string) (Conn, error)

// Client is a store session for one SurrealDB endpoint.
type Client struct {
	endpoint string
	conn     Conn
	log      logger.Logger
}

// Dial connects to address with the SDK. Bare host:port is dialled as
// ws://host:port.
func Dial(ctx context.Context, address string, log logger.Logger) (*Client, error) {
	return DialWith(ctx, address, log, dialSDK)
}

// DialWith is Dial with a custom connection factory.
func DialWith(ctx context.Context, address string, log logger.Logger, dial Dialer) (*Client, error) {
	if log == nil {
		log = logger.NewNoop()
	}

	endpoint, err := Endpoint(address)
	if err != nil {
		return nil, err
	}

	conn, err := dial(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	return &Client{
		endpoint: endpoint,
		conn:     conn,
		log:      log.WithFields(logger.String("backend", "surreal"), logger.String("endpoint", endpoint)),
	}, nil
}

// Endpoint normalises address into the URL handed to the SDK.
func Endpoint(address string) (string, error) {
	raw := address
	if !strings.Contains(raw, "://") {
		raw = "ws://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse address %q: %w", address, err)
	}
	switch u.Scheme {
	case "ws", "wss", "http", "https":
	default:
		return "", fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("address %q has no host", address)
	}
	u.Path = strings.TrimSuffix(strings.TrimSuffix(u.Path, "/"), "/rpc")
	u.RawQuery = ""
	return u.String(), nil
}

// Authenticate signs in as a root user.
func (c *Client) Authenticate(ctx context.Context, username, password string) error {
	if err := c.conn.SignIn(ctx, username, password); err != nil {
		return fmt.Errorf("signin: %w", err)
	}
	c.log.Debug("signed in", logger.String("username", username))
	return nil
}

// Use selects the namespace and database and verifies them with INFO FOR DB.
func (c *Client) Use(ctx context.Context, namespace, database string) error {
	if err := c.conn.Use(ctx, namespace, database); err != nil {
		return fmt.Errorf("use: %w", err)
	}
	if err := c.Query(ctx, "INFO FOR DB;"); err != nil {
		return err
	}
	c.log.Info("session ready", logger.String("namespace", namespace), logger.String("database", database))
	return nil
}

// Query sends text as one request. Every result entry must have status OK.
func (c *Client) Query(ctx context.Context, text string) error {
	start := time.Now()
	results, err := c.conn.Query(ctx, text)

	for i, r := range results {
		if !strings.EqualFold(r.Status, "OK") {
			return &Error{Status: r.Status, Message: resultMessage(r), Index: i}
		}
	}
	if err != nil {
		return fmt.Errorf("query: %w", err)
	}

	c.log.Debug("statement accepted", logger.Int("results", len(results)), logger.Duration("duration", time.Since(start)))
	return nil
}

// Close closes the SDK connection.
func (c *Client) Close() error {
	return c.conn.Close(context.Background())
}

func resultMessage(r Result) string {
	switch v := r.Result.(type) {
	case string:
		if v != "" {
			return v
		}
	case nil:
	default:
		return fmt.Sprint(v)
	}
	return "statement failed with status " + r.Status
}

// sdkConn adapts *surrealdb.DB to Conn.
type sdkConn struct {
	db *surrealdb.DB
}

func dialSDK(ctx context.Context, endpoint string) (Conn, error) {
	db, err := surrealdb.FromEndpointURLString(ctx, endpoint)
	if err != nil {
		return nil, err
	}
	return &sdkConn{db: db}, nil
}

func (c *sdkConn) SignIn(ctx context.Context, username, password string) error {
	_, err := c.db.SignIn(ctx, &surrealdb.Auth{Username: username, Password: password})
	return err
}

func (c *sdkConn) Use(ctx context.Context, namespace, database string) error {
	return c.db.Use(ctx, namespace, database)
}

func (c *sdkConn) Query(ctx context.Context, text string) ([]Result, error) {
	res, err := surrealdb.Query[any](ctx, c.db, text, nil)
	if res == nil {
		return nil, err
	}

	out := make([]Result, 0, len(*res))
	for _, r := range *res {
		out = append(out, Result{Status: r.Status, Result: r.Result})
	}
	return out, err
}

func (c *sdkConn) Close(ctx context.Context) error {
	return c.db.Close(ctx)
}
