// Package store selects and opens the remote-store session a run executes
// statements against.
package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/dan-strohschein/stmtrunner/client"
	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/store/sqldb"
	"github.com/dan-strohschein/stmtrunner/store/surreal"
)

// Session is a connection to a remote store that accepts statement text.
type Session interface {
	Authenticate(ctx context.Context, username, password string) error
	Use(ctx context.Context, namespace, database string) error
	Query(ctx context.Context, text string) error
	Close() error
}

// Backend names the implementation chosen for an address.
type Backend string

const (
	BackendSurreal  Backend = "surreal"
	BackendNative   Backend = "native"
	BackendPostgres Backend = "postgres"
	BackendSQLite   Backend = "sqlite"
)

// Options tunes the backends. The zero value is usable.
type Options struct {
	Logger logger.Logger

	// DebugMode logs raw statements and responses on the native backend.
	DebugMode bool
}

// BackendFor maps an address to the backend that serves it.
func BackendFor(address string) (Backend, error) {
	idx := strings.Index(address, "://")
	if idx < 0 {
		return BackendSurreal, nil
	}

	switch scheme := strings.ToLower(address[:idx]); scheme {
	case "http", "https", "ws", "wss":
		return BackendSurreal, nil
	case "syndrdb":
		return BackendNative, nil
	case "postgres", "postgresql":
		return BackendPostgres, nil
	case "sqlite":
		return BackendSQLite, nil
	default:
		return "", fmt.Errorf("unsupported address scheme %q", scheme)
	}
}

// Connect opens a session for address. Failures here are fatal to a run.
func Connect(ctx context.Context, address string, opts Options) (Session, error) {
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}

	backend, err := BackendFor(address)
	if err != nil {
		return nil, err
	}
	log.Debug("selected backend", logger.String("backend", string(backend)), logger.String("address", address))

	switch backend {
	case BackendNative:
		copts := client.DefaultOptions()
		copts.Logger = log
		copts.DebugMode = opts.DebugMode
		c := client.NewClient(&copts)
		if err := c.Connect(ctx, address); err != nil {
			return nil, err
		}
		return c, nil

	case BackendPostgres, BackendSQLite:
		driver, dsn := sqldb.DriverPostgres, address
		if backend == BackendSQLite {
			driver, dsn = sqldb.DriverSQLite, strings.TrimPrefix(address, "sqlite://")
		}
		s, err := sqldb.Open(ctx, driver, dsn, log)
		if err != nil {
			return nil, err
		}
		return s, nil

	default:
		c, err := surreal.Dial(ctx, address, log)
		if err != nil {
			return nil, err
		}
		return c, nil
	}
}

// Login runs the authenticate and use steps that every run performs before
// its first statement, closing the session if either fails.
func Login(ctx context.Context, s Session, username, password, namespace, database string) error {
	if err := s.Authenticate(ctx, username, password); err != nil {
		s.Close()
		return fmt.Errorf("authenticate as %q: %w", username, err)
	}
	if err := s.Use(ctx, namespace, database); err != nil {
		s.Close()
		return fmt.Errorf("use %s/%s: %w", namespace, database, err)
	}
	return nil
}
