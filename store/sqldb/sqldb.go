// Package sqldb runs statements through database/sql on one pinned
// connection, for Postgres (lib/pq) and SQLite (modernc.org/sqlite).
package sqldb

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"

	"github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/dan-strohschein/stmtrunner/logger"
)

// Driver names registered with database/sql.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Session is a database/sql backed store session. Every statement runs on
// the same *sql.Conn so that session settings from Use stay in effect.
type Session struct {
	driver string
	dsn    string
	log    logger.Logger

	db   *sql.DB
	conn *sql.Conn
}

// Open validates dsn for driver. The connection itself is made by
// Authenticate, which is when credentials are known.
func Open(ctx context.Context, driver, dsn string, log logger.Logger) (*Session, error) {
	if log == nil {
		log = logger.NewNoop()
	}

	switch driver {
	case DriverPostgres:
		u, err := url.Parse(dsn)
		if err != nil {
			return nil, fmt.Errorf("parse postgres url: %w", err)
		}
		if u.Host == "" {
			return nil, fmt.Errorf("postgres url %q has no host", u.Redacted())
		}
	case DriverSQLite:
		if dsn == "" {
			return nil, fmt.Errorf("sqlite path is required")
		}
	default:
		return nil, fmt.Errorf("unsupported driver %q", driver)
	}

	return &Session{
		driver: driver,
		dsn:    dsn,
		log:    log.WithFields(logger.String("backend", driver)),
	}, nil
}

// Authenticate opens the pinned connection. For Postgres the credentials are
// placed in the URL unless it already carries a user.
func (s *Session) Authenticate(ctx context.Context, username, password string) error {
	if s.driver == DriverPostgres {
		dsn, err := withCredentials(s.dsn, username, password)
		if err != nil {
			return err
		}
		s.dsn = dsn
	} else if username != "" {
		s.log.Debug("sqlite ignores credentials", logger.String("username", username))
	}

	return s.reconnect(ctx)
}

// Use switches to database and sets the Postgres search_path to namespace.
// SQLite has neither concept and ignores both.
func (s *Session) Use(ctx context.Context, namespace, database string) error {
	if s.conn == nil {
		return fmt.Errorf("use: session is not authenticated")
	}
	if s.driver != DriverPostgres {
		s.log.Debug("namespace and database ignored", logger.String("namespace", namespace), logger.String("database", database))
		return nil
	}

	if database != "" {
		dsn, changed, err := withDatabase(s.dsn, database)
		if err != nil {
			return err
		}
		if changed {
			s.dsn = dsn
			if err := s.reconnect(ctx); err != nil {
				return err
			}
		}
	}

	if namespace != "" {
		if _, err := s.conn.ExecContext(ctx, "SET search_path TO "+pq.QuoteIdentifier(namespace)); err != nil {
			return fmt.Errorf("set search_path: %w", err)
		}
	}

	s.log.Info("session ready", logger.String("database", database), logger.String("namespace", namespace))
	return nil
}

// Query executes text as-is. The driver error is returned unwrapped so the
// error log carries the server's own message.
func (s *Session) Query(ctx context.Context, text string) error {
	if s.conn == nil {
		return fmt.Errorf("query: session is not authenticated")
	}
	_, err := s.conn.ExecContext(ctx, text)
	return err
}

// Close releases the pinned connection and the pool behind it.
func (s *Session) Close() error {
	var firstErr error
	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			firstErr = err
		}
		s.conn = nil
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		s.db = nil
	}
	return firstErr
}

func (s *Session) reconnect(ctx context.Context) error {
	if err := s.Close(); err != nil {
		s.log.Warn("closing previous connection", logger.Error("error", err))
	}

	db, err := sql.Open(s.driver, s.dsn)
	if err != nil {
		return fmt.Errorf("open %s: %w", s.driver, err)
	}
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		db.Close()
		return fmt.Errorf("connect %s: %w", s.driver, err)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		db.Close()
		return fmt.Errorf("ping %s: %w", s.driver, err)
	}

	s.db = db
	s.conn = conn
	return nil
}

func withCredentials(dsn, username, password string) (string, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", fmt.Errorf("parse postgres url: %w", err)
	}
	if u.User == nil && username != "" {
		u.User = url.UserPassword(username, password)
	}
	return u.String(), nil
}

func withDatabase(dsn, database string) (string, bool, error) {
	u, err := url.Parse(dsn)
	if err != nil {
		return "", false, fmt.Errorf("parse postgres url: %w", err)
	}
	if strings.TrimPrefix(u.Path, "/") == database {
		return dsn, false, nil
	}
	u.Path = "/" + database
	return u.String(), true, nil
}
