package client

import (
	"time"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/transport"
)

// ClientOptions configures the native protocol client.
type ClientOptions struct {
	// DialTimeout bounds connection establishment.
	// Statement round trips have no timeout unless the caller's context has one.
	// Default: 10s
	DialTimeout time.Duration

	// DebugMode logs raw commands and responses at DEBUG level.
	// Default: false
	DebugMode bool

	// VersionHandshake sends PROTOCOL_VERSION right after dialing.
	// Default: true
	VersionHandshake bool

	// TLSEnabled enables TLS with default configuration.
	// Also enabled by "?tls=true" on the address.
	// Default: false
	TLSEnabled bool

	// TLSInsecureSkipVerify skips certificate validation (for development only).
	// Default: false
	TLSInsecureSkipVerify bool

	// TLSCertFile is the path to the client certificate file.
	TLSCertFile string

	// TLSKeyFile is the path to the client private key file.
	TLSKeyFile string

	// Logger is the logger implementation to use.
	// If nil, a logger at LogLevel is created.
	Logger logger.Logger

	// LogLevel sets the minimum log level (DEBUG, INFO, WARN, ERROR).
	// Default: "INFO"
	LogLevel string

	// TransportFactory overrides how the transport is created. Tests use it
	// to inject transport/mock.
	TransportFactory transport.Factory
}

// DefaultOptions returns ClientOptions with default values.
func DefaultOptions() ClientOptions {
	return ClientOptions{
		DialTimeout:      10 * time.Second,
		DebugMode:        false,
		VersionHandshake: true,
		LogLevel:         "INFO",
	}
}
