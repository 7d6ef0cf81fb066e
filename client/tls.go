package client

import (
	"net/url"
	"strconv"
	"strings"
)

// endpoint is a parsed syndrdb:// address.
type endpoint struct {
	hostPort string
	tls      bool
	certFile string
	keyFile  string
	insecure bool
}

// parseEndpoint accepts "syndrdb://host:port" or bare "host:port", with
// optional ?tls=true&tlsCert=/path&tlsKey=/path&tlsInsecureSkipVerify=true.
func parseEndpoint(address string, opts ClientOptions) (endpoint, error) {
	ep := endpoint{
		tls:      opts.TLSEnabled,
		certFile: opts.TLSCertFile,
		keyFile:  opts.TLSKeyFile,
		insecure: opts.TLSInsecureSkipVerify,
	}

	rest := strings.TrimPrefix(address, "syndrdb://")
	query := ""
	if idx := strings.Index(rest, "?"); idx >= 0 {
		rest, query = rest[:idx], rest[idx+1:]
	}
	rest = strings.TrimSuffix(rest, "/")

	if rest == "" || !strings.Contains(rest, ":") {
		return ep, &ConnectionError{
			Code:    "INVALID_CONNECTION_STRING",
			Type:    "CONNECTION_ERROR",
			Message: "address must be host:port",
			Details: map[string]interface{}{
				"address":  address,
				"expected": "syndrdb://HOST:PORT",
			},
		}
	}
	ep.hostPort = rest

	values, err := url.ParseQuery(query)
	if err != nil {
		return ep, &ConnectionError{
			Code:    "INVALID_CONNECTION_STRING",
			Type:    "CONNECTION_ERROR",
			Message: "invalid address query parameters",
			Details: map[string]interface{}{"address": address},
			Cause:   err,
		}
	}
	if v := values.Get("tls"); v != "" {
		ep.tls, _ = strconv.ParseBool(v)
	}
	if v := values.Get("tlsCert"); v != "" {
		ep.certFile = v
	}
	if v := values.Get("tlsKey"); v != "" {
		ep.keyFile = v
	}
	if v := values.Get("tlsInsecureSkipVerify"); v != "" {
		ep.insecure, _ = strconv.ParseBool(v)
	}

	return ep, nil
}

// parseTLSError provides clear error messages for common TLS failures.
func parseTLSError(err error) error {
	if err == nil {
		return nil
	}

	errStr := err.Error()

	switch {
	case strings.Contains(errStr, "certificate has expired"):
		return &ConnectionError{
			Code:    "TLS_CERT_EXPIRED",
			Type:    "CONNECTION_ERROR",
			Message: "server certificate has expired",
			Cause:   err,
		}
	case strings.Contains(errStr, "doesn't match"):
		return &ConnectionError{
			Code:    "TLS_HOSTNAME_MISMATCH",
			Type:    "CONNECTION_ERROR",
			Message: "server certificate hostname doesn't match connection address",
			Cause:   err,
		}
	case strings.Contains(errStr, "unknown authority"):
		return &ConnectionError{
			Code:    "TLS_UNKNOWN_CA",
			Type:    "CONNECTION_ERROR",
			Message: "server certificate signed by unknown authority (try tlsInsecureSkipVerify for testing)",
			Cause:   err,
		}
	default:
		return &ConnectionError{
			Code:    "CONNECTION_FAILED",
			Type:    "CONNECTION_ERROR",
			Message: "failed to connect",
			Cause:   err,
		}
	}
}
