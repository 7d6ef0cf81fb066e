// Package testutil holds fakes and helpers shared by stmtrunner tests.
package testutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/dan-strohschein/stmtrunner/store"
)

// TestAddressEnv names the store used by integration tests.
const TestAddressEnv = "STMTRUNNER_TEST_ADDRESS"

// NewTestSession connects and logs in to the store named by
// STMTRUNNER_TEST_ADDRESS, skipping the test when it is unset. Credentials
// come from STMTRUNNER_TEST_USERNAME etc. with the CLI defaults.
//
// Example:
//
//	export STMTRUNNER_TEST_ADDRESS="postgres://localhost:5432/app?sslmode=disable"
//	sess := testutil.NewTestSession(t)
func NewTestSession(t *testing.T) store.Session {
	t.Helper()

	address := os.Getenv(TestAddressEnv)
	if address == "" {
		t.Skip(TestAddressEnv + " not set, skipping integration test")
	}

	ctx, _ := WithTimeout(t)
	sess, err := store.Connect(ctx, address, store.Options{})
	if err != nil {
		t.Fatalf("failed to connect to %s: %v", address, err)
	}

	err = store.Login(ctx, sess,
		envOr("STMTRUNNER_TEST_USERNAME", "root"),
		envOr("STMTRUNNER_TEST_PASSWORD", "root"),
		envOr("STMTRUNNER_TEST_NAMESPACE", "test"),
		envOr("STMTRUNNER_TEST_DATABASE", "test"))
	if err != nil {
		t.Fatalf("failed to log in to %s: %v", address, err)
	}

	t.Cleanup(func() {
		if err := sess.Close(); err != nil {
			t.Logf("warning: failed to close session: %v", err)
		}
	})
	return sess
}

// ArtifactPaths returns an error log and replay path in a fresh temp dir.
func ArtifactPaths(t *testing.T) (errorLog, replay string) {
	t.Helper()
	dir := t.TempDir()
	return filepath.Join(dir, "error.log"), filepath.Join(dir, "fail_run.surql")
}

// ReadFile returns the content of path, failing the test if it is missing.
func ReadFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return string(data)
}

// WithTimeout creates a context with timeout for tests.
// Default timeout is 10 seconds.
func WithTimeout(t *testing.T, timeout ...time.Duration) (context.Context, context.CancelFunc) {
	t.Helper()

	duration := 10 * time.Second
	if len(timeout) > 0 {
		duration = timeout[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), duration)
	t.Cleanup(cancel)

	return ctx, cancel
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
