package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func captureOutput(t *testing.T) (*bytes.Buffer, *bytes.Buffer) {
	t.Helper()
	var out, errOut bytes.Buffer
	oldOut, oldErr := stdout, stderr
	stdout, stderr = &out, &errOut
	t.Cleanup(func() { stdout, stderr = oldOut, oldErr })
	return &out, &errOut
}

func writeScript(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, "script.surql")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func TestRunAgainstSQLite(t *testing.T) {
	out, _ := captureOutput(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "CREATE TABLE t (x INTEGER);\n"+
		"INSERT INTO t VALUES (1);\n"+
		"INSERT INTO missing\n  VALUES (2);\n")

	code := run([]string{
		"-a", "sqlite://:memory:",
		"-f", script,
		"-error-log", filepath.Join(dir, "error.log"),
		"-replay-file", filepath.Join(dir, "fail_run.surql"),
		"-log-level", "ERROR",
	})
	if code != 0 {
		t.Fatalf("statement failures must not change the exit code, got %d", code)
	}

	log, err := os.ReadFile(filepath.Join(dir, "error.log"))
	if err != nil {
		t.Fatalf("read error log: %v", err)
	}
	if !strings.HasPrefix(string(log), "line: 3, command: 3, error: ") {
		t.Errorf("unexpected error log %q", log)
	}
	replay, err := os.ReadFile(filepath.Join(dir, "fail_run.surql"))
	if err != nil {
		t.Fatalf("read replay: %v", err)
	}
	if want := "--- command: 3, \n INSERT INTO missing\n  VALUES (2);\n \n"; string(replay) != want {
		t.Errorf("unexpected replay %q", replay)
	}

	if !strings.Contains(out.String(), "Commands:   3") || !strings.Contains(out.String(), "Failed:     1") {
		t.Errorf("summary missing counts:\n%s", out.String())
	}
	if _, err := os.Stat(filepath.Join(dir, ".stmtrunner.lock")); !os.IsNotExist(err) {
		t.Error("lock should be released after the run")
	}
}

func TestRunDryRun(t *testing.T) {
	out, _ := captureOutput(t)
	dir := t.TempDir()
	script := writeScript(t, dir, "CREATE a;\nUPDATE b\n SET c;\n")

	code := run([]string{"-dry-run", "-f", script, "-error-log", filepath.Join(dir, "error.log"),
		"-replay-file", filepath.Join(dir, "replay.surql"), "-log-level", "ERROR"})
	if code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.Contains(out.String(), "All 2 statement(s) executed") {
		t.Errorf("unexpected output:\n%s", out.String())
	}
}

func TestRunFatalErrors(t *testing.T) {
	dir := t.TempDir()
	artifacts := []string{
		"-error-log", filepath.Join(dir, "error.log"),
		"-replay-file", filepath.Join(dir, "replay.surql"),
		"-log-level", "ERROR",
	}

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"invalid flag", []string{"-bogus"}, "Invalid configuration"},
		{"invalid config", []string{"-flush-every", "-3"}, "flush-every"},
		{"unsupported scheme", append([]string{"-a", "ftp://x", "-f", "x.surql"}, artifacts...), "SESSION_FAILED"},
		{"missing script", append([]string{"-dry-run", "-f", filepath.Join(dir, "nope.surql")}, artifacts...), "SCRIPT_OPEN_FAILED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, errOut := captureOutput(t)
			if code := run(tt.args); code != 1 {
				t.Errorf("expected exit 1, got %d", code)
			}
			if !strings.Contains(errOut.String(), tt.want) {
				t.Errorf("expected %q in stderr, got:\n%s", tt.want, errOut.String())
			}
		})
	}
}

func TestRunVersion(t *testing.T) {
	out, _ := captureOutput(t)
	if code := run([]string{"-version"}); code != 0 {
		t.Fatalf("expected exit 0, got %d", code)
	}
	if !strings.HasPrefix(out.String(), "stmtrunner ") {
		t.Errorf("unexpected version output %q", out.String())
	}
}
