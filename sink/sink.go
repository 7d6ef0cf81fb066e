// Package sink buffers failed statements and periodically writes them to a
// human-readable error log and a replay script of the failing statements.
package sink

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/dan-strohschein/stmtrunner/logger"
)

// Defaults for Options.
const (
	DefaultErrorLog   = "error.log"
	DefaultReplayFile = "fail_run.surql"
	DefaultFlushEvery = 100
)

// ExecutionError is one failed statement.
type ExecutionError struct {
	// Line is the statement's first line in the script.
	Line          int
	Ordinal       int
	StatementText string
	Message       string
}

// Options configures a Sink.
type Options struct {
	ErrorLogPath string
	ReplayPath   string

	// FlushEvery is the command cadence of MaybeFlush.
	FlushEvery int

	// NoLock skips the artifact lock.
	NoLock bool

	// LockTimeout is passed to NewArtifactLock.
	LockTimeout time.Duration

	RunID  string
	Logger logger.Logger
}

// Sink owns the error buffer of one run.
//
// The first flush that has something to write truncates both artifacts;
// later flushes in the same run append. A flush with nothing to write does
// not touch the file system, so a run without failures leaves any existing
// artifacts alone.
type Sink struct {
	opts Options
	log  logger.Logger
	lock *ArtifactLock

	buf     []ExecutionError
	started bool
	flushes int
	written int
}

// New validates opts and fills in defaults. Call Open before recording.
func New(opts Options) (*Sink, error) {
	if opts.ErrorLogPath == "" {
		opts.ErrorLogPath = DefaultErrorLog
	}
	if opts.ReplayPath == "" {
		opts.ReplayPath = DefaultReplayFile
	}
	if opts.FlushEvery == 0 {
		opts.FlushEvery = DefaultFlushEvery
	}
	if opts.FlushEvery < 0 {
		return nil, fmt.Errorf("flush interval must be positive, got %d", opts.FlushEvery)
	}
	if filepath.Clean(opts.ErrorLogPath) == filepath.Clean(opts.ReplayPath) {
		return nil, fmt.Errorf("error log and replay file must differ, both are %q", opts.ErrorLogPath)
	}

	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}

	return &Sink{opts: opts, log: log}, nil
}

// Open acquires the artifact lock in the error log's directory.
func (s *Sink) Open() error {
	if s.opts.NoLock || s.lock != nil {
		return nil
	}

	lock, err := NewArtifactLock(filepath.Dir(s.opts.ErrorLogPath), s.opts.LockTimeout, s.log)
	if err != nil {
		return err
	}
	if err := lock.Acquire(s.opts.RunID); err != nil {
		return err
	}
	s.lock = lock
	return nil
}

// Close releases the artifact lock. It does not flush.
func (s *Sink) Close() error {
	if s.lock == nil {
		return nil
	}
	err := s.lock.Release()
	s.lock = nil
	return err
}

// Record buffers one failure.
func (s *Sink) Record(e ExecutionError) {
	s.buf = append(s.buf, e)
}

// MaybeFlush flushes when commandCount is a multiple of the flush interval.
func (s *Sink) MaybeFlush(commandCount int) error {
	if commandCount <= 0 || commandCount%s.opts.FlushEvery != 0 {
		return nil
	}
	return s.FlushNow()
}

// FlushNow refreshes the artifact lock, then writes and clears the buffer.
// On error the buffer is kept.
func (s *Sink) FlushNow() error {
	if s.lock != nil {
		if err := s.lock.Refresh(); err != nil {
			return err
		}
	}

	n := len(s.buf)
	if n == 0 {
		s.flushes++
		return nil
	}

	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if !s.started {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	if err := writeArtifact(s.opts.ErrorLogPath, flags, s.buf, FormatErrorLine); err != nil {
		return err
	}
	if err := writeArtifact(s.opts.ReplayPath, flags, s.buf, FormatReplayEntry); err != nil {
		return err
	}

	s.started = true
	s.flushes++
	s.written += n
	s.buf = s.buf[:0]

	s.log.Info("flushed failed statements",
		logger.Int("errors", n),
		logger.Int("total_written", s.written),
		logger.String("error_log", s.opts.ErrorLogPath),
		logger.String("replay_file", s.opts.ReplayPath))
	return nil
}

// Pending returns the buffered, unflushed failures.
func (s *Sink) Pending() []ExecutionError {
	out := make([]ExecutionError, len(s.buf))
	copy(out, s.buf)
	return out
}

// Flushes counts completed flushes, including empty ones.
func (s *Sink) Flushes() int {
	return s.flushes
}

// Written counts failures written to the artifacts.
func (s *Sink) Written() int {
	return s.written
}

// ErrorLogPath returns the error log location.
func (s *Sink) ErrorLogPath() string {
	return s.opts.ErrorLogPath
}

// ReplayPath returns the replay script location.
func (s *Sink) ReplayPath() string {
	return s.opts.ReplayPath
}

// FormatErrorLine renders one error log line. Line breaks inside the message
// are folded so every error stays on one line.
func FormatErrorLine(e ExecutionError) string {
	msg := strings.Join(strings.Fields(e.Message), " ")
	return fmt.Sprintf("line: %d, command: %d, error: %s\n", e.Line, e.Ordinal, msg)
}

// FormatReplayEntry renders one replay script block.
func FormatReplayEntry(e ExecutionError) string {
	return fmt.Sprintf("--- command: %d, \n %s \n", e.Ordinal, e.StatementText)
}

func writeArtifact(path string, flags int, errs []ExecutionError, format func(ExecutionError) string) error {
	f, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}

	w := bufio.NewWriter(f)
	for _, e := range errs {
		if _, err := w.WriteString(format(e)); err != nil {
			f.Close()
			return fmt.Errorf("write %s: %w", path, err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}
