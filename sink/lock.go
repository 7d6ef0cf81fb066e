package sink

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/dan-strohschein/stmtrunner/logger"
)

// LockFileName is created next to the artifacts while a run owns them.
const LockFileName = ".stmtrunner.lock"

// LockTimeoutEnv overrides how old a lock must be before it is treated as stale.
const LockTimeoutEnv = "STMTRUNNER_LOCK_TIMEOUT"

// ErrLockHeld is matched by errors.Is on a *LockConflictError.
var ErrLockHeld = errors.New("artifact lock is held")

// LockMetadata contains information about who holds the artifact lock.
type LockMetadata struct {
	Holder    string    `json:"holder"`
	Hostname  string    `json:"hostname"`
	PID       int       `json:"pid"`
	Timestamp time.Time `json:"timestamp"`
	RunID     string    `json:"run_id,omitempty"`
}

// LockConflictError reports a lock held by another live run.
type LockConflictError struct {
	Path   string
	Holder LockMetadata
}

func (e *LockConflictError) Error() string {
	return fmt.Sprintf("artifact lock %s is held by %s@%s (PID %d, run %s) since %s ago",
		e.Path, e.Holder.Holder, e.Holder.Hostname, e.Holder.PID, e.Holder.RunID,
		time.Since(e.Holder.Timestamp).Round(time.Second))
}

func (e *LockConflictError) Is(target error) bool {
	return target == ErrLockHeld
}

// ArtifactLock is a file-based lock that keeps two runs from writing the same
// error log and replay file at once.
type ArtifactLock struct {
	path         string
	staleTimeout time.Duration
	log          logger.Logger

	// meta is what this lock last wrote; held is false until Acquire succeeds.
	meta LockMetadata
	held bool
}

// NewArtifactLock creates a lock in dir. A zero timeout reads
// STMTRUNNER_LOCK_TIMEOUT and falls back to one hour.
func NewArtifactLock(dir string, timeout time.Duration, log logger.Logger) (*ArtifactLock, error) {
	if dir == "" {
		dir = "."
	}
	if log == nil {
		log = logger.NewNoop()
	}

	if timeout == 0 {
		var err error
		timeout, err = parseLockTimeout()
		if err != nil {
			return nil, err
		}
	}

	return &ArtifactLock{
		path:         filepath.Join(dir, LockFileName),
		staleTimeout: timeout,
		log:          log,
	}, nil
}

// Path returns the lock file path.
func (l *ArtifactLock) Path() string {
	return l.path
}

// Acquire creates the lock file exclusively. A stale lock is removed and
// acquisition retried once.
func (l *ArtifactLock) Acquire(runID string) error {
	return l.acquire(runID, true)
}

func (l *ArtifactLock) acquire(runID string, cleanStale bool) error {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	user := os.Getenv("USER")
	if user == "" {
		user = os.Getenv("USERNAME")
		if user == "" {
			user = "unknown"
		}
	}

	meta := LockMetadata{
		Holder:    user,
		Hostname:  hostname,
		PID:       os.Getpid(),
		Timestamp: time.Now(),
		RunID:     runID,
	}

	file, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return fmt.Errorf("create lock file: %w", err)
		}

		if cleanStale && l.isStale() {
			held, _ := l.readMetadata()
			l.log.Warn("removing stale artifact lock",
				logger.String("path", l.path),
				logger.String("holder", held.Holder),
				logger.Int("pid", held.PID),
				logger.Duration("stale_after", l.staleTimeout))
			if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("remove stale lock: %w", err)
			}
			return l.acquire(runID, false)
		}

		held, _ := l.readMetadata()
		return &LockConflictError{Path: l.path, Holder: held}
	}
	defer file.Close()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		os.Remove(l.path)
		return fmt.Errorf("marshal lock metadata: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		os.Remove(l.path)
		return fmt.Errorf("write lock metadata: %w", err)
	}

	l.meta = meta
	l.held = true
	return nil
}

// Refresh rewrites the lock metadata with the current time so a run that is
// still making progress never looks stale. It fails with a
// *LockConflictError if another run has taken the lock over.
func (l *ArtifactLock) Refresh() error {
	if !l.held {
		return nil
	}

	current, err := l.readMetadata()
	if err != nil && os.IsNotExist(err) {
		l.held = false
		return fmt.Errorf("artifact lock %s was removed: %w", l.path, ErrLockHeld)
	}
	if err != nil || !l.owns(current) {
		l.held = false
		return &LockConflictError{Path: l.path, Holder: current}
	}

	meta := l.meta
	meta.Timestamp = time.Now()
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal lock metadata: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), LockFileName+".*")
	if err != nil {
		return fmt.Errorf("refresh lock: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("refresh lock: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("refresh lock: %w", err)
	}
	if err := os.Rename(tmp.Name(), l.path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("refresh lock: %w", err)
	}

	l.meta = meta
	return nil
}

// Release removes the lock file if this lock still holds it. A lock taken
// over by another run is left in place. Releasing twice is not an error.
func (l *ArtifactLock) Release() error {
	if !l.held {
		return nil
	}
	l.held = false

	current, err := l.readMetadata()
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	if err != nil || !l.owns(current) {
		l.log.Warn("artifact lock is held by another run, leaving it",
			logger.String("path", l.path),
			logger.String("holder", current.Holder),
			logger.String("run_id", current.RunID))
		return nil
	}

	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

func (l *ArtifactLock) owns(meta LockMetadata) bool {
	return meta.RunID == l.meta.RunID &&
		meta.PID == l.meta.PID &&
		meta.Hostname == l.meta.Hostname &&
		meta.Timestamp.Equal(l.meta.Timestamp)
}

func (l *ArtifactLock) isStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return time.Since(info.ModTime()) > l.staleTimeout
}

// readMetadata returns whatever could be parsed; a torn file yields zero values.
func (l *ArtifactLock) readMetadata() (LockMetadata, error) {
	var meta LockMetadata
	data, err := os.ReadFile(l.path)
	if err != nil {
		return meta, err
	}
	if err := json.Unmarshal(data, &meta); err != nil {
		return meta, fmt.Errorf("unmarshal lock metadata: %w", err)
	}
	return meta, nil
}

func parseLockTimeout() (time.Duration, error) {
	v := os.Getenv(LockTimeoutEnv)
	if v == "" {
		return time.Hour, nil
	}

	timeout, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s value %q: %w", LockTimeoutEnv, v, err)
	}
	if timeout <= 0 {
		return 0, fmt.Errorf("%s must be positive, got %s", LockTimeoutEnv, timeout)
	}
	return timeout, nil
}
