// Package runner drives a script through classification, accumulation,
// execution and error collection, one statement at a time.
package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/dan-strohschein/stmtrunner/logger"
	"github.com/dan-strohschein/stmtrunner/script"
	"github.com/dan-strohschein/stmtrunner/sink"
)

// Runner executes statement scripts. A Runner is used for one run.
type Runner struct {
	exec  Executor
	sink  *sink.Sink
	log   logger.Logger
	runID string
}

// Options configures a Runner.
type Options struct {
	// RunID identifies the run in logs. A uuid is generated when empty.
	RunID  string
	Logger logger.Logger
}

// New creates a Runner that executes through exec and records failures in s.
func New(exec Executor, s *sink.Sink, opts Options) *Runner {
	runID := opts.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := opts.Logger
	if log == nil {
		log = logger.NewNoop()
	}

	return &Runner{
		exec:  exec,
		sink:  s,
		log:   log.WithFields(logger.String("run_id", runID)),
		runID: runID,
	}
}

// RunID returns the identifier of this run.
func (r *Runner) RunID() string {
	return r.runID
}

// RunFile opens path and runs it. Failing to open the script is fatal.
func (r *Runner) RunFile(ctx context.Context, path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, ErrScriptOpen(path, err)
	}
	defer f.Close()

	r.log.Info("running script", logger.String("path", path))
	return r.Run(ctx, f)
}

// Run executes every statement in src in order. Statement failures are
// recorded and never stop the run; only a failed flush or a cancelled
// context does. The returned report is non-nil in both cases.
func (r *Runner) Run(ctx context.Context, src io.Reader) (*Report, error) {
	rep := &Report{RunID: r.runID, Started: time.Now()}

	var acc script.Accumulator
	lr := script.NewLineReader(src)

	for lr.Next() {
		if err := ctx.Err(); err != nil {
			r.finish(rep, &acc, lr)
			cancelled := ErrCancelled(rep.Counters.CommandCount, err)
			if ferr := r.sink.FlushNow(); ferr != nil {
				r.log.Error("flush after cancellation failed", logger.Error("error", ferr))
				cancelled = errors.Join(cancelled,
					ErrFlushFailed(rep.Counters.CommandCount, len(r.sink.Pending()), ferr))
			}
			r.collect(rep)
			return rep, cancelled
		}

		rep.Counters.LineCount++
		line := lr.Line()

		stmt, ok := acc.Feed(lr.LineNo(), line, script.Classify(line))
		if !ok {
			continue
		}

		rep.Counters.CommandCount++
		r.execute(ctx, stmt, rep)

		if err := r.sink.MaybeFlush(rep.Counters.CommandCount); err != nil {
			rep.DroppedLines = acc.Dropped()
			r.collect(rep)
			return rep, ErrFlushFailed(rep.Counters.CommandCount, len(r.sink.Pending()), err)
		}
	}

	r.finish(rep, &acc, lr)

	if err := r.sink.FlushNow(); err != nil {
		r.collect(rep)
		return rep, ErrFlushFailed(rep.Counters.CommandCount, len(r.sink.Pending()), err)
	}
	r.collect(rep)

	r.log.Info("run finished",
		logger.Int("lines", rep.Counters.LineCount),
		logger.Int("commands", rep.Counters.CommandCount),
		logger.Int("failed", rep.Failed),
		logger.Duration("duration", rep.Duration))
	return rep, nil
}

func (r *Runner) execute(ctx context.Context, stmt script.Statement, rep *Report) {
	start := time.Now()
	err := r.exec.Execute(ctx, stmt)
	elapsed := time.Since(start)

	if err == nil {
		r.log.Debug("statement executed",
			logger.Int("command", stmt.Ordinal),
			logger.Int("line", stmt.StartLine),
			logger.Uint64("fingerprint", stmt.Fingerprint()),
			logger.Duration("duration", elapsed))
		return
	}

	rep.Failed++
	msg := errorMessage(err)
	r.sink.Record(sink.ExecutionError{
		Line:          stmt.StartLine,
		Ordinal:       stmt.Ordinal,
		StatementText: stmt.Text,
		Message:       msg,
	})
	r.log.Warn("statement failed",
		logger.Int("command", stmt.Ordinal),
		logger.Int("line", stmt.StartLine),
		logger.Uint64("fingerprint", stmt.Fingerprint()),
		logger.Duration("duration", elapsed),
		logger.String("error", msg))
}

// finish records end-of-input diagnostics.
func (r *Runner) finish(rep *Report, acc *script.Accumulator, lr *script.LineReader) {
	rep.DroppedLines = acc.Dropped()

	if p, open := acc.Pending(); open {
		rep.Unterminated = &p
		r.log.Warn("statement open at end of input was not executed",
			logger.Int("line", p.StartLine),
			logger.Int("lines", p.Lines))
	}
	if err := lr.Err(); err != nil {
		rep.ReadErr = err
		r.log.Warn("stopped reading script", logger.Int("after_line", lr.LineNo()), logger.Error("error", err))
	}
}

func (r *Runner) collect(rep *Report) {
	rep.Flushes = r.sink.Flushes()
	rep.ErrorsWritten = r.sink.Written()
	rep.Duration = time.Since(rep.Started)
}
