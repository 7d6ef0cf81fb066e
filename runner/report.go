package runner

import (
	"fmt"
	"strings"
	"time"

	"github.com/dan-strohschein/stmtrunner/script"
)

// Counters are the monotonic counts of one run. CommandCount includes
// failed statements but never a statement left open at end of input.
type Counters struct {
	LineCount    int
	CommandCount int
}

// Report describes a finished (or aborted) run.
type Report struct {
	RunID    string
	Counters Counters

	Failed        int
	Flushes       int
	ErrorsWritten int

	// DroppedLines were outside any statement.
	DroppedLines int
	// Unterminated is the statement still open at end of input.
	Unterminated *script.Pending
	// ReadErr is the read failure that stopped the run early, if any.
	ReadErr error

	Started  time.Time
	Duration time.Duration
}

// Succeeded returns the number of statements that executed cleanly.
func (r *Report) Succeeded() int {
	return r.Counters.CommandCount - r.Failed
}

// FormatReport formats a run report for human-readable output.
func FormatReport(r *Report, errorLog, replayFile string) string {
	var sb strings.Builder

	sb.WriteString("=== Run Summary ===\n\n")
	sb.WriteString(fmt.Sprintf("Run ID:     %s\n", r.RunID))
	sb.WriteString(fmt.Sprintf("Lines:      %d\n", r.Counters.LineCount))
	sb.WriteString(fmt.Sprintf("Commands:   %d\n", r.Counters.CommandCount))
	sb.WriteString(fmt.Sprintf("Succeeded:  %d\n", r.Succeeded()))
	sb.WriteString(fmt.Sprintf("Failed:     %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Duration:   %s\n", r.Duration.Round(time.Millisecond)))

	if r.DroppedLines > 0 {
		sb.WriteString(fmt.Sprintf("Dropped:    %d line(s) outside any statement\n", r.DroppedLines))
	}
	if r.Unterminated != nil {
		sb.WriteString(fmt.Sprintf("Open at EOF: statement starting on line %d (%d line(s)) was not executed\n",
			r.Unterminated.StartLine, r.Unterminated.Lines))
	}
	if r.ReadErr != nil {
		sb.WriteString(fmt.Sprintf("Stopped early: %v\n", r.ReadErr))
	}

	if r.ErrorsWritten > 0 {
		sb.WriteString("\nArtifacts:\n")
		sb.WriteString(fmt.Sprintf("  Error log:   %s\n", errorLog))
		sb.WriteString(fmt.Sprintf("  Replay file: %s\n", replayFile))
	}

	return sb.String()
}
