package script

import "strings"

// Pending describes a statement that is still open.
type Pending struct {
	StartLine int
	Lines     int
}

// Accumulator is the statement-boundary state machine. The zero value is
// Idle and ready for use.
//
// While Idle a start line opens a statement and any other line is dropped.
// While Accumulating every line is appended, including further start lines,
// and an end line closes the statement. A line that both starts and ends
// while Idle is a complete one-line statement.
type Accumulator struct {
	buf       strings.Builder
	startLine int
	lines     int
	open      bool

	ordinal int
	dropped int
}

// Feed consumes one line. It returns the completed statement and true when
// line closes one.
func (a *Accumulator) Feed(lineNo int, line string, kind LineKind) (Statement, bool) {
	if !a.open {
		switch kind {
		case StartsAndEnds:
			a.begin(lineNo, line)
			return a.emit(), true
		case StartsStatement:
			a.begin(lineNo, line)
			return Statement{}, false
		default:
			a.dropped++
			return Statement{}, false
		}
	}

	a.append(line)
	if kind.Ends() {
		return a.emit(), true
	}
	return Statement{}, false
}

// Pending returns the open statement, if any. At end of input it is the
// statement that will never be emitted.
func (a *Accumulator) Pending() (Pending, bool) {
	if !a.open {
		return Pending{}, false
	}
	return Pending{StartLine: a.startLine, Lines: a.lines}, true
}

// Emitted returns how many statements have been emitted so far.
func (a *Accumulator) Emitted() int {
	return a.ordinal
}

// Dropped returns how many lines were ignored while Idle.
func (a *Accumulator) Dropped() int {
	return a.dropped
}

func (a *Accumulator) begin(lineNo int, line string) {
	a.buf.Reset()
	a.open = true
	a.startLine = lineNo
	a.lines = 0
	a.append(line)
}

func (a *Accumulator) append(line string) {
	a.buf.WriteString(line)
	a.buf.WriteByte('\n')
	a.lines++
}

func (a *Accumulator) emit() Statement {
	a.ordinal++
	stmt := Statement{
		Text:      a.buf.String(),
		StartLine: a.startLine,
		Ordinal:   a.ordinal,
	}
	a.buf.Reset()
	a.open = false
	a.startLine = 0
	a.lines = 0
	return stmt
}
