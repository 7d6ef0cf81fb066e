package script

import (
	"bufio"
	"fmt"
	"io"
	"unicode/utf8"
)

// maxLineSize bounds a single script line.
const maxLineSize = 16 * 1024 * 1024

// LineReader yields script lines one at a time with "\n" or "\r\n" removed.
// It stops at end of input, on a read error, or at the first line that is
// not valid UTF-8; Err distinguishes the last two from a clean end.
type LineReader struct {
	scanner *bufio.Scanner
	line    string
	lineNo  int
	err     error
}

// NewLineReader wraps r.
func NewLineReader(r io.Reader) *LineReader {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	return &LineReader{scanner: s}
}

// Next advances to the next line and reports whether there is one.
func (lr *LineReader) Next() bool {
	if lr.err != nil {
		return false
	}
	if !lr.scanner.Scan() {
		lr.err = lr.scanner.Err()
		return false
	}

	b := lr.scanner.Bytes()
	if !utf8.Valid(b) {
		lr.err = fmt.Errorf("line %d: invalid UTF-8", lr.lineNo+1)
		return false
	}

	lr.lineNo++
	lr.line = string(b)
	return true
}

// Line returns the current line.
func (lr *LineReader) Line() string {
	return lr.line
}

// LineNo returns the 1-based number of the current line.
func (lr *LineReader) LineNo() int {
	return lr.lineNo
}

// Err returns the error that stopped the reader, or nil at a clean end.
func (lr *LineReader) Err() error {
	return lr.err
}
