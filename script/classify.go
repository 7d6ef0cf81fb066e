// Package script splits a statement script into discrete statements using a
// line-oriented heuristic. It never parses statement contents.
package script

import (
	"regexp"
	"strings"
)

// LineKind is the classification of one script line.
type LineKind int

const (
	// Other matches neither pattern.
	Other LineKind = iota
	// StartsStatement begins with a start verb.
	StartsStatement
	// EndsStatement ends with ';'.
	EndsStatement
	// StartsAndEnds satisfies both, e.g. "  CREATE x;".
	StartsAndEnds
)

// startPattern is case-sensitive and requires the verb to be a whole word.
var startPattern = regexp.MustCompile(`^\s*(UPDATE|UPSERT|CREATE|INSERT)\b`)

func (k LineKind) String() string {
	switch k {
	case StartsStatement:
		return "StartsStatement"
	case EndsStatement:
		return "EndsStatement"
	case StartsAndEnds:
		return "StartsAndEnds"
	default:
		return "Other"
	}
}

// Starts reports whether the line matched the start pattern.
func (k LineKind) Starts() bool {
	return k == StartsStatement || k == StartsAndEnds
}

// Ends reports whether the line matched the end pattern.
func (k LineKind) Ends() bool {
	return k == EndsStatement || k == StartsAndEnds
}

// Classify labels a line that has already had its terminator stripped.
// A line ends a statement only if ';' is its very last character.
func Classify(line string) LineKind {
	starts := startPattern.MatchString(line)
	ends := strings.HasSuffix(line, ";")

	switch {
	case starts && ends:
		return StartsAndEnds
	case starts:
		return StartsStatement
	case ends:
		return EndsStatement
	default:
		return Other
	}
}
