package script

import (
	"strings"

	"github.com/cespare/xxhash"
)

// Statement is one accumulated statement. Text holds every source line
// followed by "\n".
type Statement struct {
	Text      string
	StartLine int
	Ordinal   int
}

// Fingerprint identifies the statement text, so the ordinal to statement
// mapping of two runs over one script can be compared.
func (s Statement) Fingerprint() uint64 {
	return xxhash.Sum64([]byte(s.Text))
}

// Lines returns the number of source lines in the statement.
func (s Statement) Lines() int {
	return strings.Count(s.Text, "\n")
}
