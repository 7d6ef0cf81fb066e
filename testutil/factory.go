package testutil

import (
	"fmt"
	"strings"
)

// ScriptBuilder assembles script text and remembers where each statement
// starts, so tests can assert on line numbers and ordinals.
type ScriptBuilder struct {
	sb     strings.Builder
	lines  int
	starts []int
}

// NewScriptBuilder creates an empty script.
func NewScriptBuilder() *ScriptBuilder {
	return &ScriptBuilder{}
}

// Statement appends a statement made of lines. The last line should end
// with ';' for the statement to be emitted.
func (b *ScriptBuilder) Statement(lines ...string) *ScriptBuilder {
	b.starts = append(b.starts, b.lines+1)
	return b.Lines(lines...)
}

// Lines appends raw lines that are not tracked as statements.
func (b *ScriptBuilder) Lines(lines ...string) *ScriptBuilder {
	for _, l := range lines {
		b.sb.WriteString(l)
		b.sb.WriteByte('\n')
		b.lines++
	}
	return b
}

// Comment appends a line outside any statement.
func (b *ScriptBuilder) Comment(text string) *ScriptBuilder {
	return b.Lines("-- " + text)
}

// Updates appends n three-line UPDATE statements on table, each preceded by
// a comment line. Statement i (from 1) contains "id = i".
func (b *ScriptBuilder) Updates(table string, n int) *ScriptBuilder {
	for i := 1; i <= n; i++ {
		b.Comment(fmt.Sprintf("row %d", i))
		b.Statement(
			fmt.Sprintf("UPDATE %s", table),
			"  SET visits = visits + 1",
			fmt.Sprintf("  WHERE id = %d;", i),
		)
	}
	return b
}

// StartLine returns the 1-based line of statement ordinal (from 1).
func (b *ScriptBuilder) StartLine(ordinal int) int {
	return b.starts[ordinal-1]
}

// Count returns the number of statements appended.
func (b *ScriptBuilder) Count() int {
	return len(b.starts)
}

// LineCount returns the number of lines appended.
func (b *ScriptBuilder) LineCount() int {
	return b.lines
}

// String returns the script text.
func (b *ScriptBuilder) String() string {
	return b.sb.String()
}
