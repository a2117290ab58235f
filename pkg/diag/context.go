// Package diag contains building blocks for formatting and processing
// diagnostic information.
package diag

import (
	"fmt"
	"strings"
)

// Context is a range of text in a piece of source code, identified by the
// name of the source. It is used for errors that can be associated with a
// part of the source code, like lex errors, parse errors and traceback
// entries.
type Context struct {
	Name   string
	Source string
	Ranging
}

// NewContext creates a new Context.
func NewContext(name, source string, r Ranger) *Context {
	return &Context{name, source, r.Range()}
}

// Line returns the 1-based line number the start of the context is on.
func (c *Context) Line() int {
	return strings.Count(c.Source[:c.clampedFrom()], "\n") + 1
}

// Col returns the 1-based column number (in bytes) the start of the context
// is at.
func (c *Context) Col() int {
	before := c.Source[:c.clampedFrom()]
	if i := strings.LastIndexByte(before, '\n'); i >= 0 {
		return len(before) - i
	}
	return len(before) + 1
}

func (c *Context) clampedFrom() int {
	if c.From < 0 {
		return 0
	}
	if c.From > len(c.Source) {
		return len(c.Source)
	}
	return c.From
}

// Show shows the context: the name and position of the culprit, followed by
// the relevant line of source with the culprit underlined by a caret line.
func (c *Context) Show(indent string) string {
	if c.From < 0 || c.To > len(c.Source) || c.From > c.To {
		return fmt.Sprintf("%s, invalid position %d-%d", c.Name, c.From, c.To)
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s, line %d, col %d:", c.Name, c.Line(), c.Col())

	lineStart := strings.LastIndexByte(c.Source[:c.clampedFrom()], '\n') + 1
	lineEnd := len(c.Source)
	if i := strings.IndexByte(c.Source[lineStart:], '\n'); i >= 0 {
		lineEnd = lineStart + i
	}
	line := c.Source[lineStart:lineEnd]
	sb.WriteString("\n" + indent + "  " + line)

	// Caret line under the culprit. Zero-width ranges still get one caret.
	culpritEnd := c.To
	if culpritEnd > lineEnd {
		culpritEnd = lineEnd
	}
	carets := culpritEnd - c.From
	if carets < 1 {
		carets = 1
	}
	sb.WriteString("\n" + indent + "  " +
		strings.Repeat(" ", c.From-lineStart) + strings.Repeat("^", carets))
	return sb.String()
}
