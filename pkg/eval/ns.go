// Package eval implements the evaluator of the coral command language: it
// walks parsed statements against a cursor into a namespace tree, resolves
// symbols to commands, namespaces and variables, executes the scripting
// constructs, and runs pipelines with filter pushdown.
package eval

import (
	"context"
	"errors"
	"io"
)

// Namespace is a node of the object tree that commands are resolved
// against. Domain plugins implement it; the evaluator only navigates it.
type Namespace interface {
	// Name returns the name the namespace is addressed by.
	Name() string
	// Commands returns the commands the namespace exposes, by name.
	Commands() map[string]Command
	// Namespaces returns the child namespaces, in display order.
	Namespaces() []Namespace
}

// Command is a runnable command. Implementations live in domain plugins and
// in the builtin set.
type Command interface {
	Run(cc *Context, args Args) (any, error)
}

// PipeCommand is a Command that can appear as a pipeline segment after the
// primary command.
type PipeCommand interface {
	Command
	// MustBeLast reports whether the command terminates a pipeline; a
	// segment after it is a syntax error.
	MustBeLast() bool
}

// FilteringCommand is a pipeline command whose effect can be serialized
// into a filter bundle and pushed down into the primary command's query
// instead of running as a post-process pass.
type FilteringCommand interface {
	Command
	// SerializeFilter converts the segment's arguments into filter triples
	// and execution parameters. Returning ErrNotFilterable makes the
	// evaluator fall back to running the segment as a post-process step.
	SerializeFilter(cc *Context, args Args) (*FilterBundle, error)
}

// ErrNotFilterable is returned from SerializeFilter when the segment cannot
// be pushed down for its particular arguments.
var ErrNotFilterable = errors.New("filter cannot be serialized")

// FilterTriple is one (field, operator, value) predicate of a pushed-down
// filter.
type FilterTriple struct {
	Field string
	Op    string
	Value any
}

// FilterBundle is the merged result of serializing a pipeline's filtering
// segments: a conjunction of predicates plus execution parameters such as a
// result limit or sort keys.
type FilterBundle struct {
	Filter []FilterTriple
	Params map[string]any
}

// merge folds other into b. Filter triples append in order; parameters are
// last-write-wins.
func (b *FilterBundle) merge(other *FilterBundle) {
	if other == nil {
		return
	}
	b.Filter = append(b.Filter, other.Filter...)
	for k, v := range other.Params {
		if b.Params == nil {
			b.Params = make(map[string]any)
		}
		b.Params[k] = v
	}
}

// empty reports whether the bundle carries nothing to push down.
func (b *FilterBundle) empty() bool {
	return len(b.Filter) == 0 && len(b.Params) == 0
}

// WaitPolicy says how a command that starts long-running work should treat
// it. The default leaves the choice to the command's own configuration;
// command expansions force one behavior or the other.
type WaitPolicy int

const (
	// WaitDefault defers to the command's configuration.
	WaitDefault WaitPolicy = iota
	// WaitSync blocks until the work finishes and yields its final result.
	WaitSync
	// WaitAsync submits the work and yields its handle without waiting.
	WaitAsync
)

// Context carries the evaluator-side state a command invocation may use.
type Context struct {
	// Ctx is the cancellation context of the current line.
	Ctx context.Context
	// Evaler is the owning evaluator.
	Evaler *Evaler
	// Path is the namespace path the command was resolved at, root first.
	Path []Namespace
	// Filter is the pushed-down filter bundle for a primary command, nil
	// when the pipeline has none.
	Filter *FilterBundle
	// Input is the materialized result of the previous pipeline stage for a
	// post-process segment, nil for a primary command.
	Input any
	// Wait is the blocking override for long-running work, WaitDefault
	// outside command expansions.
	Wait WaitPolicy
	// Out is where the command writes user-visible output.
	Out io.Writer
}

// Oparg is an operator argument: a KEY<op>VALUE parameter whose operator is
// one of the comparison, match or increment operators.
type Oparg struct {
	Name  string
	Op    string
	Value any
}

// Args is the three-way argument split handed to every command invocation.
type Args struct {
	// Pos keeps positional arguments in order.
	Pos []any
	// Kw keeps keyword arguments (opargs with "="); duplicate keys are
	// last-write-wins.
	Kw map[string]any
	// Op keeps the remaining operator arguments in order, duplicates
	// allowed.
	Op []Oparg
}
