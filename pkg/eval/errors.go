package eval

import (
	"fmt"

	"github.com/coralstor/coral/pkg/diag"
	"github.com/coralstor/coral/pkg/parse"
)

// NameError reports a variable binding problem: an undefined variable, an
// undef of an absent name, or an assignment to a const.
type NameError struct {
	Name    string
	Message string
}

// Error implements the error interface.
func (e *NameError) Error() string {
	return fmt.Sprintf("%s: %s", e.Name, e.Message)
}

// CommandError is raised intentionally by command logic. It is user-facing
// and never a bug signal; the shell shows its message verbatim.
type CommandError struct {
	Message string
}

// Error implements the error interface.
func (e *CommandError) Error() string { return e.Message }

// Errorf makes a CommandError with a formatted message. It is the error
// constructor for command implementations.
func Errorf(format string, args ...any) error {
	return &CommandError{Message: fmt.Sprintf(format, args...)}
}

// ExitSignal is returned by the exit builtin; the driving shell terminates
// with the carried status code.
type ExitSignal struct {
	Code int
}

// Error implements the error interface.
func (e ExitSignal) Error() string { return fmt.Sprintf("exit %d", e.Code) }

// flowKind is an evaluator-internal control signal, distinct from the error
// taxonomy: return and break unwind block evaluation but are consumed by
// the enclosing function call or loop.
type flowKind int

const (
	flowReturn flowKind = iota
	flowBreak
)

type flowSignal struct {
	kind  flowKind
	value any // return value for flowReturn
}

func (f *flowSignal) Error() string {
	if f.kind == flowBreak {
		return "break outside loop"
	}
	return "return outside function"
}

// errorf makes a SyntaxError positioned at r within the frame's source.
// Unresolved symbols, pipe ordering violations, non-scalar expansions and
// arity mismatches all report through here.
func (fm *Frame) errorf(r diag.Ranger, format string, args ...any) error {
	return &parse.SyntaxError{
		Message: fmt.Sprintf(format, args...),
		Context: *diag.NewContext(fm.src.Name, fm.src.Code, r),
	}
}
