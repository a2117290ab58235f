package diag

import (
	"fmt"
	"strings"
)

// ErrorTagger is a type that can be used as a type parameter of [Error] to
// parameterize it into a distinct error type carrying the same information.
type ErrorTagger interface {
	// ErrorTag returns a string identifying the error type. It should be the
	// same for all instances of the same type.
	ErrorTag() string
}

// Error represents an error with a source context attached. The type
// parameter makes it possible to distinguish errors from different sources
// (lexing, parsing, evaluation) while sharing the same mechanics.
type Error[T ErrorTagger] struct {
	Message string
	Context Context
	// Partial is true if the error was caused by the source text ending too
	// early, so that supplying more input could make it go away.
	Partial bool
}

// Error returns a plain text representation of the error.
func (e *Error[T]) Error() string {
	var t T
	return fmt.Sprintf("%s: %s, line %d, col %d: %s",
		t.ErrorTag(), e.Context.Name, e.Context.Line(), e.Context.Col(), e.Message)
}

// Range returns the range of the error.
func (e *Error[T]) Range() Ranging {
	return e.Context.Range()
}

// Show shows the error with its source context.
func (e *Error[T]) Show(indent string) string {
	var t T
	header := fmt.Sprintf("%s: %s\n", title(t.ErrorTag()), e.Message)
	return header + indent + "  " + e.Context.Show(indent+"  ")
}

// PackErrors packs multiple instances of [Error] with the same tag into one
// error:
//
//   - If called with no errors, it returns nil.
//
//   - If called with one error, it returns that error itself.
//
//   - If called with more than one error, it returns an error that combines
//     all of them.
func PackErrors[T ErrorTagger](errs []*Error[T]) error {
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return errs[0]
	default:
		return multiError[T]{errs}
	}
}

// UnpackErrors returns the constituent [Error] instances in an error if it
// is built from [PackErrors] or [JoinErrors]. Otherwise it returns nil.
func UnpackErrors[T ErrorTagger](err error) []*Error[T] {
	switch err := err.(type) {
	case *Error[T]:
		return []*Error[T]{err}
	case multiError[T]:
		return err.errs
	case joinedError:
		var unpacked []*Error[T]
		for _, e := range err.errs {
			unpacked = append(unpacked, UnpackErrors[T](e)...)
		}
		return unpacked
	default:
		return nil
	}
}

// JoinErrors combines errors that may carry different tags into one error.
// Nil arguments are dropped; with zero or one error left it returns nil or
// that error itself, so joining never adds a wrapper when none is needed.
func JoinErrors(errs ...error) error {
	var kept []error
	for _, err := range errs {
		if err != nil {
			kept = append(kept, err)
		}
	}
	switch len(kept) {
	case 0:
		return nil
	case 1:
		return kept[0]
	default:
		return joinedError{kept}
	}
}

type joinedError struct {
	errs []error
}

func (je joinedError) Error() string {
	parts := make([]string, len(je.errs))
	for i, e := range je.errs {
		parts[i] = e.Error()
	}
	return strings.Join(parts, "; ")
}

func (je joinedError) Show(indent string) string {
	parts := make([]string, len(je.errs))
	for i, e := range je.errs {
		if s, ok := e.(Shower); ok {
			parts[i] = s.Show(indent)
		} else {
			parts[i] = e.Error()
		}
	}
	return strings.Join(parts, "\n"+indent)
}

// title capitalizes the first rune of s, for use at the start of a message.
func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

type multiError[T ErrorTagger] struct {
	errs []*Error[T]
}

func (me multiError[T]) Error() string {
	var t T
	var sb strings.Builder
	fmt.Fprintf(&sb, "multiple %ss: ", t.ErrorTag())
	for i, e := range me.errs {
		if i > 0 {
			sb.WriteString("; ")
		}
		sb.WriteString(e.Message)
	}
	return sb.String()
}

func (me multiError[T]) Show(indent string) string {
	var sb strings.Builder
	var t T
	fmt.Fprintf(&sb, "Multiple %ss:", t.ErrorTag())
	for _, e := range me.errs {
		sb.WriteString("\n" + indent + "  " + e.Show(indent+"  "))
	}
	return sb.String()
}
