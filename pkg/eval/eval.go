package eval

import (
	"context"
	"io"
	"log"
	"os"
	"os/exec"
	"sort"
	"strings"

	"github.com/coralstor/coral/pkg/logutil"
	"github.com/coralstor/coral/pkg/parse"
)

var logger = logutil.GetLogger("[eval] ")

// Evaler is the execution engine: it owns the namespace cursor, the global
// scope, and the builtin and pipe command registries. One Evaler serves one
// shell session; all state is explicit, there are no process-wide
// singletons.
type Evaler struct {
	root     Namespace
	builtins map[string]Command
	pipes    map[string]Command
	global   *Scope
	cursor   []Namespace
	prev     []Namespace
	out      io.Writer
	logger   *log.Logger
}

// NewEvaler makes an Evaler rooted at the given namespace tree, writing
// command output to out. The standard builtin and pipe commands are
// registered; callers add domain-specific ones with AddBuiltin and
// AddPipeCommand.
func NewEvaler(root Namespace, out io.Writer) *Evaler {
	ev := &Evaler{
		root:     root,
		builtins: make(map[string]Command),
		pipes:    make(map[string]Command),
		global:   NewScope(nil),
		cursor:   []Namespace{root},
		out:      out,
		logger:   logger,
	}
	registerBuiltins(ev)
	registerPipeCommands(ev)
	return ev
}

// AddBuiltin registers a process-wide builtin command. Builtins win over
// namespaces and namespace commands during resolution.
func (ev *Evaler) AddBuiltin(name string, cmd Command) { ev.builtins[name] = cmd }

// AddPipeCommand registers a command resolvable as a non-primary pipeline
// segment.
func (ev *Evaler) AddPipeCommand(name string, cmd Command) { ev.pipes[name] = cmd }

// Global returns the global variable scope.
func (ev *Evaler) Global() *Scope { return ev.global }

// BuiltinNames returns the names of the registered builtin commands, sorted.
func (ev *Evaler) BuiltinNames() []string { return sortedCommandNames(ev.builtins) }

// PipeCommandNames returns the names of the registered pipe commands, sorted.
func (ev *Evaler) PipeCommandNames() []string { return sortedCommandNames(ev.pipes) }

func sortedCommandNames(m map[string]Command) []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Cursor returns a copy of the current namespace path, root first.
func (ev *Evaler) Cursor() []Namespace {
	return append([]Namespace(nil), ev.cursor...)
}

// Path renders the current namespace path as /a/b.
func (ev *Evaler) Path() string { return renderPath(ev.cursor) }

func renderPath(path []Namespace) string {
	if len(path) <= 1 {
		return "/"
	}
	var sb strings.Builder
	for _, ns := range path[1:] {
		sb.WriteString("/")
		sb.WriteString(ns.Name())
	}
	return sb.String()
}

// Eval parses and evaluates src, returning the value of its last statement.
// Each top-level statement is transactional with respect to the namespace
// cursor: on failure the cursor is exactly what it was before the statement
// began.
func (ev *Evaler) Eval(ctx context.Context, src parse.Source) (any, error) {
	stmts, err := parse.Parse(src, parse.ParseOpts{})
	if err != nil {
		return nil, err
	}
	return ev.EvalStatements(ctx, src, stmts)
}

// EvalStatements evaluates an already parsed statement list.
func (ev *Evaler) EvalStatements(ctx context.Context, src parse.Source, stmts []parse.Node) (any, error) {
	var val any
	for _, stmt := range stmts {
		v, err := ev.evalTopLevel(ctx, src, stmt)
		if err != nil {
			return nil, err
		}
		val = v
	}
	return val, nil
}

func (ev *Evaler) evalTopLevel(ctx context.Context, src parse.Source, stmt parse.Node) (any, error) {
	saved := ev.Cursor()
	fm := &Frame{
		ev:     ev,
		ctx:    ctx,
		src:    src,
		scope:  ev.global,
		cursor: ev.Cursor(),
		out:    ev.out,
	}
	val, err := fm.statement(stmt)
	if err != nil {
		// The working cursor dies with the frame; ev.cursor was never
		// touched, so partial navigation inside the failed statement is not
		// observed afterward.
		ev.logger.Printf("statement failed: %v", err)
		return nil, err
	}
	// Only a statement that was pure navigation commits the cursor; walking
	// namespaces en route to a command does not move the session.
	if fm.navigated && !fm.rootReset && !samePath(fm.cursor, saved) {
		ev.prev = saved
		ev.cursor = fm.cursor
	}
	return val, nil
}

func samePath(a, b []Namespace) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Frame is the per-evaluation context threaded through statement and
// expression evaluation. Sub-evaluations (blocks, closures, expansions)
// derive frames rather than mutating shared state.
type Frame struct {
	ev    *Evaler
	ctx   context.Context
	src   parse.Source
	scope *Scope
	// cursor is the statement's working namespace path; it is committed to
	// the evaler only when the whole statement succeeds.
	cursor []Namespace
	// rootReset is set when a leading / reset the path: the navigation then
	// holds for the remainder of the statement only.
	rootReset bool
	// navigated is set when a command call resolved to nothing but
	// namespaces, making the statement a navigation.
	navigated bool
	// wait overrides the blocking behavior of long-running commands inside
	// command expansions.
	wait WaitPolicy
	out  io.Writer
}

func (fm *Frame) derive(scope *Scope) *Frame {
	sub := *fm
	sub.scope = scope
	return &sub
}

func (fm *Frame) statement(n parse.Node) (any, error) {
	if err := fm.ctx.Err(); err != nil {
		return nil, err
	}
	switch n := n.(type) {
	case *parse.CommandCall:
		return fm.command(n)
	case *parse.PipeExpr:
		return fm.pipeline(n)
	case *parse.ExpressionExpansion:
		return fm.expr(n.Expr)
	case *parse.AssignmentStatement:
		return nil, fm.assign(n)
	case *parse.ConstStatement:
		val, err := fm.expr(n.Expr)
		if err != nil {
			return nil, err
		}
		return nil, fm.scope.DefineConst(n.Name, val)
	case *parse.UndefStatement:
		return nil, fm.scope.Undef(n.Name)
	case *parse.IfStatement:
		return fm.ifStatement(n)
	case *parse.WhileStatement:
		return fm.whileStatement(n)
	case *parse.ForStatement:
		return fm.forStatement(n)
	case *parse.ForInStatement:
		return fm.forInStatement(n)
	case *parse.FunctionDefinition:
		closure := &Closure{Name: n.Name, Params: n.Params, Body: n.Body,
			scope: fm.scope, src: fm.src}
		return nil, fm.scope.Assign(n.Name, closure)
	case *parse.ReturnStatement:
		var val any
		if n.Expr != nil {
			v, err := fm.expr(n.Expr)
			if err != nil {
				return nil, err
			}
			val = v
		}
		return nil, &flowSignal{kind: flowReturn, value: val}
	case *parse.BreakStatement:
		return nil, &flowSignal{kind: flowBreak}
	case *parse.Redirection:
		return fm.redirection(n)
	case *parse.ShellEscape:
		return nil, fm.shellEscape(n)
	case *parse.Quote:
		return n, nil
	case *parse.FunctionCall, *parse.UnaryExpr:
		return fm.expr(n)
	case *parse.Comment:
		return nil, nil
	default:
		return nil, fm.errorf(n, "cannot execute this statement")
	}
}

// block evaluates statements in a nested scope, returning the value of the
// last statement. Flow signals propagate as errors for the enclosing loop
// or call to consume.
func (fm *Frame) block(stmts []parse.Node) (any, error) {
	sub := fm.derive(NewScope(fm.scope))
	var val any
	for _, stmt := range stmts {
		v, err := sub.statement(stmt)
		if err != nil {
			return nil, err
		}
		val = v
	}
	return val, nil
}

func (fm *Frame) assign(n *parse.AssignmentStatement) error {
	val, err := fm.expr(n.Expr)
	if err != nil {
		return err
	}
	switch target := n.Target.(type) {
	case *parse.Symbol:
		return fm.scope.Assign(target.Name, val)
	case *parse.Subscript:
		container, err := fm.expr(target.Target)
		if err != nil {
			return err
		}
		index, err := fm.expr(target.Index)
		if err != nil {
			return err
		}
		return fm.setElement(target, container, index, val)
	default:
		return fm.errorf(n.Target, "cannot assign to this target")
	}
}

func (fm *Frame) setElement(r *parse.Subscript, container, index, val any) error {
	switch container := container.(type) {
	case []any:
		i, ok := index.(int)
		if !ok {
			return fm.errorf(r.Index, "list index must be an integer")
		}
		if i < 0 || i >= len(container) {
			return Errorf("index %d out of range", i)
		}
		container[i] = val
		return nil
	case map[string]any:
		k, ok := index.(string)
		if !ok {
			return fm.errorf(r.Index, "dict key must be a string")
		}
		container[k] = val
		return nil
	default:
		return fm.errorf(r.Target, "value is not subscriptable")
	}
}

func (fm *Frame) ifStatement(n *parse.IfStatement) (any, error) {
	cond, err := fm.expr(n.Cond)
	if err != nil {
		return nil, err
	}
	if truthy(cond) {
		return fm.block(n.Body)
	}
	if n.Else != nil {
		return fm.block(n.Else)
	}
	return nil, nil
}

func (fm *Frame) whileStatement(n *parse.WhileStatement) (any, error) {
	for {
		cond, err := fm.expr(n.Cond)
		if err != nil {
			return nil, err
		}
		if !truthy(cond) {
			return nil, nil
		}
		if _, err := fm.block(n.Body); err != nil {
			if isBreak(err) {
				return nil, nil
			}
			return nil, err
		}
	}
}

func (fm *Frame) forStatement(n *parse.ForStatement) (any, error) {
	sub := fm.derive(NewScope(fm.scope))
	if n.Init != nil {
		if _, err := sub.statement(n.Init); err != nil {
			return nil, err
		}
	}
	for {
		if n.Cond != nil {
			cond, err := sub.expr(n.Cond)
			if err != nil {
				return nil, err
			}
			if !truthy(cond) {
				return nil, nil
			}
		}
		if _, err := sub.block(n.Body); err != nil {
			if isBreak(err) {
				return nil, nil
			}
			return nil, err
		}
		if n.Step != nil {
			if _, err := sub.statement(n.Step); err != nil {
				return nil, err
			}
		}
	}
}

func (fm *Frame) forInStatement(n *parse.ForInStatement) (any, error) {
	iterable, err := fm.expr(n.Expr)
	if err != nil {
		return nil, err
	}
	pairs, err := fm.iterate(n, iterable)
	if err != nil {
		return nil, err
	}
	sub := fm.derive(NewScope(fm.scope))
	for _, pair := range pairs {
		if len(n.Vars) == 2 {
			sub.scope.vars[n.Vars[0]] = pair[0]
			sub.scope.vars[n.Vars[1]] = pair[1]
		} else {
			sub.scope.vars[n.Vars[0]] = pair[1]
		}
		if _, err := sub.block(n.Body); err != nil {
			if isBreak(err) {
				return nil, nil
			}
			return nil, err
		}
	}
	return nil, nil
}

// iterate materializes the (key, value) pairs of an iterable. Lists pair an
// index with each element; dicts iterate in sorted key order so that
// iteration is deterministic.
func (fm *Frame) iterate(r *parse.ForInStatement, iterable any) ([][2]any, error) {
	switch iterable := iterable.(type) {
	case []any:
		pairs := make([][2]any, len(iterable))
		for i, v := range iterable {
			pairs[i] = [2]any{i, v}
		}
		return pairs, nil
	case map[string]any:
		keys := sortedKeys(iterable)
		pairs := make([][2]any, len(keys))
		for i, k := range keys {
			if len(r.Vars) == 2 {
				pairs[i] = [2]any{k, iterable[k]}
			} else {
				pairs[i] = [2]any{i, k}
			}
		}
		return pairs, nil
	default:
		return nil, fm.errorf(r.Expr, "value is not iterable")
	}
}

func isBreak(err error) bool {
	f, ok := err.(*flowSignal)
	return ok && f.kind == flowBreak
}

func (fm *Frame) redirection(n *parse.Redirection) (any, error) {
	flags := os.O_WRONLY | os.O_CREATE | os.O_TRUNC
	if n.Append {
		flags = os.O_WRONLY | os.O_CREATE | os.O_APPEND
	}
	f, err := os.OpenFile(n.Path, flags, 0o644)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	sub := *fm
	sub.out = f
	val, err := sub.statement(n.Body)
	if err != nil {
		return nil, err
	}
	if val != nil {
		if _, err := io.WriteString(f, Render(val)+"\n"); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func (fm *Frame) shellEscape(n *parse.ShellEscape) error {
	words := make([]string, len(n.Args))
	for i, arg := range n.Args {
		words[i] = parse.UnparseOneLine(arg)
	}
	cmd := exec.CommandContext(fm.ctx, "sh", "-c", strings.Join(words, " "))
	cmd.Stdout = fm.out
	cmd.Stderr = fm.out
	cmd.Stdin = os.Stdin
	return cmd.Run()
}
