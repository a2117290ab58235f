package eval

import (
	"os"
	"sort"
	"strings"

	"github.com/coralstor/coral/pkg/parse"
)

// cmdFunc adapts a function to the Command interface.
type cmdFunc func(cc *Context, args Args) (any, error)

func (f cmdFunc) Run(cc *Context, args Args) (any, error) { return f(cc, args) }

func registerBuiltins(ev *Evaler) {
	ev.AddBuiltin("echo", cmdFunc(echoCmd))
	ev.AddBuiltin("eval", cmdFunc(evalCmd))
	ev.AddBuiltin("source", cmdFunc(sourceCmd))
	ev.AddBuiltin("pwd", cmdFunc(pwdCmd))
	ev.AddBuiltin("ls", cmdFunc(lsCmd))
	ev.AddBuiltin("setvar", cmdFunc(setvarCmd))
	ev.AddBuiltin("printvar", cmdFunc(printvarCmd))
	ev.AddBuiltin("exit", cmdFunc(exitCmd))
}

// echoCmd renders its arguments joined by spaces and returns the line. The
// REPL displays statement results, so echo does not write to the console
// itself; an expansion captures the returned line directly.
func echoCmd(cc *Context, args Args) (any, error) {
	parts := make([]string, len(args.Pos))
	for i, arg := range args.Pos {
		parts[i] = Render(arg)
	}
	return strings.Join(parts, " "), nil
}

// evalCmd evaluates backquoted command sequences or strings of source text.
func evalCmd(cc *Context, args Args) (any, error) {
	var val any
	for _, arg := range args.Pos {
		var src parse.Source
		switch arg := arg.(type) {
		case *parse.Quote:
			stmts := make([]string, len(arg.Body))
			for i, stmt := range arg.Body {
				stmts[i] = parse.UnparseOneLine(stmt)
			}
			src = parse.Source{Name: "[eval]", Code: strings.Join(stmts, "; ")}
		case string:
			src = parse.Source{Name: "[eval]", Code: arg}
		default:
			return nil, Errorf("eval needs a quote or a string")
		}
		v, err := cc.Evaler.Eval(cc.Ctx, src)
		if err != nil {
			return nil, err
		}
		val = v
	}
	return val, nil
}

// sourceCmd reads and evaluates a script file. The whole file aborts on the
// first error, with no partial application of later statements.
func sourceCmd(cc *Context, args Args) (any, error) {
	if len(args.Pos) != 1 {
		return nil, Errorf("source needs exactly one file name")
	}
	name, ok := args.Pos[0].(string)
	if !ok {
		return nil, Errorf("source needs a file name")
	}
	code, err := os.ReadFile(name)
	if err != nil {
		return nil, Errorf("cannot read %s: %v", name, err)
	}
	return cc.Evaler.Eval(cc.Ctx, parse.Source{Name: name, Code: string(code)})
}

func pwdCmd(cc *Context, args Args) (any, error) {
	return renderPath(cc.Path), nil
}

// lsCmd lists the child namespaces and commands at the current position.
func lsCmd(cc *Context, args Args) (any, error) {
	cur := cc.Path[len(cc.Path)-1]
	var names []any
	for _, child := range cur.Namespaces() {
		names = append(names, child.Name()+"/")
	}
	cmds := cur.Commands()
	sorted := make([]string, 0, len(cmds))
	for name := range cmds {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	for _, name := range sorted {
		names = append(names, name)
	}
	return names, nil
}

// setvarCmd assigns global variables from its keyword arguments.
func setvarCmd(cc *Context, args Args) (any, error) {
	if len(args.Kw) == 0 {
		return nil, Errorf("setvar needs name=value arguments")
	}
	for name, val := range args.Kw {
		if err := cc.Evaler.Global().Assign(name, val); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

func printvarCmd(cc *Context, args Args) (any, error) {
	if len(args.Pos) != 1 {
		return nil, Errorf("printvar needs exactly one variable name")
	}
	name, ok := args.Pos[0].(string)
	if !ok {
		return nil, Errorf("printvar needs a variable name")
	}
	val, ok := cc.Evaler.Global().Lookup(name)
	if !ok {
		return nil, &NameError{Name: name, Message: "not defined"}
	}
	return val, nil
}

func exitCmd(cc *Context, args Args) (any, error) {
	code := 0
	if len(args.Pos) > 0 {
		c, ok := args.Pos[0].(int)
		if !ok {
			return nil, Errorf("exit needs an integer status")
		}
		code = c
	}
	return nil, ExitSignal{Code: code}
}
