package eval

import (
	"errors"

	"github.com/coralstor/coral/pkg/parse"
)

// command evaluates a single (non-piped) command call.
func (fm *Frame) command(call *parse.CommandCall) (any, error) {
	cmd, paramStart, err := fm.resolve(call)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		// Pure navigation; the cursor commit happens at the top level.
		fm.navigated = true
		return nil, nil
	}
	args, err := fm.classify(call.Args[paramStart:])
	if err != nil {
		return nil, err
	}
	return cmd.Run(fm.cmdContext(nil, nil), args)
}

// pipeline evaluates a pipe expression. Filtering segments are serialized
// into one bundle pushed down into the primary command's run; the rest run
// in order as post-process steps over the materialized result.
func (fm *Frame) pipeline(pe *parse.PipeExpr) (any, error) {
	primary := pe.Segments[0]
	cmd, paramStart, err := fm.resolve(primary)
	if err != nil {
		return nil, err
	}
	if cmd == nil {
		return nil, fm.errorf(primary, "cannot pipe out of a namespace")
	}
	primaryArgs, err := fm.classify(primary.Args[paramStart:])
	if err != nil {
		return nil, err
	}

	type stage struct {
		name string
		cmd  Command
		args Args
	}
	bundle := &FilterBundle{}
	var posts []stage
	rest := pe.Segments[1:]
	for i, seg := range rest {
		name, err := fm.pipeHeadName(seg)
		if err != nil {
			return nil, err
		}
		cmd, ok := fm.ev.pipes[name]
		if !ok {
			cmd, ok = fm.ev.builtins[name]
		}
		if !ok {
			return nil, fm.errorf(seg.Args[0], "command or namespace not found: %s", name)
		}
		if pc, ok := cmd.(PipeCommand); ok && pc.MustBeLast() && i != len(rest)-1 {
			return nil, fm.errorf(seg, "%s must be the last pipeline segment", name)
		}
		args, err := fm.classify(seg.Args[1:])
		if err != nil {
			return nil, err
		}
		if fc, ok := cmd.(FilteringCommand); ok {
			b, err := fc.SerializeFilter(fm.cmdContext(nil, nil), args)
			if err == nil {
				bundle.merge(b)
				continue
			}
			if !errors.Is(err, ErrNotFilterable) {
				return nil, err
			}
		}
		posts = append(posts, stage{name, cmd, args})
	}

	var filter *FilterBundle
	if !bundle.empty() {
		filter = bundle
	}
	result, err := cmd.Run(fm.cmdContext(filter, nil), primaryArgs)
	if err != nil {
		return nil, err
	}
	for _, st := range posts {
		result, err = st.cmd.Run(fm.cmdContext(nil, result), st.args)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (fm *Frame) pipeHeadName(seg *parse.CommandCall) (string, error) {
	if sym, ok := seg.Args[0].(*parse.Symbol); ok {
		return sym.Name, nil
	}
	return "", fm.errorf(seg.Args[0], "pipe segment must start with a command name")
}

func (fm *Frame) cmdContext(filter *FilterBundle, input any) *Context {
	return &Context{
		Ctx:    fm.ctx,
		Evaler: fm.ev,
		Path:   append([]Namespace(nil), fm.cursor...),
		Filter: filter,
		Input:  input,
		Wait:   fm.wait,
		Out:    fm.out,
	}
}

// resolve walks the leading symbols of a command call, navigating the
// working cursor through namespaces until a command is found. It returns
// the command and the index of the first parameter, or a nil command when
// the whole call was navigation. Resolution order at every step: builtin
// commands, child namespaces, commands of the current namespace.
func (fm *Frame) resolve(call *parse.CommandCall) (Command, int, error) {
	for i := 0; i < len(call.Args); i++ {
		head := call.Args[i]
		name, err := fm.headName(head)
		if err != nil {
			return nil, 0, err
		}
		switch name {
		case "/":
			fm.cursor = []Namespace{fm.ev.root}
			fm.rootReset = true
			continue
		case "..":
			if len(fm.cursor) > 1 {
				fm.cursor = fm.cursor[:len(fm.cursor)-1]
			}
			continue
		case "-":
			// Swap with the previously active path; with no previous path
			// this is a no-op.
			if prev := fm.ev.prev; prev != nil {
				fm.cursor = append([]Namespace(nil), prev...)
			}
			continue
		}
		if cmd, ok := fm.ev.builtins[name]; ok {
			return cmd, i + 1, nil
		}
		cur := fm.cursor[len(fm.cursor)-1]
		if child := childNamespace(cur, name); child != nil {
			fm.cursor = append(fm.cursor, child)
			continue
		}
		if cmd, ok := cur.Commands()[name]; ok {
			return cmd, i + 1, nil
		}
		return nil, 0, fm.errorf(head, "command or namespace not found: %s", name)
	}
	return nil, len(call.Args), nil
}

// headName extracts the name a command-position item resolves by. A brace
// expansion in head position evaluates to the name.
func (fm *Frame) headName(n parse.Node) (string, error) {
	switch n := n.(type) {
	case *parse.Symbol:
		return n.Name, nil
	case *parse.ExpressionExpansion:
		val, err := fm.expr(n.Expr)
		if err != nil {
			return "", err
		}
		if s, ok := val.(string); ok {
			return s, nil
		}
		return "", fm.errorf(n, "command name must be a string")
	default:
		return "", fm.errorf(n, "command or namespace not found")
	}
}

func childNamespace(ns Namespace, name string) Namespace {
	for _, child := range ns.Namespaces() {
		if child.Name() == name {
			return child
		}
	}
	return nil
}

// classify partitions parameter nodes into the (args, kwargs, opargs)
// triple handed to commands. Keyword arguments are last-write-wins;
// operator arguments keep order and duplicates.
func (fm *Frame) classify(params []parse.Node) (Args, error) {
	args := Args{Kw: make(map[string]any)}
	for _, p := range params {
		if bp, ok := p.(*parse.BinaryParameter); ok {
			val, err := fm.paramValue(bp.Value)
			if err != nil {
				return Args{}, err
			}
			if bp.Op == "=" {
				args.Kw[bp.Name] = val
			} else {
				args.Op = append(args.Op, Oparg{Name: bp.Name, Op: bp.Op, Value: val})
			}
			continue
		}
		val, err := fm.paramValue(p)
		if err != nil {
			return Args{}, err
		}
		args.Pos = append(args.Pos, val)
	}
	return args, nil
}

// paramValue evaluates one parameter node. Bare symbols are literal
// strings in parameter position; expansions substitute their result.
func (fm *Frame) paramValue(n parse.Node) (any, error) {
	switch n := n.(type) {
	case *parse.Symbol:
		return n.Name, nil
	case *parse.Literal:
		return fm.literal(n)
	case *parse.Set:
		vals := make([]any, len(n.Values))
		for i, v := range n.Values {
			vals[i] = v
		}
		return vals, nil
	case *parse.ExpressionExpansion:
		return fm.expr(n.Expr)
	case *parse.CommandExpansion:
		return fm.expand(n.Cmd, n, WaitAsync)
	case *parse.SyncCommandExpansion:
		return fm.expand(n.Cmd, n, WaitSync)
	case *parse.Quote:
		return n, nil
	default:
		return fm.expr(n)
	}
}

// expand evaluates a command expansion and substitutes its scalar result.
// The inner command runs against a copy of the working cursor and its
// output is captured, not printed; a non-scalar result is a syntax error.
// The wait policy distinguishes the two expansion forms: $() submits
// long-running work and substitutes its handle, @$() blocks for the final
// result.
func (fm *Frame) expand(cmd parse.Node, r parse.Node, wait WaitPolicy) (any, error) {
	sub := *fm
	sub.cursor = append([]Namespace(nil), fm.cursor...)
	sub.wait = wait
	sub.out = discardWriter{}
	val, err := sub.statement(cmd)
	if err != nil {
		return nil, err
	}
	switch val.(type) {
	case string, int, float64, bool:
		return val, nil
	default:
		return nil, fm.errorf(r, "command expansion must return a single value")
	}
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }
