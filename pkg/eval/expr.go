package eval

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/coralstor/coral/pkg/parse"
)

func (fm *Frame) expr(n parse.Node) (any, error) {
	switch n := n.(type) {
	case *parse.Literal:
		return fm.literal(n)
	case *parse.Symbol:
		if v, ok := fm.scope.Lookup(n.Name); ok {
			return v, nil
		}
		return nil, &NameError{Name: n.Name, Message: "not defined"}
	case *parse.Parentheses:
		return fm.expr(n.Expr)
	case *parse.ExpressionExpansion:
		return fm.expr(n.Expr)
	case *parse.CommandExpansion:
		return fm.expand(n.Cmd, n, WaitAsync)
	case *parse.SyncCommandExpansion:
		return fm.expand(n.Cmd, n, WaitSync)
	case *parse.UnaryExpr:
		return fm.unary(n)
	case *parse.BinaryExpr:
		return fm.binary(n)
	case *parse.Subscript:
		return fm.subscript(n)
	case *parse.FunctionCall:
		return fm.functionCall(n)
	case *parse.AnonymousFunction:
		return &Closure{Params: n.Params, Body: n.Body, scope: fm.scope, src: fm.src}, nil
	case *parse.Quote:
		return n, nil
	default:
		return nil, fm.errorf(n, "cannot evaluate this expression")
	}
}

func (fm *Frame) literal(n *parse.Literal) (any, error) {
	switch val := n.Val.(type) {
	case nil, bool, int, float64, string:
		return val, nil
	case []parse.Node:
		elems := make([]any, len(val))
		for i, elem := range val {
			v, err := fm.expr(elem)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return elems, nil
	case []parse.Pair:
		dict := make(map[string]any, len(val))
		for _, pair := range val {
			key, err := fm.dictKey(pair.Key)
			if err != nil {
				return nil, err
			}
			v, err := fm.expr(pair.Value)
			if err != nil {
				return nil, err
			}
			dict[key] = v
		}
		return dict, nil
	default:
		return nil, fm.errorf(n, "unknown literal")
	}
}

// dictKey evaluates a dict literal key: a bare symbol is the key text, any
// other expression must evaluate to a string.
func (fm *Frame) dictKey(n parse.Node) (string, error) {
	if sym, ok := n.(*parse.Symbol); ok {
		return sym.Name, nil
	}
	val, err := fm.expr(n)
	if err != nil {
		return "", err
	}
	if s, ok := val.(string); ok {
		return s, nil
	}
	return "", fm.errorf(n, "dict key must be a string")
}

func (fm *Frame) unary(n *parse.UnaryExpr) (any, error) {
	switch n.Op {
	case "not":
		val, err := fm.expr(n.Operand)
		if err != nil {
			return nil, err
		}
		return !truthy(val), nil
	case "-":
		val, err := fm.expr(n.Operand)
		if err != nil {
			return nil, err
		}
		switch v := val.(type) {
		case int:
			return -v, nil
		case float64:
			return -v, nil
		}
		return nil, fm.errorf(n, "cannot negate this value")
	case "++", "--":
		return fm.incDec(n)
	}
	return nil, fm.errorf(n, "unknown unary operator %s", n.Op)
}

// incDec applies ++/-- to a variable. The prefix form evaluates to the new
// value, the postfix form to the old one.
func (fm *Frame) incDec(n *parse.UnaryExpr) (any, error) {
	sym, ok := n.Operand.(*parse.Symbol)
	if !ok {
		return nil, fm.errorf(n, "%s needs a variable", n.Op)
	}
	old, ok := fm.scope.Lookup(sym.Name)
	if !ok {
		return nil, &NameError{Name: sym.Name, Message: "not defined"}
	}
	delta := 1
	if n.Op == "--" {
		delta = -1
	}
	var updated any
	switch v := old.(type) {
	case int:
		updated = v + delta
	case float64:
		updated = v + float64(delta)
	default:
		return nil, fm.errorf(n, "%s needs a numeric variable", n.Op)
	}
	if err := fm.scope.Assign(sym.Name, updated); err != nil {
		return nil, err
	}
	if n.Postfix {
		return old, nil
	}
	return updated, nil
}

func (fm *Frame) binary(n *parse.BinaryExpr) (any, error) {
	// Short-circuiting operators evaluate the right side lazily.
	if n.Op == "and" || n.Op == "or" {
		left, err := fm.expr(n.Left)
		if err != nil {
			return nil, err
		}
		if n.Op == "and" && !truthy(left) {
			return false, nil
		}
		if n.Op == "or" && truthy(left) {
			return true, nil
		}
		right, err := fm.expr(n.Right)
		if err != nil {
			return nil, err
		}
		return truthy(right), nil
	}
	left, err := fm.expr(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := fm.expr(n.Right)
	if err != nil {
		return nil, err
	}
	val, err := applyBinary(n.Op, left, right)
	if err != nil {
		return nil, fm.errorf(n, "%v", err)
	}
	return val, nil
}

func applyBinary(op string, left, right any) (any, error) {
	switch op {
	case "==":
		return equal(left, right), nil
	case "!=":
		return !equal(left, right), nil
	case "<", "<=", ">", ">=":
		return compare(op, left, right)
	case "~=":
		return matchRegexp(left, right)
	case "+":
		return add(left, right)
	case "-", "*", "/", "%":
		return arith(op, left, right)
	}
	return nil, fmt.Errorf("unknown operator %s", op)
}

func equal(a, b any) bool {
	if af, aok := toFloat(a); aok {
		if bf, bok := toFloat(b); bok {
			return af == bf
		}
		return false
	}
	switch a := a.(type) {
	case []any:
		b, ok := b.([]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for i := range a {
			if !equal(a[i], b[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		b, ok := b.(map[string]any)
		if !ok || len(a) != len(b) {
			return false
		}
		for k, v := range a {
			bv, ok := b[k]
			if !ok || !equal(v, bv) {
				return false
			}
		}
		return true
	default:
		return a == b
	}
}

func compare(op string, left, right any) (any, error) {
	if lf, ok := toFloat(left); ok {
		rf, ok := toFloat(right)
		if !ok {
			return nil, fmt.Errorf("cannot compare number with %s", typeName(right))
		}
		switch op {
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		default:
			return lf >= rf, nil
		}
	}
	ls, lok := left.(string)
	rs, rok := right.(string)
	if lok && rok {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		default:
			return ls >= rs, nil
		}
	}
	return nil, fmt.Errorf("cannot compare %s with %s", typeName(left), typeName(right))
}

func matchRegexp(left, right any) (any, error) {
	s, ok := left.(string)
	if !ok {
		return nil, fmt.Errorf("~= needs a string, got %s", typeName(left))
	}
	pattern, ok := right.(string)
	if !ok {
		return nil, fmt.Errorf("~= needs a string pattern, got %s", typeName(right))
	}
	matched, err := regexp.MatchString(pattern, s)
	if err != nil {
		return nil, fmt.Errorf("bad pattern %q: %v", pattern, err)
	}
	return matched, nil
}

func add(left, right any) (any, error) {
	if ls, ok := left.(string); ok {
		if rs, ok := right.(string); ok {
			return ls + rs, nil
		}
	}
	if ll, ok := left.([]any); ok {
		if rl, ok := right.([]any); ok {
			out := make([]any, 0, len(ll)+len(rl))
			return append(append(out, ll...), rl...), nil
		}
	}
	return arith("+", left, right)
}

func arith(op string, left, right any) (any, error) {
	li, lok := left.(int)
	ri, rok := right.(int)
	if lok && rok {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := toFloat(left)
	rf, rok := toFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("cannot apply %s to %s and %s", op, typeName(left), typeName(right))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, fmt.Errorf("division by zero")
		}
		return lf / rf, nil
	default:
		return nil, fmt.Errorf("%% needs integers")
	}
}

func (fm *Frame) subscript(n *parse.Subscript) (any, error) {
	target, err := fm.expr(n.Target)
	if err != nil {
		return nil, err
	}
	index, err := fm.expr(n.Index)
	if err != nil {
		return nil, err
	}
	switch target := target.(type) {
	case []any:
		i, ok := index.(int)
		if !ok {
			return nil, fm.errorf(n.Index, "list index must be an integer")
		}
		if i < 0 || i >= len(target) {
			return nil, Errorf("index %d out of range", i)
		}
		return target[i], nil
	case map[string]any:
		k, ok := index.(string)
		if !ok {
			return nil, fm.errorf(n.Index, "dict key must be a string")
		}
		// A missing key yields none rather than an error.
		return target[k], nil
	case string:
		i, ok := index.(int)
		if !ok {
			return nil, fm.errorf(n.Index, "string index must be an integer")
		}
		if i < 0 || i >= len(target) {
			return nil, Errorf("index %d out of range", i)
		}
		return string(target[i]), nil
	default:
		return nil, fm.errorf(n.Target, "value is not subscriptable")
	}
}

// Closure is a user-defined function value: parameters, a body, and the
// scope it was defined in.
type Closure struct {
	Name   string
	Params []string
	Body   []parse.Node
	scope  *Scope
	src    parse.Source
}

func (c *Closure) String() string {
	if c.Name == "" {
		return "<function>"
	}
	return "<function " + c.Name + ">"
}

// call invokes the closure with positional arguments. Errors inside the
// body report positions in the defining source.
func (c *Closure) call(fm *Frame, r parse.Node, args []any) (any, error) {
	if len(args) != len(c.Params) {
		name := c.Name
		if name == "" {
			name = "function"
		}
		return nil, fm.errorf(r, "%s takes %d arguments, got %d",
			name, len(c.Params), len(args))
	}
	scope := NewScope(c.scope)
	for i, param := range c.Params {
		scope.vars[param] = args[i]
	}
	sub := fm.derive(scope)
	sub.src = c.src
	var val any
	for _, stmt := range c.Body {
		v, err := sub.statement(stmt)
		if err != nil {
			if f, ok := err.(*flowSignal); ok && f.kind == flowReturn {
				return f.value, nil
			}
			return nil, err
		}
		val = v
	}
	return val, nil
}

func (fm *Frame) functionCall(n *parse.FunctionCall) (any, error) {
	args := make([]any, len(n.Args))
	for i, arg := range n.Args {
		v, err := fm.expr(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	if v, ok := fm.scope.Lookup(n.Name); ok {
		closure, ok := v.(*Closure)
		if !ok {
			return nil, fm.errorf(n, "%s is not a function", n.Name)
		}
		return closure.call(fm, n, args)
	}
	if fn, ok := builtinFuncs[n.Name]; ok {
		val, err := fn(args)
		if err != nil {
			return nil, fm.errorf(n, "%s: %v", n.Name, err)
		}
		return val, nil
	}
	return nil, &NameError{Name: n.Name, Message: "not defined"}
}

// Builtin expression functions. They are pure value transformers; anything
// that touches the appliance is a command instead.
var builtinFuncs = map[string]func(args []any) (any, error){
	"length": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case string:
			return len(v), nil
		case []any:
			return len(v), nil
		case map[string]any:
			return len(v), nil
		}
		return nil, fmt.Errorf("value has no length")
	},
	"str": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		return Render(args[0]), nil
	},
	"int": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		switch v := args[0].(type) {
		case int:
			return v, nil
		case float64:
			return int(v), nil
		case bool:
			if v {
				return 1, nil
			}
			return 0, nil
		case string:
			n, err := strconv.Atoi(strings.TrimSpace(v))
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to int", v)
			}
			return n, nil
		}
		return nil, fmt.Errorf("cannot convert to int")
	},
	"float": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		if f, ok := toFloat(args[0]); ok {
			return f, nil
		}
		if s, ok := args[0].(string); ok {
			f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
			if err != nil {
				return nil, fmt.Errorf("cannot convert %q to float", s)
			}
			return f, nil
		}
		return nil, fmt.Errorf("cannot convert to float")
	},
	"keys": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		dict, ok := args[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("keys needs a dict")
		}
		keys := sortedKeys(dict)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = k
		}
		return out, nil
	},
	"values": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		dict, ok := args[0].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("values needs a dict")
		}
		keys := sortedKeys(dict)
		out := make([]any, len(keys))
		for i, k := range keys {
			out[i] = dict[k]
		}
		return out, nil
	},
	"append": func(args []any) (any, error) {
		if len(args) < 1 {
			return nil, fmt.Errorf("want at least 1 argument")
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("append needs a list")
		}
		return append(append([]any(nil), list...), args[1:]...), nil
	},
	"join": func(args []any) (any, error) {
		if err := wantArgs(args, 2); err != nil {
			return nil, err
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, fmt.Errorf("join needs a list")
		}
		sep, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("join needs a string separator")
		}
		parts := make([]string, len(list))
		for i, v := range list {
			parts[i] = Render(v)
		}
		return strings.Join(parts, sep), nil
	},
	"split": func(args []any) (any, error) {
		if err := wantArgs(args, 2); err != nil {
			return nil, err
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, fmt.Errorf("split needs a string")
		}
		sep, ok := args[1].(string)
		if !ok {
			return nil, fmt.Errorf("split needs a string separator")
		}
		parts := strings.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	},
	"range": func(args []any) (any, error) {
		if err := wantArgs(args, 1); err != nil {
			return nil, err
		}
		n, ok := args[0].(int)
		if !ok || n < 0 {
			return nil, fmt.Errorf("range needs a non-negative integer")
		}
		out := make([]any, n)
		for i := 0; i < n; i++ {
			out[i] = i
		}
		return out, nil
	},
}

func wantArgs(args []any, n int) error {
	if len(args) != n {
		return fmt.Errorf("want %d arguments, got %d", n, len(args))
	}
	return nil
}

// Value helpers for the plain Go value model: none is nil, numbers are int
// or float64, sequences are []any, mappings are map[string]any.

func truthy(v any) bool {
	switch v := v.(type) {
	case nil:
		return false
	case bool:
		return v
	case int:
		return v != 0
	case float64:
		return v != 0
	case string:
		return v != ""
	case []any:
		return len(v) > 0
	case map[string]any:
		return len(v) > 0
	default:
		return true
	}
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func typeName(v any) string {
	switch v.(type) {
	case nil:
		return "none"
	case bool:
		return "bool"
	case int:
		return "int"
	case float64:
		return "float"
	case string:
		return "str"
	case []any:
		return "list"
	case map[string]any:
		return "dict"
	default:
		return fmt.Sprintf("%T", v)
	}
}

func sortedKeys(dict map[string]any) []string {
	keys := make([]string, 0, len(dict))
	for k := range dict {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Render formats a value for user display: strings render bare, numbers and
// booleans in their literal form, lists and dicts in source-like notation.
func Render(v any) string {
	switch v := v.(type) {
	case nil:
		return "none"
	case bool:
		return strconv.FormatBool(v)
	case int:
		return strconv.Itoa(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case string:
		return v
	case []any:
		parts := make([]string, len(v))
		for i, elem := range v {
			parts[i] = renderNested(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		keys := sortedKeys(v)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + renderNested(v[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	case *parse.Quote:
		return parse.UnparseOneLine(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func renderNested(v any) string {
	if s, ok := v.(string); ok {
		return strconv.Quote(s)
	}
	return Render(v)
}
