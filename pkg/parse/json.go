package parse

import (
	"encoding/json"
	"fmt"
)

// ToJSON encodes a node into the structural interchange format: every node
// becomes an object with a "type" tag and one field per child. The encoding
// is loss-free for program structure; source positions are not preserved.
func ToJSON(n Node) ([]byte, error) {
	return json.Marshal(encodeNode(n))
}

// FromJSON decodes a node from the structural interchange format.
func FromJSON(data []byte) (Node, error) {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeNode(raw)
}

// ProgramToJSON encodes a list of top-level statements.
func ProgramToJSON(stmts []Node) ([]byte, error) {
	return json.Marshal(encodeNodes(stmts))
}

// ProgramFromJSON decodes a list of top-level statements.
func ProgramFromJSON(data []byte) ([]Node, error) {
	var raw []any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return decodeNodes(raw)
}

func encodeNodes(nodes []Node) []any {
	out := make([]any, len(nodes))
	for i, n := range nodes {
		out[i] = encodeNode(n)
	}
	return out
}

func encodeNode(n Node) map[string]any {
	switch n := n.(type) {
	case *Symbol:
		return obj("Symbol", "name", n.Name)
	case *Literal:
		return encodeLiteral(n.Val)
	case *Set:
		return obj("Set", "values", n.Values)
	case *UnaryExpr:
		return obj("UnaryExpr", "op", n.Op, "postfix", n.Postfix,
			"operand", encodeNode(n.Operand))
	case *BinaryExpr:
		return obj("BinaryExpr", "op", n.Op,
			"left", encodeNode(n.Left), "right", encodeNode(n.Right))
	case *Parentheses:
		return obj("Parentheses", "expr", encodeNode(n.Expr))
	case *ExpressionExpansion:
		return obj("ExpressionExpansion", "expr", encodeNode(n.Expr))
	case *CommandExpansion:
		return obj("CommandExpansion", "cmd", encodeNode(n.Cmd))
	case *SyncCommandExpansion:
		return obj("SyncCommandExpansion", "cmd", encodeNode(n.Cmd))
	case *BinaryParameter:
		return obj("BinaryParameter", "name", n.Name, "op", n.Op,
			"value", encodeNode(n.Value))
	case *CommandCall:
		return obj("CommandCall", "args", encodeNodes(n.Args))
	case *PipeExpr:
		segs := make([]any, len(n.Segments))
		for i, seg := range n.Segments {
			segs[i] = encodeNode(seg)
		}
		return obj("PipeExpr", "segments", segs)
	case *FunctionCall:
		return obj("FunctionCall", "name", n.Name, "args", encodeNodes(n.Args))
	case *Subscript:
		return obj("Subscript", "target", encodeNode(n.Target),
			"index", encodeNode(n.Index))
	case *IfStatement:
		o := obj("IfStatement", "cond", encodeNode(n.Cond),
			"body", encodeNodes(n.Body))
		if n.Else != nil {
			o["else"] = encodeNodes(n.Else)
		}
		return o
	case *ForStatement:
		o := obj("ForStatement", "body", encodeNodes(n.Body))
		if n.Init != nil {
			o["init"] = encodeNode(n.Init)
		}
		if n.Cond != nil {
			o["cond"] = encodeNode(n.Cond)
		}
		if n.Step != nil {
			o["step"] = encodeNode(n.Step)
		}
		return o
	case *ForInStatement:
		return obj("ForInStatement", "vars", n.Vars,
			"expr", encodeNode(n.Expr), "body", encodeNodes(n.Body))
	case *WhileStatement:
		return obj("WhileStatement", "cond", encodeNode(n.Cond),
			"body", encodeNodes(n.Body))
	case *AssignmentStatement:
		return obj("AssignmentStatement", "target", encodeNode(n.Target),
			"expr", encodeNode(n.Expr))
	case *ConstStatement:
		return obj("ConstStatement", "name", n.Name, "expr", encodeNode(n.Expr))
	case *UndefStatement:
		return obj("UndefStatement", "name", n.Name)
	case *ReturnStatement:
		o := obj("ReturnStatement")
		if n.Expr != nil {
			o["expr"] = encodeNode(n.Expr)
		}
		return o
	case *BreakStatement:
		return obj("BreakStatement")
	case *FunctionDefinition:
		return obj("FunctionDefinition", "name", n.Name, "params", n.Params,
			"body", encodeNodes(n.Body))
	case *AnonymousFunction:
		return obj("AnonymousFunction", "params", n.Params,
			"body", encodeNodes(n.Body))
	case *Redirection:
		return obj("Redirection", "body", encodeNode(n.Body),
			"path", n.Path, "append", n.Append)
	case *ShellEscape:
		return obj("ShellEscape", "args", encodeNodes(n.Args))
	case *Quote:
		return obj("Quote", "body", encodeNodes(n.Body))
	case *Comment:
		return obj("Comment", "text", n.Text)
	case *Error:
		return obj("Error", "message", n.Message)
	default:
		panic(fmt.Sprintf("encode: unknown node type %T", n))
	}
}

func encodeLiteral(val any) map[string]any {
	switch val := val.(type) {
	case nil:
		return obj("Literal", "kind", "none")
	case bool:
		return obj("Literal", "kind", "bool", "value", val)
	case int:
		return obj("Literal", "kind", "int", "value", val)
	case float64:
		return obj("Literal", "kind", "float", "value", val)
	case string:
		return obj("Literal", "kind", "str", "value", val)
	case []Node:
		return obj("Literal", "kind", "list", "value", encodeNodes(val))
	case []Pair:
		pairs := make([]any, len(val))
		for i, pair := range val {
			pairs[i] = []any{encodeNode(pair.Key), encodeNode(pair.Value)}
		}
		return obj("Literal", "kind", "dict", "value", pairs)
	default:
		panic(fmt.Sprintf("encode: unknown literal type %T", val))
	}
}

func obj(typ string, fields ...any) map[string]any {
	o := map[string]any{"type": typ}
	for i := 0; i+1 < len(fields); i += 2 {
		o[fields[i].(string)] = fields[i+1]
	}
	return o
}

// Decoding.

func decodeNodes(raw []any) ([]Node, error) {
	nodes := make([]Node, len(raw))
	for i, r := range raw {
		n, err := decodeNode(r)
		if err != nil {
			return nil, err
		}
		nodes[i] = n
	}
	return nodes, nil
}

type decoder struct {
	fields map[string]any
	err    error
}

func (d *decoder) node(key string) Node {
	if d.err != nil {
		return nil
	}
	raw, ok := d.fields[key]
	if !ok {
		d.err = fmt.Errorf("missing field %q", key)
		return nil
	}
	n, err := decodeNode(raw)
	d.err = err
	return n
}

func (d *decoder) optNode(key string) Node {
	if d.err != nil {
		return nil
	}
	raw, ok := d.fields[key]
	if !ok {
		return nil
	}
	n, err := decodeNode(raw)
	d.err = err
	return n
}

func (d *decoder) nodes(key string) []Node {
	if d.err != nil {
		return nil
	}
	raw, ok := d.fields[key].([]any)
	if !ok {
		if _, present := d.fields[key]; !present {
			return nil
		}
		d.err = fmt.Errorf("field %q should be an array", key)
		return nil
	}
	ns, err := decodeNodes(raw)
	d.err = err
	return ns
}

func (d *decoder) str(key string) string {
	if d.err != nil {
		return ""
	}
	s, ok := d.fields[key].(string)
	if !ok {
		d.err = fmt.Errorf("field %q should be a string", key)
	}
	return s
}

func (d *decoder) boolean(key string) bool {
	if d.err != nil {
		return false
	}
	b, _ := d.fields[key].(bool)
	return b
}

func (d *decoder) strs(key string) []string {
	if d.err != nil {
		return nil
	}
	raw, ok := d.fields[key].([]any)
	if !ok {
		return nil
	}
	out := make([]string, len(raw))
	for i, r := range raw {
		s, ok := r.(string)
		if !ok {
			d.err = fmt.Errorf("field %q should contain strings", key)
			return nil
		}
		out[i] = s
	}
	return out
}

func decodeNode(raw any) (Node, error) {
	fields, ok := raw.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("node should be an object, got %T", raw)
	}
	typ, _ := fields["type"].(string)
	d := &decoder{fields: fields}
	var n Node
	switch typ {
	case "Symbol":
		n = &Symbol{Name: d.str("name")}
	case "Literal":
		val, err := decodeLiteral(fields)
		if err != nil {
			return nil, err
		}
		n = &Literal{Val: val}
	case "Set":
		n = &Set{Values: d.strs("values")}
	case "UnaryExpr":
		n = &UnaryExpr{Op: d.str("op"), Postfix: d.boolean("postfix"),
			Operand: d.node("operand")}
	case "BinaryExpr":
		n = &BinaryExpr{Op: d.str("op"), Left: d.node("left"), Right: d.node("right")}
	case "Parentheses":
		n = &Parentheses{Expr: d.node("expr")}
	case "ExpressionExpansion":
		n = &ExpressionExpansion{Expr: d.node("expr")}
	case "CommandExpansion":
		n = &CommandExpansion{Cmd: d.node("cmd")}
	case "SyncCommandExpansion":
		n = &SyncCommandExpansion{Cmd: d.node("cmd")}
	case "BinaryParameter":
		n = &BinaryParameter{Name: d.str("name"), Op: d.str("op"),
			Value: d.node("value")}
	case "CommandCall":
		n = &CommandCall{Args: d.nodes("args")}
	case "PipeExpr":
		raw, _ := fields["segments"].([]any)
		segs := make([]*CommandCall, len(raw))
		for i, r := range raw {
			sn, err := decodeNode(r)
			if err != nil {
				return nil, err
			}
			call, ok := sn.(*CommandCall)
			if !ok {
				return nil, fmt.Errorf("pipe segment should be a CommandCall")
			}
			segs[i] = call
		}
		n = &PipeExpr{Segments: segs}
	case "FunctionCall":
		n = &FunctionCall{Name: d.str("name"), Args: d.nodes("args")}
	case "Subscript":
		n = &Subscript{Target: d.node("target"), Index: d.node("index")}
	case "IfStatement":
		n = &IfStatement{Cond: d.node("cond"), Body: d.nodes("body"),
			Else: d.nodes("else")}
	case "ForStatement":
		n = &ForStatement{Init: d.optNode("init"), Cond: d.optNode("cond"),
			Step: d.optNode("step"), Body: d.nodes("body")}
	case "ForInStatement":
		n = &ForInStatement{Vars: d.strs("vars"), Expr: d.node("expr"),
			Body: d.nodes("body")}
	case "WhileStatement":
		n = &WhileStatement{Cond: d.node("cond"), Body: d.nodes("body")}
	case "AssignmentStatement":
		n = &AssignmentStatement{Target: d.node("target"), Expr: d.node("expr")}
	case "ConstStatement":
		n = &ConstStatement{Name: d.str("name"), Expr: d.node("expr")}
	case "UndefStatement":
		n = &UndefStatement{Name: d.str("name")}
	case "ReturnStatement":
		n = &ReturnStatement{Expr: d.optNode("expr")}
	case "BreakStatement":
		n = &BreakStatement{}
	case "FunctionDefinition":
		n = &FunctionDefinition{Name: d.str("name"), Params: d.strs("params"),
			Body: d.nodes("body")}
	case "AnonymousFunction":
		n = &AnonymousFunction{Params: d.strs("params"), Body: d.nodes("body")}
	case "Redirection":
		n = &Redirection{Body: d.node("body"), Path: d.str("path"),
			Append: d.boolean("append")}
	case "ShellEscape":
		n = &ShellEscape{Args: d.nodes("args")}
	case "Quote":
		n = &Quote{Body: d.nodes("body")}
	case "Comment":
		n = &Comment{Text: d.str("text")}
	case "Error":
		n = &Error{Message: d.str("message")}
	default:
		return nil, fmt.Errorf("unknown node type %q", typ)
	}
	return n, d.err
}

func decodeLiteral(fields map[string]any) (any, error) {
	kind, _ := fields["kind"].(string)
	val := fields["value"]
	switch kind {
	case "none":
		return nil, nil
	case "bool":
		b, ok := val.(bool)
		if !ok {
			return nil, fmt.Errorf("bool literal should carry a bool")
		}
		return b, nil
	case "int":
		f, ok := val.(float64)
		if !ok {
			return nil, fmt.Errorf("int literal should carry a number")
		}
		return int(f), nil
	case "float":
		f, ok := val.(float64)
		if !ok {
			return nil, fmt.Errorf("float literal should carry a number")
		}
		return f, nil
	case "str":
		s, ok := val.(string)
		if !ok {
			return nil, fmt.Errorf("str literal should carry a string")
		}
		return s, nil
	case "list":
		raw, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("list literal should carry an array")
		}
		return decodeNodes(raw)
	case "dict":
		raw, ok := val.([]any)
		if !ok {
			return nil, fmt.Errorf("dict literal should carry an array")
		}
		pairs := make([]Pair, len(raw))
		for i, r := range raw {
			kv, ok := r.([]any)
			if !ok || len(kv) != 2 {
				return nil, fmt.Errorf("dict entry should be a [key, value] pair")
			}
			key, err := decodeNode(kv[0])
			if err != nil {
				return nil, err
			}
			value, err := decodeNode(kv[1])
			if err != nil {
				return nil, err
			}
			pairs[i] = Pair{key, value}
		}
		return pairs, nil
	default:
		return nil, fmt.Errorf("unknown literal kind %q", kind)
	}
}
