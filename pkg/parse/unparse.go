package parse

import (
	"fmt"
	"strconv"
	"strings"
)

// Unparse renders a node back to source text as the structural inverse of
// the parser: reparsing the output reproduces the node up to source
// positions, for any syntactically complete node. Blocks are rendered
// indented across multiple lines.
func Unparse(n Node) string {
	var sb strings.Builder
	unparse(&sb, n, 0, false)
	return sb.String()
}

// UnparseOneLine is like [Unparse] but renders everything on a single line,
// for echoing a command back or embedding it in history.
func UnparseOneLine(n Node) string {
	var sb strings.Builder
	unparse(&sb, n, 0, true)
	return sb.String()
}

// UnparseProgram renders a list of top-level statements.
func UnparseProgram(stmts []Node) string {
	var sb strings.Builder
	for i, stmt := range stmts {
		if i > 0 {
			sb.WriteString("\n")
		}
		unparse(&sb, stmt, 0, false)
	}
	return sb.String()
}

const indentUnit = "    "

func unparse(sb *strings.Builder, n Node, indent int, oneline bool) {
	switch n := n.(type) {
	case *Symbol:
		sb.WriteString(n.Name)
	case *Literal:
		unparseLiteral(sb, n.Val, indent, oneline)
	case *Set:
		parts := make([]string, len(n.Values))
		for i, v := range n.Values {
			parts[i] = setElement(v)
		}
		sb.WriteString(strings.Join(parts, ","))
	case *UnaryExpr:
		if n.Postfix {
			unparse(sb, n.Operand, indent, oneline)
			sb.WriteString(n.Op)
		} else if n.Op == "not" {
			sb.WriteString("not ")
			unparse(sb, n.Operand, indent, oneline)
		} else {
			sb.WriteString(n.Op)
			unparse(sb, n.Operand, indent, oneline)
		}
	case *BinaryExpr:
		unparse(sb, n.Left, indent, oneline)
		sb.WriteString(" " + n.Op + " ")
		unparse(sb, n.Right, indent, oneline)
	case *Parentheses:
		sb.WriteString("(")
		unparse(sb, n.Expr, indent, oneline)
		sb.WriteString(")")
	case *ExpressionExpansion:
		sb.WriteString("${")
		unparse(sb, n.Expr, indent, oneline)
		sb.WriteString("}")
	case *CommandExpansion:
		sb.WriteString("$(")
		unparse(sb, n.Cmd, indent, true)
		sb.WriteString(")")
	case *SyncCommandExpansion:
		sb.WriteString("@$(")
		unparse(sb, n.Cmd, indent, true)
		sb.WriteString(")")
	case *BinaryParameter:
		sb.WriteString(n.Name + n.Op)
		unparse(sb, n.Value, indent, oneline)
	case *CommandCall:
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(" ")
			}
			unparse(sb, arg, indent, oneline)
		}
	case *PipeExpr:
		for i, seg := range n.Segments {
			if i > 0 {
				sb.WriteString(" | ")
			}
			unparse(sb, seg, indent, oneline)
		}
	case *FunctionCall:
		sb.WriteString(n.Name + "(")
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(", ")
			}
			unparse(sb, arg, indent, oneline)
		}
		sb.WriteString(")")
	case *Subscript:
		unparse(sb, n.Target, indent, oneline)
		sb.WriteString("[")
		unparse(sb, n.Index, indent, oneline)
		sb.WriteString("]")
	case *IfStatement:
		sb.WriteString("if (")
		unparse(sb, n.Cond, indent, oneline)
		sb.WriteString(") ")
		unparseBlock(sb, n.Body, indent, oneline)
		if n.Else != nil {
			sb.WriteString(" else ")
			if len(n.Else) == 1 {
				if elif, ok := n.Else[0].(*IfStatement); ok {
					unparse(sb, elif, indent, oneline)
					return
				}
			}
			unparseBlock(sb, n.Else, indent, oneline)
		}
	case *ForStatement:
		sb.WriteString("for (")
		if n.Init != nil {
			unparse(sb, n.Init, indent, true)
		}
		sb.WriteString("; ")
		if n.Cond != nil {
			unparse(sb, n.Cond, indent, true)
		}
		sb.WriteString("; ")
		if n.Step != nil {
			unparse(sb, n.Step, indent, true)
		}
		sb.WriteString(") ")
		unparseBlock(sb, n.Body, indent, oneline)
	case *ForInStatement:
		sb.WriteString("for (" + strings.Join(n.Vars, ",") + " in ")
		unparse(sb, n.Expr, indent, oneline)
		sb.WriteString(") ")
		unparseBlock(sb, n.Body, indent, oneline)
	case *WhileStatement:
		sb.WriteString("while (")
		unparse(sb, n.Cond, indent, oneline)
		sb.WriteString(") ")
		unparseBlock(sb, n.Body, indent, oneline)
	case *AssignmentStatement:
		unparse(sb, n.Target, indent, oneline)
		sb.WriteString(" = ")
		unparse(sb, n.Expr, indent, oneline)
	case *ConstStatement:
		sb.WriteString("const " + n.Name + " = ")
		unparse(sb, n.Expr, indent, oneline)
	case *UndefStatement:
		sb.WriteString("undef " + n.Name)
	case *ReturnStatement:
		sb.WriteString("return")
		if n.Expr != nil {
			sb.WriteString(" ")
			unparse(sb, n.Expr, indent, oneline)
		}
	case *BreakStatement:
		sb.WriteString("break")
	case *FunctionDefinition:
		sb.WriteString("function " + n.Name + "(" + strings.Join(n.Params, ", ") + ") ")
		unparseBlock(sb, n.Body, indent, oneline)
	case *AnonymousFunction:
		sb.WriteString("function (" + strings.Join(n.Params, ", ") + ") ")
		unparseBlock(sb, n.Body, indent, oneline)
	case *Redirection:
		unparse(sb, n.Body, indent, oneline)
		if n.Append {
			sb.WriteString(" >> ")
		} else {
			sb.WriteString(" > ")
		}
		sb.WriteString(quoteIfNeeded(n.Path))
	case *ShellEscape:
		sb.WriteString("!")
		for i, arg := range n.Args {
			if i > 0 {
				sb.WriteString(" ")
			}
			unparse(sb, arg, indent, oneline)
		}
	case *Quote:
		sb.WriteString("`")
		for i, stmt := range n.Body {
			if i > 0 {
				sb.WriteString("; ")
			}
			unparse(sb, stmt, indent, true)
		}
		sb.WriteString("`")
	case *Comment:
		sb.WriteString("#" + n.Text)
	case *Error:
		// Error nodes have no source form; they never round-trip.
		sb.WriteString("")
	default:
		panic(fmt.Sprintf("unparse: unknown node type %T", n))
	}
}

func unparseBlock(sb *strings.Builder, stmts []Node, indent int, oneline bool) {
	if oneline {
		sb.WriteString("{ ")
		for i, stmt := range stmts {
			if i > 0 {
				sb.WriteString("; ")
			}
			unparse(sb, stmt, indent, true)
		}
		sb.WriteString(" }")
		return
	}
	sb.WriteString("{\n")
	for _, stmt := range stmts {
		sb.WriteString(strings.Repeat(indentUnit, indent+1))
		unparse(sb, stmt, indent+1, false)
		sb.WriteString("\n")
	}
	sb.WriteString(strings.Repeat(indentUnit, indent) + "}")
}

func unparseLiteral(sb *strings.Builder, val any, indent int, oneline bool) {
	switch val := val.(type) {
	case nil:
		sb.WriteString("none")
	case bool:
		sb.WriteString(strconv.FormatBool(val))
	case int:
		sb.WriteString(strconv.Itoa(val))
	case float64:
		s := strconv.FormatFloat(val, 'f', -1, 64)
		if !strings.Contains(s, ".") {
			s += ".0"
		}
		sb.WriteString(s)
	case string:
		sb.WriteString(quoteString(val))
	case []Node:
		sb.WriteString("[")
		for i, elem := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			unparse(sb, elem, indent, oneline)
		}
		sb.WriteString("]")
	case []Pair:
		sb.WriteString("{")
		for i, pair := range val {
			if i > 0 {
				sb.WriteString(", ")
			}
			unparse(sb, pair.Key, indent, oneline)
			sb.WriteString(": ")
			unparse(sb, pair.Value, indent, oneline)
		}
		sb.WriteString("}")
	default:
		panic(fmt.Sprintf("unparse: unknown literal type %T", val))
	}
}

var stringUnescapes = map[rune]rune{
	'\a': 'a', '\b': 'b', '\f': 'f', '\n': 'n', '\r': 'r', '\t': 't',
	'\v': 'v', '\\': '\\', '"': '"', '$': '$', '`': '`',
}

// quoteString renders a string value as a double-quoted literal. Super
// strings are re-emitted in this form too, with their inner quotes escaped.
func quoteString(s string) string {
	var sb strings.Builder
	sb.WriteString(`"`)
	for _, r := range s {
		switch r {
		case '"', '\\', '$', '`':
			sb.WriteRune('\\')
			sb.WriteRune(r)
		default:
			if e, ok := stringUnescapes[r]; ok && r < ' ' {
				sb.WriteRune('\\')
				sb.WriteRune(e)
			} else {
				sb.WriteRune(r)
			}
		}
	}
	sb.WriteString(`"`)
	return sb.String()
}

// setElement renders one element of a set, quoting it unless it re-lexes as
// a single command-mode bareword.
func setElement(s string) string {
	if s == "" {
		return `""`
	}
	if _, isKeyword := keywords[s]; isKeyword {
		return quoteString(s)
	}
	for _, r := range s {
		if !isWordRune(r, modeCommand) {
			return quoteString(s)
		}
	}
	return s
}

// quoteIfNeeded quotes a word unless it lexes as a plain atom everywhere.
func quoteIfNeeded(s string) string {
	if s == "" {
		return `""`
	}
	for _, r := range s {
		if !isWordRune(r, modeScript) {
			return quoteString(s)
		}
	}
	return s
}
