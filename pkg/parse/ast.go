package parse

import "github.com/coralstor/coral/pkg/diag"

// Node is the interface satisfied by all AST nodes. Every node carries its
// source position for diagnostics; position is the only part of a node not
// preserved by the JSON interchange format.
type Node interface {
	diag.Ranger
	ast()
}

// node is embedded in all AST node types.
type node struct {
	diag.Ranging
}

func (node) ast() {}

// Symbol is a bare name: a command, namespace or variable reference,
// depending on where it appears.
type Symbol struct {
	node
	Name string
}

// Literal is a literal value: none, a boolean, an int, a float64, a string,
// a list ([]Node) or a dict ([]Pair).
type Literal struct {
	node
	Val any
}

// Pair is a key/value entry of a dict literal.
type Pair struct {
	Key   Node
	Value Node
}

// Set is a comma-separated run of bare words in parameter position, like
// disks=da0,da1.
type Set struct {
	node
	Values []string
}

// UnaryExpr is the application of a unary operator: not, -, ++ and -- (the
// latter two in both prefix and postfix form).
type UnaryExpr struct {
	node
	Op      string
	Postfix bool
	Operand Node
}

// BinaryExpr is the application of a binary operator.
type BinaryExpr struct {
	node
	Op    string
	Left  Node
	Right Node
}

// Parentheses is a parenthesized expression.
type Parentheses struct {
	node
	Expr Node
}

// ExpressionExpansion is ${expr}, usable both as a command argument and
// inside expressions.
type ExpressionExpansion struct {
	node
	Expr Node
}

// CommandExpansion is $(command): asynchronous command substitution.
type CommandExpansion struct {
	node
	Cmd Node
}

// SyncCommandExpansion is @$(command): synchronous command substitution that
// blocks for the scalar result.
type SyncCommandExpansion struct {
	node
	Cmd Node
}

// BinaryParameter is a KEY<op>VALUE command parameter (an oparg). Op "=" is
// classified as a keyword argument by the evaluator; the comparison,
// regex-match and increment operators make operator arguments.
type BinaryParameter struct {
	node
	Name  string
	Op    string
	Value Node
}

// CommandCall is a command invocation: a head item followed by parameters.
// Args[0] is the head. A head symbol starting with / is canonicalized at
// parse time into a standalone Symbol("/") followed by the rest, so that
// root-relative and cwd-relative commands share one evaluation path.
type CommandCall struct {
	node
	Args []Node
}

// PipeExpr is a pipeline of two or more command calls.
type PipeExpr struct {
	node
	Segments []*CommandCall
}

// FunctionCall is NAME(args...), an atom immediately followed by an opening
// parenthesis.
type FunctionCall struct {
	node
	Name string
	Args []Node
}

// Subscript is target[index].
type Subscript struct {
	node
	Target Node
	Index  Node
}

// IfStatement is if (cond) block [else block].
type IfStatement struct {
	node
	Cond Node
	Body []Node
	Else []Node
}

// ForStatement is the C-style for(init; cond; step) block.
type ForStatement struct {
	node
	Init Node
	Cond Node
	Step Node
	Body []Node
}

// ForInStatement is for (x in expr) block, or for (k,v in expr) block for
// key/value iteration.
type ForInStatement struct {
	node
	Vars []string
	Expr Node
	Body []Node
}

// WhileStatement is while (cond) block.
type WhileStatement struct {
	node
	Cond Node
	Body []Node
}

// AssignmentStatement assigns to a name or a subscript target.
type AssignmentStatement struct {
	node
	Target Node
	Expr   Node
}

// ConstStatement is const NAME = expr.
type ConstStatement struct {
	node
	Name string
	Expr Node
}

// UndefStatement removes a binding.
type UndefStatement struct {
	node
	Name string
}

// ReturnStatement unwinds to the enclosing function call.
type ReturnStatement struct {
	node
	Expr Node // nil for a bare return
}

// BreakStatement unwinds to the enclosing loop.
type BreakStatement struct {
	node
}

// FunctionDefinition is function NAME(params) block.
type FunctionDefinition struct {
	node
	Name   string
	Params []string
	Body   []Node
}

// AnonymousFunction is function(params) block in expression position.
type AnonymousFunction struct {
	node
	Params []string
	Body   []Node
}

// Redirection wraps a statement with a trailing > path or >> path.
type Redirection struct {
	node
	Body   Node
	Path   string
	Append bool
}

// ShellEscape is a leading-! statement handed to the host shell.
type ShellEscape struct {
	node
	Args []Node
}

// Quote is a backquoted literal command sequence, passed around unevaluated.
type Quote struct {
	node
	Body []Node
}

// Comment is a #-comment. It is only produced when parsing with comments
// kept, for tooling.
type Comment struct {
	node
	Text string
}

// Error is a placeholder node emitted in tolerant mode where a parse error
// occurred; the parser resynchronizes at the next statement boundary.
type Error struct {
	node
	Message string
}
