// Package parse implements the coral command language: a tokenizer with
// mode-sensitive nesting, a precedence-driven parser producing an AST with
// lossless round-trip printing, and a structural JSON encoding of programs.
package parse

import (
	"fmt"
	"strings"

	"github.com/coralstor/coral/pkg/diag"
)

// ParseOpts keeps options for parsing.
type ParseOpts struct {
	// Tolerant makes the parser emit Error placeholder nodes and recover at
	// the next statement boundary instead of failing. It is used only for
	// speculative parsing (completion probing, diagnostics), never for
	// executing script files.
	Tolerant bool
}

// SyntaxError is a parse error.
type SyntaxError = diag.Error[SyntaxErrorTag]

// SyntaxErrorTag parameterizes [diag.Error] to define [SyntaxError].
type SyntaxErrorTag struct{}

// ErrorTag implements [diag.ErrorTagger].
func (SyntaxErrorTag) ErrorTag() string { return "syntax error" }

// ErrorTag is an alias kept for use with [diag.UnpackErrors].
type ErrorTag = SyntaxErrorTag

// Parse tokenizes and parses the given source into a list of top-level
// statements. The returned error, if not nil, contains one or more
// *LexError or *SyntaxError values. In tolerant mode the returned
// statements are usable even when the error is not nil.
func Parse(src Source, opts ParseOpts) ([]Node, error) {
	toks, lexErr := Tokenize(src, LexOpts{Tolerant: opts.Tolerant})
	if lexErr != nil && !opts.Tolerant {
		return nil, lexErr
	}
	p := &parser{src: src, toks: toks, opts: opts}
	stmts := p.parseProgram()
	return stmts, diag.JoinErrors(lexErr, diag.PackErrors(p.errs))
}

type parser struct {
	src  Source
	toks []Token
	pos  int
	opts ParseOpts
	errs []*SyntaxError
}

func (p *parser) cur() Token { return p.toks[p.pos] }

func (p *parser) at(k Kind) bool { return p.cur().Kind == k }

func (p *parser) next() Token {
	t := p.toks[p.pos]
	if t.Kind != EOF {
		p.pos++
	}
	return t
}

// peekKind returns the kind of the token at the given offset from the
// current position.
func (p *parser) peekKind(off int) Kind {
	if p.pos+off >= len(p.toks) {
		return EOF
	}
	return p.toks[p.pos+off].Kind
}

func (p *parser) accept(k Kind) bool {
	if p.at(k) {
		p.next()
		return true
	}
	return false
}

func (p *parser) expect(k Kind) Token {
	if p.at(k) {
		return p.next()
	}
	p.errorHere("unexpected %s, should be %s", p.cur(), k)
	return Token{Kind: k, Ranging: diag.PointRanging(p.cur().From)}
}

func (p *parser) errorHere(format string, args ...any) {
	t := p.cur()
	p.errs = append(p.errs, &SyntaxError{
		Message: fmt.Sprintf(format, args...),
		Context: *diag.NewContext(p.src.Name, p.src.Code, t),
		Partial: t.Kind == EOF,
	})
}

// prevEnd returns the end position of the last consumed token.
func (p *parser) prevEnd() int {
	if p.pos == 0 {
		return 0
	}
	return p.toks[p.pos-1].To
}

func (p *parser) span(from int) diag.Ranging {
	return diag.Ranging{From: from, To: p.prevEnd()}
}

func isSep(k Kind) bool { return k == Newline || k == Semicolon }

func (p *parser) skipSeps() {
	for isSep(p.cur().Kind) || p.at(CommentTok) {
		p.next()
	}
}

// atStmtEnd reports whether the current token terminates a statement.
func (p *parser) atStmtEnd() bool {
	switch p.cur().Kind {
	case EOF, Newline, Semicolon, RBrace, RParen, BackquoteEnd:
		return true
	}
	return false
}

func (p *parser) parseProgram() []Node {
	var stmts []Node
	p.skipSeps()
	for !p.at(EOF) {
		stmts = append(stmts, p.parseStatementRecovering())
		p.skipSeps()
	}
	return stmts
}

// parseStatementRecovering parses one statement; if errors occur and the
// parser is tolerant, it emits an Error node and resynchronizes at the next
// statement separator or pipe at nesting depth zero.
func (p *parser) parseStatementRecovering() Node {
	errsBefore := len(p.errs)
	posBefore := p.pos
	stmt := p.parseStatement()
	if len(p.errs) == errsBefore {
		return stmt
	}
	if !p.opts.Tolerant {
		// Skip to the end so the program-level loop terminates; everything
		// after the first error of a batch is abandoned anyway.
		p.pos = len(p.toks) - 1
		return stmt
	}
	from := p.toks[posBefore].From
	p.resync()
	return &Error{
		node:    node{p.span(from)},
		Message: p.errs[errsBefore].Message,
	}
}

// resync skips tokens until a statement separator or pipe at nesting depth
// zero, leaving the parser at a point where the next statement can start.
func (p *parser) resync() {
	depth := 0
	for {
		switch p.cur().Kind {
		case EOF:
			return
		case LParen, LParenCall, LBracket, LBrace, ExprOpen, CmdOpen, SyncCmdOpen:
			depth++
		case RParen, RBracket, RBrace:
			if depth == 0 {
				return
			}
			depth--
		case Newline, Semicolon, Pipe:
			if depth == 0 {
				return
			}
		}
		p.next()
	}
}

func (p *parser) parseStatement() Node {
	from := p.cur().From
	var stmt Node
	switch p.cur().Kind {
	case If:
		stmt = p.parseIf()
	case For:
		stmt = p.parseFor()
	case While:
		stmt = p.parseWhile()
	case Function:
		stmt = p.parseFunctionDefinition()
	case Return:
		p.next()
		ret := &ReturnStatement{}
		if !p.atStmtEnd() {
			ret.Expr = p.parseExpr()
		}
		ret.Ranging = p.span(from)
		stmt = ret
	case Break:
		p.next()
		stmt = &BreakStatement{node{p.span(from)}}
	case Undef:
		p.next()
		name := p.expect(Atom)
		stmt = &UndefStatement{node{p.span(from)}, name.Text}
	case Const:
		p.next()
		name := p.expect(Atom)
		p.expect(Assign)
		expr := p.parseExpr()
		stmt = &ConstStatement{node{p.span(from)}, name.Text, expr}
	case Bang:
		p.next()
		var args []Node
		for !p.atStmtEnd() && !p.at(Gt) && !p.at(Append) {
			args = append(args, p.parseParamValue())
		}
		stmt = &ShellEscape{node{p.span(from)}, args}
	case Inc, Dec:
		stmt = p.parseExpr()
	case Backquote:
		stmt = p.parseQuote()
	case Atom:
		stmt = p.parseAtomStatement()
	default:
		stmt = p.parsePipeline()
	}
	// A trailing redirection wraps any statement.
	if p.at(Gt) || p.at(Append) {
		app := p.next().Kind == Append
		path := p.parseRedirPath()
		stmt = &Redirection{node{p.span(from)}, stmt, path, app}
	}
	return stmt
}

func (p *parser) parseRedirPath() string {
	switch p.cur().Kind {
	case Atom:
		return p.next().Text
	case Str:
		return p.next().Val.(string)
	default:
		p.errorHere("unexpected %s, should be a redirection path", p.cur())
		return ""
	}
}

// parseAtomStatement disambiguates statements that start with an atom:
// assignment, subscript assignment, increment/decrement, function call, or
// a command.
func (p *parser) parseAtomStatement() Node {
	from := p.cur().From
	switch p.peekKind(1) {
	case Assign:
		name := p.next()
		p.next()
		expr := p.parseExpr()
		target := &Symbol{node{name.Ranging}, name.Text}
		return &AssignmentStatement{node{p.span(from)}, target, expr}
	case LBracket:
		if p.subscriptAssignAhead() {
			target := p.parsePostfix()
			p.expect(Assign)
			expr := p.parseExpr()
			return &AssignmentStatement{node{p.span(from)}, target, expr}
		}
	case LParenCall:
		call := p.parseFunctionCall()
		return call
	case Inc, Dec:
		name := p.next()
		op := "++"
		if p.next().Kind == Dec {
			op = "--"
		}
		return &UnaryExpr{node{p.span(from)}, op, true,
			&Symbol{node{name.Ranging}, name.Text}}
	}
	return p.parsePipeline()
}

// subscriptAssignAhead reports whether the tokens ahead form NAME[...]... =,
// i.e. an assignment to a subscript target.
func (p *parser) subscriptAssignAhead() bool {
	i := p.pos + 1
	depth := 0
	for ; i < len(p.toks); i++ {
		switch p.toks[i].Kind {
		case LBracket:
			depth++
		case RBracket:
			depth--
			if depth == 0 {
				// Allow chained subscripts before the =.
				if p.toks[i+1].Kind == LBracket {
					continue
				}
				return p.toks[i+1].Kind == Assign
			}
		case EOF, Newline, Semicolon:
			return false
		}
	}
	return false
}

func (p *parser) parseIf() Node {
	from := p.next().From
	p.expect(LParen)
	cond := p.parseExpr()
	p.expect(RParen)
	body := p.parseBlock()
	var elseBody []Node
	if p.accept(Else) {
		if p.at(If) {
			elseBody = []Node{p.parseIf()}
		} else {
			elseBody = p.parseBlock()
		}
	}
	return &IfStatement{node{p.span(from)}, cond, body, elseBody}
}

func (p *parser) parseFor() Node {
	from := p.next().From
	p.expect(LParen)
	if p.forInAhead() {
		vars := []string{p.expect(Atom).Text}
		if p.accept(Comma) {
			vars = append(vars, p.expect(Atom).Text)
		}
		p.expect(In)
		expr := p.parseExpr()
		p.expect(RParen)
		body := p.parseBlock()
		return &ForInStatement{node{p.span(from)}, vars, expr, body}
	}
	var init, cond, step Node
	if !p.at(Semicolon) {
		init = p.parseSimpleStatement()
	}
	p.expect(Semicolon)
	if !p.at(Semicolon) {
		cond = p.parseExpr()
	}
	p.expect(Semicolon)
	if !p.at(RParen) {
		step = p.parseSimpleStatement()
	}
	p.expect(RParen)
	body := p.parseBlock()
	return &ForStatement{node{p.span(from)}, init, cond, step, body}
}

// forInAhead reports whether the parenthesized for clause is of the for-in
// form: ATOM [, ATOM] in ...
func (p *parser) forInAhead() bool {
	if p.cur().Kind != Atom {
		return false
	}
	if p.peekKind(1) == In {
		return true
	}
	return p.peekKind(1) == Comma && p.peekKind(2) == Atom && p.peekKind(3) == In
}

// parseSimpleStatement parses the init/step clause of a C-style for loop:
// an assignment, an increment/decrement, or a bare expression.
func (p *parser) parseSimpleStatement() Node {
	from := p.cur().From
	if p.at(Atom) && p.peekKind(1) == Assign {
		name := p.next()
		p.next()
		expr := p.parseExpr()
		target := &Symbol{node{name.Ranging}, name.Text}
		return &AssignmentStatement{node{p.span(from)}, target, expr}
	}
	return p.parseExpr()
}

func (p *parser) parseWhile() Node {
	from := p.next().From
	p.expect(LParen)
	cond := p.parseExpr()
	p.expect(RParen)
	body := p.parseBlock()
	return &WhileStatement{node{p.span(from)}, cond, body}
}

func (p *parser) parseFunctionDefinition() Node {
	from := p.next().From
	name := p.expect(Atom)
	params := p.parseParamList()
	body := p.parseBlock()
	return &FunctionDefinition{node{p.span(from)}, name.Text, params, body}
}

func (p *parser) parseParamList() []string {
	if !p.at(LParenCall) && !p.at(LParen) {
		p.errorHere("unexpected %s, should be a parameter list", p.cur())
		return nil
	}
	p.next()
	var params []string
	for p.at(Atom) {
		params = append(params, p.next().Text)
		if !p.accept(Comma) {
			break
		}
	}
	p.expect(RParen)
	return params
}

func (p *parser) parseBlock() []Node {
	p.expect(LBrace)
	var stmts []Node
	p.skipSeps()
	for !p.at(RBrace) && !p.at(EOF) {
		stmts = append(stmts, p.parseStatementRecovering())
		p.skipSeps()
	}
	p.expect(RBrace)
	return stmts
}

func (p *parser) parseQuote() Node {
	from := p.expect(Backquote).From
	var stmts []Node
	p.skipSeps()
	for !p.at(BackquoteEnd) && !p.at(EOF) {
		stmts = append(stmts, p.parseStatementRecovering())
		p.skipSeps()
	}
	p.expect(BackquoteEnd)
	return &Quote{node{p.span(from)}, stmts}
}

// Commands and pipelines.

func (p *parser) parsePipeline() Node {
	from := p.cur().From
	segments := []*CommandCall{p.parseCommand()}
	for p.accept(Pipe) {
		segments = append(segments, p.parseCommand())
	}
	if len(segments) == 1 {
		// An expression-expansion statement is a degenerate command.
		if len(segments[0].Args) == 1 {
			if ee, ok := segments[0].Args[0].(*ExpressionExpansion); ok {
				return ee
			}
		}
		return segments[0]
	}
	return &PipeExpr{node{p.span(from)}, segments}
}

func (p *parser) parseCommand() *CommandCall {
	from := p.cur().From
	call := &CommandCall{}
	head := p.parseCommandItem()
	// Canonicalize a root-relative head: /account user becomes / account
	// user, so that root-relative and cwd-relative commands share one
	// evaluation path.
	if sym, ok := head.(*Symbol); ok && len(sym.Name) > 1 && strings.HasPrefix(sym.Name, "/") {
		call.Args = append(call.Args,
			&Symbol{node{diag.Ranging{From: sym.From, To: sym.From + 1}}, "/"},
			&Symbol{node{diag.Ranging{From: sym.From + 1, To: sym.To}}, sym.Name[1:]})
	} else {
		call.Args = append(call.Args, head)
	}
	for !p.atStmtEnd() && !p.at(Pipe) && !p.at(Gt) && !p.at(Append) {
		call.Args = append(call.Args, p.parseParameter())
	}
	call.Ranging = p.span(from)
	return call
}

func (p *parser) parseCommandItem() Node {
	from := p.cur().From
	switch p.cur().Kind {
	case Atom:
		t := p.next()
		return &Symbol{node{t.Ranging}, t.Text}
	case Slash:
		// Inside script-mode contexts the root marker lexes as an operator.
		t := p.next()
		return &Symbol{node{t.Ranging}, "/"}
	case Number, Str, True, False:
		t := p.next()
		return &Literal{node{t.Ranging}, t.Val}
	case None:
		t := p.next()
		return &Literal{node{t.Ranging}, nil}
	case ExprOpen:
		p.next()
		expr := p.parseExpr()
		p.expect(RBrace)
		return &ExpressionExpansion{node{p.span(from)}, expr}
	default:
		p.errorHere("unexpected %s, should be a command", p.cur())
		p.next()
		return &Error{node{p.span(from)}, "bad command head"}
	}
}

// parseParameter parses one command parameter: either a positional value or
// a KEY<op>VALUE operator argument. An oparg is only recognized when the
// operator immediately follows the key with no intervening space, so that
// size>1g is an oparg while > out.txt is a redirection.
func (p *parser) parseParameter() Node {
	if p.at(Atom) {
		if op, ok := opargOps[p.peekKind(1)]; ok && p.cur().To == p.toks[p.pos+1].From {
			from := p.cur().From
			name := p.next()
			p.next()
			value := p.parseParamValue()
			return &BinaryParameter{node{p.span(from)}, name.Text, op, value}
		}
	}
	return p.parseParamValue()
}

var opargOps = map[Kind]string{
	Assign: "=", Eq: "==", Ne: "!=", Gt: ">", Ge: ">=", Lt: "<", Le: "<=",
	Match: "~=", PlusAssign: "+=", MinusAssign: "-=",
}

// parseParamValue parses a single value in parameter position.
func (p *parser) parseParamValue() Node {
	from := p.cur().From
	switch p.cur().Kind {
	case Atom:
		t := p.next()
		if p.at(Comma) {
			// A comma-separated run of bare values is a set of strings.
			values := []string{t.Text}
			for p.accept(Comma) {
				values = append(values, p.parseSetElement())
			}
			return &Set{node{p.span(from)}, values}
		}
		return &Symbol{node{t.Ranging}, t.Text}
	case Number, Str, True, False:
		t := p.next()
		return &Literal{node{t.Ranging}, t.Val}
	case None:
		t := p.next()
		return &Literal{node{t.Ranging}, nil}
	case LBracket:
		return p.parseListLiteral()
	case LBrace:
		return p.parseDictLiteral()
	case ExprOpen:
		p.next()
		expr := p.parseExpr()
		p.expect(RBrace)
		return &ExpressionExpansion{node{p.span(from)}, expr}
	case CmdOpen:
		p.next()
		cmd := p.parsePipeline()
		p.expect(RParen)
		return &CommandExpansion{node{p.span(from)}, cmd}
	case SyncCmdOpen:
		p.next()
		cmd := p.parsePipeline()
		p.expect(RParen)
		return &SyncCommandExpansion{node{p.span(from)}, cmd}
	case Backquote:
		return p.parseQuote()
	default:
		p.errorHere("unexpected %s, should be a parameter", p.cur())
		p.next()
		return &Error{node{p.span(from)}, "bad parameter"}
	}
}

func (p *parser) parseSetElement() string {
	switch p.cur().Kind {
	case Atom, Number:
		return p.next().Text
	case Str:
		return p.next().Val.(string)
	default:
		p.errorHere("unexpected %s, should be a set element", p.cur())
		return ""
	}
}

// Expressions, precedence climbing. From loosest to tightest: or, and,
// relational, additive, multiplicative, match, unary, postfix.

func (p *parser) parseExpr() Node {
	return p.parseOr()
}

func (p *parser) parseOr() Node {
	from := p.cur().From
	left := p.parseAnd()
	for p.at(Or) {
		p.next()
		right := p.parseAnd()
		left = &BinaryExpr{node{p.span(from)}, "or", left, right}
	}
	return left
}

func (p *parser) parseAnd() Node {
	from := p.cur().From
	left := p.parseRelational()
	for p.at(And) {
		p.next()
		right := p.parseRelational()
		left = &BinaryExpr{node{p.span(from)}, "and", left, right}
	}
	return left
}

var relationalOps = map[Kind]string{
	Eq: "==", Ne: "!=", Lt: "<", Le: "<=", Gt: ">", Ge: ">=",
}

func (p *parser) parseRelational() Node {
	from := p.cur().From
	left := p.parseAdditive()
	for {
		op, ok := relationalOps[p.cur().Kind]
		if !ok {
			return left
		}
		p.next()
		right := p.parseAdditive()
		left = &BinaryExpr{node{p.span(from)}, op, left, right}
	}
}

func (p *parser) parseAdditive() Node {
	from := p.cur().From
	left := p.parseMultiplicative()
	for p.at(Plus) || p.at(Minus) {
		op := "+"
		if p.next().Kind == Minus {
			op = "-"
		}
		right := p.parseMultiplicative()
		left = &BinaryExpr{node{p.span(from)}, op, left, right}
	}
	return left
}

var multiplicativeOps = map[Kind]string{Star: "*", Slash: "/", Percent: "%"}

func (p *parser) parseMultiplicative() Node {
	from := p.cur().From
	left := p.parseMatch()
	for {
		op, ok := multiplicativeOps[p.cur().Kind]
		if !ok {
			return left
		}
		p.next()
		right := p.parseMatch()
		left = &BinaryExpr{node{p.span(from)}, op, left, right}
	}
}

func (p *parser) parseMatch() Node {
	from := p.cur().From
	left := p.parseUnary()
	for p.at(Match) {
		p.next()
		right := p.parseUnary()
		left = &BinaryExpr{node{p.span(from)}, "~=", left, right}
	}
	return left
}

func (p *parser) parseUnary() Node {
	from := p.cur().From
	switch p.cur().Kind {
	case Not:
		p.next()
		return &UnaryExpr{node{p.span(from)}, "not", false, p.parseUnary()}
	case Minus:
		p.next()
		return &UnaryExpr{node{p.span(from)}, "-", false, p.parseUnary()}
	case Inc:
		p.next()
		return &UnaryExpr{node{p.span(from)}, "++", false, p.parseUnary()}
	case Dec:
		p.next()
		return &UnaryExpr{node{p.span(from)}, "--", false, p.parseUnary()}
	}
	return p.parsePostfix()
}

func (p *parser) parsePostfix() Node {
	from := p.cur().From
	expr := p.parsePrimary()
	for {
		switch p.cur().Kind {
		case LBracket:
			p.next()
			index := p.parseExpr()
			p.expect(RBracket)
			expr = &Subscript{node{p.span(from)}, expr, index}
		case Inc:
			p.next()
			expr = &UnaryExpr{node{p.span(from)}, "++", true, expr}
		case Dec:
			p.next()
			expr = &UnaryExpr{node{p.span(from)}, "--", true, expr}
		default:
			return expr
		}
	}
}

func (p *parser) parsePrimary() Node {
	from := p.cur().From
	switch p.cur().Kind {
	case Number, Str, True, False:
		t := p.next()
		return &Literal{node{t.Ranging}, t.Val}
	case None:
		t := p.next()
		return &Literal{node{t.Ranging}, nil}
	case Atom:
		if p.peekKind(1) == LParenCall {
			return p.parseFunctionCall()
		}
		t := p.next()
		return &Symbol{node{t.Ranging}, t.Text}
	case LParen:
		p.next()
		expr := p.parseExpr()
		p.expect(RParen)
		return &Parentheses{node{p.span(from)}, expr}
	case LBracket:
		return p.parseListLiteral()
	case LBrace:
		return p.parseDictLiteral()
	case ExprOpen:
		p.next()
		expr := p.parseExpr()
		p.expect(RBrace)
		return &ExpressionExpansion{node{p.span(from)}, expr}
	case CmdOpen:
		p.next()
		cmd := p.parsePipeline()
		p.expect(RParen)
		return &CommandExpansion{node{p.span(from)}, cmd}
	case SyncCmdOpen:
		p.next()
		cmd := p.parsePipeline()
		p.expect(RParen)
		return &SyncCommandExpansion{node{p.span(from)}, cmd}
	case Function:
		return p.parseAnonymousFunction()
	case Backquote:
		return p.parseQuote()
	default:
		p.errorHere("unexpected %s, should be an expression", p.cur())
		p.next()
		return &Error{node{p.span(from)}, "bad expression"}
	}
}

func (p *parser) parseAnonymousFunction() Node {
	from := p.next().From
	params := p.parseParamList()
	body := p.parseBlock()
	return &AnonymousFunction{node{p.span(from)}, params, body}
}

func (p *parser) parseFunctionCall() Node {
	from := p.cur().From
	name := p.next()
	p.expect(LParenCall)
	var args []Node
	for !p.at(RParen) && !p.at(EOF) {
		args = append(args, p.parseExpr())
		if !p.accept(Comma) {
			break
		}
	}
	p.expect(RParen)
	return &FunctionCall{node{p.span(from)}, name.Text, args}
}

func (p *parser) parseListLiteral() Node {
	from := p.expect(LBracket).From
	var elems []Node
	for !p.at(RBracket) && !p.at(EOF) {
		elems = append(elems, p.parseExpr())
		if !p.accept(Comma) {
			break
		}
	}
	p.expect(RBracket)
	return &Literal{node{p.span(from)}, elems}
}

func (p *parser) parseDictLiteral() Node {
	from := p.expect(LBrace).From
	var pairs []Pair
	for !p.at(RBrace) && !p.at(EOF) {
		key := p.parseExpr()
		p.expect(Colon)
		value := p.parseExpr()
		pairs = append(pairs, Pair{key, value})
		if !p.accept(Comma) {
			break
		}
	}
	p.expect(RBrace)
	return &Literal{node{p.span(from)}, pairs}
}
