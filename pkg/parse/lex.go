package parse

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/coralstor/coral/pkg/diag"
)

// Source describes a piece of source code to tokenize or parse.
type Source struct {
	Name string
	Code string
}

// LexOpts keeps options for tokenizing.
type LexOpts struct {
	// Tolerant makes the tokenizer skip illegal characters instead of
	// stopping, recording errors but continuing to scan. It is used for
	// speculative parsing (completion probing, diagnostics), never for
	// executing scripts.
	Tolerant bool
	// KeepComments makes the tokenizer emit CommentTok tokens instead of
	// discarding comments.
	KeepComments bool
}

// LexError is a tokenization error.
type LexError = diag.Error[LexErrorTag]

// LexErrorTag parameterizes [diag.Error] to define [LexError].
type LexErrorTag struct{}

// ErrorTag implements [diag.ErrorTagger].
func (LexErrorTag) ErrorTag() string { return "lex error" }

// Tokenize scans the given source into a token stream. The returned error,
// if not nil, contains one or more *LexError values. In tolerant mode the
// returned tokens are usable even when the error is not nil.
func Tokenize(src Source, opts LexOpts) ([]Token, error) {
	lx := &lexer{src: src, opts: opts, modes: []modeFrame{{mode: modeCommand}}}
	lx.run()
	toks := append(lx.toks, Token{Kind: EOF, Ranging: diag.PointRanging(len(src.Code))})
	return toks, diag.PackErrors(lx.errs)
}

// PartialError reports whether err, returned from [Tokenize] or [Parse],
// was caused solely by the source ending too early, so that soliciting more
// input and rescanning the longer text could make it go away. The driving
// REPL owns the decision to do so; the tokenizer never asks for input
// itself.
func PartialError(err error) bool {
	if errs := diag.UnpackErrors[LexErrorTag](err); len(errs) > 0 {
		for _, e := range errs {
			if !e.Partial {
				return false
			}
		}
		return true
	}
	if errs := diag.UnpackErrors[ErrorTag](err); len(errs) > 0 {
		for _, e := range errs {
			if !e.Partial {
				return false
			}
		}
		return true
	}
	return false
}

// Lexical modes. The tokenizer keeps an explicit stack of these; every
// context-opening token pushes a frame recording the expected closer, and
// the matching closer pops it.
type lexMode int

const (
	// Command mode: the mode of top-level lines and backquoted command
	// sequences. Barewords are permissive (paths, IP addresses,
	// colon-separated times).
	modeCommand lexMode = iota
	// Script mode: inside (...), ${...}, $(...), @$(...) and { ... }
	// blocks. Barewords are identifier-like; punctuation lexes as
	// operators.
	modeScript
	// Quote mode: inside a backquoted verbatim command sequence.
	modeQuote
)

type modeFrame struct {
	mode lexMode
	// Closing rune that pops this frame; 0 for the base frame.
	closer rune
	// Inside parenthesized contexts newlines are soft (skipped); inside
	// blocks and at the top level they are statement separators.
	softNewlines bool
	// Where the frame was opened, for unterminated-context diagnostics.
	openFrom int
	// Statement-scoped frames are pushed after a top-level assignment
	// operator and popped at the statement separator, so that the right-hand
	// side lexes in script mode. They never count as unterminated contexts.
	stmt bool
}

type lexer struct {
	src   Source
	opts  LexOpts
	pos   int
	toks  []Token
	errs  []*LexError
	modes []modeFrame
}

const eof rune = -1

func (lx *lexer) peek() rune {
	if lx.pos >= len(lx.src.Code) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(lx.src.Code[lx.pos:])
	return r
}

func (lx *lexer) peekAt(off int) rune {
	if lx.pos+off >= len(lx.src.Code) {
		return eof
	}
	r, _ := utf8.DecodeRuneInString(lx.src.Code[lx.pos+off:])
	return r
}

func (lx *lexer) next() rune {
	if lx.pos >= len(lx.src.Code) {
		return eof
	}
	r, s := utf8.DecodeRuneInString(lx.src.Code[lx.pos:])
	lx.pos += s
	return r
}

func (lx *lexer) hasPrefix(prefix string) bool {
	return strings.HasPrefix(lx.src.Code[lx.pos:], prefix)
}

func (lx *lexer) emit(k Kind, from int, val any) {
	lx.toks = append(lx.toks, Token{
		Kind: k, Text: lx.src.Code[from:lx.pos], Val: val,
		Ranging: diag.Ranging{From: from, To: lx.pos},
	})
}

func (lx *lexer) errorp(r diag.Ranger, partial bool, format string, args ...any) {
	lx.errs = append(lx.errs, &LexError{
		Message: fmt.Sprintf(format, args...),
		Context: *diag.NewContext(lx.src.Name, lx.src.Code, r),
		Partial: partial,
	})
}

func (lx *lexer) top() *modeFrame { return &lx.modes[len(lx.modes)-1] }

func (lx *lexer) push(f modeFrame) { lx.modes = append(lx.modes, f) }

func (lx *lexer) pop() { lx.modes = lx.modes[:len(lx.modes)-1] }

func (lx *lexer) run() {
	for lx.pos < len(lx.src.Code) {
		lx.scanOne()
	}
	lx.popStmtFrames()
	if len(lx.modes) > 1 {
		f := lx.top()
		what := "context"
		switch f.closer {
		case ')':
			what = "'('"
		case '}':
			what = "'{'"
		case '`':
			what = "'`'"
		case ']':
			what = "'['"
		}
		lx.errorp(diag.Ranging{From: f.openFrom, To: f.openFrom + 1}, true,
			"unterminated %s", what)
	}
}

func (lx *lexer) scanOne() {
	from := lx.pos
	r := lx.next()
	switch {
	case r == ' ' || r == '\t' || r == '\r':
		return
	case r == '\\':
		// Line continuation.
		switch lx.peek() {
		case '\n':
			lx.next()
		case '\r':
			lx.next()
			if lx.peek() == '\n' {
				lx.next()
			}
		case eof:
			lx.errorp(diag.PointRanging(from), true, "incomplete line continuation")
		default:
			lx.illegal(from, r)
		}
	case r == '\n':
		lx.popStmtFrames()
		if lx.top().softNewlines {
			return
		}
		lx.emit(Newline, from, nil)
	case r == '#':
		for lx.peek() != '\n' && lx.peek() != eof {
			lx.next()
		}
		if lx.opts.KeepComments {
			lx.emit(CommentTok, from, strings.TrimPrefix(lx.src.Code[from:lx.pos], "#"))
		}
	case r == '"':
		lx.scanString(from)
	case r == '(':
		kind := LParen
		if n := len(lx.toks); n > 0 && lx.toks[n-1].Kind == Atom && lx.toks[n-1].To == from {
			kind = LParenCall
		}
		lx.emit(kind, from, nil)
		lx.push(modeFrame{mode: modeScript, closer: ')', softNewlines: true, openFrom: from})
	case r == ')':
		if lx.top().closer == ')' {
			lx.pop()
			lx.emit(RParen, from, nil)
		} else {
			lx.errorp(diag.Ranging{From: from, To: lx.pos}, false, "unmatched ')'")
		}
	case r == '{':
		lx.emit(LBrace, from, nil)
		lx.push(modeFrame{mode: modeScript, closer: '}', openFrom: from})
	case r == '}':
		if lx.top().closer == '}' {
			lx.pop()
			lx.emit(RBrace, from, nil)
		} else {
			lx.errorp(diag.Ranging{From: from, To: lx.pos}, false, "unmatched '}'")
		}
	case r == '[':
		lx.emit(LBracket, from, nil)
		lx.push(modeFrame{mode: modeScript, closer: ']', softNewlines: true, openFrom: from})
	case r == ']':
		if lx.top().closer == ']' {
			lx.pop()
			lx.emit(RBracket, from, nil)
		} else {
			lx.errorp(diag.Ranging{From: from, To: lx.pos}, false, "unmatched ']'")
		}
	case r == '`':
		lx.popStmtFrames()
		if lx.top().mode == modeQuote {
			lx.pop()
			lx.emit(BackquoteEnd, from, nil)
		} else {
			lx.push(modeFrame{mode: modeQuote, closer: '`', openFrom: from})
			lx.emit(Backquote, from, nil)
		}
	case r == '$':
		switch lx.peek() {
		case '{':
			lx.next()
			lx.emit(ExprOpen, from, nil)
			lx.push(modeFrame{mode: modeScript, closer: '}', softNewlines: true, openFrom: from})
		case '(':
			lx.next()
			lx.emit(CmdOpen, from, nil)
			lx.push(modeFrame{mode: modeScript, closer: ')', softNewlines: true, openFrom: from})
		default:
			lx.illegal(from, r)
		}
	case r == '@':
		if lx.hasPrefix("$(") {
			lx.next()
			lx.next()
			lx.emit(SyncCmdOpen, from, nil)
			lx.push(modeFrame{mode: modeScript, closer: ')', softNewlines: true, openFrom: from})
		} else {
			lx.illegal(from, r)
		}
	case r == '|':
		lx.emit(Pipe, from, nil)
	case r == ';':
		lx.popStmtFrames()
		lx.emit(Semicolon, from, nil)
	case r == ',':
		lx.emit(Comma, from, nil)
	case r == ':' && lx.top().mode == modeScript:
		lx.emit(Colon, from, nil)
	case r == '=':
		if lx.peek() == '=' {
			lx.next()
			lx.emit(Eq, from, nil)
		} else {
			lx.emit(Assign, from, nil)
			// The right-hand side of an assignment statement is an
			// expression, so '*', '/' and '%' must lex as operators there
			// even though the statement started in command mode.
			if m := lx.top().mode; (m == modeCommand || m == modeQuote) && lx.assignTargetBehind() {
				lx.push(modeFrame{mode: modeScript, openFrom: from, stmt: true})
			}
		}
	case r == '!':
		if lx.peek() == '=' {
			lx.next()
			lx.emit(Ne, from, nil)
		} else {
			lx.emit(Bang, from, nil)
		}
	case r == '<':
		if lx.peek() == '=' {
			lx.next()
			lx.emit(Le, from, nil)
		} else {
			lx.emit(Lt, from, nil)
		}
	case r == '>':
		switch lx.peek() {
		case '=':
			lx.next()
			lx.emit(Ge, from, nil)
		case '>':
			lx.next()
			lx.emit(Append, from, nil)
		default:
			lx.emit(Gt, from, nil)
		}
	case r == '~':
		if lx.peek() == '=' {
			lx.next()
			lx.emit(Match, from, nil)
		} else if lx.top().mode != modeScript {
			lx.scanWord(from)
		} else {
			lx.illegal(from, r)
		}
	case r == '+':
		switch lx.peek() {
		case '=':
			lx.next()
			lx.emit(PlusAssign, from, nil)
		case '+':
			lx.next()
			lx.emit(Inc, from, nil)
		default:
			lx.emit(Plus, from, nil)
		}
	case r == '-':
		switch lx.peek() {
		case '=':
			lx.next()
			lx.emit(MinusAssign, from, nil)
		case '-':
			lx.next()
			lx.emit(Dec, from, nil)
		default:
			if lx.top().mode == modeScript {
				lx.emit(Minus, from, nil)
			} else {
				lx.scanWord(from)
			}
		}
	case r == '*' && lx.top().mode == modeScript:
		lx.emit(Star, from, nil)
	case r == '%' && lx.top().mode == modeScript:
		lx.emit(Percent, from, nil)
	case r == '/' && lx.top().mode == modeScript:
		lx.emit(Slash, from, nil)
	case isWordRune(r, lx.top().mode):
		lx.scanWord(from)
	default:
		lx.illegal(from, r)
	}
}

func (lx *lexer) popStmtFrames() {
	for lx.top().stmt {
		lx.pop()
	}
}

// assignTargetBehind reports whether the tokens before the just-emitted
// assignment operator form an assignment target at the start of a statement:
// NAME or NAME[...] with optional chained subscripts. Anything else, like an
// oparg key in the middle of a command, leaves the mode alone.
func (lx *lexer) assignTargetBehind() bool {
	i := len(lx.toks) - 2
	for i >= 0 && lx.toks[i].Kind == RBracket {
		depth := 1
		i--
		for i >= 0 && depth > 0 {
			switch lx.toks[i].Kind {
			case RBracket:
				depth++
			case LBracket:
				depth--
			}
			i--
		}
		if depth > 0 {
			return false
		}
	}
	if i < 0 || lx.toks[i].Kind != Atom {
		return false
	}
	if i == 0 {
		return true
	}
	switch lx.toks[i-1].Kind {
	case Newline, Semicolon, Const, Backquote:
		return true
	}
	return false
}

func (lx *lexer) illegal(from int, r rune) {
	lx.errorp(diag.Ranging{From: from, To: lx.pos}, false, "illegal character %q", r)
	// In tolerant mode the error is recorded and the character skipped;
	// otherwise scanning continues too, and the caller fails on the packed
	// errors. Keeping the behaviors identical means the token stream is
	// always complete for speculative consumers.
}

// isWordRune reports whether r can be part of a bareword in the given mode.
func isWordRune(r rune, m lexMode) bool {
	if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '.' {
		return true
	}
	if m == modeScript {
		return false
	}
	switch r {
	case '/', ':', '-', '@', '?', '~', '%', '*':
		return true
	}
	return false
}

// scanWord scans a maximal bareword starting at from (whose first rune has
// been consumed) and classifies it. Literal classification applies the
// longest-match-first rule: IP addresses, sizes, durations, radix integers
// and plain numbers are all tried before falling back to a generic atom.
func (lx *lexer) scanWord(from int) {
	mode := lx.top().mode
	for {
		r := lx.peek()
		if !isWordRune(r, mode) {
			break
		}
		// Stop before "-=", "+=" and "~=" so that opargs like key-=value
		// lex as three tokens.
		if (r == '-' || r == '+' || r == '~') && lx.peekAt(1) == '=' {
			break
		}
		lx.next()
	}
	word := lx.src.Code[from:lx.pos]
	if k, ok := keywords[word]; ok {
		switch k {
		case True:
			lx.emit(k, from, true)
		case False:
			lx.emit(k, from, false)
		default:
			lx.emit(k, from, nil)
		}
		return
	}
	kind, val := classifyWord(word)
	lx.emit(kind, from, val)
}

var (
	ipv4Pattern     = regexp.MustCompile(`^\d{1,3}(\.\d{1,3}){3}$`)
	ipv6Pattern     = regexp.MustCompile(`^[0-9a-fA-F]*:[0-9a-fA-F:]*:[0-9a-fA-F.]*$`)
	timePattern     = regexp.MustCompile(`^\d{1,2}:\d{2}(:\d{2})?$`)
	sizePattern     = regexp.MustCompile(`^(\d+)([kKmMgGtTpP])[iI]?[bB]?$`)
	durationPattern = regexp.MustCompile(`^(\d+)([yYwWdDhH])$`)
	floatPattern    = regexp.MustCompile(`^-?\d+\.\d+([eE][+-]?\d+)?$`)
)

var sizeMultiplier = map[byte]int{
	'k': 1 << 10, 'm': 1 << 20, 'g': 1 << 30, 't': 1 << 40, 'p': 1 << 50,
}

var durationSeconds = map[byte]int{
	'h': 3600, 'd': 86400, 'w': 7 * 86400, 'y': 365 * 86400,
}

func classifyWord(word string) (Kind, any) {
	switch {
	case ipv4Pattern.MatchString(word):
		return Str, word
	case strings.Count(word, ":") >= 2 && ipv6Pattern.MatchString(word):
		return Str, word
	case timePattern.MatchString(word):
		return Str, word
	case len(word) > 2 && word[0] == '0' && (word[1] == 'x' || word[1] == 'X'):
		if n, err := strconv.ParseInt(word[2:], 16, 64); err == nil {
			return Number, int(n)
		}
	case len(word) > 2 && word[0] == '0' && (word[1] == 'o' || word[1] == 'O'):
		if n, err := strconv.ParseInt(word[2:], 8, 64); err == nil {
			return Number, int(n)
		}
	case len(word) > 2 && word[0] == '0' && (word[1] == 'b' || word[1] == 'B'):
		if n, err := strconv.ParseInt(word[2:], 2, 64); err == nil {
			return Number, int(n)
		}
	}
	if m := sizePattern.FindStringSubmatch(word); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return Number, n * sizeMultiplier[lowerByte(m[2][0])]
		}
	}
	if m := durationPattern.FindStringSubmatch(word); m != nil {
		if n, err := strconv.Atoi(m[1]); err == nil {
			return Number, n * durationSeconds[lowerByte(m[2][0])]
		}
	}
	if n, err := strconv.Atoi(word); err == nil {
		return Number, n
	}
	if floatPattern.MatchString(word) {
		if f, err := strconv.ParseFloat(word, 64); err == nil {
			return Number, f
		}
	}
	return Atom, word
}

func lowerByte(b byte) byte {
	if 'A' <= b && b <= 'Z' {
		return b + 'a' - 'A'
	}
	return b
}

// scanString scans a double-quoted string or a triple-double-quoted super
// string; the opening quote has been consumed.
func (lx *lexer) scanString(from int) {
	if lx.hasPrefix(`""`) {
		lx.next()
		lx.next()
		lx.scanSuperString(from)
		return
	}
	var sb strings.Builder
	for {
		switch r := lx.next(); r {
		case eof, '\n':
			lx.errorp(diag.Ranging{From: from, To: lx.pos}, r == eof,
				"unterminated string")
			lx.emit(Str, from, sb.String())
			return
		case '"':
			lx.emit(Str, from, sb.String())
			return
		case '\\':
			r2 := lx.next()
			if r2 == eof {
				lx.errorp(diag.Ranging{From: from, To: lx.pos}, true,
					"unterminated string")
				lx.emit(Str, from, sb.String())
				return
			}
			if e, ok := stringEscapes[r2]; ok {
				sb.WriteRune(e)
			} else {
				lx.errorp(diag.Ranging{From: lx.pos - 2, To: lx.pos}, false,
					"invalid escape sequence \\%c", r2)
				sb.WriteRune(r2)
			}
		default:
			sb.WriteRune(r)
		}
	}
}

var stringEscapes = map[rune]rune{
	'a': '\a', 'b': '\b', 'f': '\f', 'n': '\n', 'r': '\r', 't': '\t',
	'v': '\v', '\\': '\\', '"': '"', '$': '$', '`': '`',
}

// scanSuperString scans the body of a """...""" string, which may contain
// unescaped double quotes. The value is the verbatim body; when unparsed it
// is re-emitted as a normal string with the quotes escaped.
func (lx *lexer) scanSuperString(from int) {
	body := lx.src.Code[lx.pos:]
	end := strings.Index(body, `"""`)
	if end < 0 {
		lx.pos = len(lx.src.Code)
		lx.errorp(diag.Ranging{From: from, To: from + 3}, true,
			"unterminated super string")
		lx.emit(Str, from, body)
		return
	}
	lx.pos += end + 3
	lx.emit(Str, from, body[:end])
}
