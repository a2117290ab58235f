package parse

import (
	"fmt"
	"sort"

	"github.com/coralstor/coral/pkg/diag"
)

// Kind identifies the kind of a token.
type Kind int

// Possible values for Kind.
const (
	EOF Kind = iota

	Atom   // bareword: command and namespace names, paths, oparg keys
	Number // integer or float literal, including size, duration and radix forms
	Str    // quoted string, super string, IP address or time-of-day literal

	// Keywords.
	If
	Else
	For
	While
	Function
	Return
	Break
	Undef
	Const
	In
	And
	Or
	Not
	True
	False
	None

	// Punctuation.
	LParen     // "(" preceded by whitespace, grouping
	LParenCall // "(" immediately following an atom, function call
	RParen
	LBrace
	RBrace
	LBracket
	RBracket
	Comma
	Colon // only in script mode; in command mode ':' is a word rune
	Semicolon
	Newline
	Pipe
	Bang
	Backquote    // opening '`'
	BackquoteEnd // closing '`'
	ExprOpen     // "${"
	CmdOpen      // "$("
	SyncCmdOpen  // "@$("

	// Operators.
	Assign      // "="
	Eq          // "=="
	Ne          // "!="
	Lt          // "<"
	Le          // "<="
	Gt          // ">"
	Ge          // ">="
	Match       // "~="
	PlusAssign  // "+="
	MinusAssign // "-="
	Inc         // "++"
	Dec         // "--"
	Plus
	Minus
	Star
	Slash
	Percent
	Append // ">>"

	// Only emitted when LexOpts.KeepComments is set.
	CommentTok
)

var kindNames = map[Kind]string{
	EOF: "end of input", Atom: "atom", Number: "number", Str: "string",
	If: "'if'", Else: "'else'", For: "'for'", While: "'while'",
	Function: "'function'", Return: "'return'", Break: "'break'",
	Undef: "'undef'", Const: "'const'", In: "'in'", And: "'and'",
	Or: "'or'", Not: "'not'", True: "'true'", False: "'false'",
	None: "'none'",
	LParen: "'('", LParenCall: "'('", RParen: "')'", LBrace: "'{'",
	RBrace: "'}'", LBracket: "'['", RBracket: "']'", Comma: "','",
	Colon: "':'", Semicolon: "';'", Newline: "newline", Pipe: "'|'", Bang: "'!'",
	Backquote: "'`'", BackquoteEnd: "'`'", ExprOpen: "'${'", CmdOpen: "'$('",
	SyncCmdOpen: "'@$('",
	Assign:      "'='", Eq: "'=='", Ne: "'!='", Lt: "'<'", Le: "'<='",
	Gt: "'>'", Ge: "'>='", Match: "'~='", PlusAssign: "'+='",
	MinusAssign: "'-='", Inc: "'++'", Dec: "'--'", Plus: "'+'",
	Minus: "'-'", Star: "'*'", Slash: "'/'", Percent: "'%'",
	Append: "'>>'", CommentTok: "comment",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// Token is a lexical token. Val carries the typed value for literal tokens:
// int or float64 for Number, the unquoted text for Str.
type Token struct {
	Kind Kind
	Text string
	Val  any
	diag.Ranging
}

func (t Token) String() string {
	if t.Kind == EOF {
		return "end of input"
	}
	return fmt.Sprintf("%s %q", t.Kind, t.Text)
}

var keywords = map[string]Kind{
	"if": If, "else": Else, "for": For, "while": While,
	"function": Function, "return": Return, "break": Break,
	"undef": Undef, "const": Const, "in": In, "and": And, "or": Or,
	"not": Not, "true": True, "false": False, "none": None,
}

// Keywords returns the reserved words of the language, sorted.
func Keywords() []string {
	words := make([]string, 0, len(keywords))
	for w := range keywords {
		words = append(words, w)
	}
	sort.Strings(words)
	return words
}
