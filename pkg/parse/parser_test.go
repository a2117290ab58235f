package parse

import (
	"strings"
	"testing"

	"github.com/coralstor/coral/pkg/diag"
	"github.com/coralstor/coral/pkg/tt"
)

// canonical parses code and renders each statement back on one line. Errors
// render as "!" followed by the message of the first error.
func canonical(code string) string {
	stmts, err := Parse(Source{Name: "[test]", Code: code}, ParseOpts{})
	if err != nil {
		return "!" + err.Error()
	}
	rendered := make([]string, len(stmts))
	for i, stmt := range stmts {
		rendered[i] = UnparseOneLine(stmt)
	}
	return strings.Join(rendered, "; ")
}

func TestParse_Commands(t *testing.T) {
	tt.Test(t, tt.Fn("canonical", canonical), tt.Table{
		tt.Args("volume list").Rets("volume list"),
		// A root-relative head splits into the root marker plus the rest, so
		// both spellings evaluate the same way.
		tt.Args("/account user show").Rets("/ account user show"),
		tt.Args("/ account user show").Rets("/ account user show"),
		// Operator arguments keep key, operator and value glued together;
		// size and duration forms canonicalize to plain integers.
		tt.Args("volume list size>=1g limit=5").
			Rets("volume list size>=1073741824 limit=5"),
		tt.Args("snapshot prune age>1w").Rets("snapshot prune age>604800"),
		tt.Args("search name~=web.*").Rets("search name~=web.*"),
		// A spaced '>' is a redirection, not an oparg.
		tt.Args("volume list > out.txt").Rets("volume list > out.txt"),
		tt.Args("volume list >> audit.log").Rets("volume list >> audit.log"),
		// Comma-separated bare values make a set.
		tt.Args("pool create tank disks=da0,da1,da2").
			Rets("pool create tank disks=da0,da1,da2"),
		// Set elements that are not barewords re-quote on the way out.
		tt.Args(`share grant users=root,"sam h"`).
			Rets(`share grant users=root,"sam h"`),
		// Pipelines.
		tt.Args("volume list | search name==foo | limit 5").
			Rets("volume list | search name==foo | limit 5"),
		// Expansions in parameter position.
		tt.Args("echo ${x + 1}").Rets("echo ${x + 1}"),
		tt.Args("echo $(volume list)").Rets("echo $(volume list)"),
		tt.Args("echo @$(pool status)").Rets("echo @$(pool status)"),
		// Addresses and times quote on the way back out, as plain strings.
		tt.Args("iface set ip=10.0.0.5").Rets(`iface set ip="10.0.0.5"`),
		tt.Args("task schedule at=03:30").Rets(`task schedule at="03:30"`),
		// Backquoted command sequences pass through unevaluated.
		tt.Args("alias st `pool status; volume list`").
			Rets("alias st `pool status; volume list`"),
		// Shell escape.
		tt.Args("!ls -la /tmp").Rets("!ls -la /tmp"),
		// Comments disappear.
		tt.Args("volume list # all of them").Rets("volume list"),
		// Statement separators.
		tt.Args("a b; c d").Rets("a b; c d"),
		tt.Args("a b\nc d").Rets("a b; c d"),
	})
}

func TestParse_Statements(t *testing.T) {
	tt.Test(t, tt.Fn("canonical", canonical), tt.Table{
		tt.Args("x = 1 + 2 * 3").Rets("x = 1 + 2 * 3"),
		tt.Args("x = (1 - 2) * 3").Rets("x = (1 - 2) * 3"),
		tt.Args("x = a and b or not c").Rets("x = a and b or not c"),
		tt.Args("x = ${vols}[0]").Rets("x = ${vols}[0]"),
		tt.Args("a[0] = 5").Rets("a[0] = 5"),
		tt.Args("i++").Rets("i++"),
		tt.Args("x = [1, 2, 3]").Rets("x = [1, 2, 3]"),
		tt.Args("x = {a: 1, b: 2}").Rets("x = {a: 1, b: 2}"),
		tt.Args("const N = 5").Rets("const N = 5"),
		tt.Args("undef N").Rets("undef N"),
		tt.Args("x = size(a, b)").Rets("x = size(a, b)"),
		tt.Args("if (x == 1) { echo a } else { echo b }").
			Rets("if (x == 1) { echo a } else { echo b }"),
		tt.Args("if (a) { x } else if (b) { y }").
			Rets("if (a) { x } else if (b) { y }"),
		tt.Args("while (i < 3) { i++ }").Rets("while (i < 3) { i++ }"),
		tt.Args("for (i = 0; i < 3; i++) { echo i }").
			Rets("for (i = 0; i < 3; i++) { echo i }"),
		tt.Args("for (v in ${vols}) { echo v }").
			Rets("for (v in ${vols}) { echo v }"),
		tt.Args("for (k,v in ${cfg}) { echo k }").
			Rets("for (k,v in ${cfg}) { echo k }"),
		tt.Args("function add(a, b) { return a + b }").
			Rets("function add(a, b) { return a + b }"),
		tt.Args("f = function (x) { return x }").
			Rets("f = function (x) { return x }"),
		tt.Args("while (true) { break }").Rets("while (true) { break }"),
		// An expression expansion alone on a line is a statement.
		tt.Args("${x}").Rets("${x}"),
	})
}

func TestParse_RootCanonicalization(t *testing.T) {
	stmts, err := Parse(Source{Name: "[test]", Code: "/account user show"}, ParseOpts{})
	if err != nil {
		t.Fatalf("Parse -> error %v", err)
	}
	call, ok := stmts[0].(*CommandCall)
	if !ok {
		t.Fatalf("got %T, want *CommandCall", stmts[0])
	}
	if len(call.Args) != 4 {
		t.Fatalf("got %d args, want 4", len(call.Args))
	}
	head := call.Args[0].(*Symbol)
	rest := call.Args[1].(*Symbol)
	if head.Name != "/" || rest.Name != "account" {
		t.Errorf("head splits to %q, %q, want %q, %q", head.Name, rest.Name, "/", "account")
	}
	if head.From != 0 || head.To != 1 || rest.From != 1 || rest.To != 8 {
		t.Errorf("head ranges are [%d,%d) [%d,%d), want [0,1) [1,8)",
			head.From, head.To, rest.From, rest.To)
	}
}

func TestParse_Opargs(t *testing.T) {
	stmts, err := Parse(Source{Name: "[test]", Code: "volume list size>=1g name==foo"}, ParseOpts{})
	if err != nil {
		t.Fatalf("Parse -> error %v", err)
	}
	call := stmts[0].(*CommandCall)
	size := call.Args[2].(*BinaryParameter)
	if size.Name != "size" || size.Op != ">=" {
		t.Errorf("got oparg %s%s, want size>=", size.Name, size.Op)
	}
	if val := size.Value.(*Literal).Val; val != 1073741824 {
		t.Errorf("got value %v, want 1073741824", val)
	}
	name := call.Args[3].(*BinaryParameter)
	if name.Name != "name" || name.Op != "==" {
		t.Errorf("got oparg %s%s, want name==", name.Name, name.Op)
	}
}

func TestParse_PartialErrors(t *testing.T) {
	partial := func(code string) bool {
		_, err := Parse(Source{Name: "[test]", Code: code}, ParseOpts{})
		return err != nil && PartialError(err)
	}
	tt.Test(t, tt.Fn("partial", partial), tt.Table{
		// Input that could become valid with more lines.
		tt.Args("if (x == 1) {").Rets(true),
		tt.Args("volume list |").Rets(true),
		tt.Args(`echo "unterminated`).Rets(true),
		tt.Args("function f(a) {\necho a").Rets(true),
		// Input that is broken regardless.
		tt.Args("if (x ==) { echo a }").Rets(false),
		tt.Args("volume list | | pool status").Rets(false),
		tt.Args("const = 5").Rets(false),
		// Valid input.
		tt.Args("volume list").Rets(false),
	})
}

func TestParse_TolerantRecovery(t *testing.T) {
	src := Source{Name: "[test]", Code: "volume list\nsearch == ==\npool status"}
	stmts, err := Parse(src, ParseOpts{Tolerant: true})
	if err == nil {
		t.Fatalf("got nil error, want a syntax error")
	}
	if len(stmts) != 3 {
		t.Fatalf("got %d statements, want 3", len(stmts))
	}
	if _, ok := stmts[0].(*CommandCall); !ok {
		t.Errorf("statement 0 is %T, want *CommandCall", stmts[0])
	}
	if _, ok := stmts[1].(*Error); !ok {
		t.Errorf("statement 1 is %T, want *Error", stmts[1])
	}
	if call, ok := stmts[2].(*CommandCall); !ok {
		t.Errorf("statement 2 is %T, want *CommandCall", stmts[2])
	} else if head := call.Args[0].(*Symbol).Name; head != "pool" {
		t.Errorf("statement 2 head is %q, want %q", head, "pool")
	}
}

func TestParse_TolerantKeepsBothErrorKinds(t *testing.T) {
	// An unmatched ')' is a lex error; 'search == ==' is a syntax error.
	// Tolerant parsing reports both instead of hiding one behind the other.
	src := Source{Name: "[test]", Code: "volume ) show\nsearch == ==\n"}
	_, err := Parse(src, ParseOpts{Tolerant: true})
	if err == nil {
		t.Fatalf("got nil error, want lex and syntax errors")
	}
	if lexErrs := diag.UnpackErrors[LexErrorTag](err); len(lexErrs) != 1 {
		t.Errorf("got %d lex errors, want 1", len(lexErrs))
	}
	if synErrs := diag.UnpackErrors[SyntaxErrorTag](err); len(synErrs) == 0 {
		t.Errorf("got no syntax errors, want at least 1")
	}
}

func TestParse_StrictStopsAtFirstError(t *testing.T) {
	_, err := Parse(Source{Name: "[test]", Code: "search == ==\npool status"}, ParseOpts{})
	if err == nil {
		t.Fatalf("got nil error, want a syntax error")
	}
	if PartialError(err) {
		t.Errorf("error is partial, want non-partial")
	}
}
