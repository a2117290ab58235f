package eval

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/coralstor/coral/pkg/parse"
)

// testNS is a stub namespace tree node.
type testNS struct {
	name     string
	children []*testNS
	cmds     map[string]Command
}

func (ns *testNS) Name() string { return ns.name }

func (ns *testNS) Commands() map[string]Command {
	if ns.cmds == nil {
		return map[string]Command{}
	}
	return ns.cmds
}

func (ns *testNS) Namespaces() []Namespace {
	out := make([]Namespace, len(ns.children))
	for i, c := range ns.children {
		out[i] = c
	}
	return out
}

// showStub is a primary command that records how it was invoked.
type showStub struct {
	calls  int
	filter *FilterBundle
	result any
}

func (s *showStub) Run(cc *Context, args Args) (any, error) {
	s.calls++
	s.filter = cc.Filter
	return s.result, nil
}

// countingPipe wraps a filtering pipe command and counts direct Run calls.
type countingPipe struct {
	inner FilteringCommand
	runs  int
}

func (c *countingPipe) Run(cc *Context, args Args) (any, error) {
	c.runs++
	return c.inner.Run(cc, args)
}

func (c *countingPipe) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	return c.inner.SerializeFilter(cc, args)
}

// waitStub records the wait policy of its last invocation.
type waitStub struct {
	last WaitPolicy
}

func (s *waitStub) Run(cc *Context, args Args) (any, error) {
	s.last = cc.Wait
	return "t-1", nil
}

// argsStub records the argument split of its last invocation.
type argsStub struct {
	last Args
}

func (s *argsStub) Run(cc *Context, args Args) (any, error) {
	s.last = args
	return nil, nil
}

func mustEval(t *testing.T, ev *Evaler, code string) any {
	t.Helper()
	val, err := ev.Eval(context.Background(), parse.Source{Name: "[test]", Code: code})
	if err != nil {
		t.Fatalf("eval %q -> error %v", code, err)
	}
	return val
}

func evalErr(t *testing.T, ev *Evaler, code string) error {
	t.Helper()
	_, err := ev.Eval(context.Background(), parse.Source{Name: "[test]", Code: code})
	if err == nil {
		t.Fatalf("eval %q -> nil error, want an error", code)
	}
	return err
}

func newTestEvaler(root *testNS) *Evaler {
	return NewEvaler(root, io.Discard)
}

func TestFilterPushdown(t *testing.T) {
	show := &showStub{result: []any{}}
	root := &testNS{cmds: map[string]Command{"show": show}}
	ev := newTestEvaler(root)
	search := &countingPipe{inner: searchCmd{}}
	limit := &countingPipe{inner: limitCmd{}}
	ev.AddPipeCommand("search", search)
	ev.AddPipeCommand("limit", limit)

	mustEval(t, ev, "show | search name==foo | limit 5")

	if show.calls != 1 {
		t.Errorf("primary ran %d times, want 1", show.calls)
	}
	if show.filter == nil {
		t.Fatalf("primary got no filter bundle")
	}
	wantFilter := []FilterTriple{{Field: "name", Op: "==", Value: "foo"}}
	if diff := cmp.Diff(wantFilter, show.filter.Filter); diff != "" {
		t.Errorf("filter mismatch (-want +got):\n%s", diff)
	}
	wantParams := map[string]any{"limit": 5}
	if diff := cmp.Diff(wantParams, show.filter.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
	if search.runs != 0 || limit.runs != 0 {
		t.Errorf("pipe commands ran directly (search %d, limit %d), want 0",
			search.runs, limit.runs)
	}
}

func TestPipelinePostProcess(t *testing.T) {
	show := &showStub{result: []any{
		map[string]any{"name": "foo"},
		map[string]any{"name": "bar"},
	}}
	root := &testNS{cmds: map[string]Command{"show": show}}
	ev := newTestEvaler(root)

	// A match predicate has no serializable negation, so exclude falls back
	// to post-processing the materialized rows.
	val := mustEval(t, ev, "show | exclude name~=f.*")
	if show.filter != nil {
		t.Errorf("primary got filter %v, want none", show.filter)
	}
	want := []any{map[string]any{"name": "bar"}}
	if diff := cmp.Diff(want, val); diff != "" {
		t.Errorf("result mismatch (-want +got):\n%s", diff)
	}
}

func TestMustBeLast(t *testing.T) {
	show := &showStub{result: []any{}}
	root := &testNS{cmds: map[string]Command{"show": show}}
	ev := newTestEvaler(root)

	err := evalErr(t, ev, "show | less | search name==foo")
	var se *parse.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %T, want *parse.SyntaxError", err)
	}
	if !strings.Contains(se.Message, "less") {
		t.Errorf("error %q does not name the offending segment", se.Message)
	}
	if show.calls != 0 {
		t.Errorf("primary ran %d times, want 0", show.calls)
	}
}

func TestTransactionalNavigation(t *testing.T) {
	root := &testNS{children: []*testNS{
		{name: "a", children: []*testNS{{name: "b"}}},
	}}
	ev := newTestEvaler(root)

	mustEval(t, ev, "a b")
	if got := ev.Path(); got != "/a/b" {
		t.Fatalf("Path() = %q, want %q", got, "/a/b")
	}

	evalErr(t, ev, "nonexistent some args")
	if got := ev.Path(); got != "/a/b" {
		t.Errorf("after failed statement Path() = %q, want %q", got, "/a/b")
	}

	// Partial navigation before the failure must not stick either.
	mustEval(t, ev, ".. ..")
	evalErr(t, ev, "a missing args")
	if got := ev.Path(); got != "/" {
		t.Errorf("after failed statement Path() = %q, want %q", got, "/")
	}
}

func TestNavigationCommitsOnlyWithoutCommand(t *testing.T) {
	show := &showStub{result: []any{}}
	root := &testNS{children: []*testNS{
		{name: "a", cmds: map[string]Command{"show": show}},
	}}
	ev := newTestEvaler(root)

	// Walking into a namespace on the way to a command does not move the
	// session cursor.
	mustEval(t, ev, "a show")
	if got := ev.Path(); got != "/" {
		t.Errorf("after command Path() = %q, want %q", got, "/")
	}
	mustEval(t, ev, "a")
	if got := ev.Path(); got != "/a" {
		t.Errorf("after navigation Path() = %q, want %q", got, "/a")
	}
}

func TestNavigation(t *testing.T) {
	root := &testNS{children: []*testNS{{name: "a"}, {name: "b"}}}
	ev := newTestEvaler(root)

	mustEval(t, ev, "a")
	if got := ev.Path(); got != "/a" {
		t.Fatalf("Path() = %q, want %q", got, "/a")
	}
	mustEval(t, ev, "..")
	if got := ev.Path(); got != "/" {
		t.Fatalf("Path() = %q, want %q", got, "/")
	}
	// Swap with the previously active path.
	mustEval(t, ev, "-")
	if got := ev.Path(); got != "/a" {
		t.Errorf("after - Path() = %q, want %q", got, "/a")
	}
	// A leading / resolves root-relative without moving the cursor.
	mustEval(t, ev, "/ echo hi")
	if got := ev.Path(); got != "/a" {
		t.Errorf("after / command Path() = %q, want %q", got, "/a")
	}
}

func TestCommandExpansionScalar(t *testing.T) {
	show := &showStub{result: []any{map[string]any{"name": "foo"}}}
	root := &testNS{cmds: map[string]Command{"show": show}}
	ev := newTestEvaler(root)

	err := evalErr(t, ev, "echo $(show)")
	var se *parse.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %T, want *parse.SyntaxError", err)
	}
	if !strings.Contains(se.Message, "single value") {
		t.Errorf("error %q, want a single-value complaint", se.Message)
	}

	if val := mustEval(t, ev, "echo $(echo hi)"); val != "hi" {
		t.Errorf("eval -> %v, want %q", val, "hi")
	}
}

func TestCommandExpansionWaitPolicy(t *testing.T) {
	submit := &waitStub{}
	root := &testNS{cmds: map[string]Command{"create": submit}}
	ev := newTestEvaler(root)

	mustEval(t, ev, "create")
	if submit.last != WaitDefault {
		t.Errorf("direct call Wait = %v, want WaitDefault", submit.last)
	}
	// $() submits and substitutes the handle; @$() blocks for the result.
	mustEval(t, ev, "echo $(create)")
	if submit.last != WaitAsync {
		t.Errorf("$() Wait = %v, want WaitAsync", submit.last)
	}
	mustEval(t, ev, "echo @$(create)")
	if submit.last != WaitSync {
		t.Errorf("@$() Wait = %v, want WaitSync", submit.last)
	}
}

func TestFilterRejectsAmendOperators(t *testing.T) {
	show := &showStub{result: []any{map[string]any{"tags": "db"}}}
	root := &testNS{cmds: map[string]Command{"show": show}}
	ev := newTestEvaler(root)

	err := evalErr(t, ev, "show | search tags+=db")
	if !strings.Contains(err.Error(), "not a filter operator") {
		t.Errorf("search tags+=db -> %v, want an operator rejection", err)
	}
	err = evalErr(t, ev, "show | exclude tags-=db")
	if !strings.Contains(err.Error(), "not a filter operator") {
		t.Errorf("exclude tags-=db -> %v, want an operator rejection", err)
	}
}

func TestConstImmutability(t *testing.T) {
	ev := newTestEvaler(&testNS{})
	mustEval(t, ev, "const X = 1")
	err := evalErr(t, ev, "X = 2")
	var ne *NameError
	if !errors.As(err, &ne) {
		t.Fatalf("got %T, want *NameError", err)
	}
	if val := mustEval(t, ev, "Y = 1; Y = 2; ${Y}"); val != 2 {
		t.Errorf("Y = %v, want 2", val)
	}
}

func TestArgumentClassification(t *testing.T) {
	set := &argsStub{}
	root := &testNS{cmds: map[string]Command{"set": set}}
	ev := newTestEvaler(root)

	mustEval(t, ev, "set one 2 a=1 a=2 size>=1g size<2g disks=da0,da1")

	want := Args{
		Pos: []any{"one", 2},
		Kw: map[string]any{
			"a":     2, // duplicate keyword arguments are last-write-wins
			"disks": []any{"da0", "da1"},
		},
		Op: []Oparg{
			{Name: "size", Op: ">=", Value: 1073741824},
			{Name: "size", Op: "<", Value: 2147483648},
		},
	}
	if diff := cmp.Diff(want, set.last); diff != "" {
		t.Errorf("argument split mismatch (-want +got):\n%s", diff)
	}
}

func TestScripting(t *testing.T) {
	tests := []struct {
		code string
		want any
	}{
		{"function fact(n) { if (n <= 1) { return 1 }; return n * fact(n - 1) }; ${fact(5)}", 120},
		{"i = 0; while (true) { i = i + 1; if (i == 3) { break } }; ${i}", 3},
		{"total = 0; for (x in [1, 2, 3]) { total = total + x }; ${total}", 6},
		{"s = 0; for (i = 0; i < 4; i++) { s = s + i }; ${s}", 6},
		{`d = {a: 1, b: 2}; ks = ""; for (k,v in ${d}) { ks = ks + k + str(v) }; ${ks}`, "a1b2"},
		{"f = function (x) { return x * 2 }; ${f(21)}", 42},
		{"if (1 < 2) { ${\"yes\"} } else { ${\"no\"} }", "yes"},
		{"${length([1, 2, 3])}", 3},
		{"${join(split(\"a,b,c\", \",\"), \"-\")}", "a-b-c"},
		{"x = [1, 2, 3]; x[1] = 9; ${x[1]}", 9},
		{"${2 + 3 * 4}", 14},
		{"${10 / 4}", 2},
		{"${10.0 / 4}", 2.5},
		{"${\"web01\" ~= \"web.*\"}", true},
	}
	for _, test := range tests {
		ev := newTestEvaler(&testNS{})
		if got := mustEval(t, ev, test.code); !cmp.Equal(test.want, got) {
			t.Errorf("eval %q -> %v, want %v", test.code, got, test.want)
		}
	}
}

func TestArityError(t *testing.T) {
	ev := newTestEvaler(&testNS{})
	mustEval(t, ev, "function add(a, b) { return a + b }")
	err := evalErr(t, ev, "${add(1)}")
	var se *parse.SyntaxError
	if !errors.As(err, &se) {
		t.Fatalf("got %T, want *parse.SyntaxError", err)
	}
	if !strings.Contains(se.Message, "add") {
		t.Errorf("error %q does not name the function", se.Message)
	}
}

func TestUndef(t *testing.T) {
	ev := newTestEvaler(&testNS{})
	mustEval(t, ev, "x = 1; undef x")
	err := evalErr(t, ev, "${x}")
	var ne *NameError
	if !errors.As(err, &ne) {
		t.Fatalf("got %T, want *NameError", err)
	}
	err = evalErr(t, ev, "undef never_defined")
	if !errors.As(err, &ne) {
		t.Fatalf("got %T, want *NameError", err)
	}
}

func TestEvalQuote(t *testing.T) {
	ev := newTestEvaler(&testNS{})
	if val := mustEval(t, ev, "eval `echo hi`"); val != "hi" {
		t.Errorf("eval -> %v, want %q", val, "hi")
	}
}

func TestExit(t *testing.T) {
	ev := newTestEvaler(&testNS{})
	err := evalErr(t, ev, "exit 3")
	var sig ExitSignal
	if !errors.As(err, &sig) {
		t.Fatalf("got %T, want ExitSignal", err)
	}
	if sig.Code != 3 {
		t.Errorf("exit code %d, want 3", sig.Code)
	}
}

func TestEchoValue(t *testing.T) {
	var sb strings.Builder
	ev := NewEvaler(&testNS{}, &sb)
	if val := mustEval(t, ev, "echo hello world"); val != "hello world" {
		t.Errorf("echo -> %v, want %q", val, "hello world")
	}
	// Result display is the REPL's job; echo itself writes nothing.
	if got := sb.String(); got != "" {
		t.Errorf("echo wrote %q, want no output", got)
	}
}
