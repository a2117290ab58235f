package eval

import (
	"fmt"
	"sort"
)

func registerPipeCommands(ev *Evaler) {
	ev.AddPipeCommand("search", searchCmd{})
	ev.AddPipeCommand("exclude", excludeCmd{})
	ev.AddPipeCommand("sort", sortCmd{})
	ev.AddPipeCommand("limit", limitCmd{})
	ev.AddPipeCommand("select", selectCmd{})
	ev.AddPipeCommand("less", lessCmd{})
}

// rows coerces a pipeline stage input into a list of rows.
func rows(input any) ([]any, error) {
	switch input := input.(type) {
	case nil:
		return nil, nil
	case []any:
		return input, nil
	default:
		return nil, Errorf("input is not a result set")
	}
}

// field extracts a named field from a row mapping.
func field(row any, name string) (any, bool) {
	m, ok := row.(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := m[name]
	return v, ok
}

// matchTriple applies one filter predicate to a row.
func matchTriple(row any, t FilterTriple) bool {
	v, ok := field(row, t.Field)
	if !ok {
		return false
	}
	res, err := applyBinary(t.Op, v, t.Value)
	if err != nil {
		return false
	}
	b, ok := res.(bool)
	return ok && b
}

// triples converts a segment's opargs and kwargs into filter predicates;
// kwargs mean equality.
func triples(args Args) []FilterTriple {
	out := make([]FilterTriple, 0, len(args.Op)+len(args.Kw))
	for _, op := range args.Op {
		out = append(out, FilterTriple{Field: op.Name, Op: op.Op, Value: op.Value})
	}
	for _, k := range sortedKeyNames(args.Kw) {
		out = append(out, FilterTriple{Field: k, Op: "==", Value: args.Kw[k]})
	}
	return out
}

// filterTriples is triples with validation: the amend operators accepted in
// oparg position have no filtering meaning, and matching with them would
// silently drop every row.
func filterTriples(args Args) ([]FilterTriple, error) {
	ts := triples(args)
	for _, t := range ts {
		if t.Op == "+=" || t.Op == "-=" {
			return nil, Errorf("%s%s: %q is not a filter operator", t.Field, t.Op, t.Op)
		}
	}
	return ts, nil
}

func sortedKeyNames(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// search keeps rows matching all of its predicates. Pushed down, the
// predicates join the primary query.
type searchCmd struct{}

func (searchCmd) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	ts, err := filterTriples(args)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrNotFilterable
	}
	return &FilterBundle{Filter: ts}, nil
}

func (searchCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	ts, err := filterTriples(args)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, row := range in {
		keep := true
		for _, t := range ts {
			if !matchTriple(row, t) {
				keep = false
				break
			}
		}
		if keep {
			out = append(out, row)
		}
	}
	return out, nil
}

// exclude drops rows matching any of its predicates. Pushed down, each
// predicate is negated and joined to the primary query.
type excludeCmd struct{}

var negatedOps = map[string]string{
	"==": "!=", "!=": "==", ">": "<=", ">=": "<", "<": ">=", "<=": ">",
}

func (excludeCmd) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	ts, err := filterTriples(args)
	if err != nil {
		return nil, err
	}
	if len(ts) == 0 {
		return nil, ErrNotFilterable
	}
	negated := make([]FilterTriple, len(ts))
	for i, t := range ts {
		neg, ok := negatedOps[t.Op]
		if !ok {
			// Match predicates have no serializable negation; fall back to
			// post-processing.
			return nil, ErrNotFilterable
		}
		negated[i] = FilterTriple{Field: t.Field, Op: neg, Value: t.Value}
	}
	return &FilterBundle{Filter: negated}, nil
}

func (excludeCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	ts, err := filterTriples(args)
	if err != nil {
		return nil, err
	}
	var out []any
	for _, row := range in {
		drop := false
		for _, t := range ts {
			if matchTriple(row, t) {
				drop = true
				break
			}
		}
		if !drop {
			out = append(out, row)
		}
	}
	return out, nil
}

// sort orders rows by the given field names. Pushed down it becomes a sort
// parameter of the primary query.
type sortCmd struct{}

func (sortCmd) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	if len(args.Pos) == 0 {
		return nil, ErrNotFilterable
	}
	return &FilterBundle{Params: map[string]any{"sort": args.Pos}}, nil
}

func (sortCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	if len(args.Pos) == 0 {
		return in, nil
	}
	keys := make([]string, len(args.Pos))
	for i, p := range args.Pos {
		k, ok := p.(string)
		if !ok {
			return nil, Errorf("sort needs field names")
		}
		keys[i] = k
	}
	out := append([]any(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		for _, k := range keys {
			vi, _ := field(out[i], k)
			vj, _ := field(out[j], k)
			if equal(vi, vj) {
				continue
			}
			less, err := compare("<", vi, vj)
			if err != nil {
				return false
			}
			return less.(bool)
		}
		return false
	})
	return out, nil
}

// limit truncates the result set. Pushed down it becomes a limit parameter
// of the primary query.
type limitCmd struct{}

func limitCount(args Args) (int, bool) {
	if len(args.Pos) != 1 {
		return 0, false
	}
	n, ok := args.Pos[0].(int)
	return n, ok && n >= 0
}

func (limitCmd) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	n, ok := limitCount(args)
	if !ok {
		return nil, ErrNotFilterable
	}
	return &FilterBundle{Params: map[string]any{"limit": n}}, nil
}

func (limitCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	n, ok := limitCount(args)
	if !ok {
		return nil, Errorf("limit needs one non-negative integer")
	}
	if n > len(in) {
		n = len(in)
	}
	return in[:n], nil
}

// select projects rows onto the given fields. Pushed down it becomes a
// select parameter of the primary query.
type selectCmd struct{}

func (selectCmd) SerializeFilter(cc *Context, args Args) (*FilterBundle, error) {
	if len(args.Pos) == 0 {
		return nil, ErrNotFilterable
	}
	return &FilterBundle{Params: map[string]any{"select": args.Pos}}, nil
}

func (selectCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	out := make([]any, len(in))
	for i, row := range in {
		projected := make(map[string]any)
		for _, p := range args.Pos {
			name, ok := p.(string)
			if !ok {
				return nil, Errorf("select needs field names")
			}
			if v, ok := field(row, name); ok {
				projected[name] = v
			}
		}
		out[i] = projected
	}
	return out, nil
}

// less renders the result set to the output a page at a time. It has to be
// the last pipeline segment.
type lessCmd struct{}

func (lessCmd) MustBeLast() bool { return true }

func (lessCmd) Run(cc *Context, args Args) (any, error) {
	in, err := rows(cc.Input)
	if err != nil {
		return nil, err
	}
	for _, row := range in {
		fmt.Fprintln(cc.Out, Render(row))
	}
	// The rows were consumed by the pager; there is no result left for the
	// REPL to display.
	return nil, nil
}
