package daemon

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/coralstor/coral/pkg/daemon/daemondefs"
)

// applyQuery filters rows by all triples and applies the options in the
// order: order_by, offset, limit, select. The input slice is not modified.
func applyQuery(rows []map[string]any, filters [][3]any, opts daemondefs.QueryOptions) ([]map[string]any, error) {
	out := []map[string]any{}
	for _, row := range rows {
		ok, err := matchAll(row, filters)
		if err != nil {
			return nil, err
		}
		if ok {
			out = append(out, row)
		}
	}

	if len(opts.OrderBy) > 0 {
		sortRows(out, opts.OrderBy)
	}
	if opts.Offset > 0 {
		if opts.Offset >= len(out) {
			out = out[:0]
		} else {
			out = out[opts.Offset:]
		}
	}
	if opts.Limit > 0 && opts.Limit < len(out) {
		out = out[:opts.Limit]
	}
	if len(opts.Select) > 0 {
		projected := make([]map[string]any, len(out))
		for i, row := range out {
			p := make(map[string]any, len(opts.Select))
			for _, field := range opts.Select {
				if v, has := row[field]; has {
					p[field] = v
				}
			}
			projected[i] = p
		}
		out = projected
	}
	return out, nil
}

func matchAll(row map[string]any, filters [][3]any) (bool, error) {
	for _, f := range filters {
		field, ok := f[0].(string)
		if !ok {
			return false, fmt.Errorf("filter field must be a string, got %v", f[0])
		}
		op, ok := f[1].(string)
		if !ok {
			return false, fmt.Errorf("filter operator must be a string, got %v", f[1])
		}
		ok, err := matchField(row[field], op, f[2])
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

func matchField(have any, op string, want any) (bool, error) {
	switch op {
	case "==":
		return eqValue(have, want), nil
	case "!=":
		return !eqValue(have, want), nil
	case ">", ">=", "<", "<=":
		c, ok := compareValue(have, want)
		if !ok {
			return false, nil
		}
		switch op {
		case ">":
			return c > 0, nil
		case ">=":
			return c >= 0, nil
		case "<":
			return c < 0, nil
		default:
			return c <= 0, nil
		}
	case "~=":
		s, ok := have.(string)
		if !ok {
			return false, nil
		}
		pattern, ok := want.(string)
		if !ok {
			return false, fmt.Errorf("pattern must be a string, got %v", want)
		}
		matched, err := regexp.MatchString(pattern, s)
		if err != nil {
			return false, fmt.Errorf("bad pattern %q: %v", pattern, err)
		}
		return matched, nil
	default:
		return false, fmt.Errorf("unknown filter operator %q", op)
	}
}

func eqValue(a, b any) bool {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		return ok && fa == fb
	}
	return a == b
}

// compareValue returns -1, 0 or 1, or ok=false when the values are not
// comparable.
func compareValue(a, b any) (int, bool) {
	if fa, ok := asFloat(a); ok {
		fb, ok := asFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case fa < fb:
			return -1, true
		case fa > fb:
			return 1, true
		}
		return 0, true
	}
	sa, ok := a.(string)
	if !ok {
		return 0, false
	}
	sb, ok := b.(string)
	if !ok {
		return 0, false
	}
	return strings.Compare(sa, sb), true
}

func asFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case float64:
		return v, true
	}
	return 0, false
}

func sortRows(rows []map[string]any, orderBy []string) {
	sort.SliceStable(rows, func(i, j int) bool {
		for _, field := range orderBy {
			desc := strings.HasPrefix(field, "-")
			f := strings.TrimPrefix(field, "-")
			c, ok := compareValue(rows[i][f], rows[j][f])
			if !ok || c == 0 {
				continue
			}
			if desc {
				return c > 0
			}
			return c < 0
		}
		return false
	})
}
