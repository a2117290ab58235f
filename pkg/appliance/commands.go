package appliance

import (
	"fmt"

	"github.com/coralstor/coral/pkg/daemon/daemondefs"
	"github.com/coralstor/coral/pkg/eval"
)

// showCommand queries the entity's collection. Its own arguments become
// filter triples: positional arguments match the name property, keyword
// arguments match for equality, and operator arguments carry their operator
// through. A pushed-down pipeline filter is appended after them.
type showCommand struct {
	e *Entity
}

func (c *showCommand) Run(cc *eval.Context, args eval.Args) (any, error) {
	var filters [][3]any
	for _, pos := range args.Pos {
		filters = append(filters, [3]any{"name", "==", pos})
	}
	for _, name := range sortedKeys(args.Kw) {
		filters = append(filters, [3]any{name, "==", args.Kw[name]})
	}
	for _, op := range args.Op {
		filters = append(filters, [3]any{op.Name, op.Op, op.Value})
	}

	var opts daemondefs.QueryOptions
	if cc.Filter != nil {
		for _, t := range cc.Filter.Filter {
			filters = append(filters, [3]any{t.Field, t.Op, t.Value})
		}
		opts = queryOptions(cc.Filter.Params)
	}

	logger.Printf("query %s with %d filters", c.e.opts.Collection, len(filters))
	rows, err := c.e.client.Query(cc.Ctx, c.e.opts.Collection, filters, opts)
	if err != nil {
		return nil, eval.Errorf("%s show: %v", c.e.opts.Name, err)
	}

	result := make([]any, len(rows))
	for i, row := range rows {
		// The server already projected when a select was pushed down.
		if len(opts.Select) == 0 {
			row = c.e.project(row)
		}
		result[i] = row
	}
	return result, nil
}

// project restricts a row to the entity's property table.
func (e *Entity) project(row map[string]any) map[string]any {
	if len(e.opts.Properties) == 0 {
		return row
	}
	p := make(map[string]any, len(e.opts.Properties))
	for _, prop := range e.opts.Properties {
		if v, has := row[prop.Name]; has {
			p[prop.Name] = v
		}
	}
	return p
}

// queryOptions translates pushed-down execution parameters into query
// options understood by the middleware.
func queryOptions(params map[string]any) daemondefs.QueryOptions {
	var opts daemondefs.QueryOptions
	if n, ok := params["limit"].(int); ok {
		opts.Limit = n
	}
	if keys, ok := params["sort"].([]any); ok {
		opts.OrderBy = stringsOf(keys)
	}
	if fields, ok := params["select"].([]any); ok {
		opts.Select = stringsOf(fields)
	}
	return opts
}

func stringsOf(vals []any) []string {
	out := make([]string, 0, len(vals))
	for _, v := range vals {
		out = append(out, fmt.Sprint(v))
	}
	return out
}

// taskCommand submits a middleware task. Keyword arguments become task
// arguments; a single positional argument becomes the name argument. Whether
// the command waits for the task comes from the entity's configuration,
// unless the invocation carries a wait override.
type taskCommand struct {
	e    *Entity
	task string
}

func (c *taskCommand) Run(cc *eval.Context, args eval.Args) (any, error) {
	if len(args.Op) > 0 {
		op := args.Op[0]
		return nil, eval.Errorf("%s: unexpected argument %s%s", c.task, op.Name, op.Op)
	}
	if len(args.Pos) > 1 {
		return nil, eval.Errorf("%s: at most one positional argument allowed", c.task)
	}
	taskArgs := make(map[string]any, len(args.Kw)+1)
	for k, v := range args.Kw {
		taskArgs[k] = v
	}
	if len(args.Pos) == 1 {
		if _, has := taskArgs["name"]; has {
			return nil, eval.Errorf("%s: name given both positionally and as name=", c.task)
		}
		taskArgs["name"] = args.Pos[0]
	}

	id, err := c.e.client.SubmitTask(cc.Ctx, c.task, taskArgs)
	if err != nil {
		return nil, eval.Errorf("%s: %v", c.task, err)
	}
	blocking := c.e.opts.Blocking
	switch cc.Wait {
	case eval.WaitSync:
		blocking = true
	case eval.WaitAsync:
		blocking = false
	}
	if !blocking {
		// The task ID is the result; displaying it is the shell's job.
		return id, nil
	}

	status, err := c.e.client.WaitTask(cc.Ctx, id)
	if err != nil {
		return nil, eval.Errorf("%s: %v", c.task, err)
	}
	if status.State != daemondefs.TaskDone {
		return nil, eval.Errorf("%s: %s", c.task, status.Error)
	}
	return status.Result, nil
}
