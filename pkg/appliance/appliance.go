// Package appliance implements the namespace tree of the storage
// appliance. Each entity namespace is backed by a middleware collection:
// its show command turns pushed-down filters into server-side queries, and
// its mutating commands submit middleware tasks.
package appliance

import (
	"sort"

	"github.com/coralstor/coral/pkg/daemon"
	"github.com/coralstor/coral/pkg/eval"
	"github.com/coralstor/coral/pkg/logutil"
)

var logger = logutil.GetLogger("[appliance] ")

// Property is one column of an entity's property table. The show command
// projects query results onto the declared properties.
type Property struct {
	Name string
	// Doc is a short description, surfaced by completion.
	Doc string
}

// EntityOptions configures an entity namespace.
type EntityOptions struct {
	// Name is the namespace name.
	Name string
	// Collection is the middleware collection queried by show. An entity
	// without a collection has no show command.
	Collection string
	Properties []Property
	// Tasks maps command names to middleware task names.
	Tasks map[string]string
	// Blocking makes task commands wait for completion; otherwise they
	// print the task ID and return immediately.
	Blocking bool
}

// Entity is an eval.Namespace backed by a middleware collection.
type Entity struct {
	opts     EntityOptions
	client   *daemon.Client
	children []eval.Namespace
}

// NewEntity creates an entity namespace over the given client.
func NewEntity(client *daemon.Client, opts EntityOptions) *Entity {
	return &Entity{opts: opts, client: client}
}

// AddChild appends a child namespace.
func (e *Entity) AddChild(ns eval.Namespace) { e.children = append(e.children, ns) }

// Name implements eval.Namespace.
func (e *Entity) Name() string { return e.opts.Name }

// Namespaces implements eval.Namespace.
func (e *Entity) Namespaces() []eval.Namespace { return e.children }

// Commands implements eval.Namespace.
func (e *Entity) Commands() map[string]eval.Command {
	cmds := make(map[string]eval.Command, len(e.opts.Tasks)+1)
	if e.opts.Collection != "" {
		cmds["show"] = &showCommand{e}
	}
	for name, task := range e.opts.Tasks {
		cmds[name] = &taskCommand{e, task}
	}
	return cmds
}

// Static is a namespace assembled from fixed parts, used for grouping
// namespaces that are not themselves backed by a collection.
type Static struct {
	name     string
	commands map[string]eval.Command
	children []eval.Namespace
}

// NewStatic creates a Static with the given children.
func NewStatic(name string, children ...eval.Namespace) *Static {
	return &Static{name: name, children: children}
}

// AddCommand registers a command on the namespace.
func (s *Static) AddCommand(name string, cmd eval.Command) {
	if s.commands == nil {
		s.commands = make(map[string]eval.Command)
	}
	s.commands[name] = cmd
}

// AddChild appends a child namespace.
func (s *Static) AddChild(ns eval.Namespace) { s.children = append(s.children, ns) }

// Name implements eval.Namespace.
func (s *Static) Name() string { return s.name }

// Commands implements eval.Namespace.
func (s *Static) Commands() map[string]eval.Command { return s.commands }

// Namespaces implements eval.Namespace.
func (s *Static) Namespaces() []eval.Namespace { return s.children }

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
