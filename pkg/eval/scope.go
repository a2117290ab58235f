package eval

// Scope is one frame of the variable environment. Lookup walks outward
// through parents; assignment updates the frame a name is found in, or
// defines the name in the innermost frame when it is new anywhere.
type Scope struct {
	parent *Scope
	vars   map[string]any
	consts map[string]bool
}

// NewScope returns a fresh scope with the given parent; a nil parent makes
// a global scope.
func NewScope(parent *Scope) *Scope {
	return &Scope{parent: parent, vars: make(map[string]any)}
}

// Lookup finds name, walking outward.
func (s *Scope) Lookup(name string) (any, bool) {
	for sc := s; sc != nil; sc = sc.parent {
		if v, ok := sc.vars[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// Assign sets name to value. When the name is bound in some enclosing
// frame, that binding is updated; otherwise the name is defined here.
// Assigning to a const binding fails.
func (s *Scope) Assign(name string, value any) error {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.vars[name]; ok {
			if sc.consts[name] {
				return &NameError{Name: name, Message: "cannot assign to const"}
			}
			sc.vars[name] = value
			return nil
		}
	}
	s.vars[name] = value
	return nil
}

// DefineConst defines name as an immutable binding in this frame.
func (s *Scope) DefineConst(name string, value any) error {
	if _, ok := s.Lookup(name); ok {
		return &NameError{Name: name, Message: "already defined"}
	}
	s.vars[name] = value
	if s.consts == nil {
		s.consts = make(map[string]bool)
	}
	s.consts[name] = true
	return nil
}

// Undef removes the binding of name, wherever it is found.
func (s *Scope) Undef(name string) error {
	for sc := s; sc != nil; sc = sc.parent {
		if _, ok := sc.vars[name]; ok {
			delete(sc.vars, name)
			delete(sc.consts, name)
			return nil
		}
	}
	return &NameError{Name: name, Message: "not defined"}
}
