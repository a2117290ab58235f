package eval

import (
	"testing"
)

func TestScopeLookupWalksOutward(t *testing.T) {
	outer := NewScope(nil)
	outer.vars["x"] = 1
	inner := NewScope(outer)
	if v, ok := inner.Lookup("x"); !ok || v != 1 {
		t.Errorf("Lookup(x) = %v, %v, want 1, true", v, ok)
	}
}

func TestScopeAssignUpdatesOuterBinding(t *testing.T) {
	outer := NewScope(nil)
	outer.vars["x"] = 1
	inner := NewScope(outer)
	if err := inner.Assign("x", 2); err != nil {
		t.Fatalf("Assign -> error %v", err)
	}
	if outer.vars["x"] != 2 {
		t.Errorf("outer x = %v, want 2", outer.vars["x"])
	}
	if _, ok := inner.vars["x"]; ok {
		t.Errorf("inner shadowed x, want update of the outer binding")
	}
}

func TestScopeAssignDefinesNewNameLocally(t *testing.T) {
	outer := NewScope(nil)
	inner := NewScope(outer)
	if err := inner.Assign("y", 1); err != nil {
		t.Fatalf("Assign -> error %v", err)
	}
	if _, ok := outer.vars["y"]; ok {
		t.Errorf("new name leaked into the outer scope")
	}
}

func TestScopeConst(t *testing.T) {
	s := NewScope(nil)
	if err := s.DefineConst("N", 1); err != nil {
		t.Fatalf("DefineConst -> error %v", err)
	}
	if err := s.Assign("N", 2); err == nil {
		t.Errorf("assigning to a const succeeded, want an error")
	}
	if err := s.DefineConst("N", 3); err == nil {
		t.Errorf("redefining a const succeeded, want an error")
	}
	inner := NewScope(s)
	if err := inner.Assign("N", 2); err == nil {
		t.Errorf("assigning to an outer const succeeded, want an error")
	}
}

func TestScopeUndef(t *testing.T) {
	s := NewScope(nil)
	s.vars["x"] = 1
	if err := s.Undef("x"); err != nil {
		t.Fatalf("Undef -> error %v", err)
	}
	if err := s.Undef("x"); err == nil {
		t.Errorf("undef of an absent name succeeded, want an error")
	}
}
