package overload

import (
	"errors"
	"testing"

	"github.com/funvibe/amagic/internal/object"
)

func TestDerefAppliesHandler(t *testing.T) {
	e := newEnv(t)
	backing := &object.Array{Elements: []object.Object{object.Int(1)}}
	e.declare("Seq", nil, map[string]object.Object{
		"@{}": e.handler("Seq::array", func([]object.Object) (object.Object, error) { return backing, nil }),
	})
	x := e.instance("Seq", &object.Hash{})

	got, err := e.d.Deref(ToArray, x)
	if err != nil {
		t.Fatalf("Deref: %v", err)
	}
	if got != backing {
		t.Errorf("Deref = %v, want the handler's array", got)
	}

	// Only @{} is overloaded; %{} goes straight through.
	if got, _ := e.d.Deref(ToHash, x); got != x {
		t.Errorf("Deref(%%{}) = %v, want the operand", got)
	}
}

func TestDerefUsesTableFlag(t *testing.T) {
	e := newEnv(t)
	backing := &object.Array{}
	e.declare("Seq", nil, map[string]object.Object{
		"@{}": e.handler("Seq::array", func([]object.Object) (object.Object, error) { return backing, nil }),
	})
	x := e.instance("Seq", &object.Hash{})
	if got, _ := e.d.Deref(ToArray, x); got != backing {
		t.Fatalf("Deref = %v, want the handler's array", got)
	}

	// A stale class bit from another rebuild must not hide the handler.
	c, _ := e.tbl.Lookup("Seq")
	c.SetNoDeref(true)
	if got, err := e.d.Deref(ToArray, x); err != nil || got != backing {
		t.Errorf("Deref with stale class bit = %v, %v, want the handler's array", got, err)
	}
}

func TestDerefFastPath(t *testing.T) {
	e := newEnv(t)
	e.declare("P", nil, map[string]object.Object{"+": e.handler("P::add", nil)})
	x := e.instance("P", object.Int(0))

	got, err := e.d.Deref(ToScalar, x)
	if err != nil || got != x {
		t.Fatalf("Deref = %v, %v", got, err)
	}
	c, _ := e.tbl.Lookup("P")
	if !c.NoDeref() {
		t.Errorf("class without dereference handlers must have the fast-path flag")
	}
	if e.callCount() != 0 {
		t.Errorf("handler called on the fast path")
	}
}

func TestDerefChain(t *testing.T) {
	e := newEnv(t)
	inner := &object.Array{}
	e.declare("Inner", nil, map[string]object.Object{
		"@{}": e.handler("Inner::array", func([]object.Object) (object.Object, error) { return inner, nil }),
	})
	innerObj := e.instance("Inner", object.Int(0))
	e.declare("Outer", nil, map[string]object.Object{
		"@{}": e.handler("Outer::array", func([]object.Object) (object.Object, error) { return innerObj.Get(), nil }),
	})
	x := e.instance("Outer", object.Int(0))

	got, err := e.d.Deref(ToArray, x)
	if err != nil || got != inner {
		t.Errorf("Deref chain = %v, %v", got, err)
	}
}

func TestDerefStopsOnSelf(t *testing.T) {
	e := newEnv(t)
	e.declare("Self", nil, map[string]object.Object{
		"%{}": e.handler("Self::hash", func(args []object.Object) (object.Object, error) { return args[0], nil }),
	})
	x := e.instance("Self", &object.Hash{})

	got, err := e.d.Deref(ToHash, x)
	if err != nil || !object.SameReferent(got, x.Get()) {
		t.Errorf("Deref = %v, %v", got, err)
	}
	if e.callCount() != 1 {
		t.Errorf("handler called %d times, want 1", e.callCount())
	}
}

func TestDerefErrors(t *testing.T) {
	e := newEnv(t)
	e.declare("Bad", nil, map[string]object.Object{
		"${}": e.handler("Bad::scalar", func([]object.Object) (object.Object, error) { return object.Int(3), nil }),
	})
	x := e.instance("Bad", object.Int(0))
	if _, err := e.d.Deref(ToScalar, x); !errors.Is(err, ErrDerefNotReference) {
		t.Errorf("non-reference result: got %v", err)
	}
	if _, err := e.d.Deref(Add, x); !errors.Is(err, ErrNotDeref) {
		t.Errorf("non-dereference operator: got %v", err)
	}

	e.declare("Loop", nil, nil)
	loop, _ := e.tbl.Lookup("Loop")
	e.tbl.DefineOverload("Loop", "&{}", e.handler("Loop::code", func([]object.Object) (object.Object, error) {
		return object.Bless(loop, object.Int(0)), nil
	}))
	y := e.instance("Loop", object.Int(0))
	if _, err := e.d.Deref(ToCode, y); !errors.Is(err, ErrDerefLoop) {
		t.Errorf("endless chain: got %v", err)
	}
}
