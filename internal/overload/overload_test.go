package overload

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/funvibe/amagic/internal/method"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

type invocation struct {
	name string
	args []object.Object
}

type env struct {
	t   *testing.T
	tbl *symbols.Table
	upd *Updater
	d   *Dispatcher

	mu    sync.Mutex
	calls []invocation
}

func newEnv(t *testing.T) *env {
	t.Helper()
	tbl := symbols.NewTable()
	upd := NewUpdater(method.New(tbl, nil))
	return &env{t: t, tbl: tbl, upd: upd, d: NewDispatcher(upd)}
}

// handler returns a builtin that records its arguments and answers with fn,
// or with its own name when fn is nil.
func (e *env) handler(name string, fn func(args []object.Object) (object.Object, error)) *object.Builtin {
	return &object.Builtin{Name: name, Fn: func(args ...object.Object) (object.Object, error) {
		e.mu.Lock()
		e.calls = append(e.calls, invocation{name: name, args: args})
		e.mu.Unlock()
		if fn == nil {
			return object.Str(name), nil
		}
		return fn(args)
	}}
}

func (e *env) declare(class string, fallback object.Object, handlers map[string]object.Object) {
	e.t.Helper()
	if err := Declare(e.tbl, class, fallback, handlers); err != nil {
		e.t.Fatalf("Declare(%s): %v", class, err)
	}
}

func (e *env) instance(class string, storage object.Object) *object.Scalar {
	e.t.Helper()
	c, err := e.tbl.Declare(class)
	if err != nil {
		e.t.Fatalf("Declare: %v", err)
	}
	return object.NewScalar(object.Bless(c, storage))
}

func (e *env) dispatch(op Kind, left, right object.Object, flags Flags) Result {
	e.t.Helper()
	res, err := e.d.Dispatch(op, left, right, flags)
	if err != nil {
		e.t.Fatalf("Dispatch(%s): %v", op, err)
	}
	return res
}

func (e *env) lastCall() invocation {
	e.t.Helper()
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.calls) == 0 {
		e.t.Fatalf("no handler was called")
	}
	return e.calls[len(e.calls)-1]
}

func (e *env) callCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func swappedOf(t *testing.T, inv invocation) object.Object {
	t.Helper()
	if len(inv.args) < 3 {
		t.Fatalf("%s called with %d args", inv.name, len(inv.args))
	}
	return inv.args[2]
}

func TestVectorScenario(t *testing.T) {
	e := newEnv(t)
	e.declare("Vector", nil, map[string]object.Object{"+": e.handler("Vector::add", nil)})
	v1 := e.instance("Vector", &object.Array{})
	v2 := e.instance("Vector", &object.Array{})

	res := e.dispatch(Add, v1, v2, Flags{})
	if res.Kind != ResultValue || !object.Truthy(res.Value) {
		t.Fatalf("Add = %+v", res)
	}
	call := e.lastCall()
	if call.name != "Vector::add" || call.args[0] != v1.Get() || call.args[1] != v2.Get() || swappedOf(t, call) != object.FALSE {
		t.Errorf("unexpected invocation %+v", call)
	}

	res = e.dispatch(Sub, v1, v2, Flags{})
	if res.Applicable() || res.Strict {
		t.Fatalf("Sub without handler = %+v, want silent NotApplicable", res)
	}

	if err := e.tbl.DefineOverload("Vector", "-", e.handler("Vector::sub", nil)); err != nil {
		t.Fatalf("DefineOverload: %v", err)
	}
	res = e.dispatch(Sub, v1, v2, Flags{})
	if res.Kind != ResultValue || e.lastCall().name != "Vector::sub" {
		t.Errorf("Sub after definition = %+v, last call %s", res, e.lastCall().name)
	}
}

func TestNegSubstitutesSubtraction(t *testing.T) {
	e := newEnv(t)
	e.declare("Num", nil, map[string]object.Object{
		"-": e.handler("Num::sub", nil),
		"<": e.handler("Num::lt", nil),
	})
	x := e.instance("Num", object.Int(5))

	res := e.dispatch(Neg, x, nil, Flags{})
	if res.Kind != ResultValue || res.Value.(*object.String).Value != "Num::sub" {
		t.Fatalf("Neg = %+v", res)
	}
	call := e.lastCall()
	if call.args[0] != x.Get() {
		t.Errorf("first argument = %v, want the operand", call.args[0])
	}
	if object.IntValue(call.args[1]) != 0 {
		t.Errorf("second argument = %v, want 0", call.args[1])
	}
	if swappedOf(t, call) != object.TRUE {
		t.Errorf("swapped = %v, want true", swappedOf(t, call))
	}
}

func TestIncSubstitutesAddAndWritesBack(t *testing.T) {
	e := newEnv(t)
	var produced object.Object
	e.declare("Counter", nil, map[string]object.Object{
		"+": e.handler("Counter::add", func(args []object.Object) (object.Object, error) {
			c, _ := e.tbl.Lookup("Counter")
			inst := object.Value(args[0]).(*object.Ref).Target()
			produced = object.Bless(c, object.Int(object.IntValue(inst.Storage)+object.IntValue(args[1])))
			return produced, nil
		}),
	})
	x := e.instance("Counter", object.Int(41))

	res := e.dispatch(Inc, x, nil, Flags{})
	if res.Kind != ResultValue || res.Value != x {
		t.Fatalf("Inc must return the operand cell, got %+v", res)
	}
	if x.Get() != produced {
		t.Errorf("result was not stored back into the operand")
	}
	if got := object.IntValue(x.Get().(*object.Ref).Target().Storage); got != 42 {
		t.Errorf("counter = %d, want 42", got)
	}
	call := e.lastCall()
	if object.IntValue(call.args[1]) != 1 || swappedOf(t, call) != object.Undef {
		t.Errorf("add called with %v, want (x, 1, undef)", call.args)
	}
}

func TestIncCopiesSharedOperandBeforeMutating(t *testing.T) {
	e := newEnv(t)
	e.declare("Big", nil, map[string]object.Object{
		"+=": e.handler("Big::add_assign", func(args []object.Object) (object.Object, error) {
			return args[0], nil
		}),
		"=": e.handler("Big::copy", func(args []object.Object) (object.Object, error) {
			orig := object.Value(args[0]).(*object.Ref).Target()
			return object.Bless(orig.Stash(), orig.Storage), nil
		}),
	})
	x := e.instance("Big", object.Int(1))
	alias := object.NewScalar(x)
	if !object.SameReferent(x.Get(), alias.Get()) {
		t.Fatalf("alias does not share the instance")
	}

	e.dispatch(Inc, x, nil, Flags{})

	names := []string{}
	for _, c := range e.calls {
		names = append(names, c.name)
	}
	if strings.Join(names, ",") != "Big::copy,Big::add_assign" {
		t.Errorf("calls = %v, want copy then add_assign", names)
	}
	if object.SameReferent(x.Get(), alias.Get()) {
		t.Errorf("mutation was aliased into the other cell")
	}
}

func TestNoCopyForUnsharedOperand(t *testing.T) {
	e := newEnv(t)
	e.declare("Big", nil, map[string]object.Object{
		"+=": e.handler("Big::add_assign", func(args []object.Object) (object.Object, error) { return args[0], nil }),
		"=":  e.handler("Big::copy", nil),
	})
	x := e.instance("Big", object.Int(1))
	e.dispatch(Add, x, object.Int(2), Flags{Assign: true})
	if n := e.callCount(); n != 1 || e.lastCall().name != "Big::add_assign" {
		t.Errorf("expected only the assignment handler, got %d calls", n)
	}
	if swappedOf(t, e.lastCall()) != object.Undef {
		t.Errorf("assignment variant must see an undef swapped flag")
	}
}

func TestFallbackLevels(t *testing.T) {
	tests := []struct {
		name     string
		fallback object.Object
		op       Kind
		kind     ResultKind
		strict   bool
		handler  string
	}{
		{"yes substitutes", object.TRUE, Lt, ResultBool, false, "cmp"},
		{"yes uses nomethod", object.TRUE, Mul, ResultValue, false, "nomethod"},
		{"default substitutes", nil, Le, ResultBool, false, "cmp"},
		{"no substitutes", object.Undef, Gt, ResultBool, false, "cmp"},
		{"no skips nomethod", object.Undef, Mul, ResultNotApplicable, true, ""},
		{"never skips substitution", object.FALSE, Lt, ResultValue, false, "nomethod"},
		{"never direct only", object.Int(0), NumCmp, ResultValue, false, "cmp"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newEnv(t)
			e.declare("F", tt.fallback, map[string]object.Object{
				"<=>":      e.handler("cmp", func([]object.Object) (object.Object, error) { return object.Int(1), nil }),
				"nomethod": e.handler("nomethod", nil),
			})
			x := e.instance("F", object.Int(0))

			res := e.dispatch(tt.op, x, object.Int(3), Flags{})
			if res.Kind != tt.kind || res.Strict != tt.strict {
				t.Fatalf("result = %+v, want kind %s strict %v", res, tt.kind, tt.strict)
			}
			if tt.handler != "" && e.lastCall().name != tt.handler {
				t.Errorf("handler = %s, want %s", e.lastCall().name, tt.handler)
			}
		})
	}
}

func TestNeverWithoutHandlerIsStrict(t *testing.T) {
	e := newEnv(t)
	e.declare("N", object.FALSE, map[string]object.Object{
		"<=>": e.handler("cmp", nil),
	})
	x := e.instance("N", object.Int(0))
	res := e.dispatch(Lt, x, object.Int(1), Flags{})
	if res.Applicable() || !res.Strict {
		t.Errorf("Lt under fallback never = %+v, want strict NotApplicable", res)
	}
}

func TestNoMethodReceivesOperatorName(t *testing.T) {
	e := newEnv(t)
	e.declare("M", nil, map[string]object.Object{"nomethod": e.handler("M::nomethod", nil)})
	x := e.instance("M", object.Int(0))

	e.dispatch(Mul, x, object.Int(2), Flags{Assign: true})
	call := e.lastCall()
	if len(call.args) != 4 {
		t.Fatalf("nomethod called with %d args, want 4", len(call.args))
	}
	if call.args[3].(*object.String).Value != "*=" {
		t.Errorf("operator name = %v, want *=", call.args[3])
	}
}

func TestComparisonSigns(t *testing.T) {
	tests := []struct {
		op   Kind
		raw  int64
		want bool
	}{
		{Lt, -1, true}, {Lt, 0, false},
		{Le, 0, true}, {Le, 1, false},
		{Gt, 1, true}, {Gt, 0, false},
		{Ge, 0, true}, {Ge, -1, false},
		{NumEq, 0, true}, {NumEq, 1, false},
		{NumNe, 1, true}, {NumNe, 0, false},
		{StrLt, -1, true}, {StrEq, 0, true}, {StrNe, 0, false}, {StrGe, 1, true},
	}
	for _, tt := range tests {
		e := newEnv(t)
		raw := tt.raw
		cmp := e.handler("cmp", func([]object.Object) (object.Object, error) { return object.Int(raw), nil })
		e.declare("C", nil, map[string]object.Object{"<=>": cmp, "cmp": cmp})
		x := e.instance("C", object.Int(0))

		res := e.dispatch(tt.op, x, object.Int(0), Flags{})
		if res.Kind != ResultBool || res.Truth() != tt.want {
			t.Errorf("%s with three-way %d = %+v, want %v", tt.op, tt.raw, res, tt.want)
		}
	}
}

func TestDirectComparisonResultIsNotCoerced(t *testing.T) {
	e := newEnv(t)
	lt := e.handler("lt", func([]object.Object) (object.Object, error) { return object.Str("maybe"), nil })
	e.declare("C", nil, map[string]object.Object{"<": lt})
	x := e.instance("C", object.Int(0))

	res := e.dispatch(Lt, x, object.Int(0), Flags{})
	if res.Kind != ResultValue {
		t.Fatalf("kind = %s, want value", res.Kind)
	}
	if s, ok := res.Value.(*object.String); !ok || s.Value != "maybe" {
		t.Errorf("value = %v, want the handler's string", res.Value)
	}
}

func TestRightOperandHandler(t *testing.T) {
	e := newEnv(t)
	e.declare("R", nil, map[string]object.Object{
		"-":   e.handler("R::sub", nil),
		"<=>": e.handler("R::cmp", func([]object.Object) (object.Object, error) { return object.Int(-1), nil }),
	})
	x := e.instance("R", object.Int(0))
	five := object.Int(5)

	e.dispatch(Sub, five, x, Flags{})
	call := e.lastCall()
	if call.name != "R::sub" || call.args[0] != x.Get() || call.args[1] != five || swappedOf(t, call) != object.TRUE {
		t.Errorf("right handler called as %+v", call)
	}

	res := e.dispatch(Le, five, x, Flags{})
	if !res.Truth() || swappedOf(t, e.lastCall()) != object.TRUE {
		t.Errorf("comparison through the right table = %+v", res)
	}
}

func TestConcatDoesNotSubstitute(t *testing.T) {
	e := newEnv(t)
	e.declare("S", object.Undef, map[string]object.Object{`""`: e.handler("S::str", nil)})
	x := e.instance("S", object.Int(0))

	res := e.dispatch(Concat, x, object.Str("tail"), Flags{})
	if res.Applicable() || res.Strict {
		t.Errorf("Concat = %+v, want silent NotApplicable", res)
	}
	if e.callCount() != 0 {
		t.Errorf("a handler was called for concatenation")
	}
}

func TestConversionChain(t *testing.T) {
	e := newEnv(t)
	e.declare("S", nil, map[string]object.Object{
		`""`: e.handler("S::str", func([]object.Object) (object.Object, error) { return object.Str(""), nil }),
	})
	x := e.instance("S", object.Int(0))

	res := e.dispatch(Bool, x, nil, Flags{})
	if res.Kind != ResultValue || e.lastCall().name != "S::str" {
		t.Fatalf("bool = %+v", res)
	}
	e.dispatch(Numify, x, nil, Flags{})
	if e.lastCall().name != "S::str" {
		t.Errorf("0+ did not fall back to stringify")
	}
	res = e.dispatch(Not, x, nil, Flags{})
	if res.Kind != ResultBool || !res.Truth() {
		t.Errorf("! of an empty string = %+v, want true", res)
	}
}

func TestAbsSubstitution(t *testing.T) {
	e := newEnv(t)
	storage := func(o object.Object) int64 {
		return object.IntValue(object.Value(o).(*object.Ref).Target().Storage)
	}
	e.declare("A", nil, map[string]object.Object{
		"<": e.handler("A::lt", func(args []object.Object) (object.Object, error) {
			return object.NativeBool(storage(args[0]) < object.IntValue(args[1])), nil
		}),
		"-": e.handler("A::sub", nil),
	})

	neg := e.instance("A", object.Int(-3))
	e.dispatch(Abs, neg, nil, Flags{})
	call := e.lastCall()
	if call.name != "A::sub" || call.args[0] != neg.Get() || object.IntValue(call.args[1]) != 0 || swappedOf(t, call) != object.TRUE {
		t.Errorf("abs of negative called %+v, want sub(x, 0, true)", call)
	}

	pos := e.instance("A", object.Int(3))
	res := e.dispatch(Abs, pos, nil, Flags{})
	if res.Value != pos || e.lastCall().name != "A::lt" {
		t.Errorf("abs of positive = %+v, want the operand itself", res)
	}
}

func TestBuiltinCopy(t *testing.T) {
	e := newEnv(t)
	e.declare("P", nil, map[string]object.Object{"+": e.handler("P::add", nil)})
	x := e.instance("P", object.Int(7))

	res := e.dispatch(Copy, x, nil, Flags{})
	cp, ok := res.Value.(*object.Ref)
	if !ok {
		t.Fatalf("copy = %+v, want a reference", res)
	}
	if object.SameReferent(cp, x.Get()) {
		t.Errorf("copy shares the original instance")
	}
	if cp.Target().Stash().Name() != "P" || object.IntValue(cp.Target().Storage) != 7 {
		t.Errorf("copy = %s", cp.Inspect())
	}
}

func TestCopyMustReturnReference(t *testing.T) {
	e := newEnv(t)
	e.declare("Bad", nil, map[string]object.Object{
		"=": e.handler("Bad::copy", func([]object.Object) (object.Object, error) { return object.Int(1), nil }),
	})
	x := e.instance("Bad", object.Int(0))
	if _, err := e.d.Dispatch(Copy, x, nil, Flags{}); !errors.Is(err, ErrCopyNotReference) {
		t.Errorf("expected ErrCopyNotReference, got %v", err)
	}
}

func TestHandlerErrorIsReturnedUnmodified(t *testing.T) {
	e := newEnv(t)
	boom := errors.New("boom")
	e.declare("E", nil, map[string]object.Object{
		"+": e.handler("E::add", func([]object.Object) (object.Object, error) { return nil, boom }),
	})
	x := e.instance("E", object.Int(0))
	if _, err := e.d.Dispatch(Add, x, x, Flags{}); err != boom {
		t.Errorf("error = %v, want the handler's own error value", err)
	}
}

func TestStubResolvedAtDispatch(t *testing.T) {
	e := newEnv(t)
	loads := 0
	stub := &object.Stub{Name: "L::add", Load: func() (object.Callable, error) {
		loads++
		return e.handler("L::add", nil), nil
	}}
	e.declare("L", nil, map[string]object.Object{"+": stub})
	c, _ := e.tbl.Lookup("L")

	tbl, err := e.upd.Ensure(c)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if tbl.Handler(Add) != stub || loads != 0 {
		t.Fatalf("stub must be recorded unresolved (loads=%d)", loads)
	}

	x := e.instance("L", object.Int(0))
	e.dispatch(Add, x, x, Flags{})
	e.dispatch(Add, x, x, Flags{})
	if loads != 1 || e.callCount() != 2 {
		t.Errorf("loads=%d calls=%d, want 1 and 2", loads, e.callCount())
	}
}

func TestMethodNameEntries(t *testing.T) {
	e := newEnv(t)
	e.tbl.Declare("Base")
	add := e.handler("Base::add", nil)
	e.tbl.DefineMethod("Base", "add", add)
	e.tbl.SetParents("Derived", "Base")
	e.declare("Derived", nil, map[string]object.Object{"+": &object.MethodName{Name: "add"}})

	d, _ := e.tbl.Lookup("Derived")
	tbl, err := e.upd.Ensure(d)
	if err != nil {
		t.Fatalf("Ensure: %v", err)
	}
	if tbl.Handler(Add) != add {
		t.Errorf("method-name entry bound to %v", tbl.Handler(Add))
	}

	e.declare("Broken", nil, map[string]object.Object{"-": &object.MethodName{Name: "missing"}})
	b, _ := e.tbl.Lookup("Broken")
	_, err = e.upd.Ensure(b)
	var ce *ConfigurationError
	if !errors.As(err, &ce) || !errors.Is(err, ErrConfiguration) || ce.Method != "missing" {
		t.Errorf("expected ConfigurationError, got %v", err)
	}
}

func TestNonCallableEntry(t *testing.T) {
	e := newEnv(t)
	e.tbl.Declare("V")
	e.tbl.DefineOverload("V", "*", object.Int(3))
	x := e.instance("V", object.Int(0))

	_, err := e.d.Dispatch(Mul, x, x, Flags{})
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected a configuration error, got %v", err)
	}
}

func TestRebuildIsRepeatable(t *testing.T) {
	e := newEnv(t)
	e.declare("T", object.Undef, map[string]object.Object{
		"+":   e.handler("T::add", nil),
		"+=":  e.handler("T::add_assign", nil),
		`""`:  e.handler("T::str", nil),
		"@{}": e.handler("T::array", nil),
	})
	c, _ := e.tbl.Lookup("T")

	a, err := e.upd.Rebuild(c)
	if err != nil {
		t.Fatalf("Rebuild: %v", err)
	}
	b, _ := e.upd.Rebuild(c)
	if !a.SameSlots(b) || a.Stamp() != b.Stamp() {
		t.Errorf("two rebuilds differ")
	}

	first, _ := e.upd.Ensure(c)
	second, _ := e.upd.Ensure(c)
	if first != second {
		t.Errorf("Ensure rebuilt a current table")
	}
	e.tbl.DefineOverload("T", "-", e.handler("T::sub", nil))
	third, _ := e.upd.Ensure(c)
	if third == first || third.Handler(Sub) == nil {
		t.Errorf("Ensure kept a stale table")
	}
	if first.Fallback() != FallbackNo || len(first.Entries()) != 4 {
		t.Errorf("fallback=%s entries=%d", first.Fallback(), len(first.Entries()))
	}
}

func TestInvalidateCachesRebuildsTable(t *testing.T) {
	e := newEnv(t)
	e.declare("I", nil, map[string]object.Object{"+": e.handler("I::add", nil)})
	c, _ := e.tbl.Lookup("I")

	first, _ := e.upd.Ensure(c)
	e.tbl.InvalidateCaches("I")
	second, _ := e.upd.Ensure(c)
	if first == second || !first.SameSlots(second) {
		t.Errorf("cache invalidation should rebuild an identical table")
	}
}

func TestInheritedOverloads(t *testing.T) {
	e := newEnv(t)
	e.declare("Base", nil, map[string]object.Object{"+": e.handler("Base::add", nil)})
	e.tbl.SetParents("Child", "Base")
	x := e.instance("Child", object.Int(0))

	e.dispatch(Add, x, x, Flags{})
	if e.lastCall().name != "Base::add" {
		t.Fatalf("inherited handler not used")
	}
	e.tbl.DefineOverload("Base", "*", e.handler("Base::mul", nil))
	e.dispatch(Mul, x, x, Flags{})
	if e.lastCall().name != "Base::mul" {
		t.Errorf("handler added to the parent is not visible")
	}
}

func TestPlainOperandsAreNotApplicable(t *testing.T) {
	e := newEnv(t)
	res := e.dispatch(Add, object.Int(1), object.Int(2), Flags{})
	if res.Applicable() || res.Strict {
		t.Errorf("plain operands = %+v", res)
	}

	e.tbl.Declare("Plain")
	x := e.instance("Plain", object.Int(0))
	if res := e.dispatch(Add, x, x, Flags{}); res.Applicable() || res.Strict {
		t.Errorf("class without overloading = %+v", res)
	}
}

func TestDisabled(t *testing.T) {
	e := newEnv(t)
	e.declare("D", nil, map[string]object.Object{"+": e.handler("D::add", nil)})
	x := e.instance("D", object.Int(0))
	if res := e.dispatch(Add, x, x, Flags{Disabled: true}); res.Applicable() || e.callCount() != 0 {
		t.Errorf("disabled dispatch = %+v", res)
	}
}

func TestAssignFallsBackToBaseHandler(t *testing.T) {
	e := newEnv(t)
	e.declare("A", nil, map[string]object.Object{"+": e.handler("A::add", nil)})
	x := e.instance("A", object.Int(0))

	e.dispatch(Add, x, object.Int(1), Flags{Assign: true})
	if e.lastCall().name != "A::add" || swappedOf(t, e.lastCall()) != object.Undef {
		t.Errorf("+= should call + with an undef swapped flag")
	}

	e2 := newEnv(t)
	e2.declare("N", object.FALSE, map[string]object.Object{"+": e2.handler("N::add", nil)})
	y := e2.instance("N", object.Int(0))
	res := e2.dispatch(Add, y, object.Int(1), Flags{Assign: true})
	if res.Applicable() || !res.Strict {
		t.Errorf("+= under fallback never = %+v", res)
	}
}

func TestNoMethodErrorMessage(t *testing.T) {
	e := newEnv(t)
	e.declare("Vec", object.FALSE, map[string]object.Object{"+": e.handler("Vec::add", nil)})
	x := e.instance("Vec", object.Int(0))

	err := e.d.NoMethodError(Mul, x, object.Int(1), Flags{})
	want := "Operation \"*\": no method found,\n\tleft argument in overloaded package Vec,\n\tright argument has no overloaded magic."
	if err.Error() != want {
		t.Errorf("message = %q", err.Error())
	}
	unary := e.d.NoMethodError(Neg, x, nil, Flags{})
	if unary.Error() != "Operation \"neg\": no method found, argument in overloaded package Vec." {
		t.Errorf("unary message = %q", unary.Error())
	}
}

func TestHandlerMayMutateClasses(t *testing.T) {
	e := newEnv(t)
	e.declare("Mut", nil, map[string]object.Object{
		"+": e.handler("Mut::add", func([]object.Object) (object.Object, error) {
			return object.Undef, e.tbl.DefineOverload("Mut", "-", e.handler("Mut::sub", nil))
		}),
	})
	x := e.instance("Mut", object.Int(0))
	e.dispatch(Add, x, x, Flags{})
	e.dispatch(Sub, x, x, Flags{})
	if e.lastCall().name != "Mut::sub" {
		t.Errorf("handler defined during dispatch not visible")
	}
}

func TestCustomInvoker(t *testing.T) {
	e := newEnv(t)
	e.declare("I", nil, map[string]object.Object{"+": e.handler("I::add", nil)})
	seen := 0
	d := NewDispatcher(e.upd, WithInvoker(InvokerFunc(func(fn object.Callable, args []object.Object) (object.Object, error) {
		seen++
		return fn.Call(args)
	})))
	x := e.instance("I", object.Int(0))
	if _, err := d.Dispatch(Add, x, x, Flags{}); err != nil || seen != 1 {
		t.Errorf("invoker used %d times, err %v", seen, err)
	}
}
