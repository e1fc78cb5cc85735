package overload

import (
	"fmt"

	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

type ResultKind int

const (
	// ResultNotApplicable tells the caller to use built-in semantics.
	ResultNotApplicable ResultKind = iota
	ResultValue
	ResultBool
)

func (k ResultKind) String() string {
	switch k {
	case ResultValue:
		return "value"
	case ResultBool:
		return "bool"
	default:
		return "not-applicable"
	}
}

// Result is the outcome of one dispatch.
type Result struct {
	Kind  ResultKind
	Value object.Object
	// Strict is only meaningful for ResultNotApplicable: an involved class
	// asked for a hard failure when no built-in behaviour applies.
	Strict bool
}

func (r Result) Applicable() bool { return r.Kind != ResultNotApplicable }

// Truth is the boolean of a ResultBool.
func (r Result) Truth() bool { return r.Kind == ResultBool && object.Truthy(r.Value) }

func notApplicable(strict bool) Result {
	return Result{Kind: ResultNotApplicable, Strict: strict}
}

// Flags qualify one operator use at the call site.
type Flags struct {
	// Disabled means overloading is switched off lexically for this call.
	Disabled bool
	// Assign selects the assignment form of the operator (+= rather than +).
	Assign bool
}

// Invoker is the host call primitive.
type Invoker interface {
	Invoke(fn object.Callable, args []object.Object) (object.Object, error)
}

type InvokerFunc func(fn object.Callable, args []object.Object) (object.Object, error)

func (f InvokerFunc) Invoke(fn object.Callable, args []object.Object) (object.Object, error) {
	return f(fn, args)
}

// DirectInvoker calls the callable itself.
var DirectInvoker Invoker = InvokerFunc(func(fn object.Callable, args []object.Object) (object.Object, error) {
	return fn.Call(args)
})

// Dispatcher runs the operator protocol. It holds no per-call state and no
// lock while handlers run, so handlers may redefine classes.
type Dispatcher struct {
	updater *Updater
	invoker Invoker
}

type Option func(*Dispatcher)

func WithInvoker(inv Invoker) Option {
	return func(d *Dispatcher) { d.invoker = inv }
}

func NewDispatcher(u *Updater, opts ...Option) *Dispatcher {
	d := &Dispatcher{updater: u, invoker: DirectInvoker}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) Updater() *Updater { return d.updater }

// selection is the handler chosen for one call and how to call it.
type selection struct {
	fn         object.Object
	kind       Kind // slot the handler came from
	assignSlot bool
	right      bool // handler belongs to the right operand
	a, b       object.Object

	post      bool // derive the result (comparisons, !, ++/-- write-back)
	forceCopy bool
	notFound  bool // generic nomethod call
}

// call is one run of the protocol.
type call struct {
	op          Kind
	left, right object.Object
	lt, rt      *Table
	assign      bool // assignment form requested by the caller
	assignCall  bool // handler is told it runs as an assignment
}

// Dispatch resolves op for the operands and invokes the chosen handler.
// right is ignored for unary operators and may be nil. A handler error is
// returned as is.
func (d *Dispatcher) Dispatch(op Kind, left, right object.Object, flags Flags) (Result, error) {
	if !op.Valid() {
		return Result{}, fmt.Errorf("invalid operator %d", int(op))
	}
	if flags.Disabled {
		return notApplicable(false), nil
	}
	return d.dispatch(op, left, right, flags.Assign && op.HasAssign(), op.Unary())
}

func (d *Dispatcher) dispatch(op Kind, left, right object.Object, assign, noRight bool) (Result, error) {
	if left == nil {
		left = object.Undef
	}
	if right == nil {
		right = object.Undef
	}
	c := &call{op: op, left: left, right: right, assign: assign, assignCall: assign}

	var err error
	if c.lt, err = d.tableOf(left); err != nil {
		return Result{}, err
	}
	if !noRight {
		if c.rt, err = d.tableOf(right); err != nil {
			return Result{}, err
		}
	}

	s, res, done, err := d.selectHandler(c)
	if done || err != nil {
		return res, err
	}

	if (s.kind == op && s.assignSlot == c.assign && (c.assign || op == Inc || op == Dec)) || s.forceCopy {
		if err := d.copyBeforeMutate(left); err != nil {
			return Result{}, err
		}
	}
	return d.invoke(c, s)
}

// selectHandler walks the decision tree: direct left handler, unary
// substitution, direct right handler, comparison substitution, nomethod.
func (d *Dispatcher) selectHandler(c *call) (*selection, Result, bool, error) {
	s := &selection{kind: c.op, a: c.left, b: c.right}
	lt, rt := c.lt, c.rt

	if lt != nil {
		if c.assign {
			if h := lt.AssignHandler(c.op); h != nil {
				s.fn, s.assignSlot = h, true
			} else if lt.fallback > FallbackNever {
				s.fn = lt.Handler(c.op)
			}
		} else {
			s.fn = lt.Handler(c.op)
		}
		if s.fn != nil {
			return s, Result{}, false, nil
		}
	}

	switch {
	case lt != nil && lt.fallback > FallbackNever && c.op.Unary():
		res, done, err := d.substituteUnary(c, s)
		if done || err != nil {
			return nil, res, true, err
		}
		if s.fn != nil {
			return s, Result{}, false, nil
		}

	case rt != nil && rt.Handler(c.op) != nil:
		s.fn, s.right = rt.Handler(c.op), true
		s.a, s.b = c.right, c.left
		return s, Result{}, false, nil

	case !c.op.Unary() && (lt.permits() || rt.permits()):
		if c.op.Family() == FamilyString {
			// Concatenation and repetition use string conversion instead.
			return nil, notApplicable(false), true, nil
		}
		if substituteCompare(c, s) {
			return s, Result{}, false, nil
		}
	}

	return d.noMethod(c, s)
}

// permits reports whether substitution may use this table.
func (t *Table) permits() bool { return t != nil && t.fallback > FallbackNever }

func (d *Dispatcher) noMethod(c *call, s *selection) (*selection, Result, bool, error) {
	if c.op.IsDeref() {
		return nil, notApplicable(false), true, nil
	}
	lt, rt := c.lt, c.rt
	switch {
	case lt != nil && lt.fallback != FallbackNo && lt.Handler(NoMethod) != nil:
		s.fn, s.kind, s.assignSlot, s.right = lt.Handler(NoMethod), NoMethod, false, false
		s.a, s.b = c.left, c.right
	case rt != nil && rt.fallback != FallbackNo && rt.Handler(NoMethod) != nil:
		s.fn, s.kind, s.assignSlot, s.right = rt.Handler(NoMethod), NoMethod, false, true
		s.a, s.b = c.right, c.left
	default:
		strict := (lt != nil && lt.fallback < FallbackYes) || (rt != nil && rt.fallback < FallbackYes)
		return nil, notApplicable(strict), true, nil
	}
	s.notFound = true
	s.post = false
	s.forceCopy = s.forceCopy || c.assign
	return s, Result{}, false, nil
}

func (d *Dispatcher) invoke(c *call, s *selection) (Result, error) {
	fn, err := callableOf(s.fn)
	if err != nil {
		return Result{}, err
	}

	var swapped object.Object = object.FALSE
	switch {
	case s.right:
		swapped = object.TRUE
	case c.assignCall:
		swapped = object.Undef
	}
	args := []object.Object{object.Value(s.a), object.Value(s.b), swapped}
	if s.notFound {
		name := c.op.Token()
		if c.assign {
			name = c.op.AssignToken()
		}
		args = append(args, object.Str(name))
	}

	res, err := d.invoker.Invoke(fn, args)
	if err != nil {
		return Result{}, err
	}
	if res == nil {
		res = object.Undef
	}
	return d.postprocess(c, s, res)
}

func (d *Dispatcher) postprocess(c *call, s *selection, res object.Object) (Result, error) {
	if s.post {
		var ans bool
		n := object.Numeric(res)
		switch c.op {
		case Le, StrLe:
			ans = n <= 0
		case Lt, StrLt:
			ans = n < 0
		case Ge, StrGe:
			ans = n >= 0
		case Gt, StrGt:
			ans = n > 0
		case NumEq, StrEq:
			ans = n == 0
		case NumNe, StrNe:
			ans = n != 0
		case Inc, Dec:
			return writeBack(c.left, res), nil
		case Not:
			ans = !object.Truthy(res)
		}
		return Result{Kind: ResultBool, Value: object.NativeBool(ans)}, nil
	}

	switch {
	case c.op == Copy && !s.notFound:
		if _, ok := object.Value(res).(*object.Ref); !ok {
			return Result{}, ErrCopyNotReference
		}
	case (c.op == Inc || c.op == Dec) && !s.notFound:
		if s.kind == c.op {
			// The mutator changed the operand in place.
			return Result{Kind: ResultValue, Value: c.left}, nil
		}
		return writeBack(c.left, res), nil
	}
	return Result{Kind: ResultValue, Value: res}, nil
}

// writeBack stores res into the left operand's cell and returns the cell.
func writeBack(left, res object.Object) Result {
	if sc, ok := left.(*object.Scalar); ok {
		sc.Set(res)
		return Result{Kind: ResultValue, Value: sc}
	}
	return Result{Kind: ResultValue, Value: res}
}

// copyBeforeMutate gives the left cell its own instance when another cell
// shares it, using the class's copy handler.
func (d *Dispatcher) copyBeforeMutate(left object.Object) error {
	sc, ok := left.(*object.Scalar)
	if !ok {
		return nil
	}
	ref, ok := sc.Get().(*object.Ref)
	if !ok || ref.Target().RefCount() <= 1 {
		return nil
	}
	res, err := d.dispatch(Copy, sc, nil, false, true)
	if err != nil {
		return err
	}
	if !res.Applicable() {
		return nil
	}
	nr, ok := object.Value(res.Value).(*object.Ref)
	if !ok {
		return ErrCopyNotReference
	}
	sc.Set(nr)
	return nil
}

func callableOf(h object.Object) (object.Callable, error) {
	if stub, ok := h.(*object.Stub); ok {
		return stub.Resolve()
	}
	fn, ok := h.(object.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable: %w", h.Inspect(), ErrConfiguration)
	}
	return fn, nil
}

// ClassOf returns the class an operand is blessed into, or nil.
func (d *Dispatcher) ClassOf(o object.Object) *symbols.Class {
	ref, ok := object.Value(o).(*object.Ref)
	if !ok {
		return nil
	}
	st := ref.Target().Stash()
	if st == nil {
		return nil
	}
	tbl := d.updater.res.Table()
	if c, ok := st.(*symbols.Class); ok && c.Table() == tbl {
		return c
	}
	c, _ := tbl.Lookup(st.Name())
	return c
}

// tableOf returns the overload table of an overloaded operand, or nil.
func (d *Dispatcher) tableOf(o object.Object) (*Table, error) {
	c := d.ClassOf(o)
	if c == nil {
		return nil, nil
	}
	t, err := d.updater.Ensure(c)
	if err != nil {
		return nil, err
	}
	if !t.amagic {
		return nil, nil
	}
	return t, nil
}

// NoMethodError builds the caller-side failure for a strict result.
func (d *Dispatcher) NoMethodError(op Kind, left, right object.Object, flags Flags) *NoMethodError {
	e := &NoMethodError{Operator: op.Token(), Unary: op.Unary()}
	if flags.Assign && op.HasAssign() {
		e.Operator = op.AssignToken()
	}
	if t, err := d.tableOf(left); err == nil && t != nil {
		e.Left = t.class
	}
	if !e.Unary {
		if t, err := d.tableOf(right); err == nil && t != nil {
			e.Right = t.class
		}
	}
	return e
}
