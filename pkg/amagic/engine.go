// Package amagic is the embedding API of the method resolution and
// operator overloading engine.
//
// Handlers are Go functions. Operator handlers receive the two operands and
// the swapped flag:
//
//	e := amagic.New(amagic.WithLogger(log.Default()))
//	e.Declare("Vector")
//	e.Define("Vector", "add", func(a, b amagic.Object, swapped amagic.Object) (amagic.Object, error) {
//		...
//	})
//	e.Overload("Vector", true, map[string]any{"+": amagic.Method("add")})
//	v, _ := e.Bless("Vector", []int{1, 2})
//	res, err := e.Operate("+", v, w)
package amagic

import (
	"context"
	"fmt"
	"log"

	"github.com/funvibe/amagic/internal/classdef"
	"github.com/funvibe/amagic/internal/diagnostics"
	"github.com/funvibe/amagic/internal/method"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/overload"
	"github.com/funvibe/amagic/internal/store"
	"github.com/funvibe/amagic/internal/symbols"
	"github.com/google/uuid"
)

type (
	Object        = object.Object
	Operator      = overload.Kind
	Result        = overload.Result
	Flags         = overload.Flags
	LookupOptions = method.Options
	Diagnostic    = diagnostics.Diagnostic
)

// Engine wraps one class table with its resolver and dispatcher.
type Engine struct {
	id         uuid.UUID
	table      *symbols.Table
	resolver   *method.Resolver
	dispatcher *overload.Dispatcher
	invoker    overload.Invoker
	registry   *classdef.Registry
	marshaller *Marshaller
}

type settings struct {
	logger  *log.Logger
	verbose bool
	sinks   []diagnostics.Sink
	invoker overload.Invoker
}

type Option func(*settings)

// WithLogger prints warnings to l.
func WithLogger(l *log.Logger) Option {
	return func(s *settings) { s.logger = l }
}

// WithVerbose also logs debug diagnostics (shadowed ancestors, AUTOLOAD).
func WithVerbose(v bool) Option {
	return func(s *settings) { s.verbose = v }
}

// WithSink adds a diagnostic sink. May be given more than once.
func WithSink(sink diagnostics.Sink) Option {
	return func(s *settings) { s.sinks = append(s.sinks, sink) }
}

// WithInvoker routes every handler call through inv.
func WithInvoker(inv overload.Invoker) Option {
	return func(s *settings) { s.invoker = inv }
}

// New creates an engine with an empty class table.
func New(opts ...Option) *Engine {
	var s settings
	for _, opt := range opts {
		opt(&s)
	}

	sinks := s.sinks
	if s.logger != nil {
		sinks = append(sinks, &diagnostics.LogSink{Logger: s.logger, Verbose: s.verbose})
	}
	var sink diagnostics.Sink = diagnostics.Discard
	switch len(sinks) {
	case 0:
	case 1:
		sink = sinks[0]
	default:
		sink = diagnostics.Multi(sinks)
	}

	inv := s.invoker
	if inv == nil {
		inv = overload.DirectInvoker
	}

	t := symbols.NewTable(symbols.WithSink(sink))
	res := method.New(t, nil)
	return &Engine{
		id:         uuid.New(),
		table:      t,
		resolver:   res,
		dispatcher: overload.NewDispatcher(overload.NewUpdater(res), overload.WithInvoker(inv)),
		invoker:    inv,
		registry:   classdef.NewRegistry(),
		marshaller: NewMarshaller(),
	}
}

// ID identifies this engine instance.
func (e *Engine) ID() uuid.UUID { return e.id }

func (e *Engine) Table() *symbols.Table        { return e.table }
func (e *Engine) Registry() *classdef.Registry { return e.registry }
func (e *Engine) Marshaller() *Marshaller      { return e.marshaller }

// Method names a method to bind an operator to when the overload table is
// built, as in {"+": Method("add")}.
func Method(name string) Object { return &object.MethodName{Name: name} }

// Declare creates class with the given parents. Calling it again replaces
// the parent list.
func (e *Engine) Declare(class string, parents ...string) error {
	return e.table.SetParents(class, parents...)
}

// SetMRO selects "dfs" or "c3" for class.
func (e *Engine) SetMRO(class, kind string) error {
	k, err := symbols.ParseMROKind(kind)
	if err != nil {
		return err
	}
	return e.table.SetMRO(class, k)
}

// Define installs fn as method name of class. fn is an Object or any Go
// function accepted by Marshaller.Wrap.
func (e *Engine) Define(class, name string, fn interface{}) error {
	v, err := e.methodValue(class, name, fn)
	if err != nil {
		return err
	}
	return e.table.DefineMethod(class, name, v)
}

// Undefine removes an own method of class.
func (e *Engine) Undefine(class, name string) bool {
	return e.table.UndefineMethod(class, name)
}

// Register makes fn available to manifests and snapshots under key.
func (e *Engine) Register(key string, fn interface{}) error {
	bf, err := e.marshaller.Wrap(fn)
	if err != nil {
		return fmt.Errorf("register %s: %w", key, err)
	}
	e.registry.Register(key, bf)
	return nil
}

// Overload declares overloaded operators on class. fallback is nil to leave
// the indicator absent; otherwise it is converted with ToValue.
func (e *Engine) Overload(class string, fallback interface{}, handlers map[string]interface{}) error {
	var fb Object
	if fallback != nil {
		v, err := e.marshaller.ToValue(fallback)
		if err != nil {
			return fmt.Errorf("%s: fallback: %w", class, err)
		}
		fb = v
	}
	converted := make(map[string]Object, len(handlers))
	for tok, h := range handlers {
		v, err := e.methodValue(class, "("+tok, h)
		if err != nil {
			return err
		}
		converted[tok] = v
	}
	return overload.Declare(e.table, class, fb, converted)
}

// FallbackUndef is passed as the fallback of Overload for the "defined but
// undef" level.
var FallbackUndef Object = object.Undef

func (e *Engine) methodValue(class, name string, fn interface{}) (Object, error) {
	if obj, ok := fn.(Object); ok {
		return obj, nil
	}
	bf, err := e.marshaller.Wrap(fn)
	if err != nil {
		return nil, fmt.Errorf("%s::%s: %w", class, name, err)
	}
	return &object.Builtin{Name: class + "::" + name, Fn: bf}, nil
}

// Bless creates an instance of class around storage and returns a scalar
// cell holding the reference.
func (e *Engine) Bless(class string, storage interface{}) (*object.Scalar, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	v, err := e.marshaller.ToValue(storage)
	if err != nil {
		return nil, err
	}
	return object.NewScalar(object.Bless(c, v)), nil
}

// ResolveMethod returns the value bound to name for class, or nil.
func (e *Engine) ResolveMethod(class, name string, opts LookupOptions) (Object, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	return e.resolver.Resolve(c, name, opts)
}

// Lookup is ResolveMethod reporting the defining class.
func (e *Engine) Lookup(class, name string, opts LookupOptions) (*method.Hit, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	return e.resolver.Lookup(c, name, opts)
}

// FetchMethod resolves a method call, including qualified names and
// SUPER::. autoload enables the AUTOLOAD fallback.
func (e *Engine) FetchMethod(class, name string, autoload bool) (*method.Fetched, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	return e.resolver.FetchMethod(c, name, method.FetchOptions{Autoload: autoload})
}

// Call invokes method name on invocant with args converted by ToValue.
// The invocant is the class of a blessed reference or a class name.
func (e *Engine) Call(invocant interface{}, name string, args ...interface{}) (Object, error) {
	inv, err := e.marshaller.ToValue(invocant)
	if err != nil {
		return nil, err
	}
	class := e.dispatcher.ClassOf(inv)
	if class == nil {
		s, ok := object.Value(inv).(*object.String)
		if !ok {
			return nil, fmt.Errorf("can't call method %q on unblessed value", name)
		}
		if class, err = e.table.Get(s.Value); err != nil {
			return nil, err
		}
	}
	f, err := e.resolver.FetchMethod(class, name, method.FetchOptions{Autoload: true})
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, fmt.Errorf("can't locate object method %q via package %q", name, class.Name())
	}
	fn, ok := f.Value.(object.Callable)
	if !ok {
		return nil, fmt.Errorf("%s is not callable", f.Name)
	}

	callArgs := make([]Object, 0, len(args)+1)
	callArgs = append(callArgs, inv)
	for _, a := range args {
		v, err := e.marshaller.ToValue(a)
		if err != nil {
			return nil, err
		}
		callArgs = append(callArgs, v)
	}
	return e.invoker.Invoke(fn, callArgs)
}

// IsA reports whether class inherits from other.
func (e *Engine) IsA(class, other string) (bool, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return false, err
	}
	return e.resolver.IsA(c, other)
}

// MRO returns the linearization of class as names.
func (e *Engine) MRO(class string) ([]string, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	lin, err := e.resolver.Linearizer().Linearize(c)
	if err != nil {
		return nil, err
	}
	return lin.Names(), nil
}

// GetOverloadTable returns the current overload table of class, rebuilding
// it if stale.
func (e *Engine) GetOverloadTable(class string) (*overload.Table, error) {
	c, err := e.table.Get(class)
	if err != nil {
		return nil, err
	}
	return e.dispatcher.Updater().Ensure(c)
}

// DispatchOperator runs the overload protocol for op.
func (e *Engine) DispatchOperator(op Operator, left, right Object, flags Flags) (Result, error) {
	return e.dispatcher.Dispatch(op, left, right, flags)
}

// Operate dispatches the operator written as token ("+", "+=", "neg",
// "<=>"). Operands are converted with ToValue. A strict miss is returned
// as a *overload.NoMethodError.
func (e *Engine) Operate(token string, left, right interface{}) (Result, error) {
	op, assign, err := overload.ParseOperator(token)
	if err != nil {
		return Result{}, err
	}
	l, err := e.marshaller.ToValue(left)
	if err != nil {
		return Result{}, err
	}
	var r Object
	if !op.Unary() {
		if r, err = e.marshaller.ToValue(right); err != nil {
			return Result{}, err
		}
	}
	flags := Flags{Assign: assign}
	res, err := e.dispatcher.Dispatch(op, l, r, flags)
	if err != nil {
		return res, err
	}
	if !res.Applicable() && res.Strict {
		return res, e.dispatcher.NoMethodError(op, l, r, flags)
	}
	return res, nil
}

// Deref applies overloaded dereference op to operand until it yields a
// plain reference.
func (e *Engine) Deref(op Operator, operand Object) (Object, error) {
	return e.dispatcher.Deref(op, operand)
}

// LoadManifest reads path and declares its classes. Builtins are looked up
// in the engine registry.
func (e *Engine) LoadManifest(path string) (*classdef.Manifest, error) {
	m, err := classdef.LoadManifest(path)
	if err != nil {
		return nil, err
	}
	if err := e.ApplyManifest(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (e *Engine) ApplyManifest(m *classdef.Manifest) error {
	return m.Apply(e.table, e.registry)
}

// Save writes the class table to the SQLite database at dsn.
func (e *Engine) Save(ctx context.Context, dsn, name string) (*store.Info, error) {
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Save(ctx, name, e.table, e.registry)
}

// Load declares the classes of snapshot name from the database at dsn.
func (e *Engine) Load(ctx context.Context, dsn, name string) (*store.Info, error) {
	s, err := store.Open(ctx, dsn)
	if err != nil {
		return nil, err
	}
	defer s.Close()
	return s.Load(ctx, name, e.table, e.registry)
}
