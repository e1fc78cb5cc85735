package object

import (
	"errors"
	"fmt"
	"sync"
)

type BuiltinFunction func(args ...Object) (Object, error)

// Builtin is a host-implemented method body.
type Builtin struct {
	Fn   BuiltinFunction
	Name string // Fully qualified name, e.g. "Vector::add"
}

func (b *Builtin) Type() ObjectType { return BUILTIN_OBJ }
func (b *Builtin) Inspect() string {
	if b.Name == "" {
		return "CODE(builtin)"
	}
	return "CODE(" + b.Name + ")"
}
func (b *Builtin) Hash() uint32 { return hashString(fmt.Sprintf("%p", b)) }

func (b *Builtin) Call(args []Object) (Object, error) {
	if b.Fn == nil {
		return nil, fmt.Errorf("undefined subroutine &%s called", b.Name)
	}
	return b.Fn(args...)
}

// ErrStubUnresolved is returned when a stub has no loader.
var ErrStubUnresolved = errors.New("stub has no definition")

// Stub is a forward declaration whose body is loaded on first call.
// Stubs are never cached by the method resolver.
type Stub struct {
	Name string
	Load func() (Callable, error)

	once   sync.Once
	loaded Callable
	err    error
}

func (s *Stub) Type() ObjectType { return STUB_OBJ }
func (s *Stub) Inspect() string  { return "CODE(stub " + s.Name + ")" }
func (s *Stub) Hash() uint32     { return hashString("stub:" + s.Name) }

// Resolve loads the stub body once.
func (s *Stub) Resolve() (Callable, error) {
	s.once.Do(func() {
		if s.Load == nil {
			s.err = fmt.Errorf("%s: %w", s.Name, ErrStubUnresolved)
			return
		}
		s.loaded, s.err = s.Load()
		if s.err == nil && s.loaded == nil {
			s.err = fmt.Errorf("%s: %w", s.Name, ErrStubUnresolved)
		}
	})
	return s.loaded, s.err
}

func (s *Stub) Call(args []Object) (Object, error) {
	fn, err := s.Resolve()
	if err != nil {
		return nil, err
	}
	return fn.Call(args)
}

// MethodName names a method to be resolved against the class that owns an
// overload entry, e.g. `'+' => 'add'`.
type MethodName struct {
	Name string
}

func (m *MethodName) Type() ObjectType { return METHOD_NAME_OBJ }
func (m *MethodName) Inspect() string  { return "method " + m.Name }
func (m *MethodName) Hash() uint32     { return hashString("method:" + m.Name) }

// IsRealCallable reports whether o can be cached as a resolved method body.
func IsRealCallable(o Object) bool {
	switch o.(type) {
	case *Stub:
		return false
	case Callable:
		return true
	default:
		return false
	}
}
