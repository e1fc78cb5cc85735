package classdef

import (
	"fmt"
	"sort"
	"sync"

	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/overload"
	"github.com/funvibe/amagic/internal/symbols"
	"gopkg.in/yaml.v3"
)

// Registry maps manifest keys to host functions. It remembers which key
// every value it produced came from, so a table can be saved and rebound.
type Registry struct {
	mu    sync.RWMutex
	fns   map[string]object.BuiltinFunction
	bound map[object.Object]binding
}

type binding struct {
	key  string
	lazy bool
}

func NewRegistry() *Registry {
	return &Registry{
		fns:   make(map[string]object.BuiltinFunction),
		bound: make(map[object.Object]binding),
	}
}

// Register binds key to fn, replacing any previous binding.
func (r *Registry) Register(key string, fn object.BuiltinFunction) {
	r.mu.Lock()
	r.fns[key] = fn
	r.mu.Unlock()
}

func (r *Registry) Lookup(key string) (object.BuiltinFunction, bool) {
	r.mu.RLock()
	fn, ok := r.fns[key]
	r.mu.RUnlock()
	return fn, ok
}

// Keys returns the registered keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	keys := make([]string, 0, len(r.fns))
	for k := range r.fns {
		keys = append(keys, k)
	}
	r.mu.RUnlock()
	sort.Strings(keys)
	return keys
}

// Builtin returns a callable for key named qualified.
func (r *Registry) Builtin(key, qualified string) (*object.Builtin, error) {
	fn, ok := r.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("%s: unknown builtin %q", qualified, key)
	}
	b := &object.Builtin{Name: qualified, Fn: fn}
	r.mu.Lock()
	r.bound[b] = binding{key: key}
	r.mu.Unlock()
	return b, nil
}

// Stub returns a forward declaration that looks key up on first call.
// The key does not have to be registered yet.
func (r *Registry) Stub(key, qualified string) *object.Stub {
	s := &object.Stub{Name: qualified, Load: func() (object.Callable, error) {
		fn, ok := r.Lookup(key)
		if !ok {
			return nil, fmt.Errorf("%s: unknown builtin %q", qualified, key)
		}
		return &object.Builtin{Name: qualified, Fn: fn}, nil
	}}
	r.mu.Lock()
	r.bound[s] = binding{key: key, lazy: true}
	r.mu.Unlock()
	return s
}

// KeyOf reports the key v was produced from by Builtin or Stub.
func (r *Registry) KeyOf(v object.Object) (key string, lazy bool, ok bool) {
	r.mu.RLock()
	b, ok := r.bound[v]
	r.mu.RUnlock()
	return b.key, b.lazy, ok
}

// Apply declares every class of the manifest in t. Classes are declared
// before any method is bound, so parents may appear later in the file.
func (m *Manifest) Apply(t *symbols.Table, reg *Registry) error {
	for _, c := range m.Classes {
		if err := t.SetParents(c.Name, c.Parents...); err != nil {
			return fmt.Errorf("%s: class %s: %w", m.path, c.Name, err)
		}
		kind, _ := symbols.ParseMROKind(c.MRO)
		if err := t.SetMRO(c.Name, kind); err != nil {
			return fmt.Errorf("%s: class %s: %w", m.path, c.Name, err)
		}
	}

	for _, c := range m.Classes {
		for _, name := range sortedKeys(c.Methods) {
			v, err := m.bind(reg, c.Name, name, c.Methods[name])
			if err != nil {
				return err
			}
			if err := t.DefineMethod(c.Name, name, v); err != nil {
				return fmt.Errorf("%s: class %s: %w", m.path, c.Name, err)
			}
		}
		if c.Overload == nil {
			continue
		}

		handlers := make(map[string]object.Object, len(c.Overload.Ops))
		for _, tok := range sortedKeys(c.Overload.Ops) {
			h := c.Overload.Ops[tok]
			if h.Method != "" {
				handlers[tok] = &object.MethodName{Name: h.Method}
				continue
			}
			v, err := m.bind(reg, c.Name, "("+tok, h)
			if err != nil {
				return err
			}
			handlers[tok] = v
		}
		fb, err := fallbackValue(&c.Overload.Fallback)
		if err != nil {
			return fmt.Errorf("%s: class %s: fallback: %w", m.path, c.Name, err)
		}
		if err := overload.Declare(t, c.Name, fb, handlers); err != nil {
			return fmt.Errorf("%s: %w", m.path, err)
		}
	}
	return nil
}

// bind turns a handler into a method-map value.
func (m *Manifest) bind(reg *Registry, class, name string, h Handler) (object.Object, error) {
	qualified := class + "::" + name
	if h.Lazy {
		return reg.Stub(h.Builtin, qualified), nil
	}
	b, err := reg.Builtin(h.Builtin, qualified)
	if err != nil {
		return nil, fmt.Errorf("%s: class %s: %w", m.path, class, err)
	}
	return b, nil
}

// fallbackValue converts the fallback node. An omitted key yields nil.
func fallbackValue(n *yaml.Node) (object.Object, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	switch n.Tag {
	case "!!null":
		return object.Undef, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return object.NativeBool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err != nil {
			return nil, err
		}
		return object.Int(i), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return &object.Float{Value: f}, nil
	default:
		return object.Str(n.Value), nil
	}
}

func sortedKeys(m map[string]Handler) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
