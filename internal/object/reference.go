package object

import (
	"fmt"
	"strings"
	"sync/atomic"
)

// Instance is a blessed referent: storage plus the class it belongs to.
// refs counts the Scalar cells currently holding a reference to it.
type Instance struct {
	stash   Stash
	Storage Object
	refs    atomic.Int32
}

func (i *Instance) Stash() Stash { return i.stash }

// Rebless moves the instance into another class.
func (i *Instance) Rebless(s Stash) { i.stash = s }

// RefCount returns how many cells reference the instance.
func (i *Instance) RefCount() int { return int(i.refs.Load()) }

func (i *Instance) retain()  { i.refs.Add(1) }
func (i *Instance) release() { i.refs.Add(-1) }

// Ref is a reference to a blessed instance.
type Ref struct {
	target *Instance
}

// Bless creates a new instance of stash around storage and returns a
// reference to it. The instance starts with no holders.
func Bless(stash Stash, storage Object) *Ref {
	if storage == nil {
		storage = Undef
	}
	return &Ref{target: &Instance{stash: stash, Storage: storage}}
}

func (r *Ref) Target() *Instance { return r.target }

func (r *Ref) Type() ObjectType { return REF_OBJ }
func (r *Ref) Inspect() string {
	name := "main"
	if r.target.stash != nil {
		name = r.target.stash.Name()
	}
	return fmt.Sprintf("%s=%s(%p)", name, containerKind(r.target.Storage), r.target)
}
func (r *Ref) Hash() uint32 { return hashString(fmt.Sprintf("%p", r.target)) }

// SameReferent reports whether both references point at one instance.
func SameReferent(a, b Object) bool {
	ra, ok := a.(*Ref)
	if !ok {
		return false
	}
	rb, ok := b.(*Ref)
	if !ok {
		return false
	}
	return ra.target == rb.target
}

func containerKind(o Object) string {
	switch o.(type) {
	case *Array:
		return "ARRAY"
	case *Hash:
		return "HASH"
	case Callable:
		return "CODE"
	default:
		return "SCALAR"
	}
}

// Scalar is a mutable variable cell. Holding a *Ref in a Scalar counts as
// one reference to its instance.
type Scalar struct {
	value Object
}

func NewScalar(v Object) *Scalar {
	s := &Scalar{}
	s.Set(v)
	return s
}

func (s *Scalar) Get() Object { return s.value }

func (s *Scalar) Set(v Object) {
	if v == nil {
		v = Undef
	}
	if sv, ok := v.(*Scalar); ok {
		v = sv.value
	}
	if r, ok := v.(*Ref); ok {
		r.target.retain()
	}
	if r, ok := s.value.(*Ref); ok {
		r.target.release()
	}
	s.value = v
}

func (s *Scalar) Type() ObjectType { return SCALAR_OBJ }
func (s *Scalar) Inspect() string {
	if s.value == nil {
		return "undef"
	}
	return s.value.Inspect()
}
func (s *Scalar) Hash() uint32 {
	if s.value == nil {
		return 0
	}
	return s.value.Hash()
}

// Value looks through a Scalar cell to the value it holds.
func Value(o Object) Object {
	if s, ok := o.(*Scalar); ok {
		if s.value == nil {
			return Undef
		}
		return s.value
	}
	return o
}

// Array
type Array struct {
	Elements []Object
}

func (a *Array) Type() ObjectType { return ARRAY_OBJ }
func (a *Array) Inspect() string {
	parts := make([]string, len(a.Elements))
	for i, e := range a.Elements {
		parts[i] = e.Inspect()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
func (a *Array) Hash() uint32 {
	var h uint32 = 17
	for _, e := range a.Elements {
		h = h*31 + e.Hash()
	}
	return h
}

// Hash is a string-keyed container.
type Hash struct {
	Pairs map[string]Object
}

func (h *Hash) Type() ObjectType { return HASH_OBJ }
func (h *Hash) Inspect() string  { return fmt.Sprintf("{%d keys}", len(h.Pairs)) }
func (h *Hash) Hash() uint32 {
	var sum uint32
	for k, v := range h.Pairs {
		sum += hashString(k) ^ v.Hash()
	}
	return sum
}
