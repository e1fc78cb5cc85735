// Package overload builds per-class operator handler tables and dispatches
// operators to them.
//
// A class overloads operator "+" by binding a callable to the method-map
// entry "(+". Entries are inherited like ordinary methods. The fallback
// indicator "()" selects how far the dispatcher may go when no direct
// handler exists:
//
//	no entry          -> Yes
//	true value        -> Yes: substitute, then silently fall back to built-ins
//	undef             -> No: substitute, but no nomethod catch-all
//	defined and false -> Never: direct handlers only
package overload

import (
	"fmt"

	"github.com/funvibe/amagic/internal/object"
)

type Fallback int

const (
	FallbackNever Fallback = iota
	FallbackNo
	FallbackYes
)

func (f Fallback) String() string {
	switch f {
	case FallbackNever:
		return "never"
	case FallbackNo:
		return "no"
	case FallbackYes:
		return "yes"
	default:
		return fmt.Sprintf("Fallback(%d)", int(f))
	}
}

// fallbackFrom maps the value of the "()" entry to a level.
func fallbackFrom(v object.Object, present bool) Fallback {
	switch {
	case !present:
		return FallbackYes
	case !object.Defined(v):
		return FallbackNo
	case object.Truthy(v):
		return FallbackYes
	default:
		return FallbackNever
	}
}

// Table is the resolved operator table of one class. It is immutable once
// published.
type Table struct {
	class    string
	handlers [numKinds]object.Object
	assign   [numKinds]object.Object
	fallback Fallback
	amagic   bool
	noDeref  bool
	stamp    uint64
}

func (t *Table) Class() string      { return t.class }
func (t *Table) Fallback() Fallback { return t.fallback }
func (t *Table) Stamp() uint64      { return t.stamp }

// Amagic reports whether the class really overloads anything.
func (t *Table) Amagic() bool { return t.amagic }

// NoDeref reports that no dereference handler is present.
func (t *Table) NoDeref() bool { return t.noDeref }

// Handler returns the direct handler for k, or nil.
func (t *Table) Handler(k Kind) object.Object {
	if t == nil || !k.Valid() {
		return nil
	}
	return t.handlers[k]
}

// AssignHandler returns the assignment-variant handler for k, or nil.
func (t *Table) AssignHandler(k Kind) object.Object {
	if t == nil || !k.Valid() {
		return nil
	}
	return t.assign[k]
}

func (t *Table) slot(k Kind, assign bool) object.Object {
	if assign {
		return t.AssignHandler(k)
	}
	return t.Handler(k)
}

// SameSlots reports whether both tables hold identical handlers and
// fallback level.
func (t *Table) SameSlots(o *Table) bool {
	if t == nil || o == nil {
		return t == o
	}
	return t.handlers == o.handlers && t.assign == o.assign &&
		t.fallback == o.fallback && t.amagic == o.amagic && t.noDeref == o.noDeref
}

// Entry is one populated slot, for listings.
type Entry struct {
	Kind    Kind
	Assign  bool
	Token   string
	Handler object.Object
}

// Entries lists populated slots in operator order.
func (t *Table) Entries() []Entry {
	var out []Entry
	for k := Kind(0); k < numKinds; k++ {
		if h := t.handlers[k]; h != nil {
			out = append(out, Entry{Kind: k, Token: k.Token(), Handler: h})
		}
		if h := t.assign[k]; h != nil {
			out = append(out, Entry{Kind: k, Assign: true, Token: k.AssignToken(), Handler: h})
		}
	}
	return out
}
