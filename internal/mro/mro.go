// Package mro computes method resolution orders: the deterministic,
// self-first, duplicate-free ancestor sequence searched for a method.
//
// Two algorithms are supported, selected per class:
//   - DFS: own class, then each declared parent's order in turn, skipping
//     classes already seen.
//   - C3: the C3 merge of the parents' orders and the parent list.
//
// A parent name that does not resolve is not an error. It is recorded in
// Linearization.Missing and contributes no classes; the resolver reports it
// as a warning.
package mro

import (
	"errors"
	"fmt"
	"strings"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/symbols"
)

var (
	ErrRecursiveInheritance  = errors.New("recursive inheritance detected")
	ErrInconsistentHierarchy = errors.New("inconsistent hierarchy during C3 merge")
)

// HierarchyError describes a linearization failure.
type HierarchyError struct {
	Class  string
	Merged []string // C3 merge result so far
	Failed string   // candidate the merge stopped on
	Err    error
}

func (e *HierarchyError) Error() string {
	if errors.Is(e.Err, ErrInconsistentHierarchy) {
		return fmt.Sprintf("%s of class '%s':\n\tcurrent merge results [\n\t\t%s,\n\t]\n\tmerging failed on '%s'",
			e.Err, e.Class, strings.Join(e.Merged, ",\n\t\t"), e.Failed)
	}
	return fmt.Sprintf("%s in package '%s'", e.Err, e.Class)
}

func (e *HierarchyError) Unwrap() error { return e.Err }

// Linearizer computes and caches orders for one class table.
type Linearizer struct {
	table *symbols.Table
}

func New(t *symbols.Table) *Linearizer {
	return &Linearizer{table: t}
}

// Linearize returns the order of c using c's own MRO kind. The result is
// cached on c and reused until any parent list in the table changes.
// The returned value is shared and must not be modified.
func (l *Linearizer) Linearize(c *symbols.Class) (*symbols.Linearization, error) {
	return l.LinearizeAs(c, c.MRO())
}

// LinearizeAs computes the order of c with an explicit algorithm. Ancestors
// are linearized with the same algorithm.
func (l *Linearizer) LinearizeAs(c *symbols.Class, kind symbols.MROKind) (*symbols.Linearization, error) {
	st := &state{
		kind:     kind,
		stamp:    l.table.ISAGeneration(),
		visiting: make(map[*symbols.Class]bool),
		memo:     make(map[*symbols.Class]*symbols.Linearization),
	}
	return l.linearize(c, st)
}

// IsA reports whether other appears in the order of c.
func (l *Linearizer) IsA(c, other *symbols.Class) (bool, error) {
	if c == other {
		return true, nil
	}
	lin, err := l.Linearize(c)
	if err != nil {
		return false, err
	}
	return lin.Contains(other), nil
}

type state struct {
	kind     symbols.MROKind
	stamp    uint64
	depth    int
	visiting map[*symbols.Class]bool
	memo     map[*symbols.Class]*symbols.Linearization
}

func (l *Linearizer) linearize(c *symbols.Class, st *state) (*symbols.Linearization, error) {
	ownKind := c.MRO() == st.kind
	if ownKind {
		if cached := c.CachedLinearization(); cached != nil && cached.Stamp == st.stamp {
			return cached, nil
		}
	}
	if lin, ok := st.memo[c]; ok {
		return lin, nil
	}
	if st.visiting[c] || st.depth >= config.MaxInheritanceDepth {
		return nil, &HierarchyError{Class: c.Name(), Err: ErrRecursiveInheritance}
	}

	st.visiting[c] = true
	st.depth++
	defer func() {
		delete(st.visiting, c)
		st.depth--
	}()

	var lin *symbols.Linearization
	var err error
	switch st.kind {
	case symbols.MROC3:
		lin, err = l.c3(c, st)
	default:
		lin, err = l.dfs(c, st)
	}
	if err != nil {
		return nil, err
	}
	lin.Stamp = st.stamp
	st.memo[c] = lin
	if ownKind {
		c.StoreLinearization(lin)
	}
	return lin, nil
}

func (l *Linearizer) dfs(c *symbols.Class, st *state) (*symbols.Linearization, error) {
	lin := &symbols.Linearization{Classes: []*symbols.Class{c}}
	seen := map[*symbols.Class]bool{c: true}

	for _, name := range c.Parents() {
		p, ok := l.table.Lookup(name)
		if !ok {
			lin.Missing = appendMissing(lin.Missing, symbols.MissingParent{Class: c.Name(), Parent: name})
			continue
		}
		sub, err := l.linearize(p, st)
		if err != nil {
			return nil, err
		}
		for _, anc := range sub.Classes {
			if !seen[anc] {
				seen[anc] = true
				lin.Classes = append(lin.Classes, anc)
			}
		}
		lin.Missing = appendMissing(lin.Missing, sub.Missing...)
	}
	return lin, nil
}

func (l *Linearizer) c3(c *symbols.Class, st *state) (*symbols.Linearization, error) {
	lin := &symbols.Linearization{}
	parents := c.Parents()

	seqs := make([][]string, 0, len(parents)+1)
	for _, name := range parents {
		p, ok := l.table.Lookup(name)
		if !ok {
			// An unknown class linearizes to itself alone.
			lin.Missing = appendMissing(lin.Missing, symbols.MissingParent{Class: c.Name(), Parent: name})
			seqs = append(seqs, []string{name})
			continue
		}
		sub, err := l.linearize(p, st)
		if err != nil {
			return nil, err
		}
		seqs = append(seqs, sub.Names())
		lin.Missing = appendMissing(lin.Missing, sub.Missing...)
	}
	if len(parents) > 0 {
		seqs = append(seqs, append([]string(nil), parents...))
	}

	merged := []string{c.Name()}
	for {
		seqs = dropEmpty(seqs)
		if len(seqs) == 0 {
			break
		}
		var next string
		found := false
		for _, s := range seqs {
			if !inTail(s[0], seqs) {
				next = s[0]
				found = true
				break
			}
		}
		if !found {
			return nil, &HierarchyError{
				Class:  c.Name(),
				Merged: merged,
				Failed: seqs[0][0],
				Err:    ErrInconsistentHierarchy,
			}
		}
		merged = append(merged, next)
		for i := range seqs {
			if seqs[i][0] == next {
				seqs[i] = seqs[i][1:]
			}
		}
	}

	lin.Classes = make([]*symbols.Class, 0, len(merged))
	lin.Classes = append(lin.Classes, c)
	for _, name := range merged[1:] {
		if anc, ok := l.table.Lookup(name); ok {
			lin.Classes = append(lin.Classes, anc)
		}
	}
	return lin, nil
}

func inTail(name string, seqs [][]string) bool {
	for _, s := range seqs {
		for _, x := range s[1:] {
			if x == name {
				return true
			}
		}
	}
	return false
}

func dropEmpty(seqs [][]string) [][]string {
	out := seqs[:0]
	for _, s := range seqs {
		if len(s) > 0 {
			out = append(out, s)
		}
	}
	return out
}

func appendMissing(dst []symbols.MissingParent, add ...symbols.MissingParent) []symbols.MissingParent {
	for _, m := range add {
		dup := false
		for _, have := range dst {
			if have == m {
				dup = true
				break
			}
		}
		if !dup {
			dst = append(dst, m)
		}
	}
	return dst
}
