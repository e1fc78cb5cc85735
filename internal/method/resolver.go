// Package method resolves method names against a class and its ancestors.
//
// Lookups search the class's own map, then its ancestors in linearization
// order, then optionally UNIVERSAL. Inherited hits are cached on the
// querying class, stamped with the table generation plus the class's cache
// generation; a stale stamp is simply ignored on the next lookup.
package method

import (
	"strings"
	"sync"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/diagnostics"
	"github.com/funvibe/amagic/internal/mro"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

// Options control one lookup.
type Options struct {
	// Universal searches UNIVERSAL when nothing else matches.
	Universal bool
	// Placeholder caches a miss as definitively absent.
	Placeholder bool
	// Super starts the search after the class itself.
	Super bool
}

// Hit is a resolved method together with the class that defines it.
type Hit struct {
	Value  object.Object
	Origin *symbols.Class
	Cached bool // served from the method cache
}

type Resolver struct {
	table *symbols.Table
	lin   *mro.Linearizer

	mu       sync.Mutex
	reported map[symbols.MissingParent]uint64
}

func New(t *symbols.Table, l *mro.Linearizer) *Resolver {
	if l == nil {
		l = mro.New(t)
	}
	return &Resolver{
		table:    t,
		lin:      l,
		reported: make(map[symbols.MissingParent]uint64),
	}
}

func (r *Resolver) Table() *symbols.Table       { return r.table }
func (r *Resolver) Linearizer() *mro.Linearizer { return r.lin }

// Resolve returns the value bound to name for c, or nil when absent.
func (r *Resolver) Resolve(c *symbols.Class, name string, opts Options) (object.Object, error) {
	hit, err := r.Lookup(c, name, opts)
	if err != nil || hit == nil {
		return nil, err
	}
	return hit.Value, nil
}

// Lookup is Resolve reporting where the value came from.
func (r *Resolver) Lookup(c *symbols.Class, name string, opts Options) (*Hit, error) {
	// Read the generation before searching: a mutation that races with the
	// search leaves the entry stored below stale on arrival.
	gen := r.effectiveGeneration(c)

	if e, ok := c.CachedMethod(name, opts.Super); ok && e.Stamp == gen {
		if !e.Absent() {
			return &Hit{Value: e.Value, Origin: e.Origin, Cached: true}, nil
		}
		return r.universal(c, name, opts)
	}

	if !opts.Super {
		if v, ok := c.OwnMethod(name); ok {
			return &Hit{Value: v, Origin: c}, nil
		}
	}

	hit, err := r.searchAncestors(c, name)
	if err != nil {
		return nil, err
	}
	if hit != nil {
		if object.IsRealCallable(hit.Value) {
			c.StoreCachedMethod(name, opts.Super, symbols.CacheEntry{Value: hit.Value, Origin: hit.Origin, Stamp: gen})
		}
		return hit, nil
	}

	if hit, err := r.universal(c, name, opts); hit != nil || err != nil {
		return hit, err
	}

	if opts.Placeholder && !opts.Universal && !opts.Super {
		c.StoreCachedMethod(name, false, symbols.CacheEntry{Stamp: gen})
	}
	return nil, nil
}

func (r *Resolver) effectiveGeneration(c *symbols.Class) uint64 {
	return r.table.Generation() + c.CacheGen()
}

// searchAncestors walks the linearization of c, skipping c itself.
func (r *Resolver) searchAncestors(c *symbols.Class, name string) (*Hit, error) {
	lin, err := r.lin.Linearize(c)
	if err != nil {
		return nil, err
	}
	r.reportMissing(lin)

	for i, anc := range lin.Classes {
		if i == 0 {
			continue
		}
		if v, ok := anc.OwnMethod(name); ok {
			r.noteShadowed(c, name, anc, lin.Classes[i+1:])
			return &Hit{Value: v, Origin: anc}, nil
		}
	}
	return nil, nil
}

// universal searches UNIVERSAL and its ancestors. Results are never cached.
func (r *Resolver) universal(c *symbols.Class, name string, opts Options) (*Hit, error) {
	if !opts.Universal {
		return nil, nil
	}
	u := r.table.Universal()
	if u == c {
		return nil, nil
	}
	if v, ok := u.OwnMethod(name); ok {
		return &Hit{Value: v, Origin: u}, nil
	}
	return r.searchAncestors(u, name)
}

// reportMissing emits one W001 per missing parent per hierarchy change.
func (r *Resolver) reportMissing(lin *symbols.Linearization) {
	if len(lin.Missing) == 0 {
		return
	}
	sink := r.table.Sink()
	r.mu.Lock()
	var pending []symbols.MissingParent
	for _, m := range lin.Missing {
		if r.reported[m] != lin.Stamp {
			r.reported[m] = lin.Stamp
			pending = append(pending, m)
		}
	}
	r.mu.Unlock()
	for _, m := range pending {
		sink.Report(diagnostics.UnresolvedParent(m.Parent, m.Class))
	}
}

// noteShadowed emits a W002 debug note when a later, unrelated ancestor
// also defines name.
func (r *Resolver) noteShadowed(c *symbols.Class, name string, chosen *symbols.Class, rest []*symbols.Class) {
	for _, other := range rest {
		if _, ok := other.OwnMethod(name); !ok {
			continue
		}
		if inherits, err := r.lin.IsA(chosen, other); err == nil && !inherits {
			r.table.Sink().Report(diagnostics.AmbiguousAncestor(c.Name(), name, chosen.Name(), other.Name()))
		}
		return
	}
}

// Can resolves name the way a method call does, UNIVERSAL included.
func (r *Resolver) Can(c *symbols.Class, name string) (object.Object, error) {
	return r.Resolve(c, name, Options{Universal: true})
}

// IsA reports whether c is, or inherits from, the class named other.
// Every class is a UNIVERSAL.
func (r *Resolver) IsA(c *symbols.Class, other string) (bool, error) {
	if other == config.UniversalClassName || c.Name() == other {
		return true, nil
	}
	oc, ok := r.table.Lookup(other)
	if !ok {
		return false, nil
	}
	return r.lin.IsA(c, oc)
}

func isSuperQualifier(pkg string) bool {
	return pkg == "SUPER" || strings.HasSuffix(pkg, config.PackageSeparator+"SUPER")
}
