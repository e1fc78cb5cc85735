package symbols

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/object"
	"github.com/google/uuid"
)

type MROKind int

const (
	MRODFS MROKind = iota // Depth-first, own class first (default)
	MROC3                 // C3 merge
)

func (k MROKind) String() string {
	switch k {
	case MROC3:
		return config.MROC3
	default:
		return config.MRODFS
	}
}

// ParseMROKind maps "dfs" / "c3" to a kind
func ParseMROKind(s string) (MROKind, error) {
	switch strings.ToLower(s) {
	case "", config.MRODFS:
		return MRODFS, nil
	case config.MROC3:
		return MROC3, nil
	default:
		return MRODFS, fmt.Errorf("unknown mro kind %q", s)
	}
}

// Class is a class descriptor: a named collection of own methods plus an
// ordered parent list. Inherited names never appear in methods.
type Class struct {
	name  string
	id    uuid.UUID
	table *Table

	// Guarded by table.mu
	parents []string
	methods map[string]object.Object
	mro     MROKind

	// pkgGen is bumped on every own-method mutation.
	pkgGen atomic.Uint64
	// cacheGen is bumped when the parent list changes or caches are
	// invalidated explicitly. It also stamps SUPER results.
	cacheGen atomic.Uint64

	cacheMu     sync.Mutex
	methodCache map[string]CacheEntry
	superCache  map[string]CacheEntry

	linear   atomic.Pointer[Linearization]
	overload atomic.Value
	noDeref  atomic.Bool
}

func newClass(t *Table, name string) *Class {
	return &Class{
		name:        name,
		id:          uuid.New(),
		table:       t,
		methods:     make(map[string]object.Object),
		methodCache: make(map[string]CacheEntry),
		superCache:  make(map[string]CacheEntry),
	}
}

// Name implements object.Stash
func (c *Class) Name() string { return c.name }

// ID is an opaque identity token, stable for the life of the class.
func (c *Class) ID() uuid.UUID { return c.id }

// Table returns the class table that owns c.
func (c *Class) Table() *Table { return c.table }

// Parents returns a copy of the declared parent names.
func (c *Class) Parents() []string {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	out := make([]string, len(c.parents))
	copy(out, c.parents)
	return out
}

func (c *Class) MRO() MROKind {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	return c.mro
}

// OwnMethod looks name up in the class's own map only.
func (c *Class) OwnMethod(name string) (object.Object, bool) {
	c.table.mu.RLock()
	v, ok := c.methods[name]
	c.table.mu.RUnlock()
	return v, ok
}

// OwnMethods returns a copy of the own method map.
func (c *Class) OwnMethods() map[string]object.Object {
	c.table.mu.RLock()
	defer c.table.mu.RUnlock()
	out := make(map[string]object.Object, len(c.methods))
	for k, v := range c.methods {
		out[k] = v
	}
	return out
}

// OwnMethodNames returns own method names, sorted.
func (c *Class) OwnMethodNames() []string {
	c.table.mu.RLock()
	names := make([]string, 0, len(c.methods))
	for k := range c.methods {
		names = append(names, k)
	}
	c.table.mu.RUnlock()
	sort.Strings(names)
	return names
}

func (c *Class) PkgGen() uint64   { return c.pkgGen.Load() }
func (c *Class) CacheGen() uint64 { return c.cacheGen.Load() }

func (c *Class) String() string { return c.name }

// MissingParent records a declared parent name that did not resolve.
type MissingParent struct {
	Class  string // class whose parent list names it
	Parent string
}

// Linearization is the ancestor search order of a class, self first.
type Linearization struct {
	Classes []*Class
	Missing []MissingParent
	Stamp   uint64 // ISA generation the order was computed at
}

// Names returns the class names in order.
func (l *Linearization) Names() []string {
	names := make([]string, len(l.Classes))
	for i, c := range l.Classes {
		names[i] = c.name
	}
	return names
}

// Contains reports whether class appears in the order.
func (l *Linearization) Contains(c *Class) bool {
	for _, x := range l.Classes {
		if x == c {
			return true
		}
	}
	return false
}
