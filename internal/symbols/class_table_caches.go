package symbols

import "github.com/funvibe/amagic/internal/object"

// StampUncached is never a real generation: generations start at 1.
const StampUncached uint64 = 0

// CacheEntry is one method cache slot. A nil Value with a valid stamp means
// the name is definitively absent.
type CacheEntry struct {
	Value  object.Object
	Origin *Class // ancestor that supplied Value
	Stamp  uint64
}

// Absent reports whether the entry caches a negative lookup.
func (e CacheEntry) Absent() bool { return e.Value == nil }

// CachedMethod returns the slot for name. super selects the SUPER cache.
// The caller compares the stamp; stale entries are returned as is.
func (c *Class) CachedMethod(name string, super bool) (CacheEntry, bool) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	var e CacheEntry
	var ok bool
	if super {
		e, ok = c.superCache[name]
	} else {
		e, ok = c.methodCache[name]
	}
	if !ok || e.Stamp == StampUncached {
		return CacheEntry{}, false
	}
	return e, true
}

// StoreCachedMethod overwrites the slot for name.
func (c *Class) StoreCachedMethod(name string, super bool, e CacheEntry) {
	c.cacheMu.Lock()
	if super {
		c.superCache[name] = e
	} else {
		c.methodCache[name] = e
	}
	c.cacheMu.Unlock()
}

// CacheSize returns the number of slots, valid or not.
func (c *Class) CacheSize() (methods, super int) {
	c.cacheMu.Lock()
	defer c.cacheMu.Unlock()
	return len(c.methodCache), len(c.superCache)
}

func (c *Class) CachedLinearization() *Linearization {
	return c.linear.Load()
}

func (c *Class) StoreLinearization(l *Linearization) {
	c.linear.Store(l)
}

// OverloadTable returns whatever the overload layer last stored, or nil.
func (c *Class) OverloadTable() any {
	return c.overload.Load()
}

// StoreOverloadTable publishes a rebuilt table; last write wins.
// v must always have the same concrete type.
func (c *Class) StoreOverloadTable(v any) {
	c.overload.Store(v)
}

// NoDeref is the fast-path bit: the class has no dereference overloads.
func (c *Class) NoDeref() bool { return c.noDeref.Load() }

func (c *Class) SetNoDeref(v bool) { c.noDeref.Store(v) }
