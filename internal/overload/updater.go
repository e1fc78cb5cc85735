package overload

import (
	"errors"
	"fmt"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/method"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

// Updater builds and caches overload tables.
type Updater struct {
	res *method.Resolver
}

func NewUpdater(res *method.Resolver) *Updater {
	return &Updater{res: res}
}

func (u *Updater) Resolver() *method.Resolver { return u.res }

func (u *Updater) generation(c *symbols.Class) uint64 {
	return u.res.Table().Generation() + c.PkgGen() + c.CacheGen()
}

// Ensure returns the current table of c, rebuilding it when any generation
// it was built at has moved. Concurrent rebuilds are harmless; the last
// one published wins.
func (u *Updater) Ensure(c *symbols.Class) (*Table, error) {
	gen := u.generation(c)
	if t, ok := c.OverloadTable().(*Table); ok && t.stamp == gen {
		return t, nil
	}
	t, err := u.build(c, gen)
	if err != nil {
		return nil, err
	}
	c.StoreOverloadTable(t)
	c.SetNoDeref(t.noDeref)
	return t, nil
}

// Rebuild builds a fresh table without consulting or replacing the cached
// one.
func (u *Updater) Rebuild(c *symbols.Class) (*Table, error) {
	return u.build(c, u.generation(c))
}

func (u *Updater) build(c *symbols.Class, gen uint64) (*Table, error) {
	t := &Table{class: c.Name(), stamp: gen}

	filled := false
	for k := Kind(0); k < numKinds; k++ {
		h, err := u.handlerFor(c, k.EntryName(), k.Token())
		if err != nil {
			return nil, err
		}
		if h != nil {
			t.handlers[k] = h
			filled = true
		}
		if !k.HasAssign() {
			continue
		}
		h, err = u.handlerFor(c, k.AssignEntryName(), k.AssignToken())
		if err != nil {
			return nil, err
		}
		if h != nil {
			t.assign[k] = h
			filled = true
		}
	}

	fb, err := u.res.Lookup(c, config.FallbackKey, method.Options{})
	if err != nil {
		return nil, err
	}
	if fb != nil {
		t.fallback = fallbackFrom(fb.Value, true)
	} else {
		t.fallback = fallbackFrom(nil, false)
	}

	marker, err := u.res.Resolve(c, config.OverloadMarkerKey, method.Options{})
	if err != nil {
		return nil, err
	}
	t.amagic = filled || marker != nil

	t.noDeref = true
	for _, k := range []Kind{ToScalar, ToArray, ToHash, ToGlob, ToCode} {
		if t.handlers[k] != nil {
			t.noDeref = false
			break
		}
	}
	return t, nil
}

// handlerFor resolves one entry. Stubs are recorded as they are and loaded
// at dispatch time; method-name entries are bound now.
func (u *Updater) handlerFor(c *symbols.Class, entry, token string) (object.Object, error) {
	v, err := u.res.Resolve(c, entry, method.Options{})
	if err != nil || v == nil {
		return nil, err
	}
	switch h := v.(type) {
	case *object.MethodName:
		found, err := u.res.FetchMethod(c, h.Name, method.FetchOptions{})
		if err != nil && !errors.Is(err, symbols.ErrClassNotFound) {
			return nil, err
		}
		if found == nil {
			return nil, &ConfigurationError{Class: c.Name(), Operator: token, Method: h.Name}
		}
		if _, ok := found.Value.(object.Callable); !ok {
			return nil, &ConfigurationError{Class: c.Name(), Operator: token, Method: h.Name}
		}
		return found.Value, nil
	case object.Callable:
		return h, nil
	default:
		return nil, &ConfigurationError{
			Class:    c.Name(),
			Operator: token,
			Detail:   fmt.Sprintf("%s is not callable", v.Inspect()),
		}
	}
}
