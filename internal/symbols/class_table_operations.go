package symbols

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/diagnostics"
	"github.com/funvibe/amagic/internal/object"
)

var (
	ErrClassNotFound   = errors.New("class not found")
	ErrInvalidName     = errors.New("invalid name")
	ErrSelfInheritance = errors.New("class cannot inherit from itself")
)

// ClassNotFoundError indicates a class name did not resolve
type ClassNotFoundError struct {
	Name string
}

func (e *ClassNotFoundError) Error() string {
	return fmt.Sprintf("class not found: %s", e.Name)
}

func (e *ClassNotFoundError) Is(target error) bool { return target == ErrClassNotFound }

// Table is the class table and the runtime context object.
type Table struct {
	mu      sync.RWMutex
	classes map[string]*Class

	// generation is GlobalGeneration: bumped on every method or parent
	// mutation anywhere in the table. Starts at 1.
	generation atomic.Uint64
	// isaGeneration is bumped on parent-list and MRO changes only.
	isaGeneration atomic.Uint64

	sink diagnostics.Sink
}

type Option func(*Table)

// WithSink routes warnings (unresolved parents etc.) to s.
func WithSink(s diagnostics.Sink) Option {
	return func(t *Table) { t.sink = s }
}

func NewTable(opts ...Option) *Table {
	t := &Table{
		classes: make(map[string]*Class),
		sink:    diagnostics.Discard,
	}
	t.generation.Store(1)
	t.isaGeneration.Store(1)
	for _, opt := range opts {
		opt(t)
	}
	t.classes[config.UniversalClassName] = newClass(t, config.UniversalClassName)
	return t
}

// Sink returns the diagnostic sink.
func (t *Table) Sink() diagnostics.Sink { return t.sink }

// Generation returns the current GlobalGeneration.
func (t *Table) Generation() uint64 { return t.generation.Load() }

// ISAGeneration returns the counter stamping linearizations.
func (t *Table) ISAGeneration() uint64 { return t.isaGeneration.Load() }

// Universal returns the root fallback namespace.
func (t *Table) Universal() *Class {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.classes[config.UniversalClassName]
}

// Lookup finds a class by qualified name.
func (t *Table) Lookup(name string) (*Class, bool) {
	t.mu.RLock()
	c, ok := t.classes[name]
	t.mu.RUnlock()
	return c, ok
}

// Get is Lookup returning a ClassNotFoundError.
func (t *Table) Get(name string) (*Class, error) {
	if c, ok := t.Lookup(name); ok {
		return c, nil
	}
	return nil, &ClassNotFoundError{Name: name}
}

// Declare creates the class if it does not exist and returns it.
func (t *Table) Declare(name string) (*Class, error) {
	if err := validateClassName(name); err != nil {
		return nil, err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.declareLocked(name), nil
}

func (t *Table) declareLocked(name string) *Class {
	if c, ok := t.classes[name]; ok {
		return c
	}
	c := newClass(t, name)
	t.classes[name] = c
	// A new class may fill a parent slot that earlier orders recorded as missing.
	t.isaGeneration.Add(1)
	t.generation.Add(1)
	return c
}

// ClassNames returns all declared class names, sorted.
func (t *Table) ClassNames() []string {
	t.mu.RLock()
	names := make([]string, 0, len(t.classes))
	for k := range t.classes {
		names = append(names, k)
	}
	t.mu.RUnlock()
	sort.Strings(names)
	return names
}

// SetParents replaces the declared parent list of a class, declaring it if
// needed. Parents that do not exist yet are legal; they resolve lazily.
func (t *Table) SetParents(name string, parents ...string) error {
	if err := validateClassName(name); err != nil {
		return err
	}
	for _, p := range parents {
		if err := validateClassName(p); err != nil {
			return err
		}
		if p == name {
			return fmt.Errorf("%s: %w", name, ErrSelfInheritance)
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c := t.declareLocked(name)
	c.parents = append([]string(nil), parents...)
	t.isaChangedLocked(c)
	return nil
}

// SetMRO selects the linearization algorithm of a class.
func (t *Table) SetMRO(name string, kind MROKind) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.classes[name]
	if !ok {
		return &ClassNotFoundError{Name: name}
	}
	if c.mro == kind {
		return nil
	}
	c.mro = kind
	t.isaChangedLocked(c)
	return nil
}

func (t *Table) isaChangedLocked(c *Class) {
	t.isaGeneration.Add(1)
	c.cacheGen.Add(1)
	t.generation.Add(1)
}

// DefineMethod adds or redefines an own method (or overload entry, or the
// fallback indicator) in class.
func (t *Table) DefineMethod(class, name string, value object.Object) error {
	if err := validateMethodName(name); err != nil {
		return err
	}
	if value == nil {
		return fmt.Errorf("%s::%s: nil method value: %w", class, name, ErrInvalidName)
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.classes[class]
	if !ok {
		return &ClassNotFoundError{Name: class}
	}
	c.methods[name] = value
	t.onClassMutatedLocked(c)
	return nil
}

// UndefineMethod removes an own method. It reports whether one existed.
func (t *Table) UndefineMethod(class, name string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	c, ok := t.classes[class]
	if !ok {
		return false
	}
	if _, ok := c.methods[name]; !ok {
		return false
	}
	delete(c.methods, name)
	t.onClassMutatedLocked(c)
	return true
}

// OnClassMutated is the hook for collaborators that change a class's method
// map behind the table's back. It bumps GlobalGeneration.
func (t *Table) OnClassMutated(c *Class) {
	t.mu.Lock()
	t.onClassMutatedLocked(c)
	t.mu.Unlock()
}

func (t *Table) onClassMutatedLocked(c *Class) {
	c.pkgGen.Add(1)
	t.generation.Add(1)
}

// InvalidateCaches drops every cached result of one class without touching
// GlobalGeneration.
func (t *Table) InvalidateCaches(name string) error {
	c, ok := t.Lookup(name)
	if !ok {
		return &ClassNotFoundError{Name: name}
	}
	c.cacheGen.Add(1)
	return nil
}

// SplitQualified splits "A::B::name" into ("A::B", "name").
// An unqualified name returns an empty package.
func SplitQualified(name string) (pkg, method string) {
	i := strings.LastIndex(name, config.PackageSeparator)
	if i < 0 {
		return "", name
	}
	return name[:i], name[i+len(config.PackageSeparator):]
}

func validateClassName(name string) error {
	if name == "" {
		return fmt.Errorf("empty class name: %w", ErrInvalidName)
	}
	if strings.HasPrefix(name, config.PackageSeparator) || strings.HasSuffix(name, config.PackageSeparator) {
		return fmt.Errorf("class name %q: %w", name, ErrInvalidName)
	}
	return nil
}

func validateMethodName(name string) error {
	if name == "" {
		return fmt.Errorf("empty method name: %w", ErrInvalidName)
	}
	if strings.Contains(name, config.PackageSeparator) {
		return fmt.Errorf("method name %q is qualified: %w", name, ErrInvalidName)
	}
	return nil
}

// SetFallback stores the fallback indicator of a class. Pass object.Undef
// for the "present but undefined" level.
func (t *Table) SetFallback(class string, value object.Object) error {
	return t.DefineMethod(class, config.FallbackKey, value)
}

// DefineOverload installs the handler for an operator token, e.g. "+" or
// "+=", under its canonical entry name.
func (t *Table) DefineOverload(class, token string, handler object.Object) error {
	if token == "" {
		return fmt.Errorf("%s: empty operator token: %w", class, ErrInvalidName)
	}
	return t.DefineMethod(class, config.OverloadPrefix+token, handler)
}

// View calls fn with the read lock held, giving it a consistent picture of
// every class. fn must not call back into t.
func (t *Table) View(fn func(r Reader)) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn(Reader{t: t})
}

// Reader reads class state without locking; it is only valid inside View.
type Reader struct {
	t *Table
}

func (r Reader) ClassNames() []string {
	names := make([]string, 0, len(r.t.classes))
	for k := range r.t.classes {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

func (r Reader) Lookup(name string) (*Class, bool) {
	c, ok := r.t.classes[name]
	return c, ok
}

func (r Reader) Parents(c *Class) []string { return append([]string(nil), c.parents...) }

func (r Reader) MRO(c *Class) MROKind { return c.mro }

func (r Reader) OwnMethods(c *Class) map[string]object.Object {
	out := make(map[string]object.Object, len(c.methods))
	for k, v := range c.methods {
		out[k] = v
	}
	return out
}
