// Package classdef loads class hierarchies from amagic.yaml manifests.
//
// A manifest declares classes, their parents and MRO, their methods and
// their overloaded operators. Method bodies are host functions; the
// manifest names them by key and Apply binds the keys through a Registry.
//
//	default_mro: dfs
//	classes:
//	  - name: Vector
//	    parents: [Base]
//	    methods:
//	      add: vector.add
//	      norm: {builtin: vector.norm, lazy: true}
//	    overload:
//	      fallback: true
//	      ops:
//	        "+": vector.add
//	        "-": {method: subtract}
package classdef

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/overload"
	"github.com/funvibe/amagic/internal/symbols"
	"gopkg.in/yaml.v3"
)

// Manifest is the top-level amagic.yaml document.
type Manifest struct {
	// DefaultMRO applies to classes that do not set mro. Defaults to "dfs".
	DefaultMRO string `yaml:"default_mro,omitempty"`

	Classes []ClassSpec `yaml:"classes"`

	path string
}

// ClassSpec declares one class.
type ClassSpec struct {
	Name    string   `yaml:"name"`
	Parents []string `yaml:"parents,omitempty"`

	// MRO is "dfs" or "c3".
	MRO string `yaml:"mro,omitempty"`

	// Methods maps method names to handlers.
	Methods map[string]Handler `yaml:"methods,omitempty"`

	Overload *OverloadSpec `yaml:"overload,omitempty"`
}

// OverloadSpec declares the overloaded operators of a class.
type OverloadSpec struct {
	// Fallback is kept as a node so that an explicit null (fallback: ~)
	// can be told apart from an omitted key.
	Fallback yaml.Node `yaml:"fallback,omitempty"`

	// Ops maps operator tokens ("+", "+=", "<=>", `""`) to handlers.
	Ops map[string]Handler `yaml:"ops,omitempty"`
}

// Handler names a host function or, for overload entries, a method to
// resolve by name. A bare string is shorthand for builtin.
type Handler struct {
	// Builtin is a Registry key.
	Builtin string `yaml:"builtin,omitempty"`

	// Method binds the operator to the named method of the class.
	// Only valid in overload ops.
	Method string `yaml:"method,omitempty"`

	// Lazy installs a stub that looks the builtin up on first call.
	Lazy bool `yaml:"lazy,omitempty"`
}

func (h *Handler) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		*h = Handler{Builtin: n.Value}
		return nil
	}
	type plain Handler
	return n.Decode((*plain)(h))
}

// LoadManifest reads and parses an amagic.yaml file.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading manifest %s: %w", path, err)
	}
	return ParseManifest(data, path)
}

// ParseManifest parses manifest content. The path argument is used only
// for error messages.
func ParseManifest(data []byte, path string) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	m.path = path
	if err := m.validate(); err != nil {
		return nil, err
	}
	m.setDefaults()
	return &m, nil
}

// FindManifest searches for amagic.yaml starting from dir and walking up
// to parent directories. It returns "" and a nil error when none exists.
func FindManifest(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolving directory: %w", err)
	}
	for {
		for _, name := range config.ManifestFileNames {
			candidate := filepath.Join(dir, name)
			if _, err := os.Stat(candidate); err == nil {
				return candidate, nil
			}
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// Path is the file the manifest was parsed from.
func (m *Manifest) Path() string { return m.path }

func (m *Manifest) validate() error {
	path := m.path
	if len(m.Classes) == 0 {
		return fmt.Errorf("%s: no classes defined", path)
	}
	if _, err := symbols.ParseMROKind(m.DefaultMRO); err != nil {
		return fmt.Errorf("%s: default_mro: %w", path, err)
	}

	seen := make(map[string]int)
	for i, c := range m.Classes {
		if c.Name == "" {
			return fmt.Errorf("%s: classes[%d]: name is required", path, i)
		}
		if prev, ok := seen[c.Name]; ok {
			return fmt.Errorf("%s: classes[%d]: class %q already declared at classes[%d]", path, i, c.Name, prev)
		}
		seen[c.Name] = i

		if _, err := symbols.ParseMROKind(c.MRO); err != nil {
			return fmt.Errorf("%s: classes[%d] (%s): %w", path, i, c.Name, err)
		}
		for j, p := range c.Parents {
			if p == c.Name {
				return fmt.Errorf("%s: classes[%d].parents[%d] (%s): class cannot inherit from itself", path, i, j, c.Name)
			}
		}
		for name, h := range c.Methods {
			if h.Method != "" {
				return fmt.Errorf("%s: classes[%d].methods.%s (%s): method is only valid in overload ops", path, i, name, c.Name)
			}
			if h.Builtin == "" {
				return fmt.Errorf("%s: classes[%d].methods.%s (%s): builtin is required", path, i, name, c.Name)
			}
		}
		if c.Overload == nil {
			continue
		}
		if err := validateFallback(&c.Overload.Fallback); err != nil {
			return fmt.Errorf("%s: classes[%d].overload.fallback (%s): %w", path, i, c.Name, err)
		}
		for tok, h := range c.Overload.Ops {
			if _, _, err := overload.ParseOperator(tok); err != nil {
				return fmt.Errorf("%s: classes[%d].overload.ops (%s): %w", path, i, c.Name, err)
			}
			n := 0
			if h.Builtin != "" {
				n++
			}
			if h.Method != "" {
				n++
			}
			if n != 1 {
				return fmt.Errorf("%s: classes[%d].overload.ops[%q] (%s): exactly one of builtin or method is required", path, i, tok, c.Name)
			}
			if h.Method != "" && h.Lazy {
				return fmt.Errorf("%s: classes[%d].overload.ops[%q] (%s): lazy is only valid with builtin", path, i, tok, c.Name)
			}
		}
	}
	return nil
}

func validateFallback(n *yaml.Node) error {
	if n.Kind == 0 {
		return nil
	}
	if n.Kind != yaml.ScalarNode {
		return fmt.Errorf("must be a scalar")
	}
	return nil
}

func (m *Manifest) setDefaults() {
	if m.DefaultMRO == "" {
		m.DefaultMRO = config.MRODFS
	}
	for i := range m.Classes {
		if m.Classes[i].MRO == "" {
			m.Classes[i].MRO = m.DefaultMRO
		}
	}
}

// ClassNames returns the declared class names in manifest order.
func (m *Manifest) ClassNames() []string {
	names := make([]string, len(m.Classes))
	for i, c := range m.Classes {
		names[i] = c.Name
	}
	return names
}

// BuiltinKeys returns every registry key the manifest refers to, sorted.
func (m *Manifest) BuiltinKeys() []string {
	seen := make(map[string]bool)
	add := func(h Handler) {
		if h.Builtin != "" {
			seen[h.Builtin] = true
		}
	}
	for _, c := range m.Classes {
		for _, h := range c.Methods {
			add(h)
		}
		if c.Overload != nil {
			for _, h := range c.Overload.Ops {
				add(h)
			}
		}
	}
	keys := make([]string, 0, len(seen))
	for k := range seen {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
