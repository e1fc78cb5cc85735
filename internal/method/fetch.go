package method

import (
	"fmt"
	"strings"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/diagnostics"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

const destroyMethodName = "DESTROY"

type FetchOptions struct {
	// Autoload falls back to the AUTOLOAD method of the search class.
	Autoload bool
}

// Fetched is the outcome of a method-call style lookup.
type Fetched struct {
	Value  object.Object
	Origin *symbols.Class
	// Name is the fully qualified name that was asked for. When AUTOLOAD
	// answered, this is what the host stores in $AUTOLOAD.
	Name     string
	Autoload bool
}

// FetchMethod resolves name the way a method call on class c does.
//
// name may be qualified: "Other::m" searches Other, "SUPER::m" searches the
// parents of c and "Pkg::SUPER::m" the parents of Pkg. UNIVERSAL is always
// included. A nil result with a nil error means no method was found.
func (r *Resolver) FetchMethod(c *symbols.Class, name string, opts FetchOptions) (*Fetched, error) {
	start := c
	super := false
	meth := name

	if strings.Contains(name, config.PackageSeparator) {
		var pkg string
		pkg, meth = symbols.SplitQualified(name)
		switch {
		case pkg == "SUPER":
			super = true
		case isSuperQualifier(pkg):
			base := strings.TrimSuffix(pkg, config.PackageSeparator+"SUPER")
			sc, err := r.table.Get(base)
			if err != nil {
				return nil, err
			}
			start, super = sc, true
		default:
			sc, err := r.table.Get(pkg)
			if err != nil {
				return nil, err
			}
			start = sc
		}
	}
	if meth == "" {
		return nil, fmt.Errorf("method name %q: %w", name, symbols.ErrInvalidName)
	}

	qualified := start.Name() + config.PackageSeparator + meth
	hit, err := r.Lookup(start, meth, Options{Universal: true, Super: super})
	if err != nil {
		return nil, err
	}
	if hit != nil {
		return &Fetched{Value: hit.Value, Origin: hit.Origin, Name: qualified}, nil
	}

	if !opts.Autoload || meth == destroyMethodName || meth == config.AutoloadMethodName {
		return nil, nil
	}
	hit, err = r.Lookup(start, config.AutoloadMethodName, Options{Universal: true, Super: super})
	if err != nil || hit == nil {
		return nil, err
	}
	if _, ok := hit.Value.(object.Callable); !ok {
		return nil, nil
	}
	r.table.Sink().Report(diagnostics.AutoloadFallback(start.Name(), qualified, hit.Origin.Name()))
	return &Fetched{Value: hit.Value, Origin: hit.Origin, Name: qualified, Autoload: true}, nil
}
