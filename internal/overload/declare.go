package overload

import (
	"sort"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/object"
	"github.com/funvibe/amagic/internal/symbols"
)

// Declare installs overloading on a class: the overload marker, the
// fallback indicator when fallback is non-nil, and one entry per operator
// token ("+", "+=", "<=>", ...). Handlers may be callables, stubs or
// *object.MethodName values. Tokens are validated before anything is
// stored.
func Declare(t *symbols.Table, class string, fallback object.Object, handlers map[string]object.Object) error {
	tokens := make([]string, 0, len(handlers))
	for tok := range handlers {
		if _, _, err := ParseOperator(tok); err != nil {
			return &ConfigurationError{Class: class, Operator: tok, Detail: err.Error()}
		}
		tokens = append(tokens, tok)
	}
	sort.Strings(tokens)

	if _, err := t.Declare(class); err != nil {
		return err
	}
	if err := t.DefineMethod(class, config.OverloadMarkerKey, object.Undef); err != nil {
		return err
	}
	if fallback != nil {
		if err := t.SetFallback(class, fallback); err != nil {
			return err
		}
	}
	for _, tok := range tokens {
		k, assign, _ := ParseOperator(tok)
		entry := k.EntryName()
		if assign {
			entry = k.AssignEntryName()
		}
		if err := t.DefineMethod(class, entry, handlers[tok]); err != nil {
			return err
		}
	}
	return nil
}
