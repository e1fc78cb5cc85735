package overload

import (
	"fmt"

	"github.com/funvibe/amagic/internal/config"
	"github.com/funvibe/amagic/internal/object"
)

// Deref applies an overloaded dereference handler to operand until the
// result is no longer overloaded for op or a handler returns its own
// operand. The returned value is what the container access should use.
func (d *Dispatcher) Deref(op Kind, operand object.Object) (object.Object, error) {
	if !op.IsDeref() {
		return nil, fmt.Errorf("%s: %w", op, ErrNotDeref)
	}
	cur := operand
	for i := 0; i < config.MaxDerefChain; i++ {
		c := d.ClassOf(cur)
		if c == nil {
			return cur, nil
		}
		tbl, err := d.updater.Ensure(c)
		if err != nil {
			return nil, err
		}
		if tbl.NoDeref() {
			return cur, nil
		}

		res, err := d.dispatch(op, cur, nil, false, true)
		if err != nil {
			return nil, err
		}
		if !res.Applicable() {
			return cur, nil
		}
		if !object.IsReference(res.Value) {
			return nil, ErrDerefNotReference
		}
		if res.Value == cur || object.SameReferent(object.Value(res.Value), object.Value(cur)) {
			return res.Value, nil
		}
		cur = res.Value
	}
	return nil, fmt.Errorf("%s after %d hops: %w", op, config.MaxDerefChain, ErrDerefLoop)
}
