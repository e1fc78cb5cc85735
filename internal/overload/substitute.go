package overload

import "github.com/funvibe/amagic/internal/object"

// substituteUnary applies the left table's substitution rules for a unary
// operator with no direct handler. It either fills s, leaves s empty (no
// rule matched) or answers the call itself with done set.
func (d *Dispatcher) substituteUnary(c *call, s *selection) (res Result, done bool, err error) {
	lt := c.lt
	pick := func(kinds ...Kind) bool {
		for _, k := range kinds {
			if h := lt.Handler(k); h != nil {
				s.fn, s.kind = h, k
				return true
			}
		}
		return false
	}

	switch c.op {
	case Inc, Dec:
		base := Add
		if c.op == Dec {
			base = Sub
		}
		s.forceCopy = true
		if h := lt.AssignHandler(base); h != nil {
			s.fn, s.kind, s.assignSlot = h, base, true
		} else if h := lt.Handler(base); h != nil {
			s.fn, s.kind = h, base
			s.forceCopy = false
			s.post = true
		}
		if s.fn != nil {
			s.a, s.b = c.left, object.Int(1)
			c.assignCall = true
		}

	case Bool:
		pick(Numify, Stringify)
	case Numify:
		pick(Stringify, Bool)
	case Stringify:
		pick(Numify, Bool)
	case Not:
		if pick(Bool, Numify, Stringify) {
			s.post = true
		}

	case Copy:
		if ref, ok := object.Value(c.left).(*object.Ref); ok {
			inst := ref.Target()
			if object.IsPlainScalar(inst.Storage) {
				return Result{Kind: ResultValue, Value: object.Bless(inst.Stash(), inst.Storage)}, true, nil
			}
		}

	case Abs:
		return d.substituteAbs(c, s)

	case Neg:
		if pick(Sub) {
			// 0 - x, seen from x: handler(x, 0, swapped)
			s.a, s.b = c.left, object.Int(0)
			s.right = true
		}

	case Int, Iterate:
		return notApplicable(false), true, nil

	case ToScalar, ToArray, ToHash, ToGlob, ToCode:
		return notApplicable(false), true, nil
	}
	return Result{}, false, nil
}

// substituteAbs computes abs from a comparison with zero plus neg or
// subtraction. A non-negative operand is returned as is.
func (d *Dispatcher) substituteAbs(c *call, s *selection) (Result, bool, error) {
	lt := c.lt
	cmp := Lt
	if lt.Handler(Lt) == nil {
		cmp = NumCmp
		if lt.Handler(NumCmp) == nil {
			return Result{}, false, nil
		}
	}
	negate := Neg
	if lt.Handler(Neg) == nil {
		negate = Sub
		if lt.Handler(Sub) == nil {
			return Result{}, false, nil
		}
	}

	zero := object.Int(0)
	r, err := d.dispatch(cmp, c.left, zero, false, true)
	if err != nil {
		return Result{}, true, err
	}
	var negative bool
	if cmp == Lt {
		negative = object.Truthy(r.Value)
	} else {
		negative = object.Numeric(r.Value) < 0
	}
	if !negative {
		return Result{Kind: ResultValue, Value: c.left}, true, nil
	}

	s.fn, s.kind = lt.Handler(negate), negate
	if negate == Sub {
		s.a, s.b = c.left, zero
		s.right = true
	}
	return Result{}, false, nil
}

// substituteCompare maps a comparison without a direct handler onto the
// three-way operator of its family, left table first.
func substituteCompare(c *call, s *selection) bool {
	base, ok := c.op.compareBase()
	if !ok {
		return false
	}
	if c.lt.permits() {
		if h := c.lt.Handler(base); h != nil {
			s.fn, s.kind = h, base
			s.a, s.b = c.left, c.right
		}
	}
	if s.fn == nil && c.rt.permits() {
		if h := c.rt.Handler(base); h != nil {
			s.fn, s.kind, s.right = h, base, true
			s.a, s.b = c.right, c.left
		}
	}
	if s.fn == nil {
		return false
	}
	s.post = true
	return true
}
