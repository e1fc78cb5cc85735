package overload

import (
	"fmt"
	"strings"

	"github.com/funvibe/amagic/internal/config"
)

// Kind is an overloadable operator.
type Kind int

const (
	// Dereference
	ToScalar Kind = iota // ${}
	ToArray              // @{}
	ToHash               // %{}
	ToGlob               // *{}
	ToCode               // &{}
	Iterate              // <>

	// Unary
	Inc        // ++
	Dec        // --
	Bool       // bool
	Numify     // 0+
	Stringify  // ""
	Not        // !
	Copy       // =
	Abs        // abs
	Neg        // neg
	Int        // int
	Complement // ~

	// Numeric comparison
	Lt     // <
	Le     // <=
	Gt     // >
	Ge     // >=
	NumEq  // ==
	NumNe  // !=
	NumCmp // <=>

	// String comparison
	StrLt  // lt
	StrLe  // le
	StrGt  // gt
	StrGe  // ge
	StrEq  // eq
	StrNe  // ne
	StrCmp // cmp

	// Arithmetic
	Add // +
	Sub // -
	Mul // *
	Div // /
	Mod // %
	Pow // **

	// Bitwise
	Lshift // <<
	Rshift // >>
	BitAnd // &
	BitOr  // |
	BitXor // ^

	// String
	Concat // .
	Repeat // x

	// Math functions
	Atan2
	Cos
	Sin
	Exp
	Log
	Sqrt

	NoMethod // nomethod

	numKinds
)

// Family groups operators that share substitution behaviour.
type Family int

const (
	FamilyDeref Family = iota
	FamilyUnary
	FamilyNumCompare
	FamilyStrCompare
	FamilyArith
	FamilyBitwise
	FamilyString
	FamilyMath
	FamilyCatchAll
)

var tokens = [numKinds]string{
	ToScalar: "${}", ToArray: "@{}", ToHash: "%{}", ToGlob: "*{}", ToCode: "&{}", Iterate: "<>",
	Inc: "++", Dec: "--", Bool: "bool", Numify: "0+", Stringify: `""`, Not: "!", Copy: "=",
	Abs: "abs", Neg: "neg", Int: "int", Complement: "~",
	Lt: "<", Le: "<=", Gt: ">", Ge: ">=", NumEq: "==", NumNe: "!=", NumCmp: "<=>",
	StrLt: "lt", StrLe: "le", StrGt: "gt", StrGe: "ge", StrEq: "eq", StrNe: "ne", StrCmp: "cmp",
	Add: "+", Sub: "-", Mul: "*", Div: "/", Mod: "%", Pow: "**",
	Lshift: "<<", Rshift: ">>", BitAnd: "&", BitOr: "|", BitXor: "^",
	Concat: ".", Repeat: "x",
	Atan2: "atan2", Cos: "cos", Sin: "sin", Exp: "exp", Log: "log", Sqrt: "sqrt",
	NoMethod: "nomethod",
}

var byToken = func() map[string]Kind {
	m := make(map[string]Kind, numKinds)
	for k := Kind(0); k < numKinds; k++ {
		m[tokens[k]] = k
	}
	return m
}()

// Kinds returns every operator in table order.
func Kinds() []Kind {
	out := make([]Kind, numKinds)
	for i := range out {
		out[i] = Kind(i)
	}
	return out
}

func (k Kind) Valid() bool { return k >= 0 && k < numKinds }

// Token is the operator as written in an overload declaration.
func (k Kind) Token() string {
	if !k.Valid() {
		return fmt.Sprintf("Kind(%d)", int(k))
	}
	return tokens[k]
}

func (k Kind) String() string { return k.Token() }

// AssignToken is the token of the assignment variant, e.g. "+=".
func (k Kind) AssignToken() string { return k.Token() + "=" }

// EntryName is the method-map name holding the handler, e.g. "(+".
func (k Kind) EntryName() string { return config.OverloadPrefix + k.Token() }

// AssignEntryName is the method-map name of the assignment variant.
func (k Kind) AssignEntryName() string { return config.OverloadPrefix + k.AssignToken() }

func (k Kind) Family() Family {
	switch k {
	case ToScalar, ToArray, ToHash, ToGlob, ToCode, Iterate:
		return FamilyDeref
	case Inc, Dec, Bool, Numify, Stringify, Not, Copy, Abs, Neg, Int, Complement:
		return FamilyUnary
	case Lt, Le, Gt, Ge, NumEq, NumNe, NumCmp:
		return FamilyNumCompare
	case StrLt, StrLe, StrGt, StrGe, StrEq, StrNe, StrCmp:
		return FamilyStrCompare
	case Add, Sub, Mul, Div, Mod, Pow:
		return FamilyArith
	case Lshift, Rshift, BitAnd, BitOr, BitXor:
		return FamilyBitwise
	case Concat, Repeat:
		return FamilyString
	case Atan2, Cos, Sin, Exp, Log, Sqrt:
		return FamilyMath
	default:
		return FamilyCatchAll
	}
}

// Unary reports whether the operator takes a single operand. Unary
// operators never consult the right operand.
func (k Kind) Unary() bool {
	switch k.Family() {
	case FamilyDeref, FamilyUnary:
		return true
	case FamilyMath:
		return k != Atan2
	default:
		return false
	}
}

// HasAssign reports whether the operator has an assignment form (+= etc).
func (k Kind) HasAssign() bool {
	switch k.Family() {
	case FamilyArith, FamilyBitwise, FamilyString:
		return true
	default:
		return false
	}
}

// IsDeref reports whether k is one of the container conversion operators
// handled by Deref.
func (k Kind) IsDeref() bool {
	switch k {
	case ToScalar, ToArray, ToHash, ToGlob, ToCode:
		return true
	default:
		return false
	}
}

// compareBase is the three-way operator comparisons fall back to.
func (k Kind) compareBase() (Kind, bool) {
	switch k.Family() {
	case FamilyNumCompare:
		if k == NumCmp {
			return 0, false
		}
		return NumCmp, true
	case FamilyStrCompare:
		if k == StrCmp {
			return 0, false
		}
		return StrCmp, true
	default:
		return 0, false
	}
}

// ParseOperator maps a token back to its operator. "+=" yields Add with
// assign set.
func ParseOperator(token string) (k Kind, assign bool, err error) {
	token = strings.TrimPrefix(strings.TrimSpace(token), config.OverloadPrefix)
	if k, ok := byToken[token]; ok {
		return k, false, nil
	}
	if base, ok := strings.CutSuffix(token, "="); ok {
		if k, ok := byToken[base]; ok && k.HasAssign() {
			return k, true, nil
		}
	}
	return 0, false, fmt.Errorf("unknown operator %q", token)
}
