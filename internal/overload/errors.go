package overload

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrConfiguration     = errors.New("overload configuration error")
	ErrCopyNotReference  = errors.New("Copy method did not return a reference")
	ErrDerefNotReference = errors.New("Overloaded dereference did not return a reference")
	ErrDerefLoop         = errors.New("overloaded dereference chain too long")
	ErrNotDeref          = errors.New("not a dereference operator")
)

// ConfigurationError reports an overload entry that cannot serve as a
// handler.
type ConfigurationError struct {
	Class    string
	Operator string // token, e.g. "+" or "+="
	Method   string // method name for late-bound entries
	Detail   string
}

func (e *ConfigurationError) Error() string {
	if e.Method != "" {
		return fmt.Sprintf("Can't resolve method \"%s\" overloading \"%s\" in package \"%s\"", e.Method, e.Operator, e.Class)
	}
	return fmt.Sprintf("overload entry \"%s\" in package \"%s\": %s", e.Operator, e.Class, e.Detail)
}

func (e *ConfigurationError) Is(target error) bool { return target == ErrConfiguration }

// NoMethodError is the hard failure a caller raises when Dispatch returned
// a strict NotApplicable and no built-in behaviour applies.
type NoMethodError struct {
	Operator string
	Unary    bool
	Left     string // overloaded package of the left operand, or ""
	Right    string
}

func (e *NoMethodError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Operation \"%s\": no method found,", e.Operator)
	if e.Unary {
		b.WriteString(" argument ")
		b.WriteString(describeOperand(e.Left))
		b.WriteString(".")
		return b.String()
	}
	b.WriteString("\n\tleft argument ")
	b.WriteString(describeOperand(e.Left))
	b.WriteString(",\n\tright argument ")
	b.WriteString(describeOperand(e.Right))
	b.WriteString(".")
	return b.String()
}

func describeOperand(pkg string) string {
	if pkg == "" {
		return "has no overloaded magic"
	}
	return "in overloaded package " + pkg
}
