package object

import (
	"math"
	"strconv"
	"strings"
)

// Defined reports whether o is anything but undef.
func Defined(o Object) bool {
	o = Value(o)
	if o == nil {
		return false
	}
	_, isUndef := o.(*UndefValue)
	return !isUndef
}

// Truthy applies scalar truth: undef, "", "0", 0 and false are false.
func Truthy(o Object) bool {
	switch v := Value(o).(type) {
	case nil, *UndefValue:
		return false
	case *Boolean:
		return v.Value
	case *Integer:
		return v.Value != 0
	case *Float:
		return v.Value != 0
	case *String:
		return v.Value != "" && v.Value != "0"
	default:
		return true
	}
}

// Numeric converts o to a float, treating non-numeric strings as 0.
func Numeric(o Object) float64 {
	switch v := Value(o).(type) {
	case *Integer:
		return float64(v.Value)
	case *Float:
		return v.Value
	case *Boolean:
		if v.Value {
			return 1
		}
		return 0
	case *String:
		return parseLeadingNumber(v.Value)
	default:
		return 0
	}
}

// IntValue truncates the numeric value of o.
func IntValue(o Object) int64 {
	if i, ok := Value(o).(*Integer); ok {
		return i.Value
	}
	f := Numeric(o)
	if math.IsNaN(f) {
		return 0
	}
	return int64(f)
}

// IsReference reports whether o is a reference kind: a blessed reference,
// a container or a code value.
func IsReference(o Object) bool {
	switch Value(o).(type) {
	case *Ref, *Array, *Hash, Callable:
		return true
	default:
		return false
	}
}

// IsPlainScalar reports whether o holds no nested reference.
func IsPlainScalar(o Object) bool {
	switch Value(o).(type) {
	case *Integer, *Float, *String, *Boolean, *UndefValue:
		return true
	default:
		return false
	}
}

func parseLeadingNumber(s string) float64 {
	s = strings.TrimSpace(s)
	end := 0
	for end < len(s) {
		c := s[end]
		if (c >= '0' && c <= '9') || c == '.' || c == 'e' || c == 'E' ||
			((c == '-' || c == '+') && (end == 0 || s[end-1] == 'e' || s[end-1] == 'E')) {
			end++
			continue
		}
		break
	}
	for end > 0 {
		if f, err := strconv.ParseFloat(s[:end], 64); err == nil {
			return f
		}
		end--
	}
	return 0
}
