package amagic

import (
	"fmt"
	"reflect"

	"github.com/funvibe/amagic/internal/object"
)

var (
	objectType = reflect.TypeOf((*object.Object)(nil)).Elem()
	errorType  = reflect.TypeOf((*error)(nil)).Elem()
)

// Marshaller converts between Go values and engine values.
type Marshaller struct{}

func NewMarshaller() *Marshaller {
	return &Marshaller{}
}

// ToValue converts a Go value to an Object. Objects pass through.
func (m *Marshaller) ToValue(val interface{}) (object.Object, error) {
	if val == nil {
		return object.Undef, nil
	}
	if obj, ok := val.(object.Object); ok {
		return obj, nil
	}

	v := reflect.ValueOf(val)
	if v.Kind() == reflect.Interface {
		v = v.Elem()
	}
	if !v.IsValid() {
		return object.Undef, nil
	}

	switch v.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return object.Int(v.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return object.Int(int64(v.Uint())), nil
	case reflect.Float32, reflect.Float64:
		return &object.Float{Value: v.Float()}, nil
	case reflect.Bool:
		return object.NativeBool(v.Bool()), nil
	case reflect.String:
		return object.Str(v.String()), nil
	case reflect.Slice, reflect.Array:
		return m.sliceToArray(v)
	case reflect.Map:
		return m.mapToHash(v)
	case reflect.Func:
		fn, err := m.Wrap(val)
		if err != nil {
			return nil, err
		}
		return &object.Builtin{Name: "__ANON__", Fn: fn}, nil
	default:
		return nil, fmt.Errorf("unsupported type for conversion: %T", val)
	}
}

// FromValue converts an Object to a Go value.
// targetType is optional; if provided, tries to convert to that type.
func (m *Marshaller) FromValue(obj object.Object, targetType reflect.Type) (interface{}, error) {
	if obj == nil {
		return nil, nil
	}
	if targetType == objectType {
		return obj, nil
	}

	switch o := object.Value(obj).(type) {
	case *object.Integer:
		if targetType != nil {
			switch targetType.Kind() {
			case reflect.Int:
				return int(o.Value), nil
			case reflect.Int64:
				return o.Value, nil
			case reflect.Float64:
				return float64(o.Value), nil
			}
		}
		return int(o.Value), nil // Default to int
	case *object.Float:
		if targetType != nil && targetType.Kind() == reflect.Int {
			return int(o.Value), nil
		}
		return o.Value, nil
	case *object.Boolean:
		return o.Value, nil
	case *object.String:
		return o.Value, nil
	case *object.UndefValue:
		return nil, nil
	case *object.Array:
		return m.arrayToSlice(o, targetType)
	case *object.Hash:
		return m.hashToMap(o, targetType)
	case *object.Ref, object.Callable:
		// References and code stay engine values
		return o, nil
	default:
		return nil, fmt.Errorf("unsupported type for conversion: %s", o.Type())
	}
}

// Wrap turns a Go function into a builtin. Arguments are converted with
// FromValue; a trailing error result is returned as the call error.
func (m *Marshaller) Wrap(fn interface{}) (object.BuiltinFunction, error) {
	if bf, ok := fn.(object.BuiltinFunction); ok {
		return bf, nil
	}
	if bf, ok := fn.(func(...object.Object) (object.Object, error)); ok {
		return bf, nil
	}
	fv := reflect.ValueOf(fn)
	if fv.Kind() != reflect.Func {
		return nil, fmt.Errorf("expected a function, got %T", fn)
	}
	fnType := fv.Type()
	numOut := fnType.NumOut()
	if numOut > 2 || (numOut == 2 && fnType.Out(1) != errorType) {
		return nil, fmt.Errorf("function %s: results must be (T), (error) or (T, error)", fnType)
	}

	return func(args ...object.Object) (object.Object, error) {
		numIn := fnType.NumIn()
		isVariadic := fnType.IsVariadic()

		// Check arg count
		if isVariadic {
			if len(args) < numIn-1 {
				return nil, fmt.Errorf("expected at least %d arguments, got %d", numIn-1, len(args))
			}
		} else if len(args) != numIn {
			return nil, fmt.Errorf("expected %d arguments, got %d", numIn, len(args))
		}

		goArgs := make([]reflect.Value, len(args))
		for i, arg := range args {
			var targetType reflect.Type
			if isVariadic && i >= numIn-1 {
				targetType = fnType.In(numIn - 1).Elem()
			} else {
				targetType = fnType.In(i)
			}
			val, err := m.FromValue(arg, targetType)
			if err != nil {
				return nil, fmt.Errorf("argument %d conversion failed: %w", i, err)
			}
			// reflect.ValueOf(nil) is invalid
			if val == nil {
				goArgs[i] = reflect.Zero(targetType)
				continue
			}
			rv := reflect.ValueOf(val)
			if !rv.Type().AssignableTo(targetType) {
				if !rv.Type().ConvertibleTo(targetType) {
					return nil, fmt.Errorf("argument %d: cannot use %s as %s", i, rv.Type(), targetType)
				}
				rv = rv.Convert(targetType)
			}
			goArgs[i] = rv
		}

		results := fv.Call(goArgs)
		switch {
		case len(results) == 0:
			return object.Undef, nil
		case len(results) == 1 && fnType.Out(0) == errorType:
			if err, _ := results[0].Interface().(error); err != nil {
				return nil, err
			}
			return object.Undef, nil
		case len(results) == 2:
			if err, _ := results[1].Interface().(error); err != nil {
				return nil, err
			}
		}
		return m.ToValue(results[0].Interface())
	}, nil
}

func (m *Marshaller) sliceToArray(v reflect.Value) (*object.Array, error) {
	elements := make([]object.Object, v.Len())
	for i := 0; i < v.Len(); i++ {
		val, err := m.ToValue(v.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		elements[i] = val
	}
	return &object.Array{Elements: elements}, nil
}

func (m *Marshaller) mapToHash(v reflect.Value) (*object.Hash, error) {
	if v.Type().Key().Kind() != reflect.String {
		return nil, fmt.Errorf("map key must be a string, got %s", v.Type().Key())
	}
	result := &object.Hash{Pairs: make(map[string]object.Object, v.Len())}
	iter := v.MapRange()
	for iter.Next() {
		val, err := m.ToValue(iter.Value().Interface())
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		result.Pairs[iter.Key().String()] = val
	}
	return result, nil
}

func (m *Marshaller) arrayToSlice(a *object.Array, targetType reflect.Type) (interface{}, error) {
	// If targetType is nil, default to []interface{}
	elemType := reflect.TypeOf((*interface{})(nil)).Elem()
	if targetType != nil && targetType.Kind() == reflect.Slice {
		elemType = targetType.Elem()
	}

	slice := reflect.MakeSlice(reflect.SliceOf(elemType), 0, len(a.Elements))
	for _, el := range a.Elements {
		val, err := m.FromValue(el, elemType)
		if err != nil {
			return nil, err
		}
		if val == nil {
			slice = reflect.Append(slice, reflect.Zero(elemType))
			continue
		}
		rv := reflect.ValueOf(val)
		switch {
		case rv.Type().AssignableTo(elemType):
			slice = reflect.Append(slice, rv)
		case rv.Type().ConvertibleTo(elemType):
			slice = reflect.Append(slice, rv.Convert(elemType))
		default:
			return nil, fmt.Errorf("cannot convert %s to %s", rv.Type(), elemType)
		}
	}
	return slice.Interface(), nil
}

func (m *Marshaller) hashToMap(h *object.Hash, targetType reflect.Type) (interface{}, error) {
	valType := reflect.TypeOf((*interface{})(nil)).Elem()
	if targetType != nil && targetType.Kind() == reflect.Map && targetType.Key().Kind() == reflect.String {
		valType = targetType.Elem()
	}
	result := reflect.MakeMapWithSize(reflect.MapOf(reflect.TypeOf(""), valType), len(h.Pairs))
	for k, v := range h.Pairs {
		val, err := m.FromValue(v, valType)
		if err != nil {
			return nil, fmt.Errorf("map value: %w", err)
		}
		vv := reflect.Zero(valType)
		if val != nil {
			vv = reflect.ValueOf(val)
			if !vv.Type().AssignableTo(valType) {
				if !vv.Type().ConvertibleTo(valType) {
					return nil, fmt.Errorf("cannot convert %s to %s", vv.Type(), valType)
				}
				vv = vv.Convert(valType)
			}
		}
		result.SetMapIndex(reflect.ValueOf(k), vv)
	}
	return result.Interface(), nil
}
