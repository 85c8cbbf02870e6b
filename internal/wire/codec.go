package wire

import (
	"errors"
	"fmt"
	"iter"
	"math/big"
	"reflect"
	"sort"
	"strings"
	"time"
)

// ErrUnsupported reports a value category that cannot cross the runtime
// boundary. It is a structural error: raised locally, never retried.
var ErrUnsupported = errors.New("wire: unsupported value category")

// Registrar assigns handles to callables encountered during marshalling.
// The handle registry implements it.
type Registrar interface {
	Register(v any) Handle
}

// Marshal reduces an in-process value to the wire vocabulary. It is total
// over the supported categories and recursive over lists and mappings; no
// cycle detection is performed, so callers must not pass cyclic structures.
//
// Callables are registered with reg and replaced by their handle descriptor.
// Symbols and 64-bit integers (including big.Int) fail fast.
func Marshal(v any, reg Registrar) (Value, error) {
	switch x := v.(type) {
	case nil:
		return Null(), nil
	case undefined:
		return UndefinedVal(), nil
	case Value:
		return x, nil
	case Handle:
		return HandleVal(x), nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Number(float64(x)), nil
	case int8:
		return Number(float64(x)), nil
	case int16:
		return Number(float64(x)), nil
	case int32:
		return Number(float64(x)), nil
	case uint:
		return Number(float64(x)), nil
	case uint8:
		return Number(float64(x)), nil
	case uint16:
		return Number(float64(x)), nil
	case uint32:
		return Number(float64(x)), nil
	case int64, uint64, *big.Int:
		return Value{}, fmt.Errorf("%w: 64-bit integer %v", ErrUnsupported, x)
	case Symbol:
		return Value{}, fmt.Errorf("%w: symbol %q", ErrUnsupported, string(x))
	case *Callable:
		if reg == nil {
			return Value{}, fmt.Errorf("%w: callable %q without a registrar", ErrUnsupported, x.displayName())
		}
		return HandleVal(reg.Register(x)), nil
	case time.Time:
		return Time(x), nil
	case *time.Time:
		if x == nil {
			return Null(), nil
		}
		return Time(*x), nil
	case iter.Seq[any]:
		return marshalSeq(x, reg)
	case func(yield func(any) bool):
		return marshalSeq(x, reg)
	case []any:
		return marshalSlice(reflect.ValueOf(x), reg)
	case map[string]any:
		m := make(map[string]Value, len(x))
		for k, e := range x {
			wv, err := Marshal(e, reg)
			if err != nil {
				return Value{}, err
			}
			m[k] = wv
		}
		return Map(m), nil
	case error:
		return Map(map[string]Value{"message": String(x.Error())}), nil
	}
	return marshalReflect(v, reg)
}

// marshalReflect handles the structural remainder: boxed primitives, typed
// slices and maps, and plain structs flattened to their exported fields.
func marshalReflect(v any, reg Registrar) (Value, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return Null(), nil
		}
		// Boxed primitives (and pointer-to-struct) unwrap and re-marshal.
		return Marshal(rv.Elem().Interface(), reg)
	case reflect.Slice, reflect.Array:
		return marshalSlice(rv, reg)
	case reflect.Map:
		m := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			wv, err := Marshal(iter.Value().Interface(), reg)
			if err != nil {
				return Value{}, err
			}
			m[fmt.Sprint(iter.Key().Interface())] = wv
		}
		return Map(m), nil
	case reflect.Struct:
		return marshalStruct(rv, reg)
	case reflect.Func, reflect.Chan:
		return Value{}, fmt.Errorf("%w: %s (wrap functions in *wire.Callable)", ErrUnsupported, rv.Kind())
	default:
		return Value{}, fmt.Errorf("%w: %T", ErrUnsupported, v)
	}
}

// marshalSeq drains sequential iteration into an ordered list.
func marshalSeq(seq func(yield func(any) bool), reg Registrar) (Value, error) {
	var elems []Value
	for e := range seq {
		wv, err := Marshal(e, reg)
		if err != nil {
			return Value{}, err
		}
		elems = append(elems, wv)
	}
	return List(elems), nil
}

func marshalSlice(rv reflect.Value, reg Registrar) (Value, error) {
	elems := make([]Value, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		wv, err := Marshal(rv.Index(i).Interface(), reg)
		if err != nil {
			return Value{}, err
		}
		elems[i] = wv
	}
	return List(elems), nil
}

// marshalStruct flattens a plain struct into a keyed mapping of its exported
// fields, the closest analog to enumerating an object's own entries.
func marshalStruct(rv reflect.Value, reg Registrar) (Value, error) {
	rt := rv.Type()
	m := make(map[string]Value, rt.NumField())
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		wv, err := Marshal(rv.Field(i).Interface(), reg)
		if err != nil {
			return Value{}, fmt.Errorf("field %s: %w", f.Name, err)
		}
		m[fieldKey(f)] = wv
	}
	return Map(m), nil
}

func fieldKey(f reflect.StructField) string {
	if tag, ok := f.Tag.Lookup("json"); ok && tag != "-" {
		name, _, _ := strings.Cut(tag, ",")
		if name != "" {
			return name
		}
	}
	return f.Name
}

// FormatTime renders a date/time value as ISO-8601 with an explicit numeric
// UTC offset. The offset is derived from the value's location in minutes,
// sign-preserving, with hours and minutes zero-padded to two digits; "Z" is
// never emitted.
func FormatTime(t time.Time) string {
	_, offsetSec := t.Zone()
	offsetMin := offsetSec / 60
	sign := "+"
	if offsetMin < 0 {
		sign = "-"
		offsetMin = -offsetMin
	}
	return fmt.Sprintf("%s%s%02d:%02d",
		t.Format("2006-01-02T15:04:05.000"), sign, offsetMin/60, offsetMin%60)
}

// SortedKeys returns the keys of a wire mapping in lexical order, for
// deterministic iteration in logs and tests.
func SortedKeys(m map[string]Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
