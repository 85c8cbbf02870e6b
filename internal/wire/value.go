package wire

import (
	"fmt"
	"math/big"
	"time"
)

// Kind identifies the wire category a Value carries.
type Kind uint8

const (
	KindNull Kind = iota
	KindUndefined
	KindBool
	KindNumber
	KindString
	KindHandle
	KindTime
	KindList
	KindMap
)

// String returns the category name for diagnostics.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindUndefined:
		return "undefined"
	case KindBool:
		return "bool"
	case KindNumber:
		return "number"
	case KindString:
		return "string"
	case KindHandle:
		return "handle"
	case KindTime:
		return "time"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// Handle is the opaque descriptor standing in for a value that cannot itself
// cross the runtime boundary. ID is a decimal string assigned monotonically
// by the registry; Type is the run-time category of the referenced value at
// registration time; Name is a best-effort display label.
type Handle struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Name string `json:"name"`
}

// IsZero reports whether h is the zero descriptor.
func (h Handle) IsZero() bool {
	return h.ID == "" && h.Type == "" && h.Name == ""
}

// Value is the tagged variant over the wire vocabulary.
type Value struct {
	kind Kind
	b    bool
	num  float64
	str  string
	h    Handle
	t    time.Time
	list []Value
	m    map[string]Value
}

// Kind returns the category tag.
func (v Value) Kind() Kind { return v.kind }

// Constructors for each wire category.

func Null() Value          { return Value{kind: KindNull} }
func UndefinedVal() Value  { return Value{kind: KindUndefined} }
func Bool(b bool) Value    { return Value{kind: KindBool, b: b} }
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }
func String(s string) Value  { return Value{kind: KindString, str: s} }
func HandleVal(h Handle) Value { return Value{kind: KindHandle, h: h} }
func Time(t time.Time) Value   { return Value{kind: KindTime, t: t} }
func List(elems []Value) Value { return Value{kind: KindList, list: elems} }
func Map(m map[string]Value) Value { return Value{kind: KindMap, m: m} }

// Accessors. Each returns the zero value when the tag does not match.

func (v Value) BoolVal() bool            { return v.b }
func (v Value) NumberVal() float64       { return v.num }
func (v Value) StringVal() string        { return v.str }
func (v Value) HandleDesc() Handle       { return v.h }
func (v Value) TimeVal() time.Time       { return v.t }
func (v Value) ListVal() []Value         { return v.list }
func (v Value) MapVal() map[string]Value { return v.m }

// Export converts a Value back to the in-process dynamic representation:
// nil, Undefined, bool, float64, string, Handle, time.Time, []any or
// map[string]any.
func (v Value) Export() any {
	switch v.kind {
	case KindNull:
		return nil
	case KindUndefined:
		return Undefined
	case KindBool:
		return v.b
	case KindNumber:
		return v.num
	case KindString:
		return v.str
	case KindHandle:
		return v.h
	case KindTime:
		return v.t
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Export()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Export()
		}
		return out
	default:
		return nil
	}
}

// Undefined is the in-process sentinel distinguishing an absent value from
// null. It marshals to the sentinel string "undefined".
var Undefined = undefined{}

type undefined struct{}

func (undefined) String() string { return "undefined" }

// Symbol is the in-process analog of a symbol value. Symbols cannot cross
// the runtime boundary; marshalling one raises ErrUnsupported.
type Symbol string

// Callable is the in-process representation of a function value that the
// other side may invoke by handle. Callables are always passed by pointer so
// that registry identity is allocation identity.
type Callable struct {
	// Name is the display label used for the handle descriptor.
	Name string
	// Fn receives arguments already lowered to the dynamic representation.
	Fn func(args []any) (any, error)
}

// Invoke runs the callable. A nil Fn reports an error rather than panicking.
func (c *Callable) Invoke(args []any) (any, error) {
	if c == nil || c.Fn == nil {
		return nil, fmt.Errorf("callable %q has no implementation", c.displayName())
	}
	return c.Fn(args)
}

func (c *Callable) displayName() string {
	if c == nil {
		return ""
	}
	return c.Name
}

// TypeOf computes the run-time category of an in-process value, mirroring a
// dynamic typeof. The category is stored on handles at registration time and
// revalidated on resolve.
func TypeOf(v any) string {
	switch v.(type) {
	case undefined:
		return "undefined"
	case *Callable:
		return "function"
	case Symbol:
		return "symbol"
	case string:
		return "string"
	case bool:
		return "boolean"
	case int, int8, int16, int32, uint, uint8, uint16, uint32, float32, float64:
		return "number"
	case int64, uint64, *big.Int:
		return "bigint"
	default:
		// null and everything structured report "object", as typeof does.
		return "object"
	}
}
