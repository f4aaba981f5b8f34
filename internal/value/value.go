// Package value defines the closed set of values that may appear in the
// extra fields of a log event.
//
// A Value is a tagged union over string, integer, float, boolean, null,
// list and string-keyed map. Values built by this package are finite trees:
// Of bounds the depth it will descend into caller data, so self-referencing
// maps or slices terminate in a marker string instead of recursing forever.
package value

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"time"
)

// Kind identifies which arm of the union a Value holds.
type Kind uint8

// Value kinds. The zero Value is Null.
const (
	KindNull Kind = iota
	KindString
	KindInt
	KindFloat
	KindBool
	KindList
	KindMap
)

func (k Kind) String() string {
	switch k {
	case KindNull:
		return "null"
	case KindString:
		return "string"
	case KindInt:
		return "int"
	case KindFloat:
		return "float"
	case KindBool:
		return "bool"
	case KindList:
		return "list"
	case KindMap:
		return "map"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

const (
	// DepthExceeded replaces containers nested deeper than a walker allows.
	DepthExceeded = "<max-depth-exceeded>"

	// MaxOfDepth is the deepest container nesting Of will convert.
	MaxOfDepth = 64

	unprintable = "<unprintable>"
)

// Value is an immutable log field value. Lists and maps returned by Items
// and Fields must not be modified by callers.
type Value struct {
	kind Kind
	str  string
	num  int64
	flt  float64
	b    bool
	list []Value
	m    map[string]Value
}

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// Int returns an integer Value.
func Int(n int64) Value { return Value{kind: KindInt, num: n} }

// Float returns a floating point Value.
func Float(f float64) Value { return Value{kind: KindFloat, flt: f} }

// Bool returns a boolean Value.
func Bool(b bool) Value { return Value{kind: KindBool, b: b} }

// Null returns the null Value.
func Null() Value { return Value{} }

// List returns a list Value holding items in order.
func List(items ...Value) Value {
	if items == nil {
		items = []Value{}
	}
	return Value{kind: KindList, list: items}
}

// Map returns a map Value. A nil map is treated as empty.
func Map(fields map[string]Value) Value {
	if fields == nil {
		fields = map[string]Value{}
	}
	return Value{kind: KindMap, m: fields}
}

// Kind reports which variant v holds.
func (v Value) Kind() Kind { return v.kind }

// Str returns the payload of a KindString value. Like the other accessors
// it returns the zero value for any other Kind.
func (v Value) Str() string { return v.str }

// Int64 returns the payload of a KindInt value.
func (v Value) Int64() int64 { return v.num }

// Float64 returns the payload of a KindFloat value.
func (v Value) Float64() float64 { return v.flt }

// Boolean returns the payload of a KindBool value.
func (v Value) Boolean() bool { return v.b }

// Items returns the elements of a KindList value. Callers must not modify them.
func (v Value) Items() []Value { return v.list }

// Fields returns the entries of a KindMap value. Callers must not modify them.
func (v Value) Fields() map[string]Value { return v.m }

// Interface converts v into plain Go values: string, int64, float64, bool,
// nil, []any and map[string]any.
func (v Value) Interface() any {
	switch v.kind {
	case KindString:
		return v.str
	case KindInt:
		return v.num
	case KindFloat:
		return v.flt
	case KindBool:
		return v.b
	case KindList:
		out := make([]any, len(v.list))
		for i, item := range v.list {
			out[i] = item.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, item := range v.m {
			out[k] = item.Interface()
		}
		return out
	default:
		return nil
	}
}

// Of converts an arbitrary Go value into a Value. Types outside the union
// are rendered with fmt.Sprint.
func Of(x any) Value {
	return of(x, 0)
}

func of(x any, depth int) Value {
	switch t := x.(type) {
	case nil:
		return Null()
	case Value:
		return t
	case string:
		return String(t)
	case []byte:
		return String(string(t))
	case bool:
		return Bool(t)
	case int:
		return Int(int64(t))
	case int8:
		return Int(int64(t))
	case int16:
		return Int(int64(t))
	case int32:
		return Int(int64(t))
	case int64:
		return Int(t)
	case uint:
		return ofUint(uint64(t))
	case uint8:
		return Int(int64(t))
	case uint16:
		return Int(int64(t))
	case uint32:
		return Int(int64(t))
	case uint64:
		return ofUint(t)
	case float32:
		return Float(float64(t))
	case float64:
		return Float(t)
	case json.Number:
		if n, err := t.Int64(); err == nil {
			return Int(n)
		}
		if f, err := t.Float64(); err == nil {
			return Float(f)
		}
		return String(t.String())
	case time.Time:
		return String(t.UTC().Format(time.RFC3339Nano))
	case time.Duration:
		return String(t.String())
	case error:
		return stringify(t.Error)
	case fmt.Stringer:
		return stringify(t.String)
	case []any:
		if depth >= MaxOfDepth {
			return String(DepthExceeded)
		}
		items := make([]Value, len(t))
		for i, item := range t {
			items[i] = of(item, depth+1)
		}
		return List(items...)
	case map[string]any:
		if depth >= MaxOfDepth {
			return String(DepthExceeded)
		}
		fields := make(map[string]Value, len(t))
		for k, item := range t {
			fields[k] = of(item, depth+1)
		}
		return Map(fields)
	}
	return reflected(x, depth)
}

func ofUint(n uint64) Value {
	if n > math.MaxInt64 {
		return String(strconv.FormatUint(n, 10))
	}
	return Int(int64(n))
}

// reflected handles named types and containers of concrete element types.
func reflected(x any, depth int) Value {
	rv := reflect.ValueOf(x)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return Null()
		}
		if depth >= MaxOfDepth {
			return String(DepthExceeded)
		}
		return of(rv.Elem().Interface(), depth+1)
	case reflect.Slice, reflect.Array:
		if rv.Kind() == reflect.Slice && rv.IsNil() {
			return Null()
		}
		if depth >= MaxOfDepth {
			return String(DepthExceeded)
		}
		items := make([]Value, rv.Len())
		for i := range items {
			items[i] = of(rv.Index(i).Interface(), depth+1)
		}
		return List(items...)
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			break
		}
		if rv.IsNil() {
			return Null()
		}
		if depth >= MaxOfDepth {
			return String(DepthExceeded)
		}
		fields := make(map[string]Value, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			fields[iter.Key().String()] = of(iter.Value().Interface(), depth+1)
		}
		return Map(fields)
	case reflect.String:
		return String(rv.String())
	case reflect.Bool:
		return Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return Int(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return ofUint(rv.Uint())
	case reflect.Float32, reflect.Float64:
		return Float(rv.Float())
	}
	return stringify(func() string { return fmt.Sprint(x) })
}

// stringify calls fn, turning a panic in a caller-provided String or Error
// method into a marker.
func stringify(fn func() string) (v Value) {
	defer func() {
		if r := recover(); r != nil {
			v = String(unprintable)
		}
	}()
	return String(fn())
}
