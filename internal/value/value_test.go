package value

import (
	"encoding/json"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"
)

type level int

type named string

type stringer struct{}

func (stringer) String() string { return "stringer" }

type panicky struct{}

func (panicky) String() string { panic("boom") }

func TestOfScalars(t *testing.T) {
	tests := []struct {
		name string
		in   any
		kind Kind
		want any
	}{
		{"nil", nil, KindNull, nil},
		{"string", "x", KindString, "x"},
		{"bytes", []byte("raw"), KindString, "raw"},
		{"bool", true, KindBool, true},
		{"int", 123, KindInt, int64(123)},
		{"int8", int8(-3), KindInt, int64(-3)},
		{"uint32", uint32(7), KindInt, int64(7)},
		{"uint64 overflow", uint64(math.MaxUint64), KindString, "18446744073709551615"},
		{"float32", float32(0.5), KindFloat, 0.5},
		{"float64", 1.23, KindFloat, 1.23},
		{"json int", json.Number("42"), KindInt, int64(42)},
		{"json float", json.Number("4.2"), KindFloat, 4.2},
		{"time", time.Date(2024, 1, 2, 3, 4, 5, 0, time.FixedZone("X", 3600)), KindString, "2024-01-02T02:04:05Z"},
		{"duration", 1500 * time.Millisecond, KindString, "1.5s"},
		{"error", errors.New("failed"), KindString, "failed"},
		{"stringer", stringer{}, KindString, "stringer"},
		{"panicking stringer", panicky{}, KindString, unprintable},
		{"named int", level(3), KindInt, int64(3)},
		{"named string", named("n"), KindString, "n"},
		{"struct fallback", struct{ A int }{1}, KindString, "{1}"},
		{"nil pointer", (*int)(nil), KindNull, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := Of(tt.in)
			if v.Kind() != tt.kind {
				t.Fatalf("Of(%v).Kind() = %s, want %s", tt.in, v.Kind(), tt.kind)
			}
			if got := v.Interface(); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Of(%v) = %#v, want %#v", tt.in, got, tt.want)
			}
		})
	}
}

func TestOfContainers(t *testing.T) {
	n := 5
	in := map[string]any{
		"list":    []any{"a", 1, nil},
		"ints":    []int{1, 2},
		"nested":  map[string]string{"k": "v"},
		"pointer": &n,
	}

	got := Of(in).Interface()
	want := map[string]any{
		"list":    []any{"a", int64(1), nil},
		"ints":    []any{int64(1), int64(2)},
		"nested":  map[string]any{"k": "v"},
		"pointer": int64(5),
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Of(containers) = %#v, want %#v", got, want)
	}
}

func TestOfCycleIsBounded(t *testing.T) {
	m := map[string]any{}
	m["self"] = m

	v := Of(m)
	depth := 0
	for v.Kind() == KindMap {
		v = v.Fields()["self"]
		depth++
	}
	if v.Kind() != KindString || v.Str() != DepthExceeded {
		t.Fatalf("expected depth marker at the bottom, got %s %q", v.Kind(), v.Str())
	}
	if depth != MaxOfDepth {
		t.Errorf("expected %d map levels, got %d", MaxOfDepth, depth)
	}
}

func TestZeroValueIsNull(t *testing.T) {
	var v Value
	if v.Kind() != KindNull {
		t.Errorf("zero Value kind = %s, want null", v.Kind())
	}
	if v.Interface() != nil {
		t.Errorf("zero Value Interface() = %v, want nil", v.Interface())
	}
}

func TestEmptyContainers(t *testing.T) {
	if got := List().Interface(); !reflect.DeepEqual(got, []any{}) {
		t.Errorf("List() = %#v, want empty slice", got)
	}
	if got := Map(nil).Interface(); !reflect.DeepEqual(got, map[string]any{}) {
		t.Errorf("Map(nil) = %#v, want empty map", got)
	}
}
