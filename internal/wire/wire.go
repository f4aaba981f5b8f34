// Package wire decodes log events submitted by untrusted producers.
//
// An event is a JSON object:
//
//	{
//	  "timestamp": "2024-01-02T03:04:05.678Z",  // RFC 3339 string or unix nanoseconds
//	  "level": "INFO",
//	  "logger": "billing",                        // or "logger_name"
//	  "message": "charge created",                // or "msg"
//	  "fields": {"amount": 12, "card": {"token": "..."}}
//	}
//
// A request body holds one event or an array of events.
package wire

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	"github.com/valyala/fastjson"

	"github.com/al-bashkir/securelog/internal/formatter"
	"github.com/al-bashkir/securelog/internal/value"
)

var (
	// ErrNotEvent is returned for JSON that is neither an object nor an array.
	ErrNotEvent = errors.New("expected a JSON object or array of objects")

	// ErrEmptyBatch is returned for an empty array.
	ErrEmptyBatch = errors.New("empty event batch")
)

// Event is the encoding/json form of an event, used by clients.
type Event struct {
	Timestamp time.Time      `json:"timestamp"`
	Level     string         `json:"level,omitempty"`
	Logger    string         `json:"logger,omitempty"`
	Message   string         `json:"message"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Encode marshals events as a JSON array.
func Encode(events []Event) ([]byte, error) {
	data, err := json.Marshal(events)
	if err != nil {
		return nil, fmt.Errorf("failed to encode events: %w", err)
	}
	return data, nil
}

var parsers fastjson.ParserPool

// ParseEvents decodes a single event or a batch. Parsing is all or nothing:
// one malformed event rejects the whole body.
func ParseEvents(data []byte) ([]formatter.LogEvent, error) {
	p := parsers.Get()
	defer parsers.Put(p)

	v, err := p.ParseBytes(data)
	if err != nil {
		return nil, fmt.Errorf("invalid JSON: %w", err)
	}

	switch v.Type() {
	case fastjson.TypeObject:
		ev, err := eventFrom(v)
		if err != nil {
			return nil, err
		}
		return []formatter.LogEvent{ev}, nil
	case fastjson.TypeArray:
		arr, _ := v.Array()
		if len(arr) == 0 {
			return nil, ErrEmptyBatch
		}
		events := make([]formatter.LogEvent, 0, len(arr))
		for i, item := range arr {
			ev, err := eventFrom(item)
			if err != nil {
				return nil, fmt.Errorf("event %d: %w", i, err)
			}
			events = append(events, ev)
		}
		return events, nil
	default:
		return nil, ErrNotEvent
	}
}

func eventFrom(v *fastjson.Value) (formatter.LogEvent, error) {
	var ev formatter.LogEvent

	obj, err := v.Object()
	if err != nil {
		return ev, ErrNotEvent
	}

	if ev.Timestamp, err = timestampFrom(obj.Get("timestamp")); err != nil {
		return ev, err
	}
	ev.Level = text(obj.Get("level"))
	ev.LoggerName = text(firstOf(obj, "logger_name", "logger"))
	ev.Message = text(firstOf(obj, "message", "msg"))

	if f := obj.Get("fields"); f != nil {
		switch f.Type() {
		case fastjson.TypeObject:
			ev.ExtraFields = valueFrom(f).Fields()
		case fastjson.TypeNull:
		default:
			return ev, fmt.Errorf("fields must be an object, got %s", f.Type())
		}
	}
	return ev, nil
}

func firstOf(obj *fastjson.Object, keys ...string) *fastjson.Value {
	for _, k := range keys {
		if v := obj.Get(k); v != nil {
			return v
		}
	}
	return nil
}

// text returns a string member, or the raw JSON text of any other value.
func text(v *fastjson.Value) string {
	if v == nil || v.Type() == fastjson.TypeNull {
		return ""
	}
	if v.Type() == fastjson.TypeString {
		return string(v.GetStringBytes())
	}
	return string(v.MarshalTo(nil))
}

// timestampFrom accepts an RFC 3339 string, integer unix nanoseconds or
// fractional unix seconds. A missing timestamp yields the zero time.
func timestampFrom(v *fastjson.Value) (time.Time, error) {
	if v == nil {
		return time.Time{}, nil
	}
	switch v.Type() {
	case fastjson.TypeNull:
		return time.Time{}, nil
	case fastjson.TypeString:
		ts, err := time.Parse(time.RFC3339Nano, string(v.GetStringBytes()))
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp: %w", err)
		}
		return ts, nil
	case fastjson.TypeNumber:
		if n, err := v.Int64(); err == nil {
			return time.Unix(0, n), nil
		}
		f, err := v.Float64()
		if err != nil || math.IsInf(f, 0) || math.IsNaN(f) {
			return time.Time{}, fmt.Errorf("invalid timestamp %s", v.MarshalTo(nil))
		}
		sec, frac := math.Modf(f)
		return time.Unix(int64(sec), int64(frac*1e9)), nil
	default:
		return time.Time{}, fmt.Errorf("invalid timestamp type %s", v.Type())
	}
}

// valueFrom copies a parsed JSON value out of the parser's buffers.
func valueFrom(v *fastjson.Value) value.Value {
	switch v.Type() {
	case fastjson.TypeObject:
		obj, _ := v.Object()
		fields := make(map[string]value.Value, obj.Len())
		obj.Visit(func(key []byte, item *fastjson.Value) {
			fields[string(key)] = valueFrom(item)
		})
		return value.Map(fields)
	case fastjson.TypeArray:
		arr, _ := v.Array()
		items := make([]value.Value, len(arr))
		for i, item := range arr {
			items[i] = valueFrom(item)
		}
		return value.List(items...)
	case fastjson.TypeString:
		return value.String(string(v.GetStringBytes()))
	case fastjson.TypeNumber:
		return numberFrom(string(v.MarshalTo(nil)))
	case fastjson.TypeTrue:
		return value.Bool(true)
	case fastjson.TypeFalse:
		return value.Bool(false)
	case fastjson.TypeNull:
		return value.Null()
	default:
		return value.String(v.String())
	}
}

// numberFrom keeps integers exact. Numbers that overflow float64 are kept
// as their literal text.
func numberFrom(raw string) value.Value {
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return value.Int(n)
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return value.String(raw)
	}
	return value.Float(f)
}
