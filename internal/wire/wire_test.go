package wire

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/al-bashkir/securelog/internal/value"
)

func TestParseSingleEvent(t *testing.T) {
	events, err := ParseEvents([]byte(`{
		"timestamp": "2024-01-02T03:04:05.678Z",
		"level": "ERROR",
		"logger": "billing",
		"message": "charge failed",
		"fields": {"amount": 12, "ratio": 0.5, "ok": false, "none": null, "tags": ["a", "b"], "card": {"token": "tok"}}
	}`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("expected 1 event, got %d", len(events))
	}

	ev := events[0]
	if !ev.Timestamp.Equal(time.Date(2024, 1, 2, 3, 4, 5, 678000000, time.UTC)) {
		t.Errorf("timestamp = %v", ev.Timestamp)
	}
	if ev.Level != "ERROR" || ev.LoggerName != "billing" || ev.Message != "charge failed" {
		t.Errorf("unexpected event header: %+v", ev)
	}

	got := value.Map(ev.ExtraFields).Interface()
	want := map[string]any{
		"amount": int64(12),
		"ratio":  0.5,
		"ok":     false,
		"none":   nil,
		"tags":   []any{"a", "b"},
		"card":   map[string]any{"token": "tok"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("fields = %#v, want %#v", got, want)
	}
}

func TestParseBatch(t *testing.T) {
	events, err := ParseEvents([]byte(`[{"msg": "one"}, {"message": "two", "logger_name": "x"}]`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].Message != "one" || events[1].Message != "two" || events[1].LoggerName != "x" {
		t.Errorf("unexpected events: %+v", events)
	}
	if !events[0].Timestamp.IsZero() {
		t.Errorf("missing timestamp should be zero, got %v", events[0].Timestamp)
	}
}

func TestParseNumericTimestamps(t *testing.T) {
	events, err := ParseEvents([]byte(`[{"timestamp": 1700000000123000000}, {"timestamp": 1700000000.5}]`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if got := events[0].Timestamp.UnixNano(); got != 1700000000123000000 {
		t.Errorf("nanosecond timestamp = %d", got)
	}
	if got := events[1].Timestamp.UnixMilli(); got != 1700000000500 {
		t.Errorf("float seconds timestamp = %d ms", got)
	}
}

func TestParseNonStringHeaders(t *testing.T) {
	events, err := ParseEvents([]byte(`{"message": 42, "level": true}`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if events[0].Message != "42" || events[0].Level != "true" {
		t.Errorf("unexpected header coercion: %+v", events[0])
	}
}

func TestParseLargeNumbers(t *testing.T) {
	events, err := ParseEvents([]byte(`{"fields": {"big": 123456789012345678901234567890, "max": 9223372036854775807}}`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	f := events[0].ExtraFields
	if f["big"].Kind() != value.KindFloat {
		t.Errorf("big kind = %s, want float", f["big"].Kind())
	}
	if f["max"].Kind() != value.KindInt || f["max"].Int64() != 9223372036854775807 {
		t.Errorf("max = %v", f["max"].Interface())
	}
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantErr error
		errText string
	}{
		{name: "invalid json", body: `{"message":`, errText: "invalid JSON"},
		{name: "scalar", body: `"hello"`, wantErr: ErrNotEvent},
		{name: "empty batch", body: `[]`, wantErr: ErrEmptyBatch},
		{name: "non-object in batch", body: `[{"message":"ok"}, 3]`, wantErr: ErrNotEvent, errText: "event 1"},
		{name: "fields not object", body: `{"fields": [1,2]}`, errText: "fields must be an object"},
		{name: "bad timestamp", body: `{"timestamp": "yesterday"}`, errText: "invalid timestamp"},
		{name: "too deep", body: strings.Repeat("[", 1000) + strings.Repeat("]", 1000), errText: "invalid JSON"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseEvents([]byte(tt.body))
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Errorf("error = %v, want %v", err, tt.wantErr)
			}
			if tt.errText != "" && !strings.Contains(err.Error(), tt.errText) {
				t.Errorf("error = %v, want it to contain %q", err, tt.errText)
			}
		})
	}
}

func TestNullFieldsAccepted(t *testing.T) {
	events, err := ParseEvents([]byte(`{"message": "m", "fields": null}`))
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	if len(events[0].ExtraFields) != 0 {
		t.Errorf("expected no fields, got %v", events[0].ExtraFields)
	}
}

func TestEncodeRoundTrip(t *testing.T) {
	ts := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	data, err := Encode([]Event{{
		Timestamp: ts,
		Level:     "WARN",
		Logger:    "client",
		Message:   "hello",
		Fields:    map[string]any{"n": 1},
	}})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	events, err := ParseEvents(data)
	if err != nil {
		t.Fatalf("ParseEvents failed: %v", err)
	}
	ev := events[0]
	if !ev.Timestamp.Equal(ts) || ev.Level != "WARN" || ev.LoggerName != "client" || ev.Message != "hello" {
		t.Errorf("unexpected event: %+v", ev)
	}
	if ev.ExtraFields["n"].Int64() != 1 {
		t.Errorf("n = %v", ev.ExtraFields["n"].Interface())
	}
}
