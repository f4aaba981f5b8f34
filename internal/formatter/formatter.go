// Package formatter turns log events into single-line JSON records with
// sensitive values redacted and every string sanitized.
//
// Record layout:
//
//	{"level":"INFO","logger_name":"app","message":"...","timestamp":"2024-01-02T03:04:05.000Z", ...extra fields}
//
// Extra fields are merged after the standard fields and may overwrite them.
// This lets callers attach rich context, at the cost that a careless caller
// can replace timestamp, level, message or logger_name.
package formatter

import (
	"encoding/json"
	"fmt"
	"math"
	"time"

	"github.com/al-bashkir/securelog/internal/logsanitize"
	"github.com/al-bashkir/securelog/internal/redact"
	"github.com/al-bashkir/securelog/internal/sensitive"
	"github.com/al-bashkir/securelog/internal/value"
)

// Standard record fields.
const (
	FieldTimestamp = "timestamp"
	FieldLevel     = "level"
	FieldMessage   = "message"
	FieldLogger    = "logger_name"
)

// TimeFormat renders timestamps in UTC with millisecond precision.
const TimeFormat = "2006-01-02T15:04:05.000Z"

// FallbackMessage is emitted when a record cannot be serialized.
const FallbackMessage = "log record could not be serialized"

const defaultLevel = "INFO"

// LogEvent is a snapshot of one log call.
type LogEvent struct {
	Timestamp   time.Time
	Level       string
	LoggerName  string
	Message     string
	ExtraFields map[string]value.Value
}

// Formatter is safe for concurrent use.
type Formatter struct {
	redactor *redact.Redactor
	now      func() time.Time
}

// Option configures a Formatter.
type Option func(*formatterOptions)

type formatterOptions struct {
	limits redact.Limits
	now    func() time.Time
}

// WithLimits bounds the depth and size of extra field trees.
func WithLimits(l redact.Limits) Option {
	return func(o *formatterOptions) { o.limits = l }
}

// WithClock sets the clock used for events without a timestamp.
func WithClock(now func() time.Time) Option {
	return func(o *formatterOptions) { o.now = now }
}

// New creates a Formatter redacting the given keys. A nil key set selects
// sensitive.Default.
func New(keys *sensitive.KeySet, opts ...Option) *Formatter {
	o := formatterOptions{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	if o.now == nil {
		o.now = time.Now
	}
	return &Formatter{
		redactor: redact.New(keys, o.limits),
		now:      o.now,
	}
}

// Format renders ev as compact JSON without a trailing newline. It never
// fails; if the record cannot be encoded a minimal record carrying
// FallbackMessage is returned instead.
func (f *Formatter) Format(ev LogEvent) (out string) {
	ts := ev.Timestamp
	if ts.IsZero() {
		ts = f.now()
	}
	stamp := ts.UTC().Format(TimeFormat)

	level := logsanitize.Sanitize(ev.Level)
	if level == "" {
		level = defaultLevel
	}
	logger := logsanitize.Sanitize(ev.LoggerName)

	defer func() {
		if r := recover(); r != nil {
			out = fallback(stamp, level, logger)
		}
	}()

	record := map[string]any{
		FieldTimestamp: stamp,
		FieldLevel:     level,
		FieldMessage:   logsanitize.Sanitize(ev.Message),
		FieldLogger:    logger,
	}
	for k, v := range f.redactor.RedactFields(ev.ExtraFields) {
		record[k] = encodable(v)
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fallback(stamp, level, logger)
	}
	return string(data)
}

// encodable converts v for encoding/json. Values JSON cannot represent,
// such as NaN and infinities, take the string fallback path.
func encodable(v value.Value) any {
	switch v.Kind() {
	case value.KindString:
		return v.Str()
	case value.KindInt:
		return v.Int64()
	case value.KindFloat:
		f := v.Float64()
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return logsanitize.Sanitize(fmt.Sprint(f))
		}
		return f
	case value.KindBool:
		return v.Boolean()
	case value.KindNull:
		return nil
	case value.KindList:
		items := v.Items()
		out := make([]any, len(items))
		for i, item := range items {
			out[i] = encodable(item)
		}
		return out
	case value.KindMap:
		fields := v.Fields()
		out := make(map[string]any, len(fields))
		for k, item := range fields {
			out[k] = encodable(item)
		}
		return out
	default:
		return logsanitize.SanitizeAny(v.Interface())
	}
}

func fallback(stamp, level, logger string) string {
	data, err := json.Marshal(map[string]string{
		FieldTimestamp: stamp,
		FieldLevel:     level,
		FieldMessage:   FallbackMessage,
		FieldLogger:    logger,
	})
	if err != nil {
		return `{"message":"` + FallbackMessage + `"}`
	}
	return string(data)
}
