package formatter

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"

	"github.com/al-bashkir/securelog/internal/redact"
	"github.com/al-bashkir/securelog/internal/sensitive"
)

func newTestLogger(buf *bytes.Buffer, level slog.Level) *slog.Logger {
	f := New(sensitive.Default())
	return slog.New(NewHandler(buf, f, &HandlerOptions{Level: level, Name: "test_logger"}))
}

func lines(t *testing.T, buf *bytes.Buffer) []map[string]any {
	t.Helper()
	var out []map[string]any
	for _, line := range strings.Split(strings.TrimRight(buf.String(), "\n"), "\n") {
		if line == "" {
			continue
		}
		var rec map[string]any
		if err := json.Unmarshal([]byte(line), &rec); err != nil {
			t.Fatalf("invalid record %q: %v", line, err)
		}
		out = append(out, rec)
	}
	return out
}

func TestHandlerWritesOneRecordPerLine(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo)

	log.Info("first\nsecond", "user", "test", "password", "hunter2")
	log.Warn("third")

	recs := lines(t, &buf)
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d: %q", len(recs), buf.String())
	}

	first := recs[0]
	if first[FieldMessage] != "first second" {
		t.Errorf("message = %v", first[FieldMessage])
	}
	if first[FieldLevel] != "INFO" {
		t.Errorf("level = %v, want INFO", first[FieldLevel])
	}
	if first[FieldLogger] != "test_logger" {
		t.Errorf("logger_name = %v", first[FieldLogger])
	}
	if first["user"] != "test" {
		t.Errorf("user = %v", first["user"])
	}
	if first["password"] != redact.Marker {
		t.Errorf("password = %v, want redacted", first["password"])
	}
	if recs[1][FieldLevel] != "WARN" {
		t.Errorf("second level = %v, want WARN", recs[1][FieldLevel])
	}
}

func TestHandlerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelWarn)

	log.Info("dropped")
	log.Error("kept")

	recs := lines(t, &buf)
	if len(recs) != 1 || recs[0][FieldMessage] != "kept" {
		t.Errorf("unexpected records: %v", recs)
	}
	if log.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled")
	}
}

func TestHandlerDefaultLevelIsInfo(t *testing.T) {
	h := NewHandler(&bytes.Buffer{}, New(nil), nil)
	if h.Enabled(context.Background(), slog.LevelDebug) {
		t.Error("debug should be disabled by default")
	}
	if !h.Enabled(context.Background(), slog.LevelInfo) {
		t.Error("info should be enabled by default")
	}
}

func TestHandlerGroupsAndAttrs(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo).
		With("service", "api").
		WithGroup("req").
		With("id", 7)

	log.Info("grouped",
		slog.Group("headers", slog.String("Authorization", "Bearer x"), slog.String("Accept", "*/*")),
		slog.Group("empty"),
		slog.Int("status", 200),
	)

	recs := lines(t, &buf)
	if len(recs) != 1 {
		t.Fatalf("expected 1 record, got %d", len(recs))
	}
	rec := recs[0]

	if rec["service"] != "api" {
		t.Errorf("service = %v", rec["service"])
	}
	req, ok := rec["req"].(map[string]any)
	if !ok {
		t.Fatalf("expected req group, got %v", rec)
	}
	if req["id"] != float64(7) || req["status"] != float64(200) {
		t.Errorf("req = %v", req)
	}
	if _, ok := req["empty"]; ok {
		t.Error("empty group should be omitted")
	}
	headers := req["headers"].(map[string]any)
	if headers["Authorization"] != redact.Marker {
		t.Errorf("nested Authorization = %v, want redacted", headers["Authorization"])
	}
	if headers["Accept"] != "*/*" {
		t.Errorf("Accept = %v", headers["Accept"])
	}
}

func TestHandlerInlinesEmptyGroupKey(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo)

	log.Info("inline", slog.Group("", slog.String("a", "b")), slog.Attr{})

	rec := lines(t, &buf)[0]
	if rec["a"] != "b" {
		t.Errorf("expected inlined attr, got %v", rec)
	}
	if _, ok := rec[""]; ok {
		t.Error("empty attr should be dropped")
	}
}

type secretValue struct{ raw string }

func (s secretValue) LogValue() slog.Value {
	return slog.GroupValue(slog.String("token", s.raw), slog.String("kind", "api"))
}

func TestHandlerResolvesLogValuer(t *testing.T) {
	var buf bytes.Buffer
	log := newTestLogger(&buf, slog.LevelInfo)

	log.Info("valuer", "credential", secretValue{raw: "abc"})

	cred := lines(t, &buf)[0]["credential"].(map[string]any)
	if cred["token"] != redact.Marker || cred["kind"] != "api" {
		t.Errorf("credential = %v", cred)
	}
}

func TestWithGroupDoesNotLeakBetweenLoggers(t *testing.T) {
	var buf bytes.Buffer
	base := newTestLogger(&buf, slog.LevelInfo)
	a := base.WithGroup("a")
	b := base.WithGroup("b")

	a.Info("x", "k", 1)
	b.Info("y", "k", 2)

	recs := lines(t, &buf)
	if _, ok := recs[0]["a"]; !ok {
		t.Errorf("first record missing group a: %v", recs[0])
	}
	if _, ok := recs[1]["a"]; ok {
		t.Errorf("second record leaked group a: %v", recs[1])
	}
}
