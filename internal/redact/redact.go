// Package redact walks log field trees, replacing values stored under
// sensitive keys and sanitizing every surviving string.
package redact

import (
	"fmt"
	"sort"
	"strings"

	"github.com/al-bashkir/securelog/internal/logsanitize"
	"github.com/al-bashkir/securelog/internal/sensitive"
	"github.com/al-bashkir/securelog/internal/value"
)

// Marker replaces the value of every sensitive key.
const Marker = "***REDACTED***"

// NodesExceeded replaces values visited after the node budget is spent.
const NodesExceeded = "<max-nodes-exceeded>"

const (
	DefaultMaxDepth = 32
	DefaultMaxNodes = 10000
)

// Limits bounds the work done for a single tree. Zero fields select the
// defaults.
type Limits struct {
	// MaxDepth is the deepest container nesting kept. Deeper lists and
	// maps are replaced by value.DepthExceeded.
	MaxDepth int `yaml:"max_depth"`
	// MaxNodes caps the number of values visited per call.
	MaxNodes int `yaml:"max_nodes"`
}

func (l Limits) withDefaults() Limits {
	if l.MaxDepth <= 0 {
		l.MaxDepth = DefaultMaxDepth
	}
	if l.MaxNodes <= 0 {
		l.MaxNodes = DefaultMaxNodes
	}
	return l
}

// Redactor is safe for concurrent use; all per-call state lives on the stack
// of Redact.
type Redactor struct {
	keys   *sensitive.KeySet
	limits Limits
}

// New returns a Redactor matching against keys. A nil key set selects
// sensitive.Default.
func New(keys *sensitive.KeySet, limits Limits) *Redactor {
	if keys == nil {
		keys = sensitive.Default()
	}
	return &Redactor{keys: keys, limits: limits.withDefaults()}
}

// Limits returns the limits in effect, with defaults applied.
func (r *Redactor) Limits() Limits { return r.limits }

// Redact returns a redacted, sanitized copy of v. It never fails: oversized
// input is truncated with marker strings.
func (r *Redactor) Redact(v value.Value) value.Value {
	w := r.walker()
	return w.walk(v, 0)
}

// RedactFields is Redact for a top-level field map.
func (r *Redactor) RedactFields(fields map[string]value.Value) map[string]value.Value {
	w := r.walker()
	return w.fields(fields, 0)
}

func (r *Redactor) walker() *walker {
	return &walker{keys: r.keys, maxDepth: r.limits.MaxDepth, budget: r.limits.MaxNodes}
}

type walker struct {
	keys     *sensitive.KeySet
	maxDepth int
	budget   int
}

func (w *walker) walk(v value.Value, depth int) value.Value {
	if w.budget <= 0 {
		return value.String(NodesExceeded)
	}
	w.budget--

	switch v.Kind() {
	case value.KindString:
		return value.String(logsanitize.Sanitize(v.Str()))
	case value.KindInt, value.KindFloat, value.KindBool, value.KindNull:
		return v
	case value.KindList:
		if depth >= w.maxDepth {
			return value.String(value.DepthExceeded)
		}
		src := v.Items()
		items := make([]value.Value, 0, len(src))
		for _, item := range src {
			if w.budget <= 0 {
				items = append(items, value.String(NodesExceeded))
				break
			}
			items = append(items, w.walk(item, depth+1))
		}
		return value.List(items...)
	case value.KindMap:
		if depth >= w.maxDepth {
			return value.String(value.DepthExceeded)
		}
		return value.Map(w.fields(v.Fields(), depth))
	default:
		return value.String(logsanitize.Sanitize(fmt.Sprint(v.Interface())))
	}
}

// fields redacts the entries of a map found at depth. Keys are visited in
// sorted order so that truncation and key collisions are deterministic.
func (w *walker) fields(m map[string]value.Value, depth int) map[string]value.Value {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]value.Value, len(m))
	for _, k := range keys {
		clean := logsanitize.Sanitize(k)
		if w.sensitive(k, clean) {
			out[clean] = value.String(Marker)
			continue
		}
		out[clean] = w.walk(m[k], depth+1)
	}
	return out
}

func (w *walker) sensitive(raw, clean string) bool {
	return w.keys.Contains(raw) || w.keys.Contains(clean) || w.keys.Contains(strings.TrimSpace(clean))
}
