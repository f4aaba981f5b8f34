// Package logsanitize provides helpers for sanitizing untrusted values before logging.
package logsanitize

import (
	"fmt"
	"regexp"
	"strings"
)

// scriptTag matches a script element lazily, across line breaks.
var scriptTag = regexp.MustCompile(`(?is)<\s*script.*?>.*?<\s*/\s*script\s*>`)

// scriptOpen matches the start of an opening or closing script tag.
var scriptOpen = regexp.MustCompile(`(?i)<(\s*/?\s*script)`)

// maxScriptPasses bounds the number of removal passes over one string.
const maxScriptPasses = 4

// Sanitize makes s safe for inclusion in a single-line log record and
// reduces the risk of log injection (CWE-117).
//
// Applied in order:
//   - C0 controls 0x00-0x08, 0x0B, 0x0C, 0x0E-0x1F and DEL 0x7F are removed
//   - LF and CR are each replaced with a single space
//   - <script ...>...</script> blocks are removed, case-insensitively, until
//     none remain
//
// Removal runs at most maxScriptPasses times. If blocks that were
// reassembled from fragments still remain, the '<' of every script tag is
// escaped as "&lt;" instead, so the work stays linear in len(s).
//
// Tab is preserved. Quotes and backslashes are left for the JSON encoder.
// Script removal is best-effort and is not an HTML sanitizer.
func Sanitize(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\n' || r == '\r':
			return ' '
		case r == '\t':
			return r
		case r < 0x20 || r == 0x7f:
			return -1
		}
		return r
	}, s)

	for i := 0; i < maxScriptPasses; i++ {
		stripped := scriptTag.ReplaceAllString(s, "")
		if len(stripped) == len(s) {
			return s
		}
		s = stripped
	}
	if scriptTag.MatchString(s) {
		s = scriptOpen.ReplaceAllString(s, "&lt;$1")
	}
	return s
}

// SanitizeAny sanitizes strings and passes numbers, booleans and nil through
// unchanged. Any other value is rendered with fmt.Sprint and then sanitized.
func SanitizeAny(v any) any {
	switch t := v.(type) {
	case string:
		return Sanitize(t)
	case nil, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return t
	default:
		return Sanitize(fmt.Sprint(v))
	}
}
