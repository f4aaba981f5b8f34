// Package sensitive holds the set of field names whose values are always
// redacted from log records.
package sensitive

import (
	"os"
	"sort"
	"strings"
)

// EnvVar names the environment variable holding a comma-separated override
// of the default key list.
const EnvVar = "SENSITIVE_KEYS"

// defaultKeys is used when no override is supplied.
var defaultKeys = []string{
	"password",
	"token",
	"authorization",
	"cookie",
	"secret",
	"apikey",
	"access_key",
}

// KeySet is an immutable, case-insensitive set of key names. It is built
// once at startup and shared by every formatter without locking.
type KeySet struct {
	keys map[string]struct{}
}

// New builds a KeySet from keys. Names are trimmed and lowercased and empty
// names are dropped. If nothing remains the defaults are used, so an
// override can narrow redaction but never switch it off.
func New(keys ...string) *KeySet {
	set := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		k = strings.ToLower(strings.TrimSpace(k))
		if k != "" {
			set[k] = struct{}{}
		}
	}
	if len(set) == 0 {
		for _, k := range defaultKeys {
			set[k] = struct{}{}
		}
	}
	return &KeySet{keys: set}
}

// DefaultKeyNames returns a copy of the built-in key list.
func DefaultKeyNames() []string {
	return append([]string(nil), defaultKeys...)
}

// Default returns a KeySet holding the built-in keys.
func Default() *KeySet {
	return New(defaultKeys...)
}

// Parse builds a KeySet from a comma-separated list such as
// "password,token,my_custom_secret".
func Parse(csv string) *KeySet {
	return New(strings.Split(csv, ",")...)
}

// FromEnv returns the override from SENSITIVE_KEYS when it is set and
// non-empty, otherwise the defaults.
func FromEnv() *KeySet {
	if v := os.Getenv(EnvVar); strings.TrimSpace(v) != "" {
		return Parse(v)
	}
	return Default()
}

// With returns a new KeySet holding the receiver's keys plus extra.
func (s *KeySet) With(extra ...string) *KeySet {
	return New(append(s.Keys(), extra...)...)
}

// Contains reports whether key, compared case-insensitively, is sensitive.
func (s *KeySet) Contains(key string) bool {
	if s == nil {
		return false
	}
	_, ok := s.keys[strings.ToLower(key)]
	return ok
}

// Keys returns the set's members in sorted order.
func (s *KeySet) Keys() []string {
	if s == nil {
		return nil
	}
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of keys in the set.
func (s *KeySet) Len() int {
	if s == nil {
		return 0
	}
	return len(s.keys)
}
