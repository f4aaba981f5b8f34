package sensitive

import (
	"reflect"
	"sort"
	"sync"
	"testing"
)

func TestDefault(t *testing.T) {
	s := Default()

	for _, k := range DefaultKeyNames() {
		if !s.Contains(k) {
			t.Errorf("expected default set to contain %q", k)
		}
	}
	if s.Len() != len(DefaultKeyNames()) {
		t.Errorf("Len() = %d, want %d", s.Len(), len(DefaultKeyNames()))
	}
}

func TestDefaultKeyNamesReturnsCopy(t *testing.T) {
	names := DefaultKeyNames()
	for i := range names {
		names[i] = ""
	}

	if !Default().Contains("password") {
		t.Error("clearing the returned names changed the defaults")
	}
	if !New().Contains("token") {
		t.Error("empty override no longer falls back to the defaults")
	}
}

func TestContainsIsCaseInsensitive(t *testing.T) {
	s := Default()

	for _, k := range []string{"Authorization", "PASSWORD", "Access_Key", "ApiKey"} {
		if !s.Contains(k) {
			t.Errorf("expected %q to be sensitive", k)
		}
	}
	for _, k := range []string{"user", "passwords", "token_count", ""} {
		if s.Contains(k) {
			t.Errorf("expected %q not to be sensitive", k)
		}
	}
}

func TestParse(t *testing.T) {
	s := Parse(" Password , my_custom_secret,,TOKEN ")

	want := []string{"my_custom_secret", "password", "token"}
	if got := s.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if s.Contains("cookie") {
		t.Error("override should replace the defaults")
	}
}

func TestEmptyOverrideFallsBackToDefaults(t *testing.T) {
	for _, in := range []string{"", " ", ",,", " , "} {
		s := Parse(in)
		if s.Len() != len(DefaultKeyNames()) {
			t.Errorf("Parse(%q).Len() = %d, want defaults (%d)", in, s.Len(), len(DefaultKeyNames()))
		}
	}
}

func TestFromEnv(t *testing.T) {
	t.Setenv(EnvVar, "session_id,Private_Key")
	s := FromEnv()

	if !s.Contains("SESSION_ID") || !s.Contains("private_key") {
		t.Errorf("expected env keys, got %v", s.Keys())
	}
	if s.Contains("password") {
		t.Error("env override should replace the defaults")
	}

	t.Setenv(EnvVar, "")
	if got := FromEnv().Len(); got != len(DefaultKeyNames()) {
		t.Errorf("empty env: Len() = %d, want %d", got, len(DefaultKeyNames()))
	}
}

func TestWithDoesNotMutate(t *testing.T) {
	base := Default()
	extended := base.With("ssn", "Credit_Card")

	if base.Contains("ssn") {
		t.Error("With must not modify the receiver")
	}
	if !extended.Contains("ssn") || !extended.Contains("credit_card") || !extended.Contains("password") {
		t.Errorf("unexpected extended set: %v", extended.Keys())
	}
}

func TestKeysSorted(t *testing.T) {
	keys := Default().Keys()
	if !sort.StringsAreSorted(keys) {
		t.Errorf("Keys() not sorted: %v", keys)
	}
	keys[0] = "mutated"
	if Default().Contains("mutated") {
		t.Error("Keys must return a copy")
	}
}

func TestNilKeySet(t *testing.T) {
	var s *KeySet
	if s.Contains("password") {
		t.Error("nil set should contain nothing")
	}
	if s.Len() != 0 || s.Keys() != nil {
		t.Error("nil set should be empty")
	}
}

func TestConcurrentReads(t *testing.T) {
	s := Default()

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if !s.Contains("Token") {
					t.Error("expected token to be sensitive")
					return
				}
			}
		}()
	}
	wg.Wait()
}
