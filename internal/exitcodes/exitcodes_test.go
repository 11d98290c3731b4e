package exitcodes

import (
	"errors"
	"fmt"
	"testing"
)

func TestFromError(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"nil error", nil, Success},
		{"exit error passthrough", NewExitError(errors.New("boom"), StateError), StateError},
		{"wrapped exit error", fmt.Errorf("outer: %w", NewExitError(errors.New("boom"), AuthError)), AuthError},
		{"yaml parse", errors.New("yaml: line 3: could not find expected ':'"), ConfigError},
		{"connection refused", errors.New("dial tcp 10.0.0.1:443: connection refused"), NetworkError},
		{"fetch page", errors.New("fetching page 2 of products: server returned 502"), NetworkError},
		{"unauthorized", errors.New("server returned 401 unauthorized"), AuthError},
		{"context canceled", errors.New("context canceled"), Cancelled},
		{"stop requested", errors.New("stop requested"), Cancelled},
		{"sqlite locked", errors.New("database is locked"), PersistenceError},
		{"upsert failure", errors.New("upsert products: constraint failed"), PersistenceError},
		{"checkpoint", errors.New("loading checkpoints: corrupt row"), StateError},
		{"file missing", errors.New("no such file or directory"), IOError},
		{"unknown defaults to network", errors.New("mystery failure"), NetworkError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := FromError(tc.err); got != tc.want {
				t.Errorf("FromError(%v) = %d, want %d", tc.err, got, tc.want)
			}
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	recoverable := []int{NetworkError, Cancelled, IOError}
	for _, code := range recoverable {
		if !IsRecoverable(code) {
			t.Errorf("IsRecoverable(%d) = false, want true", code)
		}
	}
	nonRecoverable := []int{Success, ConfigError, PersistenceError, AuthError, StateError}
	for _, code := range nonRecoverable {
		if IsRecoverable(code) {
			t.Errorf("IsRecoverable(%d) = true, want false", code)
		}
	}
}

func TestDescription(t *testing.T) {
	for code := Success; code <= IOError; code++ {
		if Description(code) == "unknown error" {
			t.Errorf("Description(%d) missing", code)
		}
	}
	if Description(99) != "unknown error" {
		t.Errorf("Description(99) = %q", Description(99))
	}
}

func TestExitErrorUnwrap(t *testing.T) {
	inner := errors.New("inner")
	err := NewExitError(inner, ConfigError)
	if !errors.Is(err, inner) {
		t.Errorf("errors.Is failed to unwrap ExitError")
	}
	if err.Error() != "inner" {
		t.Errorf("Error() = %q, want %q", err.Error(), "inner")
	}
}
