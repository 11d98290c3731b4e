// Package exitcodes defines standard exit codes for CLI operations.
// Stable codes let wrappers (launch agents, MDM scripts, cron) distinguish
// recoverable failures worth retrying from configuration mistakes.
package exitcodes

import (
	"errors"
	"os"
	"strings"
)

const (
	// Success - sync completed without errors
	Success = 0

	// ConfigError - configuration/YAML parsing errors (non-recoverable, don't retry)
	ConfigError = 1

	// NetworkError - remote API unreachable or request failed (recoverable)
	NetworkError = 2

	// PersistenceError - local store write failed after a successful fetch (non-recoverable)
	PersistenceError = 3

	// AuthError - missing/rejected credentials (non-recoverable until re-login)
	AuthError = 4

	// Cancelled - user cancelled via SIGINT/SIGTERM or stop request (recoverable)
	Cancelled = 5

	// StateError - checkpoint/session state errors (non-recoverable)
	StateError = 6

	// IOError - file I/O errors (recoverable)
	IOError = 7
)

// ExitError wraps an error with an exit code.
type ExitError struct {
	Err  error
	Code int
}

func (e *ExitError) Error() string {
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// NewExitError creates a new ExitError with the given code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{Err: err, Code: code}
}

// FromError determines the appropriate exit code for an error.
// It examines error messages and types to classify the error.
func FromError(err error) int {
	if err == nil {
		return Success
	}

	// Check if it's already an ExitError
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}

	// Check for os.PathError first (file not found, permission denied, etc.)
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return IOError
	}

	errStr := strings.ToLower(err.Error())

	// IO errors - check early for file-related errors (exit code 7)
	if containsAny(errStr, []string{
		"no such file",
		"file not found",
		"permission denied",
		"is a directory",
		"not a directory",
	}) {
		return IOError
	}

	// Auth errors (exit code 4) - check before NetworkError so that
	// "authentication failed" does not match the generic network keywords
	if containsAny(errStr, []string{
		"unauthorized",
		"authentication",
		"token expired",
		"login required",
		"forbidden",
	}) {
		return AuthError
	}

	// Config errors (exit code 1) - parsing issues, not remote failures
	if containsAny(errStr, []string{
		"yaml:",
		"unmarshal",
		"invalid configuration",
		"missing required",
		"invalid value",
		"parsing config",
	}) && !containsAny(errStr, []string{"connection", "connect", "dial"}) {
		return ConfigError
	}

	// Cancelled (exit code 5) - before NetworkError so a cancelled request
	// ("context canceled" inside a dial) counts as cancellation
	if containsAny(errStr, []string{
		"cancel",
		"interrupt",
		"context canceled",
		"context deadline",
		"stop requested",
	}) {
		return Cancelled
	}

	// Network errors (exit code 2)
	if containsAny(errStr, []string{
		"connection",
		"connect",
		"dial",
		"refused",
		"timeout",
		"unreachable",
		"no such host",
		"network",
		"fetching page",
		"server returned",
	}) {
		return NetworkError
	}

	// Persistence errors (exit code 3)
	if containsAny(errStr, []string{
		"persist",
		"upsert",
		"sqlite",
		"database is locked",
		"constraint",
		"transaction",
	}) {
		return PersistenceError
	}

	// State errors (exit code 6)
	if containsAny(errStr, []string{
		"state",
		"checkpoint",
		"session",
		"already running",
	}) {
		return StateError
	}

	// Default to network error: mid-sync failures are overwhelmingly remote
	return NetworkError
}

// IsRecoverable returns true if the error is recoverable (safe to retry).
func IsRecoverable(code int) bool {
	switch code {
	case NetworkError, Cancelled, IOError:
		return true
	default:
		return false
	}
}

// Description returns a human-readable description of the exit code.
func Description(code int) string {
	switch code {
	case Success:
		return "success"
	case ConfigError:
		return "configuration error"
	case NetworkError:
		return "network error (recoverable)"
	case PersistenceError:
		return "persistence error"
	case AuthError:
		return "authentication error"
	case Cancelled:
		return "cancelled (recoverable)"
	case StateError:
		return "state error"
	case IOError:
		return "I/O error (recoverable)"
	default:
		return "unknown error"
	}
}

func containsAny(s string, substrs []string) bool {
	for _, substr := range substrs {
		if strings.Contains(s, substr) {
			return true
		}
	}
	return false
}
