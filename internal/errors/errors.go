package errors

import (
	"errors"
	"fmt"
)

// Exit codes for the mcpc CLI.
const (
	// ExitSuccess indicates the command completed successfully.
	ExitSuccess = 0

	// ExitUser indicates a user-related error (malformed manifest, missing
	// secrets, invalid flags).
	ExitUser = 1

	// ExitSystem indicates a system-related error (I/O, subprocess failure,
	// permissions).
	ExitSystem = 2
)

// Sentinel errors for the compiler's fatal conditions.
var (
	// ErrMalformedManifest indicates the input manifest failed schema or
	// uniqueness validation.
	ErrMalformedManifest = errors.New("malformed manifest")

	// ErrBootstrap indicates an installation root could not be created.
	ErrBootstrap = errors.New("bootstrap failed")

	// ErrUnresolvedPackage indicates --skip-install was used but a declared
	// package has no resolvable binary in its installation root.
	ErrUnresolvedPackage = errors.New("unresolved package")

	// ErrInstallFailure indicates a package install batch failed.
	ErrInstallFailure = errors.New("install failed")

	// ErrInstallTimeout indicates a package install batch exceeded its deadline.
	ErrInstallTimeout = errors.New("install timed out")

	// ErrMissingSecret indicates one or more declared environment references
	// did not resolve to a usable value.
	ErrMissingSecret = errors.New("missing secret")
)

// ExitError wraps an error with an exit code and optional suggestion for the CLI.
// It implements the error interface and supports unwrapping via errors.Unwrap.
type ExitError struct {
	// Err is the underlying error that caused the exit.
	Err error

	// Code is the exit code to return to the operating system.
	Code int

	// Suggestion is an optional actionable suggestion for the user.
	Suggestion string
}

// NewExitError creates an ExitError with the given underlying error and exit code.
func NewExitError(err error, code int) *ExitError {
	return &ExitError{
		Err:  err,
		Code: code,
	}
}

// NewUserError creates an ExitError with ExitUser code and a suggestion.
func NewUserError(err error, suggestion string) *ExitError {
	return &ExitError{
		Err:        err,
		Code:       ExitUser,
		Suggestion: suggestion,
	}
}

// NewSystemError creates an ExitError with ExitSystem code and a suggestion.
func NewSystemError(err error, suggestion string) *ExitError {
	return &ExitError{
		Err:        err,
		Code:       ExitSystem,
		Suggestion: suggestion,
	}
}

// Error returns the error message from the underlying error.
// If the underlying error is nil, it returns a generic message with the exit code.
func (e *ExitError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("exit code %d", e.Code)
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error, enabling errors.Is and errors.As
// to examine the error chain.
func (e *ExitError) Unwrap() error {
	return e.Err
}

// Code extracts the exit code from an error chain.
// A nil error maps to ExitSuccess; an error that carries no ExitError maps
// to ExitUser.
func Code(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitUser
}
