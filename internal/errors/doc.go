// Package errors provides error handling conventions for the mcpc CLI.
//
// This package defines sentinel errors for the compiler's fatal conditions,
// an ExitError type for CLI exit code handling, and exit code constants
// following standard Unix conventions.
//
// # Sentinel Errors
//
// Sentinel errors allow callers to check for specific failure conditions
// using [errors.Is]:
//
//	if errors.Is(err, mcpcerrors.ErrMalformedManifest) {
//	    // handle schema/uniqueness violation
//	}
//
// # Exit Codes
//
//   - ExitSuccess (0): Command completed successfully
//   - ExitUser (1): User-related error (manifest, secrets, flags)
//   - ExitSystem (2): System-related error (I/O, subprocess, permissions)
//
// # ExitError
//
// [ExitError] wraps an underlying error with an exit code and optional
// suggestion. [Code] extracts the exit code from any error chain:
//
//	err := mcpcerrors.NewUserError(mcpcerrors.ErrMissingSecret, "Fill in .env and re-run")
//	os.Exit(mcpcerrors.Code(err))
package errors
