package errors

import (
	"errors"
	"fmt"
)

// Wrap wraps an error with a code and message while preserving the original error.
//
// The propagation comes from the new code. When the wrapped error is a
// PlatformError with the same code, its (possibly overridden) propagation
// is kept.
//
// Returns nil if err is nil.
//
// Example:
//
//	if err := fsys.MkdirAll(path, 0o755); err != nil {
//	    return errors.Wrap(err, errors.CodeIO, "failed to create subject directory")
//	}
func Wrap(err error, code ErrorCode, message string) PlatformError {
	if err == nil {
		return nil
	}

	return &platformError{
		code:        code,
		propagation: propagationFor(err, code),
		message:     message,
		cause:       err,
	}
}

// Wrapf wraps an error with a formatted message.
//
// Returns nil if err is nil.
func Wrapf(err error, code ErrorCode, format string, args ...interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// WrapWithContext wraps an error and attaches context metadata in a single operation.
// The context map is copied to prevent external mutation.
//
// Returns nil if err is nil.
//
// Example:
//
//	return errors.WrapWithContext(err, errors.CodeExecutionFailed, "copy step failed", map[string]interface{}{
//	    "program":     "mri_convert",
//	    "destination": dst,
//	})
func WrapWithContext(err error, code ErrorCode, message string, ctx map[string]interface{}) PlatformError {
	if err == nil {
		return nil
	}

	return &platformError{
		code:        code,
		propagation: propagationFor(err, code),
		message:     message,
		context:     copyContext(ctx),
		cause:       err,
	}
}

func propagationFor(cause error, code ErrorCode) Propagation {
	var platformErr PlatformError
	if errors.As(cause, &platformErr) && platformErr.Code() == code {
		return platformErr.Propagation()
	}
	return getDefaultPropagation(code)
}
