package errors

import "fmt"

// New creates a new PlatformError with the given code and message.
// The propagation is determined by the error code.
//
// Example:
//
//	err := errors.New(errors.CodeUnresolvedEntity, "subject has no path")
func New(code ErrorCode, message string) PlatformError {
	return &platformError{
		code:        code,
		propagation: getDefaultPropagation(code),
		message:     message,
	}
}

// Newf creates a new PlatformError with a formatted message.
//
// Example:
//
//	err := errors.Newf(errors.CodeMissingCapability, "no importer registered for tag %q", tag)
func Newf(code ErrorCode, format string, args ...interface{}) PlatformError {
	return New(code, fmt.Sprintf(format, args...))
}

// NewWithContext creates a new PlatformError with context metadata attached.
// The map is copied.
func NewWithContext(code ErrorCode, message string, ctx map[string]interface{}) PlatformError {
	return &platformError{
		code:        code,
		propagation: getDefaultPropagation(code),
		message:     message,
		context:     copyContext(ctx),
	}
}
