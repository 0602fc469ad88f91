package errors

// PlatformError extends the standard error interface with structured information.
//
// It provides an error code for categorization, a propagation policy,
// contextual metadata, and compatibility with standard library error
// handling (errors.Is, errors.As, errors.Unwrap).
type PlatformError interface {
	error

	// Code returns the error code identifying the type of error.
	Code() ErrorCode

	// Propagation returns whether the error is fatal or isolated.
	Propagation() Propagation

	// Message returns the human-readable error message.
	Message() string

	// Context returns attached metadata as a read-only map.
	// Returns nil if no context has been attached.
	Context() map[string]interface{}

	// Unwrap returns the wrapped error.
	// Returns nil if this error does not wrap another error.
	Unwrap() error
}
