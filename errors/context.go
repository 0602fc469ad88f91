package errors

import "errors"

// WithContext adds a single context field to an error.
// Returns a new PlatformError; existing fields are preserved.
//
// If err is not a PlatformError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
//
// Example:
//
//	err := errors.New(errors.CodeMissingSourceFile, "no candidate exists")
//	err = errors.WithContext(err, "destination", dst)
func WithContext(err error, key string, value interface{}) PlatformError {
	if err == nil {
		return nil
	}
	return WithContextMap(err, map[string]interface{}{key: value})
}

// WithContextMap merges multiple context fields into an error.
// New fields override existing ones with the same key.
//
// If err is not a PlatformError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
func WithContextMap(err error, ctx map[string]interface{}) PlatformError {
	if err == nil {
		return nil
	}

	platformErr := asPlatformError(err)

	merged := make(map[string]interface{}, len(ctx))
	for k, v := range platformErr.Context() {
		merged[k] = v
	}
	for k, v := range ctx {
		merged[k] = v
	}

	return &platformError{
		code:        platformErr.Code(),
		propagation: platformErr.Propagation(),
		message:     platformErr.Message(),
		context:     merged,
		cause:       platformErr.Unwrap(),
	}
}

// WithPropagation overrides the propagation of an error.
//
// Exporters use it to mark a failure as isolated regardless of its code.
// If err is not a PlatformError, it is converted to one with CodeUnknown.
// Returns nil if err is nil.
func WithPropagation(err error, propagation Propagation) PlatformError {
	if err == nil {
		return nil
	}

	platformErr := asPlatformError(err)
	return &platformError{
		code:        platformErr.Code(),
		propagation: propagation,
		message:     platformErr.Message(),
		context:     platformErr.Context(),
		cause:       platformErr.Unwrap(),
	}
}

func asPlatformError(err error) PlatformError {
	var platformErr PlatformError
	if errors.As(err, &platformErr) {
		return platformErr
	}
	return &platformError{
		code:        CodeUnknown,
		propagation: PropagationFatal,
		message:     err.Error(),
		cause:       err,
	}
}
