package errors

import (
	stderrors "errors"
)

// Is reports whether any error in err's chain matches target.
// This is a convenience wrapper around the standard library errors.Is.
func Is(err, target error) bool {
	return stderrors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
// This is a convenience wrapper around the standard library errors.As.
func As(err error, target interface{}) bool {
	return stderrors.As(err, target)
}

// GetCode extracts the ErrorCode from the outermost PlatformError in err's chain.
// Returns CodeUnknown if the error is nil or not a PlatformError.
//
// Example:
//
//	if errors.GetCode(err) == errors.CodeMissingCapability {
//	    // tag not registered
//	}
func GetCode(err error) ErrorCode {
	if err == nil {
		return CodeUnknown
	}

	var platformErr PlatformError
	if stderrors.As(err, &platformErr) {
		return platformErr.Code()
	}
	return CodeUnknown
}

// HasCode reports whether any PlatformError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		if platformErr, ok := err.(PlatformError); ok && platformErr.Code() == code {
			return true
		}
		err = stderrors.Unwrap(err)
	}
	return false
}

// GetPropagation extracts the Propagation from the outermost PlatformError.
// Returns PropagationFatal if the error is nil or not a PlatformError.
func GetPropagation(err error) Propagation {
	if err == nil {
		return PropagationFatal
	}

	var platformErr PlatformError
	if stderrors.As(err, &platformErr) {
		return platformErr.Propagation()
	}
	return PropagationFatal
}

// IsFatal returns true unless the error is classified as isolated.
// Returns false for a nil error.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	return GetPropagation(err).IsFatal()
}
