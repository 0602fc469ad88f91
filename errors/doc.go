// Package errors provides the structured errors used across ucsfbids.
//
// Every failure surfaced by the directory model, the import and export
// engines and the profile loader is a PlatformError carrying an ErrorCode,
// a Propagation policy, a human readable message, optional context
// metadata and the wrapped cause. The package is compatible with the
// standard library (errors.Is, errors.As, errors.Unwrap).
//
// # Propagation
//
// Import-side failures are fatal: the operation stops and the error is
// returned to the caller. Export-side child failures are isolated: the
// exporter logs them and moves on to the remaining siblings. The policy is
// attached to the code by default and can be overridden per error:
//
//	err := errors.New(errors.CodeMissingSourceFile, "no candidate exists")
//	errors.IsFatal(err) // true
//
//	err = errors.Wrap(cause, errors.CodeChildOperationFailed, "export of sub-01 failed")
//	errors.IsFatal(err) // false
//
// # Context
//
// Context metadata identifies the offending entity and destination:
//
//	err = errors.WithContextMap(err, map[string]interface{}{
//	    "entity":      "sub-01_ses-01",
//	    "destination": "/data/sub-01/ses-01/anat/sub-01_ses-01_T1w.nii.gz",
//	})
//
// # Serialization
//
// ToJSON converts any error into an ErrorResponse for machine readable
// command output. The cause chain is not serialized.
package errors
