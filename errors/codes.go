package errors

// ErrorCode represents a specific error condition.
// Error codes are string-based for debuggability and natural JSON serialization.
type ErrorCode string

const (
	// Entity errors.

	// CodeUnresolvedEntity indicates an operation ran on an entity whose path
	// could not be resolved from the supplied arguments.
	CodeUnresolvedEntity ErrorCode = "UNRESOLVED_ENTITY"

	// CodeMissingCapability indicates a capability tag is absent from the
	// whole registry chain.
	CodeMissingCapability ErrorCode = "MISSING_CAPABILITY"

	// CodeMissingSourceFile indicates no candidate source of a file
	// specification exists and nothing can synthesize the output.
	CodeMissingSourceFile ErrorCode = "MISSING_SOURCE_FILE"

	// CodeChildOperationFailed indicates an operation on one child entity
	// failed while its siblings were being processed.
	CodeChildOperationFailed ErrorCode = "CHILD_OPERATION_FAILED"

	// CodeReadOnly indicates the entity mode does not permit the write.
	CodeReadOnly ErrorCode = "READ_ONLY"

	// CodeMetadataInvalid indicates a metadata sidecar could not be parsed.
	CodeMetadataInvalid ErrorCode = "METADATA_INVALID"

	// Resource errors.

	// CodeNotFound indicates a requested resource does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeAlreadyExists indicates a resource already exists and cannot be created again.
	CodeAlreadyExists ErrorCode = "ALREADY_EXISTS"

	// Validation errors.

	// CodeInvalidInput indicates the provided input is invalid or malformed.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeInvalidConfig indicates a configuration error prevents the operation.
	CodeInvalidConfig ErrorCode = "INVALID_CONFIGURATION"

	// Infrastructure errors.

	// CodeIO indicates a filesystem operation failed.
	CodeIO ErrorCode = "IO_FAILED"

	// CodeExecutionFailed indicates an external program failed.
	CodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// Profile errors.

	// CodeProfileLoadFailed indicates a profile source could not be read or compiled.
	CodeProfileLoadFailed ErrorCode = "PROFILE_LOAD_FAILED"

	// CodeProfileValidationFailed indicates a profile violates its schema.
	CodeProfileValidationFailed ErrorCode = "PROFILE_VALIDATION_FAILED"

	// CodeProfileDecodeFailed indicates a profile could not be decoded into Go types.
	CodeProfileDecodeFailed ErrorCode = "PROFILE_DECODE_FAILED"

	// System errors.

	// CodeInternal indicates an internal error occurred.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeUnknown indicates an unknown or unclassified error occurred.
	CodeUnknown ErrorCode = "UNKNOWN"
)
