package errors

// Propagation indicates whether an error aborts the surrounding operation.
type Propagation string

const (
	// PropagationFatal errors stop the operation and reach the caller.
	PropagationFatal Propagation = "FATAL"

	// PropagationIsolated errors are logged and recorded while processing of
	// sibling entities continues.
	PropagationIsolated Propagation = "ISOLATED"
)

// IsFatal returns true if the propagation aborts the surrounding operation.
func (p Propagation) IsFatal() bool {
	return p != PropagationIsolated
}

// defaultPropagation maps error codes to their default propagation.
// Codes missing from the map are fatal.
var defaultPropagation = map[ErrorCode]Propagation{
	CodeChildOperationFailed: PropagationIsolated,
}

func getDefaultPropagation(code ErrorCode) Propagation {
	if p, ok := defaultPropagation[code]; ok {
		return p
	}
	return PropagationFatal
}
