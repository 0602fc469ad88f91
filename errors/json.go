package errors

import (
	"encoding/json"
)

// ErrorResponse is the flat JSON form of an error used by machine readable
// command output. The wrapped error chain is not included.
type ErrorResponse struct {
	// Code is the error code identifying the type of error.
	Code string `json:"code"`

	// Message is the human-readable error message.
	Message string `json:"message"`

	// Propagation is FATAL or ISOLATED.
	Propagation string `json:"propagation"`

	// Context contains optional metadata about the error.
	Context map[string]interface{} `json:"context,omitempty"`
}

// ToJSON converts any error to an ErrorResponse.
// Returns nil if err is nil.
//
// Standard errors use CodeUnknown, PropagationFatal and the error message.
func ToJSON(err error) *ErrorResponse {
	if err == nil {
		return nil
	}

	message := err.Error()
	var context map[string]interface{}

	var platformErr PlatformError
	if As(err, &platformErr) {
		message = platformErr.Message()
		context = platformErr.Context()
	}

	return &ErrorResponse{
		Code:        string(GetCode(err)),
		Message:     message,
		Propagation: string(GetPropagation(err)),
		Context:     context,
	}
}

// MarshalJSON implements json.Marshaler for platformError.
func (e *platformError) MarshalJSON() ([]byte, error) {
	data, err := json.Marshal(&ErrorResponse{
		Code:        string(e.code),
		Message:     e.message,
		Propagation: string(e.propagation),
		Context:     e.context,
	})
	if err != nil {
		return nil, &platformError{
			code:        CodeInternal,
			propagation: PropagationFatal,
			message:     "failed to marshal error response",
			cause:       err,
		}
	}
	return data, nil
}
