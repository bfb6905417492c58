package proxy

import (
	"encoding/json"
	"net/http"
)

// AnthropicErrorResponse is the error envelope surfaced to clients, following
// the Anthropic wire shape: {"type":"error","error":{...}}.
type AnthropicErrorResponse struct {
	Type  string         `json:"type"`
	Error AnthropicError `json:"error"`
}

// AnthropicError is the error object inside the envelope.
type AnthropicError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Param   string `json:"param,omitempty"`
}

// Error kind strings of the Anthropic error taxonomy.
const (
	ErrKindInvalidRequest = "invalid_request_error"
	ErrKindAuthentication = "authentication_error"
	ErrKindPermission     = "permission_error"
	ErrKindNotFound       = "not_found_error"
	ErrKindRateLimit      = "rate_limit_error"
	ErrKindAPI            = "api_error"
	ErrKindOverloaded     = "overloaded_error"
)

// errorTypeForStatus maps HTTP status codes to Anthropic error kind strings.
func errorTypeForStatus(statusCode int) string {
	switch statusCode {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusMethodNotAllowed:
		return ErrKindInvalidRequest
	case http.StatusUnauthorized:
		return ErrKindAuthentication
	case http.StatusForbidden:
		return ErrKindPermission
	case http.StatusNotFound:
		return ErrKindNotFound
	case http.StatusTooManyRequests:
		return ErrKindRateLimit
	case http.StatusServiceUnavailable:
		return ErrKindOverloaded
	default:
		if statusCode >= 500 {
			return ErrKindAPI
		}
		return ErrKindInvalidRequest
	}
}

// WriteJSONError writes an Anthropic-shaped JSON error response.
func WriteJSONError(w http.ResponseWriter, statusCode int, message, errorType, param string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	resp := AnthropicErrorResponse{
		Type: "error",
		Error: AnthropicError{
			Type:    errorType,
			Message: message,
			Param:   param,
		},
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// WriteErrorBadRequest writes a 400 invalid_request_error. param names the
// first offending field path and may be empty.
func WriteErrorBadRequest(w http.ResponseWriter, message, param string) {
	WriteJSONError(w, http.StatusBadRequest, message, ErrKindInvalidRequest, param)
}

// WriteErrorUnauthorized writes a 401 authentication_error.
func WriteErrorUnauthorized(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusUnauthorized, message, ErrKindAuthentication, "")
}

// WriteErrorNotFound writes a 404 not_found_error.
func WriteErrorNotFound(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusNotFound, message, ErrKindNotFound, "")
}

// WriteErrorTooLarge writes a 413 invalid_request_error.
func WriteErrorTooLarge(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusRequestEntityTooLarge, message, ErrKindInvalidRequest, "")
}

// WriteErrorBadGateway writes a 502 api_error. Used for upstream connection
// failures, upstream 5xx replies, and malformed upstream payloads.
func WriteErrorBadGateway(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusBadGateway, message, ErrKindAPI, "")
}

// WriteErrorInternal writes a 500 api_error.
func WriteErrorInternal(w http.ResponseWriter, message string) {
	WriteJSONError(w, http.StatusInternalServerError, message, ErrKindAPI, "")
}
