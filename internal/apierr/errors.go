// Package apierr defines the JSON error envelope returned by every API
// endpoint. Errors carry a stable machine-readable code alongside the
// human-readable message so clients can branch without string matching.
package apierr

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/vrui-vr/networkviewer/internal/logger"
)

// ErrorCode identifies a failure class. Codes are prefixed by the
// subsystem they belong to and never change once a client ships.
type ErrorCode string

const (
	// Network document errors.
	ErrNetworkInvalid     ErrorCode = "NETWORK_INVALID"
	ErrNetworkNotFound    ErrorCode = "NETWORK_NOT_FOUND"
	ErrNetworkTooLarge    ErrorCode = "NETWORK_TOO_LARGE"
	ErrNetworkInvalidName ErrorCode = "NETWORK_INVALID_NAME"

	// Simulation errors.
	ErrSimNotLoaded    ErrorCode = "SIM_NOT_LOADED"
	ErrSimStaleVersion ErrorCode = "SIM_STALE_VERSION"
	ErrSimLoadFailed   ErrorCode = "SIM_LOAD_FAILED"

	// Network store errors.
	ErrStoreUnavailable ErrorCode = "STORE_UNAVAILABLE"
	ErrStoreFailed      ErrorCode = "STORE_FAILED"

	// Server errors.
	ErrSystemInternal ErrorCode = "SYSTEM_INTERNAL"
	ErrSystemTimeout  ErrorCode = "SYSTEM_TIMEOUT"

	// Request validation errors.
	ErrValidationInvalidJSON   ErrorCode = "VALIDATION_INVALID_JSON"
	ErrValidationInvalidFormat ErrorCode = "VALIDATION_INVALID_FORMAT"
	ErrValidationMissingField  ErrorCode = "VALIDATION_MISSING_FIELD"
	ErrValidationInvalidValue  ErrorCode = "VALIDATION_INVALID_VALUE"

	// Rate limiting errors.
	ErrRateLimitGlobal ErrorCode = "RATE_LIMIT_GLOBAL"
	ErrRateLimitIP     ErrorCode = "RATE_LIMIT_IP"
)

// Error is one API error. The HTTP status travels with it unserialized
// so a handler can return an *Error and write it in one place.
type Error struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   map[string]interface{} `json:"details,omitempty"`
	RequestID string                 `json:"request_id,omitempty"`
	status    int
}

// ErrorResponse wraps an Error under an "error" key, matching the
// envelope the viewer frontend expects.
type ErrorResponse struct {
	Error *Error `json:"error"`
}

func New(code ErrorCode, message string, status int) *Error {
	return &Error{Code: code, Message: message, status: status}
}

// WithDetails attaches structured context to the error and returns it
// for chaining.
func (e *Error) WithDetails(details map[string]interface{}) *Error {
	e.Details = details
	return e
}

// WithRequestID stamps the error with the request it belongs to.
func (e *Error) WithRequestID(requestID string) *Error {
	e.RequestID = requestID
	return e
}

func (e *Error) Error() string {
	return string(e.Code) + ": " + e.Message
}

// Status returns the HTTP status the error should be written with.
func (e *Error) Status() int {
	return e.status
}

// WriteError serializes err as the JSON envelope with its status code.
func WriteError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status())
	json.NewEncoder(w).Encode(ErrorResponse{Error: err})
}

// WriteErrorWithContext is WriteError plus the request ID from the
// request context, when the middleware put one there.
func WriteErrorWithContext(w http.ResponseWriter, r *http.Request, err *Error) {
	if reqID := GetRequestID(r.Context()); reqID != "" {
		err = err.WithRequestID(reqID)
	}
	WriteError(w, err)
}

// GetRequestID extracts the request ID from ctx, or "" when absent.
func GetRequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(logger.RequestIDKey).(string); ok {
		return reqID
	}
	return ""
}

// orDefault keeps the helper constructors terse. Callers pass "" when
// the canned message is good enough.
func orDefault(message, fallback string) string {
	if message == "" {
		return fallback
	}
	return message
}

// NetworkInvalid reports a malformed network document.
func NetworkInvalid(message string) *Error {
	return New(ErrNetworkInvalid, orDefault(message, "Invalid network document"), http.StatusBadRequest)
}

// NetworkNotFound reports a missing named network.
func NetworkNotFound(name string) *Error {
	return New(ErrNetworkNotFound, "Network not found: "+name, http.StatusNotFound).
		WithDetails(map[string]interface{}{"network": name})
}

// NetworkTooLarge reports a document over the upload limit.
func NetworkTooLarge(maxBytes int64) *Error {
	return New(ErrNetworkTooLarge, "Network document exceeds maximum size", http.StatusRequestEntityTooLarge).
		WithDetails(map[string]interface{}{"max_bytes": maxBytes})
}

// NetworkInvalidName reports a name that fails the naming rules.
func NetworkInvalidName(message string) *Error {
	return New(ErrNetworkInvalidName, orDefault(message, "Invalid network name"), http.StatusBadRequest)
}

// SimNotLoaded reports an operation that needs a loaded network.
func SimNotLoaded() *Error {
	return New(ErrSimNotLoaded, "No network is loaded", http.StatusConflict)
}

// SimStaleVersion reports a request against an outdated network version.
func SimStaleVersion(message string) *Error {
	return New(ErrSimStaleVersion, orDefault(message, "Request refers to a stale network version"), http.StatusConflict)
}

// SimLoadFailed reports a network that could not be turned into a
// running simulation.
func SimLoadFailed(message string) *Error {
	return New(ErrSimLoadFailed, orDefault(message, "Failed to load network"), http.StatusUnprocessableEntity)
}

// StoreUnavailable reports a store that is refusing traffic.
func StoreUnavailable(message string) *Error {
	return New(ErrStoreUnavailable, orDefault(message, "Network store unavailable"), http.StatusServiceUnavailable)
}

// StoreFailed reports a store operation that failed.
func StoreFailed(message string) *Error {
	return New(ErrStoreFailed, orDefault(message, "Network store operation failed"), http.StatusInternalServerError)
}

// SystemInternal reports an unexpected server failure.
func SystemInternal(message string) *Error {
	return New(ErrSystemInternal, orDefault(message, "Internal server error"), http.StatusInternalServerError)
}

// SystemTimeout reports a request that ran out of time.
func SystemTimeout(message string) *Error {
	return New(ErrSystemTimeout, orDefault(message, "Request timeout"), http.StatusRequestTimeout)
}

// ValidationInvalidJSON reports an unparseable request body.
func ValidationInvalidJSON() *Error {
	return New(ErrValidationInvalidJSON, "Invalid JSON request body", http.StatusBadRequest)
}

// ValidationInvalidFormat reports a parseable but ill-formed request.
func ValidationInvalidFormat(message string) *Error {
	return New(ErrValidationInvalidFormat, orDefault(message, "Invalid request format"), http.StatusBadRequest)
}

// ValidationMissingField reports an absent required field.
func ValidationMissingField(field string) *Error {
	return New(ErrValidationMissingField, "Missing required field: "+field, http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// ValidationInvalidValue reports a field holding an unusable value.
func ValidationInvalidValue(field string, message string) *Error {
	return New(ErrValidationInvalidValue, orDefault(message, "Invalid value for field: "+field), http.StatusBadRequest).
		WithDetails(map[string]interface{}{"field": field})
}

// RateLimitGlobal reports the server-wide rate limit being hit.
func RateLimitGlobal() *Error {
	return New(ErrRateLimitGlobal, "Rate limit exceeded - too many requests globally", http.StatusTooManyRequests)
}

// RateLimitIP reports a per-client rate limit being hit.
func RateLimitIP() *Error {
	return New(ErrRateLimitIP, "Rate limit exceeded - too many requests from your IP", http.StatusTooManyRequests)
}
