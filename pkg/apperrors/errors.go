// Package apperrors implements the flat error-kind taxonomy shared by every
// OpenAct component: CLI, HTTP API, and tool protocol front all translate
// through the same *Error type so a single place maps kinds to transport
// status codes.
package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is a symbolic error category. Kinds are flat, never nested, and are
// stable wire identifiers (serialized as the "code" field of the
// {ok:false, error:{code,message,data}} envelope).
type Kind string

// Recognized kinds, per spec.md §7.
const (
	KindInvalidArguments Kind = "INVALID_ARGUMENTS"
	KindNotFound         Kind = "NOT_FOUND"
	KindConflict         Kind = "CONFLICT"
	KindUnauthorized     Kind = "UNAUTHORIZED"
	KindPermissionDenied Kind = "PERMISSION_DENIED"
	KindTimeout          Kind = "TIMEOUT"
	KindEnvResolution    Kind = "ENV_RESOLUTION"
	KindSchemaValidation Kind = "SCHEMA_VALIDATION"
	KindAuthError        Kind = "AUTH_ERROR"
	KindNetworkError     Kind = "NETWORK_ERROR"
	KindResponseTooLarge Kind = "RESPONSE_TOO_LARGE"
	KindBinaryNotAllowed Kind = "BINARY_NOT_ALLOWED"
	KindInternal         Kind = "INTERNAL"
)

// AuthError subcategories (spec.md §7, AuthError).
const (
	SubNoRefreshToken = "NO_REFRESH_TOKEN"
	SubRefreshFailed  = "REFRESH_FAILED"
	SubProviderError  = "PROVIDER_ERROR"
)

// Error is the concrete error type every OpenAct component returns.
type Error struct {
	Kind    Kind
	Message string
	Data    map[string]any
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap allows errors.Is/errors.As to see through to the cause.
func (e *Error) Unwrap() error { return e.Cause }

// New constructs a bare Error of the given kind.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Newf constructs a bare Error with a formatted message.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind to an existing error, preserving it as Cause. If err
// is already an *Error, its kind and data are preserved and only the
// message is augmented.
func Wrap(kind Kind, err error, message string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{Kind: existing.Kind, Message: message, Data: existing.Data, Cause: existing}
	}
	return &Error{Kind: kind, Message: message, Cause: err}
}

// WithData attaches structured data to the error and returns it for chaining.
func (e *Error) WithData(data map[string]any) *Error {
	e.Data = data
	return e
}

// Is reports whether err carries the given Kind, unwrapping as needed.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf extracts the Kind of err, defaulting to KindInternal when err is
// not an *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the HTTP status code the API façade should use.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindInvalidArguments, KindSchemaValidation, KindEnvResolution:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized, KindAuthError:
		return http.StatusUnauthorized
	case KindPermissionDenied:
		return http.StatusForbidden
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindResponseTooLarge:
		return http.StatusRequestEntityTooLarge
	case KindBinaryNotAllowed:
		return http.StatusUnsupportedMediaType
	case KindNetworkError:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// JSONRPCCode maps a Kind to a JSON-RPC 2.0 error code. Well-known
// transport-level codes are reused where they apply; anything
// application-specific falls back to the generic server-error range and
// carries the symbolic Kind in the "data" field instead.
func (k Kind) JSONRPCCode() int {
	switch k {
	case KindInvalidArguments, KindSchemaValidation, KindEnvResolution:
		return -32602 // Invalid params
	case KindNotFound:
		return -32601 // Method not found (repurposed for resource-not-found)
	default:
		return -32000 // generic application error
	}
}

// Envelope is the user-visible error shape from spec.md §7.
type Envelope struct {
	OK    bool        `json:"ok"`
	Error *ErrorBody  `json:"error,omitempty"`
	Data  interface{} `json:"data,omitempty"`
}

// ErrorBody is the "error" field of Envelope.
type ErrorBody struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Data    map[string]any `json:"data,omitempty"`
}

// ToEnvelope converts any error into the wire envelope shape.
func ToEnvelope(err error) Envelope {
	var e *Error
	if errors.As(err, &e) {
		return Envelope{OK: false, Error: &ErrorBody{Code: string(e.Kind), Message: e.Message, Data: e.Data}}
	}
	return Envelope{OK: false, Error: &ErrorBody{Code: string(KindInternal), Message: err.Error()}}
}
