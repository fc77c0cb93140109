// Package apierr is the error taxonomy shared by every HTTP endpoint.
// Each error carries a machine-stable reason next to the human-readable message.
package apierr

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Kind classifies an error and selects its HTTP status.
type Kind int

const (
	KindInternal Kind = iota
	KindUnauthorized
	KindForbidden
	KindBadRequest
	KindNotFound
	KindPaymentRequired
	KindUnprocessable
	KindRateLimited
	KindStorageUnavailable
	KindBackendUnavailable
)

// Stable reasons.
const (
	ReasonMissingAPIKey      = "missing_api_key"
	ReasonInvalidAPIKey      = "invalid_api_key"
	ReasonKeyCancelled       = "key_cancelled"
	ReasonQuotaExhausted     = "quota_exhausted"
	ReasonMissingParameter   = "missing_parameter"
	ReasonInvalidParameter   = "invalid_parameter"
	ReasonPartitionNotFound  = "partition_not_found"
	ReasonNotFound           = "not_found"
	ReasonInvalidSession     = "invalid_session"
	ReasonPaymentRequired    = "payment_required"
	ReasonInvalidSignature   = "invalid_signature"
	ReasonNotConfigured      = "not_configured"
	ReasonRateLimited        = "rate_limited"
	ReasonStorageUnavailable = "storage_unavailable"
	ReasonBackendUnavailable = "backend_unavailable"
	ReasonDeliveryFailed     = "delivery_failed"
	ReasonInternal           = "internal_error"
)

func (k Kind) String() string {
	switch k {
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindBadRequest:
		return "bad_request"
	case KindNotFound:
		return "not_found"
	case KindPaymentRequired:
		return "payment_required"
	case KindUnprocessable:
		return "unprocessable"
	case KindRateLimited:
		return "rate_limited"
	case KindStorageUnavailable:
		return "storage_unavailable"
	case KindBackendUnavailable:
		return "backend_unavailable"
	default:
		return "internal"
	}
}

// Status maps the kind to its HTTP status code.
func (k Kind) Status() int {
	switch k {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindBadRequest:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindPaymentRequired:
		return http.StatusPaymentRequired
	case KindUnprocessable:
		return http.StatusUnprocessableEntity
	case KindRateLimited:
		return http.StatusTooManyRequests
	case KindBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// Error is a typed API error. Details are merged into the response body.
type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s (%s): %s: %v", e.Kind, e.Reason, e.Message, e.Err)
	}
	return fmt.Sprintf("%s (%s): %s", e.Kind, e.Reason, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// With attaches a detail field to the response body.
func (e *Error) With(key string, value any) *Error {
	if e.Details == nil {
		e.Details = make(map[string]any)
	}
	e.Details[key] = value
	return e
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func Wrap(kind Kind, reason, message string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message, Err: err}
}

func Unauthorized(reason, message string) *Error { return New(KindUnauthorized, reason, message) }
func Forbidden(reason, message string) *Error    { return New(KindForbidden, reason, message) }
func BadRequest(reason, message string) *Error   { return New(KindBadRequest, reason, message) }
func NotFound(reason, message string) *Error     { return New(KindNotFound, reason, message) }

func StorageUnavailable(err error) *Error {
	return Wrap(KindStorageUnavailable, ReasonStorageUnavailable, "Storage unavailable.", err)
}

func BackendUnavailable(message string, err error) *Error {
	return Wrap(KindBackendUnavailable, ReasonBackendUnavailable, message, err)
}

// From converts any error into an *Error, defaulting to an internal error.
func From(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return Wrap(KindInternal, ReasonInternal, "Server error.", err)
}

// Is reports whether err is an API error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// Body renders the JSON body for an error.
func Body(e *Error) gin.H {
	body := gin.H{"ok": false, "error": e.Message, "reason": e.Reason}
	for k, v := range e.Details {
		body[k] = v
	}
	return body
}

// Respond aborts the request with the error's status and body.
func Respond(c *gin.Context, err error) {
	e := From(err)
	if e.Err != nil {
		_ = c.Error(e)
	}
	c.AbortWithStatusJSON(e.Kind.Status(), Body(e))
}
