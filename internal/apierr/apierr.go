// Package apierr defines the API error taxonomy and the error response
// envelope shared by every handler and middleware.
//
// Every rejection, from any pipeline stage, is serialised as:
//
//	{statusCode, message, errors, timestamp, path}
//
// Status classes: 401 missing/invalid/org-less identity, 403 tenant mismatch
// or insufficient permissions, 402 subscription/quota failures, 409 uniqueness
// conflicts, 404 tenant-scoped lookup misses.
package apierr

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Error is an API-visible error with an HTTP status.
type Error struct {
	Status  int      `json:"statusCode"`
	Message string   `json:"message"`
	Details []string `json:"errors"`
}

func (e *Error) Error() string { return e.Message }

// New creates an Error with an explicit status.
func New(status int, message string, details ...string) *Error {
	return &Error{Status: status, Message: message, Details: details}
}

// Constructors for the platform error taxonomy.

// Authentication covers missing, invalid, expired, or organization-less
// identity tokens.
func Authentication(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// TenantContext covers protected routes with no resolvable tenant.
func TenantContext(message string) *Error {
	return New(http.StatusUnauthorized, message)
}

// TenantMismatch covers untrusted input naming a different organization
// than the verified token.
func TenantMismatch() *Error {
	return New(http.StatusForbidden, "organization mismatch between token and request")
}

// Authorization covers a failed permission subset test.
func Authorization(missing ...string) *Error {
	return New(http.StatusForbidden, "insufficient permissions", missing...)
}

// PaymentRequired covers subscription, feature, and quota rejections.
func PaymentRequired(message string, details ...string) *Error {
	return New(http.StatusPaymentRequired, message, details...)
}

// Conflict covers uniqueness collisions, naming the colliding field.
func Conflict(field string) *Error {
	return New(http.StatusConflict, field+" already in use", field)
}

// NotFound covers tenant-scoped lookup misses. Cross-tenant hits are
// reported identically to avoid existence leakage.
func NotFound(resource string) *Error {
	return New(http.StatusNotFound, resource+" not found")
}

// BadRequest covers malformed input.
func BadRequest(message string, details ...string) *Error {
	return New(http.StatusBadRequest, message, details...)
}

// envelope is the wire shape of every error response.
type envelope struct {
	StatusCode int       `json:"statusCode"`
	Message    string    `json:"message"`
	Errors     []string  `json:"errors"`
	Timestamp  time.Time `json:"timestamp"`
	Path       string    `json:"path"`
}

// Respond writes err as the standard envelope. Unknown error types become a
// generic 500 without leaking internal detail.
func Respond(c *gin.Context, err error) {
	var apiErr *Error
	if !errors.As(err, &apiErr) {
		apiErr = New(http.StatusInternalServerError, "internal server error")
	}
	details := apiErr.Details
	if details == nil {
		details = []string{}
	}
	c.JSON(apiErr.Status, envelope{
		StatusCode: apiErr.Status,
		Message:    apiErr.Message,
		Errors:     details,
		Timestamp:  time.Now().UTC(),
		Path:       c.Request.URL.Path,
	})
}

// Abort writes the envelope and stops the handler chain.
func Abort(c *gin.Context, err error) {
	Respond(c, err)
	c.Abort()
}
