package core

import (
	"errors"
	"net/http"
	"strings"

	"github.com/goccy/go-json"
)

// Error is a service error. Every failure the backend reports to a client is
// one of the five taxonomy members below; anything else is a generic server
// error at the boundary.
type Error struct {
	Status  int    `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

// NotFoundError reports a missing collection, record, session or user.
func NotFoundError(message string) *Error {
	if message == "" {
		message = "Resource not found"
	}
	return &Error{Status: http.StatusNotFound, Message: message}
}

// RequestError reports a malformed query, path or write payload.
func RequestError(message string) *Error {
	if message == "" {
		message = "Request error"
	}
	return &Error{Status: http.StatusBadRequest, Message: message}
}

// ConflictError reports a duplicate identity at registration.
func ConflictError(message string) *Error {
	if message == "" {
		message = "Resource conflict"
	}
	return &Error{Status: http.StatusConflict, Message: message}
}

// AuthorizationError reports a mutation attempted without a resolved caller.
func AuthorizationError(message string) *Error {
	if message == "" {
		message = "Unauthorized"
	}
	return &Error{Status: http.StatusUnauthorized, Message: message}
}

// CredentialError reports an ownership mismatch, a bad login or an invalid token.
func CredentialError(message string) *Error {
	if message == "" {
		message = "Forbidden"
	}
	return &Error{Status: http.StatusForbidden, Message: message}
}

// AsError maps an arbitrary failure to a service error. Store failures carry
// "does not exist" in their message and become NotFound; everything else is
// treated as a request error with the original message attached.
func AsError(err error) *Error {
	var serviceErr *Error
	if errors.As(err, &serviceErr) {
		return serviceErr
	}
	if strings.Contains(err.Error(), "does not exist") {
		return NotFoundError("")
	}
	return RequestError(err.Error())
}

// WriteError serializes err as a {code, message} JSON object with the
// taxonomy status.
func WriteError(w http.ResponseWriter, err error) {
	serviceErr := AsError(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(serviceErr.Status)
	json.NewEncoder(w).Encode(serviceErr)
}
